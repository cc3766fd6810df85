package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"classpulse/internal/domain"
)

// Store is a mutex-guarded in-memory implementation of app.Store, used in
// demo mode and in tests.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	nextID  int64
	users   map[int64]domain.User
	groups  map[int64]domain.Group
	polls   map[int64]domain.Poll
	options map[int64]domain.Option
	answers map[int64]domain.AnswerRecord
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic expiry checks in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:     now,
		nextID:  1,
		users:   make(map[int64]domain.User),
		groups:  make(map[int64]domain.Group),
		polls:   make(map[int64]domain.Poll),
		options: make(map[int64]domain.Option),
		answers: make(map[int64]domain.AnswerRecord),
	}
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) UserByChatID(_ context.Context, chatID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ChatID == chatID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) UserByID(_ context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ChatID == u.ChatID {
			return domain.User{}, domain.ErrUserExists
		}
	}
	u.ID = s.allocID()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UsersInGroup(_ context.Context, groupID int64) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if u.GroupID != nil && *u.GroupID == groupID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GroupByID(_ context.Context, id int64) (domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.groups[id]; ok {
		return g, nil
	}
	return domain.Group{}, domain.ErrGroupNotFound
}

func (s *Store) GroupByName(_ context.Context, name string) (domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Name == name {
			return g, nil
		}
	}
	return domain.Group{}, domain.ErrGroupNotFound
}

func (s *Store) CreateGroup(_ context.Context, g domain.Group) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.Name == g.Name {
			return domain.Group{}, domain.ErrGroupExists
		}
	}
	g.ID = s.allocID()
	s.groups[g.ID] = g
	return g, nil
}

func (s *Store) Groups(_ context.Context) ([]domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreatePoll(_ context.Context, poll domain.Poll, options []domain.Option) (domain.PollWithOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[poll.GroupID]; !ok {
		return domain.PollWithOptions{}, domain.ErrGroupNotFound
	}
	poll.ID = s.allocID()
	s.polls[poll.ID] = poll
	stored := make([]domain.Option, len(options))
	for i, opt := range options {
		opt.ID = s.allocID()
		opt.PollID = poll.ID
		s.options[opt.ID] = opt
		stored[i] = opt
	}
	return domain.PollWithOptions{Poll: poll, Options: stored}, nil
}

func (s *Store) PollByID(_ context.Context, id int64) (domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.polls[id]; ok {
		return p, nil
	}
	return domain.Poll{}, domain.ErrPollNotFound
}

func (s *Store) ActivePoll(_ context.Context, groupID int64) (domain.PollWithOptions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	// Latest matching poll wins, as in the SQL store.
	var latest *domain.Poll
	for _, p := range s.polls {
		if p.GroupID == groupID && p.IsActive && now.Before(p.ExpiresAt) {
			p := p
			if latest == nil || p.ID > latest.ID {
				latest = &p
			}
		}
	}
	if latest == nil {
		return domain.PollWithOptions{}, domain.ErrNoActivePoll
	}
	return domain.PollWithOptions{Poll: *latest, Options: s.optionsOfLocked(latest.ID)}, nil
}

func (s *Store) OptionByID(_ context.Context, id int64) (domain.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if opt, ok := s.options[id]; ok {
		return opt, nil
	}
	return domain.Option{}, domain.ErrOptionNotFound
}

func (s *Store) HasAnswered(_ context.Context, userID, pollID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.answers {
		if a.UserID != userID {
			continue
		}
		if opt, ok := s.options[a.OptionID]; ok && opt.PollID == pollID {
			return true, nil
		}
	}
	return false, nil
}

// RecordAnswer stores the answer and the new attention score under one lock,
// matching the transactional contract of the SQL store.
func (s *Store) RecordAnswer(_ context.Context, userID, optionID int64, newScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	opt, ok := s.options[optionID]
	if !ok {
		return domain.ErrOptionNotFound
	}
	for _, a := range s.answers {
		if a.UserID == userID {
			if other, ok := s.options[a.OptionID]; ok && other.PollID == opt.PollID {
				return domain.ErrAlreadyAnswered
			}
		}
	}
	record := domain.AnswerRecord{ID: s.allocID(), UserID: userID, OptionID: optionID}
	s.answers[record.ID] = record
	user.AttentionScore = newScore
	s.users[userID] = user
	return nil
}

func (s *Store) PollOutcomes(_ context.Context, userID, groupID int64) ([]domain.PollOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollIDs := make([]int64, 0)
	for id, p := range s.polls {
		if p.GroupID == groupID {
			pollIDs = append(pollIDs, id)
		}
	}
	sort.Slice(pollIDs, func(i, j int) bool { return pollIDs[i] < pollIDs[j] })

	out := make([]domain.PollOutcome, 0, len(pollIDs))
	for _, id := range pollIDs {
		out = append(out, s.outcomeLocked(userID, id))
	}
	return out, nil
}

func (s *Store) CohortOutcomes(_ context.Context) ([]domain.CohortOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userIDs := make([]int64, 0, len(s.users))
	for id := range s.users {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	var rows []domain.CohortOutcome
	for _, uid := range userIDs {
		user := s.users[uid]
		var groupName *string
		var pollIDs []int64
		if user.GroupID != nil {
			if g, ok := s.groups[*user.GroupID]; ok {
				name := g.Name
				groupName = &name
				for id, p := range s.polls {
					if p.GroupID == g.ID {
						pollIDs = append(pollIDs, id)
					}
				}
			}
		}
		sort.Slice(pollIDs, func(i, j int) bool { return pollIDs[i] < pollIDs[j] })
		if len(pollIDs) == 0 {
			rows = append(rows, domain.CohortOutcome{User: user, GroupName: groupName})
			continue
		}
		for _, pid := range pollIDs {
			rows = append(rows, domain.CohortOutcome{
				User:      user,
				GroupName: groupName,
				Outcome:   s.outcomeLocked(uid, pid),
			})
		}
	}
	return rows, nil
}

func (s *Store) optionsOfLocked(pollID int64) []domain.Option {
	var opts []domain.Option
	for _, opt := range s.options {
		if opt.PollID == pollID {
			opts = append(opts, opt)
		}
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].ID < opts[j].ID })
	return opts
}

func (s *Store) outcomeLocked(userID, pollID int64) domain.PollOutcome {
	outcome := domain.PollOutcome{PollID: pollID}
	for _, opt := range s.options {
		if opt.PollID != pollID {
			continue
		}
		if opt.IsAnswerKey {
			outcome.HasAnswerKey = true
		}
		for _, a := range s.answers {
			if a.UserID == userID && a.OptionID == opt.ID {
				outcome.Answered = true
				if opt.IsAnswerKey {
					outcome.Correct = true
				}
			}
		}
	}
	return outcome
}
