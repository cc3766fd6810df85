package app

import (
	"context"
	"time"

	"classpulse/internal/domain"
)

// AnswerService handles the student side: fetching the open poll and
// recording a single answer per poll, together with the attention score
// update derived from it.
type AnswerService struct {
	users   UserStore
	polls   PollStore
	source  PollSource
	answers AnswerStore
	stats   StatsStore
	now     func() time.Time
}

func NewAnswerService(users UserStore, polls PollStore, source PollSource, answers AnswerStore, stats StatsStore) *AnswerService {
	return &AnswerService{
		users:   users,
		polls:   polls,
		source:  source,
		answers: answers,
		stats:   stats,
		now:     time.Now,
	}
}

// NewAnswerServiceWithClock is test-only for deterministic expiry checks.
func NewAnswerServiceWithClock(users UserStore, polls PollStore, source PollSource, answers AnswerStore, stats StatsStore, now func() time.Time) *AnswerService {
	s := NewAnswerService(users, polls, source, answers, stats)
	s.now = now
	return s
}

// ActivePoll returns the open poll of the student's group, ready to be
// answered. ErrNoActivePoll when there is none (or the cached one already
// expired), ErrAlreadyAnswered when the student has answered it.
func (s *AnswerService) ActivePoll(ctx context.Context, chatID int64) (domain.PollWithOptions, error) {
	user, err := s.users.UserByChatID(ctx, chatID)
	if err != nil {
		return domain.PollWithOptions{}, err
	}
	if user.GroupID == nil {
		return domain.PollWithOptions{}, domain.ErrNoGroup
	}

	pwo, err := s.source.ActivePoll(ctx, *user.GroupID)
	if err != nil {
		return domain.PollWithOptions{}, err
	}
	// The source may serve a cached poll that expired in the meantime.
	if !pwo.Poll.IsActive || !s.now().Before(pwo.Poll.ExpiresAt) {
		return domain.PollWithOptions{}, domain.ErrNoActivePoll
	}

	answered, err := s.answers.HasAnswered(ctx, user.ID, pwo.Poll.ID)
	if err != nil {
		return domain.PollWithOptions{}, err
	}
	if answered {
		return domain.PollWithOptions{}, domain.ErrAlreadyAnswered
	}
	return pwo, nil
}

// Submit records the student's option pick and writes back the updated
// attention score. The store commits both as one transaction; the historical
// counts feeding the score update come from the same qualifying rows the
// statistics use.
func (s *AnswerService) Submit(ctx context.Context, chatID, optionID int64) (domain.AnswerOutcome, error) {
	user, err := s.users.UserByChatID(ctx, chatID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	option, err := s.polls.OptionByID(ctx, optionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	poll, err := s.polls.PollByID(ctx, option.PollID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if user.GroupID == nil || *user.GroupID != poll.GroupID {
		return domain.AnswerOutcome{}, domain.ErrPollNotFound
	}
	if !poll.IsActive || !s.now().Before(poll.ExpiresAt) {
		return domain.AnswerOutcome{}, domain.ErrPollClosed
	}

	answered, err := s.answers.HasAnswered(ctx, user.ID, poll.ID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if answered {
		return domain.AnswerOutcome{}, domain.ErrAlreadyAnswered
	}

	outcomes, err := s.stats.PollOutcomes(ctx, user.ID, poll.GroupID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	total, _, correct := tallyOutcomes(outcomes)

	newScore := NextAttentionScore(user.AttentionScore, option.IsAnswerKey, total, correct)
	if err := s.answers.RecordAnswer(ctx, user.ID, optionID, newScore); err != nil {
		return domain.AnswerOutcome{}, err
	}

	return domain.AnswerOutcome{
		PollID:         poll.ID,
		OptionID:       optionID,
		Correct:        option.IsAnswerKey,
		AttentionScore: newScore,
	}, nil
}
