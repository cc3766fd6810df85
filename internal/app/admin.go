package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"classpulse/internal/domain"
)

// Group names look like "43-IS": two or three digits, a dash, two or three
// letters.
var groupNamePattern = regexp.MustCompile(`^[0-9]{2,3}-\p{L}{2,3}$`)

// AdminService covers the teacher-side flows: groups, enrollment and poll
// authoring.
type AdminService struct {
	users  UserStore
	groups GroupStore
	polls  PollStore
	cache  PollCacheInvalidator
	now    func() time.Time
}

// PollCacheInvalidator drops a group's cached active poll after authoring a
// new one.
type PollCacheInvalidator interface {
	Invalidate(ctx context.Context, groupID int64)
}

func NewAdminService(users UserStore, groups GroupStore, polls PollStore) *AdminService {
	return &AdminService{users: users, groups: groups, polls: polls, now: time.Now}
}

// WithPollCache registers the cache to invalidate when a poll is published.
func (s *AdminService) WithPollCache(cache PollCacheInvalidator) *AdminService {
	s.cache = cache
	return s
}

// NewAdminServiceWithClock is test-only for deterministic poll expiries.
func NewAdminServiceWithClock(users UserStore, groups GroupStore, polls PollStore, now func() time.Time) *AdminService {
	s := NewAdminService(users, groups, polls)
	s.now = now
	return s
}

// IsAdmin is the authorization guard the front-end invokes before
// dispatching teacher operations.
func (s *AdminService) IsAdmin(ctx context.Context, chatID int64) error {
	user, err := s.users.UserByChatID(ctx, chatID)
	if err != nil {
		return err
	}
	if user.Role != domain.RoleAdmin {
		return domain.ErrNotAdmin
	}
	return nil
}

// CreateGroup creates a group owned by the calling teacher.
func (s *AdminService) CreateGroup(ctx context.Context, teacherChatID int64, name string) (domain.Group, error) {
	name = strings.TrimSpace(name)
	if !groupNamePattern.MatchString(name) {
		return domain.Group{}, fmt.Errorf("group name %q must look like \"43-IS\"", name)
	}
	teacher, err := s.users.UserByChatID(ctx, teacherChatID)
	if err != nil {
		return domain.Group{}, err
	}
	if _, err := s.groups.GroupByName(ctx, name); err == nil {
		return domain.Group{}, domain.ErrGroupExists
	} else if !errors.Is(err, domain.ErrGroupNotFound) {
		return domain.Group{}, err
	}
	return s.groups.CreateGroup(ctx, domain.Group{Name: name, TeacherID: teacher.ID})
}

// EnrollStudent registers a student in a group with the default attention
// score.
func (s *AdminService) EnrollStudent(ctx context.Context, groupID int64, fullName string, chatID int64) (domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return domain.User{}, fmt.Errorf("student name must not be empty")
	}
	group, err := s.groups.GroupByID(ctx, groupID)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.users.UserByChatID(ctx, chatID); err == nil {
		return domain.User{}, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}
	return s.users.CreateUser(ctx, domain.User{
		ChatID:         chatID,
		FullName:       fullName,
		AttentionScore: MaxAttentionScore,
		GroupID:        &group.ID,
		Role:           domain.RoleUser,
	})
}

// CreatePoll publishes a poll to a group. Exactly one option, picked by
// correctIndex, carries the answer key.
func (s *AdminService) CreatePoll(ctx context.Context, groupID int64, question string, options []string, correctIndex int, duration time.Duration) (domain.PollWithOptions, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.PollWithOptions{}, fmt.Errorf("poll question must not be empty")
	}
	if len(options) < 2 {
		return domain.PollWithOptions{}, fmt.Errorf("poll needs at least two options")
	}
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return domain.PollWithOptions{}, fmt.Errorf("poll options must not be empty")
		}
		if _, dup := seen[opt]; dup {
			return domain.PollWithOptions{}, fmt.Errorf("duplicate poll option %q", opt)
		}
		seen[opt] = struct{}{}
	}
	if correctIndex < 0 || correctIndex >= len(options) {
		return domain.PollWithOptions{}, fmt.Errorf("correct option index %d out of range", correctIndex)
	}
	if duration <= 0 {
		return domain.PollWithOptions{}, fmt.Errorf("poll duration must be positive")
	}
	group, err := s.groups.GroupByID(ctx, groupID)
	if err != nil {
		return domain.PollWithOptions{}, err
	}

	poll := domain.Poll{
		Question:  question,
		GroupID:   group.ID,
		ExpiresAt: s.now().Add(duration),
		IsActive:  true,
	}
	opts := make([]domain.Option, len(options))
	for i, value := range options {
		opts[i] = domain.Option{Value: value, IsAnswerKey: i == correctIndex}
	}
	created, err := s.polls.CreatePoll(ctx, poll, opts)
	if err != nil {
		return domain.PollWithOptions{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, group.ID)
	}
	return created, nil
}

// Groups lists all groups.
func (s *AdminService) Groups(ctx context.Context) ([]domain.Group, error) {
	return s.groups.Groups(ctx)
}

// GroupMembers lists the students of one group.
func (s *AdminService) GroupMembers(ctx context.Context, groupID int64) ([]domain.User, error) {
	if _, err := s.groups.GroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	return s.users.UsersInGroup(ctx, groupID)
}
