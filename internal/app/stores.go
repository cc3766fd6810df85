package app

import (
	"context"

	"classpulse/internal/domain"
)

// UserStore resolves and creates users.
type UserStore interface {
	UserByChatID(ctx context.Context, chatID int64) (domain.User, error)
	UserByID(ctx context.Context, id int64) (domain.User, error)
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	UsersInGroup(ctx context.Context, groupID int64) ([]domain.User, error)
}

// GroupStore resolves and creates groups.
type GroupStore interface {
	GroupByID(ctx context.Context, id int64) (domain.Group, error)
	GroupByName(ctx context.Context, name string) (domain.Group, error)
	CreateGroup(ctx context.Context, g domain.Group) (domain.Group, error)
	Groups(ctx context.Context) ([]domain.Group, error)
}

// PollStore persists polls and their options.
type PollStore interface {
	// CreatePoll stores the poll and all its options in one shot.
	CreatePoll(ctx context.Context, poll domain.Poll, options []domain.Option) (domain.PollWithOptions, error)
	PollByID(ctx context.Context, id int64) (domain.Poll, error)
	// ActivePoll returns the group's open, unexpired poll or ErrNoActivePoll.
	ActivePoll(ctx context.Context, groupID int64) (domain.PollWithOptions, error)
	OptionByID(ctx context.Context, id int64) (domain.Option, error)
}

// AnswerStore records submissions. RecordAnswer must commit the answer
// insert and the attention score update as one transaction.
type AnswerStore interface {
	HasAnswered(ctx context.Context, userID, pollID int64) (bool, error)
	RecordAnswer(ctx context.Context, userID, optionID int64, newScore float64) error
}

// StatsStore supplies the qualifying-decision rows the aggregation runs on.
type StatsStore interface {
	// PollOutcomes returns one row per poll of the group, resolved against
	// the given user's answers.
	PollOutcomes(ctx context.Context, userID, groupID int64) ([]domain.PollOutcome, error)
	// CohortOutcomes returns rows for every user across all groups. A user
	// without polls still yields a single row with a zero PollID.
	CohortOutcomes(ctx context.Context) ([]domain.CohortOutcome, error)
}

// Store is the full persistence surface an infra implementation provides.
type Store interface {
	UserStore
	GroupStore
	PollStore
	AnswerStore
	StatsStore
}

// PollSource supplies the currently open poll of a group. Caches implement
// this in front of a PollStore.
type PollSource interface {
	ActivePoll(ctx context.Context, groupID int64) (domain.PollWithOptions, error)
}
