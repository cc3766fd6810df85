package domain

import "time"

// Role of a registered user. Teachers are admins, students are users.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is a registered participant. ChatID identifies the user on the chat
// transport; AttentionScore stays within [0.5, 1.0] and defaults to 1.0.
type User struct {
	ID             int64   `json:"id"`
	ChatID         int64   `json:"chatId"`
	FullName       string  `json:"fullName"`
	AttentionScore float64 `json:"attentionScore"`
	GroupID        *int64  `json:"groupId"`
	Role           Role    `json:"role"`
}

// Group is a class owned by a teacher.
type Group struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	TeacherID int64  `json:"teacherId"`
}

// Poll is a single-question poll published to one group.
type Poll struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	GroupID   int64     `json:"groupId"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsActive  bool      `json:"isActive"`
}

// Option is one possible answer of a poll. Exactly one option per poll
// carries the answer key; the creation flow guarantees this.
type Option struct {
	ID          int64  `json:"id"`
	PollID      int64  `json:"pollId"`
	Value       string `json:"value"`
	IsAnswerKey bool   `json:"isAnswerKey"`
}

// PollWithOptions bundles a poll with its options for transport and caching.
type PollWithOptions struct {
	Poll    Poll     `json:"poll"`
	Options []Option `json:"options"`
}

// AnswerRecord states that a user picked an option. At most one record per
// (user, poll); the store enforces uniqueness on (user, option).
type AnswerRecord struct {
	ID       int64 `json:"id"`
	UserID   int64 `json:"userId"`
	OptionID int64 `json:"optionId"`
}

// PollOutcome is one qualifying-decision row for a (user, poll) pair:
// whether the poll has an answer key at all, whether the user answered it,
// and whether that answer hit the key.
type PollOutcome struct {
	PollID       int64
	HasAnswerKey bool
	Answered     bool
	Correct      bool
}

// CohortOutcome is a PollOutcome joined with its user, as produced by the
// all-users statistics query. Users without any poll still yield one row
// with PollID 0 so the aggregator sees them.
type CohortOutcome struct {
	User      User
	GroupName *string
	Outcome   PollOutcome
}

// UserStats is the aggregated participation/correctness view of one user.
// CompletionRate and CorrectRate are nil when the user has no qualifying
// polls; callers render that as "no data" rather than a percentage.
type UserStats struct {
	ChatID         int64    `json:"chatId"`
	FullName       string   `json:"fullName"`
	AttentionScore float64  `json:"attentionScore"`
	Role           Role     `json:"role"`
	GroupName      *string  `json:"groupName"`
	TotalPolls     int      `json:"totalPolls"`
	CompletedPolls int      `json:"completedPolls"`
	CompletionRate *float64 `json:"completionRate"`
	CorrectRate    *float64 `json:"correctRate"`
}

// AnswerOutcome summarizes a recorded submission for the student.
type AnswerOutcome struct {
	PollID         int64   `json:"pollId"`
	OptionID       int64   `json:"optionId"`
	Correct        bool    `json:"correct"`
	AttentionScore float64 `json:"attentionScore"`
}
