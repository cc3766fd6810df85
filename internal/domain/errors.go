package domain

import "errors"

var (
	// ErrUserNotFound is returned when a chat or internal ID matches no user.
	ErrUserNotFound = errors.New("user not found")
	// ErrGroupNotFound indicates the group does not exist.
	ErrGroupNotFound = errors.New("group not found")
	// ErrGroupExists indicates a group name collision.
	ErrGroupExists = errors.New("group already exists")
	// ErrUserExists indicates the chat ID is already enrolled.
	ErrUserExists = errors.New("user already exists")
	// ErrPollNotFound indicates the poll does not exist.
	ErrPollNotFound = errors.New("poll not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNoActivePoll is returned when the user's group has no open poll.
	ErrNoActivePoll = errors.New("no active poll")
	// ErrAlreadyAnswered is returned on a second answer to the same poll.
	ErrAlreadyAnswered = errors.New("poll already answered")
	// ErrPollClosed is returned when the poll expired or was deactivated.
	ErrPollClosed = errors.New("poll closed")
	// ErrNotAdmin is returned by the authorization guard.
	ErrNotAdmin = errors.New("admin role required")
	// ErrNoGroup is returned when an operation needs a group membership.
	ErrNoGroup = errors.New("user has no group")
)
