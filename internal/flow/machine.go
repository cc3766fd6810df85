// Package flow models the multi-step creation conversations (groups,
// enrollment, polls) as an explicit state machine with typed payloads. A
// Machine holds the dialog state of one chat; the transport feeds it text
// messages and executes the command it emits on completion. The machine
// never touches a store.
package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Step identifies the conversational state of a chat.
type Step int

const (
	StepIdle Step = iota
	StepGroupName
	StepStudentData
	StepPollQuestion
	StepPollOptions
	StepPollCorrect
	StepPollDuration
)

// DoneKeyword finishes the option-collection step of poll creation.
const DoneKeyword = "done"

// Command is a completed conversation, ready to be executed by the caller.
type Command interface{ isCommand() }

// CreateGroup is emitted when the group-creation dialog completes.
type CreateGroup struct {
	Name string
}

// EnrollStudent is emitted when the enrollment dialog completes.
type EnrollStudent struct {
	GroupID  int64
	FullName string
	ChatID   int64
}

// CreatePoll is emitted when the poll-creation dialog completes.
type CreatePoll struct {
	GroupID      int64
	Question     string
	Options      []string
	CorrectIndex int
	Duration     time.Duration
}

func (CreateGroup) isCommand()   {}
func (EnrollStudent) isCommand() {}
func (CreatePoll) isCommand()    {}

// Reply tells the transport what to show next. Choices, when present, are
// options the user picks from.
type Reply struct {
	Prompt  string
	Choices []string
}

// Machine drives one chat's creation dialogs.
type Machine struct {
	step Step

	groupID      int64
	question     string
	options      []string
	correctIndex int
}

func New() *Machine {
	return &Machine{}
}

func (m *Machine) Step() Step {
	return m.step
}

// Reset drops any in-flight dialog.
func (m *Machine) Reset() {
	*m = Machine{}
}

// BeginGroupCreation starts the group-name dialog.
func (m *Machine) BeginGroupCreation() Reply {
	m.Reset()
	m.step = StepGroupName
	return Reply{Prompt: `Enter the group name, e.g. "43-IS"`}
}

// BeginEnrollment starts the student-enrollment dialog for a group.
func (m *Machine) BeginEnrollment(groupID int64) Reply {
	m.Reset()
	m.step = StepStudentData
	m.groupID = groupID
	return Reply{Prompt: "Enter the student as: FirstName LastName ChatID"}
}

// BeginPollCreation starts the poll-authoring dialog for a group.
func (m *Machine) BeginPollCreation(groupID int64) Reply {
	m.Reset()
	m.step = StepPollQuestion
	m.groupID = groupID
	return Reply{Prompt: "Enter the poll question:"}
}

// Handle advances the machine with one text message. On invalid input the
// state is kept and an error is returned so the user can retry. When a
// dialog completes, the emitted Command is non-nil and the machine returns
// to StepIdle.
func (m *Machine) Handle(text string) (Reply, Command, error) {
	text = strings.TrimSpace(text)

	switch m.step {
	case StepGroupName:
		if text == "" {
			return Reply{}, nil, fmt.Errorf("group name must not be empty")
		}
		cmd := CreateGroup{Name: text}
		m.Reset()
		return Reply{Prompt: fmt.Sprintf("Group %q created.", cmd.Name)}, cmd, nil

	case StepStudentData:
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return Reply{}, nil, fmt.Errorf("expected: FirstName LastName ChatID")
		}
		chatID, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return Reply{}, nil, fmt.Errorf("chat ID %q is not a number", fields[2])
		}
		cmd := EnrollStudent{
			GroupID:  m.groupID,
			FullName: fields[0] + " " + fields[1],
			ChatID:   chatID,
		}
		m.Reset()
		return Reply{Prompt: fmt.Sprintf("Student %q enrolled.", cmd.FullName)}, cmd, nil

	case StepPollQuestion:
		if text == "" {
			return Reply{}, nil, fmt.Errorf("question must not be empty")
		}
		m.question = text
		m.options = nil
		m.step = StepPollOptions
		return Reply{Prompt: fmt.Sprintf("Now send the answer options, one per message. Send %q to finish.", DoneKeyword)}, nil, nil

	case StepPollOptions:
		if strings.EqualFold(text, DoneKeyword) {
			if len(m.options) < 2 {
				return Reply{}, nil, fmt.Errorf("add at least two options first")
			}
			m.step = StepPollCorrect
			return Reply{Prompt: "Pick the correct option:", Choices: append([]string(nil), m.options...)}, nil, nil
		}
		if text == "" {
			return Reply{}, nil, fmt.Errorf("option must not be empty")
		}
		for _, opt := range m.options {
			if opt == text {
				return Reply{}, nil, fmt.Errorf("option %q is already added", text)
			}
		}
		m.options = append(m.options, text)
		return Reply{Prompt: fmt.Sprintf("Option added: %s", text)}, nil, nil

	case StepPollCorrect:
		idx, err := m.matchOption(text)
		if err != nil {
			return Reply{}, nil, err
		}
		m.step = StepPollDuration
		m.correctIndex = idx
		return Reply{Prompt: "Enter the poll duration in minutes:"}, nil, nil

	case StepPollDuration:
		minutes, err := strconv.Atoi(text)
		if err != nil || minutes <= 0 {
			return Reply{}, nil, fmt.Errorf("enter a positive number of minutes")
		}
		cmd := CreatePoll{
			GroupID:      m.groupID,
			Question:     m.question,
			Options:      append([]string(nil), m.options...),
			CorrectIndex: m.correctIndex,
			Duration:     time.Duration(minutes) * time.Minute,
		}
		m.Reset()
		return Reply{Prompt: fmt.Sprintf("Poll created: %s (%d min)", cmd.Question, minutes)}, cmd, nil
	}

	return Reply{}, nil, fmt.Errorf("no dialog in progress")
}

// matchOption resolves the user's pick either by 1-based index or by the
// option text itself.
func (m *Machine) matchOption(text string) (int, error) {
	if idx, err := strconv.Atoi(text); err == nil {
		if idx < 1 || idx > len(m.options) {
			return 0, fmt.Errorf("option number %d out of range", idx)
		}
		return idx - 1, nil
	}
	for i, opt := range m.options {
		if opt == text {
			return i, nil
		}
	}
	return 0, fmt.Errorf("option %q not found", text)
}
