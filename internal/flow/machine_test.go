package flow

import (
	"testing"
	"time"
)

func TestGroupCreationDialog(t *testing.T) {
	m := New()
	m.BeginGroupCreation()

	if _, _, err := m.Handle("   "); err == nil {
		t.Fatalf("expected empty name to be rejected")
	}
	if m.Step() != StepGroupName {
		t.Fatalf("invalid input must keep the step, got %v", m.Step())
	}

	_, cmd, err := m.Handle("43-IS")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	create, ok := cmd.(CreateGroup)
	if !ok {
		t.Fatalf("expected CreateGroup command, got %T", cmd)
	}
	if create.Name != "43-IS" {
		t.Fatalf("unexpected name %q", create.Name)
	}
	if m.Step() != StepIdle {
		t.Fatalf("expected idle after completion, got %v", m.Step())
	}
}

func TestEnrollmentDialog(t *testing.T) {
	m := New()
	m.BeginEnrollment(7)

	if _, _, err := m.Handle("Alice"); err == nil {
		t.Fatalf("expected partial input to be rejected")
	}
	if _, _, err := m.Handle("Alice Ivanova nope"); err == nil {
		t.Fatalf("expected non-numeric chat ID to be rejected")
	}

	_, cmd, err := m.Handle("Alice Ivanova 100")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	enroll, ok := cmd.(EnrollStudent)
	if !ok {
		t.Fatalf("expected EnrollStudent command, got %T", cmd)
	}
	if enroll.GroupID != 7 || enroll.FullName != "Alice Ivanova" || enroll.ChatID != 100 {
		t.Fatalf("unexpected command %+v", enroll)
	}
}

func TestPollCreationDialog(t *testing.T) {
	m := New()
	m.BeginPollCreation(3)

	if _, _, err := m.Handle("What is 2 + 2?"); err != nil {
		t.Fatalf("question: %v", err)
	}

	// Finishing before two options is rejected.
	if _, _, err := m.Handle("done"); err == nil {
		t.Fatalf("expected rejection with too few options")
	}

	if _, _, err := m.Handle("3"); err != nil {
		t.Fatalf("option: %v", err)
	}
	if _, _, err := m.Handle("3"); err == nil {
		t.Fatalf("expected duplicate option to be rejected")
	}
	if _, _, err := m.Handle("4"); err != nil {
		t.Fatalf("option: %v", err)
	}

	reply, _, err := m.Handle("Done")
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if len(reply.Choices) != 2 {
		t.Fatalf("expected the options as choices, got %+v", reply.Choices)
	}

	// Correct option by 1-based index; out-of-range is rejected.
	if _, _, err := m.Handle("9"); err == nil {
		t.Fatalf("expected out-of-range pick to be rejected")
	}
	if _, _, err := m.Handle("2"); err != nil {
		t.Fatalf("pick: %v", err)
	}

	if _, _, err := m.Handle("zero"); err == nil {
		t.Fatalf("expected non-numeric duration to be rejected")
	}
	_, cmd, err := m.Handle("15")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	poll, ok := cmd.(CreatePoll)
	if !ok {
		t.Fatalf("expected CreatePoll command, got %T", cmd)
	}
	if poll.GroupID != 3 || poll.Question != "What is 2 + 2?" {
		t.Fatalf("unexpected command %+v", poll)
	}
	if len(poll.Options) != 2 || poll.CorrectIndex != 1 {
		t.Fatalf("unexpected options %+v correct=%d", poll.Options, poll.CorrectIndex)
	}
	if poll.Duration != 15*time.Minute {
		t.Fatalf("unexpected duration %v", poll.Duration)
	}
}

func TestPickCorrectOptionByText(t *testing.T) {
	m := New()
	m.BeginPollCreation(1)
	for _, msg := range []string{"q", "yes", "no", "done"} {
		if _, _, err := m.Handle(msg); err != nil {
			t.Fatalf("handle %q: %v", msg, err)
		}
	}
	if _, _, err := m.Handle("maybe"); err == nil {
		t.Fatalf("expected unknown option text to be rejected")
	}
	if _, _, err := m.Handle("no"); err != nil {
		t.Fatalf("pick by text: %v", err)
	}
	_, cmd, err := m.Handle("5")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if poll := cmd.(CreatePoll); poll.CorrectIndex != 1 {
		t.Fatalf("expected index 1 for %q, got %d", "no", poll.CorrectIndex)
	}
}

func TestHandleWithoutDialog(t *testing.T) {
	m := New()
	if _, _, err := m.Handle("hello"); err == nil {
		t.Fatalf("expected error outside a dialog")
	}
}
