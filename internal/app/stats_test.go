package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"classpulse/internal/app"
	"classpulse/internal/domain"
	"classpulse/internal/infra/memory"
)

// classFixture seeds one teacher, two groups and a couple of answered polls.
type classFixture struct {
	store  *memory.Store
	alice  domain.User // answered correctly
	bob    domain.User // answered incorrectly
	carol  domain.User // no group
	dave   domain.User // group without polls
	teach  domain.User
	groupA domain.Group
	groupB domain.Group
	poll   domain.PollWithOptions
}

func newClassFixture(t *testing.T) *classFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	f := &classFixture{store: store}

	var err error
	f.teach, err = store.CreateUser(ctx, domain.User{ChatID: 1, FullName: "Teacher", AttentionScore: 1.0, Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	f.groupA, err = store.CreateGroup(ctx, domain.Group{Name: "43-IS", TeacherID: f.teach.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	f.groupB, err = store.CreateGroup(ctx, domain.Group{Name: "44-IS", TeacherID: f.teach.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	newStudent := func(chatID int64, name string, groupID *int64) domain.User {
		u, err := store.CreateUser(ctx, domain.User{
			ChatID: chatID, FullName: name, AttentionScore: 1.0, GroupID: groupID, Role: domain.RoleUser,
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return u
	}
	f.alice = newStudent(100, "Alice", &f.groupA.ID)
	f.bob = newStudent(101, "Bob", &f.groupA.ID)
	f.carol = newStudent(102, "Carol", nil)
	f.dave = newStudent(103, "Dave", &f.groupB.ID)

	f.poll, err = store.CreatePoll(ctx, domain.Poll{
		Question:  "What is 2 + 2?",
		GroupID:   f.groupA.ID,
		ExpiresAt: time.Now().Add(time.Hour),
		IsActive:  true,
	}, []domain.Option{
		{Value: "3"},
		{Value: "4", IsAnswerKey: true},
	})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}

	// A second poll without an answer key must not count anywhere.
	if _, err := store.CreatePoll(ctx, domain.Poll{
		Question:  "Attendance check",
		GroupID:   f.groupA.ID,
		ExpiresAt: time.Now().Add(time.Hour),
		IsActive:  true,
	}, []domain.Option{{Value: "here"}, {Value: "away"}}); err != nil {
		t.Fatalf("create keyless poll: %v", err)
	}

	wrong, right := f.poll.Options[0], f.poll.Options[1]
	if err := store.RecordAnswer(ctx, f.alice.ID, right.ID, 1.0); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	if err := store.RecordAnswer(ctx, f.bob.ID, wrong.ID, 0.9); err != nil {
		t.Fatalf("bob answer: %v", err)
	}
	return f
}

func newStatsService(f *classFixture) *app.StatsService {
	return app.NewStatsService(f.store, f.store, f.store)
}

func TestUserStatsCorrectAnswerRoundTrip(t *testing.T) {
	f := newClassFixture(t)
	stats, err := newStatsService(f).UserStats(context.Background(), f.alice.ChatID)
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if stats.TotalPolls != 1 || stats.CompletedPolls != 1 {
		t.Fatalf("expected 1/1 polls, got %d/%d", stats.CompletedPolls, stats.TotalPolls)
	}
	if stats.CompletionRate == nil || *stats.CompletionRate != 100.0 {
		t.Fatalf("expected completion rate 100, got %v", stats.CompletionRate)
	}
	if stats.CorrectRate == nil || *stats.CorrectRate != 100.0 {
		t.Fatalf("expected correct rate 100, got %v", stats.CorrectRate)
	}
	if stats.GroupName == nil || *stats.GroupName != "43-IS" {
		t.Fatalf("expected group 43-IS, got %v", stats.GroupName)
	}
}

func TestUserStatsIncorrectAnswer(t *testing.T) {
	f := newClassFixture(t)
	stats, err := newStatsService(f).UserStats(context.Background(), f.bob.ChatID)
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if stats.CompletionRate == nil || *stats.CompletionRate != 100.0 {
		t.Fatalf("expected completion rate 100, got %v", stats.CompletionRate)
	}
	if stats.CorrectRate == nil || *stats.CorrectRate != 0.0 {
		t.Fatalf("expected correct rate 0, got %v", stats.CorrectRate)
	}
}

func TestUserStatsWithoutQualifyingPolls(t *testing.T) {
	f := newClassFixture(t)
	svc := newStatsService(f)

	// No group at all.
	stats, err := svc.UserStats(context.Background(), f.carol.ChatID)
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if stats.TotalPolls != 0 || stats.CompletionRate != nil || stats.CorrectRate != nil {
		t.Fatalf("expected undefined rates for groupless user, got %+v", stats)
	}

	// Group without polls: rates stay undefined instead of dividing by zero.
	stats, err = svc.UserStats(context.Background(), f.dave.ChatID)
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if stats.TotalPolls != 0 || stats.CompletionRate != nil || stats.CorrectRate != nil {
		t.Fatalf("expected undefined rates for empty group, got %+v", stats)
	}
	if stats.GroupName == nil || *stats.GroupName != "44-IS" {
		t.Fatalf("expected group name 44-IS, got %v", stats.GroupName)
	}
}

func TestUserStatsUnknownUser(t *testing.T) {
	f := newClassFixture(t)
	_, err := newStatsService(f).UserStats(context.Background(), 999)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCohortStatsExcludesAdminsAndUnmeasuredUsers(t *testing.T) {
	f := newClassFixture(t)
	cohort, err := newStatsService(f).CohortStats(context.Background())
	if err != nil {
		t.Fatalf("cohort stats: %v", err)
	}
	if len(cohort) != 2 {
		t.Fatalf("expected 2 rows (alice, bob), got %d: %+v", len(cohort), cohort)
	}
	for _, row := range cohort {
		if row.Role == domain.RoleAdmin {
			t.Fatalf("admin leaked into cohort stats: %+v", row)
		}
	}
	// Higher correctness rate sorts first.
	if cohort[0].FullName != "Alice" || cohort[1].FullName != "Bob" {
		t.Fatalf("expected Alice before Bob, got %s, %s", cohort[0].FullName, cohort[1].FullName)
	}
}
