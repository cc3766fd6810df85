package app

import (
	"context"
	"sort"

	"classpulse/internal/domain"
)

// StatsService derives participation and correctness statistics from the
// raw answer records. It is read-only.
type StatsService struct {
	users  UserStore
	groups GroupStore
	stats  StatsStore
}

func NewStatsService(users UserStore, groups GroupStore, stats StatsStore) *StatsService {
	return &StatsService{users: users, groups: groups, stats: stats}
}

// UserStats returns the statistics view of one user, or ErrUserNotFound.
// A user without a group, or whose group has no qualifying polls, gets zero
// counts and nil rates.
func (s *StatsService) UserStats(ctx context.Context, chatID int64) (domain.UserStats, error) {
	user, err := s.users.UserByChatID(ctx, chatID)
	if err != nil {
		return domain.UserStats{}, err
	}

	stats := domain.UserStats{
		ChatID:         user.ChatID,
		FullName:       user.FullName,
		AttentionScore: user.AttentionScore,
		Role:           user.Role,
	}
	if user.GroupID == nil {
		return stats, nil
	}

	group, err := s.groups.GroupByID(ctx, *user.GroupID)
	if err != nil {
		return domain.UserStats{}, err
	}
	stats.GroupName = &group.Name

	outcomes, err := s.stats.PollOutcomes(ctx, user.ID, group.ID)
	if err != nil {
		return domain.UserStats{}, err
	}

	total, completed, correct := tallyOutcomes(outcomes)
	stats.TotalPolls = total
	stats.CompletedPolls = completed
	stats.CompletionRate, stats.CorrectRate = rates(total, completed, correct)
	return stats, nil
}

// CohortStats returns one row per non-admin user, ordered by role and then
// by correctness rate, best first. Users with zero qualifying polls carry no
// measurable rate and are dropped from the listing.
func (s *StatsService) CohortStats(ctx context.Context) ([]domain.UserStats, error) {
	rows, err := s.stats.CohortOutcomes(ctx)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		stats    domain.UserStats
		outcomes []domain.PollOutcome
	}
	order := make([]int64, 0)
	byUser := make(map[int64]*bucket)
	for _, row := range rows {
		b, ok := byUser[row.User.ID]
		if !ok {
			b = &bucket{stats: domain.UserStats{
				ChatID:         row.User.ChatID,
				FullName:       row.User.FullName,
				AttentionScore: row.User.AttentionScore,
				Role:           row.User.Role,
				GroupName:      row.GroupName,
			}}
			byUser[row.User.ID] = b
			order = append(order, row.User.ID)
		}
		if row.Outcome.PollID != 0 {
			b.outcomes = append(b.outcomes, row.Outcome)
		}
	}

	result := make([]domain.UserStats, 0, len(order))
	for _, id := range order {
		b := byUser[id]
		if b.stats.Role == domain.RoleAdmin {
			continue
		}
		total, completed, correct := tallyOutcomes(b.outcomes)
		if total == 0 {
			// No qualifying polls means no defined rate to rank by.
			continue
		}
		b.stats.TotalPolls = total
		b.stats.CompletedPolls = completed
		b.stats.CompletionRate, b.stats.CorrectRate = rates(total, completed, correct)
		result = append(result, b.stats)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Role != result[j].Role {
			return result[i].Role < result[j].Role
		}
		if *result[i].CorrectRate != *result[j].CorrectRate {
			return *result[i].CorrectRate > *result[j].CorrectRate
		}
		return result[i].FullName < result[j].FullName
	})
	return result, nil
}

// tallyOutcomes counts qualifying polls (those with an answer key), the
// subset the user answered, and the subset answered correctly.
func tallyOutcomes(outcomes []domain.PollOutcome) (total, completed, correct int) {
	for _, o := range outcomes {
		if !o.HasAnswerKey {
			continue
		}
		total++
		if o.Answered {
			completed++
		}
		if o.Correct {
			correct++
		}
	}
	return total, completed, correct
}

// rates converts counts into 2-decimal percentages. Both rates share the
// qualifying-poll denominator and are nil when it is zero.
func rates(total, completed, correct int) (completionRate, correctRate *float64) {
	if total == 0 {
		return nil, nil
	}
	cpl := round2(float64(completed) * 100 / float64(total))
	cor := round2(float64(correct) * 100 / float64(total))
	return &cpl, &cor
}
