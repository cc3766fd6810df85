package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"classpulse/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store is the PostgreSQL implementation of app.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, chat_id, full_name, attention_score, group_id, role`

func (s *Store) UserByChatID(ctx context.Context, chatID int64) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = $1`, chatID)
	return scanUser(row)
}

func (s *Store) UserByID(ctx context.Context, id int64) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	var groupID sql.NullInt64
	if u.GroupID != nil {
		groupID = sql.NullInt64{Int64: *u.GroupID, Valid: true}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (chat_id, full_name, attention_score, group_id, role)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (chat_id) DO NOTHING
		 RETURNING id`,
		u.ChatID, u.FullName, u.AttentionScore, groupID, string(u.Role),
	).Scan(&u.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserExists
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) UsersInGroup(ctx context.Context, groupID int64) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE group_id = $1 ORDER BY id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) GroupByID(ctx context.Context, id int64) (domain.Group, error) {
	return s.groupBy(ctx, `SELECT id, name, teacher_id FROM groups WHERE id = $1`, id)
}

func (s *Store) GroupByName(ctx context.Context, name string) (domain.Group, error) {
	return s.groupBy(ctx, `SELECT id, name, teacher_id FROM groups WHERE name = $1`, name)
}

func (s *Store) groupBy(ctx context.Context, query string, arg interface{}) (domain.Group, error) {
	var g domain.Group
	err := s.pool.QueryRow(ctx, query, arg).Scan(&g.ID, &g.Name, &g.TeacherID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("load group: %w", err)
	}
	return g, nil
}

func (s *Store) CreateGroup(ctx context.Context, g domain.Group) (domain.Group, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO groups (name, teacher_id) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`,
		g.Name, g.TeacherID,
	).Scan(&g.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, domain.ErrGroupExists
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (s *Store) Groups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, teacher_id FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.TeacherID); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) CreatePoll(ctx context.Context, poll domain.Poll, options []domain.Option) (domain.PollWithOptions, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.PollWithOptions{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO polls (question, group_id, expires_at, is_active)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		poll.Question, poll.GroupID, poll.ExpiresAt, poll.IsActive,
	).Scan(&poll.ID)
	if err != nil {
		return domain.PollWithOptions{}, fmt.Errorf("create poll: %w", err)
	}

	stored := make([]domain.Option, len(options))
	for i, opt := range options {
		opt.PollID = poll.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO options (poll_id, value, is_answer_key)
			 VALUES ($1, $2, $3) RETURNING id`,
			opt.PollID, opt.Value, opt.IsAnswerKey,
		).Scan(&opt.ID)
		if err != nil {
			return domain.PollWithOptions{}, fmt.Errorf("create option: %w", err)
		}
		stored[i] = opt
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.PollWithOptions{}, fmt.Errorf("commit poll: %w", err)
	}
	return domain.PollWithOptions{Poll: poll, Options: stored}, nil
}

func (s *Store) PollByID(ctx context.Context, id int64) (domain.Poll, error) {
	var p domain.Poll
	err := s.pool.QueryRow(ctx,
		`SELECT id, question, group_id, expires_at, is_active FROM polls WHERE id = $1`, id,
	).Scan(&p.ID, &p.Question, &p.GroupID, &p.ExpiresAt, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Poll{}, domain.ErrPollNotFound
	}
	if err != nil {
		return domain.Poll{}, fmt.Errorf("load poll: %w", err)
	}
	return p, nil
}

func (s *Store) ActivePoll(ctx context.Context, groupID int64) (domain.PollWithOptions, error) {
	var p domain.Poll
	err := s.pool.QueryRow(ctx,
		`SELECT id, question, group_id, expires_at, is_active
		 FROM polls
		 WHERE group_id = $1 AND is_active AND expires_at > now()
		 ORDER BY id DESC LIMIT 1`, groupID,
	).Scan(&p.ID, &p.Question, &p.GroupID, &p.ExpiresAt, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PollWithOptions{}, domain.ErrNoActivePoll
	}
	if err != nil {
		return domain.PollWithOptions{}, fmt.Errorf("load active poll: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, poll_id, value, is_answer_key FROM options WHERE poll_id = $1 ORDER BY id`, p.ID)
	if err != nil {
		return domain.PollWithOptions{}, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	var opts []domain.Option
	for rows.Next() {
		var o domain.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Value, &o.IsAnswerKey); err != nil {
			return domain.PollWithOptions{}, err
		}
		opts = append(opts, o)
	}
	return domain.PollWithOptions{Poll: p, Options: opts}, rows.Err()
}

func (s *Store) OptionByID(ctx context.Context, id int64) (domain.Option, error) {
	var o domain.Option
	err := s.pool.QueryRow(ctx,
		`SELECT id, poll_id, value, is_answer_key FROM options WHERE id = $1`, id,
	).Scan(&o.ID, &o.PollID, &o.Value, &o.IsAnswerKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Option{}, domain.ErrOptionNotFound
	}
	if err != nil {
		return domain.Option{}, fmt.Errorf("load option: %w", err)
	}
	return o, nil
}

func (s *Store) HasAnswered(ctx context.Context, userID, pollID int64) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_options uo
		 JOIN options o ON o.id = uo.option_id
		 WHERE uo.user_id = $1 AND o.poll_id = $2`,
		userID, pollID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count answers: %w", err)
	}
	return count > 0, nil
}

// RecordAnswer inserts the answer and updates the attention score in one
// transaction. The user row is locked first so two near-simultaneous
// submissions for the same poll serialize: the loser's NOT EXISTS check runs
// after the winner committed and sees its row, even when the options differ.
func (s *Store) RecordAnswer(ctx context.Context, userID, optionID int64, newScore float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO user_options (user_id, option_id)
		 SELECT $1, $2
		 WHERE NOT EXISTS (
			SELECT 1 FROM user_options uo
			JOIN options o ON o.id = uo.option_id
			WHERE uo.user_id = $1
			  AND o.poll_id = (SELECT poll_id FROM options WHERE id = $2)
		 )`,
		userID, optionID,
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyAnswered
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET attention_score = $1 WHERE id = $2`, newScore, userID,
	); err != nil {
		return fmt.Errorf("update attention score: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit answer: %w", err)
	}
	return nil
}

// PollOutcomes resolves every poll of the group against the user's answers.
// One row per poll; the aggregation itself happens in the service layer.
func (s *Store) PollOutcomes(ctx context.Context, userID, groupID int64) ([]domain.PollOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id,
		       BOOL_OR(o.is_answer_key) AS has_answer_key,
		       BOOL_OR(uo.option_id IS NOT NULL) AS answered,
		       BOOL_OR(uo.option_id IS NOT NULL AND o.is_answer_key) AS correct
		FROM polls p
		JOIN options o ON o.poll_id = p.id
		LEFT JOIN user_options uo ON uo.option_id = o.id AND uo.user_id = $1
		WHERE p.group_id = $2
		GROUP BY p.id
		ORDER BY p.id`,
		userID, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("poll outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.PollOutcome
	for rows.Next() {
		var o domain.PollOutcome
		if err := rows.Scan(&o.PollID, &o.HasAnswerKey, &o.Answered, &o.Correct); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CohortOutcomes joins every user with the polls of their group. Users
// without a group or without polls still yield one row (poll id 0) so the
// aggregator sees them.
func (s *Store) CohortOutcomes(ctx context.Context) ([]domain.CohortOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.chat_id, u.full_name, u.attention_score, u.group_id, u.role,
		       g.name,
		       COALESCE(p.id, 0) AS poll_id,
		       COALESCE(BOOL_OR(o.is_answer_key), false) AS has_answer_key,
		       COALESCE(BOOL_OR(uo.option_id IS NOT NULL), false) AS answered,
		       COALESCE(BOOL_OR(uo.option_id IS NOT NULL AND o.is_answer_key), false) AS correct
		FROM users u
		LEFT JOIN groups g ON g.id = u.group_id
		LEFT JOIN polls p ON p.group_id = g.id
		LEFT JOIN options o ON o.poll_id = p.id
		LEFT JOIN user_options uo ON uo.option_id = o.id AND uo.user_id = u.id
		GROUP BY u.id, u.chat_id, u.full_name, u.attention_score, u.group_id, u.role, g.name, p.id
		ORDER BY u.id, p.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("cohort outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.CohortOutcome
	for rows.Next() {
		var (
			row       domain.CohortOutcome
			groupID   sql.NullInt64
			groupName sql.NullString
			role      string
		)
		if err := rows.Scan(
			&row.User.ID, &row.User.ChatID, &row.User.FullName, &row.User.AttentionScore,
			&groupID, &role, &groupName,
			&row.Outcome.PollID, &row.Outcome.HasAnswerKey, &row.Outcome.Answered, &row.Outcome.Correct,
		); err != nil {
			return nil, err
		}
		row.User.Role = domain.Role(role)
		if groupID.Valid {
			gid := groupID.Int64
			row.User.GroupID = &gid
		}
		if groupName.Valid {
			name := groupName.String
			row.GroupName = &name
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u       domain.User
		groupID sql.NullInt64
		role    string
	)
	err := row.Scan(&u.ID, &u.ChatID, &u.FullName, &u.AttentionScore, &groupID, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if groupID.Valid {
		gid := groupID.Int64
		u.GroupID = &gid
	}
	u.Role = domain.Role(role)
	return u, nil
}
