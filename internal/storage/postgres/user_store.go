package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// UserStore persists gamification state per user.
type UserStore struct {
	db *DB
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// GetUser retrieves a user by ID.
func (s *UserStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.db.pool, id, false)
}

// UpdateStreak applies fn to the row-locked streak and returns the streak
// before and after.
func (s *UserStore) UpdateStreak(ctx context.Context, userID string, fn func(domain.Streak) domain.Streak) (before, after domain.Streak, err error) {
	err = s.db.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		u, err := getUser(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		before = u.Streak
		after = fn(before)

		var lastDate any
		if !after.LastPracticeDate.IsZero() {
			lastDate = domain.CalendarDay(after.LastPracticeDate)
		}
		query := `UPDATE users SET streak_days = $1, last_practice_date = $2, updated_at = $3 WHERE id = $4`
		if _, err := tx.Exec(ctx, query, after.CurrentDays, lastDate, time.Now().UTC(), userID); err != nil {
			return fmt.Errorf("update streak: %w", err)
		}
		return nil
	})
	return before, after, err
}

// ListUsers returns every user, highest total first.
func (s *UserStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, total_points, streak_days, last_practice_date, created_at, updated_at
		FROM users ORDER BY total_points DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getUser(ctx context.Context, q rowQuerier, id string, forUpdate bool) (*domain.User, error) {
	query := `
		SELECT id, total_points, streak_days, last_practice_date, created_at, updated_at
		FROM users WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	u, err := scanUser(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u        domain.User
		lastDate pgtype.Date
	)
	err := row.Scan(&u.ID, &u.TotalPoints, &u.Streak.CurrentDays, &lastDate, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastDate.Valid {
		u.Streak.LastPracticeDate = domain.CalendarDay(lastDate.Time)
	}
	return &u, nil
}
