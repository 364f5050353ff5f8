package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// UserStore persists gamification state per user.
type UserStore struct {
	db *DB
}

// NewUserStore creates a new SQLite-backed user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// GetUser retrieves a user by ID.
func (s *UserStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.db, id)
}

// EnsureUser creates the user if it does not exist yet.
func (s *UserStore) EnsureUser(ctx context.Context, id string) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		return ensureUser(ctx, tx, id)
	})
}

// UpdateStreak applies fn to the stored streak inside a transaction and
// returns the streak before and after.
func (s *UserStore) UpdateStreak(ctx context.Context, userID string, fn func(domain.Streak) domain.Streak) (before, after domain.Streak, err error) {
	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		u, err := getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		before = u.Streak
		after = fn(before)

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET streak_days = ?, last_practice_date = ?, updated_at = ?
			WHERE id = ?`,
			after.CurrentDays, nullDate(after.LastPracticeDate), time.Now().UTC(), userID)
		if err != nil {
			return fmt.Errorf("update streak: %w", err)
		}
		return nil
	})
	return before, after, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const userColumns = `id, total_points, streak_days, last_practice_date, created_at, updated_at`

func getUser(ctx context.Context, q queryRower, id string) (*domain.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

// ListUsers returns every user, highest total first.
func (s *UserStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY total_points DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u        domain.User
		lastDate sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TotalPoints, &u.Streak.CurrentDays, &lastDate, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if lastDate.Valid {
		u.Streak.LastPracticeDate = domain.CalendarDay(lastDate.Time)
	}
	return &u, nil
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return domain.CalendarDay(t).Format("2006-01-02")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
