package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// SessionStore implements study session persistence on PostgreSQL.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, user_id, lesson_id, start_time, end_time, duration_minutes`

// CreateSession inserts a new open session.
func (s *SessionStore) CreateSession(ctx context.Context, sess *domain.StudySession) error {
	return s.db.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, sess.UserID); err != nil {
			return err
		}
		query := `INSERT INTO study_sessions (id, user_id, lesson_id, start_time) VALUES ($1, $2, $3, $4)`
		if _, err := tx.Exec(ctx, query, sess.ID, sess.UserID, sess.LessonID, sess.StartTime); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*domain.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE id = $1`
	return scanSession(s.db.pool.QueryRow(ctx, query, id))
}

// EndSession stores the end time of an open session. A session that was
// already closed yields domain.ErrSessionEnded.
func (s *SessionStore) EndSession(ctx context.Context, sess *domain.StudySession) error {
	query := `
		UPDATE study_sessions SET end_time = $1, duration_minutes = $2
		WHERE id = $3 AND end_time IS NULL
	`
	tag, err := s.db.pool.Exec(ctx, query, sess.EndTime, sess.DurationMinutes, sess.ID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionEnded
	}
	return nil
}

// ListSessions returns a user's most recent sessions.
func (s *SessionStore) ListSessions(ctx context.Context, userID string, limit int) ([]*domain.StudySession, error) {
	query := `SELECT ` + sessionColumns + ` FROM study_sessions
		WHERE user_id = $1 ORDER BY start_time DESC LIMIT $2`
	rows, err := s.db.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.StudySession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListSessionStarts returns the start time of every session of a user,
// newest first.
func (s *SessionStore) ListSessionStarts(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT start_time FROM study_sessions WHERE user_id = $1 ORDER BY start_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list session starts: %w", err)
	}
	starts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (time.Time, error) {
		var t time.Time
		err := row.Scan(&t)
		return t.UTC(), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan session starts: %w", err)
	}
	return starts, nil
}

func scanSession(row pgx.Row) (*domain.StudySession, error) {
	var sess domain.StudySession
	err := row.Scan(&sess.ID, &sess.UserID, &sess.LessonID, &sess.StartTime, &sess.EndTime, &sess.DurationMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.StartTime = sess.StartTime.UTC()
	if sess.EndTime != nil {
		t := sess.EndTime.UTC()
		sess.EndTime = &t
	}
	return &sess, nil
}
