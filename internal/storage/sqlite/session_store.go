package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// SessionStore implements study session persistence backed by SQLite.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SQLite-backed session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// CreateSession inserts a new open session.
func (s *SessionStore) CreateSession(ctx context.Context, sess *domain.StudySession) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, sess.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO study_sessions (id, user_id, lesson_id, start_time)
			VALUES (?, ?, ?, ?)`,
			sess.ID, sess.UserID, sess.LessonID, sess.StartTime)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*domain.StudySession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, lesson_id, start_time, end_time, duration_minutes
		FROM study_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// EndSession stores the end time of an open session. A session that was
// already closed yields domain.ErrSessionEnded.
func (s *SessionStore) EndSession(ctx context.Context, sess *domain.StudySession) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE study_sessions SET end_time = ?, duration_minutes = ?
		WHERE id = ? AND end_time IS NULL`,
		sess.EndTime, sess.DurationMinutes, sess.ID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrSessionEnded
	}
	return nil
}

// ListSessions returns a user's most recent sessions.
func (s *SessionStore) ListSessions(ctx context.Context, userID string, limit int) ([]*domain.StudySession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, lesson_id, start_time, end_time, duration_minutes
		FROM study_sessions WHERE user_id = ?
		ORDER BY start_time DESC LIMIT ?`, userID, limit)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_time FROM study_sessions WHERE user_id = ?
		ORDER BY start_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list session starts: %w", err)
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan session start: %w", err)
		}
		starts = append(starts, t.UTC())
	}
	return starts, rows.Err()
}

func scanSession(row scanner) (*domain.StudySession, error) {
	var (
		sess     domain.StudySession
		end      sql.NullTime
		duration sql.NullFloat64
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.LessonID, &sess.StartTime, &end, &duration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if end.Valid {
		t := end.Time.UTC()
		sess.EndTime = &t
	}
	if duration.Valid {
		d := duration.Float64
		sess.DurationMinutes = &d
	}
	return &sess, nil
}
