package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// ProgressStore implements lesson progress persistence backed by SQLite.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new SQLite-backed progress store.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

const progressColumns = `user_id, lesson_id, module_id, session_id, exercises,
	current_score, best_score, total_possible, attempt_count,
	is_completed, is_locked, version, created_at, updated_at`

// GetProgress retrieves the record for (userID, lessonID).
func (s *ProgressStore) GetProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+progressColumns+`
		FROM lesson_progress WHERE user_id = ? AND lesson_id = ?`, userID, lessonID)
	return scanProgress(row)
}

// ListProgress returns every lesson record of a user.
func (s *ProgressStore) ListProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+progressColumns+`
		FROM lesson_progress WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var records []*domain.LessonProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

// CommitSubmission writes p with compare-and-swap on its version, appends
// the attempt to the history and applies the XP grants, all in one
// transaction. A version mismatch returns domain.ErrConcurrentModification.
// On success p.Version is advanced.
func (s *ProgressStore) CommitSubmission(ctx context.Context, p *domain.LessonProgress, attempt domain.AttemptRecord, grants []domain.XPEntry) error {
	exercises, err := json.Marshal(p.Exercises)
	if err != nil {
		return fmt.Errorf("marshal exercises: %w", err)
	}

	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, p.UserID); err != nil {
			return err
		}

		var result sql.Result
		if p.Version == 0 {
			result, err = tx.ExecContext(ctx, `
				INSERT INTO lesson_progress (`+progressColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
				ON CONFLICT(user_id, lesson_id) DO NOTHING`,
				p.UserID, p.LessonID, p.ModuleID, p.SessionID, string(exercises),
				p.CurrentScore, p.BestScore, p.TotalPossible, p.AttemptCount,
				p.IsCompleted, p.IsLocked, p.CreatedAt, p.UpdatedAt)
		} else {
			result, err = tx.ExecContext(ctx, `
				UPDATE lesson_progress SET
					module_id = ?, session_id = ?, exercises = ?,
					current_score = ?, best_score = ?, total_possible = ?, attempt_count = ?,
					is_completed = ?, is_locked = ?, version = version + 1, updated_at = ?
				WHERE user_id = ? AND lesson_id = ? AND version = ?`,
				p.ModuleID, p.SessionID, string(exercises),
				p.CurrentScore, p.BestScore, p.TotalPossible, p.AttemptCount,
				p.IsCompleted, p.IsLocked, p.UpdatedAt,
				p.UserID, p.LessonID, p.Version)
		}
		if err != nil {
			return fmt.Errorf("write progress: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return domain.ErrConcurrentModification
		}

		if err := insertAttempt(ctx, tx, attempt); err != nil {
			return err
		}

		for _, g := range grants {
			if err := grantXP(ctx, tx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Version++
	return nil
}

// ListCorrectExerciseUUIDs returns the distinct exercises a user has ever
// answered correctly.
func (s *ProgressStore) ListCorrectExerciseUUIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT exercise_uuid FROM exercise_attempts
		WHERE user_id = ? AND is_correct = 1
		ORDER BY exercise_uuid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list correct exercises: %w", err)
	}
	defer rows.Close()

	uuids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan exercise uuid: %w", err)
		}
		uuids = append(uuids, id)
	}
	return uuids, rows.Err()
}

// ListAttempts returns the attempt history of a user for one lesson,
// oldest first.
func (s *ProgressStore) ListAttempts(ctx context.Context, userID, lessonID string) ([]domain.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, module_id, lesson_id, session_id, attempt_number, exercise_uuid,
			user_response, is_correct, points_earned, attempt_time
		FROM exercise_attempts
		WHERE user_id = ? AND lesson_id = ?
		ORDER BY id`, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []domain.AttemptRecord
	for rows.Next() {
		var (
			r        domain.AttemptRecord
			response sql.NullString
		)
		if err := rows.Scan(&r.UserID, &r.ModuleID, &r.LessonID, &r.SessionID, &r.AttemptNumber, &r.ExerciseUUID,
			&response, &r.IsCorrect, &r.PointsEarned, &r.AttemptTime); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if response.Valid {
			r.UserResponse = json.RawMessage(response.String)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func insertAttempt(ctx context.Context, tx *sql.Tx, r domain.AttemptRecord) error {
	var response any
	if len(r.UserResponse) > 0 {
		response = string(r.UserResponse)
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO exercise_attempts (user_id, module_id, lesson_id, session_id, attempt_number,
			exercise_uuid, user_response, is_correct, points_earned, attempt_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, lesson_id, attempt_number, exercise_uuid) DO NOTHING`,
		r.UserID, r.ModuleID, r.LessonID, r.SessionID, r.AttemptNumber, r.ExerciseUUID,
		response, r.IsCorrect, r.PointsEarned, r.AttemptTime)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrDuplicateSubmission
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(row scanner) (*domain.LessonProgress, error) {
	var (
		p         domain.LessonProgress
		exercises string
	)
	err := row.Scan(
		&p.UserID, &p.LessonID, &p.ModuleID, &p.SessionID, &exercises,
		&p.CurrentScore, &p.BestScore, &p.TotalPossible, &p.AttemptCount,
		&p.IsCompleted, &p.IsLocked, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	if err := json.Unmarshal([]byte(exercises), &p.Exercises); err != nil {
		return nil, fmt.Errorf("unmarshal exercises: %w", err)
	}
	return &p, nil
}
