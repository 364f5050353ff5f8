package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// ProgressStore implements lesson progress persistence on PostgreSQL.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new PostgreSQL-backed progress store.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

const progressColumns = `user_id, lesson_id, module_id, session_id, exercises,
	current_score, best_score, total_possible, attempt_count,
	is_completed, is_locked, version, created_at, updated_at`

// GetProgress retrieves the record for (userID, lessonID).
func (s *ProgressStore) GetProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2`
	return scanProgress(s.db.pool.QueryRow(ctx, query, userID, lessonID))
}

// ListProgress returns every lesson record of a user.
func (s *ProgressStore) ListProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id = $1 ORDER BY updated_at DESC`
	rows, err := s.db.pool.Query(ctx, query, userID)
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
// the attempt and applies the XP grants in one transaction. A version
// mismatch returns domain.ErrConcurrentModification.
func (s *ProgressStore) CommitSubmission(ctx context.Context, p *domain.LessonProgress, attempt domain.AttemptRecord, grants []domain.XPEntry) error {
	exercises, err := json.Marshal(p.Exercises)
	if err != nil {
		return fmt.Errorf("marshal exercises: %w", err)
	}
	if p.Exercises == nil {
		exercises = []byte("[]")
	}

	err = s.db.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, p.UserID); err != nil {
			return err
		}

		var (
			query string
			args  []any
		)
		if p.Version == 0 {
			query = `
				INSERT INTO lesson_progress (` + progressColumns + `)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
				ON CONFLICT (user_id, lesson_id) DO NOTHING
			`
			args = []any{p.UserID, p.LessonID, p.ModuleID, p.SessionID, exercises,
				p.CurrentScore, p.BestScore, p.TotalPossible, p.AttemptCount,
				p.IsCompleted, p.IsLocked, p.CreatedAt, p.UpdatedAt}
		} else {
			query = `
				UPDATE lesson_progress SET
					module_id = $1, session_id = $2, exercises = $3,
					current_score = $4, best_score = $5, total_possible = $6, attempt_count = $7,
					is_completed = $8, is_locked = $9, version = version + 1, updated_at = $10
				WHERE user_id = $11 AND lesson_id = $12 AND version = $13
			`
			args = []any{p.ModuleID, p.SessionID, exercises,
				p.CurrentScore, p.BestScore, p.TotalPossible, p.AttemptCount,
				p.IsCompleted, p.IsLocked, p.UpdatedAt,
				p.UserID, p.LessonID, p.Version}
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("write progress: %w", err)
		}
		if tag.RowsAffected() == 0 {
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
	query := `
		SELECT DISTINCT exercise_uuid FROM exercise_attempts
		WHERE user_id = $1 AND is_correct
		ORDER BY exercise_uuid
	`
	rows, err := s.db.pool.Query(ctx, query, userID)
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
	query := `
		SELECT user_id, module_id, lesson_id, session_id, attempt_number, exercise_uuid,
			user_response, is_correct, points_earned, attempt_time
		FROM exercise_attempts
		WHERE user_id = $1 AND lesson_id = $2
		ORDER BY id
	`
	rows, err := s.db.pool.Query(ctx, query, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []domain.AttemptRecord
	for rows.Next() {
		var (
			r        domain.AttemptRecord
			response []byte
		)
		if err := rows.Scan(&r.UserID, &r.ModuleID, &r.LessonID, &r.SessionID, &r.AttemptNumber, &r.ExerciseUUID,
			&response, &r.IsCorrect, &r.PointsEarned, &r.AttemptTime); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if len(response) > 0 {
			r.UserResponse = json.RawMessage(response)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func insertAttempt(ctx context.Context, tx pgx.Tx, r domain.AttemptRecord) error {
	response := pqtype.NullRawMessage{RawMessage: r.UserResponse, Valid: len(r.UserResponse) > 0 && json.Valid(r.UserResponse)}
	query := `
		INSERT INTO exercise_attempts (user_id, module_id, lesson_id, session_id, attempt_number,
			exercise_uuid, user_response, is_correct, points_earned, attempt_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, lesson_id, attempt_number, exercise_uuid) DO NOTHING
	`
	tag, err := tx.Exec(ctx, query,
		r.UserID, r.ModuleID, r.LessonID, r.SessionID, r.AttemptNumber, r.ExerciseUUID,
		response, r.IsCorrect, r.PointsEarned, r.AttemptTime)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateSubmission
	}
	return nil
}

func scanProgress(row pgx.Row) (*domain.LessonProgress, error) {
	var (
		p         domain.LessonProgress
		exercises []byte
	)
	err := row.Scan(
		&p.UserID, &p.LessonID, &p.ModuleID, &p.SessionID, &exercises,
		&p.CurrentScore, &p.BestScore, &p.TotalPossible, &p.AttemptCount,
		&p.IsCompleted, &p.IsLocked, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	if err := json.Unmarshal(exercises, &p.Exercises); err != nil {
		return nil, fmt.Errorf("unmarshal exercises: %w", err)
	}
	return &p, nil
}
