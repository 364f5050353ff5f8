package progress

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Store persists lesson progress and the attempt history.
type Store interface {
	GetProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error)
	ListProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error)
	// CommitSubmission writes p with compare-and-swap on p.Version together
	// with the attempt and XP grants, returning
	// domain.ErrConcurrentModification on a version mismatch.
	CommitSubmission(ctx context.Context, p *domain.LessonProgress, attempt domain.AttemptRecord, grants []domain.XPEntry) error
	ListCorrectExerciseUUIDs(ctx context.Context, userID string) ([]string, error)
	ListAttempts(ctx context.Context, userID, lessonID string) ([]domain.AttemptRecord, error)
}

// UserReader reads gamification totals.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Curriculum resolves lessons and exercises.
type Curriculum interface {
	FindLesson(ctx context.Context, moduleID, lessonID string) (*domain.Lesson, error)
	FindExercise(ctx context.Context, moduleID, lessonID, exerciseUUID string) (*domain.Exercise, error)
}

// Judge evaluates a response.
type Judge interface {
	Evaluate(ctx context.Context, ex *domain.Exercise, response json.RawMessage) (domain.Verdict, error)
}

// Cascade reacts to lesson completions and XP changes. The reward engine
// runs it inline; the queue producer defers it.
type Cascade interface {
	LessonCompleted(ctx context.Context, ev domain.LessonCompletedEvent) (*domain.CascadeResult, error)
	XPChanged(ctx context.Context, userID string) (*domain.CascadeResult, error)
}
