package domain

import (
	"encoding/json"
	"time"
)

// ExerciseAttempt is one judged submission. Immutable once recorded.
type ExerciseAttempt struct {
	ExerciseUUID string          `json:"exercise_uuid"`
	UserResponse json.RawMessage `json:"user_response,omitempty"`
	IsCorrect    bool            `json:"is_correct"`
	PointsEarned int             `json:"points_earned"`
	AttemptTime  time.Time       `json:"attempt_time"`
}

// LessonProgress tracks one user's attempts at one lesson. Exercises only
// holds attempts of the current session. Version is bumped on every write
// and used for compare-and-swap.
type LessonProgress struct {
	UserID        string            `json:"user_id"`
	ModuleID      string            `json:"module_id"`
	LessonID      string            `json:"lesson_id"`
	SessionID     string            `json:"session_id"`
	Exercises     []ExerciseAttempt `json:"exercises"`
	CurrentScore  int               `json:"current_score"`
	BestScore     int               `json:"best_score"`
	TotalPossible int               `json:"total_possible"`
	AttemptCount  int               `json:"attempt_count"`
	IsCompleted   bool              `json:"is_completed"`
	IsLocked      bool              `json:"is_locked"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ProgressChange describes what a single Record call did.
type ProgressChange struct {
	Created    bool
	NewSession bool
	// ScoreGain is the XP-eligible increase of BestScore.
	ScoreGain      int
	LessonFinished bool
	JustCompleted  bool
	JustLocked     bool
}

// NewLessonProgress returns an empty record that has not been persisted.
func NewLessonProgress(userID, moduleID, lessonID string, now time.Time) *LessonProgress {
	return &LessonProgress{
		UserID:    userID,
		ModuleID:  moduleID,
		LessonID:  lessonID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsNew reports whether the record has never been written.
func (p *LessonProgress) IsNew() bool {
	return p.Version == 0
}

// HasAttempted reports whether the exercise was already submitted in the
// given session.
func (p *LessonProgress) HasAttempted(sessionID, exerciseUUID string) bool {
	if p.IsNew() || p.SessionID != sessionID {
		return false
	}
	for _, a := range p.Exercises {
		if a.ExerciseUUID == exerciseUUID {
			return true
		}
	}
	return false
}

// CheckSubmittable applies the duplicate and lock guards, in that order.
func (p *LessonProgress) CheckSubmittable(sessionID, exerciseUUID string) error {
	if p.HasAttempted(sessionID, exerciseUUID) {
		return ErrDuplicateSubmission
	}
	if p.IsLocked {
		return ErrLessonLocked
	}
	return nil
}

// AttemptedCount returns the number of distinct exercises attempted in the
// current session.
func (p *LessonProgress) AttemptedCount() int {
	seen := make(map[string]struct{}, len(p.Exercises))
	for _, a := range p.Exercises {
		seen[a.ExerciseUUID] = struct{}{}
	}
	return len(seen)
}

// IsPerfect reports whether the current session scored every point.
func (p *LessonProgress) IsPerfect() bool {
	return p.TotalPossible > 0 && p.CurrentScore == p.TotalPossible
}

// Record applies an attempt made in sessionID. Callers run CheckSubmittable
// first. A failed attempt still counts toward completion.
func (p *LessonProgress) Record(sessionID string, attempt ExerciseAttempt, lesson *Lesson) ProgressChange {
	var change ProgressChange

	switch {
	case p.IsNew() && p.AttemptCount == 0:
		change.Created = true
		p.SessionID = sessionID
		p.Exercises = []ExerciseAttempt{attempt}
		p.CurrentScore = attempt.PointsEarned
		p.BestScore = attempt.PointsEarned
		p.AttemptCount = 1
		change.ScoreGain = attempt.PointsEarned
	case p.SessionID != sessionID:
		change.NewSession = true
		p.SessionID = sessionID
		p.Exercises = []ExerciseAttempt{attempt}
		p.CurrentScore = attempt.PointsEarned
		p.AttemptCount++
	default:
		p.Exercises = append(p.Exercises, attempt)
		p.CurrentScore += attempt.PointsEarned
	}

	if !change.Created && p.CurrentScore > p.BestScore {
		change.ScoreGain = p.CurrentScore - p.BestScore
		p.BestScore = p.CurrentScore
	}

	if p.AttemptedCount() >= lesson.ExerciseCount() {
		change.LessonFinished = true
		if !p.IsCompleted {
			p.IsCompleted = true
			change.JustCompleted = true
		}
		if lesson.IsPrivate && !p.IsLocked {
			p.IsLocked = true
			change.JustLocked = true
		}
	}

	if p.TotalPossible == 0 {
		p.TotalPossible = lesson.TotalPossible()
	}

	p.UpdatedAt = attempt.AttemptTime
	return change
}

// AttemptRecord is an entry of the per-user attempt history. Unlike
// LessonProgress.Exercises it survives session resets. AttemptNumber is the
// progress record's AttemptCount when the attempt was made, so a session id
// that comes back later opens a new attempt.
type AttemptRecord struct {
	UserID        string `json:"user_id"`
	ModuleID      string `json:"module_id"`
	LessonID      string `json:"lesson_id"`
	SessionID     string `json:"session_id"`
	AttemptNumber int    `json:"attempt_number"`
	ExerciseAttempt
}

// ProgressSummary is the per-user overview.
type ProgressSummary struct {
	UserID                 string   `json:"user_id"`
	TotalPoints            int      `json:"total_points"`
	StreakDays             int      `json:"streak_days"`
	CompletedExerciseUUIDs []string `json:"completed_exercise_uuids"`
}
