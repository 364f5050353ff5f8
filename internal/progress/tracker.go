// Package progress records exercise submissions, maintains per-lesson
// progress and starts the reward cascade when a lesson is finished.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// maxCommitAttempts bounds the compare-and-swap retry loop.
const maxCommitAttempts = 3

// SubmitRequest identifies a submission.
type SubmitRequest struct {
	UserID       string          `json:"user_id"`
	SessionID    string          `json:"session_id"`
	ModuleID     string          `json:"module_id"`
	LessonID     string          `json:"lesson_id"`
	ExerciseUUID string          `json:"exercise_uuid"`
	Response     json.RawMessage `json:"user_response"`
}

func (r SubmitRequest) validate() error {
	return domain.ValidateIDs(
		"user id", r.UserID,
		"session id", r.SessionID,
		"module id", r.ModuleID,
		"lesson id", r.LessonID,
		"exercise uuid", r.ExerciseUUID,
	)
}

// SubmissionResult is returned by Submit.
type SubmissionResult struct {
	IsCorrect      bool                 `json:"is_correct"`
	LessonFinished bool                 `json:"lesson_finished"`
	PointsEarned   int                  `json:"points_earned"`
	CurrentScore   int                  `json:"current_score"`
	TotalPossible  int                  `json:"total_possible"`
	Feedback       map[string]any       `json:"feedback,omitempty"`
	XPAwarded      int                  `json:"xp_awarded"`
	XPBonus        int                  `json:"xp_bonus"`
	Achievements   []domain.Achievement `json:"achievements_earned"`
	StreakDays     int                  `json:"streak_days,omitempty"`
	CascadePending bool                 `json:"cascade_pending"`
}

// ValidationResult is returned by Validate.
type ValidationResult struct {
	IsCorrect bool           `json:"is_correct"`
	Feedback  map[string]any `json:"feedback,omitempty"`
	Points    int            `json:"points"`
}

// Tracker is the attempt tracker.
type Tracker struct {
	store      Store
	users      UserReader
	curriculum Curriculum
	judge      Judge
	cascade    Cascade
	policy     domain.XPPolicy
	locks      *keyedMutex
	events     *domain.EventDispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewTracker creates a tracker. cascade may be nil, which disables rewards.
func NewTracker(store Store, users UserReader, curriculum Curriculum, judge Judge, cascade Cascade, policy domain.XPPolicy) *Tracker {
	return &Tracker{
		store:      store,
		users:      users,
		curriculum: curriculum,
		judge:      judge,
		cascade:    cascade,
		policy:     policy,
		locks:      newKeyedMutex(),
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetEventDispatcher sets the dispatcher for progress events
func (t *Tracker) SetEventDispatcher(d *domain.EventDispatcher) {
	t.events = d
}

// SetLogger overrides the default logger
func (t *Tracker) SetLogger(l *slog.Logger) {
	if l != nil {
		t.logger = l
	}
}

// Submit judges a response and records it. The judge runs before the
// per-(user, lesson) lock is taken; a judge failure leaves no state behind.
func (t *Tracker) Submit(ctx context.Context, req SubmitRequest) (*SubmissionResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	lesson, ex, err := t.resolve(ctx, req.ModuleID, req.LessonID, req.ExerciseUUID)
	if err != nil {
		return nil, err
	}

	verdict, err := t.judge.Evaluate(ctx, ex, req.Response)
	if err != nil {
		return nil, err
	}

	attempt := domain.ExerciseAttempt{
		ExerciseUUID: ex.UUID,
		UserResponse: req.Response,
		IsCorrect:    verdict.Correct,
		AttemptTime:  t.now(),
	}
	if verdict.Correct {
		attempt.PointsEarned = ex.Points
	}

	p, change, grants, err := t.commit(ctx, req, lesson, attempt)
	if err != nil {
		return nil, err
	}

	t.events.Publish(domain.NewSubmissionRecordedEvent(p, attempt))
	if change.JustLocked {
		t.events.Publish(domain.NewLessonLockedEvent(p.UserID, p.LessonID))
	}

	result := &SubmissionResult{
		IsCorrect:      attempt.IsCorrect,
		LessonFinished: change.LessonFinished,
		PointsEarned:   attempt.PointsEarned,
		CurrentScore:   p.CurrentScore,
		TotalPossible:  p.TotalPossible,
		Feedback:       verdict.Feedback,
		Achievements:   []domain.Achievement{},
	}
	for _, g := range grants {
		result.XPAwarded += g.Amount
	}

	t.runCascade(ctx, p, change, len(grants) > 0, result)
	return result, nil
}

// commit applies the attempt under the per-key lock, retrying on
// compare-and-swap conflicts with other processes.
func (t *Tracker) commit(ctx context.Context, req SubmitRequest, lesson *domain.Lesson, attempt domain.ExerciseAttempt) (*domain.LessonProgress, domain.ProgressChange, []domain.XPEntry, error) {
	unlock := t.locks.Lock(req.UserID + "/" + req.LessonID)
	defer unlock()

	var lastErr error
	for i := 0; i < maxCommitAttempts; i++ {
		p, err := t.load(ctx, req.UserID, req.ModuleID, req.LessonID)
		if err != nil {
			return nil, domain.ProgressChange{}, nil, err
		}
		if err := p.CheckSubmittable(req.SessionID, attempt.ExerciseUUID); err != nil {
			return nil, domain.ProgressChange{}, nil, err
		}

		change := p.Record(req.SessionID, attempt, lesson)

		var grants []domain.XPEntry
		if t.policy.GrantsIncremental() && change.ScoreGain > 0 {
			grants = append(grants, domain.NewXPEntry(p.UserID, change.ScoreGain, domain.ReasonLessonProgress,
				domain.XPRefs{LessonID: p.LessonID, ModuleID: p.ModuleID},
				map[string]any{
					"exercise_uuid": attempt.ExerciseUUID,
					"session_id":    p.SessionID,
					"best_score":    p.BestScore,
				}))
		}

		record := domain.AttemptRecord{
			UserID:          p.UserID,
			ModuleID:        p.ModuleID,
			LessonID:        p.LessonID,
			SessionID:       p.SessionID,
			AttemptNumber:   p.AttemptCount,
			ExerciseAttempt: attempt,
		}
		err = t.store.CommitSubmission(ctx, p, record, grants)
		if err == nil {
			return p, change, grants, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return nil, domain.ProgressChange{}, nil, fmt.Errorf("commit submission: %w", err)
		}
		lastErr = err
		t.logger.Debug("progress version conflict, retrying",
			"user", req.UserID, "lesson", req.LessonID, "attempt", i+1)
	}
	return nil, domain.ProgressChange{}, nil, lastErr
}

func (t *Tracker) load(ctx context.Context, userID, moduleID, lessonID string) (*domain.LessonProgress, error) {
	p, err := t.store.GetProgress(ctx, userID, lessonID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		return domain.NewLessonProgress(userID, moduleID, lessonID, t.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return p, nil
}

// runCascade never fails the submission; errors are logged and the
// guarded awards are retried by the next trigger.
func (t *Tracker) runCascade(ctx context.Context, p *domain.LessonProgress, change domain.ProgressChange, granted bool, result *SubmissionResult) {
	if t.cascade == nil {
		return
	}

	var (
		cascade *domain.CascadeResult
		err     error
	)
	switch {
	case change.LessonFinished:
		ev := domain.NewLessonCompletedEvent(p, p.UpdatedAt)
		t.events.Publish(ev)
		cascade, err = t.cascade.LessonCompleted(ctx, ev)
	case granted:
		cascade, err = t.cascade.XPChanged(ctx, p.UserID)
	default:
		return
	}
	if err != nil {
		t.logger.Warn("reward cascade incomplete",
			"user", p.UserID, "lesson", p.LessonID, "error", err)
	}
	if cascade == nil {
		return
	}

	result.XPBonus = cascade.XPBonus
	result.StreakDays = cascade.StreakDays
	result.CascadePending = cascade.Pending
	if len(cascade.Achievements) > 0 {
		result.Achievements = cascade.Achievements
	}
}

// Validate judges a response without recording anything.
func (t *Tracker) Validate(ctx context.Context, req SubmitRequest) (*ValidationResult, error) {
	if err := domain.ValidateIDs(
		"module id", req.ModuleID,
		"lesson id", req.LessonID,
		"exercise uuid", req.ExerciseUUID,
	); err != nil {
		return nil, err
	}

	_, ex, err := t.resolve(ctx, req.ModuleID, req.LessonID, req.ExerciseUUID)
	if err != nil {
		return nil, err
	}
	verdict, err := t.judge.Evaluate(ctx, ex, req.Response)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{IsCorrect: verdict.Correct, Feedback: verdict.Feedback}
	if verdict.Correct {
		result.Points = ex.Points
	}
	return result, nil
}

func (t *Tracker) resolve(ctx context.Context, moduleID, lessonID, exerciseUUID string) (*domain.Lesson, *domain.Exercise, error) {
	lesson, err := t.curriculum.FindLesson(ctx, moduleID, lessonID)
	if err != nil {
		return nil, nil, err
	}
	ex, err := t.curriculum.FindExercise(ctx, moduleID, lessonID, exerciseUUID)
	if err != nil {
		return nil, nil, err
	}
	return lesson, ex, nil
}

// Summary returns a user's totals. A user who never practiced gets zeros.
func (t *Tracker) Summary(ctx context.Context, userID string) (*domain.ProgressSummary, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}

	summary := &domain.ProgressSummary{UserID: userID, CompletedExerciseUUIDs: []string{}}
	user, err := t.users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return summary, nil
	case err != nil:
		return nil, fmt.Errorf("get user: %w", err)
	}
	summary.TotalPoints = user.TotalPoints
	summary.StreakDays = user.Streak.CurrentDays

	uuids, err := t.store.ListCorrectExerciseUUIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list completed exercises: %w", err)
	}
	if len(uuids) > 0 {
		summary.CompletedExerciseUUIDs = uuids
	}
	return summary, nil
}

// LessonProgress returns the progress record of one lesson.
func (t *Tracker) LessonProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	if err := domain.ValidateIDs("user id", userID, "lesson id", lessonID); err != nil {
		return nil, err
	}
	return t.store.GetProgress(ctx, userID, lessonID)
}

// ListProgress returns every lesson record of a user.
func (t *Tracker) ListProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	records, err := t.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.LessonProgress{}
	}
	return records, nil
}

// Attempts returns the full attempt history of one lesson.
func (t *Tracker) Attempts(ctx context.Context, userID, lessonID string) ([]domain.AttemptRecord, error) {
	if err := domain.ValidateIDs("user id", userID, "lesson id", lessonID); err != nil {
		return nil, err
	}
	attempts, err := t.store.ListAttempts(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []domain.AttemptRecord{}
	}
	return attempts, nil
}

// CanRetry reports whether exerciseUUID may be submitted in sessionID and,
// if not, why.
func (t *Tracker) CanRetry(ctx context.Context, userID, sessionID, lessonID, exerciseUUID string) (bool, string, error) {
	if err := domain.ValidateIDs(
		"user id", userID,
		"session id", sessionID,
		"lesson id", lessonID,
		"exercise uuid", exerciseUUID,
	); err != nil {
		return false, "", err
	}

	p, err := t.store.GetProgress(ctx, userID, lessonID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		return true, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if err := p.CheckSubmittable(sessionID, exerciseUUID); err != nil {
		return false, err.Error(), nil
	}
	return true, "", nil
}
