package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by repositories
// and services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Lookup errors
var (
	ErrNotFound         = errors.New("not found")
	ErrModuleNotFound   = errors.New("module not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrExerciseNotFound = errors.New("exercise not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrRewardNotFound   = errors.New("reward not found")
	ErrProgressNotFound = errors.New("lesson progress not found")
	ErrSessionNotFound  = errors.New("study session not found")
)

// Submission errors
var (
	ErrDuplicateSubmission    = errors.New("exercise already submitted in this session")
	ErrLessonLocked           = errors.New("lesson is locked")
	ErrInvalidIdentifier      = errors.New("invalid identifier")
	ErrJudgeUnavailable       = errors.New("judge unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Curriculum and reward errors
var (
	ErrInvalidExercise = errors.New("invalid exercise")
	ErrInvalidLesson   = errors.New("invalid lesson")
	ErrInvalidReward   = errors.New("invalid reward")
	ErrAlreadyAwarded  = errors.New("reward already awarded")
)

// Session errors
var (
	ErrSessionEnded = errors.New("study session already ended")
)

// IsNotFound reports whether err is any of the lookup errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrModuleNotFound) ||
		errors.Is(err, ErrLessonNotFound) ||
		errors.Is(err, ErrExerciseNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRewardNotFound) ||
		errors.Is(err, ErrProgressNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}
