package stats

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Status of a lesson or module for one learner.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Level is a position on the XP ladder.
type Level struct {
	Level           int     `json:"level"`
	ProgressPercent float64 `json:"level_progress_percentage"`
	XPToNext        int     `json:"xp_for_next_level"`
}

// LearnerStats is the dashboard of one learner.
type LearnerStats struct {
	UserID  string `json:"user_id"`
	TotalXP int    `json:"total_xp"`
	Level
	StreakDays         int              `json:"streak_days"`
	LessonsCompleted   int              `json:"lessons_completed"`
	PerfectLessons     int              `json:"perfect_lessons"`
	ExercisesCompleted int              `json:"exercises_completed"`
	ExercisesAttempted int              `json:"exercises_attempted"`
	ActiveDays         int              `json:"active_days_count"`
	LastActivity       *time.Time       `json:"last_activity"`
	TotalLessons       int              `json:"total_lessons"`
	GlobalProgress     float64          `json:"global_progress_percentage"`
	Modules            []ModuleProgress `json:"modules_progress"`
	Badges             []Badge          `json:"badges"`
	Activity           []ActivityDay    `json:"activity_calendar"`
	NextGoal           Goal             `json:"next_goal"`
}

// ModuleProgress summarizes a learner's work in one module.
type ModuleProgress struct {
	ModuleID           string         `json:"module_id"`
	Title              string         `json:"module_title"`
	TotalLessons       int            `json:"total_lessons"`
	CompletedLessons   int            `json:"completed_lessons"`
	TotalExercises     int            `json:"total_exercises"`
	CompletedExercises int            `json:"completed_exercises"`
	ProgressPercent    float64        `json:"progress_percentage"`
	AverageScore       float64        `json:"average_score"`
	Status             Status         `json:"status"`
	Lessons            []LessonStatus `json:"lessons,omitempty"`
}

// LessonStatus is the read-only state of one lesson.
type LessonStatus struct {
	LessonID      string `json:"lesson_id"`
	Title         string `json:"lesson_title"`
	Status        Status `json:"status"`
	Score         int    `json:"score"`
	TotalPossible int    `json:"total_possible"`
	AttemptCount  int    `json:"attempt_count"`
}

// ActivityDay is one cell of the activity calendar.
type ActivityDay struct {
	Date     string `json:"date"`
	Active   bool   `json:"active"`
	Sessions int    `json:"sessions"`
}

// Badge is a fixed achievement derived from the statistics. Badges are
// not stored and grant no XP.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GoalType names what a goal asks for.
type GoalType string

const (
	GoalStreak  GoalType = "streak"
	GoalLessons GoalType = "lessons"
	GoalModule  GoalType = "module"
	GoalXP      GoalType = "xp"
)

// Goal is the next suggested target. Target is set for streak, lesson
// and XP goals, ModuleID for module goals.
type Goal struct {
	Type        GoalType `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Target      int      `json:"target,omitempty"`
	ModuleID    string   `json:"module_id,omitempty"`
}

// StudentSummary is one row of the instructor overview.
type StudentSummary struct {
	UserID             string           `json:"user_id"`
	TotalXP            int              `json:"total_xp"`
	Level              int              `json:"level"`
	StreakDays         int              `json:"streak_days"`
	LessonsCompleted   int              `json:"lessons_completed"`
	ExercisesCompleted int              `json:"exercises_completed"`
	TotalLessons       int              `json:"total_lessons"`
	GlobalProgress     float64          `json:"global_progress_percentage"`
	LastActivity       *time.Time       `json:"last_activity"`
	ActiveDays         []string         `json:"active_days"`
	ActiveDaysCount    int              `json:"active_days_count"`
	Modules            []ModuleProgress `json:"modules_progress"`
}

// StudentDetail is the instructor's drill-down into one learner.
type StudentDetail struct {
	UserID     string         `json:"user_id"`
	TotalXP    int            `json:"total_xp"`
	StreakDays int            `json:"streak_days"`
	Modules    []ModuleDetail `json:"modules"`
}

// ModuleDetail lists every lesson of a module.
type ModuleDetail struct {
	ModuleID string         `json:"module_id"`
	Title    string         `json:"module_title"`
	Lessons  []LessonDetail `json:"lessons"`
}

// LessonDetail is a lesson record with its full attempt history.
type LessonDetail struct {
	LessonID      string                 `json:"lesson_id"`
	Title         string                 `json:"lesson_title"`
	IsCompleted   bool                   `json:"is_completed"`
	IsLocked      bool                   `json:"is_locked"`
	BestScore     int                    `json:"best_score"`
	TotalPossible int                    `json:"total_possible"`
	AttemptCount  int                    `json:"attempt_count"`
	LastAttempt   *time.Time             `json:"last_attempt"`
	Attempts      []domain.AttemptRecord `json:"exercises"`
}

var badgeRules = []struct {
	badge Badge
	ok    func(*LearnerStats) bool
}{
	{Badge{"first_lesson", "First Step", "Completed a first lesson"},
		func(s *LearnerStats) bool { return s.LessonsCompleted >= 1 }},
	{Badge{"5_lessons", "Apprentice", "Completed 5 lessons"},
		func(s *LearnerStats) bool { return s.LessonsCompleted >= 5 }},
	{Badge{"10_lessons", "Dedicated Student", "Completed 10 lessons"},
		func(s *LearnerStats) bool { return s.LessonsCompleted >= 10 }},
	{Badge{"week_streak", "Full Week", "Practiced 7 days in a row"},
		func(s *LearnerStats) bool { return s.StreakDays >= 7 }},
	{Badge{"month_streak", "Unstoppable", "Practiced 30 days in a row"},
		func(s *LearnerStats) bool { return s.StreakDays >= 30 }},
	{Badge{"perfectionist", "Perfectionist", "Finished 10 lessons with a perfect score"},
		func(s *LearnerStats) bool { return s.PerfectLessons >= 10 }},
	{Badge{"xp_1000", "XP Collector", "Reached 1000 XP"},
		func(s *LearnerStats) bool { return s.TotalXP >= 1000 }},
	{Badge{"level_5", "Expert", "Reached level 5"},
		func(s *LearnerStats) bool { return s.Level.Level >= 5 }},
}

func badgesFor(s *LearnerStats) []Badge {
	badges := []Badge{}
	for _, r := range badgeRules {
		if r.ok(s) {
			badges = append(badges, r.badge)
		}
	}
	return badges
}

// nextGoal suggests, in order: starting or growing a streak to a week,
// reaching 5 then 10 lessons, starting a new module, finishing a started
// module, and finally the next level.
func nextGoal(s *LearnerStats) Goal {
	switch {
	case s.StreakDays == 0:
		return Goal{Type: GoalStreak, Title: "Start a streak",
			Description: "Practice today to start your daily streak", Target: 1}
	case s.StreakDays < 7:
		return Goal{Type: GoalStreak, Title: "Reach a 7 day streak",
			Description: fmt.Sprintf("%d more days to the Full Week badge", 7-s.StreakDays), Target: 7}
	case s.LessonsCompleted < 5:
		return Goal{Type: GoalLessons, Title: "Complete 5 lessons",
			Description: fmt.Sprintf("%d more lessons to the Apprentice badge", 5-s.LessonsCompleted), Target: 5}
	case s.LessonsCompleted < 10:
		return Goal{Type: GoalLessons, Title: "Complete 10 lessons",
			Description: fmt.Sprintf("%d more lessons to the Dedicated Student badge", 10-s.LessonsCompleted), Target: 10}
	}

	for _, want := range []Status{StatusNotStarted, StatusInProgress} {
		for _, m := range s.Modules {
			if m.Status != want {
				continue
			}
			if want == StatusNotStarted {
				return Goal{Type: GoalModule, Title: "Start " + m.Title,
					Description: "Explore a new module", ModuleID: m.ModuleID}
			}
			return Goal{Type: GoalModule, Title: "Finish " + m.Title,
				Description: fmt.Sprintf("%.1f%% done", m.ProgressPercent), ModuleID: m.ModuleID}
		}
	}

	next := s.Level.Level * XPPerLevel
	return Goal{Type: GoalXP, Title: fmt.Sprintf("Reach %d XP", next),
		Description: fmt.Sprintf("%d XP to the next level", next-max(s.TotalXP, 0)), Target: next}
}
