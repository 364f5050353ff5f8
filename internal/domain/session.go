package domain

import (
	"math"
	"time"
)

// StudySession measures time spent on a lesson.
type StudySession struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	LessonID        string     `json:"lesson_id,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *float64   `json:"duration_minutes,omitempty"`
}

// IsEnded reports whether the session was closed.
func (s *StudySession) IsEnded() bool {
	return s.EndTime != nil
}

// Finish closes the session at end and computes the duration rounded to
// two decimals.
func (s *StudySession) Finish(end time.Time) {
	end = end.UTC()
	minutes := math.Round(end.Sub(s.StartTime).Seconds()/60*100) / 100
	s.EndTime = &end
	s.DurationMinutes = &minutes
}
