package domain

import "fmt"

// Module groups ordered lessons.
type Module struct {
	ID           string
	Title        string
	Description  string
	Order        int
	EstimateDays int
	Lessons      []Lesson
}

// Lesson is an ordered list of exercises with an XP budget.
// A private lesson has exam semantics: once completed it is locked.
type Lesson struct {
	ID          string
	ModuleID    string
	Title       string
	Description string
	Order       int
	XPReward    int
	IsPrivate   bool
	Exercises   []Exercise
}

// TotalPossible returns the sum of all exercise points.
func (l *Lesson) TotalPossible() int {
	total := 0
	for _, ex := range l.Exercises {
		total += ex.Points
	}
	return total
}

// ExerciseCount returns the number of exercises in the lesson.
func (l *Lesson) ExerciseCount() int {
	return len(l.Exercises)
}

// Exercise finds an exercise by uuid.
func (l *Lesson) Exercise(uuid string) (*Exercise, bool) {
	for i := range l.Exercises {
		if l.Exercises[i].UUID == uuid {
			return &l.Exercises[i], true
		}
	}
	return nil, false
}

// Validate checks lesson-level invariants and every exercise.
func (l *Lesson) Validate() error {
	if err := ValidateID("lesson id", l.ID); err != nil {
		return err
	}
	if len(l.Exercises) == 0 {
		return fmt.Errorf("%w: %s: no exercises", ErrInvalidLesson, l.ID)
	}
	if l.XPReward < 0 {
		return fmt.Errorf("%w: %s: negative xp reward", ErrInvalidLesson, l.ID)
	}
	seen := make(map[string]bool, len(l.Exercises))
	for i := range l.Exercises {
		ex := &l.Exercises[i]
		if seen[ex.UUID] {
			return fmt.Errorf("%w: %s: duplicate exercise uuid %q", ErrInvalidLesson, l.ID, ex.UUID)
		}
		seen[ex.UUID] = true
		if err := ex.Validate(); err != nil {
			return fmt.Errorf("lesson %s: %w", l.ID, err)
		}
	}
	return nil
}

// Lesson finds a lesson by id.
func (m *Module) Lesson(id string) (*Lesson, bool) {
	for i := range m.Lessons {
		if m.Lessons[i].ID == id {
			return &m.Lessons[i], true
		}
	}
	return nil, false
}

// Validate checks module-level invariants and every lesson.
func (m *Module) Validate() error {
	if err := ValidateID("module id", m.ID); err != nil {
		return err
	}
	seen := make(map[string]bool, len(m.Lessons))
	for i := range m.Lessons {
		l := &m.Lessons[i]
		if seen[l.ID] {
			return fmt.Errorf("%w: module %s: duplicate lesson id %q", ErrInvalidLesson, m.ID, l.ID)
		}
		seen[l.ID] = true
		if l.ModuleID != "" && l.ModuleID != m.ID {
			return fmt.Errorf("%w: lesson %s belongs to module %s, not %s", ErrInvalidLesson, l.ID, l.ModuleID, m.ID)
		}
		if err := l.Validate(); err != nil {
			return fmt.Errorf("module %s: %w", m.ID, err)
		}
	}
	return nil
}
