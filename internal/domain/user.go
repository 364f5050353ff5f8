package domain

import "time"

// User holds the gamification state of a learner. TotalPoints must equal
// the fold of the user's XP ledger.
type User struct {
	ID          string
	TotalPoints int
	Streak      Streak
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Streak counts consecutive practice days. LastPracticeDate is a UTC
// calendar day; the zero value means the user never practiced.
type Streak struct {
	CurrentDays      int       `json:"current_days"`
	LastPracticeDate time.Time `json:"last_practice_date"`
}

// HasPracticed reports whether a practice day was ever recorded.
func (s Streak) HasPracticed() bool {
	return !s.LastPracticeDate.IsZero()
}

// Advance returns the streak after practicing on the day of ref.
func (s Streak) Advance(ref time.Time) Streak {
	day := CalendarDay(ref)
	if !s.HasPracticed() {
		return Streak{CurrentDays: 1, LastPracticeDate: day}
	}

	switch gap := DaysBetween(s.LastPracticeDate, day); {
	case gap <= 0:
		// Same day, or a reference older than the stored day.
		return s
	case gap == 1:
		return Streak{CurrentDays: s.CurrentDays + 1, LastPracticeDate: day}
	default:
		return Streak{CurrentDays: 1, LastPracticeDate: day}
	}
}
