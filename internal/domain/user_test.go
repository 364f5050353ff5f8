package domain

import (
	"testing"
	"time"
)

func TestStreak_Advance(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	day := func(offset int) time.Time { return CalendarDay(today).AddDate(0, 0, offset) }

	tests := []struct {
		name     string
		streak   Streak
		wantDays int
		wantDate time.Time
	}{
		{"never practiced", Streak{}, 1, day(0)},
		{"same day", Streak{CurrentDays: 4, LastPracticeDate: day(0)}, 4, day(0)},
		{"yesterday", Streak{CurrentDays: 4, LastPracticeDate: day(-1)}, 5, day(0)},
		{"two days ago", Streak{CurrentDays: 4, LastPracticeDate: day(-2)}, 1, day(0)},
		{"future stored date", Streak{CurrentDays: 2, LastPracticeDate: day(1)}, 2, day(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.streak.Advance(today)
			if got.CurrentDays != tt.wantDays {
				t.Errorf("CurrentDays = %d; want %d", got.CurrentDays, tt.wantDays)
			}
			if !got.LastPracticeDate.Equal(tt.wantDate) {
				t.Errorf("LastPracticeDate = %v; want %v", got.LastPracticeDate, tt.wantDate)
			}
		})
	}
}

func TestStreak_AdvanceAcrossMidnight(t *testing.T) {
	late := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	early := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)

	s := Streak{}.Advance(late)
	s = s.Advance(early)
	if s.CurrentDays != 2 {
		t.Errorf("CurrentDays = %d; want 2", s.CurrentDays)
	}
}

func TestCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2026, 1, 1, 22, 0, 0, 0, loc)
	got := CalendarDay(ts)
	want := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CalendarDay() = %v; want %v", got, want)
	}
}
