// Package streak maintains consecutive practice-day streaks.
package streak

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Store persists streaks. UpdateStreak applies fn atomically to the stored
// value and returns it before and after.
type Store interface {
	UpdateStreak(ctx context.Context, userID string, fn func(domain.Streak) domain.Streak) (before, after domain.Streak, err error)
}

// Tracker advances streaks on practice.
type Tracker struct {
	store  Store
	events *domain.EventDispatcher
}

// NewTracker creates a new streak tracker
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// SetEventDispatcher sets the dispatcher that receives StreakUpdated events
func (t *Tracker) SetEventDispatcher(d *domain.EventDispatcher) {
	t.events = d
}

// Touch records practice on the calendar day of ref and returns the
// resulting streak length. Touching twice on the same day is a no-op.
func (t *Tracker) Touch(ctx context.Context, userID string, ref time.Time) (int, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return 0, err
	}

	before, after, err := t.store.UpdateStreak(ctx, userID, func(s domain.Streak) domain.Streak {
		return s.Advance(ref)
	})
	if err != nil {
		return 0, fmt.Errorf("touch streak: %w", err)
	}

	if after.CurrentDays != before.CurrentDays || !after.LastPracticeDate.Equal(before.LastPracticeDate) {
		slog.Debug("streak updated", "user_id", userID, "old_days", before.CurrentDays, "new_days", after.CurrentDays)
		t.events.Publish(domain.NewStreakUpdatedEvent(userID, before.CurrentDays, after.CurrentDays))
	}
	return after.CurrentDays, nil
}
