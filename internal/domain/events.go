package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Event Interface and Base Event
// -----------------------------------------------------------------------------

// Event represents a domain event
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
	// AggregateID returns the ID of the aggregate that produced this event
	AggregateID() string
	// AggregateType returns the type of aggregate that produced this event
	AggregateType() string
}

// Event type names
const (
	EventSubmissionRecorded = "submission.recorded"
	EventLessonCompleted    = "lesson.completed"
	EventLessonLocked       = "lesson.locked"
	EventXPChanged          = "xp.changed"
	EventStreakUpdated      = "streak.updated"
	EventRewardAwarded      = "reward.awarded"
)

// BaseEvent provides common event fields
type BaseEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateKey  string    `json:"aggregate_id"`
	AggregateName string    `json:"aggregate_type"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType, aggregateType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		AggregateKey:  aggregateID,
		AggregateName: aggregateType,
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateKey }
func (e BaseEvent) AggregateType() string { return e.AggregateName }

// -----------------------------------------------------------------------------
// Event Handler and Dispatcher
// -----------------------------------------------------------------------------

// EventHandler processes domain events
type EventHandler func(event Event)

// EventDispatcher manages event subscriptions and publishing
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers. A nil dispatcher
// drops the event.
func (d *EventDispatcher) Publish(event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, h := range d.handlers[event.EventType()] {
		h(event)
	}
	for _, h := range d.allHandlers {
		h(event)
	}
}

// PublishAll dispatches multiple events
func (d *EventDispatcher) PublishAll(events []Event) {
	for _, event := range events {
		d.Publish(event)
	}
}

// -----------------------------------------------------------------------------
// Progress Events
// -----------------------------------------------------------------------------

// SubmissionRecordedEvent is published after an attempt is persisted
type SubmissionRecordedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	LessonID     string `json:"lesson_id"`
	SessionID    string `json:"session_id"`
	ExerciseUUID string `json:"exercise_uuid"`
	IsCorrect    bool   `json:"is_correct"`
	PointsEarned int    `json:"points_earned"`
}

// NewSubmissionRecordedEvent creates a new submission recorded event
func NewSubmissionRecordedEvent(p *LessonProgress, attempt ExerciseAttempt) SubmissionRecordedEvent {
	return SubmissionRecordedEvent{
		BaseEvent:    NewBaseEvent(EventSubmissionRecorded, "LessonProgress", p.UserID+"/"+p.LessonID),
		UserID:       p.UserID,
		LessonID:     p.LessonID,
		SessionID:    p.SessionID,
		ExerciseUUID: attempt.ExerciseUUID,
		IsCorrect:    attempt.IsCorrect,
		PointsEarned: attempt.PointsEarned,
	}
}

// LessonCompletedEvent is published when a session attempts every exercise
// of a lesson. It is also the message body of the asynchronous cascade.
type LessonCompletedEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	ModuleID      string    `json:"module_id"`
	LessonID      string    `json:"lesson_id"`
	SessionID     string    `json:"session_id"`
	CurrentScore  int       `json:"current_score"`
	BestScore     int       `json:"best_score"`
	TotalPossible int       `json:"total_possible"`
	CompletedAt   time.Time `json:"completed_at"`
}

// NewLessonCompletedEvent creates a new lesson completed event
func NewLessonCompletedEvent(p *LessonProgress, at time.Time) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:     NewBaseEvent(EventLessonCompleted, "LessonProgress", p.UserID+"/"+p.LessonID),
		UserID:        p.UserID,
		ModuleID:      p.ModuleID,
		LessonID:      p.LessonID,
		SessionID:     p.SessionID,
		CurrentScore:  p.CurrentScore,
		BestScore:     p.BestScore,
		TotalPossible: p.TotalPossible,
		CompletedAt:   at,
	}
}

// IsPerfect reports whether the completing session scored every point.
func (e LessonCompletedEvent) IsPerfect() bool {
	return e.TotalPossible > 0 && e.CurrentScore == e.TotalPossible
}

// LessonLockedEvent is published when a private lesson locks
type LessonLockedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	LessonID string `json:"lesson_id"`
}

// NewLessonLockedEvent creates a new lesson locked event
func NewLessonLockedEvent(userID, lessonID string) LessonLockedEvent {
	return LessonLockedEvent{
		BaseEvent: NewBaseEvent(EventLessonLocked, "LessonProgress", userID+"/"+lessonID),
		UserID:    userID,
		LessonID:  lessonID,
	}
}

// -----------------------------------------------------------------------------
// Gamification Events
// -----------------------------------------------------------------------------

// XPChangedEvent is published after XP is granted outside a lesson
// completion, so xp milestones can be evaluated
type XPChangedEvent struct {
	BaseEvent
	UserID string   `json:"user_id"`
	Amount int      `json:"amount"`
	Reason XPReason `json:"reason"`
}

// NewXPChangedEvent creates a new xp changed event
func NewXPChangedEvent(userID string, amount int, reason XPReason) XPChangedEvent {
	return XPChangedEvent{
		BaseEvent: NewBaseEvent(EventXPChanged, "User", userID),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
	}
}

// StreakUpdatedEvent is published when a streak is touched
type StreakUpdatedEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	OldDays int    `json:"old_days"`
	NewDays int    `json:"new_days"`
}

// NewStreakUpdatedEvent creates a new streak updated event
func NewStreakUpdatedEvent(userID string, oldDays, newDays int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStreakUpdated, "User", userID),
		UserID:    userID,
		OldDays:   oldDays,
		NewDays:   newDays,
	}
}

// RewardAwardedEvent is published when a reward is granted
type RewardAwardedEvent struct {
	BaseEvent
	UserID     string     `json:"user_id"`
	RewardType RewardType `json:"reward_type"`
	Title      string     `json:"title"`
	XPBonus    int        `json:"xp_bonus"`
}

// NewRewardAwardedEvent creates a new reward awarded event
func NewRewardAwardedEvent(userID string, r *Reward) RewardAwardedEvent {
	return RewardAwardedEvent{
		BaseEvent:  NewBaseEvent(EventRewardAwarded, "Reward", r.ID),
		UserID:     userID,
		RewardType: r.Type,
		Title:      r.Title,
		XPBonus:    r.XPBonus,
	}
}
