package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBaseEvent(t *testing.T) {
	event := NewBaseEvent("test.created", "TestAggregate", "agg-1")

	if event.EventID() == uuid.Nil {
		t.Error("EventID() should not be nil")
	}
	if event.EventType() != "test.created" {
		t.Errorf("EventType() = %q, want test.created", event.EventType())
	}
	if event.OccurredAt().IsZero() || event.OccurredAt().After(time.Now()) {
		t.Errorf("OccurredAt() = %v", event.OccurredAt())
	}
	if event.AggregateID() != "agg-1" {
		t.Errorf("AggregateID() = %q, want agg-1", event.AggregateID())
	}
	if event.AggregateType() != "TestAggregate" {
		t.Errorf("AggregateType() = %q, want TestAggregate", event.AggregateType())
	}
}

func TestEventDispatcher(t *testing.T) {
	t.Run("Subscribe and Publish", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		var received Event

		dispatcher.Subscribe(EventRewardAwarded, func(e Event) {
			received = e
		})

		r := &Reward{ID: "r1", Title: "Perfect", Type: RewardLessonPerfect, XPBonus: 20}
		dispatcher.Publish(NewRewardAwardedEvent("u1", r))

		if received == nil {
			t.Fatal("Event handler was not called")
		}
		awarded, ok := received.(RewardAwardedEvent)
		if !ok {
			t.Fatalf("received %T, want RewardAwardedEvent", received)
		}
		if awarded.XPBonus != 20 || awarded.AggregateID() != "r1" {
			t.Errorf("awarded = %+v", awarded)
		}
	})

	t.Run("SubscribeAll receives all events", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		var mu sync.Mutex
		count := 0

		dispatcher.SubscribeAll(func(e Event) {
			mu.Lock()
			count++
			mu.Unlock()
		})

		dispatcher.PublishAll([]Event{
			NewXPChangedEvent("u1", 5, ReasonLessonProgress),
			NewStreakUpdatedEvent("u1", 1, 2),
			NewLessonLockedEvent("u1", "l1"),
		})

		if count != 3 {
			t.Errorf("Handler call count = %d, want 3", count)
		}
	})

	t.Run("Unsubscribed events are ignored", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		called := false
		dispatcher.Subscribe("other.event", func(e Event) { called = true })
		dispatcher.Publish(NewBaseEvent("test.event", "Test", "x"))
		if called {
			t.Error("Handler should not be called for unsubscribed event type")
		}
	})

	t.Run("nil dispatcher drops events", func(t *testing.T) {
		var dispatcher *EventDispatcher
		dispatcher.Publish(NewBaseEvent("test.event", "Test", "x"))
	})
}

func TestLessonCompletedEvent(t *testing.T) {
	p := &LessonProgress{UserID: "u1", ModuleID: "m1", LessonID: "l1", SessionID: "s1", CurrentScore: 15, BestScore: 15, TotalPossible: 15}
	e := NewLessonCompletedEvent(p, time.Now())

	if e.EventType() != EventLessonCompleted {
		t.Errorf("EventType() = %q", e.EventType())
	}
	if !e.IsPerfect() {
		t.Error("IsPerfect() = false; want true")
	}
	if e.AggregateID() != "u1/l1" {
		t.Errorf("AggregateID() = %q; want u1/l1", e.AggregateID())
	}

	p.CurrentScore = 10
	if NewLessonCompletedEvent(p, time.Now()).IsPerfect() {
		t.Error("IsPerfect() = true for partial score")
	}
}
