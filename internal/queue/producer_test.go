package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/queue"
)

type published struct {
	queue string
	data  any
}

type mockPublisher struct {
	mu   sync.Mutex
	err  error
	sent []published
}

func (m *mockPublisher) PublishJSON(ctx context.Context, q string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, published{queue: q, data: data})
	return nil
}

func TestProducer_LessonCompleted(t *testing.T) {
	pub := &mockPublisher{}
	producer := queue.NewProducer(pub)

	ev := domain.LessonCompletedEvent{UserID: "u1", ModuleID: "m1", LessonID: "l1", BestScore: 10, TotalPossible: 15}
	result, err := producer.LessonCompleted(context.Background(), ev)
	if err != nil {
		t.Fatalf("LessonCompleted() error = %v", err)
	}
	if !result.Pending {
		t.Error("result should be pending")
	}
	if result.XPBonus != 0 || result.Achievements == nil || len(result.Achievements) != 0 {
		t.Errorf("result = %+v; want empty pending result", result)
	}

	if len(pub.sent) != 1 {
		t.Fatalf("published %d messages; want 1", len(pub.sent))
	}
	if pub.sent[0].queue != queue.CascadeQueueName {
		t.Errorf("queue = %q; want %q", pub.sent[0].queue, queue.CascadeQueueName)
	}
	msg, ok := pub.sent[0].data.(*queue.CascadeMessage)
	if !ok {
		t.Fatalf("data = %T; want *queue.CascadeMessage", pub.sent[0].data)
	}
	if msg.Type != queue.MessageLessonCompleted || msg.UserID != "u1" || msg.Lesson == nil || msg.Lesson.LessonID != "l1" {
		t.Errorf("message = %+v", msg)
	}
	if msg.ID == uuid.Nil || msg.CreatedAt.IsZero() {
		t.Error("message should carry an ID and timestamp")
	}
	if err := msg.Validate(); err != nil {
		t.Errorf("published message does not validate: %v", err)
	}
}

func TestProducer_XPChanged(t *testing.T) {
	pub := &mockPublisher{}
	producer := queue.NewProducer(pub)

	result, err := producer.XPChanged(context.Background(), "u1")
	if err != nil {
		t.Fatalf("XPChanged() error = %v", err)
	}
	if !result.Pending {
		t.Error("result should be pending")
	}
	msg := pub.sent[0].data.(*queue.CascadeMessage)
	if msg.Type != queue.MessageXPChanged || msg.Lesson != nil {
		t.Errorf("message = %+v", msg)
	}
}

func TestProducer_PublishError(t *testing.T) {
	boom := errors.New("channel closed")
	producer := queue.NewProducer(&mockPublisher{err: boom})

	if _, err := producer.XPChanged(context.Background(), "u1"); !errors.Is(err, boom) {
		t.Errorf("XPChanged() error = %v; want wrapped %v", err, boom)
	}
	if _, err := producer.LessonCompleted(context.Background(), domain.LessonCompletedEvent{UserID: "u1"}); !errors.Is(err, boom) {
		t.Errorf("LessonCompleted() error = %v; want wrapped %v", err, boom)
	}
}

func TestProducer_PublishKeepsExistingID(t *testing.T) {
	pub := &mockPublisher{}
	producer := queue.NewProducer(pub)

	id := uuid.New()
	msg := &queue.CascadeMessage{ID: id, Type: queue.MessageXPChanged, UserID: "u1"}
	if err := producer.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if msg.ID != id {
		t.Errorf("ID = %v; want %v", msg.ID, id)
	}
	if msg.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestNewCascadeMessage_UniqueIDs(t *testing.T) {
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 50; i++ {
		msg := queue.NewCascadeMessage(queue.MessageXPChanged, "u1")
		if seen[msg.ID] {
			t.Fatalf("duplicate ID %v", msg.ID)
		}
		seen[msg.ID] = true
	}
}
