package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/progress"
)

// Publisher sends a JSON payload to a named queue.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

var (
	_ Publisher        = (*Connection)(nil)
	_ progress.Cascade = (*Producer)(nil)
)

// Producer defers the reward cascade by publishing it to the cascade queue.
// Its results are always pending; a Consumer applies them later.
type Producer struct {
	pub Publisher
}

// NewProducer creates a new queue producer
func NewProducer(pub Publisher) *Producer {
	return &Producer{pub: pub}
}

// LessonCompleted publishes a lesson.completed message.
func (p *Producer) LessonCompleted(ctx context.Context, ev domain.LessonCompletedEvent) (*domain.CascadeResult, error) {
	msg := NewCascadeMessage(MessageLessonCompleted, ev.UserID)
	msg.Lesson = &ev
	if err := p.Publish(ctx, msg); err != nil {
		return nil, err
	}
	return pending(), nil
}

// XPChanged publishes an xp.changed message.
func (p *Producer) XPChanged(ctx context.Context, userID string) (*domain.CascadeResult, error) {
	if err := p.Publish(ctx, NewCascadeMessage(MessageXPChanged, userID)); err != nil {
		return nil, err
	}
	return pending(), nil
}

// Publish sends msg to the cascade queue.
func (p *Producer) Publish(ctx context.Context, msg *CascadeMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if err := p.pub.PublishJSON(ctx, CascadeQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish cascade message: %w", err)
	}

	slog.Info("published cascade message",
		"message_id", msg.ID,
		"type", msg.Type,
		"user_id", msg.UserID,
	)
	return nil
}

// NewCascadeMessage creates a message with a fresh ID and timestamp.
func NewCascadeMessage(msgType, userID string) *CascadeMessage {
	return &CascadeMessage{
		ID:        uuid.New(),
		Type:      msgType,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

func pending() *domain.CascadeResult {
	return &domain.CascadeResult{Achievements: []domain.Achievement{}, Pending: true}
}
