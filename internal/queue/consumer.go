package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Handler runs the reward cascade. rewards.Engine satisfies it.
type Handler interface {
	LessonCompleted(ctx context.Context, ev domain.LessonCompletedEvent) (*domain.CascadeResult, error)
	XPChanged(ctx context.Context, userID string) (*domain.CascadeResult, error)
}

// Consumer consumes cascade messages from the queue
type Consumer struct {
	conn       *Connection
	handler    Handler
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Unacknowledged messages per channel
	Timeout  time.Duration // Per-message handler deadline
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 3,
		Timeout:  30 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler Handler, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start subscribes to the cascade queue and keeps the subscription alive
// across reconnects until ctx is cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	msgs, err := c.subscribe()
	if err != nil {
		c.cancelFunc()
		return err
	}

	slog.Info("starting cascade consumer", "workers", c.workers, "prefetch", c.prefetch)

	c.wg.Add(1)
	go c.supervise(ctx, msgs)
	return nil
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		CascadeQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

// supervise runs one generation of workers per subscription. When the
// delivery channel closes because the connection dropped, it waits for the
// connection to come back and subscribes again.
func (c *Consumer) supervise(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		var workers sync.WaitGroup
		for i := 0; i < c.workers; i++ {
			workers.Add(1)
			go func(id int) {
				defer workers.Done()
				c.worker(ctx, id, msgs)
			}(i)
		}
		workers.Wait()

		msgs = c.resubscribe(ctx)
		if msgs == nil {
			return
		}
	}
}

func (c *Consumer) resubscribe(ctx context.Context) <-chan amqp.Delivery {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil || c.conn.IsClosed() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff(attempt)):
		}

		if !c.conn.IsConnected() {
			continue
		}
		msgs, err := c.subscribe()
		if err != nil {
			slog.Warn("cascade consumer resubscribe failed", "error", err, "attempt", attempt+1)
			continue
		}
		slog.Info("cascade consumer resubscribed", "attempts", attempt+1)
		return msgs
	}
}

// worker processes messages until ctx ends or the delivery channel closes.
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage runs the cascade for one delivery. Malformed messages are
// rejected without requeue and land in the dead-letter queue. A failing
// handler gets one redelivery before the message is dead-lettered too; the
// cascade is idempotent so a replay cannot double-award.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var m CascadeMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		slog.Error("failed to unmarshal cascade message", "worker_id", workerID, "error", err)
		_ = msg.Reject(false)
		return
	}
	if err := m.Validate(); err != nil {
		slog.Error("invalid cascade message", "worker_id", workerID, "message_id", m.ID, "error", err)
		_ = msg.Reject(false)
		return
	}

	msgCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.dispatch(msgCtx, &m)
	duration := time.Since(start)

	if err != nil {
		requeue := !msg.Redelivered
		slog.Error("cascade failed",
			"worker_id", workerID,
			"message_id", m.ID,
			"type", m.Type,
			"user_id", m.UserID,
			"requeue", requeue,
			"error", err,
			"duration", duration,
		)
		if err := msg.Nack(false, requeue); err != nil {
			slog.Error("failed to nack message", "message_id", m.ID, "error", err)
		}
		return
	}

	slog.Info("cascade applied",
		"worker_id", workerID,
		"message_id", m.ID,
		"type", m.Type,
		"user_id", m.UserID,
		"xp_bonus", result.XPBonus,
		"achievements", len(result.Achievements),
		"duration", duration,
	)

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message", "message_id", m.ID, "error", err)
	}
}

func (c *Consumer) dispatch(ctx context.Context, m *CascadeMessage) (*domain.CascadeResult, error) {
	var (
		result *domain.CascadeResult
		err    error
	)
	switch m.Type {
	case MessageLessonCompleted:
		result, err = c.handler.LessonCompleted(ctx, *m.Lesson)
	case MessageXPChanged:
		result, err = c.handler.XPChanged(ctx, m.UserID)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", errMalformed, m.Type)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &domain.CascadeResult{}
	}
	return result, nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
