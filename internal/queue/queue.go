package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Queue names
const (
	CascadeQueueName    = "streakline.cascade"
	DeadLetterQueueName = "streakline.cascade.dead"
)

// Message types carried on the cascade queue.
const (
	MessageLessonCompleted = domain.EventLessonCompleted
	MessageXPChanged       = domain.EventXPChanged
)

var errMalformed = errors.New("malformed cascade message")

// CascadeMessage asks a consumer to run the reward cascade for one user.
type CascadeMessage struct {
	ID        uuid.UUID                    `json:"id"`
	Type      string                       `json:"type"`
	UserID    string                       `json:"user_id"`
	Lesson    *domain.LessonCompletedEvent `json:"lesson,omitempty"`
	CreatedAt time.Time                    `json:"created_at"`
}

// Validate rejects messages a consumer cannot act on.
func (m *CascadeMessage) Validate() error {
	if err := domain.ValidateID("user_id", m.UserID); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	switch m.Type {
	case MessageXPChanged:
		return nil
	case MessageLessonCompleted:
		if m.Lesson == nil {
			return fmt.Errorf("%w: lesson.completed without lesson", errMalformed)
		}
		if m.Lesson.UserID != m.UserID {
			return fmt.Errorf("%w: lesson user %q does not match %q", errMalformed, m.Lesson.UserID, m.UserID)
		}
		if err := domain.ValidateIDs("module_id", m.Lesson.ModuleID, "lesson_id", m.Lesson.LessonID); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", errMalformed, m.Type)
	}
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string) (*Connection, error) {
	c := &Connection{
		url: url,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect(c.conn)

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

// declareQueues creates the cascade queue and the dead-letter queue that
// receives rejected messages.
func (c *Connection) declareQueues() error {
	_, err := c.channel.QueueDeclare(
		DeadLetterQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		CascadeQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DeadLetterQueueName,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare cascade queue: %w", err)
	}

	return nil
}

// handleReconnect waits for conn to close and re-dials with exponential
// backoff.
func (c *Connection) handleReconnect(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	for i := 0; i < 10; i++ {
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()

		time.Sleep(backoff(i))

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		slog.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	slog.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// backoff doubles from one second and caps at thirty.
func backoff(attempt int) time.Duration {
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Duration(1<<attempt) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsClosed reports whether Close was called.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a persistent JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil {
		return errors.New("no open channel")
	}

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// sanitizeURL strips credentials from an AMQP URL for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid amqp url>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
