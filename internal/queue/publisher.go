package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher publishes consumption events to a durable RabbitMQ queue.
// Every call dials its own connection, so a broker outage never leaves
// a broken connection behind.
type Publisher struct {
	url    string
	queue  string
	logger *zap.Logger
	dial   func(url string) (*amqp.Connection, error)
}

func NewPublisher(url, queue string, logger *zap.Logger) *Publisher {
	return &Publisher{
		url:    url,
		queue:  queue,
		logger: logger,
		dial:   amqp.Dial,
	}
}

// Publish sends the event as a persistent JSON message. Errors are logged
// and returned; callers may ignore them.
func (p *Publisher) Publish(ctx context.Context, event ConsumptionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	msg, err := NewMessage(event)
	if err != nil {
		p.logger.Warn("rabbitmq: marshal event failed", zap.Error(err))
		return err
	}

	conn, err := p.dial(p.url)
	if err != nil {
		p.logger.Warn("rabbitmq: dial failed", zap.Error(err))
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("rabbitmq: channel open failed", zap.Error(err))
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		p.logger.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.Warn("rabbitmq: publish failed", zap.Error(err))
		return fmt.Errorf("publish: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("consumption_id", event.ConsumptionID),
	)

	return nil
}

// NewMessage builds the AMQP publishing for an event
func NewMessage(event ConsumptionEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt,
		Body:         body,
	}, nil
}
