package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange the outbox relays to.
const ExchangeName = "chiroflow.domain.events"

var (
	// ErrPublisherClosed is returned once the broker connection is gone.
	ErrPublisherClosed = errors.New("rabbitmq publisher is closed")
	// ErrPublishNacked is returned when the broker refuses a message.
	ErrPublishNacked = errors.New("rabbitmq nacked message")
)

// RabbitMQPublisher sends outbox envelopes to the domain event exchange.
// The channel runs in confirm mode: Publish returns only after the broker
// has taken responsibility for the message, so the outbox row is marked
// published only when the notification cannot be lost.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewRabbitMQPublisher dials url, declares the exchange and enables
// publisher confirms.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	setup := func() error {
		if err := declareExchange(ch, ExchangeName); err != nil {
			return fmt.Errorf("failed to declare exchange: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to enable confirms: %w", err)
		}
		return nil
	}
	if err := setup(); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	logger.Info("rabbitmq publisher connected", "exchange", ExchangeName)
	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Publish sends payload with routingKey and waits for the broker confirm.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		return ErrPublisherClosed
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		ExchangeName,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    envelopeID(payload),
			Timestamp:    p.now().UTC(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrPublishNacked, routingKey)
	}

	p.logger.Debug("message published", "routing_key", routingKey, "size", len(payload))
	return nil
}

// Check reports whether the broker connection is still open.
func (p *RabbitMQPublisher) Check(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return ErrPublisherClosed
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
		p.channel = nil
	}
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	p.logger.Info("rabbitmq publisher closed")
	return nil
}

// envelopeID pulls the event id out of an outbox envelope so the broker
// message id matches it. Consumers dedupe redeliveries on that id.
func envelopeID(payload []byte) string {
	var head struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return ""
	}
	return head.EventID
}
