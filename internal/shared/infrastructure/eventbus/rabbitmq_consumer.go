package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultConsumerQueueName is the durable queue the notification
	// dispatcher drains.
	DefaultConsumerQueueName = "chiroflow.notifications"

	// DeadLetterExchangeName receives deliveries that failed twice.
	DeadLetterExchangeName = "chiroflow.domain.events.dead"
)

// ErrConsumerRunning is returned when Run is called twice.
var ErrConsumerRunning = errors.New("consumer already running")

// RabbitMQConsumerConfig configures the RabbitMQ consumer.
type RabbitMQConsumerConfig struct {
	URL       string
	QueueName string
	Exchange  string
	Prefetch  int
	Logger    *slog.Logger
}

// RabbitMQConsumer drains one durable queue bound to the domain event
// exchange and dispatches each delivery through a ConsumerRegistry.
// A delivery that fails on redelivery is rejected into "<queue>.dead".
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	exchange string
	prefetch int
	registry *ConsumerRegistry
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	once    sync.Once
}

// NewRabbitMQConsumer dials the broker and declares the exchange, the
// queue and its dead letter queue.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultConsumerQueueName
	}
	if cfg.Exchange == "" {
		cfg.Exchange = ExchangeName
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareTopology(ch, cfg.Exchange, cfg.QueueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	cfg.Logger.Info("RabbitMQ consumer connected", "queue", cfg.QueueName, "exchange", cfg.Exchange)

	return &RabbitMQConsumer{
		conn:     conn,
		channel:  ch,
		queue:    cfg.QueueName,
		exchange: cfg.Exchange,
		prefetch: cfg.Prefetch,
		registry: registry,
		logger:   cfg.Logger,
		done:     make(chan struct{}),
	}, nil
}

func declareTopology(ch *amqp.Channel, exchange, queue string) error {
	if err := declareExchange(ch, exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}

	dead := queue + ".dead"
	if _, err := ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := ch.QueueBind(dead, "", DeadLetterExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchangeName,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// RegisterConsumer adds the consumer to the registry and binds each of
// its routing patterns to the queue.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) error {
	c.registry.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range consumer.EventTypes() {
		if err := c.channel.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
		c.logger.Debug("bound queue", "queue", c.queue, "routing_key", key)
	}
	return nil
}

// Run consumes until ctx is cancelled or Close is called.
func (c *RabbitMQConsumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrConsumerRunning
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.logger.Info("consuming events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.settle(d, c.handle(ctx, d))
		}
	}
}

func (c *RabbitMQConsumer) handle(ctx context.Context, d amqp.Delivery) error {
	var event ConsumedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		// Not an outbox envelope; retrying cannot help.
		c.logger.Error("undecodable delivery", "routing_key", d.RoutingKey, "error", err)
		return errUndecodable
	}
	if event.RoutingKey == "" {
		event.RoutingKey = d.RoutingKey
	}
	return c.registry.Dispatch(ctx, &event)
}

var errUndecodable = errors.New("undecodable delivery")

// settle acks a handled delivery, requeues a first failure and
// dead-letters the rest.
func (c *RabbitMQConsumer) settle(d amqp.Delivery, err error) {
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack delivery", "error", ackErr)
		}
		return
	}

	requeue := !d.Redelivered && !errors.Is(err, errUndecodable)
	c.logger.Warn("delivery failed",
		"routing_key", d.RoutingKey,
		"requeue", requeue,
		"error", err,
	)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		c.logger.Error("failed to nack delivery", "error", nackErr)
	}
}

// Check reports whether the broker connection is still open.
func (c *RabbitMQConsumer) Check(_ context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq consumer connection closed")
	}
	return nil
}

// Close stops Run and closes the channel and connection.
func (c *RabbitMQConsumer) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("error closing channel", "error", err)
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(name, "topic", true, false, false, false, nil)
}
