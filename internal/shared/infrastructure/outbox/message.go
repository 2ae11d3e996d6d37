package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// Message represents an outbox message ready for publishing.
// Payload holds the full Envelope so that consumers receive event
// identity and metadata alongside the event body.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	AggregateType    string
	AggregateID      uuid.UUID
	EventType        string
	RoutingKey       string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// Envelope is the wire format published to the broker. It mirrors
// eventbus.ConsumedEvent.
type Envelope struct {
	EventID       uuid.UUID            `json:"event_id"`
	AggregateID   uuid.UUID            `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	RoutingKey    string               `json:"routing_key"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Payload       json.RawMessage      `json:"payload"`
	Metadata      domain.EventMetadata `json:"metadata"`
}

// NewMessage creates an outbox message from a domain event.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event.RoutingKey(), err)
	}

	payload, err := json.Marshal(Envelope{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       body,
		Metadata:      event.Metadata(),
	})
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     domain.NormalizeTime(event.OccurredAt()),
	}, nil
}

// MessagesFromEvents stamps metadata on the events and converts them to
// outbox messages.
func MessagesFromEvents(events []domain.DomainEvent, metadata domain.EventMetadata) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		if setter, ok := event.(interface{ SetMetadata(domain.EventMetadata) }); ok {
			setter.SetMetadata(metadata)
		}
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// IsPublished returns true if the message has been published.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// CanRetry returns true if the message can be retried.
func (m *Message) CanRetry(maxRetries int) bool {
	return m.RetryCount < maxRetries
}

type eventSource interface {
	DomainEvents() []domain.DomainEvent
	ClearDomainEvents()
}

// SaveEvents writes the aggregate's pending events to repo and clears
// them. Call it with the unit-of-work context so the events commit with
// the state change.
func SaveEvents(ctx context.Context, repo Repository, aggregate eventSource, metadata domain.EventMetadata) error {
	events := aggregate.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	msgs, err := MessagesFromEvents(events, metadata)
	if err != nil {
		return err
	}
	if err := repo.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	aggregate.ClearDomainEvents()
	return nil
}
