package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

// NewEventMetadata builds the metadata stamped on the events of one
// command. The request's correlation and request ids are reused when they
// are UUIDs, so relayed notifications can be joined with request logs.
// A nil actorID falls back to the actor on the context.
func NewEventMetadata(ctx context.Context, actorID uuid.UUID) domain.EventMetadata {
	if actorID == uuid.Nil {
		actorID = contextUUID(observability.ActorIDFromContext(ctx), uuid.Nil)
	}
	return domain.EventMetadata{
		CorrelationID: contextUUID(observability.CorrelationIDFromContext(ctx), uuid.New()),
		CausationID:   contextUUID(observability.RequestIDFromContext(ctx), uuid.New()),
		ActorID:       actorID,
	}
}

func contextUUID(raw string, fallback uuid.UUID) uuid.UUID {
	if raw == "" {
		return fallback
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return fallback
	}
	return id
}
