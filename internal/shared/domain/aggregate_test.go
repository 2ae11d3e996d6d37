package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

type slotHeld struct {
	domain.BaseEvent
}

func newSlotHeld(aggregateID uuid.UUID) *slotHeld {
	return &slotHeld{BaseEvent: domain.NewBaseEvent(aggregateID, "slot", "test.slot.held")}
}

func TestNewBaseAggregateRoot(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	agg := domain.NewBaseAggregateRoot(now)

	assert.NotEqual(t, uuid.Nil, agg.ID())
	assert.Equal(t, 1, agg.Version())
	assert.Equal(t, now, agg.CreatedAt())
	assert.Empty(t, agg.DomainEvents())
}

func TestBaseAggregateRoot_StampsEventsWithAggregateTime(t *testing.T) {
	created := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	agg := domain.NewBaseAggregateRoot(created)

	first := newSlotHeld(agg.ID())
	agg.AddDomainEvent(first)

	agg.Touch(created.Add(90 * time.Minute))
	agg.AddDomainEvent(newSlotHeld(agg.ID()))

	events := agg.DomainEvents()
	assert.Len(t, events, 2)
	assert.Equal(t, first.EventID(), events[0].EventID())
	assert.Equal(t, created, events[0].OccurredAt())
	assert.Equal(t, created.Add(90*time.Minute), events[1].OccurredAt())

	agg.ClearDomainEvents()
	assert.Empty(t, agg.DomainEvents())
}

func TestBaseAggregateRoot_Version(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	agg := domain.NewBaseAggregateRoot(now)

	agg.SetVersion(7)
	assert.Equal(t, 7, agg.Version())

	rehydrated := domain.RehydrateBaseAggregateRoot(agg.BaseEntity, 7)
	assert.Equal(t, 7, rehydrated.Version())
	assert.Equal(t, agg.ID(), rehydrated.ID())
}

func TestNewBaseEntityAt_NormalizesTimestamps(t *testing.T) {
	id := uuid.New()
	local := time.Date(2026, 3, 2, 9, 30, 15, 987654321, time.FixedZone("EST", -5*3600))

	entity := domain.NewBaseEntityAt(id, local)

	assert.Equal(t, id, entity.ID())
	assert.Equal(t, time.Date(2026, 3, 2, 14, 30, 15, 0, time.UTC), entity.CreatedAt())
	assert.Equal(t, time.UTC, entity.CreatedAt().Location())
}

func TestBaseEntity_Touch(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entity := domain.NewBaseEntityAt(uuid.New(), created)

	entity.Touch(created.Add(time.Hour))

	assert.Equal(t, created.Add(time.Hour), entity.UpdatedAt())
	assert.Equal(t, created, entity.CreatedAt())
}
