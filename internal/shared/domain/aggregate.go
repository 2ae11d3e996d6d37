package domain

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries identity and audit timestamps. Timestamps are UTC at
// second precision so SQLite and PostgreSQL compare them identically.
type BaseEntity struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
}

// NewBaseEntityAt creates an entity stamped with now.
func NewBaseEntityAt(id uuid.UUID, now time.Time) BaseEntity {
	ts := NormalizeTime(now)
	return BaseEntity{id: id, createdAt: ts, updatedAt: ts}
}

// RehydrateBaseEntity recreates an entity from a stored row.
func RehydrateBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{id: id, createdAt: createdAt.UTC(), updatedAt: updatedAt.UTC()}
}

func (e BaseEntity) ID() uuid.UUID        { return e.id }
func (e BaseEntity) CreatedAt() time.Time { return e.createdAt }
func (e BaseEntity) UpdatedAt() time.Time { return e.updatedAt }

func (e *BaseEntity) Touch(now time.Time) {
	e.updatedAt = NormalizeTime(now)
}

// NormalizeTime converts t to UTC and drops sub-second precision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// BaseAggregateRoot collects pending domain events and the stored
// version. Version is 1 for a new aggregate; repositories write only when
// the row still holds the version that was read, then call SetVersion.
type BaseAggregateRoot struct {
	BaseEntity
	domainEvents []DomainEvent
	version      int
}

// NewBaseAggregateRoot creates an aggregate with a fresh id.
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntityAt(uuid.New(), now),
		version:    1,
	}
}

// RehydrateBaseAggregateRoot recreates an aggregate from a stored row.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: entity, version: version}
}

func (a *BaseAggregateRoot) DomainEvents() []DomainEvent { return a.domainEvents }
func (a *BaseAggregateRoot) ClearDomainEvents()          { a.domainEvents = nil }
func (a *BaseAggregateRoot) Version() int                { return a.version }
func (a *BaseAggregateRoot) SetVersion(version int)      { a.version = version }

// AddDomainEvent records event as pending. Events built on *BaseEvent take
// the aggregate's last update time as their occurrence time, so the
// transition and its event agree on when it happened. Callers Touch
// before recording.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	if s, ok := event.(stamper); ok {
		s.stamp(a.UpdatedAt())
	}
	a.domainEvents = append(a.domainEvents, event)
}
