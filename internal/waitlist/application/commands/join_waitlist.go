package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// JoinWaitlistCommand queues a patient for a service. A nil OwnerID
// accepts any owner offering the service.
type JoinWaitlistCommand struct {
	PatientID     uuid.UUID
	Name          string
	Email         string
	Phone         string
	ServiceTypeID uuid.UUID
	OwnerID       *uuid.UUID
}

// JoinWaitlistResult is the created entry.
type JoinWaitlistResult struct {
	EntryID   uuid.UUID
	Status    string
	CreatedAt time.Time
}

// JoinWaitlistHandler handles JoinWaitlistCommand.
type JoinWaitlistHandler struct {
	entries  domain.WaitlistEntryRepository
	services schedulingDomain.ServiceTypeRepository
	clock    sharedApplication.Clock
}

// NewJoinWaitlistHandler creates a JoinWaitlistHandler.
func NewJoinWaitlistHandler(
	entries domain.WaitlistEntryRepository,
	services schedulingDomain.ServiceTypeRepository,
	clock sharedApplication.Clock,
) *JoinWaitlistHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &JoinWaitlistHandler{entries: entries, services: services, clock: clock}
}

// Handle executes JoinWaitlistCommand.
func (h *JoinWaitlistHandler) Handle(ctx context.Context, cmd JoinWaitlistCommand) (result *JoinWaitlistResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.join",
		attribute.String("service_type_id", cmd.ServiceTypeID.String()))
	defer func() { observability.EndSpan(span, err) }()

	service, err := h.services.FindByID(ctx, cmd.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	if !service.IsActive() || (cmd.OwnerID != nil && service.OwnerID() != *cmd.OwnerID) {
		return nil, schedulingDomain.ErrServiceTypeNotFound
	}

	contact, err := domain.NewContact(cmd.Name, cmd.Email, cmd.Phone)
	if err != nil {
		return nil, err
	}
	entry, err := domain.NewWaitlistEntry(cmd.PatientID, contact, cmd.ServiceTypeID, cmd.OwnerID, h.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := h.entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	return &JoinWaitlistResult{
		EntryID:   entry.ID(),
		Status:    string(entry.Status()),
		CreatedAt: entry.CreatedAt(),
	}, nil
}
