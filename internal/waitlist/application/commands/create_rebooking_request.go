package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	schedulingApp "github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultRebookingTTL is the response window when none is configured.
const DefaultRebookingTTL = 72 * time.Hour

// CreateRebookingRequestCommand proposes staff-chosen times to one
// patient. A zero ExpiresAt uses the configured window.
type CreateRebookingRequestCommand struct {
	OwnerID               uuid.UUID
	PatientID             uuid.UUID
	ServiceTypeID         uuid.UUID
	OriginalAppointmentID *uuid.UUID
	StartsAt              []time.Time
	ExpiresAt             time.Time
	Notes                 string
	ActorID               uuid.UUID
}

// CreateRebookingRequestResult carries the raw response token for the
// caller to deliver.
type CreateRebookingRequestResult struct {
	RequestID     uuid.UUID
	ExpiresAt     time.Time
	TimeSlots     []domain.RebookingTimeSlot
	ResponseToken string
}

// CreateRebookingRequestHandler handles CreateRebookingRequestCommand.
type CreateRebookingRequestHandler struct {
	requests   domain.RebookingRequestRepository
	services   schedulingDomain.ServiceTypeRepository
	tokens     schedulingApp.TokenIssuer
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedApplication.Clock
	ttl        time.Duration
}

// NewCreateRebookingRequestHandler creates a CreateRebookingRequestHandler.
func NewCreateRebookingRequestHandler(
	requests domain.RebookingRequestRepository,
	services schedulingDomain.ServiceTypeRepository,
	tokens schedulingApp.TokenIssuer,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
	ttl time.Duration,
) *CreateRebookingRequestHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	if ttl <= 0 {
		ttl = DefaultRebookingTTL
	}
	return &CreateRebookingRequestHandler{
		requests:   requests,
		services:   services,
		tokens:     tokens,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
		ttl:        ttl,
	}
}

// Handle executes CreateRebookingRequestCommand.
func (h *CreateRebookingRequestHandler) Handle(ctx context.Context, cmd CreateRebookingRequestCommand) (result *CreateRebookingRequestResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.create_rebooking",
		attribute.String("owner_id", cmd.OwnerID.String()),
		attribute.Int("time_slots", len(cmd.StartsAt)))
	defer func() { observability.EndSpan(span, err) }()

	now := h.clock.Now()
	service, err := h.services.FindByID(ctx, cmd.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	if service.OwnerID() != cmd.OwnerID || !service.IsActive() {
		return nil, schedulingDomain.ErrServiceTypeNotFound
	}

	expiresAt := cmd.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(h.ttl)
	}

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*CreateRebookingRequestResult, error) {
		request, err := domain.NewRebookingRequest(cmd.OwnerID, cmd.PatientID, service.ID(),
			cmd.OriginalAppointmentID, cmd.StartsAt, service.Duration(), expiresAt, cmd.Notes, now)
		if err != nil {
			return nil, err
		}
		if err := h.requests.Create(txCtx, request); err != nil {
			return nil, err
		}

		token, err := h.tokens.IssueToken(txCtx, schedulingApp.IssueTokenRequest{
			SubjectKind: accessDomain.SubjectRebookingRequest,
			SubjectID:   request.ID(),
			ActionClass: accessDomain.ClassRebookingResponse,
			ExpiresAt:   request.ExpiresAt(),
		})
		if err != nil {
			return nil, err
		}
		request.AttachResponseToken(token)

		if err := outbox.SaveEvents(txCtx, h.outboxRepo, request, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)); err != nil {
			return nil, err
		}
		return &CreateRebookingRequestResult{
			RequestID:     request.ID(),
			ExpiresAt:     request.ExpiresAt(),
			TimeSlots:     request.Slots(),
			ResponseToken: token,
		}, nil
	})
}
