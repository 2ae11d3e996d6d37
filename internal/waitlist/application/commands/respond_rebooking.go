package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/application"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// RebookingResponse is the patient's answer to a rebooking request.
type RebookingResponse string

const (
	ResponseAccept          RebookingResponse = "accept"
	ResponseDecline         RebookingResponse = "decline"
	ResponseRequestCallback RebookingResponse = "request_callback"
)

// RespondRebookingCommand answers a rebooking request. SelectedSlotID is
// required for accept.
type RespondRebookingCommand struct {
	RequestID      uuid.UUID
	Response       RebookingResponse
	SelectedSlotID *uuid.UUID
	Notes          string
	ActorID        uuid.UUID
}

// RebookingResult is the structured answer to a rebooking response.
type RebookingResult struct {
	Outcome       domain.Outcome
	RequestID     uuid.UUID
	AppointmentID *uuid.UUID
}

// RespondRebookingHandler handles RespondRebookingCommand.
type RespondRebookingHandler struct {
	requests   domain.RebookingRequestRepository
	booker     application.AppointmentBooker
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedApplication.Clock
}

// NewRespondRebookingHandler creates a RespondRebookingHandler.
func NewRespondRebookingHandler(
	requests domain.RebookingRequestRepository,
	booker application.AppointmentBooker,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *RespondRebookingHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &RespondRebookingHandler{
		requests:   requests,
		booker:     booker,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
	}
}

// Handle executes RespondRebookingCommand. Accepting books the chosen
// slot through the ledger; a conflict returns ErrSlotConflict and the
// request stays pending so another slot can be picked. A request past
// its deadline is expired and reported as OutcomeExpired.
func (h *RespondRebookingHandler) Handle(ctx context.Context, cmd RespondRebookingCommand) (result *RebookingResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.respond_rebooking",
		attribute.String("request_id", cmd.RequestID.String()),
		attribute.String("response", string(cmd.Response)))
	defer func() { observability.EndSpan(span, err) }()

	switch cmd.Response {
	case ResponseAccept:
		if cmd.SelectedSlotID == nil {
			return nil, sharedDomain.NewValidationError("selected_slot_id", "is required to accept")
		}
	case ResponseDecline, ResponseRequestCallback:
	default:
		return nil, sharedDomain.NewValidationError("response", "unknown response %q", cmd.Response)
	}

	now := h.clock.Now()

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*RebookingResult, error) {
		request, err := h.requests.FindByID(txCtx, cmd.RequestID)
		if err != nil {
			return nil, err
		}
		res := &RebookingResult{RequestID: request.ID()}
		meta := sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)

		if err := request.CheckRespondable(now); err != nil {
			if !errors.Is(err, domain.ErrRebookingExpired) {
				return nil, err
			}
			res.Outcome = domain.OutcomeExpired
			if len(request.DomainEvents()) == 0 {
				return res, nil
			}
			if err := h.requests.Save(txCtx, request); err != nil {
				return nil, err
			}
			return res, outbox.SaveEvents(txCtx, h.outboxRepo, request, meta)
		}

		switch cmd.Response {
		case ResponseAccept:
			slot, err := request.Slot(*cmd.SelectedSlotID)
			if err != nil {
				return nil, err
			}
			appointmentID, err := h.booker.BookHeld(txCtx, application.HeldBooking{
				OwnerID:       request.OwnerID(),
				PatientID:     request.PatientID(),
				ServiceTypeID: request.ServiceTypeID(),
				StartsAt:      slot.StartsAt,
				ByStaff:       true,
				ActorID:       cmd.ActorID,
			})
			if err != nil {
				return nil, err
			}
			if err := request.MarkAccepted(slot.ID, appointmentID, cmd.Notes, now); err != nil {
				return nil, err
			}
			res.Outcome = domain.OutcomeAccepted
			res.AppointmentID = &appointmentID
		case ResponseDecline:
			if err := request.Decline(cmd.Notes, now); err != nil {
				return nil, err
			}
			res.Outcome = domain.OutcomeDeclined
		case ResponseRequestCallback:
			if err := request.RequestCallback(cmd.Notes, now); err != nil {
				return nil, err
			}
			res.Outcome = domain.OutcomeCallbackRequested
		}

		if err := h.requests.Save(txCtx, request); err != nil {
			return nil, err
		}
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, request, meta); err != nil {
			return nil, err
		}
		return res, nil
	})
}
