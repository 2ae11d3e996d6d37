package commands

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/application"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// InvitationResult is the structured answer to an invitation response.
// Losing the race is an outcome, not an error.
type InvitationResult struct {
	Outcome       domain.Outcome
	OfferID       uuid.UUID
	InvitationID  uuid.UUID
	AppointmentID *uuid.UUID
}

// AcceptInvitationCommand claims an offered slot for the invited patient.
type AcceptInvitationCommand struct {
	InvitationID uuid.UUID
	ActorID      uuid.UUID
}

// AcceptInvitationHandler handles AcceptInvitationCommand.
type AcceptInvitationHandler struct {
	offers     domain.SlotOfferRepository
	entries    domain.WaitlistEntryRepository
	booker     application.AppointmentBooker
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedApplication.Clock
	metrics    observability.Metrics
}

// NewAcceptInvitationHandler creates an AcceptInvitationHandler.
func NewAcceptInvitationHandler(
	offers domain.SlotOfferRepository,
	entries domain.WaitlistEntryRepository,
	booker application.AppointmentBooker,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *AcceptInvitationHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &AcceptInvitationHandler{
		offers:     offers,
		entries:    entries,
		booker:     booker,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
		metrics:    observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *AcceptInvitationHandler) WithMetrics(m observability.Metrics) *AcceptInvitationHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes AcceptInvitationCommand.
//
// The offer version is the serialization point: of N concurrent accepts
// exactly one locks the offer; the others reload it and report
// OutcomeRaceLost. The winner then books with the offer as hold override.
// The booking runs in a nested unit of work; when the ledger no longer
// has the interval only the booking's savepoint is rolled back and the
// offer is cancelled in the same transaction.
func (h *AcceptInvitationHandler) Handle(ctx context.Context, cmd AcceptInvitationCommand) (result *InvitationResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.accept",
		attribute.String("invitation_id", cmd.InvitationID.String()))
	defer func() {
		if result != nil {
			span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
			h.metrics.Counter(observability.MetricInvitationOutcome, 1, observability.T("outcome", string(result.Outcome)))
		}
		observability.EndSpan(span, err)
	}()

	now := h.clock.Now()

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*InvitationResult, error) {
		offer, err := h.offers.FindByInvitationID(txCtx, cmd.InvitationID)
		if err != nil {
			return nil, err
		}
		res := &InvitationResult{OfferID: offer.ID(), InvitationID: cmd.InvitationID}

		changed, err := offer.Accept(cmd.InvitationID, now)
		if err != nil {
			return h.refused(txCtx, offer, res, err, cmd.ActorID)
		}
		if !changed {
			res.Outcome = domain.OutcomeAccepted
			res.AppointmentID = offer.AppointmentID()
			return res, nil
		}

		if err := h.offers.Lock(txCtx, offer); err != nil {
			if errors.Is(err, sharedDomain.ErrConcurrentUpdate) {
				return h.reloadOutcome(txCtx, res)
			}
			return nil, err
		}

		inv, _ := offer.Invitation(cmd.InvitationID)
		offerID := offer.ID()
		appointmentID, err := h.booker.BookHeld(txCtx, application.HeldBooking{
			OwnerID:       offer.OwnerID(),
			PatientID:     inv.PatientID(),
			ServiceTypeID: offer.ServiceTypeID(),
			StartsAt:      offer.StartsAt(),
			HoldOverride:  &offerID,
			ActorID:       cmd.ActorID,
		})
		if errors.Is(err, schedulingDomain.ErrSlotConflict) {
			return h.withdraw(txCtx, res, cmd.ActorID, now)
		}
		if err != nil {
			return nil, err
		}

		offer.AttachAppointment(appointmentID, now)
		if err := h.offers.Save(txCtx, offer); err != nil {
			return nil, err
		}
		if err := h.resolveEntry(txCtx, inv.EntryID(), now); err != nil {
			return nil, err
		}
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, offer, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)); err != nil {
			return nil, err
		}

		res.Outcome = domain.OutcomeAccepted
		res.AppointmentID = &appointmentID
		return res, nil
	})
}

// refused persists a lazy expiry and maps a domain refusal to an outcome.
func (h *AcceptInvitationHandler) refused(ctx context.Context, offer *domain.SlotOffer, res *InvitationResult, cause error, actorID uuid.UUID) (*InvitationResult, error) {
	switch {
	case errors.Is(cause, domain.ErrRaceLost):
		res.Outcome = domain.OutcomeRaceLost
	case errors.Is(cause, domain.ErrOfferExpired):
		res.Outcome = domain.OutcomeExpired
	case errors.Is(cause, domain.ErrOfferWithdrawn):
		res.Outcome = domain.OutcomeSlotUnavailable
	default:
		return nil, cause
	}

	if len(offer.DomainEvents()) == 0 {
		return res, nil
	}
	if err := h.offers.Save(ctx, offer); err != nil {
		if errors.Is(err, sharedDomain.ErrConcurrentUpdate) {
			return res, nil
		}
		return nil, err
	}
	if err := outbox.SaveEvents(ctx, h.outboxRepo, offer, sharedApplication.NewEventMetadata(ctx, actorID)); err != nil {
		return nil, err
	}
	return res, nil
}

// reloadOutcome reads the state another writer committed.
func (h *AcceptInvitationHandler) reloadOutcome(ctx context.Context, res *InvitationResult) (*InvitationResult, error) {
	current, err := h.offers.FindByID(ctx, res.OfferID)
	if err != nil {
		return nil, err
	}
	switch current.Status() {
	case domain.OfferAccepted:
		if id := current.AcceptedInvitationID(); id != nil && *id == res.InvitationID {
			res.Outcome = domain.OutcomeAccepted
			res.AppointmentID = current.AppointmentID()
			return res, nil
		}
		res.Outcome = domain.OutcomeRaceLost
	case domain.OfferExpired:
		res.Outcome = domain.OutcomeExpired
	case domain.OfferCancelled:
		res.Outcome = domain.OutcomeSlotUnavailable
	default:
		return nil, sharedDomain.ErrConcurrentUpdate
	}
	return res, nil
}

func (h *AcceptInvitationHandler) resolveEntry(ctx context.Context, entryID uuid.UUID, now time.Time) error {
	entry, err := h.entries.FindByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status() != domain.EntryActive {
		return nil
	}
	if err := entry.Resolve(now); err != nil {
		return err
	}
	return h.entries.Update(ctx, entry)
}

// withdraw cancels an offer whose interval the ledger no longer has. The
// accepted copy was never saved, so the stored offer is still holding.
func (h *AcceptInvitationHandler) withdraw(ctx context.Context, res *InvitationResult, actorID uuid.UUID, now time.Time) (*InvitationResult, error) {
	res.Outcome = domain.OutcomeSlotUnavailable
	offer, err := h.offers.FindByID(ctx, res.OfferID)
	if err != nil {
		return nil, err
	}
	if !offer.Status().IsHolding() {
		return res, nil
	}
	if err := offer.Cancel("slot no longer available", now); err != nil {
		return nil, err
	}
	if err := h.offers.Save(ctx, offer); err != nil {
		return nil, err
	}
	if err := outbox.SaveEvents(ctx, h.outboxRepo, offer, sharedApplication.NewEventMetadata(ctx, actorID)); err != nil {
		return nil, err
	}
	return res, nil
}
