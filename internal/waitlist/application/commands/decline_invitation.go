package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// DeclineInvitationCommand turns an offered slot down.
type DeclineInvitationCommand struct {
	InvitationID uuid.UUID
	ActorID      uuid.UUID
}

// DeclineInvitationHandler handles DeclineInvitationCommand.
type DeclineInvitationHandler struct {
	offers     domain.SlotOfferRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedApplication.Clock
	metrics    observability.Metrics
}

// NewDeclineInvitationHandler creates a DeclineInvitationHandler.
func NewDeclineInvitationHandler(
	offers domain.SlotOfferRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *DeclineInvitationHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &DeclineInvitationHandler{
		offers:     offers,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
		metrics:    observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *DeclineInvitationHandler) WithMetrics(m observability.Metrics) *DeclineInvitationHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes DeclineInvitationCommand. Only the invitation row is
// written so a decline never races an accept on the offer version.
func (h *DeclineInvitationHandler) Handle(ctx context.Context, cmd DeclineInvitationCommand) (result *InvitationResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.decline",
		attribute.String("invitation_id", cmd.InvitationID.String()))
	defer func() {
		if result != nil {
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
		meta := sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)

		changed, err := offer.Decline(cmd.InvitationID, now)
		if errors.Is(err, domain.ErrOfferExpired) {
			res.Outcome = domain.OutcomeExpired
			if offer.Status() != domain.OfferExpired || len(offer.DomainEvents()) == 0 {
				return res, nil
			}
			if err := h.offers.Save(txCtx, offer); err != nil {
				if errors.Is(err, sharedDomain.ErrConcurrentUpdate) {
					return res, nil
				}
				return nil, err
			}
			return res, outbox.SaveEvents(txCtx, h.outboxRepo, offer, meta)
		}
		if err != nil {
			return nil, err
		}

		res.Outcome = domain.OutcomeDeclined
		if !changed {
			return res, nil
		}

		inv, _ := offer.Invitation(cmd.InvitationID)
		written, err := h.offers.SaveInvitationResponse(txCtx, inv)
		if err != nil {
			return nil, err
		}
		if !written {
			// An accept expired the invitation after we loaded it.
			res.Outcome = domain.OutcomeExpired
			return res, nil
		}
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, offer, meta); err != nil {
			return nil, err
		}
		return res, nil
	})
}
