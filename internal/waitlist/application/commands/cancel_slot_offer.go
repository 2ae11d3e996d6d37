package commands

import (
	"context"

	"github.com/google/uuid"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// CancelSlotOfferCommand withdraws an offer on staff request.
type CancelSlotOfferCommand struct {
	OfferID uuid.UUID
	Reason  string
	ActorID uuid.UUID
}

// CancelSlotOfferHandler handles CancelSlotOfferCommand.
type CancelSlotOfferHandler struct {
	offers     domain.SlotOfferRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedApplication.Clock
}

// NewCancelSlotOfferHandler creates a CancelSlotOfferHandler.
func NewCancelSlotOfferHandler(
	offers domain.SlotOfferRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *CancelSlotOfferHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &CancelSlotOfferHandler{offers: offers, outboxRepo: outboxRepo, uow: uow, clock: clock}
}

// Handle executes CancelSlotOfferCommand. Accepted or expired offers
// return ErrInvalidTransition.
func (h *CancelSlotOfferHandler) Handle(ctx context.Context, cmd CancelSlotOfferCommand) (err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.cancel_offer",
		attribute.String("offer_id", cmd.OfferID.String()))
	defer func() { observability.EndSpan(span, err) }()

	now := h.clock.Now()
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		offer, err := h.offers.FindByID(txCtx, cmd.OfferID)
		if err != nil {
			return err
		}
		if err := offer.Cancel(cmd.Reason, now); err != nil {
			return err
		}
		if err := h.offers.Save(txCtx, offer); err != nil {
			return err
		}
		return outbox.SaveEvents(txCtx, h.outboxRepo, offer, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID))
	})
}
