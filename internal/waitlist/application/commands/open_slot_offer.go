package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	schedulingApp "github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = observability.Tracer("chiroflow/waitlist")

// Defaults used when the handler is built with zero values.
const (
	DefaultInvitationTTL       = 2 * time.Hour
	DefaultInvitationBatchSize = 5
)

// OpenSlotOfferCommand shops a freed interval to the waitlist.
type OpenSlotOfferCommand struct {
	OwnerID             uuid.UUID
	ServiceTypeID       uuid.UUID
	SourceAppointmentID *uuid.UUID
	StartsAt            time.Time
	Duration            time.Duration
	MinimumNotice       time.Duration
	ActorID             uuid.UUID
}

// OpenSlotOfferResult describes the opened offer.
type OpenSlotOfferResult struct {
	OfferID     uuid.UUID
	Status      string
	ExpiresAt   time.Time
	Invitations int
}

// OpenSlotOfferHandler handles OpenSlotOfferCommand. It also implements
// the scheduling OfferOpener port so a cancellation opens its offer in
// the same unit of work.
type OpenSlotOfferHandler struct {
	entries    domain.WaitlistEntryRepository
	offers     domain.SlotOfferRepository
	tokens     schedulingApp.TokenIssuer
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedApplication.Clock
	ttl        time.Duration
	batchSize  int
	metrics    observability.Metrics
}

// NewOpenSlotOfferHandler creates an OpenSlotOfferHandler.
func NewOpenSlotOfferHandler(
	entries domain.WaitlistEntryRepository,
	offers domain.SlotOfferRepository,
	tokens schedulingApp.TokenIssuer,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
	ttl time.Duration,
	batchSize int,
) *OpenSlotOfferHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	if batchSize <= 0 {
		batchSize = DefaultInvitationBatchSize
	}
	return &OpenSlotOfferHandler{
		entries:    entries,
		offers:     offers,
		tokens:     tokens,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
		ttl:        ttl,
		batchSize:  batchSize,
		metrics:    observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *OpenSlotOfferHandler) WithMetrics(m observability.Metrics) *OpenSlotOfferHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// OpenOffer implements schedulingApp.OfferOpener.
func (h *OpenSlotOfferHandler) OpenOffer(ctx context.Context, slot schedulingApp.FreedSlot) (uuid.UUID, error) {
	source := slot.SourceAppointmentID
	result, err := h.Handle(ctx, OpenSlotOfferCommand{
		OwnerID:             slot.OwnerID,
		ServiceTypeID:       slot.ServiceTypeID,
		SourceAppointmentID: &source,
		StartsAt:            slot.StartsAt,
		Duration:            slot.Duration,
		MinimumNotice:       slot.MinimumNotice,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return result.OfferID, nil
}

// Handle executes OpenSlotOfferCommand. With no matching entries the
// offer stays open until it expires.
func (h *OpenSlotOfferHandler) Handle(ctx context.Context, cmd OpenSlotOfferCommand) (result *OpenSlotOfferResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.open_offer",
		attribute.String("owner_id", cmd.OwnerID.String()),
		attribute.String("service_type_id", cmd.ServiceTypeID.String()))
	defer func() { observability.EndSpan(span, err) }()

	now := h.clock.Now()
	expiresAt := domain.OfferExpiry(now, h.ttl, cmd.StartsAt, cmd.MinimumNotice)

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*OpenSlotOfferResult, error) {
		offer, err := domain.NewSlotOffer(cmd.OwnerID, cmd.ServiceTypeID, cmd.SourceAppointmentID,
			cmd.StartsAt, cmd.Duration, expiresAt, now)
		if err != nil {
			return nil, err
		}

		queue, err := h.entries.NextInQueue(txCtx, cmd.ServiceTypeID, cmd.OwnerID, h.batchSize)
		if err != nil {
			return nil, err
		}
		issued, err := offer.Invite(queue, now)
		if err != nil {
			return nil, err
		}

		if err := h.offers.Create(txCtx, offer); err != nil {
			return nil, err
		}

		for _, inv := range issued {
			token, err := h.tokens.IssueToken(txCtx, schedulingApp.IssueTokenRequest{
				SubjectKind: accessDomain.SubjectInvitation,
				SubjectID:   inv.ID(),
				ActionClass: accessDomain.ClassInvitationResponse,
				ExpiresAt:   inv.ExpiresAt(),
			})
			if err != nil {
				return nil, err
			}
			offer.AttachInvitationToken(inv.ID(), token)
		}

		if err := outbox.SaveEvents(txCtx, h.outboxRepo, offer, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)); err != nil {
			return nil, err
		}

		h.metrics.Counter(observability.MetricOffersOpened, 1)
		return &OpenSlotOfferResult{
			OfferID:     offer.ID(),
			Status:      string(offer.Status()),
			ExpiresAt:   offer.ExpiresAt(),
			Invitations: len(issued),
		}, nil
	})
}
