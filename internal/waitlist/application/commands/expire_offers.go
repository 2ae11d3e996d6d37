package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultSweepLimit bounds how many offers one sweep loads.
const DefaultSweepLimit = 100

// ExpireOffersCommand runs one expiry sweep.
type ExpireOffersCommand struct {
	Limit int
}

// ExpireOffersResult counts what the sweep did.
type ExpireOffersResult struct {
	Due     int
	Expired int
	Failed  int
}

// ExpireOffersHandler expires holding offers past their deadline along
// with their pending invitations.
type ExpireOffersHandler struct {
	offers     domain.SlotOfferRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedApplication.Clock
	logger     *slog.Logger
	metrics    observability.Metrics
}

// NewExpireOffersHandler creates an ExpireOffersHandler.
func NewExpireOffersHandler(
	offers domain.SlotOfferRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
	logger *slog.Logger,
) *ExpireOffersHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireOffersHandler{
		offers:     offers,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
		logger:     logger,
		metrics:    observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *ExpireOffersHandler) WithMetrics(m observability.Metrics) *ExpireOffersHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes one sweep. Each offer expires in its own unit of work;
// a failure is logged and the sweep moves on.
func (h *ExpireOffersHandler) Handle(ctx context.Context, cmd ExpireOffersCommand) (result *ExpireOffersResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "waitlist.expire_offers")
	defer func() { observability.EndSpan(span, err) }()

	limit := cmd.Limit
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	now := h.clock.Now()

	due, err := h.offers.ListDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	result = &ExpireOffersResult{Due: len(due)}
	for _, id := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		expired, err := h.expireOne(ctx, id)
		if err != nil {
			result.Failed++
			h.logger.Error("failed to expire slot offer", "offer_id", id, "error", err)
			continue
		}
		if expired {
			result.Expired++
		}
	}

	span.SetAttributes(attribute.Int("expired", result.Expired))
	if result.Expired > 0 {
		h.metrics.Counter(observability.MetricOffersExpired, int64(result.Expired))
		h.logger.Info("expired slot offers", "count", result.Expired)
	}
	return result, nil
}

func (h *ExpireOffersHandler) expireOne(ctx context.Context, id uuid.UUID) (bool, error) {
	now := h.clock.Now()
	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (bool, error) {
		offer, err := h.offers.FindByID(txCtx, id)
		if err != nil {
			return false, err
		}
		if !offer.Expire(now) {
			return false, nil
		}
		if err := h.offers.Save(txCtx, offer); err != nil {
			if errors.Is(err, sharedDomain.ErrConcurrentUpdate) {
				return false, nil
			}
			return false, err
		}
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, offer, sharedApplication.NewEventMetadata(txCtx, uuid.Nil)); err != nil {
			return false, err
		}
		return true, nil
	})
}
