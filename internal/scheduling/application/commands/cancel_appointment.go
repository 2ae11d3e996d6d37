package commands

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// CancelAppointmentCommand cancels an appointment. A nil PatientID is a
// staff cancellation.
type CancelAppointmentCommand struct {
	AppointmentID uuid.UUID
	Reason        string
	PatientID     *uuid.UUID
	ActorID       uuid.UUID
}

// CancelAppointmentResult reports the fee evaluation and whether the freed
// interval was offered to the waitlist.
type CancelAppointmentResult struct {
	AppointmentID uuid.UUID
	Evaluation    domain.CancellationEvaluation
	OfferOpened   bool
	OfferID       uuid.UUID
}

// CancelAppointmentHandler handles CancelAppointmentCommand.
type CancelAppointmentHandler struct {
	appointments domain.AppointmentRepository
	hours        domain.BusinessHoursRepository
	offers       application.OfferOpener
	policy       domain.ReschedulePolicy
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	clock        sharedApplication.Clock
	metrics      observability.Metrics
}

// NewCancelAppointmentHandler creates a CancelAppointmentHandler. offers
// may be nil, in which case freed slots are not shopped.
func NewCancelAppointmentHandler(
	appointments domain.AppointmentRepository,
	hours domain.BusinessHoursRepository,
	offers application.OfferOpener,
	policy domain.ReschedulePolicy,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *CancelAppointmentHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &CancelAppointmentHandler{
		appointments: appointments,
		hours:        hours,
		offers:       offers,
		policy:       policy,
		outboxRepo:   outboxRepo,
		uow:          uow,
		clock:        clock,
		metrics:      observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *CancelAppointmentHandler) WithMetrics(m observability.Metrics) *CancelAppointmentHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes CancelAppointmentCommand. The cancellation and the slot
// offer commit together.
func (h *CancelAppointmentHandler) Handle(ctx context.Context, cmd CancelAppointmentCommand) (result *CancelAppointmentResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "scheduling.cancel",
		attribute.String("appointment_id", cmd.AppointmentID.String()))
	defer func() { observability.EndSpan(span, err) }()

	now := h.clock.Now()

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*CancelAppointmentResult, error) {
		appointment, err := h.appointments.FindByID(txCtx, cmd.AppointmentID)
		if err != nil {
			return nil, err
		}
		if err := h.policy.CheckCancellation(appointment, cmd.PatientID); err != nil {
			return nil, err
		}

		eval := h.policy.EvaluateCancellation(appointment, now)
		if err := appointment.Cancel(cmd.Reason, eval, now); err != nil {
			return nil, err
		}
		if err := h.appointments.Update(txCtx, appointment); err != nil {
			return nil, err
		}

		result := &CancelAppointmentResult{AppointmentID: appointment.ID(), Evaluation: eval}

		if h.offers != nil {
			notice, err := h.offerNotice(txCtx, appointment.OwnerID())
			if err != nil {
				return nil, err
			}
			if domain.OffersFreedSlot(appointment, notice, now) {
				offerID, err := h.offers.OpenOffer(txCtx, application.FreedSlot{
					OwnerID:             appointment.OwnerID(),
					ServiceTypeID:       appointment.ServiceTypeID(),
					SourceAppointmentID: appointment.ID(),
					StartsAt:            appointment.StartsAt(),
					Duration:            appointment.Duration(),
					MinimumNotice:       notice,
				})
				if err != nil {
					return nil, err
				}
				result.OfferOpened = true
				result.OfferID = offerID
			}
		}

		if err := outbox.SaveEvents(txCtx, h.outboxRepo, appointment, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)); err != nil {
			return nil, err
		}

		late := "false"
		if eval.Late {
			late = "true"
		}
		h.metrics.Counter(observability.MetricCancellationsTotal, 1, observability.T("late", late))
		return result, nil
	})
}

// offerNotice is the owner's configured notice, falling back to the
// policy when no business hours exist.
func (h *CancelAppointmentHandler) offerNotice(ctx context.Context, ownerID uuid.UUID) (time.Duration, error) {
	hours, err := h.hours.FindByOwner(ctx, ownerID)
	if errors.Is(err, domain.ErrBusinessHoursNotFound) {
		return h.policy.MinNotice(), nil
	}
	if err != nil {
		return 0, err
	}
	return hours.MinimumNotice(), nil
}
