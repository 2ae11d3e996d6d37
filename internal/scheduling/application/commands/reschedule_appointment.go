package commands

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// RescheduleAppointmentCommand moves an appointment to a new owner-local
// date and time. A nil PatientID is a staff move, which skips the notice
// window and booking horizon but not the policy rules.
type RescheduleAppointmentCommand struct {
	AppointmentID uuid.UUID
	NewDate       string
	NewTime       string
	Reason        string
	PatientID     *uuid.UUID
	ActorID       uuid.UUID
}

// RescheduleAppointmentResult describes the executed move.
type RescheduleAppointmentResult struct {
	AppointmentID   uuid.UUID
	OldStartsAt     time.Time
	NewStartsAt     time.Time
	RescheduleCount int
	Evaluation      domain.PolicyEvaluation
}

// RescheduleAppointmentHandler handles RescheduleAppointmentCommand.
type RescheduleAppointmentHandler struct {
	appointments domain.AppointmentRepository
	reschedules  domain.RescheduleRecordRepository
	hours        domain.BusinessHoursRepository
	policy       domain.ReschedulePolicy
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	clock        sharedApplication.Clock
	metrics      observability.Metrics
}

// NewRescheduleAppointmentHandler creates a RescheduleAppointmentHandler.
func NewRescheduleAppointmentHandler(
	appointments domain.AppointmentRepository,
	reschedules domain.RescheduleRecordRepository,
	hours domain.BusinessHoursRepository,
	policy domain.ReschedulePolicy,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *RescheduleAppointmentHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &RescheduleAppointmentHandler{
		appointments: appointments,
		reschedules:  reschedules,
		hours:        hours,
		policy:       policy,
		outboxRepo:   outboxRepo,
		uow:          uow,
		clock:        clock,
		metrics:      observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *RescheduleAppointmentHandler) WithMetrics(m observability.Metrics) *RescheduleAppointmentHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes RescheduleAppointmentCommand. The release of the old
// interval, the claim of the new one and the count increment are one
// guarded write.
func (h *RescheduleAppointmentHandler) Handle(ctx context.Context, cmd RescheduleAppointmentCommand) (result *RescheduleAppointmentResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "scheduling.reschedule",
		attribute.String("appointment_id", cmd.AppointmentID.String()))
	defer func() { observability.EndSpan(span, err) }()

	now := h.clock.Now()

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*RescheduleAppointmentResult, error) {
		appointment, err := h.appointments.FindByID(txCtx, cmd.AppointmentID)
		if err != nil {
			return nil, err
		}

		patientID := appointment.PatientID()
		if cmd.PatientID != nil {
			patientID = *cmd.PatientID
		}
		eval := h.policy.Validate(appointment, patientID, now)
		if !eval.CanReschedule {
			return nil, domain.NewPolicyViolation(eval.Reasons...)
		}

		hours, err := h.hours.FindByOwner(txCtx, appointment.OwnerID())
		if err != nil {
			return nil, err
		}
		start, err := hours.ParseLocalStart(cmd.NewDate, cmd.NewTime)
		if err != nil {
			return nil, err
		}
		target := domain.NewInterval(start, appointment.Duration())
		if err := checkBookable(hours, target, now, cmd.PatientID == nil); err != nil {
			return nil, err
		}

		expectedVersion := appointment.Version()
		from := appointment.StartsAt()
		if err := appointment.Reschedule(target, eval, cmd.Reason, now); err != nil {
			return nil, err
		}
		if err := h.appointments.Reschedule(txCtx, appointment, expectedVersion, h.policy.MaxReschedules, now); err != nil {
			if errors.Is(err, domain.ErrSlotConflict) {
				h.metrics.Counter(observability.MetricBookingConflicts, 1)
			}
			return nil, err
		}

		record := domain.NewRescheduleRecord(appointment.ID(), from, appointment.StartsAt(), cmd.Reason, eval, cmd.ActorID, now)
		if err := h.reschedules.Create(txCtx, record); err != nil {
			return nil, err
		}
		if err := outbox.SaveEvents(txCtx, h.outboxRepo, appointment, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)); err != nil {
			return nil, err
		}

		h.metrics.Counter(observability.MetricReschedulesTotal, 1)
		return &RescheduleAppointmentResult{
			AppointmentID:   appointment.ID(),
			OldStartsAt:     from,
			NewStartsAt:     appointment.StartsAt(),
			RescheduleCount: appointment.RescheduleCount(),
			Evaluation:      eval,
		}, nil
	})
}
