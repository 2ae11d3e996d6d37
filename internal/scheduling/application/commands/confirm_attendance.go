package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// ConfirmAttendanceCommand records that the patient will attend.
type ConfirmAttendanceCommand struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
}

// ConfirmAttendanceResult is the confirmed appointment.
type ConfirmAttendanceResult struct {
	AppointmentID    uuid.UUID
	Status           string
	AlreadyConfirmed bool
}

// ConfirmAttendanceHandler handles ConfirmAttendanceCommand.
type ConfirmAttendanceHandler struct {
	appointments domain.AppointmentRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	clock        sharedApplication.Clock
}

// NewConfirmAttendanceHandler creates a ConfirmAttendanceHandler.
func NewConfirmAttendanceHandler(
	appointments domain.AppointmentRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *ConfirmAttendanceHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &ConfirmAttendanceHandler{
		appointments: appointments,
		outboxRepo:   outboxRepo,
		uow:          uow,
		clock:        clock,
	}
}

// Handle executes ConfirmAttendanceCommand. Confirming twice writes nothing
// the second time.
func (h *ConfirmAttendanceHandler) Handle(ctx context.Context, cmd ConfirmAttendanceCommand) (result *ConfirmAttendanceResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "scheduling.confirm",
		attribute.String("appointment_id", cmd.AppointmentID.String()))
	defer func() { observability.EndSpan(span, err) }()

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*ConfirmAttendanceResult, error) {
		appointment, err := h.appointments.FindByID(txCtx, cmd.AppointmentID)
		if err != nil {
			return nil, err
		}

		changed, err := appointment.ConfirmPresence(h.clock.Now())
		if err != nil {
			return nil, err
		}
		if changed {
			if err := h.appointments.Update(txCtx, appointment); err != nil {
				return nil, err
			}
			if err := outbox.SaveEvents(txCtx, h.outboxRepo, appointment, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)); err != nil {
				return nil, err
			}
		}

		return &ConfirmAttendanceResult{
			AppointmentID:    appointment.ID(),
			Status:           string(appointment.Status()),
			AlreadyConfirmed: !changed,
		}, nil
	})
}
