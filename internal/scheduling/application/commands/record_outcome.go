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

// RecordOutcomeCommand marks a started appointment completed or no_show.
type RecordOutcomeCommand struct {
	AppointmentID uuid.UUID
	Outcome       string
	ActorID       uuid.UUID
}

// RecordOutcomeHandler handles RecordOutcomeCommand.
type RecordOutcomeHandler struct {
	appointments domain.AppointmentRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	clock        sharedApplication.Clock
}

// NewRecordOutcomeHandler creates a RecordOutcomeHandler.
func NewRecordOutcomeHandler(
	appointments domain.AppointmentRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *RecordOutcomeHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &RecordOutcomeHandler{
		appointments: appointments,
		outboxRepo:   outboxRepo,
		uow:          uow,
		clock:        clock,
	}
}

// Handle executes RecordOutcomeCommand.
func (h *RecordOutcomeHandler) Handle(ctx context.Context, cmd RecordOutcomeCommand) (err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "scheduling.record_outcome",
		attribute.String("appointment_id", cmd.AppointmentID.String()),
		attribute.String("outcome", cmd.Outcome))
	defer func() { observability.EndSpan(span, err) }()

	outcome, err := domain.ParseStatus(cmd.Outcome)
	if err != nil {
		return err
	}

	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		appointment, err := h.appointments.FindByID(txCtx, cmd.AppointmentID)
		if err != nil {
			return err
		}
		if err := appointment.RecordOutcome(outcome, h.clock.Now()); err != nil {
			return err
		}
		if err := h.appointments.Update(txCtx, appointment); err != nil {
			return err
		}
		return outbox.SaveEvents(txCtx, h.outboxRepo, appointment, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID))
	})
}
