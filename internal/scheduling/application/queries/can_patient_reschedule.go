package queries

import (
	"context"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
)

// CanPatientRescheduleQuery asks whether a patient may move an appointment.
type CanPatientRescheduleQuery struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
}

// CanPatientRescheduleHandler handles CanPatientRescheduleQuery.
type CanPatientRescheduleHandler struct {
	appointments domain.AppointmentRepository
	policy       domain.ReschedulePolicy
	clock        sharedApplication.Clock
}

// NewCanPatientRescheduleHandler creates a CanPatientRescheduleHandler.
func NewCanPatientRescheduleHandler(appointments domain.AppointmentRepository, policy domain.ReschedulePolicy, clock sharedApplication.Clock) *CanPatientRescheduleHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &CanPatientRescheduleHandler{appointments: appointments, policy: policy, clock: clock}
}

// Handle returns the advisory evaluation. It never writes.
func (h *CanPatientRescheduleHandler) Handle(ctx context.Context, query CanPatientRescheduleQuery) (domain.PolicyEvaluation, error) {
	appointment, err := h.appointments.FindByID(ctx, query.AppointmentID)
	if err != nil {
		return domain.PolicyEvaluation{}, err
	}
	return h.policy.Validate(appointment, query.PatientID, h.clock.Now()), nil
}
