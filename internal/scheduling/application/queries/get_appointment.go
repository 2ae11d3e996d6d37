package queries

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
)

// AppointmentView is an appointment with its owner-local date and time.
type AppointmentView struct {
	ID                 uuid.UUID `json:"id"`
	OwnerID            uuid.UUID `json:"owner_id"`
	PatientID          uuid.UUID `json:"patient_id"`
	ServiceTypeID      uuid.UUID `json:"service_type_id"`
	StartsAt           time.Time `json:"starts_at"`
	EndsAt             time.Time `json:"ends_at"`
	ScheduledDate      string    `json:"scheduled_date"`
	ScheduledTime      string    `json:"scheduled_time"`
	DurationMinutes    int       `json:"duration_minutes"`
	Status             string    `json:"status"`
	RescheduleCount    int       `json:"reschedule_count"`
	PresenceConfirmed  bool      `json:"presence_confirmed"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	Notes              string    `json:"notes,omitempty"`
}

// GetAppointmentQuery loads one appointment.
type GetAppointmentQuery struct {
	AppointmentID uuid.UUID
}

// GetAppointmentHandler handles GetAppointmentQuery.
type GetAppointmentHandler struct {
	appointments domain.AppointmentRepository
	hours        domain.BusinessHoursRepository
}

// NewGetAppointmentHandler creates a GetAppointmentHandler.
func NewGetAppointmentHandler(appointments domain.AppointmentRepository, hours domain.BusinessHoursRepository) *GetAppointmentHandler {
	return &GetAppointmentHandler{appointments: appointments, hours: hours}
}

// Handle executes GetAppointmentQuery.
func (h *GetAppointmentHandler) Handle(ctx context.Context, query GetAppointmentQuery) (*AppointmentView, error) {
	appointment, err := h.appointments.FindByID(ctx, query.AppointmentID)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	hours, err := h.hours.FindByOwner(ctx, appointment.OwnerID())
	switch {
	case err == nil:
		loc = hours.Location()
	case !errors.Is(err, domain.ErrBusinessHoursNotFound):
		return nil, err
	}

	view := toAppointmentView(appointment, loc)
	return &view, nil
}

func toAppointmentView(a *domain.Appointment, loc *time.Location) AppointmentView {
	return AppointmentView{
		ID:                 a.ID(),
		OwnerID:            a.OwnerID(),
		PatientID:          a.PatientID(),
		ServiceTypeID:      a.ServiceTypeID(),
		StartsAt:           a.StartsAt(),
		EndsAt:             a.EndsAt(),
		ScheduledDate:      a.ScheduledDate(loc),
		ScheduledTime:      a.ScheduledTime(loc),
		DurationMinutes:    a.DurationMinutes(),
		Status:             string(a.Status()),
		RescheduleCount:    a.RescheduleCount(),
		PresenceConfirmed:  a.PresenceConfirmed(),
		CancellationReason: a.CancellationReason(),
		Notes:              a.Notes(),
	}
}
