package domain

import (
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

const (
	AggregateType = "Appointment"

	RoutingKeyAppointmentBooked      = "scheduling.appointment.booked"
	RoutingKeyAppointmentCancelled   = "scheduling.appointment.cancelled"
	RoutingKeyAppointmentRescheduled = "scheduling.appointment.rescheduled"
	RoutingKeyAppointmentConfirmed   = "scheduling.appointment.confirmed"
	RoutingKeyAppointmentCompleted   = "scheduling.appointment.completed"
	RoutingKeyAppointmentNoShow      = "scheduling.appointment.no_show"
)

// AppointmentBooked is emitted when a slot is claimed. ActionToken is the
// raw attendance token for the notification sender.
type AppointmentBooked struct {
	sharedDomain.BaseEvent
	AppointmentID   uuid.UUID `json:"appointment_id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ServiceTypeID   uuid.UUID `json:"service_type_id"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	ActionToken     string    `json:"action_token,omitempty"`
}

// NewAppointmentBooked creates an AppointmentBooked event.
func NewAppointmentBooked(a *Appointment) *AppointmentBooked {
	return &AppointmentBooked{
		BaseEvent:       sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentBooked),
		AppointmentID:   a.ID(),
		OwnerID:         a.ownerID,
		PatientID:       a.patientID,
		ServiceTypeID:   a.serviceTypeID,
		StartsAt:        a.startsAt,
		DurationMinutes: a.DurationMinutes(),
	}
}

// AttachAttendanceToken adds the raw attendance token to the pending
// booked event.
func (a *Appointment) AttachAttendanceToken(token string) {
	for _, e := range a.DomainEvents() {
		if booked, ok := e.(*AppointmentBooked); ok {
			booked.ActionToken = token
		}
	}
}

// AppointmentCancelled is emitted when an appointment releases its slot.
type AppointmentCancelled struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	StartsAt      time.Time `json:"starts_at"`
	Reason        string    `json:"reason"`
	Late          bool      `json:"late"`
	FeeCents      int64     `json:"fee_cents"`
}

// NewAppointmentCancelled creates an AppointmentCancelled event.
func NewAppointmentCancelled(a *Appointment, eval CancellationEvaluation) *AppointmentCancelled {
	return &AppointmentCancelled{
		BaseEvent:     sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentCancelled),
		AppointmentID: a.ID(),
		OwnerID:       a.ownerID,
		PatientID:     a.patientID,
		StartsAt:      a.startsAt,
		Reason:        a.cancellationReason,
		Late:          eval.Late,
		FeeCents:      eval.FeeCents,
	}
}

// AppointmentRescheduled is emitted when an appointment moves.
type AppointmentRescheduled struct {
	sharedDomain.BaseEvent
	AppointmentID   uuid.UUID `json:"appointment_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	OldStartsAt     time.Time `json:"old_starts_at"`
	NewStartsAt     time.Time `json:"new_starts_at"`
	RescheduleCount int       `json:"reschedule_count"`
	WithinPolicy    bool      `json:"within_policy"`
	FeeCents        int64     `json:"fee_cents"`
	Reason          string    `json:"reason"`
}

// NewAppointmentRescheduled creates an AppointmentRescheduled event.
func NewAppointmentRescheduled(a *Appointment, from Interval, eval PolicyEvaluation, reason string) *AppointmentRescheduled {
	return &AppointmentRescheduled{
		BaseEvent:       sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentRescheduled),
		AppointmentID:   a.ID(),
		PatientID:       a.patientID,
		OldStartsAt:     from.Start,
		NewStartsAt:     a.startsAt,
		RescheduleCount: a.rescheduleCount,
		WithinPolicy:    eval.WithinPolicy,
		FeeCents:        eval.PotentialFeeCents,
		Reason:          reason,
	}
}

// AppointmentConfirmed is emitted when presence is confirmed.
type AppointmentConfirmed struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	StartsAt      time.Time `json:"starts_at"`
}

// NewAppointmentConfirmed creates an AppointmentConfirmed event.
func NewAppointmentConfirmed(a *Appointment) *AppointmentConfirmed {
	return &AppointmentConfirmed{
		BaseEvent:     sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentConfirmed),
		AppointmentID: a.ID(),
		PatientID:     a.patientID,
		StartsAt:      a.startsAt,
	}
}

// AppointmentOutcomeRecorded is emitted as completed or no_show.
type AppointmentOutcomeRecorded struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Outcome       Status    `json:"outcome"`
}

// NewAppointmentOutcomeRecorded creates the event for the current status.
func NewAppointmentOutcomeRecorded(a *Appointment) *AppointmentOutcomeRecorded {
	key := RoutingKeyAppointmentCompleted
	if a.status == StatusNoShow {
		key = RoutingKeyAppointmentNoShow
	}
	return &AppointmentOutcomeRecorded{
		BaseEvent:     sharedDomain.NewBaseEvent(a.ID(), AggregateType, key),
		AppointmentID: a.ID(),
		PatientID:     a.patientID,
		Outcome:       a.status,
	}
}
