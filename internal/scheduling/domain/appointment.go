package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// Status is the persisted appointment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var appointmentTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

// ParseStatus validates a persisted or user-supplied status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", sharedDomain.NewValidationError("status", "unknown appointment status %q", s)
}

// IsLive reports whether the status occupies the calendar.
func (s Status) IsLive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo reports whether next is reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment is a committed booking for one owner.
type Appointment struct {
	sharedDomain.BaseAggregateRoot
	ownerID            uuid.UUID
	patientID          uuid.UUID
	serviceTypeID      uuid.UUID
	startsAt           time.Time
	duration           time.Duration
	status             Status
	rescheduleCount    int
	cancellationReason string
	presenceConfirmed  bool
	notes              string
}

// NewAppointment creates a pending appointment for the interval.
func NewAppointment(ownerID, patientID, serviceTypeID uuid.UUID, iv Interval, notes string, now time.Time) (*Appointment, error) {
	switch {
	case ownerID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("owner_id", "is required")
	case patientID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("patient_id", "is required")
	case serviceTypeID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("service_type_id", "is required")
	case iv.Duration() <= 0:
		return nil, sharedDomain.NewValidationError("duration", "must be positive")
	}

	a := &Appointment{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		ownerID:           ownerID,
		patientID:         patientID,
		serviceTypeID:     serviceTypeID,
		startsAt:          sharedDomain.NormalizeTime(iv.Start),
		duration:          iv.Duration(),
		status:            StatusPending,
		notes:             strings.TrimSpace(notes),
	}
	a.AddDomainEvent(NewAppointmentBooked(a))
	return a, nil
}

// RehydrateAppointment recreates an appointment from persisted state.
func RehydrateAppointment(
	id, ownerID, patientID, serviceTypeID uuid.UUID,
	startsAt time.Time,
	durationMinutes int,
	status Status,
	rescheduleCount int,
	cancellationReason string,
	presenceConfirmed bool,
	notes string,
	version int,
	createdAt, updatedAt time.Time,
) *Appointment {
	return &Appointment{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		ownerID:            ownerID,
		patientID:          patientID,
		serviceTypeID:      serviceTypeID,
		startsAt:           startsAt.UTC(),
		duration:           time.Duration(durationMinutes) * time.Minute,
		status:             status,
		rescheduleCount:    rescheduleCount,
		cancellationReason: cancellationReason,
		presenceConfirmed:  presenceConfirmed,
		notes:              notes,
	}
}

func (a *Appointment) OwnerID() uuid.UUID         { return a.ownerID }
func (a *Appointment) PatientID() uuid.UUID       { return a.patientID }
func (a *Appointment) ServiceTypeID() uuid.UUID   { return a.serviceTypeID }
func (a *Appointment) StartsAt() time.Time        { return a.startsAt }
func (a *Appointment) EndsAt() time.Time          { return a.startsAt.Add(a.duration) }
func (a *Appointment) Duration() time.Duration    { return a.duration }
func (a *Appointment) DurationMinutes() int       { return int(a.duration / time.Minute) }
func (a *Appointment) Status() Status             { return a.status }
func (a *Appointment) RescheduleCount() int       { return a.rescheduleCount }
func (a *Appointment) CancellationReason() string { return a.cancellationReason }
func (a *Appointment) PresenceConfirmed() bool    { return a.presenceConfirmed }
func (a *Appointment) Notes() string              { return a.notes }

// Interval returns the occupied span.
func (a *Appointment) Interval() Interval {
	return Interval{Start: a.startsAt, End: a.EndsAt()}
}

// ScheduledDate returns the owner-local calendar date.
func (a *Appointment) ScheduledDate(loc *time.Location) string {
	return a.startsAt.In(loc).Format(DateLayout)
}

// ScheduledTime returns the owner-local start time.
func (a *Appointment) ScheduledTime(loc *time.Location) string {
	return a.startsAt.In(loc).Format(ClockLayout)
}

// HoursUntil returns the hours between now and the start, negative once
// the appointment has started.
func (a *Appointment) HoursUntil(now time.Time) float64 {
	return a.startsAt.Sub(now).Hours()
}

func (a *Appointment) transition(next Status) error {
	if !a.status.CanTransitionTo(next) {
		return fmt.Errorf("appointment %s cannot move from %s to %s: %w",
			a.ID(), a.status, next, sharedDomain.ErrInvalidTransition)
	}
	a.status = next
	return nil
}

// ConfirmPresence records that the patient will attend. It returns false
// without error when presence was already confirmed.
func (a *Appointment) ConfirmPresence(now time.Time) (bool, error) {
	if a.status == StatusConfirmed && a.presenceConfirmed {
		return false, nil
	}
	if a.status != StatusConfirmed {
		if err := a.transition(StatusConfirmed); err != nil {
			return false, err
		}
	}
	a.presenceConfirmed = true
	a.Touch(now)
	a.AddDomainEvent(NewAppointmentConfirmed(a))
	return true, nil
}

// Cancel releases the interval.
func (a *Appointment) Cancel(reason string, eval CancellationEvaluation, now time.Time) error {
	if err := a.transition(StatusCancelled); err != nil {
		return err
	}
	a.cancellationReason = strings.TrimSpace(reason)
	a.Touch(now)
	a.AddDomainEvent(NewAppointmentCancelled(a, eval))
	return nil
}

// Reschedule moves the appointment and counts the move.
func (a *Appointment) Reschedule(to Interval, eval PolicyEvaluation, reason string, now time.Time) error {
	if !a.status.IsLive() {
		return fmt.Errorf("appointment %s is %s: %w", a.ID(), a.status, sharedDomain.ErrInvalidTransition)
	}
	from := a.Interval()
	a.startsAt = sharedDomain.NormalizeTime(to.Start)
	a.duration = to.Duration()
	a.rescheduleCount++
	a.Touch(now)
	a.AddDomainEvent(NewAppointmentRescheduled(a, from, eval, reason))
	return nil
}

// RecordOutcome marks a started appointment completed or no_show.
func (a *Appointment) RecordOutcome(outcome Status, now time.Time) error {
	if outcome != StatusCompleted && outcome != StatusNoShow {
		return sharedDomain.NewValidationError("outcome", "must be %s or %s", StatusCompleted, StatusNoShow)
	}
	if now.Before(a.startsAt) {
		return ErrAppointmentNotStarted
	}
	if err := a.transition(outcome); err != nil {
		return err
	}
	a.Touch(now)
	a.AddDomainEvent(NewAppointmentOutcomeRecorded(a))
	return nil
}
