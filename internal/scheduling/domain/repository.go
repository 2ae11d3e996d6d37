package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookOptions tunes the guarded insert.
type BookOptions struct {
	// HoldOverride lets the slot offer with this id claim its own held
	// interval.
	HoldOverride *uuid.UUID
	// Now is the instant holds are evaluated against.
	Now time.Time
}

// AppointmentRepository is the booking ledger. Every mutation is a single
// guarded statement so concurrent callers cannot both succeed.
type AppointmentRepository interface {
	// Book inserts the appointment only if no live appointment or active
	// hold overlaps it. Returns ErrSlotConflict otherwise.
	Book(ctx context.Context, appointment *Appointment, opts BookOptions) error

	// FindByID loads an appointment or returns ErrAppointmentNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Update persists status fields guarded by the loaded version.
	// Returns ErrConcurrentUpdate when the row moved.
	Update(ctx context.Context, appointment *Appointment) error

	// Reschedule writes the new interval and count guarded by
	// expectedVersion, maxReschedules and the overlap rule.
	Reschedule(ctx context.Context, appointment *Appointment, expectedVersion, maxReschedules int, now time.Time) error

	// ListBusy returns the live appointment intervals (and active holds
	// when enabled) that overlap window.
	ListBusy(ctx context.Context, ownerID uuid.UUID, window Interval, now time.Time) ([]Interval, error)

	// ListByPatient returns a patient's appointments, soonest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
}

// RescheduleRecordRepository stores the reschedule audit trail.
type RescheduleRecordRepository interface {
	Create(ctx context.Context, record RescheduleRecord) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]RescheduleRecord, error)
}

// BusinessHoursRepository stores per-owner opening hours.
type BusinessHoursRepository interface {
	Save(ctx context.Context, hours *BusinessHours) error
	// FindByOwner returns ErrBusinessHoursNotFound when none is configured.
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*BusinessHours, error)
}

// ServiceTypeRepository stores the service catalog.
type ServiceTypeRepository interface {
	Save(ctx context.Context, service *ServiceType) error
	// FindByID returns ErrServiceTypeNotFound when missing.
	FindByID(ctx context.Context, id uuid.UUID) (*ServiceType, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*ServiceType, error)
}
