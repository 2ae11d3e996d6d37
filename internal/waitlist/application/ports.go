// Package application holds the ports the waitlist handlers book through.
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HeldBooking asks the ledger for one appointment. HoldOverride names the
// slot offer allowed to claim its own soft-held interval.
type HeldBooking struct {
	OwnerID       uuid.UUID
	PatientID     uuid.UUID
	ServiceTypeID uuid.UUID
	StartsAt      time.Time
	HoldOverride  *uuid.UUID
	ByStaff       bool
	ActorID       uuid.UUID
}

// AppointmentBooker books through the scheduling ledger inside the
// caller's unit of work. A taken interval is reported as
// scheduling/domain.ErrSlotConflict.
type AppointmentBooker interface {
	BookHeld(ctx context.Context, req HeldBooking) (uuid.UUID, error)
}
