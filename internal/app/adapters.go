package app

import (
	"context"

	"github.com/google/uuid"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	waitlistApp "github.com/maximegiguere1one/chiroflow/internal/waitlist/application"
)

// heldBooker books waitlist and rebooking appointments through the
// scheduling ledger so they get the same events and attendance token as
// any other booking.
type heldBooker struct {
	book *schedulingCommands.BookAppointmentHandler
}

var _ waitlistApp.AppointmentBooker = heldBooker{}

func (b heldBooker) BookHeld(ctx context.Context, req waitlistApp.HeldBooking) (uuid.UUID, error) {
	res, err := b.book.Handle(ctx, schedulingCommands.BookAppointmentCommand{
		OwnerID:       req.OwnerID,
		PatientID:     req.PatientID,
		ServiceTypeID: req.ServiceTypeID,
		StartsAt:      req.StartsAt,
		HoldOverride:  req.HoldOverride,
		ByStaff:       req.ByStaff,
		ActorID:       req.ActorID,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return res.AppointmentID, nil
}
