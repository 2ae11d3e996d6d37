package domain

import (
	"fmt"

	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

var (
	// ErrRaceLost means another invitation of the same offer was accepted
	// first. Handlers turn it into OutcomeRaceLost.
	ErrRaceLost = fmt.Errorf("slot offer was already taken: %w", sharedDomain.ErrConflict)

	// ErrOfferWithdrawn means staff cancelled the offer or the ledger
	// refused its interval.
	ErrOfferWithdrawn = fmt.Errorf("slot offer was withdrawn: %w", sharedDomain.ErrConflict)

	ErrOfferExpired     = fmt.Errorf("slot offer has expired: %w", sharedDomain.ErrInvalidTransition)
	ErrRebookingExpired = fmt.Errorf("rebooking request has expired: %w", sharedDomain.ErrInvalidTransition)

	ErrEntryNotFound      = fmt.Errorf("waitlist entry %w", sharedDomain.ErrNotFound)
	ErrOfferNotFound      = fmt.Errorf("slot offer %w", sharedDomain.ErrNotFound)
	ErrInvitationNotFound = fmt.Errorf("invitation %w", sharedDomain.ErrNotFound)
	ErrRebookingNotFound  = fmt.Errorf("rebooking request %w", sharedDomain.ErrNotFound)
	ErrTimeSlotNotFound   = fmt.Errorf("rebooking time slot %w", sharedDomain.ErrNotFound)
)

// Outcome is the structured answer to an invitation or rebooking
// response. Expected business results are outcomes, not errors.
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeDeclined          Outcome = "declined"
	OutcomeCallbackRequested Outcome = "callback_requested"
	OutcomeRaceLost          Outcome = "race_lost"
	OutcomeExpired           Outcome = "expired"
	OutcomeSlotUnavailable   Outcome = "slot_unavailable"
)

// Succeeded reports whether the response was applied as asked.
func (o Outcome) Succeeded() bool {
	return o == OutcomeAccepted || o == OutcomeDeclined || o == OutcomeCallbackRequested
}

// Message is the patient-facing sentence for the outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeAccepted:
		return "Your appointment is booked."
	case OutcomeDeclined:
		return "Thanks, we have recorded your answer."
	case OutcomeCallbackRequested:
		return "We will call you to find a time."
	case OutcomeRaceLost:
		return "Sorry, this opening was just taken by someone else."
	case OutcomeExpired:
		return "Sorry, this offer has expired."
	case OutcomeSlotUnavailable:
		return "Sorry, this time is no longer available."
	}
	return ""
}
