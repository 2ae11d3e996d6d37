package domain

import (
	"fmt"

	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// OfferStatus is the lifecycle state of a SlotOffer.
type OfferStatus string

const (
	OfferOpen      OfferStatus = "open"
	OfferOffered   OfferStatus = "offered"
	OfferAccepted  OfferStatus = "accepted"
	OfferExpired   OfferStatus = "expired"
	OfferCancelled OfferStatus = "cancelled"
)

var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferOpen:    {OfferOffered, OfferAccepted, OfferExpired, OfferCancelled},
	OfferOffered: {OfferAccepted, OfferExpired, OfferCancelled},
}

// InvitationStatus is the lifecycle state of an Invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

var invitationTransitions = map[InvitationStatus][]InvitationStatus{
	InvitationPending: {InvitationAccepted, InvitationDeclined, InvitationExpired},
}

// RebookingStatus is the lifecycle state of a RebookingRequest.
type RebookingStatus string

const (
	RebookingPending           RebookingStatus = "pending"
	RebookingAccepted          RebookingStatus = "accepted"
	RebookingDeclined          RebookingStatus = "declined"
	RebookingCallbackRequested RebookingStatus = "callback_requested"
	RebookingExpired           RebookingStatus = "expired"
)

var rebookingTransitions = map[RebookingStatus][]RebookingStatus{
	RebookingPending: {RebookingAccepted, RebookingDeclined, RebookingCallbackRequested, RebookingExpired},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(machine string, from, to any) error {
	return fmt.Errorf("%s cannot move from %v to %v: %w", machine, from, to, sharedDomain.ErrInvalidTransition)
}

// CanTransitionTo reports whether the offer table allows from -> next.
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	return allowed(offerTransitions, s, next)
}

// IsTerminal reports whether no further transition exists.
func (s OfferStatus) IsTerminal() bool { return len(offerTransitions[s]) == 0 }

// IsHolding reports whether the offer still soft-holds its interval.
func (s OfferStatus) IsHolding() bool { return s == OfferOpen || s == OfferOffered }

// CanTransitionTo reports whether the invitation table allows from -> next.
func (s InvitationStatus) CanTransitionTo(next InvitationStatus) bool {
	return allowed(invitationTransitions, s, next)
}

// IsTerminal reports whether no further transition exists.
func (s InvitationStatus) IsTerminal() bool { return len(invitationTransitions[s]) == 0 }

// CanTransitionTo reports whether the rebooking table allows from -> next.
func (s RebookingStatus) CanTransitionTo(next RebookingStatus) bool {
	return allowed(rebookingTransitions, s, next)
}

// IsTerminal reports whether no further transition exists.
func (s RebookingStatus) IsTerminal() bool { return len(rebookingTransitions[s]) == 0 }

// ParseOfferStatus validates a stored offer status.
func ParseOfferStatus(s string) (OfferStatus, error) {
	switch st := OfferStatus(s); st {
	case OfferOpen, OfferOffered, OfferAccepted, OfferExpired, OfferCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown offer status %q", s)
}

// ParseInvitationStatus validates a stored invitation status.
func ParseInvitationStatus(s string) (InvitationStatus, error) {
	switch st := InvitationStatus(s); st {
	case InvitationPending, InvitationAccepted, InvitationDeclined, InvitationExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown invitation status %q", s)
}

// ParseRebookingStatus validates a stored rebooking status.
func ParseRebookingStatus(s string) (RebookingStatus, error) {
	switch st := RebookingStatus(s); st {
	case RebookingPending, RebookingAccepted, RebookingDeclined, RebookingCallbackRequested, RebookingExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown rebooking status %q", s)
}
