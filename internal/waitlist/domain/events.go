package domain

import (
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

const (
	OfferAggregateType     = "SlotOffer"
	RebookingAggregateType = "RebookingRequest"

	RoutingKeyOfferOpened    = "waitlist.offer.opened"
	RoutingKeyOfferAccepted  = "waitlist.offer.accepted"
	RoutingKeyOfferExpired   = "waitlist.offer.expired"
	RoutingKeyOfferCancelled = "waitlist.offer.cancelled"

	RoutingKeyInvitationIssued   = "waitlist.invitation.issued"
	RoutingKeyInvitationDeclined = "waitlist.invitation.declined"

	RoutingKeyRebookingRequested         = "waitlist.rebooking.requested"
	RoutingKeyRebookingAccepted          = "waitlist.rebooking.accepted"
	RoutingKeyRebookingDeclined          = "waitlist.rebooking.declined"
	RoutingKeyRebookingCallbackRequested = "waitlist.rebooking.callback_requested"
	RoutingKeyRebookingExpired           = "waitlist.rebooking.expired"
)

// OfferOpened is emitted when a freed interval becomes an offer.
type OfferOpened struct {
	sharedDomain.BaseEvent
	OfferID             uuid.UUID  `json:"offer_id"`
	OwnerID             uuid.UUID  `json:"owner_id"`
	ServiceTypeID       uuid.UUID  `json:"service_type_id"`
	SourceAppointmentID *uuid.UUID `json:"source_appointment_id,omitempty"`
	StartsAt            time.Time  `json:"starts_at"`
	DurationMinutes     int        `json:"duration_minutes"`
	ExpiresAt           time.Time  `json:"expires_at"`
}

// NewOfferOpened creates an OfferOpened event.
func NewOfferOpened(o *SlotOffer) *OfferOpened {
	return &OfferOpened{
		BaseEvent:           sharedDomain.NewBaseEvent(o.ID(), OfferAggregateType, RoutingKeyOfferOpened),
		OfferID:             o.ID(),
		OwnerID:             o.ownerID,
		ServiceTypeID:       o.serviceTypeID,
		SourceAppointmentID: o.sourceAppointmentID,
		StartsAt:            o.startsAt,
		DurationMinutes:     o.DurationMinutes(),
		ExpiresAt:           o.expiresAt,
	}
}

// InvitationIssued asks the notification collaborator to contact one
// waitlisted patient. ResponseToken is the raw token for the links.
type InvitationIssued struct {
	sharedDomain.BaseEvent
	OfferID       uuid.UUID `json:"offer_id"`
	InvitationID  uuid.UUID `json:"invitation_id"`
	EntryID       uuid.UUID `json:"waitlist_entry_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Contact       Contact   `json:"contact"`
	Position      int       `json:"position"`
	StartsAt      time.Time `json:"starts_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	ResponseToken string    `json:"response_token,omitempty"`
}

// NewInvitationIssued creates an InvitationIssued event.
func NewInvitationIssued(o *SlotOffer, inv *Invitation) *InvitationIssued {
	return &InvitationIssued{
		BaseEvent:    sharedDomain.NewBaseEvent(o.ID(), OfferAggregateType, RoutingKeyInvitationIssued),
		OfferID:      o.ID(),
		InvitationID: inv.id,
		EntryID:      inv.entryID,
		PatientID:    inv.patientID,
		Contact:      inv.contact,
		Position:     inv.position,
		StartsAt:     o.startsAt,
		ExpiresAt:    inv.expiresAt,
	}
}

// InvitationDeclinedEvent is emitted when a patient turns the slot down.
type InvitationDeclinedEvent struct {
	sharedDomain.BaseEvent
	OfferID      uuid.UUID `json:"offer_id"`
	InvitationID uuid.UUID `json:"invitation_id"`
	PatientID    uuid.UUID `json:"patient_id"`
}

// NewInvitationDeclined creates an InvitationDeclinedEvent.
func NewInvitationDeclined(o *SlotOffer, inv *Invitation) *InvitationDeclinedEvent {
	return &InvitationDeclinedEvent{
		BaseEvent:    sharedDomain.NewBaseEvent(o.ID(), OfferAggregateType, RoutingKeyInvitationDeclined),
		OfferID:      o.ID(),
		InvitationID: inv.id,
		PatientID:    inv.patientID,
	}
}

// OfferAcceptedEvent is emitted when an invitation wins the slot.
type OfferAcceptedEvent struct {
	sharedDomain.BaseEvent
	OfferID       uuid.UUID  `json:"offer_id"`
	InvitationID  uuid.UUID  `json:"invitation_id"`
	EntryID       uuid.UUID  `json:"waitlist_entry_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	StartsAt      time.Time  `json:"starts_at"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// NewOfferAccepted creates an OfferAcceptedEvent.
func NewOfferAccepted(o *SlotOffer, inv *Invitation) *OfferAcceptedEvent {
	return &OfferAcceptedEvent{
		BaseEvent:    sharedDomain.NewBaseEvent(o.ID(), OfferAggregateType, RoutingKeyOfferAccepted),
		OfferID:      o.ID(),
		InvitationID: inv.id,
		EntryID:      inv.entryID,
		PatientID:    inv.patientID,
		StartsAt:     o.startsAt,
	}
}

// OfferLifecycleEvent is emitted when an offer expires or is cancelled.
type OfferLifecycleEvent struct {
	sharedDomain.BaseEvent
	OfferID  uuid.UUID `json:"offer_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	StartsAt time.Time `json:"starts_at"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
}

// NewOfferLifecycleEvent creates an OfferLifecycleEvent.
func NewOfferLifecycleEvent(o *SlotOffer, routingKey, reason string) *OfferLifecycleEvent {
	return &OfferLifecycleEvent{
		BaseEvent: sharedDomain.NewBaseEvent(o.ID(), OfferAggregateType, routingKey),
		OfferID:   o.ID(),
		OwnerID:   o.ownerID,
		StartsAt:  o.startsAt,
		Status:    string(o.status),
		Reason:    reason,
	}
}

// RebookingRequested carries the proposals to the notification
// collaborator. ResponseToken is the raw token for the links.
type RebookingRequested struct {
	sharedDomain.BaseEvent
	RequestID     uuid.UUID           `json:"request_id"`
	OwnerID       uuid.UUID           `json:"owner_id"`
	PatientID     uuid.UUID           `json:"patient_id"`
	ServiceTypeID uuid.UUID           `json:"service_type_id"`
	TimeSlots     []RebookingTimeSlot `json:"time_slots"`
	ExpiresAt     time.Time           `json:"expires_at"`
	Notes         string              `json:"notes,omitempty"`
	ResponseToken string              `json:"response_token,omitempty"`
}

// NewRebookingRequested creates a RebookingRequested event.
func NewRebookingRequested(r *RebookingRequest) *RebookingRequested {
	return &RebookingRequested{
		BaseEvent:     sharedDomain.NewBaseEvent(r.ID(), RebookingAggregateType, RoutingKeyRebookingRequested),
		RequestID:     r.ID(),
		OwnerID:       r.ownerID,
		PatientID:     r.patientID,
		ServiceTypeID: r.serviceTypeID,
		TimeSlots:     r.slots,
		ExpiresAt:     r.expiresAt,
		Notes:         r.notes,
	}
}

// AttachResponseToken adds the raw token to the pending requested event.
func (r *RebookingRequest) AttachResponseToken(token string) {
	for _, e := range r.DomainEvents() {
		if requested, ok := e.(*RebookingRequested); ok {
			requested.ResponseToken = token
		}
	}
}

// RebookingResolved is emitted for every answer to a rebooking request
// and for its expiry. The routing key names the outcome.
type RebookingResolved struct {
	sharedDomain.BaseEvent
	RequestID      uuid.UUID  `json:"request_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	Status         string     `json:"status"`
	SelectedSlotID *uuid.UUID `json:"selected_slot_id,omitempty"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	ResponseNotes  string     `json:"response_notes,omitempty"`
}

// NewRebookingResolved creates a RebookingResolved event.
func NewRebookingResolved(r *RebookingRequest, routingKey string) *RebookingResolved {
	return &RebookingResolved{
		BaseEvent:      sharedDomain.NewBaseEvent(r.ID(), RebookingAggregateType, routingKey),
		RequestID:      r.ID(),
		PatientID:      r.patientID,
		Status:         string(r.status),
		SelectedSlotID: r.selectedSlotID,
		AppointmentID:  r.appointmentID,
		ResponseNotes:  r.responseNotes,
	}
}
