package domain

import (
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// OfferExpiry is the shared deadline for an offer and its invitations:
// the earlier of the response window and the last moment the slot can
// still be booked with notice.
func OfferExpiry(now time.Time, ttl time.Duration, startsAt time.Time, minimumNotice time.Duration) time.Time {
	byTTL := now.Add(ttl)
	byNotice := startsAt.Add(-minimumNotice)
	if byNotice.Before(byTTL) {
		return sharedDomain.NormalizeTime(byNotice)
	}
	return sharedDomain.NormalizeTime(byTTL)
}

// SlotOffer is a freed interval shopped to waitlisted patients. The first
// invitation accepted wins; the repository guards that with the version.
type SlotOffer struct {
	sharedDomain.BaseAggregateRoot
	ownerID              uuid.UUID
	serviceTypeID        uuid.UUID
	sourceAppointmentID  *uuid.UUID
	startsAt             time.Time
	duration             time.Duration
	status               OfferStatus
	expiresAt            time.Time
	acceptedInvitationID *uuid.UUID
	appointmentID        *uuid.UUID
	invitations          []*Invitation
}

// NewSlotOffer opens an offer for the interval starting at startsAt.
func NewSlotOffer(ownerID, serviceTypeID uuid.UUID, sourceAppointmentID *uuid.UUID, startsAt time.Time, duration time.Duration, expiresAt, now time.Time) (*SlotOffer, error) {
	switch {
	case ownerID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("owner_id", "is required")
	case serviceTypeID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("service_type_id", "is required")
	case duration <= 0:
		return nil, sharedDomain.NewValidationError("duration", "must be positive")
	case !expiresAt.After(now):
		return nil, sharedDomain.NewValidationError("expires_at", "must be in the future")
	case expiresAt.After(startsAt):
		return nil, sharedDomain.NewValidationError("expires_at", "must not be after the slot starts")
	}

	o := &SlotOffer{
		BaseAggregateRoot:   sharedDomain.NewBaseAggregateRoot(now),
		ownerID:             ownerID,
		serviceTypeID:       serviceTypeID,
		sourceAppointmentID: sourceAppointmentID,
		startsAt:            sharedDomain.NormalizeTime(startsAt),
		duration:            duration,
		status:              OfferOpen,
		expiresAt:           sharedDomain.NormalizeTime(expiresAt),
	}
	o.AddDomainEvent(NewOfferOpened(o))
	return o, nil
}

// RehydrateSlotOffer recreates an offer and its invitations from
// persisted state.
func RehydrateSlotOffer(
	id, ownerID, serviceTypeID uuid.UUID,
	sourceAppointmentID *uuid.UUID,
	startsAt time.Time,
	durationMinutes int,
	status OfferStatus,
	expiresAt time.Time,
	acceptedInvitationID, appointmentID *uuid.UUID,
	invitations []*Invitation,
	version int,
	createdAt, updatedAt time.Time,
) *SlotOffer {
	return &SlotOffer{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		ownerID:              ownerID,
		serviceTypeID:        serviceTypeID,
		sourceAppointmentID:  sourceAppointmentID,
		startsAt:             startsAt.UTC(),
		duration:             time.Duration(durationMinutes) * time.Minute,
		status:               status,
		expiresAt:            expiresAt.UTC(),
		acceptedInvitationID: acceptedInvitationID,
		appointmentID:        appointmentID,
		invitations:          invitations,
	}
}

func (o *SlotOffer) OwnerID() uuid.UUID               { return o.ownerID }
func (o *SlotOffer) ServiceTypeID() uuid.UUID         { return o.serviceTypeID }
func (o *SlotOffer) SourceAppointmentID() *uuid.UUID  { return o.sourceAppointmentID }
func (o *SlotOffer) StartsAt() time.Time              { return o.startsAt }
func (o *SlotOffer) EndsAt() time.Time                { return o.startsAt.Add(o.duration) }
func (o *SlotOffer) Duration() time.Duration          { return o.duration }
func (o *SlotOffer) DurationMinutes() int             { return int(o.duration / time.Minute) }
func (o *SlotOffer) Status() OfferStatus              { return o.status }
func (o *SlotOffer) ExpiresAt() time.Time             { return o.expiresAt }
func (o *SlotOffer) AcceptedInvitationID() *uuid.UUID { return o.acceptedInvitationID }
func (o *SlotOffer) AppointmentID() *uuid.UUID        { return o.appointmentID }
func (o *SlotOffer) Invitations() []*Invitation       { return o.invitations }

// IsExpiredAt reports whether the deadline has passed. Comparison is in
// UTC.
func (o *SlotOffer) IsExpiredAt(now time.Time) bool {
	return !now.UTC().Before(o.expiresAt)
}

func (o *SlotOffer) holdingAndDue(now time.Time) bool {
	return o.status.IsHolding() && o.IsExpiredAt(now)
}

func (o *SlotOffer) setStatus(to OfferStatus) error {
	if !o.status.CanTransitionTo(to) {
		return transitionError("slot offer", o.status, to)
	}
	o.status = to
	return nil
}

// Invitation returns the invitation with id.
func (o *SlotOffer) Invitation(id uuid.UUID) (*Invitation, error) {
	for _, inv := range o.invitations {
		if inv.id == id {
			return inv, nil
		}
	}
	return nil, ErrInvitationNotFound
}

// Invite creates one pending invitation per matching entry, in queue
// order, all sharing the offer's deadline. With at least one invitation
// the offer becomes offered.
func (o *SlotOffer) Invite(entries []*WaitlistEntry, now time.Time) ([]*Invitation, error) {
	if o.status != OfferOpen {
		return nil, transitionError("slot offer", o.status, OfferOffered)
	}

	o.Touch(now)
	var issued []*Invitation
	for _, entry := range entries {
		if !entry.Matches(o.serviceTypeID, o.ownerID) {
			continue
		}
		inv := &Invitation{
			id:        uuid.New(),
			offerID:   o.ID(),
			entryID:   entry.ID(),
			patientID: entry.PatientID(),
			contact:   entry.Contact(),
			position:  len(o.invitations) + 1,
			status:    InvitationPending,
			expiresAt: o.expiresAt,
			createdAt: sharedDomain.NormalizeTime(now),
		}
		o.invitations = append(o.invitations, inv)
		issued = append(issued, inv)
		o.AddDomainEvent(NewInvitationIssued(o, inv))
	}
	if len(issued) == 0 {
		return nil, nil
	}
	if err := o.setStatus(OfferOffered); err != nil {
		return nil, err
	}
	return issued, nil
}

// AttachInvitationToken adds the raw response token to the pending
// issued event of the invitation.
func (o *SlotOffer) AttachInvitationToken(invitationID uuid.UUID, token string) {
	for _, e := range o.DomainEvents() {
		if issued, ok := e.(*InvitationIssued); ok && issued.InvitationID == invitationID {
			issued.ResponseToken = token
		}
	}
}

// Accept resolves the offer in favour of invitationID. All pending
// siblings expire.
//
// It returns ErrOfferExpired once the deadline has passed, expiring the
// offer in memory, ErrRaceLost when another invitation already won and
// ErrOfferWithdrawn for a cancelled offer. Accepting the winning
// invitation again returns changed=false.
func (o *SlotOffer) Accept(invitationID uuid.UUID, now time.Time) (changed bool, err error) {
	inv, err := o.Invitation(invitationID)
	if err != nil {
		return false, err
	}
	if o.holdingAndDue(now) {
		o.Expire(now)
		return false, ErrOfferExpired
	}

	switch o.status {
	case OfferAccepted:
		if o.acceptedInvitationID != nil && *o.acceptedInvitationID == invitationID {
			return false, nil
		}
		inv.expire()
		return false, ErrRaceLost
	case OfferExpired:
		inv.expire()
		return false, ErrOfferExpired
	case OfferCancelled:
		inv.expire()
		return false, ErrOfferWithdrawn
	}

	switch inv.status {
	case InvitationExpired:
		return false, ErrOfferExpired
	case InvitationPending:
		if inv.IsExpired(now) {
			inv.expire()
			return false, ErrOfferExpired
		}
	}
	if err := inv.transition(InvitationAccepted, now); err != nil {
		return false, err
	}
	for _, sibling := range o.invitations {
		if sibling.id != invitationID {
			sibling.expire()
		}
	}
	if err := o.setStatus(OfferAccepted); err != nil {
		return false, err
	}
	id := inv.id
	o.acceptedInvitationID = &id
	o.Touch(now)
	o.AddDomainEvent(NewOfferAccepted(o, inv))
	return true, nil
}

// Decline records a refusal. The offer and sibling invitations are
// untouched; declining twice is a no-op.
func (o *SlotOffer) Decline(invitationID uuid.UUID, now time.Time) (changed bool, err error) {
	inv, err := o.Invitation(invitationID)
	if err != nil {
		return false, err
	}
	if o.holdingAndDue(now) {
		o.Expire(now)
		return false, ErrOfferExpired
	}

	switch inv.status {
	case InvitationDeclined:
		return false, nil
	case InvitationExpired:
		return false, ErrOfferExpired
	case InvitationAccepted:
		return false, transitionError("invitation", inv.status, InvitationDeclined)
	}
	if !o.status.IsHolding() {
		inv.expire()
		return false, ErrOfferExpired
	}
	if err := inv.transition(InvitationDeclined, now); err != nil {
		return false, err
	}
	o.Touch(now)
	o.AddDomainEvent(NewInvitationDeclined(o, inv))
	return true, nil
}

// Expire closes a holding offer whose deadline has passed and expires
// its pending invitations. It reports whether anything changed.
func (o *SlotOffer) Expire(now time.Time) bool {
	if !o.holdingAndDue(now) {
		return false
	}
	o.status = OfferExpired
	for _, inv := range o.invitations {
		inv.expire()
	}
	o.Touch(now)
	o.AddDomainEvent(NewOfferLifecycleEvent(o, RoutingKeyOfferExpired, ""))
	return true
}

// Cancel withdraws a holding offer.
func (o *SlotOffer) Cancel(reason string, now time.Time) error {
	if err := o.setStatus(OfferCancelled); err != nil {
		return err
	}
	for _, inv := range o.invitations {
		inv.expire()
	}
	o.Touch(now)
	o.AddDomainEvent(NewOfferLifecycleEvent(o, RoutingKeyOfferCancelled, reason))
	return nil
}

// AttachAppointment records the appointment booked for the winner.
func (o *SlotOffer) AttachAppointment(appointmentID uuid.UUID, now time.Time) {
	o.appointmentID = &appointmentID
	o.Touch(now)
	for _, e := range o.DomainEvents() {
		if accepted, ok := e.(*OfferAcceptedEvent); ok {
			accepted.AppointmentID = &appointmentID
		}
	}
}
