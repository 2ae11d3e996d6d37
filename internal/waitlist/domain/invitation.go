package domain

import (
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// Invitation offers one waitlisted patient the freed interval. It belongs
// to a SlotOffer and is only changed through it.
type Invitation struct {
	id          uuid.UUID
	offerID     uuid.UUID
	entryID     uuid.UUID
	patientID   uuid.UUID
	contact     Contact
	position    int
	status      InvitationStatus
	expiresAt   time.Time
	respondedAt *time.Time
	createdAt   time.Time
}

// RehydrateInvitation recreates an invitation from persisted state.
// contact is not stored with the invitation and may be empty.
func RehydrateInvitation(
	id, offerID, entryID, patientID uuid.UUID,
	position int,
	status InvitationStatus,
	expiresAt time.Time,
	respondedAt *time.Time,
	createdAt time.Time,
) *Invitation {
	return &Invitation{
		id:          id,
		offerID:     offerID,
		entryID:     entryID,
		patientID:   patientID,
		position:    position,
		status:      status,
		expiresAt:   expiresAt.UTC(),
		respondedAt: respondedAt,
		createdAt:   createdAt.UTC(),
	}
}

func (i *Invitation) ID() uuid.UUID            { return i.id }
func (i *Invitation) OfferID() uuid.UUID       { return i.offerID }
func (i *Invitation) EntryID() uuid.UUID       { return i.entryID }
func (i *Invitation) PatientID() uuid.UUID     { return i.patientID }
func (i *Invitation) Contact() Contact         { return i.contact }
func (i *Invitation) Position() int            { return i.position }
func (i *Invitation) Status() InvitationStatus { return i.status }
func (i *Invitation) ExpiresAt() time.Time     { return i.expiresAt }
func (i *Invitation) RespondedAt() *time.Time  { return i.respondedAt }
func (i *Invitation) CreatedAt() time.Time     { return i.createdAt }

// IsExpired reports whether the response window has closed. Comparison
// is in UTC.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.UTC().Before(i.expiresAt)
}

func (i *Invitation) transition(to InvitationStatus, now time.Time) error {
	if !i.status.CanTransitionTo(to) {
		return transitionError("invitation", i.status, to)
	}
	i.status = to
	if to != InvitationExpired {
		ts := sharedDomain.NormalizeTime(now)
		i.respondedAt = &ts
	}
	return nil
}

// expire moves a pending invitation to expired and reports whether it
// changed.
func (i *Invitation) expire() bool {
	if i.status != InvitationPending {
		return false
	}
	i.status = InvitationExpired
	return true
}
