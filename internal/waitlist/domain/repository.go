package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WaitlistEntryRepository stores the waitlist queue.
type WaitlistEntryRepository interface {
	Create(ctx context.Context, entry *WaitlistEntry) error
	// FindByID returns ErrEntryNotFound when missing.
	FindByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	// NextInQueue returns up to limit active entries for the service,
	// earliest created first, that accept ownerID.
	NextInQueue(ctx context.Context, serviceTypeID, ownerID uuid.UUID, limit int) ([]*WaitlistEntry, error)
	// Update persists status changes.
	Update(ctx context.Context, entry *WaitlistEntry) error
}

// SlotOfferRepository stores offers together with their invitations.
type SlotOfferRepository interface {
	Create(ctx context.Context, offer *SlotOffer) error
	// FindByID returns ErrOfferNotFound when missing.
	FindByID(ctx context.Context, id uuid.UUID) (*SlotOffer, error)
	// FindByInvitationID loads the offer owning the invitation or returns
	// ErrInvitationNotFound.
	FindByInvitationID(ctx context.Context, invitationID uuid.UUID) (*SlotOffer, error)
	// Lock bumps the version guarded by the loaded one, claiming the
	// offer for the rest of the caller's transaction. Returns
	// ErrConcurrentUpdate when another writer won.
	Lock(ctx context.Context, offer *SlotOffer) error
	// Save writes the offer and every invitation guarded by the loaded
	// version. Returns ErrConcurrentUpdate when another writer won.
	Save(ctx context.Context, offer *SlotOffer) error
	// SaveInvitationResponse persists one invitation's response without
	// touching the offer version. It returns false when the invitation
	// was no longer pending.
	SaveInvitationResponse(ctx context.Context, inv *Invitation) (bool, error)
	// ListDue returns ids of holding offers whose deadline is at or
	// before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// RebookingRequestRepository stores rebooking requests and their slots.
type RebookingRequestRepository interface {
	Create(ctx context.Context, request *RebookingRequest) error
	// FindByID returns ErrRebookingNotFound when missing.
	FindByID(ctx context.Context, id uuid.UUID) (*RebookingRequest, error)
	// Save writes status fields guarded by the loaded version.
	Save(ctx context.Context, request *RebookingRequest) error
}
