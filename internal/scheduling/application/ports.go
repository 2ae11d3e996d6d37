// Package application holds the ports the scheduling handlers call out
// through. Implementations live in the waitlist and access contexts and
// are wired by the container.
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
)

// FreedSlot is an interval released by a cancellation early enough to be
// shopped to the waitlist.
type FreedSlot struct {
	OwnerID             uuid.UUID
	ServiceTypeID       uuid.UUID
	SourceAppointmentID uuid.UUID
	StartsAt            time.Time
	Duration            time.Duration
	MinimumNotice       time.Duration
}

// OfferOpener opens a slot offer for a freed interval. It runs inside the
// caller's unit of work.
type OfferOpener interface {
	OpenOffer(ctx context.Context, slot FreedSlot) (uuid.UUID, error)
}

// IssueTokenRequest describes the single-purpose token to mint.
type IssueTokenRequest struct {
	SubjectKind accessDomain.SubjectKind
	SubjectID   uuid.UUID
	ActionClass accessDomain.ActionClass
	ExpiresAt   time.Time
}

// TokenIssuer mints action tokens and returns the raw value. Only the
// digest is stored.
type TokenIssuer interface {
	IssueToken(ctx context.Context, req IssueTokenRequest) (string, error)
}
