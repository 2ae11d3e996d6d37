// Package domain models the waitlist: patients waiting for an earlier
// opening, slot offers shopped to them when an appointment is cancelled,
// and staff-curated rebooking requests.
package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// EntryStatus is the state of a waitlist entry.
type EntryStatus string

const (
	EntryActive   EntryStatus = "active"
	EntryResolved EntryStatus = "resolved"
	EntryRemoved  EntryStatus = "removed"
)

// ParseEntryStatus validates a stored entry status.
func ParseEntryStatus(s string) (EntryStatus, error) {
	switch st := EntryStatus(s); st {
	case EntryActive, EntryResolved, EntryRemoved:
		return st, nil
	}
	return "", sharedDomain.NewValidationError("status", "unknown waitlist entry status %q", s)
}

// Contact is how the notification collaborator reaches a patient.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// NewContact validates that at least one channel is present.
func NewContact(name, email, phone string) (Contact, error) {
	c := Contact{
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
		Phone: strings.TrimSpace(phone),
	}
	if c.Name == "" {
		return Contact{}, sharedDomain.NewValidationError("contact.name", "is required")
	}
	if c.Email == "" && c.Phone == "" {
		return Contact{}, sharedDomain.NewValidationError("contact", "email or phone is required")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return Contact{}, sharedDomain.NewValidationError("contact.email", "%q is not an email address", c.Email)
		}
	}
	return c, nil
}

// WaitlistEntry is a patient waiting for a service, optionally with one
// owner only.
type WaitlistEntry struct {
	sharedDomain.BaseEntity
	patientID     uuid.UUID
	contact       Contact
	serviceTypeID uuid.UUID
	ownerID       *uuid.UUID
	status        EntryStatus
	resolvedAt    *time.Time
}

// NewWaitlistEntry creates an active entry.
func NewWaitlistEntry(patientID uuid.UUID, contact Contact, serviceTypeID uuid.UUID, ownerID *uuid.UUID, now time.Time) (*WaitlistEntry, error) {
	if patientID == uuid.Nil {
		return nil, sharedDomain.NewValidationError("patient_id", "is required")
	}
	if serviceTypeID == uuid.Nil {
		return nil, sharedDomain.NewValidationError("service_type_id", "is required")
	}
	if ownerID != nil && *ownerID == uuid.Nil {
		ownerID = nil
	}
	return &WaitlistEntry{
		BaseEntity:    sharedDomain.NewBaseEntityAt(uuid.New(), now),
		patientID:     patientID,
		contact:       contact,
		serviceTypeID: serviceTypeID,
		ownerID:       ownerID,
		status:        EntryActive,
	}, nil
}

// RehydrateWaitlistEntry recreates an entry from persisted state.
func RehydrateWaitlistEntry(
	id, patientID uuid.UUID,
	contact Contact,
	serviceTypeID uuid.UUID,
	ownerID *uuid.UUID,
	status EntryStatus,
	createdAt time.Time,
	resolvedAt *time.Time,
) *WaitlistEntry {
	updatedAt := createdAt
	if resolvedAt != nil {
		updatedAt = *resolvedAt
	}
	return &WaitlistEntry{
		BaseEntity:    sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		patientID:     patientID,
		contact:       contact,
		serviceTypeID: serviceTypeID,
		ownerID:       ownerID,
		status:        status,
		resolvedAt:    resolvedAt,
	}
}

func (e *WaitlistEntry) PatientID() uuid.UUID     { return e.patientID }
func (e *WaitlistEntry) Contact() Contact         { return e.contact }
func (e *WaitlistEntry) ServiceTypeID() uuid.UUID { return e.serviceTypeID }
func (e *WaitlistEntry) OwnerID() *uuid.UUID      { return e.ownerID }
func (e *WaitlistEntry) Status() EntryStatus      { return e.status }
func (e *WaitlistEntry) ResolvedAt() *time.Time   { return e.resolvedAt }

// Matches reports whether the entry wants a slot of this service and
// owner.
func (e *WaitlistEntry) Matches(serviceTypeID, ownerID uuid.UUID) bool {
	if e.status != EntryActive || e.serviceTypeID != serviceTypeID {
		return false
	}
	return e.ownerID == nil || *e.ownerID == ownerID
}

// Resolve closes the entry after the patient got an appointment.
func (e *WaitlistEntry) Resolve(now time.Time) error {
	return e.close(EntryResolved, now)
}

// Remove withdraws the entry.
func (e *WaitlistEntry) Remove(now time.Time) error {
	return e.close(EntryRemoved, now)
}

func (e *WaitlistEntry) close(to EntryStatus, now time.Time) error {
	if e.status != EntryActive {
		return transitionError("waitlist entry", e.status, to)
	}
	ts := sharedDomain.NormalizeTime(now)
	e.status = to
	e.resolvedAt = &ts
	e.Touch(now)
	return nil
}
