package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// MaxRebookingSlots caps how many times staff may propose at once.
const MaxRebookingSlots = 10

// RebookingTimeSlot is one candidate time proposed to the patient.
type RebookingTimeSlot struct {
	ID       uuid.UUID     `json:"id"`
	StartsAt time.Time     `json:"starts_at"`
	Duration time.Duration `json:"-"`
}

// DurationMinutes returns the slot length in minutes.
func (s RebookingTimeSlot) DurationMinutes() int { return int(s.Duration / time.Minute) }

// RebookingRequest proposes staff-curated times to a single patient.
type RebookingRequest struct {
	sharedDomain.BaseAggregateRoot
	ownerID               uuid.UUID
	patientID             uuid.UUID
	serviceTypeID         uuid.UUID
	originalAppointmentID *uuid.UUID
	status                RebookingStatus
	expiresAt             time.Time
	notes                 string
	responseNotes         string
	selectedSlotID        *uuid.UUID
	appointmentID         *uuid.UUID
	respondedAt           *time.Time
	slots                 []RebookingTimeSlot
}

// NewRebookingRequest creates a pending request for the given starts.
// Every start must be in the future; the deadline is capped at the last
// proposed start.
func NewRebookingRequest(
	ownerID, patientID, serviceTypeID uuid.UUID,
	originalAppointmentID *uuid.UUID,
	starts []time.Time,
	duration time.Duration,
	expiresAt time.Time,
	notes string,
	now time.Time,
) (*RebookingRequest, error) {
	switch {
	case ownerID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("owner_id", "is required")
	case patientID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("patient_id", "is required")
	case serviceTypeID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("service_type_id", "is required")
	case len(starts) == 0:
		return nil, sharedDomain.NewValidationError("time_slots", "at least one is required")
	case len(starts) > MaxRebookingSlots:
		return nil, sharedDomain.NewValidationError("time_slots", "at most %d are allowed", MaxRebookingSlots)
	case duration <= 0:
		return nil, sharedDomain.NewValidationError("duration", "must be positive")
	case !expiresAt.After(now):
		return nil, sharedDomain.NewValidationError("expires_at", "must be in the future")
	}

	sorted := append([]time.Time(nil), starts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	slots := make([]RebookingTimeSlot, 0, len(sorted))
	for i, start := range sorted {
		if !start.After(now) {
			return nil, sharedDomain.NewValidationError("time_slots", "%s is in the past", start.UTC().Format(time.RFC3339))
		}
		if i > 0 && start.Equal(sorted[i-1]) {
			return nil, sharedDomain.NewValidationError("time_slots", "%s is listed twice", start.UTC().Format(time.RFC3339))
		}
		slots = append(slots, RebookingTimeSlot{
			ID:       uuid.New(),
			StartsAt: sharedDomain.NormalizeTime(start),
			Duration: duration,
		})
	}
	if last := slots[len(slots)-1].StartsAt; expiresAt.After(last) {
		expiresAt = last
	}

	r := &RebookingRequest{
		BaseAggregateRoot:     sharedDomain.NewBaseAggregateRoot(now),
		ownerID:               ownerID,
		patientID:             patientID,
		serviceTypeID:         serviceTypeID,
		originalAppointmentID: originalAppointmentID,
		status:                RebookingPending,
		expiresAt:             sharedDomain.NormalizeTime(expiresAt),
		notes:                 strings.TrimSpace(notes),
		slots:                 slots,
	}
	r.AddDomainEvent(NewRebookingRequested(r))
	return r, nil
}

// RehydrateRebookingRequest recreates a request from persisted state.
func RehydrateRebookingRequest(
	id, ownerID, patientID, serviceTypeID uuid.UUID,
	originalAppointmentID *uuid.UUID,
	status RebookingStatus,
	expiresAt time.Time,
	notes, responseNotes string,
	selectedSlotID, appointmentID *uuid.UUID,
	respondedAt *time.Time,
	slots []RebookingTimeSlot,
	version int,
	createdAt, updatedAt time.Time,
) *RebookingRequest {
	return &RebookingRequest{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		ownerID:               ownerID,
		patientID:             patientID,
		serviceTypeID:         serviceTypeID,
		originalAppointmentID: originalAppointmentID,
		status:                status,
		expiresAt:             expiresAt.UTC(),
		notes:                 notes,
		responseNotes:         responseNotes,
		selectedSlotID:        selectedSlotID,
		appointmentID:         appointmentID,
		respondedAt:           respondedAt,
		slots:                 slots,
	}
}

func (r *RebookingRequest) OwnerID() uuid.UUID                { return r.ownerID }
func (r *RebookingRequest) PatientID() uuid.UUID              { return r.patientID }
func (r *RebookingRequest) ServiceTypeID() uuid.UUID          { return r.serviceTypeID }
func (r *RebookingRequest) OriginalAppointmentID() *uuid.UUID { return r.originalAppointmentID }
func (r *RebookingRequest) Status() RebookingStatus           { return r.status }
func (r *RebookingRequest) ExpiresAt() time.Time              { return r.expiresAt }
func (r *RebookingRequest) Notes() string                     { return r.notes }
func (r *RebookingRequest) ResponseNotes() string             { return r.responseNotes }
func (r *RebookingRequest) SelectedSlotID() *uuid.UUID        { return r.selectedSlotID }
func (r *RebookingRequest) AppointmentID() *uuid.UUID         { return r.appointmentID }
func (r *RebookingRequest) RespondedAt() *time.Time           { return r.respondedAt }
func (r *RebookingRequest) Slots() []RebookingTimeSlot        { return r.slots }

// Slot returns the proposed slot with id.
func (r *RebookingRequest) Slot(id uuid.UUID) (RebookingTimeSlot, error) {
	for _, s := range r.slots {
		if s.ID == id {
			return s, nil
		}
	}
	return RebookingTimeSlot{}, ErrTimeSlotNotFound
}

// CheckRespondable fails for a request that can no longer be answered.
// A pending request past its deadline is expired in memory first.
func (r *RebookingRequest) CheckRespondable(now time.Time) error {
	if r.Expire(now) {
		return ErrRebookingExpired
	}
	switch r.status {
	case RebookingPending:
		return nil
	case RebookingExpired:
		return ErrRebookingExpired
	}
	return transitionError("rebooking request", r.status, "a new response")
}

// Expire closes a pending request whose deadline has passed.
func (r *RebookingRequest) Expire(now time.Time) bool {
	if r.status != RebookingPending || now.UTC().Before(r.expiresAt) {
		return false
	}
	r.status = RebookingExpired
	r.Touch(now)
	r.AddDomainEvent(NewRebookingResolved(r, RoutingKeyRebookingExpired))
	return true
}

// MarkAccepted records the appointment booked for the chosen slot.
func (r *RebookingRequest) MarkAccepted(slotID, appointmentID uuid.UUID, notes string, now time.Time) error {
	if _, err := r.Slot(slotID); err != nil {
		return err
	}
	if err := r.respond(RebookingAccepted, notes, now); err != nil {
		return err
	}
	r.selectedSlotID = &slotID
	r.appointmentID = &appointmentID
	r.AddDomainEvent(NewRebookingResolved(r, RoutingKeyRebookingAccepted))
	return nil
}

// Decline records that none of the times suit the patient.
func (r *RebookingRequest) Decline(notes string, now time.Time) error {
	if err := r.respond(RebookingDeclined, notes, now); err != nil {
		return err
	}
	r.AddDomainEvent(NewRebookingResolved(r, RoutingKeyRebookingDeclined))
	return nil
}

// RequestCallback records that the patient wants to be called.
func (r *RebookingRequest) RequestCallback(notes string, now time.Time) error {
	if err := r.respond(RebookingCallbackRequested, notes, now); err != nil {
		return err
	}
	r.AddDomainEvent(NewRebookingResolved(r, RoutingKeyRebookingCallbackRequested))
	return nil
}

func (r *RebookingRequest) respond(to RebookingStatus, notes string, now time.Time) error {
	if err := r.CheckRespondable(now); err != nil {
		return err
	}
	if !r.status.CanTransitionTo(to) {
		return transitionError("rebooking request", r.status, to)
	}
	ts := sharedDomain.NormalizeTime(now)
	r.status = to
	r.responseNotes = strings.TrimSpace(notes)
	r.respondedAt = &ts
	r.Touch(now)
	return nil
}
