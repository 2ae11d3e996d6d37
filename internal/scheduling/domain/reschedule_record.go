package domain

import (
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// RescheduleRecord is the audit entry written for every executed move.
type RescheduleRecord struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	OldStartsAt   time.Time
	NewStartsAt   time.Time
	Reason        string
	WithinPolicy  bool
	FeeCents      int64
	RescheduledBy uuid.UUID
	RescheduledAt time.Time
}

// NewRescheduleRecord captures a move that has just been applied.
func NewRescheduleRecord(appointmentID uuid.UUID, from, to time.Time, reason string, eval PolicyEvaluation, by uuid.UUID, now time.Time) RescheduleRecord {
	return RescheduleRecord{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		OldStartsAt:   from,
		NewStartsAt:   to,
		Reason:        reason,
		WithinPolicy:  eval.WithinPolicy,
		FeeCents:      eval.PotentialFeeCents,
		RescheduledBy: by,
		RescheduledAt: sharedDomain.NormalizeTime(now),
	}
}
