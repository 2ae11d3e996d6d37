package domain

import (
	"fmt"
	"strings"

	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

var (
	// ErrSlotConflict means the requested interval overlaps a live
	// appointment or an active hold. Callers re-fetch availability.
	ErrSlotConflict = fmt.Errorf("slot is no longer available: %w", sharedDomain.ErrConflict)

	ErrAppointmentNotFound   = fmt.Errorf("appointment %w", sharedDomain.ErrNotFound)
	ErrServiceTypeNotFound   = fmt.Errorf("service type %w", sharedDomain.ErrNotFound)
	ErrBusinessHoursNotFound = fmt.Errorf("business hours %w", sharedDomain.ErrNotFound)

	ErrAppointmentNotStarted = fmt.Errorf("appointment has not started yet: %w", sharedDomain.ErrInvalidTransition)
)

// PolicyViolationError lists every rule a reschedule or cancellation broke.
type PolicyViolationError struct {
	Reasons []string
}

// NewPolicyViolation creates a PolicyViolationError.
func NewPolicyViolation(reasons ...string) *PolicyViolationError {
	return &PolicyViolationError{Reasons: reasons}
}

func (e *PolicyViolationError) Error() string {
	return "policy violation: " + strings.Join(e.Reasons, "; ")
}

// Unwrap lets errors.Is match ErrPolicyViolation.
func (e *PolicyViolationError) Unwrap() error {
	return sharedDomain.ErrPolicyViolation
}
