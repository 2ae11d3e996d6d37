package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FeeTier charges AmountCents when a change happens less than Within
// before the appointment.
type FeeTier struct {
	Within      time.Duration
	AmountCents int64
}

// FeeSchedule is a set of late-change tiers.
type FeeSchedule []FeeTier

// NewFeeSchedule sorts the tiers by ascending window.
func NewFeeSchedule(tiers ...FeeTier) FeeSchedule {
	s := append(FeeSchedule(nil), tiers...)
	sort.Slice(s, func(i, j int) bool { return s[i].Within < s[j].Within })
	return s
}

// FeeFor returns the fee of the tightest tier whose window covers until.
// Beyond the widest tier the widest tier's fee applies.
func (s FeeSchedule) FeeFor(until time.Duration) int64 {
	if len(s) == 0 {
		return 0
	}
	for _, tier := range s {
		if until <= tier.Within {
			return tier.AmountCents
		}
	}
	return s[len(s)-1].AmountCents
}

// Rule reasons reported by Validate.
const (
	ReasonNotActive      = "appointment is %s"
	ReasonMaxReschedules = "maximum of %d reschedules reached"
	ReasonNotOwner       = "patient does not own this appointment"
	ReasonAlreadyStarted = "appointment has already started"
)

// ReschedulePolicy gates moves and cancellations of an appointment.
type ReschedulePolicy struct {
	MaxReschedules int
	MinNoticeHours int
	LateFees       FeeSchedule
}

// DefaultReschedulePolicy allows two moves with 24 hours notice.
func DefaultReschedulePolicy() ReschedulePolicy {
	return ReschedulePolicy{
		MaxReschedules: 2,
		MinNoticeHours: 24,
		LateFees: NewFeeSchedule(
			FeeTier{Within: 2 * time.Hour, AmountCents: 7500},
			FeeTier{Within: 12 * time.Hour, AmountCents: 5000},
			FeeTier{Within: 24 * time.Hour, AmountCents: 2500},
		),
	}
}

// MinNotice returns the notice window as a duration.
func (p ReschedulePolicy) MinNotice() time.Duration {
	return time.Duration(p.MinNoticeHours) * time.Hour
}

// PolicyEvaluation is the advisory outcome of Validate.
type PolicyEvaluation struct {
	CanReschedule         bool     `json:"can_reschedule"`
	Reasons               []string `json:"reasons"`
	HoursUntilAppointment float64  `json:"hours_until_appointment"`
	RescheduleCount       int      `json:"reschedule_count"`
	MaxReschedules        int      `json:"max_reschedules"`
	MinNoticeHours        int      `json:"min_notice_hours"`
	WithinPolicy          bool     `json:"within_policy"`
	PotentialFeeCents     int64    `json:"potential_fee_cents"`
}

// Validate runs every rule in order and collects all failures. A move
// inside the notice window stays allowed but is flagged and priced.
func (p ReschedulePolicy) Validate(a *Appointment, patientID uuid.UUID, now time.Time) PolicyEvaluation {
	until := a.StartsAt().Sub(now)
	eval := PolicyEvaluation{
		Reasons:               []string{},
		HoursUntilAppointment: math.Round(until.Hours()*100) / 100,
		RescheduleCount:       a.RescheduleCount(),
		MaxReschedules:        p.MaxReschedules,
		MinNoticeHours:        p.MinNoticeHours,
		WithinPolicy:          true,
	}

	if !a.Status().IsLive() {
		eval.Reasons = append(eval.Reasons, fmt.Sprintf(ReasonNotActive, a.Status()))
	}
	if a.RescheduleCount() >= p.MaxReschedules {
		eval.Reasons = append(eval.Reasons, fmt.Sprintf(ReasonMaxReschedules, p.MaxReschedules))
	}
	if patientID != a.PatientID() {
		eval.Reasons = append(eval.Reasons, ReasonNotOwner)
	}
	if until <= 0 {
		eval.Reasons = append(eval.Reasons, ReasonAlreadyStarted)
	}
	eval.CanReschedule = len(eval.Reasons) == 0

	if until < p.MinNotice() {
		eval.WithinPolicy = false
		eval.PotentialFeeCents = p.LateFees.FeeFor(until)
	}
	return eval
}

// CancellationEvaluation prices a cancellation.
type CancellationEvaluation struct {
	Late            bool    `json:"late"`
	FeeCents        int64   `json:"fee_cents"`
	HoursUntilStart float64 `json:"hours_until_start"`
}

// EvaluateCancellation flags cancellations inside the notice window.
func (p ReschedulePolicy) EvaluateCancellation(a *Appointment, now time.Time) CancellationEvaluation {
	until := a.StartsAt().Sub(now)
	eval := CancellationEvaluation{HoursUntilStart: math.Round(until.Hours()*100) / 100}
	if until < p.MinNotice() {
		eval.Late = true
		eval.FeeCents = p.LateFees.FeeFor(until)
	}
	return eval
}

// CheckCancellation returns a PolicyViolationError when patientID may not
// cancel the appointment. A nil patientID is a staff action.
func (p ReschedulePolicy) CheckCancellation(a *Appointment, patientID *uuid.UUID) error {
	var reasons []string
	if !a.Status().IsLive() {
		reasons = append(reasons, fmt.Sprintf(ReasonNotActive, a.Status()))
	}
	if patientID != nil && *patientID != a.PatientID() {
		reasons = append(reasons, ReasonNotOwner)
	}
	if len(reasons) > 0 {
		return NewPolicyViolation(reasons...)
	}
	return nil
}

// OffersFreedSlot reports whether a cancellation at now leaves enough lead
// time to shop the interval to the waitlist.
func OffersFreedSlot(a *Appointment, minimumNotice time.Duration, now time.Time) bool {
	return a.StartsAt().Sub(now) > minimumNotice
}
