package domain

import (
	"errors"
	"time"
)

// ValueObject represents an immutable domain concept defined by its attributes.
type ValueObject interface {
	Equals(other ValueObject) bool
}

// ErrInvalidTimeRange is returned when a range does not end after it starts.
var ErrInvalidTimeRange = errors.New("end must be after start")

// TimeRange is a half-open interval [Start, End) in UTC.
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange creates a TimeRange, rejecting empty or inverted ranges.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{start: NormalizeTime(start), end: NormalizeTime(end)}, nil
}

// MustTimeRange is NewTimeRange for callers that already validated the bounds.
func MustTimeRange(start time.Time, d time.Duration) TimeRange {
	r, err := NewTimeRange(start, start.Add(d))
	if err != nil {
		panic(err)
	}
	return r
}

func (r TimeRange) Start() time.Time        { return r.start }
func (r TimeRange) End() time.Time          { return r.end }
func (r TimeRange) Duration() time.Duration { return r.end.Sub(r.start) }

// IsZero reports whether the range was never set.
func (r TimeRange) IsZero() bool {
	return r.start.IsZero() && r.end.IsZero()
}

// Overlaps reports whether the two half-open ranges share any instant.
// Touching ranges (one ends exactly when the other starts) do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.start.Before(other.end) && other.start.Before(r.end)
}

// Contains reports whether other lies entirely inside r.
func (r TimeRange) Contains(other TimeRange) bool {
	return !other.start.Before(r.start) && !other.end.After(r.end)
}

// Equals checks if two ranges cover the same instants.
func (r TimeRange) Equals(other ValueObject) bool {
	o, ok := other.(TimeRange)
	if !ok {
		return false
	}
	return r.start.Equal(o.start) && r.end.Equal(o.end)
}
