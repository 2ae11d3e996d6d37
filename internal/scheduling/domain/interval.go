package domain

import (
	"time"

	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// Interval is a half-open [Start, End) span in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval creates the interval starting at start and lasting d.
func NewInterval(start time.Time, d time.Duration) Interval {
	start = sharedDomain.NormalizeTime(start)
	return Interval{Start: start, End: start.Add(d)}
}

// Duration returns the interval length.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the two half-open intervals share any instant.
// Touching intervals do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Equal reports whether both bounds match.
func (i Interval) Equal(other Interval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}
