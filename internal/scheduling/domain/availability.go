package domain

import (
	"time"

	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

const (
	// DateLayout is the calendar date format used on every surface.
	DateLayout = "2006-01-02"
	// ClockLayout is the wall-clock format used on every surface.
	ClockLayout = "15:04"

	// MaxRangeDays bounds a single availability query.
	MaxRangeDays = 92
)

// Slot is a candidate appointment start not yet bound to an appointment.
type Slot struct {
	start    time.Time
	duration time.Duration
	loc      *time.Location
}

// NewSlot creates a slot starting at start, displayed in loc.
func NewSlot(start time.Time, duration time.Duration, loc *time.Location) Slot {
	if loc == nil {
		loc = time.UTC
	}
	return Slot{start: sharedDomain.NormalizeTime(start), duration: duration, loc: loc}
}

// Date returns the owner-local calendar date (YYYY-MM-DD).
func (s Slot) Date() string { return s.start.In(s.loc).Format(DateLayout) }

// Time returns the owner-local start time (HH:MM).
func (s Slot) Time() string { return s.start.In(s.loc).Format(ClockLayout) }

func (s Slot) StartsAt() time.Time     { return s.start }
func (s Slot) EndsAt() time.Time       { return s.start.Add(s.duration) }
func (s Slot) Duration() time.Duration { return s.duration }

// Interval returns the occupied span.
func (s Slot) Interval() Interval {
	return Interval{Start: s.start, End: s.EndsAt()}
}

// DateRange is an inclusive span of calendar dates.
type DateRange struct {
	from time.Time
	to   time.Time
}

// NewDateRange validates an inclusive range. Only the calendar date of
// each bound is used.
func NewDateRange(from, to time.Time) (DateRange, error) {
	from = dateOnly(from)
	to = dateOnly(to)
	if to.Before(from) {
		return DateRange{}, sharedDomain.NewValidationError("end_date", "must not be before start_date")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxRangeDays {
		return DateRange{}, sharedDomain.NewValidationError("end_date", "range exceeds %d days", MaxRangeDays)
	}
	return DateRange{from: from, to: to}, nil
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(from, to string) (DateRange, error) {
	start, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, sharedDomain.NewValidationError("start_date", "%q is not YYYY-MM-DD", from)
	}
	end, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, sharedDomain.NewValidationError("end_date", "%q is not YYYY-MM-DD", to)
	}
	return NewDateRange(start, end)
}

func (r DateRange) From() time.Time { return r.from }
func (r DateRange) To() time.Time   { return r.to }

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ComputeSlots lists every candidate start in the range, in chronological
// order, without consulting bookings. A date is offered only when its
// start of day is at least the minimum notice away from now and it lies
// within the advance booking horizon.
func ComputeSlots(hours *BusinessHours, serviceDuration time.Duration, dateRange DateRange, now time.Time) ([]Slot, error) {
	if hours == nil {
		return nil, ErrBusinessHoursNotFound
	}
	if serviceDuration <= 0 {
		return nil, sharedDomain.NewValidationError("duration", "must be positive")
	}

	loc := hours.Location()
	earliest := now.Add(hours.MinimumNotice())
	ty, tm, td := now.In(loc).Date()
	horizon := time.Date(ty, tm, td+hours.AdvanceBookingDays(), 0, 0, 0, 0, loc)

	var slots []Slot
	for d := dateRange.from; !d.After(dateRange.to); d = d.AddDate(0, 0, 1) {
		y, m, dd := d.Date()
		dayStart := time.Date(y, m, dd, 0, 0, 0, 0, loc)
		if dayStart.Before(earliest) || dayStart.After(horizon) {
			continue
		}

		day := hours.Day(dayStart.Weekday())
		if !day.Enabled {
			continue
		}

		open := day.Open.On(y, m, dd, loc)
		closeAt := day.Close.On(y, m, dd, loc)
		for start := open; !start.Add(serviceDuration).After(closeAt); start = start.Add(serviceDuration) {
			if start.Before(earliest) {
				continue
			}
			slots = append(slots, NewSlot(start, serviceDuration, loc))
		}
	}
	return slots, nil
}

// IsFree reports whether the interval overlaps none of the busy intervals.
func IsFree(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return false
		}
	}
	return true
}

// FilterAvailable returns the candidates that overlap no busy interval,
// preserving order.
func FilterAvailable(candidates []Slot, busy []Interval) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, s := range candidates {
		if IsFree(s.Interval(), busy) {
			out = append(out, s)
		}
	}
	return out
}
