package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// ClockTime is a wall-clock time of day in minutes after midnight.
// 24:00 is allowed as a closing time.
type ClockTime int

const minutesPerDay = 24 * 60

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, sharedDomain.NewValidationError("time", "%q is not HH:MM", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 || h*60+m > minutesPerDay {
		return 0, sharedDomain.NewValidationError("time", "%q is out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustClockTime is ParseClockTime for constants.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant this clock time falls on for the given calendar
// date in loc.
func (c ClockTime) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, int(c)/60, int(c)%60, 0, 0, loc)
}

// DayHours is the opening window for one weekday.
type DayHours struct {
	Enabled bool
	Open    ClockTime
	Close   ClockTime
}

// BusinessHours is the recurring weekly opening schedule for one owner.
type BusinessHours struct {
	ownerID            uuid.UUID
	timezone           string
	location           *time.Location
	days               [7]DayHours
	advanceBookingDays int
	minimumNoticeHours int
	updatedAt          time.Time
}

// NewBusinessHours creates a schedule with every weekday closed.
func NewBusinessHours(ownerID uuid.UUID, timezone string, advanceBookingDays, minimumNoticeHours int, now time.Time) (*BusinessHours, error) {
	if ownerID == uuid.Nil {
		return nil, sharedDomain.NewValidationError("owner_id", "is required")
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, sharedDomain.NewValidationError("timezone", "unknown timezone %q", timezone)
	}
	if advanceBookingDays <= 0 {
		return nil, sharedDomain.NewValidationError("advance_booking_days", "must be positive")
	}
	if minimumNoticeHours < 0 {
		return nil, sharedDomain.NewValidationError("minimum_notice_hours", "must not be negative")
	}
	return &BusinessHours{
		ownerID:            ownerID,
		timezone:           timezone,
		location:           loc,
		advanceBookingDays: advanceBookingDays,
		minimumNoticeHours: minimumNoticeHours,
		updatedAt:          sharedDomain.NormalizeTime(now),
	}, nil
}

// RehydrateBusinessHours recreates business hours from persisted state.
func RehydrateBusinessHours(
	ownerID uuid.UUID,
	timezone string,
	days [7]DayHours,
	advanceBookingDays, minimumNoticeHours int,
	updatedAt time.Time,
) (*BusinessHours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("stored timezone %q: %w", timezone, err)
	}
	return &BusinessHours{
		ownerID:            ownerID,
		timezone:           timezone,
		location:           loc,
		days:               days,
		advanceBookingDays: advanceBookingDays,
		minimumNoticeHours: minimumNoticeHours,
		updatedAt:          updatedAt.UTC(),
	}, nil
}

func (b *BusinessHours) OwnerID() uuid.UUID       { return b.ownerID }
func (b *BusinessHours) Timezone() string         { return b.timezone }
func (b *BusinessHours) Location() *time.Location { return b.location }
func (b *BusinessHours) Days() [7]DayHours        { return b.days }
func (b *BusinessHours) AdvanceBookingDays() int  { return b.advanceBookingDays }
func (b *BusinessHours) MinimumNoticeHours() int  { return b.minimumNoticeHours }
func (b *BusinessHours) UpdatedAt() time.Time     { return b.updatedAt }

// Day returns the opening window configured for a weekday.
func (b *BusinessHours) Day(w time.Weekday) DayHours { return b.days[w] }

// MinimumNotice returns the notice window as a duration.
func (b *BusinessHours) MinimumNotice() time.Duration {
	return time.Duration(b.minimumNoticeHours) * time.Hour
}

// SetDay opens a weekday between open and close.
func (b *BusinessHours) SetDay(w time.Weekday, open, closeAt ClockTime, now time.Time) error {
	if closeAt <= open {
		return sharedDomain.NewValidationError("close", "%s must be after %s on %s", closeAt, open, w)
	}
	b.days[w] = DayHours{Enabled: true, Open: open, Close: closeAt}
	b.updatedAt = sharedDomain.NormalizeTime(now)
	return nil
}

// CloseDay disables a weekday.
func (b *BusinessHours) CloseDay(w time.Weekday, now time.Time) {
	b.days[w] = DayHours{}
	b.updatedAt = sharedDomain.NormalizeTime(now)
}

// Window returns the opening window for the calendar date containing t in
// the owner's timezone. ok is false when that weekday is closed.
func (b *BusinessHours) Window(t time.Time) (Interval, bool) {
	local := t.In(b.location)
	day := b.days[local.Weekday()]
	if !day.Enabled {
		return Interval{}, false
	}
	y, m, d := local.Date()
	return Interval{
		Start: day.Open.On(y, m, d, b.location).UTC(),
		End:   day.Close.On(y, m, d, b.location).UTC(),
	}, true
}

// Contains reports whether iv lies entirely inside the opening window of
// the day it starts on.
func (b *BusinessHours) Contains(iv Interval) bool {
	window, ok := b.Window(iv.Start)
	if !ok {
		return false
	}
	return !iv.Start.Before(window.Start) && !iv.End.After(window.End)
}

// ParseLocalStart interprets date (YYYY-MM-DD) and clock (HH:MM) in the
// owner's timezone and returns the UTC instant.
func (b *BusinessHours) ParseLocalStart(date, clock string) (time.Time, error) {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, sharedDomain.NewValidationError("date", "%q is not YYYY-MM-DD", date)
	}
	c, err := ParseClockTime(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return c.On(y, m, d, b.location).UTC(), nil
}
