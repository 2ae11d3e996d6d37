package commands

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// DaySpec opens one weekday. Weekday is an English day name.
type DaySpec struct {
	Weekday string `json:"weekday"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

// SetBusinessHoursCommand replaces an owner's weekly schedule. Weekdays
// not listed are closed.
type SetBusinessHoursCommand struct {
	OwnerID            uuid.UUID `json:"owner_id"`
	Timezone           string    `json:"timezone"`
	AdvanceBookingDays int       `json:"advance_booking_days"`
	MinimumNoticeHours int       `json:"minimum_notice_hours"`
	Days               []DaySpec `json:"days"`
}

// SetBusinessHoursHandler handles SetBusinessHoursCommand.
type SetBusinessHoursHandler struct {
	hours domain.BusinessHoursRepository
	clock sharedApplication.Clock
}

// NewSetBusinessHoursHandler creates a SetBusinessHoursHandler.
func NewSetBusinessHoursHandler(hours domain.BusinessHoursRepository, clock sharedApplication.Clock) *SetBusinessHoursHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &SetBusinessHoursHandler{hours: hours, clock: clock}
}

// Handle executes SetBusinessHoursCommand.
func (h *SetBusinessHoursHandler) Handle(ctx context.Context, cmd SetBusinessHoursCommand) (*domain.BusinessHours, error) {
	now := h.clock.Now()
	hours, err := domain.NewBusinessHours(cmd.OwnerID, cmd.Timezone, cmd.AdvanceBookingDays, cmd.MinimumNoticeHours, now)
	if err != nil {
		return nil, err
	}

	for _, day := range cmd.Days {
		weekday, err := parseWeekday(day.Weekday)
		if err != nil {
			return nil, err
		}
		open, err := domain.ParseClockTime(day.Open)
		if err != nil {
			return nil, err
		}
		closeAt, err := domain.ParseClockTime(day.Close)
		if err != nil {
			return nil, err
		}
		if err := hours.SetDay(weekday, open, closeAt, now); err != nil {
			return nil, err
		}
	}

	if err := h.hours.Save(ctx, hours); err != nil {
		return nil, err
	}
	return hours, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, sharedDomain.NewValidationError("weekday", "unknown weekday %q", s)
}
