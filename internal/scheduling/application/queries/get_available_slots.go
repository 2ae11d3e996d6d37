package queries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/resilience"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = observability.Tracer("chiroflow/scheduling")

// SlotView is one candidate start and whether it can be booked right now.
type SlotView struct {
	SlotDate     string    `json:"slot_date"`
	SlotTime     string    `json:"slot_time"`
	SlotDatetime time.Time `json:"slot_datetime"`
	IsAvailable  bool      `json:"is_available"`
}

// GetAvailableSlotsQuery lists an owner's slots between two dates. When
// DurationMinutes is zero the service type's duration is used.
type GetAvailableSlotsQuery struct {
	OwnerID         uuid.UUID
	StartDate       string
	EndDate         string
	DurationMinutes int
	ServiceTypeID   *uuid.UUID
}

// GetAvailableSlotsHandler handles GetAvailableSlotsQuery. Its store reads
// go through a resilience.Reader.
type GetAvailableSlotsHandler struct {
	hours        domain.BusinessHoursRepository
	services     domain.ServiceTypeRepository
	appointments domain.AppointmentRepository
	reader       *resilience.Reader
	clock        sharedApplication.Clock
	metrics      observability.Metrics
}

// NewGetAvailableSlotsHandler creates a GetAvailableSlotsHandler.
func NewGetAvailableSlotsHandler(
	hours domain.BusinessHoursRepository,
	services domain.ServiceTypeRepository,
	appointments domain.AppointmentRepository,
	reader *resilience.Reader,
	clock sharedApplication.Clock,
) *GetAvailableSlotsHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	if reader == nil {
		reader = resilience.NewReader(resilience.DefaultConfig("availability"), nil, nil)
	}
	return &GetAvailableSlotsHandler{
		hours:        hours,
		services:     services,
		appointments: appointments,
		reader:       reader,
		clock:        clock,
		metrics:      observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *GetAvailableSlotsHandler) WithMetrics(m observability.Metrics) *GetAvailableSlotsHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes GetAvailableSlotsQuery.
func (h *GetAvailableSlotsHandler) Handle(ctx context.Context, query GetAvailableSlotsQuery) (views []SlotView, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "scheduling.available_slots",
		attribute.String("owner_id", query.OwnerID.String()),
		attribute.String("start_date", query.StartDate),
		attribute.String("end_date", query.EndDate))
	defer func() { observability.EndSpan(span, err) }()

	dateRange, err := domain.ParseDateRange(query.StartDate, query.EndDate)
	if err != nil {
		return nil, err
	}
	duration, err := h.duration(ctx, query)
	if err != nil {
		return nil, err
	}

	hours, err := resilience.Do(ctx, h.reader, "business_hours", func(ctx context.Context) (*domain.BusinessHours, error) {
		return h.hours.FindByOwner(ctx, query.OwnerID)
	})
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	candidates, err := domain.ComputeSlots(hours, duration, dateRange, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []SlotView{}, nil
	}

	window := domain.Interval{Start: candidates[0].StartsAt(), End: candidates[len(candidates)-1].EndsAt()}
	busy, err := resilience.Do(ctx, h.reader, "list_busy", func(ctx context.Context) ([]domain.Interval, error) {
		return h.appointments.ListBusy(ctx, query.OwnerID, window, now)
	})
	if err != nil {
		return nil, err
	}

	views = make([]SlotView, len(candidates))
	available := 0
	for i, slot := range candidates {
		free := domain.IsFree(slot.Interval(), busy)
		if free {
			available++
		}
		views[i] = SlotView{
			SlotDate:     slot.Date(),
			SlotTime:     slot.Time(),
			SlotDatetime: slot.StartsAt(),
			IsAvailable:  free,
		}
	}

	span.SetAttributes(attribute.Int("slots.total", len(views)), attribute.Int("slots.available", available))
	h.metrics.Histogram(observability.MetricSlotsComputed, float64(len(views)))
	return views, nil
}

func (h *GetAvailableSlotsHandler) duration(ctx context.Context, query GetAvailableSlotsQuery) (time.Duration, error) {
	if query.DurationMinutes > 0 {
		return time.Duration(query.DurationMinutes) * time.Minute, nil
	}
	if query.ServiceTypeID == nil {
		return 0, sharedDomain.NewValidationError("duration", "must be positive")
	}
	service, err := resilience.Do(ctx, h.reader, "service_type", func(ctx context.Context) (*domain.ServiceType, error) {
		return h.services.FindByID(ctx, *query.ServiceTypeID)
	})
	if err != nil {
		return 0, err
	}
	return service.Duration(), nil
}
