package commands

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = observability.Tracer("chiroflow/scheduling")

// BookAppointmentCommand claims one slot for a patient. The start is
// either StartsAt or the owner-local Date and Time.
type BookAppointmentCommand struct {
	OwnerID       uuid.UUID
	PatientID     uuid.UUID
	ServiceTypeID uuid.UUID
	Date          string
	Time          string
	StartsAt      time.Time
	Notes         string

	// HoldOverride lets a slot offer book the interval it holds.
	HoldOverride *uuid.UUID

	// ByStaff skips the notice window and booking horizon.
	ByStaff bool

	ActorID uuid.UUID
}

// BookAppointmentResult is the booked appointment.
type BookAppointmentResult struct {
	AppointmentID   uuid.UUID
	StartsAt        time.Time
	EndsAt          time.Time
	Status          string
	AttendanceToken string
}

// BookAppointmentHandler handles BookAppointmentCommand.
type BookAppointmentHandler struct {
	appointments domain.AppointmentRepository
	hours        domain.BusinessHoursRepository
	services     domain.ServiceTypeRepository
	tokens       application.TokenIssuer
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	clock        sharedApplication.Clock
	metrics      observability.Metrics
}

// NewBookAppointmentHandler creates a BookAppointmentHandler.
func NewBookAppointmentHandler(
	appointments domain.AppointmentRepository,
	hours domain.BusinessHoursRepository,
	services domain.ServiceTypeRepository,
	tokens application.TokenIssuer,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clock sharedApplication.Clock,
) *BookAppointmentHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &BookAppointmentHandler{
		appointments: appointments,
		hours:        hours,
		services:     services,
		tokens:       tokens,
		outboxRepo:   outboxRepo,
		uow:          uow,
		clock:        clock,
		metrics:      observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics collector.
func (h *BookAppointmentHandler) WithMetrics(m observability.Metrics) *BookAppointmentHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes BookAppointmentCommand. A taken interval returns
// domain.ErrSlotConflict and is never retried here.
func (h *BookAppointmentHandler) Handle(ctx context.Context, cmd BookAppointmentCommand) (result *BookAppointmentResult, err error) {
	ctx, span := observability.StartSpan(ctx, tracer, "scheduling.book",
		attribute.String("owner_id", cmd.OwnerID.String()))
	defer func() { observability.EndSpan(span, err) }()

	now := h.clock.Now()

	service, err := h.services.FindByID(ctx, cmd.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	if service.OwnerID() != cmd.OwnerID || !service.IsActive() {
		return nil, domain.ErrServiceTypeNotFound
	}
	bypass := cmd.ByStaff || cmd.HoldOverride != nil
	if !bypass && !service.AllowsOnlineBooking() {
		return nil, sharedDomain.NewValidationError("service_type_id", "%q cannot be booked online", service.Name())
	}

	hours, err := h.hours.FindByOwner(ctx, cmd.OwnerID)
	if err != nil {
		return nil, err
	}

	start := cmd.StartsAt
	if start.IsZero() {
		start, err = hours.ParseLocalStart(cmd.Date, cmd.Time)
		if err != nil {
			return nil, err
		}
	}
	iv := domain.NewInterval(start, service.Duration())
	if err := checkBookable(hours, iv, now, bypass); err != nil {
		return nil, err
	}

	return sharedApplication.InUnitOfWork(ctx, h.uow, func(txCtx context.Context) (*BookAppointmentResult, error) {
		appointment, err := domain.NewAppointment(cmd.OwnerID, cmd.PatientID, service.ID(), iv, cmd.Notes, now)
		if err != nil {
			return nil, err
		}

		if err := h.appointments.Book(txCtx, appointment, domain.BookOptions{
			HoldOverride: cmd.HoldOverride,
			Now:          now,
		}); err != nil {
			if errors.Is(err, domain.ErrSlotConflict) {
				h.metrics.Counter(observability.MetricBookingConflicts, 1)
			}
			return nil, err
		}

		token, err := h.tokens.IssueToken(txCtx, application.IssueTokenRequest{
			SubjectKind: accessDomain.SubjectAppointment,
			SubjectID:   appointment.ID(),
			ActionClass: accessDomain.ClassAppointmentAttendance,
			ExpiresAt:   appointment.StartsAt(),
		})
		if err != nil {
			return nil, err
		}
		appointment.AttachAttendanceToken(token)

		if err := outbox.SaveEvents(txCtx, h.outboxRepo, appointment, sharedApplication.NewEventMetadata(txCtx, cmd.ActorID)); err != nil {
			return nil, err
		}

		h.metrics.Counter(observability.MetricBookingsTotal, 1)
		return &BookAppointmentResult{
			AppointmentID:   appointment.ID(),
			StartsAt:        appointment.StartsAt(),
			EndsAt:          appointment.EndsAt(),
			Status:          string(appointment.Status()),
			AttendanceToken: token,
		}, nil
	})
}

// checkBookable applies the opening hours always and the notice window
// and booking horizon unless bypass is set.
func checkBookable(hours *domain.BusinessHours, iv domain.Interval, now time.Time, bypass bool) error {
	if !iv.Start.After(now) {
		return sharedDomain.NewValidationError("starts_at", "must be in the future")
	}
	if !hours.Contains(iv) {
		return sharedDomain.NewValidationError("starts_at", "%s is outside business hours", iv.Start.In(hours.Location()).Format("2006-01-02 15:04"))
	}
	if bypass {
		return nil
	}
	if iv.Start.Before(now.Add(hours.MinimumNotice())) {
		return sharedDomain.NewValidationError("starts_at", "must be at least %d hours ahead", hours.MinimumNoticeHours())
	}
	horizon := now.AddDate(0, 0, hours.AdvanceBookingDays()+1)
	if !iv.Start.Before(horizon) {
		return sharedDomain.NewValidationError("starts_at", "must be within %d days", hours.AdvanceBookingDays())
	}
	return nil
}
