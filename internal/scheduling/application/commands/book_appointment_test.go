package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type bookFixture struct {
	appointments *mockAppointmentRepo
	hours        *mockHoursRepo
	services     *mockServiceRepo
	tokens       *mockTokenIssuer
	outbox       *outbox.InMemoryRepository
	uow          *mockUnitOfWork
	metrics      *observability.InMemoryMetrics
	handler      *BookAppointmentHandler

	ownerID uuid.UUID
	service *domain.ServiceType
}

func newBookFixture(t *testing.T) *bookFixture {
	t.Helper()
	f := &bookFixture{
		appointments: new(mockAppointmentRepo),
		hours:        new(mockHoursRepo),
		services:     new(mockServiceRepo),
		tokens:       new(mockTokenIssuer),
		outbox:       outbox.NewInMemoryRepository(),
		uow:          new(mockUnitOfWork),
		metrics:      observability.NewInMemoryMetrics(),
		ownerID:      uuid.New(),
	}
	service, err := domain.NewServiceType(f.ownerID, "Adjustment", 30, 6500, testNow)
	require.NoError(t, err)
	f.service = service

	f.handler = NewBookAppointmentHandler(f.appointments, f.hours, f.services, f.tokens,
		f.outbox, f.uow, sharedApplication.FixedClock(testNow)).WithMetrics(f.metrics)

	f.services.On("FindByID", mock.Anything, service.ID()).Return(service, nil)
	f.hours.On("FindByOwner", mock.Anything, f.ownerID).Return(weekdayHours(t, f.ownerID, 24), nil)
	return f
}

func (f *bookFixture) command(date, clock string) BookAppointmentCommand {
	return BookAppointmentCommand{
		OwnerID:       f.ownerID,
		PatientID:     uuid.New(),
		ServiceTypeID: f.service.ID(),
		Date:          date,
		Time:          clock,
		ActorID:       uuid.New(),
	}
}

func TestBookAppointmentHandler_Handle(t *testing.T) {
	ctx := context.Background()
	txCtx := context.WithValue(ctx, "tx", "transaction")

	t.Run("books the slot and issues an attendance token", func(t *testing.T) {
		f := newBookFixture(t)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.appointments.On("Book", txCtx, mock.AnythingOfType("*domain.Appointment"), domain.BookOptions{Now: testNow}).Return(nil)
		f.tokens.On("IssueToken", txCtx, mock.MatchedBy(func(req application.IssueTokenRequest) bool {
			return req.SubjectKind == accessDomain.SubjectAppointment &&
				req.ActionClass == accessDomain.ClassAppointmentAttendance
		})).Return("raw-token", nil)

		result, err := f.handler.Handle(ctx, f.command("2026-10-21", "10:00"))
		require.NoError(t, err)

		assert.Equal(t, "2026-10-21T10:00:00Z", result.StartsAt.Format("2006-01-02T15:04:05Z07:00"))
		assert.Equal(t, result.StartsAt.Add(30*time.Minute), result.EndsAt)
		assert.Equal(t, "pending", result.Status)
		assert.Equal(t, "raw-token", result.AttendanceToken)
		assert.Equal(t, []string{domain.RoutingKeyAppointmentBooked}, f.outbox.RoutingKeys())
		assert.Contains(t, string(f.outbox.Messages()[0].Payload), "raw-token")
		assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricBookingsTotal))

		issued := f.tokens.Calls[0].Arguments.Get(1).(application.IssueTokenRequest)
		assert.Equal(t, result.AppointmentID, issued.SubjectID)
		assert.Equal(t, result.StartsAt, issued.ExpiresAt)
		f.uow.AssertExpectations(t)
	})

	t.Run("conflict is reported and rolled back", func(t *testing.T) {
		f := newBookFixture(t)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Rollback", txCtx).Return(nil)
		f.appointments.On("Book", txCtx, mock.Anything, mock.Anything).Return(domain.ErrSlotConflict)

		_, err := f.handler.Handle(ctx, f.command("2026-10-21", "10:00"))
		require.ErrorIs(t, err, domain.ErrSlotConflict)
		assert.ErrorIs(t, err, sharedDomain.ErrConflict)

		assert.Empty(t, f.outbox.Messages())
		assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricBookingConflicts))
		f.tokens.AssertNotCalled(t, "IssueToken", mock.Anything, mock.Anything)
		f.uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("hold override is forwarded to the ledger", func(t *testing.T) {
		f := newBookFixture(t)
		offerID := uuid.New()
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.appointments.On("Book", txCtx, mock.Anything, domain.BookOptions{HoldOverride: &offerID, Now: testNow}).Return(nil)
		f.tokens.On("IssueToken", txCtx, mock.Anything).Return("raw", nil)

		cmd := f.command("2026-10-20", "09:00")
		cmd.HoldOverride = &offerID
		_, err := f.handler.Handle(ctx, cmd)
		require.NoError(t, err)
		f.appointments.AssertExpectations(t)
	})

	rejections := []struct {
		name  string
		date  string
		clock string
		staff bool
	}{
		{name: "inside the notice window", date: "2026-10-20", clock: "09:00"},
		{name: "weekend", date: "2026-10-24", clock: "10:00", staff: true},
		{name: "runs past closing", date: "2026-10-21", clock: "16:45"},
		{name: "beyond the horizon", date: "2026-11-25", clock: "10:00"},
		{name: "in the past", date: "2026-10-19", clock: "09:00", staff: true},
		{name: "malformed time", date: "2026-10-21", clock: "10h00"},
	}
	for _, tc := range rejections {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			f := newBookFixture(t)
			cmd := f.command(tc.date, tc.clock)
			cmd.ByStaff = tc.staff

			_, err := f.handler.Handle(ctx, cmd)
			require.Error(t, err)
			assert.True(t, sharedDomain.IsValidation(err), err.Error())
			f.uow.AssertNotCalled(t, "Begin", mock.Anything)
		})
	}

	t.Run("staff may book inside the notice window", func(t *testing.T) {
		f := newBookFixture(t)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.appointments.On("Book", txCtx, mock.Anything, mock.Anything).Return(nil)
		f.tokens.On("IssueToken", txCtx, mock.Anything).Return("raw", nil)

		cmd := f.command("2026-10-20", "09:00")
		cmd.ByStaff = true
		_, err := f.handler.Handle(ctx, cmd)
		require.NoError(t, err)
	})

	t.Run("online booking disabled", func(t *testing.T) {
		f := newBookFixture(t)
		f.service.SetBookingFlags(false, false, testNow)

		_, err := f.handler.Handle(ctx, f.command("2026-10-21", "10:00"))
		assert.True(t, sharedDomain.IsValidation(err))
	})

	t.Run("service of another owner", func(t *testing.T) {
		f := newBookFixture(t)
		cmd := f.command("2026-10-21", "10:00")
		cmd.OwnerID = uuid.New()

		_, err := f.handler.Handle(ctx, cmd)
		assert.ErrorIs(t, err, domain.ErrServiceTypeNotFound)
	})
}
