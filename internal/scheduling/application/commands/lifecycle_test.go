package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConfirmAttendanceHandler_Handle(t *testing.T) {
	ctx := context.Background()
	txCtx := context.WithValue(ctx, "tx", "transaction")

	appt := existingAppointment(t, testNow.Add(48*time.Hour), domain.StatusPending, 0)
	appointments := new(mockAppointmentRepo)
	outboxRepo := outbox.NewInMemoryRepository()
	uow := new(mockUnitOfWork)
	uow.On("Begin", mock.Anything).Return(txCtx, nil)
	uow.On("Commit", txCtx).Return(nil)
	appointments.On("FindByID", txCtx, appt.ID()).Return(appt, nil)
	appointments.On("Update", txCtx, appt).Return(nil).Once()

	handler := NewConfirmAttendanceHandler(appointments, outboxRepo, uow, sharedApplication.FixedClock(testNow))

	first, err := handler.Handle(ctx, ConfirmAttendanceCommand{AppointmentID: appt.ID()})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", first.Status)
	assert.False(t, first.AlreadyConfirmed)

	second, err := handler.Handle(ctx, ConfirmAttendanceCommand{AppointmentID: appt.ID()})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", second.Status)
	assert.True(t, second.AlreadyConfirmed)

	appointments.AssertNumberOfCalls(t, "Update", 1)
	assert.Equal(t, []string{domain.RoutingKeyAppointmentConfirmed}, outboxRepo.RoutingKeys())
}

func TestConfirmAttendanceHandler_CancelledAppointment(t *testing.T) {
	ctx := context.Background()
	appt := existingAppointment(t, testNow.Add(48*time.Hour), domain.StatusCancelled, 0)

	appointments := new(mockAppointmentRepo)
	uow := new(mockUnitOfWork)
	uow.On("Begin", mock.Anything).Return(ctx, nil)
	uow.On("Rollback", ctx).Return(nil)
	appointments.On("FindByID", ctx, appt.ID()).Return(appt, nil)

	handler := NewConfirmAttendanceHandler(appointments, outbox.NewInMemoryRepository(), uow, sharedApplication.FixedClock(testNow))

	_, err := handler.Handle(ctx, ConfirmAttendanceCommand{AppointmentID: appt.ID()})
	assert.ErrorIs(t, err, sharedDomain.ErrInvalidTransition)
}

func TestRecordOutcomeHandler_Handle(t *testing.T) {
	ctx := context.Background()
	txCtx := context.WithValue(ctx, "tx", "transaction")

	newHandler := func(appt *domain.Appointment) (*RecordOutcomeHandler, *mockAppointmentRepo, *outbox.InMemoryRepository) {
		appointments := new(mockAppointmentRepo)
		outboxRepo := outbox.NewInMemoryRepository()
		uow := new(mockUnitOfWork)
		uow.On("Begin", mock.Anything).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		uow.On("Rollback", txCtx).Return(nil)
		appointments.On("FindByID", txCtx, appt.ID()).Return(appt, nil)
		appointments.On("Update", txCtx, appt).Return(nil)
		return NewRecordOutcomeHandler(appointments, outboxRepo, uow, sharedApplication.FixedClock(testNow)), appointments, outboxRepo
	}

	t.Run("no show after start", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(-time.Hour), domain.StatusConfirmed, 0)
		handler, _, outboxRepo := newHandler(appt)

		err := handler.Handle(ctx, RecordOutcomeCommand{AppointmentID: appt.ID(), Outcome: "no_show"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNoShow, appt.Status())
		assert.Equal(t, []string{domain.RoutingKeyAppointmentNoShow}, outboxRepo.RoutingKeys())
	})

	t.Run("before start", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(time.Hour), domain.StatusConfirmed, 0)
		handler, appointments, _ := newHandler(appt)

		err := handler.Handle(ctx, RecordOutcomeCommand{AppointmentID: appt.ID(), Outcome: "completed"})
		assert.ErrorIs(t, err, domain.ErrAppointmentNotStarted)
		appointments.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(-time.Hour), domain.StatusConfirmed, 0)
		handler, appointments, _ := newHandler(appt)

		err := handler.Handle(ctx, RecordOutcomeCommand{AppointmentID: appt.ID(), Outcome: "vanished"})
		assert.True(t, sharedDomain.IsValidation(err))
		appointments.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestRescheduleAppointmentHandler_Handle(t *testing.T) {
	ctx := context.Background()
	txCtx := context.WithValue(ctx, "tx", "transaction")
	policy := domain.DefaultReschedulePolicy()

	type fixture struct {
		handler      *RescheduleAppointmentHandler
		appointments *mockAppointmentRepo
		reschedules  *mockRescheduleRepo
		outbox       *outbox.InMemoryRepository
	}
	setup := func(t *testing.T, appt *domain.Appointment) fixture {
		f := fixture{
			appointments: new(mockAppointmentRepo),
			reschedules:  new(mockRescheduleRepo),
			outbox:       outbox.NewInMemoryRepository(),
		}
		hours := new(mockHoursRepo)
		uow := new(mockUnitOfWork)
		uow.On("Begin", mock.Anything).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		uow.On("Rollback", txCtx).Return(nil)
		f.appointments.On("FindByID", txCtx, appt.ID()).Return(appt, nil)
		hours.On("FindByOwner", txCtx, appt.OwnerID()).Return(weekdayHours(t, appt.OwnerID(), 24), nil)
		f.handler = NewRescheduleAppointmentHandler(f.appointments, f.reschedules, hours, policy,
			f.outbox, uow, sharedApplication.FixedClock(testNow))
		return f
	}

	t.Run("moves the appointment and records the reason", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(10*time.Hour), domain.StatusConfirmed, 0)
		f := setup(t, appt)
		patientID := appt.PatientID()
		f.appointments.On("Reschedule", txCtx, appt, 1, 2, testNow).Return(nil)
		f.reschedules.On("Create", txCtx, mock.MatchedBy(func(r domain.RescheduleRecord) bool {
			return r.AppointmentID == appt.ID() && r.Reason == "traffic" && !r.WithinPolicy && r.FeeCents == 5000
		})).Return(nil)

		result, err := f.handler.Handle(ctx, RescheduleAppointmentCommand{
			AppointmentID: appt.ID(),
			NewDate:       "2026-10-22",
			NewTime:       "14:00",
			Reason:        "traffic",
			PatientID:     &patientID,
			ActorID:       patientID,
		})
		require.NoError(t, err)

		assert.Equal(t, testNow.Add(10*time.Hour), result.OldStartsAt)
		assert.Equal(t, time.Date(2026, 10, 22, 14, 0, 0, 0, time.UTC), result.NewStartsAt)
		assert.Equal(t, 1, result.RescheduleCount)
		assert.True(t, result.Evaluation.CanReschedule)
		assert.False(t, result.Evaluation.WithinPolicy)
		assert.Equal(t, []string{domain.RoutingKeyAppointmentRescheduled}, f.outbox.RoutingKeys())
		f.reschedules.AssertExpectations(t)
	})

	t.Run("at the limit the move is a policy violation", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(72*time.Hour), domain.StatusPending, 2)
		f := setup(t, appt)
		patientID := appt.PatientID()

		_, err := f.handler.Handle(ctx, RescheduleAppointmentCommand{
			AppointmentID: appt.ID(), NewDate: "2026-10-23", NewTime: "10:00", PatientID: &patientID,
		})
		require.ErrorIs(t, err, sharedDomain.ErrPolicyViolation)

		var violation *domain.PolicyViolationError
		require.ErrorAs(t, err, &violation)
		assert.Contains(t, violation.Reasons, "maximum of 2 reschedules reached")
		assert.Equal(t, 2, appt.RescheduleCount())
		f.appointments.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("target taken is a slot conflict", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(72*time.Hour), domain.StatusPending, 0)
		f := setup(t, appt)
		f.appointments.On("Reschedule", txCtx, appt, 1, 2, testNow).Return(domain.ErrSlotConflict)

		_, err := f.handler.Handle(ctx, RescheduleAppointmentCommand{
			AppointmentID: appt.ID(), NewDate: "2026-10-23", NewTime: "10:00",
		})
		assert.ErrorIs(t, err, domain.ErrSlotConflict)
		f.reschedules.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		assert.Empty(t, f.outbox.Messages())
	})

	t.Run("patient target inside the notice window", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(72*time.Hour), domain.StatusPending, 0)
		f := setup(t, appt)
		patientID := appt.PatientID()

		_, err := f.handler.Handle(ctx, RescheduleAppointmentCommand{
			AppointmentID: appt.ID(), NewDate: "2026-10-20", NewTime: "08:00", PatientID: &patientID,
		})
		assert.True(t, sharedDomain.IsValidation(err))
	})

	t.Run("target outside business hours", func(t *testing.T) {
		appt := existingAppointment(t, testNow.Add(72*time.Hour), domain.StatusPending, 0)
		f := setup(t, appt)

		_, err := f.handler.Handle(ctx, RescheduleAppointmentCommand{
			AppointmentID: appt.ID(), NewDate: "2026-10-22", NewTime: "18:00",
		})
		assert.True(t, sharedDomain.IsValidation(err))
	})
}

func TestSetBusinessHoursHandler_Handle(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	t.Run("opens listed weekdays", func(t *testing.T) {
		repo := new(mockHoursRepo)
		repo.On("Save", ctx, mock.AnythingOfType("*domain.BusinessHours")).Return(nil)
		handler := NewSetBusinessHoursHandler(repo, sharedApplication.FixedClock(testNow))

		hours, err := handler.Handle(ctx, SetBusinessHoursCommand{
			OwnerID:            ownerID,
			Timezone:           "America/Toronto",
			AdvanceBookingDays: 60,
			MinimumNoticeHours: 12,
			Days: []DaySpec{
				{Weekday: "Monday", Open: "08:00", Close: "12:00"},
				{Weekday: "thu", Open: "13:00", Close: "19:30"},
			},
		})
		require.NoError(t, err)

		assert.True(t, hours.Day(time.Monday).Enabled)
		assert.True(t, hours.Day(time.Thursday).Enabled)
		assert.False(t, hours.Day(time.Tuesday).Enabled)
		assert.Equal(t, "19:30", hours.Day(time.Thursday).Close.String())
		assert.Equal(t, 12*time.Hour, hours.MinimumNotice())
		repo.AssertExpectations(t)
	})

	invalid := []DaySpec{
		{Weekday: "Funday", Open: "08:00", Close: "12:00"},
		{Weekday: "Monday", Open: "8am", Close: "12:00"},
		{Weekday: "Monday", Open: "12:00", Close: "08:00"},
	}
	for _, day := range invalid {
		repo := new(mockHoursRepo)
		handler := NewSetBusinessHoursHandler(repo, sharedApplication.FixedClock(testNow))

		_, err := handler.Handle(ctx, SetBusinessHoursCommand{
			OwnerID: ownerID, Timezone: "UTC", AdvanceBookingDays: 30, Days: []DaySpec{day},
		})
		assert.True(t, sharedDomain.IsValidation(err), "%+v", day)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	}
}

func TestAddServiceTypeHandler_Handle(t *testing.T) {
	ctx := context.Background()
	repo := new(mockServiceRepo)
	repo.On("Save", ctx, mock.AnythingOfType("*domain.ServiceType")).Return(nil)
	handler := NewAddServiceTypeHandler(repo, sharedApplication.FixedClock(testNow))
	ownerID := uuid.New()

	service, err := handler.Handle(ctx, AddServiceTypeCommand{
		OwnerID: ownerID, Name: "Initial assessment", DurationMinutes: 45, PriceCents: 9000, RequiresDeposit: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, service.Duration())
	assert.False(t, service.AllowsOnlineBooking())
	assert.True(t, service.RequiresDeposit())

	_, err = handler.Handle(ctx, AddServiceTypeCommand{OwnerID: ownerID, Name: " ", DurationMinutes: 45})
	assert.True(t, sharedDomain.IsValidation(err))
}
