package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testNow is Monday 2026-10-19 12:00 UTC.
var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type mockAppointmentRepo struct {
	mock.Mock
}

func (m *mockAppointmentRepo) Book(ctx context.Context, appointment *domain.Appointment, opts domain.BookOptions) error {
	args := m.Called(ctx, appointment, opts)
	return args.Error(0)
}

func (m *mockAppointmentRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

func (m *mockAppointmentRepo) Update(ctx context.Context, appointment *domain.Appointment) error {
	args := m.Called(ctx, appointment)
	return args.Error(0)
}

func (m *mockAppointmentRepo) Reschedule(ctx context.Context, appointment *domain.Appointment, expectedVersion, maxReschedules int, now time.Time) error {
	args := m.Called(ctx, appointment, expectedVersion, maxReschedules, now)
	return args.Error(0)
}

func (m *mockAppointmentRepo) ListBusy(ctx context.Context, ownerID uuid.UUID, window domain.Interval, now time.Time) ([]domain.Interval, error) {
	args := m.Called(ctx, ownerID, window, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Interval), args.Error(1)
}

func (m *mockAppointmentRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*domain.Appointment, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Appointment), args.Error(1)
}

type mockHoursRepo struct {
	mock.Mock
}

func (m *mockHoursRepo) Save(ctx context.Context, hours *domain.BusinessHours) error {
	args := m.Called(ctx, hours)
	return args.Error(0)
}

func (m *mockHoursRepo) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.BusinessHours, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BusinessHours), args.Error(1)
}

type mockServiceRepo struct {
	mock.Mock
}

func (m *mockServiceRepo) Save(ctx context.Context, service *domain.ServiceType) error {
	args := m.Called(ctx, service)
	return args.Error(0)
}

func (m *mockServiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.ServiceType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ServiceType), args.Error(1)
}

func (m *mockServiceRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.ServiceType, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ServiceType), args.Error(1)
}

type mockRescheduleRepo struct {
	mock.Mock
}

func (m *mockRescheduleRepo) Create(ctx context.Context, record domain.RescheduleRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRescheduleRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.RescheduleRecord, error) {
	args := m.Called(ctx, appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RescheduleRecord), args.Error(1)
}

type mockTokenIssuer struct {
	mock.Mock
}

func (m *mockTokenIssuer) IssueToken(ctx context.Context, req application.IssueTokenRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockOfferOpener struct {
	mock.Mock
}

func (m *mockOfferOpener) OpenOffer(ctx context.Context, slot application.FreedSlot) (uuid.UUID, error) {
	args := m.Called(ctx, slot)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// weekdayHours opens Monday to Friday 08:00-17:00 UTC.
func weekdayHours(t *testing.T, ownerID uuid.UUID, noticeHours int) *domain.BusinessHours {
	t.Helper()
	hours, err := domain.NewBusinessHours(ownerID, "UTC", 30, noticeHours, testNow)
	require.NoError(t, err)
	for d := time.Monday; d <= time.Friday; d++ {
		require.NoError(t, hours.SetDay(d, domain.MustClockTime("08:00"), domain.MustClockTime("17:00"), testNow))
	}
	return hours
}

func existingAppointment(t *testing.T, startsAt time.Time, status domain.Status, rescheduleCount int) *domain.Appointment {
	t.Helper()
	created := testNow.Add(-72 * time.Hour)
	return domain.RehydrateAppointment(uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		startsAt, 30, status, rescheduleCount, "", false, "", 1, created, created)
}
