package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	schedulingApp "github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/application"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testNow is Monday 2026-10-19 12:00 UTC.
var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type mockEntryRepo struct {
	mock.Mock
}

func (m *mockEntryRepo) Create(ctx context.Context, entry *domain.WaitlistEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockEntryRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WaitlistEntry), args.Error(1)
}

func (m *mockEntryRepo) NextInQueue(ctx context.Context, serviceTypeID, ownerID uuid.UUID, limit int) ([]*domain.WaitlistEntry, error) {
	args := m.Called(ctx, serviceTypeID, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WaitlistEntry), args.Error(1)
}

func (m *mockEntryRepo) Update(ctx context.Context, entry *domain.WaitlistEntry) error {
	return m.Called(ctx, entry).Error(0)
}

type mockOfferRepo struct {
	mock.Mock
}

func (m *mockOfferRepo) Create(ctx context.Context, offer *domain.SlotOffer) error {
	return m.Called(ctx, offer).Error(0)
}

func (m *mockOfferRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.SlotOffer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SlotOffer), args.Error(1)
}

func (m *mockOfferRepo) FindByInvitationID(ctx context.Context, invitationID uuid.UUID) (*domain.SlotOffer, error) {
	args := m.Called(ctx, invitationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SlotOffer), args.Error(1)
}

func (m *mockOfferRepo) Lock(ctx context.Context, offer *domain.SlotOffer) error {
	return m.Called(ctx, offer).Error(0)
}

func (m *mockOfferRepo) Save(ctx context.Context, offer *domain.SlotOffer) error {
	return m.Called(ctx, offer).Error(0)
}

func (m *mockOfferRepo) SaveInvitationResponse(ctx context.Context, inv *domain.Invitation) (bool, error) {
	args := m.Called(ctx, inv)
	return args.Bool(0), args.Error(1)
}

func (m *mockOfferRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type mockRebookingRepo struct {
	mock.Mock
}

func (m *mockRebookingRepo) Create(ctx context.Context, request *domain.RebookingRequest) error {
	return m.Called(ctx, request).Error(0)
}

func (m *mockRebookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.RebookingRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RebookingRequest), args.Error(1)
}

func (m *mockRebookingRepo) Save(ctx context.Context, request *domain.RebookingRequest) error {
	return m.Called(ctx, request).Error(0)
}

type mockServiceRepo struct {
	mock.Mock
}

func (m *mockServiceRepo) Save(ctx context.Context, service *schedulingDomain.ServiceType) error {
	return m.Called(ctx, service).Error(0)
}

func (m *mockServiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*schedulingDomain.ServiceType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedulingDomain.ServiceType), args.Error(1)
}

func (m *mockServiceRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*schedulingDomain.ServiceType, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedulingDomain.ServiceType), args.Error(1)
}

type mockTokenIssuer struct {
	mock.Mock
}

func (m *mockTokenIssuer) IssueToken(ctx context.Context, req schedulingApp.IssueTokenRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockBooker struct {
	mock.Mock
}

func (m *mockBooker) BookHeld(ctx context.Context, req application.HeldBooking) (uuid.UUID, error) {
	args := m.Called(ctx, req)
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
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func waitingEntry(t *testing.T, serviceTypeID uuid.UUID, name string) *domain.WaitlistEntry {
	t.Helper()
	contact, err := domain.NewContact(name, name+"@example.com", "")
	require.NoError(t, err)
	entry, err := domain.NewWaitlistEntry(uuid.New(), contact, serviceTypeID, nil, testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	return entry
}

// offered returns a persisted-looking offer two days out with n pending
// invitations and the matching entries.
func offered(t *testing.T, n int) (*domain.SlotOffer, []*domain.WaitlistEntry) {
	t.Helper()
	ownerID, serviceTypeID := uuid.New(), uuid.New()
	start := testNow.Add(48 * time.Hour)
	offer, err := domain.NewSlotOffer(ownerID, serviceTypeID, nil, start, 30*time.Minute, testNow.Add(2*time.Hour), testNow.Add(-time.Minute))
	require.NoError(t, err)

	entries := make([]*domain.WaitlistEntry, n)
	for i := range entries {
		entries[i] = waitingEntry(t, serviceTypeID, "patient")
	}
	_, err = offer.Invite(entries, testNow.Add(-time.Minute))
	require.NoError(t, err)
	offer.ClearDomainEvents()
	return offer, entries
}
