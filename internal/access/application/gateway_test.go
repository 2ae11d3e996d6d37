package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/access/application"
	"github.com/maximegiguere1one/chiroflow/internal/access/domain"
	"github.com/maximegiguere1one/chiroflow/internal/access/infrastructure/persistence"
	schedulingApp "github.com/maximegiguere1one/chiroflow/internal/scheduling/application"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type mockSubject struct {
	mock.Mock
}

func (m *mockSubject) Status(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *mockSubject) Perform(ctx context.Context, id uuid.UUID, action domain.Action, input application.ActionInput) (*domain.ActionResult, error) {
	args := m.Called(ctx, id, action, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ActionResult), args.Error(1)
}

type gatewayFixture struct {
	tokens  *persistence.TokenRepository
	subject *mockSubject
	gateway *application.Gateway
	raw     string
	id      uuid.UUID
}

func newGatewayFixture(t *testing.T, now time.Time) *gatewayFixture {
	t.Helper()
	conn := testdb.SQLite(t)
	f := &gatewayFixture{
		tokens:  persistence.NewTokenRepository(conn),
		subject: &mockSubject{},
		id:      uuid.New(),
	}
	raw, err := application.NewTokenService(f.tokens, sharedApplication.FixedClock(testNow)).
		IssueToken(context.Background(), schedulingApp.IssueTokenRequest{
			SubjectKind: domain.SubjectAppointment,
			SubjectID:   f.id,
			ActionClass: domain.ClassAppointmentAttendance,
			ExpiresAt:   testNow.Add(24 * time.Hour),
		})
	require.NoError(t, err)
	f.raw = raw
	f.gateway = application.NewGateway(f.tokens, database.NewUnitOfWork(conn), sharedApplication.FixedClock(now)).
		Handle(domain.SubjectAppointment, f.subject)
	return f
}

func confirmed() *domain.ActionResult {
	return &domain.ActionResult{Success: true, Outcome: "confirmed", Message: "ok"}
}

func TestGateway_Resolve(t *testing.T) {
	f := newGatewayFixture(t, testNow.Add(time.Hour))
	ctx := context.Background()
	f.subject.On("Status", mock.Anything, f.id).Return("pending", nil)

	res, err := f.gateway.Resolve(ctx, f.raw)
	require.NoError(t, err)
	assert.Equal(t, application.Subject{Kind: domain.SubjectAppointment, ID: f.id, Status: "pending"}, res.Subject)
	assert.Equal(t, []domain.Action{domain.ActionConfirmPresence, domain.ActionCancel}, res.AllowedActions)
	assert.Nil(t, res.Result)

	_, err = f.gateway.Resolve(ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestGateway_ResolveExpired(t *testing.T) {
	f := newGatewayFixture(t, testNow.Add(24*time.Hour))
	_, err := f.gateway.Resolve(context.Background(), f.raw)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestGateway_PerformReplaysStoredResult(t *testing.T) {
	f := newGatewayFixture(t, testNow.Add(time.Hour))
	ctx := context.Background()
	f.subject.On("Perform", mock.Anything, f.id, domain.ActionConfirmPresence, application.ActionInput{}).
		Return(confirmed(), nil).Once()

	first, err := f.gateway.Perform(ctx, f.raw, domain.ActionConfirmPresence, application.ActionInput{})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", first.Outcome)
	assert.Equal(t, f.id, first.SubjectID)

	second, err := f.gateway.Perform(ctx, f.raw, domain.ActionConfirmPresence, application.ActionInput{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	f.subject.AssertNumberOfCalls(t, "Perform", 1)

	f.subject.On("Status", mock.Anything, f.id).Return("confirmed", nil)
	res, err := f.gateway.Resolve(ctx, f.raw)
	require.NoError(t, err)
	assert.Equal(t, []domain.Action{domain.ActionCancel}, res.AllowedActions)
	assert.Equal(t, domain.ActionConfirmPresence, res.ConsumedAction)
	assert.Equal(t, first, res.Result)
}

func TestGateway_CancelAfterConfirmingPresence(t *testing.T) {
	f := newGatewayFixture(t, testNow.Add(time.Hour))
	ctx := context.Background()
	input := application.ActionInput{Reason: "car broke down"}
	f.subject.On("Perform", mock.Anything, f.id, domain.ActionConfirmPresence, application.ActionInput{}).
		Return(confirmed(), nil).Once()
	f.subject.On("Perform", mock.Anything, f.id, domain.ActionCancel, input).
		Return(&domain.ActionResult{Success: true, Outcome: "cancelled"}, nil).Once()

	_, err := f.gateway.Perform(ctx, f.raw, domain.ActionConfirmPresence, application.ActionInput{})
	require.NoError(t, err)

	cancelled, err := f.gateway.Perform(ctx, f.raw, domain.ActionCancel, input)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Outcome)

	again, err := f.gateway.Perform(ctx, f.raw, domain.ActionCancel, input)
	require.NoError(t, err)
	assert.Equal(t, cancelled, again)

	_, err = f.gateway.Perform(ctx, f.raw, domain.ActionConfirmPresence, application.ActionInput{})
	assert.ErrorIs(t, err, domain.ErrTokenConsumed)
	f.subject.AssertNumberOfCalls(t, "Perform", 2)

	f.subject.On("Status", mock.Anything, f.id).Return("cancelled", nil)
	res, err := f.gateway.Resolve(ctx, f.raw)
	require.NoError(t, err)
	assert.Empty(t, res.AllowedActions)
	assert.Equal(t, domain.ActionCancel, res.ConsumedAction)
}

func TestGateway_FailedActionLeavesTokenUsable(t *testing.T) {
	f := newGatewayFixture(t, testNow.Add(time.Hour))
	ctx := context.Background()
	input := application.ActionInput{Reason: "sick"}
	boom := errors.New("ledger unavailable")
	f.subject.On("Perform", mock.Anything, f.id, domain.ActionCancel, input).Return(nil, boom).Once()
	f.subject.On("Perform", mock.Anything, f.id, domain.ActionCancel, input).
		Return(&domain.ActionResult{Success: true, Outcome: "cancelled"}, nil).Once()

	_, err := f.gateway.Perform(ctx, f.raw, domain.ActionCancel, input)
	assert.ErrorIs(t, err, boom)

	token, err := f.tokens.FindByHash(ctx, domain.HashToken(f.raw))
	require.NoError(t, err)
	assert.False(t, token.IsConsumed())

	res, err := f.gateway.Perform(ctx, f.raw, domain.ActionCancel, input)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", res.Outcome)
}

func TestGateway_PerformRejections(t *testing.T) {
	t.Run("action outside class", func(t *testing.T) {
		f := newGatewayFixture(t, testNow.Add(time.Hour))
		_, err := f.gateway.Perform(context.Background(), f.raw, domain.ActionAccept, application.ActionInput{})
		assert.ErrorIs(t, err, domain.ErrActionNotAllowed)
		f.subject.AssertNotCalled(t, "Perform", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newGatewayFixture(t, testNow.Add(25*time.Hour))
		_, err := f.gateway.Perform(context.Background(), f.raw, domain.ActionConfirmPresence, application.ActionInput{})
		assert.ErrorIs(t, err, domain.ErrTokenExpired)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newGatewayFixture(t, testNow.Add(time.Hour))
		_, err := f.gateway.Perform(context.Background(), "nope", domain.ActionConfirmPresence, application.ActionInput{})
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})

	t.Run("unregistered subject kind", func(t *testing.T) {
		f := newGatewayFixture(t, testNow.Add(time.Hour))
		bare := application.NewGateway(f.tokens, nil, sharedApplication.FixedClock(testNow))
		_, err := bare.Perform(context.Background(), f.raw, domain.ActionConfirmPresence, application.ActionInput{})
		assert.Error(t, err)
	})
}

func TestGateway_ConcurrentPerformRunsActionOnce(t *testing.T) {
	f := newGatewayFixture(t, testNow.Add(time.Hour))
	f.subject.On("Perform", mock.Anything, f.id, domain.ActionConfirmPresence, application.ActionInput{}).
		Return(confirmed(), nil)

	const callers = 6
	results := make([]*domain.ActionResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.gateway.Perform(context.Background(), f.raw, domain.ActionConfirmPresence, application.ActionInput{})
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "confirmed", results[i].Outcome)
	}
	f.subject.AssertNumberOfCalls(t, "Perform", 1)
}
