package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	accessApp "github.com/maximegiguere1one/chiroflow/internal/access/application"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	schedulingQueries "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/queries"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/eventbus"
	waitlistCommands "github.com/maximegiguere1one/chiroflow/internal/waitlist/application/commands"
	waitlistDomain "github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/config"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// invitationTokens collects the raw response tokens of issued invitations.
type invitationTokens struct {
	mu     sync.Mutex
	tokens []string
}

func (r *invitationTokens) EventTypes() []string {
	return []string{waitlistDomain.RoutingKeyInvitationIssued}
}

func (r *invitationTokens) Handle(_ context.Context, event *eventbus.ConsumedEvent) error {
	var payload waitlistDomain.InvitationIssued
	if err := event.Decode(&payload); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, payload.ResponseToken)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:              "test",
		DatabaseDriver:      "sqlite",
		SQLitePath:          filepath.Join(t.TempDir(), "chiroflow.db"),
		OutboxBatchSize:     50,
		OutboxMaxRetries:    3,
		OutboxPollInterval:  10 * time.Millisecond,
		OfferSweepInterval:  time.Minute,
		PublicBaseURL:       "http://localhost:8080",
		MaxReschedules:      2,
		MinNoticeHours:      24,
		LateFees:            []config.LateFeeTier{{Within: 24 * time.Hour, AmountCents: 2500}},
		InvitationTTL:       2 * time.Hour,
		InvitationBatchSize: 5,
		SoftHoldOffers:      true,
		RebookingTTL:        72 * time.Hour,
		BreakerMaxFailures:  5,
		BreakerOpenTimeout:  time.Second,
	}
}

type fixture struct {
	c         *Container
	clock     *testClock
	ownerID   uuid.UUID
	serviceID uuid.UUID
	tokens    *invitationTokens
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}

	c, err := NewContainer(ctx, testConfig(t), slog.New(slog.DiscardHandler),
		WithClock(clock), WithMetrics(observability.NewInMemoryMetrics()))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	tokens := &invitationTokens{}
	require.NotNil(t, c.InProcessEventBus)
	c.InProcessEventBus.RegisterConsumer(tokens)

	ownerID := uuid.New()
	days := make([]schedulingCommands.DaySpec, 0, 5)
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		days = append(days, schedulingCommands.DaySpec{Weekday: d, Open: "09:00", Close: "17:00"})
	}
	_, err = c.SetBusinessHoursHandler.Handle(ctx, schedulingCommands.SetBusinessHoursCommand{
		OwnerID:            ownerID,
		Timezone:           "UTC",
		AdvanceBookingDays: 30,
		MinimumNoticeHours: 2,
		Days:               days,
	})
	require.NoError(t, err)

	service, err := c.AddServiceTypeHandler.Handle(ctx, schedulingCommands.AddServiceTypeCommand{
		OwnerID:             ownerID,
		Name:                "Adjustment",
		DurationMinutes:     30,
		PriceCents:          6500,
		AllowsOnlineBooking: true,
	})
	require.NoError(t, err)

	return &fixture{c: c, clock: clock, ownerID: ownerID, serviceID: service.ID(), tokens: tokens}
}

func (f *fixture) joinWaitlist(t *testing.T, email string) uuid.UUID {
	t.Helper()
	res, err := f.c.JoinWaitlistHandler.Handle(context.Background(), waitlistCommands.JoinWaitlistCommand{
		PatientID:     uuid.New(),
		Name:          "Waiting Patient",
		Email:         email,
		ServiceTypeID: f.serviceID,
		OwnerID:       &f.ownerID,
	})
	require.NoError(t, err)
	return res.EntryID
}

func (f *fixture) book(t *testing.T, startsAt time.Time) *schedulingCommands.BookAppointmentResult {
	t.Helper()
	res, err := f.c.BookAppointmentHandler.Handle(context.Background(), schedulingCommands.BookAppointmentCommand{
		OwnerID:       f.ownerID,
		PatientID:     uuid.New(),
		ServiceTypeID: f.serviceID,
		StartsAt:      startsAt,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) slotAvailable(t *testing.T, startsAt time.Time) bool {
	t.Helper()
	day := startsAt.Format("2006-01-02")
	slots, err := f.c.GetAvailableSlotsHandler.Handle(context.Background(), schedulingQueries.GetAvailableSlotsQuery{
		OwnerID:       f.ownerID,
		StartDate:     day,
		EndDate:       day,
		ServiceTypeID: &f.serviceID,
	})
	require.NoError(t, err)
	for _, slot := range slots {
		if slot.SlotDatetime.Equal(startsAt) {
			return slot.IsAvailable
		}
	}
	t.Fatalf("no slot at %s", startsAt)
	return false
}

func TestNewContainer_SQLiteWiring(t *testing.T) {
	f := newFixture(t)
	c := f.c

	assert.Equal(t, database.DriverSQLite, c.DBDriver)
	assert.Nil(t, c.RedisClient)
	assert.Same(t, c.InProcessEventBus, c.EventPublisher)
	assert.NotNil(t, c.Gateway)
	assert.NotNil(t, c.OutboxProcessor)
	assert.NotNil(t, c.OfferExpiryWorker)
	assert.Equal(t, 2, c.Policy.MaxReschedules)

	results := c.Health.Check(context.Background())
	require.Contains(t, results, "database")
	assert.Equal(t, observability.HealthStatusHealthy, results["database"].Status)
}

func TestContainer_CancelledSlotGoesToWaitlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	startsAt := time.Date(2026, 10, 21, 10, 0, 0, 0, time.UTC)

	f.joinWaitlist(t, "waiting@example.com")
	booked := f.book(t, startsAt)
	require.NotEmpty(t, booked.AttendanceToken)

	cancelled, err := f.c.Gateway.Perform(ctx, booked.AttendanceToken, accessDomain.ActionCancel, accessApp.ActionInput{Reason: "travel"})
	require.NoError(t, err)
	assert.True(t, cancelled.Success)
	assert.Equal(t, "cancelled", cancelled.Outcome)

	assert.False(t, f.slotAvailable(t, startsAt), "the slot is held while the invitation is out")
	_, err = f.c.BookAppointmentHandler.Handle(ctx, schedulingCommands.BookAppointmentCommand{
		OwnerID:       f.ownerID,
		PatientID:     uuid.New(),
		ServiceTypeID: f.serviceID,
		StartsAt:      startsAt,
	})
	assert.ErrorIs(t, err, schedulingDomain.ErrSlotConflict)

	require.NoError(t, f.c.OutboxProcessor.ProcessOnce(ctx))
	require.Len(t, f.tokens.tokens, 1)
	invitationToken := f.tokens.tokens[0]

	resolved, err := f.c.Gateway.Resolve(ctx, invitationToken)
	require.NoError(t, err)
	assert.Equal(t, accessDomain.SubjectInvitation, resolved.Subject.Kind)
	assert.Equal(t, string(waitlistDomain.InvitationPending), resolved.Subject.Status)

	accepted, err := f.c.Gateway.Perform(ctx, invitationToken, accessDomain.ActionAccept, accessApp.ActionInput{})
	require.NoError(t, err)
	require.True(t, accepted.Success)
	require.NotNil(t, accepted.AppointmentID)

	appt, err := f.c.AppointmentRepo.FindByID(ctx, *accepted.AppointmentID)
	require.NoError(t, err)
	assert.True(t, appt.StartsAt().Equal(startsAt))
	assert.Equal(t, schedulingDomain.StatusPending, appt.Status())

	again, err := f.c.Gateway.Perform(ctx, invitationToken, accessDomain.ActionAccept, accessApp.ActionInput{})
	require.NoError(t, err)
	assert.Equal(t, accepted, again)
}

func TestContainer_CancelWithEmptyWaitlistLeavesSlotBookable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	startsAt := time.Date(2026, 10, 21, 10, 0, 0, 0, time.UTC)
	booked := f.book(t, startsAt)
	require.False(t, f.slotAvailable(t, startsAt))

	_, err := f.c.CancelAppointmentHandler.Handle(ctx, schedulingCommands.CancelAppointmentCommand{
		AppointmentID: booked.AppointmentID,
		Reason:        "moved away",
	})
	require.NoError(t, err)

	assert.True(t, f.slotAvailable(t, startsAt))
	rebooked := f.book(t, startsAt)
	assert.NotEqual(t, booked.AppointmentID, rebooked.AppointmentID)
}

func TestContainer_AttendanceLinkConfirmsThenCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, time.Date(2026, 10, 23, 15, 0, 0, 0, time.UTC))

	confirmed, err := f.c.Gateway.Perform(ctx, booked.AttendanceToken, accessDomain.ActionConfirmPresence, accessApp.ActionInput{})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", confirmed.Outcome)

	cancelled, err := f.c.Gateway.Perform(ctx, booked.AttendanceToken, accessDomain.ActionCancel, accessApp.ActionInput{Reason: "flu"})
	require.NoError(t, err)
	assert.True(t, cancelled.Success)
	assert.Equal(t, "cancelled", cancelled.Outcome)

	appt, err := f.c.AppointmentRepo.FindByID(ctx, booked.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, schedulingDomain.StatusCancelled, appt.Status())
	assert.Equal(t, "flu", appt.CancellationReason())
}

func TestContainer_TokenCancelAfterStaffCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.book(t, time.Date(2026, 10, 23, 11, 0, 0, 0, time.UTC))

	_, err := f.c.CancelAppointmentHandler.Handle(ctx, schedulingCommands.CancelAppointmentCommand{
		AppointmentID: booked.AppointmentID,
		Reason:        "clinic closed",
	})
	require.NoError(t, err)

	res, err := f.c.Gateway.Perform(ctx, booked.AttendanceToken, accessDomain.ActionCancel, accessApp.ActionInput{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "already_cancelled", res.Outcome)

	again, err := f.c.Gateway.Perform(ctx, booked.AttendanceToken, accessDomain.ActionCancel, accessApp.ActionInput{})
	require.NoError(t, err)
	assert.Equal(t, res, again)

	appt, err := f.c.AppointmentRepo.FindByID(ctx, booked.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, "clinic closed", appt.CancellationReason())
}

func TestContainer_ExpiryWorkerClosesStaleOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.joinWaitlist(t, "late@example.com")
	booked := f.book(t, time.Date(2026, 10, 22, 14, 0, 0, 0, time.UTC))

	res, err := f.c.CancelAppointmentHandler.Handle(ctx, schedulingCommands.CancelAppointmentCommand{
		AppointmentID: booked.AppointmentID,
		Reason:        "clinic closed",
	})
	require.NoError(t, err)
	require.True(t, res.OfferOpened)

	swept := f.c.OfferExpiryWorker.RunOnce(ctx)
	require.NotNil(t, swept)
	assert.Zero(t, swept.Expired)

	f.clock.Advance(3 * time.Hour)
	swept = f.c.OfferExpiryWorker.RunOnce(ctx)
	require.NotNil(t, swept)
	assert.Equal(t, 1, swept.Expired)

	offer, err := f.c.OfferRepo.FindByID(ctx, res.OfferID)
	require.NoError(t, err)
	assert.Equal(t, waitlistDomain.OfferExpired, offer.Status())
}

func TestNewContainer_RejectsBadContactKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.ContactEncryptionKey = "not base64!"

	_, err := NewContainer(context.Background(), cfg, slog.New(slog.DiscardHandler))
	assert.ErrorContains(t, err, "CONTACT_ENCRYPTION_KEY")
}
