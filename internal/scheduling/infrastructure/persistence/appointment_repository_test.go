package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func newAppointment(t *testing.T, ownerID uuid.UUID, start time.Time, minutes int) *domain.Appointment {
	t.Helper()
	appt, err := domain.NewAppointment(ownerID, uuid.New(), uuid.New(),
		domain.NewInterval(start, time.Duration(minutes)*time.Minute), "", testNow)
	require.NoError(t, err)
	appt.ClearDomainEvents()
	return appt
}

func insertOffer(t *testing.T, conn database.Connection, ownerID uuid.UUID, start time.Time, minutes int, status string, expiresAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := conn.Exec(context.Background(), `
		INSERT INTO slot_offers (id, owner_id, service_type_id, starts_at, ends_at, duration_minutes,
			status, expires_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)`,
		id, ownerID, uuid.New(), start, start.Add(time.Duration(minutes)*time.Minute), minutes,
		status, expiresAt, testNow)
	require.NoError(t, err)
	return id
}

func TestAppointmentRepository_BookAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(testdb.SQLite(t))
	ownerID := uuid.New()

	appt, err := domain.NewAppointment(ownerID, uuid.New(), uuid.New(),
		domain.NewInterval(at(21, 10, 0), 30*time.Minute), "first visit", testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Book(ctx, appt, domain.BookOptions{Now: testNow}))

	found, err := repo.FindByID(ctx, appt.ID())
	require.NoError(t, err)
	assert.Equal(t, appt.ID(), found.ID())
	assert.Equal(t, ownerID, found.OwnerID())
	assert.Equal(t, appt.PatientID(), found.PatientID())
	assert.True(t, at(21, 10, 0).Equal(found.StartsAt()))
	assert.Equal(t, 30, found.DurationMinutes())
	assert.Equal(t, domain.StatusPending, found.Status())
	assert.Equal(t, "first visit", found.Notes())
	assert.Equal(t, 1, found.Version())

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)
}

func TestAppointmentRepository_BookRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(testdb.SQLite(t))
	ownerID := uuid.New()

	require.NoError(t, repo.Book(ctx, newAppointment(t, ownerID, at(21, 10, 0), 30), domain.BookOptions{Now: testNow}))

	tests := []struct {
		name    string
		owner   uuid.UUID
		start   time.Time
		minutes int
		wantErr error
	}{
		{name: "same interval", owner: ownerID, start: at(21, 10, 0), minutes: 30, wantErr: domain.ErrSlotConflict},
		{name: "partial overlap", owner: ownerID, start: at(21, 10, 15), minutes: 30, wantErr: domain.ErrSlotConflict},
		{name: "enclosing", owner: ownerID, start: at(21, 9, 30), minutes: 90, wantErr: domain.ErrSlotConflict},
		{name: "adjacent before", owner: ownerID, start: at(21, 9, 30), minutes: 30},
		{name: "adjacent after", owner: ownerID, start: at(21, 10, 30), minutes: 30},
		{name: "another owner", owner: uuid.New(), start: at(21, 10, 0), minutes: 30},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := repo.Book(ctx, newAppointment(t, tc.owner, tc.start, tc.minutes), domain.BookOptions{Now: testNow})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.ErrorIs(t, err, sharedDomain.ErrConflict)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAppointmentRepository_CancelledFreesInterval(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(testdb.SQLite(t))
	ownerID := uuid.New()

	appt := newAppointment(t, ownerID, at(21, 10, 0), 30)
	require.NoError(t, repo.Book(ctx, appt, domain.BookOptions{Now: testNow}))
	require.NoError(t, appt.Cancel("sick", domain.CancellationEvaluation{}, testNow))
	require.NoError(t, repo.Update(ctx, appt))
	assert.Equal(t, 2, appt.Version())

	require.NoError(t, repo.Book(ctx, newAppointment(t, ownerID, at(21, 10, 0), 30), domain.BookOptions{Now: testNow}))

	stored, err := repo.FindByID(ctx, appt.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status())
	assert.Equal(t, "sick", stored.CancellationReason())
}

func TestAppointmentRepository_ConcurrentBookOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(testdb.SQLite(t))
	ownerID := uuid.New()

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Starts between 10:00 and 10:15 so every pair overlaps.
			start := at(21, 10, 0).Add(time.Duration(i%4) * 5 * time.Minute)
			appt, err := domain.NewAppointment(ownerID, uuid.New(), uuid.New(),
				domain.NewInterval(start, 30*time.Minute), "", testNow)
			if err != nil {
				t.Error(err)
				return
			}
			err = repo.Book(ctx, appt, domain.BookOptions{Now: testNow})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrSlotConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}

func TestAppointmentRepository_UpdateDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(testdb.SQLite(t))

	appt := newAppointment(t, uuid.New(), at(21, 10, 0), 30)
	require.NoError(t, repo.Book(ctx, appt, domain.BookOptions{Now: testNow}))

	first, err := repo.FindByID(ctx, appt.ID())
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, appt.ID())
	require.NoError(t, err)

	_, err = first.ConfirmPresence(testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, first))

	require.NoError(t, second.Cancel("", domain.CancellationEvaluation{}, testNow))
	assert.ErrorIs(t, repo.Update(ctx, second), sharedDomain.ErrConcurrentUpdate)

	stored, err := repo.FindByID(ctx, appt.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status())
	assert.True(t, stored.PresenceConfirmed())
}

func TestAppointmentRepository_SoftHolds(t *testing.T) {
	ctx := context.Background()
	conn := testdb.SQLite(t)
	ownerID := uuid.New()
	offerID := insertOffer(t, conn, ownerID, at(21, 10, 0), 30, "offered", testNow.Add(2*time.Hour))
	insertOffer(t, conn, ownerID, at(21, 11, 0), 30, "offered", testNow.Add(-time.Minute))
	insertOffer(t, conn, ownerID, at(21, 12, 0), 30, "cancelled", testNow.Add(2*time.Hour))
	insertOffer(t, conn, ownerID, at(21, 13, 0), 30, "open", testNow.Add(2*time.Hour))

	t.Run("an active hold blocks ordinary bookings", func(t *testing.T) {
		repo := NewAppointmentRepository(conn)
		err := repo.Book(ctx, newAppointment(t, ownerID, at(21, 10, 0), 30), domain.BookOptions{Now: testNow})
		assert.ErrorIs(t, err, domain.ErrSlotConflict)
	})

	t.Run("expired and cancelled holds do not", func(t *testing.T) {
		repo := NewAppointmentRepository(conn)
		require.NoError(t, repo.Book(ctx, newAppointment(t, ownerID, at(21, 11, 0), 30), domain.BookOptions{Now: testNow}))
		require.NoError(t, repo.Book(ctx, newAppointment(t, ownerID, at(21, 12, 0), 30), domain.BookOptions{Now: testNow}))
	})

	t.Run("an offer that invited nobody does not hold", func(t *testing.T) {
		repo := NewAppointmentRepository(conn)
		require.NoError(t, repo.Book(ctx, newAppointment(t, ownerID, at(21, 13, 0), 30), domain.BookOptions{Now: testNow}))
	})

	t.Run("busy list includes the hold", func(t *testing.T) {
		repo := NewAppointmentRepository(conn)
		busy, err := repo.ListBusy(ctx, ownerID, domain.Interval{Start: at(21, 8, 0), End: at(21, 17, 0)}, testNow)
		require.NoError(t, err)
		require.Len(t, busy, 4)
		assert.True(t, at(21, 10, 0).Equal(busy[3].Start))

		busy, err = NewAppointmentRepository(conn).WithSoftHolds(false).
			ListBusy(ctx, ownerID, domain.Interval{Start: at(21, 8, 0), End: at(21, 17, 0)}, testNow)
		require.NoError(t, err)
		assert.Len(t, busy, 3)
	})

	t.Run("the offer itself may claim its interval", func(t *testing.T) {
		repo := NewAppointmentRepository(conn)
		other := uuid.New()
		err := repo.Book(ctx, newAppointment(t, ownerID, at(21, 10, 0), 30), domain.BookOptions{HoldOverride: &other, Now: testNow})
		assert.ErrorIs(t, err, domain.ErrSlotConflict)

		err = repo.Book(ctx, newAppointment(t, ownerID, at(21, 10, 0), 30), domain.BookOptions{HoldOverride: &offerID, Now: testNow})
		assert.NoError(t, err)
	})
}

func TestAppointmentRepository_Reschedule(t *testing.T) {
	ctx := context.Background()
	policy := domain.DefaultReschedulePolicy()

	setup := func(t *testing.T) (*AppointmentRepository, *domain.Appointment, uuid.UUID) {
		repo := NewAppointmentRepository(testdb.SQLite(t))
		ownerID := uuid.New()
		appt := newAppointment(t, ownerID, at(21, 10, 0), 30)
		require.NoError(t, repo.Book(ctx, appt, domain.BookOptions{Now: testNow}))
		require.NoError(t, repo.Book(ctx, newAppointment(t, ownerID, at(22, 10, 0), 30), domain.BookOptions{Now: testNow}))
		return repo, appt, ownerID
	}
	move := func(t *testing.T, appt *domain.Appointment, to time.Time) {
		eval := policy.Validate(appt, appt.PatientID(), testNow)
		require.NoError(t, appt.Reschedule(domain.NewInterval(to, appt.Duration()), eval, "", testNow))
	}

	t.Run("moves the interval and bumps count and version", func(t *testing.T) {
		repo, appt, ownerID := setup(t)
		move(t, appt, at(21, 14, 0))
		require.NoError(t, repo.Reschedule(ctx, appt, 1, policy.MaxReschedules, testNow))
		assert.Equal(t, 2, appt.Version())

		stored, err := repo.FindByID(ctx, appt.ID())
		require.NoError(t, err)
		assert.True(t, at(21, 14, 0).Equal(stored.StartsAt()))
		assert.Equal(t, 1, stored.RescheduleCount())
		assert.Equal(t, 2, stored.Version())

		require.NoError(t, repo.Book(ctx, newAppointment(t, ownerID, at(21, 10, 0), 30), domain.BookOptions{Now: testNow}),
			"the old interval is released")
	})

	t.Run("may overlap its own old interval", func(t *testing.T) {
		repo, appt, _ := setup(t)
		move(t, appt, at(21, 10, 15))
		assert.NoError(t, repo.Reschedule(ctx, appt, 1, policy.MaxReschedules, testNow))
	})

	t.Run("target taken", func(t *testing.T) {
		repo, appt, _ := setup(t)
		move(t, appt, at(22, 10, 0))
		assert.ErrorIs(t, repo.Reschedule(ctx, appt, 1, policy.MaxReschedules, testNow), domain.ErrSlotConflict)

		stored, err := repo.FindByID(ctx, appt.ID())
		require.NoError(t, err)
		assert.Equal(t, 0, stored.RescheduleCount())
	})

	t.Run("stale version", func(t *testing.T) {
		repo, appt, _ := setup(t)
		move(t, appt, at(21, 14, 0))
		assert.ErrorIs(t, repo.Reschedule(ctx, appt, 7, policy.MaxReschedules, testNow), sharedDomain.ErrConcurrentUpdate)
	})

	t.Run("count never exceeds the maximum", func(t *testing.T) {
		repo, appt, _ := setup(t)
		targets := []time.Time{at(21, 11, 0), at(21, 12, 0), at(21, 13, 0)}
		for i, target := range targets {
			version := appt.Version()
			move(t, appt, target)
			err := repo.Reschedule(ctx, appt, version, policy.MaxReschedules, testNow)
			if i < policy.MaxReschedules {
				require.NoError(t, err)
				continue
			}
			assert.ErrorIs(t, err, sharedDomain.ErrPolicyViolation)
		}

		stored, err := repo.FindByID(ctx, appt.ID())
		require.NoError(t, err)
		assert.Equal(t, policy.MaxReschedules, stored.RescheduleCount())
		assert.True(t, at(21, 12, 0).Equal(stored.StartsAt()))
	})
}

func TestAppointmentRepository_ListByPatient(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(testdb.SQLite(t))
	ownerID, patientID := uuid.New(), uuid.New()

	for _, start := range []time.Time{at(23, 9, 0), at(21, 9, 0)} {
		appt, err := domain.NewAppointment(ownerID, patientID, uuid.New(), domain.NewInterval(start, 30*time.Minute), "", testNow)
		require.NoError(t, err)
		require.NoError(t, repo.Book(ctx, appt, domain.BookOptions{Now: testNow}))
	}

	list, err := repo.ListByPatient(ctx, patientID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, at(21, 9, 0).Equal(list[0].StartsAt()))
}

func TestAppointmentRepository_JoinsUnitOfWork(t *testing.T) {
	ctx := context.Background()
	conn := testdb.SQLite(t)
	repo := NewAppointmentRepository(conn)
	uow := database.NewUnitOfWork(conn)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	appt := newAppointment(t, uuid.New(), at(21, 10, 0), 30)
	require.NoError(t, repo.Book(txCtx, appt, domain.BookOptions{Now: testNow}))
	_, err = repo.FindByID(txCtx, appt.ID())
	require.NoError(t, err)
	require.NoError(t, uow.Rollback(txCtx))

	_, err = repo.FindByID(ctx, appt.ID())
	assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)
}
