package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
)

// AppointmentRepository is the SQL booking ledger. Statements are written
// once in PostgreSQL syntax; the SQLite connection rebinds them.
type AppointmentRepository struct {
	conn      database.Connection
	softHolds bool
}

// NewAppointmentRepository creates an AppointmentRepository with soft
// holds enabled.
func NewAppointmentRepository(conn database.Connection) *AppointmentRepository {
	return &AppointmentRepository{conn: conn, softHolds: true}
}

// WithSoftHolds toggles whether open slot offers block ordinary bookings.
func (r *AppointmentRepository) WithSoftHolds(enabled bool) *AppointmentRepository {
	r.softHolds = enabled
	return r
}

const liveStatuses = `('pending', 'confirmed')`

const selectAppointment = `
	SELECT id, owner_id, patient_id, service_type_id, starts_at, duration_minutes,
	       status, reschedule_count, COALESCE(cancellation_reason, ''),
	       presence_confirmed, notes, version, created_at, updated_at
	FROM appointments`

const insertAppointment = `
	INSERT INTO appointments (
		id, owner_id, patient_id, service_type_id, starts_at, ends_at,
		duration_minutes, status, reschedule_count, cancellation_reason,
		presence_confirmed, notes, version, created_at, updated_at
	)
	SELECT $1::uuid, $2::uuid, $3::uuid, $4::uuid, $5::timestamptz, $6::timestamptz,
	       $7::int, $8::text, $9::int, '', $10::boolean, $11::text, $12::int,
	       $13::timestamptz, $14::timestamptz
	WHERE NOT EXISTS (
		SELECT 1 FROM appointments
		WHERE owner_id = $2
		  AND status IN ` + liveStatuses + `
		  AND starts_at < $6
		  AND ends_at > $5
	)`

// The hold clause takes $15 as the evaluation instant and $16 as the
// offer allowed to claim its own interval.
const insertHoldClause = `
	AND NOT EXISTS (
		SELECT 1 FROM slot_offers
		WHERE owner_id = $2
		  AND status = 'offered'
		  AND expires_at > $15::timestamptz
		  AND starts_at < $6
		  AND ends_at > $5
		  AND ($16::uuid IS NULL OR id <> $16::uuid)
	)`

// Book inserts the appointment unless its interval is taken.
func (r *AppointmentRepository) Book(ctx context.Context, appointment *domain.Appointment, opts domain.BookOptions) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	query := insertAppointment
	args := []any{
		appointment.ID(),
		appointment.OwnerID(),
		appointment.PatientID(),
		appointment.ServiceTypeID(),
		appointment.StartsAt(),
		appointment.EndsAt(),
		appointment.DurationMinutes(),
		string(appointment.Status()),
		appointment.RescheduleCount(),
		appointment.PresenceConfirmed(),
		appointment.Notes(),
		appointment.Version(),
		appointment.CreatedAt(),
		appointment.UpdatedAt(),
	}
	if r.softHolds {
		query += insertHoldClause
		override := uuid.NullUUID{}
		if opts.HoldOverride != nil {
			override = uuid.NullUUID{UUID: *opts.HoldOverride, Valid: true}
		}
		args = append(args, dbTime(opts.Now), override)
	}

	result, err := exec.Exec(ctx, query, args...)
	if err != nil {
		if database.IsExclusionViolation(err) {
			return domain.ErrSlotConflict
		}
		return fmt.Errorf("book appointment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrSlotConflict
	}
	return nil
}

// FindByID loads an appointment.
func (r *AppointmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	appointment, err := scanAppointment(exec.QueryRow(ctx, selectAppointment+` WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrAppointmentNotFound
	}
	return appointment, err
}

// Update writes status fields guarded by the loaded version.
func (r *AppointmentRepository) Update(ctx context.Context, appointment *domain.Appointment) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	expected := appointment.Version()

	result, err := exec.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancellation_reason = $3,
			presence_confirmed = $4,
			notes = $5,
			version = version + 1,
			updated_at = $6
		WHERE id = $1 AND version = $7`,
		appointment.ID(),
		string(appointment.Status()),
		appointment.CancellationReason(),
		appointment.PresenceConfirmed(),
		appointment.Notes(),
		appointment.UpdatedAt(),
		expected,
	)
	if err != nil {
		if database.IsExclusionViolation(err) {
			return domain.ErrSlotConflict
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.FindByID(ctx, appointment.ID()); err != nil {
			return err
		}
		return sharedDomain.ErrConcurrentUpdate
	}
	appointment.SetVersion(expected + 1)
	return nil
}

const rescheduleAppointment = `
	UPDATE appointments
	SET starts_at = $2,
		ends_at = $3,
		duration_minutes = $4,
		reschedule_count = reschedule_count + 1,
		version = version + 1,
		updated_at = $5
	WHERE id = $1
	  AND version = $6
	  AND reschedule_count < $7
	  AND status IN ` + liveStatuses + `
	  AND NOT EXISTS (
		SELECT 1 FROM appointments other
		WHERE other.owner_id = appointments.owner_id
		  AND other.id <> appointments.id
		  AND other.status IN ` + liveStatuses + `
		  AND other.starts_at < $3
		  AND other.ends_at > $2
	  )`

const rescheduleHoldClause = `
	  AND NOT EXISTS (
		SELECT 1 FROM slot_offers
		WHERE slot_offers.owner_id = appointments.owner_id
		  AND slot_offers.status = 'offered'
		  AND slot_offers.expires_at > $8
		  AND slot_offers.starts_at < $3
		  AND slot_offers.ends_at > $2
	  )`

// Reschedule moves the interval and counts the move in one statement. When
// nothing matched it reloads the row to report why.
func (r *AppointmentRepository) Reschedule(ctx context.Context, appointment *domain.Appointment, expectedVersion, maxReschedules int, now time.Time) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	query := rescheduleAppointment
	args := []any{
		appointment.ID(),
		appointment.StartsAt(),
		appointment.EndsAt(),
		appointment.DurationMinutes(),
		appointment.UpdatedAt(),
		expectedVersion,
		maxReschedules,
	}
	if r.softHolds {
		query += rescheduleHoldClause
		args = append(args, dbTime(now))
	}

	result, err := exec.Exec(ctx, query, args...)
	if err != nil {
		if database.IsExclusionViolation(err) {
			return domain.ErrSlotConflict
		}
		return fmt.Errorf("reschedule appointment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		appointment.SetVersion(expectedVersion + 1)
		return nil
	}

	current, err := r.FindByID(ctx, appointment.ID())
	if err != nil {
		return err
	}
	switch {
	case current.Version() != expectedVersion:
		return sharedDomain.ErrConcurrentUpdate
	case !current.Status().IsLive():
		return domain.NewPolicyViolation(fmt.Sprintf(domain.ReasonNotActive, current.Status()))
	case current.RescheduleCount() >= maxReschedules:
		return domain.NewPolicyViolation(fmt.Sprintf(domain.ReasonMaxReschedules, maxReschedules))
	}
	return domain.ErrSlotConflict
}

// ListBusy returns live appointment intervals and, with soft holds on,
// intervals of unexpired offers with invitations out.
func (r *AppointmentRepository) ListBusy(ctx context.Context, ownerID uuid.UUID, window domain.Interval, now time.Time) ([]domain.Interval, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	busy, err := queryIntervals(ctx, exec, `
		SELECT starts_at, ends_at FROM appointments
		WHERE owner_id = $1
		  AND status IN `+liveStatuses+`
		  AND starts_at < $3
		  AND ends_at > $2
		ORDER BY starts_at`, ownerID, window.Start, window.End)
	if err != nil || !r.softHolds {
		return busy, err
	}

	held, err := queryIntervals(ctx, exec, `
		SELECT starts_at, ends_at FROM slot_offers
		WHERE owner_id = $1
		  AND status = 'offered'
		  AND expires_at > $4
		  AND starts_at < $3
		  AND ends_at > $2
		ORDER BY starts_at`, ownerID, window.Start, window.End, dbTime(now))
	if err != nil {
		return nil, err
	}
	return append(busy, held...), nil
}

// ListByPatient returns a patient's appointments, soonest first.
func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*domain.Appointment, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, selectAppointment+` WHERE patient_id = $1 ORDER BY starts_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []*domain.Appointment
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appointment)
	}
	return appointments, rows.Err()
}

func scanAppointment(row database.Row) (*domain.Appointment, error) {
	var (
		id, ownerID, patientID, serviceTypeID uuid.UUID
		startsAt, createdAt, updatedAt        time.Time
		durationMinutes, rescheduleCount      int
		version                               int
		status, cancellationReason, notes     string
		presenceConfirmed                     bool
	)
	if err := row.Scan(
		&id, &ownerID, &patientID, &serviceTypeID, &startsAt, &durationMinutes,
		&status, &rescheduleCount, &cancellationReason,
		&presenceConfirmed, &notes, &version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateAppointment(id, ownerID, patientID, serviceTypeID,
		startsAt, durationMinutes, st, rescheduleCount, cancellationReason,
		presenceConfirmed, notes, version, createdAt, updatedAt), nil
}

func queryIntervals(ctx context.Context, exec database.Executor, query string, args ...any) ([]domain.Interval, error) {
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Interval
	for rows.Next() {
		var iv domain.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		iv.Start, iv.End = iv.Start.UTC(), iv.End.UTC()
		out = append(out, iv)
	}
	return out, rows.Err()
}

// dbTime trims an instant to what every driver stores and compares
// consistently.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
