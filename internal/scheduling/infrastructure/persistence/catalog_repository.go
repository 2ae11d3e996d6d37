package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
)

// BusinessHoursRepository stores opening hours as one header row and one
// row per weekday.
type BusinessHoursRepository struct {
	conn database.Connection
}

// NewBusinessHoursRepository creates a BusinessHoursRepository.
func NewBusinessHoursRepository(conn database.Connection) *BusinessHoursRepository {
	return &BusinessHoursRepository{conn: conn}
}

// Save replaces the owner's schedule.
func (r *BusinessHoursRepository) Save(ctx context.Context, hours *domain.BusinessHours) error {
	return database.InTx(ctx, r.conn, func(ctx context.Context) error {
		return r.save(ctx, hours)
	})
}

func (r *BusinessHoursRepository) save(ctx context.Context, hours *domain.BusinessHours) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	if _, err := exec.Exec(ctx, `
		INSERT INTO business_hours (owner_id, timezone, advance_booking_days, minimum_notice_hours, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			timezone = excluded.timezone,
			advance_booking_days = excluded.advance_booking_days,
			minimum_notice_hours = excluded.minimum_notice_hours,
			updated_at = excluded.updated_at`,
		hours.OwnerID(), hours.Timezone(), hours.AdvanceBookingDays(), hours.MinimumNoticeHours(), hours.UpdatedAt(),
	); err != nil {
		return fmt.Errorf("save business hours: %w", err)
	}

	if _, err := exec.Exec(ctx, `DELETE FROM business_hours_days WHERE owner_id = $1`, hours.OwnerID()); err != nil {
		return err
	}
	for weekday, day := range hours.Days() {
		if _, err := exec.Exec(ctx, `
			INSERT INTO business_hours_days (owner_id, weekday, enabled, open_time, close_time)
			VALUES ($1, $2, $3, $4, $5)`,
			hours.OwnerID(), weekday, day.Enabled, day.Open.String(), day.Close.String(),
		); err != nil {
			return fmt.Errorf("save business hours day %d: %w", weekday, err)
		}
	}
	return nil
}

// FindByOwner loads an owner's schedule.
func (r *BusinessHoursRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.BusinessHours, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var (
		timezone                 string
		advanceDays, noticeHours int
		updatedAt                time.Time
	)
	err := exec.QueryRow(ctx, `
		SELECT timezone, advance_booking_days, minimum_notice_hours, updated_at
		FROM business_hours WHERE owner_id = $1`, ownerID,
	).Scan(&timezone, &advanceDays, &noticeHours, &updatedAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrBusinessHoursNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := exec.Query(ctx, `
		SELECT weekday, enabled, open_time, close_time
		FROM business_hours_days WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days [7]domain.DayHours
	for rows.Next() {
		var (
			weekday         int
			enabled         bool
			openAt, closeAt string
		)
		if err := rows.Scan(&weekday, &enabled, &openAt, &closeAt); err != nil {
			return nil, err
		}
		if weekday < 0 || weekday > 6 {
			return nil, fmt.Errorf("stored weekday %d out of range", weekday)
		}
		open, err := domain.ParseClockTime(openAt)
		if err != nil {
			return nil, err
		}
		closing, err := domain.ParseClockTime(closeAt)
		if err != nil {
			return nil, err
		}
		days[weekday] = domain.DayHours{Enabled: enabled, Open: open, Close: closing}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return domain.RehydrateBusinessHours(ownerID, timezone, days, advanceDays, noticeHours, updatedAt)
}

// ServiceTypeRepository stores the service catalog.
type ServiceTypeRepository struct {
	conn database.Connection
}

// NewServiceTypeRepository creates a ServiceTypeRepository.
func NewServiceTypeRepository(conn database.Connection) *ServiceTypeRepository {
	return &ServiceTypeRepository{conn: conn}
}

const selectServiceType = `
	SELECT id, owner_id, name, duration_minutes, price_cents,
	       allows_online_booking, requires_deposit, active, created_at, updated_at
	FROM service_types`

// Save inserts or updates a service type.
func (r *ServiceTypeRepository) Save(ctx context.Context, service *domain.ServiceType) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, `
		INSERT INTO service_types (
			id, owner_id, name, duration_minutes, price_cents,
			allows_online_booking, requires_deposit, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			price_cents = excluded.price_cents,
			allows_online_booking = excluded.allows_online_booking,
			requires_deposit = excluded.requires_deposit,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		service.ID(), service.OwnerID(), service.Name(), service.DurationMinutes(), service.PriceCents(),
		service.AllowsOnlineBooking(), service.RequiresDeposit(), service.IsActive(),
		service.CreatedAt(), service.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save service type: %w", err)
	}
	return nil
}

// FindByID loads one service type.
func (r *ServiceTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ServiceType, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	service, err := scanServiceType(exec.QueryRow(ctx, selectServiceType+` WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrServiceTypeNotFound
	}
	return service, err
}

// ListByOwner returns an owner's catalog ordered by name.
func (r *ServiceTypeRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.ServiceType, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, selectServiceType+` WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*domain.ServiceType
	for rows.Next() {
		service, err := scanServiceType(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	return services, rows.Err()
}

func scanServiceType(row database.Row) (*domain.ServiceType, error) {
	var (
		id, ownerID                   uuid.UUID
		name                          string
		durationMinutes               int
		priceCents                    int64
		allowsOnline, deposit, active bool
		createdAt, updatedAt          time.Time
	)
	if err := row.Scan(&id, &ownerID, &name, &durationMinutes, &priceCents,
		&allowsOnline, &deposit, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateServiceType(id, ownerID, name, durationMinutes, priceCents,
		allowsOnline, deposit, active, createdAt, updatedAt), nil
}

// RescheduleRecordRepository stores the reschedule audit trail.
type RescheduleRecordRepository struct {
	conn database.Connection
}

// NewRescheduleRecordRepository creates a RescheduleRecordRepository.
func NewRescheduleRecordRepository(conn database.Connection) *RescheduleRecordRepository {
	return &RescheduleRecordRepository{conn: conn}
}

// Create appends an audit entry.
func (r *RescheduleRecordRepository) Create(ctx context.Context, record domain.RescheduleRecord) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, `
		INSERT INTO appointment_reschedules (
			id, appointment_id, old_starts_at, new_starts_at, reason,
			within_policy, fee_cents, rescheduled_by, rescheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.AppointmentID, record.OldStartsAt, record.NewStartsAt, record.Reason,
		record.WithinPolicy, record.FeeCents, record.RescheduledBy, record.RescheduledAt,
	)
	if err != nil {
		return fmt.Errorf("record reschedule: %w", err)
	}
	return nil
}

// ListByAppointment returns the moves of one appointment, oldest first.
func (r *RescheduleRecordRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.RescheduleRecord, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, `
		SELECT id, appointment_id, old_starts_at, new_starts_at, reason,
		       within_policy, fee_cents, rescheduled_by, rescheduled_at
		FROM appointment_reschedules
		WHERE appointment_id = $1
		ORDER BY rescheduled_at, id`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RescheduleRecord
	for rows.Next() {
		var rec domain.RescheduleRecord
		if err := rows.Scan(&rec.ID, &rec.AppointmentID, &rec.OldStartsAt, &rec.NewStartsAt, &rec.Reason,
			&rec.WithinPolicy, &rec.FeeCents, &rec.RescheduledBy, &rec.RescheduledAt); err != nil {
			return nil, err
		}
		rec.OldStartsAt = rec.OldStartsAt.UTC()
		rec.NewStartsAt = rec.NewStartsAt.UTC()
		rec.RescheduledAt = rec.RescheduledAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
