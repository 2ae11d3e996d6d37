// Package persistence holds the SQL repositories for the waitlist. Queries
// are written in PostgreSQL syntax and rebound by the SQLite connection.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/crypto"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
)

// WaitlistEntryRepository stores waitlist entries. Contact columns go
// through a FieldSealer so patient details can be encrypted at rest.
type WaitlistEntryRepository struct {
	conn   database.Connection
	sealer crypto.FieldSealer
}

// NewWaitlistEntryRepository creates a WaitlistEntryRepository. A nil
// sealer stores contact details as plain text.
func NewWaitlistEntryRepository(conn database.Connection, sealer crypto.FieldSealer) *WaitlistEntryRepository {
	if sealer == nil {
		sealer = crypto.PlainSealer{}
	}
	return &WaitlistEntryRepository{conn: conn, sealer: sealer}
}

const selectEntry = `
	SELECT id, patient_id, contact_name, contact_email, contact_phone,
	       service_type_id, owner_id, status, created_at, resolved_at
	FROM waitlist_entries`

// Create inserts a new entry.
func (r *WaitlistEntryRepository) Create(ctx context.Context, entry *domain.WaitlistEntry) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	contact, err := r.seal(entry.Contact())
	if err != nil {
		return err
	}
	if _, err := exec.Exec(ctx, `
		INSERT INTO waitlist_entries (
			id, patient_id, contact_name, contact_email, contact_phone,
			service_type_id, owner_id, status, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID(), entry.PatientID(), contact.Name, contact.Email, contact.Phone,
		entry.ServiceTypeID(), nullUUID(entry.OwnerID()), string(entry.Status()),
		entry.CreatedAt(), entry.ResolvedAt(),
	); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

// FindByID loads an entry.
func (r *WaitlistEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	entry, err := r.scan(exec.QueryRow(ctx, selectEntry+` WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrEntryNotFound
	}
	return entry, err
}

// NextInQueue returns active entries for the service in arrival order.
// Entries without a preferred practitioner match any owner.
func (r *WaitlistEntryRepository) NextInQueue(ctx context.Context, serviceTypeID, ownerID uuid.UUID, limit int) ([]*domain.WaitlistEntry, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, selectEntry+`
		WHERE service_type_id = $1
		  AND status = 'active'
		  AND (owner_id IS NULL OR owner_id = $2)
		ORDER BY created_at, id
		LIMIT $3`, serviceTypeID, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.WaitlistEntry
	for rows.Next() {
		entry, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Update persists the entry status.
func (r *WaitlistEntryRepository) Update(ctx context.Context, entry *domain.WaitlistEntry) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	result, err := exec.Exec(ctx, `
		UPDATE waitlist_entries SET status = $2, resolved_at = $3 WHERE id = $1`,
		entry.ID(), string(entry.Status()), entry.ResolvedAt())
	if err != nil {
		return fmt.Errorf("update waitlist entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *WaitlistEntryRepository) seal(c domain.Contact) (domain.Contact, error) {
	var (
		out domain.Contact
		err error
	)
	if out.Name, err = r.sealer.Seal(c.Name); err != nil {
		return out, fmt.Errorf("seal contact: %w", err)
	}
	if out.Email, err = r.sealer.Seal(c.Email); err != nil {
		return out, fmt.Errorf("seal contact: %w", err)
	}
	if out.Phone, err = r.sealer.Seal(c.Phone); err != nil {
		return out, fmt.Errorf("seal contact: %w", err)
	}
	return out, nil
}

func (r *WaitlistEntryRepository) open(c domain.Contact) (domain.Contact, error) {
	var (
		out domain.Contact
		err error
	)
	if out.Name, err = r.sealer.Open(c.Name); err != nil {
		return out, fmt.Errorf("open contact: %w", err)
	}
	if out.Email, err = r.sealer.Open(c.Email); err != nil {
		return out, fmt.Errorf("open contact: %w", err)
	}
	if out.Phone, err = r.sealer.Open(c.Phone); err != nil {
		return out, fmt.Errorf("open contact: %w", err)
	}
	return out, nil
}

func (r *WaitlistEntryRepository) scan(row database.Row) (*domain.WaitlistEntry, error) {
	var (
		id, patientID, serviceTypeID uuid.UUID
		ownerID                      uuid.NullUUID
		stored                       domain.Contact
		status                       string
		createdAt                    time.Time
		resolvedAt                   *time.Time
	)
	if err := row.Scan(&id, &patientID, &stored.Name, &stored.Email, &stored.Phone,
		&serviceTypeID, &ownerID, &status, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseEntryStatus(status)
	if err != nil {
		return nil, err
	}
	contact, err := r.open(stored)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateWaitlistEntry(id, patientID, contact, serviceTypeID,
		uuidPtr(ownerID), st, createdAt.UTC(), utcPtr(resolvedAt)), nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// dbTime trims an instant to what every driver stores and compares
// consistently.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
