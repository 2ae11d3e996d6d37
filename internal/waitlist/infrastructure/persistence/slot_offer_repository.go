package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
)

// SlotOfferRepository stores offers and their invitations. The offer
// version is the serialization point for acceptance.
type SlotOfferRepository struct {
	conn database.Connection
}

// NewSlotOfferRepository creates a SlotOfferRepository.
func NewSlotOfferRepository(conn database.Connection) *SlotOfferRepository {
	return &SlotOfferRepository{conn: conn}
}

const selectOffer = `
	SELECT id, owner_id, service_type_id, source_appointment_id, starts_at,
	       duration_minutes, status, expires_at, accepted_invitation_id,
	       appointment_id, version, created_at, updated_at
	FROM slot_offers`

// Create inserts the offer and any invitations already issued.
func (r *SlotOfferRepository) Create(ctx context.Context, offer *domain.SlotOffer) error {
	return database.InTx(ctx, r.conn, func(ctx context.Context) error {
		exec := database.ExecutorFromContext(ctx, r.conn)
		if _, err := exec.Exec(ctx, `
			INSERT INTO slot_offers (
				id, owner_id, service_type_id, source_appointment_id, starts_at, ends_at,
				duration_minutes, status, expires_at, accepted_invitation_id,
				appointment_id, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			offer.ID(), offer.OwnerID(), offer.ServiceTypeID(), nullUUID(offer.SourceAppointmentID()),
			offer.StartsAt(), offer.EndsAt(), offer.DurationMinutes(), string(offer.Status()),
			offer.ExpiresAt(), nullUUID(offer.AcceptedInvitationID()), nullUUID(offer.AppointmentID()),
			offer.Version(), offer.CreatedAt(), offer.UpdatedAt(),
		); err != nil {
			return fmt.Errorf("insert slot offer: %w", err)
		}

		for _, inv := range offer.Invitations() {
			if _, err := exec.Exec(ctx, `
				INSERT INTO invitations (
					id, slot_offer_id, waitlist_entry_id, patient_id, position,
					status, expires_at, responded_at, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				inv.ID(), offer.ID(), inv.EntryID(), inv.PatientID(), inv.Position(),
				string(inv.Status()), inv.ExpiresAt(), inv.RespondedAt(), inv.CreatedAt(),
			); err != nil {
				return fmt.Errorf("insert invitation: %w", err)
			}
		}
		return nil
	})
}

// FindByID loads an offer with its invitations in queue order.
func (r *SlotOfferRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.SlotOffer, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var (
		offerID, ownerID, serviceTypeID       uuid.UUID
		source, acceptedID, appointmentID     uuid.NullUUID
		startsAt, expiresAt, createdAt, updAt time.Time
		durationMinutes, version              int
		status                                string
	)
	err := exec.QueryRow(ctx, selectOffer+` WHERE id = $1`, id).Scan(
		&offerID, &ownerID, &serviceTypeID, &source, &startsAt,
		&durationMinutes, &status, &expiresAt, &acceptedID,
		&appointmentID, &version, &createdAt, &updAt,
	)
	if database.IsNoRows(err) {
		return nil, domain.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	st, err := domain.ParseOfferStatus(status)
	if err != nil {
		return nil, err
	}

	invitations, err := r.invitations(ctx, exec, offerID)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateSlotOffer(offerID, ownerID, serviceTypeID, uuidPtr(source),
		startsAt, durationMinutes, st, expiresAt, uuidPtr(acceptedID), uuidPtr(appointmentID),
		invitations, version, createdAt.UTC(), updAt.UTC()), nil
}

// FindByInvitationID loads the offer that owns an invitation.
func (r *SlotOfferRepository) FindByInvitationID(ctx context.Context, invitationID uuid.UUID) (*domain.SlotOffer, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var offerID uuid.UUID
	err := exec.QueryRow(ctx, `SELECT slot_offer_id FROM invitations WHERE id = $1`, invitationID).Scan(&offerID)
	if database.IsNoRows(err) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, offerID)
}

// Lock bumps the version guarded by the loaded one. Concurrent acceptors
// serialize here: the loser blocks on the row and then matches nothing.
func (r *SlotOfferRepository) Lock(ctx context.Context, offer *domain.SlotOffer) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	expected := offer.Version()

	result, err := exec.Exec(ctx, `
		UPDATE slot_offers SET version = version + 1
		WHERE id = $1 AND version = $2`, offer.ID(), expected)
	if err != nil {
		return fmt.Errorf("lock slot offer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrStale(ctx, exec, offer.ID())
	}
	offer.SetVersion(expected + 1)
	return nil
}

// Save writes the offer guarded by its loaded version, then moves every
// invitation that left pending. Terminal invitation rows are never
// overwritten.
func (r *SlotOfferRepository) Save(ctx context.Context, offer *domain.SlotOffer) error {
	expected := offer.Version()
	err := database.InTx(ctx, r.conn, func(ctx context.Context) error {
		exec := database.ExecutorFromContext(ctx, r.conn)

		result, err := exec.Exec(ctx, `
			UPDATE slot_offers
			SET status = $2,
				expires_at = $3,
				accepted_invitation_id = $4,
				appointment_id = $5,
				version = version + 1,
				updated_at = $6
			WHERE id = $1 AND version = $7`,
			offer.ID(), string(offer.Status()), offer.ExpiresAt(),
			nullUUID(offer.AcceptedInvitationID()), nullUUID(offer.AppointmentID()),
			offer.UpdatedAt(), expected,
		)
		if err != nil {
			return fmt.Errorf("update slot offer: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return r.missingOrStale(ctx, exec, offer.ID())
		}

		for _, inv := range offer.Invitations() {
			if inv.Status() == domain.InvitationPending {
				continue
			}
			if _, err := r.updateInvitation(ctx, exec, inv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	offer.SetVersion(expected + 1)
	return nil
}

// SaveInvitationResponse writes one invitation without touching the
// offer. It reports false when the row had already left pending.
func (r *SlotOfferRepository) SaveInvitationResponse(ctx context.Context, inv *domain.Invitation) (bool, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	n, err := r.updateInvitation(ctx, exec, inv)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListDue returns holding offers whose deadline is at or before now,
// oldest deadline first.
func (r *SlotOfferRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, `
		SELECT id FROM slot_offers
		WHERE status IN ('open', 'offered')
		  AND expires_at <= $1
		ORDER BY expires_at, id
		LIMIT $2`, dbTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SlotOfferRepository) missingOrStale(ctx context.Context, exec database.Executor, id uuid.UUID) error {
	var exists int
	if err := exec.QueryRow(ctx, `SELECT 1 FROM slot_offers WHERE id = $1`, id).Scan(&exists); err != nil {
		if database.IsNoRows(err) {
			return domain.ErrOfferNotFound
		}
		return err
	}
	return sharedDomain.ErrConcurrentUpdate
}

func (r *SlotOfferRepository) updateInvitation(ctx context.Context, exec database.Executor, inv *domain.Invitation) (int64, error) {
	result, err := exec.Exec(ctx, `
		UPDATE invitations SET status = $2, responded_at = $3
		WHERE id = $1 AND status = 'pending'`,
		inv.ID(), string(inv.Status()), inv.RespondedAt())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, sharedDomain.ErrConcurrentUpdate
		}
		return 0, fmt.Errorf("update invitation: %w", err)
	}
	return result.RowsAffected()
}

func (r *SlotOfferRepository) invitations(ctx context.Context, exec database.Executor, offerID uuid.UUID) ([]*domain.Invitation, error) {
	rows, err := exec.Query(ctx, `
		SELECT id, waitlist_entry_id, patient_id, position, status,
		       expires_at, responded_at, created_at
		FROM invitations
		WHERE slot_offer_id = $1
		ORDER BY position`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Invitation
	for rows.Next() {
		var (
			id, entryID, patientID uuid.UUID
			position               int
			status                 string
			expiresAt, createdAt   time.Time
			respondedAt            *time.Time
		)
		if err := rows.Scan(&id, &entryID, &patientID, &position, &status,
			&expiresAt, &respondedAt, &createdAt); err != nil {
			return nil, err
		}
		st, err := domain.ParseInvitationStatus(status)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RehydrateInvitation(id, offerID, entryID, patientID,
			position, st, expiresAt, utcPtr(respondedAt), createdAt))
	}
	return out, rows.Err()
}
