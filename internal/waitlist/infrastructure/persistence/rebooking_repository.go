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

// RebookingRequestRepository stores rebooking requests with their
// proposed time slots.
type RebookingRequestRepository struct {
	conn database.Connection
}

// NewRebookingRequestRepository creates a RebookingRequestRepository.
func NewRebookingRequestRepository(conn database.Connection) *RebookingRequestRepository {
	return &RebookingRequestRepository{conn: conn}
}

// Create inserts the request and its slots.
func (r *RebookingRequestRepository) Create(ctx context.Context, request *domain.RebookingRequest) error {
	return database.InTx(ctx, r.conn, func(ctx context.Context) error {
		exec := database.ExecutorFromContext(ctx, r.conn)
		if _, err := exec.Exec(ctx, `
			INSERT INTO rebooking_requests (
				id, owner_id, patient_id, service_type_id, original_appointment_id,
				status, expires_at, notes, response_notes, selected_slot_id,
				appointment_id, responded_at, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			request.ID(), request.OwnerID(), request.PatientID(), request.ServiceTypeID(),
			nullUUID(request.OriginalAppointmentID()), string(request.Status()), request.ExpiresAt(),
			request.Notes(), request.ResponseNotes(), nullUUID(request.SelectedSlotID()),
			nullUUID(request.AppointmentID()), request.RespondedAt(), request.Version(),
			request.CreatedAt(), request.UpdatedAt(),
		); err != nil {
			return fmt.Errorf("insert rebooking request: %w", err)
		}

		for i, slot := range request.Slots() {
			if _, err := exec.Exec(ctx, `
				INSERT INTO rebooking_time_slots (id, request_id, position, starts_at, duration_minutes)
				VALUES ($1, $2, $3, $4, $5)`,
				slot.ID, request.ID(), i+1, slot.StartsAt, slot.DurationMinutes(),
			); err != nil {
				return fmt.Errorf("insert rebooking time slot: %w", err)
			}
		}
		return nil
	})
}

// FindByID loads a request with its slots in proposal order.
func (r *RebookingRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.RebookingRequest, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)

	var (
		requestID, ownerID, patientID, serviceTypeID uuid.UUID
		original, selectedSlotID, appointmentID      uuid.NullUUID
		status, notes, responseNotes                 string
		expiresAt, createdAt, updatedAt              time.Time
		respondedAt                                  *time.Time
		version                                      int
	)
	err := exec.QueryRow(ctx, `
		SELECT id, owner_id, patient_id, service_type_id, original_appointment_id,
		       status, expires_at, notes, response_notes, selected_slot_id,
		       appointment_id, responded_at, version, created_at, updated_at
		FROM rebooking_requests WHERE id = $1`, id).Scan(
		&requestID, &ownerID, &patientID, &serviceTypeID, &original,
		&status, &expiresAt, &notes, &responseNotes, &selectedSlotID,
		&appointmentID, &respondedAt, &version, &createdAt, &updatedAt,
	)
	if database.IsNoRows(err) {
		return nil, domain.ErrRebookingNotFound
	}
	if err != nil {
		return nil, err
	}
	st, err := domain.ParseRebookingStatus(status)
	if err != nil {
		return nil, err
	}

	slots, err := r.slots(ctx, exec, requestID)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateRebookingRequest(requestID, ownerID, patientID, serviceTypeID,
		uuidPtr(original), st, expiresAt, notes, responseNotes, uuidPtr(selectedSlotID),
		uuidPtr(appointmentID), utcPtr(respondedAt), slots, version,
		createdAt.UTC(), updatedAt.UTC()), nil
}

// Save writes the response fields guarded by the loaded version.
func (r *RebookingRequestRepository) Save(ctx context.Context, request *domain.RebookingRequest) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	expected := request.Version()

	result, err := exec.Exec(ctx, `
		UPDATE rebooking_requests
		SET status = $2,
			response_notes = $3,
			selected_slot_id = $4,
			appointment_id = $5,
			responded_at = $6,
			version = version + 1,
			updated_at = $7
		WHERE id = $1 AND version = $8`,
		request.ID(), string(request.Status()), request.ResponseNotes(),
		nullUUID(request.SelectedSlotID()), nullUUID(request.AppointmentID()),
		request.RespondedAt(), request.UpdatedAt(), expected,
	)
	if err != nil {
		return fmt.Errorf("update rebooking request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := exec.QueryRow(ctx, `SELECT 1 FROM rebooking_requests WHERE id = $1`, request.ID()).Scan(&exists); err != nil {
			if database.IsNoRows(err) {
				return domain.ErrRebookingNotFound
			}
			return err
		}
		return sharedDomain.ErrConcurrentUpdate
	}
	request.SetVersion(expected + 1)
	return nil
}

func (r *RebookingRequestRepository) slots(ctx context.Context, exec database.Executor, requestID uuid.UUID) ([]domain.RebookingTimeSlot, error) {
	rows, err := exec.Query(ctx, `
		SELECT id, starts_at, duration_minutes
		FROM rebooking_time_slots
		WHERE request_id = $1
		ORDER BY position`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RebookingTimeSlot
	for rows.Next() {
		var (
			slot    domain.RebookingTimeSlot
			minutes int
		)
		if err := rows.Scan(&slot.ID, &slot.StartsAt, &minutes); err != nil {
			return nil, err
		}
		slot.StartsAt = slot.StartsAt.UTC()
		slot.Duration = time.Duration(minutes) * time.Minute
		out = append(out, slot)
	}
	return out, rows.Err()
}
