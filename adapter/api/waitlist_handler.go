package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/app"
	waitlistCommands "github.com/maximegiguere1one/chiroflow/internal/waitlist/application/commands"
	waitlistDomain "github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
)

type waitlistHandler struct {
	c      *app.Container
	logger *slog.Logger
}

type joinRequest struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	ServiceTypeID uuid.UUID  `json:"service_type_id"`
	OwnerID       *uuid.UUID `json:"owner_id"`
}

type joinResponse struct {
	EntryID   uuid.UUID `json:"entry_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type rebookingRequest struct {
	OwnerID               uuid.UUID   `json:"owner_id"`
	PatientID             uuid.UUID   `json:"patient_id"`
	ServiceTypeID         uuid.UUID   `json:"service_type_id"`
	OriginalAppointmentID *uuid.UUID  `json:"original_appointment_id"`
	StartsAt              []time.Time `json:"starts_at"`
	ExpiresAt             time.Time   `json:"expires_at"`
	Notes                 string      `json:"notes"`
}

type rebookingResponse struct {
	RequestID     uuid.UUID                          `json:"request_id"`
	ExpiresAt     time.Time                          `json:"expires_at"`
	TimeSlots     []waitlistDomain.RebookingTimeSlot `json:"time_slots"`
	ResponseToken string                             `json:"response_token"`
}

// Join handles POST /api/v1/waitlist
func (h *waitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.c.JoinWaitlistHandler.Handle(r.Context(), waitlistCommands.JoinWaitlistCommand{
		PatientID:     req.PatientID,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		ServiceTypeID: req.ServiceTypeID,
		OwnerID:       req.OwnerID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{EntryID: res.EntryID, Status: res.Status, CreatedAt: res.CreatedAt})
}

// CreateRebooking handles POST /api/v1/rebooking-requests
func (h *waitlistHandler) CreateRebooking(w http.ResponseWriter, r *http.Request) {
	var req rebookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.c.CreateRebookingHandler.Handle(r.Context(), waitlistCommands.CreateRebookingRequestCommand{
		OwnerID:               req.OwnerID,
		PatientID:             req.PatientID,
		ServiceTypeID:         req.ServiceTypeID,
		OriginalAppointmentID: req.OriginalAppointmentID,
		StartsAt:              req.StartsAt,
		ExpiresAt:             req.ExpiresAt,
		Notes:                 req.Notes,
		ActorID:               actorID(r),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rebookingResponse{
		RequestID:     res.RequestID,
		ExpiresAt:     res.ExpiresAt,
		TimeSlots:     res.TimeSlots,
		ResponseToken: res.ResponseToken,
	})
}
