package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/app"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	schedulingQueries "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/queries"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
)

type schedulingHandler struct {
	c      *app.Container
	logger *slog.Logger
}

type bookRequest struct {
	OwnerID       uuid.UUID `json:"owner_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	ServiceTypeID uuid.UUID `json:"service_type_id"`
	StartsAt      time.Time `json:"starts_at"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Notes         string    `json:"notes"`
	ByStaff       bool      `json:"by_staff"`
}

type bookResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Status        string    `json:"status"`
}

type rescheduleRequest struct {
	NewDate   string     `json:"new_date"`
	NewTime   string     `json:"new_time"`
	Reason    string     `json:"reason"`
	PatientID *uuid.UUID `json:"patient_id"`
}

type rescheduleResponse struct {
	AppointmentID   uuid.UUID                         `json:"appointment_id"`
	OldStartsAt     time.Time                         `json:"old_starts_at"`
	NewStartsAt     time.Time                         `json:"new_starts_at"`
	RescheduleCount int                               `json:"reschedule_count"`
	Evaluation      schedulingDomain.PolicyEvaluation `json:"evaluation"`
}

type cancelRequest struct {
	Reason    string     `json:"reason"`
	PatientID *uuid.UUID `json:"patient_id"`
}

type cancelResponse struct {
	AppointmentID uuid.UUID                               `json:"appointment_id"`
	Evaluation    schedulingDomain.CancellationEvaluation `json:"evaluation"`
	OfferOpened   bool                                    `json:"offer_opened"`
	OfferID       *uuid.UUID                              `json:"offer_id,omitempty"`
}

type outcomeRequest struct {
	Outcome string `json:"outcome"`
}

// AvailableSlots handles GET /api/v1/owners/{ownerID}/slots
func (h *schedulingHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuidParam(r, "ownerID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	query := schedulingQueries.GetAvailableSlotsQuery{
		OwnerID:         ownerID,
		StartDate:       q.Get("start"),
		EndDate:         q.Get("end"),
		DurationMinutes: parseIntParam(r, "duration", 0),
	}
	if raw := q.Get("service_type_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, h.logger, badRequest("service_type_id must be a UUID"))
			return
		}
		query.ServiceTypeID = &id
	}

	slots, err := h.c.GetAvailableSlotsHandler.Handle(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// Book handles POST /api/v1/appointments
func (h *schedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.c.BookAppointmentHandler.Handle(r.Context(), schedulingCommands.BookAppointmentCommand{
		OwnerID:       req.OwnerID,
		PatientID:     req.PatientID,
		ServiceTypeID: req.ServiceTypeID,
		StartsAt:      req.StartsAt,
		Date:          req.Date,
		Time:          req.Time,
		Notes:         req.Notes,
		ByStaff:       req.ByStaff,
		ActorID:       actorID(r),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// The attendance token only travels in the booked event.
	writeJSON(w, http.StatusCreated, bookResponse{
		AppointmentID: res.AppointmentID,
		StartsAt:      res.StartsAt,
		EndsAt:        res.EndsAt,
		Status:        res.Status,
	})
}

// Get handles GET /api/v1/appointments/{appointmentID}
func (h *schedulingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.c.GetAppointmentHandler.Handle(r.Context(), schedulingQueries.GetAppointmentQuery{AppointmentID: id})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RescheduleEligibility handles GET /api/v1/appointments/{appointmentID}/reschedule-eligibility
func (h *schedulingHandler) RescheduleEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
	if err != nil {
		writeError(w, r, h.logger, badRequest("patient_id must be a UUID"))
		return
	}

	eval, err := h.c.CanPatientRescheduleQuery.Handle(r.Context(), schedulingQueries.CanPatientRescheduleQuery{
		AppointmentID: id,
		PatientID:     patientID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// Reschedule handles POST /api/v1/appointments/{appointmentID}/reschedule
func (h *schedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.c.RescheduleHandler.Handle(r.Context(), schedulingCommands.RescheduleAppointmentCommand{
		AppointmentID: id,
		NewDate:       req.NewDate,
		NewTime:       req.NewTime,
		Reason:        req.Reason,
		PatientID:     req.PatientID,
		ActorID:       actorID(r),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rescheduleResponse{
		AppointmentID:   res.AppointmentID,
		OldStartsAt:     res.OldStartsAt,
		NewStartsAt:     res.NewStartsAt,
		RescheduleCount: res.RescheduleCount,
		Evaluation:      res.Evaluation,
	})
}

// Cancel handles POST /api/v1/appointments/{appointmentID}/cancel
func (h *schedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.c.CancelAppointmentHandler.Handle(r.Context(), schedulingCommands.CancelAppointmentCommand{
		AppointmentID: id,
		Reason:        req.Reason,
		PatientID:     req.PatientID,
		ActorID:       actorID(r),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := cancelResponse{
		AppointmentID: res.AppointmentID,
		Evaluation:    res.Evaluation,
		OfferOpened:   res.OfferOpened,
	}
	if res.OfferOpened {
		resp.OfferID = &res.OfferID
	}
	writeJSON(w, http.StatusOK, resp)
}

// RecordOutcome handles POST /api/v1/appointments/{appointmentID}/outcome
func (h *schedulingHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "appointmentID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req outcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.c.RecordOutcomeHandler.Handle(r.Context(), schedulingCommands.RecordOutcomeCommand{
		AppointmentID: id,
		Outcome:       req.Outcome,
		ActorID:       actorID(r),
	}); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, badRequest(name + " must be a UUID")
	}
	return id, nil
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
