package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	accessApp "github.com/maximegiguere1one/chiroflow/internal/access/application"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
)

type tokenHandler struct {
	gateway *accessApp.Gateway
	logger  *slog.Logger
}

type performRequest struct {
	Reason         string     `json:"reason"`
	Notes          string     `json:"notes"`
	SelectedSlotID *uuid.UUID `json:"selected_slot_id"`
}

// Resolve handles GET /t/{token}
func (h *tokenHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	res, err := h.gateway.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Perform handles POST /t/{token}/{action}. The body is optional.
func (h *tokenHandler) Perform(w http.ResponseWriter, r *http.Request) {
	var req performRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	action := accessDomain.Action(chi.URLParam(r, "action"))
	result, err := h.gateway.Perform(r.Context(), chi.URLParam(r, "token"), action, accessApp.ActionInput{
		Reason:         req.Reason,
		Notes:          req.Notes,
		SelectedSlotID: req.SelectedSlotID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
