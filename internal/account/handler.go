package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for account management.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	a, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := utilities.PathID(r, "id")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := utilities.PathID(r, "id")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	a, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, a)
}

// RoleRequest is the payload of PUT /users/{id}/role.
type RoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := utilities.PathID(r, "id")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	a, err := h.svc.UpdateRole(r.Context(), id, req.Role)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := utilities.PathID(r, "id")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicate):
		utilities.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Warnw("account request failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "account operation failed")
	}
}
