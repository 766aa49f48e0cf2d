package setting

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Handler contains dependencies for handling setting endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) GetLendingPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetLendingPolicy(r.Context())
	if err != nil {
		h.logger.Warnw("read lending policy failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "read failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateLendingPolicy(w http.ResponseWriter, r *http.Request) {
	var in LendingPolicy
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	p, err := h.svc.UpdateLendingPolicy(r.Context(), in)
	switch {
	case err == nil:
		utilities.WriteJSON(w, http.StatusOK, p)
	case errors.Is(err, ErrInvalid):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrVersionConflict):
		utilities.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Warnw("update lending policy failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "update failed")
	}
}
