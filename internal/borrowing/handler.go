package borrowing

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Handler exposes the loan lifecycle over HTTP. The caller's identity comes
// from the auth middleware and is passed to the service explicitly.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	bookID, ok := utilities.PathID(r, "bookId")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	loan, err := h.svc.Borrow(r.Context(), auth.CurrentIdentity(r.Context()), bookID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	loanID, ok := utilities.PathID(r, "loanId")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	res, err := h.svc.Return(r.Context(), auth.CurrentIdentity(r.Context()), loanID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.History(r.Context(), auth.CurrentIdentity(r.Context()))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) AllHistory(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.AllHistory(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, out)
}

// OverdueReport writes the plain-text report.
func (h *Handler) OverdueReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.OverdueReport(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrAuthenticationMissing):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrAlreadyReturned):
		return http.StatusConflict
	case errors.Is(err, ErrAccountSuspended):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw("borrowing request failed", "err", err)
		utilities.WriteError(w, status, ErrOperationFailed.Error())
		return
	}
	utilities.WriteError(w, status, err.Error())
}
