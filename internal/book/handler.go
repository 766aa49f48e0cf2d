package book

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/search"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Handler exposes the catalogue over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.svc.ListActive(r.Context())
	if err != nil {
		h.logger.Warnw("list books failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "list failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	books, err := h.svc.ListAvailable(r.Context())
	if err != nil {
		h.logger.Warnw("list available books failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "list failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, books)
}

// Search reads criteria from the query string:
// title, author, isbn, genre, minPrice, maxPrice, page, size.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := Criteria{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		ISBN:   q.Get("isbn"),
		Genre:  q.Get("genre"),
	}
	var err error
	if c.MinPrice, err = decimalQuery(q.Get("minPrice")); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid minPrice")
		return
	}
	if c.MaxPrice, err = decimalQuery(q.Get("maxPrice")); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid maxPrice")
		return
	}
	page := utilities.IntQuery(r, "page", 0)
	size := utilities.IntQuery(r, "size", search.DefaultPageSize)
	res, err := h.svc.Search(r.Context(), c, page, size)
	if err != nil {
		h.logger.Warnw("search books failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "search failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, res)
}

func decimalQuery(v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := utilities.PathID(r, "id")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Debugw("invalid book payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := utilities.PathID(r, "id")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := utilities.PathID(r, "id")
	if !ok {
		utilities.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
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
	default:
		h.logger.Warnw("book request failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "book operation failed")
	}
}
