package book

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// View is the serialized book.
type View struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	ISBN              string    `json:"isbn"`
	PageCount         int       `json:"page_count"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func viewOf(b *entity.Book) View {
	return View{
		ID:                b.ID,
		Title:             b.Title,
		Author:            b.Author,
		ISBN:              b.ISBN,
		PageCount:         b.PageCount,
		TotalQuantity:     b.TotalQuantity,
		AvailableQuantity: b.AvailableQuantity,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

type CreateRequest struct {
	Title             string `json:"title"`
	Author            string `json:"author"`
	ISBN              string `json:"isbn"`
	PageCount         int    `json:"page_count"`
	TotalQuantity     *int   `json:"total_quantity"`
	AvailableQuantity *int   `json:"available_quantity"`
}

// UpdateRequest is accepted by both PUT and PATCH. available_quantity is
// read-only after creation and ignored here.
type UpdateRequest struct {
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	ISBN          *string `json:"isbn"`
	PageCount     *int    `json:"page_count"`
	TotalQuantity *int    `json:"total_quantity"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpList, policy.ResourceBook); !ok {
		return
	}
	limit, offset, err := utilities.ParsePage(r)
	if err != nil {
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	books, count, err := h.svc.List(r.Context(), entity.Filter{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		ISBN:   q.Get("isbn"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	page := utilities.Page[View]{Count: count, Results: make([]View, 0, len(books))}
	for _, b := range books {
		page.Results = append(page.Results, viewOf(b))
	}
	utilities.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpRead, policy.ResourceBook); !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, viewOf(b))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpCreate, policy.ResourceBook); !ok {
		return
	}
	var req CreateRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, err := h.svc.Create(r.Context(), CreateInput(req))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, viewOf(b))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpUpdate, policy.ResourceBook); !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	var req UpdateRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, err := h.svc.Update(r.Context(), id, entity.Patch(req))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, viewOf(b))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpDelete, policy.ResourceBook); !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
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
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDuplicateISBN):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		utilities.WriteError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Errorw("book request failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
