package loan

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/idempotency"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const idempotencyHeader = "Idempotency-Key"

type Handler struct {
	ledger *Ledger
	guard  idempotency.Guard
	logger *zap.SugaredLogger
}

func NewHandler(ledger *Ledger, guard idempotency.Guard, logger *zap.SugaredLogger) *Handler {
	if guard == nil {
		guard = idempotency.Noop{}
	}
	return &Handler{ledger: ledger, guard: guard, logger: logger}
}

// View is the serialized loan.
type View struct {
	ID           int64      `json:"id"`
	User         int64      `json:"user"`
	Book         int64      `json:"book"`
	BorrowedDate time.Time  `json:"borrowed_date"`
	ReturnDate   *time.Time `json:"return_date"`
	IsReturned   bool       `json:"is_returned"`
}

func viewOf(l *entity.Loan) View {
	return View{
		ID:           l.ID,
		User:         l.UserID,
		Book:         l.BookID,
		BorrowedDate: l.BorrowedAt,
		ReturnDate:   l.ReturnedAt,
		IsReturned:   l.IsReturned,
	}
}

// BorrowRequest is the POST /loans body. return_date is accepted and ignored.
type BorrowRequest struct {
	Book       int64   `json:"book"`
	ReturnDate *string `json:"return_date,omitempty"`
}

// ReassignRequest is the PATCH /loans/{id} body.
type ReassignRequest struct {
	User int64 `json:"user"`
}

func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	actor, ok := policy.Authorize(w, r, policy.OpCreate, policy.ResourceLoan)
	if !ok {
		return
	}
	var req BorrowRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	claimed := ""
	if key := r.Header.Get(idempotencyHeader); key != "" {
		scoped := "loan:borrow:" + strconv.FormatInt(actor.UserID, 10) + ":" + key
		fresh, err := h.guard.Claim(r.Context(), scoped)
		switch {
		case err != nil:
			h.logger.Warnw("idempotency check failed; continuing", "err", err)
		case !fresh:
			utilities.WriteError(w, http.StatusConflict, "Duplicate request")
			return
		default:
			claimed = scoped
		}
	}

	l, err := h.ledger.Borrow(r.Context(), actor, req.Book)
	if err != nil {
		if claimed != "" {
			if rErr := h.guard.Release(r.Context(), claimed); rErr != nil {
				h.logger.Warnw("idempotency release failed", "err", rErr)
			}
		}
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, viewOf(l))
}

func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpReturn, policy.ResourceLoan); !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	l, err := h.ledger.Return(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, viewOf(l))
}

// List returns every loan to admins and the caller's own loans to
// regular users. Admins may filter by ?user=; anyone by ?book=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := policy.ActorFrom(r.Context())
	var f entity.Filter
	switch {
	case policy.Decide(actor, policy.OpList, policy.ResourceLoan) == policy.Allow:
		if v := r.URL.Query().Get("user"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				utilities.WriteError(w, http.StatusBadRequest, "user must be an integer")
				return
			}
			f.UserID = &id
		}
	case policy.Decide(actor, policy.OpListOwn, policy.ResourceLoan) == policy.Allow:
		own := actor.UserID
		f.UserID = &own
	default:
		policy.Reject(w, actor)
		return
	}
	if v := r.URL.Query().Get("book"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utilities.WriteError(w, http.StatusBadRequest, "book must be an integer")
			return
		}
		f.BookID = &id
	}
	limit, offset, err := utilities.ParsePage(r)
	if err != nil {
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Limit, f.Offset = limit, offset

	loans, count, err := h.ledger.List(r.Context(), f)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	page := utilities.Page[View]{Count: count, Results: make([]View, 0, len(loans))}
	for _, l := range loans {
		page.Results = append(page.Results, viewOf(l))
	}
	utilities.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := policy.Authorize(w, r, policy.OpRead, policy.ResourceLoan)
	if !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	l, err := h.ledger.Get(r.Context(), actor, id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, viewOf(l))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpUpdate, policy.ResourceLoan); !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	var req ReassignRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	l, err := h.ledger.Reassign(r.Context(), id, req.User)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, viewOf(l))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpDelete, policy.ResourceLoan); !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	if err := h.ledger.Delete(r.Context(), id); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnavailable):
		utilities.WriteError(w, http.StatusBadRequest, "Book is not available")
	case errors.Is(err, ErrAlreadyReturned):
		utilities.WriteError(w, http.StatusBadRequest, "Book already returned")
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUserNotFound):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBookNotFound):
		utilities.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthenticated):
		policy.Reject(w, policy.Anonymous())
	default:
		h.logger.Errorw("loan request failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
