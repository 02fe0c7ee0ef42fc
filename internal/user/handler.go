package user

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for registration and user administration.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// View is the serialized user. The password hash is never part of it.
type View struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// ViewOf converts a user row to its public view.
func ViewOf(u *entity.User) View {
	return View{ID: u.ID, Username: u.Username, Email: u.Email, IsAdmin: u.IsAdmin, CreatedAt: u.CreatedAt}
}

// SignupRequest request body for registration.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	actor, ok := policy.Authorize(w, r, policy.OpCreate, policy.ResourceUser)
	if !ok {
		return
	}
	var req SignupRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	u, err := h.svc.Signup(r.Context(), actor, SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, ViewOf(u))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpList, policy.ResourceUser); !ok {
		return
	}
	limit, offset, err := utilities.ParsePage(r)
	if err != nil {
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	users, count, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	page := utilities.Page[View]{Count: count, Results: make([]View, 0, len(users))}
	for _, u := range users {
		page.Results = append(page.Results, ViewOf(u))
	}
	utilities.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpRead, policy.ResourceUser); !ok {
		return
	}
	id, ok := utilities.PathID(r)
	if !ok {
		utilities.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ViewOf(u))
}

// UpdateRequest is a partial user edit; absent fields are left unchanged.
type UpdateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsAdmin  *bool   `json:"is_admin"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpUpdate, policy.ResourceUser); !ok {
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
	u, err := h.svc.Update(r.Context(), id, UpdateInput(req))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ViewOf(u))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpDelete, policy.ResourceUser); !ok {
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
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDuplicateUsername):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUserNotFound):
		utilities.WriteError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Errorw("user request failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
