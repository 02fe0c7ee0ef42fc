package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Users is what the token endpoint needs from the user service.
type Users interface {
	AuthenticatePassword(ctx context.Context, username, password string) (*userentity.User, error)
	Get(ctx context.Context, id int64) (*userentity.User, error)
}

type Handler struct {
	svc    *TokenService
	users  Users
	logger *zap.SugaredLogger
}

func NewHandler(svc *TokenService, users Users, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, users: users, logger: logger}
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpRead, policy.ResourceAuth); !ok {
		return
	}
	utilities.WriteJSON(w, http.StatusOK, h.svc.JWKS())
}

// Userinfo returns the caller's own account.
func (h *Handler) Userinfo(w http.ResponseWriter, r *http.Request) {
	actor, ok := policy.Authorize(w, r, policy.OpReadOwn, policy.ResourceAuth)
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, userentity.ErrNotFound) {
			policy.Reject(w, policy.Anonymous())
			return
		}
		h.logger.Errorw("userinfo lookup failed", "user_id", actor.UserID, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, user.ViewOf(u))
}

// TokenResponse is the OAuth2 token endpoint body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Token serves the password and refresh_token grants. Refresh tokens are
// rotated on every use.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpCreate, policy.ResourceAuth); !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	clientID := r.Form.Get("client_id")
	var (
		u   *userentity.User
		err error
	)
	switch r.Form.Get("grant_type") {
	case "password":
		u, err = h.users.AuthenticatePassword(r.Context(), r.Form.Get("username"), r.Form.Get("password"))
	case "refresh_token":
		rt := r.Form.Get("refresh_token")
		if rt == "" {
			utilities.WriteError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		u, clientID, err = h.redeem(r.Context(), rt)
	default:
		utilities.WriteError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) || errors.Is(err, userentity.ErrNotFound) || errors.Is(err, user.ErrBadCredentials) {
			h.logger.Debugw("token grant rejected", "err", err)
			utilities.WriteError(w, http.StatusUnauthorized, "invalid_grant")
			return
		}
		h.logger.Errorw("token grant failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}
	pair, err := h.svc.IssueTokens(r.Context(), u, clientID)
	if err != nil {
		h.logger.Errorw("issue tokens failed", "user_id", u.ID, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	utilities.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	})
}

func (h *Handler) redeem(ctx context.Context, token string) (*userentity.User, string, error) {
	sess, err := h.svc.ConsumeRefreshToken(ctx, token)
	if err != nil {
		return nil, "", err
	}
	u, err := h.users.Get(ctx, sess.UserID)
	if err != nil {
		return nil, "", err
	}
	return u, sess.ClientID, nil
}

// Revoke follows RFC 7009: the response is 200 even for unknown tokens.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if _, ok := policy.Authorize(w, r, policy.OpDelete, policy.ResourceAuth); !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	token := r.Form.Get("token")
	if token == "" {
		utilities.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := h.svc.Revoke(r.Context(), token); err != nil {
		h.logger.Warnw("revoke failed", "err", err)
	}
	w.WriteHeader(http.StatusOK)
}
