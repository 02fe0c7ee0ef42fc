package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/policy"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// UserLookup loads the user behind a token subject.
type UserLookup interface {
	Get(ctx context.Context, id int64) (*userentity.User, error)
}

// Middleware resolves the bearer token into a policy.Actor on the request
// context. Requests without an Authorization header stay anonymous; a
// malformed or expired token, or one whose user no longer exists, is
// rejected with 401.
func Middleware(tokens *TokenService, users UserLookup, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, raw, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
				reject(w)
				return
			}
			id, _, err := tokens.ParseAccessToken(strings.TrimSpace(raw))
			if err != nil {
				logger.Debugw("bearer rejected", "err", err)
				reject(w)
				return
			}
			u, err := users.Get(r.Context(), id)
			if err != nil {
				if errors.Is(err, userentity.ErrNotFound) {
					reject(w)
					return
				}
				logger.Errorw("load token user failed", "user_id", id, "err", err)
				utilities.WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}
			ctx := policy.WithActor(r.Context(), policy.User(u.ID, u.IsAdmin))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	utilities.WriteError(w, http.StatusUnauthorized, "Given token not valid for any token type")
}
