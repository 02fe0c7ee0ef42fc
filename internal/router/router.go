package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/book"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const requestIDHeader = "X-Request-Id"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDMiddleware keeps a caller-supplied X-Request-Id or assigns a KSUID.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > 64 {
				id = utilities.NewKSUID()
				r.Header.Set(requestIDHeader, id)
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
				"request_id", r.Header.Get(requestIDHeader),
			)
		})
	}
}

// SecurityHeadersMiddleware sets response headers suited to a JSON API:
// nothing is rendered, framed or sniffed.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")
			// HSTS only over TLS; 30 days
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the handlers and middleware the route table mounts.
// Authenticate resolves the bearer token into a policy.Actor.
type Deps struct {
	Logger       *zap.SugaredLogger
	Auth         *auth.Handler
	Users        *user.Handler
	Books        *book.Handler
	Loans        *loan.Handler
	Health       http.Handler
	Authenticate func(http.Handler) http.Handler
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
// Every handler consults the policy table itself; Authenticate only
// resolves who is calling.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	if d.Health != nil {
		mux.Handle("GET /health", d.Health)
	}

	mux.HandleFunc("POST /auth/token", d.Auth.Token)
	mux.HandleFunc("POST /auth/revoke", d.Auth.Revoke)
	mux.HandleFunc("GET /auth/jwks.json", d.Auth.JWKS)
	mux.HandleFunc("GET /auth/userinfo", d.Auth.Userinfo)

	mux.HandleFunc("POST /users", d.Users.Signup)
	mux.HandleFunc("GET /users", d.Users.List)
	mux.HandleFunc("GET /users/{id}", d.Users.Get)
	mux.HandleFunc("PUT /users/{id}", d.Users.Update)
	mux.HandleFunc("PATCH /users/{id}", d.Users.Update)
	mux.HandleFunc("DELETE /users/{id}", d.Users.Delete)

	mux.HandleFunc("GET /books", d.Books.List)
	mux.HandleFunc("POST /books", d.Books.Create)
	mux.HandleFunc("GET /books/{id}", d.Books.Get)
	mux.HandleFunc("PUT /books/{id}", d.Books.Update)
	mux.HandleFunc("PATCH /books/{id}", d.Books.Update)
	mux.HandleFunc("DELETE /books/{id}", d.Books.Delete)

	mux.HandleFunc("GET /loans", d.Loans.List)
	mux.HandleFunc("POST /loans", d.Loans.Borrow)
	mux.HandleFunc("GET /loans/{id}", d.Loans.Get)
	mux.HandleFunc("PUT /loans/{id}", d.Loans.Update)
	mux.HandleFunc("PATCH /loans/{id}", d.Loans.Update)
	mux.HandleFunc("DELETE /loans/{id}", d.Loans.Delete)
	mux.HandleFunc("POST /loans/{id}/return", d.Loans.Return)

	var handler http.Handler = mux
	if d.Authenticate != nil {
		handler = d.Authenticate(handler)
	}
	// outermost first: request id, logging, security headers, authentication
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	return RequestIDMiddleware()(handler)
}
