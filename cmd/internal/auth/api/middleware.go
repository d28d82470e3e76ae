package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth/session"
)

type ctxKey int

const (
	ctxKeyPrincipal ctxKey = iota
	ctxKeyRequestID
)

const RequestIDHeader = "X-Request-ID"

// AccessVerifier checks bearer access tokens.
type AccessVerifier interface {
	VerifyAccess(tok string, now time.Time) (session.AccessClaims, error)
}

// WithRequestID assigns every request an id, reusing a well-formed inbound
// X-Request-ID, and echoes it on the response.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// WithRecovery turns a panic into a logged 500.
func WithRecovery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					log.Error("http.panic", "panic", v, "request_id", RequestID(r.Context()), "stack", string(debug.Stack()))
					WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without a valid bearer access token and
// stores the principal in the request context.
func RequireAuth(v AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.VerifyAccess(bearerToken(r), time.Now().UTC())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Principal())))
		})
	}
}

// OptionalAuth attaches the principal when a valid bearer is present and
// otherwise lets the request through untouched.
func OptionalAuth(v AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := bearerToken(r); tok != "" {
				if claims, err := v.VerifyAccess(tok, time.Now().UTC()); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), claims.Principal()))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
				return
			}
			if p.Role != role {
				WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p session.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFrom(ctx context.Context) (session.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(session.Principal)
	return p, ok
}
