package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/user-portal/internal/apperror"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/session"
)

// contextKey is unexported so no other package can read or overwrite the
// principal stored under it.
type contextKey string

const principalKey contextKey = "principal"

// SessionResolver is the part of session.Manager the gate needs.
type SessionResolver interface {
	CookieName() string
	Resolve(ctx context.Context, value string) (int64, error)
	Destroy(ctx context.Context, value string) error
}

// PrincipalLoader rehydrates a principal id into a user row.
type PrincipalLoader interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// LoadPrincipal attaches the logged-in user (if any) to the request context.
//
// It never rejects a request. Routes that need a user add
// RequireAuthenticated after it; routes that need the opposite add
// RequireAnonymous.
//
// STALE SESSIONS:
// A valid session can outlive its user (the account was deleted from
// another tab). The lookup then returns ErrNotFound, the session is
// destroyed, and the request continues as anonymous.
func LoadPrincipal(sessions SessionResolver, users PrincipalLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessions.CookieName())
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			principalID, err := sessions.Resolve(ctx, cookie.Value)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					logger.Error("resolving session", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByID(ctx, principalID)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					logger.Info("session points at a deleted user", "user_id", principalID)
					if err := sessions.Destroy(ctx, cookie.Value); err != nil {
						logger.Error("destroying stale session", "error", err)
					}
				} else {
					logger.Error("loading session principal", "user_id", principalID, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, user)))
		})
	}
}

// RequireAuthenticated answers 401 unless LoadPrincipal found a user.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			writeGateError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnonymous answers 400 when the caller is already logged in.
func RequireAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); ok {
			writeGateError(w, http.StatusBadRequest, "already_authenticated", "Already authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal returns a copy of ctx carrying user.
func WithPrincipal(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, principalKey, user)
}

// PrincipalFromContext returns the logged-in user, or (nil, false) for an
// anonymous request.
func PrincipalFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(principalKey).(*model.User)
	return user, ok && user != nil
}

// writeGateError uses the same {"error","message"} shape as the handlers.
func writeGateError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
