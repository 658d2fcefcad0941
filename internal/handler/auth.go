package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/user-portal/internal/auth"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/session"
)

const stateCookieName = "oauth_state"

// OAuthProvider is the Google side of the login flow.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleProfile, error)
}

// IdentityResolver turns credentials into a user row.
type IdentityResolver interface {
	ResolveGoogle(ctx context.Context, p *auth.GoogleProfile) (*model.User, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
}

// SessionManager is what the handlers need from session.Manager.
type SessionManager interface {
	CookieName() string
	Issue(ctx context.Context, principalID int64) (*session.Issued, error)
	Destroy(ctx context.Context, value string) error
	Cookie(issued *session.Issued) *http.Cookie
	ExpiredCookie() *http.Cookie
}

// AuthRedirects are the browser destinations after the OAuth dance.
type AuthRedirects struct {
	// Success is where a completed Google login lands.
	Success string
	// Failure gets "?error=<code>" appended.
	Failure string
	// Logout is where a browser (non-JSON) logout lands.
	Logout string
	// SecureCookies marks the short-lived state cookie HTTPS-only.
	SecureCookies bool
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthHandler serves /api/auth.
//
//	GET  /api/auth/google           → HandleGoogleLogin
//	GET  /api/auth/google/callback  → HandleGoogleCallback
//	POST /api/auth/login            → HandleLogin (anonymous only)
//	GET  /api/auth/user             → HandleCurrentUser
//	GET  /api/auth/logout           → HandleLogout (JSON or redirect)
//	POST /api/auth/logout           → HandleLogoutJSON
type AuthHandler struct {
	google     OAuthProvider
	identities IdentityResolver
	sessions   SessionManager
	redirects  AuthRedirects
	logger     *slog.Logger
}

// NewAuthHandler builds an AuthHandler. google may be nil when no OAuth
// client is configured; the Google routes are then not mounted.
func NewAuthHandler(
	google OAuthProvider,
	identities IdentityResolver,
	sessions SessionManager,
	redirects AuthRedirects,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		google:     google,
		identities: identities,
		sessions:   sessions,
		redirects:  redirects,
		logger:     logger,
	}
}

// HandleGoogleLogin starts the OAuth flow.
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived cookie and into the Google URL.
// The callback only proceeds when both come back equal, which proves this
// server started the flow.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.redirects.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusFound)
}

// HandleGoogleCallback finishes the OAuth flow.
//
// FLOW:
//  1. check state (CSRF) and whether Google reported an error
//  2. exchange the code for a profile
//  3. resolve the profile to a user row (find, link or create)
//  4. replace any existing session with a fresh one
//  5. redirect to the client
//
// Every failure redirects to the failure URL with an error code; the
// browser is mid-navigation, so a JSON body would never be seen.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		h.fail(w, r, "invalid_state")
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("oauth callback: provider returned error", slog.String("error", errParam))
		h.fail(w, r, "access_denied")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, r, "missing_code")
		return
	}

	profile, err := h.google.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed", slog.String("error", err.Error()))
		h.fail(w, r, "exchange_failed")
		return
	}

	user, err := h.identities.ResolveGoogle(ctx, profile)
	if err != nil {
		h.logger.Error("oauth callback: identity resolution failed", slog.String("error", err.Error()))
		h.fail(w, r, "identity_resolution_failed")
		return
	}

	if !h.startSession(w, r, user) {
		h.fail(w, r, "session_failed")
		return
	}

	h.logger.Info("user logged in", slog.Int64("user_id", user.ID), slog.String("provider", "google"))
	http.Redirect(w, r, h.redirects.Success, http.StatusSeeOther)
}

// HandleLogin checks local credentials and starts a session.
// 200 {"user": User}; wrong credentials are 401.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.identities.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if !h.startSession(w, r, user) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Could not start session",
		})
		return
	}

	h.logger.Info("user logged in", slog.Int64("user_id", user.ID), slog.String("provider", "local"))
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleCurrentUser returns the logged-in user.
func (h *AuthHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Not authenticated",
		})
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleLogout ends the session. Fetch/XHR callers that accept JSON get a
// JSON body; a plain browser navigation is redirected to the client.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !h.endSession(w, r) {
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
		return
	}
	http.Redirect(w, r, h.redirects.Logout, http.StatusSeeOther)
}

// HandleLogoutJSON is the POST form of logout and always answers JSON.
func (h *AuthHandler) HandleLogoutJSON(w http.ResponseWriter, r *http.Request) {
	if !h.endSession(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// startSession destroys whatever session the request carried, issues a new
// one for user and sets the cookie.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *model.User) bool {
	ctx := r.Context()

	if old, err := r.Cookie(h.sessions.CookieName()); err == nil && old.Value != "" {
		if err := h.sessions.Destroy(ctx, old.Value); err != nil {
			h.logger.Warn("destroying previous session", slog.String("error", err.Error()))
		}
	}

	issued, err := h.sessions.Issue(ctx, user.ID)
	if err != nil {
		h.logger.Error("issuing session", slog.Int64("user_id", user.ID), slog.String("error", err.Error()))
		return false
	}

	http.SetCookie(w, h.sessions.Cookie(issued))
	return true
}

// endSession destroys the request's session and clears the cookie. On a
// store failure it writes the 500 itself and returns false.
func (h *AuthHandler) endSession(w http.ResponseWriter, r *http.Request) bool {
	if c, err := r.Cookie(h.sessions.CookieName()); err == nil && c.Value != "" {
		if err := h.sessions.Destroy(r.Context(), c.Value); err != nil {
			h.logger.Error("destroying session", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Session destruction failed",
			})
			return false
		}
	}

	http.SetCookie(w, h.sessions.ExpiredCookie())
	return true
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, withQuery(h.redirects.Failure, "error", code), http.StatusSeeOther)
}

// withQuery adds key=value to rawURL, keeping any query it already has.
func withQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
