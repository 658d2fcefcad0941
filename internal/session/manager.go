package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName matches the cookie name existing clients already send.
const DefaultCookieName = "connect.sid"

// DefaultTTL is the absolute session lifetime.
const DefaultTTL = 24 * time.Hour

// Config configures a Manager.
type Config struct {
	// Secret signs cookie values. At least 16 characters.
	Secret     string
	CookieName string
	TTL        time.Duration
	// Secure marks the cookie HTTPS-only. On in production.
	Secure bool
}

// Issued is what Issue hands back: the signed cookie value plus the
// record it points at.
type Issued struct {
	Value       string
	SessionID   string
	PrincipalID int64
	ExpiresAt   time.Time
}

// Manager issues, resolves and destroys sessions.
type Manager struct {
	store Store
	codec *tokenCodec
	cfg   Config
	now   func() time.Time
	newID func() string
}

// NewManager validates cfg, fills defaults and returns a Manager.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("session: secret must be at least 16 characters")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	m := &Manager{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	m.codec = &tokenCodec{
		secret: []byte(cfg.Secret),
		now:    func() time.Time { return m.now() },
	}
	return m, nil
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Issue starts a new session for principalID.
func (m *Manager) Issue(ctx context.Context, principalID int64) (*Issued, error) {
	now := m.now()
	rec := Record{
		ID:          m.newID(),
		PrincipalID: principalID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.cfg.TTL),
	}

	value, err := m.codec.encode(rec)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("session: saving record: %w", err)
	}

	return &Issued{
		Value:       value,
		SessionID:   rec.ID,
		PrincipalID: principalID,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

// Resolve returns the principal id behind a cookie value.
//
// Every "not logged in" outcome is ErrNoSession. Any other error means
// the store itself failed.
func (m *Manager) Resolve(ctx context.Context, value string) (int64, error) {
	if value == "" {
		return 0, ErrNoSession
	}

	id, principalID, err := m.codec.decode(value, true)
	if err != nil {
		return 0, err
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	if rec.Expired(m.now()) {
		_ = m.store.Delete(ctx, id)
		return 0, ErrNoSession
	}
	if rec.PrincipalID != principalID {
		return 0, ErrNoSession
	}

	return rec.PrincipalID, nil
}

// Destroy ends the session a cookie points at. Absent sessions and
// undecodable cookies are already "logged out" and return nil.
func (m *Manager) Destroy(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}

	id, _, err := m.codec.decode(value, false)
	if err != nil {
		return nil
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: destroying %s: %w", id, err)
	}
	return nil
}

// Cookie builds the Set-Cookie for an issued session.
func (m *Manager) Cookie(issued *Issued) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    issued.Value,
		Path:     "/",
		Expires:  issued.ExpiresAt,
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie clears the session cookie in the browser.
func (m *Manager) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
