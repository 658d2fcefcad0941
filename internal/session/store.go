// Package session implements server-side login sessions.
//
// SESSION LIFECYCLE:
//  1. Issue: a login succeeds → a Record is saved in the Store and the
//     browser receives a signed cookie naming that record
//  2. Resolve: every request → the cookie signature is checked, the record
//     is loaded, and its principal id is handed to the auth middleware
//  3. Destroy: logout (or a stale principal) → the record is deleted
//
// WHY SERVER-SIDE RECORDS AND NOT A BARE JWT?
// A self-contained token cannot be revoked before it expires. Keeping the
// record on the server means logout really ends the session. The cookie is
// still a signed JWT so a forged or edited cookie is rejected before any
// store lookup happens.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned whenever a cookie does not lead to a live
// session: bad signature, unknown id, expired, or mismatched principal.
// Callers treat all of these the same way (anonymous request).
var ErrNoSession = errors.New("session: no active session")

// Record is the server-side half of a session.
type Record struct {
	ID          string    `json:"id"`
	PrincipalID int64     `json:"principalId"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the record is past its absolute expiry at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists session records.
//
// Implementations: MemoryStore (single process) and RedisStore (shared
// between replicas). Get returns ErrNoSession for unknown or expired ids.
// Delete of an unknown id is not an error.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}
