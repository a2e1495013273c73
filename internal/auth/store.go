// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package auth

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store is the capability contract for identity and session persistence.
//
// Implementations must make each operation atomic: either every table and
// index it touches changes together, or none do. Username uniqueness is
// byte-exact and checked within the same atomic unit as the insert, so two
// concurrent CreateUser calls for the same name admit exactly one user.
//
// Expiry is lazy. There is no background sweeper; an expired session is
// deleted by whichever operation observes it (FetchSession, ExtendSession,
// or the reap pass inside IssueSession).
type Store interface {
	// MaxSessionsPerUser returns the static per-user cap on non-expired
	// sessions.
	MaxSessionsPerUser() int

	// CreateUser creates a user with a fresh id. Returns ErrUserExists if
	// the username is already taken by a live user.
	CreateUser(ctx context.Context, username string, hash PasswordHash, role Role) (User, error)

	// GetUserByID returns the user with the given id, or ErrNotFound.
	GetUserByID(ctx context.Context, id ulid.ULID) (User, error)

	// GetUserByUsername returns the user with the given username, or
	// ErrNotFound. Lookup is byte-exact (case-sensitive).
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// SetPasswordHash atomically replaces the user's credential, leaving
	// the rest of the record unchanged. Returns ErrNotFound if no such
	// user exists.
	SetPasswordHash(ctx context.Context, id ulid.ULID, newHash PasswordHash) (PasswordHash, error)

	// DeleteUser removes the user, its username index entry, and every
	// session it owns. Returns ErrNotFound if no such user exists.
	DeleteUser(ctx context.Context, id ulid.ULID) error

	// IssueSession creates a session for the user after reaping its
	// expired and orphaned sessions. Returns ErrNotFound if the user does
	// not exist, or ErrSessionLimitReached if the user still holds
	// MaxSessionsPerUser non-expired sessions after the reap.
	IssueSession(ctx context.Context, userID ulid.ULID, ip netip.Addr) (Session, error)

	// FetchSession returns the session, or ErrInvalidSession if it is
	// absent or expired. An expired session is deleted as a side effect
	// before the error is returned.
	FetchSession(ctx context.Context, id SessionID) (Session, error)

	// ExtendSession advances the session's expiry to now plus the session
	// TTL and returns the updated record. Fails like FetchSession, and
	// re-validates expiry at the moment of the write.
	ExtendSession(ctx context.Context, id SessionID) (Session, error)

	// RevokeSession deletes the session. Returns ErrInvalidSession if it
	// does not exist; already-revoked and never-existed are
	// indistinguishable.
	RevokeSession(ctx context.Context, id SessionID) error
}

// CreateStandardUser creates a user with RoleUser.
func CreateStandardUser(ctx context.Context, s Store, username string, hash PasswordHash) (User, error) {
	return s.CreateUser(ctx, username, hash, RoleUser)
}

// CreateAdmin creates a user with RoleAdmin.
func CreateAdmin(ctx context.Context, s Store, username string, hash PasswordHash) (User, error) {
	return s.CreateUser(ctx, username, hash, RoleAdmin)
}

// StoreConfig carries the knobs shared by every Store backend. It is
// constructed once at startup and passed in explicitly; there is no
// ambient global configuration.
type StoreConfig struct {
	// MaxSessionsPerUser caps non-expired sessions per user.
	// Zero means DefaultMaxSessionsPerUser.
	MaxSessionsPerUser int

	// SessionTTL is the lifetime of an issued or extended session.
	// Zero means DefaultSessionTTL.
	SessionTTL time.Duration

	// Clock overrides the time source. Nil means time.Now. Tests use this
	// to exercise expiry deterministically.
	Clock func() time.Time

	// Logger receives internal diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// OnSessionsReaped observes the number of sessions a lazy expiry pass
	// removed, after the removal is durable. Nil disables the callback.
	// Metrics wiring hangs off this hook.
	OnSessionsReaped func(n int)
}

// Normalized returns a copy of c with zero fields replaced by defaults.
func (c StoreConfig) Normalized() StoreConfig {
	if c.MaxSessionsPerUser <= 0 {
		c.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OnSessionsReaped == nil {
		c.OnSessionsReaped = func(int) {}
	}
	return c
}
