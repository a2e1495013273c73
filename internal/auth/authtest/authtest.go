// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package authtest provides a conformance suite that every auth.Store
// backend must pass. Backend packages call RunStoreSuite from their own
// tests with a factory for a fresh store.
package authtest

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raforawesome/bento/internal/auth"
)

// Clock is a controllable time source for exercising expiry without
// sleeping.
type Clock struct {
	now time.Time
}

// NewClock creates a clock fixed at a stable starting instant. The base
// is anchored to the real present so that cookie Expires values derived
// from it are not in the real-time past, which would make http cookie
// jars silently discard them.
func NewClock() *Clock {
	return &Clock{now: time.Now().UTC().Truncate(time.Second)}
}

// Now returns the current instant. Pass c.Now as auth.StoreConfig.Clock.
func (c *Clock) Now() time.Time { return c.now }

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// Factory builds a fresh, empty store for one subtest. The suite sets
// cfg.Clock and cfg.MaxSessionsPerUser as each scenario needs.
type Factory func(t *testing.T, cfg auth.StoreConfig) auth.Store

var (
	ip1 = netip.MustParseAddr("192.0.2.10")
	ip2 = netip.MustParseAddr("192.0.2.20")
)

func mustHash(t *testing.T, password string) auth.PasswordHash {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return hash
}

// RunStoreSuite runs the full contract conformance suite against stores
// built by newStore.
func RunStoreSuite(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create then fetch by username verifies password", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		created, err := auth.CreateStandardUser(ctx, store, "alice", mustHash(t, "secret"))
		require.NoError(t, err)

		user, err := store.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
		assert.Equal(t, auth.RoleUser, user.Role)
		assert.True(t, user.PasswordHash.Verify("secret"))
		assert.False(t, user.PasswordHash.Verify("wrong"))
	})

	t.Run("fetch by id", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		created, err := auth.CreateAdmin(ctx, store, "root", mustHash(t, "hunter2"))
		require.NoError(t, err)

		user, err := store.GetUserByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "root", user.Username)
		assert.Equal(t, auth.RoleAdmin, user.Role)

		_, err = store.GetUserByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		first, err := auth.CreateStandardUser(ctx, store, "bob", mustHash(t, "pw1"))
		require.NoError(t, err)

		_, err = auth.CreateStandardUser(ctx, store, "bob", mustHash(t, "pw2"))
		assert.ErrorIs(t, err, auth.ErrUserExists)

		// Exactly one user with that name survives, and it is the first.
		user, err := store.GetUserByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, first.ID, user.ID)
		assert.True(t, user.PasswordHash.Verify("pw1"))
	})

	t.Run("username lookup is case-sensitive", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		_, err := auth.CreateStandardUser(ctx, store, "Carol", mustHash(t, "pw"))
		require.NoError(t, err)

		_, err = store.GetUserByUsername(ctx, "carol")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("set password hash", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		user, err := auth.CreateStandardUser(ctx, store, "dave", mustHash(t, "old"))
		require.NoError(t, err)

		newHash := mustHash(t, "new")
		returned, err := store.SetPasswordHash(ctx, user.ID, newHash)
		require.NoError(t, err)
		assert.Equal(t, newHash, returned)

		updated, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, updated.PasswordHash.Verify("new"))
		assert.False(t, updated.PasswordHash.Verify("old"))
		// Rest of the record untouched.
		assert.Equal(t, user.Username, updated.Username)
		assert.Equal(t, user.Role, updated.Role)

		_, err = store.SetPasswordHash(ctx, ulid.Make(), newHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("session cap enforced and freed by revoke", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{MaxSessionsPerUser: 1})

		user, err := auth.CreateStandardUser(ctx, store, "erin", mustHash(t, "pw"))
		require.NoError(t, err)

		s1, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)
		assert.Equal(t, user.ID, s1.UserID)
		assert.Equal(t, ip1, s1.IP)

		_, err = store.IssueSession(ctx, user.ID, ip2)
		assert.ErrorIs(t, err, auth.ErrSessionLimitReached)

		require.NoError(t, store.RevokeSession(ctx, s1.ID))

		s2, err := store.IssueSession(ctx, user.ID, ip2)
		require.NoError(t, err)
		assert.NotEqual(t, s1.ID, s2.ID)
	})

	t.Run("issuing up to the cap succeeds", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{MaxSessionsPerUser: 3})

		user, err := auth.CreateStandardUser(ctx, store, "frank", mustHash(t, "pw"))
		require.NoError(t, err)

		for range 3 {
			_, err := store.IssueSession(ctx, user.ID, ip1)
			require.NoError(t, err)
		}
		_, err = store.IssueSession(ctx, user.ID, ip1)
		assert.ErrorIs(t, err, auth.ErrSessionLimitReached)
	})

	t.Run("issue for unknown user", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		_, err := store.IssueSession(ctx, ulid.Make(), ip1)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("expired sessions are reaped at issuance", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, auth.StoreConfig{MaxSessionsPerUser: 1, Clock: clock.Now})

		user, err := auth.CreateStandardUser(ctx, store, "grace", mustHash(t, "pw"))
		require.NoError(t, err)

		s1, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)

		// Let the first session expire; the cap should no longer count it.
		clock.Advance(auth.DefaultSessionTTL + time.Minute)

		s2, err := store.IssueSession(ctx, user.ID, ip2)
		require.NoError(t, err)
		assert.NotEqual(t, s1.ID, s2.ID)

		// The expired session was deleted, not merely skipped.
		_, err = store.FetchSession(ctx, s1.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
	})

	t.Run("reap callback reports removed sessions", func(t *testing.T) {
		clock := NewClock()
		var reaped int
		store := newStore(t, auth.StoreConfig{
			MaxSessionsPerUser: 3,
			Clock:              clock.Now,
			OnSessionsReaped:   func(n int) { reaped += n },
		})

		user, err := auth.CreateStandardUser(ctx, store, "olga", mustHash(t, "pw"))
		require.NoError(t, err)

		_, err = store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)
		_, err = store.IssueSession(ctx, user.ID, ip2)
		require.NoError(t, err)
		assert.Zero(t, reaped, "no reaps expected while sessions are live")

		clock.Advance(auth.DefaultSessionTTL + time.Minute)

		// Issuance reaps both expired sessions in one pass.
		s3, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)
		assert.Equal(t, 2, reaped)

		// A fetch that finds the session expired reaps it singly.
		clock.Advance(auth.DefaultSessionTTL + time.Minute)
		_, err = store.FetchSession(ctx, s3.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
		assert.Equal(t, 3, reaped)

		// Revocation is not a reap.
		s4, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)
		require.NoError(t, store.RevokeSession(ctx, s4.ID))
		assert.Equal(t, 3, reaped)
	})

	t.Run("fetch session", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, auth.StoreConfig{Clock: clock.Now})

		user, err := auth.CreateStandardUser(ctx, store, "heidi", mustHash(t, "pw"))
		require.NoError(t, err)

		issued, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)

		fetched, err := store.FetchSession(ctx, issued.ID)
		require.NoError(t, err)
		assert.Equal(t, issued.ID, fetched.ID)
		assert.Equal(t, user.ID, fetched.UserID)

		_, err = store.FetchSession(ctx, auth.SessionID("no-such-session"))
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
	})

	t.Run("expired session deleted on fetch", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, auth.StoreConfig{Clock: clock.Now})

		user, err := auth.CreateStandardUser(ctx, store, "ivan", mustHash(t, "pw"))
		require.NoError(t, err)

		issued, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)

		clock.Advance(auth.DefaultSessionTTL + time.Minute)

		_, err = store.FetchSession(ctx, issued.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)

		// The first fetch deleted it; a second fetch fails identically
		// rather than succeeding through lazy re-creation.
		_, err = store.FetchSession(ctx, issued.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
	})

	t.Run("extend advances expiry", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, auth.StoreConfig{Clock: clock.Now})

		user, err := auth.CreateStandardUser(ctx, store, "judy", mustHash(t, "pw"))
		require.NoError(t, err)

		issued, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)

		clock.Advance(time.Hour)

		extended, err := store.ExtendSession(ctx, issued.ID)
		require.NoError(t, err)
		assert.True(t, extended.ExpiresAt.After(issued.ExpiresAt))
		assert.Equal(t, issued.ID, extended.ID)

		fetched, err := store.FetchSession(ctx, issued.ID)
		require.NoError(t, err)
		assert.Equal(t, extended.ExpiresAt.UTC(), fetched.ExpiresAt.UTC())
	})

	t.Run("extend expired session fails and deletes it", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, auth.StoreConfig{Clock: clock.Now})

		user, err := auth.CreateStandardUser(ctx, store, "kevin", mustHash(t, "pw"))
		require.NoError(t, err)

		issued, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)

		clock.Advance(auth.DefaultSessionTTL + time.Minute)

		_, err = store.ExtendSession(ctx, issued.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)

		_, err = store.FetchSession(ctx, issued.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
	})

	t.Run("revoke unknown session", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		err := store.RevokeSession(ctx, auth.SessionID("never-existed"))
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
	})

	t.Run("revoked session is gone", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		user, err := auth.CreateStandardUser(ctx, store, "laura", mustHash(t, "pw"))
		require.NoError(t, err)

		issued, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)

		require.NoError(t, store.RevokeSession(ctx, issued.ID))

		_, err = store.FetchSession(ctx, issued.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)

		// Double revoke behaves like never-existed.
		err = store.RevokeSession(ctx, issued.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
	})

	t.Run("delete user purges sessions", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{MaxSessionsPerUser: 3})

		user, err := auth.CreateStandardUser(ctx, store, "mallory", mustHash(t, "pw"))
		require.NoError(t, err)

		s1, err := store.IssueSession(ctx, user.ID, ip1)
		require.NoError(t, err)
		s2, err := store.IssueSession(ctx, user.ID, ip2)
		require.NoError(t, err)

		require.NoError(t, store.DeleteUser(ctx, user.ID))

		_, err = store.GetUserByID(ctx, user.ID)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = store.FetchSession(ctx, s1.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
		_, err = store.FetchSession(ctx, s2.ID)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)

		// Username is free again.
		_, err = auth.CreateStandardUser(ctx, store, "mallory", mustHash(t, "pw"))
		assert.NoError(t, err)
	})

	t.Run("delete unknown user", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{})

		err := store.DeleteUser(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("sessions are independent across users", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{MaxSessionsPerUser: 1})

		alice, err := auth.CreateStandardUser(ctx, store, "alice2", mustHash(t, "pw"))
		require.NoError(t, err)
		bob, err := auth.CreateStandardUser(ctx, store, "bob2", mustHash(t, "pw"))
		require.NoError(t, err)

		_, err = store.IssueSession(ctx, alice.ID, ip1)
		require.NoError(t, err)

		// Alice being at her cap must not affect Bob.
		_, err = store.IssueSession(ctx, bob.ID, ip2)
		require.NoError(t, err)
	})

	t.Run("concurrent issuance respects the cap", func(t *testing.T) {
		store := newStore(t, auth.StoreConfig{MaxSessionsPerUser: 4})

		user, err := auth.CreateStandardUser(ctx, store, "nina", mustHash(t, "pw"))
		require.NoError(t, err)

		const attempts = 12
		results := make(chan error, attempts)
		for range attempts {
			go func() {
				_, err := store.IssueSession(ctx, user.ID, ip1)
				results <- err
			}()
		}

		issued := 0
		for range attempts {
			err := <-results
			if err == nil {
				issued++
			} else {
				assert.ErrorIs(t, err, auth.ErrSessionLimitReached)
			}
		}
		assert.Equal(t, 4, issued)
	})
}
