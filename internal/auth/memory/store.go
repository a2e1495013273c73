// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package memory provides a concurrent in-memory auth.Store. State lives
// in process-local maps and is lost on restart; it exists as a lightweight
// and testing implementation of the same contract as the bolt backend.
package memory

import (
	"context"
	"net/netip"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/Raforawesome/bento/internal/auth"
)

// Store is a map-based auth.Store guarded by a single RWMutex. Holding
// the write lock for the whole of each mutating operation is what makes
// check-then-insert sequences (username uniqueness, the session cap)
// atomic without transactions.
type Store struct {
	cfg auth.StoreConfig

	mu        sync.RWMutex
	users     map[ulid.ULID]auth.User
	usernames map[string]ulid.ULID
	sessions  map[auth.SessionID]auth.Session
}

// New creates an empty in-memory store.
func New(cfg auth.StoreConfig) *Store {
	return &Store{
		cfg:       cfg.Normalized(),
		users:     make(map[ulid.ULID]auth.User),
		usernames: make(map[string]ulid.ULID),
		sessions:  make(map[auth.SessionID]auth.Session),
	}
}

// MaxSessionsPerUser returns the static per-user session cap.
func (s *Store) MaxSessionsPerUser() int {
	return s.cfg.MaxSessionsPerUser
}

// CreateUser creates a user, failing with auth.ErrUserExists if the
// username is taken.
func (s *Store) CreateUser(_ context.Context, username string, hash auth.PasswordHash, role auth.Role) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[username]; taken {
		return auth.User{}, auth.ErrUserExists
	}

	user := auth.User{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	s.users[user.ID] = user
	s.usernames[username] = user.ID

	return user, nil
}

// GetUserByID returns the user with the given id.
func (s *Store) GetUserByID(_ context.Context, id ulid.ULID) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return user, nil
}

// GetUserByUsername returns the user with the given username.
func (s *Store) GetUserByUsername(_ context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	user, ok := s.users[id]
	if !ok {
		// Index and primary map drifted apart. Report as not-found but
		// flag the anomaly: this indicates a bug, not ordinary absence.
		s.cfg.Logger.Error("data integrity anomaly: username indexed but user record missing",
			"username", username,
			"user_id", id.String(),
		)
		return auth.User{}, auth.ErrNotFound
	}
	return user, nil
}

// SetPasswordHash replaces the user's credential.
func (s *Store) SetPasswordHash(_ context.Context, id ulid.ULID, newHash auth.PasswordHash) (auth.PasswordHash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return "", auth.ErrNotFound
	}
	user.PasswordHash = newHash
	s.users[id] = user

	return newHash, nil
}

// DeleteUser removes the user, its username index entry, and all of its
// sessions.
func (s *Store) DeleteUser(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}

	delete(s.users, id)
	delete(s.usernames, user.Username)
	for sid, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, sid)
		}
	}

	return nil
}

// IssueSession creates a session for the user, reaping that user's expired
// sessions first and enforcing the session cap on what remains.
func (s *Store) IssueSession(_ context.Context, userID ulid.ULID, ip netip.Addr) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return auth.Session{}, auth.ErrNotFound
	}

	now := s.cfg.Clock()

	// Partition the user's sessions into active and expired, dropping the
	// expired ones before counting against the cap.
	active, reaped := 0, 0
	for sid, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if sess.IsExpiredAt(now) {
			delete(s.sessions, sid)
			reaped++
		} else {
			active++
		}
	}
	if reaped > 0 {
		s.cfg.OnSessionsReaped(reaped)
	}

	if active >= s.cfg.MaxSessionsPerUser {
		return auth.Session{}, auth.ErrSessionLimitReached
	}

	id, err := auth.NewSessionID()
	if err != nil {
		return auth.Session{}, err
	}

	session := auth.Session{
		ID:        id,
		UserID:    userID,
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	s.sessions[id] = session

	return session, nil
}

// FetchSession returns the session if it is live. An expired session is
// deleted before auth.ErrInvalidSession is returned.
func (s *Store) FetchSession(_ context.Context, id auth.SessionID) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return auth.Session{}, auth.ErrInvalidSession
	}
	if sess.IsExpiredAt(s.cfg.Clock()) {
		delete(s.sessions, id)
		s.cfg.OnSessionsReaped(1)
		return auth.Session{}, auth.ErrInvalidSession
	}
	return sess, nil
}

// ExtendSession advances the session's expiry under the same lock that
// validates it, so a session cannot be extended after it expired.
func (s *Store) ExtendSession(_ context.Context, id auth.SessionID) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return auth.Session{}, auth.ErrInvalidSession
	}
	now := s.cfg.Clock()
	if sess.IsExpiredAt(now) {
		delete(s.sessions, id)
		s.cfg.OnSessionsReaped(1)
		return auth.Session{}, auth.ErrInvalidSession
	}

	sess.ExpiresAt = now.Add(s.cfg.SessionTTL)
	s.sessions[id] = sess

	return sess, nil
}

// RevokeSession deletes the session.
func (s *Store) RevokeSession(_ context.Context, id auth.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return auth.ErrInvalidSession
	}
	delete(s.sessions, id)

	return nil
}

var _ auth.Store = (*Store)(nil)
