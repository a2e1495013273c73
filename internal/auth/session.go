// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/netip"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionIDBytes    = 32             // 256 bits of randomness
	DefaultSessionTTL = 24 * time.Hour // default lifetime of an issued session
)

// DefaultMaxSessionsPerUser is the default cap on non-expired sessions a
// single user may hold.
const DefaultMaxSessionsPerUser = 5

// SessionID is a high-entropy random bearer token identifying a session.
// It is URL-safe base64 and unguessable; possession of the id is the
// credential.
type SessionID string

// NewSessionID generates a fresh session id from the operating system's
// CSPRNG.
func NewSessionID() (SessionID, error) {
	buf := make([]byte, SessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("SESSION_ID_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionIDBytes).
			Wrap(err)
	}
	return SessionID(base64.RawURLEncoding.EncodeToString(buf)), nil
}

// Session is a time-bounded bearer credential linking a client to a user.
//
// IP is the client address observed at issuance, recorded for audit and
// diagnostics only; it is not used for binding or validation. A session's
// UserID always references a live user: deleting a user purges every
// session it owns.
type Session struct {
	ID        SessionID  `json:"id"`
	UserID    ulid.ULID  `json:"user_id"`
	IP        netip.Addr `json:"ip"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given
// time. Useful for testing with deterministic time values.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !s.ExpiresAt.After(t)
}
