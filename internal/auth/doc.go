// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package auth defines the identity and session model for Bento and the
// Store contract that every storage backend implements.
//
// # Domain Types
//
// User and Session are plain value types. Users are identified by ULIDs
// (128-bit, creation-ordered); sessions by high-entropy random bearer
// tokens. PasswordHash is the opaque PHC-encoded output of argon2id and
// verifies one-way; the plaintext password is never stored.
//
// # Store Contract
//
// Store is implemented by two interchangeable backends:
//   - memory.Store - concurrent map-based, process-local, non-persistent
//   - bolt.Store   - embedded transactional store over bbolt
//
// Both enforce the same invariants: unique live usernames, a per-user cap
// on non-expired sessions, lazy expiry (expired sessions are deleted when
// an operation observes them, there is no background sweeper), and no
// session may outlive its owning user.
//
// # Errors
//
// The four recoverable outcomes are sentinel errors matched with
// errors.Is: ErrUserExists, ErrNotFound, ErrInvalidSession and
// ErrSessionLimitReached. Everything else crossing the Store boundary is
// an internal fault carried as an oops-coded error.
package auth
