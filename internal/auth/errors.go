// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package auth

import "errors"

// The closed set of recoverable store outcomes. These are expected results
// of normal use — backends must never log them as errors — and callers
// branch on them with errors.Is. Any other error returned by a Store is an
// internal backend fault (oops-coded, with full detail attached).
var (
	// ErrUserExists is returned when creating a user whose username is
	// already taken.
	ErrUserExists = errors.New("user already exists")

	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidSession is returned when a session is absent, expired, or
	// revoked. The three cases are indistinguishable to the caller.
	ErrInvalidSession = errors.New("invalid session")

	// ErrSessionLimitReached is returned when a user already holds the
	// maximum number of non-expired sessions.
	ErrSessionLimitReached = errors.New("maximum active sessions reached")
)

// UserMessage maps an error to a message safe to show to an end user.
// Recoverable domain errors get specific guidance; anything else collapses
// to a generic message so backend detail never leaks to clients.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrUserExists):
		return "A user with this username already exists"
	case errors.Is(err, ErrNotFound):
		return "User not found"
	case errors.Is(err, ErrInvalidSession):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrSessionLimitReached):
		return "Maximum number of active sessions reached. Please log out of another device."
	default:
		return "An internal error occurred. Please try again later."
	}
}

// IsRecoverable reports whether err is one of the expected domain
// outcomes, as opposed to an internal backend fault.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUserExists) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidSession) ||
		errors.Is(err, ErrSessionLimitReached)
}
