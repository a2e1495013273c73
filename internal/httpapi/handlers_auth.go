// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Raforawesome/bento/internal/auth"
)

// dummyPasswordHash is verified when a login names an unknown user, so
// the response time does not reveal whether the username exists. It can
// never match a real password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = auth.PasswordHash("$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

type ctxKey int

const (
	ctxKeySession ctxKey = iota
	ctxKeyUser
)

// sessionFrom returns the authenticated session stored by requireSession.
func sessionFrom(ctx context.Context) auth.Session {
	s, _ := ctx.Value(ctxKeySession).(auth.Session)
	return s
}

// userFrom returns the authenticated user stored by requireSession.
func userFrom(ctx context.Context) auth.User {
	u, _ := ctx.Value(ctxKeyUser).(auth.User)
	return u
}

// requireSession authenticates the request cookie and loads the session
// and its user into the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.cookies.decode(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		session, err := s.users.FetchSession(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		user, err := s.users.GetUserByID(r.Context(), session.UserID)
		if err != nil {
			// Session outlived its user; treat as logged out.
			if errors.Is(err, auth.ErrNotFound) {
				err = auth.ErrInvalidSession
			}
			s.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeySession, session)
		ctx = context.WithValue(ctx, ctxKeyUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates admin-only routes. Runs after requireSession.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r.Context()).Role != auth.RoleAdmin {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "Administrator access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse is the public view of a user. The password hash never
// leaves the server.
type userResponse struct {
	ID       ulid.ULID `json:"id"`
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Role: u.Role}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if err := auth.ValidateUsername(req.Username); err != nil {
		s.badRequest(w, "invalid username")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) {
			s.badRequest(w, "password must not be empty")
			return
		}
		s.writeError(w, err)
		return
	}

	user, err := auth.CreateStandardUser(r.Context(), s.users, req.Username, hash)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	s.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}

	user, lookupErr := s.users.GetUserByUsername(r.Context(), req.Username)

	// Verify against a dummy hash when the user is unknown so both paths
	// cost one argon2 evaluation.
	target := dummyPasswordHash
	exists := lookupErr == nil
	if exists {
		target = user.PasswordHash
	} else if !errors.Is(lookupErr, auth.ErrNotFound) {
		s.recordLogin("error")
		s.writeError(w, lookupErr)
		return
	}

	if valid := target.Verify(req.Password); !valid || !exists {
		s.recordLogin("invalid_credentials")
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid username or password"})
		return
	}

	session, err := s.users.IssueSession(r.Context(), user.ID, clientAddr(r))
	if err != nil {
		if errors.Is(err, auth.ErrSessionLimitReached) {
			s.recordLogin("session_limit")
		} else {
			s.recordLogin("error")
		}
		s.writeError(w, err)
		return
	}

	cookie, err := s.cookies.encode(session)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.SetCookie(w, cookie)

	s.recordLogin("success")
	s.recordSessionDelta(1)
	s.logger.Info("user logged in", "user_id", user.ID, "session_expires_at", session.ExpiresAt)
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	switch err := s.users.RevokeSession(r.Context(), session.ID); {
	case err == nil:
		s.recordSessionDelta(-1)
	case !errors.Is(err, auth.ErrInvalidSession):
		s.writeError(w, err)
		return
	}
	http.SetCookie(w, s.cookies.clear())
	w.WriteHeader(http.StatusNoContent)
}

// sessionResponse reports the current session state after the sliding
// extension has been applied.
type sessionResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt string       `json:"expires_at"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	// Each authenticated check slides the expiry window forward.
	extended, err := s.users.ExtendSession(r.Context(), session.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	cookie, err := s.cookies.encode(extended)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.SetCookie(w, cookie)

	s.writeJSON(w, http.StatusOK, sessionResponse{
		User:      toUserResponse(userFrom(r.Context())),
		ExpiresAt: extended.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}

	user := userFrom(r.Context())
	if !user.PasswordHash.Verify(req.CurrentPassword) {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid username or password"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) {
			s.badRequest(w, "password must not be empty")
			return
		}
		s.writeError(w, err)
		return
	}
	if _, err := s.users.SetPasswordHash(r.Context(), user.ID, hash); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("password changed", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

type adminCreateUserRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req adminCreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if err := auth.ValidateUsername(req.Username); err != nil {
		s.badRequest(w, "invalid username")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if !req.Role.Valid() {
		s.badRequest(w, "invalid role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) {
			s.badRequest(w, "password must not be empty")
			return
		}
		s.writeError(w, err)
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.Username, hash, req.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("user provisioned",
		"user_id", user.ID,
		"username", user.Username,
		"role", user.Role,
		"by", userFrom(r.Context()).Username,
	)
	s.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// clientAddr extracts the caller's IP. RealIP middleware has already
// resolved proxy headers into RemoteAddr.
func clientAddr(r *http.Request) netip.Addr {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr()
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr
	}
	return netip.Addr{}
}
