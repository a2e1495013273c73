// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Raforawesome/bento/internal/auth"
	"github.com/Raforawesome/bento/internal/project"
	"github.com/Raforawesome/bento/pkg/errutil"
)

// errorResponse is the JSON body for every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Error("encode response", "error", err)
		}
	}
}

// writeError maps storage errors onto status codes. Unrecognised errors
// become a 500 with a generic message; the detail goes to the log only.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrInvalidSession):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrSessionLimitReached):
		status = http.StatusTooManyRequests
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, project.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, project.ErrUnauthorized):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		errutil.LogError(s.logger, "request failed", err)
	}

	s.writeJSON(w, status, errorResponse{Error: userMessage(err)})
}

// userMessage picks the stable client-facing string for err.
func userMessage(err error) string {
	switch {
	case errors.Is(err, project.ErrNotFound):
		return "Project not found"
	case errors.Is(err, project.ErrUnauthorized):
		return "You do not have access to this project"
	default:
		return auth.UserMessage(err)
	}
}

// badRequest reports a malformed request body or parameter.
func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
