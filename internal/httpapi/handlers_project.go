// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/Raforawesome/bento/internal/project"
)

type createProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type updateProjectRequest struct {
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	ClearDescription bool    `json:"clear_description,omitempty"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		s.badRequest(w, "name is required")
		return
	}

	owner := userFrom(r.Context())
	created, err := s.projects.Create(r.Context(), owner.ID, req.Name, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("project created", "project_id", created.ID, "owner_id", owner.ID)
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	owner := userFrom(r.Context())
	summaries, err := s.projects.ListByOwner(r.Context(), owner.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []project.Summary{}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedProject(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedProject(w, r)
	if !ok {
		return
	}

	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if req.Name != nil && *req.Name == "" {
		s.badRequest(w, "name must not be empty")
		return
	}

	updated, err := s.projects.Update(r.Context(), p.ID, project.UpdateParams{
		Name:             req.Name,
		Description:      req.Description,
		ClearDescription: req.ClearDescription,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedProject(w, r)
	if !ok {
		return
	}
	if err := s.projects.Delete(r.Context(), p.ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("project deleted", "project_id", p.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ownedProject resolves the {projectID} route parameter and enforces
// ownership. Writes the error response itself when it returns !ok.
func (s *Server) ownedProject(w http.ResponseWriter, r *http.Request) (project.Project, bool) {
	id, err := ulid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		s.badRequest(w, "invalid project id")
		return project.Project{}, false
	}

	p, err := s.projects.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return project.Project{}, false
	}

	if p.OwnerID != userFrom(r.Context()).ID {
		s.writeError(w, project.ErrUnauthorized)
		return project.Project{}, false
	}
	return p, true
}
