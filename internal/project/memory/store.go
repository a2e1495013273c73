// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package memory provides a process-local, non-persistent project.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Raforawesome/bento/internal/project"
)

// Store is a map-based project.Store guarded by a single RWMutex.
type Store struct {
	clock func() time.Time

	mu       sync.RWMutex
	projects map[ulid.ULID]project.Project
	byOwner  map[ulid.ULID]map[ulid.ULID]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New creates an empty in-memory project store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:    time.Now,
		projects: make(map[ulid.ULID]project.Project),
		byOwner:  make(map[ulid.ULID]map[ulid.ULID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create creates a project owned by ownerID.
func (s *Store) Create(_ context.Context, ownerID ulid.ULID, name string, description *string) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	p := project.Project{
		ID:          ulid.Make(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.projects[p.ID] = p
	if s.byOwner[ownerID] == nil {
		s.byOwner[ownerID] = make(map[ulid.ULID]struct{})
	}
	s.byOwner[ownerID][p.ID] = struct{}{}

	return p, nil
}

// Get returns the project with the given id.
func (s *Store) Get(_ context.Context, id ulid.ULID) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

// ListByOwner returns summaries of the owner's projects, oldest first.
func (s *Store) ListByOwner(_ context.Context, ownerID ulid.ULID) ([]project.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []project.Summary
	for id := range s.byOwner[ownerID] {
		if p, ok := s.projects[id]; ok {
			summaries = append(summaries, project.Summarize(p))
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID.Compare(summaries[j].ID) < 0
	})

	return summaries, nil
}

// Update applies a partial update.
func (s *Store) Update(_ context.Context, id ulid.ULID, params project.UpdateParams) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}

	if params.Name != nil {
		p.Name = *params.Name
	}
	switch {
	case params.ClearDescription:
		p.Description = nil
	case params.Description != nil:
		p.Description = params.Description
	}
	p.UpdatedAt = s.clock()

	s.projects[id] = p
	return p, nil
}

// Delete removes the project and its owner index entry.
func (s *Store) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return project.ErrNotFound
	}

	delete(s.projects, id)
	delete(s.byOwner[p.OwnerID], id)
	if len(s.byOwner[p.OwnerID]) == 0 {
		delete(s.byOwner, p.OwnerID)
	}

	return nil
}

var _ project.Store = (*Store)(nil)
