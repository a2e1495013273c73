// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package project defines workspace projects and their storage contract.
// The store mirrors the transactional patterns of the auth store with
// lower invariant complexity: one primary table and one owner multimap
// index, mutated atomically per operation.
package project

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Recoverable store outcomes, matched with errors.Is.
var (
	// ErrNotFound is returned when a requested project does not exist.
	ErrNotFound = errors.New("project not found")

	// ErrUnauthorized is returned by callers enforcing ownership when a
	// user touches a project it does not own. Store implementations never
	// return it themselves.
	ErrUnauthorized = errors.New("unauthorized access to project")
)

// Project is a user's workspace project.
type Project struct {
	ID          ulid.ULID `json:"id"`
	OwnerID     ulid.ULID `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is a lightweight projection of a Project for listings.
type Summary struct {
	ID          ulid.ULID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summarize converts a Project to its listing form.
func Summarize(p Project) Summary {
	return Summary{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

// UpdateParams describes a partial update. Nil fields are left unchanged;
// ClearDescription removes the description regardless of Description.
type UpdateParams struct {
	Name             *string
	Description      *string
	ClearDescription bool
}

// Store is the capability contract for project persistence.
type Store interface {
	// Create creates a project owned by ownerID with a fresh id.
	Create(ctx context.Context, ownerID ulid.ULID, name string, description *string) (Project, error)

	// Get returns the project with the given id, or ErrNotFound.
	Get(ctx context.Context, id ulid.ULID) (Project, error)

	// ListByOwner returns summaries of every project owned by ownerID.
	ListByOwner(ctx context.Context, ownerID ulid.ULID) ([]Summary, error)

	// Update applies a partial update and bumps UpdatedAt. Returns the
	// updated record, or ErrNotFound.
	Update(ctx context.Context, id ulid.ULID, params UpdateParams) (Project, error)

	// Delete removes the project and its owner index entry, or returns
	// ErrNotFound.
	Delete(ctx context.Context, id ulid.ULID) error
}
