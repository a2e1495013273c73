// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package bolt provides a persistent project.Store over bbolt.
//
// Schema: a primary "projects" bucket (project id -> JSON Project) and an
// "owner_projects" multimap index (per-owner nested bucket: project id ->
// nil). Both are mutated in the same write transaction.
package bolt

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.etcd.io/bbolt"

	"github.com/Raforawesome/bento/internal/project"
)

var (
	bucketProjects      = []byte("projects")
	bucketOwnerProjects = []byte("owner_projects")
)

// Store is a bbolt-backed project.Store.
type Store struct {
	db    *bbolt.DB
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// Open opens (or creates) the store at path and ensures the buckets
// exist.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, oops.Code("PROJECT_STORE_OPEN_FAILED").
			With("path", path).
			Wrap(err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketProjects, bucketOwnerProjects} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return oops.Code("PROJECT_STORE_INIT_FAILED").
					With("bucket", string(name)).
					Wrap(err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("PROJECT_STORE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

func key(id ulid.ULID) []byte {
	k := make([]byte, len(id))
	copy(k, id[:])
	return k
}

func marshal(p project.Project) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, oops.Code("PROJECT_ENCODE_FAILED").Wrap(err)
	}
	return b, nil
}

func unmarshal(b []byte) (project.Project, error) {
	var p project.Project
	if err := json.Unmarshal(b, &p); err != nil {
		return project.Project{}, oops.Code("PROJECT_DECODE_FAILED").Wrap(err)
	}
	return p, nil
}

// Create inserts the project and its owner index entry atomically.
func (s *Store) Create(ctx context.Context, ownerID ulid.ULID, name string, description *string) (project.Project, error) {
	if err := ctx.Err(); err != nil {
		return project.Project{}, err
	}

	now := s.clock()
	p := project.Project{
		ID:          ulid.Make(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		payload, err := marshal(p)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketProjects).Put(key(p.ID), payload); err != nil {
			return oops.Code("PROJECT_STORE_WRITE_FAILED").With("bucket", "projects").Wrap(err)
		}

		index, err := tx.Bucket(bucketOwnerProjects).CreateBucketIfNotExists(key(ownerID))
		if err != nil {
			return oops.Code("PROJECT_STORE_WRITE_FAILED").With("bucket", "owner_projects").Wrap(err)
		}
		if err := index.Put(key(p.ID), nil); err != nil {
			return oops.Code("PROJECT_STORE_WRITE_FAILED").With("bucket", "owner_projects").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return project.Project{}, err
	}

	return p, nil
}

// Get returns the project with the given id.
func (s *Store) Get(ctx context.Context, id ulid.ULID) (project.Project, error) {
	if err := ctx.Err(); err != nil {
		return project.Project{}, err
	}

	var p project.Project
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(bucketProjects).Get(key(id))
		if payload == nil {
			return project.ErrNotFound
		}
		var err error
		p, err = unmarshal(payload)
		return err
	})
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

// ListByOwner walks the owner's index. ULID keys sort by creation time,
// so results come back oldest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID ulid.ULID) ([]project.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var summaries []project.Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketOwnerProjects).Bucket(key(ownerID))
		if index == nil {
			return nil
		}
		projects := tx.Bucket(bucketProjects)

		return index.ForEach(func(pid, _ []byte) error {
			payload := projects.Get(pid)
			if payload == nil {
				// Orphaned index entry; skip rather than fail the listing.
				return nil
			}
			p, err := unmarshal(payload)
			if err != nil {
				return err
			}
			summaries = append(summaries, project.Summarize(p))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return summaries, nil
}

// Update applies a partial update in one write transaction.
func (s *Store) Update(ctx context.Context, id ulid.ULID, params project.UpdateParams) (project.Project, error) {
	if err := ctx.Err(); err != nil {
		return project.Project{}, err
	}

	var p project.Project
	err := s.db.Update(func(tx *bbolt.Tx) error {
		projects := tx.Bucket(bucketProjects)
		payload := projects.Get(key(id))
		if payload == nil {
			return project.ErrNotFound
		}

		var err error
		p, err = unmarshal(payload)
		if err != nil {
			return err
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

		updated, err := marshal(p)
		if err != nil {
			return err
		}
		if err := projects.Put(key(id), updated); err != nil {
			return oops.Code("PROJECT_STORE_WRITE_FAILED").With("bucket", "projects").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return project.Project{}, err
	}

	return p, nil
}

// Delete removes the project and its owner index entry atomically.
func (s *Store) Delete(ctx context.Context, id ulid.ULID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		projects := tx.Bucket(bucketProjects)
		payload := projects.Get(key(id))
		if payload == nil {
			return project.ErrNotFound
		}

		p, err := unmarshal(payload)
		if err != nil {
			return err
		}

		if err := projects.Delete(key(id)); err != nil {
			return oops.Code("PROJECT_STORE_WRITE_FAILED").With("bucket", "projects").Wrap(err)
		}
		if index := tx.Bucket(bucketOwnerProjects).Bucket(key(p.OwnerID)); index != nil {
			if err := index.Delete(key(id)); err != nil {
				return oops.Code("PROJECT_STORE_WRITE_FAILED").With("bucket", "owner_projects").Wrap(err)
			}
		}
		return nil
	})
}

var _ project.Store = (*Store)(nil)
