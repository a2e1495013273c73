// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package projecttest provides a conformance suite for project.Store
// backends.
package projecttest

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raforawesome/bento/internal/project"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) project.Store

func strptr(s string) *string { return &s }

// RunStoreSuite runs the contract conformance suite against stores built
// by newStore.
func RunStoreSuite(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		owner := ulid.Make()

		created, err := store.Create(ctx, owner, "blog", strptr("a personal blog"))
		require.NoError(t, err)
		assert.Equal(t, owner, created.OwnerID)
		assert.Equal(t, "blog", created.Name)
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		require.NotNil(t, got.Description)
		assert.Equal(t, "a personal blog", *got.Description)
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, ulid.Make())
		assert.ErrorIs(t, err, project.ErrNotFound)
	})

	t.Run("list by owner", func(t *testing.T) {
		store := newStore(t)
		owner := ulid.Make()
		other := ulid.Make()

		first, err := store.Create(ctx, owner, "one", nil)
		require.NoError(t, err)
		second, err := store.Create(ctx, owner, "two", nil)
		require.NoError(t, err)
		_, err = store.Create(ctx, other, "theirs", nil)
		require.NoError(t, err)

		summaries, err := store.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		// Oldest first: ULIDs are creation-ordered.
		assert.Equal(t, first.ID, summaries[0].ID)
		assert.Equal(t, second.ID, summaries[1].ID)

		empty, err := store.ListByOwner(ctx, ulid.Make())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("update name and description", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, ulid.Make(), "draft", strptr("wip"))
		require.NoError(t, err)

		updated, err := store.Update(ctx, created.ID, project.UpdateParams{
			Name:        strptr("final"),
			Description: strptr("done"),
		})
		require.NoError(t, err)
		assert.Equal(t, "final", updated.Name)
		require.NotNil(t, updated.Description)
		assert.Equal(t, "done", *updated.Description)

		// Partial update leaves the other field alone.
		updated, err = store.Update(ctx, created.ID, project.UpdateParams{Name: strptr("renamed")})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)
		require.NotNil(t, updated.Description)
		assert.Equal(t, "done", *updated.Description)
	})

	t.Run("clear description", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, ulid.Make(), "p", strptr("temporary"))
		require.NoError(t, err)

		updated, err := store.Update(ctx, created.ID, project.UpdateParams{ClearDescription: true})
		require.NoError(t, err)
		assert.Nil(t, updated.Description)
	})

	t.Run("update missing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Update(ctx, ulid.Make(), project.UpdateParams{Name: strptr("x")})
		assert.ErrorIs(t, err, project.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		owner := ulid.Make()

		created, err := store.Create(ctx, owner, "doomed", nil)
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, created.ID))

		_, err = store.Get(ctx, created.ID)
		assert.ErrorIs(t, err, project.ErrNotFound)

		summaries, err := store.ListByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, summaries)

		assert.ErrorIs(t, store.Delete(ctx, created.ID), project.ErrNotFound)
	})
}
