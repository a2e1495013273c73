// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package memory_test

import (
	"context"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raforawesome/bento/internal/auth"
	"github.com/Raforawesome/bento/internal/auth/authtest"
	"github.com/Raforawesome/bento/internal/auth/memory"
)

func TestStoreConformance(t *testing.T) {
	authtest.RunStoreSuite(t, func(_ *testing.T, cfg auth.StoreConfig) auth.Store {
		return memory.New(cfg)
	})
}

func TestMaxSessionsPerUser_Default(t *testing.T) {
	store := memory.New(auth.StoreConfig{})
	assert.Equal(t, auth.DefaultMaxSessionsPerUser, store.MaxSessionsPerUser())
}

func TestConcurrentUserCreation(t *testing.T) {
	store := memory.New(auth.StoreConfig{})
	ctx := context.Background()

	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)

	// Hammer the same username from many goroutines; exactly one create
	// may win.
	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.CreateUser(ctx, "contended", hash, auth.RoleUser)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, auth.ErrUserExists)
		}
	}
	assert.Equal(t, 1, created)
}

func TestStateIsProcessLocal(t *testing.T) {
	ctx := context.Background()
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)

	first := memory.New(auth.StoreConfig{})
	user, err := auth.CreateStandardUser(ctx, first, "transient", hash)
	require.NoError(t, err)

	sess, err := first.IssueSession(ctx, user.ID, netip.MustParseAddr("127.0.0.1"))
	require.NoError(t, err)

	// A new store sees none of it.
	second := memory.New(auth.StoreConfig{})
	_, err = second.GetUserByUsername(ctx, "transient")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = second.FetchSession(ctx, sess.ID)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}
