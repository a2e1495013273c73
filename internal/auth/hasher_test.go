// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raforawesome/bento/internal/auth"
)

func TestHashPassword(t *testing.T) {
	t.Run("produces PHC-formatted argon2id hash", func(t *testing.T) {
		hash, err := auth.HashPassword("correct horse battery staple")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(hash), "$argon2id$"))
		assert.Len(t, strings.Split(string(hash), "$"), 6)
	})

	t.Run("same password hashes differently each call", func(t *testing.T) {
		h1, err := auth.HashPassword("password123")
		require.NoError(t, err)
		h2, err := auth.HashPassword("password123")
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := auth.HashPassword("")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})
}

func TestPasswordHash_Verify(t *testing.T) {
	t.Run("matching password verifies", func(t *testing.T) {
		hash, err := auth.HashPassword("secret")
		require.NoError(t, err)
		assert.True(t, hash.Verify("secret"))
	})

	t.Run("wrong password fails", func(t *testing.T) {
		hash, err := auth.HashPassword("secret")
		require.NoError(t, err)
		assert.False(t, hash.Verify("Secret"))
		assert.False(t, hash.Verify(""))
	})

	t.Run("malformed hashes verify as false, never panic", func(t *testing.T) {
		malformed := []auth.PasswordHash{
			"",
			"not a hash at all",
			"$argon2id$v=19$m=65536,t=1,p=4$tooFewParts",
			"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
			"$argon2id$v=19$m=banana,t=1,p=4$c2FsdA$aGFzaA",
			"$argon2id$v=19$m=65536,t=1,p=4$!!!notbase64$aGFzaA",
			"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!notbase64",
			"$argon2id$v=19$m=65536,t=1,p=999$c2FsdA$aGFzaA",
		}
		for _, h := range malformed {
			assert.False(t, h.Verify("secret"), "hash %q should not verify", h)
		}
	})

	t.Run("verification works on hash stored as string", func(t *testing.T) {
		// Round-trip through plain string, as the storage backends do.
		hash, err := auth.HashPassword("roundtrip")
		require.NoError(t, err)
		restored := auth.PasswordHash(string(hash))
		assert.True(t, restored.Verify("roundtrip"))
	})
}
