// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package secrets_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raforawesome/bento/internal/secrets"
)

func TestSecret_UseAndDestroy(t *testing.T) {
	buf := []byte("swordfish")
	s := secrets.NewSecret(buf)

	var seen []byte
	err := s.Use(func(b []byte) error {
		seen = append([]byte(nil), b...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("swordfish"), seen)

	s.Destroy()

	// The backing buffer must be overwritten, not just dereferenced.
	assert.Equal(t, make([]byte, len("swordfish")), buf)

	err = s.Use(func(b []byte) error { return nil })
	assert.Error(t, err)

	// Double destroy is a no-op.
	s.Destroy()
}

func TestSecret_SignVerify(t *testing.T) {
	s := secrets.NewSecret([]byte("0123456789abcdef0123456789abcdef"))
	defer s.Destroy()

	msg := []byte("session-token")
	tag, err := s.Sign(msg)
	require.NoError(t, err)
	require.Len(t, tag, 32)

	ok, err := s.VerifySignature(msg, tag)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("tampered message", func(t *testing.T) {
		ok, err := s.VerifySignature([]byte("session-tokeN"), tag)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tampered tag", func(t *testing.T) {
		bad := append([]byte(nil), tag...)
		bad[0] ^= 0xff
		ok, err := s.VerifySignature(msg, bad)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLoadOrCreateCookieKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.key")

	first, err := secrets.LoadOrCreateCookieKey(path)
	require.NoError(t, err)
	defer first.Destroy()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var a []byte
	require.NoError(t, first.Use(func(b []byte) error {
		a = append([]byte(nil), b...)
		return nil
	}))
	require.Len(t, a, secrets.CookieKeyBytes)

	second, err := secrets.LoadOrCreateCookieKey(path)
	require.NoError(t, err)
	defer second.Destroy()

	var b []byte
	require.NoError(t, second.Use(func(raw []byte) error {
		b = append([]byte(nil), raw...)
		return nil
	}))

	assert.True(t, bytes.Equal(a, b), "reloaded key must match persisted key")
}

func TestLoadOrCreateCookieKey_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := secrets.LoadOrCreateCookieKey(path)
	assert.Error(t, err)
}
