// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package secrets manages key material for Bento: a scoped wrapper that
// guarantees buffers holding secrets are overwritten when released, and
// on-disk bootstrapping of the cookie signing key.
package secrets

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// CookieKeyBytes is the size of the cookie signing key.
const CookieKeyBytes = 32

// Secret holds sensitive bytes and zeroes them on release. Access goes
// through Use so the raw buffer never escapes the scope of a call, and
// every exit path ends with the material overwritten once Destroy runs.
type Secret struct {
	buf []byte
}

// NewSecret wraps b, taking ownership. The caller must not retain or
// reuse b afterwards.
func NewSecret(b []byte) *Secret {
	return &Secret{buf: b}
}

// Use invokes fn with the secret bytes. fn must not retain the slice
// beyond the call.
func (s *Secret) Use(fn func(b []byte) error) error {
	if s == nil || s.buf == nil {
		return oops.Code("SECRET_DESTROYED").Errorf("secret has been destroyed")
	}
	return fn(s.buf)
}

// Destroy overwrites the secret material with zeros. The Secret is
// unusable afterwards. Safe to call more than once.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.buf = nil
}

// Sign computes an HMAC-SHA256 tag over msg with the secret as key.
func (s *Secret) Sign(msg []byte) ([]byte, error) {
	var tag []byte
	err := s.Use(func(key []byte) error {
		mac := hmac.New(sha256.New, key)
		mac.Write(msg)
		tag = mac.Sum(nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// VerifySignature reports whether tag is a valid signature over msg.
// Comparison is constant-time.
func (s *Secret) VerifySignature(msg, tag []byte) (bool, error) {
	expected, err := s.Sign(msg)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, tag), nil
}

// LoadOrCreateCookieKey returns the cookie signing key stored at path,
// generating and persisting a fresh one (0600) on first run. Reloading an
// existing file yields the same key, so sessions survive restarts.
func LoadOrCreateCookieKey(path string) (*Secret, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if len(raw) != CookieKeyBytes {
			return nil, oops.Code("SECRET_KEY_CORRUPT").
				With("path", path).
				With("size", len(raw)).
				Errorf("cookie key file has wrong size")
		}
		return NewSecret(raw), nil

	case os.IsNotExist(err):
		key := make([]byte, CookieKeyBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, oops.Code("SECRET_KEY_GENERATE_FAILED").Wrap(err)
		}
		if err := os.WriteFile(path, key, 0o600); err != nil {
			return nil, oops.Code("SECRET_KEY_WRITE_FAILED").
				With("path", path).
				Wrap(err)
		}
		return NewSecret(key), nil

	default:
		return nil, oops.Code("SECRET_KEY_READ_FAILED").
			With("path", path).
			Wrap(err)
	}
}
