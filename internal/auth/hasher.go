// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHash is the PHC-encoded output of argon2id, salt and parameters
// included. It is opaque to callers and verifies one-way; the plaintext
// password it was derived from is never stored or logged.
type PasswordHash string

// HashPassword produces an argon2id hash of the password. A fresh random
// salt is generated on every call, so hashing the same password twice
// yields different hashes. The algorithm is a fixed design choice, not
// configurable per call.
func HashPassword(password string) (PasswordHash, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// PHC string format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return PasswordHash(encoded), nil
}

// Verify reports whether the password matches the hash. A malformed or
// corrupted stored hash verifies as false rather than surfacing an error,
// so a damaged record can never be authenticated against.
func (h PasswordHash) Verify(password string) bool {
	salt, params, expected, err := h.decode()
	if err != nil {
		return false
	}

	if params.threads > 255 {
		return false
	}
	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, uint8(params.threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint32
}

// decode parses the PHC string into salt, parameters, and the raw key.
func (h PasswordHash) decode() ([]byte, argon2Params, []byte, error) {
	parts := strings.Split(string(h), "$")
	if len(parts) != 6 {
		return nil, argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var params argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	return salt, params, key, nil
}
