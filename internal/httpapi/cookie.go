// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package httpapi

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/Raforawesome/bento/internal/auth"
	"github.com/Raforawesome/bento/internal/secrets"
)

// sessionCookieName is the cookie carrying the signed session ID.
const sessionCookieName = "bento_session"

// cookieCodec signs session IDs into cookie values and authenticates
// them on the way back in. The value format is "<session-id>.<b64url tag>";
// a bad or missing tag is indistinguishable from no cookie at all.
type cookieCodec struct {
	key    *secrets.Secret
	secure bool
}

func newCookieCodec(key *secrets.Secret, secure bool) *cookieCodec {
	return &cookieCodec{key: key, secure: secure}
}

// encode builds the Set-Cookie for a freshly issued session.
func (c *cookieCodec) encode(session auth.Session) (*http.Cookie, error) {
	tag, err := c.key.Sign([]byte(session.ID))
	if err != nil {
		return nil, oops.Code("SESSION_COOKIE_SIGN_FAILED").Wrap(err)
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    string(session.ID) + "." + base64.RawURLEncoding.EncodeToString(tag),
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// decode extracts and authenticates the session ID from the request.
// Returns auth.ErrInvalidSession for anything short of a valid signature.
func (c *cookieCodec) decode(r *http.Request) (auth.SessionID, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", auth.ErrInvalidSession
	}
	id, tagPart, ok := strings.Cut(cookie.Value, ".")
	if !ok || id == "" {
		return "", auth.ErrInvalidSession
	}
	tag, err := base64.RawURLEncoding.DecodeString(tagPart)
	if err != nil {
		return "", auth.ErrInvalidSession
	}
	valid, err := c.key.VerifySignature([]byte(id), tag)
	if err != nil {
		return "", oops.Code("SESSION_COOKIE_VERIFY_FAILED").Wrap(err)
	}
	if !valid {
		return "", auth.ErrInvalidSession
	}
	return auth.SessionID(id), nil
}

// clear produces an expired cookie that removes the session from the
// browser.
func (c *cookieCodec) clear() *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
