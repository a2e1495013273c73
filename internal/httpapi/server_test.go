// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raforawesome/bento/internal/auth"
	"github.com/Raforawesome/bento/internal/auth/authtest"
	authmem "github.com/Raforawesome/bento/internal/auth/memory"
	"github.com/Raforawesome/bento/internal/httpapi"
	"github.com/Raforawesome/bento/internal/observability"
	projmem "github.com/Raforawesome/bento/internal/project/memory"
	"github.com/Raforawesome/bento/internal/secrets"
)

// testServer bundles the httptest server with a client that keeps cookies.
type testServer struct {
	*httptest.Server
	client  *http.Client
	users   auth.Store
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, storeCfg auth.StoreConfig) *testServer {
	t.Helper()

	key, err := secrets.LoadOrCreateCookieKey(t.TempDir() + "/cookie.key")
	require.NoError(t, err)
	t.Cleanup(key.Destroy)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	storeCfg.Logger = slog.New(slog.DiscardHandler)
	storeCfg.OnSessionsReaped = func(n int) {
		metrics.SessionsReaped.Add(float64(n))
		metrics.SessionsActive.Sub(float64(n))
	}
	users := authmem.New(storeCfg)

	srv := httpapi.New(httpapi.Options{
		Users:     users,
		Projects:  projmem.New(),
		CookieKey: key,
		Logger:    slog.New(slog.DiscardHandler),
		Metrics:   metrics,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar := newCookieJar(t)
	return &testServer{
		Server:  ts,
		client:  &http.Client{Jar: jar},
		users:   users,
		metrics: metrics,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) register(t *testing.T, username, password string) map[string]any {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[map[string]any](t, resp)
}

func (ts *testServer) login(t *testing.T, username, password string) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})

	body := ts.register(t, "alice", "s3cret-pw")
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "user", body["role"])
	assert.NotContains(t, body, "password_hash")

	t.Run("duplicate username", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
			"username": "alice", "password": "other-pw",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decodeBody[map[string]string](t, resp)
		assert.Equal(t, "A user with this username already exists", body["error"])
	})

	t.Run("invalid username", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
			"username": "1bad", "password": "s3cret-pw",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty password", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
			"username": "bob", "password": "",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLoginLogout(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})
	ts.register(t, "alice", "s3cret-pw")

	t.Run("wrong password", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": "alice", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user gets the same answer", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": "mallory", "password": "whatever",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody[map[string]string](t, resp)
		assert.Equal(t, "Invalid username or password", body["error"])
	})

	ts.login(t, "alice", "s3cret-pw")

	resp := ts.do(t, http.MethodGet, "/api/v1/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := decodeBody[map[string]any](t, resp)
	user, ok := session["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
	assert.NotEmpty(t, session["expires_at"])

	resp = ts.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionRequiresValidCookie(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})

	t.Run("no cookie", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/v1/auth/session", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody[map[string]string](t, resp)
		assert.Equal(t, "Your session has expired. Please log in again.", body["error"])
	})

	t.Run("forged cookie", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/auth/session", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "bento_session", Value: "forged-id.Zm9yZ2VkLXRhZw"})
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestSessionLimit(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{MaxSessionsPerUser: 2})
	ts.register(t, "alice", "s3cret-pw")

	// Each login issues a new session; the cap is enforced server-side.
	ts.login(t, "alice", "s3cret-pw")
	ts.login(t, "alice", "s3cret-pw")

	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "alice", "password": "s3cret-pw",
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "Maximum number of active sessions reached. Please log out of another device.", body["error"])
}

func TestChangePassword(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})
	ts.register(t, "alice", "old-password")
	ts.login(t, "alice", "old-password")

	t.Run("wrong current password", func(t *testing.T) {
		resp := ts.do(t, http.MethodPut, "/api/v1/auth/password", map[string]string{
			"current_password": "nope", "new_password": "new-password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	resp := ts.do(t, http.MethodPut, "/api/v1/auth/password", map[string]string{
		"current_password": "old-password", "new_password": "new-password",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Old credential is dead, new one works.
	resp = ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "alice", "password": "old-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	ts.login(t, "alice", "new-password")
}

func TestAdminCreateUser(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})

	hash, err := auth.HashPassword("admin-pw")
	require.NoError(t, err)
	_, err = auth.CreateAdmin(context.Background(), ts.users, "root", hash)
	require.NoError(t, err)

	t.Run("forbidden for standard users", func(t *testing.T) {
		ts.register(t, "alice", "s3cret-pw")
		ts.login(t, "alice", "s3cret-pw")
		resp := ts.do(t, http.MethodPost, "/api/v1/admin/users", map[string]string{
			"username": "bob", "password": "pw-for-bob",
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		logout(t, ts)
	})

	ts.login(t, "root", "admin-pw")
	resp := ts.do(t, http.MethodPost, "/api/v1/admin/users", map[string]any{
		"username": "carol", "password": "pw-for-carol", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "carol", body["username"])
	assert.Equal(t, "admin", body["role"])

	ts.login(t, "carol", "pw-for-carol")
}

func logout(t *testing.T, ts *testServer) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestLoginMetrics(t *testing.T) {
	clock := authtest.NewClock()
	ts := newTestServer(t, auth.StoreConfig{MaxSessionsPerUser: 1, Clock: clock.Now})
	ts.register(t, "alice", "s3cret-pw")

	logins := func(outcome string) float64 {
		return testutil.ToFloat64(ts.metrics.LoginsTotal.WithLabelValues(outcome))
	}

	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "alice", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, float64(1), logins("invalid_credentials"))

	ts.login(t, "alice", "s3cret-pw")
	assert.Equal(t, float64(1), logins("success"))
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.SessionsActive))

	// The cap is 1, so a second login is counted as a limit rejection.
	resp = ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "alice", "password": "s3cret-pw",
	})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, float64(1), logins("session_limit"))
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.SessionsActive))

	logout(t, ts)
	assert.Equal(t, float64(0), testutil.ToFloat64(ts.metrics.SessionsActive))
}

func TestSessionReapMetrics(t *testing.T) {
	clock := authtest.NewClock()
	ts := newTestServer(t, auth.StoreConfig{Clock: clock.Now})
	ts.register(t, "alice", "s3cret-pw")
	ts.login(t, "alice", "s3cret-pw")
	require.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.SessionsActive))

	clock.Advance(auth.DefaultSessionTTL + time.Minute)

	// The expired session is reaped by the request that observes it, and
	// the gauge follows it down.
	resp := ts.do(t, http.MethodGet, "/api/v1/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.SessionsReaped))
	assert.Equal(t, float64(0), testutil.ToFloat64(ts.metrics.SessionsActive))
}
