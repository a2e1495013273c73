// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package httpapi_test

import (
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raforawesome/bento/internal/auth"
)

func newCookieJar(t *testing.T) *cookiejar.Jar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return jar
}

func TestProjectCRUD(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})
	ts.register(t, "alice", "s3cret-pw")
	ts.login(t, "alice", "s3cret-pw")

	resp := ts.do(t, http.MethodPost, "/api/v1/projects/", map[string]any{
		"name":        "blog",
		"description": "personal blog backend",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]any](t, resp)
	id, ok := created["id"].(string)
	require.True(t, ok)
	assert.Equal(t, "blog", created["name"])
	assert.Equal(t, "personal blog backend", created["description"])

	t.Run("get", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/v1/projects/"+id, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "blog", got["name"])
	})

	t.Run("list", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/v1/projects/", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decodeBody[[]map[string]any](t, resp)
		require.Len(t, list, 1)
		assert.Equal(t, "blog", list[0]["name"])
	})

	t.Run("partial update", func(t *testing.T) {
		resp := ts.do(t, http.MethodPatch, "/api/v1/projects/"+id, map[string]any{
			"name": "blog-v2",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "blog-v2", got["name"])
		assert.Equal(t, "personal blog backend", got["description"])
	})

	t.Run("clear description", func(t *testing.T) {
		resp := ts.do(t, http.MethodPatch, "/api/v1/projects/"+id, map[string]any{
			"clear_description": true,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeBody[map[string]any](t, resp)
		assert.Nil(t, got["description"])
	})

	t.Run("delete", func(t *testing.T) {
		resp := ts.do(t, http.MethodDelete, "/api/v1/projects/"+id, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = ts.do(t, http.MethodGet, "/api/v1/projects/"+id, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestProjectOwnership(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})
	ts.register(t, "alice", "s3cret-pw")
	ts.register(t, "bob", "s3cret-pw")

	ts.login(t, "alice", "s3cret-pw")
	resp := ts.do(t, http.MethodPost, "/api/v1/projects/", map[string]any{"name": "private"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]any](t, resp)
	id := created["id"].(string)
	logout(t, ts)

	ts.login(t, "bob", "s3cret-pw")

	t.Run("get is forbidden", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/v1/projects/"+id, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		body := decodeBody[map[string]string](t, resp)
		assert.Equal(t, "You do not have access to this project", body["error"])
	})

	t.Run("update is forbidden", func(t *testing.T) {
		resp := ts.do(t, http.MethodPatch, "/api/v1/projects/"+id, map[string]any{"name": "mine now"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("delete is forbidden", func(t *testing.T) {
		resp := ts.do(t, http.MethodDelete, "/api/v1/projects/"+id, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("not listed for other owners", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/v1/projects/", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decodeBody[[]map[string]any](t, resp)
		assert.Empty(t, list)
	})
}

func TestProjectValidation(t *testing.T) {
	ts := newTestServer(t, auth.StoreConfig{})
	ts.register(t, "alice", "s3cret-pw")
	ts.login(t, "alice", "s3cret-pw")

	t.Run("missing name", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/v1/projects/", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed id", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/v1/projects/not-a-ulid", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown id", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/v1/projects/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
