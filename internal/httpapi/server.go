// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package httpapi exposes the Bento identity and project APIs over HTTP.
// Sessions travel in an HMAC-signed HTTP-only cookie; handlers translate
// storage errors into stable status codes and user-facing messages.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Raforawesome/bento/internal/auth"
	"github.com/Raforawesome/bento/internal/observability"
	"github.com/Raforawesome/bento/internal/project"
	"github.com/Raforawesome/bento/internal/secrets"
)

// Server wires the HTTP handlers to their backing stores.
type Server struct {
	logger   *slog.Logger
	users    auth.Store
	projects project.Store
	cookies  *cookieCodec
	clock    func() time.Time
	metrics  *observability.Metrics
}

// Options configures a Server. Users, Projects, and CookieKey are
// required; the rest default sensibly.
type Options struct {
	Users     auth.Store
	Projects  project.Store
	CookieKey *secrets.Secret
	Logger    *slog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
	// SecureCookies marks session cookies as HTTPS-only. Enable in
	// production deployments behind TLS.
	SecureCookies bool
	// Metrics records login outcomes and session lifecycle counts.
	// Nil disables recording.
	Metrics *observability.Metrics
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		logger:   logger,
		users:    opts.Users,
		projects: opts.Projects,
		cookies:  newCookieCodec(opts.CookieKey, opts.SecureCookies),
		clock:    clock,
		metrics:  opts.Metrics,
	}
}

// recordLogin counts one login attempt by outcome.
func (s *Server) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

// recordSessionDelta moves the active-sessions gauge by delta.
func (s *Server) recordSessionDelta(delta float64) {
	if s.metrics != nil {
		s.metrics.SessionsActive.Add(delta)
	}
}

// Router builds the chi router with all API routes mounted under /api/v1.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/session", s.handleSession)
			r.Put("/auth/password", s.handleChangePassword)

			r.Route("/projects", func(r chi.Router) {
				r.Post("/", s.handleCreateProject)
				r.Get("/", s.handleListProjects)
				r.Get("/{projectID}", s.handleGetProject)
				r.Patch("/{projectID}", s.handleUpdateProject)
				r.Delete("/{projectID}", s.handleDeleteProject)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/admin/users", s.handleAdminCreateUser)
			})
		})
	})

	return r
}

// logRequests emits one structured log line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", s.clock().Sub(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
