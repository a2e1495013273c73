// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package logging builds the structured logger used across Bento. Every
// record carries the service name and version, plus OpenTelemetry trace
// identifiers when the context has an active span.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// enrichHandler decorates a slog.Handler with service identity and trace
// correlation attributes.
type enrichHandler struct {
	inner   slog.Handler
	service string
	version string
}

func (h *enrichHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.inner.Handle(ctx, r)
}

func (h *enrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *enrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &enrichHandler{inner: h.inner.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *enrichHandler) WithGroup(name string) slog.Handler {
	return &enrichHandler{inner: h.inner.WithGroup(name), service: h.service, version: h.version}
}

// Options configures New.
type Options struct {
	// Format is "json" or "text". Anything else falls back to JSON.
	Format string
	// Level defaults to Info.
	Level slog.Leveler
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New creates a configured slog.Logger for the named service.
func New(service, version string, opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	ho := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if opts.Format == "text" {
		base = slog.NewTextHandler(w, ho)
	} else {
		base = slog.NewJSONHandler(w, ho)
	}

	return slog.New(&enrichHandler{inner: base, service: service, version: version})
}

// SetDefault installs a logger built from opts as the process default.
func SetDefault(service, version string, opts Options) {
	slog.SetDefault(New(service, version, opts))
}
