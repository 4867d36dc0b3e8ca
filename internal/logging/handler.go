// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and PII redaction.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// traceHandler wraps a slog.Handler to add trace context and scrub messages.
type traceHandler struct {
	handler  slog.Handler
	service  string
	version  string
	redactor *Redactor
}

// Handle adds trace context to the log record.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.redactor != nil {
		r.Message = h.redactor.Filter(r.Message)
	}

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
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.handler = h.handler.WithAttrs(attrs)
	return &c
}

// WithGroup returns a new handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.handler = h.handler.WithGroup(name)
	return &c
}

type options struct {
	level    slog.Leveler
	redactor *Redactor
}

// Option customizes Setup.
type Option func(*options)

// WithLevel sets the minimum level. The default is debug.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) { o.level = level }
}

// WithRedactedFields replaces the default PII field list.
// An empty list turns redaction off.
func WithRedactedFields(fields ...string) Option {
	return func(o *options) {
		if len(fields) == 0 {
			o.redactor = nil
			return
		}
		o.redactor = NewRedactor(fields, Redaction, Separator)
	}
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer, opts ...Option) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	o := options{
		level:    slog.LevelDebug,
		redactor: NewRedactor(PIIFields, Redaction, Separator),
	}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}
	if o.redactor != nil {
		handlerOpts.ReplaceAttr = o.redactor.ReplaceAttr
	}

	var baseHandler slog.Handler
	if format == "text" {
		baseHandler = slog.NewTextHandler(w, handlerOpts)
	} else {
		baseHandler = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(&traceHandler{
		handler:  baseHandler,
		service:  service,
		version:  version,
		redactor: o.redactor,
	})
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format string, opts ...Option) *slog.Logger {
	logger := Setup(service, version, format, nil, opts...)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
