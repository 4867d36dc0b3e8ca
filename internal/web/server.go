// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web serves the session-based account API over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Authenticator is the account facade used by the handlers.
// *auth.Service implements it.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	GetUserFromSessionID(ctx context.Context, sessionID string) (*auth.User, error)
	Logout(ctx context.Context, userID int64) error
	GetResetPasswordToken(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, resetToken, newPassword string) error
}

// HTTPRecorder counts served requests. observability.Metrics implements it.
type HTTPRecorder interface {
	RecordHTTPRequest(route string, status int)
}

type nopRecorder struct{}

func (nopRecorder) RecordHTTPRequest(string, int) {}

// DefaultExcludedPaths are served without a session.
var DefaultExcludedPaths = []string{"/", "/users/", "/sessions/", "/reset_password/"}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder reports every response to r.
func WithRecorder(r HTTPRecorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithExcludedPaths replaces the paths that need no session.
func WithExcludedPaths(paths []string) Option {
	return func(s *Server) {
		s.excluded = paths
	}
}

// WithAddr sets the listen address used by Start.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithReadHeaderTimeout bounds the time spent reading request headers.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readHeaderTimeout = d
	}
}

// Server is the account API server.
type Server struct {
	svc               Authenticator
	logger            *slog.Logger
	recorder          HTTPRecorder
	excluded          []string
	addr              string
	readHeaderTimeout time.Duration

	handler    http.Handler
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer builds the API handler around svc.
func NewServer(svc Authenticator, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("authenticator is required")
	}

	s := &Server{
		svc:               svc,
		logger:            slog.Default(),
		recorder:          nopRecorder{},
		excluded:          DefaultExcludedPaths,
		addr:              "127.0.0.1:5000",
		readHeaderTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	requireAuth, err := RequireAuth(svc, s.excluded, s.logger)
	if err != nil {
		return nil, err
	}

	var h http.Handler = s.routes()
	h = requireAuth(h)
	h = Recover(s.logger)(h)
	h = Observe(s.logger, s.recorder)(h)
	h = Trace(h)
	h = RequestID(h)
	s.handler = h

	return s, nil
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving the API. The returned channel receives any error from
// the HTTP server after it starts and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_web_server").Wrap(err)
		}
	}

	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
