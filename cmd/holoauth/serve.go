// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/web"
)

const readinessTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP account API together with the metrics and health
probe listener. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	config.AddFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled or a listener
// fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	logger := logging.Setup("holoauth", version, cfg.Log.Format, cmd.ErrOrStderr(),
		logging.WithLevel(logging.ParseLevel(cfg.Log.Level)))
	slog.SetDefault(logger)

	logger.Info("starting holoauth",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"store_driver", cfg.Store.Driver,
	)

	if cfg.Store.Driver == config.DriverPostgres && cfg.Store.AutoMigrate {
		if err := runAutoMigration(cfg.Store.DatabaseURL, deps.MigratorFactory); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	backend, err := deps.StoreOpener(ctx, cfg.Store, logger)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer backend.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer *observability.Server
		svcOpts   []auth.ServiceOption
		webOpts   = []web.Option{
			web.WithAddr(cfg.HTTP.Addr),
			web.WithReadHeaderTimeout(cfg.HTTP.ReadHeaderTimeout),
			web.WithExcludedPaths(cfg.Auth.ExcludedPaths),
			web.WithLogger(logger),
		}
	)

	if cfg.Metrics.Addr != "" {
		var ready observability.ReadinessChecker
		if backend.Pinger != nil {
			ready = observability.PingReadiness(backend.Pinger, readinessTimeout)
		}
		obsServer = observability.NewServer(cfg.Metrics.Addr, ready, logger)
		svcOpts = append(svcOpts, auth.WithRecorder(obsServer.Metrics()))
		webOpts = append(webOpts, web.WithRecorder(obsServer.Metrics()))
	}

	svc, err := auth.NewAuthServiceWithLogger(backend.Users, auth.NewArgon2idHasher(), logger, svcOpts...)
	if err != nil {
		return err
	}

	webServer, err := web.NewServer(svc, webOpts...)
	if err != nil {
		return err
	}

	shutdown := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := webServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping web server", "error", err)
		}
		if obsServer != nil {
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("server", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	webErrCh, err := webServer.Start()
	if err != nil {
		shutdown()
		return oops.Code("SERVE_FAILED").With("server", "web").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web", logger)

	cmd.Println("holoauth listening on " + webServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down")
	shutdown()
	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
