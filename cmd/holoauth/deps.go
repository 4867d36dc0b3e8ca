// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/auth/sqlite"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/internal/xdg"
)

// AutoMigrator is the part of store.Migrator used on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// UserBackend is an opened user store with its health check and cleanup.
type UserBackend struct {
	Users auth.UserStore
	// Pinger is nil for backends that are always ready.
	Pinger observability.Pinger
	Close  func()
}

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the configured user store.
	// Default: openUserBackend
	StoreOpener func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*UserBackend, error)

	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openUserBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	return &out
}

// openUserBackend opens the store selected by cfg.Driver.
func openUserBackend(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*UserBackend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return &UserBackend{Users: memory.NewUserStore(), Close: func() {}}, nil

	case config.DriverSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := xdg.EnsureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
				return nil, err
			}
		}
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &UserBackend{
			Users:  st,
			Pinger: st,
			Close: func() {
				if err := st.Close(); err != nil {
					logger.Warn("error closing sqlite store", "error", err)
				}
			},
		}, nil

	case config.DriverPostgres:
		opts := store.DefaultConnectOptions()
		opts.Logger = logger
		pool, err := store.Connect(ctx, cfg.DatabaseURL, opts)
		if err != nil {
			return nil, err
		}
		return &UserBackend{Users: postgres.NewUserStore(pool), Pinger: pool, Close: pool.Close}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown store driver %q", cfg.Driver)
	}
}

// runAutoMigration applies pending migrations. A failure to close the
// migrator is logged, not returned.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr, "note", "connection may leak")
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}
