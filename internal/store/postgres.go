// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store opens and migrates the PostgreSQL database behind the
// users table.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes the startup connection attempts.
type ConnectOptions struct {
	// MaxRetries is the number of pings retried after the first one fails.
	MaxRetries uint64
	// BaseDelay is the first backoff interval; it doubles on each retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration
	Logger   *slog.Logger
}

// DefaultConnectOptions waits roughly half a minute for the database.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxRetries: 6,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		Logger:     slog.Default(),
	}
}

// Connect opens a pgx pool for dsn and pings it with exponential backoff
// until the database answers or the retries run out.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultConnectOptions().BaseDelay
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.NewExponential(opts.BaseDelay)
	if opts.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(opts.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(opts.MaxRetries, backoff)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			opts.Logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"host", cfg.ConnConfig.Host,
				"error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	opts.Logger.InfoContext(ctx, "database connected", "host", cfg.ConnConfig.Host, "attempts", attempt)
	return pool, nil
}
