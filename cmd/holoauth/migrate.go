// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/store"
)

// Migrator is the part of store.Migrator driven by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// migratorFactory is replaced in tests.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage PostgreSQL schema migrations",
		Long: `Apply, roll back or inspect the PostgreSQL schema. The database URL
comes from store.database_url in the config file, --store-database-url or
the DATABASE_URL environment variable.`,
	}
	cmd.PersistentFlags().String("store-database-url", "", "PostgreSQL URL (default: $"+config.DatabaseURLEnv+")")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply (N > 0) or roll back (N < 0) N migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			n, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Steps(n); err != nil {
				return err
			}
			cmd.Printf("Applied %d migration step(s)\n", n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the recorded version without running migrations",
		Long:  `Clear a dirty state after a failed migration by recording VERSION as applied.`,
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Forced version %d\n", version)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(runMigrateStatus),
	})

	return cmd
}

func withMigrator(run func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		databaseURL, err := getDatabaseURL(cmd)
		if err != nil {
			return err
		}

		m, err := migratorFactory(databaseURL)
		if err != nil {
			return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrln("warning: error closing migrator:", closeErr)
			}
		}()

		return run(cmd, m, args)
	}
}

func runMigrateStatus(cmd *cobra.Command, m Migrator, _ []string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	state := ""
	if dirty {
		state = " (dirty)"
	}
	cmd.Printf("Current version: %d%s\n", version, state)

	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	for _, v := range applied {
		printMigration(cmd, "applied", v)
	}

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	for _, v := range pending {
		printMigration(cmd, "pending", v)
	}
	if len(pending) == 0 {
		cmd.Println("Schema is up to date")
	}
	return nil
}

func printMigration(cmd *cobra.Command, state string, version uint) {
	name, err := store.MigrationName(version)
	if err != nil {
		name = fmt.Sprintf("%06d", version)
	}
	cmd.Printf("  %-8s %s\n", state, name)
}

// getDatabaseURL resolves the PostgreSQL URL from the flag, the config file
// or DATABASE_URL.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	if flag := cmd.Flags().Lookup("store-database-url"); flag != nil && flag.Value.String() != "" {
		return flag.Value.String(), nil
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return "", err
	}
	if cfg.Store.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("%s environment variable or store.database_url is required", config.DatabaseURLEnv)
	}
	return cfg.Store.DatabaseURL, nil
}

// parseForceVersion parses a migration version argument. Like fmt.Sscanf it
// stops at the first non-digit.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}
