// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the holoauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holoauth",
		Short: "holoauth - session-based account service",
		Long: `holoauth serves user registration, session login and logout,
and password reset over HTTP, backed by memory, SQLite or PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads --config and the command's own flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}
