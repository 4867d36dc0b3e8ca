// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
)

// NewUserCmd creates the user command group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		Long: `Register a user in the configured store. The password is read from
the terminal without echo, or from the first line of standard input when it
is not a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runUserAdd(cmd, cfg, email, nil)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address of the new user")
	_ = cmd.MarkFlagRequired("email")
	config.AddFlags(cmd.Flags())

	return cmd
}

func runUserAdd(cmd *cobra.Command, cfg *config.Config, email string, deps *ServeDeps) error {
	deps = deps.withDefaults()
	ctx := cmd.Context()

	logger := logging.Setup("holoauth", version, cfg.Log.Format, cmd.ErrOrStderr(),
		logging.WithLevel(logging.ParseLevel(cfg.Log.Level)))

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	backend, err := deps.StoreOpener(ctx, cfg.Store, logger)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer backend.Close()

	svc, err := auth.NewAuthServiceWithLogger(backend.Users, auth.NewArgon2idHasher(), logger)
	if err != nil {
		return err
	}

	user, err := svc.Register(ctx, email, password)
	if err != nil {
		return err
	}

	cmd.Printf("Created user %d <%s>\n", user.ID, user.Email)
	return nil
}

// readPassword prompts twice on a terminal; otherwise it reads one line.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		fd := int(f.Fd()) //nolint:gosec // fd fits in int
		cmd.Print("Password: ")
		first, err := term.ReadPassword(fd)
		cmd.Println()
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		cmd.Print("Confirm password: ")
		second, err := term.ReadPassword(fd)
		cmd.Println()
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		if string(first) != string(second) {
			return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
		}
		return nonEmpty(string(first))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return nonEmpty(strings.TrimRight(line, "\r\n"))
}

func nonEmpty(password string) (string, error) {
	if password == "" {
		return "", oops.Code(auth.CodeEmptyPassword).Wrap(auth.ErrEmptyPassword)
	}
	return password, nil
}
