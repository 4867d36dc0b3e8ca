// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves XDG Base Directory paths for holoauth.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "holoauth"

// ConfigDir returns $XDG_CONFIG_HOME/holoauth, falling back to
// ~/.config/holoauth.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/holoauth, falling back to
// ~/.local/share/holoauth.
func DataDir() (string, error) {
	return dir("XDG_DATA_HOME", ".local", "share")
}

// SQLitePath is the default location of the SQLite user database.
func SQLitePath() (string, error) {
	data, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(data, appName+".db"), nil
}

func dir(env string, homeFallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_HOME_UNSET").
			With("env", env).
			Errorf("neither %s nor HOME is set", env)
	}
	return filepath.Join(append(append([]string{home}, homeFallback...), appName)...), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
