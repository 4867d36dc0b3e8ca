// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErr: true},
		{name: "float parses as integer", input: "1.5", wantVersion: 1},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "negative is valid", input: "-1", wantVersion: -1},
		{name: "empty string returns error", input: "", wantErr: true},
		{name: "whitespace only returns error", input: "   ", wantErr: true},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		args     []string
		wantURL  string
		wantErr  bool
	}{
		{name: "missing everywhere", wantErr: true},
		{name: "from environment", envValue: "postgres://env/db", wantURL: "postgres://env/db"},
		{
			name:     "flag wins over environment",
			envValue: "postgres://env/db",
			args:     []string{"--store-database-url", "postgres://flag/db"},
			wantURL:  "postgres://flag/db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.envValue)
			configFile = ""

			cmd := NewMigrateCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			url, err := getDatabaseURL(cmd)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
				assert.Empty(t, url)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}

type fakeMigrator struct {
	calls    []string
	version  uint
	dirty    bool
	applied  []uint
	pending  []uint
	forced   int
	steps    int
	upErr    error
	closeErr error
}

func (m *fakeMigrator) Up() error   { m.calls = append(m.calls, "up"); return m.upErr }
func (m *fakeMigrator) Down() error { m.calls = append(m.calls, "down"); return nil }
func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = n
	return nil
}
func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }
func (m *fakeMigrator) Force(v int) error {
	m.calls = append(m.calls, "force")
	m.forced = v
	return nil
}
func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }
func (m *fakeMigrator) AppliedMigrations() ([]uint, error) { return m.applied, nil }
func (m *fakeMigrator) Close() error {
	m.calls = append(m.calls, "close")
	return m.closeErr
}

func runMigrate(t *testing.T, m *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://test@localhost/test")
	configFile = ""

	orig := migratorFactory
	migratorFactory = func(string) (Migrator, error) { return m, nil }
	t.Cleanup(func() { migratorFactory = orig })

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"migrate"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrateCommands(t *testing.T) {
	t.Run("up", func(t *testing.T) {
		m := &fakeMigrator{}
		out, err := runMigrate(t, m, "up")
		require.NoError(t, err)
		assert.Equal(t, []string{"up", "close"}, m.calls)
		assert.Contains(t, out, "Migrations completed successfully")
	})

	t.Run("up failure still closes", func(t *testing.T) {
		m := &fakeMigrator{upErr: errors.New("dirty database"), closeErr: errors.New("reset")}
		out, err := runMigrate(t, m, "up")
		require.Error(t, err)
		assert.Equal(t, []string{"up", "close"}, m.calls)
		assert.Contains(t, out, "error closing migrator")
	})

	t.Run("down", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, "down")
		require.NoError(t, err)
		assert.Equal(t, []string{"down", "close"}, m.calls)
	})

	t.Run("steps", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, "steps", "--", "-1")
		require.NoError(t, err)
		assert.Equal(t, -1, m.steps)
	})

	t.Run("force", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, "force", "1")
		require.NoError(t, err)
		assert.Equal(t, 1, m.forced)
	})

	t.Run("force rejects garbage", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, "force", "abc")
		require.Error(t, err)
		assert.Equal(t, []string{"close"}, m.calls)
	})

	t.Run("version", func(t *testing.T) {
		m := &fakeMigrator{version: 1, dirty: true, applied: []uint{1}, pending: []uint{2}}
		out, err := runMigrate(t, m, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "Current version: 1 (dirty)")
		assert.Contains(t, out, "applied  000001_create_users")
		assert.Contains(t, out, "pending  000002_token_indexes")
	})

	t.Run("version up to date", func(t *testing.T) {
		m := &fakeMigrator{version: 2, applied: []uint{1, 2}}
		out, err := runMigrate(t, m, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "Schema is up to date")
	})
}
