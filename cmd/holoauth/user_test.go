// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/sqlite"
)

func runUserAddCmd(t *testing.T, dbPath, stdin string, args ...string) (string, error) {
	t.Helper()
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"user", "add",
		"--store-driver", "sqlite",
		"--store-sqlite-path", dbPath,
		"--log-level", "error",
	}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestUserAdd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "holoauth.db")

	out, err := runUserAddCmd(t, dbPath, "b4l0u\n", "--email", "Guillaume@Holberton.io")
	require.NoError(t, err)
	assert.Contains(t, out, "<guillaume@holberton.io>")

	st, err := sqlite.Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	user, err := st.FindUserBy(context.Background(), auth.FieldEmail, "guillaume@holberton.io")
	require.NoError(t, err)
	ok, err := auth.NewArgon2idHasher().Verify("b4l0u", user.HashedPassword)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserAdd_Failures(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "holoauth.db")
	_, err := runUserAddCmd(t, dbPath, "b4l0u\n", "--email", "bob@holberton.io")
	require.NoError(t, err)

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"missing email flag", "b4l0u\n", nil},
		{"empty password", "\n", []string{"--email", "alice@holberton.io"}},
		{"duplicate email", "b4l0u\n", []string{"--email", "bob@holberton.io"}},
		{"invalid email", "b4l0u\n", []string{"--email", "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runUserAddCmd(t, dbPath, tt.stdin, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestReadPassword_WithoutTrailingNewline(t *testing.T) {
	cmd := NewUserCmd()
	cmd.SetIn(strings.NewReader("s3cret"))

	password, err := readPassword(cmd)

	require.NoError(t, err)
	assert.Equal(t, "s3cret", password)
}
