// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/pkg/errutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holoauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	config.AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.DatabaseURLEnv, "")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, config.Default(), *cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv(config.DatabaseURLEnv, "")
	path := writeConfig(t, `
http:
  addr: 0.0.0.0:8080
  shutdown_timeout: 30s
store:
  driver: postgres
  database_url: postgres://holo:secret@db:5432/holoauth
log:
  level: debug
`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadHeaderTimeout)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	t.Setenv(config.DatabaseURLEnv, "")
	path := writeConfig(t, "store:\n  driver: memory\nlog:\n  format: json\n")
	fs := newFlags(t,
		"--log-format", "text",
		"--http-read-header-timeout", "2s",
		"--auth-excluded-paths", "/,/api/v1/stat*",
	)

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.HTTP.ReadHeaderTimeout)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver, "unset flags must not clobber the file")
	assert.Equal(t, []string{"/", "/api/v1/stat*"}, cfg.Auth.ExcludedPaths)
}

func TestLoad_DatabaseURLFromEnvironment(t *testing.T) {
	t.Setenv(config.DatabaseURLEnv, "postgres://env-host/holoauth")

	cfg, err := config.Load("", newFlags(t, "--store-driver", "postgres"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-host/holoauth", cfg.Store.DatabaseURL)

	cfg, err = config.Load("", newFlags(t, "--store-driver", "postgres", "--store-database-url", "postgres://flag-host/holoauth"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag-host/holoauth", cfg.Store.DatabaseURL)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(config.DatabaseURLEnv, "")

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"unknown key", "http:\n  port: 80\n", "CONFIG_INVALID"},
		{"unknown driver", "store:\n  driver: mongo\n", "CONFIG_INVALID"},
		{"bad duration", "http:\n  shutdown_timeout: soon\n", "CONFIG_INVALID"},
		{"malformed yaml", "http: [\n", "CONFIG_INVALID"},
		{"postgres without url", "store:\n  driver: postgres\n", "CONFIG_INVALID"},
		{"relative excluded path", "auth:\n  excluded_paths: [users]\n", "CONFIG_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body), nil)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_READ_FAILED")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantKey string
	}{
		{"empty http addr", func(c *config.Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"zero header timeout", func(c *config.Config) { c.HTTP.ReadHeaderTimeout = 0 }, "http.read_header_timeout"},
		{"negative shutdown timeout", func(c *config.Config) { c.HTTP.ShutdownTimeout = -time.Second }, "http.shutdown_timeout"},
		{"sqlite without path", func(c *config.Config) { c.Store.SQLitePath = "" }, "store.sqlite_path"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "chatty" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.wantKey)
		})
	}

	t.Run("metrics may be disabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Metrics.Addr = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_YAMLMasksPassword(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.DriverPostgres
	cfg.Store.DatabaseURL = "postgres://holo:secret@db:5432/holoauth"

	data, err := cfg.YAML()
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), "read_header_timeout: 10s")
	assert.Equal(t, "postgres://holo:secret@db:5432/holoauth", cfg.Store.DatabaseURL, "YAML must not mutate the receiver")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.NoError(t, config.ValidateYAML(data), "rendered config must satisfy the schema")
}

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, config.SchemaID, schema["$id"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"http", "metrics", "store", "log", "auth"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateYAML_EmptyDocument(t *testing.T) {
	assert.NoError(t, config.ValidateYAML(nil))
	assert.NoError(t, config.ValidateYAML([]byte("# comments only\n")))
}
