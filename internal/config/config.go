// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoauth settings from defaults, an optional YAML file
// and command-line flags, in that order of precedence.
package config

import (
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/holomush/holoauth/internal/xdg"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseURLEnv is consulted when store.database_url is not configured.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the full holoauth configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http" yaml:"http" json:"http,omitempty"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics" json:"metrics,omitempty"`
	Store   StoreConfig   `koanf:"store" yaml:"store" json:"store,omitempty"`
	Log     LogConfig     `koanf:"log" yaml:"log" json:"log,omitempty"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth" json:"auth,omitempty"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" yaml:"addr" json:"addr,omitempty" jsonschema:"description=API listen address"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout,omitempty"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout,omitempty"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" json:"addr,omitempty" jsonschema:"description=metrics and health probe listen address; empty disables"`
}

// StoreConfig selects and configures the user store.
type StoreConfig struct {
	Driver      string `koanf:"driver" yaml:"driver" json:"driver,omitempty" jsonschema:"enum=memory,enum=sqlite,enum=postgres"`
	DatabaseURL string `koanf:"database_url" yaml:"database_url" json:"database_url,omitempty"`
	SQLitePath  string `koanf:"sqlite_path" yaml:"sqlite_path" json:"sqlite_path,omitempty"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	ExcludedPaths []string `koanf:"excluded_paths" yaml:"excluded_paths" json:"excluded_paths,omitempty" jsonschema:"description=paths served without a session; * matches any suffix"`
}

// Default returns the built-in configuration. The SQLite file lives in the
// XDG data directory, or the working directory when HOME is unset.
func Default() Config {
	sqlitePath, err := xdg.SQLitePath()
	if err != nil {
		sqlitePath = "holoauth.db"
	}
	return Config{
		HTTP: HTTPConfig{
			Addr:              "127.0.0.1:5000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: sqlitePath,
		},
		Log: LogConfig{Format: "json", Level: "info"},
		Auth: AuthConfig{
			ExcludedPaths: []string{"/", "/users/", "/sessions/", "/reset_password/"},
		},
	}
}

// AddFlags registers one flag per configuration key on fs. Flag names are
// the dotted key with "-" separators, e.g. store.database_url becomes
// --store-database-url.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.Duration("http-read-header-timeout", d.HTTP.ReadHeaderTimeout, "time allowed to read request headers")
	fs.Duration("http-shutdown-timeout", d.HTTP.ShutdownTimeout, "grace period for in-flight requests on shutdown")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("store-driver", d.Store.Driver, "user store: memory, sqlite or postgres")
	fs.String("store-database-url", "", "PostgreSQL URL (default: $"+DatabaseURLEnv+")")
	fs.String("store-sqlite-path", d.Store.SQLitePath, "SQLite database file")
	fs.Bool("store-auto-migrate", false, "apply pending PostgreSQL migrations on startup")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.StringSlice("auth-excluded-paths", d.Auth.ExcludedPaths, "paths that do not require a session")
}

// flagKey maps a flag name to its configuration key. Flags without a
// section prefix, such as --config, map to "" and are ignored.
func flagKey(name string) string {
	section, rest, ok := strings.Cut(name, "-")
	if !ok || !slices.Contains([]string{"http", "metrics", "store", "log", "auth"}, section) {
		return ""
	}
	return section + "." + strings.ReplaceAll(rest, "-", "_")
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the flags in fs that were set explicitly (if fs is
// non-nil). The result is validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key := flagKey(f.Name)
			if key == "" || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = os.Getenv(DatabaseURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		return invalid("http.read_header_timeout", "http.read_header_timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", "http.shutdown_timeout must be positive")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return invalid("store.sqlite_path", "store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "store.database_url or %s is required for the postgres driver", DatabaseURLEnv)
		}
	default:
		return invalid("store.driver", "store.driver must be memory, sqlite or postgres, got %q", c.Store.Driver)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		return invalid("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	for _, p := range c.Auth.ExcludedPaths {
		if !strings.HasPrefix(p, "/") {
			return invalid("auth.excluded_paths", "excluded path %q must start with /", p)
		}
	}
	return nil
}

// Redacted returns a copy with the database password masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Auth.ExcludedPaths = slices.Clone(c.Auth.ExcludedPaths)
	if u, err := url.Parse(c.Store.DatabaseURL); err == nil && u.User != nil {
		out.Store.DatabaseURL = u.Redacted()
	}
	return out
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	data, err := yamlv3.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}
