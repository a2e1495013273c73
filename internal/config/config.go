// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

// Package config loads Bento server configuration. Values are layered:
// built-in defaults, then an optional YAML file, then command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// Config holds the full server configuration. It is passed explicitly to
// the components that need it; there is no package-level instance.
type Config struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`

	Storage  Storage  `koanf:"storage"`
	Sessions Sessions `koanf:"sessions"`
	Admin    Admin    `koanf:"admin"`
}

// Storage selects and parameterises the persistence backend.
type Storage struct {
	// Backend is "memory" or "bolt".
	Backend string `koanf:"backend"`
	// DataDir overrides the XDG data directory. Only used by the bolt
	// backend.
	DataDir string `koanf:"data_dir"`
}

// Sessions controls session lifecycle policy.
type Sessions struct {
	TTL        time.Duration `koanf:"ttl"`
	MaxPerUser int           `koanf:"max_per_user"`
}

// Admin describes the bootstrap administrator created on first start.
// Empty username disables bootstrapping.
type Admin struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Default values.
const (
	DefaultListenAddr  = "127.0.0.1:8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:  DefaultListenAddr,
		MetricsAddr: DefaultMetricsAddr,
		LogFormat:   DefaultLogFormat,
		Storage: Storage{
			Backend: BackendBolt,
		},
		Sessions: Sessions{
			TTL:        24 * time.Hour,
			MaxPerUser: 5,
		},
	}
}

// Flags returns the flag set recognised by Load. Flag names mirror the
// YAML keys with dots replaced by dashes.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("bento", pflag.ContinueOnError)
	fs.String("listen-addr", DefaultListenAddr, "HTTP API listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("storage-backend", BackendBolt, "storage backend (memory or bolt)")
	fs.String("storage-data-dir", "", "data directory (default: XDG_DATA_HOME/bento)")
	fs.Duration("sessions-ttl", 24*time.Hour, "session lifetime")
	fs.Int("sessions-max-per-user", 5, "max concurrent sessions per user")
	return fs
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and any flags changed on fs (nil is allowed).
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if fs != nil {
		p := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(fs, f)
		})
		if err := k.Load(p, nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.Storage.Backend != BackendMemory && c.Storage.Backend != BackendBolt {
		return fmt.Errorf("storage.backend must be 'memory' or 'bolt', got %q", c.Storage.Backend)
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive, got %s", c.Sessions.TTL)
	}
	if c.Sessions.MaxPerUser <= 0 {
		return fmt.Errorf("sessions.max_per_user must be positive, got %d", c.Sessions.MaxPerUser)
	}
	if c.Admin.Username != "" && c.Admin.Password == "" {
		return fmt.Errorf("admin.password is required when admin.username is set")
	}
	return nil
}

// defaultsMap flattens Default() into koanf keys.
func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"listen_addr":           d.ListenAddr,
		"metrics_addr":          d.MetricsAddr,
		"log_format":            d.LogFormat,
		"storage.backend":       d.Storage.Backend,
		"storage.data_dir":      d.Storage.DataDir,
		"sessions.ttl":          d.Sessions.TTL,
		"sessions.max_per_user": d.Sessions.MaxPerUser,
		"admin.username":        d.Admin.Username,
		"admin.password":        d.Admin.Password,
	}
}

// flagKey maps a flag name like "sessions-max-per-user" onto its koanf key.
func flagKey(name string) string {
	switch name {
	case "listen-addr":
		return "listen_addr"
	case "metrics-addr":
		return "metrics_addr"
	case "log-format":
		return "log_format"
	case "storage-backend":
		return "storage.backend"
	case "storage-data-dir":
		return "storage.data_dir"
	case "sessions-ttl":
		return "sessions.ttl"
	case "sessions-max-per-user":
		return "sessions.max_per_user"
	default:
		return name
	}
}
