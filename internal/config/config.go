// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects the repository.Backend implementation and its
// connection parameters. Only one of SQLite/Postgres is read, per Backend.
type StorageConfig struct {
	// Backend is one of "memory", "sqlite", "postgres". Default: memory.
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig configures the sqlite repository backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
	WAL  bool   `yaml:"wal"`
}

// PostgresConfig configures the postgres repository backend.
type PostgresConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
}

// EncryptionConfig selects how the encryption key protecting secret
// variables is derived. Exactly one of KeyBase64/Passphrase should be set;
// KeyBase64 takes precedence when both are present.
type EncryptionConfig struct {
	KeyBase64  string `yaml:"key_base64"`
	Passphrase string `yaml:"passphrase"`
}

// SchedulerConfig configures the cron trigger loop.
type SchedulerConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
}

// LeaderConfig configures multi-instance leader election. Only meaningful
// with the postgres backend, whose advisory lock internal/leader relies on.
type LeaderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	InstanceID    string        `yaml:"instance_id"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// LogConfig mirrors internal/log.Config's YAML-settable fields. Output is
// not configurable from file; it is always the process's stderr.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig controls whether the runner's Prometheus collector is
// wired in at all. Metric emission itself is always the teacher's
// promauto-registered instruments; this only gates construction.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventBusConfig configures the in-process pub/sub fan-out.
type EventBusConfig struct {
	Async bool `yaml:"async"`
}

// IdempotencyConfig configures the idempotency key TTL.
type IdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// Config is the complete set of settings skeind needs to start: one
// process, loaded once at startup, never hot-reloaded or written back.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Encryption  EncryptionConfig  `yaml:"encryption"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Leader      LeaderConfig      `yaml:"leader"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	EventBus    EventBusConfig    `yaml:"event_bus"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
}

// Default returns a Config usable with no file and no environment at all:
// an in-memory backend, synchronous event bus, info-level JSON logging.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "memory",
		},
		Scheduler: SchedulerConfig{
			CheckInterval: 60 * time.Second,
		},
		Leader: LeaderConfig{
			RetryInterval: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Idempotency: IdempotencyConfig{
			TTL: 24 * time.Hour,
		},
	}
}

// Load reads config from path (resolved via ConfigPath when path is empty),
// tolerating a missing file, then overlays SKEIN_* environment variables.
// A missing config file is not an error: Default plus environment is a
// complete configuration on its own.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		resolved, err := ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		path = resolved
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays SKEIN_* environment variables on top of file-loaded
// values, the same precedence order the teacher's daemon config uses: file
// first, environment last.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SKEIN_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("SKEIN_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("SKEIN_POSTGRES_URL"); v != "" {
		cfg.Storage.Postgres.ConnectionString = v
	}
	if v := os.Getenv("SKEIN_ENCRYPTION_KEY"); v != "" {
		cfg.Encryption.KeyBase64 = v
	}
	if v := os.Getenv("SKEIN_ENCRYPTION_PASSPHRASE"); v != "" {
		cfg.Encryption.Passphrase = v
	}
	if v := os.Getenv("SKEIN_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.CheckInterval = d
		}
	}
	if v := os.Getenv("SKEIN_LEADER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Leader.Enabled = b
		}
	}
	if v := os.Getenv("SKEIN_INSTANCE_ID"); v != "" {
		cfg.Leader.InstanceID = v
	}
	if v := os.Getenv("SKEIN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SKEIN_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SKEIN_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}
