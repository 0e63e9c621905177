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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsMemoryBackendWithSensibleTimings(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
storage:
  backend: sqlite
  sqlite:
    path: /var/lib/skein/skein.db
    wal: true
scheduler:
  check_interval: 30s
log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/skein/skein.db", cfg.Storage.SQLite.Path)
	assert.True(t, cfg.Storage.SQLite.WAL)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n"), 0600))

	t.Setenv("SKEIN_BACKEND", "postgres")
	t.Setenv("SKEIN_POSTGRES_URL", "postgres://localhost/skein")
	t.Setenv("SKEIN_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/skein", cfg.Storage.Postgres.ConnectionString)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_InvalidDurationEnvIsIgnored(t *testing.T) {
	t.Setenv("SKEIN_SCHEDULER_INTERVAL", "not-a-duration")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.CheckInterval)
}

func TestConfigPath_HonorsOverride(t *testing.T) {
	t.Setenv("SKEIN_CONFIG", "/etc/skein/custom.yaml")
	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/skein/custom.yaml", path)
}
