package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Remote: RemoteConfig{
			URL:      "http://localhost:8080",
			Timeout:  5 * time.Second,
			PageSize: 50,
		},
		Reconcile: ReconcileConfig{
			Delay:          100 * time.Millisecond,
			LegacyPrefixes: DefaultLegacyPrefixes,
		},
		Database: DatabaseConfig{
			Path:         filepath.Join(t.TempDir(), "cache.db"),
			BusyTimeout:  5000,
			ConnMaxLife:  time.Minute,
			QueryTimeout: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty remote url",
			mutate:  func(c *Config) { c.Remote.URL = "" },
			wantErr: "remote config: url cannot be empty",
		},
		{
			name:    "remote url without scheme",
			mutate:  func(c *Config) { c.Remote.URL = "localhost:8080/api" },
			wantErr: "remote config: invalid url",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Remote.Timeout = 0 },
			wantErr: "remote config: timeout must be positive",
		},
		{
			name:    "zero page size",
			mutate:  func(c *Config) { c.Remote.PageSize = 0 },
			wantErr: "remote config: page size must be positive",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Reconcile.Delay = -time.Second },
			wantErr: "reconcile config: delay cannot be negative",
		},
		{
			name:    "empty legacy prefix",
			mutate:  func(c *Config) { c.Reconcile.LegacyPrefixes = []string{"group_", ""} },
			wantErr: "reconcile config: legacy prefixes cannot contain empty entries",
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database config: database path cannot be empty",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging config: invalid log level: loud",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging config: invalid log format: xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("INFO"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.Level(9999), ParseLogLevel("none"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("bogus"))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST_VALUE", " group_ , ,#comment, kb- ")
	assert.Equal(t, []string{"group_", "kb-"}, getEnvList("TEST_LIST_VALUE", nil))

	os.Unsetenv("TEST_LIST_MISSING")
	assert.Equal(t, []string{"x"}, getEnvList("TEST_LIST_MISSING", []string{"x"}))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_VALUE", "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvDuration("TEST_DURATION_VALUE", time.Second))

	t.Setenv("TEST_DURATION_VALUE", "soon")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION_VALUE", time.Second))
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"REPOSYNC_REMOTE_URL=https://kb.example.com/\n"+
			"REPOSYNC_RECONCILE_DELAY=2s\n"+
			"REPOSYNC_RECONCILE_LEGACY_PREFIXES=old_\n"+
			"REPOSYNC_REMOTE_CLIENT_NAME=test-box\n",
	), 0600))

	for _, key := range []string{
		"ENV_FILE_PATH",
		"REPOSYNC_REMOTE_URL",
		"REPOSYNC_RECONCILE_DELAY",
		"REPOSYNC_RECONCILE_LEGACY_PREFIXES",
		"REPOSYNC_REMOTE_CLIENT_NAME",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("REPOSYNC_LOG_OUTPUT", "stderr")

	cfg, err := LoadFromEnv(dir, envFile)
	require.NoError(t, err)

	assert.Equal(t, "https://kb.example.com", cfg.Remote.URL, "trailing slash is trimmed")
	assert.Equal(t, 2*time.Second, cfg.Reconcile.Delay)
	assert.Equal(t, []string{"old_"}, cfg.Reconcile.LegacyPrefixes)
	assert.Equal(t, "test-box", cfg.Remote.ClientName)
	assert.Equal(t, filepath.Join(dir, "reposync.db"), cfg.Database.Path)
	assert.Equal(t, dir, cfg.ConfigDir())
	assert.True(t, cfg.Reconcile.IncludeChildren)
}

func TestGenerateClientName(t *testing.T) {
	name := GenerateClientName()
	assert.NotEmpty(t, name)
	assert.NotContains(t, name, "_")
}

func TestSetupConfigDirectory(t *testing.T) {
	dir := t.TempDir()

	envPath, err := SetupConfigDirectory(dir, false)
	require.NoError(t, err)
	data, err := os.ReadFile(envPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "REPOSYNC_REMOTE_URL")

	require.NoError(t, os.WriteFile(envPath, []byte("CUSTOM=1\n"), 0600))
	_, err = SetupConfigDirectory(dir, false)
	require.NoError(t, err)
	data, err = os.ReadFile(envPath)
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM=1\n", string(data), "existing file is kept without backup flag")

	_, err = SetupConfigDirectory(dir, true)
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(dir, ".env.*.bak"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestGlobalConfig(t *testing.T) {
	Set(nil)
	_, err := Get()
	assert.Error(t, err)

	cfg := validConfig(t)
	Set(cfg)
	got, err := Get()
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}
