package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goombaio/namegenerator"
	"github.com/joho/godotenv"
)

// LoadFromEnv loads configuration from a .env file and REPOSYNC_* environment variables.
// configDir defaults to ~/.reposync; configFilePath defaults to <configDir>/.env.
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".reposync")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.configDir = configDir

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	if envFilePath := getEnvString("ENV_FILE_PATH", ""); envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else if err := godotenv.Load(configFilePath); err != nil {
		// Fall back to ./.env; a missing file is fine
		_ = godotenv.Load()
	}

	cfg.Remote = RemoteConfig{
		URL:             strings.TrimRight(getEnvString("REPOSYNC_REMOTE_URL", "http://localhost:8080"), "/"),
		Token:           getEnvString("REPOSYNC_REMOTE_TOKEN", ""),
		Timeout:         getEnvDuration("REPOSYNC_REMOTE_TIMEOUT", 30*time.Second),
		PageSize:        getEnvInt("REPOSYNC_REMOTE_PAGE_SIZE", 100),
		ClientName:      getEnvString("REPOSYNC_REMOTE_CLIENT_NAME", ""),
		MaxIdleConns:    getEnvInt("REPOSYNC_REMOTE_MAX_IDLE_CONNS", 10),
		IdleConnTimeout: getEnvDuration("REPOSYNC_REMOTE_IDLE_CONN_TIMEOUT", 90*time.Second),

		OAuthClientID:     getEnvString("REPOSYNC_OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnvString("REPOSYNC_OAUTH_CLIENT_SECRET", ""),
		OAuthTokenURL:     getEnvString("REPOSYNC_OAUTH_TOKEN_URL", ""),
		OAuthScopes:       getEnvList("REPOSYNC_OAUTH_SCOPES", nil),
	}
	if cfg.Remote.ClientName == "" {
		cfg.Remote.ClientName = GenerateClientName()
	}

	cfg.Reconcile = ReconcileConfig{
		Delay:            getEnvDuration("REPOSYNC_RECONCILE_DELAY", 500*time.Millisecond),
		IncludeChildren:  getEnvBool("REPOSYNC_RECONCILE_INCLUDE_CHILDREN", true),
		CheckConsistency: getEnvBool("REPOSYNC_RECONCILE_CHECK_CONSISTENCY", false),
		LegacyPrefixes:   getEnvList("REPOSYNC_RECONCILE_LEGACY_PREFIXES", DefaultLegacyPrefixes),
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("REPOSYNC_DB_PATH", filepath.Join(configDir, "reposync.db")),
		BusyTimeout:     getEnvInt("REPOSYNC_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("REPOSYNC_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("REPOSYNC_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("REPOSYNC_DB_CACHE_SIZE", -16000),
		ForeignKeys:     getEnvBool("REPOSYNC_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("REPOSYNC_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("REPOSYNC_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("REPOSYNC_LOG_LEVEL", "info"),
		Format:     getEnvString("REPOSYNC_LOG_FORMAT", "text"),
		Output:     getEnvString("REPOSYNC_LOG_OUTPUT", filepath.Join(configDir, "reposync.log")),
		AddSource:  getEnvBool("REPOSYNC_LOG_ADD_SOURCE", true),
		TimeFormat: getTimeFormat(getEnvString("REPOSYNC_LOG_TIME_FORMAT", "RFC3339")),
	}

	cfg.Metrics = MetricsConfig{
		TextfilePath: getEnvString("REPOSYNC_METRICS_TEXTFILE", ""),
	}

	return cfg, cfg.Validate()
}

// GenerateClientName returns a memorable name such as "wispy-dust"
func GenerateClientName() string {
	gen := namegenerator.NewNameGenerator(time.Now().UTC().UnixNano())
	return strings.ReplaceAll(gen.Generate(), "_", "-")
}
