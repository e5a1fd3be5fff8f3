package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// Global configuration instance
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Get returns the global configuration instance
func Get() (*Config, error) {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	return globalConfig, nil
}

// Set sets the global configuration instance
func Set(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = cfg
}

// Config represents the complete application configuration
type Config struct {
	Remote    RemoteConfig
	Reconcile ReconcileConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	configDir string
}

// RemoteConfig holds the connection settings for the remote folder service
type RemoteConfig struct {
	URL             string        // Base URL of the remote API
	Token           string        // Bearer token; empty falls back to the token stored in the cache
	Timeout         time.Duration // Per-call timeout
	PageSize        int           // Page size used when listing folders and files
	ClientName      string        // Sent as X-Client-Name
	MaxIdleConns    int
	IdleConnTimeout time.Duration

	// OAuth2 client credentials; used only when Token is empty and all three are set
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string
	OAuthScopes       []string
}

// HasOAuth reports whether client credentials are configured
func (r RemoteConfig) HasOAuth() bool {
	return r.OAuthClientID != "" && r.OAuthClientSecret != "" && r.OAuthTokenURL != ""
}

// ReconcileConfig tunes the reconciliation pass
type ReconcileConfig struct {
	Delay            time.Duration // Pause between two entities of a batch
	IncludeChildren  bool          // Push each folder's files after the folder reconciles
	CheckConsistency bool          // Run the read-only drift report after the write pass
	LegacyPrefixes   []string      // Historical remote id prefixes, tried in order
}

// DatabaseConfig represents the SQLite cache configuration
type DatabaseConfig struct {
	Path            string        // Path to the SQLite database file
	JournalMode     string        // Journal mode (WAL recommended)
	SynchronousMode string        // Synchronous mode
	BusyTimeout     int           // Busy timeout in milliseconds
	CacheSize       int           // Cache size in KiB
	ForeignKeys     bool          // Whether to enforce foreign key constraints
	ConnMaxLife     time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string // debug, info, warn, error, none
	Format     string // text or json
	Output     string // stdout, stderr, or file path
	AddSource  bool
	TimeFormat string
}

// MetricsConfig controls the prometheus textfile written after each CLI run
type MetricsConfig struct {
	TextfilePath string // empty disables the textfile
}

// DefaultLegacyPrefixes are id prefixes the remote service used before
// folder grouping was flattened.
var DefaultLegacyPrefixes = []string{"group_", "grp-", "kb-"}

// New returns a new empty Config
func New() *Config {
	return &Config{}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return fmt.Errorf("remote config: %w", err)
	}

	if err := c.validateReconcile(); err != nil {
		return fmt.Errorf("reconcile config: %w", err)
	}

	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// ParseLogLevel parses a log level string to a slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		return slog.Level(9999)
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validateRemote() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	u, err := url.Parse(c.Remote.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url: %q", c.Remote.URL)
	}

	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Remote.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}

	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}

	for _, p := range c.Reconcile.LegacyPrefixes {
		if p == "" {
			return fmt.Errorf("legacy prefixes cannot contain empty entries")
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Database.Path != ":memory:" {
		dir := filepath.Dir(c.Database.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for database: %w", err)
		}
		if err := checkDirectoryWritable(dir); err != nil {
			return fmt.Errorf("database directory: %w", err)
		}
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated list from the environment variable.
// Blank entries and entries starting with '#' are dropped.
func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" && !strings.HasPrefix(item, "#") {
			out = append(out, item)
		}
	}
	return out
}

// getTimeFormat converts a named time format to its layout string
func getTimeFormat(name string) string {
	switch name {
	case "RFC3339":
		return time.RFC3339
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "Kitchen":
		return time.Kitchen
	case "DateTime":
		return time.DateTime
	case "DateTimeMS":
		return "2006-01-02 15:04:05.000"
	default:
		return name
	}
}

// checkDirectoryWritable tests if a directory is writable
func checkDirectoryWritable(dir string) error {
	testFile := filepath.Join(dir, fmt.Sprintf("test_write_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}

	f.Close()
	os.Remove(testFile)

	return nil
}
