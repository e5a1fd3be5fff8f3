// Package database manages the SQLite connection behind the local cache
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tildaslashalef/reposync/internal/config"
	"github.com/tildaslashalef/reposync/internal/loggy"
	"github.com/tildaslashalef/reposync/internal/migrations"
)

var (
	// ErrNotInitialized is returned when the database has not been initialized
	ErrNotInitialized = errors.New("database not initialized")

	db     *sql.DB
	dbLock sync.Mutex
)

// DB returns the database connection
func DB() (*sql.DB, error) {
	dbLock.Lock()
	defer dbLock.Unlock()

	if db == nil {
		return nil, ErrNotInitialized
	}
	return db, nil
}

// InitDB opens the SQLite database described by cfg. Calling it twice is a no-op.
func InitDB(cfg *config.Config) error {
	dbLock.Lock()
	defer dbLock.Unlock()

	if db != nil {
		return nil
	}

	loggy.Info("Initializing database", "path", cfg.Database.Path)

	conn, err := sql.Open("sqlite3", buildSQLiteDSN(&cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetConnMaxLifetime(cfg.Database.ConnMaxLife)
	conn.SetMaxOpenConns(1) // SQLite supports only one writer at a time
	conn.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db = conn
	loggy.Info("Database initialized successfully")
	return nil
}

// buildSQLiteDSN builds a SQLite DSN with additional parameters
func buildSQLiteDSN(cfg *config.DatabaseConfig) string {
	if cfg.Path == ":memory:" || strings.HasPrefix(cfg.Path, "file::memory:") {
		return cfg.Path
	}

	params := url.Values{}
	params.Add("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	if cfg.JournalMode != "" {
		params.Add("_journal_mode", cfg.JournalMode)
	}
	if cfg.SynchronousMode != "" {
		params.Add("_synchronous", cfg.SynchronousMode)
	}
	if cfg.CacheSize != 0 {
		params.Add("_cache_size", strconv.Itoa(cfg.CacheSize))
	}
	params.Add("_foreign_keys", strconv.FormatBool(cfg.ForeignKeys))
	params.Add("cache", "shared")

	return fmt.Sprintf("%s?%s", cfg.Path, params.Encode())
}

// CloseDB closes the database connection
func CloseDB() error {
	dbLock.Lock()
	defer dbLock.Unlock()

	if db == nil {
		return nil
	}

	err := db.Close()
	db = nil
	return err
}

// WithTransaction executes fn within a database transaction
func WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	conn, err := DB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			loggy.Error("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	return tx.Commit()
}

func newMigrator() (*migrate.Migrate, error) {
	conn, err := DB()
	if err != nil {
		return nil, err
	}

	driver, err := sqlite3.WithInstance(conn, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	src, err := migrations.GetSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		loggy.Error("Failed to create migration instance", "error", err)
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending embedded migrations and returns the
// resulting schema version.
//
// The migrator is not closed here: closing it would close the shared
// connection owned by this package.
func RunMigrations() (uint, error) {
	m, err := newMigrator()
	if err != nil {
		return 0, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to apply migrations", "error", err)
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return logVersion(m, "Database migration complete")
}

// RevertMigrations reverts the given number of migration steps
func RevertMigrations(steps int) (uint, error) {
	if steps <= 0 {
		return 0, fmt.Errorf("steps must be positive, got %d", steps)
	}

	m, err := newMigrator()
	if err != nil {
		return 0, err
	}

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		loggy.Error("Failed to revert migrations", "error", err)
		return 0, fmt.Errorf("failed to revert migrations: %w", err)
	}

	return logVersion(m, "Database migration reversion complete")
}

func logVersion(m *migrate.Migrate, msg string) (uint, error) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}

	loggy.Info(msg,
		"version", version,
		"dirty", dirty,
		"empty", errors.Is(err, migrate.ErrNilVersion),
	)
	return version, nil
}
