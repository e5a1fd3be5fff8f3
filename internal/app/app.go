// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/tildaslashalef/reposync/internal/auth"
	"github.com/tildaslashalef/reposync/internal/cache"
	"github.com/tildaslashalef/reposync/internal/config"
	"github.com/tildaslashalef/reposync/internal/database"
	"github.com/tildaslashalef/reposync/internal/loggy"
	"github.com/tildaslashalef/reposync/internal/metrics"
	"github.com/tildaslashalef/reposync/internal/reconcile"
	"github.com/tildaslashalef/reposync/internal/remote"
	"github.com/urfave/cli/v2"
)

// App represents the application instance with its dependencies
type App struct {
	Config    *config.Config
	Store     cache.Store
	Tokens    *auth.StoreProvider // the token kept in the cache
	Creds     auth.TokenProvider  // every configured token source, in order
	Remote    *remote.Client
	Reconcile *reconcile.Service
	Journal   *reconcile.SQLJournal
	Metrics   *metrics.Recorder
}

// New loads the configuration from the environment and wires the application
func New() (*App, error) {
	cfg, err := config.LoadFromEnv("", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config.Set(cfg)

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
	)

	return NewWithConfig(cfg)
}

// NewWithConfig wires the application over cfg. The database is opened and
// migrated so the cache tables always exist.
func NewWithConfig(cfg *config.Config) (*App, error) {
	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if _, err := database.RunMigrations(); err != nil {
		return nil, err
	}

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	app := initServices(cfg, db)
	loggy.Info("Application initialized successfully", "remote", cfg.Remote.URL, "client", cfg.Remote.ClientName)
	return app, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices wires the cache, credentials, remote client and engine
func initServices(cfg *config.Config, db *sql.DB) *App {
	logger := loggy.GetGlobalLogger()

	store := cache.NewSQLStore(db, logger)
	stored := auth.NewStoreProvider(store)

	// The configured token wins over the stored one; client credentials
	// are the last resort.
	tokens := auth.Chain{auth.StaticProvider(cfg.Remote.Token), stored}
	if cfg.Remote.HasOAuth() {
		tokens = append(tokens, auth.NewClientCredentialsProvider(
			context.Background(),
			cfg.Remote.OAuthClientID,
			cfg.Remote.OAuthClientSecret,
			cfg.Remote.OAuthTokenURL,
			cfg.Remote.OAuthScopes,
		))
		loggy.Debug("OAuth client credentials enabled", "token_url", cfg.Remote.OAuthTokenURL)
	}

	client := remote.NewClient(cfg.Remote.URL, tokens, remote.Options{
		Timeout:         cfg.Remote.Timeout,
		ClientName:      cfg.Remote.ClientName,
		MaxIdleConns:    cfg.Remote.MaxIdleConns,
		IdleConnTimeout: cfg.Remote.IdleConnTimeout,
	}, logger)

	app := &App{
		Config:  cfg,
		Store:   store,
		Tokens:  stored,
		Creds:   tokens,
		Remote:  client,
		Journal: reconcile.NewSQLJournal(db, logger),
		Metrics: metrics.NewRecorder(),
	}
	app.Reconcile = app.NewReconciler(ReconcileOptions(cfg))
	return app
}

// ReconcileOptions maps the configuration onto engine options
func ReconcileOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		Delay:            cfg.Reconcile.Delay,
		IncludeChildren:  cfg.Reconcile.IncludeChildren,
		CheckConsistency: cfg.Reconcile.CheckConsistency,
		PageSize:         cfg.Remote.PageSize,
		LegacyPrefixes:   cfg.Reconcile.LegacyPrefixes,
	}
}

// NewReconciler builds an engine with opts that shares the app's remote
// client, cache, journal and metrics
func (app *App) NewReconciler(opts reconcile.Options) *reconcile.Service {
	service := reconcile.NewService(app.Remote, app.Creds, app.Store, opts, loggy.GetGlobalLogger())
	service.SetJournal(app.Journal)
	service.SetObserver(app.Metrics)
	return service
}

// Shutdown flushes metrics and closes the database
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if path := app.Config.Metrics.TextfilePath; path != "" {
		if err := app.Metrics.WriteTextfile(path); err != nil {
			loggy.Error("Failed to write metrics textfile", "path", path, "error", err)
		}
	}

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return nil
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
