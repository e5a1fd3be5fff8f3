// Package migrations embeds the SQLite schema for the local cache and journal
package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tildaslashalef/reposync/internal/loggy"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// GetSource creates a migrate source driver over the embedded migrations
func GetSource() (source.Driver, error) {
	migrationFS, err := fs.Sub(migrationsFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded migrations: %w", err)
	}

	src, err := iofs.New(migrationFS, ".")
	if err != nil {
		loggy.Error("Failed to create migration source", "error", err)
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	return src, nil
}

// Files lists the embedded migration file names in lexical order
func Files() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
