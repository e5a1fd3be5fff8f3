package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tildaslashalef/reposync/internal/loggy"
)

//go:embed env.sample
var configFS embed.FS

// SetupConfigDirectory ensures configDir exists and holds a .env file.
// An existing .env is kept unless backupExisting is set, in which case it
// is copied to .env.<date>.bak before being replaced by the sample.
func SetupConfigDirectory(configDir string, backupExisting bool) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	envPath := filepath.Join(configDir, ".env")
	if err := extractEmbeddedFile("env.sample", envPath, backupExisting); err != nil {
		return "", err
	}

	return envPath, nil
}

func extractEmbeddedFile(embeddedPath, targetPath string, backupExisting bool) error {
	if _, err := os.Stat(targetPath); err == nil {
		if !backupExisting {
			return nil
		}

		backupPath := fmt.Sprintf("%s.%s.bak", targetPath, time.Now().Format("2006-01-02"))
		existing, err := os.ReadFile(targetPath)
		if err != nil {
			return fmt.Errorf("failed to read existing file for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, existing, 0600); err != nil {
			return fmt.Errorf("failed to write backup file: %w", err)
		}
		loggy.Info("Created backup of existing file", "original", targetPath, "backup", backupPath)
	}

	data, err := configFS.ReadFile(embeddedPath)
	if err != nil {
		return err
	}

	if err := os.WriteFile(targetPath, data, 0600); err != nil {
		return err
	}

	loggy.Info("Extracted embedded file", "source", embeddedPath, "target", targetPath)
	return nil
}
