package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/tildaslashalef/reposync/internal/config"
	"github.com/tildaslashalef/reposync/internal/database"
	"github.com/tildaslashalef/reposync/internal/utils"
	"github.com/urfave/cli/v2"
)

// InitCommand returns the CLI command for initializing reposync
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the reposync environment",
		Description: "Creates the configuration directory with a sample .env file and " +
			"applies the cache database migrations. Safe to run again after an upgrade.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Configuration directory (default: ~/.reposync)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Replace an existing .env with the sample, keeping a dated backup",
			},
		},
		Action: initAction,
	}
}

func initAction(c *cli.Context) error {
	utils.PrintHeading("Initializing reposync")

	configDir := c.String("dir")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			utils.PrintError(fmt.Sprintf("Failed to get user home directory: %s", err))
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".reposync")
	}
	utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

	configFilePath, err := config.SetupConfigDirectory(configDir, c.Bool("force"))
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to set up configuration files: %s", err))
		return fmt.Errorf("failed to set up configuration directory: %w", err)
	}

	cfg, err := config.LoadFromEnv(configDir, configFilePath)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to load configuration: %s", err))
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	utils.PrintInfo("Initializing database...")
	if err := database.InitDB(cfg); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to initialize database: %s", err))
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.CloseDB()

	utils.PrintInfo("Applying database migrations...")
	version, err := database.RunMigrations()
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	utils.PrintSuccess("reposync initialized successfully")
	utils.PrintInfo(fmt.Sprintf("Schema version: %d", version))
	utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
	utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
	utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
	utils.PrintInfo("Set " + color.CyanString("REPOSYNC_REMOTE_URL") + " and run " + color.CyanString("reposync token set") + " to get started.")

	return nil
}
