package commands

import (
	"fmt"

	"github.com/tildaslashalef/reposync/internal/database"
	"github.com/tildaslashalef/reposync/internal/utils"
	"github.com/urfave/cli/v2"
)

// MigrateCommand returns the CLI command for database migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Manage cache database migrations",
		Hidden: true,
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					utils.PrintInfo("Applying embedded migrations")

					version, err := database.RunMigrations()
					if err != nil {
						utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
						return fmt.Errorf("failed to apply migrations: %w", err)
					}

					utils.PrintSuccess(fmt.Sprintf("Database schema is at version %d", version))
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "Revert the last migration",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to revert",
						Value: 1,
					},
				},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					utils.PrintWarning(fmt.Sprintf("Reverting %d embedded migration(s)", steps))

					version, err := database.RevertMigrations(steps)
					if err != nil {
						utils.PrintError(fmt.Sprintf("Failed to revert migrations: %s", err))
						return fmt.Errorf("failed to revert migrations: %w", err)
					}

					utils.PrintSuccess(fmt.Sprintf("Migration(s) reverted, schema is at version %d", version))
					return nil
				},
			},
		},
	}
}
