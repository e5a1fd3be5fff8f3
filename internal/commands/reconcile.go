package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tildaslashalef/reposync/internal/app"
	"github.com/tildaslashalef/reposync/internal/reconcile"
	"github.com/tildaslashalef/reposync/internal/utils"
	"github.com/urfave/cli/v2"
)

// ReconcileCommand returns the CLI command that pushes the cache to the remote
func ReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:    "reconcile",
		Aliases: []string{"sync"},
		Usage:   "Reconcile cached folders and files with the remote service",
		Description: "Every cached folder is matched against the remote by id, then by name, " +
			"and created or updated as needed. Files follow their folder. A failing entry " +
			"never stops the pass; interrupting stops it before the next folder.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-children",
				Usage: "Skip files, reconcile folders only",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Report drift between cache and remote after the pass",
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Pause between two folders (overrides REPOSYNC_RECONCILE_DELAY)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the pass summary as JSON",
			},
		},
		Action: reconcileAction,
	}
}

func reconcileAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	service := application.Reconcile
	if opts := reconcileOptions(application, c); opts != nil {
		service = application.NewReconciler(*opts)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !c.Bool("json") {
		utils.PrintHeading("Reconciling with " + application.Config.Remote.URL)
	}

	summary, err := service.ReconcileCached(ctx)
	if err != nil {
		if errors.Is(err, reconcile.ErrCredentialUnavailable) {
			utils.PrintError("No access token available. Run 'reposync token set' or set REPOSYNC_REMOTE_TOKEN.")
		}
		return err
	}

	if c.Bool("json") {
		return printJSON(summary)
	}

	if summary.Attempted == 0 && !summary.Cancelled {
		utils.PrintInfo("Nothing to reconcile, the local cache is empty")
		return nil
	}
	printSummary(summary)

	if summary.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d folder(s) failed to reconcile", summary.Failed), 2)
	}
	return nil
}

// reconcileOptions returns the per-invocation options, or nil when the
// flags leave the configured service untouched
func reconcileOptions(application *app.App, c *cli.Context) *reconcile.Options {
	if !c.IsSet("no-children") && !c.IsSet("check") && !c.IsSet("delay") {
		return nil
	}

	opts := app.ReconcileOptions(application.Config)
	if c.Bool("no-children") {
		opts.IncludeChildren = false
	}
	if c.Bool("check") {
		opts.CheckConsistency = true
	}
	if c.IsSet("delay") {
		opts.Delay = c.Duration("delay")
	}
	return &opts
}

// CheckCommand returns the read-only drift report command
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Compare the cached folders with the remote without writing",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the report as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			report, err := application.Reconcile.CheckCached(c.Context)
			if err != nil {
				return fmt.Errorf("checking consistency: %w", err)
			}

			if c.Bool("json") {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printConsistency(report)
			}
			if !report.InSync() {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

// StatusCommand returns the command showing cache state and recent history
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show cached folders and the latest reconciliation results",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of history entries to show",
				Value:   10,
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Show the history of one folder or file",
			},
		},
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	var entries []*reconcile.JournalEntry
	if id := c.String("id"); id != "" {
		entries, err = application.Journal.LogsFor(ctx, id, c.Int("limit"))
	} else {
		folders, ferr := application.Reconcile.Repository().Folders(ctx)
		if ferr != nil {
			return fmt.Errorf("loading cached folders: %w", ferr)
		}
		printEntities("Folders", folders)
		entries, err = application.Journal.RecentLogs(ctx, c.Int("limit"))
	}
	if err != nil {
		return fmt.Errorf("loading reconciliation history: %w", err)
	}

	printJournal(entries)
	return nil
}
