package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/reposync/internal/app"
	"github.com/tildaslashalef/reposync/internal/commands"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
	Author     = "unknown"
	Email      = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:  "reposync",
		Usage: "Reconcile locally cached folders and files with a remote folder service",
		Description: "reposync keeps a local cache of folders (repositories) and their files and " +
			"pushes it to the remote service, matching existing remote entries by id and by name " +
			"so nothing is duplicated.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Authors: []*cli.Author{
			{
				Name:  Author,
				Email: Email,
			},
		},
		Before: func(c *cli.Context) error {
			if !commands.NeedsApp(c.Args().First()) {
				return nil
			}

			application, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			// Store the app instance in the context for later use
			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: commands.Commands(),
		// Exit codes are handled below so After still flushes and closes
		ExitErrHandler: func(*cli.Context, error) {},
	}

	if err := cliApp.Run(os.Args); err != nil {
		var coder cli.ExitCoder
		if errors.As(err, &coder) {
			if msg := err.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(coder.ExitCode())
		}
		log.Fatal(err)
	}
}
