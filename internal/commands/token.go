package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tildaslashalef/reposync/internal/app"
	"github.com/tildaslashalef/reposync/internal/auth"
	"github.com/tildaslashalef/reposync/internal/utils"
	"github.com/urfave/cli/v2"
)

// TokenCommand returns the CLI command managing the stored access token
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage the access token used for the remote service",
		Description: "The token is looked up in REPOSYNC_REMOTE_TOKEN first, then in the local " +
			"cache, then through OAuth client credentials when configured.",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store a token in the local cache",
				ArgsUsage: "[token]",
				Action:    tokenSetAction,
			},
			{
				Name:  "clear",
				Usage: "Remove the stored token",
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}
					if err := application.Tokens.ClearToken(c.Context); err != nil {
						return fmt.Errorf("clearing token: %w", err)
					}
					utils.PrintSuccess("Stored token removed")
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show which token would be used, masked",
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}

					token, err := auth.Available(c.Context, application.Creds)
					if errors.Is(err, auth.ErrNoToken) {
						utils.PrintWarning("No access token available")
						return nil
					}
					if err != nil {
						return fmt.Errorf("resolving token: %w", err)
					}
					utils.PrintKeyValue("Token", auth.Mask(token))
					return nil
				},
			},
		},
	}
}

func tokenSetAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	token := c.Args().First()
	if token == "" {
		utils.PrintInfo("Paste the access token and press enter:")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	if err := application.Tokens.SetToken(c.Context, token); err != nil {
		return fmt.Errorf("setting token: %w", err)
	}

	utils.PrintSuccess("Token stored " + auth.Mask(token))
	if application.Config.Remote.Token != "" {
		utils.PrintWarning("REPOSYNC_REMOTE_TOKEN is set and takes precedence over the stored token")
	}
	return nil
}
