package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/tildaslashalef/reposync/internal/app"
	"github.com/tildaslashalef/reposync/internal/reconcile"
	"github.com/tildaslashalef/reposync/internal/utils"
	"github.com/urfave/cli/v2"
)

func folderFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "folder",
		Aliases:  []string{"f"},
		Usage:    "Local id of the parent folder",
		Required: true,
	}
}

// FileCommand returns the CLI command managing cached files
func FileCommand() *cli.Command {
	return &cli.Command{
		Name:  "file",
		Usage: "Manage files of a cached folder",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a file to a folder; it is pushed with its folder",
				ArgsUsage: "<name>",
				Flags:     append([]cli.Flag{folderFlag()}, attributeFlags(false)...),
				Action:    fileAddAction,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List the files of a folder",
				Flags:   []cli.Flag{folderFlag()},
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}
					folder, err := application.Reconcile.Repository().Folder(c.Context, c.String("folder"))
					if err != nil {
						return err
					}
					files, err := application.Reconcile.Repository().Files(c.Context, folder.LocalID)
					if err != nil {
						return fmt.Errorf("loading cached files: %w", err)
					}
					printEntities("Files of "+folder.DisplayName, files)
					return nil
				},
			},
			{
				Name:      "rm",
				Aliases:   []string{"remove"},
				Usage:     "Remove a file, deleting the remote copy when known",
				ArgsUsage: "<local-id>",
				Flags:     []cli.Flag{folderFlag()},
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one file id")
					}

					removed, err := application.Reconcile.DeleteFile(c.Context, c.String("folder"), c.Args().First())
					if err != nil {
						return fmt.Errorf("removing file: %w", err)
					}
					utils.PrintSuccess("Removed file " + color.CyanString(removed.DisplayName))
					return nil
				},
			},
		},
	}
}

func fileAddAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if name == "" {
		return fmt.Errorf("file name is required")
	}

	repo := application.Reconcile.Repository()
	folder, err := repo.Folder(c.Context, c.String("folder"))
	if err != nil {
		return err
	}

	attrs, err := parseAttributes(c)
	if err != nil {
		return err
	}

	file := reconcile.NewLocalFile(name, attrs)
	if err := repo.UpsertFile(c.Context, folder.LocalID, file); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}

	utils.PrintSuccess(fmt.Sprintf("Added file %s to %s", color.CyanString(file.DisplayName), folder.DisplayName))
	utils.PrintKeyValue("Local ID", file.LocalID)
	printAttributes(file.Attributes)
	return nil
}
