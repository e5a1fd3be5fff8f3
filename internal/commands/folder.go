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

func attributeFlags(withType bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "remark",
			Usage: "Free-text remark sent to the remote",
		},
		&cli.StringSliceFlag{
			Name:  "attr",
			Usage: "Extra attribute as key=value, may be repeated",
		},
	}
	if withType {
		flags = append(flags, &cli.StringFlag{
			Name:  "type",
			Usage: "Entity type sent to the remote",
		})
	}
	return flags
}

// FolderCommand returns the CLI command managing cached folders
func FolderCommand() *cli.Command {
	return &cli.Command{
		Name:    "folder",
		Aliases: []string{"repo"},
		Usage:   "Manage folders in the local cache",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a folder to the cache; it is pushed on the next reconcile",
				ArgsUsage: "<name>",
				Flags:     attributeFlags(true),
				Action:    folderAddAction,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List cached folders",
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}
					folders, err := application.Reconcile.Repository().Folders(c.Context)
					if err != nil {
						return fmt.Errorf("loading cached folders: %w", err)
					}
					printEntities("Folders", folders)
					return nil
				},
			},
			{
				Name:      "rm",
				Aliases:   []string{"remove"},
				Usage:     "Remove a folder and its files, deleting the remote copy when known",
				ArgsUsage: "<local-id>",
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one folder id")
					}

					removed, err := application.Reconcile.DeleteFolder(c.Context, c.Args().First())
					if err != nil {
						return fmt.Errorf("removing folder: %w", err)
					}
					utils.PrintSuccess("Removed folder " + color.CyanString(removed.DisplayName))
					return nil
				},
			},
		},
	}
}

func folderAddAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if name == "" {
		return fmt.Errorf("folder name is required")
	}

	attrs, err := parseAttributes(c)
	if err != nil {
		return err
	}

	folder := reconcile.NewLocalFolder(name, attrs)
	if err := application.Reconcile.Repository().UpsertFolder(c.Context, folder); err != nil {
		return fmt.Errorf("saving folder: %w", err)
	}

	utils.PrintSuccess("Added folder " + color.CyanString(folder.DisplayName))
	utils.PrintKeyValue("Local ID", folder.LocalID)
	printAttributes(folder.Attributes)
	return nil
}

// parseAttributes collects --type, --remark and --attr key=value pairs
func parseAttributes(c *cli.Context) (map[string]any, error) {
	attrs := map[string]any{}
	for _, kv := range c.StringSlice("attr") {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", kv)
		}
		attrs[key] = strings.TrimSpace(value)
	}
	if v := c.String("type"); v != "" {
		attrs[reconcile.AttrType] = v
	}
	if v := c.String("remark"); v != "" {
		attrs[reconcile.AttrRemark] = v
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}
