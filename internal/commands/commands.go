// Package commands implements the reposync CLI commands
package commands

import "github.com/urfave/cli/v2"

// Commands returns every top-level command
func Commands() []*cli.Command {
	return []*cli.Command{
		InitCommand(),
		ReconcileCommand(),
		CheckCommand(),
		StatusCommand(),
		FolderCommand(),
		FileCommand(),
		TokenCommand(),
		MigrateCommand(),
	}
}

// NeedsApp reports whether the named command requires the wired application
func NeedsApp(name string) bool {
	switch name {
	case "", "init", "help", "h":
		return false
	}
	return true
}
