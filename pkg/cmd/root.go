package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates and executes the main groundskeeper CLI application with the
// given version and command-line arguments. This function serves as the
// entry point for all CLI operations.
//
// Example usage:
//
//	# Install an environment's schema
//	groundskeeper install --env dev
//
//	# Compare declared DDL with the installed state
//	groundskeeper status --env dev --verify
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := &cli.Command{
		Name:  "groundskeeper",
		Usage: "A tool for installing SQL Server schema objects",
		Description: `groundskeeper is a CLI tool that keeps a SQL Server database in sync
with a directory of DDL files. It tracks what it installed, computes the
minimal set of changes on each run, and sequences them so that every object
is created after the objects it depends on.`,
		Version:  p.Version.Version,
		Commands: p.Commands,
	}

	p.Lifecycle.Append(fx.StartHook(func() {
		if err := app.Run(p.Ctx, p.Args); err != nil {
			slog.Error("Error running command", "err", err)
			_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
		}

		_ = p.Shutdowner.Shutdown(fx.ExitCode(0))
	}))
}
