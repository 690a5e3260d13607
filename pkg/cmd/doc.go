// Package cmd provides CLI commands for the groundskeeper tool.
//
// This package implements the command-line interface for groundskeeper,
// providing commands for installing, removing, and inspecting SQL Server
// schema objects managed from a directory of DDL files.
//
// # Available Commands
//
// The cmd package currently provides:
//   - install: Converge a database onto the declared DDL files
//   - uninstall: Remove every installed object of a schema group
//   - status: Show what an install run would change
//
// # Command Structure
//
// Each command is implemented as a separate function that returns a
// *cli.Command, following the urfave/cli/v3 pattern. Commands are assembled
// into the application via the fx module in this package.
//
// # Example Usage
//
//	groundskeeper install --env dev                 # Install from groundskeeper.yaml
//	groundskeeper install --url <url> --dir ./ddl   # Install directly
//	groundskeeper status --env dev --verify          # Report drift
//	groundskeeper uninstall --env dev                # Remove everything installed
package cmd
