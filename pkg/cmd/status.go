package cmd

import (
	"context"
	"fmt"

	"github.com/pseudomuto/groundskeeper/pkg/config"
	"github.com/pseudomuto/groundskeeper/pkg/db"
	"github.com/pseudomuto/groundskeeper/pkg/registry"
	"github.com/pseudomuto/groundskeeper/pkg/schema"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type statusParams struct {
	fx.In

	Config *config.Config
}

// status creates the status command for comparing the declared DDL files
// against what is currently installed.
//
// The command shows, per object, whether it is up to date, changed, pending
// installation, or installed but no longer declared. With --verify each
// installed object is additionally checked for physical existence in the
// database, catching drift introduced outside groundskeeper.
//
// Example usage:
//
//	groundskeeper status --env dev
//	groundskeeper status --env dev --verify
func status(p statusParams) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show installation status",
		Description: `Compare the declared DDL files with the installed state of the schema
group and report what an install run would change.`,
		Flags: []cli.Flag{
			urlFlag, envFlag, groupFlag, dirFlag,
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "Check that installed objects physically exist in the database",
				Value: false,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runStatus(ctx, cmd, p)
		},
	}
}

func runStatus(ctx context.Context, cmd *cli.Command, p statusParams) error {
	env, err := resolveTarget(cmd, p.Config)
	if err != nil {
		return err
	}
	verify := cmd.Bool("verify")

	statements, err := loadStatements(env.Dir)
	if err != nil {
		return err
	}

	col, err := schema.NewCollection(statements)
	if err != nil {
		return err
	}
	desired, err := col.Expand()
	if err != nil {
		return err
	}

	return withConnection(ctx, env, func(conn db.Conn) error {
		entries, err := registry.New(conn, env.Group).Load(ctx)
		if err != nil {
			return err
		}
		return printStatus(ctx, conn, desired, entries, env.Group, verify)
	})
}

func printStatus(ctx context.Context, conn db.Conn, desired *schema.Collection, entries []*registry.Entry, group string, verify bool) error {
	byKey := make(map[string]*registry.Entry, len(entries))
	for _, e := range entries {
		byKey[e.Name+"|"+string(e.Type)] = e
	}

	fmt.Printf("Schema group: %s\n", group)
	fmt.Printf("Declared objects: %d, installed objects: %d\n", desired.Len(), len(entries))
	fmt.Println()

	var current, changed, pending, orphaned int
	declared := make(map[string]bool, desired.Len())

	for _, obj := range desired.Objects() {
		declared[obj.Key()] = true

		entry, installed := byKey[obj.Key()]
		switch {
		case !installed:
			fmt.Printf("  ▶  %s %s (pending)\n", obj.Type, obj.Name)
			pending++
		case entry.Signature != obj.Signature:
			fmt.Printf("  ⚠️  %s %s (changed)\n", obj.Type, obj.Name)
			changed++
		default:
			current++
			if !verify {
				continue
			}
			exists, err := obj.Verify(ctx, conn)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Printf("  ❌ %s %s (registered but missing from database)\n", obj.Type, obj.Name)
			}
		}
	}

	for _, e := range entries {
		if !declared[e.Name+"|"+string(e.Type)] {
			fmt.Printf("  🗑  %s %s (would be removed)\n", e.Type, e.Name)
			orphaned++
		}
	}

	fmt.Println()
	fmt.Printf("Summary: %d current, %d changed, %d pending, %d to remove\n",
		current, changed, pending, orphaned)

	if changed+pending+orphaned == 0 {
		fmt.Println("✅ Everything is up to date")
	} else {
		fmt.Println("💡 Run 'groundskeeper install' to apply these changes")
	}
	return nil
}
