package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/groundskeeper/pkg/config"
	"github.com/pseudomuto/groundskeeper/pkg/consts"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestSplitBatches(t *testing.T) {
	t.Run("splits on GO lines", func(t *testing.T) {
		script := "CREATE TABLE [dbo].[Beer] (\n\t[ID] int NOT NULL\n)\nGO\nCREATE VIEW [dbo].[BeerView] AS SELECT * FROM [dbo].[Beer]\ngo\nGRANT SELECT ON [dbo].[BeerView] TO [appuser]\n"

		batches := splitBatches(script)
		require.Len(t, batches, 3)
		require.Equal(t, "CREATE TABLE [dbo].[Beer] (\n\t[ID] int NOT NULL\n)", batches[0])
		require.Equal(t, "CREATE VIEW [dbo].[BeerView] AS SELECT * FROM [dbo].[Beer]", batches[1])
		require.Equal(t, "GRANT SELECT ON [dbo].[BeerView] TO [appuser]", batches[2])
	})

	t.Run("no separator yields single batch", func(t *testing.T) {
		batches := splitBatches("CREATE TABLE [dbo].[Beer] ([ID] int)")
		require.Len(t, batches, 1)
	})

	t.Run("empty batches are dropped", func(t *testing.T) {
		batches := splitBatches("GO\n\nGO\nCREATE TABLE [dbo].[Beer] ([ID] int)\nGO\nGO\n")
		require.Len(t, batches, 1)
		require.Equal(t, "CREATE TABLE [dbo].[Beer] ([ID] int)", batches[0])
	})

	t.Run("GO inside a statement is not a separator", func(t *testing.T) {
		batches := splitBatches("CREATE TABLE [dbo].[Cargo] ([GO] int) -- GO\n")
		require.Len(t, batches, 1)
	})
}

func TestLoadStatements(t *testing.T) {
	t.Run("reads sql files in filename order", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "02_views.sql"), []byte("CREATE VIEW [dbo].[V] AS SELECT 1 AS [N]\n"), consts.ModeFile))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "01_tables.sql"), []byte("CREATE TABLE [dbo].[A] ([ID] int)\nGO\nCREATE TABLE [dbo].[B] ([ID] int)\n"), consts.ModeFile))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), consts.ModeFile))

		statements, err := loadStatements(dir)
		require.NoError(t, err)
		require.Equal(t, []string{
			"CREATE TABLE [dbo].[A] ([ID] int)",
			"CREATE TABLE [dbo].[B] ([ID] int)",
			"CREATE VIEW [dbo].[V] AS SELECT 1 AS [N]",
		}, statements)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := loadStatements(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to read DDL directory")
	})
}

func TestResolveTarget(t *testing.T) {
	cfg := &config.Config{
		Environments: []config.Environment{
			{Name: "dev", URL: "sqlserver://localhost", Group: "app", Dir: "db/ddl"},
		},
	}

	run := func(t *testing.T, cfg *config.Config, args ...string) (*config.Environment, error) {
		t.Helper()

		var (
			env *config.Environment
			err error
		)
		app := &cli.Command{
			Name:  "test",
			Flags: []cli.Flag{urlFlag, envFlag, groupFlag, dirFlag},
			Action: func(_ context.Context, cmd *cli.Command) error {
				env, err = resolveTarget(cmd, cfg)
				return nil
			},
		}
		require.NoError(t, app.Run(context.Background(), append([]string{"test"}, args...)))
		return env, err
	}

	t.Run("env flag selects from config", func(t *testing.T) {
		env, err := run(t, cfg, "--env", "dev")
		require.NoError(t, err)
		require.Equal(t, "sqlserver://localhost", env.URL)
		require.Equal(t, "app", env.Group)
		require.Equal(t, "db/ddl", env.Dir)
	})

	t.Run("env flag without config", func(t *testing.T) {
		_, err := run(t, nil, "--env", "dev")
		require.Error(t, err)
		require.Contains(t, err.Error(), "groundskeeper.yaml not found")
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := run(t, cfg, "--env", "staging")
		require.Error(t, err)
		require.Contains(t, err.Error(), "no such environment")
	})

	t.Run("url flag builds ad hoc environment", func(t *testing.T) {
		env, err := run(t, cfg, "--url", "sqlserver://sa@db:1433", "--group", "reports")
		require.NoError(t, err)
		require.Equal(t, "sqlserver://sa@db:1433", env.URL)
		require.Equal(t, "reports", env.Group)
		require.Equal(t, "ddl", env.Dir)
	})

	t.Run("neither flag", func(t *testing.T) {
		_, err := run(t, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "either --env or --url is required")
	})
}

func TestCommandStructure(t *testing.T) {
	t.Run("install", func(t *testing.T) {
		command := install(installParams{})
		require.Equal(t, "install", command.Name)
		require.Len(t, command.Flags, 4)
		require.NotNil(t, command.Action)
	})

	t.Run("uninstall", func(t *testing.T) {
		command := uninstall(uninstallParams{})
		require.Equal(t, "uninstall", command.Name)
		require.NotNil(t, command.Action)
	})

	t.Run("status", func(t *testing.T) {
		command := status(statusParams{})
		require.Equal(t, "status", command.Name)
		require.NotNil(t, command.Action)
	})
}
