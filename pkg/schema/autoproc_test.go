package schema_test

import (
	"strings"
	"testing"

	"github.com/pseudomuto/groundskeeper/pkg/parser"
	. "github.com/pseudomuto/groundskeeper/pkg/schema"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

func TestGenerateProcs(t *testing.T) {
	table, err := NewObject(`CREATE TABLE [dbo].[Beer](
	[ID] int IDENTITY(1,1) NOT NULL,
	[Description] varchar(128) NOT NULL,
	[ABV] decimal(4,2) NULL
)`)
	require.NoError(t, err)

	procs, err := GenerateProcs(table, []string{
		parser.VerbInsert, parser.VerbUpdate, parser.VerbDelete, parser.VerbSelect,
	})
	require.NoError(t, err)
	require.Len(t, procs, 4)

	sqls := make([]string, 0, len(procs))
	for _, proc := range procs {
		require.Equal(t, parser.TypeProcedure, proc.Type)
		sqls = append(sqls, proc.Sql)
	}
	golden.Assert(t, strings.Join(sqls, "\n\nGO\n\n")+"\n", "autoproc_beer.sql")
}

func TestGenerateProcsKeySelection(t *testing.T) {
	t.Run("identity column is the key", func(t *testing.T) {
		table, err := NewObject("CREATE TABLE Beer(Code varchar(10) NOT NULL, ID int IDENTITY NOT NULL)")
		require.NoError(t, err)

		procs, err := GenerateProcs(table, []string{parser.VerbDelete})
		require.NoError(t, err)
		require.Contains(t, procs[0].Sql, "WHERE [ID] = @ID")
	})

	t.Run("first column when no identity", func(t *testing.T) {
		table, err := NewObject("CREATE TABLE Beer(Code varchar(10) NOT NULL, Description varchar(128) NULL)")
		require.NoError(t, err)

		procs, err := GenerateProcs(table, []string{parser.VerbDelete})
		require.NoError(t, err)
		require.Contains(t, procs[0].Sql, "WHERE [Code] = @Code")
	})
}

func TestGenerateProcsErrors(t *testing.T) {
	t.Run("not a table", func(t *testing.T) {
		view, err := NewObject("CREATE VIEW V AS SELECT 1 AS X")
		require.NoError(t, err)

		_, err = GenerateProcs(view, []string{parser.VerbInsert})
		require.Error(t, err)
	})

	t.Run("no insertable columns", func(t *testing.T) {
		table, err := NewObject("CREATE TABLE Counter(ID int IDENTITY NOT NULL)")
		require.NoError(t, err)

		_, err = GenerateProcs(table, []string{parser.VerbInsert})
		require.Error(t, err)
	})

	t.Run("unknown verb", func(t *testing.T) {
		table, err := NewObject("CREATE TABLE Beer(ID int)")
		require.NoError(t, err)

		_, err = GenerateProcs(table, []string{"Upsert"})
		require.Error(t, err)
	})
}
