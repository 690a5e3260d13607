package dbtest_test

import (
	"context"
	"testing"

	. "github.com/pseudomuto/groundskeeper/pkg/db/dbtest"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/stretchr/testify/require"
)

func TestEngineDDL(t *testing.T) {
	ctx := context.Background()
	eng := New()

	require.NoError(t, eng.Exec(ctx, "CREATE TABLE [dbo].[Beer] ([ID] int NOT NULL)"))
	require.True(t, eng.HasObject("dbo.beer", parser.TypeTable))
	require.Len(t, eng.Statements, 1)

	require.NoError(t, eng.Exec(ctx, "DROP TABLE [dbo].[Beer]"))
	require.False(t, eng.HasObject("dbo.beer", parser.TypeTable))
	require.Equal(t, 0, eng.ObjectCount())
}

func TestEngineRegistryRows(t *testing.T) {
	ctx := context.Background()
	eng := New()

	insert := "INSERT INTO [dbo].[groundskeeper_registry] (schema_group, object_name, object_type, signature, order_index) VALUES (@p1, @p2, @p3, @p4, @p5)"
	require.NoError(t, eng.Exec(ctx, insert, "app", "dbo.beerview", "VIEW", "h1:b", 1))
	require.NoError(t, eng.Exec(ctx, insert, "app", "dbo.beer", "TABLE", "h1:a", 0))

	// Registry traffic never counts as DDL.
	require.Empty(t, eng.Statements)

	rows, err := eng.Query(ctx, "SELECT object_name, object_type, signature, order_index FROM [dbo].[groundskeeper_registry] WHERE schema_group = @p1 ORDER BY order_index", "app")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var got [][2]string
	for rows.Next() {
		var name, typ, sig string
		var order int
		require.NoError(t, rows.Scan(&name, &typ, &sig, &order))
		got = append(got, [2]string{name, sig})
		require.Equal(t, len(got)-1, order)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, [][2]string{{"dbo.beer", "h1:a"}, {"dbo.beerview", "h1:b"}}, got)
}

func TestEngineColumnRows(t *testing.T) {
	ctx := context.Background()
	eng := New()

	require.NoError(t, eng.Exec(ctx,
		"CREATE TABLE [dbo].[Beer] (\n\t[ID] int IDENTITY(1,1) NOT NULL,\n\t[Description] varchar(128) NULL,\n\t[ABV] decimal(4,2) NOT NULL\n)"))

	rows, err := eng.Query(ctx, "SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1", "dbo.beer")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	type col struct {
		name, dataType             string
		charMax, numPrec, numScale *int64
		nullable                   string
		identity, computed         int64
	}

	var cols []col
	for rows.Next() {
		var c col
		require.NoError(t, rows.Scan(&c.name, &c.dataType, &c.charMax, &c.numPrec, &c.numScale, &c.nullable, &c.identity, &c.computed))
		cols = append(cols, c)
	}
	require.NoError(t, rows.Err())
	require.Len(t, cols, 3)

	require.Equal(t, "int", cols[0].dataType)
	require.Nil(t, cols[0].charMax)
	require.Equal(t, "NO", cols[0].nullable)
	require.EqualValues(t, 1, cols[0].identity)

	require.Equal(t, "varchar", cols[1].dataType)
	require.NotNil(t, cols[1].charMax)
	require.EqualValues(t, 128, *cols[1].charMax)
	require.Equal(t, "YES", cols[1].nullable)

	require.Equal(t, "decimal", cols[2].dataType)
	require.NotNil(t, cols[2].numPrec)
	require.EqualValues(t, 4, *cols[2].numPrec)
	require.NotNil(t, cols[2].numScale)
	require.EqualValues(t, 2, *cols[2].numScale)
}
