package schema_test

import (
	"testing"

	"github.com/pseudomuto/groundskeeper/pkg/parser"
	. "github.com/pseudomuto/groundskeeper/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestDropStatement(t *testing.T) {
	tests := []struct {
		name     string
		objName  string
		typ      parser.ObjectType
		expected string
	}{
		{"table", "dbo.beer", parser.TypeTable, "DROP TABLE [dbo].[beer]"},
		{"view", "dbo.beerview", parser.TypeView, "DROP VIEW [dbo].[beerview]"},
		{"procedure", "dbo.beerproc", parser.TypeProcedure, "DROP PROCEDURE [dbo].[beerproc]"},
		{"function", "dbo.getbeer", parser.TypeFunction, "DROP FUNCTION [dbo].[getbeer]"},
		{"user type", "dbo.phonenumber", parser.TypeUserType, "DROP TYPE [dbo].[phonenumber]"},
		{"index", "dbo.beer:ix_beer", parser.TypeIndex, "DROP INDEX [ix_beer] ON [dbo].[beer]"},
		{"primary key", "dbo.beer:pk_beer", parser.TypePrimaryKey, "ALTER TABLE [dbo].[beer] DROP CONSTRAINT [pk_beer]"},
		{"foreign key", "dbo.beer:fk_beer", parser.TypeForeignKey, "ALTER TABLE [dbo].[beer] DROP CONSTRAINT [fk_beer]"},
		{"check constraint", "dbo.beer:ck_beer", parser.TypeCheckConstraint, "ALTER TABLE [dbo].[beer] DROP CONSTRAINT [ck_beer]"},
		{"default constraint", "dbo.beer:df_beer", parser.TypeDefaultConstraint, "ALTER TABLE [dbo].[beer] DROP CONSTRAINT [df_beer]"},
		{
			"permission",
			"grant select,insert on dbo.beer to appuser",
			parser.TypePermission,
			"REVOKE SELECT, INSERT ON [dbo].[beer] FROM [appuser]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := DropStatement(tt.objName, tt.typ)
			require.NoError(t, err)
			require.Equal(t, tt.expected, sql)
		})
	}

	t.Run("errors", func(t *testing.T) {
		// Index name without encoded owner.
		_, err := DropStatement("ix_beer", parser.TypeIndex)
		require.Error(t, err)

		// Malformed permission name.
		_, err = DropStatement("not a permission", parser.TypePermission)
		require.Error(t, err)

		// Unknown type.
		_, err = DropStatement("dbo.x", parser.ObjectType("TRIGGER"))
		require.Error(t, err)
	})
}
