package utils_test

import (
	"testing"

	. "github.com/pseudomuto/groundskeeper/pkg/utils"
	"github.com/stretchr/testify/require"
)

func TestSQLBuilder(t *testing.T) {
	t.Run("drop statement", func(t *testing.T) {
		sql := NewSQLBuilder().Drop("TABLE").Name("dbo.Beer").String()
		require.Equal(t, "DROP TABLE [dbo].[Beer]", sql)
	})

	t.Run("drop index with on clause", func(t *testing.T) {
		sql := NewSQLBuilder().Drop("INDEX").Name("IX_Beer").On("dbo.Beer").String()
		require.Equal(t, "DROP INDEX [IX_Beer] ON [dbo].[Beer]", sql)
	})

	t.Run("alter with raw clauses", func(t *testing.T) {
		sql := NewSQLBuilder().
			Alter("TABLE").
			Name("dbo.Beer").
			Raw("ADD").
			Raw("[Brewery] varchar(64) NULL").
			String()
		require.Equal(t, "ALTER TABLE [dbo].[Beer] ADD [Brewery] varchar(64) NULL", sql)
	})

	t.Run("empty parts are skipped", func(t *testing.T) {
		sql := NewSQLBuilder().Create("VIEW").Name("").Raw("").String()
		require.Equal(t, "CREATE VIEW", sql)
	})
}
