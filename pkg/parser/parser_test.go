package parser_test

import (
	"testing"

	. "github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		typ     ObjectType
		objName string
	}{
		{
			"create table",
			"CREATE TABLE Beer(ID int IDENTITY, Description varchar(128) NOT NULL)",
			TypeTable, "dbo.beer",
		},
		{
			"create table qualified and bracketed",
			"CREATE TABLE [Sales].[Orders](ID int)",
			TypeTable, "sales.orders",
		},
		{
			"create view",
			"CREATE VIEW BeerView AS SELECT * FROM Beer",
			TypeView, "dbo.beerview",
		},
		{
			"create or alter view",
			"CREATE OR ALTER VIEW BeerView AS SELECT * FROM Beer",
			TypeView, "dbo.beerview",
		},
		{
			"create proc",
			"CREATE PROC BeerProc AS SELECT * FROM Beer",
			TypeProcedure, "dbo.beerproc",
		},
		{
			"create procedure",
			"CREATE PROCEDURE [dbo].[BeerProc] AS SELECT 1",
			TypeProcedure, "dbo.beerproc",
		},
		{
			"create function",
			"CREATE FUNCTION GetBeer(@id int) RETURNS int AS BEGIN RETURN @id END",
			TypeFunction, "dbo.getbeer",
		},
		{
			"create type",
			"CREATE TYPE PhoneNumber FROM varchar(20) NOT NULL",
			TypeUserType, "dbo.phonenumber",
		},
		{
			"create index",
			"CREATE NONCLUSTERED INDEX IX_Beer_Description ON dbo.Beer(Description)",
			TypeIndex, "dbo.beer:ix_beer_description",
		},
		{
			"create unique clustered index",
			"CREATE UNIQUE CLUSTERED INDEX IX_BeerView ON [dbo].[BeerView](ID)",
			TypeIndex, "dbo.beerview:ix_beerview",
		},
		{
			"add primary key",
			"ALTER TABLE Beer ADD CONSTRAINT PK_Beer PRIMARY KEY (ID)",
			TypePrimaryKey, "dbo.beer:pk_beer",
		},
		{
			"add foreign key with check",
			"ALTER TABLE [dbo].[Beer] WITH CHECK ADD CONSTRAINT [FK_Beer_Brewery] FOREIGN KEY (BreweryID) REFERENCES dbo.Brewery(ID)",
			TypeForeignKey, "dbo.beer:fk_beer_brewery",
		},
		{
			"add check constraint",
			"ALTER TABLE Beer ADD CONSTRAINT CK_Beer_ABV CHECK (ABV >= 0)",
			TypeCheckConstraint, "dbo.beer:ck_beer_abv",
		},
		{
			"add default constraint",
			"ALTER TABLE Beer ADD CONSTRAINT DF_Beer_Active DEFAULT (1) FOR Active",
			TypeDefaultConstraint, "dbo.beer:df_beer_active",
		},
		{
			"grant execute",
			"GRANT EXECUTE ON [dbo].[BeerProc] TO [AppUser]",
			TypePermission, "grant execute on dbo.beerproc to appuser",
		},
		{
			"grant multiple privileges",
			"GRANT SELECT, INSERT ON dbo.Beer TO AppUser",
			TypePermission, "grant select,insert on dbo.beer to appuser",
		},
		{
			"deny",
			"DENY DELETE ON dbo.Beer TO AppUser",
			TypePermission, "deny delete on dbo.beer to appuser",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.sql)
			require.NoError(t, err)
			require.Equal(t, tt.typ, res.Type)
			require.Equal(t, tt.objName, res.Name)
			require.False(t, res.DirectiveOnly)
		})
	}
}

func TestParseDependencies(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		deps []string
	}{
		{
			"view from table",
			"CREATE VIEW BeerView AS SELECT ID, Description FROM Beer",
			[]string{"dbo.beer"},
		},
		{
			"join introduces dependency",
			"CREATE VIEW V AS SELECT b.ID FROM Beer b JOIN Brewery br ON b.BreweryID = br.ID",
			[]string{"dbo.beer", "dbo.brewery"},
		},
		{
			"comma separated from list",
			"CREATE VIEW V AS SELECT 1 AS X FROM Beer, Brewery WHERE Beer.BreweryID = Brewery.ID",
			[]string{"dbo.beer", "dbo.brewery"},
		},
		{
			"proc exec dependency",
			"CREATE PROC Outer AS EXEC dbo.Inner",
			[]string{"dbo.inner"},
		},
		{
			"foreign key references",
			"ALTER TABLE Beer ADD CONSTRAINT FK_Beer FOREIGN KEY (BreweryID) REFERENCES Brewery(ID)",
			[]string{"dbo.beer", "dbo.brewery"},
		},
		{
			"index depends on table",
			"CREATE INDEX IX_Beer ON Beer(ID)",
			[]string{"dbo.beer"},
		},
		{
			"permission depends on target",
			"GRANT EXECUTE ON BeerProc TO AppUser",
			[]string{"dbo.beerproc"},
		},
		{
			"privilege keywords are not references",
			"GRANT SELECT, UPDATE ON [dbo].[Beer] TO [AppUser]",
			[]string{"dbo.beer"},
		},
		{
			"revoke principal is not a reference",
			"REVOKE SELECT ON [dbo].[Beer] FROM [AppUser]",
			[]string{"dbo.beer"},
		},
		{
			"keywords inside comments are ignored",
			"CREATE VIEW V AS SELECT 1 AS X -- FROM Phantom",
			nil,
		},
		{
			"keywords inside strings are ignored",
			"CREATE PROC P AS SELECT 'FROM Phantom' AS X",
			nil,
		},
		{
			"variables are not dependencies",
			"CREATE PROC P AS DELETE FROM @tmp",
			nil,
		},
		{
			"self reference is dropped",
			"CREATE PROC Recurse AS EXEC dbo.Recurse",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.sql)
			require.NoError(t, err)
			require.Equal(t, tt.deps, res.Dependencies)
		})
	}
}

func TestParseTableColumns(t *testing.T) {
	res, err := Parse(`CREATE TABLE dbo.Beer(
		ID int IDENTITY(1,1) NOT NULL,
		Description varchar(128) NOT NULL,
		ABV decimal(4,2) NULL,
		Added datetime NOT NULL DEFAULT getdate(),
		Version rowversion,
		Summary AS (Description + '!'),
		Phone dbo.PhoneNumber,
		CONSTRAINT PK_Beer PRIMARY KEY (ID)
	)`)
	require.NoError(t, err)
	require.Equal(t, TypeTable, res.Type)
	require.Len(t, res.Columns, 7)

	id := res.Columns[0]
	require.Equal(t, "ID", id.Name)
	require.True(t, id.Identity)
	require.False(t, id.Nullable)
	require.Equal(t, "int", id.NormalizedType())

	require.Equal(t, "varchar(128)", res.Columns[1].NormalizedType())
	require.Equal(t, "decimal(4,2)", res.Columns[2].NormalizedType())
	require.True(t, res.Columns[2].Nullable)

	added := res.Columns[3]
	require.True(t, added.HasDefault)
	require.Equal(t, "getdate()", added.DefaultExpr)

	require.True(t, res.Columns[4].RowVersion)
	require.True(t, res.Columns[5].Computed)

	phone := res.Columns[6]
	require.Equal(t, "dbo.phonenumber", phone.UserType)
	require.Contains(t, res.Dependencies, "dbo.phonenumber")
}

func TestParseMarkers(t *testing.T) {
	t.Run("autoproc on table", func(t *testing.T) {
		res, err := Parse("-- AUTOPROC All\nCREATE TABLE Beer(ID int)")
		require.NoError(t, err)
		require.NotNil(t, res.Markers.AutoProc)
		require.Equal(t, []string{VerbInsert, VerbUpdate, VerbDelete, VerbSelect}, res.Markers.AutoProc.Verbs)
		require.Empty(t, res.Markers.AutoProc.Table)
		require.False(t, res.DirectiveOnly)
	})

	t.Run("standalone autoproc", func(t *testing.T) {
		res, err := Parse("-- AUTOPROC Insert,Delete [dbo].[Beer]")
		require.NoError(t, err)
		require.True(t, res.DirectiveOnly)
		require.Equal(t, []string{VerbInsert, VerbDelete}, res.Markers.AutoProc.Verbs)
		require.Equal(t, "dbo.beer", res.Markers.AutoProc.Table)
	})

	t.Run("standalone autoproc must name a table", func(t *testing.T) {
		_, err := Parse("-- AUTOPROC All")
		require.Error(t, err)
	})

	t.Run("unknown verb", func(t *testing.T) {
		_, err := Parse("-- AUTOPROC Upsert\nCREATE TABLE Beer(ID int)")
		require.Error(t, err)
	})

	t.Run("indexedview", func(t *testing.T) {
		res, err := Parse("-- INDEXEDVIEW\nCREATE VIEW V WITH SCHEMABINDING AS SELECT ID FROM dbo.Beer")
		require.NoError(t, err)
		require.True(t, res.Markers.IndexedView)
		require.Equal(t, TypeView, res.Type)
	})

	t.Run("verbs deduplicated", func(t *testing.T) {
		res, err := Parse("-- AUTOPROC Insert, Insert, All\nCREATE TABLE Beer(ID int)")
		require.NoError(t, err)
		require.Equal(t, []string{VerbInsert, VerbUpdate, VerbDelete, VerbSelect}, res.Markers.AutoProc.Verbs)
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"empty statement", "   "},
		{"comment only", "-- just a comment"},
		{"unclassifiable", "SELECT 1"},
		{"alter of non table", "ALTER VIEW V AS SELECT 1"},
		{"index without on clause", "CREATE INDEX IX_Orphan"},
		{"grant without principal", "GRANT SELECT ON dbo.Beer"},
		{"table without column list", "CREATE TABLE Beer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.sql)
			require.Error(t, err)
		})
	}
}

func TestParseColumnDefinitionString(t *testing.T) {
	col, err := ParseColumnDefinitionString("[Brewery] varchar(64) NULL")
	require.NoError(t, err)
	require.Equal(t, "Brewery", col.Name)
	require.Equal(t, "varchar(64)", col.NormalizedType())
	require.True(t, col.Nullable)

	col, err = ParseColumnDefinitionString("[Added] datetime NOT NULL DEFAULT getdate()")
	require.NoError(t, err)
	require.False(t, col.Nullable)
	require.Equal(t, "getdate()", col.DefaultExpr)

	_, err = ParseColumnDefinitionString("")
	require.Error(t, err)
}
