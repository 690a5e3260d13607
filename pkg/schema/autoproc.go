package schema

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/pseudomuto/groundskeeper/pkg/utils"
)

// GenerateProcs builds the conventional CRUD procedures for a table, one per
// requested verb. Generated procedure names follow the <Table><Verb>
// convention (BeerInsert, BeerUpdate, ...), schema-qualified like the table.
//
// Identity, computed, and rowversion columns are engine-maintained and are
// excluded from insert and update column lists. The update and delete key is
// the table's identity column when one exists, otherwise its first column.
func GenerateProcs(table *Object, verbs []string) ([]*Object, error) {
	if table.Type != parser.TypeTable {
		return nil, errors.Errorf("cannot generate procedures for %s %s", table.Type, table.Name)
	}
	if len(table.Columns) == 0 {
		return nil, errors.Errorf("table %s has no parseable columns", table.Name)
	}

	g := &procGenerator{table: table}

	objects := make([]*Object, 0, len(verbs))
	for _, verb := range verbs {
		sql, err := g.generate(verb)
		if err != nil {
			return nil, errors.Wrapf(err, "AUTOPROC %s for %s", verb, table.Name)
		}

		obj, err := NewObject(sql)
		if err != nil {
			return nil, errors.Wrapf(err, "generated procedure for %s is unparseable", table.Name)
		}
		objects = append(objects, obj)
	}

	return objects, nil
}

type procGenerator struct {
	table *Object
}

func (g *procGenerator) generate(verb string) (string, error) {
	switch verb {
	case parser.VerbInsert:
		return g.insertProc()
	case parser.VerbUpdate:
		return g.updateProc()
	case parser.VerbDelete:
		return g.deleteProc()
	case parser.VerbSelect:
		return g.selectProc()
	}
	return "", errors.Errorf("unknown verb %s", verb)
}

// procName builds the schema-qualified generated procedure name, preserving
// the authored table casing.
func (g *procGenerator) procName(verb string) string {
	schemaPart := "dbo"
	if idx := strings.IndexByte(g.table.Name, '.'); idx > 0 {
		schemaPart = g.table.Name[:idx]
	}
	return utils.BracketIdentifier(schemaPart) + "." + utils.BracketIdentifier(g.tableBase()+verb)
}

func (g *procGenerator) tableBase() string {
	return utils.ObjectPart(g.table.rawName)
}

func (g *procGenerator) tableRef() string {
	return utils.BracketIdentifier(g.table.Name)
}

// writable returns the columns included in insert/update column lists.
func (g *procGenerator) writable() []parser.Column {
	var cols []parser.Column
	for _, c := range g.table.Columns {
		if c.Identity || c.Computed || c.RowVersion {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// keys returns the key columns used in update/delete WHERE clauses.
func (g *procGenerator) keys() []parser.Column {
	for _, c := range g.table.Columns {
		if c.Identity {
			return []parser.Column{c}
		}
	}
	return g.table.Columns[:1]
}

func paramDecl(c parser.Column) string {
	return "@" + c.Name + " " + c.NormalizedType()
}

func (g *procGenerator) insertProc() (string, error) {
	cols := g.writable()
	if len(cols) == 0 {
		return "", errors.New("table has no insertable columns")
	}

	params := make([]string, 0, len(cols))
	names := make([]string, 0, len(cols))
	values := make([]string, 0, len(cols))
	for _, c := range cols {
		params = append(params, "\t"+paramDecl(c))
		names = append(names, utils.BracketIdentifier(c.Name))
		values = append(values, "@"+c.Name)
	}

	var b strings.Builder
	b.WriteString("CREATE PROC " + g.procName(parser.VerbInsert) + "\n")
	b.WriteString(strings.Join(params, ",\n") + "\n")
	b.WriteString("AS\n")
	b.WriteString("INSERT INTO " + g.tableRef() + " (" + strings.Join(names, ", ") + ")\n")
	b.WriteString("VALUES (" + strings.Join(values, ", ") + ")")
	return b.String(), nil
}

func (g *procGenerator) updateProc() (string, error) {
	keys := g.keys()
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k.CanonicalName()] = true
	}

	var sets []string
	for _, c := range g.writable() {
		if keySet[c.CanonicalName()] {
			continue
		}
		sets = append(sets, utils.BracketIdentifier(c.Name)+" = @"+c.Name)
	}
	if len(sets) == 0 {
		return "", errors.New("table has no updatable columns")
	}

	params := make([]string, 0, len(keys)+len(sets))
	wheres := make([]string, 0, len(keys))
	for _, k := range keys {
		params = append(params, "\t"+paramDecl(k))
		wheres = append(wheres, utils.BracketIdentifier(k.Name)+" = @"+k.Name)
	}
	for _, c := range g.writable() {
		if !keySet[c.CanonicalName()] {
			params = append(params, "\t"+paramDecl(c))
		}
	}

	var b strings.Builder
	b.WriteString("CREATE PROC " + g.procName(parser.VerbUpdate) + "\n")
	b.WriteString(strings.Join(params, ",\n") + "\n")
	b.WriteString("AS\n")
	b.WriteString("UPDATE " + g.tableRef() + "\n")
	b.WriteString("SET " + strings.Join(sets, ", ") + "\n")
	b.WriteString("WHERE " + strings.Join(wheres, " AND "))
	return b.String(), nil
}

func (g *procGenerator) deleteProc() (string, error) {
	keys := g.keys()

	params := make([]string, 0, len(keys))
	wheres := make([]string, 0, len(keys))
	for _, k := range keys {
		params = append(params, "\t"+paramDecl(k))
		wheres = append(wheres, utils.BracketIdentifier(k.Name)+" = @"+k.Name)
	}

	var b strings.Builder
	b.WriteString("CREATE PROC " + g.procName(parser.VerbDelete) + "\n")
	b.WriteString(strings.Join(params, ",\n") + "\n")
	b.WriteString("AS\n")
	b.WriteString("DELETE FROM " + g.tableRef() + "\n")
	b.WriteString("WHERE " + strings.Join(wheres, " AND "))
	return b.String(), nil
}

func (g *procGenerator) selectProc() (string, error) {
	names := make([]string, 0, len(g.table.Columns))
	for _, c := range g.table.Columns {
		names = append(names, utils.BracketIdentifier(c.Name))
	}

	var b strings.Builder
	b.WriteString("CREATE PROC " + g.procName(parser.VerbSelect) + "\n")
	b.WriteString("AS\n")
	b.WriteString("SELECT " + strings.Join(names, ", ") + "\n")
	b.WriteString("FROM " + g.tableRef())
	return b.String(), nil
}
