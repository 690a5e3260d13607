// Package dbtest provides an in-memory db.Conn for exercising the registry
// and installer without a SQL Server instance.
//
// The engine understands exactly the SQL groundskeeper emits: registry CRUD,
// catalog lookups, and the DDL shapes produced by the parser's own statement
// builders. Executed DDL statements are recorded in order so tests can
// assert on what ran (or that nothing did).
//
// Example usage:
//
//	eng := dbtest.New()
//	inst := installer.New(eng)
//	require.NoError(t, inst.InstallStatements(ctx, "app", ddl))
//	require.True(t, eng.HasObject("dbo.beer", parser.TypeTable))
package dbtest

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/consts"
	"github.com/pseudomuto/groundskeeper/pkg/db"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/pseudomuto/groundskeeper/pkg/utils"
)

type (
	// Engine is an in-memory database double implementing db.Conn.
	Engine struct {
		// Statements records every executed DDL statement in order.
		// Registry reads and writes are not included.
		Statements []string

		objects  map[string]*object
		tables   map[string][]parser.Column
		registry []*regRow
	}

	object struct {
		name  string
		typ   parser.ObjectType
		grant *parser.GrantInfo
	}

	regRow struct {
		group, name, typ, signature string
		orderIndex                  int
	}
)

var _ db.Conn = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		objects: make(map[string]*object),
		tables:  make(map[string][]parser.Column),
	}
}

// HasObject reports whether the object currently exists in the engine.
func (e *Engine) HasObject(name string, typ parser.ObjectType) bool {
	return e.objects[objectKey(name, typ)] != nil
}

// ObjectCount returns the number of live schema objects.
func (e *Engine) ObjectCount() int {
	return len(e.objects)
}

// Columns returns the current column set of a table, nil when the table
// does not exist.
func (e *Engine) Columns(table string) []parser.Column {
	return e.tables[utils.CanonicalName(table)]
}

// RegistryEntries returns the (name, type, signature, order) rows stored for
// a group in install order.
func (e *Engine) RegistryEntries(group string) [][4]string {
	rows := e.groupRows(group)
	out := make([][4]string, len(rows))
	for i, r := range rows {
		out[i] = [4]string{r.name, r.typ, r.signature, strconv.Itoa(r.orderIndex)}
	}
	return out
}

// Exec applies a statement to the in-memory state.
func (e *Engine) Exec(_ context.Context, query string, args ...any) error {
	stmt := strings.TrimSpace(query)
	if strings.Contains(stmt, consts.RegistryTable) {
		return e.execRegistry(stmt, args)
	}

	e.Statements = append(e.Statements, stmt)
	return e.applyDDL(stmt)
}

// Query answers the catalog and registry queries groundskeeper issues.
func (e *Engine) Query(_ context.Context, query string, args ...any) (db.Rows, error) {
	switch {
	case strings.Contains(query, consts.RegistryTable):
		return e.queryRegistry(query, args)
	case strings.Contains(query, "INFORMATION_SCHEMA.COLUMNS"):
		return e.queryColumns(args)
	default:
		return e.queryCatalog(query, args)
	}
}

func (e *Engine) execRegistry(stmt string, args []any) error {
	upper := strings.ToUpper(stmt)
	switch {
	case strings.HasPrefix(upper, "IF OBJECT_ID"):
		return nil

	case strings.HasPrefix(upper, "INSERT"):
		row := &regRow{
			group:      args[0].(string),
			name:       args[1].(string),
			typ:        args[2].(string),
			signature:  args[3].(string),
			orderIndex: toInt(args[4]),
		}
		if e.findRow(row.group, row.name, row.typ) != nil {
			return errors.Errorf("duplicate registry entry %s %s", row.typ, row.name)
		}
		e.registry = append(e.registry, row)
		return nil

	case strings.HasPrefix(upper, "UPDATE"):
		row := e.findRow(args[2].(string), args[3].(string), args[4].(string))
		if row == nil {
			return errors.Errorf("no registry entry for %s %s", args[4], args[3])
		}
		row.signature = args[0].(string)
		row.orderIndex = toInt(args[1])
		return nil

	case strings.HasPrefix(upper, "DELETE"):
		if len(args) == 1 {
			e.registry = e.filterRows(func(r *regRow) bool { return r.group != args[0].(string) })
			return nil
		}
		e.registry = e.filterRows(func(r *regRow) bool {
			return r.group != args[0].(string) || r.name != args[1].(string) || r.typ != args[2].(string)
		})
		return nil
	}
	return errors.Errorf("unrecognized registry statement: %s", stmt)
}

func (e *Engine) queryRegistry(query string, args []any) (db.Rows, error) {
	if strings.Contains(query, "ORDER BY order_index") {
		rows := e.groupRows(args[0].(string))
		out := make([][]any, len(rows))
		for i, r := range rows {
			out[i] = []any{r.name, r.typ, r.signature, r.orderIndex}
		}
		return &sliceRows{rows: out}, nil
	}

	// Identity + signature lookup.
	row := e.findRow(args[0].(string), args[1].(string), args[2].(string))
	if row != nil && row.signature == args[3].(string) {
		return oneRow(), nil
	}
	return noRows(), nil
}

func (e *Engine) queryColumns(args []any) (db.Rows, error) {
	cols := e.tables[utils.CanonicalName(args[0].(string))]

	out := make([][]any, 0, len(cols))
	for i := range cols {
		out = append(out, catalogColumnRow(&cols[i]))
	}
	return &sliceRows{rows: out}, nil
}

// queryCatalog answers object existence probes against sys.* views.
func (e *Engine) queryCatalog(query string, args []any) (db.Rows, error) {
	exists := func(name string, typ parser.ObjectType) (db.Rows, error) {
		if e.HasObject(name, typ) {
			return oneRow(), nil
		}
		return noRows(), nil
	}

	switch {
	case strings.Contains(query, "sys.tables"):
		return exists(args[0].(string), parser.TypeTable)
	case strings.Contains(query, "sys.views"):
		return exists(args[0].(string), parser.TypeView)
	case strings.Contains(query, "sys.procedures"):
		return exists(args[0].(string), parser.TypeProcedure)
	case strings.Contains(query, "'FN','IF','TF'"):
		return exists(args[0].(string), parser.TypeFunction)

	case strings.Contains(query, "'PK','F','C','D'"):
		suffix := ":" + strings.ToLower(args[0].(string))
		for _, obj := range e.objects {
			if isConstraintType(obj.typ) && strings.HasSuffix(obj.name, suffix) {
				return oneRow(), nil
			}
		}
		return noRows(), nil

	case strings.Contains(query, "sys.indexes"):
		name := args[1].(string) + ":" + strings.ToLower(args[0].(string))
		return exists(name, parser.TypeIndex)

	case strings.Contains(query, "sys.types"):
		part := strings.ToLower(args[0].(string))
		for _, obj := range e.objects {
			if obj.typ == parser.TypeUserType && utils.ObjectPart(obj.name) == part {
				return oneRow(), nil
			}
		}
		return noRows(), nil

	case strings.Contains(query, "sys.database_permissions"):
		on, principal := args[0].(string), strings.ToLower(args[1].(string))
		for _, obj := range e.objects {
			if obj.grant != nil && obj.grant.On == on && obj.grant.Principal == principal {
				return oneRow(), nil
			}
		}
		return noRows(), nil
	}
	return nil, errors.Errorf("unrecognized query: %s", query)
}

// applyDDL mutates the schema state for one DDL statement.
func (e *Engine) applyDDL(stmt string) error {
	fields := strings.Fields(stmt)
	if len(fields) < 2 {
		return errors.Errorf("unrecognized statement: %s", stmt)
	}

	head := strings.ToUpper(fields[0]) + " " + strings.ToUpper(fields[1])
	switch head {
	case "DROP TABLE":
		name := utils.CanonicalName(fields[2])
		delete(e.tables, name)
		return e.removeObject(name, parser.TypeTable)
	case "DROP VIEW":
		return e.removeObject(utils.CanonicalName(fields[2]), parser.TypeView)
	case "DROP PROCEDURE", "DROP PROC":
		return e.removeObject(utils.CanonicalName(fields[2]), parser.TypeProcedure)
	case "DROP FUNCTION":
		return e.removeObject(utils.CanonicalName(fields[2]), parser.TypeFunction)
	case "DROP TYPE":
		return e.removeObject(utils.CanonicalName(fields[2]), parser.TypeUserType)
	case "DROP INDEX":
		// DROP INDEX [name] ON [table]
		name := utils.CanonicalName(fields[4]) + ":" + strings.ToLower(utils.StripDelimiters(fields[2]))
		return e.removeObject(name, parser.TypeIndex)
	case "ALTER TABLE":
		return e.applyAlterTable(stmt, fields)
	}

	if strings.EqualFold(fields[0], "REVOKE") {
		return e.applyRevoke(fields)
	}

	res, err := parser.Parse(stmt)
	if err != nil {
		return err
	}
	if res.DirectiveOnly {
		return nil
	}
	return e.addResult(res)
}

func (e *Engine) applyAlterTable(stmt string, fields []string) error {
	table := utils.CanonicalName(fields[2])
	upper := strings.ToUpper(stmt)

	switch {
	case strings.Contains(upper, " DROP CONSTRAINT"):
		name := table + ":" + strings.ToLower(utils.StripDelimiters(fields[5]))
		for _, typ := range constraintTypes {
			if e.objects[objectKey(name, typ)] != nil {
				return e.removeObject(name, typ)
			}
		}
		return errors.Errorf("no such constraint: %s", name)

	case strings.Contains(upper, " DROP COLUMN"):
		name := strings.ToLower(utils.StripDelimiters(fields[5]))
		return e.mutateColumns(table, func(cols []parser.Column) ([]parser.Column, error) {
			for i := range cols {
				if cols[i].CanonicalName() == name {
					return append(cols[:i], cols[i+1:]...), nil
				}
			}
			return nil, errors.Errorf("no column %s on %s", name, table)
		})

	case strings.Contains(upper, " ALTER COLUMN"):
		col, err := parser.ParseColumnDefinitionString(stmt[strings.Index(upper, " ALTER COLUMN")+len(" ALTER COLUMN"):])
		if err != nil {
			return err
		}
		return e.mutateColumns(table, func(cols []parser.Column) ([]parser.Column, error) {
			for i := range cols {
				if cols[i].CanonicalName() == col.CanonicalName() {
					cols[i] = *col
					return cols, nil
				}
			}
			return nil, errors.Errorf("no column %s on %s", col.Name, table)
		})

	case strings.Contains(upper, " ADD CONSTRAINT"), strings.Contains(upper, " WITH CHECK"), strings.Contains(upper, " WITH NOCHECK"):
		res, err := parser.Parse(stmt)
		if err != nil {
			return err
		}
		return e.addResult(res)

	case strings.Contains(upper, " ADD "):
		col, err := parser.ParseColumnDefinitionString(stmt[strings.Index(upper, " ADD ")+len(" ADD "):])
		if err != nil {
			return err
		}
		return e.mutateColumns(table, func(cols []parser.Column) ([]parser.Column, error) {
			return append(cols, *col), nil
		})
	}
	return errors.Errorf("unrecognized ALTER TABLE statement: %s", stmt)
}

// applyRevoke removes the permission object matching a reconstructed
// REVOKE <privs> ON [obj] FROM [principal] statement.
func (e *Engine) applyRevoke(fields []string) error {
	onIdx, fromIdx := -1, -1
	for i, f := range fields {
		switch strings.ToUpper(f) {
		case "ON":
			onIdx = i
		case "FROM":
			fromIdx = i
		}
	}
	if onIdx < 0 || fromIdx < 0 || fromIdx != len(fields)-2 {
		return errors.Errorf("unrecognized REVOKE statement: %s", strings.Join(fields, " "))
	}

	privs := strings.ToLower(strings.ReplaceAll(strings.Join(fields[1:onIdx], ""), " ", ""))
	on := utils.CanonicalName(fields[onIdx+1])
	principal := strings.ToLower(utils.StripDelimiters(fields[fromIdx+1]))

	for key, obj := range e.objects {
		if obj.grant == nil || obj.grant.On != on || obj.grant.Principal != principal {
			continue
		}
		if strings.Join(obj.grant.Privileges, ",") == privs {
			delete(e.objects, key)
			return nil
		}
	}
	return errors.Errorf("no such permission: %s on %s to %s", privs, on, principal)
}

func (e *Engine) addResult(res *parser.Result) error {
	key := objectKey(res.Name, res.Type)
	if e.objects[key] != nil {
		return errors.Errorf("object already exists: %s %s", res.Type, res.Name)
	}
	e.objects[key] = &object{name: res.Name, typ: res.Type, grant: res.Grant}

	if res.Type == parser.TypeTable {
		e.tables[res.Name] = append([]parser.Column(nil), res.Columns...)
	}
	return nil
}

func (e *Engine) removeObject(name string, typ parser.ObjectType) error {
	key := objectKey(name, typ)
	if e.objects[key] == nil {
		return errors.Errorf("no such object: %s %s", typ, name)
	}
	delete(e.objects, key)
	return nil
}

func (e *Engine) mutateColumns(table string, fn func([]parser.Column) ([]parser.Column, error)) error {
	cols, ok := e.tables[table]
	if !ok {
		return errors.Errorf("no such table: %s", table)
	}
	next, err := fn(cols)
	if err != nil {
		return err
	}
	e.tables[table] = next
	return nil
}

func (e *Engine) findRow(group, name, typ string) *regRow {
	for _, r := range e.registry {
		if r.group == group && r.name == name && r.typ == typ {
			return r
		}
	}
	return nil
}

func (e *Engine) groupRows(group string) []*regRow {
	var rows []*regRow
	for _, r := range e.registry {
		if r.group == group {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].orderIndex < rows[b].orderIndex })
	return rows
}

func (e *Engine) filterRows(keep func(*regRow) bool) []*regRow {
	out := e.registry[:0]
	for _, r := range e.registry {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

var constraintTypes = []parser.ObjectType{
	parser.TypePrimaryKey,
	parser.TypeForeignKey,
	parser.TypeCheckConstraint,
	parser.TypeDefaultConstraint,
}

func isConstraintType(typ parser.ObjectType) bool {
	for _, t := range constraintTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// catalogColumnRow renders a column the way INFORMATION_SCHEMA.COLUMNS
// reports it: base type plus length or precision/scale facets.
func catalogColumnRow(col *parser.Column) []any {
	dataType := col.TypeBase
	switch {
	case col.RowVersion:
		dataType = "timestamp"
	case col.Computed:
		dataType = "int"
	}

	var charMax, numPrec, numScale *int64
	switch dataType {
	case "char", "varchar", "nchar", "nvarchar", "binary", "varbinary":
		if len(col.TypeArgs) > 0 {
			charMax = facet(col.TypeArgs[0])
		}
	case "decimal", "numeric":
		if len(col.TypeArgs) > 0 {
			numPrec = facet(col.TypeArgs[0])
			numScale = utils.Ptr(int64(0))
			if len(col.TypeArgs) > 1 {
				numScale = facet(col.TypeArgs[1])
			}
		}
	}

	nullable := "NO"
	if col.Nullable {
		nullable = "YES"
	}
	return []any{
		col.Name, dataType, charMax, numPrec, numScale,
		nullable, flag(col.Identity), flag(col.Computed),
	}
}

func facet(arg string) *int64 {
	if arg == "max" {
		return utils.Ptr(int64(-1))
	}
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil
	}
	return utils.Ptr(n)
}

func flag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

func objectKey(name string, typ parser.ObjectType) string {
	return name + "|" + string(typ)
}
