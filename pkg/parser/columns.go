package parser

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/utils"
)

type (
	// Column is the structural model of one table column, extracted from a
	// CREATE TABLE column list. It carries exactly the properties the table
	// differ compares and the AUTOPROC generator consumes.
	Column struct {
		// Name is the column name with delimiters stripped, original case
		// preserved for generated SQL.
		Name string

		// TypeBase is the lowercased base type name (e.g. "varchar",
		// "decimal", "dbo.phonenumber" for user types).
		TypeBase string

		// TypeArgs are the lowercased type arguments ("128", "max",
		// "10", "2"), empty for parameterless types.
		TypeArgs []string

		// Nullable is false only when NOT NULL (or an inline PRIMARY KEY)
		// is declared.
		Nullable bool

		// Identity is true for IDENTITY columns.
		Identity bool

		// Computed is true for computed columns (name AS (expr)).
		Computed bool

		// RowVersion is true for rowversion/timestamp columns.
		RowVersion bool

		// HasDefault is true when the column declares a DEFAULT.
		HasDefault bool

		// DefaultExpr is the declared default expression text, used when
		// the column is added to an existing table.
		DefaultExpr string

		// InlineConstraint is true when the definition embeds a constraint
		// (PRIMARY KEY, UNIQUE, CHECK, REFERENCES, or a named CONSTRAINT).
		// Such columns cannot be safely altered in place.
		InlineConstraint bool

		// UserType is the canonical name of a referenced user-defined
		// type, empty for built-in types.
		UserType string
	}
)

// CanonicalName returns the column name in comparison form.
func (c *Column) CanonicalName() string {
	return strings.ToLower(c.Name)
}

// NormalizedType returns the comparable type string for the column, e.g.
// "varchar(128)", "decimal(10,2)", "int". Computed columns have no type.
func (c *Column) NormalizedType() string {
	if c.Computed {
		return ""
	}
	if len(c.TypeArgs) == 0 {
		return c.TypeBase
	}
	return c.TypeBase + "(" + strings.Join(c.TypeArgs, ",") + ")"
}

// DefinitionSQL renders the column definition used in generated ALTER TABLE
// ADD / ALTER COLUMN statements.
func (c *Column) DefinitionSQL() string {
	var b strings.Builder
	b.WriteString(utils.BracketIdentifier(c.Name))
	b.WriteString(" ")
	b.WriteString(c.NormalizedType())
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// builtinTypes is the set of T-SQL base types that never introduce a user
// type dependency.
var builtinTypes = map[string]bool{
	"bigint": true, "binary": true, "bit": true, "char": true, "date": true,
	"datetime": true, "datetime2": true, "datetimeoffset": true,
	"decimal": true, "float": true, "geography": true, "geometry": true,
	"hierarchyid": true, "image": true, "int": true, "money": true,
	"nchar": true, "ntext": true, "numeric": true, "nvarchar": true,
	"real": true, "rowversion": true, "smalldatetime": true,
	"smallint": true, "smallmoney": true, "sql_variant": true,
	"sysname": true, "text": true, "time": true, "timestamp": true,
	"tinyint": true, "uniqueidentifier": true, "varbinary": true,
	"varchar": true, "xml": true,
}

// constraint-introducing keywords that mark a segment of a CREATE TABLE
// column list as a table-level constraint rather than a column definition.
var tableConstraintHeads = map[string]bool{
	"CONSTRAINT": true, "PRIMARY": true, "FOREIGN": true,
	"UNIQUE": true, "CHECK": true,
}

// parseColumnList extracts column definitions from the parenthesized body of
// a CREATE TABLE statement. Table-level constraint segments are skipped; the
// classifier and dependency scanner account for them separately.
func parseColumnList(tokens []token) ([]Column, error) {
	// Locate the opening paren of the column list.
	start := -1
	for i, t := range tokens {
		if t.isPunct("(") {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errors.New("CREATE TABLE statement has no column list")
	}

	var columns []Column
	depth := 1
	segment := make([]token, 0, 16)

	flush := func() error {
		defer func() { segment = segment[:0] }()
		if len(segment) == 0 {
			return nil
		}
		if tableConstraintHeads[strings.ToUpper(segment[0].Value)] {
			return nil
		}
		col, err := parseColumnDefinition(segment)
		if err != nil {
			return err
		}
		columns = append(columns, *col)
		return nil
	}

	for i := start + 1; i < len(tokens); i++ {
		t := tokens[i]
		switch {
		case t.isPunct("("):
			depth++
			segment = append(segment, t)
		case t.isPunct(")"):
			depth--
			if depth == 0 {
				if err := flush(); err != nil {
					return nil, err
				}
				return columns, nil
			}
			segment = append(segment, t)
		case t.isPunct(",") && depth == 1:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			segment = append(segment, t)
		}
	}

	return nil, errors.New("unterminated column list in CREATE TABLE statement")
}

// parseColumnDefinition parses a single column definition segment.
func parseColumnDefinition(tokens []token) (*Column, error) {
	if len(tokens) == 0 || !tokens[0].isIdent() {
		return nil, errors.New("malformed column definition")
	}

	col := &Column{
		Name:     utils.StripDelimiters(tokens[0].Value),
		Nullable: true,
	}

	i := 1
	if i < len(tokens) && strings.EqualFold(tokens[i].Value, "AS") {
		col.Computed = true
		return col, nil
	}

	if i >= len(tokens) || !tokens[i].isIdent() {
		return nil, errors.Errorf("column %s has no data type", col.Name)
	}

	// Base type, possibly schema-qualified for user types.
	base := utils.StripDelimiters(tokens[i].Value)
	i++
	if i+1 < len(tokens) && tokens[i].isPunct(".") && tokens[i+1].isIdent() {
		base += "." + utils.StripDelimiters(tokens[i+1].Value)
		i += 2
	}
	col.TypeBase = strings.ToLower(base)

	if col.TypeBase == "rowversion" || col.TypeBase == "timestamp" {
		col.RowVersion = true
	}
	if !builtinTypes[col.TypeBase] {
		col.UserType = utils.CanonicalName(base)
	}

	// Optional type arguments.
	if i < len(tokens) && tokens[i].isPunct("(") {
		depth := 1
		for i++; i < len(tokens) && depth > 0; i++ {
			switch {
			case tokens[i].isPunct("("):
				depth++
			case tokens[i].isPunct(")"):
				depth--
			case tokens[i].isPunct(","):
				// separator
			default:
				col.TypeArgs = append(col.TypeArgs, strings.ToLower(tokens[i].Value))
			}
		}
	}

	// Trailing flags.
	for ; i < len(tokens); i++ {
		switch strings.ToUpper(tokens[i].Value) {
		case "NOT":
			if i+1 < len(tokens) && strings.EqualFold(tokens[i+1].Value, "NULL") {
				col.Nullable = false
				i++
			}
		case "NULL":
			col.Nullable = true
		case "IDENTITY":
			col.Identity = true
		case "DEFAULT":
			col.HasDefault = true
			expr, next := readDefaultExpr(tokens, i+1)
			col.DefaultExpr = expr
			i = next - 1
		case "PRIMARY", "UNIQUE", "CHECK", "REFERENCES", "CONSTRAINT":
			col.InlineConstraint = true
			if strings.ToUpper(tokens[i].Value) == "PRIMARY" {
				col.Nullable = false
			}
		}
	}

	return col, nil
}

// readDefaultExpr consumes a DEFAULT expression starting at index i: either
// a single parenthesized group or tokens up to the next column flag keyword.
func readDefaultExpr(tokens []token, i int) (string, int) {
	var parts []string
	depth := 0
	for ; i < len(tokens); i++ {
		t := tokens[i]
		if depth == 0 && len(parts) > 0 {
			switch strings.ToUpper(t.Value) {
			case "NOT", "NULL", "IDENTITY", "PRIMARY", "UNIQUE", "CHECK", "REFERENCES", "CONSTRAINT":
				return strings.Join(parts, ""), i
			}
		}
		switch {
		case t.isPunct("("):
			depth++
		case t.isPunct(")"):
			depth--
		}
		parts = append(parts, t.Value)
	}
	return strings.Join(parts, ""), i
}

// IsBuiltinType reports whether the lowercased base type name is a built-in
// T-SQL type rather than a user-defined type reference.
func IsBuiltinType(base string) bool {
	return builtinTypes[strings.ToLower(base)]
}

// ParseColumnDefinitionString parses a standalone column definition such as
// "[Brewery] varchar(64) NULL". It is used where a column clause appears
// outside a full CREATE TABLE statement (e.g. generated ALTER TABLE text).
func ParseColumnDefinitionString(s string) (*Column, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	return parseColumnDefinition(significant(tokens))
}
