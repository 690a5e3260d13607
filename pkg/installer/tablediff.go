package installer

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/db"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/pseudomuto/groundskeeper/pkg/schema"
	"github.com/pseudomuto/groundskeeper/pkg/utils"
)

// liveColumnsQuery reads the current physical structure of a table. The old
// DDL text is not persisted anywhere (the registry stores identity and
// fingerprint only), so the live catalog is the authoritative "before" side
// of a table diff.
const liveColumnsQuery = `
SELECT
	COLUMN_NAME,
	DATA_TYPE,
	CHARACTER_MAXIMUM_LENGTH,
	NUMERIC_PRECISION,
	NUMERIC_SCALE,
	IS_NULLABLE,
	COLUMNPROPERTY(OBJECT_ID(@p1), COLUMN_NAME, 'IsIdentity'),
	COLUMNPROPERTY(OBJECT_ID(@p1), COLUMN_NAME, 'IsComputed')
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = @p2 AND TABLE_NAME = @p3
ORDER BY ORDINAL_POSITION`

type (
	liveColumn struct {
		name     string
		dataType string
		charMax  *int64
		numPrec  *int64
		numScale *int64
		nullable bool
		identity bool
		computed bool
	}
)

// normalizedType renders the live column type in the same comparable form
// the parser produces for desired columns.
func (c *liveColumn) normalizedType() string {
	base := strings.ToLower(c.dataType)
	if !parser.IsBuiltinType(base) {
		return utils.CanonicalName(base)
	}

	switch base {
	case "char", "varchar", "nchar", "nvarchar", "binary", "varbinary":
		if c.charMax == nil {
			return base
		}
		if *c.charMax < 0 {
			return base + "(max)"
		}
		return base + "(" + strconv.FormatInt(*c.charMax, 10) + ")"
	case "decimal", "numeric":
		if c.numPrec == nil || c.numScale == nil {
			return base
		}
		return base + "(" + strconv.FormatInt(*c.numPrec, 10) + "," + strconv.FormatInt(*c.numScale, 10) + ")"
	}
	return base
}

func (c *liveColumn) isRowVersion() bool {
	base := strings.ToLower(c.dataType)
	return base == "timestamp" || base == "rowversion"
}

// loadLiveColumns queries the catalog for a table's current columns.
func loadLiveColumns(ctx context.Context, conn db.Conn, table string) ([]*liveColumn, error) {
	schemaPart, namePart := splitTableName(table)

	rows, err := conn.Query(ctx, liveColumnsQuery, table, schemaPart, namePart)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read columns of %s", table)
	}
	defer func() { _ = rows.Close() }()

	var columns []*liveColumn
	for rows.Next() {
		var (
			c                  liveColumn
			nullable           string
			identity, computed int64
		)
		if err := rows.Scan(&c.name, &c.dataType, &c.charMax, &c.numPrec, &c.numScale, &nullable, &identity, &computed); err != nil {
			return nil, errors.Wrapf(err, "failed to scan column of %s", table)
		}
		c.nullable = strings.EqualFold(nullable, "YES")
		c.identity = identity != 0
		c.computed = computed != 0
		columns = append(columns, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.Errorf("table %s has no columns in the catalog", table)
	}
	return columns, nil
}

func splitTableName(table string) (schemaPart, namePart string) {
	if idx := strings.IndexByte(table, '.'); idx > 0 {
		return table[:idx], table[idx+1:]
	}
	return "dbo", table
}

// planTableAlter computes the minimal ALTER TABLE statements that converge
// the live table onto the desired definition while preserving existing data.
// Changes that would require a rebuild raise UnsupportedAlterError.
func planTableAlter(ctx context.Context, conn db.Conn, obj *schema.Object) ([]string, error) {
	live, err := loadLiveColumns(ctx, conn, obj.Name)
	if err != nil {
		return nil, err
	}

	liveByName := make(map[string]*liveColumn, len(live))
	for _, c := range live {
		liveByName[strings.ToLower(c.name)] = c
	}
	desiredNames := make(map[string]bool, len(obj.Columns))

	var adds, alters, drops []string

	for i := range obj.Columns {
		col := &obj.Columns[i]
		desiredNames[col.CanonicalName()] = true

		current, exists := liveByName[col.CanonicalName()]
		if !exists {
			adds = append(adds, addColumnSQL(obj.Name, col))
			continue
		}

		changed, err := columnChanged(obj.Name, col, current)
		if err != nil {
			return nil, err
		}
		if changed {
			alters = append(alters, utils.NewSQLBuilder().
				Alter("TABLE").
				Name(obj.Name).
				Raw("ALTER COLUMN").
				Raw(col.DefinitionSQL()).
				String())
		}
	}

	for _, c := range live {
		if !desiredNames[strings.ToLower(c.name)] {
			drops = append(drops, utils.NewSQLBuilder().
				Alter("TABLE").
				Name(obj.Name).
				Raw("DROP COLUMN").
				Name(c.name).
				String())
		}
	}

	return append(append(adds, alters...), drops...), nil
}

func addColumnSQL(table string, col *parser.Column) string {
	b := utils.NewSQLBuilder().
		Alter("TABLE").
		Name(table).
		Raw("ADD").
		Raw(col.DefinitionSQL())
	if col.HasDefault && col.DefaultExpr != "" {
		b.Raw("DEFAULT").Raw(col.DefaultExpr)
	}
	return b.String()
}

// columnChanged decides whether a column needs an in-place ALTER COLUMN, or
// cannot be changed in place at all.
func columnChanged(table string, desired *parser.Column, current *liveColumn) (bool, error) {
	if desired.Computed != current.computed {
		return false, &UnsupportedAlterError{
			Table: table, Column: desired.Name,
			Reason: "computed columns cannot be converted in place",
		}
	}
	if desired.Computed {
		// Computed expressions are not recoverable from the catalog view
		// used here; leave matching computed columns untouched.
		return false, nil
	}
	if desired.RowVersion != current.isRowVersion() {
		return false, &UnsupportedAlterError{
			Table: table, Column: desired.Name,
			Reason: "rowversion columns cannot be converted in place",
		}
	}
	if desired.Identity != current.identity {
		return false, &UnsupportedAlterError{
			Table: table, Column: desired.Name,
			Reason: "identity cannot be added to or removed from an existing column",
		}
	}

	typeChanged := desired.NormalizedType() != current.normalizedType()
	nullChanged := desired.Nullable != current.nullable
	if !typeChanged && !nullChanged {
		return false, nil
	}

	if desired.InlineConstraint {
		return false, &UnsupportedAlterError{
			Table: table, Column: desired.Name,
			Reason: "column carries an inline constraint and cannot be altered in place",
		}
	}
	if desired.Identity && typeChanged {
		return false, &UnsupportedAlterError{
			Table: table, Column: desired.Name,
			Reason: "identity columns cannot be retyped in place",
		}
	}
	if desired.RowVersion {
		return false, &UnsupportedAlterError{
			Table: table, Column: desired.Name,
			Reason: "rowversion columns cannot be altered in place",
		}
	}

	return true, nil
}
