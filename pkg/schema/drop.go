package schema

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/pseudomuto/groundskeeper/pkg/utils"
)

// DropStatement builds the DDL that removes an installed object, given only
// its canonical name and type. Registry entries carry exactly this pair, so
// uninstall never requires the original DDL text: constraint and index names
// encode their owning table, and permission names encode the full grant
// phrase.
func DropStatement(name string, typ parser.ObjectType) (string, error) {
	switch typ {
	case parser.TypeTable:
		return utils.NewSQLBuilder().Drop("TABLE").Name(name).String(), nil
	case parser.TypeView:
		return utils.NewSQLBuilder().Drop("VIEW").Name(name).String(), nil
	case parser.TypeProcedure:
		return utils.NewSQLBuilder().Drop("PROCEDURE").Name(name).String(), nil
	case parser.TypeFunction:
		return utils.NewSQLBuilder().Drop("FUNCTION").Name(name).String(), nil
	case parser.TypeUserType:
		return utils.NewSQLBuilder().Drop("TYPE").Name(name).String(), nil
	case parser.TypeIndex:
		owner, index, err := SplitOwnedName(name)
		if err != nil {
			return "", err
		}
		return utils.NewSQLBuilder().Drop("INDEX").Name(index).On(owner).String(), nil
	case parser.TypePrimaryKey, parser.TypeForeignKey, parser.TypeCheckConstraint, parser.TypeDefaultConstraint:
		owner, constraint, err := SplitOwnedName(name)
		if err != nil {
			return "", err
		}
		return utils.NewSQLBuilder().
			Alter("TABLE").
			Name(owner).
			Raw("DROP CONSTRAINT").
			Name(constraint).
			String(), nil
	case parser.TypePermission:
		return revokeStatement(name)
	}
	return "", errors.Errorf("cannot build drop statement for object type %s", typ)
}

// revokeStatement reconstructs a REVOKE from a canonical permission name of
// the form "<action> <priv,priv> on <object> to <principal>".
func revokeStatement(name string) (string, error) {
	fields := strings.Fields(name)
	if len(fields) != 6 || fields[2] != "on" || fields[4] != "to" {
		return "", errors.Errorf("malformed permission name: %q", name)
	}

	privileges := strings.ToUpper(strings.ReplaceAll(fields[1], ",", ", "))

	return utils.NewSQLBuilder().
		Raw("REVOKE").
		Raw(privileges).
		On(fields[3]).
		Raw("FROM").
		Name(fields[5]).
		String(), nil
}
