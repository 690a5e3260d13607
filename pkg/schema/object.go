package schema

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/db"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
)

type (
	// Object is the typed, fingerprinted representation of one DDL
	// statement. Objects are constructed fresh from text on every install
	// or uninstall call and are immutable once parsed.
	//
	// Identity is (schema group, Name, Type); the group is carried by the
	// registry, not the object. Signature detects textual change: any edit
	// to the DDL, including a trailing comment, produces a new signature
	// and is treated as a change requiring redeployment.
	//
	// Example usage:
	//
	//	obj, err := schema.NewObject("CREATE TABLE Beer(ID int, Description varchar(128))")
	//	if err != nil {
	//		log.Fatal(err)
	//	}
	//	fmt.Println(obj.Name)      // dbo.beer
	//	fmt.Println(obj.Type)      // TABLE
	//	fmt.Println(obj.Signature) // h1:...
	Object struct {
		// Name is the canonical identity name (delimiters stripped, case
		// folded, default schema applied; constraints and indexes encode
		// their owner as "<owner>:<name>").
		Name string

		// Type is the classified object type.
		Type parser.ObjectType

		// Sql is the original DDL text, executed verbatim.
		Sql string

		// Signature is the h1-format fingerprint of Sql.
		Signature string

		// Dependencies are canonical names of objects this one references.
		Dependencies []string

		// Markers are the directive flags parsed from leading comments.
		Markers parser.Markers

		// Columns is the parsed column list for tables, nil otherwise.
		Columns []parser.Column

		// Owner is the canonical owning table (constraints, indexes) or
		// target object (permissions).
		Owner string

		// Grant carries the decomposed permission statement for
		// Permission objects.
		Grant *parser.GrantInfo

		rawName  string
		ownerRaw string

		// directiveOnly objects carry a marker and no executable DDL; they
		// are replaced during collection expansion.
		directiveOnly bool
	}
)

// NewObject parses a DDL statement into an Object.
func NewObject(sql string) (*Object, error) {
	res, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}

	return &Object{
		Name:          res.Name,
		Type:          res.Type,
		Sql:           sql,
		Signature:     Fingerprint(sql),
		Dependencies:  res.Dependencies,
		Markers:       res.Markers,
		Columns:       res.Columns,
		Owner:         res.Owner,
		Grant:         res.Grant,
		rawName:       res.RawName,
		ownerRaw:      res.OwnerRaw,
		directiveOnly: res.DirectiveOnly,
	}, nil
}

// Fingerprint computes the h1-format SHA256 signature of DDL text.
func Fingerprint(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return "h1:" + base64.StdEncoding.EncodeToString(sum[:]) + "="
}

// Key returns the identity key used for diffing within one schema group.
func (o *Object) Key() string {
	return o.Name + "|" + string(o.Type)
}

// DependsOn reports whether name appears in the object's dependency set.
func (o *Object) DependsOn(name string) bool {
	for _, d := range o.Dependencies {
		if d == name {
			return true
		}
	}
	return false
}

// Verification queries per object type. Each checks for physical existence
// in the live database, independent of the registry.
const (
	verifyTableQuery     = `SELECT 1 FROM sys.tables WHERE object_id = OBJECT_ID(@p1)`
	verifyViewQuery      = `SELECT 1 FROM sys.views WHERE object_id = OBJECT_ID(@p1)`
	verifyProcQuery      = `SELECT 1 FROM sys.procedures WHERE object_id = OBJECT_ID(@p1)`
	verifyFunctionQuery  = `SELECT 1 FROM sys.objects WHERE object_id = OBJECT_ID(@p1) AND type IN ('FN','IF','TF')`
	verifyConstraint     = `SELECT 1 FROM sys.objects WHERE object_id = OBJECT_ID(@p1) AND type IN ('PK','F','C','D')`
	verifyIndexQuery     = `SELECT 1 FROM sys.indexes WHERE name = @p1 AND object_id = OBJECT_ID(@p2)`
	verifyUserTypeQuery  = `SELECT 1 FROM sys.types WHERE name = @p1`
	verifyPermissionQuery = `SELECT 1 FROM sys.database_permissions p JOIN sys.objects o ON p.major_id = o.object_id WHERE o.object_id = OBJECT_ID(@p1) AND USER_NAME(p.grantee_principal_id) = @p2`
)

// Verify checks whether the object physically exists in the database.
func (o *Object) Verify(ctx context.Context, conn db.Conn) (bool, error) {
	var (
		query string
		args  []any
	)

	switch o.Type {
	case parser.TypeTable:
		query, args = verifyTableQuery, []any{o.Name}
	case parser.TypeView:
		query, args = verifyViewQuery, []any{o.Name}
	case parser.TypeProcedure:
		query, args = verifyProcQuery, []any{o.Name}
	case parser.TypeFunction:
		query, args = verifyFunctionQuery, []any{o.Name}
	case parser.TypePrimaryKey, parser.TypeForeignKey, parser.TypeCheckConstraint, parser.TypeDefaultConstraint:
		_, name, err := SplitOwnedName(o.Name)
		if err != nil {
			return false, err
		}
		query, args = verifyConstraint, []any{name}
	case parser.TypeIndex:
		owner, name, err := SplitOwnedName(o.Name)
		if err != nil {
			return false, err
		}
		query, args = verifyIndexQuery, []any{name, owner}
	case parser.TypeUserType:
		query, args = verifyUserTypeQuery, []any{ObjectPart(o.Name)}
	case parser.TypePermission:
		if o.Grant == nil {
			return false, errors.Errorf("permission object %s has no grant info", o.Name)
		}
		query, args = verifyPermissionQuery, []any{o.Grant.On, o.Grant.Principal}
	default:
		return false, errors.Errorf("cannot verify object type %s", o.Type)
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to verify %s %s", o.Type, o.Name)
	}
	defer func() { _ = rows.Close() }()

	return rows.Next(), rows.Err()
}

// SplitOwnedName splits an "<owner>:<name>" encoded identity (constraints,
// indexes) into its parts.
func SplitOwnedName(name string) (owner, object string, err error) {
	idx := strings.IndexByte(name, ':')
	if idx <= 0 || idx == len(name)-1 {
		return "", "", errors.Errorf("name %q does not encode an owner", name)
	}
	return name[:idx], name[idx+1:], nil
}

// ObjectPart returns the unqualified object portion of a canonical name.
func ObjectPart(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
