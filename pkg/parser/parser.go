// Package parser classifies T-SQL DDL statements for the installer.
//
// This is deliberately not a general SQL parser. Each statement is tokenized
// with a participle lexer and then matched against a fixed, ordered set of
// clause-shape rules that determine the object type, canonical name, and
// referenced objects. Statement bodies (view selects, procedure bodies) pass
// through untouched; they are executed verbatim and only scanned for
// reference-introducing keywords.
//
// Example usage:
//
//	res, err := parser.Parse("CREATE TABLE Beer(ID int, Description varchar(128))")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Type, res.Name) // TABLE dbo.beer
package parser

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/utils"
)

type (
	// ObjectType identifies the kind of schema object a DDL statement
	// defines. Constraint types are attached to their owning table.
	ObjectType string

	// Result is the classification of a single DDL statement: everything
	// the object model needs to build a SchemaObject.
	Result struct {
		// Type is the classified object type.
		Type ObjectType

		// Name is the canonical identity name. For constraints and
		// indexes it is encoded as "<owner>:<name>" so the drop statement
		// can be reconstructed from the name alone; for permissions it is
		// the canonical grant phrase.
		Name string

		// RawName is the authored object name with delimiters stripped
		// and case preserved, for generated SQL.
		RawName string

		// Owner is the canonical name of the owning table (constraints,
		// indexes) or target object (permissions), empty otherwise.
		Owner string

		// OwnerRaw preserves the authored owner name.
		OwnerRaw string

		// Dependencies are the canonical names of objects this statement
		// references. Names that are not part of the working set are
		// ignored by the resolver, so over-extraction is harmless.
		Dependencies []string

		// Markers are the directive flags from leading comments.
		Markers Markers

		// Columns holds the parsed column list for Table objects.
		Columns []Column

		// Grant carries the decomposed permission statement for
		// Permission objects.
		Grant *GrantInfo

		// DirectiveOnly is true for statements that consist solely of a
		// directive comment (e.g. a standalone AUTOPROC line). Such
		// statements are replaced by their generated objects during
		// collection expansion and are never installed themselves.
		DirectiveOnly bool
	}

	// GrantInfo is the decomposition of a GRANT/DENY/REVOKE statement.
	GrantInfo struct {
		// Action is the lowercased statement verb: grant, deny or revoke.
		Action string

		// Privileges are the lowercased granted privileges (execute,
		// select, ...).
		Privileges []string

		// On is the canonical name of the target object.
		On string

		// OnRaw preserves the authored target name.
		OnRaw string

		// Principal is the lowercased grantee.
		Principal string
	}
)

// Object types recognized by the classifier.
const (
	TypeTable             ObjectType = "TABLE"
	TypeView              ObjectType = "VIEW"
	TypeProcedure         ObjectType = "PROCEDURE"
	TypeFunction          ObjectType = "FUNCTION"
	TypeIndex             ObjectType = "INDEX"
	TypePrimaryKey        ObjectType = "PRIMARY KEY"
	TypeCheckConstraint   ObjectType = "CHECK CONSTRAINT"
	TypeDefaultConstraint ObjectType = "DEFAULT CONSTRAINT"
	TypeForeignKey        ObjectType = "FOREIGN KEY"
	TypePermission        ObjectType = "PERMISSION"
	TypeUserType          ObjectType = "USER TYPE"
)

// ParseError indicates that a statement matched no classification rule.
// It aborts the whole install call; there is no partial classification.
type ParseError struct {
	Sql    string
	Reason string
}

func (e *ParseError) Error() string {
	return "unable to classify statement: " + e.Reason
}

// Parse classifies one DDL statement. It returns a ParseError when the
// statement shape matches no rule.
func Parse(sql string) (*Result, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return nil, err
	}

	markers, err := parseMarkers(tokens)
	if err != nil {
		return nil, errors.Wrap(err, "invalid directive")
	}

	sig := significant(tokens)
	if len(sig) == 0 {
		if markers.AutoProc == nil && !markers.IndexedView {
			return nil, &ParseError{Sql: sql, Reason: "statement is empty"}
		}
		if markers.AutoProc != nil && markers.AutoProc.Table == "" {
			return nil, &ParseError{Sql: sql, Reason: "standalone AUTOPROC directive names no table"}
		}
		return &Result{Markers: markers, DirectiveOnly: true}, nil
	}

	res, err := classify(sig)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &ParseError{Sql: sql, Reason: "no classification rule matches: " + sig[0].Value}
	}

	res.Markers = markers
	if res.Type != TypePermission {
		// Permissions already carry their ON target; privilege keywords
		// (EXECUTE, UPDATE) would otherwise read as references.
		res.Dependencies = appendDeps(res.Dependencies, scanDependencies(sig, res)...)
	}
	return res, nil
}

// classify applies the ordered rule set to the significant token stream.
// More specific clause shapes are tested before generic ones.
func classify(sig []token) (*Result, error) {
	head := strings.ToUpper(sig[0].Value)

	switch head {
	case "GRANT", "DENY", "REVOKE":
		return classifyPermission(sig)
	case "ALTER":
		if len(sig) > 1 && strings.EqualFold(sig[1].Value, "TABLE") {
			return classifyAlterTable(sig)
		}
		return nil, nil
	case "CREATE":
		return classifyCreate(sig)
	}
	return nil, nil
}

func classifyCreate(sig []token) (*Result, error) {
	i := 1
	// CREATE OR ALTER is accepted for bodies the engine resolves lazily.
	if i+1 < len(sig) && strings.EqualFold(sig[i].Value, "OR") && strings.EqualFold(sig[i+1].Value, "ALTER") {
		i += 2
	}

	// Index modifiers precede the INDEX keyword.
	for i < len(sig) {
		switch strings.ToUpper(sig[i].Value) {
		case "UNIQUE", "CLUSTERED", "NONCLUSTERED":
			i++
			continue
		}
		break
	}
	if i >= len(sig) {
		return nil, nil
	}

	keyword := strings.ToUpper(sig[i].Value)
	rawName, next := readQualifiedName(sig, i+1)
	if rawName == "" {
		return nil, nil
	}

	switch keyword {
	case "TABLE":
		columns, err := parseColumnList(sig)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid CREATE TABLE %s", rawName)
		}
		res := &Result{
			Type:    TypeTable,
			Name:    utils.CanonicalName(rawName),
			RawName: utils.StripDelimiters(rawName),
			Columns: columns,
		}
		for _, col := range columns {
			if col.UserType != "" {
				res.Dependencies = appendDeps(res.Dependencies, col.UserType)
			}
		}
		return res, nil
	case "VIEW":
		return simpleResult(TypeView, rawName), nil
	case "PROC", "PROCEDURE":
		return simpleResult(TypeProcedure, rawName), nil
	case "FUNCTION":
		return simpleResult(TypeFunction, rawName), nil
	case "TYPE":
		return simpleResult(TypeUserType, rawName), nil
	case "INDEX":
		ownerRaw, _ := readNameAfterKeyword(sig[next:], "ON")
		if ownerRaw == "" {
			return nil, errors.Errorf("index %s has no ON clause", rawName)
		}
		owner := utils.CanonicalName(ownerRaw)
		return &Result{
			Type:         TypeIndex,
			Name:         owner + ":" + strings.ToLower(utils.StripDelimiters(rawName)),
			RawName:      utils.StripDelimiters(rawName),
			Owner:        owner,
			OwnerRaw:     utils.StripDelimiters(ownerRaw),
			Dependencies: []string{owner},
		}, nil
	}
	return nil, nil
}

// classifyAlterTable distinguishes ADD CONSTRAINT forms, which classify as
// the constraint they add, from generic table alterations.
func classifyAlterTable(sig []token) (*Result, error) {
	ownerRaw, i := readQualifiedName(sig, 2)
	if ownerRaw == "" {
		return nil, nil
	}
	owner := utils.CanonicalName(ownerRaw)

	// Skip WITH CHECK / WITH NOCHECK.
	if i+1 < len(sig) && strings.EqualFold(sig[i].Value, "WITH") {
		i += 2
	}

	if i+1 < len(sig) && strings.EqualFold(sig[i].Value, "ADD") && strings.EqualFold(sig[i+1].Value, "CONSTRAINT") {
		nameRaw, j := readQualifiedName(sig, i+2)
		if nameRaw == "" {
			return nil, errors.Errorf("ADD CONSTRAINT on %s names no constraint", ownerRaw)
		}

		typ, err := constraintType(sig[j:])
		if err != nil {
			return nil, errors.Wrapf(err, "constraint %s on %s", nameRaw, ownerRaw)
		}

		return &Result{
			Type:         typ,
			Name:         owner + ":" + strings.ToLower(utils.StripDelimiters(nameRaw)),
			RawName:      utils.StripDelimiters(nameRaw),
			Owner:        owner,
			OwnerRaw:     utils.StripDelimiters(ownerRaw),
			Dependencies: []string{owner},
		}, nil
	}

	// Generic table alteration: classified as the table itself.
	return &Result{
		Type:         TypeTable,
		Name:         owner,
		RawName:      utils.StripDelimiters(ownerRaw),
		Owner:        owner,
		OwnerRaw:     utils.StripDelimiters(ownerRaw),
		Dependencies: []string{owner},
	}, nil
}

func constraintType(rest []token) (ObjectType, error) {
	for _, t := range rest {
		switch strings.ToUpper(t.Value) {
		case "PRIMARY":
			return TypePrimaryKey, nil
		case "FOREIGN":
			return TypeForeignKey, nil
		case "CHECK":
			return TypeCheckConstraint, nil
		case "DEFAULT":
			return TypeDefaultConstraint, nil
		}
	}
	return "", errors.New("unrecognized constraint clause")
}

func classifyPermission(sig []token) (*Result, error) {
	info := &GrantInfo{Action: strings.ToLower(sig[0].Value)}

	i := 1
	for ; i < len(sig); i++ {
		if strings.EqualFold(sig[i].Value, "ON") {
			break
		}
		if sig[i].isPunct(",") {
			continue
		}
		info.Privileges = append(info.Privileges, strings.ToLower(sig[i].Value))
	}
	if i >= len(sig) || len(info.Privileges) == 0 {
		return nil, errors.New("permission statement has no ON clause")
	}

	onRaw, j := readQualifiedName(sig, i+1)
	if onRaw == "" {
		return nil, errors.New("permission statement names no object")
	}
	info.OnRaw = utils.StripDelimiters(onRaw)
	info.On = utils.CanonicalName(onRaw)

	for ; j < len(sig); j++ {
		if strings.EqualFold(sig[j].Value, "TO") || strings.EqualFold(sig[j].Value, "FROM") {
			principal, _ := readQualifiedName(sig, j+1)
			info.Principal = strings.ToLower(utils.StripDelimiters(principal))
			break
		}
	}
	if info.Principal == "" {
		return nil, errors.New("permission statement names no principal")
	}

	name := info.Action + " " + strings.Join(info.Privileges, ",") +
		" on " + info.On + " to " + info.Principal

	return &Result{
		Type:         TypePermission,
		Name:         name,
		RawName:      name,
		Owner:        info.On,
		OwnerRaw:     info.OnRaw,
		Dependencies: []string{info.On},
		Grant:        info,
	}, nil
}

func simpleResult(typ ObjectType, rawName string) *Result {
	return &Result{
		Type:    typ,
		Name:    utils.CanonicalName(rawName),
		RawName: utils.StripDelimiters(rawName),
	}
}

// scanDependencies walks the significant token stream collecting identifiers
// that follow reference-introducing keywords. EXEC arguments and variables
// (@-prefixed) are skipped.
func scanDependencies(sig []token, res *Result) []string {
	var deps []string

	for i := 0; i < len(sig); i++ {
		switch strings.ToUpper(sig[i].Value) {
		case "FROM", "JOIN", "INTO", "UPDATE", "REFERENCES", "EXEC", "EXECUTE":
			name, next := readQualifiedName(sig, i+1)
			if name == "" || strings.HasPrefix(name, "@") {
				continue
			}
			deps = append(deps, utils.CanonicalName(name))
			i = next - 1

			// FROM lists may name several tables.
			for next < len(sig) && sig[next].isPunct(",") {
				name, next = readQualifiedName(sig, next+1)
				if name == "" {
					break
				}
				deps = append(deps, utils.CanonicalName(name))
				i = next - 1
			}
		}
	}

	// An object never depends on itself.
	out := deps[:0]
	for _, d := range deps {
		if d != res.Name {
			out = append(out, d)
		}
	}
	return out
}

// readQualifiedName reads an identifier, optionally dot-qualified, starting
// at index i. It returns the raw dotted name and the index of the first
// token after it, or ("", i) when no identifier starts there.
func readQualifiedName(sig []token, i int) (string, int) {
	if i >= len(sig) || !sig[i].isIdent() {
		return "", i
	}

	name := sig[i].Value
	i++
	for i+1 < len(sig) && sig[i].isPunct(".") && sig[i+1].isIdent() {
		name += "." + sig[i+1].Value
		i += 2
	}
	return name, i
}

// readNameAfterKeyword finds the first occurrence of the keyword and reads
// the qualified name following it.
func readNameAfterKeyword(sig []token, keyword string) (string, int) {
	for i := 0; i < len(sig); i++ {
		if strings.EqualFold(sig[i].Value, keyword) {
			return readQualifiedName(sig, i+1)
		}
	}
	return "", len(sig)
}

func appendDeps(deps []string, names ...string) []string {
	seen := make(map[string]bool, len(deps)+len(names))
	for _, d := range deps {
		seen[d] = true
	}
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			deps = append(deps, n)
		}
	}
	return deps
}
