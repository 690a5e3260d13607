package utils

import (
	"strings"

	"github.com/pseudomuto/groundskeeper/pkg/consts"
)

// BracketIdentifier adds brackets around an identifier, handling qualified
// identifiers. It properly handles schema.table style identifiers by
// bracketing each part.
//
// Examples:
//   - "table" -> "[table]"
//   - "dbo.table" -> "[dbo].[table]"
//   - "[table]" -> "[table]" (already bracketed, not double-bracketed)
//   - "" -> ""
//
// This function is used throughout the codebase for consistent identifier
// formatting in generated DDL statements.
func BracketIdentifier(name string) string {
	if name == "" {
		return ""
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if len(part) >= 2 && part[0] == '[' && part[len(part)-1] == ']' {
			continue
		}
		parts[i] = "[" + part + "]"
	}
	return strings.Join(parts, ".")
}

// StripDelimiters removes identifier delimiters (square brackets and double
// quotes) from each dotted part of an identifier.
//
// Examples:
//   - "[Beer]" -> "Beer"
//   - "\"Beer\"" -> "Beer"
//   - "[dbo].[Beer]" -> "dbo.Beer"
//   - "Beer" -> "Beer"
func StripDelimiters(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = stripOne(part)
	}
	return strings.Join(parts, ".")
}

func stripOne(part string) string {
	if len(part) >= 2 {
		if part[0] == '[' && part[len(part)-1] == ']' {
			return part[1 : len(part)-1]
		}
		if part[0] == '"' && part[len(part)-1] == '"' {
			return part[1 : len(part)-1]
		}
	}
	return part
}

// CanonicalName normalizes an identifier for identity comparison: delimiters
// are stripped from every part, the whole name is lowercased, and a bare
// object name gains the default schema prefix.
//
// Every identity comparison in the system goes through this function; raw
// identifier text is never compared directly.
//
// Examples:
//   - "[dbo].[Beer]" -> "dbo.beer"
//   - "Beer" -> "dbo.beer"
//   - "\"Sales\".Orders" -> "sales.orders"
func CanonicalName(name string) string {
	name = strings.ToLower(StripDelimiters(strings.TrimSpace(name)))
	if name == "" {
		return ""
	}
	if !strings.Contains(name, ".") {
		return consts.DefaultSchema + "." + name
	}
	return name
}

// ObjectPart returns the final (object) part of a possibly qualified
// identifier with delimiters stripped. Case is preserved so generated names
// (e.g. CRUD procedures) read like the authored DDL.
//
// Examples:
//   - "[dbo].[Beer]" -> "Beer"
//   - "Beer" -> "Beer"
func ObjectPart(name string) string {
	parts := strings.Split(StripDelimiters(strings.TrimSpace(name)), ".")
	return parts[len(parts)-1]
}
