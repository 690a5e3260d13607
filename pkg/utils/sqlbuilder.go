package utils

import "strings"

// SQLBuilder provides a fluent interface for building T-SQL DDL statements.
// It handles identifier bracketing and conditional clause building to reduce
// duplication across the installer and schema packages.
//
// Example usage:
//
//	sql := NewSQLBuilder().
//		Alter("TABLE").
//		Name("dbo.Beer").
//		Raw("ADD").
//		Name("Brewery").
//		Raw("varchar(64) NULL").
//		String()
//	// Output: ALTER TABLE [dbo].[Beer] ADD [Brewery] varchar(64) NULL
type SQLBuilder struct {
	parts []string
}

// NewSQLBuilder creates a new SQLBuilder instance.
func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{
		parts: make([]string, 0, 10),
	}
}

// Create adds a CREATE clause with the specified object type.
func (b *SQLBuilder) Create(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "CREATE", objectType)
	return b
}

// Drop adds a DROP clause with the specified object type.
func (b *SQLBuilder) Drop(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "DROP", objectType)
	return b
}

// Alter adds an ALTER clause with the specified object type.
func (b *SQLBuilder) Alter(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "ALTER", objectType)
	return b
}

// Name adds a bracketed object name.
//
// Example:
//
//	builder.Name("dbo.Beer") // [dbo].[Beer]
func (b *SQLBuilder) Name(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, BracketIdentifier(name))
	}
	return b
}

// On adds an ON clause with a bracketed target, used for index drops and
// permission statements.
//
// Example:
//
//	builder.Drop("INDEX").Name("IX_Beer").On("dbo.Beer")
//	// DROP INDEX [IX_Beer] ON [dbo].[Beer]
func (b *SQLBuilder) On(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, "ON", BracketIdentifier(name))
	}
	return b
}

// Raw adds raw SQL text to the builder. Use sparingly for constructs that
// don't fit the fluent pattern.
func (b *SQLBuilder) Raw(sql string) *SQLBuilder {
	if sql != "" {
		b.parts = append(b.parts, sql)
	}
	return b
}

// String builds and returns the final SQL statement.
func (b *SQLBuilder) String() string {
	return strings.Join(b.parts, " ")
}
