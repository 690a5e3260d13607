// Package registry persists the record of installed schema objects.
//
// The registry table is the source of truth for "what is currently there"
// per schema group: one row per installed object carrying its identity
// (group, name, type), its DDL fingerprint, and the position it held in the
// executed install sequence. The installer is the only writer; every
// mutation immediately follows the successful execution of the corresponding
// DDL, never precedes it, so a failure can never leave the registry ahead of
// the database.
//
// The table is created on first use in each target database.
package registry

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/consts"
	"github.com/pseudomuto/groundskeeper/pkg/db"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
)

type (
	// Entry mirrors one installed schema object.
	Entry struct {
		// Group is the schema group that owns the object.
		Group string

		// Name is the canonical object name.
		Name string

		// Type is the object type.
		Type parser.ObjectType

		// Signature is the h1 fingerprint of the DDL that produced the
		// object.
		Signature string

		// OrderIndex is the position the object held in the executed
		// install sequence. Uninstall drops entries in descending
		// OrderIndex, which reverses a dependency-valid install order.
		OrderIndex int
	}

	// Registry provides access to the persisted entries of one schema
	// group over a caller-scoped connection.
	Registry struct {
		conn         db.Conn
		group        string
		bootstrapped bool
	}
)

// bootstrapSQL creates the registry table on first use. It is written to be
// re-runnable: the guard makes creation a no-op when the table exists.
const bootstrapSQL = `
IF OBJECT_ID(N'dbo.` + consts.RegistryTable + `', N'U') IS NULL
CREATE TABLE dbo.` + consts.RegistryTable + ` (
	schema_group nvarchar(128) NOT NULL,
	object_name nvarchar(450) NOT NULL,
	object_type nvarchar(32) NOT NULL,
	signature nvarchar(64) NOT NULL,
	order_index int NOT NULL,
	CONSTRAINT pk_` + consts.RegistryTable + ` PRIMARY KEY (schema_group, object_name, object_type)
)`

// builder is the statement builder for all registry SQL, using SQL Server
// @pN placeholders.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.AtP)

// identityWhere is the predicate selecting a single entry.
const identityWhere = "schema_group = ? AND object_name = ? AND object_type = ?"

// New creates a Registry scoped to one schema group. The connection is
// expected to be transactionally scoped by the caller.
func New(conn db.Conn, group string) *Registry {
	return &Registry{conn: conn, group: group}
}

// Group returns the schema group this registry is scoped to.
func (r *Registry) Group() string {
	return r.group
}

// ensure creates the registry table if this is the first use against the
// target database.
func (r *Registry) ensure(ctx context.Context) error {
	if r.bootstrapped {
		return nil
	}
	if err := r.conn.Exec(ctx, bootstrapSQL); err != nil {
		return errors.Wrap(err, "failed to bootstrap registry table")
	}
	r.bootstrapped = true
	return nil
}

// Load returns the group's entries ordered by install sequence position.
func (r *Registry) Load(ctx context.Context) ([]*Entry, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}

	query, args, err := builder.
		Select("object_name", "object_type", "signature", "order_index").
		From(consts.RegistryTable).
		Where("schema_group = ?", r.group).
		OrderBy("order_index").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build registry load query")
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load registry entries")
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{Group: r.group}
		var typ string
		if err := rows.Scan(&e.Name, &typ, &e.Signature, &e.OrderIndex); err != nil {
			return nil, errors.Wrap(err, "failed to scan registry entry")
		}
		e.Type = parser.ObjectType(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Add records a newly installed object. Called immediately after its DDL
// succeeds.
func (r *Registry) Add(ctx context.Context, e *Entry) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}

	query, args, err := builder.
		Insert(consts.RegistryTable).
		Columns("schema_group", "object_name", "object_type", "signature", "order_index").
		Values(r.group, e.Name, string(e.Type), e.Signature, e.OrderIndex).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build registry insert")
	}
	return errors.Wrapf(r.conn.Exec(ctx, query, args...), "failed to register %s %s", e.Type, e.Name)
}

// Update rewrites the signature and order index of an existing entry.
func (r *Registry) Update(ctx context.Context, e *Entry) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}

	query, args, err := builder.
		Update(consts.RegistryTable).
		Set("signature", e.Signature).
		Set("order_index", e.OrderIndex).
		Where(identityWhere, r.group, e.Name, string(e.Type)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build registry update")
	}
	return errors.Wrapf(r.conn.Exec(ctx, query, args...), "failed to update registry entry for %s %s", e.Type, e.Name)
}

// Remove deletes the entry for a dropped object. Called immediately after
// its drop succeeds.
func (r *Registry) Remove(ctx context.Context, e *Entry) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}

	query, args, err := builder.
		Delete(consts.RegistryTable).
		Where(identityWhere, r.group, e.Name, string(e.Type)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build registry delete")
	}
	return errors.Wrapf(r.conn.Exec(ctx, query, args...), "failed to unregister %s %s", e.Type, e.Name)
}

// Contains reports whether an entry exists with matching name, type, and
// signature.
func (r *Registry) Contains(ctx context.Context, name string, typ parser.ObjectType, signature string) (bool, error) {
	if err := r.ensure(ctx); err != nil {
		return false, err
	}

	query, args, err := builder.
		Select("1").
		From(consts.RegistryTable).
		Where(identityWhere+" AND signature = ?", r.group, name, string(typ), signature).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "failed to build registry lookup")
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "failed to query registry")
	}
	defer func() { _ = rows.Close() }()

	return rows.Next(), rows.Err()
}

// Clear removes every entry for the group. Used by uninstall after all
// drops succeed.
func (r *Registry) Clear(ctx context.Context) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}

	query, args, err := builder.
		Delete(consts.RegistryTable).
		Where("schema_group = ?", r.group).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build registry clear")
	}
	return errors.Wrapf(r.conn.Exec(ctx, query, args...), "failed to clear registry for group %s", r.group)
}
