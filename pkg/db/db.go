// Package db defines the narrow database connection surface groundskeeper
// requires and an adapter over database/sql.
//
// The core never opens, closes, commits, or rolls back a connection. Callers
// are expected to hand the installer a Conn that is already scoped to a
// transaction covering the whole Install or Uninstall call, so that a
// failure partway through leaves both the database and the registry in their
// pre-call state.
//
// Example usage:
//
//	sqlDB, err := sql.Open("sqlserver", url)
//	if err != nil {
//		return err
//	}
//	tx, err := sqlDB.BeginTx(ctx, nil)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback()
//
//	conn := db.Wrap(tx)
//	if err := inst.Install(ctx, "app", collection); err != nil {
//		return err
//	}
//	return tx.Commit()
package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

type (
	// Conn is the database surface required by groundskeeper: execute DDL
	// or DML text, and run row-returning queries. Both *sql.DB and *sql.Tx
	// satisfy the underlying contract via Wrap.
	Conn interface {
		// Exec executes a statement that returns no rows.
		Exec(ctx context.Context, query string, args ...any) error

		// Query executes a row-returning query.
		Query(ctx context.Context, query string, args ...any) (Rows, error)
	}

	// Rows is the minimal result-set surface consumed by groundskeeper.
	// *sql.Rows satisfies it directly.
	Rows interface {
		Next() bool
		Scan(dest ...any) error
		Err() error
		Close() error
	}

	// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
	DBTX interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	}

	sqlConn struct {
		dbtx DBTX
	}
)

// Wrap adapts a *sql.DB or *sql.Tx to the Conn interface.
//
// Wrapping a *sql.Tx is the intended production use: the transaction scope
// is owned by the caller and spans the whole installer call.
func Wrap(dbtx DBTX) Conn {
	return &sqlConn{dbtx: dbtx}
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := c.dbtx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "exec failed: %s", query)
	}
	return nil
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.dbtx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query failed: %s", query)
	}
	return rows, nil
}
