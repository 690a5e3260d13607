package installer

// UnsupportedAlterError indicates a requested table change that cannot be
// expressed as a safe in-place alteration. The install call aborts rather
// than silently dropping and recreating a data-bearing structure.
type UnsupportedAlterError struct {
	// Table is the canonical name of the table being altered.
	Table string

	// Column is the column whose change cannot be applied in place.
	Column string

	// Reason describes why the change is unsupported.
	Reason string
}

func (e *UnsupportedAlterError) Error() string {
	return "unsupported alteration of " + e.Table + "." + e.Column + ": " + e.Reason
}

// DbExecutionError wraps a DDL or query failure from the connection. It
// aborts the remaining steps of the call; the caller's transaction scope is
// expected to discard the partial work.
type DbExecutionError struct {
	// Sql is the statement that failed.
	Sql string

	// Err is the underlying connection error.
	Err error
}

func (e *DbExecutionError) Error() string {
	return "ddl execution failed: " + e.Err.Error()
}

func (e *DbExecutionError) Unwrap() error {
	return e.Err
}
