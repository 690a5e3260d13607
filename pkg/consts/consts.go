package consts

import "os"

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// DefaultSchema is the schema applied to unqualified object names
	// during canonicalization.
	DefaultSchema = "dbo"

	// RegistryTable is the name of the table used to track installed
	// schema objects. It lives in the default schema and is created on
	// first use.
	RegistryTable = "groundskeeper_registry"
)
