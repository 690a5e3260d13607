// Package utils provides shared helpers for T-SQL identifier handling and
// DDL statement construction.
//
// The identifier helpers implement the single canonicalization rule used for
// object identity everywhere in groundskeeper: delimiters stripped, case
// folded, default schema applied. The SQLBuilder offers a small fluent API
// for the DDL statements the installer generates itself (drops, alters);
// authored DDL always executes verbatim and never passes through it.
package utils
