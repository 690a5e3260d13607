// Package schema provides the object model for installable T-SQL DDL.
//
// An Object is the parsed, fingerprinted form of one DDL statement; a
// Collection is the ordered desired state for one schema group. Collections
// expand directive markers (AUTOPROC, INDEXEDVIEW) into the concrete working
// set the installer diffs against the registry.
package schema
