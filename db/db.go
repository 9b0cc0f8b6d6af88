// Package db embeds the SQL schema so the binary carries it.
package db

import _ "embed"

// SchemaSQL is the initial schema applied by storage migration v1.
//
//go:embed schema.sql
var SchemaSQL string
