package storage

import (
	"github.com/vyuha/vyuha-lens/db"
)

// ---------------------------------------------------------------------------
// Schema version
// ---------------------------------------------------------------------------

// SchemaVersion is the current database schema version.
const SchemaVersion = 3

// GetSchema returns the initial embedded SQL schema as a string.
func GetSchema() string {
	return db.SchemaSQL
}

// ---------------------------------------------------------------------------
// Migration support
// ---------------------------------------------------------------------------

// Migration describes a single schema migration that can be applied to the
// database. Migrations are ordered by Version and are idempotent.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the ordered list of all schema migrations.
// Apply them sequentially; skip any whose Version is already recorded
// in the schema_migrations table.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: sessions, session_nodes, session_edges",
		SQL:         db.SchemaSQL,
	},
	{
		Version:     2,
		Description: "Add session_combos for grouping containers",
		SQL: `
CREATE TABLE IF NOT EXISTS session_combos (
    session_id TEXT NOT NULL,
    id         TEXT NOT NULL,
    parent_id  TEXT NOT NULL DEFAULT '',
    label      TEXT NOT NULL DEFAULT '',
    ord        INTEGER NOT NULL,
    PRIMARY KEY (session_id, id),
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     3,
		Description: "Add explanations for completed path explanation jobs",
		SQL: `
CREATE TABLE IF NOT EXISTS explanations (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL,
    path        TEXT NOT NULL,
    provider    TEXT NOT NULL DEFAULT '',
    answer      TEXT NOT NULL,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_explanations_session ON explanations(session_id, created_at DESC);
`,
	},
}
