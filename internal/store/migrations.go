package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "semantic_records: records with embeddings for similarity search",
		SQL: `
CREATE TABLE semantic_records (
    id          TEXT PRIMARY KEY,
    timestamp   TEXT NOT NULL DEFAULT '',
    user        TEXT NOT NULL DEFAULT '',
    project     TEXT NOT NULL DEFAULT '',
    session_id  TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT 'general',
    content     TEXT NOT NULL,
    archived    INTEGER NOT NULL DEFAULT 0 CHECK (archived IN (0, 1)),

    embedding   BLOB,
    model       TEXT NOT NULL DEFAULT '',
    dimensions  INTEGER NOT NULL DEFAULT 0,

    updated_at  INTEGER NOT NULL
);

CREATE INDEX idx_semantic_archived ON semantic_records(archived);
CREATE INDEX idx_semantic_project  ON semantic_records(project);
`,
	},
	{
		Version:     2,
		Description: "timeline: append-only chronological log",
		SQL: `
CREATE TABLE timeline (
    seq         INTEGER PRIMARY KEY,
    id          TEXT NOT NULL UNIQUE,
    timestamp   TEXT NOT NULL DEFAULT '',
    ts_unix     INTEGER,
    user        TEXT NOT NULL DEFAULT '',
    project     TEXT NOT NULL DEFAULT '',
    session_id  TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT 'general',
    content     TEXT NOT NULL,
    appended_at INTEGER NOT NULL
);

CREATE INDEX idx_timeline_ts ON timeline(ts_unix DESC);
`,
	},
	{
		Version:     3,
		Description: "graph: log, project, session, user and type nodes with typed edges",
		SQL: `
CREATE TABLE graph_nodes (
    id       INTEGER PRIMARY KEY,
    kind     TEXT NOT NULL CHECK (kind IN ('log', 'project', 'session', 'user', 'type')),
    key      TEXT NOT NULL,
    ts       TEXT NOT NULL DEFAULT '',
    payload  TEXT,
    UNIQUE (kind, key)
);

CREATE TABLE graph_edges (
    src  INTEGER NOT NULL,
    dst  INTEGER NOT NULL,
    rel  TEXT NOT NULL CHECK (rel IN ('RELATED_TO', 'IN_SESSION', 'CREATED', 'IS_TYPE')),
    PRIMARY KEY (src, dst, rel),
    FOREIGN KEY (src) REFERENCES graph_nodes(id) ON DELETE CASCADE,
    FOREIGN KEY (dst) REFERENCES graph_nodes(id) ON DELETE CASCADE
);

CREATE INDEX idx_edges_dst ON graph_edges(dst, rel);
`,
	},
	{
		Version:     4,
		Description: "retention ledger: per-record boosts and applied reinforcement tokens",
		SQL: `
CREATE TABLE retention_boosts (
    id          TEXT PRIMARY KEY,
    boost       REAL NOT NULL DEFAULT 0 CHECK (boost >= 0),
    updated_at  INTEGER NOT NULL
);

CREATE TABLE reinforcements (
    token       TEXT PRIMARY KEY,
    record_count INTEGER NOT NULL,
    delta       REAL NOT NULL,
    applied_at  INTEGER NOT NULL
);
`,
	},
	{
		Version:     5,
		Description: "lifecycle_groups: per-group retirement journal",
		SQL: `
CREATE TABLE lifecycle_groups (
    token       TEXT PRIMARY KEY,
    project     TEXT NOT NULL,
    month       TEXT NOT NULL,
    summary_id  TEXT NOT NULL,
    record_ids  TEXT NOT NULL,
    stage       TEXT NOT NULL CHECK (stage IN ('published', 'archived', 'reinforced')),
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX idx_lifecycle_stage ON lifecycle_groups(stage);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
