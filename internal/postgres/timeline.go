// Package postgres provides the temporal store on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lazypower/recall/internal/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS recall_timeline (
    seq         BIGSERIAL PRIMARY KEY,
    id          TEXT NOT NULL UNIQUE,
    timestamp   TEXT NOT NULL DEFAULT '',
    ts          TIMESTAMPTZ,
    username    TEXT NOT NULL DEFAULT '',
    project     TEXT NOT NULL DEFAULT '',
    session_id  TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT 'general',
    content     TEXT NOT NULL,
    appended_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS recall_timeline_ts ON recall_timeline (ts DESC);
`

// Timeline is an append-only chronological store in PostgreSQL.
type Timeline struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and creates the table if
// needed.
func Open(ctx context.Context, dsn string) (*Timeline, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Timeline{pool: pool}, nil
}

// Close releases the pool.
func (t *Timeline) Close() {
	t.pool.Close()
}

// Ping reports whether the database is reachable.
func (t *Timeline) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}

// Append adds rec; an id that is already present is left unchanged.
func (t *Timeline) Append(ctx context.Context, rec memory.Record) error {
	var ts *time.Time
	if parsed, outcome := rec.Time(); outcome == memory.TimeOK {
		ts = &parsed
	}
	_, err := t.pool.Exec(ctx, `
		INSERT INTO recall_timeline (id, timestamp, ts, username, project, session_id, type, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Timestamp, ts, rec.User, rec.Project, rec.SessionID, rec.Type.String(), rec.Content)
	if err != nil {
		return fmt.Errorf("append %s: %w", rec.ID, err)
	}
	return nil
}

// Since returns records timestamped strictly after since, newest first.
func (t *Timeline) Since(ctx context.Context, since time.Time, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := t.pool.Query(ctx, `
		SELECT id, timestamp, username, project, session_id, type, content
		FROM recall_timeline
		WHERE ts IS NOT NULL AND ts > $1
		ORDER BY ts DESC, seq DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("timeline between: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Record, error) {
		var rec memory.Record
		var typ string
		err := row.Scan(&rec.ID, &rec.Timestamp, &rec.User, &rec.Project, &rec.SessionID, &typ, &rec.Content)
		rec.Type, _ = memory.ParseType(typ)
		rec.Source = memory.SourceTemporal
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan timeline: %w", err)
	}
	return records, nil
}

// Truncate removes every row.
func (t *Timeline) Truncate(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, "TRUNCATE recall_timeline")
	return err
}
