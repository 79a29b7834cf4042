package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// Timeline is the append-only chronological store. It keeps records as
// they were first appended and knows nothing about archiving.
type Timeline struct {
	db *DB
}

// NewTimeline returns the temporal backend stored in db.
func NewTimeline(db *DB) *Timeline {
	return &Timeline{db: db}
}

// Append adds rec to the log. Appending an id that is already present is
// a no-op.
func (t *Timeline) Append(ctx context.Context, rec memory.Record) error {
	var tsUnix any
	if ts, outcome := rec.Time(); outcome == memory.TimeOK {
		tsUnix = ts.UnixMilli()
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO timeline (id, timestamp, ts_unix, user, project, session_id, type, content, appended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.Timestamp, tsUnix, rec.User, rec.Project, rec.SessionID,
		rec.Type.String(), rec.Content, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("append %s: %w", rec.ID, err)
	}
	return nil
}

// Since returns records timestamped strictly after since, newest first.
// Future-dated records are included. Records without a parsable timestamp
// never match.
func (t *Timeline) Since(ctx context.Context, since time.Time, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, timestamp, user, project, session_id, type, content
		FROM timeline
		WHERE ts_unix IS NOT NULL AND ts_unix > ?
		ORDER BY ts_unix DESC, seq DESC
		LIMIT ?
	`, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("timeline between: %w", err)
	}
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		var rec memory.Record
		var typ string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.User, &rec.Project, &rec.SessionID,
			&typ, &rec.Content); err != nil {
			return nil, fmt.Errorf("scan timeline: %w", err)
		}
		rec.Type, _ = memory.ParseType(typ)
		rec.Source = memory.SourceTemporal
		records = append(records, rec)
	}
	return records, rows.Err()
}
