package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// Journal records lifecycle progress per summary group.
type Journal struct {
	db *DB
}

// NewJournal returns the lifecycle journal stored in db.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// Open journals a freshly published group.
func (j *Journal) Open(ctx context.Context, entry memory.GroupEntry) error {
	ids, err := json.Marshal(entry.RecordIDs)
	if err != nil {
		return fmt.Errorf("encode group %s: %w", entry.Token, err)
	}
	stage := entry.Stage
	if stage == "" {
		stage = memory.StagePublished
	}
	at := entry.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO lifecycle_groups (token, project, month, summary_id, record_ids, stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Token, entry.Key.Project, entry.Key.Month, entry.SummaryID, string(ids),
		string(stage), at.UnixMilli(), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("open group %s: %w", entry.Token, err)
	}
	return nil
}

// Advance moves the group identified by token to stage.
func (j *Journal) Advance(ctx context.Context, token string, stage memory.Stage) error {
	res, err := j.db.ExecContext(ctx,
		"UPDATE lifecycle_groups SET stage = ?, updated_at = ? WHERE token = ?",
		string(stage), time.Now().UnixMilli(), token)
	if err != nil {
		return fmt.Errorf("advance group %s: %w", token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("advance group %s: %w", token, memory.ErrNotFound)
	}
	return nil
}

// Pending returns groups that have not reached the reinforced stage,
// oldest first.
func (j *Journal) Pending(ctx context.Context) ([]memory.GroupEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT token, project, month, summary_id, record_ids, stage, updated_at
		FROM lifecycle_groups
		WHERE stage != 'reinforced'
		ORDER BY created_at, token
	`)
	if err != nil {
		return nil, fmt.Errorf("pending groups: %w", err)
	}
	defer rows.Close()

	var entries []memory.GroupEntry
	for rows.Next() {
		var e memory.GroupEntry
		var ids, stage string
		var updated int64
		if err := rows.Scan(&e.Token, &e.Key.Project, &e.Key.Month, &e.SummaryID, &ids, &stage, &updated); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &e.RecordIDs); err != nil {
			return nil, fmt.Errorf("decode group %s: %w", e.Token, err)
		}
		e.Stage = memory.Stage(stage)
		e.UpdatedAt = time.UnixMilli(updated).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
