package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ledger is the retention ledger: a non-negative boost per record id that
// only ever grows.
type Ledger struct {
	db *DB
}

// NewLedger returns the ledger stored in db.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// Boost returns the current boost for id, 0 when none was recorded.
func (l *Ledger) Boost(ctx context.Context, id string) (float64, error) {
	var boost float64
	err := l.db.QueryRowContext(ctx, "SELECT boost FROM retention_boosts WHERE id = ?", id).Scan(&boost)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("boost %s: %w", id, err)
	}
	return boost, nil
}

// Increment adds delta to the boost of id, creating the entry if absent.
func (l *Ledger) Increment(ctx context.Context, id string, delta float64) error {
	if delta < 0 {
		return fmt.Errorf("increment %s: negative delta %v", id, delta)
	}
	if err := increment(ctx, l.db, id, delta); err != nil {
		return fmt.Errorf("increment %s: %w", id, err)
	}
	return nil
}

// Reinforce adds delta to every id in one transaction and records token.
// A token that was already applied changes nothing and reports false.
func (l *Ledger) Reinforce(ctx context.Context, token string, ids []string, delta float64) (bool, error) {
	if token == "" {
		return false, fmt.Errorf("reinforce: empty token")
	}
	if delta < 0 {
		return false, fmt.Errorf("reinforce %s: negative delta %v", token, delta)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("reinforce %s: %w", token, err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool, len(ids))
	unique := ids[:0:0]
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reinforcements (token, record_count, delta, applied_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, len(unique), delta, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("reinforce %s: %w", token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	for _, id := range unique {
		if err := increment(ctx, tx, id, delta); err != nil {
			return false, fmt.Errorf("reinforce %s: %s: %w", token, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("reinforce %s: commit: %w", token, err)
	}
	return true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func increment(ctx context.Context, ex execer, id string, delta float64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO retention_boosts (id, boost, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET boost = boost + excluded.boost, updated_at = excluded.updated_at
	`, id, delta, time.Now().UnixMilli())
	return err
}
