package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lazypower/recall/internal/memory"
)

// Edge labels in the memory graph.
const (
	RelRelatedTo = "RELATED_TO" // log → project
	RelInSession = "IN_SESSION" // log → session
	RelCreated   = "CREATED"    // user → log
	RelIsType    = "IS_TYPE"    // log → type
)

// Graph is the relational backend: log nodes linked to their project,
// session, author and type.
type Graph struct {
	db *DB
}

// NewGraph returns the graph backend stored in db.
func NewGraph(db *DB) *Graph {
	return &Graph{db: db}
}

// Link merges rec into the graph as a log node with its edges. Linking the
// same id again replaces the node payload and keeps existing edges.
func (g *Graph) Link(ctx context.Context, rec memory.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("link %s: %w", rec.ID, err)
	}
	defer tx.Rollback()

	logID, err := mergeNode(ctx, tx, "log", rec.ID, rec.Timestamp, string(payload))
	if err != nil {
		return fmt.Errorf("link %s: %w", rec.ID, err)
	}

	edges := []struct {
		kind, key, rel string
		inbound        bool
	}{
		{"project", rec.Project, RelRelatedTo, false},
		{"session", rec.SessionID, RelInSession, false},
		{"type", rec.Type.String(), RelIsType, false},
		{"user", rec.User, RelCreated, true},
	}
	for _, e := range edges {
		if e.key == "" {
			continue
		}
		nodeID, err := mergeNode(ctx, tx, e.kind, e.key, "", "")
		if err != nil {
			return fmt.Errorf("link %s: %w", rec.ID, err)
		}
		src, dst := logID, nodeID
		if e.inbound {
			src, dst = nodeID, logID
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO graph_edges (src, dst, rel) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
			src, dst, e.rel); err != nil {
			return fmt.Errorf("link %s %s: %w", rec.ID, e.rel, err)
		}
	}

	return tx.Commit()
}

func mergeNode(ctx context.Context, tx *sql.Tx, kind, key, ts, payload string) (int64, error) {
	var p any
	if payload != "" {
		p = payload
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO graph_nodes (kind, key, ts, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET
			ts = CASE WHEN excluded.payload IS NULL THEN ts ELSE excluded.ts END,
			payload = COALESCE(excluded.payload, payload)
	`, kind, key, ts, p)
	if err != nil {
		return 0, fmt.Errorf("merge %s node: %w", kind, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM graph_nodes WHERE kind = ? AND key = ?", kind, key).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup %s node: %w", kind, err)
	}
	return id, nil
}

// ByProject returns logs related to project, newest first.
func (g *Graph) ByProject(ctx context.Context, project string, limit int) ([]memory.Record, error) {
	if project == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := g.db.QueryContext(ctx, `
		SELECT l.payload
		FROM graph_nodes p
		JOIN graph_edges e ON e.dst = p.id AND e.rel = 'RELATED_TO'
		JOIN graph_nodes l ON l.id = e.src AND l.kind = 'log'
		WHERE p.kind = 'project' AND p.key = ?
		ORDER BY l.ts DESC, l.key
		LIMIT ?
	`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("by project: %w", err)
	}
	return scanPayloads(rows)
}

// BySessionNeighborhood starts from the logs of sessionID and walks
// RELATED_TO edges in either direction up to depth hops, returning the
// other logs it reaches, newest first. With depth 2 that is every log
// sharing a project with the session.
func (g *Graph) BySessionNeighborhood(ctx context.Context, sessionID string, depth, limit int) ([]memory.Record, error) {
	if sessionID == "" || depth <= 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := g.db.QueryContext(ctx, `
		WITH RECURSIVE
		seeds(id) AS (
			SELECT l.id
			FROM graph_nodes s
			JOIN graph_edges e ON e.dst = s.id AND e.rel = 'IN_SESSION'
			JOIN graph_nodes l ON l.id = e.src
			WHERE s.kind = 'session' AND s.key = ?
		),
		related(a, b) AS (
			SELECT src, dst FROM graph_edges WHERE rel = 'RELATED_TO'
			UNION ALL
			SELECT dst, src FROM graph_edges WHERE rel = 'RELATED_TO'
		),
		walk(origin, node, hops) AS (
			SELECT id, id, 0 FROM seeds
			UNION
			SELECT w.origin, r.b, w.hops + 1
			FROM walk w JOIN related r ON r.a = w.node
			WHERE w.hops < ?
		)
		SELECT n.payload
		FROM graph_nodes n
		WHERE n.kind = 'log' AND n.id IN (
			SELECT node FROM walk WHERE hops > 0 AND node != origin
		)
		ORDER BY n.ts DESC, n.key
		LIMIT ?
	`, sessionID, depth, limit)
	if err != nil {
		return nil, fmt.Errorf("session neighborhood: %w", err)
	}
	return scanPayloads(rows)
}

func scanPayloads(rows *sql.Rows) ([]memory.Record, error) {
	defer rows.Close()
	var records []memory.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan log node: %w", err)
		}
		var rec memory.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode log node: %w", err)
		}
		rec.Source = memory.SourceRelational
		rec.Score, rec.Similarity = 0, 0
		records = append(records, rec)
	}
	return records, rows.Err()
}
