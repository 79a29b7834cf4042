package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// SemanticStore keeps records with their embeddings and answers similarity
// queries by brute-force cosine over every live row.
type SemanticStore struct {
	db *DB

	// Model tags vectors written by Upsert with the embedder that produced
	// them.
	Model string
}

// NewSemanticStore returns the semantic backend stored in db.
func NewSemanticStore(db *DB, model string) *SemanticStore {
	return &SemanticStore{db: db, Model: model}
}

// Upsert inserts or replaces the record keyed by rec.ID.
func (s *SemanticStore) Upsert(ctx context.Context, rec memory.Record, vec []float64) error {
	var blob []byte
	if len(vec) > 0 {
		blob = encodeEmbedding(vec)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO semantic_records
			(id, timestamp, user, project, session_id, type, content, archived, embedding, model, dimensions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp, user = excluded.user, project = excluded.project,
			session_id = excluded.session_id, type = excluded.type, content = excluded.content,
			archived = excluded.archived, embedding = excluded.embedding, model = excluded.model,
			dimensions = excluded.dimensions, updated_at = excluded.updated_at
	`, rec.ID, rec.Timestamp, rec.User, rec.Project, rec.SessionID, rec.Type.String(),
		rec.Content, boolInt(rec.Archived), blob, s.Model, len(vec), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Stale counts records whose vectors were produced by a model other than
// s.Model. Those rows are invisible to Search until reindexed.
func (s *SemanticStore) Stale(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM semantic_records WHERE model != ?", s.Model).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale: %w", err)
	}
	return n, nil
}

// Get returns the record with id, or memory.ErrNotFound.
func (s *SemanticStore) Get(ctx context.Context, id string) (*memory.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, user, project, session_id, type, content, archived
		FROM semantic_records WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	rec.Source = memory.SourceSemantic
	return &rec, nil
}

// SetArchived flags or unflags a record.
func (s *SemanticStore) SetArchived(ctx context.Context, id string, archived bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE semantic_records SET archived = ?, updated_at = ? WHERE id = ?",
		boolInt(archived), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("archive %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("archive %s: %w", id, memory.ErrNotFound)
	}
	return nil
}

// Scan calls fn for every record matching filter, in id order. Rows are
// read fully before fn runs so fn may write to the store.
func (s *SemanticStore) Scan(ctx context.Context, filter memory.ScanFilter, fn func(memory.Record) error) error {
	var where []string
	var args []any
	if !filter.IncludeArchived {
		where = append(where, "archived = 0")
	}
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, filter.Type.String())
	}

	query := "SELECT id, timestamp, user, project, session_id, type, content, archived FROM semantic_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	var records []memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan row: %w", err)
		}
		rec.Source = memory.SourceSemantic
		records = append(records, rec)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Search returns up to limit live records ordered by cosine similarity to
// vec. Rows embedded by another model are ignored.
func (s *SemanticStore) Search(ctx context.Context, vec []float64, limit int) ([]memory.Record, error) {
	if len(vec) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user, project, session_id, type, content, archived, embedding
		FROM semantic_records
		WHERE archived = 0 AND dimensions = ? AND model = ?
	`, len(vec), s.Model)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []memory.Record
	for rows.Next() {
		var rec memory.Record
		var typ string
		var archived int
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.User, &rec.Project, &rec.SessionID,
			&typ, &rec.Content, &archived, &blob); err != nil {
			return nil, fmt.Errorf("search row: %w", err)
		}
		rec.Type, _ = memory.ParseType(typ)
		rec.Source = memory.SourceSemantic
		rec.Similarity = memory.CosineSimilarity(vec, decodeEmbedding(blob))
		hits = append(hits, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of stored records, archived included.
func (s *SemanticStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM semantic_records").Scan(&n)
	return n, err
}

// Ping reports whether the backing database is reachable.
func (s *SemanticStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (memory.Record, error) {
	var rec memory.Record
	var typ string
	var archived int
	if err := row.Scan(&rec.ID, &rec.Timestamp, &rec.User, &rec.Project, &rec.SessionID,
		&typ, &rec.Content, &archived); err != nil {
		return rec, err
	}
	rec.Type, _ = memory.ParseType(typ)
	rec.Archived = archived == 1
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
