package engine

import (
	"context"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// ErrNotFound is returned by stores when a record id is unknown.
var ErrNotFound = memory.ErrNotFound

// SemanticSource finds records whose embeddings are close to a query
// vector. Archived records are never returned.
type SemanticSource interface {
	Search(ctx context.Context, vec []float64, limit int) ([]memory.Record, error)
}

// SemanticStore is the full semantic collection used by the lifecycle
// manager and ingestion.
type SemanticStore interface {
	SemanticSource
	// Scan streams every record matching filter. Returning a non-nil error
	// from fn stops the scan and is returned unchanged.
	Scan(ctx context.Context, filter memory.ScanFilter, fn func(memory.Record) error) error
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (*memory.Record, error)
	// Upsert inserts or replaces the record keyed by rec.ID.
	Upsert(ctx context.Context, rec memory.Record, vec []float64) error
	SetArchived(ctx context.Context, id string, archived bool) error
}

// TemporalSource returns records in a time window, newest first. It does
// not filter archived records.
type TemporalSource interface {
	Since(ctx context.Context, since time.Time, limit int) ([]memory.Record, error)
}

// TemporalStore adds writes to TemporalSource.
type TemporalStore interface {
	TemporalSource
	Append(ctx context.Context, rec memory.Record) error
}

// RelationalSource traverses the memory graph. It does not filter archived
// records.
type RelationalSource interface {
	ByProject(ctx context.Context, project string, limit int) ([]memory.Record, error)
	BySessionNeighborhood(ctx context.Context, sessionID string, depth, limit int) ([]memory.Record, error)
}

// RelationalStore adds writes to RelationalSource.
type RelationalStore interface {
	RelationalSource
	Link(ctx context.Context, rec memory.Record) error
}

// Ledger holds per-record retention boosts. Boosts start at 0 and only grow.
type Ledger interface {
	Boost(ctx context.Context, id string) (float64, error)
	// Reinforce adds delta to every id exactly once per token. It reports
	// false when token was already applied.
	Reinforce(ctx context.Context, token string, ids []string, delta float64) (bool, error)
}

// Journal records lifecycle progress per group so an interrupted run can
// be finished by the next one.
type Journal interface {
	Open(ctx context.Context, entry memory.GroupEntry) error
	Advance(ctx context.Context, token string, stage memory.Stage) error
	Pending(ctx context.Context) ([]memory.GroupEntry, error)
}
