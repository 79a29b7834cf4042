// Package qdrant implements the semantic store on a Qdrant collection.
// Record ids are kept in the payload; point ids are derived from them.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/lazypower/recall/internal/memory"
)

// scrollPage bounds one scroll request during Scan.
const scrollPage = 500

// pointNamespace seeds the deterministic point ids.
var pointNamespace = uuid.MustParse("6f1c5f4e-3b0a-4c59-9a55-0d7f1a7e2c11")

// Payload keys.
const (
	keyID        = "record_id"
	keyTimestamp = "timestamp"
	keyUser      = "user"
	keyProject   = "project"
	keySession   = "session_id"
	keyType      = "type"
	keyContent   = "content"
	keyArchived  = "archived"
	keyModel     = "model"
)

// Config locates the Qdrant gRPC endpoint and collection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// Model tags every point so vectors from another embedder are not
	// compared against the current one.
	Model  string
	Logger *slog.Logger
}

// points is the subset of *qdrant.Client used by Store.
type points interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Get(ctx context.Context, req *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	SetPayload(ctx context.Context, req *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
}

// Store is a semantic store backed by one Qdrant collection.
type Store struct {
	// Model tags written points and filters searches.
	Model string

	api        points
	closer     func() error
	collection string
	logger     *slog.Logger

	mu    sync.Mutex
	ready bool
}

// Open connects to Qdrant. The collection is created on first write, sized
// to the first vector.
func Open(cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	s := newStore(client, cfg)
	s.closer = client.Close
	return s, nil
}

func newStore(api points, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:        api,
		collection: cfg.Collection,
		Model:      cfg.Model,
		logger:     logger,
	}
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Ping reports whether Qdrant answers a health check.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.api.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

// Stale counts points embedded by a model other than the store's.
func (s *Store) Stale(ctx context.Context) (int, error) {
	exists, err := s.api.CollectionExists(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant collection %s: %w", s.collection, err)
	}
	if !exists || s.Model == "" {
		return 0, nil
	}
	n, err := s.api.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			MustNot: []*qdrant.Condition{qdrant.NewMatch(keyModel, s.Model)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count stale: %w", err)
	}
	return int(n), nil
}

// PointID is the Qdrant point id for a record id.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func (s *Store) ensureCollection(ctx context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.api.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection %s: %w", s.collection, err)
	}
	if !exists {
		err := s.api.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant create collection %s: %w", s.collection, err)
		}
		s.logger.Info("created qdrant collection", "collection", s.collection, "dimensions", dims)
	}
	s.ready = true
	return nil
}

// Upsert writes rec and its vector, replacing any earlier point for rec.ID.
func (s *Store) Upsert(ctx context.Context, rec memory.Record, vec []float64) error {
	if len(vec) == 0 {
		return fmt.Errorf("qdrant upsert %s: empty vector", rec.ID)
	}
	if err := s.ensureCollection(ctx, len(vec)); err != nil {
		return err
	}

	_, err := s.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(PointID(rec.ID)),
			Vectors: qdrant.NewVectors(toFloat32(vec)...),
			Payload: qdrant.NewValueMap(s.payload(rec)),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Search returns the nearest live points to vec.
func (s *Store) Search(ctx context.Context, vec []float64, limit int) ([]memory.Record, error) {
	if len(vec) == 0 || limit <= 0 {
		return nil, nil
	}
	filter := &qdrant.Filter{
		MustNot: []*qdrant.Condition{qdrant.NewMatchBool(keyArchived, true)},
	}
	if s.Model != "" {
		filter.Must = append(filter.Must, qdrant.NewMatch(keyModel, s.Model))
	}

	hits, err := s.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(toFloat32(vec)...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	records := make([]memory.Record, 0, len(hits))
	for _, h := range hits {
		rec := fromPayload(h.GetPayload())
		rec.Similarity = float64(h.GetScore())
		records = append(records, rec)
	}
	return records, nil
}

// Get returns the record for id, or memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	found, err := s.api.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get %s: %w", id, err)
	}
	if len(found) == 0 {
		return nil, memory.ErrNotFound
	}
	rec := fromPayload(found[0].GetPayload())
	return &rec, nil
}

// SetArchived updates the archived flag in place without touching the vector.
func (s *Store) SetArchived(ctx context.Context, id string, archived bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return fmt.Errorf("qdrant archive %s: %w", id, err)
	}
	_, err := s.api.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Payload:        qdrant.NewValueMap(map[string]any{keyArchived: archived}),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(PointID(id))),
	})
	if err != nil {
		return fmt.Errorf("qdrant archive %s: %w", id, err)
	}
	return nil
}

// Scan pages through the collection with the filter pushed down to Qdrant.
func (s *Store) Scan(ctx context.Context, filter memory.ScanFilter, fn func(memory.Record) error) error {
	qf := &qdrant.Filter{}
	if !filter.IncludeArchived {
		qf.MustNot = append(qf.MustNot, qdrant.NewMatchBool(keyArchived, true))
	}
	if filter.Project != "" {
		qf.Must = append(qf.Must, qdrant.NewMatch(keyProject, filter.Project))
	}
	if filter.Type != nil {
		qf.Must = append(qf.Must, qdrant.NewMatch(keyType, filter.Type.String()))
	}

	var offset *qdrant.PointId
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// one extra point tells us where the next page starts
		page, err := s.api.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         qf,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPage + 1)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant scroll: %w", err)
		}

		offset = nil
		if len(page) > scrollPage {
			offset = page[scrollPage].GetId()
			page = page[:scrollPage]
		}
		for _, p := range page {
			rec := fromPayload(p.GetPayload())
			if !filter.Match(rec) {
				continue
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		if offset == nil {
			return nil
		}
	}
}

func (s *Store) payload(rec memory.Record) map[string]any {
	return map[string]any{
		keyID:        rec.ID,
		keyTimestamp: rec.Timestamp,
		keyUser:      rec.User,
		keyProject:   rec.Project,
		keySession:   rec.SessionID,
		keyType:      rec.Type.String(),
		keyContent:   rec.Content,
		keyArchived:  rec.Archived,
		keyModel:     s.Model,
	}
}

func fromPayload(p map[string]*qdrant.Value) memory.Record {
	str := func(k string) string { return p[k].GetStringValue() }
	typ, _ := memory.ParseType(str(keyType))
	return memory.Record{
		ID:        str(keyID),
		Timestamp: str(keyTimestamp),
		User:      str(keyUser),
		Project:   str(keyProject),
		SessionID: str(keySession),
		Type:      typ,
		Content:   str(keyContent),
		Archived:  p[keyArchived].GetBoolValue(),
		Source:    memory.SourceSemantic,
	}
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
