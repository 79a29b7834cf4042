package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/memory"
)

var _ engine.SemanticStore = (*Store)(nil)

// fakePoints is an in-memory collection that evaluates the keyword and
// boolean match conditions Store sends.
type fakePoints struct {
	exists  bool
	dims    uint64
	order   []string
	payload map[string]map[string]*qdrant.Value
	queries []*qdrant.QueryPoints
	scrolls int
	down    bool
}

func newFake() *fakePoints {
	return &fakePoints{payload: map[string]map[string]*qdrant.Value{}}
}

func (f *fakePoints) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.exists, nil
}

func (f *fakePoints) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	f.exists = true
	f.dims = req.GetVectorsConfig().GetParams().GetSize()
	return nil
}

func (f *fakePoints) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	for _, p := range req.GetPoints() {
		id := p.GetId().GetUuid()
		if _, ok := f.payload[id]; !ok {
			f.order = append(f.order, id)
		}
		f.payload[id] = p.GetPayload()
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries = append(f.queries, req)
	var out []*qdrant.ScoredPoint
	for i, id := range f.order {
		if !matches(f.payload[id], req.GetFilter()) {
			continue
		}
		out = append(out, &qdrant.ScoredPoint{
			Id:      qdrant.NewID(id),
			Payload: f.payload[id],
			Score:   float32(0.9 - 0.1*float64(i)),
		})
		if uint64(len(out)) == req.GetLimit() {
			break
		}
	}
	return out, nil
}

func (f *fakePoints) Get(ctx context.Context, req *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error) {
	var out []*qdrant.RetrievedPoint
	for _, id := range req.GetIds() {
		if p, ok := f.payload[id.GetUuid()]; ok {
			out = append(out, &qdrant.RetrievedPoint{Id: id, Payload: p})
		}
	}
	return out, nil
}

func (f *fakePoints) SetPayload(ctx context.Context, req *qdrant.SetPayloadPoints) (*qdrant.UpdateResult, error) {
	for _, id := range req.GetPointsSelector().GetPoints().GetIds() {
		p, ok := f.payload[id.GetUuid()]
		if !ok {
			return nil, fmt.Errorf("no point %s", id.GetUuid())
		}
		for k, v := range req.GetPayload() {
			p[k] = v
		}
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	f.scrolls++
	ids := append([]string(nil), f.order...)
	sort.Strings(ids)
	start := req.GetOffset().GetUuid()

	var out []*qdrant.RetrievedPoint
	for _, id := range ids {
		if start != "" && id < start {
			continue
		}
		if !matches(f.payload[id], req.GetFilter()) {
			continue
		}
		out = append(out, &qdrant.RetrievedPoint{Id: qdrant.NewID(id), Payload: f.payload[id]})
		if uint32(len(out)) == req.GetLimit() {
			break
		}
	}
	return out, nil
}

func (f *fakePoints) Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error) {
	var n uint64
	for _, id := range f.order {
		if matches(f.payload[id], req.GetFilter()) {
			n++
		}
	}
	return n, nil
}

func (f *fakePoints) HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	return &qdrant.HealthCheckReply{Title: "fake", Version: "1.17.0"}, nil
}

func matches(p map[string]*qdrant.Value, f *qdrant.Filter) bool {
	hit := func(c *qdrant.Condition) bool {
		fc := c.GetField()
		v := p[fc.GetKey()]
		switch m := fc.GetMatch().GetMatchValue().(type) {
		case *qdrant.Match_Keyword:
			return v.GetStringValue() == m.Keyword
		case *qdrant.Match_Boolean:
			return v.GetBoolValue() == m.Boolean
		}
		return false
	}
	for _, c := range f.GetMust() {
		if !hit(c) {
			return false
		}
	}
	for _, c := range f.GetMustNot() {
		if hit(c) {
			return false
		}
	}
	return true
}

func record(id, project string) memory.Record {
	return memory.Record{
		ID: id, Project: project, User: "eve", SessionID: "s1",
		Timestamp: "2024-04-01T09:00:00Z", Type: memory.TypeMilestone, Content: "content " + id,
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a, b := PointID("log-1"), PointID("log-1")
	if a != b {
		t.Errorf("PointID not stable: %s vs %s", a, b)
	}
	if a == PointID("log-2") {
		t.Error("different ids share a point id")
	}
}

func TestUpsertCreatesCollectionOnce(t *testing.T) {
	fake := newFake()
	s := newStore(fake, Config{Collection: "semantic_logs", Model: "m"})
	ctx := context.Background()

	if err := s.Upsert(ctx, record("a", "apollo"), []float64{1, 0, 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !fake.exists || fake.dims != 3 {
		t.Errorf("collection exists=%v dims=%d", fake.exists, fake.dims)
	}
	if err := s.Upsert(ctx, record("b", "apollo"), nil); err == nil {
		t.Error("empty vector should be rejected")
	}
}

func TestGetRoundTripsPayload(t *testing.T) {
	s := newStore(newFake(), Config{Collection: "c", Model: "m"})
	ctx := context.Background()
	s.Upsert(ctx, record("a", "apollo"), []float64{1})

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := record("a", "apollo")
	want.Source = memory.SourceSemantic
	if *got != want {
		t.Errorf("Get = %+v\nwant %+v", *got, want)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestSearchExcludesArchivedAndOtherModels(t *testing.T) {
	fake := newFake()
	ctx := context.Background()
	old := newStore(fake, Config{Collection: "c", Model: "old"})
	old.Upsert(ctx, record("stale", "apollo"), []float64{1})

	s := newStore(fake, Config{Collection: "c", Model: "cur"})
	s.Upsert(ctx, record("live", "apollo"), []float64{1})
	s.Upsert(ctx, record("gone", "apollo"), []float64{1})
	if err := s.SetArchived(ctx, "gone", true); err != nil {
		t.Fatalf("SetArchived: %v", err)
	}

	hits, err := s.Search(ctx, []float64{1}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "live" {
		t.Fatalf("hits = %v, want [live]", memory.IDs(hits))
	}
	if hits[0].Similarity <= 0 {
		t.Errorf("Similarity = %v", hits[0].Similarity)
	}
	if got := fake.queries[0].GetLimit(); got != 5 {
		t.Errorf("limit = %d", got)
	}
}

func TestSetArchivedUnknown(t *testing.T) {
	s := newStore(newFake(), Config{Collection: "c"})
	if err := s.SetArchived(context.Background(), "nope", true); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestScanPagesAndFilters(t *testing.T) {
	fake := newFake()
	s := newStore(fake, Config{Collection: "c", Model: "m"})
	ctx := context.Background()

	total := scrollPage + 20
	for i := 0; i < total; i++ {
		project := "apollo"
		if i%2 == 1 {
			project = "hermes"
		}
		s.Upsert(ctx, record(fmt.Sprintf("r%04d", i), project), []float64{1})
	}
	s.SetArchived(ctx, "r0000", true)

	var live int
	err := s.Scan(ctx, memory.ScanFilter{}, func(memory.Record) error {
		live++
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if live != total-1 {
		t.Errorf("live = %d, want %d", live, total-1)
	}
	if fake.scrolls != 2 {
		t.Errorf("scrolls = %d, want 2", fake.scrolls)
	}

	var hermes int
	s.Scan(ctx, memory.ScanFilter{Project: "hermes", IncludeArchived: true}, func(r memory.Record) error {
		if r.Project != "hermes" {
			t.Errorf("project filter leaked %s", r.ID)
		}
		hermes++
		return nil
	})
	if hermes != total/2 {
		t.Errorf("hermes = %d, want %d", hermes, total/2)
	}
}

func TestStaleCountsOtherModels(t *testing.T) {
	fake := newFake()
	ctx := context.Background()
	s := newStore(fake, Config{Collection: "c", Model: "cur"})

	if n, err := s.Stale(ctx); err != nil || n != 0 {
		t.Fatalf("Stale before collection = %d, %v", n, err)
	}

	old := newStore(fake, Config{Collection: "c", Model: "old"})
	old.Upsert(ctx, record("a", "apollo"), []float64{1})
	old.Upsert(ctx, record("b", "apollo"), []float64{1})
	s.Upsert(ctx, record("c", "apollo"), []float64{1})

	n, err := s.Stale(ctx)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if n != 2 {
		t.Errorf("Stale = %d, want 2", n)
	}
}

func TestPing(t *testing.T) {
	fake := newFake()
	s := newStore(fake, Config{Collection: "c"})
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	fake.down = true
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping should fail when the server is down")
	}
}
