package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

var errBoom = errors.New("boom")

// vecEmbedder maps known texts to fixed vectors; anything else embeds to
// the unit vector on its first axis.
type vecEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float64
	fail  map[string]bool
	calls map[string]int
}

func newVecEmbedder() *vecEmbedder {
	return &vecEmbedder{
		vecs:  make(map[string][]float64),
		fail:  make(map[string]bool),
		calls: make(map[string]int),
	}
}

func (e *vecEmbedder) set(text string, vec ...float64) { e.vecs[text] = vec }

func (e *vecEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[text]++
	if e.fail[text] {
		return nil, errBoom
	}
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return []float64{1, 0, 0}, nil
}

func (e *vecEmbedder) Model() string   { return "fake" }
func (e *vecEmbedder) Dimensions() int { return 3 }

func (e *vecEmbedder) count(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}

// fakeSemantic is an in-memory SemanticStore.
type fakeSemantic struct {
	mu      sync.Mutex
	order   []string
	records map[string]memory.Record
	vecs    map[string][]float64

	searchResult []memory.Record
	searchErr    error
	searchDelay  time.Duration
	archiveFail  map[string]bool
	upserts      int
}

func newFakeSemantic() *fakeSemantic {
	return &fakeSemantic{
		records:     make(map[string]memory.Record),
		vecs:        make(map[string][]float64),
		archiveFail: make(map[string]bool),
	}
}

func (s *fakeSemantic) put(r memory.Record, vec []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = r
	s.vecs[r.ID] = vec
}

func (s *fakeSemantic) get(id string) memory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *fakeSemantic) Search(ctx context.Context, vec []float64, limit int) ([]memory.Record, error) {
	if s.searchDelay > 0 {
		select {
		case <-time.After(s.searchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if s.searchResult != nil {
		return append([]memory.Record(nil), s.searchResult...), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.Record
	for _, id := range s.order {
		r := s.records[id]
		if r.Archived {
			continue
		}
		r.Similarity = memory.CosineSimilarity(vec, s.vecs[id])
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeSemantic) Scan(_ context.Context, filter memory.ScanFilter, fn func(memory.Record) error) error {
	s.mu.Lock()
	var rs []memory.Record
	for _, id := range s.order {
		if r := s.records[id]; filter.Match(r) {
			rs = append(rs, r)
		}
	}
	s.mu.Unlock()
	for _, r := range rs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSemantic) Get(_ context.Context, id string) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *fakeSemantic) Upsert(_ context.Context, rec memory.Record, vec []float64) error {
	s.mu.Lock()
	s.upserts++
	s.mu.Unlock()
	s.put(rec, vec)
	return nil
}

func (s *fakeSemantic) SetArchived(_ context.Context, id string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archiveFail[id] {
		return errBoom
	}
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Archived = archived
	s.records[id] = r
	return nil
}

type fakeTemporal struct {
	records  []memory.Record
	err      error
	appended []memory.Record
}

func (t *fakeTemporal) Since(_ context.Context, since time.Time, limit int) ([]memory.Record, error) {
	if t.err != nil {
		return nil, t.err
	}
	out := append([]memory.Record(nil), t.records...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *fakeTemporal) Append(_ context.Context, rec memory.Record) error {
	if t.err != nil {
		return t.err
	}
	t.appended = append(t.appended, rec)
	return nil
}

type fakeRelational struct {
	mu        sync.Mutex
	byProject map[string][]memory.Record
	bySession map[string][]memory.Record
	calls     []string
	panics    bool
	linked    []memory.Record
}

func (r *fakeRelational) ByProject(_ context.Context, project string, limit int) ([]memory.Record, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "project:"+project)
	r.mu.Unlock()
	if r.panics {
		panic("graph exploded")
	}
	return append([]memory.Record(nil), r.byProject[project]...), nil
}

func (r *fakeRelational) BySessionNeighborhood(_ context.Context, sessionID string, depth, limit int) ([]memory.Record, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "session:"+sessionID)
	r.mu.Unlock()
	return append([]memory.Record(nil), r.bySession[sessionID]...), nil
}

func (r *fakeRelational) Link(_ context.Context, rec memory.Record) error {
	r.linked = append(r.linked, rec)
	return nil
}

// fakeLedger applies each token once, like the real ledger.
type fakeLedger struct {
	mu      sync.Mutex
	boosts  map[string]float64
	tokens  map[string]bool
	err     error
	failing bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{boosts: make(map[string]float64), tokens: make(map[string]bool)}
}

func (l *fakeLedger) Boost(_ context.Context, id string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	return l.boosts[id], nil
}

func (l *fakeLedger) Reinforce(_ context.Context, token string, ids []string, delta float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return false, errBoom
	}
	if l.tokens[token] {
		return false, nil
	}
	l.tokens[token] = true
	for _, id := range ids {
		l.boosts[id] += delta
	}
	return true, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries map[string]memory.GroupEntry
	order   []string
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{entries: make(map[string]memory.GroupEntry)}
}

func (j *fakeJournal) Open(_ context.Context, e memory.GroupEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[e.Token] = e
	j.order = append(j.order, e.Token)
	return nil
}

func (j *fakeJournal) Advance(_ context.Context, token string, stage memory.Stage) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[token]
	if !ok {
		return ErrNotFound
	}
	e.Stage = stage
	j.entries[token] = e
	return nil
}

func (j *fakeJournal) Pending(context.Context) ([]memory.GroupEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []memory.GroupEntry
	for _, t := range j.order {
		if e := j.entries[t]; !e.Stage.Done() {
			out = append(out, e)
		}
	}
	return out, nil
}

// fixedClock returns a clock pinned at a mid-month instant.
func fixedClock() (time.Time, func() time.Time) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	return now, func() time.Time { return now }
}

func daysAgo(now time.Time, d int) string {
	return memory.FormatTimestamp(now.AddDate(0, 0, -d))
}
