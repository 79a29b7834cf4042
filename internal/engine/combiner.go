package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// Combiner defaults.
const (
	DefaultSemanticLimit   = 5
	DefaultTemporalLimit   = 5
	DefaultRelationalLimit = 5
	DefaultSessionDepth    = 2
	DefaultAdapterTimeout  = 3 * time.Second
)

// Limits caps how many candidates each source may contribute.
type Limits struct {
	Semantic     int
	Temporal     int
	Relational   int
	SessionDepth int
}

// DefaultLimits returns the limits used when a Combiner is built by New.
func DefaultLimits() Limits {
	return Limits{
		Semantic:     DefaultSemanticLimit,
		Temporal:     DefaultTemporalLimit,
		Relational:   DefaultRelationalLimit,
		SessionDepth: DefaultSessionDepth,
	}
}

// SourceReport describes what one source contributed to a query.
type SourceReport struct {
	Source   memory.Source `json:"source"`
	Count    int           `json:"count"`
	Degraded bool          `json:"degraded"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Result is the outcome of one retrieval. Retained holds at most TopK
// records scoring at or above the threshold; Overflow holds the rest of
// those; Discarded holds every candidate below the threshold. All three
// are sorted by descending score.
type Result struct {
	Query        memory.Query         `json:"query"`
	QueryProject string               `json:"query_project,omitempty"`
	Retained     []memory.Record      `json:"retained"`
	Overflow     []memory.Record      `json:"overflow,omitempty"`
	Discarded    []memory.Record      `json:"discarded"`
	Breakdowns   map[string]Breakdown `json:"breakdowns"`
	Sources      []SourceReport       `json:"sources"`
}

// Candidates returns the number of deduplicated candidates scored.
func (r *Result) Candidates() int {
	return len(r.Retained) + len(r.Overflow) + len(r.Discarded)
}

// Degraded reports whether any source failed.
func (r *Result) Degraded() bool {
	for _, s := range r.Sources {
		if s.Degraded {
			return true
		}
	}
	return false
}

// Combiner fans a query out to the semantic, temporal and relational
// sources, merges the candidates and ranks them by fused score.
type Combiner struct {
	Semantic   SemanticSource
	Temporal   TemporalSource
	Relational RelationalSource
	Embedder   Embedder
	Scorer     *Scorer

	Limits         Limits
	AdapterTimeout time.Duration
	// PromoteSummaries moves summary records to the front of the semantic
	// list before the query project is chosen.
	PromoteSummaries bool

	// Query defaults applied ahead of the package defaults.
	TopK        int
	Threshold   *float64
	SinceWindow time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Combine retrieves, deduplicates, scores and partitions candidates for q.
// Source failures degrade the result instead of failing it; the returned
// error is non-nil only when ctx ends first.
func (c *Combiner) Combine(ctx context.Context, q memory.Query) (*Result, error) {
	now := c.now()
	if q.TopK <= 0 {
		q.TopK = c.TopK
	}
	if q.Threshold == nil && c.Threshold != nil {
		q.Threshold = c.Threshold
	}
	if q.Since.IsZero() && c.SinceWindow > 0 {
		q.Since = now.Add(-c.SinceWindow)
	}
	q = q.WithDefaults(now)
	log := c.logger().With("query", q.Text)

	embed := memoize(c.Embedder)
	queryVec, err := embed(ctx, q.Text)
	if err != nil {
		log.Warn("embed query failed", "err", err)
		queryVec = nil
	}

	reports := make([]SourceReport, 3)
	var semantic, temporal, relational []memory.Record
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if len(queryVec) == 0 {
			reports[0] = SourceReport{Source: memory.SourceSemantic, Degraded: true, Error: "query not embedded"}
			return
		}
		semantic, reports[0] = c.fetch(ctx, memory.SourceSemantic, func(ctx context.Context) ([]memory.Record, error) {
			if c.Semantic == nil {
				return nil, fmt.Errorf("no semantic source")
			}
			return c.Semantic.Search(ctx, queryVec, c.limits().Semantic)
		})
	}()
	go func() {
		defer wg.Done()
		temporal, reports[1] = c.fetch(ctx, memory.SourceTemporal, func(ctx context.Context) ([]memory.Record, error) {
			if c.Temporal == nil {
				return nil, fmt.Errorf("no temporal source")
			}
			return c.Temporal.Since(ctx, q.Since, c.limits().Temporal)
		})
	}()

	// An explicit anchor doesn't depend on semantic results, so the graph
	// can be walked concurrently.
	explicit := q.Project != "" || q.SessionID != ""
	if explicit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relational, reports[2] = c.relational(ctx, q.Project, q.SessionID)
		}()
	}
	wg.Wait()

	if c.PromoteSummaries {
		semantic = promoteSummaries(semantic)
	}

	queryProject := q.Project
	if queryProject == "" && len(semantic) > 0 {
		queryProject = semantic[0].Project
	}
	if !explicit {
		relational, reports[2] = c.relational(ctx, queryProject, "")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := dedup(semantic, temporal, relational)
	breakdowns := make(map[string]Breakdown, len(candidates))
	for i := range candidates {
		b := c.scorer().score(ctx, candidates[i], queryVec, queryProject, embed)
		candidates[i].Score = b.Total
		candidates[i].Similarity = b.Semantic.Value
		breakdowns[candidates[i].ID] = b
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	res := &Result{
		Query:        q,
		QueryProject: queryProject,
		Breakdowns:   breakdowns,
		Sources:      reports,
		Retained:     []memory.Record{},
		Discarded:    []memory.Record{},
	}
	threshold := q.RelevanceThreshold()
	for _, r := range candidates {
		switch {
		case r.Score < threshold:
			res.Discarded = append(res.Discarded, r)
		case len(res.Retained) < q.TopK:
			res.Retained = append(res.Retained, r)
		default:
			res.Overflow = append(res.Overflow, r)
		}
	}

	log.Debug("combined",
		"project", queryProject,
		"candidates", len(candidates),
		"retained", len(res.Retained),
		"discarded", len(res.Discarded),
		"degraded", res.Degraded(),
	)
	return res, nil
}

// relational picks the graph query for an anchor: project first, then
// session neighborhood, else nothing.
func (c *Combiner) relational(ctx context.Context, project, sessionID string) ([]memory.Record, SourceReport) {
	lim := c.limits()
	switch {
	case project != "":
		return c.fetch(ctx, memory.SourceRelational, func(ctx context.Context) ([]memory.Record, error) {
			if c.Relational == nil {
				return nil, fmt.Errorf("no relational source")
			}
			return c.Relational.ByProject(ctx, project, lim.Relational)
		})
	case sessionID != "":
		return c.fetch(ctx, memory.SourceRelational, func(ctx context.Context) ([]memory.Record, error) {
			if c.Relational == nil {
				return nil, fmt.Errorf("no relational source")
			}
			return c.Relational.BySessionNeighborhood(ctx, sessionID, lim.SessionDepth, lim.Relational)
		})
	}
	return nil, SourceReport{Source: memory.SourceRelational}
}

// fetch runs one source call under the adapter timeout. Errors, panics and
// timeouts all yield an empty, degraded contribution.
func (c *Combiner) fetch(ctx context.Context, src memory.Source, call func(context.Context) ([]memory.Record, error)) ([]memory.Record, SourceReport) {
	timeout := c.AdapterTimeout
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	type outcome struct {
		records []memory.Record
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		o.err = guard(func() error {
			var err error
			o.records, err = call(ctx)
			return err
		})
		done <- o
	}()

	report := SourceReport{Source: src}
	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o.err = fmt.Errorf("%s source: %w", src, ctx.Err())
	}
	report.Elapsed = time.Since(start)

	if o.err != nil {
		report.Degraded = true
		report.Error = o.err.Error()
		c.logger().Warn("source failed", "source", src.String(), "err", o.err, "elapsed", report.Elapsed)
		return nil, report
	}

	for i := range o.records {
		o.records[i].Source = src
	}
	report.Count = len(o.records)
	return o.records, report
}

// dedup concatenates lists in order and keeps the first instance of each
// id. Records without an id are dropped.
func dedup(lists ...[]memory.Record) []memory.Record {
	seen := make(map[string]bool)
	var out []memory.Record
	for _, list := range lists {
		for _, r := range list {
			if r.ID == "" || seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out
}

// promoteSummaries stably moves summary records ahead of the rest.
func promoteSummaries(records []memory.Record) []memory.Record {
	out := make([]memory.Record, 0, len(records))
	for _, r := range records {
		if r.Type == memory.TypeSummary {
			out = append(out, r)
		}
	}
	for _, r := range records {
		if r.Type != memory.TypeSummary {
			out = append(out, r)
		}
	}
	return out
}

// memoize caches embeddings by text for the life of one query.
func memoize(emb Embedder) embedFunc {
	type entry struct {
		vec []float64
		err error
	}
	var mu sync.Mutex
	cache := make(map[string]entry)

	return func(ctx context.Context, text string) ([]float64, error) {
		mu.Lock()
		e, ok := cache[text]
		mu.Unlock()
		if ok {
			return e.vec, e.err
		}

		if emb == nil {
			e.err = ErrNoEmbedder
		} else {
			e.err = guard(func() error {
				var err error
				e.vec, err = emb.Embed(ctx, text)
				return err
			})
		}

		mu.Lock()
		cache[text] = e
		mu.Unlock()
		return e.vec, e.err
	}
}

func (c *Combiner) scorer() *Scorer {
	if c.Scorer != nil {
		return c.Scorer
	}
	return NewScorer(c.Embedder, nil)
}

func (c *Combiner) limits() Limits {
	l := c.Limits
	d := DefaultLimits()
	if l.Semantic <= 0 {
		l.Semantic = d.Semantic
	}
	if l.Temporal <= 0 {
		l.Temporal = d.Temporal
	}
	if l.Relational <= 0 {
		l.Relational = d.Relational
	}
	if l.SessionDepth <= 0 {
		l.SessionDepth = d.SessionDepth
	}
	return l
}

func (c *Combiner) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Combiner) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
