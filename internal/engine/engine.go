package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lazypower/recall/internal/eventstream"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/memory"
)

// Options wires an Engine. Semantic and Embedder are required.
type Options struct {
	Semantic   SemanticStore
	Temporal   TemporalStore
	Relational RelationalStore
	Ledger     Ledger
	Journal    Journal
	Embedder   Embedder
	LLM        llm.Client
	Events     eventstream.Publisher

	Speakers         map[string]float64
	Limits           Limits
	AdapterTimeout   time.Duration
	PromoteSummaries bool
	TopK             int
	Threshold        *float64
	SinceWindow      time.Duration
	DaysOld          int
	BoostStep        float64
	MaxPromptChars   int

	Now    func() time.Time
	Logger *slog.Logger
}

// Engine owns the retrieval, answering and lifecycle components and the
// stores behind them.
type Engine struct {
	Combiner  *Combiner
	Lifecycle *Lifecycle
	Responder *Responder

	semantic   SemanticStore
	temporal   TemporalStore
	relational RelationalStore
	embedder   Embedder
	logger     *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Semantic == nil {
		return nil, fmt.Errorf("engine: semantic store is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("engine: embedder is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Speakers == nil {
		opts.Speakers = DefaultSpeakers
	}

	scorer := &Scorer{
		Embedder: opts.Embedder,
		Ledger:   opts.Ledger,
		Speakers: opts.Speakers,
		Now:      opts.Now,
		Logger:   opts.Logger.With("component", "scorer"),
	}

	combiner := &Combiner{
		Semantic:         opts.Semantic,
		Temporal:         opts.Temporal,
		Relational:       opts.Relational,
		Embedder:         opts.Embedder,
		Scorer:           scorer,
		Limits:           opts.Limits,
		AdapterTimeout:   opts.AdapterTimeout,
		PromoteSummaries: opts.PromoteSummaries,
		TopK:             opts.TopK,
		Threshold:        opts.Threshold,
		SinceWindow:      opts.SinceWindow,
		Now:              opts.Now,
		Logger:           opts.Logger.With("component", "combiner"),
	}
	e := &Engine{
		Combiner: combiner,
		Lifecycle: &Lifecycle{
			Store:          opts.Semantic,
			Embedder:       opts.Embedder,
			Summarizer:     opts.LLM,
			Ledger:         opts.Ledger,
			Journal:        opts.Journal,
			Events:         opts.Events,
			DaysOld:        opts.DaysOld,
			BoostStep:      opts.BoostStep,
			MaxPromptChars: opts.MaxPromptChars,
			Now:            opts.Now,
			Logger:         opts.Logger.With("component", "lifecycle"),
		},
		Responder: &Responder{
			Combiner: combiner,
			LLM:      opts.LLM,
		},
		semantic:   opts.Semantic,
		temporal:   opts.Temporal,
		relational: opts.Relational,
		embedder:   opts.Embedder,
		logger:     opts.Logger,
		stopCh:     make(chan struct{}),
	}
	return e, nil
}

// Query retrieves and ranks records for q.
func (e *Engine) Query(ctx context.Context, q memory.Query) (*Result, error) {
	return e.Combiner.Combine(ctx, q)
}

// Ingest validates rec and writes it to every store. The semantic write
// must succeed; temporal and relational failures are returned joined but
// leave the record searchable.
func (e *Engine) Ingest(ctx context.Context, rec memory.Record) (memory.Record, error) {
	rec, err := memory.Validate(rec)
	if err != nil {
		return rec, err
	}

	vec, err := e.embedder.Embed(ctx, rec.Content)
	if err != nil {
		return rec, fmt.Errorf("embed %s: %w", rec.ID, err)
	}
	if err := e.semantic.Upsert(ctx, rec, vec); err != nil {
		return rec, fmt.Errorf("store %s: %w", rec.ID, err)
	}

	var errs []error
	if e.temporal != nil {
		if err := e.temporal.Append(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("timeline %s: %w", rec.ID, err))
		}
	}
	if e.relational != nil {
		if err := e.relational.Link(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("graph %s: %w", rec.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("ingest partially failed", "id", rec.ID, "err", err)
		return rec, err
	}
	return rec, nil
}

// Model names the embedding model records are indexed with.
func (e *Engine) Model() string {
	return e.embedder.Model()
}

// Reindex re-embeds every record in the semantic store with the current
// embedder, keeping archive flags. It returns the number re-embedded.
func (e *Engine) Reindex(ctx context.Context) (int, error) {
	var records []memory.Record
	err := e.semantic.Scan(ctx, memory.ScanFilter{IncludeArchived: true}, func(r memory.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan: %w", err)
	}

	done := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		vec, err := e.embedder.Embed(ctx, r.Content)
		if err != nil {
			e.logger.Warn("reindex: embed failed", "id", r.ID, "err", err)
			continue
		}
		if err := e.semantic.Upsert(ctx, r, vec); err != nil {
			e.logger.Warn("reindex: upsert failed", "id", r.ID, "err", err)
			continue
		}
		done++
	}
	e.logger.Info("reindex complete", "records", len(records), "embedded", done, "model", e.embedder.Model())
	return done, nil
}

// StartLifecycle runs a lifecycle pass now and then every interval until
// Stop is called. A non-positive interval disables the schedule.
func (e *Engine) StartLifecycle(interval time.Duration) {
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		e.runLifecycle(ctx)
		for {
			select {
			case <-ticker.C:
				e.runLifecycle(ctx)
			case <-e.stopCh:
				return
			}
		}
	}()

	// cancel an in-flight run on Stop
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) runLifecycle(ctx context.Context) {
	report, err := e.Lifecycle.Run(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		e.logger.Info("lifecycle: previous run still in progress")
	case err != nil:
		e.logger.Error("lifecycle run finished with errors", "err", err)
	case report != nil && report.Groups > 0:
		e.logger.Info("lifecycle: retired groups", "groups", report.Groups, "archived", report.Archived)
	}
}

// Stop shuts down background work and waits for it to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
