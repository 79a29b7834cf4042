package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/eventstream"
	"github.com/lazypower/recall/internal/eventstream/kafka"
	"github.com/lazypower/recall/internal/eventstream/nop"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/logger"
	"github.com/lazypower/recall/internal/postgres"
	"github.com/lazypower/recall/internal/qdrant"
	"github.com/lazypower/recall/internal/server"
	"github.com/lazypower/recall/internal/store"
)

// staleCounter is implemented by semantic stores that tag vectors with the
// embedding model.
type staleCounter interface {
	Stale(ctx context.Context) (int, error)
}

// stack is a fully wired engine plus the resources behind it.
type stack struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine
	ledger *store.Ledger
	stale  staleCounter
	checks map[string]server.Pinger
	dbPath string

	closers []func() error
}

func (s *stack) Close() error {
	if s.engine != nil {
		s.engine.Stop()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.FromConfig(cfg.Log.Level, cfg.Log.Format, os.Stderr), nil
}

// openStack opens every store cfg names and builds the engine over them.
// The caller must Close the result.
func openStack(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *stack, err error) {
	st := &stack{cfg: cfg, logger: log, checks: map[string]server.Pinger{}}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	st.dbPath = cfg.Database.Path
	if st.dbPath == "" {
		st.dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(st.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st.closers = append(st.closers, db.Close)
	st.checks["sqlite"] = pingFunc(db.PingContext)

	// semantic store; the model tag is set once the embedder is chosen
	var (
		semantic engine.SemanticStore
		setModel func(string)
	)
	switch cfg.Semantic.Provider {
	case "qdrant":
		qs, err := qdrant.Open(qdrant.Config{
			Host:       cfg.Semantic.Host,
			Port:       cfg.Semantic.Port,
			APIKey:     cfg.Semantic.APIKey,
			UseTLS:     cfg.Semantic.UseTLS,
			Collection: cfg.Semantic.Collection,
			Logger:     log.With("component", "qdrant"),
		})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, qs.Close)
		st.checks["qdrant"] = qs
		semantic, st.stale = qs, qs
		setModel = func(m string) { qs.Model = m }
	default:
		ss := store.NewSemanticStore(db, "")
		semantic, st.stale = ss, ss
		setModel = func(m string) { ss.Model = m }
	}

	emb, err := selectEmbedder(ctx, cfg.Embedding, semantic, log)
	if err != nil {
		return nil, err
	}
	setModel(emb.Model())

	var temporal engine.TemporalStore
	switch cfg.Temporal.Provider {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Temporal.DSN)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() error { pg.Close(); return nil })
		st.checks["postgres"] = pg
		temporal = pg
	default:
		temporal = store.NewTimeline(db)
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Warn("LLM not configured, summaries and answers disabled", "err", err)
	}

	var events eventstream.Publisher = nop.NewPublisher()
	if cfg.Events.Enabled {
		events, err = kafka.NewPublisher(kafka.Config{
			Brokers:  cfg.Events.Brokers,
			Topic:    cfg.Events.Topic,
			ClientID: cfg.Events.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
	}
	st.closers = append(st.closers, events.Close)

	st.ledger = store.NewLedger(db)
	threshold := cfg.Retrieval.Threshold
	st.engine, err = engine.New(engine.Options{
		Semantic:   semantic,
		Temporal:   temporal,
		Relational: store.NewGraph(db),
		Ledger:     st.ledger,
		Journal:    store.NewJournal(db),
		Embedder:   emb,
		LLM:        llmClient,
		Events:     events,

		Speakers: cfg.Retrieval.Speakers,
		Limits: engine.Limits{
			Semantic:     cfg.Retrieval.SemanticLimit,
			Temporal:     cfg.Retrieval.TemporalLimit,
			Relational:   cfg.Retrieval.RelationalLimit,
			SessionDepth: cfg.Retrieval.SessionDepth,
		},
		AdapterTimeout:   cfg.AdapterTimeout(),
		PromoteSummaries: cfg.Retrieval.PromoteSummaries,
		TopK:             cfg.Retrieval.TopK,
		Threshold:        &threshold,
		SinceWindow:      cfg.SinceWindow(),
		DaysOld:          cfg.Lifecycle.DaysOld,
		BoostStep:        cfg.Lifecycle.BoostStep,
		MaxPromptChars:   cfg.Lifecycle.MaxPromptChars,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// selectEmbedder picks Ollama when configured or reachable, and otherwise
// fits TF-IDF on the records already in the semantic store.
func selectEmbedder(ctx context.Context, cfg config.EmbeddingConfig, semantic engine.SemanticStore, log *slog.Logger) (engine.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		log.Info("embedder: ollama", "model", cfg.Model)
		return engine.NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, cfg.Dimensions), nil
	case "auto", "":
		if engine.ProbeOllama(ctx, cfg.OllamaURL, cfg.Model) {
			log.Info("embedder: ollama", "model", cfg.Model)
			return engine.NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, cfg.Dimensions), nil
		}
	}
	emb, err := engine.FitTFIDF(ctx, semantic, cfg.MaxTerms)
	if err != nil {
		return nil, fmt.Errorf("fit tfidf embedder: %w", err)
	}
	log.Info("embedder: tfidf", "terms", emb.Dimensions())
	return emb, nil
}

// reindexStale re-embeds the store when vectors from another model exist.
func (s *stack) reindexStale(ctx context.Context) error {
	n, err := s.stale.Stale(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	s.logger.Info("embedding model changed, reindexing", "stale", n)
	_, err = s.engine.Reindex(ctx)
	return err
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
