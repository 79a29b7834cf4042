package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

// Fusion weights. They sum to 1 so a record with perfect components and
// no boost scores 1.
const (
	WeightSemantic = 0.4
	WeightRecency  = 0.3
	WeightProject  = 0.2
	WeightSpeaker  = 0.1
)

const (
	recencyScaleDays = 30.0
	defaultRecency   = 0.5
	defaultSpeaker   = 0.2
)

// DefaultSpeakers is the speaker weight table. Unlisted users weigh 0.2.
var DefaultSpeakers = map[string]float64{
	"carol": 1.0,
	"eve":   0.7,
	"bob":   0.5,
}

// Component is one weighted input to a fused score. Defaulted is set when
// the value is a fallback because the real input could not be computed.
type Component struct {
	Value     float64 `json:"value"`
	Defaulted bool    `json:"defaulted,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

func fallback(v float64, reason string) Component {
	return Component{Value: v, Defaulted: true, Reason: reason}
}

// Breakdown is the full decomposition of one fused score.
type Breakdown struct {
	Semantic Component `json:"semantic"`
	Recency  Component `json:"recency"`
	Project  Component `json:"project"`
	Speaker  Component `json:"speaker"`
	Boost    Component `json:"boost"`
	Total    float64   `json:"total"`
}

// Degraded reports whether any component fell back to a default.
func (b Breakdown) Degraded() bool {
	return b.Semantic.Defaulted || b.Recency.Defaulted || b.Project.Defaulted ||
		b.Speaker.Defaulted || b.Boost.Defaulted
}

// sum sets Total, rounded to 4 decimal places before any threshold sees it.
func (b *Breakdown) sum() {
	total := WeightSemantic*b.Semantic.Value +
		WeightRecency*b.Recency.Value +
		WeightProject*b.Project.Value +
		WeightSpeaker*b.Speaker.Value +
		b.Boost.Value
	b.Total = math.Round(total*scoreScale) / scoreScale
}

const scoreScale = 1e4

// embedFunc lets callers substitute a memoized embedder.
type embedFunc func(ctx context.Context, text string) ([]float64, error)

// Scorer computes fused relevance scores. It never fails: every component
// that cannot be computed takes its default and is marked in the
// Breakdown.
type Scorer struct {
	Embedder Embedder
	Ledger   Ledger
	Speakers map[string]float64
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewScorer returns a Scorer with the default speaker table. ledger may be
// nil, in which case every boost is 0.
func NewScorer(emb Embedder, ledger Ledger) *Scorer {
	return &Scorer{
		Embedder: emb,
		Ledger:   ledger,
		Speakers: DefaultSpeakers,
		Now:      time.Now,
		Logger:   slog.New(slog.DiscardHandler),
	}
}

// Score fuses rec against an already embedded query. queryProject matches
// nothing when empty.
func (s *Scorer) Score(ctx context.Context, rec memory.Record, queryVec []float64, queryProject string) Breakdown {
	return s.score(ctx, rec, queryVec, queryProject, s.embed)
}

func (s *Scorer) embed(ctx context.Context, text string) ([]float64, error) {
	if s.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	return s.Embedder.Embed(ctx, text)
}

func (s *Scorer) score(ctx context.Context, rec memory.Record, queryVec []float64, queryProject string, embed embedFunc) Breakdown {
	b := Breakdown{
		Semantic: s.semantic(ctx, rec, queryVec, embed),
		Recency:  s.recency(rec),
		Project:  projectMatch(rec, queryProject),
		Speaker:  s.speaker(rec),
		Boost:    s.boost(ctx, rec),
	}
	b.sum()

	if b.Degraded() {
		s.logger().Debug("score degraded",
			"id", rec.ID,
			"semantic", b.Semantic.Reason,
			"recency", b.Recency.Reason,
			"boost", b.Boost.Reason,
		)
	}
	return b
}

func (s *Scorer) semantic(ctx context.Context, rec memory.Record, queryVec []float64, embed embedFunc) Component {
	if len(queryVec) == 0 {
		return fallback(0, "query not embedded")
	}

	var vec []float64
	err := guard(func() error {
		var err error
		vec, err = embed(ctx, rec.Content)
		return err
	})
	if err != nil {
		return fallback(0, "embed content: "+err.Error())
	}

	sim, err := memory.Cosine(queryVec, vec)
	if err != nil {
		return fallback(0, "similarity: "+err.Error())
	}
	if math.IsNaN(sim) {
		return fallback(0, "similarity undefined")
	}
	return Component{Value: sim}
}

func (s *Scorer) recency(rec memory.Record) Component {
	ts, outcome := rec.Time()
	switch outcome {
	case memory.TimeMissing:
		return fallback(defaultRecency, "timestamp missing")
	case memory.TimeMalformed:
		return fallback(defaultRecency, "timestamp malformed")
	}

	// future timestamps count as today
	age := max(memory.AgeDays(s.now(), ts), 0)
	return Component{Value: math.Exp(-float64(age) / recencyScaleDays)}
}

func projectMatch(rec memory.Record, queryProject string) Component {
	if queryProject != "" && rec.Project == queryProject {
		return Component{Value: 1}
	}
	return Component{Value: 0}
}

func (s *Scorer) speaker(rec memory.Record) Component {
	table := s.Speakers
	if table == nil {
		table = DefaultSpeakers
	}
	if w, ok := table[strings.ToLower(strings.TrimSpace(rec.User))]; ok {
		return Component{Value: w}
	}
	return Component{Value: defaultSpeaker}
}

func (s *Scorer) boost(ctx context.Context, rec memory.Record) Component {
	if s.Ledger == nil {
		return Component{}
	}

	var v float64
	err := guard(func() error {
		var err error
		v, err = s.Ledger.Boost(ctx, rec.ID)
		return err
	})
	if err != nil {
		return fallback(0, "boost lookup: "+err.Error())
	}
	return Component{Value: v}
}

func (s *Scorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scorer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// guard runs fn, turning a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
