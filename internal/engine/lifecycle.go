package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/recall/internal/eventstream"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/memlog"
	"github.com/lazypower/recall/internal/memory"
)

// Lifecycle defaults.
const (
	DefaultDaysOld   = 30
	DefaultBoostStep = 0.05
	SummarizerUser   = "summarizer"
)

// Lifecycle errors. Each wraps the underlying cause.
var (
	ErrNoEmbedder    = errors.New("no embedder configured")
	ErrRunInProgress = errors.New("lifecycle run already in progress")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrPublish       = errors.New("publish summary failed")
	ErrArchive       = errors.New("archive failed")
	ErrReinforce     = errors.New("reinforce failed")
	ErrPromptTooLong = errors.New("group exceeds summary prompt budget")
)

// Group is a set of eligible records sharing a project and calendar month.
type Group struct {
	Key     memory.GroupKey
	Records []memory.Record
}

// GroupOutcome reports what happened to one group in a run.
type GroupOutcome struct {
	Key       memory.GroupKey `json:"key"`
	SummaryID string          `json:"summary_id,omitempty"`
	Records   int             `json:"records"`
	Stage     memory.Stage    `json:"stage,omitempty"`
	Resumed   bool            `json:"resumed,omitempty"`
	Skipped   bool            `json:"skipped,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Report summarizes one lifecycle run.
type Report struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Scanned     int            `json:"scanned"`
	Eligible    int            `json:"eligible"`
	Malformed   int            `json:"malformed"`
	Groups      int            `json:"groups"`
	Summarized  int            `json:"summarized"`
	Archived    int            `json:"archived"`
	Reinforced  int            `json:"reinforced"`
	Skipped     int            `json:"skipped"`
	Resumed     int            `json:"resumed"`
	Interrupted bool           `json:"interrupted,omitempty"`
	Outcomes    []GroupOutcome `json:"outcomes"`
}

// Lifecycle retires old records: it summarizes them per project-month,
// archives the originals and reinforces their retention boost.
type Lifecycle struct {
	Store      SemanticStore
	Embedder   Embedder
	Summarizer llm.Client
	Ledger     Ledger
	Journal    Journal
	Events     eventstream.Publisher

	DaysOld   int
	BoostStep float64
	// MaxPromptChars caps the condensed group text sent to the summarizer.
	// A larger group is skipped and left live. Zero means no cap.
	MaxPromptChars int

	Now    func() time.Time
	Logger *slog.Logger

	running sync.Mutex
}

// Run performs one full pass. Only one pass runs at a time; a concurrent
// call returns ErrRunInProgress. Groups that fail are reported and the run
// continues; archive and reinforce failures are joined into the returned
// error alongside the report.
func (l *Lifecycle) Run(ctx context.Context) (*Report, error) {
	return l.RunOlderThan(ctx, 0)
}

// RunOlderThan is Run with an age cutoff overriding DaysOld for this pass.
// A non-positive daysOld uses DaysOld.
func (l *Lifecycle) RunOlderThan(ctx context.Context, daysOld int) (*Report, error) {
	if daysOld <= 0 {
		daysOld = l.daysOld()
	}
	if !l.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer l.running.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: l.now(),
		Outcomes:  []GroupOutcome{},
	}
	log := l.logger().With("run", report.RunID)
	var errs []error

	handled := make(map[string]bool)
	if l.Journal != nil {
		pending, err := l.Journal.Pending(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("load journal: %w", err))
		}
		for _, entry := range pending {
			if ctx.Err() != nil {
				report.Interrupted = true
				break
			}
			for _, id := range entry.RecordIDs {
				handled[id] = true
			}
			log.Info("resuming group", "group", entry.Key.String(), "stage", entry.Stage)
			outcome, err := l.finish(ctx, entry)
			outcome.Resumed = true
			report.Resumed++
			report.add(outcome)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if report.Interrupted {
		report.FinishedAt = l.now()
		return report, errors.Join(append(errs, ctx.Err())...)
	}

	eligible, scanned, malformed, err := l.selectEligible(ctx, daysOld)
	report.Scanned, report.Malformed = scanned, malformed
	if err != nil {
		report.FinishedAt = l.now()
		return report, errors.Join(append(errs, fmt.Errorf("select eligible: %w", err))...)
	}
	if len(handled) > 0 {
		kept := eligible[:0]
		for _, r := range eligible {
			if !handled[r.ID] {
				kept = append(kept, r)
			}
		}
		eligible = kept
	}
	report.Eligible = len(eligible)

	groups := GroupRecords(eligible)
	report.Groups = len(groups)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			errs = append(errs, err)
			break
		}
		outcome, err := l.retire(ctx, g)
		report.add(outcome)
		if err != nil && !outcome.Skipped {
			errs = append(errs, err)
		}
	}

	report.FinishedAt = l.now()
	log.Info("lifecycle run complete",
		"eligible", report.Eligible,
		"groups", report.Groups,
		"summarized", report.Summarized,
		"archived", report.Archived,
		"skipped", report.Skipped,
		"resumed", report.Resumed,
		"elapsed", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, errors.Join(errs...)
}

func (r *Report) add(o GroupOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Skipped {
		r.Skipped++
		return
	}
	if o.Stage == "" {
		return
	}
	if !o.Resumed {
		r.Summarized++
	}
	if o.Stage == memory.StageArchived || o.Stage == memory.StageReinforced {
		r.Archived += o.Records
	}
	if o.Stage == memory.StageReinforced {
		r.Reinforced += o.Records
	}
}

// SelectEligible returns non-archived, non-summary records at least
// daysOld whole days old. Records whose timestamps cannot be parsed are
// skipped.
func (l *Lifecycle) SelectEligible(ctx context.Context, daysOld int) ([]memory.Record, error) {
	records, _, _, err := l.selectEligible(ctx, daysOld)
	return records, err
}

func (l *Lifecycle) selectEligible(ctx context.Context, daysOld int) (eligible []memory.Record, scanned, malformed int, err error) {
	now := l.now()
	err = l.Store.Scan(ctx, memory.ScanFilter{}, func(r memory.Record) error {
		scanned++
		// summaries are terminal
		if r.Archived || r.Type == memory.TypeSummary {
			return nil
		}
		ts, outcome := r.Time()
		if outcome != memory.TimeOK {
			malformed++
			l.logger().Debug("skipping record with unusable timestamp", "id", r.ID, "timestamp", r.Timestamp, "outcome", outcome.String())
			return nil
		}
		if memory.AgeDays(now, ts) >= daysOld {
			eligible = append(eligible, r)
		}
		return nil
	})
	return eligible, scanned, malformed, err
}

// GroupRecords partitions records by project and calendar month of their
// timestamp. Groups are ordered by project then month; records keep their
// input order. Records with unusable timestamps are dropped.
func GroupRecords(records []memory.Record) []Group {
	index := make(map[memory.GroupKey]int)
	var groups []Group
	for _, r := range records {
		ts, outcome := r.Time()
		if outcome != memory.TimeOK {
			continue
		}
		key := memory.GroupKey{Project: r.Project, Month: memory.MonthKey(ts)}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Key.Project != groups[j].Key.Project {
			return groups[i].Key.Project < groups[j].Key.Project
		}
		return groups[i].Key.Month < groups[j].Key.Month
	})
	return groups
}

// Synthesize asks the summarizer for a summary of records. prior is the
// text of an earlier summary for the same group, if any.
func (l *Lifecycle) Synthesize(ctx context.Context, key memory.GroupKey, records []memory.Record, prior string) (string, error) {
	if l.Summarizer == nil {
		return "", fmt.Errorf("%w: no summarizer configured", ErrSynthesis)
	}

	logs := memlog.Condense(records)
	if l.MaxPromptChars > 0 && len(logs) > l.MaxPromptChars {
		return "", fmt.Errorf("%w: %s: %w (%d > %d chars)", ErrSynthesis, key, ErrPromptTooLong, len(logs), l.MaxPromptChars)
	}
	prompt := llm.SummaryPrompt(key.Project, key.Month, logs, prior)
	var resp *llm.Response
	err := guard(func() error {
		var err error
		resp, err = l.Summarizer.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSynthesis, key, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: %s: empty summary", ErrSynthesis, key)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Publish upserts the summary record for key. The id is deterministic so a
// second publish for the same group replaces the first.
func (l *Lifecycle) Publish(ctx context.Context, key memory.GroupKey, text string) (memory.Record, error) {
	rec := memory.Record{
		ID:        key.SummaryID(),
		Timestamp: memory.FormatTimestamp(l.now()),
		User:      SummarizerUser,
		Project:   key.Project,
		Type:      memory.TypeSummary,
		Content:   text,
		Source:    memory.SourceSummarizer,
	}
	if l.Embedder == nil {
		return rec, fmt.Errorf("%w: %w", ErrPublish, ErrNoEmbedder)
	}
	vec, err := l.Embedder.Embed(ctx, text)
	if err != nil {
		return rec, fmt.Errorf("%w: embed %s: %v", ErrPublish, rec.ID, err)
	}
	if err := l.Store.Upsert(ctx, rec, vec); err != nil {
		return rec, fmt.Errorf("%w: %s: %v", ErrPublish, rec.ID, err)
	}
	return rec, nil
}

// Archive marks every id archived. It stops at the first failure.
func (l *Lifecycle) Archive(ctx context.Context, ids []string) error {
	for i, id := range ids {
		if err := l.Store.SetArchived(ctx, id, true); err != nil {
			return fmt.Errorf("%w: %s (%d of %d done): %v", ErrArchive, id, i, len(ids), err)
		}
	}
	return nil
}

// Reinforce adds the boost step to every id, once per token.
func (l *Lifecycle) Reinforce(ctx context.Context, token string, ids []string) error {
	if l.Ledger == nil {
		return nil
	}
	applied, err := l.Ledger.Reinforce(ctx, token, ids, l.boostStep())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReinforce, err)
	}
	if !applied {
		l.logger().Debug("reinforcement already applied", "token", token)
	}
	return nil
}

func (l *Lifecycle) retire(ctx context.Context, g Group) (GroupOutcome, error) {
	log := l.logger().With("group", g.Key.String())
	outcome := GroupOutcome{Key: g.Key, Records: len(g.Records)}

	var prior string
	if existing, err := l.Store.Get(ctx, g.Key.SummaryID()); err == nil && existing != nil {
		prior = existing.Content
	}

	text, err := l.Synthesize(ctx, g.Key, g.Records, prior)
	if err != nil {
		log.Warn("skipping group", "err", err)
		outcome.Skipped = true
		outcome.Error = err.Error()
		return outcome, err
	}

	summary, err := l.Publish(ctx, g.Key, text)
	if err != nil {
		log.Warn("skipping group", "err", err)
		outcome.Skipped = true
		outcome.Error = err.Error()
		return outcome, err
	}

	entry := memory.GroupEntry{
		Token:     uuid.NewString(),
		Key:       g.Key,
		SummaryID: summary.ID,
		RecordIDs: memory.IDs(g.Records),
		Stage:     memory.StagePublished,
		UpdatedAt: l.now(),
	}
	if l.Journal != nil {
		if err := l.Journal.Open(ctx, entry); err != nil {
			log.Warn("journal open failed", "err", err)
		}
	}

	// Once published, archive and reinforce run to completion even if the
	// caller gives up.
	return l.finish(context.WithoutCancel(ctx), entry)
}

// finish carries a published group through archive and reinforce,
// starting from entry.Stage.
func (l *Lifecycle) finish(ctx context.Context, entry memory.GroupEntry) (GroupOutcome, error) {
	log := l.logger().With("group", entry.Key.String())
	outcome := GroupOutcome{
		Key:       entry.Key,
		SummaryID: entry.SummaryID,
		Records:   len(entry.RecordIDs),
		Stage:     entry.Stage,
	}

	if entry.Stage == memory.StagePublished {
		if err := l.Archive(ctx, entry.RecordIDs); err != nil {
			log.Error("archive failed; summary published but originals still live", "err", err)
			outcome.Error = err.Error()
			return outcome, err
		}
		entry.Stage = memory.StageArchived
		outcome.Stage = entry.Stage
		l.advance(ctx, entry.Token, entry.Stage)
	}

	if entry.Stage == memory.StageArchived {
		if err := l.Reinforce(ctx, entry.Token, entry.RecordIDs); err != nil {
			log.Error("reinforce failed", "err", err)
			outcome.Error = err.Error()
			return outcome, err
		}
		entry.Stage = memory.StageReinforced
		outcome.Stage = entry.Stage
		l.advance(ctx, entry.Token, entry.Stage)
	}

	l.emit(ctx, entry)
	log.Info("group retired", "summary", entry.SummaryID, "records", len(entry.RecordIDs))
	return outcome, nil
}

func (l *Lifecycle) advance(ctx context.Context, token string, stage memory.Stage) {
	if l.Journal == nil || token == "" {
		return
	}
	if err := l.Journal.Advance(ctx, token, stage); err != nil {
		l.logger().Warn("journal advance failed", "token", token, "stage", stage, "err", err)
	}
}

func (l *Lifecycle) emit(ctx context.Context, entry memory.GroupEntry) {
	if l.Events == nil {
		return
	}
	ev := eventstream.NewGroupRetiredEvent(entry.Token, entry.Key.Project, entry.Key.Month, entry.SummaryID, entry.RecordIDs, l.boostStep(), l.now())
	if err := l.Events.PublishGroupRetired(ctx, ev); err != nil {
		l.logger().Warn("publish retirement event failed", "group", entry.Key.String(), "err", err)
	}
}

func (l *Lifecycle) daysOld() int {
	if l.DaysOld > 0 {
		return l.DaysOld
	}
	return DefaultDaysOld
}

func (l *Lifecycle) boostStep() float64 {
	if l.BoostStep > 0 {
		return l.BoostStep
	}
	return DefaultBoostStep
}

func (l *Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Lifecycle) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
