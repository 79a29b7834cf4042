package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/memory"
)

func TestJournalLifecycle(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(testDB(t))

	key := memory.GroupKey{Project: "apollo", Month: "2024-01"}
	entry := memory.GroupEntry{
		Token: "tok-1", Key: key, SummaryID: key.SummaryID(),
		RecordIDs: []string{"a", "b"}, Stage: memory.StagePublished,
		UpdatedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := j.Open(ctx, entry); err != nil {
		t.Fatalf("Open: %v", err)
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	p := pending[0]
	if p.Key != key || p.SummaryID != "summary::apollo::2024-01" || len(p.RecordIDs) != 2 || p.Stage != memory.StagePublished {
		t.Errorf("pending entry = %+v", p)
	}

	if err := j.Advance(ctx, "tok-1", memory.StageArchived); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	pending, _ = j.Pending(ctx)
	if len(pending) != 1 || pending[0].Stage != memory.StageArchived {
		t.Errorf("after archive = %+v", pending)
	}

	j.Advance(ctx, "tok-1", memory.StageReinforced)
	pending, _ = j.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("reinforced group still pending: %+v", pending)
	}
}

func TestJournalAdvanceUnknown(t *testing.T) {
	j := NewJournal(testDB(t))
	err := j.Advance(context.Background(), "nope", memory.StageArchived)
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestJournalDuplicateToken(t *testing.T) {
	ctx := context.Background()
	j := NewJournal(testDB(t))
	e := memory.GroupEntry{Token: "t", Key: memory.GroupKey{Project: "p", Month: "2024-01"}, SummaryID: "summary::p::2024-01"}
	if err := j.Open(ctx, e); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Open(ctx, e); err == nil {
		t.Error("reopening a token should fail")
	}
}
