package memlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lazypower/recall/internal/memory"
)

func TestParseLines(t *testing.T) {
	content := `{"log_id":"a1","timestamp":"2024-03-01T09:00:00","user":"carol","project":"Infra Migration","session_id":"s1","type":"decision","content":"Move to managed Postgres"}
{"id":"a2","timestamp":"2024-03-02T09:00:00","user":"bob","project":"Infra Migration","type":"nonsense","content":"Ticket filed"}

not json
{"id":"a3","content":"   "}
{"content":"no id"}`

	records, stats, err := ParseLines(content)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if stats.Lines != 5 || stats.Parsed != 2 || stats.Skipped != 3 {
		t.Errorf("stats = %+v", stats)
	}

	if records[0].ID != "a1" || records[0].Type != memory.TypeDecision || records[0].SessionID != "s1" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].ID != "a2" || records[1].Type != memory.TypeGeneral {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	if err := os.WriteFile(path, []byte(`{"id":"x","content":"hello there"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	records, _, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(records) != 1 || records[0].Content != "hello there" {
		t.Errorf("records = %+v", records)
	}

	if _, _, err := ParseFile(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCondenseKeepsFullContent(t *testing.T) {
	long := strings.Repeat("x", 1500)
	records := []memory.Record{
		{Content: long},
		{Content: strings.Repeat("y", 450) + " DECISION: ship on friday"},
		{Content: "  short middle  "},
		{Content: long},
	}

	out := Condense(records)
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if lines[0] != "- "+long || lines[3] != "- "+long {
		t.Error("first or last record was cut")
	}
	if !strings.HasSuffix(lines[1], "DECISION: ship on friday") {
		t.Errorf("middle record lost its tail: %q", lines[1][len(lines[1])-30:])
	}
	if lines[2] != "- short middle" {
		t.Errorf("lines[2] = %q", lines[2])
	}
}

func TestCondenseEmpty(t *testing.T) {
	if got := Condense(nil); got != "" {
		t.Errorf("Condense(nil) = %q", got)
	}
}
