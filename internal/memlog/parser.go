// Package memlog reads memory logs in JSONL form and condenses groups of
// records into prompt-sized text.
package memlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lazypower/recall/internal/memory"
)

// line is one JSONL entry. Older exports call the id log_id.
type line struct {
	ID        string `json:"id"`
	LogID     string `json:"log_id"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Project   string `json:"project"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
}

// Stats counts what a parse saw.
type Stats struct {
	Lines   int `json:"lines"`
	Parsed  int `json:"parsed"`
	Skipped int `json:"skipped"`
}

// ParseFile reads a JSONL memory log from path.
func ParseFile(path string) ([]memory.Record, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open memory log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads one record per line from r. Blank lines are ignored;
// malformed lines and lines without an id or content are skipped and
// counted.
func Parse(r io.Reader) ([]memory.Record, Stats, error) {
	var (
		records []memory.Record
		stats   Stats
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		stats.Lines++

		rec, ok := parseLine(raw)
		if !ok {
			stats.Skipped++
			continue
		}
		records = append(records, rec)
		stats.Parsed++
	}

	if err := scanner.Err(); err != nil {
		return records, stats, fmt.Errorf("scan memory log: %w", err)
	}
	return records, stats, nil
}

// ParseLines parses JSONL content held in a string.
func ParseLines(content string) ([]memory.Record, Stats, error) {
	return Parse(strings.NewReader(content))
}

func parseLine(raw string) (memory.Record, bool) {
	var l line
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return memory.Record{}, false
	}

	id := l.ID
	if id == "" {
		id = l.LogID
	}
	typ, _ := memory.ParseType(l.Type)

	rec := memory.Record{
		ID:        strings.TrimSpace(id),
		Timestamp: l.Timestamp,
		User:      l.User,
		Project:   l.Project,
		SessionID: l.SessionID,
		Type:      typ,
		Content:   l.Content,
	}
	if rec.ID == "" || strings.TrimSpace(rec.Content) == "" {
		return memory.Record{}, false
	}
	return rec, true
}
