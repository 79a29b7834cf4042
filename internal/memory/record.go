// Package memory defines the record model shared by the retrieval and
// lifecycle engine and by every storage backend.
package memory

import (
	"fmt"
	"time"
)

// Record is a single memory: one organizational event, or a summary that
// replaced a group of them.
//
// Score and Similarity are computed per query and are never persisted by
// any store.
type Record struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Project   string `json:"project"`
	SessionID string `json:"session_id"`
	Type      Type   `json:"type"`
	Content   string `json:"content"`
	Source    Source `json:"source"`
	Archived  bool   `json:"archived"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Time parses the record timestamp. See ParseTimestamp.
func (r Record) Time() (time.Time, TimeOutcome) {
	return ParseTimestamp(r.Timestamp)
}

// SummaryPrefix starts every deterministic summary id.
const SummaryPrefix = "summary::"

// SummaryID is the deterministic id of the summary for a project-month, so
// that re-running the lifecycle overwrites instead of duplicating.
func SummaryID(project, monthKey string) string {
	return fmt.Sprintf("%s%s::%s", SummaryPrefix, project, monthKey)
}

// MonthKey formats t as "YYYY-MM".
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// GroupKey identifies a summary group.
type GroupKey struct {
	Project string `json:"project"`
	Month   string `json:"month"`
}

func (k GroupKey) String() string {
	return k.Project + "::" + k.Month
}

// SummaryID returns the id of the summary record for this group.
func (k GroupKey) SummaryID() string {
	return SummaryID(k.Project, k.Month)
}

// ScanFilter narrows a full scan of the semantic store.
type ScanFilter struct {
	IncludeArchived bool
	Project         string
	Type            *Type
}

// Match reports whether r passes the filter.
func (f ScanFilter) Match(r Record) bool {
	if !f.IncludeArchived && r.Archived {
		return false
	}
	if f.Project != "" && r.Project != f.Project {
		return false
	}
	if f.Type != nil && r.Type != *f.Type {
		return false
	}
	return true
}

// IDs returns the ids of records in order.
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
