package memory

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// maxContentChars bounds a single record's content on ingest.
const maxContentChars = 40000

var (
	// ErrNotFound is returned by stores when a record id is unknown.
	ErrNotFound = errors.New("memory not found")

	ErrMissingID      = errors.New("record id is required")
	ErrMissingContent = errors.New("record content is required")
)

// Validate checks a record before it is written to the stores and returns a
// cleaned copy. Timestamps are normalized when parsable; unparsable ones are
// kept as-is (they stay retrievable but are never lifecycle-eligible).
func Validate(r Record) (Record, error) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return r, ErrMissingID
	}
	if strings.HasPrefix(r.ID, SummaryPrefix) && r.Type != TypeSummary {
		return r, fmt.Errorf("id %q is reserved for summaries", r.ID)
	}

	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return r, fmt.Errorf("%s: %w", r.ID, ErrMissingContent)
	}
	if len(r.Content) > maxContentChars {
		r.Content = truncateClean(r.Content, maxContentChars)
	}

	r.User = strings.TrimSpace(r.User)
	r.Project = strings.TrimSpace(r.Project)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.Timestamp = NormalizeTimestamp(r.Timestamp)
	r.Score = 0
	r.Similarity = 0
	return r, nil
}

// truncateClean truncates s to maxLen, cutting at the last word boundary
// when one is close to the limit.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > maxLen-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
