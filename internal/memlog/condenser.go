package memlog

import (
	"strings"

	"github.com/lazypower/recall/internal/memory"
)

// Condense renders records as a bullet list for a summary prompt. Content
// is never cut: the records are archived once summarized.
func Condense(records []memory.Record) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(r.Content))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
