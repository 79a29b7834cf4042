package llm

import (
	"fmt"
	"strings"
)

// SummaryPrompt asks for a summary of one project-month. prior is the text
// of an earlier summary of the same period, empty if there is none.
func SummaryPrompt(project, month, logs, prior string) string {
	var b strings.Builder
	b.WriteString("You are a senior technical summarizer.\n\n")
	fmt.Fprintf(&b, "Summarize the following logs for project '%s' during %s into key decisions, impactful data points, and action items.\n", project, month)

	if prior != "" {
		b.WriteString("\nAn earlier summary of this period exists. Keep everything it records and extend it with the new logs; do not drop earlier points.\n\n")
		b.WriteString("EARLIER SUMMARY:\n")
		b.WriteString(prior)
		b.WriteString("\n")
	}

	b.WriteString("\nLOGS:\n")
	b.WriteString(logs)
	b.WriteString("\n\nReturn only the summary text.")
	return b.String()
}

// AnswerPrompt asks for an answer grounded in memory logs. logs is the
// rendered context block; empty means nothing relevant was retrieved.
func AnswerPrompt(question, logs string) string {
	if strings.TrimSpace(logs) == "" {
		logs = "(no memory logs are available for this question)"
	}

	return fmt.Sprintf(`You are an AI assistant helping a product team analyze historical discussions, summaries, and decisions from logs.

Use the logs below to answer the user's question. Your answer should:
- Be grounded in the evidence provided.
- Combine relevant information from multiple logs and cite them (e.g. "as noted in Log 2").
- Mention specific reasons, discussions, or stakeholders if found.
- Avoid vague or general responses.

User Question:
%q

Memory Logs:
%s

Based on this, provide a clear and informative answer.
If no answer is possible, say so honestly.`, question, logs)
}

// RawPrompt asks the question with no memory, for comparison.
func RawPrompt(question string) string {
	return "You are a helpful assistant.\n\n" + question
}
