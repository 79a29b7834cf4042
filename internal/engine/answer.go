package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/memory"
)

// Answer is a generated response grounded in retrieved memories.
type Answer struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Raw      string  `json:"raw,omitempty"`
	Provider string  `json:"provider,omitempty"`
	Result   *Result `json:"result"`
}

// Responder answers questions using the retained records of a Combiner as
// context.
type Responder struct {
	Combiner *Combiner
	LLM      llm.Client
}

// Answer runs q through the combiner and asks the LLM to answer from the
// retained records. With compareRaw it also asks without any context.
func (r *Responder) Answer(ctx context.Context, q memory.Query, compareRaw bool) (*Answer, error) {
	if r.LLM == nil {
		return nil, fmt.Errorf("no llm configured")
	}

	res, err := r.Combiner.Combine(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	resp, err := r.LLM.Complete(ctx, llm.AnswerPrompt(q.Text, ContextBlock(res.Retained)))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	ans := &Answer{
		Question: q.Text,
		Answer:   strings.TrimSpace(resp.Content),
		Provider: resp.Provider,
		Result:   res,
	}

	if compareRaw {
		raw, err := r.LLM.Complete(ctx, llm.RawPrompt(q.Text))
		if err != nil {
			return nil, fmt.Errorf("generate raw answer: %w", err)
		}
		ans.Raw = strings.TrimSpace(raw.Content)
	}
	return ans, nil
}

// ContextBlock renders records as the memory context of an answer prompt.
// It is empty when there are no records.
func ContextBlock(records []memory.Record) string {
	var b strings.Builder
	for i, r := range records {
		fmt.Fprintf(&b, "[Log %d | %s | Project: %s | Source: %s | Type: %s]\n%s: %s\n\n",
			i+1, r.Timestamp, r.Project, r.Source, r.Type, r.User, r.Content)
	}
	return strings.TrimSpace(b.String())
}
