package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type classifies what kind of organizational event a record captures.
type Type int

const (
	TypeGeneral Type = iota
	TypeTicket
	TypeDecision
	TypeQuestion
	TypeFeedback
	TypeMilestone
	TypeSummary
)

var typeNames = map[Type]string{
	TypeGeneral:   "general",
	TypeTicket:    "ticket",
	TypeDecision:  "decision",
	TypeQuestion:  "question",
	TypeFeedback:  "feedback",
	TypeMilestone: "milestone",
	TypeSummary:   "summary",
}

// Types lists every record type in declaration order.
func Types() []Type {
	return []Type{TypeGeneral, TypeTicket, TypeDecision, TypeQuestion, TypeFeedback, TypeMilestone, TypeSummary}
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "general"
}

// ParseType maps a type name to a Type. Unknown or empty names become
// TypeGeneral; ok reports whether the name was recognized.
func ParseType(s string) (t Type, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range typeNames {
		if name == s {
			return k, true
		}
	}
	return TypeGeneral, false
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("record type: %w", err)
	}
	*t, _ = ParseType(s)
	return nil
}

// Source identifies which collaborator produced a record instance.
type Source int

const (
	SourceUnknown Source = iota
	SourceSemantic
	SourceTemporal
	SourceRelational
	SourceSummarizer
)

var sourceNames = map[Source]string{
	SourceUnknown:    "unknown",
	SourceSemantic:   "semantic",
	SourceTemporal:   "temporal",
	SourceRelational: "relational",
	SourceSummarizer: "summarizer",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSource maps a source name to a Source, SourceUnknown if unrecognized.
func ParseSource(name string) Source {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range sourceNames {
		if n == name {
			return k
		}
	}
	return SourceUnknown
}

func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("record source: %w", err)
	}
	*s = ParseSource(name)
	return nil
}
