package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeGroupRetired is emitted after a summary group has been
	// published, archived and reinforced.
	EventTypeGroupRetired = "recall.group.retired"
)

// GroupRetiredEvent is a transport-neutral payload describing one retired
// project-month group. EventID is the lifecycle token of the retirement,
// so a replayed retirement carries the same id.
type GroupRetiredEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Project       string    `json:"project"`
	Month         string    `json:"month"`
	SummaryID     string    `json:"summary_id"`
	RecordIDs     []string  `json:"record_ids"`
	BoostStep     float64   `json:"boost_step"`
}

// NewGroupRetiredEvent fills in the schema fields of a retirement event.
func NewGroupRetiredEvent(token, project, month, summaryID string, recordIDs []string, boostStep float64, at time.Time) *GroupRetiredEvent {
	return &GroupRetiredEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeGroupRetired,
		EventID:       token,
		EmittedAt:     at.UTC(),
		Project:       project,
		Month:         month,
		SummaryID:     summaryID,
		RecordIDs:     recordIDs,
		BoostStep:     boostStep,
	}
}
