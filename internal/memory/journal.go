package memory

import "time"

// Stage is how far a retired group has progressed through
// publish → archive → reinforce.
type Stage string

const (
	StagePublished  Stage = "published"
	StageArchived   Stage = "archived"
	StageReinforced Stage = "reinforced"
)

// Done reports whether the group needs no further work.
func (s Stage) Done() bool {
	return s == StageReinforced
}

// GroupEntry is the journaled state of one summary group. Token identifies
// this retirement and makes reinforcement replay-safe.
type GroupEntry struct {
	Token     string    `json:"token"`
	Key       GroupKey  `json:"key"`
	SummaryID string    `json:"summary_id"`
	RecordIDs []string  `json:"record_ids"`
	Stage     Stage     `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}
