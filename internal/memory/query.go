package memory

import "time"

// Query defaults.
const (
	DefaultTopK        = 12
	DefaultThreshold   = 0.4
	DefaultSinceWindow = 30 * 24 * time.Hour
)

// Query is a retrieval request.
type Query struct {
	Text      string    `json:"text"`
	Project   string    `json:"project,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	TopK      int       `json:"top_k,omitempty"`
	Since     time.Time `json:"since,omitempty"`

	// Threshold is a pointer so an explicit 0 is distinguishable from unset.
	Threshold *float64 `json:"threshold,omitempty"`
}

// WithDefaults returns a copy of q with unset fields filled in.
func (q Query) WithDefaults(now time.Time) Query {
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.Threshold == nil {
		t := DefaultThreshold
		q.Threshold = &t
	}
	if q.Since.IsZero() {
		q.Since = now.Add(-DefaultSinceWindow)
	}
	return q
}

// RelevanceThreshold returns the threshold, or the default if unset.
func (q Query) RelevanceThreshold() float64 {
	if q.Threshold == nil {
		return DefaultThreshold
	}
	return *q.Threshold
}

// Threshold is a convenience for building a Query literal.
func Threshold(v float64) *float64 {
	return &v
}
