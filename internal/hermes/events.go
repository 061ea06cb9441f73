package hermes

import "time"

type RunCompletedEvent struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source,omitempty"`
	Agents     int       `json:"agents"`
	Rounds     int       `json:"rounds"`
	Terms      int       `json:"terms"`
	Mode       string    `json:"mode"`
	Selected   []int     `json:"selected,omitempty"` // decomposition indices
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

type RunFailedEvent struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
