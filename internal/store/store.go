package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one persisted allocation run.
type Run struct {
	ID     uuid.UUID `json:"run_id"`
	Source string    `json:"source,omitempty"`

	Agents []string `json:"agents"`
	Items  []string `json:"items"`

	// Selection
	Mode string `json:"mode"`
	TopK int    `json:"top_k,omitempty"`
	Seed int64  `json:"seed,omitempty"`

	// Outcome
	Status  RunStatus `json:"status"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`

	// Results. Allocation cells are exact fractions such as "1/2".
	Preferences   [][]int           `json:"preferences,omitempty"`
	Allocation    [][]string        `json:"allocation,omitempty"`
	Decomposition []TermRecord      `json:"decomposition,omitempty"`
	Selected      []SelectionRecord `json:"selected,omitempty"`
	Rounds        int               `json:"rounds"`

	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type TermRecord struct {
	Coefficient float64 `json:"coefficient"`
	Permutation []int   `json:"permutation"`
}

type SelectionRecord struct {
	Rank        int     `json:"rank,omitempty"`
	Index       int     `json:"index"`
	Coefficient float64 `json:"coefficient"`
	Permutation []int   `json:"permutation"`
}

type RunFilter struct {
	Status *RunStatus
	Source string
	Limit  int
	Offset int
}

type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	Close() error
}
