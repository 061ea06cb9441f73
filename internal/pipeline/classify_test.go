package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MikeSquared-Agency/Allot/internal/birkhoff"
	"github.com/MikeSquared-Agency/Allot/internal/loader"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/ranking"
	"github.com/MikeSquared-Agency/Allot/internal/selector"
	"github.com/MikeSquared-Agency/Allot/internal/serial"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, metrics.OutcomeCompleted},
		{"format error", &loader.InputFormatError{Path: "prefs.csv", Line: 2, Err: loader.ErrMissingName}, metrics.OutcomeInputFormat},
		{"non-numeric", fmt.Errorf("row 1: %w", ranking.ErrNonNumericScore), metrics.OutcomeInputFormat},
		{"empty profile", serial.ErrEmptyProfile, metrics.OutcomeInputFormat},
		{"not doubly stochastic", fmt.Errorf("%w: row 0", serial.ErrNotDoublyStochastic), metrics.OutcomeInternalConsistency},
		{"no progress", serial.ErrNoProgress, metrics.OutcomeInternalConsistency},
		{"name mismatch", selector.ErrNameMismatch, metrics.OutcomeInternalConsistency},
		{"decomposition", fmt.Errorf("run x: %w", birkhoff.ErrDecompositionInvariantViolated), metrics.OutcomeDecompositionInvariant},
		{"empty decomposition", selector.ErrEmptyDecomposition, metrics.OutcomeDecompositionInvariant},
		{"other", errors.New("boom"), metrics.OutcomeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
