package pipeline

import (
	"errors"

	"github.com/MikeSquared-Agency/Allot/internal/birkhoff"
	"github.com/MikeSquared-Agency/Allot/internal/loader"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/ranking"
	"github.com/MikeSquared-Agency/Allot/internal/selector"
	"github.com/MikeSquared-Agency/Allot/internal/serial"
)

// Classify maps an error onto the failure taxonomy used for metrics, stored
// runs and events.
func Classify(err error) string {
	var fe *loader.InputFormatError
	switch {
	case err == nil:
		return metrics.OutcomeCompleted
	case errors.As(err, &fe),
		errors.Is(err, ranking.ErrMalformedScoreRow),
		errors.Is(err, ranking.ErrNonNumericScore),
		errors.Is(err, serial.ErrEmptyProfile):
		return metrics.OutcomeInputFormat
	case errors.Is(err, serial.ErrEmptyPreferenceOrder),
		errors.Is(err, serial.ErrInvalidPreferenceOrder),
		errors.Is(err, serial.ErrNoProgress),
		errors.Is(err, serial.ErrNotDoublyStochastic),
		errors.Is(err, selector.ErrNameMismatch):
		return metrics.OutcomeInternalConsistency
	case errors.Is(err, birkhoff.ErrDecompositionInvariantViolated),
		errors.Is(err, selector.ErrEmptyDecomposition):
		return metrics.OutcomeDecompositionInvariant
	default:
		return metrics.OutcomeOther
	}
}
