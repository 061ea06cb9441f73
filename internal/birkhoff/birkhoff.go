// Package birkhoff expresses a doubly stochastic matrix as a convex
// combination of permutation matrices.
//
// The factorization itself sits behind Decomposer so that any conforming
// implementation can be plugged in. Adapter owns the conversion from the exact
// allocation and checks the result before anyone downstream reads it.
package birkhoff

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/MikeSquared-Agency/Allot/internal/serial"
)

var (
	ErrDecompositionInvariantViolated = errors.New("birkhoff: decomposition invariant violated")
	ErrNoPerfectMatching              = errors.New("birkhoff: no perfect matching on positive support")
	ErrNotPermutationMatrix           = errors.New("birkhoff: not a permutation matrix")
)

// DefaultTolerance bounds float drift when checking coefficient sums and
// reconstruction.
const DefaultTolerance = 1e-6

// MatrixTerm is one (coefficient, permutation matrix) pair as returned by a
// Decomposer.
type MatrixTerm struct {
	Coefficient float64
	Matrix      [][]float64
}

// Decomposer factors an n×n doubly stochastic matrix.
type Decomposer interface {
	Decompose(m [][]float64) ([]MatrixTerm, error)
}

// ExactDecomposer is implemented by decomposers that can work on the exact
// allocation. Adapter prefers it over Decompose when available.
type ExactDecomposer interface {
	DecomposeExact(m [][]*big.Rat) ([]MatrixTerm, error)
}

// Permutation maps agent (row) to item (column).
type Permutation []int

// Matrix expands p into a 0/1 matrix.
func (p Permutation) Matrix() [][]float64 {
	m := make([][]float64, len(p))
	for i, o := range p {
		m[i] = make([]float64, len(p))
		m[i][o] = 1
	}
	return m
}

// PermutationOf reads the column of the single 1 in every row.
func PermutationOf(m [][]float64) (Permutation, error) {
	n := len(m)
	p := make(Permutation, n)
	used := make([]bool, n)
	for i, row := range m {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns", ErrNotPermutationMatrix, i, len(row))
		}
		col := -1
		for o, v := range row {
			switch v {
			case 0:
			case 1:
				if col >= 0 {
					return nil, fmt.Errorf("%w: row %d has more than one 1", ErrNotPermutationMatrix, i)
				}
				col = o
			default:
				return nil, fmt.Errorf("%w: entry (%d,%d) = %g", ErrNotPermutationMatrix, i, o, v)
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("%w: row %d has no 1", ErrNotPermutationMatrix, i)
		}
		if used[col] {
			return nil, fmt.Errorf("%w: column %d used twice", ErrNotPermutationMatrix, col)
		}
		used[col] = true
		p[i] = col
	}
	return p, nil
}

// Term is a validated weighted permutation.
type Term struct {
	Coefficient float64     `json:"coefficient"`
	Permutation Permutation `json:"permutation"`
}

type Adapter struct {
	decomposer Decomposer
	tolerance  float64
}

// NewAdapter wraps d. A non-positive tol selects DefaultTolerance.
func NewAdapter(d Decomposer, tol float64) *Adapter {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	return &Adapter{decomposer: d, tolerance: tol}
}

// Decompose hands the allocation to the decomposer and validates the answer:
// coefficients are non-negative and sum to one, and the weighted permutations
// add back up to the allocation. Violations are returned, never retried.
func (a *Adapter) Decompose(alloc *serial.Allocation) ([]Term, error) {
	m := alloc.Float64s()
	var raw []MatrixTerm
	var err error
	if ed, ok := a.decomposer.(ExactDecomposer); ok {
		raw, err = ed.DecomposeExact(alloc.Rats())
	} else {
		raw, err = a.decomposer.Decompose(m)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompositionInvariantViolated, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty decomposition", ErrDecompositionInvariantViolated)
	}

	n := len(m)
	terms := make([]Term, len(raw))
	rebuilt := make([][]float64, n)
	for i := range rebuilt {
		rebuilt[i] = make([]float64, n)
	}

	var sum float64
	for k, t := range raw {
		c := t.Coefficient
		if math.IsNaN(c) || math.IsInf(c, 0) || c < -a.tolerance {
			return nil, fmt.Errorf("%w: coefficient %d is %g", ErrDecompositionInvariantViolated, k, c)
		}
		if len(t.Matrix) != n {
			return nil, fmt.Errorf("%w: term %d is %d×?, want %d×%d", ErrDecompositionInvariantViolated, k, len(t.Matrix), n, n)
		}
		p, err := PermutationOf(t.Matrix)
		if err != nil {
			return nil, fmt.Errorf("%w: term %d: %w", ErrDecompositionInvariantViolated, k, err)
		}
		c = math.Max(c, 0)
		for i, o := range p {
			rebuilt[i][o] += c
		}
		sum += c
		terms[k] = Term{Coefficient: c, Permutation: p}
	}

	if math.Abs(sum-1) > a.tolerance {
		return nil, fmt.Errorf("%w: coefficients sum to %g", ErrDecompositionInvariantViolated, sum)
	}
	for i := range m {
		for o := range m[i] {
			if d := math.Abs(rebuilt[i][o] - m[i][o]); d > a.tolerance {
				return nil, fmt.Errorf("%w: cell (%d,%d) rebuilt as %g, want %g", ErrDecompositionInvariantViolated, i, o, rebuilt[i][o], m[i][o])
			}
		}
	}
	return terms, nil
}

// DecomposerFunc adapts a plain function, such as a call out to another
// process, to the Decomposer interface.
type DecomposerFunc func(m [][]float64) ([]MatrixTerm, error)

func (f DecomposerFunc) Decompose(m [][]float64) ([]MatrixTerm, error) { return f(m) }
