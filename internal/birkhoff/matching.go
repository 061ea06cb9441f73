package birkhoff

import (
	"fmt"
	"math/big"
)

// DefaultEpsilon is the float residue treated as zero by
// MatchingDecomposer.Decompose. It only absorbs subtraction drift and must stay
// far below any real allocation entry.
const DefaultEpsilon = 1e-12

// MatchingDecomposer is the in-process Birkhoff–von Neumann factorization:
// find a perfect matching on the positive entries, peel it off weighted by its
// smallest entry, repeat on the residual until nothing is left.
//
// DecomposeExact works on rationals and needs no threshold. Decompose is the
// float entry point for callers without exact input.
type MatchingDecomposer struct {
	// Epsilon below which float residual entries count as zero.
	Epsilon float64
}

// DecomposeExact factors an exactly doubly stochastic matrix. Coefficients
// are converted to float64 only on the way out.
func (d MatchingDecomposer) DecomposeExact(m [][]*big.Rat) ([]MatrixTerm, error) {
	n := len(m)
	w := make([][]*big.Rat, n)
	for i, row := range m {
		if len(row) != n {
			return nil, fmt.Errorf("birkhoff: row %d has %d columns, want %d", i, len(row), n)
		}
		w[i] = make([]*big.Rat, n)
		for o, v := range row {
			if v.Sign() < 0 {
				return nil, fmt.Errorf("birkhoff: cell (%d,%d) is negative", i, o)
			}
			w[i][o] = new(big.Rat).Set(v)
		}
	}
	positive := func(i, o int) bool { return w[i][o].Sign() > 0 }

	// Every step zeroes at least one of the n² cells.
	limit := n * n

	var out []MatrixTerm
	for hasPositive(n, positive) {
		if len(out) == limit {
			return nil, fmt.Errorf("%w: residual left after %d terms", ErrNoPerfectMatching, limit)
		}
		p, ok := perfectMatching(n, positive)
		if !ok {
			return nil, ErrNoPerfectMatching
		}

		coef := new(big.Rat).Set(w[0][p[0]])
		for i, o := range p {
			if w[i][o].Cmp(coef) < 0 {
				coef.Set(w[i][o])
			}
		}
		for i, o := range p {
			w[i][o].Sub(w[i][o], coef)
		}
		c, _ := coef.Float64()
		out = append(out, MatrixTerm{Coefficient: c, Matrix: p.Matrix()})
	}
	return out, nil
}

// Decompose factors a float matrix. Residues at or below Epsilon are dropped
// after each peel.
func (d MatchingDecomposer) Decompose(m [][]float64) ([]MatrixTerm, error) {
	eps := d.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	n := len(m)
	w := make([][]float64, n)
	for i, row := range m {
		if len(row) != n {
			return nil, fmt.Errorf("birkhoff: row %d has %d columns, want %d", i, len(row), n)
		}
		w[i] = make([]float64, n)
		for o, v := range row {
			if v > eps {
				w[i][o] = v
			}
		}
	}
	positive := func(i, o int) bool { return w[i][o] != 0 }

	limit := n * n

	var out []MatrixTerm
	for hasPositive(n, positive) {
		if len(out) == limit {
			return nil, fmt.Errorf("%w: residual left after %d terms", ErrNoPerfectMatching, limit)
		}
		p, ok := perfectMatching(n, positive)
		if !ok {
			return nil, ErrNoPerfectMatching
		}

		coef := w[0][p[0]]
		for i, o := range p {
			if w[i][o] < coef {
				coef = w[i][o]
			}
		}
		for i, o := range p {
			w[i][o] -= coef
			if w[i][o] <= eps {
				w[i][o] = 0
			}
		}
		out = append(out, MatrixTerm{Coefficient: coef, Matrix: p.Matrix()})
	}
	return out, nil
}

func hasPositive(n int, positive func(i, o int) bool) bool {
	for i := 0; i < n; i++ {
		for o := 0; o < n; o++ {
			if positive(i, o) {
				return true
			}
		}
	}
	return false
}

// perfectMatching runs Kuhn's augmenting-path search over the positive cells.
// Rows and columns are visited in index order so the result is reproducible.
func perfectMatching(n int, positive func(i, o int) bool) (Permutation, bool) {
	rowOf := make([]int, n) // column -> matched row
	for o := range rowOf {
		rowOf[o] = -1
	}

	var augment func(i int, seen []bool) bool
	augment = func(i int, seen []bool) bool {
		// Take a free column outright before displacing anyone.
		for o := 0; o < n; o++ {
			if positive(i, o) && !seen[o] && rowOf[o] < 0 {
				seen[o] = true
				rowOf[o] = i
				return true
			}
		}
		for o := 0; o < n; o++ {
			if !positive(i, o) || seen[o] {
				continue
			}
			seen[o] = true
			if rowOf[o] < 0 || augment(rowOf[o], seen) {
				rowOf[o] = i
				return true
			}
		}
		return false
	}

	for i := 0; i < n; i++ {
		if !augment(i, make([]bool, n)) {
			return nil, false
		}
	}

	p := make(Permutation, n)
	for o, i := range rowOf {
		p[i] = o
	}
	return p, true
}
