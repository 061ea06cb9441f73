package ranking

import (
	"cmp"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"slices"
	"strings"
)

var (
	ErrMalformedScoreRow = errors.New("ranking: score row length does not match item count")
	ErrNonNumericScore   = errors.New("ranking: score is not a non-negative number")
)

// ScoreMatrix holds score[agent][item]. Rows are agents, columns are items.
type ScoreMatrix [][]*big.Rat

// CellError locates a scoring problem. Col is -1 for whole-row errors.
type CellError struct {
	Row int
	Col int
	Err error
}

func (e *CellError) Error() string {
	if e.Col < 0 {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d, column %d: %v", e.Row, e.Col, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

var (
	decimalScore  = regexp.MustCompile(`^\d+(\.\d+)?([eE][+-]?\d{1,3})?$`)
	fractionScore = regexp.MustCompile(`^(\d+)/(\d+)$`)
)

// ParseScore parses a base-10 integer, decimal or a/b fraction. Base prefixes,
// digit separators and signs are rejected.
func ParseScore(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if m := fractionScore.FindStringSubmatch(s); m != nil {
		num, _ := new(big.Int).SetString(m[1], 10)
		den, _ := new(big.Int).SetString(m[2], 10)
		if den.Sign() == 0 {
			return nil, ErrNonNumericScore
		}
		return new(big.Rat).SetFrac(num, den), nil
	}
	if !decimalScore.MatchString(s) {
		return nil, ErrNonNumericScore
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, ErrNonNumericScore
	}
	return r, nil
}

// ParseScores converts raw score cells into a ScoreMatrix. Every row must hold
// exactly items cells.
func ParseScores(rows [][]string, items int) (ScoreMatrix, error) {
	m := make(ScoreMatrix, len(rows))
	for i, row := range rows {
		if len(row) != items {
			return nil, &CellError{Row: i, Col: -1, Err: fmt.Errorf("%w: got %d, want %d", ErrMalformedScoreRow, len(row), items)}
		}
		m[i] = make([]*big.Rat, items)
		for o, cell := range row {
			v, err := ParseScore(cell)
			if err != nil {
				return nil, &CellError{Row: i, Col: o, Err: fmt.Errorf("%w: %q", err, cell)}
			}
			m[i][o] = v
		}
	}
	return m, nil
}

// Validate checks the matrix is square with non-negative cells.
func (m ScoreMatrix) Validate() error {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return &CellError{Row: i, Col: -1, Err: fmt.Errorf("%w: got %d, want %d", ErrMalformedScoreRow, len(row), n)}
		}
		for o, v := range row {
			if v == nil || v.Sign() < 0 {
				return &CellError{Row: i, Col: o, Err: ErrNonNumericScore}
			}
		}
	}
	return nil
}

// Demand returns the column sums: how much all agents together value each item.
func (m ScoreMatrix) Demand() []*big.Rat {
	if len(m) == 0 {
		return nil
	}
	demand := make([]*big.Rat, len(m[0]))
	for o := range demand {
		demand[o] = new(big.Rat)
	}
	for _, row := range m {
		for o, v := range row {
			demand[o].Add(demand[o], v)
		}
	}
	return demand
}

type sortKey struct {
	item      int
	score     *big.Rat
	contested *big.Rat // demand from everyone else
}

// Build derives a strict preference order for every agent. Items are ranked by
// score descending, then by how little the other agents want them, then by
// item index so equal keys still order deterministically.
func Build(scores ScoreMatrix) ([][]int, error) {
	if err := scores.Validate(); err != nil {
		return nil, err
	}

	demand := scores.Demand()
	prefs := make([][]int, len(scores))
	for i, row := range scores {
		keys := make([]sortKey, len(row))
		for o, v := range row {
			keys[o] = sortKey{
				item:      o,
				score:     v,
				contested: new(big.Rat).Sub(demand[o], v),
			}
		}
		slices.SortStableFunc(keys, compareKeys)

		order := make([]int, len(keys))
		for k, key := range keys {
			order[k] = key.item
		}
		prefs[i] = order
	}
	return prefs, nil
}

func compareKeys(a, b sortKey) int {
	if c := b.score.Cmp(a.score); c != 0 {
		return c
	}
	if c := a.contested.Cmp(b.contested); c != 0 {
		return c
	}
	return cmp.Compare(a.item, b.item)
}

// IsPermutation reports whether order lists every index in 0..n-1 exactly once.
func IsPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, o := range order {
		if o < 0 || o >= n || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}
