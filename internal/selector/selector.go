// Package selector turns a weighted set of permutations into concrete
// agent→item assignments, either by drawing one at random or by ranking them.
package selector

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/MikeSquared-Agency/Allot/internal/birkhoff"
)

var (
	ErrEmptyDecomposition = errors.New("selector: decomposition is empty")
	ErrNameMismatch       = errors.New("selector: names do not match permutation size")
)

// Choice is one permutation picked from the decomposition. Index is its
// position in the original decomposition; Rank is 1-based in TopK order and 0
// for sampled choices.
type Choice struct {
	Rank        int                  `json:"rank,omitempty"`
	Index       int                  `json:"index"`
	Coefficient float64              `json:"coefficient"`
	Permutation birkhoff.Permutation `json:"permutation"`
}

// Assignment is one agent's item in a chosen permutation.
type Assignment struct {
	Agent     int    `json:"agent"`
	AgentName string `json:"agent_name"`
	Item      int    `json:"item"`
	ItemName  string `json:"item_name"`
	Score     string `json:"score"`
}

// Selector reads, but never modifies, a decomposition.
type Selector struct {
	terms []birkhoff.Term
	rng   *rand.Rand
}

// New builds a Selector. rng is only used by Sample; a nil rng falls back to a
// fixed seed.
func New(terms []birkhoff.Term, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Selector{terms: terms, rng: rng}
}

func (s *Selector) Len() int { return len(s.terms) }

// Sample draws one permutation with probability equal to its coefficient.
// Coefficients are normalised by their sum to absorb float drift.
func (s *Selector) Sample() (Choice, error) {
	if len(s.terms) == 0 {
		return Choice{}, ErrEmptyDecomposition
	}

	var total float64
	last := -1
	for k, t := range s.terms {
		if t.Coefficient > 0 {
			total += t.Coefficient
			last = k
		}
	}
	if last < 0 {
		return Choice{}, fmt.Errorf("%w: no positive coefficient", ErrEmptyDecomposition)
	}

	u := s.rng.Float64() * total
	var acc float64
	for k, t := range s.terms {
		if t.Coefficient <= 0 {
			continue
		}
		acc += t.Coefficient
		if u < acc {
			return s.choice(k, 0), nil
		}
	}
	return s.choice(last, 0), nil
}

// TopK returns the k heaviest permutations, heaviest first. Equal
// coefficients keep decomposition order. k larger than the decomposition
// returns everything; k <= 0 returns nothing.
func (s *Selector) TopK(k int) []Choice {
	if k <= 0 || len(s.terms) == 0 {
		return nil
	}
	idx := make([]int, len(s.terms))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.terms[idx[a]].Coefficient > s.terms[idx[b]].Coefficient
	})
	if k > len(idx) {
		k = len(idx)
	}

	out := make([]Choice, k)
	for r := 0; r < k; r++ {
		out[r] = s.choice(idx[r], r+1)
	}
	return out
}

func (s *Selector) choice(k, rank int) Choice {
	t := s.terms[k]
	return Choice{
		Rank:        rank,
		Index:       k,
		Coefficient: t.Coefficient,
		Permutation: append(birkhoff.Permutation(nil), t.Permutation...),
	}
}

// Assign spells a choice out per agent. scores holds each agent's original
// score text so reports show exactly what was entered.
func Assign(c Choice, agents, items []string, scores [][]string) ([]Assignment, error) {
	n := len(c.Permutation)
	if len(agents) != n || len(items) != n || len(scores) != n {
		return nil, fmt.Errorf("%w: %d agents, %d items, %d score rows for %d positions",
			ErrNameMismatch, len(agents), len(items), len(scores), n)
	}
	out := make([]Assignment, n)
	for i, o := range c.Permutation {
		if len(scores[i]) != n {
			return nil, fmt.Errorf("%w: score row %d has %d cells", ErrNameMismatch, i, len(scores[i]))
		}
		out[i] = Assignment{
			Agent:     i,
			AgentName: agents[i],
			Item:      o,
			ItemName:  items[o],
			Score:     scores[i][o],
		}
	}
	return out, nil
}
