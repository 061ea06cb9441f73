// Package serial runs the Probabilistic Serial ("eating") mechanism with exact
// rational arithmetic.
package serial

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/MikeSquared-Agency/Allot/internal/ranking"
)

var (
	ErrEmptyProfile           = errors.New("serial: no agents")
	ErrInvalidPreferenceOrder = errors.New("serial: preference order is not a permutation of the items")
	ErrEmptyPreferenceOrder   = errors.New("serial: agent has no item with remaining supply")
	ErrNoProgress             = errors.New("serial: eating did not terminate within one round per item")
	ErrNotDoublyStochastic    = errors.New("serial: allocation is not doubly stochastic")
)

// Round records one eating phase: how long it lasted and which items ran out.
type Round struct {
	Duration *big.Rat `json:"duration"`
	Eating   []int    `json:"eating"`
	Depleted []int    `json:"depleted"`
}

// Allocation is the fractional assignment produced by Eat. It is not modified
// after Eat returns; accessors hand out copies.
type Allocation struct {
	cells  [][]*big.Rat
	rounds []Round
}

// Eat simulates every agent eating its most preferred item with remaining
// supply at unit rate until all supply is gone. prefs[i] must be a permutation
// of 0..n-1 where n = len(prefs).
func Eat(prefs [][]int) (*Allocation, error) {
	n := len(prefs)
	if n == 0 {
		return nil, ErrEmptyProfile
	}
	for i, order := range prefs {
		if !ranking.IsPermutation(order, n) {
			return nil, fmt.Errorf("%w: agent %d: %v", ErrInvalidPreferenceOrder, i, order)
		}
	}

	supply := make([]*big.Rat, n)
	cells := make([][]*big.Rat, n)
	for o := range supply {
		supply[o] = big.NewRat(1, 1)
	}
	for i := range cells {
		cells[i] = make([]*big.Rat, n)
		for o := range cells[i] {
			cells[i][o] = new(big.Rat)
		}
	}

	var rounds []Round
	for anyPositive(supply) {
		if len(rounds) == n {
			return nil, ErrNoProgress
		}

		eating := make([]int, n)
		eaters := make([]int64, n)
		for i, order := range prefs {
			o, ok := firstAvailable(order, supply)
			if !ok {
				return nil, fmt.Errorf("%w: agent %d", ErrEmptyPreferenceOrder, i)
			}
			eating[i] = o
			eaters[o]++
		}

		// Time until the next item runs out at the current eating rates.
		var step *big.Rat
		for o := range supply {
			if eaters[o] == 0 || supply[o].Sign() == 0 {
				continue
			}
			t := new(big.Rat).Quo(supply[o], big.NewRat(eaters[o], 1))
			if step == nil || t.Cmp(step) < 0 {
				step = t
			}
		}
		if step == nil {
			return nil, ErrNoProgress
		}

		for i, o := range eating {
			cells[i][o].Add(cells[i][o], step)
			supply[o].Sub(supply[o], step)
		}

		var depleted []int
		for o := range supply {
			if eaters[o] > 0 && supply[o].Sign() == 0 {
				depleted = append(depleted, o)
			}
		}
		rounds = append(rounds, Round{Duration: step, Eating: eating, Depleted: depleted})
	}

	return &Allocation{cells: cells, rounds: rounds}, nil
}

func anyPositive(supply []*big.Rat) bool {
	for _, s := range supply {
		if s.Sign() > 0 {
			return true
		}
	}
	return false
}

func firstAvailable(order []int, supply []*big.Rat) (int, bool) {
	for _, o := range order {
		if supply[o].Sign() > 0 {
			return o, true
		}
	}
	return 0, false
}
