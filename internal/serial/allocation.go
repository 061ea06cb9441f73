package serial

import (
	"fmt"
	"math/big"
)

// Size is the number of agents (and items).
func (a *Allocation) Size() int { return len(a.cells) }

// At returns a copy of agent i's share of item o.
func (a *Allocation) At(i, o int) *big.Rat {
	return new(big.Rat).Set(a.cells[i][o])
}

func (a *Allocation) RowSum(i int) *big.Rat {
	sum := new(big.Rat)
	for _, v := range a.cells[i] {
		sum.Add(sum, v)
	}
	return sum
}

func (a *Allocation) ColSum(o int) *big.Rat {
	sum := new(big.Rat)
	for _, row := range a.cells {
		sum.Add(sum, row[o])
	}
	return sum
}

// Rounds returns the eating phases in the order they happened.
func (a *Allocation) Rounds() []Round {
	out := make([]Round, len(a.rounds))
	for k, r := range a.rounds {
		out[k] = Round{
			Duration: new(big.Rat).Set(r.Duration),
			Eating:   append([]int(nil), r.Eating...),
			Depleted: append([]int(nil), r.Depleted...),
		}
	}
	return out
}

// CheckDoublyStochastic verifies with exact arithmetic that every row and
// column sums to one.
func (a *Allocation) CheckDoublyStochastic() error {
	one := big.NewRat(1, 1)
	for i := range a.cells {
		if s := a.RowSum(i); s.Cmp(one) != 0 {
			return fmt.Errorf("%w: row %d sums to %s", ErrNotDoublyStochastic, i, s.RatString())
		}
	}
	for o := range a.cells {
		if s := a.ColSum(o); s.Cmp(one) != 0 {
			return fmt.Errorf("%w: column %d sums to %s", ErrNotDoublyStochastic, o, s.RatString())
		}
	}
	return nil
}

// Rats returns a deep copy of every cell.
func (a *Allocation) Rats() [][]*big.Rat {
	out := make([][]*big.Rat, len(a.cells))
	for i, row := range a.cells {
		out[i] = make([]*big.Rat, len(row))
		for o, v := range row {
			out[i][o] = new(big.Rat).Set(v)
		}
	}
	return out
}

// Float64s converts the allocation for consumers that cannot work with
// rationals. Precision is lost here and only here.
func (a *Allocation) Float64s() [][]float64 {
	out := make([][]float64, len(a.cells))
	for i, row := range a.cells {
		out[i] = make([]float64, len(row))
		for o, v := range row {
			out[i][o], _ = v.Float64()
		}
	}
	return out
}

// Strings renders every cell as an exact fraction ("1/2", "0", "1").
func (a *Allocation) Strings() [][]string {
	out := make([][]string, len(a.cells))
	for i, row := range a.cells {
		out[i] = make([]string, len(row))
		for o, v := range row {
			out[i][o] = v.RatString()
		}
	}
	return out
}
