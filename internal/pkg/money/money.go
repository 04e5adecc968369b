// Package money holds the decimal helpers used for all currency math. Amounts are carried
// as shopspring decimals and only turned into integer cents at the edge.
package money

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	Hundred = decimal.NewFromInt(100)
	Zero    = decimal.Zero
)

// Cents wraps an integer cent amount.
func Cents(c int64) decimal.Decimal {
	return decimal.NewFromInt(c)
}

// RoundCents rounds to the nearest whole cent, half away from zero.
func RoundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Percent returns d * pct / 100.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(Hundred)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Allocate turns exact non-negative amounts into whole cents summing to total using the
// largest-remainder method: every value is floored, then the missing cents go one at a
// time to the values with the largest fractional part (earlier index wins ties).
// total must lie between the sum of floors and the sum of ceilings.
func Allocate(values []decimal.Decimal, total int64) []int64 {
	out := make([]int64, len(values))
	if len(values) == 0 {
		return out
	}
	type frac struct {
		idx  int
		frac decimal.Decimal
	}
	fracs := make([]frac, 0, len(values))
	var floored int64
	for i, v := range values {
		f := v.Floor()
		out[i] = f.IntPart()
		floored += out[i]
		fracs = append(fracs, frac{idx: i, frac: v.Sub(f)})
	}
	sort.SliceStable(fracs, func(a, b int) bool {
		return fracs[a].frac.GreaterThan(fracs[b].frac)
	})
	left := total - floored
	for i := 0; left > 0 && len(fracs) > 0; i++ {
		f := fracs[i%len(fracs)]
		out[f.idx]++
		left--
	}
	return out
}
