package money

import "sort"

// Allocate splits total across weights using largest-remainder rounding.
// The returned shares always sum to total exactly; entries with weight <= 0
// receive zero. Tie-broken by index so the split is deterministic.
func Allocate(total Cents, weights []int64) []Cents {
	shares := make([]Cents, len(weights))
	if total == 0 || len(weights) == 0 {
		return shares
	}
	var wsum int64
	for _, w := range weights {
		if w > 0 {
			wsum += w
		}
	}
	if wsum <= 0 {
		return shares
	}

	type remainder struct {
		idx  int
		frac int64
	}
	rems := make([]remainder, 0, len(weights))
	var assigned Cents
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		num := int64(total) * w
		shares[i] = Cents(num / wsum)
		assigned += shares[i]
		rems = append(rems, remainder{idx: i, frac: num % wsum})
	}

	left := total - assigned
	sort.Slice(rems, func(a, b int) bool {
		if rems[a].frac != rems[b].frac {
			return rems[a].frac > rems[b].frac
		}
		return rems[a].idx < rems[b].idx
	})
	for k := 0; left > 0 && len(rems) > 0; k++ {
		shares[rems[k%len(rems)].idx]++
		left--
	}
	return shares
}
