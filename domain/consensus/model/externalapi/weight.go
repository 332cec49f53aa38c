package externalapi

import "math/big"

// Weight is an unbounded non-negative integer used as cumulative proof-of-
// work weight along a chain. It wraps big.Int so it never silently
// overflows the way a fixed-width counter would over a chain's lifetime.
type Weight struct {
	big.Int
}

// ZeroWeight returns the additive identity.
func ZeroWeight() Weight {
	return Weight{}
}

// NewWeightFromBig wraps an existing big.Int value.
func NewWeightFromBig(v *big.Int) Weight {
	return Weight{Int: *v}
}

// Add returns a new Weight equal to w + other.
func (w Weight) Add(other Weight) Weight {
	result := new(big.Int).Add(&w.Int, &other.Int)
	return Weight{Int: *result}
}

// Cmp compares w to other the same way big.Int.Cmp does: -1, 0, or 1.
func (w Weight) Cmp(other Weight) int {
	return w.Int.Cmp(&other.Int)
}

// GreaterThan returns whether w > other.
func (w Weight) GreaterThan(other Weight) bool {
	return w.Cmp(other) > 0
}
