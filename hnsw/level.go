package hnsw

import (
	"math"
	"math/rand"
)

// Compile-time check: a seeded *rand.Rand is a valid RandomSource.
var _ RandomSource = (*rand.Rand)(nil)

// sampleLevel draws the insertion level for a new node from the
// geometric-like distribution floor(-ln(U) * mL).
func (g *Graph[T, D]) sampleLevel() int {
	u := g.rng.Float64()
	if u <= 0 {
		// -ln(0) is +Inf; clamp to the smallest positive double instead.
		u = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(u) * g.ml))
}
