// Package testutil provides seeded randomness and dataset generators for
// tests and benchmarks.
package testutil

import "math/rand"

// NewRNG returns a seeded random source for reproducible tests.
func NewRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// UniformPoints generates n points with dim coordinates drawn uniformly
// from [0,1).
func UniformPoints(r *rand.Rand, n, dim int) [][]float64 {
	points := make([][]float64, n)
	for i := range points {
		p := make([]float64, dim)
		for j := range p {
			p[j] = r.Float64()
		}
		points[i] = p
	}
	return points
}

// GridPoints generates the side x side integer grid, row-major: the id of
// (x, y) is y*side + x.
func GridPoints(side int) [][]float64 {
	points := make([][]float64, 0, side*side)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			points = append(points, []float64{float64(x), float64(y)})
		}
	}
	return points
}
