// Package distance defines the distance contract between items and ships a
// few common metrics for float vectors.
package distance

import (
	"cmp"
	"math"
)

// Func computes the distance between two items.
//
// The graph only compares distances, it never combines them arithmetically,
// so any totally ordered type works: floats, ints, strings. The function
// must be pure and return the same value for the same pair for the lifetime
// of a graph.
type Func[T any, D cmp.Ordered] func(a, b T) D

// Float constrains the element type of the built-in vector metrics.
type Float interface {
	~float32 | ~float64
}

// SquaredL2 returns the squared Euclidean distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2[F Float](a, b []F) F {
	var sum F
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Euclidean returns the L2 distance between two vectors.
func Euclidean[F Float](a, b []F) F {
	return F(math.Sqrt(float64(SquaredL2(a, b))))
}

// Manhattan returns the L1 distance between two vectors.
func Manhattan[F Float](a, b []F) F {
	var sum F
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}
