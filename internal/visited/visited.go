// Package visited tracks nodes seen during a single layer search.
package visited

import "github.com/bits-and-blooms/bitset"

// Set records visited node ids. Not safe for concurrent use; callers keep
// one per search.
type Set struct {
	bits *bitset.BitSet
}

// New creates a visited set sized for capacity nodes. The set grows on
// demand when larger ids are visited.
func New(capacity uint) *Set {
	return &Set{bits: bitset.New(capacity)}
}

// Visit marks a node as visited.
func (s *Set) Visit(id uint32) {
	s.bits.Set(uint(id))
}

// Visited reports whether a node was visited.
func (s *Set) Visited(id uint32) bool {
	return s.bits.Test(uint(id))
}

// Reset clears the set for reuse.
func (s *Set) Reset() {
	s.bits.ClearAll()
}
