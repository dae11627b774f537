package smallworld

import (
	"cmp"

	"github.com/RoaringBitmap/roaring/v2"
)

// SearchResult is a single k-NN match.
type SearchResult[T any, D cmp.Ordered] struct {
	// ID is the item's position in the build-time sequence.
	ID uint32
	// Item is the matched item itself.
	Item T
	// Distance is the distance between the query and the item.
	Distance D
}

// SearchOptions tune a single query.
type SearchOptions struct {
	// EF overrides the beam width at layer 0. Zero means the graph's
	// EFConstruction. The effective value is never below k.
	EF int

	// Allowed restricts results to the ids set in the bitmap. Filtering
	// happens during traversal: excluded nodes still navigate, they are
	// just never admitted as results.
	Allowed *roaring.Bitmap
}

func (o *SearchOptions) filter() func(uint32) bool {
	if o.Allowed == nil {
		return nil
	}
	return o.Allowed.Contains
}
