package smallworld

import (
	"errors"

	"github.com/hupe1980/smallworld/hnsw"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrGraphNotBuilt is returned when a query or serialization is attempted
	// before BuildGraph or DeserializeGraph.
	ErrGraphNotBuilt = errors.New("graph not built")

	// ErrEmptyGraph is returned by k-NN queries against a graph built from
	// zero items.
	ErrEmptyGraph = errors.New("empty graph")

	// ErrInvalidParameters is returned when construction options violate
	// their invariants. Re-exported from the hnsw package.
	ErrInvalidParameters = hnsw.ErrInvalidParameters

	// ErrCorruptGraph is returned when deserialization encounters a
	// malformed topology. Re-exported from the hnsw package.
	ErrCorruptGraph = hnsw.ErrCorruptGraph
)

// ErrMismatchedItems indicates that the items supplied to DeserializeGraph
// do not match the encoded node count. Re-exported from the hnsw package.
type ErrMismatchedItems = hnsw.ErrMismatchedItems
