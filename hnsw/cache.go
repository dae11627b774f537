package hnsw

import (
	"cmp"
	"math"
)

// noTarget marks an evaluator whose query is not a graph node.
const noTarget = uint32(math.MaxUint32)

// evaluator computes distances during one insertion or one query.
//
// During insertion the query is itself a graph node, so every evaluation is
// a pairwise distance between ids and can be memoized: the cache maps the
// unordered id pair to its distance, guaranteeing at-most-once evaluation
// per pair for the duration of the insertion. The cache never outlives the
// insertion that created it.
type evaluator[T any, D cmp.Ordered] struct {
	g        *Graph[T, D]
	query    T
	targetID uint32
	cache    map[uint64]D
}

func (g *Graph[T, D]) newInsertEvaluator(id uint32) *evaluator[T, D] {
	ev := &evaluator[T, D]{g: g, targetID: id}
	if g.opts.DistanceCache {
		ev.cache = make(map[uint64]D)
	}
	return ev
}

func (g *Graph[T, D]) newQueryEvaluator(query T) *evaluator[T, D] {
	return &evaluator[T, D]{g: g, query: query, targetID: noTarget}
}

// target returns the id the evaluator measures against, or noTarget for
// external queries.
func (e *evaluator[T, D]) target() uint32 { return e.targetID }

// retarget returns an evaluator measuring against another node, sharing the
// same cache. Used when pruning a neighbor's connections mid-insertion.
func (e *evaluator[T, D]) retarget(id uint32) *evaluator[T, D] {
	return &evaluator[T, D]{g: e.g, targetID: id, cache: e.cache}
}

// distToQuery returns the distance between a node and the evaluator's query.
func (e *evaluator[T, D]) distToQuery(id uint32) D {
	if e.targetID == noTarget {
		return e.g.distFunc(e.query, e.g.items[id])
	}
	return e.between(e.targetID, id)
}

// between returns the distance between two graph nodes, memoized when the
// construction-time cache is enabled.
func (e *evaluator[T, D]) between(a, b uint32) D {
	if e.cache == nil {
		return e.g.distFunc(e.g.items[a], e.g.items[b])
	}

	key := pairKey(a, b)
	if d, ok := e.cache[key]; ok {
		return d
	}
	d := e.g.distFunc(e.g.items[a], e.g.items[b])
	e.cache[key] = d
	return d
}

// pairKey packs an unordered id pair into a map key.
func pairKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}
