package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/smallworld/distance"
	"github.com/hupe1980/smallworld/testutil"
)

func TestPairKeyUnordered(t *testing.T) {
	assert.Equal(t, pairKey(3, 7), pairKey(7, 3))
	assert.NotEqual(t, pairKey(3, 7), pairKey(3, 8))
}

func TestEvaluatorCachesPairs(t *testing.T) {
	calls := 0
	countingDist := func(a, b []float64) float64 {
		calls++
		return distance.Euclidean(a, b)
	}

	g, err := New(countingDist, testutil.NewRNG(1), func(o *Options) {
		o.DistanceCache = true
	})
	require.NoError(t, err)
	g.items = [][]float64{{0, 0}, {1, 0}, {2, 0}}

	ev := g.newInsertEvaluator(0)

	d1 := ev.between(1, 2)
	d2 := ev.between(2, 1)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, calls, "unordered pair evaluated more than once")

	_ = ev.distToQuery(1) // pair {0,1}
	_ = ev.between(0, 1)
	assert.Equal(t, 2, calls)
}

func TestEvaluatorWithoutCacheRecomputes(t *testing.T) {
	calls := 0
	countingDist := func(a, b []float64) float64 {
		calls++
		return distance.Euclidean(a, b)
	}

	g, err := New(countingDist, testutil.NewRNG(1))
	require.NoError(t, err)
	g.items = [][]float64{{0, 0}, {1, 0}}

	ev := g.newInsertEvaluator(0)
	_ = ev.between(0, 1)
	_ = ev.between(1, 0)
	assert.Equal(t, 2, calls)
}

func TestRetargetSharesCache(t *testing.T) {
	calls := 0
	countingDist := func(a, b []float64) float64 {
		calls++
		return distance.Euclidean(a, b)
	}

	g, err := New(countingDist, testutil.NewRNG(1), func(o *Options) {
		o.DistanceCache = true
	})
	require.NoError(t, err)
	g.items = [][]float64{{0, 0}, {1, 0}, {2, 0}}

	ev := g.newInsertEvaluator(0)
	_ = ev.between(1, 2)

	// Pruning node 1 mid-insert reuses the pair computed above.
	pruneEv := ev.retarget(1)
	_ = pruneEv.distToQuery(2)
	assert.Equal(t, 1, calls)
}

func TestCachedBuildMatchesUncached(t *testing.T) {
	build := func(cache bool) *Graph[[]float64, float64] {
		rng := testutil.NewRNG(42)
		points := testutil.UniformPoints(rng, 150, 2)

		g, err := New(distance.Euclidean[float64], rng, func(o *Options) {
			o.M = 4
			o.EFConstruction = 16
			o.DistanceCache = cache
		})
		require.NoError(t, err)
		for _, p := range points {
			_, err := g.Add(p)
			require.NoError(t, err)
		}
		return g
	}

	cached, plain := build(true), build(false)

	require.Equal(t, plain.Len(), cached.Len())
	for id := uint32(0); id < uint32(plain.Len()); id++ {
		require.Equal(t, plain.Level(id), cached.Level(id))
		for layer := 0; layer <= plain.Level(id); layer++ {
			assert.Equal(t, plain.Neighbors(id, layer), cached.Neighbors(id, layer))
		}
	}
}
