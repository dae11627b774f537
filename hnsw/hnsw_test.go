package hnsw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/smallworld/distance"
	"github.com/hupe1980/smallworld/testutil"
)

func TestNew(t *testing.T) {
	g, err := New(distance.Euclidean[float64], testutil.NewRNG(1), func(o *Options) {
		o.M = 8
		o.EFConstruction = 100
	})
	require.NoError(t, err)

	assert.Equal(t, 8, g.Options().M)
	assert.Equal(t, 8, g.mmax)
	assert.Equal(t, 16, g.mmax0)
	assert.Equal(t, 100, g.Options().EFConstruction)
	assert.InDelta(t, 1/2.0794415416798357, g.ml, 1e-12) // 1/ln(8)
}

func TestNewInvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		optFn func(o *Options)
	}{
		{"M too small", func(o *Options) { o.M = 1 }},
		{"EFConstruction zero", func(o *Options) { o.EFConstruction = 0 }},
		{"negative LevelLambda", func(o *Options) { o.LevelLambda = -0.5 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(distance.Euclidean[float64], testutil.NewRNG(1), tc.optFn)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestAddAssignsDenseIDs(t *testing.T) {
	g, err := New(distance.Euclidean[float64], testutil.NewRNG(42))
	require.NoError(t, err)

	for i, p := range [][]float64{{0, 0}, {1, 0}, {2, 0}} {
		id, err := g.Add(p)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}
	assert.Equal(t, 3, g.Len())
}

func TestAddWithoutRandomSource(t *testing.T) {
	g, err := New(distance.Euclidean[float64], nil)
	require.NoError(t, err)

	_, err = g.Add([]float64{1, 2})
	assert.ErrorIs(t, err, ErrNoRandomSource)
}

// checkInvariants verifies the structural invariants that must hold after
// every completed insertion: edge symmetry, degree bounds, entry point
// dominance, and the absence of self-loops.
func checkInvariants(t *testing.T, g *Graph[[]float64, float64]) {
	t.Helper()

	ep, ok := g.EntryPoint()
	require.True(t, ok)
	assert.Equal(t, g.MaxLevel(), g.Level(ep))

	for id := uint32(0); id < uint32(g.Len()); id++ {
		level := g.Level(id)
		assert.LessOrEqual(t, level, g.MaxLevel(), "node %d above entry point layer", id)

		for layer := 0; layer <= level; layer++ {
			conns := g.Neighbors(id, layer)

			maxM := g.maxConnections(layer)
			assert.LessOrEqual(t, len(conns), maxM, "node %d over-connected at layer %d", id, layer)

			seen := make(map[uint32]struct{}, len(conns))
			for _, nb := range conns {
				assert.NotEqual(t, id, nb, "node %d has a self-loop at layer %d", id, layer)

				_, dup := seen[nb]
				assert.False(t, dup, "node %d lists %d twice at layer %d", id, nb, layer)
				seen[nb] = struct{}{}

				assert.Contains(t, g.Neighbors(nb, layer), id,
					"edge %d->%d at layer %d is not symmetric", id, nb, layer)
			}
		}
	}
}

func TestInvariants(t *testing.T) {
	tests := []struct {
		name  string
		optFn func(o *Options)
	}{
		{"simple", func(o *Options) { o.M = 4; o.EFConstruction = 16 }},
		{"heuristic", func(o *Options) { o.M = 4; o.EFConstruction = 16; o.Heuristic = true }},
		{"heuristic extended", func(o *Options) {
			o.M = 4
			o.EFConstruction = 16
			o.Heuristic = true
			o.ExtendCandidates = true
			o.KeepPrunedConnections = true
		}},
		{"with distance cache", func(o *Options) { o.M = 4; o.EFConstruction = 16; o.DistanceCache = true }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rng := testutil.NewRNG(42)
			points := testutil.UniformPoints(rng, 300, 2)

			g, err := New(distance.Euclidean[float64], rng, tc.optFn)
			require.NoError(t, err)

			for i, p := range points {
				_, err := g.Add(p)
				require.NoErrorf(t, err, "insert failed at i=%d", i)
			}

			checkInvariants(t, g)
		})
	}
}

func TestConnectivity(t *testing.T) {
	rng := testutil.NewRNG(7)
	points := testutil.UniformPoints(rng, 200, 2)

	g, err := New(distance.Euclidean[float64], rng)
	require.NoError(t, err)
	for _, p := range points {
		_, err := g.Add(p)
		require.NoError(t, err)
	}

	// Every layer with at least two nodes connects each of its members to
	// at least one neighbor.
	layerNodes := make(map[int][]uint32)
	for id := uint32(0); id < uint32(g.Len()); id++ {
		for layer := 0; layer <= g.Level(id); layer++ {
			layerNodes[layer] = append(layerNodes[layer], id)
		}
	}
	for layer, nodes := range layerNodes {
		if len(nodes) < 2 {
			continue
		}
		for _, id := range nodes {
			assert.NotEmptyf(t, g.Neighbors(id, layer), "node %d isolated at layer %d", id, layer)
		}
	}
}

func TestDeterministicBuilds(t *testing.T) {
	build := func() *Graph[[]float64, float64] {
		rng := testutil.NewRNG(42)
		points := testutil.UniformPoints(rng, 200, 2)

		g, err := New(distance.Euclidean[float64], rng, func(o *Options) { o.M = 4; o.EFConstruction = 16 })
		require.NoError(t, err)
		for _, p := range points {
			_, err := g.Add(p)
			require.NoError(t, err)
		}
		return g
	}

	a, b := build(), build()

	require.Equal(t, a.Len(), b.Len())
	for id := uint32(0); id < uint32(a.Len()); id++ {
		require.Equal(t, a.Level(id), b.Level(id), "node %d level differs", id)
		for layer := 0; layer <= a.Level(id); layer++ {
			assert.Equal(t, a.Neighbors(id, layer), b.Neighbors(id, layer),
				"node %d neighbors differ at layer %d", id, layer)
		}
	}
}

func TestSearchEmptyGraph(t *testing.T) {
	g, err := New(distance.Euclidean[float64], testutil.NewRNG(1))
	require.NoError(t, err)

	assert.Nil(t, g.Search([]float64{0, 0}, 5, 16, nil))
}

func TestSearchReturnsSortedUniqueResults(t *testing.T) {
	rng := testutil.NewRNG(42)
	points := testutil.UniformPoints(rng, 300, 2)

	g, err := New(distance.Euclidean[float64], rng, func(o *Options) { o.M = 4; o.EFConstruction = 16 })
	require.NoError(t, err)
	for _, p := range points {
		_, err := g.Add(p)
		require.NoError(t, err)
	}

	results := g.Search([]float64{0.5, 0.5}, 10, 64, nil)
	require.LessOrEqual(t, len(results), 10)

	seen := make(map[uint32]struct{})
	for i, r := range results {
		if i > 0 {
			assert.LessOrEqual(t, results[i-1].Distance, r.Distance, "results not ascending")
		}
		_, dup := seen[r.Node]
		assert.False(t, dup, "duplicate id %d", r.Node)
		seen[r.Node] = struct{}{}
	}
}

func TestSearchFullRecallForKEqualsN(t *testing.T) {
	rng := testutil.NewRNG(42)
	points := testutil.UniformPoints(rng, 50, 2)

	g, err := New(distance.Euclidean[float64], rng, func(o *Options) { o.M = 4; o.EFConstruction = 16 })
	require.NoError(t, err)
	for _, p := range points {
		_, err := g.Add(p)
		require.NoError(t, err)
	}

	results := g.Search([]float64{0.5, 0.5}, len(points), 0, nil)
	require.Len(t, results, len(points))
}

type recallCase struct {
	Points    int
	Queries   int
	K         int
	Heuristic bool
	Recall    float64
}

func TestRecall(t *testing.T) {
	tests := []recallCase{
		{Points: 1000, Queries: 100, K: 10, Heuristic: false, Recall: 0.95},
		{Points: 1000, Queries: 100, K: 10, Heuristic: true, Recall: 0.95},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("Points=%d,K=%d,Heuristic=%t", tc.Points, tc.K, tc.Heuristic), func(t *testing.T) {
			runRecallCase(t, tc)
		})
	}
}

func runRecallCase(t *testing.T, tc recallCase) {
	rng := testutil.NewRNG(42)
	points := testutil.UniformPoints(rng, tc.Points, 2)

	g, err := New(distance.Euclidean[float64], rng, func(o *Options) {
		o.Heuristic = tc.Heuristic
	})
	require.NoError(t, err)
	for _, p := range points {
		_, err := g.Add(p)
		require.NoError(t, err)
	}

	queries := testutil.UniformPoints(rng, tc.Queries, 2)

	hits, total := 0, 0
	for _, q := range queries {
		exact := g.BruteSearch(q, tc.K, nil)
		approx := g.Search(q, tc.K, g.Options().EFConstruction, nil)

		truth := make(map[uint32]struct{}, len(exact))
		for _, e := range exact {
			truth[e.Node] = struct{}{}
		}
		for _, a := range approx {
			if _, ok := truth[a.Node]; ok {
				hits++
			}
		}
		total += len(exact)
	}

	recall := float64(hits) / float64(total)
	t.Logf("recall = %f (%d/%d)", recall, hits, total)
	if recall < tc.Recall {
		t.Fatalf("recall too low: got %f want >= %f", recall, tc.Recall)
	}
}

func TestBruteSearchExact(t *testing.T) {
	g, err := New(distance.Euclidean[float64], testutil.NewRNG(42), func(o *Options) { o.M = 4; o.EFConstruction = 16 })
	require.NoError(t, err)
	for _, p := range [][]float64{{0, 0}, {1, 0}, {2, 0}, {3, 0}} {
		_, err := g.Add(p)
		require.NoError(t, err)
	}

	results := g.BruteSearch([]float64{0.9, 0}, 2, nil)
	require.Len(t, results, 2)
	assert.Equal(t, uint32(1), results[0].Node)
	assert.Equal(t, uint32(0), results[1].Node)
}

func TestSearchFilter(t *testing.T) {
	rng := testutil.NewRNG(42)
	points := testutil.UniformPoints(rng, 200, 2)

	g, err := New(distance.Euclidean[float64], rng, func(o *Options) { o.M = 4; o.EFConstruction = 16 })
	require.NoError(t, err)
	for _, p := range points {
		_, err := g.Add(p)
		require.NoError(t, err)
	}

	even := func(id uint32) bool { return id%2 == 0 }

	results := g.Search([]float64{0.5, 0.5}, 10, 64, even)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Zero(t, r.Node%2, "filtered id %d in results", r.Node)
	}
}
