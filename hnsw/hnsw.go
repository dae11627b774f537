// Package hnsw implements the Hierarchical Navigable Small World (HNSW)
// graph for approximate nearest neighbor search over arbitrary item types.
package hnsw

import (
	"cmp"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/smallworld/distance"
	"github.com/hupe1980/smallworld/internal/visited"
	"github.com/hupe1980/smallworld/queue"
)

const (
	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultM is the default number of bidirectional links.
	DefaultM = 10

	// DefaultEFConstruction is the default size of the dynamic candidate list
	// during insertion.
	DefaultEFConstruction = 200
)

// ErrInvalidParameters is returned when construction options violate their
// invariants (M < 2, EFConstruction < 1, LevelLambda < 0). A zero
// LevelLambda selects the default 1/ln(M).
var ErrInvalidParameters = errors.New("invalid parameters")

// ErrNoRandomSource is returned by Add on a graph that was loaded from a
// snapshot and never given a random source.
var ErrNoRandomSource = errors.New("graph has no random source")

// Options represents the options for configuring the graph.
type Options struct {
	// M specifies the number of established connections for every new element
	// during construction. The hard degree caps derive from it: 2*M at layer 0,
	// M on every layer above.
	M int

	// EFConstruction specifies the size of the dynamic candidate list during
	// insertion. Larger values improve graph quality at the cost of build time.
	EFConstruction int

	// LevelLambda is the decay of the level-sampling distribution.
	// Zero means 1/ln(M).
	LevelLambda float64

	// Heuristic selects the neighbor-selection algorithm: the paper's
	// Algorithm 4 when true, plain nearest-m (Algorithm 3) when false.
	Heuristic bool

	// ExtendCandidates extends the heuristic's working set with the
	// one-hop neighborhood of the candidates. Heuristic only.
	ExtendCandidates bool

	// KeepPrunedConnections backfills the heuristic's result with the closest
	// discarded candidates until the degree target is reached. Heuristic only.
	KeepPrunedConnections bool

	// DistanceCache memoizes pairwise distances by unordered id pair for the
	// duration of one insertion, guaranteeing at-most-once evaluation per pair.
	DistanceCache bool
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
}

// RandomSource supplies the randomness for level sampling. *math/rand.Rand
// satisfies it; callers may seed it for reproducible builds.
type RandomSource interface {
	// Float64 returns a value in (0,1]. Zero is tolerated and clamped.
	Float64() float64
	// Intn returns a value in [0,n).
	Intn(n int) int
}

// Graph represents the Hierarchical Navigable Small World graph.
//
// The graph stores item ids only; items live in the attached slice and the id
// of an item equals its position. Construction is not safe for concurrent
// use. Once built, searches may run concurrently with each other.
type Graph[T any, D cmp.Ordered] struct {
	distFunc distance.Func[T, D]
	rng      RandomSource
	opts     Options

	items []T
	nodes []*Node

	entryPoint uint32
	hasEntry   bool
	maxLevel   int

	mmax  int     // max connections per layer > 0
	mmax0 int     // max connections at layer 0
	ml    float64 // normalization factor for level generation
}

// New creates a new empty graph.
func New[T any, D cmp.Ordered](distFunc distance.Func[T, D], source RandomSource, optFns ...func(o *Options)) (*Graph[T, D], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	if opts.LevelLambda == 0 {
		opts.LevelLambda = 1 / math.Log(float64(opts.M))
	}

	return &Graph[T, D]{
		distFunc: distFunc,
		rng:      source,
		opts:     opts,
		mmax:     opts.M,
		mmax0:    mmax0Multiplier * opts.M,
		ml:       opts.LevelLambda,
	}, nil
}

func validateOptions(opts Options) error {
	if opts.M < minimumM {
		return fmt.Errorf("%w: M must be >= %d, got %d", ErrInvalidParameters, minimumM, opts.M)
	}
	if opts.EFConstruction < 1 {
		return fmt.Errorf("%w: EFConstruction must be >= 1, got %d", ErrInvalidParameters, opts.EFConstruction)
	}
	if opts.LevelLambda < 0 {
		return fmt.Errorf("%w: LevelLambda must not be negative, got %f", ErrInvalidParameters, opts.LevelLambda)
	}
	return nil
}

// Options returns the effective construction options.
func (g *Graph[T, D]) Options() Options { return g.opts }

// Len returns the number of nodes in the graph.
func (g *Graph[T, D]) Len() int { return len(g.nodes) }

// Item returns the item bound to the given id.
func (g *Graph[T, D]) Item(id uint32) T { return g.items[id] }

// EntryPoint returns the id of the entry point, or false for an empty graph.
func (g *Graph[T, D]) EntryPoint() (uint32, bool) { return g.entryPoint, g.hasEntry }

// MaxLevel returns the top layer of the graph.
func (g *Graph[T, D]) MaxLevel() int { return g.maxLevel }

// Level returns the top layer the given node participates in.
func (g *Graph[T, D]) Level(id uint32) int { return g.nodes[id].MaxLayer }

// Neighbors returns the neighbor list of a node at a layer. The returned
// slice is owned by the graph and must not be modified.
func (g *Graph[T, D]) Neighbors(id uint32, layer int) []uint32 {
	n := g.nodes[id]
	if layer < 0 || layer >= len(n.Connections) {
		return nil
	}
	return n.Connections[layer]
}

// maxConnections returns the hard degree cap for a layer.
func (g *Graph[T, D]) maxConnections(layer int) int {
	if layer == 0 {
		return g.mmax0
	}
	return g.mmax
}

// Add inserts a new item into the graph and returns its id.
//
// Ids are dense: the id of an item equals the number of items added before it.
func (g *Graph[T, D]) Add(item T) (uint32, error) {
	if g.rng == nil {
		return 0, ErrNoRandomSource
	}

	id := uint32(len(g.nodes))
	level := g.sampleLevel()

	node := newNode(id, level)
	g.items = append(g.items, item)
	g.nodes = append(g.nodes, node)

	// First node becomes the entry point.
	if !g.hasEntry {
		g.entryPoint = id
		g.hasEntry = true
		g.maxLevel = level
		return id, nil
	}

	ev := g.newInsertEvaluator(id)

	// 1. Greedy descent through the layers above the node's top layer.
	curr := g.entryPoint
	currDist := ev.distToQuery(curr)
	curr, _ = g.findEntry(ev, curr, currDist, g.maxLevel, level)

	// 2. Search and link from the node's top layer down to 0. The selected
	// neighbors of each layer seed the beam on the layer below.
	seeds := []uint32{curr}
	for layer := min(level, g.maxLevel); layer >= 0; layer-- {
		results := g.searchLayer(ev, seeds, g.opts.EFConstruction, layer, nil)
		candidates := results.Ascending()

		neighbors := g.selectNeighbors(ev, candidates, g.opts.M, layer)

		node.Connections[layer] = itemIDs(neighbors)
		for _, nb := range neighbors {
			other := g.nodes[nb.Node]
			other.addConnection(layer, id)
			if len(other.Connections[layer]) > g.maxConnections(layer) {
				g.pruneConnections(ev, other, layer)
			}
		}

		// Fresh copy: pruning above may rewrite the node's own list in place.
		seeds = itemIDs(neighbors)
	}

	// 3. A node above the current top layer becomes the new entry point.
	if level > g.maxLevel {
		g.entryPoint = id
		g.maxLevel = level
	}

	return id, nil
}

// findEntry performs the greedy single-neighbor descent from fromLayer down
// to toLayer+1, returning the closest node found and its distance. This is
// the beam search collapsed to ef=1, used to cheaply find a good entry point
// for the finer layer below.
func (g *Graph[T, D]) findEntry(ev *evaluator[T, D], start uint32, startDist D, fromLayer, toLayer int) (uint32, D) {
	curr, currDist := start, startDist

	for layer := fromLayer; layer > toLayer; layer-- {
		changed := true
		for changed {
			changed = false
			for _, next := range g.nodes[curr].Connections[layer] {
				if nextDist := ev.distToQuery(next); nextDist < currDist {
					curr = next
					currDist = nextDist
					changed = true
				}
			}
		}
	}

	return curr, currDist
}

// searchLayer performs the beam search of the paper's Algorithm 2 at a single
// layer, starting from one or more seed nodes. It returns a max-heap of the
// ef closest nodes found.
//
// filter, if not nil, restricts result admission during traversal; filtered
// nodes still navigate so the beam cannot get trapped in excluded regions.
func (g *Graph[T, D]) searchLayer(ev *evaluator[T, D], seeds []uint32, ef, layer int, filter func(uint32) bool) *queue.PriorityQueue[D] {
	vis := visited.New(uint(len(g.nodes)))

	candidates := queue.NewMin[D](ef) // candidates to expand
	results := queue.NewMax[D](ef)    // best ef so far

	for _, s := range seeds {
		if vis.Visited(s) {
			continue
		}
		vis.Visit(s)

		d := ev.distToQuery(s)
		candidates.PushItem(queue.Item[D]{Node: s, Distance: d})

		if filter == nil || filter(s) {
			results.PushItem(queue.Item[D]{Node: s, Distance: d})
			if results.Len() > ef {
				_, _ = results.PopItem()
			}
		}
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()

		if results.Len() >= ef {
			if worst, ok := results.TopItem(); ok && curr.Distance > worst.Distance {
				break
			}
		}

		node := g.nodes[curr.Node]
		if layer >= len(node.Connections) {
			continue
		}

		for _, next := range node.Connections[layer] {
			if vis.Visited(next) {
				continue
			}
			vis.Visit(next)

			d := ev.distToQuery(next)

			worst, hasResults := results.TopItem()
			if results.Len() < ef || (hasResults && d < worst.Distance) {
				candidates.PushItem(queue.Item[D]{Node: next, Distance: d})

				if filter == nil || filter(next) {
					results.PushItem(queue.Item[D]{Node: next, Distance: d})
					if results.Len() > ef {
						_, _ = results.PopItem()
					}
				}
			}
		}
	}

	return results
}

// Search returns the k nearest neighbors of query, ascending by distance.
// ef is raised to k when smaller. filter, if not nil, restricts results to
// allowed ids. Returns nil for an empty graph.
func (g *Graph[T, D]) Search(query T, k, ef int, filter func(uint32) bool) []queue.Item[D] {
	if !g.hasEntry {
		return nil
	}
	if ef < k {
		ef = k
	}

	ev := g.newQueryEvaluator(query)

	curr := g.entryPoint
	currDist := ev.distToQuery(curr)
	curr, _ = g.findEntry(ev, curr, currDist, g.maxLevel, 0)

	results := g.searchLayer(ev, []uint32{curr}, ef, 0, filter)

	items := results.Ascending()
	if len(items) > k {
		items = items[:k]
	}
	return items
}

// BruteSearch scans every node and returns the exact k nearest neighbors,
// ascending by distance. It exists as ground truth for recall validation.
func (g *Graph[T, D]) BruteSearch(query T, k int, filter func(uint32) bool) []queue.Item[D] {
	top := queue.NewMax[D](k)

	for id := range g.nodes {
		nid := uint32(id)
		if filter != nil && !filter(nid) {
			continue
		}

		d := g.distFunc(query, g.items[nid])
		if top.Len() < k {
			top.PushItem(queue.Item[D]{Node: nid, Distance: d})
			continue
		}
		if worst, ok := top.TopItem(); ok && d < worst.Distance {
			_, _ = top.PopItem()
			top.PushItem(queue.Item[D]{Node: nid, Distance: d})
		}
	}

	return top.Ascending()
}

func itemIDs[D cmp.Ordered](items []queue.Item[D]) []uint32 {
	ids := make([]uint32, len(items))
	for i, it := range items {
		ids[i] = it.Node
	}
	return ids
}
