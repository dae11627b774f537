package hnsw

import (
	"slices"

	"github.com/hupe1980/smallworld/queue"
)

// Node is one element of the graph: an item id plus its per-layer neighbor
// lists. Connections has MaxLayer+1 entries; entries within a layer are
// unique. New entries are appended; pruning replaces a layer's list with the
// selected entries, closest first.
type Node struct {
	ID          uint32
	MaxLayer    int
	Connections [][]uint32
}

func newNode(id uint32, maxLayer int) *Node {
	return &Node{
		ID:          id,
		MaxLayer:    maxLayer,
		Connections: make([][]uint32, maxLayer+1),
	}
}

// addConnection appends a neighbor at the given layer, ignoring duplicates.
func (n *Node) addConnection(layer int, id uint32) {
	conns := n.Connections[layer]
	if slices.Contains(conns, id) {
		return
	}
	n.Connections[layer] = append(conns, id)
}

// removeConnection removes a neighbor at the given layer, preserving the
// order of the remaining entries.
func (n *Node) removeConnection(layer int, id uint32) {
	conns := n.Connections[layer]
	for i, c := range conns {
		if c == id {
			n.Connections[layer] = append(conns[:i], conns[i+1:]...)
			return
		}
	}
}

// selectNeighbors runs the configured neighbor-selection algorithm over
// candidates (ascending by distance to the target of ev) and returns at most
// m of them, best first.
func (g *Graph[T, D]) selectNeighbors(ev *evaluator[T, D], candidates []queue.Item[D], m, layer int) []queue.Item[D] {
	if g.opts.Heuristic {
		return g.selectNeighborsHeuristic(ev, candidates, m, layer)
	}
	return g.selectNeighborsSimple(candidates, m)
}

// selectNeighborsSimple is the paper's Algorithm 3: keep the m candidates
// closest to the target, ties resolved by ascending id.
func (g *Graph[T, D]) selectNeighborsSimple(candidates []queue.Item[D], m int) []queue.Item[D] {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	return candidates
}

// selectNeighborsHeuristic is the paper's Algorithm 4. A candidate survives
// only if it is strictly closer to the target than to every neighbor already
// selected; this spreads connections across directions instead of clustering
// them on one side of the target.
func (g *Graph[T, D]) selectNeighborsHeuristic(ev *evaluator[T, D], candidates []queue.Item[D], m, layer int) []queue.Item[D] {
	working := queue.NewMin[D](len(candidates))
	for _, c := range candidates {
		working.PushItem(c)
	}

	if g.opts.ExtendCandidates {
		seen := make(map[uint32]struct{}, len(candidates))
		for _, c := range candidates {
			seen[c.Node] = struct{}{}
		}
		for _, c := range candidates {
			for _, nb := range g.Neighbors(c.Node, layer) {
				if nb == ev.target() {
					continue
				}
				if _, ok := seen[nb]; ok {
					continue
				}
				seen[nb] = struct{}{}
				working.PushItem(queue.Item[D]{Node: nb, Distance: ev.distToQuery(nb)})
			}
		}
	}

	result := make([]queue.Item[D], 0, m)
	discarded := queue.NewMin[D](0)

	for working.Len() > 0 && len(result) < m {
		e, _ := working.PopItem()

		keep := true
		for _, r := range result {
			if !(e.Distance < ev.between(e.Node, r.Node)) {
				keep = false
				break
			}
		}

		if keep {
			result = append(result, e)
		} else {
			discarded.PushItem(e)
		}
	}

	if g.opts.KeepPrunedConnections {
		for len(result) < m && discarded.Len() > 0 {
			e, _ := discarded.PopItem()
			result = append(result, e)
		}
	}

	return result
}

// pruneConnections re-selects the neighbor list of a node that exceeded its
// degree cap. Edges dropped here are removed from both endpoints so that
// layer symmetry holds when the insertion returns.
func (g *Graph[T, D]) pruneConnections(ev *evaluator[T, D], node *Node, layer int) {
	maxM := g.maxConnections(layer)
	conns := node.Connections[layer]
	if len(conns) <= maxM {
		return
	}

	candidates := make([]queue.Item[D], len(conns))
	for i, c := range conns {
		candidates[i] = queue.Item[D]{Node: c, Distance: ev.between(node.ID, c)}
	}
	slices.SortFunc(candidates, func(a, b queue.Item[D]) int {
		if a.Distance != b.Distance {
			if a.Distance < b.Distance {
				return -1
			}
			return 1
		}
		if a.Node != b.Node {
			if a.Node < b.Node {
				return -1
			}
			return 1
		}
		return 0
	})

	pruneEv := ev.retarget(node.ID)
	selected := g.selectNeighbors(pruneEv, candidates, maxM, layer)

	// Only existing neighbors are kept: ExtendCandidates can select nodes
	// that have no reverse edge to this node.
	keep := make([]uint32, 0, len(selected))
	for _, it := range selected {
		if slices.Contains(conns, it.Node) {
			keep = append(keep, it.Node)
		}
	}
	for _, c := range conns {
		if !slices.Contains(keep, c) {
			g.nodes[c].removeConnection(layer, node.ID)
		}
	}
	node.Connections[layer] = keep
}
