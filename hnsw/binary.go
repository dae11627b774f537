package hnsw

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/smallworld/distance"
)

const (
	// magicNumber identifies serialized graph topology (ASCII: "SWG0").
	magicNumber = 0x53574730
	// formatVersion is the current topology format version (v1.0.0).
	formatVersion = 0x00010000

	// maxSupportedLayers bounds the per-node layer count on load. Sampled
	// levels stay in the low tens for any realistic graph; anything near
	// this cap is a malformed file, not a tall graph.
	maxSupportedLayers = 1 << 16
)

// ErrCorruptGraph is returned when a serialized topology is malformed:
// bad framing, out-of-range ids, self-loops, duplicate or asymmetric edges,
// truncation, or a checksum mismatch.
var ErrCorruptGraph = errors.New("corrupt graph")

// ErrMismatchedItems indicates that the item slice handed to Load does not
// match the node count encoded in the topology.
type ErrMismatchedItems struct {
	Items int
	Nodes int
}

func (e *ErrMismatchedItems) Error() string {
	return fmt.Sprintf("mismatched items: got %d items for %d nodes", e.Items, e.Nodes)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// WriteTo writes the graph topology in binary format: a header with M and
// the node count, each node's per-layer neighbor lists in id order, and a
// trailing CRC32. Items and distances are not written; the caller re-supplies
// the same item sequence on Load.
func (g *Graph[T, D]) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	crc := crc32.NewIEEE()
	mw := io.MultiWriter(cw, crc)

	for _, v := range []uint32{magicNumber, formatVersion, uint32(g.opts.M), uint32(len(g.nodes))} {
		if err := writeUint32(mw, v); err != nil {
			return cw.n, err
		}
	}

	for _, node := range g.nodes {
		if err := writeUint32(mw, uint32(node.MaxLayer)); err != nil {
			return cw.n, err
		}
		for _, conns := range node.Connections {
			if err := writeUint32(mw, uint32(len(conns))); err != nil {
				return cw.n, err
			}
			for _, id := range conns {
				if err := writeUint32(mw, id); err != nil {
					return cw.n, err
				}
			}
		}
	}

	// The checksum itself is excluded from the checksummed range.
	if err := writeUint32(cw, crc.Sum32()); err != nil {
		return cw.n, err
	}

	return cw.n, nil
}

// Load reconstructs a graph from serialized topology, binding ids to the
// provided items by position. The entry point is restored as the node with
// the highest top layer, smallest id on ties, matching build-time behavior.
//
// M is taken from the topology; the remaining options come from optFns and
// otherwise default. The loaded graph has no random source, so it serves
// queries but rejects further inserts.
func Load[T any, D cmp.Ordered](items []T, distFunc distance.Func[T, D], r io.Reader, optFns ...func(o *Options)) (*Graph[T, D], error) {
	crc := crc32.NewIEEE()
	tr := io.TeeReader(r, crc)

	magic, err := readUint32(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
	}
	if magic != magicNumber {
		return nil, fmt.Errorf("%w: invalid magic number 0x%08x", ErrCorruptGraph, magic)
	}

	version, err := readUint32(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version 0x%08x", ErrCorruptGraph, version)
	}

	m, err := readUint32(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
	}
	if m < minimumM || m > math.MaxInt32 {
		return nil, fmt.Errorf("%w: invalid M %d", ErrCorruptGraph, m)
	}

	nodeCount, err := readUint32(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
	}
	if int(nodeCount) != len(items) {
		return nil, &ErrMismatchedItems{Items: len(items), Nodes: int(nodeCount)}
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.M = int(m)
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	if opts.LevelLambda == 0 {
		opts.LevelLambda = 1 / math.Log(float64(opts.M))
	}

	g := &Graph[T, D]{
		distFunc: distFunc,
		opts:     opts,
		mmax:     opts.M,
		mmax0:    mmax0Multiplier * opts.M,
		ml:       opts.LevelLambda,
		items:    items,
		nodes:    make([]*Node, 0, nodeCount),
	}

	seen := roaring.New()
	for id := uint32(0); id < nodeCount; id++ {
		maxLayer, err := readUint32(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
		}
		if maxLayer >= maxSupportedLayers {
			return nil, fmt.Errorf("%w: node %d has implausible layer count %d", ErrCorruptGraph, id, maxLayer)
		}

		node := newNode(id, int(maxLayer))
		for layer := 0; layer <= int(maxLayer); layer++ {
			degree, err := readUint32(tr)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
			}
			if int(degree) > g.maxConnections(layer) {
				return nil, fmt.Errorf("%w: node %d exceeds degree bound at layer %d (%d)", ErrCorruptGraph, id, layer, degree)
			}

			conns := make([]uint32, degree)
			seen.Clear()
			for j := range conns {
				v, err := readUint32(tr)
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
				}
				if v >= nodeCount {
					return nil, fmt.Errorf("%w: node %d references unknown id %d", ErrCorruptGraph, id, v)
				}
				if v == id {
					return nil, fmt.Errorf("%w: node %d has a self-loop at layer %d", ErrCorruptGraph, id, layer)
				}
				if seen.Contains(v) {
					return nil, fmt.Errorf("%w: node %d lists %d twice at layer %d", ErrCorruptGraph, id, v, layer)
				}
				seen.Add(v)
				conns[j] = v
			}
			node.Connections[layer] = conns
		}
		g.nodes = append(g.nodes, node)
	}

	sum := crc.Sum32()
	stored, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptGraph, err)
	}
	if stored != sum {
		return nil, fmt.Errorf("%w: checksum mismatch (stored 0x%08x, computed 0x%08x)", ErrCorruptGraph, stored, sum)
	}

	if err := g.validateSymmetry(); err != nil {
		return nil, err
	}

	// Restore the entry point: highest top layer, smallest id on ties.
	for _, node := range g.nodes {
		if !g.hasEntry || node.MaxLayer > g.maxLevel {
			g.entryPoint = node.ID
			g.maxLevel = node.MaxLayer
			g.hasEntry = true
		}
	}

	return g, nil
}

// validateSymmetry verifies that every edge is listed by both endpoints at
// the same layer.
func (g *Graph[T, D]) validateSymmetry() error {
	for _, node := range g.nodes {
		for layer, conns := range node.Connections {
			for _, nb := range conns {
				other := g.nodes[nb]
				if other.MaxLayer < layer || !slices.Contains(other.Connections[layer], node.ID) {
					return fmt.Errorf("%w: edge %d->%d at layer %d is not symmetric", ErrCorruptGraph, node.ID, nb, layer)
				}
			}
		}
	}
	return nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
