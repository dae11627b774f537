package smallworld

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/smallworld/blobstore"
	"github.com/hupe1980/smallworld/distance"
	"github.com/hupe1980/smallworld/hnsw"
	"github.com/hupe1980/smallworld/persistence"
)

// SmallWorld is the facade over a single HNSW graph: it builds the graph
// from an item sequence, serves k-NN queries, and persists/restores the
// topology without re-running construction.
//
// Construction is single-threaded and must complete before queries. Once
// built, queries are safe to run concurrently with each other; the graph is
// never mutated again.
type SmallWorld[T any, D cmp.Ordered] struct {
	distFunc distance.Func[T, D]
	opts     options

	graph *hnsw.Graph[T, D]
	items []T
}

// New creates a facade for the given distance function. The graph itself is
// created by BuildGraph or DeserializeGraph.
func New[T any, D cmp.Ordered](distFunc distance.Func[T, D], optFns ...Option) *SmallWorld[T, D] {
	return &SmallWorld[T, D]{
		distFunc: distFunc,
		opts:     applyOptions(optFns),
	}
}

// BuildGraph allocates a fresh graph and inserts items in input order.
// The id of each item is its position in the slice. source supplies the
// level-sampling randomness; seed it for reproducible builds.
func (s *SmallWorld[T, D]) BuildGraph(items []T, source hnsw.RandomSource) error {
	start := time.Now()

	g, err := hnsw.New(s.distFunc, source, s.opts.graphOptFns...)
	if err == nil {
		for i := range items {
			if _, err = g.Add(items[i]); err != nil {
				err = fmt.Errorf("insert item %d: %w", i, err)
				break
			}
		}
	}

	s.opts.metricsCollector.RecordBuild(len(items), time.Since(start), err)
	s.opts.logger.LogBuild(len(items), time.Since(start), err)
	if err != nil {
		return err
	}

	s.graph = g
	s.items = items
	return nil
}

// Len returns the number of indexed items, or 0 before a build.
func (s *SmallWorld[T, D]) Len() int {
	if s.graph == nil {
		return 0
	}
	return s.graph.Len()
}

// Options returns the effective graph options. After DeserializeGraph only M
// is restored from the snapshot; the rest are re-derived defaults plus
// whatever WithGraphOptions set.
func (s *SmallWorld[T, D]) Options() (hnsw.Options, error) {
	if s.graph == nil {
		return hnsw.Options{}, ErrGraphNotBuilt
	}
	return s.graph.Options(), nil
}

// KNNSearch returns the k nearest neighbors of query, ascending by distance.
func (s *SmallWorld[T, D]) KNNSearch(query T, k int, optFns ...func(o *SearchOptions)) ([]SearchResult[T, D], error) {
	start := time.Now()
	results, err := s.knnSearch(query, k, optFns)
	s.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
	s.opts.logger.LogSearch(k, len(results), err)
	return results, err
}

func (s *SmallWorld[T, D]) knnSearch(query T, k int, optFns []func(o *SearchOptions)) ([]SearchResult[T, D], error) {
	if s.graph == nil {
		return nil, ErrGraphNotBuilt
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if s.graph.Len() == 0 {
		return nil, ErrEmptyGraph
	}

	var so SearchOptions
	for _, fn := range optFns {
		fn(&so)
	}

	ef := so.EF
	if ef == 0 {
		ef = s.graph.Options().EFConstruction
	}
	if ef < k {
		ef = k
	}

	matches := s.graph.Search(query, k, ef, so.filter())

	results := make([]SearchResult[T, D], len(matches))
	for i, m := range matches {
		results[i] = SearchResult[T, D]{ID: m.Node, Item: s.items[m.Node], Distance: m.Distance}
	}
	return results, nil
}

// BruteSearch returns the exact k nearest neighbors by scanning every item.
// It exists as ground truth for recall measurements, not as an index feature.
func (s *SmallWorld[T, D]) BruteSearch(query T, k int, optFns ...func(o *SearchOptions)) ([]SearchResult[T, D], error) {
	if s.graph == nil {
		return nil, ErrGraphNotBuilt
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if s.graph.Len() == 0 {
		return nil, ErrEmptyGraph
	}

	var so SearchOptions
	for _, fn := range optFns {
		fn(&so)
	}

	matches := s.graph.BruteSearch(query, k, so.filter())

	results := make([]SearchResult[T, D], len(matches))
	for i, m := range matches {
		results[i] = SearchResult[T, D]{ID: m.Node, Item: s.items[m.Node], Distance: m.Distance}
	}
	return results, nil
}

// BatchKNNSearch runs KNNSearch for every query concurrently and returns
// per-query results in input order. Concurrency is bounded by the resource
// controller when one is configured, otherwise by GOMAXPROCS.
func (s *SmallWorld[T, D]) BatchKNNSearch(ctx context.Context, queries []T, k int, optFns ...func(o *SearchOptions)) ([][]SearchResult[T, D], error) {
	if s.graph == nil {
		return nil, ErrGraphNotBuilt
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	out := make([][]SearchResult[T, D], len(queries))
	for i, q := range queries {
		g.Go(func() error {
			if c := s.opts.controller; c != nil {
				if err := c.AcquireSearch(ctx); err != nil {
					return err
				}
				defer c.ReleaseSearch()
			}

			results, err := s.KNNSearch(q, k, optFns...)
			if err != nil {
				return err
			}
			out[i] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteGraph writes the serialized topology to w.
func (s *SmallWorld[T, D]) WriteGraph(w io.Writer) (int64, error) {
	if s.graph == nil {
		return 0, ErrGraphNotBuilt
	}
	return s.graph.WriteTo(w)
}

// SerializeGraph returns the serialized topology as a byte slice. Items are
// not written; DeserializeGraph re-binds them by position.
func (s *SmallWorld[T, D]) SerializeGraph() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.WriteGraph(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadGraph reconstructs the topology from r and binds ids to items by
// position. The same item sequence used at build time must be supplied.
func (s *SmallWorld[T, D]) ReadGraph(items []T, r io.Reader) error {
	g, err := hnsw.Load(items, s.distFunc, r, s.opts.graphOptFns...)
	if err != nil {
		return err
	}
	s.graph = g
	s.items = items
	return nil
}

// DeserializeGraph reconstructs the topology from data and binds ids to
// items by position.
func (s *SmallWorld[T, D]) DeserializeGraph(items []T, data []byte) error {
	return s.ReadGraph(items, bytes.NewReader(data))
}

// SaveToFile writes a snapshot file: the serialized topology wrapped in the
// persistence envelope, compressed with the configured codec. The write is
// atomic (temp file + rename).
func (s *SmallWorld[T, D]) SaveToFile(filename string) error {
	start := time.Now()
	err := s.saveToFile(filename)
	s.opts.metricsCollector.RecordSnapshotSave(time.Since(start), err)
	s.opts.logger.LogSnapshotSave(filename, err)
	return err
}

func (s *SmallWorld[T, D]) saveToFile(filename string) error {
	if s.graph == nil {
		return ErrGraphNotBuilt
	}
	return persistence.SaveToFile(filename, s.opts.compression, func(w io.Writer) error {
		_, err := s.graph.WriteTo(w)
		return err
	})
}

// LoadFromFile restores a snapshot written by SaveToFile, re-binding ids to
// the provided items. The codec is detected from the envelope.
func (s *SmallWorld[T, D]) LoadFromFile(items []T, filename string) error {
	start := time.Now()
	err := persistence.LoadFromFile(filename, func(r io.Reader) error {
		return s.ReadGraph(items, r)
	})
	s.opts.metricsCollector.RecordSnapshotLoad(time.Since(start), err)
	s.opts.logger.LogSnapshotLoad(filename, err)
	return err
}

// SaveToStore writes a snapshot blob to an object store.
func (s *SmallWorld[T, D]) SaveToStore(ctx context.Context, store blobstore.Store, name string) error {
	start := time.Now()
	err := s.saveToStore(ctx, store, name)
	s.opts.metricsCollector.RecordSnapshotSave(time.Since(start), err)
	s.opts.logger.LogSnapshotSave(name, err)
	return err
}

func (s *SmallWorld[T, D]) saveToStore(ctx context.Context, store blobstore.Store, name string) error {
	if s.graph == nil {
		return ErrGraphNotBuilt
	}

	var buf bytes.Buffer
	if err := persistence.WriteSnapshot(&buf, s.opts.compression, func(w io.Writer) error {
		_, err := s.graph.WriteTo(w)
		return err
	}); err != nil {
		return err
	}

	if c := s.opts.controller; c != nil {
		if err := c.AcquireIO(ctx, buf.Len()); err != nil {
			return err
		}
	}

	return store.Put(ctx, name, &buf)
}

// LoadFromStore restores a snapshot blob written by SaveToStore.
func (s *SmallWorld[T, D]) LoadFromStore(ctx context.Context, store blobstore.Store, name string, items []T) error {
	start := time.Now()
	err := s.loadFromStore(ctx, store, name, items)
	s.opts.metricsCollector.RecordSnapshotLoad(time.Since(start), err)
	s.opts.logger.LogSnapshotLoad(name, err)
	return err
}

func (s *SmallWorld[T, D]) loadFromStore(ctx context.Context, store blobstore.Store, name string, items []T) error {
	rc, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	return persistence.ReadSnapshot(rc, func(r io.Reader) error {
		return s.ReadGraph(items, r)
	})
}

// Stats returns a snapshot of the graph's shape.
func (s *SmallWorld[T, D]) Stats() (hnsw.Stats, error) {
	if s.graph == nil {
		return hnsw.Stats{}, ErrGraphNotBuilt
	}
	return s.graph.Stats(), nil
}

// Print writes a human-readable dump of the graph's edges to w.
// Debug aid only; the format carries no stability guarantee.
func (s *SmallWorld[T, D]) Print(w io.Writer) error {
	if s.graph == nil {
		return ErrGraphNotBuilt
	}
	s.graph.Print(w)
	return nil
}
