// Package smallworld provides a generic Hierarchical Navigable Small World
// (HNSW) index for approximate nearest-neighbor search.
//
// The index works over any item type and any totally ordered distance type:
// the caller supplies the distance function, the library never does
// arithmetic on distances. Identifiers are dense and equal the item's
// position in the build-time sequence.
//
// # Quick Start
//
//	sw := smallworld.New[[]float64, float64](distance.Euclidean)
//	if err := sw.BuildGraph(points, rand.New(rand.NewSource(42))); err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := sw.KNNSearch(query, 10)
//
// # Persistence
//
// Snapshots hold topology only (neighbor lists, layer assignments, M) and
// never the items themselves. On load the caller re-supplies the same item
// sequence in the same order:
//
//	data, _ := sw.SerializeGraph()
//
//	restored := smallworld.New[[]float64, float64](distance.Euclidean)
//	if err := restored.DeserializeGraph(points, data); err != nil {
//	    log.Fatal(err)
//	}
//
// SaveToFile/LoadFromFile add an atomic, optionally compressed file
// envelope; SaveToStore/LoadFromStore do the same against an object store
// (local directory, memory, S3, MinIO).
//
// # Concurrency
//
// Building is single-threaded. A built graph is immutable, so any number of
// searches may run concurrently; BatchKNNSearch fans out across a bounded
// worker pool.
package smallworld
