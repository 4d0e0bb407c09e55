// Package vex implements an in-process, high-throughput approximate
// nearest-neighbor search engine for fixed-dimension float32 vectors under
// the squared-L2 metric.
//
// The engine layers three substrates behind one logical index:
//
//   - a hierarchical proximity graph with lock-free readers, copy-on-write
//     streaming writers and epoch-based memory reclamation;
//   - a wait-free active write buffer absorbing streaming inserts;
//   - a bounded queue of sealed buffers drained into the graph by background
//     compaction workers, with soft and hard backpressure.
//
// A typical lifecycle bulk-loads a base corpus into the graph, then serves
// concurrent searches and inserts:
//
//	db, err := vex.New(128, 1_050_000, vex.WithM(16), vex.WithEFConstruction(200))
//	if err != nil { ... }
//	defer db.Close()
//
//	_ = db.BulkLoad(ctx, base, 0)
//
//	_ = db.Insert(ctx, 1_000_000, vec)
//	results, _ := db.Search(ctx, query, 10, 100)
//
// The server package exposes Search and Insert over a minimal binary TCP
// protocol; the core itself has no network or persistence surface.
package vex
