// Package store defines the persistence interfaces for Spider.
//
// This package provides the storage abstraction for snapshot history, graph
// generations, and solution outcome tracking. The actual implementation is
// in the sqlite subpackage.
//
// # Store Interface
//
// The Store interface covers three concerns:
//
//   - Snapshot history: raw scanner output per (host, generation), kept
//     append-only so past observations can be replayed.
//   - Graph generations: the published graph per (host, generation) plus
//     the delta from its predecessor, written atomically.
//   - Solution history: per-pattern success and failure counts that feed
//     solution ranking.
//
// # SQLite Implementation
//
// The sqlite implementation stores each generation as a JSON blob alongside
// indexed columns, uses WAL mode for concurrency, and migrates its schema on
// startup. Generations are immutable once written; retention is enforced by
// explicit pruning rather than updates in place.
//
// # Testing
//
// The sqlite store is tested with in-memory databases.
package store
