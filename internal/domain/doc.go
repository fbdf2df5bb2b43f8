// Package domain defines the core domain types for the Spider system
// knowledge graph.
//
// This package contains the fundamental entities and value objects shared by
// every other package: resolved entities, typed relationships, per-host
// snapshots and graph generations, structural deltas, and the declarative
// diagnostic pattern model.
//
// # Core Types
//
// Entity represents a scanned object (file, service, container, process,
// network endpoint, host) with a stable identity derived from its kind, host,
// and natural key rather than from ephemeral scanner identifiers.
//
// Relationship represents a directed, confidence-scored edge between two
// entities (imports, config references, log mentions, process handles,
// network connections, containment).
//
// Snapshot is one host's immutable scan result at a generation; Graph is the
// derived knowledge graph for that generation. Graphs are values: a new
// generation is built fresh and published atomically, never mutated in place.
//
// GraphDelta captures attribute-level change between two graphs and supports
// exact reversal.
//
// # Diagnostic Model
//
// DiagnosticPattern maps required and excluded SymptomPredicates to a
// diagnosis and an ordered list of advisory Solutions. DiagnosisResult is the
// ephemeral, ranked output of a correlation run.
//
// # Confidence Algebra
//
// Edge confidences are combined with probabilistic OR (CombineConfidence) so
// repeated evidence strengthens an edge without ever exceeding 1.0.
//
// # Design Principles
//
// - Immutable value objects where possible
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
// - Rich type system with meaningful constants and enumerations
package domain
