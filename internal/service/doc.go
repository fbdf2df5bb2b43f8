// Package service orchestrates Spider's observe-diagnose loop.
//
// # Ingestion
//
// Ingestor owns the scan-resolve-build-publish pipeline. Each host's
// pipeline is serialized while distinct hosts run in parallel, and a new
// generation becomes visible in one atomic swap only after it has been
// persisted. A host that times out is marked stale and keeps serving its
// last published generation; a build that fails consistency checks
// publishes nothing.
//
// # Diagnosis
//
// Diagnoser evaluates the pattern library against every host's live
// generation plus its recent deltas, overlaying operator-recorded solution
// outcomes onto the library's counts before ranking.
//
// # Events
//
// EventBus fans out lifecycle events (graph published, host stale,
// diagnosis complete) to subscribers with non-blocking sends; the SSE hub
// relays them to clients.
package service
