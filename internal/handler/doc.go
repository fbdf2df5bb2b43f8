// Package handler implements HTTP request handlers for the Spider API.
//
// # Endpoints
//
// Read endpoints serve the in-memory published state: host list with stale
// flags, per-host graphs, recent deltas, the latest ranked diagnoses, and
// the last cycle summary. GET /api/graph/{host} always returns one complete
// generation; a scan cycle in flight is never partially visible.
//
// Write endpoints trigger a scan cycle, reload the pattern library, and
// record solution outcomes fed back into ranking.
//
// # Response Format
//
// Success responses return JSON with appropriate status codes. Errors
// return JSON with an {error, details} structure.
//
// # Server-Sent Events
//
// The /events endpoint (served by the hub package) streams lifecycle
// events: graphs published, hosts going stale or recovering, diagnosis
// passes completing.
package handler
