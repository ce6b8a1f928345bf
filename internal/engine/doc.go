// Package engine runs one suggestion replica: a single-writer event loop
// that owns the replicated document and coordinates ranking, durable
// snapshots, and replication.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All document mutation happens in one goroutine. Local intents and
// remote delta batches enter a FIFO queue; Run dequeues and applies them
// one at a time. This gives:
//   - A total order over the replica's own changes
//   - Mutation without locks (the document is an immutable value; the
//     loop swaps the current pointer)
//   - No re-entrant mutation: a change issued from inside a change
//     callback lands behind it in the queue, never nested inside it
//
// Read Path:
// Readers load the current document pointer and rank against that
// snapshot. In-flight mutations are invisible to them; merges complete
// within one loop turn.
//
// Failure Containment:
// Task failures are logged and the loop continues. Malformed remote
// deltas are dropped with an event. Persistence failures stay inside the
// snapshot bridge. Only connect-action failures surface to the caller.
package engine
