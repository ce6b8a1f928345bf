// Package replica implements the convergent replicated document that
// backs suggestion state: dismissed user IDs, pending connection
// requests, and free-form note fields, shared by every replica (device or
// session) of one logical user.
//
// ARCHITECTURE:
//
// Delta-state CRDT:
// The document is a product of named join-semilattices, so merging is a
// join and the convergence properties hold by construction rather than by
// case analysis:
//   - dismissed: grow-only set of user IDs. Dismissal is monotonic; there
//     is no undismiss operation, so no tombstones are needed.
//   - pending: map of user ID to a last-writer-wins entry ordered by
//     Stamp. A cleared flag acts as the LWW tombstone for withdrawn
//     requests.
//   - notes: map of field name to an LWW register ordered by Stamp.
//   - updatedAt: max-register over wall-clock milliseconds.
//
// Join of a join-semilattice is commutative, associative, and idempotent,
// which is exactly the contract merge must satisfy: replicas converge to
// the same state no matter how deltas are ordered, duplicated, or
// batched. A full-state snapshot is itself just a large delta, so the
// initial exchange after (re)connecting reuses the same merge path.
//
// Stamps:
// Every LWW write carries a Stamp{Lamport, Actor}. Lamport counters are
// ticked on local change and witnessed (max-adopted) on merge; ties are
// broken by actor ID so the order is total. Wall-clock time never decides
// a conflict.
//
// Immutability:
// Documents are immutable values. Change and Merge return a new document
// and leave the receiver untouched, so a ranking pass always observes a
// consistent snapshot without coordination.
//
// Failure containment:
// A delta that fails to decode or validate is rejected whole: the
// document is never partially updated, and the merge path never panics.
// Callers report the rejection through their event sink.
package replica
