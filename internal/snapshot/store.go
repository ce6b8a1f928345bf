// Package snapshot bridges the in-memory replicated document to a
// durable key-value store. Persistence is best effort: the in-memory
// document stays authoritative for the session, saves retry once and
// then give up, and a corrupt snapshot loads as an empty document rather
// than an error.
package snapshot

import "errors"

// ErrCapacity marks a write rejected because the store is out of space
// or quota. Implementations wrap it so the bridge can pick the
// clear-then-retry path.
var ErrCapacity = errors.New("store capacity exceeded")

// Store is the durable collaborator the bridge writes through. A key
// holds the latest full snapshot for one document; there is no history.
type Store interface {
	// Get returns the stored bytes and whether the key exists.
	Get(key string) ([]byte, bool, error)
	// Set stores the bytes, replacing any previous value.
	Set(key string, value []byte) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error
}
