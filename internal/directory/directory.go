// Package directory stores the social graph the suggestion engine reads:
// users and the connection edges of the current user.
//
// Two implementations share one contract:
//   - SQLite (production): WAL mode, embedded schema, JSON columns for
//     string collections.
//   - Memory (tests, demos): map-backed, same validation behavior.
//
// Writes validate and reject malformed records; reads never fail on bad
// data. A row that no longer satisfies the model invariants is dropped
// from the result and reported through the event sink, so a corrupted
// record can never break a ranking pass.
package directory

import (
	"context"
	"errors"

	"github.com/ADITIII0201/kith/internal/social"
)

// ErrNotFound reports a user ID with no directory record.
var ErrNotFound = errors.New("directory: user not found")

// Directory is the social-graph source of truth for one engine.
type Directory interface {
	// UpsertUser inserts or replaces a user record. The record is
	// normalized before storage; invalid records are rejected.
	UpsertUser(ctx context.Context, u social.User) error

	// AddConnection records one connection edge for the viewer. Multiple
	// edges to the same target are legal and are all kept; scoring
	// aggregates them.
	AddConnection(ctx context.Context, viewerID string, edge social.ConnectionEdge) error

	// User returns one user by ID, or ErrNotFound.
	User(ctx context.Context, id string) (social.User, error)

	// Users returns every valid user record, sorted by ID.
	Users(ctx context.Context) ([]social.User, error)

	// ConnectionsOf returns the viewer's connection edges in insertion
	// order.
	ConnectionsOf(ctx context.Context, viewerID string) ([]social.ConnectionEdge, error)

	// Close releases the underlying storage.
	Close() error
}
