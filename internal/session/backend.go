package session

import (
	"context"

	"github.com/ADITIII0201/kith/internal/replica"
)

// Backend is the replication capability an engine drives. Session is the
// live implementation; NopBackend stands in when replication is
// disabled, chosen at construction time rather than probed at runtime.
type Backend interface {
	// Run drives replication until ctx is cancelled.
	Run(ctx context.Context) error
	// Broadcast offers a local delta for transmission, reporting whether
	// it was accepted.
	Broadcast(delta *replica.Delta) bool
	// State reports the current channel lifecycle phase.
	State() State
}

// NopBackend disables replication: broadcasts drop, the state is
// permanently disconnected, and Run just waits for cancellation.
type NopBackend struct{}

func (NopBackend) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (NopBackend) Broadcast(*replica.Delta) bool { return false }

func (NopBackend) State() State { return StateDisconnected }
