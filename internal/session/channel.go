package session

import "context"

// Conn is one open duplex message channel to the sync relay. A Conn is
// owned by the session loop; Close unblocks any pending Receive.
type Conn interface {
	// Send writes one frame, blocking until written or failed.
	Send(ctx context.Context, data []byte) error
	// Receive blocks for the next frame. It returns an error once the
	// channel is closed or broken.
	Receive(ctx context.Context) ([]byte, error)
	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// Dialer opens channels. Implementations decide transport and
// addressing; the session only sees lifecycle and frames.
type Dialer interface {
	Dial(ctx context.Context, docID string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, docID string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, docID string) (Conn, error) {
	return f(ctx, docID)
}
