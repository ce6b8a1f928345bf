package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/social"
)

// ErrConnectFailed reports a connect request the network rejected.
var ErrConnectFailed = errors.New("connect request failed")

// ConnectSender performs the network side of a connect action. Send
// blocks for the round trip and returns the remote outcome.
type ConnectSender interface {
	Send(ctx context.Context, target social.User) error
}

// SimulatedSender fakes the connect round trip with configurable latency
// and failure probability. A seeded source makes failures reproducible.
type SimulatedSender struct {
	latency  time.Duration
	failRate float64
	clock    clockwork.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// SenderOption configures a SimulatedSender.
type SenderOption func(*SimulatedSender)

// WithSenderClock injects the clock used for latency waits.
func WithSenderClock(c clockwork.Clock) SenderOption {
	return func(s *SimulatedSender) { s.clock = c }
}

// WithSenderSeed fixes the failure sequence.
func WithSenderSeed(seed int64) SenderOption {
	return func(s *SimulatedSender) { s.rng = rand.New(rand.NewSource(seed)) }
}

// NewSimulatedSender returns a sender that waits latency per call and
// fails with probability failRate in [0,1].
func NewSimulatedSender(latency time.Duration, failRate float64, opts ...SenderOption) *SimulatedSender {
	s := &SimulatedSender{
		latency:  latency,
		failRate: failRate,
		clock:    clockwork.NewRealClock(),
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SimulatedSender) Send(ctx context.Context, target social.User) error {
	if s.latency > 0 {
		select {
		case <-s.clock.After(s.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < s.failRate {
		return fmt.Errorf("%w: %s", ErrConnectFailed, target.ID)
	}
	return nil
}
