// Package session keeps one replicated document in sync with its peers
// over an unreliable message channel.
//
// The session is an explicit state machine:
//
//	Disconnected -> Connecting -> Connected -> (local change) Broadcasting -> Connected
//	Connected -> Disconnected on channel error, then Connecting again
//	after a backoff delay, retried for as long as the session runs.
//
// There is no terminal failure state; sync is best effort. Local changes
// made while disconnected are not queued: the durable document already
// has them, and the full-state exchange on the next connect restores
// eventual consistency. Timers run on an injected clock and the channel
// is an interface, so the whole machine is testable without a network.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/events"
	"github.com/ADITIII0201/kith/internal/replica"
)

// State names one session lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBroadcasting State = "broadcasting"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRetryInterval  = 2 * time.Second
	DefaultMaxRetryDelay  = time.Minute

	outboundBuffer = 16
)

var errConnectTimeout = errors.New("session: connect timed out")

// Config carries the per-document session settings.
type Config struct {
	// DocID identifies the replicated document on the wire.
	DocID string
	// ConnectTimeout aborts a dial that has not completed in time.
	ConnectTimeout time.Duration
	// RetryInterval scales the reconnect backoff: the nth consecutive
	// failure waits n times this interval.
	RetryInterval time.Duration
	// MaxRetryDelay caps the backoff.
	MaxRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}
	return c
}

// Session replicates one document over channels from a Dialer. Inbound
// deltas go to the apply callback as raw bytes; the owner decodes and
// merges them on its own writer. The snapshot callback supplies the
// full local state pushed on every connect.
type Session struct {
	cfg      Config
	dialer   Dialer
	apply    func(raw []byte)
	snapshot func() *replica.Delta

	clock   clockwork.Clock
	log     *slog.Logger
	events  events.Sink
	onState func(State)

	outbound chan *replica.Delta

	mu       sync.Mutex
	state    State
	attempts int
}

// Option configures a Session.
type Option func(*Session)

// WithClock injects the timer source for backoff and connect timeout.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithEvents sets the sink receiving channel and merge events.
func WithEvents(sink events.Sink) Option {
	return func(s *Session) { s.events = sink }
}

// WithStateListener registers a callback invoked on every state
// transition, from the session goroutine.
func WithStateListener(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

// New returns a session for one document. Run starts it.
func New(cfg Config, dialer Dialer, apply func(raw []byte), snapshot func() *replica.Delta, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg.withDefaults(),
		dialer:   dialer,
		apply:    apply,
		snapshot: snapshot,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
		events:   events.Nop{},
		outbound: make(chan *replica.Delta, outboundBuffer),
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Broadcast hands a local delta to the session for transmission. It
// reports whether the delta was accepted: empty deltas and deltas
// produced while the channel is not open are dropped, since the next
// connect's full-state exchange carries them anyway.
func (s *Session) Broadcast(delta *replica.Delta) bool {
	if delta.Empty() {
		return false
	}
	st := s.State()
	if st != StateConnected && st != StateBroadcasting {
		s.log.Debug("broadcast dropped while offline", "doc", s.cfg.DocID, "state", string(st))
		return false
	}
	select {
	case s.outbound <- delta:
		return true
	default:
		s.events.Emit(events.Event{
			Kind: events.KindChannelError,
			Msg:  "outbound buffer full, delta dropped",
			Fields: map[string]any{
				"doc": s.cfg.DocID,
			},
		})
		return false
	}
}

// Run drives the state machine until ctx is cancelled. Teardown closes
// any open channel and cancels any pending reconnect timer; no retry
// fires afterwards.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.events.Emit(events.Event{
				Kind: events.KindChannelError,
				Msg:  "connect failed",
				Err:  err,
				Fields: map[string]any{
					"doc": s.cfg.DocID,
				},
			})
			s.waitRetry(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		err = s.serve(ctx, conn)
		conn.Close()
		s.drainOutbound()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.events.Emit(events.Event{
			Kind: events.KindChannelError,
			Msg:  "channel closed",
			Err:  err,
			Fields: map[string]any{
				"doc": s.cfg.DocID,
			},
		})
		s.waitRetry(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// connect dials with the configured timeout. A dial that completes after
// the timeout loses the race and its channel is closed.
func (s *Session) connect(ctx context.Context) (Conn, error) {
	s.setState(StateConnecting)

	dctx, cancel := context.WithCancel(ctx)
	type result struct {
		conn Conn
		err  error
	}
	res := make(chan result, 1)
	go func() {
		conn, err := s.dialer.Dial(dctx, s.cfg.DocID)
		res <- result{conn, err}
	}()

	closeLate := func() {
		go func() {
			if r := <-res; r.conn != nil {
				r.conn.Close()
			}
		}()
	}

	select {
	case r := <-res:
		cancel()
		return r.conn, r.err
	case <-s.clock.After(s.cfg.ConnectTimeout):
		cancel()
		closeLate()
		return nil, errConnectTimeout
	case <-ctx.Done():
		cancel()
		closeLate()
		return nil, ctx.Err()
	}
}

// serve owns one open channel: push the full-state snapshot, then pump
// frames in and broadcasts out until the channel or the context dies.
func (s *Session) serve(ctx context.Context, conn Conn) error {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	s.setState(StateConnected)

	if err := s.pushSnapshot(ctx, conn); err != nil {
		return err
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			data, err := conn.Receive(rctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-rctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case data := <-frames:
			s.handleFrame(data)
		case delta := <-s.outbound:
			s.setState(StateBroadcasting)
			if err := s.sendDelta(ctx, conn, delta); err != nil {
				return err
			}
			s.setState(StateConnected)
		}
	}
}

func (s *Session) pushSnapshot(ctx context.Context, conn Conn) error {
	if s.snapshot == nil {
		return nil
	}
	snap := s.snapshot()
	if snap.Empty() {
		return nil
	}
	return s.sendDelta(ctx, conn, snap)
}

func (s *Session) sendDelta(ctx context.Context, conn Conn, delta *replica.Delta) error {
	raw, err := delta.Encode()
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	data, err := EncodeFrame(SyncFrame(s.cfg.DocID, raw))
	if err != nil {
		return err
	}
	return conn.Send(ctx, data)
}

func (s *Session) handleFrame(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		s.events.Emit(events.Event{
			Kind: events.KindMergeDropped,
			Msg:  "malformed frame",
			Err:  err,
			Fields: map[string]any{
				"doc": s.cfg.DocID,
			},
		})
		return
	}
	if f.Type != FrameTypeSync || f.DocID != s.cfg.DocID {
		s.log.Debug("ignoring frame", "type", f.Type, "doc", f.DocID)
		return
	}
	if s.apply == nil {
		return
	}
	for _, change := range f.Changes {
		s.apply(change)
	}
}

// waitRetry sleeps out the backoff before the next connect attempt.
func (s *Session) waitRetry(ctx context.Context) {
	s.setState(StateDisconnected)
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.mu.Unlock()

	d := retryDelay(n, s.cfg.RetryInterval, s.cfg.MaxRetryDelay)
	s.log.Debug("reconnect scheduled", "doc", s.cfg.DocID, "attempt", n, "delay", d)
	select {
	case <-s.clock.After(d):
	case <-ctx.Done():
	}
}

// retryDelay grows linearly with consecutive failures and caps at
// ceiling, the policy persistent peers use for reconnection.
func retryDelay(attempt int, interval, ceiling time.Duration) time.Duration {
	d := time.Duration(attempt) * interval
	if d > ceiling {
		d = ceiling
	}
	return d
}

func (s *Session) drainOutbound() {
	for {
		select {
		case <-s.outbound:
		default:
			return
		}
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	s.log.Debug("session state", "doc", s.cfg.DocID, "state", string(st))
	if s.onState != nil {
		s.onState(st)
	}
}
