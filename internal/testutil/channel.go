package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ADITIII0201/kith/internal/session"
)

// ErrConnDropped is the error a FakeConn surfaces after Drop.
var ErrConnDropped = errors.New("connection dropped")

// FakeConn is a scriptable in-memory sync channel. Tests deliver inbound
// frames with Deliver, observe outbound frames via TakeSent, and kill
// the connection with Drop.
type FakeConn struct {
	incoming chan []byte
	sent     chan []byte

	mu        sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
	sendErr   error
}

// NewFakeConn returns an open fake channel.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		incoming: make(chan []byte, 64),
		sent:     make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *FakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	err := c.sendErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnDropped
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	out := make([]byte, len(data))
	copy(out, data)
	select {
	case c.sent <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *FakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.closed:
		return nil, ErrConnDropped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Drop simulates the remote side or the network killing the channel.
func (c *FakeConn) Drop() {
	c.Close()
}

// FailSends makes subsequent Send calls return err.
func (c *FakeConn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Deliver feeds one inbound frame to the session.
func (c *FakeConn) Deliver(data []byte) {
	in := make([]byte, len(data))
	copy(in, data)
	c.incoming <- in
}

// TakeSent waits for the next outbound frame. The timeout is a failsafe
// for broken tests, not a synchronization point.
func (c *FakeConn) TakeSent(t *testing.T, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-c.sent:
		return data
	case <-time.After(timeout):
		t.Fatalf("no frame sent within %v", timeout)
		return nil
	}
}

// SentCount returns how many unconsumed outbound frames are queued.
func (c *FakeConn) SentCount() int {
	return len(c.sent)
}

// FakeDialer hands out FakeConns and can be told to fail dials. Each
// successful dial is announced on a channel so tests can grab the live
// conn.
type FakeDialer struct {
	mu        sync.Mutex
	failDials int
	dialErr   error
	dials     int

	conns chan *FakeConn
}

// NewFakeDialer returns a dialer whose dials all succeed.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{conns: make(chan *FakeConn, 16)}
}

// FailDials makes the next n Dial calls fail with err.
func (d *FakeDialer) FailDials(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failDials = n
	d.dialErr = err
}

// Dials returns how many Dial calls have been made.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *FakeDialer) Dial(ctx context.Context, docID string) (session.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	if d.failDials > 0 {
		d.failDials--
		err := d.dialErr
		d.mu.Unlock()
		if err == nil {
			err = errors.New("dial refused")
		}
		return nil, err
	}
	d.mu.Unlock()

	conn := NewFakeConn()
	d.conns <- conn
	return conn, nil
}

// NextConn waits for the next successful dial's connection. The timeout
// is a failsafe for broken tests.
func (d *FakeDialer) NextConn(t *testing.T, timeout time.Duration) *FakeConn {
	t.Helper()
	select {
	case conn := <-d.conns:
		return conn
	case <-time.After(timeout):
		t.Fatalf("no connection dialed within %v", timeout)
		return nil
	}
}
