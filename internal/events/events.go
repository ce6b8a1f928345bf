// Package events makes swallowed failures observable. The engine's error
// policy contains validation, merge, persistence, and channel failures
// locally instead of propagating them; every such containment emits an
// Event here so operators see it in logs and tests can assert on it
// without scraping console output.
package events

import (
	"log/slog"
	"sync"
)

// Kind categorizes a contained failure.
type Kind string

const (
	// KindValidationDropped records an input record dropped during
	// validation or normalization.
	KindValidationDropped Kind = "validation_dropped"

	// KindMergeDropped records a remote delta that failed to parse or
	// apply and was discarded with the document unchanged.
	KindMergeDropped Kind = "merge_dropped"

	// KindSnapshotCorrupt records a stored snapshot that failed to
	// deserialize and was replaced by an empty document.
	KindSnapshotCorrupt Kind = "snapshot_corrupt"

	// KindPersistRetried records a snapshot save that hit a capacity
	// failure and is being retried after clearing the key.
	KindPersistRetried Kind = "persist_retried"

	// KindPersistFailed records a snapshot save abandoned after the
	// retry also failed. The in-memory document stays authoritative.
	KindPersistFailed Kind = "persist_failed"

	// KindChannelError records a sync channel error or unexpected close;
	// the session takes the reconnect path.
	KindChannelError Kind = "channel_error"

	// KindConnectRejected records a user-initiated connect action that
	// failed. Unlike the others this failure is also surfaced to the
	// caller; the event exists for observability only.
	KindConnectRejected Kind = "connect_rejected"
)

// Event is one contained failure.
type Event struct {
	Kind   Kind
	Msg    string
	Err    error
	Fields map[string]any
}

// Sink receives events. Implementations must be safe for use from the
// engine goroutine plus any session goroutine.
type Sink interface {
	Emit(Event)
}

// SlogSink forwards events to a structured logger at warn level.
type SlogSink struct {
	Logger *slog.Logger
}

// Emit logs the event with its kind, message, and fields.
func (s SlogSink) Emit(ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, 2*(len(ev.Fields)+2))
	args = append(args, "kind", string(ev.Kind))
	if ev.Err != nil {
		args = append(args, "error", ev.Err)
	}
	for k, v := range ev.Fields {
		args = append(args, k, v)
	}
	logger.Warn(ev.Msg, args...)
}

// Nop discards every event.
type Nop struct{}

// Emit discards the event.
func (Nop) Emit(Event) {}

// Memory collects events for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event to the buffer.
func (m *Memory) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of everything emitted so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByKind returns the emitted events matching kind.
func (m *Memory) ByKind(kind Kind) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
