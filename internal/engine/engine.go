package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/directory"
	"github.com/ADITIII0201/kith/internal/events"
	"github.com/ADITIII0201/kith/internal/replica"
	"github.com/ADITIII0201/kith/internal/session"
	"github.com/ADITIII0201/kith/internal/snapshot"
	"github.com/ADITIII0201/kith/internal/social"
	"github.com/ADITIII0201/kith/internal/suggest"
)

// ErrReentrantChange reports a document mutation attempted from inside a
// change callback. All public intents enqueue instead of nesting, so the
// loop itself can never trip this; it guards the internal apply path.
var ErrReentrantChange = errors.New("engine: re-entrant change")

// ErrStopped reports an intent submitted after the engine shut down.
var ErrStopped = errors.New("engine: stopped")

// Presenter receives the re-ranked suggestion list after every change
// that affects it. Called from the engine loop; implementations must not
// block.
type Presenter func([]suggest.ScoredCandidate)

// Engine owns one user's replicated document and serves ranked
// suggestions over the social graph.
//
// Thread-safety model:
//   - Dismiss, SetNote, Connect, View, SubmitRemote: safe from any
//     goroutine (they enqueue)
//   - Run: exactly one goroutine
//   - Suggestions, Document: safe from any goroutine (snapshot reads)
type Engine struct {
	userID  string
	dir     directory.Directory
	ranker  *suggest.Ranker
	bridge  *snapshot.Bridge
	backend session.Backend
	sender  ConnectSender

	clock     clockwork.Clock
	log       *slog.Logger
	events    events.Sink
	presenter Presenter

	queue *taskQueue

	mu  sync.RWMutex
	doc *replica.Document

	// inChange is touched only by the Run goroutine.
	inChange bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRanker replaces the default ranker.
func WithRanker(r *suggest.Ranker) Option {
	return func(e *Engine) { e.ranker = r }
}

// WithBridge sets the durable snapshot bridge. The default persists to a
// process-local memory store.
func WithBridge(b *snapshot.Bridge) Option {
	return func(e *Engine) { e.bridge = b }
}

// WithBackend sets the replication backend. The default NopBackend keeps
// the engine local-only.
func WithBackend(b session.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithSender sets the connect-action sender.
func WithSender(s ConnectSender) Option {
	return func(e *Engine) { e.sender = s }
}

// WithClock injects the time source for change timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithEvents sets the sink receiving contained-failure events.
func WithEvents(sink events.Sink) Option {
	return func(e *Engine) { e.events = sink }
}

// WithPresenter registers the suggestion listener.
func WithPresenter(p Presenter) Option {
	return func(e *Engine) { e.presenter = p }
}

// New returns an engine for userID over the given directory, starting
// from doc (normally the bridge's loaded snapshot).
func New(userID string, doc *replica.Document, dir directory.Directory, opts ...Option) *Engine {
	e := &Engine{
		userID:  userID,
		dir:     dir,
		ranker:  suggest.NewRanker(),
		backend: session.NopBackend{},
		sender:  NewSimulatedSender(0, 0),
		clock:   clockwork.NewRealClock(),
		log:     slog.Default(),
		events:  events.Nop{},
		queue:   newTaskQueue(),
		doc:     doc,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bridge == nil {
		e.bridge = snapshot.NewBridge(snapshot.NewMemoryStore())
	}
	return e
}

// Document returns the current document snapshot.
func (e *Engine) Document() *replica.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc
}

// Snapshot returns the full document state as a delta for the sync
// session's connect-time exchange.
func (e *Engine) Snapshot() *replica.Delta {
	return e.Document().Snapshot()
}

// Dismiss queues a dismissal of the given user. Reports whether the
// intent was accepted.
func (e *Engine) Dismiss(userID string) bool {
	return e.queue.Enqueue(task{
		Kind:   taskChange,
		Op:     "dismiss",
		Change: func(c *replica.Change) { c.Dismiss(userID) },
	})
}

// SetNote queues a write to the document's shared notes.
func (e *Engine) SetNote(key, value string) bool {
	return e.queue.Enqueue(task{
		Kind:   taskChange,
		Op:     "note",
		Change: func(c *replica.Change) { c.SetNote(key, value) },
	})
}

// Connect performs the network round trip for a connect request and, on
// success, queues the pending-connection record. Failures are reported
// to the caller and emitted as events; the engine does not retry.
func (e *Engine) Connect(ctx context.Context, target social.User) error {
	if err := e.sender.Send(ctx, target); err != nil {
		e.events.Emit(events.Event{
			Kind: events.KindConnectRejected,
			Msg:  "connect request rejected",
			Err:  err,
			Fields: map[string]any{
				"user":   e.userID,
				"target": target.ID,
			},
		})
		return err
	}
	ok := e.queue.Enqueue(task{
		Kind:   taskChange,
		Op:     "connect",
		Change: func(c *replica.Change) { c.RequestConnection(target.ID) },
	})
	if !ok {
		return ErrStopped
	}
	return nil
}

// View records a profile view. Views are not replicated; they only feed
// the log.
func (e *Engine) View(target social.User) {
	e.log.Debug("profile viewed", "user", e.userID, "target", target.ID)
}

// SubmitRemote queues encoded remote deltas for merging. Reports whether
// the batch was accepted.
func (e *Engine) SubmitRemote(changes ...[]byte) bool {
	if len(changes) == 0 {
		return false
	}
	return e.queue.Enqueue(task{Kind: taskRemote, Op: "merge", Remote: changes})
}

// Suggestions ranks the directory's users against the current document
// state. The result reflects all changes applied before the call.
func (e *Engine) Suggestions(ctx context.Context) ([]suggest.ScoredCandidate, error) {
	users, err := e.dir.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	viewer, err := e.dir.User(ctx, e.userID)
	if errors.Is(err, directory.ErrNotFound) {
		viewer = social.User{ID: e.userID}
	} else if err != nil {
		return nil, fmt.Errorf("load viewer: %w", err)
	}
	edges, err := e.dir.ConnectionsOf(ctx, e.userID)
	if err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}

	doc := e.Document()
	return e.ranker.Rank(users, viewer, edges, doc.IsDismissed, 0), nil
}

// Run starts the single-writer loop. Cancelling ctx returns immediately;
// Stop lets already-queued tasks drain first.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "user", e.userID)

	for {
		t, ok := e.queue.TryDequeue()
		if ok {
			if err := e.process(ctx, t); err != nil {
				// Log and continue: one bad task must not stop the
				// replica.
				e.log.Error("task failed", "op", t.Op, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping", "user", e.userID, "reason", "context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.log.Info("engine stopping", "user", e.userID, "reason", "queue closed")
				return nil
			}
		}
	}
}

// Stop shuts the engine down after the queue drains.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) process(ctx context.Context, t task) error {
	switch t.Kind {
	case taskChange:
		if t.Change == nil {
			return fmt.Errorf("change task missing callback")
		}
		return e.processChange(ctx, t)

	case taskRemote:
		return e.processRemote(ctx, t)

	default:
		return fmt.Errorf("unknown task kind: %d", t.Kind)
	}
}

// processChange applies one local mutation, persists it, and offers the
// delta to the replication backend.
func (e *Engine) processChange(ctx context.Context, t task) error {
	next, delta, err := e.applyChange(t.Change)
	if err != nil {
		return err
	}
	if delta.Empty() {
		return nil
	}

	e.swap(next)
	e.log.Debug("change applied", "op", t.Op, "user", e.userID, "lamport", next.Lamport())

	e.bridge.Save(snapshot.Key(e.userID), next)
	e.backend.Broadcast(delta)
	e.notify(ctx)
	return nil
}

// processRemote merges a batch of raw deltas. Malformed or unmergeable
// deltas are dropped individually with an event; good ones still apply.
func (e *Engine) processRemote(ctx context.Context, t task) error {
	cur := e.Document()
	next := cur
	merged := 0
	for _, raw := range t.Remote {
		delta, err := replica.DecodeDelta(raw)
		if err != nil {
			e.dropDelta(err)
			continue
		}
		after, err := next.Merge(delta)
		if err != nil {
			e.dropDelta(err)
			continue
		}
		next = after
		merged++
		id, _ := delta.ID()
		e.log.Debug("remote delta merged", "user", e.userID, "delta", id, "lamport", next.Lamport())
	}
	if merged == 0 {
		return nil
	}

	e.swap(next)
	e.bridge.Save(snapshot.Key(e.userID), next)
	if !next.StateEqual(cur) {
		e.notify(ctx)
	}
	return nil
}

func (e *Engine) applyChange(fn func(*replica.Change)) (*replica.Document, *replica.Delta, error) {
	if e.inChange {
		return nil, nil, ErrReentrantChange
	}
	e.inChange = true
	defer func() { e.inChange = false }()

	next, delta := e.Document().Change(e.clock.Now(), fn)
	return next, delta, nil
}

func (e *Engine) swap(next *replica.Document) {
	e.mu.Lock()
	e.doc = next
	e.mu.Unlock()
}

func (e *Engine) dropDelta(err error) {
	e.events.Emit(events.Event{
		Kind: events.KindMergeDropped,
		Msg:  "remote delta dropped",
		Err:  err,
		Fields: map[string]any{
			"user": e.userID,
		},
	})
}

// notify recomputes suggestions and hands them to the presenter.
func (e *Engine) notify(ctx context.Context) {
	if e.presenter == nil {
		return
	}
	ranked, err := e.Suggestions(ctx)
	if err != nil {
		e.log.Warn("suggestion refresh failed", "user", e.userID, "error", err)
		return
	}
	e.presenter(ranked)
}
