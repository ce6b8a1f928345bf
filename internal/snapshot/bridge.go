package snapshot

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/events"
	"github.com/ADITIII0201/kith/internal/replica"
)

// DefaultRetryDelay is the pause before a failed save is retried.
const DefaultRetryDelay = 250 * time.Millisecond

// keyPrefix namespaces document snapshots within a shared store.
const keyPrefix = "kith/doc/"

// Key returns the store key holding the document snapshot for a user.
func Key(userID string) string {
	return keyPrefix + userID
}

// Bridge persists replicated documents through a Store. Save never
// fails its caller and Load never returns an error: persistence problems
// are contained here and reported through the event sink.
type Bridge struct {
	store      Store
	clock      clockwork.Clock
	events     events.Sink
	log        *slog.Logger
	actors     replica.ActorGenerator
	retryDelay time.Duration
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithClock injects the clock used for the retry delay.
func WithClock(c clockwork.Clock) BridgeOption {
	return func(b *Bridge) { b.clock = c }
}

// WithEvents sets the sink receiving persistence events.
func WithEvents(s events.Sink) BridgeOption {
	return func(b *Bridge) { b.events = s }
}

// WithLogger sets the bridge logger.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.log = l }
}

// WithActors sets the generator minting actor IDs for fresh documents.
func WithActors(g replica.ActorGenerator) BridgeOption {
	return func(b *Bridge) { b.actors = g }
}

// WithRetryDelay overrides the save retry delay.
func WithRetryDelay(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.retryDelay = d }
}

// NewBridge returns a Bridge over the given store.
func NewBridge(store Store, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:      store,
		clock:      clockwork.NewRealClock(),
		events:     events.Nop{},
		log:        slog.Default(),
		actors:     replica.UUIDActorGenerator{},
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Save writes the document snapshot under key. A failed write is retried
// once after the retry delay; a capacity failure additionally clears the
// key first so the retry has room. A second failure is reported and
// swallowed, leaving the in-memory document authoritative.
func (b *Bridge) Save(key string, doc *replica.Document) {
	data, err := doc.Encode()
	if err != nil {
		b.events.Emit(events.Event{
			Kind: events.KindPersistFailed,
			Msg:  "encode document for save",
			Err:  err,
			Fields: map[string]any{
				"key": key,
			},
		})
		return
	}

	err = b.store.Set(key, data)
	if err == nil {
		return
	}

	if errors.Is(err, ErrCapacity) {
		if derr := b.store.Delete(key); derr != nil {
			b.log.Warn("clear before retry failed", "key", key, "error", derr)
		}
	}
	b.clock.Sleep(b.retryDelay)

	if rerr := b.store.Set(key, data); rerr != nil {
		b.events.Emit(events.Event{
			Kind: events.KindPersistFailed,
			Msg:  "save retry failed",
			Err:  rerr,
			Fields: map[string]any{
				"key":         key,
				"first_error": err.Error(),
			},
		})
		b.log.Warn("snapshot save abandoned", "key", key, "error", rerr)
		return
	}
	b.events.Emit(events.Event{
		Kind: events.KindPersistRetried,
		Msg:  "save succeeded on retry",
		Err:  err,
		Fields: map[string]any{
			"key": key,
		},
	})
}

// Load reads the snapshot under key. An absent key yields a fresh empty
// document with a newly minted actor; unreadable or corrupt bytes do the
// same after reporting the corruption. Load never fails its caller.
func (b *Bridge) Load(key string) *replica.Document {
	data, ok, err := b.store.Get(key)
	if err != nil {
		b.events.Emit(events.Event{
			Kind: events.KindSnapshotCorrupt,
			Msg:  "read snapshot",
			Err:  err,
			Fields: map[string]any{
				"key": key,
			},
		})
		return b.fresh()
	}
	if !ok {
		return b.fresh()
	}
	doc, err := replica.DecodeDocument(data)
	if err != nil {
		b.events.Emit(events.Event{
			Kind: events.KindSnapshotCorrupt,
			Msg:  "decode snapshot",
			Err:  err,
			Fields: map[string]any{
				"key": key,
			},
		})
		return b.fresh()
	}
	return doc
}

func (b *Bridge) fresh() *replica.Document {
	return replica.New(b.actors.NewActor())
}
