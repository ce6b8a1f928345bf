package snapshot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ADITIII0201/kith/internal/events"
	"github.com/ADITIII0201/kith/internal/replica"
)

var saveTime = time.UnixMilli(1_717_243_200_000)

func sampleDoc(t *testing.T) *replica.Document {
	t.Helper()
	doc := replica.New("actor-1")
	doc, delta := doc.Change(saveTime, func(c *replica.Change) {
		c.Dismiss("u5")
		c.RequestConnection("u6")
		c.SetNote("goal", "meet people")
	})
	require.False(t, delta.Empty())
	return doc
}

func TestKey(t *testing.T) {
	assert.Equal(t, "kith/doc/user123", Key("user123"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	sink := &events.Memory{}
	// An exhausted generator proves Load never mints an actor when the
	// snapshot already carries one.
	b := NewBridge(store,
		WithEvents(sink),
		WithActors(replica.NewFixedActorGenerator()),
	)

	doc := sampleDoc(t)
	b.Save(Key("user123"), doc)
	require.Equal(t, 1, store.Len())

	loaded := b.Load(Key("user123"))
	assert.True(t, doc.Equal(loaded), "load must restore the saved document")
	assert.Equal(t, "actor-1", loaded.Actor())
	assert.True(t, loaded.IsDismissed("u5"), "dismissals must survive a restart")
	assert.Empty(t, sink.Events())
}

func TestLoadAbsentMintsFreshDocument(t *testing.T) {
	sink := &events.Memory{}
	b := NewBridge(NewMemoryStore(),
		WithEvents(sink),
		WithActors(replica.NewFixedActorGenerator("actor-fresh")),
	)

	doc := b.Load(Key("nobody"))
	assert.Equal(t, "actor-fresh", doc.Actor())
	assert.Empty(t, doc.Dismissed())
	assert.Empty(t, sink.Events(), "an absent key is not an error")
}

func TestLoadCorruptSnapshotFallsBackToEmpty(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(Key("user123"), []byte("not a document")))

	sink := &events.Memory{}
	b := NewBridge(store,
		WithEvents(sink),
		WithActors(replica.NewFixedActorGenerator("actor-fresh")),
	)

	doc := b.Load(Key("user123"))
	assert.Equal(t, "actor-fresh", doc.Actor())
	assert.Empty(t, doc.Dismissed())

	evs := sink.ByKind(events.KindSnapshotCorrupt)
	require.Len(t, evs, 1)
	assert.Equal(t, Key("user123"), evs[0].Fields["key"])
	assert.Error(t, evs[0].Err)
}

func TestSaveRetriesAfterCapacityFailure(t *testing.T) {
	store := NewMemoryStore()
	store.FailSets(1, fmt.Errorf("%w: value log full", ErrCapacity))

	sink := &events.Memory{}
	b := NewBridge(store, WithEvents(sink), WithRetryDelay(0))

	b.Save(Key("user123"), sampleDoc(t))

	assert.Equal(t, 1, store.Len(), "retry must land the write")
	require.Len(t, sink.ByKind(events.KindPersistRetried), 1)
	assert.Empty(t, sink.ByKind(events.KindPersistFailed))
}

func TestSaveRetriesAfterTransientFailure(t *testing.T) {
	store := NewMemoryStore()
	store.FailSets(1, errors.New("disk hiccup"))

	sink := &events.Memory{}
	b := NewBridge(store, WithEvents(sink), WithRetryDelay(0))

	b.Save(Key("user123"), sampleDoc(t))

	assert.Equal(t, 1, store.Len())
	assert.Len(t, sink.ByKind(events.KindPersistRetried), 1)
}

func TestSaveSwallowsSecondFailure(t *testing.T) {
	store := NewMemoryStore()
	store.FailSets(2, fmt.Errorf("%w: still full", ErrCapacity))

	sink := &events.Memory{}
	b := NewBridge(store, WithEvents(sink), WithRetryDelay(0))

	b.Save(Key("user123"), sampleDoc(t))

	assert.Equal(t, 0, store.Len())
	evs := sink.ByKind(events.KindPersistFailed)
	require.Len(t, evs, 1)
	assert.Error(t, evs[0].Err)
	assert.Empty(t, sink.ByKind(events.KindPersistRetried))
}

func TestSaveWaitsOutRetryDelay(t *testing.T) {
	store := NewMemoryStore()
	store.FailSets(1, fmt.Errorf("%w: full", ErrCapacity))

	clock := clockwork.NewFakeClock()
	sink := &events.Memory{}
	b := NewBridge(store, WithEvents(sink), WithClock(clock))

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Save(Key("user123"), sampleDoc(t))
	}()

	clock.BlockUntil(1)
	assert.Equal(t, 0, store.Len(), "retry must not fire before the delay")

	clock.Advance(DefaultRetryDelay)
	<-done
	assert.Equal(t, 1, store.Len())
	assert.Len(t, sink.ByKind(events.KindPersistRetried), 1)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("k", []byte("v1")))
	got, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, store.Set("k", []byte("v2")))
	got, _, err = store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, store.Delete("k"))
	_, ok, err = store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete("k"), "deleting an absent key is fine")
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)

	b := NewBridge(store)
	doc := sampleDoc(t)
	b.Save(Key("user123"), doc)
	require.NoError(t, store.Close())

	reopened, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	defer reopened.Close()

	loaded := NewBridge(reopened).Load(Key("user123"))
	assert.True(t, doc.Equal(loaded), "snapshot must survive process restart")
	assert.True(t, loaded.IsDismissed("u5"))
}
