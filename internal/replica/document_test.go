package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.UnixMilli(1_717_243_200_000)

func mustChange(t *testing.T, d *Document, at time.Time, fn func(*Change)) (*Document, *Delta) {
	t.Helper()
	next, delta := d.Change(at, fn)
	require.False(t, delta.Empty(), "change recorded nothing")
	return next, delta
}

func mustMerge(t *testing.T, d *Document, delta *Delta) *Document {
	t.Helper()
	next, err := d.Merge(delta)
	require.NoError(t, err)
	return next
}

func TestChangeDismiss(t *testing.T) {
	doc := New("actor-a")

	next, delta := mustChange(t, doc, baseTime, func(c *Change) {
		c.Dismiss("u2")
		c.Dismiss("u7")
	})

	assert.True(t, next.IsDismissed("u2"))
	assert.True(t, next.IsDismissed("u7"))
	assert.Equal(t, []string{"u2", "u7"}, next.Dismissed())
	assert.ElementsMatch(t, []string{"u2", "u7"}, delta.Dismissed)
	assert.Equal(t, baseTime.UnixMilli(), next.UpdatedAt())

	// The receiver is a value; the change must not leak into it.
	assert.False(t, doc.IsDismissed("u2"), "original document mutated")
	assert.EqualValues(t, 0, doc.UpdatedAt())
}

func TestChangeDismissIdempotentLocally(t *testing.T) {
	doc, _ := mustChange(t, New("actor-a"), baseTime, func(c *Change) {
		c.Dismiss("u2")
	})

	next, delta := doc.Change(baseTime.Add(time.Minute), func(c *Change) {
		c.Dismiss("u2")
		c.Dismiss("")
	})
	assert.True(t, delta.Empty(), "re-dismissing must record nothing")
	assert.Same(t, doc, next, "no-op change must return the receiver")
}

func TestChangeRequestAndClear(t *testing.T) {
	doc := New("actor-a")

	doc, _ = mustChange(t, doc, baseTime, func(c *Change) {
		c.RequestConnection("u5")
	})
	require.True(t, doc.HasPending("u5"))
	pending := doc.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "u5", pending[0].UserID)
	assert.Equal(t, baseTime.UnixMilli(), pending[0].RequestedAt)
	assert.Equal(t, Stamp{Lamport: 1, Actor: "actor-a"}, pending[0].Stamp)

	doc, delta := mustChange(t, doc, baseTime.Add(time.Hour), func(c *Change) {
		c.ClearPending("u5")
	})
	assert.False(t, doc.HasPending("u5"))
	assert.Empty(t, doc.Pending())
	require.Len(t, delta.Pending, 1)
	assert.True(t, delta.Pending[0].Cleared)
	assert.Equal(t, Stamp{Lamport: 2, Actor: "actor-a"}, delta.Pending[0].Stamp)

	// Clearing again, or clearing an unknown user, records nothing.
	_, delta = doc.Change(baseTime.Add(2*time.Hour), func(c *Change) {
		c.ClearPending("u5")
		c.ClearPending("nobody")
	})
	assert.True(t, delta.Empty())

	// A fresh request after clearing reactivates with a later stamp.
	doc, _ = mustChange(t, doc, baseTime.Add(3*time.Hour), func(c *Change) {
		c.RequestConnection("u5")
	})
	assert.True(t, doc.HasPending("u5"))
}

func TestChangeSetNote(t *testing.T) {
	doc := New("actor-a")

	doc, _ = mustChange(t, doc, baseTime, func(c *Change) {
		c.SetNote("goal", "find climbing partners")
	})
	v, ok := doc.Note("goal")
	require.True(t, ok)
	assert.Equal(t, "find climbing partners", v)

	_, delta := doc.Change(baseTime.Add(time.Minute), func(c *Change) {
		c.SetNote("goal", "find climbing partners")
	})
	assert.True(t, delta.Empty(), "rewriting the same value must record nothing")

	doc, _ = mustChange(t, doc, baseTime.Add(time.Minute), func(c *Change) {
		c.SetNote("goal", "find running partners")
	})
	v, _ = doc.Note("goal")
	assert.Equal(t, "find running partners", v)
	assert.Equal(t, map[string]string{"goal": "find running partners"}, doc.Notes())
}

func TestMergeIdempotent(t *testing.T) {
	_, delta := mustChange(t, New("actor-b"), baseTime, func(c *Change) {
		c.Dismiss("u1")
		c.RequestConnection("u2")
		c.SetNote("goal", "x")
	})

	doc := New("actor-a")
	once := mustMerge(t, doc, delta)
	twice := mustMerge(t, once, delta)

	assert.True(t, once.Equal(twice), "duplicate delivery must not change state")
}

func TestMergeCommutative(t *testing.T) {
	_, da := mustChange(t, New("actor-a"), baseTime, func(c *Change) {
		c.Dismiss("u1")
		c.RequestConnection("u2")
	})
	_, db := mustChange(t, New("actor-b"), baseTime.Add(time.Second), func(c *Change) {
		c.Dismiss("u3")
		c.SetNote("goal", "y")
	})

	doc := New("actor-c")
	ab := mustMerge(t, mustMerge(t, doc, da), db)
	ba := mustMerge(t, mustMerge(t, doc, db), da)

	assert.True(t, ab.Equal(ba), "merge order must not matter")
}

func TestMergeAssociative(t *testing.T) {
	_, da := mustChange(t, New("actor-a"), baseTime, func(c *Change) { c.Dismiss("u1") })
	_, db := mustChange(t, New("actor-b"), baseTime, func(c *Change) { c.RequestConnection("u2") })
	_, dc := mustChange(t, New("actor-c"), baseTime, func(c *Change) { c.SetNote("k", "v") })

	doc := New("actor-d")
	left := mustMerge(t, mustMerge(t, mustMerge(t, doc, da), db), dc)
	right := mustMerge(t, mustMerge(t, mustMerge(t, doc, db), dc), da)

	assert.True(t, left.Equal(right))
}

func TestConcurrentNoteWritesResolveByStamp(t *testing.T) {
	// Both actors write note "color" at lamport 1; the actor ID breaks
	// the tie, so every replica picks the same winner.
	a, da := mustChange(t, New("actor-aa"), baseTime, func(c *Change) {
		c.SetNote("color", "red")
	})
	b, db := mustChange(t, New("actor-ab"), baseTime, func(c *Change) {
		c.SetNote("color", "blue")
	})

	aMerged := mustMerge(t, a, db)
	bMerged := mustMerge(t, b, da)

	v, _ := aMerged.Note("color")
	assert.Equal(t, "blue", v, "higher actor ID must win the tie")
	assert.True(t, aMerged.StateEqual(bMerged), "replicas must converge")
}

func TestClearSurvivesRedeliveredRequest(t *testing.T) {
	a, request := mustChange(t, New("actor-a"), baseTime, func(c *Change) {
		c.RequestConnection("u9")
	})

	b := mustMerge(t, New("actor-b"), request)
	require.True(t, b.HasPending("u9"))

	b, clear := mustChange(t, b, baseTime.Add(time.Minute), func(c *Change) {
		c.ClearPending("u9")
	})

	// The old request arrives again after the clear. The tombstone has
	// the later stamp and must hold.
	b = mustMerge(t, b, request)
	assert.False(t, b.HasPending("u9"))

	a = mustMerge(t, a, clear)
	assert.False(t, a.HasPending("u9"))
	assert.True(t, a.StateEqual(b))
}

func TestMergeWitnessesRemoteClock(t *testing.T) {
	remote := New("actor-b")
	for i := 0; i < 5; i++ {
		remote, _ = mustChange(t, remote, baseTime, func(c *Change) {
			c.RequestConnection("u1")
		})
	}
	require.EqualValues(t, 5, remote.Lamport())

	local := mustMerge(t, New("actor-a"), remote.Snapshot())
	assert.EqualValues(t, 5, local.Lamport(), "merge must witness the remote clock")

	// The next local write must order after everything witnessed.
	local, delta := mustChange(t, local, baseTime.Add(time.Second), func(c *Change) {
		c.RequestConnection("u1")
	})
	require.Len(t, delta.Pending, 1)
	assert.Equal(t, Stamp{Lamport: 6, Actor: "actor-a"}, delta.Pending[0].Stamp)
	assert.True(t, local.HasPending("u1"))
}

func TestMergeRejectsInvalidDeltas(t *testing.T) {
	doc, _ := mustChange(t, New("actor-a"), baseTime, func(c *Change) {
		c.Dismiss("u1")
	})

	tests := []struct {
		name  string
		delta *Delta
	}{
		{"nil delta", nil},
		{"missing actor", &Delta{Dismissed: []string{"u2"}}},
		{"empty dismissed id", &Delta{Actor: "x", Dismissed: []string{""}}},
		{"negative updatedAt", &Delta{Actor: "x", Dismissed: []string{"u2"}, UpdatedAt: -1}},
		{"pending without stamp", &Delta{Actor: "x", Pending: []PendingConnection{{UserID: "u2"}}}},
		{"pending without user", &Delta{Actor: "x", Pending: []PendingConnection{
			{Stamp: Stamp{Lamport: 1, Actor: "x"}},
		}}},
		{"pending negative requestedAt", &Delta{Actor: "x", Pending: []PendingConnection{
			{UserID: "u2", RequestedAt: -5, Stamp: Stamp{Lamport: 1, Actor: "x"}},
		}}},
		{"note without key", &Delta{Actor: "x", Notes: []Note{
			{Value: "v", Stamp: Stamp{Lamport: 1, Actor: "x"}},
		}}},
		{"note stamp without actor", &Delta{Actor: "x", Notes: []Note{
			{Key: "k", Value: "v", Stamp: Stamp{Lamport: 1}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := doc.Merge(tt.delta)
			require.Error(t, err)
			var me *MergeError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, MergeCodeMalformed, me.Code)
			assert.Same(t, doc, merged, "rejected merge must leave the document untouched")
		})
	}
}

func TestSnapshotExchangeConverges(t *testing.T) {
	a := New("actor-a")
	a, _ = mustChange(t, a, baseTime, func(c *Change) {
		c.Dismiss("u1")
		c.RequestConnection("u2")
	})
	a, _ = mustChange(t, a, baseTime.Add(time.Minute), func(c *Change) {
		c.SetNote("goal", "hiking")
	})

	b := New("actor-b")
	b, _ = mustChange(t, b, baseTime.Add(30*time.Second), func(c *Change) {
		c.Dismiss("u3")
		c.RequestConnection("u2")
	})

	aMerged := mustMerge(t, a, b.Snapshot())
	bMerged := mustMerge(t, b, a.Snapshot())

	assert.True(t, aMerged.StateEqual(bMerged), "full snapshot exchange must converge")
	assert.Equal(t, []string{"u1", "u3"}, aMerged.Dismissed())
	assert.True(t, aMerged.HasPending("u2"))
}

func TestEmptyChangeReturnsReceiver(t *testing.T) {
	doc := New("actor-a")
	next, delta := doc.Change(baseTime, func(c *Change) {})
	assert.True(t, delta.Empty())
	assert.Same(t, doc, next)
}

func TestPendingOrderedByRequestTime(t *testing.T) {
	doc := New("actor-a")
	doc, _ = mustChange(t, doc, baseTime.Add(time.Hour), func(c *Change) {
		c.RequestConnection("u-late")
	})
	doc, _ = mustChange(t, doc, baseTime, func(c *Change) {
		c.RequestConnection("u-early")
	})
	doc, _ = mustChange(t, doc, baseTime.Add(time.Hour), func(c *Change) {
		c.RequestConnection("u-also-late")
	})

	got := make([]string, 0, 3)
	for _, p := range doc.Pending() {
		got = append(got, p.UserID)
	}
	assert.Equal(t, []string{"u-early", "u-also-late", "u-late"}, got)
}
