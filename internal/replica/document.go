package replica

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// FormatVersion is the document wire format version. Decoding rejects any
// other version; bumping it is a breaking change to the sync protocol.
const FormatVersion = 1

// PendingConnection is one last-writer-wins entry in the outgoing
// connection request map. Cleared entries are tombstones for withdrawn
// requests and stay in the map so the withdrawal wins over older writes
// arriving late.
type PendingConnection struct {
	UserID      string
	RequestedAt int64
	Cleared     bool
	Stamp       Stamp
}

// Note is a free-form LWW register, keyed by field name. The zero stamp
// never appears on a stored note.
type Note struct {
	Key   string
	Value string
	Stamp Stamp
}

// Document is an immutable replicated view of one user's suggestion
// state. Change and Merge return fresh documents; a *Document in hand
// never mutates underneath its holder.
type Document struct {
	actor     string
	lamport   uint64
	dismissed map[string]struct{}
	pending   map[string]PendingConnection
	notes     map[string]Note
	updatedAt int64
}

// New returns an empty document owned by the given actor.
func New(actor string) *Document {
	return &Document{
		actor:     actor,
		dismissed: map[string]struct{}{},
		pending:   map[string]PendingConnection{},
		notes:     map[string]Note{},
	}
}

// Actor returns the replica actor ID that owns this document copy.
func (d *Document) Actor() string { return d.actor }

// Lamport returns the highest logical clock value this replica has
// ticked or witnessed.
func (d *Document) Lamport() uint64 { return d.lamport }

// UpdatedAt returns the latest write wall-clock time, in Unix
// milliseconds, observed across all replicas.
func (d *Document) UpdatedAt() int64 { return d.updatedAt }

// IsDismissed reports whether the user ID has been dismissed by any
// replica. Dismissal is permanent.
func (d *Document) IsDismissed(userID string) bool {
	_, ok := d.dismissed[userID]
	return ok
}

// Dismissed returns the dismissed user IDs in ascending order.
func (d *Document) Dismissed() []string {
	return slices.Sorted(maps.Keys(d.dismissed))
}

// HasPending reports whether an outgoing connection request to the user
// is active, that is present and not cleared.
func (d *Document) HasPending(userID string) bool {
	e, ok := d.pending[userID]
	return ok && !e.Cleared
}

// Pending returns the active connection requests ordered by request time,
// then user ID.
func (d *Document) Pending() []PendingConnection {
	out := make([]PendingConnection, 0, len(d.pending))
	for _, e := range d.pending {
		if !e.Cleared {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b PendingConnection) int {
		if a.RequestedAt != b.RequestedAt {
			if a.RequestedAt < b.RequestedAt {
				return -1
			}
			return 1
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}

// Note returns the value of a note field, if set.
func (d *Document) Note(key string) (string, bool) {
	n, ok := d.notes[key]
	if !ok {
		return "", false
	}
	return n.Value, true
}

// Notes returns all note fields as a key to value map.
func (d *Document) Notes() map[string]string {
	out := make(map[string]string, len(d.notes))
	for k, n := range d.notes {
		out[k] = n.Value
	}
	return out
}

// Equal reports full equality including the replica-local actor and
// clock. Use StateEqual to compare logical state across replicas.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.actor == other.actor &&
		d.lamport == other.lamport &&
		d.StateEqual(other)
}

// StateEqual reports whether two documents hold the same replicated
// state. Actor identity and witnessed clock values are excluded, so two
// converged replicas compare equal even though they are distinct actors.
func (d *Document) StateEqual(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.updatedAt == other.updatedAt &&
		maps.Equal(d.dismissed, other.dismissed) &&
		maps.Equal(d.pending, other.pending) &&
		maps.Equal(d.notes, other.notes)
}

func (d *Document) clone() *Document {
	return &Document{
		actor:     d.actor,
		lamport:   d.lamport,
		dismissed: maps.Clone(d.dismissed),
		pending:   maps.Clone(d.pending),
		notes:     maps.Clone(d.notes),
		updatedAt: d.updatedAt,
	}
}

func (d *Document) tick() Stamp {
	d.lamport++
	return Stamp{Lamport: d.lamport, Actor: d.actor}
}

func (d *Document) witness(s Stamp) {
	if s.Lamport > d.lamport {
		d.lamport = s.Lamport
	}
}

// Change applies local mutations atomically and returns the updated
// document together with the delta describing exactly what changed. The
// receiver is left untouched. Mutations that would not change state
// record nothing; callers should check Delta.Empty before persisting or
// broadcasting.
func (d *Document) Change(at time.Time, fn func(*Change)) (*Document, *Delta) {
	next := d.clone()
	ch := &Change{
		doc: next,
		at:  at.UnixMilli(),
		delta: &Delta{
			Actor:     d.actor,
			UpdatedAt: d.updatedAt,
		},
	}
	fn(ch)
	if ch.delta.Empty() {
		return d, ch.delta
	}
	if ch.at > next.updatedAt {
		next.updatedAt = ch.at
	}
	ch.delta.UpdatedAt = next.updatedAt
	return next, ch.delta
}

// Change records mutations against a document copy inside a
// Document.Change call. Methods with empty IDs or keys are no-ops.
type Change struct {
	doc   *Document
	delta *Delta
	at    int64
}

// Dismiss permanently removes the user from future suggestion rankings.
// Dismissing an already dismissed user records nothing.
func (c *Change) Dismiss(userID string) {
	if userID == "" || c.doc.IsDismissed(userID) {
		return
	}
	c.doc.dismissed[userID] = struct{}{}
	c.delta.Dismissed = append(c.delta.Dismissed, userID)
}

// RequestConnection records an outgoing connection request. Requesting
// again while a request is active refreshes its timestamp and wins over
// concurrent writes.
func (c *Change) RequestConnection(userID string) {
	if userID == "" {
		return
	}
	e := PendingConnection{
		UserID:      userID,
		RequestedAt: c.at,
		Stamp:       c.doc.tick(),
	}
	c.doc.pending[userID] = e
	c.delta.Pending = append(c.delta.Pending, e)
}

// ClearPending withdraws an active connection request by writing a
// cleared tombstone over it. Clearing an unknown or already cleared
// request records nothing.
func (c *Change) ClearPending(userID string) {
	if userID == "" {
		return
	}
	prev, ok := c.doc.pending[userID]
	if !ok || prev.Cleared {
		return
	}
	e := PendingConnection{
		UserID:      userID,
		RequestedAt: prev.RequestedAt,
		Cleared:     true,
		Stamp:       c.doc.tick(),
	}
	c.doc.pending[userID] = e
	c.delta.Pending = append(c.delta.Pending, e)
}

// SetNote writes a free-form note field. Writing the current value again
// records nothing.
func (c *Change) SetNote(key, value string) {
	if key == "" {
		return
	}
	if prev, ok := c.doc.notes[key]; ok && prev.Value == value {
		return
	}
	n := Note{Key: key, Value: value, Stamp: c.doc.tick()}
	c.doc.notes[key] = n
	c.delta.Notes = append(c.delta.Notes, n)
}

// Merge joins a remote delta into the document and returns the merged
// result. The delta is validated in full before anything is applied; on
// rejection the returned error is a MergeError and the receiver is the
// correct document to keep using. Merge is commutative, associative, and
// idempotent, so duplicated or reordered delivery converges to the same
// state.
func (d *Document) Merge(delta *Delta) (*Document, error) {
	if err := delta.Validate(); err != nil {
		return d, err
	}
	next := d.clone()
	for _, id := range delta.Dismissed {
		next.dismissed[id] = struct{}{}
	}
	for _, e := range delta.Pending {
		prev, ok := next.pending[e.UserID]
		if !ok || prev.Stamp.Before(e.Stamp) {
			next.pending[e.UserID] = e
		}
		next.witness(e.Stamp)
	}
	for _, n := range delta.Notes {
		prev, ok := next.notes[n.Key]
		if !ok || prev.Stamp.Before(n.Stamp) {
			next.notes[n.Key] = n
		}
		next.witness(n.Stamp)
	}
	if delta.UpdatedAt > next.updatedAt {
		next.updatedAt = delta.UpdatedAt
	}
	return next, nil
}

// Snapshot returns the full document state as one delta. Merging a
// snapshot into any replica of the same document is safe and converges,
// which is what makes the reconnect exchange a plain merge.
func (d *Document) Snapshot() *Delta {
	s := &Delta{
		Actor:     d.actor,
		Dismissed: d.Dismissed(),
		UpdatedAt: d.updatedAt,
	}
	for _, id := range slices.Sorted(maps.Keys(d.pending)) {
		s.Pending = append(s.Pending, d.pending[id])
	}
	for _, key := range slices.Sorted(maps.Keys(d.notes)) {
		s.Notes = append(s.Notes, d.notes[key])
	}
	return s
}
