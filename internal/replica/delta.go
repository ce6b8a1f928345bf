package replica

// Delta is the unit of replication: the set of writes one Change
// produced, or a full document snapshot. Deltas are self-contained, so
// applying them in any order, any number of times, converges.
type Delta struct {
	Actor     string
	Dismissed []string
	Pending   []PendingConnection
	Notes     []Note
	UpdatedAt int64
}

// Empty reports whether the delta carries no writes. Empty deltas are
// not persisted or broadcast.
func (d *Delta) Empty() bool {
	return d == nil || len(d.Dismissed)+len(d.Pending)+len(d.Notes) == 0
}

// Validate checks the delta in full before any merge applies it. A nil
// return guarantees every entry is structurally sound: non-empty IDs and
// keys, stamps with a positive counter and a named actor.
func (d *Delta) Validate() error {
	if d == nil {
		return malformed("nil delta")
	}
	if d.Actor == "" {
		return malformed("missing actor")
	}
	if d.UpdatedAt < 0 {
		return malformed("negative updatedAt %d", d.UpdatedAt)
	}
	for _, id := range d.Dismissed {
		if id == "" {
			return malformed("empty dismissed user ID")
		}
	}
	for _, e := range d.Pending {
		if e.UserID == "" {
			return malformed("pending entry with empty user ID")
		}
		if e.RequestedAt < 0 {
			return malformed("pending %q: negative requestedAt %d", e.UserID, e.RequestedAt)
		}
		if err := validStamp(e.Stamp); err != nil {
			return malformed("pending %q: %v", e.UserID, err)
		}
	}
	for _, n := range d.Notes {
		if n.Key == "" {
			return malformed("note with empty key")
		}
		if err := validStamp(n.Stamp); err != nil {
			return malformed("note %q: %v", n.Key, err)
		}
	}
	return nil
}

func validStamp(s Stamp) error {
	if s.Lamport == 0 {
		return malformed("zero lamport stamp")
	}
	if s.Actor == "" {
		return malformed("stamp without actor")
	}
	return nil
}
