package replica

import "strings"

// Stamp is the logical timestamp attached to every last-writer-wins
// write. Lamport counters give causal ordering; the actor ID breaks ties
// so that the order is total and every conflict has a single winner.
type Stamp struct {
	Lamport uint64 `json:"lamport"`
	Actor   string `json:"actor"`
}

// Zero reports whether s is the zero stamp. Valid stamps start at
// lamport 1 with a non-empty actor; a zero stamp on a wire entry means
// the delta is malformed.
func (s Stamp) Zero() bool {
	return s.Lamport == 0 && s.Actor == ""
}

// Before reports whether s is ordered strictly before other.
func (s Stamp) Before(other Stamp) bool {
	return s.Compare(other) < 0
}

// Compare returns -1, 0, or +1 ordering s against other. Lamport counters
// compare first; equal counters fall back to byte order of the actor IDs.
func (s Stamp) Compare(other Stamp) int {
	switch {
	case s.Lamport < other.Lamport:
		return -1
	case s.Lamport > other.Lamport:
		return 1
	default:
		return strings.Compare(s.Actor, other.Actor)
	}
}
