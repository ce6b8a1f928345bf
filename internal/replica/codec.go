package replica

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Hash domains keep document and delta addresses in separate namespaces
// so equal byte content can never collide across kinds.
const (
	documentHashDomain = "kith/replica/document/v1"
	deltaHashDomain    = "kith/replica/delta/v1"
)

// Encode returns the canonical JSON form of the document. Canonical
// means RFC 8785 rules: NFC normalized strings with minimal escaping,
// keys and array members in UTF-16 code unit order, integers only. Equal
// documents encode to equal bytes, which makes encodings comparable and
// content addressable.
func (d *Document) Encode() ([]byte, error) {
	e := &encoder{}
	e.putRaw("{")
	e.putKey("actor", true)
	e.putStr(d.actor)
	e.putKey("dismissed", false)
	e.putStrings(sortedRFC8785(slices.Collect(maps.Keys(d.dismissed))))
	e.putKey("lamport", false)
	e.putUint(d.lamport)
	e.putKey("notes", false)
	e.putNotes(sortedNotes(slices.Collect(maps.Values(d.notes))))
	e.putKey("pending", false)
	e.putPending(sortedPending(slices.Collect(maps.Values(d.pending))))
	e.putKey("updatedAt", false)
	e.putInt(d.updatedAt)
	e.putKey("version", false)
	e.putInt(FormatVersion)
	e.putRaw("}")
	return e.bytes()
}

// Hash returns the domain-separated SHA-256 content address of the
// document's canonical encoding.
func (d *Document) Hash() (string, error) {
	data, err := d.Encode()
	if err != nil {
		return "", err
	}
	return hashWithDomain(documentHashDomain, data), nil
}

// Encode returns the canonical JSON form of the delta. See
// Document.Encode for the canonical rules.
func (d *Delta) Encode() ([]byte, error) {
	e := &encoder{}
	e.putRaw("{")
	e.putKey("actor", true)
	e.putStr(d.Actor)
	e.putKey("dismissed", false)
	e.putStrings(sortedRFC8785(slices.Clone(d.Dismissed)))
	e.putKey("notes", false)
	e.putNotes(sortedNotes(slices.Clone(d.Notes)))
	e.putKey("pending", false)
	e.putPending(sortedPending(slices.Clone(d.Pending)))
	e.putKey("updatedAt", false)
	e.putInt(d.UpdatedAt)
	e.putKey("version", false)
	e.putInt(FormatVersion)
	e.putRaw("}")
	return e.bytes()
}

// ID returns the delta's content address, the domain-separated SHA-256
// of its canonical encoding. Identical writes produce identical IDs on
// every replica, so IDs are stable across re-delivery.
func (d *Delta) ID() (string, error) {
	data, err := d.Encode()
	if err != nil {
		return "", err
	}
	return hashWithDomain(deltaHashDomain, data), nil
}

// DecodeDocument parses a canonical document encoding. Any structural
// problem is an error; callers on the load path treat errors as a
// corrupt snapshot and start from an empty document instead.
func DecodeDocument(data []byte) (*Document, error) {
	var w wireDocument
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if w.Version == nil {
		return nil, fmt.Errorf("decode document: missing version")
	}
	if *w.Version != FormatVersion {
		return nil, fmt.Errorf("decode document: unsupported version %d", *w.Version)
	}
	if w.Actor == "" {
		return nil, fmt.Errorf("decode document: missing actor")
	}
	if w.UpdatedAt < 0 {
		return nil, fmt.Errorf("decode document: negative updatedAt %d", w.UpdatedAt)
	}
	doc := New(norm.NFC.String(w.Actor))
	doc.lamport = w.Lamport
	doc.updatedAt = w.UpdatedAt
	for _, id := range w.Dismissed {
		if id == "" {
			return nil, fmt.Errorf("decode document: empty dismissed user ID")
		}
		doc.dismissed[norm.NFC.String(id)] = struct{}{}
	}
	for _, p := range w.Pending {
		e := p.entry()
		if e.UserID == "" || e.RequestedAt < 0 {
			return nil, fmt.Errorf("decode document: invalid pending entry %q", e.UserID)
		}
		if err := validStamp(e.Stamp); err != nil {
			return nil, fmt.Errorf("decode document: pending %q: %w", e.UserID, err)
		}
		if prev, ok := doc.pending[e.UserID]; !ok || prev.Stamp.Before(e.Stamp) {
			doc.pending[e.UserID] = e
		}
		doc.witness(e.Stamp)
	}
	for _, n := range w.Notes {
		note := n.note()
		if note.Key == "" {
			return nil, fmt.Errorf("decode document: note with empty key")
		}
		if err := validStamp(note.Stamp); err != nil {
			return nil, fmt.Errorf("decode document: note %q: %w", note.Key, err)
		}
		if prev, ok := doc.notes[note.Key]; !ok || prev.Stamp.Before(note.Stamp) {
			doc.notes[note.Key] = note
		}
		doc.witness(note.Stamp)
	}
	return doc, nil
}

// DecodeDelta parses a delta received from another replica. Failures
// come back as a MergeError: malformed for structural problems,
// unsupported_version for a version this build does not speak. The
// returned delta is fully validated.
func DecodeDelta(data []byte) (*Delta, error) {
	var w wireDelta
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, &MergeError{Code: MergeCodeMalformed, Detail: "decode delta", Err: err}
	}
	if w.Version == nil {
		return nil, malformed("missing version")
	}
	if *w.Version != FormatVersion {
		return nil, &MergeError{
			Code:   MergeCodeVersion,
			Detail: fmt.Sprintf("delta version %d, this build speaks %d", *w.Version, FormatVersion),
		}
	}
	delta := &Delta{
		Actor:     norm.NFC.String(w.Actor),
		UpdatedAt: w.UpdatedAt,
	}
	for _, id := range w.Dismissed {
		delta.Dismissed = append(delta.Dismissed, norm.NFC.String(id))
	}
	for _, p := range w.Pending {
		delta.Pending = append(delta.Pending, p.entry())
	}
	for _, n := range w.Notes {
		delta.Notes = append(delta.Notes, n.note())
	}
	if err := delta.Validate(); err != nil {
		return nil, err
	}
	return delta, nil
}

type wireStamp struct {
	Actor   string `json:"actor"`
	Lamport uint64 `json:"lamport"`
}

type wirePending struct {
	Cleared     bool      `json:"cleared"`
	RequestedAt int64     `json:"requestedAt"`
	Stamp       wireStamp `json:"stamp"`
	UserID      string    `json:"userId"`
}

func (w wirePending) entry() PendingConnection {
	return PendingConnection{
		UserID:      norm.NFC.String(w.UserID),
		RequestedAt: w.RequestedAt,
		Cleared:     w.Cleared,
		Stamp:       Stamp{Lamport: w.Stamp.Lamport, Actor: norm.NFC.String(w.Stamp.Actor)},
	}
}

type wireNote struct {
	Key   string    `json:"key"`
	Stamp wireStamp `json:"stamp"`
	Value string    `json:"value"`
}

func (w wireNote) note() Note {
	return Note{
		Key:   norm.NFC.String(w.Key),
		Value: norm.NFC.String(w.Value),
		Stamp: Stamp{Lamport: w.Stamp.Lamport, Actor: norm.NFC.String(w.Stamp.Actor)},
	}
}

type wireDocument struct {
	Actor     string        `json:"actor"`
	Dismissed []string      `json:"dismissed"`
	Lamport   uint64        `json:"lamport"`
	Notes     []wireNote    `json:"notes"`
	Pending   []wirePending `json:"pending"`
	UpdatedAt int64         `json:"updatedAt"`
	Version   *int          `json:"version"`
}

type wireDelta struct {
	Actor     string        `json:"actor"`
	Dismissed []string      `json:"dismissed"`
	Notes     []wireNote    `json:"notes"`
	Pending   []wirePending `json:"pending"`
	UpdatedAt int64         `json:"updatedAt"`
	Version   *int          `json:"version"`
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after value")
	}
	return nil
}

// encoder builds canonical JSON with a sticky error, so call sites read
// as straight-line field writes.
type encoder struct {
	buf bytes.Buffer
	err error
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

func (e *encoder) putRaw(s string) {
	if e.err == nil {
		e.buf.WriteString(s)
	}
}

func (e *encoder) putKey(name string, first bool) {
	if !first {
		e.putRaw(",")
	}
	e.putStr(name)
	e.putRaw(":")
}

func (e *encoder) putStr(s string) {
	if e.err != nil {
		return
	}
	b, err := canonicalString(s)
	if err != nil {
		e.err = err
		return
	}
	e.buf.Write(b)
}

func (e *encoder) putInt(v int64)   { e.putRaw(strconv.FormatInt(v, 10)) }
func (e *encoder) putUint(v uint64) { e.putRaw(strconv.FormatUint(v, 10)) }
func (e *encoder) putBool(v bool)   { e.putRaw(strconv.FormatBool(v)) }

func (e *encoder) putStrings(vals []string) {
	e.putRaw("[")
	for i, v := range vals {
		if i > 0 {
			e.putRaw(",")
		}
		e.putStr(v)
	}
	e.putRaw("]")
}

func (e *encoder) putStamp(s Stamp) {
	e.putRaw("{")
	e.putKey("actor", true)
	e.putStr(s.Actor)
	e.putKey("lamport", false)
	e.putUint(s.Lamport)
	e.putRaw("}")
}

func (e *encoder) putPending(entries []PendingConnection) {
	e.putRaw("[")
	for i, p := range entries {
		if i > 0 {
			e.putRaw(",")
		}
		e.putRaw("{")
		e.putKey("cleared", true)
		e.putBool(p.Cleared)
		e.putKey("requestedAt", false)
		e.putInt(p.RequestedAt)
		e.putKey("stamp", false)
		e.putStamp(p.Stamp)
		e.putKey("userId", false)
		e.putStr(p.UserID)
		e.putRaw("}")
	}
	e.putRaw("]")
}

func (e *encoder) putNotes(notes []Note) {
	e.putRaw("[")
	for i, n := range notes {
		if i > 0 {
			e.putRaw(",")
		}
		e.putRaw("{")
		e.putKey("key", true)
		e.putStr(n.Key)
		e.putKey("stamp", false)
		e.putStamp(n.Stamp)
		e.putKey("value", false)
		e.putStr(n.Value)
		e.putRaw("}")
	}
	e.putRaw("]")
}

// canonicalString encodes s as a canonical JSON string: NFC normalized,
// with HTML escaping off so U+2028 and U+2029 stay literal.
func canonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// compareRFC8785 orders strings by UTF-16 code units, the ordering
// RFC 8785 specifies for object keys. Applied to array members too so
// encodings are fully deterministic.
func compareRFC8785(a, b string) int {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	default:
		return 0
	}
}

func sortedRFC8785(vals []string) []string {
	slices.SortFunc(vals, compareRFC8785)
	return slices.Compact(vals)
}

func sortedPending(entries []PendingConnection) []PendingConnection {
	slices.SortFunc(entries, func(a, b PendingConnection) int {
		if c := compareRFC8785(a.UserID, b.UserID); c != 0 {
			return c
		}
		return a.Stamp.Compare(b.Stamp)
	})
	return entries
}

func sortedNotes(notes []Note) []Note {
	slices.SortFunc(notes, func(a, b Note) int {
		if c := compareRFC8785(a.Key, b.Key); c != 0 {
			return c
		}
		return a.Stamp.Compare(b.Stamp)
	})
	return notes
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
