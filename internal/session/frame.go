package session

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FrameTypeSync is the only frame type the protocol speaks today.
const FrameTypeSync = "sync"

// ByteSlice is a []byte that marshals as a JSON array of small integers
// instead of base64. Peers on other runtimes represent binary frames as
// plain integer arrays; this keeps the wire shape identical.
type ByteSlice []byte

func (b ByteSlice) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

func (b *ByteSlice) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Frame is one sync message: a document ID and one or more encoded
// deltas. Each delta is merged individually on receipt.
type Frame struct {
	Type    string      `json:"type"`
	DocID   string      `json:"docId"`
	Changes []ByteSlice `json:"changes"`
}

// SyncFrame builds a sync frame carrying the given encoded deltas.
func SyncFrame(docID string, changes ...[]byte) Frame {
	f := Frame{Type: FrameTypeSync, DocID: docID, Changes: make([]ByteSlice, 0, len(changes))}
	for _, c := range changes {
		f.Changes = append(f.Changes, ByteSlice(c))
	}
	return f
}

// EncodeFrame renders the frame for transport.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a received frame. It validates shape only; the
// deltas inside are opaque here and validated by the merge path.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}
