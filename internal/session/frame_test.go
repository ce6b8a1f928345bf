package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSliceMarshal(t *testing.T) {
	data, err := json.Marshal(ByteSlice{0, 1, 255})
	require.NoError(t, err)
	assert.Equal(t, "[0,1,255]", string(data))

	data, err = json.Marshal(ByteSlice{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestByteSliceUnmarshal(t *testing.T) {
	var b ByteSlice
	require.NoError(t, json.Unmarshal([]byte("[0,1,255]"), &b))
	assert.Equal(t, ByteSlice{0, 1, 255}, b)

	tests := []struct {
		name string
		in   string
	}{
		{"negative", "[-1]"},
		{"too large", "[256]"},
		{"not an array", `"AAE="`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ByteSlice
			assert.Error(t, json.Unmarshal([]byte(tt.in), &b))
		})
	}
}

func TestFrameWireShape(t *testing.T) {
	data, err := EncodeFrame(SyncFrame("d1", []byte{1, 2}, []byte{3}))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"sync","docId":"d1","changes":[[1,2],[3]]}`, string(data))
}

func TestFrameRoundTrip(t *testing.T) {
	f := SyncFrame("doc-9", []byte{0, 255}, nil, []byte{7})
	data, err := EncodeFrame(f)
	require.NoError(t, err)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeSync, got.Type)
	assert.Equal(t, "doc-9", got.DocID)
	require.Len(t, got.Changes, 3)
	assert.Equal(t, ByteSlice{0, 255}, got.Changes[0])
	assert.Equal(t, ByteSlice{7}, got.Changes[2])
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	_, err := DecodeFrame([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"docId":"d1","changes":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")
}
