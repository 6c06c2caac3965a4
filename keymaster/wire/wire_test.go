package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramoncreager/matrix/keymaster/tree"
)

func TestEncodeDecodeFrames(t *testing.T) {
	frames := [][]byte{[]byte("a"), []byte(""), []byte("longer frame body")}
	decoded, err := DecodeFrames(EncodeFrames(frames))
	require.NoError(t, err)
	require.Len(t, decoded, len(frames))
	for i := range frames {
		assert.Equal(t, frames[i], decoded[i])
	}
}

func TestDecodeFrames_TruncatedErrors(t *testing.T) {
	_, err := DecodeFrames([]byte{0, 0, 0})
	assert.Error(t, err)

	_, err = DecodeFrames([]byte{0, 0, 0, 5, 'a'})
	assert.Error(t, err)
}

func TestEncodeDecodeRequest(t *testing.T) {
	req := Request{Cmd: CmdPut, Path: "components.nettask.State", Value: []byte("running"), Create: true}
	decoded, err := DecodeRequest(EncodeRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestDecodeRequest_WrongFrameCount(t *testing.T) {
	_, err := DecodeRequest(EncodeFrames([][]byte{[]byte("only one")}))
	assert.Error(t, err)
}

func TestEncodeDecodeReply(t *testing.T) {
	rep := Reply{Result: false, Err: "not found", Node: nil}
	decoded, err := DecodeReply(EncodeReply(rep))
	require.NoError(t, err)
	assert.Equal(t, rep, decoded)
}

func TestEncodeDecodeNode(t *testing.T) {
	n := tree.NewNode(map[string]any{"State": "Running", "Count": 3})
	data, err := EncodeNode(n)
	require.NoError(t, err)

	decoded, err := DecodeNode(data)
	require.NoError(t, err)
	m, ok := decoded.Map()
	require.True(t, ok)
	assert.Equal(t, "Running", m["State"])
}

func TestDecodeNode_EmptyIsNil(t *testing.T) {
	n, err := DecodeNode(nil)
	require.NoError(t, err)
	assert.True(t, n.IsNil())
}
