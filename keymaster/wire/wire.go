// Package wire defines the frame encoding a Keymaster client and server
// exchange over a transport.Client.Request/transport.Server.Publish round
// trip: a length-prefixed multi-frame record carrying a GET/PUT/DEL/ping
// command or its reply.
package wire

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/matrixerrors"
)

// Subject is the fixed request/reply key every Keymaster server subscribes
// to for GET/PUT/DEL/ping. Ordinary tree mutations are published
// separately, keyed by path, on the pub side of the transport.
const Subject = "Keymaster.RPC"

// RootTopic is the wire topic a subscription or publication on tree.Root
// maps to. The tree package's empty-string Path can't travel as a
// transport subject on its own, so the root is addressed by name.
const RootTopic = "Root"

// Topic returns the transport subject a path publishes or subscribes
// under: RootTopic for tree.Root, the path's dotted string otherwise.
func Topic(path tree.Path) string {
	if path == tree.Root {
		return RootTopic
	}
	return path.String()
}

// Commands recognized in a Request's Cmd field.
const (
	CmdGet  = "GET"
	CmdPut  = "PUT"
	CmdDel  = "DEL"
	CmdPing = "ping"
)

// EncodeFrames concatenates frames into a single length-prefixed payload,
// the wire shape a NATS message body carries a multi-frame RPC record in.
func EncodeFrames(frames [][]byte) []byte {
	var out []byte
	var lenBuf [4]byte
	for _, f := range frames {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

// DecodeFrames splits a payload produced by EncodeFrames back into its
// component frames.
func DecodeFrames(payload []byte) ([][]byte, error) {
	var frames [][]byte
	for len(payload) > 0 {
		if len(payload) < 4 {
			return nil, matrixerrors.WrapInvalid(fmt.Errorf("truncated frame length"), "wire", "DecodeFrames", "parse")
		}
		n := binary.BigEndian.Uint32(payload[:4])
		payload = payload[4:]
		if uint32(len(payload)) < n {
			return nil, matrixerrors.WrapInvalid(fmt.Errorf("truncated frame body"), "wire", "DecodeFrames", "parse")
		}
		frames = append(frames, payload[:n])
		payload = payload[n:]
	}
	return frames, nil
}

// Request is the RPC record a Keymaster client sends: Cmd is one of
// CmdGet/CmdPut/CmdDel/CmdPing, Path addresses the tree, Value carries a
// YAML-encoded value for PUT, and Create mirrors tree.Tree.Put's create
// flag.
type Request struct {
	Cmd    string
	Path   string
	Value  []byte
	Create bool
}

// EncodeRequest serializes r for the wire.
func EncodeRequest(r Request) []byte {
	createByte := []byte{0}
	if r.Create {
		createByte[0] = 1
	}
	return EncodeFrames([][]byte{[]byte(r.Cmd), []byte(r.Path), r.Value, createByte})
}

// DecodeRequest reverses EncodeRequest.
func DecodeRequest(payload []byte) (Request, error) {
	frames, err := DecodeFrames(payload)
	if err != nil {
		return Request{}, err
	}
	if len(frames) != 4 {
		return Request{}, matrixerrors.WrapInvalid(fmt.Errorf("expected 4 frames, got %d", len(frames)), "wire", "DecodeRequest", "parse")
	}
	return Request{
		Cmd:    string(frames[0]),
		Path:   string(frames[1]),
		Value:  frames[2],
		Create: len(frames[3]) > 0 && frames[3][0] == 1,
	}, nil
}

// Reply is the RPC response record: Result reports success, Err carries a
// human-readable failure message (empty on success), and Node carries the
// YAML-encoded response value for GET.
type Reply struct {
	Result bool
	Err    string
	Node   []byte
}

// EncodeReply serializes r for the wire.
func EncodeReply(r Reply) []byte {
	resultByte := []byte{0}
	if r.Result {
		resultByte[0] = 1
	}
	return EncodeFrames([][]byte{resultByte, []byte(r.Err), r.Node})
}

// DecodeReply reverses EncodeReply.
func DecodeReply(payload []byte) (Reply, error) {
	frames, err := DecodeFrames(payload)
	if err != nil {
		return Reply{}, err
	}
	if len(frames) != 3 {
		return Reply{}, matrixerrors.WrapInvalid(fmt.Errorf("expected 3 frames, got %d", len(frames)), "wire", "DecodeReply", "parse")
	}
	var node []byte
	if len(frames[2]) > 0 {
		node = frames[2]
	}
	return Reply{
		Result: len(frames[0]) > 0 && frames[0][0] == 1,
		Err:    string(frames[1]),
		Node:   node,
	}, nil
}

// EncodeNode YAML-encodes a tree.Node for a Request.Value or Reply.Node
// frame.
func EncodeNode(n tree.Node) ([]byte, error) {
	out, err := yaml.Marshal(n)
	if err != nil {
		return nil, matrixerrors.WrapInvalid(err, "wire", "EncodeNode", "marshal")
	}
	return out, nil
}

// DecodeNode reverses EncodeNode. An empty frame decodes to a nil Node.
func DecodeNode(data []byte) (tree.Node, error) {
	var n tree.Node
	if len(data) == 0 {
		return n, nil
	}
	if err := yaml.Unmarshal(data, &n); err != nil {
		return tree.Node{}, matrixerrors.WrapInvalid(err, "wire", "DecodeNode", "unmarshal")
	}
	return n, nil
}
