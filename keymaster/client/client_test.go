package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/keymaster/wire"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/transport"
)

// newTestPair binds an inproc transport server and returns a dial func
// that connects a fresh client.Client to it, plus the server so tests can
// register RPC responders and publish deliveries.
func newTestPair(t *testing.T) (transport.Server, Dial) {
	t.Helper()
	factory := transport.NewInprocFactory()
	server, err := factory.NewServer()
	require.NoError(t, err)
	require.NoError(t, server.Bind([]string{"inproc://km-client-test-" + t.Name()}))

	dial := func() (transport.Client, error) {
		c, err := factory.NewClient()
		if err != nil {
			return nil, err
		}
		if err := c.Connect(server.URL()); err != nil {
			return nil, err
		}
		return c, nil
	}
	return server, dial
}

// stubTree answers wire.Subject RPCs the way a real Keymaster server's
// stateManager would, but against a plain in-memory map instead of a
// tree.Tree, so client tests exercise only the client's half of the
// protocol.
func stubTree(t *testing.T, server transport.Server) {
	t.Helper()
	values := map[string][]byte{}

	respond, err := (func() (transport.Client, error) {
		f := transport.NewInprocFactory()
		c, err := f.NewClient()
		if err != nil {
			return nil, err
		}
		return c, c.Connect(server.URL())
	})()
	require.NoError(t, err)

	_, err = respond.Subscribe(wire.Subject, func(_ string, payload []byte, reply transport.ReplyFunc) {
		req, err := wire.DecodeRequest(payload)
		if err != nil {
			return
		}
		switch req.Cmd {
		case wire.CmdPing:
			_ = reply(wire.EncodeReply(wire.Reply{Result: true}))
		case wire.CmdPut:
			values[req.Path] = req.Value
			_ = reply(wire.EncodeReply(wire.Reply{Result: true}))
			_ = server.Publish(req.Path, req.Value)
		case wire.CmdGet:
			data, ok := values[req.Path]
			if !ok {
				_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: matrixerrors.ErrNotFound.Error()}))
				return
			}
			_ = reply(wire.EncodeReply(wire.Reply{Result: true, Node: data}))
		case wire.CmdDel:
			delete(values, req.Path)
			_ = reply(wire.EncodeReply(wire.Reply{Result: true}))
		}
	})
	require.NoError(t, err)
}

func TestClient_PingSucceeds(t *testing.T) {
	server, dial := newTestPair(t)
	defer server.Close()
	stubTree(t, server)

	c, err := New(dial)
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Ping(context.Background()))
}

func TestClient_PutThenGetRoundTrips(t *testing.T) {
	server, dial := newTestPair(t)
	defer server.Close()
	stubTree(t, server)

	c, err := New(dial)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, tree.Path("components.nettask.State"), tree.NewNode("Running"), true))

	node, err := c.Get(ctx, tree.Path("components.nettask.State"))
	require.NoError(t, err)
	assert.Equal(t, "Running", node.Raw())
}

func TestClient_GetMissingPathIsNotFound(t *testing.T) {
	server, dial := newTestPair(t)
	defer server.Close()
	stubTree(t, server)

	c, err := New(dial)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(context.Background(), tree.Path("nowhere"))
	assert.ErrorIs(t, err, matrixerrors.ErrNotFound)
}

func TestClient_SubscribeReceivesPublication(t *testing.T) {
	server, dial := newTestPair(t)
	defer server.Close()
	stubTree(t, server)

	c, err := New(dial)
	require.NoError(t, err)
	defer c.Close()

	received := make(chan tree.Node, 1)
	require.NoError(t, c.Subscribe(tree.Path("components.nettask.State"), func(_ tree.Path, node tree.Node) {
		received <- node
	}))

	require.NoError(t, c.Put(context.Background(), tree.Path("components.nettask.State"), tree.NewNode("Ready"), true))

	select {
	case node := <-received:
		assert.Equal(t, "Ready", node.Raw())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publication")
	}

	c.Unsubscribe(tree.Path("components.nettask.State"))
}

func TestClient_RPCRoundTrip(t *testing.T) {
	server, dial := newTestPair(t)
	defer server.Close()
	stubTree(t, server)

	c, err := New(dial)
	require.NoError(t, err)
	defer c.Close()

	responder, err := New(dial)
	require.NoError(t, err)
	defer responder.Close()

	require.NoError(t, responder.Subscribe(tree.Path("Architect.echo.request"), func(_ tree.Path, node tree.Node) {
		_ = responder.Put(context.Background(), tree.Path("Architect.echo.reply"), node, true)
	}))

	result, err := c.RPC(context.Background(), "Architect.echo", tree.NewNode("hello"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Raw())
}
