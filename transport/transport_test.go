package transport

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramoncreager/matrix/matrixerrors"
)

func TestPrefer_RanksMostLocalFirst(t *testing.T) {
	tests := []struct {
		name     string
		urls     []string
		expected string
	}{
		{"tcp only", []string{"tcp://host:4222"}, "tcp://host:4222"},
		{"ipc beats tcp", []string{"tcp://host:4222", "ipc://sock-XXXXX"}, "ipc://sock-XXXXX"},
		{"inproc beats everything", []string{"tcp://host:4222", "ipc://sock-XXXXX", "inproc://name-XXXXX"}, "inproc://name-XXXXX"},
		{"rtinproc ranks with inproc", []string{"tcp://host:4222", "rtinproc://name-XXXXX"}, "rtinproc://name-XXXXX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Prefer(tt.urls)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPrefer_EmptyListIsInvalid(t *testing.T) {
	_, err := Prefer(nil)
	assert.True(t, matrixerrors.IsInvalid(err))
}

func TestInproc_PublishReachesSubscriber(t *testing.T) {
	factory := NewInprocFactory()
	server, err := factory.NewServer()
	require.NoError(t, err)
	require.NoError(t, server.Bind([]string{"inproc://test-XXXXX"}))
	defer server.Close()

	client, err := factory.NewClient()
	require.NoError(t, err)
	require.NoError(t, client.Connect(server.URL()))
	defer client.Disconnect()

	received := make(chan []byte, 1)
	_, err = client.Subscribe("components.nettask.status", func(key string, payload []byte, _ ReplyFunc) {
		received <- payload
	})
	require.NoError(t, err)

	require.NoError(t, server.Publish("components.nettask.status", []byte("ready")))

	select {
	case payload := <-received:
		assert.Equal(t, "ready", string(payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestInproc_PrefixSubscriptionMatchesDescendants(t *testing.T) {
	factory := NewInprocFactory()
	server, err := factory.NewServer()
	require.NoError(t, err)
	require.NoError(t, server.Bind([]string{"inproc://prefix-XXXXX"}))
	defer server.Close()

	client, err := factory.NewClient()
	require.NoError(t, err)
	require.NoError(t, client.Connect(server.URL()))
	defer client.Disconnect()

	received := make(chan string, 4)
	_, err = client.Subscribe("components.*", func(key string, _ []byte, _ ReplyFunc) {
		received <- key
	})
	require.NoError(t, err)

	require.NoError(t, server.Publish("components.nettask.a", []byte("1")))
	require.NoError(t, server.Publish("other.b", []byte("2")))

	select {
	case key := <-received:
		assert.Equal(t, "components.nettask.a", key)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	select {
	case key := <-received:
		t.Fatalf("unexpected delivery for %q", key)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInproc_RequestReply(t *testing.T) {
	factory := NewInprocFactory()
	server, err := factory.NewServer()
	require.NoError(t, err)
	require.NoError(t, server.Bind([]string{"inproc://rpc-XXXXX"}))
	defer server.Close()

	responder, err := factory.NewClient()
	require.NoError(t, err)
	require.NoError(t, responder.Connect(server.URL()))
	defer responder.Disconnect()

	_, err = responder.Subscribe("Keymaster.GET", func(_ string, payload []byte, reply ReplyFunc) {
		require.NoError(t, reply([]byte("pong:"+string(payload))))
	})
	require.NoError(t, err)

	caller, err := factory.NewClient()
	require.NoError(t, err)
	require.NoError(t, caller.Connect(server.URL()))
	defer caller.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := caller.Request(ctx, "Keymaster.GET", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "pong:ping", string(resp))
}

func TestRTInproc_DeliversWithoutDropping(t *testing.T) {
	factory := NewRTInprocFactory()
	server, err := factory.NewServer()
	require.NoError(t, err)
	require.NoError(t, server.Bind([]string{"rtinproc://loss-XXXXX"}))
	defer server.Close()

	client, err := factory.NewClient()
	require.NoError(t, err)
	require.NoError(t, client.Connect(server.URL()))
	defer client.Disconnect()

	const n = 500
	received := make(chan struct{}, n)
	_, err = client.Subscribe("stream.data", func(_ string, _ []byte, _ ReplyFunc) {
		received <- struct{}{}
	})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		require.NoError(t, server.Publish("stream.data", []byte("x")))
	}

	for i := 0; i < n; i++ {
		select {
		case <-received:
		case <-time.After(5 * time.Second):
			t.Fatalf("only received %d/%d deliveries", i, n)
		}
	}
}

func TestRegistry_GetSharesInstanceAndRefcounts(t *testing.T) {
	r := NewDefaultRegistry(nil)

	h1, err := r.Get("nettask", "control", []string{"inproc://shared-XXXXX"})
	require.NoError(t, err)
	h2, err := r.Get("nettask", "control", []string{"inproc://shared-XXXXX"})
	require.NoError(t, err)

	assert.Same(t, h1.Server(), h2.Server())

	require.NoError(t, h1.Release())
	require.NoError(t, h2.Release())
}

func TestRegistry_MixedSchemesIsInvalid(t *testing.T) {
	r := NewDefaultRegistry(nil)
	_, err := r.Get("nettask", "control", []string{"tcp://host:4222", "inproc://name-XXXXX"})
	assert.True(t, matrixerrors.IsInvalid(err))
	assert.ErrorIs(t, err, matrixerrors.ErrMixedSchemes)
}

func TestRegistry_UnknownSchemeIsInvalid(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nettask", "control", []string{"quic://host:1"})
	assert.True(t, matrixerrors.IsInvalid(err))
}

// TestNATS_BindRealizesTCPScheme exercises a real tcp://* bind end to end
// through the default registry and asserts the realized AsConfigured URL
// keeps the tcp scheme, per spec.md's requirement that
// Keymaster.URLS.AsConfigured.* always parse with their declared scheme —
// never the embedded NATS transport's own nats:// scheme.
func TestNATS_BindRealizesTCPScheme(t *testing.T) {
	r := NewDefaultRegistry(nil)
	h, err := r.Get("keymaster", "state", []string{"tcp://*:0"})
	require.NoError(t, err)
	defer h.Release()

	realized := h.Server().URL()
	u, err := url.Parse(realized)
	require.NoError(t, err)
	assert.Equal(t, "tcp", u.Scheme)

	client, err := r.Dial(realized)
	require.NoError(t, err)
	defer client.Disconnect()

	received := make(chan []byte, 1)
	_, err = client.Subscribe("probe", func(_ string, payload []byte, _ ReplyFunc) {
		received <- payload
	})
	require.NoError(t, err)

	require.NoError(t, h.Server().Publish("probe", []byte("hi")))

	select {
	case payload := <-received:
		assert.Equal(t, "hi", string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery over realized tcp URL")
	}
}

func TestNATS_BindRealizesIPCScheme(t *testing.T) {
	r := NewDefaultRegistry(nil)
	h, err := r.Get("keymaster", "state", []string{"ipc://*:0"})
	require.NoError(t, err)
	defer h.Release()

	u, err := url.Parse(h.Server().URL())
	require.NoError(t, err)
	assert.Equal(t, "ipc", u.Scheme)
	assert.Equal(t, "127.0.0.1", u.Hostname())
}
