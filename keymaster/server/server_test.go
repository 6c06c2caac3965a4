package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kmclient "github.com/ramoncreager/matrix/keymaster/client"
	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/transport"
)

func testConfig(name string) []byte {
	return []byte(`
Keymaster:
  clone_interval: 1000
  URLS:
    Initial: ["inproc://km-server-test-` + name + `"]
components: {}
`)
}

func dialFor(registry *transport.Registry, url string) kmclient.Dial {
	return func() (transport.Client, error) {
		factory := transport.NewInprocFactory()
		c, err := factory.NewClient()
		if err != nil {
			return nil, err
		}
		return c, c.Connect(url)
	}
}

func TestServer_RunRespondsToPing(t *testing.T) {
	registry := transport.NewDefaultRegistry(nil)
	srv := New(Config{ConfigYAML: testConfig(t.Name()), Transports: registry})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		return srv.stateHandle != nil
	}, 2*time.Second, 10*time.Millisecond)

	c, err := kmclient.New(dialFor(registry, srv.stateHandle.Server().URL()))
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Ping(context.Background()))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_PutGetDeleteRoundTrip(t *testing.T) {
	registry := transport.NewDefaultRegistry(nil)
	srv := New(Config{ConfigYAML: testConfig(t.Name()), Transports: registry})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.stateHandle != nil }, 2*time.Second, 10*time.Millisecond)

	c, err := kmclient.New(dialFor(registry, srv.stateHandle.Server().URL()))
	require.NoError(t, err)
	defer c.Close()

	path := tree.Path("components.nettask.State")
	require.NoError(t, c.Put(context.Background(), path, tree.NewNode("Running"), true))

	node, err := c.Get(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Running", node.Raw())

	require.NoError(t, c.Delete(context.Background(), path))
	_, err = c.Get(context.Background(), path)
	assert.Error(t, err)
}

func TestServer_PublishesOnPut(t *testing.T) {
	registry := transport.NewDefaultRegistry(nil)
	srv := New(Config{ConfigYAML: testConfig(t.Name()), Transports: registry})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.pubHandle != nil }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.stateHandle != nil }, 2*time.Second, 10*time.Millisecond)

	sub, err := kmclient.New(dialFor(registry, srv.pubHandle.Server().URL()))
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan tree.Node, 1)
	require.NoError(t, sub.Subscribe(tree.Path("components"), func(_ tree.Path, node tree.Node) {
		select {
		case received <- node:
		default:
		}
	}))

	writer, err := kmclient.New(dialFor(registry, srv.stateHandle.Server().URL()))
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.Put(context.Background(), tree.Path("components.nettask.State"), tree.NewNode("Ready"), true))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ancestor publication")
	}
}

func TestServer_HeartbeatAdvances(t *testing.T) {
	registry := transport.NewDefaultRegistry(nil)
	srv := New(Config{ConfigYAML: testConfig(t.Name()), Transports: registry})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.stateHandle != nil }, 2*time.Second, 10*time.Millisecond)

	c, err := kmclient.New(dialFor(registry, srv.stateHandle.Server().URL()))
	require.NoError(t, err)
	defer c.Close()

	require.Eventually(t, func() bool {
		node, err := c.Get(context.Background(), tree.Path(pathHeartbeat))
		return err == nil && node.Raw() != nil
	}, 3*time.Second, 20*time.Millisecond)
}
