package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/keymaster/wire"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/metric"
	"github.com/ramoncreager/matrix/pkg/retry"
	"github.com/ramoncreager/matrix/transport"
)

// Callback is invoked with the path a subscription fired on and the value
// published there. It runs on the client's subscribe-worker goroutine, so
// it must not block or re-enter the Client.
type Callback func(path tree.Path, node tree.Node)

// Dial opens a fresh transport.Client connected to a Keymaster server.
// Client calls it once at construction and again, with retry backoff,
// whenever a request fails and the connection needs to be torn down and
// re-established.
type Dial func() (transport.Client, error)

// Client is a Keymaster connection: GET/PUT/DEL/ping RPCs serialized by a
// mutex against one transport.Client, plus a subscribe worker goroutine
// dispatching publications to registered per-path callbacks.
type Client struct {
	dial     Dial
	timeout  time.Duration
	retryCfg retry.Config
	metrics  *metric.CoreMetrics

	mu   sync.Mutex // serializes RPC round trips and connection swaps
	conn transport.Client

	subCh     chan subRequest
	unsubCh   chan unsubRequest
	deliverCh chan delivery
	quitOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Client at construction.
type Option func(*Client)

// WithTimeout overrides the default 5 second RPC timeout used when ctx
// carries no deadline of its own.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetryConfig overrides the backoff used to re-establish the
// connection after a failed request.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// WithMetrics records every RPC's command, outcome, and latency against m.
// Without this option the client is uninstrumented.
func WithMetrics(m *metric.CoreMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New dials a Keymaster connection and starts its subscribe worker.
func New(dial Dial, opts ...Option) (*Client, error) {
	conn, err := dial()
	if err != nil {
		return nil, matrixerrors.WrapTransient(err, "client", "New", "dial")
	}
	c := &Client{
		dial:      dial,
		conn:      conn,
		timeout:   5 * time.Second,
		retryCfg:  retry.DefaultConfig(),
		subCh:     make(chan subRequest),
		unsubCh:   make(chan unsubRequest),
		deliverCh: make(chan delivery, 64),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.subscribeWorker()
	return c, nil
}

// Get fetches the value at path.
func (c *Client) Get(ctx context.Context, path tree.Path) (tree.Node, error) {
	rep, err := c.call(ctx, wire.Request{Cmd: wire.CmdGet, Path: path.String()})
	if err != nil {
		return tree.Node{}, err
	}
	if !rep.Result {
		return tree.Node{}, classifyReplyError(rep.Err, "client", "Get", path.String())
	}
	return wire.DecodeNode(rep.Node)
}

// Put writes value at path. If create is false, the path must already
// exist; if the parent structure is missing, this returns
// matrixerrors.ErrConflict.
func (c *Client) Put(ctx context.Context, path tree.Path, value tree.Node, create bool) error {
	data, err := wire.EncodeNode(value)
	if err != nil {
		return err
	}
	rep, err := c.call(ctx, wire.Request{Cmd: wire.CmdPut, Path: path.String(), Value: data, Create: create})
	if err != nil {
		return err
	}
	if !rep.Result {
		return classifyReplyError(rep.Err, "client", "Put", path.String())
	}
	return nil
}

// Delete removes the value at path.
func (c *Client) Delete(ctx context.Context, path tree.Path) error {
	rep, err := c.call(ctx, wire.Request{Cmd: wire.CmdDel, Path: path.String()})
	if err != nil {
		return err
	}
	if !rep.Result {
		return classifyReplyError(rep.Err, "client", "Delete", path.String())
	}
	return nil
}

// Ping verifies the Keymaster server is reachable and answering RPCs.
func (c *Client) Ping(ctx context.Context) error {
	rep, err := c.call(ctx, wire.Request{Cmd: wire.CmdPing})
	if err != nil {
		return err
	}
	if !rep.Result {
		return matrixerrors.WrapTransient(fmt.Errorf("%s", rep.Err), "client", "Ping", "ping")
	}
	return nil
}

func classifyReplyError(msg, component, operation, action string) error {
	switch msg {
	case matrixerrors.ErrNotFound.Error():
		return matrixerrors.ErrNotFound
	case matrixerrors.ErrConflict.Error():
		return matrixerrors.ErrConflict
	default:
		return matrixerrors.WrapInvalid(fmt.Errorf("%s", msg), component, operation, action)
	}
}

// call performs one RPC round trip, serialized against every other call
// and subject to reconnect-and-retry if the connection has gone bad.
func (c *Client) call(ctx context.Context, req wire.Request) (wire.Reply, error) {
	start := time.Now()
	reply, err := c.doCall(ctx, req)
	if c.metrics != nil {
		c.metrics.RecordKeymasterRPC(req.Cmd, err, time.Since(start))
		if err != nil {
			c.metrics.RecordError("keymaster-client", matrixerrors.Classify(err).String())
		}
	}
	return reply, err
}

func (c *Client) doCall(ctx context.Context, req wire.Request) (wire.Reply, error) {
	payload := wire.EncodeRequest(req)

	c.mu.Lock()
	defer c.mu.Unlock()

	rctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	respPayload, err := c.conn.Request(rctx, wire.Subject, payload)
	if err != nil {
		if rerr := c.reconnectLocked(ctx); rerr != nil {
			return wire.Reply{}, matrixerrors.WrapTransient(err, "client", "call", "request")
		}
		respPayload, err = c.conn.Request(rctx, wire.Subject, payload)
		if err != nil {
			return wire.Reply{}, matrixerrors.WrapTransient(err, "client", "call", "retry after reconnect")
		}
	}
	return wire.DecodeReply(respPayload)
}

// reconnectLocked closes the current connection and dials a fresh one
// with backoff. Callers must hold c.mu.
func (c *Client) reconnectLocked(ctx context.Context) error {
	if c.dial == nil {
		return matrixerrors.WrapFatal(fmt.Errorf("no dial function configured"), "client", "reconnect", "no dial")
	}
	_ = c.conn.Disconnect()
	return retry.Do(ctx, c.retryCfg, func() error {
		conn, err := c.dial()
		if err != nil {
			return err
		}
		c.conn = conn
		return nil
	})
}

// RPC issues a request/reply exchange over Keymaster paths rather than
// the wire GET/PUT/DEL/ping protocol: it subscribes to key+".reply",
// writes params to key+".request", and waits up to timeout for the
// reply publication.
func (c *Client) RPC(ctx context.Context, key string, params tree.Node, timeout time.Duration) (tree.Node, error) {
	replyPath := tree.Path(key + ".reply")
	requestPath := tree.Path(key + ".request")

	resultCh := make(chan tree.Node, 1)
	if err := c.Subscribe(replyPath, func(_ tree.Path, node tree.Node) {
		select {
		case resultCh <- node:
		default:
		}
	}); err != nil {
		return tree.Node{}, err
	}
	defer c.Unsubscribe(replyPath)

	if err := c.Put(ctx, requestPath, params, true); err != nil {
		return tree.Node{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case node := <-resultCh:
		return node, nil
	case <-timer.C:
		return tree.Node{}, matrixerrors.WrapTransient(matrixerrors.ErrTimeout, "client", "RPC", key)
	case <-ctx.Done():
		return tree.Node{}, ctx.Err()
	}
}

// Close stops the subscribe worker and disconnects the transport.
func (c *Client) Close() error {
	c.quitOnce.Do(func() { close(c.quit) })
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Disconnect()
}
