package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/metric"
	"github.com/ramoncreager/matrix/pkg/buffer"
	"github.com/ramoncreager/matrix/pkg/worker"
)

// inprocHub is the shared fan-out point one Bind call creates: the Server
// half publishes into it, Client halves connected to the same URL
// subscribe on it and issue requests through it. inproc hubs use a
// DropOldest circular buffer between publish and delivery, matching the
// source's UDP input buffer-overflow policy; rtinproc hubs use a worker
// pool gated by a counting semaphore so a delivery is queued or blocks,
// never dropped.
type inprocHub struct {
	url    string
	scheme string

	mu        sync.RWMutex
	subs      map[Token]inprocSub
	nextToken Token

	lossless bool
	metrics  *metric.CoreMetrics

	buf    buffer.Buffer[inprocMessage]
	notify chan struct{}

	pool *worker.Pool[inprocMessage]
	sem  *semaphore.Weighted

	done      chan struct{}
	closeOnce sync.Once
}

type inprocSub struct {
	pattern string
	cb      Callback
}

func (s inprocSub) matches(key string) bool {
	if strings.HasSuffix(s.pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(s.pattern, "*"))
	}
	return s.pattern == key
}

type inprocMessage struct {
	key     string
	payload []byte
	replyTo string
}

const (
	inprocBufferCapacity = 256
	rtinprocWorkers      = 8
	rtinprocQueueSize    = 256
)

func newInprocHub(url, scheme string, lossless bool, metrics *metric.CoreMetrics) (*inprocHub, error) {
	h := &inprocHub{
		url:      url,
		scheme:   scheme,
		subs:     make(map[Token]inprocSub),
		lossless: lossless,
		metrics:  metrics,
		done:     make(chan struct{}),
	}

	if lossless {
		h.sem = semaphore.NewWeighted(int64(rtinprocQueueSize))
		h.pool = worker.NewPool[inprocMessage](rtinprocWorkers, rtinprocQueueSize, func(_ context.Context, msg inprocMessage) error {
			defer h.sem.Release(1)
			h.deliver(msg)
			return nil
		})
		if err := h.pool.Start(context.Background()); err != nil {
			return nil, matrixerrors.WrapFatal(err, "inprocHub", "newInprocHub", "start worker pool")
		}
		return h, nil
	}

	opts := []buffer.Option[inprocMessage]{buffer.WithOverflowPolicy[inprocMessage](buffer.DropOldest)}
	if metrics != nil {
		opts = append(opts, buffer.WithDropCallback(func(inprocMessage) { metrics.RecordTransportDrop(scheme) }))
	}
	buf, err := buffer.NewCircularBuffer[inprocMessage](inprocBufferCapacity, opts...)
	if err != nil {
		return nil, matrixerrors.WrapFatal(err, "inprocHub", "newInprocHub", "new circular buffer")
	}
	h.buf = buf
	h.notify = make(chan struct{}, 1)
	go h.dispatchLoop()
	return h, nil
}

func (h *inprocHub) subscribe(pattern string, cb Callback) Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextToken++
	token := h.nextToken
	h.subs[token] = inprocSub{pattern: pattern, cb: cb}
	return token
}

func (h *inprocHub) unsubscribe(token Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, token)
}

func (h *inprocHub) publish(msg inprocMessage) error {
	if h.lossless {
		if err := h.sem.Acquire(context.Background(), 1); err != nil {
			return matrixerrors.WrapTransient(err, "inprocHub", "publish", "semaphore acquire")
		}
		if err := h.pool.Submit(msg); err != nil {
			h.sem.Release(1)
			return matrixerrors.WrapTransient(err, "inprocHub", "publish", "submit")
		}
		if h.metrics != nil {
			h.metrics.RecordTransportPublish(h.scheme)
		}
		return nil
	}

	if err := h.buf.Write(msg); err != nil {
		return matrixerrors.WrapTransient(err, "inprocHub", "publish", "buffer write")
	}
	select {
	case h.notify <- struct{}{}:
	default:
	}
	if h.metrics != nil {
		h.metrics.RecordTransportPublish(h.scheme)
	}
	return nil
}

func (h *inprocHub) dispatchLoop() {
	for {
		select {
		case <-h.done:
			return
		case <-h.notify:
			for {
				msg, ok := h.buf.Read()
				if !ok {
					break
				}
				h.deliver(msg)
			}
		}
	}
}

func noopReply([]byte) error { return nil }

func (h *inprocHub) deliver(msg inprocMessage) {
	h.mu.RLock()
	matched := make([]Callback, 0, len(h.subs))
	for _, s := range h.subs {
		if s.matches(msg.key) {
			matched = append(matched, s.cb)
		}
	}
	h.mu.RUnlock()

	reply := ReplyFunc(noopReply)
	if msg.replyTo != "" {
		replyTo := msg.replyTo
		reply = func(payload []byte) error {
			return h.publish(inprocMessage{key: replyTo, payload: payload})
		}
	}
	for _, cb := range matched {
		cb(msg.key, msg.payload, reply)
	}
}

func (h *inprocHub) close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.buf != nil {
			_ = h.buf.Close()
		}
		if h.pool != nil {
			_ = h.pool.Stop(5 * time.Second)
		}
	})
}

var (
	inprocHubsMu sync.Mutex
	inprocHubs   = map[string]*inprocHub{}
)

// inprocFactory backs the "inproc" and "rtinproc" schemes.
type inprocFactory struct {
	scheme   string
	lossless bool
	metrics  *metric.CoreMetrics
}

// InprocOption configures an inproc/rtinproc Factory.
type InprocOption func(*inprocFactory)

// WithInprocMetrics records every hub's publish/drop counts against m,
// labeled by the factory's scheme. A nil m leaves the factory uninstrumented.
func WithInprocMetrics(m *metric.CoreMetrics) InprocOption {
	return func(f *inprocFactory) { f.metrics = m }
}

// NewInprocFactory returns the Factory for the lossy "inproc" scheme.
func NewInprocFactory(opts ...InprocOption) Factory {
	f := &inprocFactory{scheme: "inproc"}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewRTInprocFactory returns the Factory for the lossless "rtinproc" scheme.
func NewRTInprocFactory(opts ...InprocOption) Factory {
	f := &inprocFactory{scheme: "rtinproc", lossless: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *inprocFactory) Scheme() string { return f.scheme }

func (f *inprocFactory) NewServer() (Server, error) {
	return &inprocServer{scheme: f.scheme, lossless: f.lossless, metrics: f.metrics}, nil
}

func (f *inprocFactory) NewClient() (Client, error) {
	return &inprocClient{}, nil
}

type inprocServer struct {
	scheme   string
	lossless bool
	metrics  *metric.CoreMetrics
	mu       sync.Mutex
	hub      *inprocHub
	url      string
}

func (s *inprocServer) Bind(urls []string) error {
	if len(urls) != 1 {
		return matrixerrors.WrapInvalid(fmt.Errorf("inproc Bind requires exactly one URL, got %d", len(urls)), "inprocServer", "Bind", "validation")
	}
	realized := substituteEphemeralName(urls[0])

	inprocHubsMu.Lock()
	if _, exists := inprocHubs[realized]; exists {
		inprocHubsMu.Unlock()
		return matrixerrors.WrapInvalid(fmt.Errorf("already bound: %s", realized), "inprocServer", "Bind", "duplicate bind")
	}
	hub, err := newInprocHub(realized, s.scheme, s.lossless, s.metrics)
	if err != nil {
		inprocHubsMu.Unlock()
		return err
	}
	inprocHubs[realized] = hub
	inprocHubsMu.Unlock()

	s.mu.Lock()
	s.hub = hub
	s.url = realized
	s.mu.Unlock()
	return nil
}

func (s *inprocServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *inprocServer) Publish(key string, payload []byte) error {
	s.mu.Lock()
	hub := s.hub
	s.mu.Unlock()
	if hub == nil {
		return matrixerrors.WrapInvalid(matrixerrors.ErrClosed, "inprocServer", "Publish", "not bound")
	}
	return hub.publish(inprocMessage{key: key, payload: payload})
}

func (s *inprocServer) Close() error {
	s.mu.Lock()
	hub, url := s.hub, s.url
	s.hub = nil
	s.mu.Unlock()
	if hub == nil {
		return nil
	}
	hub.close()
	inprocHubsMu.Lock()
	delete(inprocHubs, url)
	inprocHubsMu.Unlock()
	return nil
}

type inprocClient struct {
	mu     sync.Mutex
	hub    *inprocHub
	tokens map[Token]struct{}
}

func (c *inprocClient) Connect(url string) error {
	inprocHubsMu.Lock()
	hub, ok := inprocHubs[url]
	inprocHubsMu.Unlock()
	if !ok {
		return matrixerrors.WrapInvalid(fmt.Errorf("no bound inproc hub at %s", url), "inprocClient", "Connect", "lookup")
	}
	c.mu.Lock()
	c.hub = hub
	c.tokens = make(map[Token]struct{})
	c.mu.Unlock()
	return nil
}

func (c *inprocClient) currentHub() *inprocHub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub
}

func (c *inprocClient) Subscribe(key string, cb Callback) (Token, error) {
	hub := c.currentHub()
	if hub == nil {
		return 0, matrixerrors.WrapInvalid(matrixerrors.ErrClosed, "inprocClient", "Subscribe", "not connected")
	}
	token := hub.subscribe(key, cb)
	c.mu.Lock()
	c.tokens[token] = struct{}{}
	c.mu.Unlock()
	return token, nil
}

func (c *inprocClient) Unsubscribe(token Token) {
	hub := c.currentHub()
	if hub == nil {
		return
	}
	hub.unsubscribe(token)
	c.mu.Lock()
	delete(c.tokens, token)
	c.mu.Unlock()
}

func (c *inprocClient) Request(ctx context.Context, key string, payload []byte) ([]byte, error) {
	hub := c.currentHub()
	if hub == nil {
		return nil, matrixerrors.WrapInvalid(matrixerrors.ErrClosed, "inprocClient", "Request", "not connected")
	}

	replyKey := "_INBOX." + uuid.NewString()
	respCh := make(chan []byte, 1)
	token := hub.subscribe(replyKey, func(_ string, data []byte, _ ReplyFunc) {
		select {
		case respCh <- data:
		default:
		}
	})
	defer hub.unsubscribe(token)

	if err := hub.publish(inprocMessage{key: key, payload: payload, replyTo: replyKey}); err != nil {
		return nil, err
	}

	select {
	case data := <-respCh:
		return data, nil
	case <-ctx.Done():
		return nil, matrixerrors.WrapTransient(matrixerrors.ErrTimeout, "inprocClient", "Request", key)
	}
}

func (c *inprocClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hub != nil {
		for token := range c.tokens {
			c.hub.unsubscribe(token)
		}
	}
	c.tokens = nil
	c.hub = nil
	return nil
}
