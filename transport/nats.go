package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/metric"
	"github.com/ramoncreager/matrix/pkg/security"
	"github.com/ramoncreager/matrix/pkg/tlsutil"
)

// natsFactory backs the "tcp" and "ipc" schemes with an embedded NATS
// server per bind and a nats.go connection per client/server-self link.
//
// nats-server's client listener only ever binds TCP, so "ipc" is
// implemented as "tcp" restricted to loopback rather than a genuine Unix
// domain socket: the realized URL is never rewritten to the canonical
// hostname the way "tcp" URLs are, which keeps it from ever being handed
// to a peer on another host.
type natsFactory struct {
	scheme    string
	serverTLS security.ServerTLSConfig
	clientTLS security.ClientTLSConfig
	metrics   *metric.CoreMetrics
}

// TCPOption configures optional TLS on a tcp/ipc Factory.
type TCPOption func(*natsFactory)

// WithServerTLS enables TLS on the embedded listener a bound Server
// starts, using the platform's shared TLS config type.
func WithServerTLS(cfg security.ServerTLSConfig) TCPOption {
	return func(f *natsFactory) { f.serverTLS = cfg }
}

// WithClientTLS configures how a Client verifies the server it connects
// to over tcp/ipc.
func WithClientTLS(cfg security.ClientTLSConfig) TCPOption {
	return func(f *natsFactory) { f.clientTLS = cfg }
}

// WithMetrics records every Publish call's outcome against m, labeled by
// this factory's scheme. A nil m leaves the factory uninstrumented.
func WithMetrics(m *metric.CoreMetrics) TCPOption {
	return func(f *natsFactory) { f.metrics = m }
}

// NewTCPFactory returns the Factory for the "tcp" scheme.
func NewTCPFactory(opts ...TCPOption) Factory {
	f := &natsFactory{scheme: "tcp"}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewIPCFactory returns the Factory for the "ipc" scheme.
func NewIPCFactory(opts ...TCPOption) Factory {
	f := &natsFactory{scheme: "ipc"}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *natsFactory) Scheme() string { return f.scheme }

func (f *natsFactory) NewServer() (Server, error) {
	tlsConfig, err := tlsutil.LoadServerTLSConfig(f.serverTLS)
	if err != nil {
		return nil, matrixerrors.WrapFatal(err, "natsFactory", "NewServer", "load TLS config")
	}
	return &natsServer{scheme: f.scheme, tlsConfig: tlsConfig, metrics: f.metrics}, nil
}

func (f *natsFactory) NewClient() (Client, error) {
	client := &natsClient{subs: make(map[Token]*nats.Subscription)}
	if f.serverTLS.Enabled {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(f.clientTLS)
		if err != nil {
			return nil, matrixerrors.WrapFatal(err, "natsFactory", "NewClient", "load TLS config")
		}
		client.tlsConfig = tlsConfig
	}
	return client, nil
}

type boundListener struct {
	ns   *server.Server
	url  string
	dial string // nats:// loopback URL nats.Connect actually dials
}

type natsServer struct {
	scheme    string
	tlsConfig *tls.Config
	metrics   *metric.CoreMetrics
	mu        sync.Mutex
	listeners []*boundListener
	self      *nats.Conn
}

func parseHostPort(rawURL string) (host string, port int, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, err
	}
	host = u.Hostname()
	if host == "" || host == "*" {
		host = "0.0.0.0"
	}
	portStr := u.Port()
	if portStr == "" || portStr == "*" {
		return host, -1, nil
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, p, nil
}

// Bind starts one embedded NATS listener per URL in urls. If any listener
// fails to start, every listener already started during this call is shut
// down before Bind returns the error.
func (s *natsServer) Bind(urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bound []*boundListener
	rollback := func() {
		for _, b := range bound {
			b.ns.Shutdown()
		}
	}

	for _, raw := range urls {
		host, port, err := parseHostPort(raw)
		if err != nil {
			rollback()
			return matrixerrors.WrapInvalid(err, "natsServer", "Bind", "parse URL")
		}
		if s.scheme == "ipc" {
			host = "127.0.0.1"
		}
		opts := &server.Options{Host: host, Port: port, NoLog: true, NoSigs: true, TLSConfig: s.tlsConfig}
		ns, err := server.NewServer(opts)
		if err != nil {
			rollback()
			return matrixerrors.WrapInvalid(err, "natsServer", "Bind", "new embedded server")
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			rollback()
			return matrixerrors.WrapTransient(matrixerrors.ErrTimeout, "natsServer", "Bind", "wait for listener ready")
		}

		realized, err := s.realizeURL(ns, raw)
		if err != nil {
			ns.Shutdown()
			rollback()
			return matrixerrors.WrapInvalid(err, "natsServer", "Bind", "realize URL")
		}
		bound = append(bound, &boundListener{ns: ns, url: realized, dial: selfDialURL(ns)})
	}

	if len(bound) == 0 {
		return matrixerrors.WrapInvalid(fmt.Errorf("no URLs to bind"), "natsServer", "Bind", "validation")
	}

	conn, err := nats.Connect(bound[0].dial, nats.Name("matrix-server-self"))
	if err != nil {
		rollback()
		return matrixerrors.WrapInvalid(err, "natsServer", "Bind", "self-connect")
	}

	s.listeners = bound
	s.self = conn
	return nil
}

// boundPort extracts the concrete port an embedded listener settled on,
// however server.Server's Addr() happens to report it.
func boundPort(ns *server.Server) int {
	addr := ns.Addr()
	if tcpAddr, ok := addr.(interface{ Port() int }); ok {
		return tcpAddr.Port()
	}
	if a, ok := addr.(fmt.Stringer); ok {
		if _, p, err := parseHostPort("tcp://" + a.String()); err == nil {
			return p
		}
	}
	return 0
}

// selfDialURL is the nats:// loopback address the server's own Publish
// connection dials. It is purely internal wiring to the embedded NATS
// listener and is never handed to a peer or written to the Keymaster tree
// — realizeURL is what gets published.
func selfDialURL(ns *server.Server) string {
	return fmt.Sprintf("nats://127.0.0.1:%d", boundPort(ns))
}

// toNatsDialURL rewrites a tcp:// or ipc:// URL this package published to
// the nats:// scheme nats.Connect requires — the embedded NATS listener is
// an implementation detail callers of transport.Registry never see.
func toNatsDialURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Scheme = "nats"
	return u.String()
}

// realizeURL rewrites a tcp://*/tcp://*:* URL to the host's canonical DNS
// name now that the embedded listener has settled on a concrete port (a
// tcp URL naming an explicit host keeps that host and gets only the port),
// keeping the tcp scheme the spec requires in Keymaster.URLS.AsConfigured.
// ipc URLs are left on loopback under the ipc scheme and are never given a
// canonical hostname. The embedded NATS listener backing both schemes is an
// implementation detail: callers dial these URLs through transport.Registry,
// never through nats.Connect directly, so the nats:// scheme never needs to
// leave this file.
func (s *natsServer) realizeURL(ns *server.Server, raw string) (string, error) {
	port := boundPort(ns)

	if s.scheme == "ipc" {
		return fmt.Sprintf("ipc://127.0.0.1:%d", port), nil
	}

	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" && u.Hostname() != "*" {
		return fmt.Sprintf("tcp://%s:%d", u.Hostname(), port), nil
	}

	host, err := canonicalHostname()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tcp://%s:%d", host, port), nil
}

func (s *natsServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return ""
	}
	return s.listeners[0].url
}

func (s *natsServer) Publish(key string, payload []byte) error {
	s.mu.Lock()
	conn := s.self
	s.mu.Unlock()
	if conn == nil {
		return matrixerrors.WrapInvalid(matrixerrors.ErrClosed, "natsServer", "Publish", "not bound")
	}
	if err := conn.Publish(key, payload); err != nil {
		if s.metrics != nil {
			s.metrics.RecordTransportDrop(s.scheme)
		}
		return matrixerrors.WrapTransient(err, "natsServer", "Publish", "publish")
	}
	if s.metrics != nil {
		s.metrics.RecordTransportPublish(s.scheme)
	}
	return nil
}

func (s *natsServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self != nil {
		s.self.Close()
		s.self = nil
	}
	for _, b := range s.listeners {
		b.ns.Shutdown()
	}
	s.listeners = nil
	return nil
}

type natsClient struct {
	tlsConfig *tls.Config
	mu        sync.Mutex
	conn      *nats.Conn
	subs      map[Token]*nats.Subscription
	nextToken Token
}

func (c *natsClient) Connect(rawURL string) error {
	opts := []nats.Option{
		nats.Name("matrix-client"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(200 * time.Millisecond),
	}
	if c.tlsConfig != nil {
		opts = append(opts, nats.Secure(c.tlsConfig))
	}
	conn, err := nats.Connect(toNatsDialURL(rawURL), opts...)
	if err != nil {
		return matrixerrors.WrapTransient(err, "natsClient", "Connect", rawURL)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// subjectFor converts a Matrix key into a NATS subject, mapping a
// trailing "*" prefix-match marker onto NATS's ">" wildcard.
func subjectFor(key string) string {
	if strings.HasSuffix(key, "*") {
		return strings.TrimSuffix(key, "*") + ">"
	}
	return key
}

func (c *natsClient) Subscribe(key string, cb Callback) (Token, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, matrixerrors.WrapInvalid(matrixerrors.ErrClosed, "natsClient", "Subscribe", "not connected")
	}

	sub, err := conn.Subscribe(subjectFor(key), func(msg *nats.Msg) {
		reply := func(payload []byte) error {
			if msg.Reply == "" {
				return nil
			}
			return conn.Publish(msg.Reply, payload)
		}
		cb(msg.Subject, msg.Data, reply)
	})
	if err != nil {
		return 0, matrixerrors.WrapTransient(err, "natsClient", "Subscribe", key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextToken++
	token := c.nextToken
	c.subs[token] = sub
	return token, nil
}

func (c *natsClient) Unsubscribe(token Token) {
	c.mu.Lock()
	sub, ok := c.subs[token]
	delete(c.subs, token)
	c.mu.Unlock()
	if ok {
		_ = sub.Unsubscribe()
	}
}

func (c *natsClient) Request(ctx context.Context, key string, payload []byte) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, matrixerrors.WrapInvalid(matrixerrors.ErrClosed, "natsClient", "Request", "not connected")
	}

	msg, err := conn.RequestWithContext(ctx, key, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, matrixerrors.WrapTransient(matrixerrors.ErrTimeout, "natsClient", "Request", key)
		}
		return nil, matrixerrors.WrapTransient(err, "natsClient", "Request", key)
	}
	return msg.Data, nil
}

func (c *natsClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.Close()
	c.conn = nil
	return nil
}
