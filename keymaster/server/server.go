package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/metric"
	"github.com/ramoncreager/matrix/transport"
	"github.com/ramoncreager/matrix/types"
)

// Config configures a Keymaster server before Run starts it.
type Config struct {
	// ConfigYAML is the raw configuration document. The Keymaster tree IS
	// this document once decoded: config keys and runtime state (component
	// status, published URLs, the heartbeat) live in the same tree.
	ConfigYAML []byte

	Transports    *transport.Registry
	Logger        *slog.Logger
	CloneInterval int

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metric.CoreMetrics
}

// well-known tree paths the server itself writes.
const (
	pathURLsInitial       = "Keymaster.URLS.Initial"
	pathAsConfiguredState = "Keymaster.URLS.AsConfigured.State"
	pathAsConfiguredPub   = "Keymaster.URLS.AsConfigured.Pub"
	pathHeartbeat         = "Keymaster.heartbeat"
	pathCloneInterval     = "Keymaster.clone_interval"
)

// Server runs the Keymaster's stateManager, publisher, and heartbeat
// goroutines against one value tree.
type Server struct {
	cfg     Config
	log     *slog.Logger
	tree    *tree.Tree
	metrics *metric.CoreMetrics

	transports *transport.Registry

	stateHandle *transport.Handle
	pubHandle   *transport.Handle

	publishCh  chan pathValue
	stateReady chan struct{}
	pubReady   chan struct{}
}

type pathValue struct {
	path tree.Path
	data []byte
}

// New constructs a Server. Run does the actual config load and binds.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		transports: cfg.Transports,
		publishCh:  make(chan pathValue, 256),
		stateReady: make(chan struct{}),
		pubReady:   make(chan struct{}),
	}
}

// Run loads the configuration document into the tree, binds the state and
// publish transports, and runs the stateManager/publisher/heartbeat
// goroutines until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.loadConfig(); err != nil {
		return err
	}

	stateSpec, err := s.readURLSpec(pathURLsInitial)
	if err != nil {
		return err
	}
	pubSpec := types.TransportSpec{Specified: derivePublishURLs(stateSpec.Specified)}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runPublisher(gctx, pubSpec) })
	if err := s.waitReady(gctx, s.pubReady); err != nil {
		return err
	}

	g.Go(func() error { return s.runStateManager(gctx, stateSpec) })
	if err := s.waitReady(gctx, s.stateReady); err != nil {
		return err
	}

	if err := s.publishAsConfigured(); err != nil {
		return err
	}
	s.enqueuePublication(tree.Root)

	g.Go(func() error { return s.runHeartbeat(gctx) })

	return g.Wait()
}

func (s *Server) waitReady(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StateURL blocks until the state transport has bound, then returns its
// realized URL. A caller in the same process as Run uses this to build
// the Dial function its own keymaster/client.Client connects with,
// without round-tripping through the Keymaster tree it is itself about to
// populate.
func (s *Server) StateURL(ctx context.Context) (string, error) {
	if err := s.waitReady(ctx, s.stateReady); err != nil {
		return "", err
	}
	return s.stateHandle.Server().URL(), nil
}

func (s *Server) loadConfig() error {
	var root any
	if len(s.cfg.ConfigYAML) > 0 {
		if err := yaml.Unmarshal(s.cfg.ConfigYAML, &root); err != nil {
			return matrixerrors.WrapFatal(err, "server", "loadConfig", "unmarshal")
		}
	} else {
		root = map[string]any{}
	}

	cloneInterval := s.cfg.CloneInterval
	if cloneInterval <= 0 {
		cloneInterval = 1000
	}
	s.tree = tree.New(root, cloneInterval)

	if node, err := s.tree.Get(tree.Path(pathCloneInterval)); err == nil {
		if n, ok := node.Raw().(int); ok && n > 0 {
			s.tree = tree.New(root, n)
		}
	}
	return nil
}

// readURLSpec reads a list-of-strings config value at path into a
// TransportSpec's Specified field.
func (s *Server) readURLSpec(path string) (types.TransportSpec, error) {
	node, err := s.tree.Get(tree.Path(path))
	if err != nil {
		return types.TransportSpec{}, matrixerrors.WrapFatal(err, "server", "readURLSpec", path)
	}
	raw, ok := node.Slice()
	if !ok {
		return types.TransportSpec{}, matrixerrors.WrapFatal(fmt.Errorf("%s is not a list", path), "server", "readURLSpec", path)
	}
	urls := make([]string, 0, len(raw))
	for _, v := range raw {
		u, ok := v.(string)
		if !ok {
			return types.TransportSpec{}, matrixerrors.WrapFatal(fmt.Errorf("%s contains a non-string entry", path), "server", "readURLSpec", path)
		}
		urls = append(urls, u)
	}
	return types.TransportSpec{Specified: urls}, nil
}

// derivePublishURLs derives the pub-socket URL list from the configured
// (Specified) state URLs, before either transport has bound: tcp and ipc
// get the next port on the same host, inproc/rtinproc get a ".publisher"
// name suffix.
func derivePublishURLs(stateURLs []string) []string {
	out := make([]string, 0, len(stateURLs))
	for _, raw := range stateURLs {
		u, err := url.Parse(raw)
		if err != nil {
			out = append(out, raw)
			continue
		}
		switch u.Scheme {
		case "tcp", "ipc":
			out = append(out, derivePubPortURL(u))
		default: // inproc, rtinproc
			u.Host = u.Host + ".publisher"
			out = append(out, u.String())
		}
	}
	return out
}

// derivePubPortURL returns the pub-socket URL for a state URL bound on
// scheme+host+port: the next port on the same host, or an ephemeral port
// ("host:*") when the state port can't be parsed as a number. A derived
// port that fails to bind is handled by bindPubWithFallback, which retries
// once on an ephemeral port.
func derivePubPortURL(u *url.URL) string {
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return fmt.Sprintf("%s://%s:*", u.Scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", u.Scheme, host, port+1)
}

// publishAsConfigured writes the realized state/pub URLs into the tree so
// clients bootstrapping off a well-known config can discover the endpoints
// this server actually bound to.
func (s *Server) publishAsConfigured() error {
	if s.stateHandle != nil {
		if err := s.tree.Put(tree.Path(pathAsConfiguredState), []any{s.stateHandle.Server().URL()}, true); err != nil {
			return matrixerrors.WrapFatal(err, "server", "publishAsConfigured", "state")
		}
		s.enqueuePublication(tree.Path(pathAsConfiguredState))
	}
	if s.pubHandle != nil {
		if err := s.tree.Put(tree.Path(pathAsConfiguredPub), []any{s.pubHandle.Server().URL()}, true); err != nil {
			return matrixerrors.WrapFatal(err, "server", "publishAsConfigured", "pub")
		}
		s.enqueuePublication(tree.Path(pathAsConfiguredPub))
	}
	return nil
}

// enqueuePublication serializes the current value at path and hands it to
// the publisher goroutine. A full publish queue drops the notification
// rather than blocking the state manager — a subsequent read still sees
// the latest value, only the push notification is lost.
func (s *Server) enqueuePublication(path tree.Path) {
	node, err := s.tree.Get(path)
	if err != nil {
		return
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return
	}
	select {
	case s.publishCh <- pathValue{path: path, data: data}:
		if s.metrics != nil {
			s.metrics.RecordKeymasterPublish(path.String())
		}
	default:
		s.log.Warn("publish queue full, dropping notification", "path", path.String())
	}
}

// Close releases the server's transport handles. Run's errgroup already
// stops the goroutines; Close is for a caller that constructed a Server
// but never started it, or wants to force teardown after Run returns.
func (s *Server) Close() error {
	var err error
	if s.stateHandle != nil {
		if rerr := s.stateHandle.Release(); rerr != nil {
			err = rerr
		}
	}
	if s.pubHandle != nil {
		if rerr := s.pubHandle.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
