package transport

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/metric"
)

// Registry is the process-global scheme-to-Factory lookup, plus a shared
// instance table keyed by (component, transport name) so that components
// connecting to the same declared transport reuse one bound Server/Client
// pair instead of each opening its own socket.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	shared    map[string]map[string]*sharedInstance
}

type sharedInstance struct {
	server Server
	client Client
	refs   int
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		shared:    make(map[string]map[string]*sharedInstance),
	}
}

// NewDefaultRegistry returns a Registry with the four built-in schemes
// already registered: tcp, ipc, inproc, rtinproc. core, if non-nil, wires
// every scheme's publish/drop counters into it.
func NewDefaultRegistry(core *metric.CoreMetrics) *Registry {
	r := NewRegistry()
	_ = r.RegisterFactory(NewTCPFactory(WithMetrics(core)))
	_ = r.RegisterFactory(NewIPCFactory(WithMetrics(core)))
	_ = r.RegisterFactory(NewInprocFactory(WithInprocMetrics(core)))
	_ = r.RegisterFactory(NewRTInprocFactory(WithInprocMetrics(core)))
	return r
}

// RegisterFactory makes scheme available for Get and Prefer. Registering a
// scheme twice replaces the previous factory, matching the teacher's
// component.Registry.RegisterFactory "last registration wins" behavior for
// built-ins re-registered by tests.
func (r *Registry) RegisterFactory(f Factory) error {
	if f == nil || f.Scheme() == "" {
		return matrixerrors.WrapInvalid(fmt.Errorf("nil factory or empty scheme"), "Registry", "RegisterFactory", "validation")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.Scheme()] = f
	return nil
}

func (r *Registry) factoryFor(scheme string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[scheme]
	if !ok {
		return nil, matrixerrors.WrapInvalid(matrixerrors.ErrUnsupportedScheme, "Registry", "factoryFor", scheme)
	}
	return f, nil
}

func schemeOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "", matrixerrors.WrapInvalid(fmt.Errorf("malformed transport URL %q", rawURL), "Registry", "schemeOf", "parse")
	}
	return u.Scheme, nil
}

// commonScheme returns the single scheme shared by every URL in specified,
// or matrixerrors.ErrMixedSchemes if the list names more than one.
func commonScheme(specified []string) (string, error) {
	if len(specified) == 0 {
		return "", matrixerrors.WrapInvalid(fmt.Errorf("empty Specified URL list"), "Registry", "commonScheme", "validation")
	}
	scheme, err := schemeOf(specified[0])
	if err != nil {
		return "", err
	}
	for _, u := range specified[1:] {
		s, err := schemeOf(u)
		if err != nil {
			return "", err
		}
		if s != scheme {
			return "", matrixerrors.WrapInvalid(matrixerrors.ErrMixedSchemes, "Registry", "commonScheme", "scheme consistency")
		}
	}
	return scheme, nil
}

// Handle is a reference to a shared transport instance. Release must be
// called exactly once per Handle obtained from Get.
type Handle struct {
	registry      *Registry
	component     string
	transportName string
	server        Server
	client        Client
	released      bool
	mu            sync.Mutex
}

// Server returns the shared instance's bound Server.
func (h *Handle) Server() Server { return h.server }

// Client returns the shared instance's connected Client.
func (h *Handle) Client() Client { return h.client }

// Release decrements the shared instance's refcount. When the count
// reaches zero the instance is torn down and removed from the registry.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	return h.registry.release(h.component, h.transportName)
}

// Get returns a Handle to the shared transport instance for
// (component, transportName), binding a new one from specified if none
// exists yet. Every URL in specified must resolve to the same scheme;
// otherwise Get returns matrixerrors.ErrMixedSchemes wrapped Invalid.
func (r *Registry) Get(component, transportName string, specified []string) (*Handle, error) {
	scheme, err := commonScheme(specified)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.shared[component]
	if !ok {
		byName = make(map[string]*sharedInstance)
		r.shared[component] = byName
	}

	inst, ok := byName[transportName]
	if !ok {
		// r.mu is already held, so look the factory up directly rather than
		// through factoryFor, which takes r.mu itself.
		factory, found := r.factories[scheme]
		if !found {
			return nil, matrixerrors.WrapInvalid(matrixerrors.ErrUnsupportedScheme, "Registry", "Get", scheme)
		}
		server, err := factory.NewServer()
		if err != nil {
			return nil, matrixerrors.WrapInvalid(err, "Registry", "Get", "new server")
		}
		if err := server.Bind(specified); err != nil {
			return nil, matrixerrors.WrapInvalid(err, "Registry", "Get", "bind")
		}
		client, err := factory.NewClient()
		if err != nil {
			_ = server.Close()
			return nil, matrixerrors.WrapInvalid(err, "Registry", "Get", "new client")
		}
		if err := client.Connect(server.URL()); err != nil {
			_ = server.Close()
			return nil, matrixerrors.WrapInvalid(err, "Registry", "Get", "connect")
		}
		inst = &sharedInstance{server: server, client: client}
		byName[transportName] = inst
	}

	inst.refs++
	return &Handle{registry: r, component: component, transportName: transportName, server: inst.server, client: inst.client}, nil
}

func (r *Registry) release(component, transportName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.shared[component]
	if !ok {
		return nil
	}
	inst, ok := byName[transportName]
	if !ok {
		return nil
	}
	inst.refs--
	if inst.refs > 0 {
		return nil
	}
	delete(byName, transportName)
	if len(byName) == 0 {
		delete(r.shared, component)
	}
	var err error
	if cerr := inst.client.Disconnect(); cerr != nil {
		err = cerr
	}
	if serr := inst.server.Close(); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Dial returns a fresh, connected Client for url without registering it in
// the shared-instance table: this is how a Keymaster client (or any other
// pure consumer that never binds its own Server) reaches an already-bound
// endpoint, as opposed to Get, which is for components sharing one bound
// Server/Client pair for a declared transport.
func (r *Registry) Dial(url string) (Client, error) {
	scheme, err := schemeOf(url)
	if err != nil {
		return nil, err
	}
	factory, err := r.factoryFor(scheme)
	if err != nil {
		return nil, err
	}
	client, err := factory.NewClient()
	if err != nil {
		return nil, matrixerrors.WrapInvalid(err, "Registry", "Dial", "new client")
	}
	if err := client.Connect(url); err != nil {
		return nil, matrixerrors.WrapTransient(err, "Registry", "Dial", "connect")
	}
	return client, nil
}

// schemeRank orders schemes from most to least local; Prefer returns the
// first match by this ranking.
var schemeRank = map[string]int{
	"inproc":   0,
	"rtinproc": 0,
	"ipc":      1,
	"tcp":      2,
}

// Prefer picks the most local URL out of asConfigured by scheme, ranking
// inproc/rtinproc over ipc over tcp.
func Prefer(asConfigured []string) (string, error) {
	if len(asConfigured) == 0 {
		return "", matrixerrors.WrapInvalid(fmt.Errorf("empty URL list"), "transport", "Prefer", "validation")
	}
	best := ""
	bestRank := -1
	for _, candidate := range asConfigured {
		scheme, err := schemeOf(candidate)
		if err != nil {
			return "", err
		}
		rank, known := schemeRank[scheme]
		if !known {
			rank = len(schemeRank)
		}
		if bestRank == -1 || rank < bestRank {
			bestRank = rank
			best = candidate
		}
	}
	return best, nil
}
