package architect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ramoncreager/matrix/component"
	"github.com/ramoncreager/matrix/keymaster/client"
	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/metric"
	"github.com/ramoncreager/matrix/pkg/retry"
	"github.com/ramoncreager/matrix/transport"
)

// Well-known Keymaster paths the Architect owns.
const (
	PathComponents      = "components"
	PathConnections     = "connections"
	PathControl         = "Architect.control"
	PathStatus          = "Architect.status"
	pathComponentType   = "type"
	pathComponentConfig = "config"
)

// Edge is one source-to-sink wire declared under connections.<mode>: a list
// of [src-comp, src-name, sink-comp, sink-name] four-tuples in the
// configuration document.
type Edge struct {
	SrcComponent  string
	SrcName       string
	SinkComponent string
	SinkName      string
}

// Architect owns the running set of components for one Matrix process: it
// ensures the Keymaster is reachable, instantiates components from the
// configuration tree, wires connection modes, and drives every component
// through the shared lifecycle machine.
type Architect struct {
	km         *client.Client
	registry   *component.Registry
	transports *transport.Registry
	log        *slog.Logger
	metrics    *metric.CoreMetrics

	mu      sync.Mutex
	managed map[string]*component.Managed
	order   []string
}

// New creates an Architect over an already-dialed Keymaster client, a
// component registry with every component type this process supports
// already registered, and a transport registry components bind/connect
// through. metrics is optional; a nil value disables per-component state
// instrumentation.
func New(km *client.Client, registry *component.Registry, transports *transport.Registry, log *slog.Logger, metrics *metric.CoreMetrics) *Architect {
	if log == nil {
		log = slog.Default()
	}
	return &Architect{
		km:         km,
		registry:   registry,
		transports: transports,
		log:        log,
		metrics:    metrics,
		managed:    make(map[string]*component.Managed),
	}
}

// EnsureKeymaster blocks until the Keymaster responds to a ping, retrying
// with pkg/retry's KeymasterBootstrap backoff. Call this before
// InstantiateComponents so a not-yet-ready Keymaster server doesn't fail
// component bring-up outright.
func (a *Architect) EnsureKeymaster(ctx context.Context) error {
	err := retry.Do(ctx, retry.KeymasterBootstrap(), func() error {
		return a.km.Ping(ctx)
	})
	if err != nil {
		return matrixerrors.WrapFatal(err, "architect", "EnsureKeymaster", "ping")
	}
	return nil
}

// Managed returns the tracked Managed record for a component instance, or
// nil if no such instance has been created.
func (a *Architect) Managed(name string) *component.Managed {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.managed[name]
}

// componentDecl is the shape of one entry under components.<name> in the
// configuration tree: a type name selecting a registered factory, plus an
// arbitrary config subtree passed to that factory verbatim.
type componentDecl struct {
	Type   string
	Config json.RawMessage
}

func (a *Architect) readComponentDecls(ctx context.Context) (map[string]componentDecl, error) {
	node, err := a.km.Get(ctx, tree.Path(PathComponents))
	if err != nil {
		if matrixerrors.Classify(err) == matrixerrors.Fatal {
			return nil, err
		}
		return map[string]componentDecl{}, nil
	}
	root, ok := node.Map()
	if !ok {
		return map[string]componentDecl{}, nil
	}

	decls := make(map[string]componentDecl, len(root))
	for name, raw := range root {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, matrixerrors.WrapFatal(fmt.Errorf("components.%s is not a mapping", name), "architect", "readComponentDecls", "decode")
		}
		typeName, _ := entry[pathComponentType].(string)
		if typeName == "" {
			return nil, matrixerrors.WrapFatal(fmt.Errorf("components.%s.type is missing", name), "architect", "readComponentDecls", "decode")
		}
		cfgValue := entry[pathComponentConfig]
		cfgJSON, err := json.Marshal(cfgValue)
		if err != nil {
			return nil, matrixerrors.WrapFatal(err, "architect", "readComponentDecls", "marshal config")
		}
		decls[name] = componentDecl{Type: typeName, Config: cfgJSON}
	}
	return decls, nil
}

// InstantiateComponents reads components.*.type from the Keymaster tree and
// creates one instance per entry via the component registry, in
// deterministic (sorted-name) order so StartOrder is reproducible across
// runs of the same configuration.
func (a *Architect) InstantiateComponents(ctx context.Context) error {
	decls, err := a.readComponentDecls(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := component.Dependencies{Keymaster: a.km, Transports: a.transports}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, name := range names {
		decl := decls[name]
		instance, err := a.registry.CreateComponent(name, decl.Type, decl.Config, deps)
		if err != nil {
			return err
		}
		childCtx, cancel := context.WithCancel(ctx)
		a.managed[name] = &component.Managed{
			Name:       name,
			Component:  instance,
			State:      component.StateStandby,
			Context:    childCtx,
			Cancel:     cancel,
			StartOrder: i,
			Metrics:    a.metrics,
		}
		a.order = append(a.order, name)
	}
	return nil
}

// applyToAll drives every managed component through event concurrently, via
// an errgroup, and returns the first error encountered (if any). reverse
// picks the order the goroutines are launched in: instantiation order when
// false (bring-up events), reversed when true (tear-down events), matching
// the teacher's reverse-shutdown convention. Because the goroutines run
// concurrently, the components do not finish in that order.
func (a *Architect) applyToAll(ctx context.Context, event component.Event, reverse bool) error {
	a.mu.Lock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	a.mu.Unlock()

	if reverse {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			a.mu.Lock()
			m := a.managed[name]
			a.mu.Unlock()
			if m == nil {
				return nil
			}
			if err := m.Apply(gctx, event); err != nil {
				return matrixerrors.Wrap(err, "architect", "applyToAll", fmt.Sprintf("%s:%s", name, event))
			}
			return nil
		})
	}
	return g.Wait()
}
