package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/ramoncreager/matrix/keymaster/client"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/transport"
)

// Dependencies bundles what a component Factory needs to build a running
// instance: the Keymaster connection it reads its own config subtree from
// and publishes status to, and the transport registry it binds/connects
// its ports through.
type Dependencies struct {
	Keymaster  *client.Client
	Transports *transport.Registry
}

// Factory creates a component instance from its raw config subtree. All
// I/O happens in the returned component's lifecycle Handle, not here.
type Factory func(name string, config json.RawMessage, deps Dependencies) (Discoverable, error)

// Registration holds a factory plus the static metadata the Architect and
// discovery surface show about a registered component type.
type Registration struct {
	Type        string
	Description string
	Version     string
	Schema      ConfigSchema
	Factory     Factory
}

// Registry maps component type names (the value of a components.<name>.type
// entry) to factories, and tracks the running instances created from them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Registration
	instances map[string]Discoverable
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]Discoverable),
	}
}

// RegisterFactory registers a component type. Registering the same type
// name twice is a matrixerrors.Invalid error.
func (r *Registry) RegisterFactory(typeName string, reg *Registration) error {
	if typeName == "" || reg == nil || reg.Factory == nil {
		return matrixerrors.WrapInvalid(fmt.Errorf("invalid registration"), "Registry", "RegisterFactory", "validation")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typeName]; exists {
		return matrixerrors.WrapInvalid(fmt.Errorf("factory %q already registered", typeName), "Registry", "RegisterFactory", "duplicate")
	}
	r.factories[typeName] = reg
	return nil
}

// CreateComponent instantiates a component of the registered type, using
// instanceName as its unique name in the registry and the Keymaster status
// tree. An unknown type is a matrixerrors.Fatal error — the Architect
// treats a bad component declaration as unrecoverable for the whole run.
func (r *Registry) CreateComponent(instanceName, typeName string, config json.RawMessage, deps Dependencies) (Discoverable, error) {
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, err
	}

	r.mu.RLock()
	reg, exists := r.factories[typeName]
	r.mu.RUnlock()
	if !exists {
		return nil, matrixerrors.WrapFatal(fmt.Errorf("unknown component type %q", typeName), "Registry", "CreateComponent", "factory lookup")
	}

	if err := reg.Schema.Validate(typeName, config); err != nil {
		return nil, err
	}

	instance, err := reg.Factory(instanceName, config, deps)
	if err != nil {
		return nil, matrixerrors.WrapFatal(err, "Registry", "CreateComponent", "factory execution")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[instanceName]; exists {
		return nil, matrixerrors.WrapInvalid(fmt.Errorf("instance %q already registered", instanceName), "Registry", "CreateComponent", "duplicate instance")
	}
	r.instances[instanceName] = instance
	return instance, nil
}

// Component returns a registered instance by name, or nil if none exists.
func (r *Registry) Component(name string) Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// ListComponents returns a copy of the instance registry.
func (r *Registry) ListComponents() map[string]Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Discoverable, len(r.instances))
	maps.Copy(out, r.instances)
	return out
}

// ListTypes returns every registered component type name.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// Schema returns the ConfigSchema registered for typeName.
func (r *Registry) Schema(typeName string) (ConfigSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, exists := r.factories[typeName]
	if !exists {
		return ConfigSchema{}, matrixerrors.WrapInvalid(fmt.Errorf("component type %q not found", typeName), "Registry", "Schema", "type lookup")
	}
	return reg.Schema, nil
}

const maxNameLength = 256

// ValidateComponentName restricts instance/type names to a safe character
// set, since they flow straight into Keymaster tree path segments.
func ValidateComponentName(name string) error {
	if name == "" {
		return matrixerrors.WrapInvalid(fmt.Errorf("empty component name"), "Registry", "ValidateComponentName", "validation")
	}
	if len(name) > maxNameLength {
		return matrixerrors.WrapInvalid(fmt.Errorf("component name too long"), "Registry", "ValidateComponentName", "validation")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_') {
			return matrixerrors.WrapInvalid(fmt.Errorf("invalid character %q in component name %q", r, name), "Registry", "ValidateComponentName", "validation")
		}
	}
	if strings.Contains(name, "..") {
		return matrixerrors.WrapInvalid(fmt.Errorf("component name %q must not contain '..'", name), "Registry", "ValidateComponentName", "validation")
	}
	return nil
}
