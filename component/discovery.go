// Package component defines Matrix's Component interface, the shared
// lifecycle state machine every Component is driven through by the
// Architect, and the registry that turns a config-declared component type
// into a running instance.
package component

import "time"

// Discoverable is the introspection surface every Component exposes to the
// Architect and to the Keymaster status path (components.<name>.status): a
// component can describe itself, list its ports, publish a config schema,
// and report health/flow without the caller knowing its concrete type.
type Discoverable interface {
	Meta() Metadata
	InputPorts() []Port
	OutputPorts() []Port
	ConfigSchema() ConfigSchema
	Health() HealthStatus
	DataFlow() FlowMetrics
}

// Metadata describes what a component is.
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Direction is the data-flow direction of a Port.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes one of a component's named DataSource/DataSink bindings.
// Unlike the wider port-config hierarchy this is modeled on, a Matrix port
// carries only the fields the Architect needs to wire an Edge — its actual
// transport binding lives in the Keymaster tree at
// components.<name>.Transports.<port>, resolved through transport.Registry
// at connect time rather than through a per-port config union type.
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
}

// ConfigSchema describes the configuration parameters for a component type,
// validated against component-specific JSON config at Registry.CreateComponent time.
type ConfigSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single configuration property.
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// HealthStatus describes the current health state of a component.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current data flow through a component.
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	BytesPerSecond    float64   `json:"bytes_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}
