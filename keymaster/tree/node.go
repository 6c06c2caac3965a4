package tree

import "gopkg.in/yaml.v3"

// Node wraps a value from the tree: a scalar (string, int, float64, bool),
// an ordered sequence ([]any of Node-compatible values), a keyed mapping
// (map[string]any), or nil. It round-trips to YAML so a fetched Node can be
// dumped or a PUT payload can be decoded straight off the wire.
type Node struct {
	raw any
}

// NewNode wraps a raw value as a Node.
func NewNode(v any) Node {
	return Node{raw: v}
}

// Raw returns the underlying value.
func (n Node) Raw() any {
	return n.raw
}

// IsNil reports whether the node holds no value.
func (n Node) IsNil() bool {
	return n.raw == nil
}

// Map returns the node's value as a mapping, if it is one.
func (n Node) Map() (map[string]any, bool) {
	m, ok := n.raw.(map[string]any)
	return m, ok
}

// Slice returns the node's value as an ordered sequence, if it is one.
func (n Node) Slice() ([]any, bool) {
	s, ok := n.raw.([]any)
	return s, ok
}

// MarshalYAML implements yaml.Marshaler by emitting the raw value.
func (n Node) MarshalYAML() (interface{}, error) {
	return n.raw, nil
}

// UnmarshalYAML implements yaml.Unmarshaler by decoding into the raw value.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	n.raw = raw
	return nil
}
