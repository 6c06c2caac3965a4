// Package tree implements the Value Tree that backs the Keymaster: a
// recursive value addressed by dotted Path. It is intentionally the same
// shape gopkg.in/yaml.v3 decodes a YAML document into (nested
// map[string]any / []any / scalars), so the configuration document loaded
// at boot becomes the tree's root verbatim.
//
// In the Keymaster server, RPC mutations arrive through the state manager's
// request callback, and Server.Run writes the realized AsConfigured URLs
// directly once at startup; every other goroutine reaches the tree through
// the RPC transport. Tree serializes all of these with an internal
// RWMutex.
package tree
