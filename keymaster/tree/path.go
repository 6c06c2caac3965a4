// Package tree implements the Keymaster's hierarchical value store: a
// recursive structure addressed by dotted paths, exactly the shape
// gopkg.in/yaml.v3 decodes a YAML document into.
package tree

import "strings"

// Path is a dot-separated sequence of key identifiers, e.g.
// "components.nettask.Transports.A.Specified". The empty path denotes the
// root of the tree.
type Path string

// Root is the empty path, addressing the tree's top-level node.
const Root Path = ""

// Split breaks a Path into its component keys. The root path splits to an
// empty slice.
func (p Path) Split() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), ".")
}

// Child returns the path reached by appending key as a child of p.
func (p Path) Child(key string) Path {
	if p == "" {
		return Path(key)
	}
	return Path(string(p) + "." + key)
}

// Join builds a Path from its component keys.
func Join(parts ...string) Path {
	return Path(strings.Join(parts, "."))
}

// Ancestors returns every path from the root down to and including p,
// ordered shortest to longest: for "a.b.c" this is ["a", "a.b", "a.b.c"].
// The state manager's PUT and DEL handlers use this to fan a single
// mutation out across every ancestor topic. A mutation at the root returns just the root path.
func (p Path) Ancestors() []Path {
	parts := p.Split()
	if len(parts) == 0 {
		return []Path{Root}
	}
	out := make([]Path, len(parts))
	for i := range parts {
		out[i] = Join(parts[:i+1]...)
	}
	return out
}

func (p Path) String() string {
	return string(p)
}
