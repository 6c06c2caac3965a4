package tree

import (
	"sync"

	"github.com/ramoncreager/matrix/matrixerrors"
)

// Tree is the Keymaster's hierarchical value store. A fresh Tree holds an
// empty mapping at its root. Its methods are safe for concurrent use: an
// RWMutex serializes the mutating methods (Put/Delete/SwapRoot) against
// each other and against readers. It does not limit which goroutines may
// write.
type Tree struct {
	mu   sync.RWMutex
	root any

	cloneInterval  int
	putsSinceClone int
}

// New creates an empty Tree, optionally seeded with an initial root value
// (typically the decoded YAML configuration document). cloneInterval is
// the number of successful Puts between automatic root clones; 0 disables
// automatic cloning.
func New(root any, cloneInterval int) *Tree {
	if root == nil {
		root = map[string]any{}
	}
	return &Tree{root: root, cloneInterval: cloneInterval}
}

// Get resolves path against the tree, returning matrixerrors.ErrNotFound
// if any segment of the path fails to resolve.
func (t *Tree) Get(path Path) (Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := lookup(t.root, path.Split())
	if !ok {
		return Node{}, matrixerrors.ErrNotFound
	}
	return NewNode(v), nil
}

// Put sets the value at path. Missing intermediate mappings are created
// when create is true; otherwise a missing intermediate yields
// matrixerrors.ErrConflict. An intermediate segment that resolves to a
// non-mapping value also yields ErrConflict, since descending further is
// impossible regardless of create.
func (t *Tree) Put(path Path, value any, create bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := path.Split()
	if len(parts) == 0 {
		t.root = value
		t.afterPut()
		return nil
	}

	cur := t.root
	for _, part := range parts[:len(parts)-1] {
		m, ok := cur.(map[string]any)
		if !ok {
			return matrixerrors.ErrConflict
		}
		next, exists := m[part]
		if !exists {
			if !create {
				return matrixerrors.ErrConflict
			}
			next = map[string]any{}
			m[part] = next
		}
		cur = next
	}

	m, ok := cur.(map[string]any)
	if !ok {
		return matrixerrors.ErrConflict
	}
	m[parts[len(parts)-1]] = value
	t.afterPut()
	return nil
}

// Delete removes the value at path, returning matrixerrors.ErrNotFound if
// path does not resolve.
func (t *Tree) Delete(path Path) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := path.Split()
	if len(parts) == 0 {
		t.root = map[string]any{}
		return nil
	}

	cur := t.root
	for _, part := range parts[:len(parts)-1] {
		m, ok := cur.(map[string]any)
		if !ok {
			return matrixerrors.ErrNotFound
		}
		next, exists := m[part]
		if !exists {
			return matrixerrors.ErrNotFound
		}
		cur = next
	}

	m, ok := cur.(map[string]any)
	if !ok {
		return matrixerrors.ErrNotFound
	}
	last := parts[len(parts)-1]
	if _, exists := m[last]; !exists {
		return matrixerrors.ErrNotFound
	}
	delete(m, last)
	return nil
}

// Clone returns an independent deep copy of the tree, sharing no mutable
// state with the original.
func (t *Tree) Clone() *Tree {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Tree{
		root:          deepCopy(t.root),
		cloneInterval: t.cloneInterval,
	}
}

// SwapRoot replaces t's root with other's, resetting the put counter. The
// state manager calls this after Clone() to retire the accumulated root.
func (t *Tree) SwapRoot(other *Tree) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = other.root
	t.putsSinceClone = 0
}

// DueForClone reports whether cloneInterval successful Puts have
// accumulated since the last swap.
func (t *Tree) DueForClone() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cloneInterval > 0 && t.putsSinceClone >= t.cloneInterval
}

func (t *Tree) afterPut() {
	t.putsSinceClone++
}

func lookup(root any, parts []string) (any, bool) {
	cur := root
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, exists := m[part]
		if !exists {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return val
	}
}
