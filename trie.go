// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import "sync"

// PathMap is an associative container keyed by non-empty byte-string paths
// (spec §1-3). Point operations (Get/Insert/Remove) and zipper cursors
// (spec §4) share the same copy-on-write trie and allocator.
//
// The zero value is not usable; construct one with New.
type PathMap[V any] struct {
	mu sync.RWMutex

	root  NodeHandle[V]
	alloc *allocator[V]
	size  int
}

// New constructs an empty PathMap, applying any Options over the defaults
// (spec §6).
func New[V any](opts ...Option) *PathMap[V] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.allDenseNodes && cfg.bridgeNodes {
		panic("pathmap: WithAllDenseNodes and WithBridgeNodes are mutually exclusive")
	}
	return &PathMap[V]{alloc: newAllocator[V](cfg)}
}

// Len reports the number of entries currently stored.
func (m *PathMap[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// IsEmpty reports whether the map holds no entries.
func (m *PathMap[V]) IsEmpty() bool {
	return m.Len() == 0
}

// Stats reports allocator profiling counters, when Config.counters is set.
func (m *PathMap[V]) Stats() (liveNodes, totalAllocated int64) {
	return m.alloc.Stats()
}

// Clone returns an independent copy of m. Structure is rebuilt rather than
// shared, and every stored value is passed through cloneValue — so, unlike
// Join/GraftMap/the rest of the algebraic family (which deliberately keep
// spec §4.1's CoW value-sharing until a write forces a split), a V that
// implements Cloner never ends up aliased between m and its clone.
func (m *PathMap[V]) Clone() *PathMap[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newPathMapFromRoot(m.alloc, cloneSubtree(m.alloc, m.root))
}

func cloneSubtree[V any](a *allocator[V], h NodeHandle[V]) NodeHandle[V] {
	if !h.valid() {
		return NodeHandle[V]{}
	}
	out := a.newHandle(newNode(a, VariantLine))
	if h.n.hasValue {
		out.n.hasValue = true
		out.n.value = cloneValue(h.n.value)
	}
	for _, b := range h.n.getChildAddrs() {
		e, _ := h.n.childForByte(a, b)
		out.n.setChild(a, b, edge[V]{ext: append([]byte(nil), e.ext...), child: cloneSubtree(a, e.child)})
	}
	return out
}

// descend walks key from the root, following edges byte by byte and
// splitting against each edge's extension. It returns the node reached by
// fully consuming key, if any such node exists — regardless of whether that
// node itself carries a value.
func (m *PathMap[V]) descend(key []byte) (NodeHandle[V], bool) {
	h := m.root
	rem := key
	for {
		if len(rem) == 0 {
			return h, h.valid()
		}
		if !h.valid() {
			return NodeHandle[V]{}, false
		}
		b, tail := rem[0], rem[1:]
		e, ok := h.n.childForByte(m.alloc, b)
		if !ok {
			return NodeHandle[V]{}, false
		}
		common := commonPrefixLen(e.ext, tail)
		if common != len(e.ext) {
			return NodeHandle[V]{}, false
		}
		h, rem = e.child, tail[common:]
	}
}

// Get returns the value stored at path, and whether one is present.
func (m *PathMap[V]) Get(path []byte) (V, bool) {
	var zero V
	if len(path) == 0 {
		return zero, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.descend(path)
	if !ok {
		return zero, false
	}
	return h.n.value, h.n.hasValue
}

// ContainsPath reports whether path is reachable — whether by an exact
// stored key, or as a position passed on the way to one (an interior node,
// or a point partway through a compressed edge) — without regard to
// whether a value lives there.
func (m *PathMap[V]) ContainsPath(path []byte) bool {
	if len(path) == 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, rem := m.root, path
	for len(rem) > 0 {
		if !h.valid() {
			return false
		}
		e, ok := h.n.childForByte(m.alloc, rem[0])
		if !ok {
			return false
		}
		tail := rem[1:]
		common := commonPrefixLen(e.ext, tail)
		if common == len(tail) {
			return true
		}
		if common != len(e.ext) {
			return false
		}
		h, rem = e.child, tail[common:]
	}
	return h.valid()
}

// Insert stores val at path, returning the previous value and whether one
// existed. path must be non-empty (spec §1: Path is a non-empty byte
// sequence); Insert is a no-op and returns ErrInvalidPath otherwise.
func (m *PathMap[V]) Insert(path []byte, val V) (V, bool, error) {
	var zero V
	if len(path) == 0 {
		return zero, false, ErrInvalidPath
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	newRoot, old, existed := insertAt(m.alloc, m.root, path, val)
	m.root = newRoot
	if !existed {
		m.size++
	}
	return old, existed, nil
}

// Remove deletes the value at path, if any, collapsing now-empty interior
// nodes (spec §4.3). It returns the removed value and whether one existed.
func (m *PathMap[V]) Remove(path []byte) (V, bool) {
	var zero V
	if len(path) == 0 {
		return zero, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.descend(path)
	if !ok || !h.n.hasValue {
		return zero, false
	}

	newRoot, old, existed := removeAt(m.alloc, m.root, path)
	m.root = newRoot
	if existed {
		m.size--
	}
	return old, existed
}

// Clear empties the map, releasing its root reference.
func (m *PathMap[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root.release()
	m.root = NodeHandle[V]{}
	m.size = 0
}

// insertAt returns the (possibly cloned) handle for h with val installed at
// rem beyond it, along with the value previously there and whether it
// existed. It follows spec §4.1's clone_for_cow discipline: the node along
// the path is cloned (or reused, if uniquely owned) before any of its
// fields are touched, and the clone is always resolved before descending
// further so a child's own refcount reading already reflects its parent's
// post-clone sharing.
func insertAt[V any](a *allocator[V], h NodeHandle[V], rem []byte, val V) (NodeHandle[V], V, bool) {
	var zero V
	h2 := h.cloneForCow(a)

	if len(rem) == 0 {
		old, existed := h2.n.value, h2.n.hasValue
		h2.n.hasValue = true
		h2.n.value = val
		return h2, old, existed
	}

	b, tail := rem[0], rem[1:]
	e, ok := h2.n.childForByte(a, b)
	if !ok {
		leaf := a.newHandle(newNode(a, VariantLine))
		leaf.n.hasValue = true
		leaf.n.value = val
		h2.n.setChild(a, b, edge[V]{ext: append([]byte(nil), tail...), child: leaf})
		return h2, zero, false
	}

	common := commonPrefixLen(e.ext, tail)
	if common == len(e.ext) {
		newChild, old, existed := insertAt(a, e.child, tail[common:], val)
		h2.n.setChild(a, b, edge[V]{ext: e.ext, child: newChild})
		return h2, old, existed
	}

	// common < len(e.ext): the new key diverges inside this edge's
	// extension (or ends partway through it). Split the edge at the
	// common point regardless of which case it is — the two sub-cases
	// differ only in where the new value ends up.
	mid := a.newHandle(newNode(a, VariantLine))
	mid.n.setChild(a, e.ext[common], edge[V]{
		ext:   append([]byte(nil), e.ext[common+1:]...),
		child: e.child.clone(),
	})

	var old V
	var existed bool
	if common == len(tail) {
		mid.n.hasValue = true
		mid.n.value = val
	} else {
		leaf := a.newHandle(newNode(a, VariantLine))
		leaf.n.hasValue = true
		leaf.n.value = val
		mid.n.setChild(a, tail[common], edge[V]{ext: append([]byte(nil), tail[common+1:]...), child: leaf})
	}

	h2.n.setChild(a, b, edge[V]{ext: append([]byte(nil), tail[:common]...), child: mid})
	return h2, old, existed
}

// removeAt mirrors insertAt's clone-then-descend discipline, additionally
// collapsing any node left with no value and exactly one child into its
// parent edge, and dropping any edge whose child is left with neither a
// value nor children.
func removeAt[V any](a *allocator[V], h NodeHandle[V], rem []byte) (NodeHandle[V], V, bool) {
	var zero V
	h2 := h.cloneForCow(a)

	if len(rem) == 0 {
		old, existed := h2.n.value, h2.n.hasValue
		h2.n.hasValue = false
		h2.n.value = zero
		return h2, old, existed
	}

	b, tail := rem[0], rem[1:]
	e, ok := h2.n.childForByte(a, b)
	if !ok {
		return h2, zero, false
	}

	common := commonPrefixLen(e.ext, tail)
	if common != len(e.ext) {
		return h2, zero, false
	}

	newChild, old, existed := removeAt(a, e.child, tail[common:])
	if !existed {
		return h2, zero, false
	}

	merged := collapseEdge(a, edge[V]{ext: e.ext, child: newChild})
	h2.n.setChild(a, b, merged)
	if !merged.child.n.hasValue && merged.child.n.childCount() == 0 {
		h2.n.unsetChild(a, b)
	}
	return h2, old, true
}
