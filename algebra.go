// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

// This file implements the algebraic engine (spec §4.6): join, meet,
// subtract, restrict and drop_head, all walking two node graphs in lockstep
// and short-circuiting on handle identity. Edges whose extensions disagree
// are aligned by materializing a split on whichever side is longer (see
// splitEdgeAt) rather than the spec's suggested virtual split — simpler to
// reason about, at the cost of a few extra node allocations along the
// diverging edges.

// splitEdgeAt materializes a split point within e's extension at pos,
// returning an edge whose own extension is e.ext[:pos] and whose child is a
// freshly allocated node carrying the rest of the original edge.
func splitEdgeAt[V any](a *allocator[V], e edge[V], pos int) edge[V] {
	if pos >= len(e.ext) {
		return e
	}
	mid := a.newHandle(newNode(a, VariantLine))
	mid.n.setChild(a, e.ext[pos], edge[V]{
		ext:   append([]byte(nil), e.ext[pos+1:]...),
		child: e.child,
	})
	return edge[V]{ext: append([]byte(nil), e.ext[:pos]...), child: mid}
}

// alignEdges splits whichever of el/er has the longer extension so that
// both end up with an identical extension (their common prefix), letting
// the caller recurse on el.child vs er.child as if they were reached by the
// exact same bytes.
func alignEdges[V any](a *allocator[V], el, er edge[V]) (edge[V], edge[V]) {
	common := commonPrefixLen(el.ext, er.ext)
	if common < len(el.ext) {
		el = splitEdgeAt(a, el, common)
	}
	if common < len(er.ext) {
		er = splitEdgeAt(a, er, common)
	}
	return el, er
}

// ownValue reports n's own value subject to graft_root_vals (spec §6): with
// the option off, an internal node's value is not part of Join/Meet/
// Subtract/Restrict at all — only a childless node's value does, matching
// spec §4.1's "otherwise values live only at nodes with no outgoing edges."
func ownValue[V any](a *allocator[V], n *trieNode[V]) (v V, ok bool) {
	if !n.hasValue {
		return v, false
	}
	if !a.config.graftRootVals && n.childCount() > 0 {
		return v, false
	}
	return n.value, true
}

// joinNode merges l and r, preferring l's value on collision (spec §4.6:
// "l wins").
func joinNode[V any](a *allocator[V], l, r NodeHandle[V]) NodeHandle[V] {
	if !r.valid() {
		return l.clone()
	}
	if !l.valid() {
		return r.clone()
	}
	if l.n == r.n {
		return l.clone()
	}

	out := a.newHandle(newNode(a, VariantLine))
	if v, ok := ownValue(a, l.n); ok {
		out.n.hasValue, out.n.value = true, v
	} else if v, ok := ownValue(a, r.n); ok {
		out.n.hasValue, out.n.value = true, v
	}

	seen := make(map[byte]bool)
	for _, b := range l.n.getChildAddrs() {
		seen[b] = true
		el, _ := l.n.childForByte(a, b)
		if er, ok := r.n.childForByte(a, b); ok {
			el2, er2 := alignEdges(a, el, er)
			out.n.setChild(a, b, edge[V]{ext: el2.ext, child: joinNode(a, el2.child, er2.child)})
			continue
		}
		out.n.setChild(a, b, edge[V]{ext: append([]byte(nil), el.ext...), child: el.child.clone()})
	}
	for _, b := range r.n.getChildAddrs() {
		if seen[b] {
			continue
		}
		er, _ := r.n.childForByte(a, b)
		out.n.setChild(a, b, edge[V]{ext: append([]byte(nil), er.ext...), child: er.child.clone()})
	}
	return out
}

// meetNode keeps only what both sides have, l's value winning when both
// carry one.
func meetNode[V any](a *allocator[V], l, r NodeHandle[V]) NodeHandle[V] {
	if !l.valid() || !r.valid() {
		return NodeHandle[V]{}
	}
	if l.n == r.n {
		return l.clone()
	}

	out := a.newHandle(newNode(a, VariantLine))
	if lv, lok := ownValue(a, l.n); lok {
		if _, rok := ownValue(a, r.n); rok {
			out.n.hasValue, out.n.value = true, lv
		}
	}
	for _, b := range l.n.getChildAddrs() {
		el, _ := l.n.childForByte(a, b)
		er, ok := r.n.childForByte(a, b)
		if !ok {
			continue
		}
		el2, er2 := alignEdges(a, el, er)
		child := meetNode(a, el2.child, er2.child)
		if !child.valid() {
			continue
		}
		out.n.setChild(a, b, edge[V]{ext: el2.ext, child: child})
	}
	if !out.n.hasValue && out.n.childCount() == 0 {
		out.release()
		return NodeHandle[V]{}
	}
	return out
}

// subtractNode keeps what l has that r does not.
func subtractNode[V any](a *allocator[V], l, r NodeHandle[V]) NodeHandle[V] {
	if !l.valid() {
		return NodeHandle[V]{}
	}
	if !r.valid() {
		return l.clone()
	}
	if l.n == r.n {
		return NodeHandle[V]{}
	}

	out := a.newHandle(newNode(a, VariantLine))
	if lv, lok := ownValue(a, l.n); lok {
		if _, rok := ownValue(a, r.n); !rok {
			out.n.hasValue, out.n.value = true, lv
		}
	}
	for _, b := range l.n.getChildAddrs() {
		el, _ := l.n.childForByte(a, b)
		er, ok := r.n.childForByte(a, b)
		if !ok {
			out.n.setChild(a, b, edge[V]{ext: append([]byte(nil), el.ext...), child: el.child.clone()})
			continue
		}
		el2, er2 := alignEdges(a, el, er)
		child := subtractNode(a, el2.child, er2.child)
		if !child.valid() {
			continue
		}
		out.n.setChild(a, b, edge[V]{ext: el2.ext, child: child})
	}
	if !out.n.hasValue && out.n.childCount() == 0 {
		out.release()
		return NodeHandle[V]{}
	}
	return out
}

// restrictNode keeps l's content only under prefixes r marks present: once
// r carries a value at or above a position, everything l has from there
// down survives wholesale (spec §4.6).
func restrictNode[V any](a *allocator[V], l, r NodeHandle[V]) NodeHandle[V] {
	if !l.valid() || !r.valid() {
		return NodeHandle[V]{}
	}
	if l.n == r.n {
		return l.clone()
	}
	if _, ok := ownValue(a, r.n); ok {
		return l.clone()
	}

	out := a.newHandle(newNode(a, VariantLine))
	for _, b := range l.n.getChildAddrs() {
		el, _ := l.n.childForByte(a, b)
		er, ok := r.n.childForByte(a, b)
		if !ok {
			continue
		}
		el2, er2 := alignEdges(a, el, er)
		child := restrictNode(a, el2.child, er2.child)
		if !child.valid() {
			continue
		}
		out.n.setChild(a, b, edge[V]{ext: el2.ext, child: child})
	}
	if !out.n.hasValue && out.n.childCount() == 0 {
		out.release()
		return NodeHandle[V]{}
	}
	return out
}

// dropAtDepth implements drop_head(n): every position reached by consuming
// exactly n bytes from h becomes a new root; positions that land at the
// same depth via different branches are unified by join (spec §4.6: "l
// wins" collisions, though here there's no natural left/right ordering
// across sibling branches, so ties are broken by enumeration order).
// For n > 0, h's own value and every value less than n bytes below h are
// dropped; n <= 0 returns h unchanged, own value included.
func dropAtDepth[V any](a *allocator[V], h NodeHandle[V], n int) NodeHandle[V] {
	if n <= 0 {
		return h.clone()
	}
	if !h.valid() {
		return NodeHandle[V]{}
	}

	var results []NodeHandle[V]
	for _, b := range h.n.getChildAddrs() {
		e, _ := h.n.childForByte(a, b)
		consumed := 1 + len(e.ext)
		switch {
		case consumed == n:
			results = append(results, e.child.clone())
		case consumed > n:
			split := splitEdgeAt(a, edge[V]{ext: append([]byte(nil), e.ext...), child: e.child.clone()}, n-1)
			results = append(results, split.child)
		default:
			if sub := dropAtDepth(a, e.child, n-consumed); sub.valid() {
				results = append(results, sub)
			}
		}
	}

	if len(results) == 0 {
		return NodeHandle[V]{}
	}
	out := results[0]
	for _, r := range results[1:] {
		joined := joinNode(a, out, r)
		out.release()
		r.release()
		out = joined
	}
	return out
}

// countEntries walks h, counting nodes with a value set. Used to derive a
// fresh PathMap's Len after an operation that hands back a bare NodeHandle.
func countEntries[V any](a *allocator[V], h NodeHandle[V]) int {
	if !h.valid() {
		return 0
	}
	n := 0
	if h.n.hasValue {
		n++
	}
	for _, b := range h.n.getChildAddrs() {
		e, _ := h.n.childForByte(a, b)
		n += countEntries(a, e.child)
	}
	return n
}

func newPathMapFromRoot[V any](alloc *allocator[V], root NodeHandle[V]) *PathMap[V] {
	return &PathMap[V]{alloc: alloc, root: root, size: countEntries(alloc, root)}
}

// Join returns a new map containing every key of m and other; on a key
// collision, m's value wins (spec §4.6, §8 scenario 2).
func Join[V any](m, other *PathMap[V]) *PathMap[V] {
	m.mu.RLock()
	other.mu.RLock()
	defer m.mu.RUnlock()
	defer other.mu.RUnlock()
	return newPathMapFromRoot(m.alloc, joinNode(m.alloc, m.root, other.root))
}

// Meet returns a new map containing only keys present in both m and other
// (spec §8 scenario 3).
func Meet[V any](m, other *PathMap[V]) *PathMap[V] {
	m.mu.RLock()
	other.mu.RLock()
	defer m.mu.RUnlock()
	defer other.mu.RUnlock()
	return newPathMapFromRoot(m.alloc, meetNode(m.alloc, m.root, other.root))
}

// Subtract returns a new map containing m's keys minus other's keys.
func Subtract[V any](m, other *PathMap[V]) *PathMap[V] {
	m.mu.RLock()
	other.mu.RLock()
	defer m.mu.RUnlock()
	defer other.mu.RUnlock()
	return newPathMapFromRoot(m.alloc, subtractNode(m.alloc, m.root, other.root))
}

// Restrict returns a new map containing only m's keys that have a prefix
// present as a key in prefixes (spec §8 scenario 4).
func Restrict[V any](m, prefixes *PathMap[V]) *PathMap[V] {
	m.mu.RLock()
	prefixes.mu.RLock()
	defer m.mu.RUnlock()
	defer prefixes.mu.RUnlock()
	return newPathMapFromRoot(m.alloc, restrictNode(m.alloc, m.root, prefixes.root))
}

// DropHead returns a new map with the first n bytes of every key removed
// (spec §8 scenario 5).
func DropHead[V any](m *PathMap[V], n int) *PathMap[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newPathMapFromRoot(m.alloc, dropAtDepth(m.alloc, m.root, n))
}
