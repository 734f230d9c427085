// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"sort"
	"sync/atomic"

	"github.com/pathmap-dev/pathmap/internal/arena"
	"github.com/pathmap-dev/pathmap/internal/bitmap"
)

// Variant identifies a trie node's physical representation. Node variants
// are a closed set (spec §9: "implement with a tagged discriminant and
// inline dispatch rather than open polymorphism"); trieNode below is that
// discriminated union, dispatched by kind in a type switch rather than
// through an interface's vtable, since per-byte traversal is the hot path.
type Variant uint8

const (
	// VariantLine is a single outgoing edge with a possibly-long prefix
	// extension, ideal for deep unary chains.
	VariantLine Variant = iota
	// VariantSparse is up to denseThreshold children stored as a small
	// array sorted by edge byte.
	VariantSparse
	// VariantDense is more than denseThreshold children stored as a
	// 256-bit presence bitmap plus a packed array of edges.
	VariantDense
	// VariantBridge is a short bitmap of zero-extension children plus one
	// longer "tail" edge, for common branch-then-continue shapes.
	// Experimental; only selected when Config.bridgeNodes is set.
	VariantBridge
	// VariantArenaCompact is resident in an allocator page, addressed by
	// page-relative indices; immutable in place, mutation promotes it to
	// Dense or Sparse.
	VariantArenaCompact
)

func (v Variant) String() string {
	switch v {
	case VariantLine:
		return "Line"
	case VariantSparse:
		return "Sparse"
	case VariantDense:
		return "Dense"
	case VariantBridge:
		return "Bridge"
	case VariantArenaCompact:
		return "ArenaCompact"
	default:
		return "Unknown"
	}
}

// edge is one outgoing transition: the byte-compressed extension beyond
// the keying byte (stored separately per variant) and the child it leads
// to.
type edge[V any] struct {
	ext   []byte
	child NodeHandle[V]
}

// trieNode is a single position in the trie (spec §3 "TrieNode"). Only the
// fields relevant to its kind are populated; the rest are zero.
type trieNode[V any] struct {
	refs atomic.Int32

	kind Variant

	hasValue bool
	value    V

	// VariantLine
	lineByte byte
	lineExt  []byte
	lineKid  NodeHandle[V]

	// VariantSparse: parallel, sorted by sparseBytes[i]
	sparseBytes []byte
	sparseEdges []edge[V]

	// VariantDense: popcount-compressed, aligned via denseMask.Rank(byte)
	denseMask  bitmap.EdgeSet256
	denseEdges []edge[V]

	// VariantBridge: up to a handful of zero-extension single-byte
	// children plus one longer tail edge.
	bridgeMask bitmap.EdgeSet256
	bridgeKids []NodeHandle[V]
	bridgeTail byte
	bridgeHas  bool
	bridgeEdge edge[V]

	// VariantArenaCompact
	arenaPtr arena.Ptr
}

// newNode allocates a zero-value node of the given kind from the pool.
func newNode[V any](a *allocator[V], kind Variant) *trieNode[V] {
	n := a.getHeapNode()
	n.kind = kind
	return n
}

// reset clears a node's contents so it can be returned to the pool without
// retaining references to children or values, while keeping any backing
// array capacity.
func (n *trieNode[V]) reset() {
	var zero V
	n.refs.Store(0)
	n.kind = VariantLine
	n.hasValue = false
	n.value = zero
	n.lineByte = 0
	n.lineExt = n.lineExt[:0]
	n.lineKid = NodeHandle[V]{}
	n.sparseBytes = n.sparseBytes[:0]
	n.sparseEdges = n.sparseEdges[:0]
	n.denseMask = bitmap.EdgeSet256{}
	n.denseEdges = n.denseEdges[:0]
	n.bridgeMask = bitmap.EdgeSet256{}
	n.bridgeKids = n.bridgeKids[:0]
	n.bridgeHas = false
	n.bridgeEdge = edge[V]{}
	n.arenaPtr = 0
}

// variant reports the node's current representation.
func (n *trieNode[V]) variant() Variant { return n.kind }

// refcount reports the number of NodeHandles aliasing this node. It is a
// hint used only to gate copy-on-write: Go's garbage collector reclaims the
// node's memory once unreachable regardless of this count, so an
// undercounted refs (a missed release) only costs an unnecessary clone
// later, never a correctness bug.
func (n *trieNode[V]) refcount() int32 { return n.refs.Load() }

// childCount returns the number of outgoing edges, independent of variant.
func (n *trieNode[V]) childCount() int {
	switch n.kind {
	case VariantLine:
		if n.lineKid.valid() {
			return 1
		}
		return 0
	case VariantSparse:
		return len(n.sparseBytes)
	case VariantDense:
		return n.denseMask.Size()
	case VariantBridge:
		c := n.bridgeMask.Size()
		if n.bridgeHas {
			c++
		}
		return c
	case VariantArenaCompact:
		return int(n.arenaPtr.ChildCount())
	default:
		return 0
	}
}

// childForByte returns the edge keyed by b, if any.
func (n *trieNode[V]) childForByte(a *allocator[V], b byte) (edge[V], bool) {
	switch n.kind {
	case VariantLine:
		if n.lineKid.valid() && n.lineByte == b {
			return edge[V]{ext: n.lineExt, child: n.lineKid}, true
		}
		return edge[V]{}, false
	case VariantSparse:
		i, ok := sort.Find(len(n.sparseBytes), func(i int) int { return int(b) - int(n.sparseBytes[i]) })
		if !ok {
			return edge[V]{}, false
		}
		return n.sparseEdges[i], true
	case VariantDense:
		idx, ok := n.denseMask.Locate(uint(b))
		if !ok {
			return edge[V]{}, false
		}
		return n.denseEdges[idx], true
	case VariantBridge:
		if n.bridgeHas && b == n.bridgeTail {
			return n.bridgeEdge, true
		}
		if idx, ok := n.bridgeMask.Locate(uint(b)); ok {
			return edge[V]{child: n.bridgeKids[idx]}, true
		}
		return edge[V]{}, false
	case VariantArenaCompact:
		n.promote(a)
		return n.childForByte(a, b)
	default:
		return edge[V]{}, false
	}
}

// getChildAddrs returns the sorted set of occupied edge bytes.
func (n *trieNode[V]) getChildAddrs() []byte {
	switch n.kind {
	case VariantLine:
		if n.lineKid.valid() {
			return []byte{n.lineByte}
		}
		return nil
	case VariantSparse:
		return append([]byte(nil), n.sparseBytes...)
	case VariantDense:
		bits := n.denseMask.All()
		out := make([]byte, len(bits))
		for i, b := range bits {
			out[i] = byte(b)
		}
		return out
	case VariantBridge:
		bits := n.bridgeMask.All()
		out := make([]byte, 0, len(bits)+1)
		for _, b := range bits {
			out = append(out, byte(b))
		}
		if n.bridgeHas {
			out = append(out, n.bridgeTail)
			sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		}
		return out
	default:
		return nil
	}
}

// childMask returns the 256-bit child-presence map, per spec §4.4
// (Zipper.child_mask).
func (n *trieNode[V]) childMask() bitmap.EdgeSet256 {
	switch n.kind {
	case VariantLine:
		var m bitmap.EdgeSet256
		if n.lineKid.valid() {
			m.MustSet(uint(n.lineByte))
		}
		return m
	case VariantSparse:
		var m bitmap.EdgeSet256
		for _, b := range n.sparseBytes {
			m.MustSet(uint(b))
		}
		return m
	case VariantDense:
		return n.denseMask
	case VariantBridge:
		m := n.bridgeMask
		if n.bridgeHas {
			m.MustSet(uint(n.bridgeTail))
		}
		return m
	default:
		return bitmap.EdgeSet256{}
	}
}

// setChild installs or replaces the edge keyed by b. The node must already
// be unique (refcount <= 1); callers go through NodeHandle.cloneForCow
// first.
func (n *trieNode[V]) setChild(a *allocator[V], b byte, e edge[V]) {
	if n.kind == VariantArenaCompact {
		n.promote(a)
	}

	switch n.kind {
	case VariantLine:
		if n.lineKid.valid() && n.lineByte == b {
			if n.lineKid.n != e.child.n {
				n.lineKid.release()
			}
			n.lineByte, n.lineExt, n.lineKid = b, e.ext, e.child
			return
		}
		if !n.lineKid.valid() {
			n.lineByte, n.lineExt, n.lineKid = b, e.ext, e.child
			return
		}
		// second child: promote out of Line into Sparse.
		n.promoteLineToSparse()
		n.setChild(a, b, e)
	case VariantSparse:
		i, ok := sort.Find(len(n.sparseBytes), func(i int) int { return int(b) - int(n.sparseBytes[i]) })
		if ok {
			if n.sparseEdges[i].child.n != e.child.n {
				n.sparseEdges[i].child.release()
			}
			n.sparseEdges[i] = e
			return
		}
		n.sparseBytes = append(n.sparseBytes, 0)
		copy(n.sparseBytes[i+1:], n.sparseBytes[i:len(n.sparseBytes)-1])
		n.sparseBytes[i] = b
		n.sparseEdges = append(n.sparseEdges, edge[V]{})
		copy(n.sparseEdges[i+1:], n.sparseEdges[i:len(n.sparseEdges)-1])
		n.sparseEdges[i] = e

		if a.config.allDenseNodes || len(n.sparseBytes) > a.config.denseThreshold {
			if a.config.bridgeNodes && n.promoteSparseToBridge() {
				return
			}
			n.promoteSparseToDense()
		}
	case VariantDense:
		if idx, ok := n.denseMask.Locate(uint(b)); ok {
			if n.denseEdges[idx].child.n != e.child.n {
				n.denseEdges[idx].child.release()
			}
			n.denseEdges[idx] = e
			return
		}
		idx := n.denseMask.Rank(uint(b)) + 1
		n.denseMask.MustSet(uint(b))
		n.denseEdges = append(n.denseEdges, edge[V]{})
		copy(n.denseEdges[idx+1:], n.denseEdges[idx:len(n.denseEdges)-1])
		n.denseEdges[idx] = e
	case VariantBridge:
		n.bridgeSetChild(a, b, e)
	}
}

// unsetChild removes the edge keyed by b, if present.
func (n *trieNode[V]) unsetChild(a *allocator[V], b byte) {
	if n.kind == VariantArenaCompact {
		n.promote(a)
	}

	switch n.kind {
	case VariantLine:
		if n.lineKid.valid() && n.lineByte == b {
			n.lineKid.release()
			n.lineKid = NodeHandle[V]{}
			n.lineExt = nil
		}
	case VariantSparse:
		i, ok := sort.Find(len(n.sparseBytes), func(i int) int { return int(b) - int(n.sparseBytes[i]) })
		if !ok {
			return
		}
		n.sparseEdges[i].child.release()
		n.sparseBytes = append(n.sparseBytes[:i], n.sparseBytes[i+1:]...)
		n.sparseEdges = append(n.sparseEdges[:i], n.sparseEdges[i+1:]...)
	case VariantDense:
		idx, ok := n.denseMask.Locate(uint(b))
		if !ok {
			return
		}
		n.denseEdges[idx].child.release()
		n.denseMask.MustClear(uint(b))
		n.denseEdges = append(n.denseEdges[:idx], n.denseEdges[idx+1:]...)
		if !a.config.allDenseNodes && n.childCount() <= a.config.denseThreshold {
			n.demoteDenseToSparse()
		}
	case VariantBridge:
		if n.bridgeHas && b == n.bridgeTail {
			n.bridgeEdge.child.release()
			n.bridgeHas = false
			n.bridgeEdge = edge[V]{}
			return
		}
		if idx, ok := n.bridgeMask.Locate(uint(b)); ok {
			n.bridgeKids[idx].release()
			n.bridgeMask.MustClear(uint(b))
			n.bridgeKids = append(n.bridgeKids[:idx], n.bridgeKids[idx+1:]...)
		}
	}
}

func (n *trieNode[V]) promoteLineToSparse() {
	b, ext, kid := n.lineByte, n.lineExt, n.lineKid
	n.kind = VariantSparse
	n.lineKid = NodeHandle[V]{}
	n.lineExt = nil
	n.sparseBytes = append(n.sparseBytes[:0], b)
	n.sparseEdges = append(n.sparseEdges[:0], edge[V]{ext: ext, child: kid})
}

func (n *trieNode[V]) promoteSparseToDense() {
	n.kind = VariantDense
	n.denseMask = bitmap.EdgeSet256{}
	n.denseEdges = n.denseEdges[:0]
	for i, b := range n.sparseBytes {
		n.denseMask.MustSet(uint(b))
		n.denseEdges = append(n.denseEdges, n.sparseEdges[i])
	}
	n.sparseBytes = n.sparseBytes[:0]
	n.sparseEdges = n.sparseEdges[:0]
}

// promoteSparseToBridge converts a Sparse node into Bridge in place,
// provided at most one stored edge carries a non-empty extension — the
// "handful of zero-extension children plus one long tail" shape Bridge
// packs more cheaply than Dense's flat edge array. Reports whether the
// conversion happened; on false, n is left untouched and the caller should
// fall back to promoteSparseToDense.
func (n *trieNode[V]) promoteSparseToBridge() bool {
	tailIdx := -1
	for i, e := range n.sparseEdges {
		if len(e.ext) == 0 {
			continue
		}
		if tailIdx != -1 {
			return false
		}
		tailIdx = i
	}

	bytesIn, edges := n.sparseBytes, n.sparseEdges
	n.kind = VariantBridge
	n.bridgeMask = bitmap.EdgeSet256{}
	n.bridgeKids = n.bridgeKids[:0]
	n.bridgeHas = false
	n.bridgeEdge = edge[V]{}
	for i, b := range bytesIn {
		if i == tailIdx {
			n.bridgeHas = true
			n.bridgeTail = b
			n.bridgeEdge = edges[i]
			continue
		}
		n.bridgeMask.MustSet(uint(b))
		n.bridgeKids = append(n.bridgeKids, edges[i].child)
	}
	n.sparseBytes = n.sparseBytes[:0]
	n.sparseEdges = n.sparseEdges[:0]
	return true
}

func (n *trieNode[V]) demoteDenseToSparse() {
	bytesOut := n.denseMask.All()
	n.kind = VariantSparse
	n.sparseBytes = n.sparseBytes[:0]
	n.sparseEdges = n.sparseEdges[:0]
	for i, b := range bytesOut {
		n.sparseBytes = append(n.sparseBytes, byte(b))
		n.sparseEdges = append(n.sparseEdges, n.denseEdges[i])
	}
	n.denseMask = bitmap.EdgeSet256{}
	n.denseEdges = n.denseEdges[:0]
}

// bridgeSetChild installs an edge into a Bridge node: zero-extension edges
// pack into the bitmap-addressed child array, and the (at most one) edge
// carrying a non-empty extension becomes the tail.
func (n *trieNode[V]) bridgeSetChild(a *allocator[V], b byte, e edge[V]) {
	if len(e.ext) > 0 {
		if n.bridgeHas && n.bridgeTail != b {
			// a second long edge doesn't fit the Bridge shape; fall back
			// to Sparse and retry there.
			n.bridgeToSparse()
			n.setChild(a, b, e)
			return
		}
		if idx, ok := n.bridgeMask.Locate(uint(b)); ok {
			// b moves from the bitmap-addressed children to the tail.
			if n.bridgeKids[idx].n != e.child.n {
				n.bridgeKids[idx].release()
			}
			n.bridgeMask.MustClear(uint(b))
			n.bridgeKids = append(n.bridgeKids[:idx], n.bridgeKids[idx+1:]...)
		}
		if n.bridgeHas && n.bridgeEdge.child.n != e.child.n {
			n.bridgeEdge.child.release()
		}
		n.bridgeHas = true
		n.bridgeTail = b
		n.bridgeEdge = e
		return
	}

	if n.bridgeHas && n.bridgeTail == b {
		// b moves from the tail to the bitmap-addressed children.
		if n.bridgeEdge.child.n != e.child.n {
			n.bridgeEdge.child.release()
		}
		n.bridgeHas = false
		n.bridgeEdge = edge[V]{}
	}
	if idx, ok := n.bridgeMask.Locate(uint(b)); ok {
		if n.bridgeKids[idx].n != e.child.n {
			n.bridgeKids[idx].release()
		}
		n.bridgeKids[idx] = e.child
		return
	}
	idx := n.bridgeMask.Rank(uint(b)) + 1
	n.bridgeMask.MustSet(uint(b))
	n.bridgeKids = append(n.bridgeKids, NodeHandle[V]{})
	copy(n.bridgeKids[idx+1:], n.bridgeKids[idx:len(n.bridgeKids)-1])
	n.bridgeKids[idx] = e.child
}

func (n *trieNode[V]) bridgeToSparse() {
	n.kind = VariantSparse
	n.sparseBytes = n.sparseBytes[:0]
	n.sparseEdges = n.sparseEdges[:0]
	for _, b := range n.bridgeMask.All() {
		n.sparseBytes = append(n.sparseBytes, byte(b))
		n.sparseEdges = append(n.sparseEdges, edge[V]{child: n.bridgeKids[n.bridgeMask.Rank(b)]})
	}
	if n.bridgeHas {
		n.sparseBytes = append(n.sparseBytes, n.bridgeTail)
		n.sparseEdges = append(n.sparseEdges, n.bridgeEdge)
		sortEdges(n.sparseBytes, n.sparseEdges)
	}
	n.bridgeMask = bitmap.EdgeSet256{}
	n.bridgeKids = n.bridgeKids[:0]
	n.bridgeHas = false
	n.bridgeEdge = edge[V]{}
}

func sortEdges[V any](bs []byte, es []edge[V]) {
	idx := make([]int, len(bs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return bs[idx[i]] < bs[idx[j]] })
	nb := make([]byte, len(bs))
	ne := make([]edge[V], len(es))
	for i, j := range idx {
		nb[i], ne[i] = bs[j], es[j]
	}
	copy(bs, nb)
	copy(es, ne)
}

// promote converts an ArenaCompact node to a heap-regime Sparse or Dense
// node in place (spec §4.1: "mutation promotes it to Dense/Sparse").
func (n *trieNode[V]) promote(a *allocator[V]) {
	if n.kind != VariantArenaCompact {
		return
	}

	var childBytes []byte
	var values []V
	var hasValue bool
	var value V
	if n.arenaPtr.Small() {
		childBytes, values, hasValue, value = a.arena.ReadSmall(n.arenaPtr)
	} else {
		childBytes, values, hasValue, value = a.arena.ReadFull(n.arenaPtr)
	}

	n.hasValue = hasValue
	n.value = value
	n.kind = VariantSparse
	n.sparseBytes = n.sparseBytes[:0]
	n.sparseEdges = n.sparseEdges[:0]
	for i, b := range childBytes {
		child := a.newHandle(newNode(a, VariantLine))
		child.n.hasValue = true
		child.n.value = values[i]
		n.sparseBytes = append(n.sparseBytes, b)
		n.sparseEdges = append(n.sparseEdges, edge[V]{child: child})
	}
	if len(n.sparseBytes) > a.config.denseThreshold {
		n.promoteSparseToDense()
	}
}

// shallowCopy returns a newly allocated node with the same representation
// and edges (children's handles are cloned, bumping their refcounts; the
// edges themselves and the value are copied by value, per spec §4.1
// clone_for_cow: "values and edge list shallow-copied; children's
// refcounts bumped").
func (n *trieNode[V]) shallowCopy(a *allocator[V]) *trieNode[V] {
	cp := newNode(a, n.kind)
	cp.hasValue = n.hasValue
	cp.value = n.value

	switch n.kind {
	case VariantLine:
		cp.lineByte = n.lineByte
		cp.lineExt = append([]byte(nil), n.lineExt...)
		cp.lineKid = n.lineKid.clone()
	case VariantSparse:
		cp.sparseBytes = append([]byte(nil), n.sparseBytes...)
		cp.sparseEdges = make([]edge[V], len(n.sparseEdges))
		for i, e := range n.sparseEdges {
			cp.sparseEdges[i] = edge[V]{ext: append([]byte(nil), e.ext...), child: e.child.clone()}
		}
	case VariantDense:
		cp.denseMask = n.denseMask
		cp.denseEdges = make([]edge[V], len(n.denseEdges))
		for i, e := range n.denseEdges {
			cp.denseEdges[i] = edge[V]{ext: append([]byte(nil), e.ext...), child: e.child.clone()}
		}
	case VariantBridge:
		cp.bridgeMask = n.bridgeMask
		cp.bridgeKids = make([]NodeHandle[V], len(n.bridgeKids))
		for i, k := range n.bridgeKids {
			cp.bridgeKids[i] = k.clone()
		}
		cp.bridgeHas = n.bridgeHas
		cp.bridgeTail = n.bridgeTail
		if n.bridgeHas {
			cp.bridgeEdge = edge[V]{ext: append([]byte(nil), n.bridgeEdge.ext...), child: n.bridgeEdge.child.clone()}
		}
	case VariantArenaCompact:
		cp.arenaPtr = n.arenaPtr
	}
	return cp
}
