// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import "github.com/pathmap-dev/pathmap/internal/bitmap"

// CursorState describes where a zipper's focus sits relative to trie
// structure (spec §4.4).
type CursorState int

const (
	// AtNode means the focus sits exactly on a node boundary.
	AtNode CursorState = iota
	// MidEdge means the focus sits partway through an edge's extension;
	// the node at the far end of the edge hasn't been reached yet.
	MidEdge
	// OffTrie means the path descended beyond any existing structure.
	OffTrie
)

// zframe records one edge taken on the way down from the root, kept so the
// zipper can splice a mutated focus back up to the root (spec §4.4) and so
// ascend can retrace the edge's extension one byte at a time.
type zframe[V any] struct {
	node  NodeHandle[V] // the node that owned this edge
	b     byte
	ext   []byte
	child NodeHandle[V] // the node reached by fully consuming b+ext
}

// midState describes an in-progress edge traversal that hasn't yet
// consumed the whole extension.
type midState[V any] struct {
	parent NodeHandle[V]
	b      byte
	ext    []byte
	pos    int // bytes of ext consumed so far, 0 <= pos < len(ext)
	child  NodeHandle[V]
}

// cursor is the navigation state shared by ReadZipper and WriteZipper.
type cursor[V any] struct {
	alloc *allocator[V]

	path   []byte
	frames []zframe[V]
	cur    NodeHandle[V] // valid focus when state is AtNode
	mid    *midState[V]  // non-nil when state is MidEdge

	offTrie  bool
	offBytes []byte // the off-trie suffix of path, beyond existing structure
}

// State reports the zipper's current CursorState.
func (z *cursor[V]) State() CursorState {
	switch {
	case z.offTrie:
		return OffTrie
	case z.mid != nil:
		return MidEdge
	default:
		return AtNode
	}
}

// Path returns the full byte path from the root to the focus.
func (z *cursor[V]) Path() []byte {
	return append([]byte(nil), z.path...)
}

// DescendByte moves the focus one byte further from the root, returning
// whether that byte landed on existing trie structure.
func (z *cursor[V]) DescendByte(b byte) bool {
	if z.offTrie {
		z.offBytes = append(z.offBytes, b)
		z.path = append(z.path, b)
		return false
	}

	if z.mid != nil {
		if z.mid.pos < len(z.mid.ext) && z.mid.ext[z.mid.pos] == b {
			z.mid.pos++
			z.path = append(z.path, b)
			if z.mid.pos == len(z.mid.ext) {
				z.frames = append(z.frames, zframe[V]{node: z.mid.parent, b: z.mid.b, ext: z.mid.ext, child: z.mid.child})
				z.cur = z.mid.child
				z.mid = nil
			}
			return true
		}
		z.offTrie = true
		z.offBytes = append(z.offBytes, b)
		z.path = append(z.path, b)
		return false
	}

	if !z.cur.valid() {
		z.offTrie = true
		z.offBytes = append(z.offBytes, b)
		z.path = append(z.path, b)
		return false
	}

	e, ok := z.cur.n.childForByte(z.alloc, b)
	if !ok {
		z.offTrie = true
		z.offBytes = append(z.offBytes, b)
		z.path = append(z.path, b)
		return false
	}

	z.path = append(z.path, b)
	if len(e.ext) == 0 {
		z.frames = append(z.frames, zframe[V]{node: z.cur, b: b, child: e.child})
		z.cur = e.child
		return true
	}
	z.mid = &midState[V]{parent: z.cur, b: b, ext: e.ext, pos: 0, child: e.child}
	return true
}

// DescendTo moves the focus along every byte of path in turn, stopping
// (and going off-trie for the remainder) as soon as one byte fails to
// match existing structure. It reports whether the whole path was on
// existing structure.
func (z *cursor[V]) DescendTo(path []byte) bool {
	ok := true
	for _, b := range path {
		if !z.DescendByte(b) {
			ok = false
		}
	}
	return ok
}

// ascendOne moves the focus one byte toward the root, reporting whether it
// moved (it cannot move past the root).
func (z *cursor[V]) ascendOne() bool {
	if z.offTrie {
		if len(z.offBytes) == 0 {
			return false
		}
		z.offBytes = z.offBytes[:len(z.offBytes)-1]
		z.path = z.path[:len(z.path)-1]
		if len(z.offBytes) == 0 {
			z.offTrie = false
		}
		return true
	}

	if z.mid != nil {
		if z.mid.pos > 0 {
			z.mid.pos--
			z.path = z.path[:len(z.path)-1]
			return true
		}
		z.path = z.path[:len(z.path)-1]
		z.cur = z.mid.parent
		z.mid = nil
		return true
	}

	if len(z.frames) == 0 {
		return false
	}
	top := z.frames[len(z.frames)-1]
	z.frames = z.frames[:len(z.frames)-1]
	z.path = z.path[:len(z.path)-1]
	if len(top.ext) > 0 {
		z.mid = &midState[V]{parent: top.node, b: top.b, ext: top.ext, pos: len(top.ext) - 1, child: top.child}
		return true
	}
	z.cur = top.node
	return true
}

// Ascend moves the focus up to n bytes toward the root, stopping early at
// the root, and returns how many bytes it actually moved.
func (z *cursor[V]) Ascend(n int) int {
	moved := 0
	for i := 0; i < n; i++ {
		if !z.ascendOne() {
			break
		}
		moved++
	}
	return moved
}

// AscendToByte ascends until the byte immediately above the focus equals b,
// or the root is reached. It returns whether such a byte was found.
func (z *cursor[V]) AscendToByte(b byte) bool {
	for {
		if len(z.path) == 0 {
			return false
		}
		last := z.path[len(z.path)-1]
		if !z.ascendOne() {
			return false
		}
		if last == b {
			return true
		}
	}
}

// Value returns the value stored at the focus, if the focus sits exactly
// on a node that carries one.
func (z *cursor[V]) Value() (V, bool) {
	var zero V
	if z.State() != AtNode || !z.cur.valid() {
		return zero, false
	}
	return z.cur.n.value, z.cur.n.hasValue
}

// IsValue reports whether the focus carries a value.
func (z *cursor[V]) IsValue() bool {
	_, ok := z.Value()
	return ok
}

// IsDangling reports whether the focus has descended past existing
// structure (spec §4.4).
func (z *cursor[V]) IsDangling() bool {
	return z.offTrie
}

// IsEmptySpace reports whether the focus sits on existing structure but
// carries neither a value nor any children.
func (z *cursor[V]) IsEmptySpace() bool {
	if z.State() != AtNode || !z.cur.valid() {
		return false
	}
	return !z.cur.n.hasValue && z.cur.n.childCount() == 0
}

// ChildMask reports which bytes lead to children of the focus, when the
// focus sits on a node; it is empty mid-edge or off-trie.
func (z *cursor[V]) ChildMask() bitmap.EdgeSet256 {
	if z.State() != AtNode || !z.cur.valid() {
		return bitmap.EdgeSet256{}
	}
	return z.cur.n.childMask()
}

// ReadZipper is a read-only cursor into a PathMap (spec §4.4). Borrowed
// zippers (the common case, constructed via PathMap.ReadZipper) observe the
// map's live root; owned zippers hold their own NodeHandle clone of the
// focus subtree and may outlive the map that spawned them.
type ReadZipper[V any] struct {
	cursor[V]
}

// ReadZipper returns a borrowed read-only cursor rooted at path.
func (m *PathMap[V]) ReadZipper(path []byte) *ReadZipper[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z := &ReadZipper[V]{cursor: cursor[V]{alloc: m.alloc, cur: m.root}}
	z.DescendTo(path)
	return z
}

// Fork returns an owned ReadZipper holding its own reference to the
// current focus subtree, detached from the originating map's lifetime.
func (z *ReadZipper[V]) Fork() *ReadZipper[V] {
	var focus NodeHandle[V]
	switch z.State() {
	case AtNode:
		focus = z.cur.clone()
	case MidEdge:
		focus = z.mid.child.clone()
	default:
		focus = NodeHandle[V]{}
	}
	return &ReadZipper[V]{cursor: cursor[V]{alloc: z.alloc, cur: focus, path: z.Path()}}
}

// writeCommit is the commit surface a WriteZipper mutates through:
// setRoot installs a new root after a splice, guarded however the
// originating PathMap or ZipperHead needs.
type writeCommit[V any] func(NodeHandle[V])

// WriteZipper is a mutable cursor into a PathMap (spec §4.4, §4.5).
// Mutating calls clone nodes along the path to the root on their first
// write (spec §4.1's clone_for_cow discipline); because cloneForCow is a
// no-op once a node is uniquely owned, later writes through the same
// zipper reuse that already-private chain without additional allocation.
type WriteZipper[V any] struct {
	cursor[V]
	setRoot   writeCommit[V]
	onRelease func()
}

// WriteZipper returns a borrowed write cursor rooted at path, under
// exclusive access to m (spec §4.4: mutable access is the caller's
// responsibility to serialize, except when issued through a ZipperHead).
func (m *PathMap[V]) WriteZipper(path []byte) *WriteZipper[V] {
	m.mu.Lock()
	root := m.root
	m.mu.Unlock()
	z := &WriteZipper[V]{
		cursor: cursor[V]{alloc: m.alloc, cur: root},
		setRoot: func(h NodeHandle[V]) {
			m.mu.Lock()
			m.root = h
			m.size = countEntries(m.alloc, h)
			m.mu.Unlock()
		},
	}
	z.DescendTo(path)
	return z
}

// Close releases any bookkeeping (e.g. a ZipperHead's exclusivity record)
// associated with this zipper. It does not undo any committed mutation.
func (z *WriteZipper[V]) Close() {
	if z.onRelease != nil {
		z.onRelease()
		z.onRelease = nil
	}
}

// ensureUniqueFocus makes the focus a uniquely-owned, mutable node,
// materializing mid-edge splits or off-trie chains as needed.
func (z *WriteZipper[V]) ensureUniqueFocus() {
	switch {
	case z.offTrie:
		z.materializeOffTrie()
	case z.mid != nil:
		z.materializeNode()
	case !z.cur.valid():
		z.cur = z.alloc.newHandle(newNode(z.alloc, VariantLine))
	default:
		z.cur = z.cur.cloneForCow(z.alloc)
	}
}

// materializeNode turns a mid-edge focus into a real node boundary by
// splitting the edge at the current offset, pushing the new split node's
// parent onto the frame stack.
func (z *WriteZipper[V]) materializeNode() {
	mid := z.mid
	parent := mid.parent.cloneForCow(z.alloc)

	split := newLineHandle(z.alloc)
	split.n.setChild(z.alloc, mid.ext[mid.pos], edge[V]{
		ext:   append([]byte(nil), mid.ext[mid.pos+1:]...),
		child: mid.child.clone(),
	})

	headExt := append([]byte(nil), mid.ext[:mid.pos]...)
	parent.n.setChild(z.alloc, mid.b, edge[V]{ext: headExt, child: split})

	z.frames = append(z.frames, zframe[V]{node: parent, b: mid.b, ext: headExt, child: split})
	z.cur = split
	z.mid = nil
}

// materializeOffTrie creates a single fresh, prefix-compressed edge
// spanning the whole off-trie suffix, mirroring how insertAt grows new
// structure.
func (z *WriteZipper[V]) materializeOffTrie() {
	if z.mid != nil {
		z.materializeNode()
	} else if !z.cur.valid() {
		z.cur = z.alloc.newHandle(newNode(z.alloc, VariantLine))
	} else {
		z.cur = z.cur.cloneForCow(z.alloc)
	}

	if len(z.offBytes) > 0 {
		b := z.offBytes[0]
		leaf := newLineHandle(z.alloc)
		ext := append([]byte(nil), z.offBytes[1:]...)
		z.cur.n.setChild(z.alloc, b, edge[V]{ext: ext, child: leaf})
		z.frames = append(z.frames, zframe[V]{node: z.cur, b: b, ext: ext, child: leaf})
		z.cur = leaf
	}
	z.offTrie = false
	z.offBytes = nil
}

func newLineHandle[V any](a *allocator[V]) NodeHandle[V] {
	return a.newHandle(newNode(a, VariantLine))
}

// spliceUp commits the (already-mutated) focus back up through every
// recorded ancestor frame to the root, cloning each ancestor only if it
// isn't already uniquely owned.
func (z *WriteZipper[V]) spliceUp() {
	child := z.cur
	for i := len(z.frames) - 1; i >= 0; i-- {
		f := &z.frames[i]
		parent := f.node.cloneForCow(z.alloc)
		parent.n.setChild(z.alloc, f.b, edge[V]{ext: f.ext, child: child})
		f.child = child
		f.node = parent
		child = parent
	}
	z.setRoot(child)
}

// SetValue stores val at the focus, splitting or extending trie structure
// as needed, and returns the previous value and whether one existed.
func (z *WriteZipper[V]) SetValue(val V) (V, bool) {
	z.ensureUniqueFocus()
	old, existed := z.cur.n.value, z.cur.n.hasValue
	z.cur.n.hasValue = true
	z.cur.n.value = val
	z.spliceUp()
	return old, existed
}

// RemoveValue clears the value at the focus, if any, and returns it.
//
// Unlike PathMap.Remove, this does not collapse a now-empty focus back
// into its parent edge — the empty node stays in place until some later
// mutation revisits it. Point removal through PathMap.Remove still keeps
// the stronger compaction guarantee; this is a deliberate simplification
// for the zipper's single-focus view, where collapsing would silently
// move the caller's focus to its parent.
func (z *WriteZipper[V]) RemoveValue() (V, bool) {
	var zero V
	if z.State() != AtNode || !z.cur.valid() || !z.cur.n.hasValue {
		return zero, false
	}
	z.cur = z.cur.cloneForCow(z.alloc)
	old := z.cur.n.value
	z.cur.n.hasValue = false
	z.cur.n.value = zero
	z.spliceUp()
	return old, true
}

// Graft replaces the focus's entire subtree (value and children) with
// src, consuming one reference to it.
func (z *WriteZipper[V]) Graft(src NodeHandle[V]) {
	z.ensureUniqueFocus()
	z.replaceFocus(src)
}

// GraftMap grafts other's entire content at the focus (spec §4.5).
func (z *WriteZipper[V]) GraftMap(other *PathMap[V]) {
	other.mu.RLock()
	src := other.root.clone()
	other.mu.RUnlock()
	z.Graft(src)
}

// TakeMap detaches the focus's subtree into a brand-new PathMap, leaving
// the focus empty.
//
// This hands the focus's existing handle straight to the new map rather
// than cloning-then-clearing it in place: clone is a refcount bump, not a
// copy, so mutating z.cur.n after cloning it would have corrupted the
// handle just given away, since both would alias the same trieNode.
func (z *WriteZipper[V]) TakeMap() *PathMap[V] {
	z.ensureUniqueFocus()
	taken := z.cur
	z.cur = z.alloc.newHandle(newNode(z.alloc, VariantLine))
	z.spliceUp()
	return newPathMapFromRoot(z.alloc, taken)
}

// combine materializes the focus to a concrete, uniquely-owned node (so
// the subtree handed to combineFn is exactly what the focus denotes, even
// mid-edge or off-trie) and replaces it with combineFn's result.
func (z *WriteZipper[V]) combine(other *PathMap[V], combineFn func(a *allocator[V], l, r NodeHandle[V]) NodeHandle[V]) {
	z.ensureUniqueFocus()
	other.mu.RLock()
	r := other.root
	result := combineFn(z.alloc, z.cur, r)
	other.mu.RUnlock()
	z.replaceFocus(result)
}

// replaceFocus installs a freshly computed subtree (already holding its
// own reference) at the already-materialized focus.
func (z *WriteZipper[V]) replaceFocus(h NodeHandle[V]) {
	if z.cur.valid() {
		z.cur.release()
	}
	z.cur = h
	z.spliceUp()
}

// JoinMap combines other's content into the focus via Join (spec §4.6).
func (z *WriteZipper[V]) JoinMap(other *PathMap[V]) { z.combine(other, joinNode[V]) }

// MeetMap combines other's content into the focus via Meet.
func (z *WriteZipper[V]) MeetMap(other *PathMap[V]) { z.combine(other, meetNode[V]) }

// SubtractMap combines other's content into the focus via Subtract.
func (z *WriteZipper[V]) SubtractMap(other *PathMap[V]) { z.combine(other, subtractNode[V]) }

// RestrictMap combines other's content into the focus via Restrict.
func (z *WriteZipper[V]) RestrictMap(other *PathMap[V]) { z.combine(other, restrictNode[V]) }

// DropHead replaces the focus's subtree with its own drop_head(n) (spec
// §4.6, §8 scenario 5).
func (z *WriteZipper[V]) DropHead(n int) {
	z.ensureUniqueFocus()
	dropped := dropAtDepth(z.alloc, z.cur, n)
	z.replaceFocus(dropped)
}
