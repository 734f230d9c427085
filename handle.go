// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

// NodeHandle is an owning, atomically reference-counted handle to a
// trieNode (spec §3). Handles may be shared across multiple maps and
// across goroutines; a handle whose node has refcount > 1 forces
// copy-on-write on any structural mutation.
//
// The zero NodeHandle is valid and represents "no node" (used for an
// absent child edge).
type NodeHandle[V any] struct {
	n *trieNode[V]
}

func newHandleNoIncrement[V any](n *trieNode[V]) NodeHandle[V] {
	if n != nil {
		n.refs.Store(1)
	}
	return NodeHandle[V]{n: n}
}

// valid reports whether the handle references a node.
func (h NodeHandle[V]) valid() bool { return h.n != nil }

// clone is O(1): it bumps the refcount and returns a new handle aliasing
// the same node.
func (h NodeHandle[V]) clone() NodeHandle[V] {
	if h.n != nil {
		h.n.refs.Add(1)
	}
	return h
}

// release decrements the refcount. This never frees memory directly —
// Go's garbage collector reclaims the trieNode once it becomes otherwise
// unreachable — it only narrows the window in which a future mutation must
// clone rather than mutate in place. Forgetting a release therefore costs
// performance (one extra clone) but never correctness.
func (h NodeHandle[V]) release() {
	if h.n != nil {
		h.n.refs.Add(-1)
	}
}

// refcount reports the number of outstanding NodeHandles aliasing this
// node.
func (h NodeHandle[V]) refcount() int32 {
	if h.n == nil {
		return 0
	}
	return h.n.refcount()
}

// variant reports the node's representation, or VariantLine for an empty
// handle (there is no node to report on).
func (h NodeHandle[V]) variant() Variant {
	if h.n == nil {
		return VariantLine
	}
	return h.n.variant()
}

// cloneForCow is the central CoW primitive (spec §4.1): if the node is
// uniquely referenced, mutation may proceed on it directly; otherwise a
// structural copy is allocated with refcount 1 and returned.
func (h NodeHandle[V]) cloneForCow(a *allocator[V]) NodeHandle[V] {
	if h.n == nil {
		return newHandleNoIncrement(newNode(a, VariantLine))
	}
	if h.n.refcount() <= 1 {
		return h
	}
	return newHandleNoIncrement(h.n.shallowCopy(a))
}
