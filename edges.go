// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

// commonPrefixLen returns the length of the common prefix of a and b.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// collapseEdge merges away a run of valueless, single-child nodes beyond e,
// folding their keying bytes and extensions into e.ext so that removal never
// leaves a degenerate unary chain behind (spec §4.3: "collapsing now-
// childless, valueless nodes and merging single-child chains back into Line
// edges").
func collapseEdge[V any](a *allocator[V], e edge[V]) edge[V] {
	for {
		n := e.child.n
		if n == nil || n.hasValue || n.childCount() != 1 {
			return e
		}
		addrs := n.getChildAddrs()
		b := addrs[0]
		sub, ok := n.childForByte(a, b)
		if !ok {
			return e
		}
		newExt := make([]byte, 0, len(e.ext)+1+len(sub.ext))
		newExt = append(newExt, e.ext...)
		newExt = append(newExt, b)
		newExt = append(newExt, sub.ext...)
		newChild := sub.child.clone()
		e.child.release()
		e = edge[V]{ext: newExt, child: newChild}
	}
}
