// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import "sync"

// ZipperHead mediates concurrent, disjoint-region access to a PathMap
// (spec §5): it hands out zippers rooted at caller-chosen paths, refusing
// any request whose path is a prefix of, or extends, an already
// outstanding path. Two zippers issued for "a/b" and "a/c" may proceed
// concurrently; "a" and "a/b" may not, since "a" reaches everything under
// "a/b".
//
// Root-commit serialization is coarser than the spec's lock-free
// disjoint-region protocol: every WriteZipper issued by a head shares the
// head's mutex for its final splice back to the root, so concurrent
// writers still do all of their cloning and mutation unlocked and only
// briefly contend at commit time. See DESIGN.md for the tradeoff.
type ZipperHead[V any] struct {
	m *PathMap[V]

	mu          sync.Mutex
	outstanding []outstandingPath
}

type outstandingPath struct {
	path  string
	write bool
}

// OutstandingZipper describes one currently-outstanding zipper lease, for
// debugging ZipperHead exclusivity violations.
type OutstandingZipper struct {
	Path  []byte
	Write bool
}

// OutstandingZippers returns a snapshot of every zipper lease this head has
// granted and not yet released, via ReadZipperAt/WriteZipperAt and their
// matching release. It always returns nil unless the originating PathMap
// was built with WithZipperTracking: copying the lease list on every call
// is a debugging aid, not something every head should pay for.
func (h *ZipperHead[V]) OutstandingZippers() []OutstandingZipper {
	if !h.m.alloc.config.zipperTracking {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]OutstandingZipper, len(h.outstanding))
	for i, o := range h.outstanding {
		out[i] = OutstandingZipper{Path: []byte(o.path), Write: o.write}
	}
	return out
}

// ZipperHead returns a head mediating exclusive access to m's paths for
// its own lifetime. The caller should not otherwise mutate m directly
// while the head is in use.
func (m *PathMap[V]) ZipperHead() *ZipperHead[V] {
	return &ZipperHead[V]{m: m}
}

func overlapsPath(a, b string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[:n] == b[:n]
}

func (h *ZipperHead[V]) checkAndAdd(path []byte, write bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := string(path)
	for _, o := range h.outstanding {
		if !overlapsPath(o.path, s) {
			continue
		}
		if write || o.write {
			return ExclusivityViolation(path)
		}
	}
	h.outstanding = append(h.outstanding, outstandingPath{path: s, write: write})
	return nil
}

func (h *ZipperHead[V]) releasePath(path []byte, write bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := string(path)
	for i, o := range h.outstanding {
		if o.path == s && o.write == write {
			h.outstanding = append(h.outstanding[:i], h.outstanding[i+1:]...)
			return
		}
	}
}

// ReadZipperAt returns a read-only zipper rooted at path, or an
// ExclusivityViolation if an overlapping write zipper is currently
// outstanding.
func (h *ZipperHead[V]) ReadZipperAt(path []byte) (*ReadZipper[V], error) {
	if err := h.checkAndAdd(path, false); err != nil {
		return nil, err
	}
	z := h.m.ReadZipper(path)
	return z, nil
}

// ReleaseReadZipperAt releases the outstanding-path record taken out by
// ReadZipperAt for the same path. Callers must pass the same path given to
// ReadZipperAt.
func (h *ZipperHead[V]) ReleaseReadZipperAt(path []byte) {
	h.releasePath(path, false)
}

// WriteZipperAt returns a write zipper rooted at path, or an
// ExclusivityViolation if any overlapping zipper — read or write — is
// currently outstanding. Calling Close on the returned zipper releases the
// exclusivity record.
//
// The zipper navigates its initial view from a snapshot of the root taken
// at call time, but never commits that snapshot back wholesale: every
// mutating call re-grafts the zipper's own exclusively-owned subtree into
// whatever the live root is at that instant (see graftAt), so concurrent
// writers to sibling regions that happen to share an ancestor node never
// lose each other's writes.
func (h *ZipperHead[V]) WriteZipperAt(path []byte) (*WriteZipper[V], error) {
	if err := h.checkAndAdd(path, true); err != nil {
		return nil, err
	}

	h.mu.Lock()
	root := h.m.root
	h.mu.Unlock()

	pathCopy := append([]byte(nil), path...)
	z := &WriteZipper[V]{cursor: cursor[V]{alloc: h.m.alloc, cur: root}}
	z.DescendTo(path)
	normalizeHeadAnchor(h.m.alloc, &z.cursor, pathCopy)

	z.setRoot = func(focus NodeHandle[V]) {
		h.mu.Lock()
		h.m.root = graftAt(h.m.alloc, h.m.root, pathCopy, focus)
		h.m.size = countEntries(h.m.alloc, h.m.root)
		h.mu.Unlock()
	}
	z.onRelease = func() { h.releasePath(pathCopy, true) }
	return z, nil
}

// normalizeHeadAnchor discards whatever ancestor state the initial
// DescendTo(path) captured from the root snapshot, keeping only what lies
// at or below path itself.
//
// ZipperHead's prefix-overlap exclusivity guarantees that no sibling path
// it could concurrently grant diverges at or past path's own length, so
// content there is exclusively ours and safe to keep as read. Anything
// above that — an ancestor node reached via a shorter common prefix — may
// be shared with a sibling's region and mutated concurrently, so it must
// never be cloned-and-spliced from a stale read; graftAt re-derives it
// fresh from the live root at commit time instead.
func normalizeHeadAnchor[V any](a *allocator[V], c *cursor[V], path []byte) {
	switch {
	case c.mid != nil:
		// path lands partway through an edge that extends beyond path's
		// own length. mid.parent is the shared-ancestor risk; mid.ext
		// from pos onward and mid.child are exclusively ours, so
		// repackage them under a disposable local node instead.
		mid := c.mid
		placeholder := a.newHandle(newNode(a, VariantLine))
		placeholder.n.setChild(a, mid.ext[mid.pos], edge[V]{
			ext:   append([]byte(nil), mid.ext[mid.pos+1:]...),
			child: mid.child.clone(),
		})
		c.cur, c.mid, c.frames = placeholder, nil, nil

	case c.offTrie:
		// Real structure ran out strictly before path's own length, so
		// nothing at path can be trusted from this read — the node
		// where it stopped may itself be a shared ancestor. Treat path
		// as though none of it existed yet; graftAt will discover
		// whatever of it is still real when it commits.
		c.cur, c.frames = NodeHandle[V]{}, nil
		c.offBytes = append([]byte(nil), path...)

	default:
		// AtNode exactly at path's own length: no sibling grant can
		// reach this depth, so the node is exclusively ours.
		c.frames = nil
	}
}

// graftAt installs focus as the subtree reached by following path from
// root, cloning-for-cow and splitting edges as needed, and returns the new
// root. It is how a ZipperHead-issued WriteZipper commits: rather than
// trusting the ancestor chain its own stale root snapshot produced, it
// re-descends path against whatever the live root currently is, so a
// concurrent sibling's edit to a shared ancestor is preserved instead of
// overwritten.
func graftAt[V any](a *allocator[V], root NodeHandle[V], path []byte, focus NodeHandle[V]) NodeHandle[V] {
	if len(path) == 0 {
		root.release()
		return focus
	}

	h2 := root.cloneForCow(a)
	b, tail := path[0], path[1:]
	e, ok := h2.n.childForByte(a, b)
	if !ok {
		h2.n.setChild(a, b, edge[V]{ext: append([]byte(nil), tail...), child: focus})
		return h2
	}

	common := commonPrefixLen(e.ext, tail)
	if common == len(e.ext) {
		newChild := graftAt(a, e.child, tail[common:], focus)
		h2.n.setChild(a, b, edge[V]{ext: e.ext, child: newChild})
		return h2
	}

	// path consumes only part of this edge: split it.
	mid := a.newHandle(newNode(a, VariantLine))
	mid.n.setChild(a, e.ext[common], edge[V]{
		ext:   append([]byte(nil), e.ext[common+1:]...),
		child: e.child.clone(),
	})
	headExt := append([]byte(nil), tail[:common]...)

	if common == len(tail) {
		// path ends exactly at the split boundary. focus is the
		// zipper's own exclusively-owned view of everything at and
		// below path, which already carries this edge's continuation
		// as part of its own structure (normalizeHeadAnchor built it
		// that way), so it replaces mid outright rather than nesting
		// beneath it.
		mid.release()
		h2.n.setChild(a, b, edge[V]{ext: headExt, child: focus})
		return h2
	}

	// path has more bytes beyond the split point. A legitimately
	// disjoint grant can't actually reach here — that would mean this
	// edge's stored bytes disagree with path's own, which only happens
	// if a sibling wrote under this exact prefix, contradicting
	// exclusivity — but handle it structurally rather than assume it
	// away.
	mid.n.setChild(a, tail[common], edge[V]{ext: append([]byte(nil), tail[common+1:]...), child: focus})
	h2.n.setChild(a, b, edge[V]{ext: headExt, child: mid})
	return h2
}
