// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package arena

import (
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/pathmap-dev/pathmap/internal/bitmap"
)

// SmallNode is the packing algorithm's view of a candidate node: its
// one-byte child indices (the edge bytes it occupies in its parent), its
// values, and whether it carries a value of its own.
type SmallNode[V any] struct {
	ChildBytes []byte
	Values     []V // parallel to ChildBytes; the child edges' resident values, if any are stored inline
	HasValue   bool
	Value      V
}

// page is one 4 KiB arena page. A page is either "full" (exactly one node,
// up to 64 bitmap revisions retained) or "small" (a cohort of small nodes
// sharing one value area, at most one retained revision — small cohorts are
// repacked wholesale rather than revised in place).
type page[V any] struct {
	mu sync.Mutex

	full bool

	// full-page fields
	fullMask      [MaxRevisions]bitmap.EdgeSet256
	fullHasValue  [MaxRevisions]bool
	fullRevision  uint8
	fullRevisions uint8 // number of live revisions, caps at MaxRevisions
	fullValues    []V

	// small-page fields: MaxSmallNodesPerPage one-byte indices shared
	// across the cohort, partitioned by owner.
	smallOwners   [][]byte // per small node: its child bytes, sliced from smallIndex
	smallIndex    []byte   // flat backing array, length <= MaxSmallNodesPerPage
	smallValues   []V      // parallel to smallIndex
	smallHasValue []bool   // per small node, parallel to smallOwners
	smallOwnValue []V      // per small node, parallel to smallOwners
}

// Arena is the page-backed allocator for ArenaCompact nodes.
type Arena[V any] struct {
	mu       sync.Mutex
	pages    []*page[V]
	freelist *bitset.BitSet // set bit == free page slot

	evictThreshold    int
	minEvictThreshold int
	slimPtrs          bool
}

// New creates an empty arena. evictThreshold is the child count at or above
// which a node always gets its own full page; minEvictThreshold is the
// child count below which a node is always eligible for small-cohort
// packing (spec §9: EVICT_THRESHOLD / MIN_EVICT_THRESHOLD). slimPtrs biases
// classification toward the compact small-cohort encoding: a node only
// gets its own full page (and the wider, self-contained pointer that comes
// with one) when it has at least twice evictThreshold children, trading a
// larger shared-page value area for fewer, narrower Ptrs overall.
func New[V any](evictThreshold, minEvictThreshold int, slimPtrs bool) *Arena[V] {
	return &Arena[V]{
		freelist:          bitset.New(0),
		evictThreshold:    evictThreshold,
		minEvictThreshold: minEvictThreshold,
		slimPtrs:          slimPtrs,
	}
}

// smallCohortThreshold returns the effective evictThreshold AllocSmallCohort
// classifies against, widened under slimPtrs to prefer packing.
func (a *Arena[V]) smallCohortThreshold() int {
	if a.slimPtrs {
		return a.evictThreshold * 2
	}
	return a.evictThreshold
}

func (a *Arena[V]) allocPageLocked() uint32 {
	if idx, ok := a.freelist.NextSet(0); ok {
		a.freelist.Clear(idx)
		return uint32(idx)
	}
	idx := uint32(len(a.pages))
	a.pages = append(a.pages, nil)
	return idx
}

// AllocFull stores a single node as its own full page and returns a
// pointer to revision 0.
func (a *Arena[V]) AllocFull(childBytes []byte, values []V, hasValue bool, value V) Ptr {
	a.mu.Lock()
	idx := a.allocPageLocked()
	p := &page[V]{full: true}
	var mask bitmap.EdgeSet256
	for _, b := range childBytes {
		mask.MustSet(uint(b))
	}
	p.fullMask[0] = mask
	p.fullHasValue[0] = hasValue
	p.fullRevisions = 1
	p.fullValues = append(append([]V(nil), values...), value)
	a.pages[idx] = p
	a.mu.Unlock()

	return New(false, false, 0, uint8(len(childBytes)), idx)
}

// ReviseFull writes a new bitmap revision into an existing full page,
// in place, without allocating a new page. Revision slots are reused in a
// ring of MaxRevisions, so once all of them are in use each new revision
// overwrites the oldest. The returned pointer carries the eviction bit from
// the point the page's slots are all in use; pointers handed out earlier
// are not changed.
func (a *Arena[V]) ReviseFull(ptr Ptr, childBytes []byte, values []V, hasValue bool, value V) Ptr {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pages[ptr.PageIndex()]
	p.mu.Lock()
	defer p.mu.Unlock()

	nextRev := (p.fullRevision + 1) % MaxRevisions
	var mask bitmap.EdgeSet256
	for _, b := range childBytes {
		mask.MustSet(uint(b))
	}
	p.fullMask[nextRev] = mask
	p.fullHasValue[nextRev] = hasValue
	p.fullRevision = nextRev
	if p.fullRevisions < MaxRevisions {
		p.fullRevisions++
	}
	p.fullValues = append(append([]V(nil), values...), value)

	evicted := p.fullRevisions >= MaxRevisions
	return New(evicted, false, nextRev, uint8(len(childBytes)), ptr.PageIndex())
}

// packGroup is one shared page's worth of a small-node packing pass.
type packGroup[V any] struct {
	nodes []int // indices into the candidate slice
}

// AllocSmallCohort implements alloc_upto_64 (spec §4.2): classify each
// candidate as small (child count below smallCohortThreshold: evictThreshold,
// or twice that under slimPtrs) or needing its own
// page; pack the small cohort onto shared pages of at most
// MaxSmallNodesPerPage total child slots, splitting into multiple pages
// when the cohort doesn't fit on one.
func (a *Arena[V]) AllocSmallCohort(nodes []SmallNode[V]) []Ptr {
	out := make([]Ptr, len(nodes))

	threshold := a.smallCohortThreshold()
	var small, big []int
	for i, n := range nodes {
		if len(n.ChildBytes) >= threshold {
			big = append(big, i)
		} else {
			small = append(small, i)
		}
	}

	for _, i := range big {
		n := nodes[i]
		out[i] = a.AllocFull(n.ChildBytes, n.Values, n.HasValue, n.Value)
	}

	for _, group := range a.packSmallGroups(nodes, small) {
		a.packOnePage(nodes, group, out)
	}

	return out
}

// packSmallGroups splits the small cohort into groups that each fit within
// MaxSmallNodesPerPage total child slots.
//
// Each pass walks the remaining nodes in order and adds a node to the
// current group when it fits the slot budget and its child-byte set is
// disjoint from every byte already placed (checked with bitmap
// intersection); a node that does not fit is carried over to the next
// pass, which starts a new group. A pass that places nothing gives the
// first carried-over node a group of its own.
func (a *Arena[V]) packSmallGroups(nodes []SmallNode[V], small []int) [][]int {
	var groups [][]int

	remaining := append([]int(nil), small...)
	for len(remaining) > 0 {
		var group []int
		var used bitmap.EdgeSet256
		var next []int

		for _, i := range remaining {
			n := nodes[i]
			var want bitmap.EdgeSet256
			for _, b := range n.ChildBytes {
				want.MustSet(uint(b))
			}

			if used.Size()+len(n.ChildBytes) <= MaxSmallNodesPerPage && !used.IntersectsAny(&want) {
				group = append(group, i)
				used = used.Union(&want)
				continue
			}

			// Memory-heavy fallback: this node doesn't fit the current
			// group's slot budget or collides with an already-placed
			// node's bytes (two nodes cannot share a byte slot in one
			// page's flat index); carry it to the next pass.
			next = append(next, i)
		}

		if len(group) == 0 && len(next) > 0 {
			// Nothing fit at all (e.g. a single node already at the
			// slot cap) — give it, and only it, a page of its own.
			group = append(group, next[0])
			next = next[1:]
		}

		groups = append(groups, group)
		remaining = next
	}

	return groups
}

func (a *Arena[V]) packOnePage(nodes []SmallNode[V], group []int, out []Ptr) {
	a.mu.Lock()
	idx := a.allocPageLocked()
	p := &page[V]{
		full:        false,
		smallOwners: make([][]byte, 0, len(group)),
	}

	for _, i := range group {
		n := nodes[i]
		start := len(p.smallIndex)
		p.smallIndex = append(p.smallIndex, n.ChildBytes...)
		p.smallValues = append(p.smallValues, n.Values...)
		p.smallOwners = append(p.smallOwners, p.smallIndex[start:len(p.smallIndex)])
		p.smallHasValue = append(p.smallHasValue, n.HasValue)
		p.smallOwnValue = append(p.smallOwnValue, n.Value)
	}
	a.pages[idx] = p
	a.mu.Unlock()

	for slot, i := range group {
		out[i] = New(false, true, 0, uint8(len(nodes[i].ChildBytes)), idx<<8|uint32(slot))
	}
}

// ReadFull returns the current child-byte set, values, and the node's own
// value (if any) for a full-page pointer.
func (a *Arena[V]) ReadFull(ptr Ptr) (childBytes []byte, values []V, hasValue bool, value V) {
	a.mu.Lock()
	p := a.pages[ptr.PageIndex()]
	a.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	mask := p.fullMask[ptr.Revision()]
	for _, b := range mask.All() {
		childBytes = append(childBytes, byte(b))
	}
	hasValue = p.fullHasValue[ptr.Revision()]
	values = append([]V(nil), p.fullValues[:len(p.fullValues)-1]...)
	value = p.fullValues[len(p.fullValues)-1]
	return
}

// ReadSmall returns the child-byte set, values, and the node's own value
// (if any) for a small-cohort pointer's owning slot.
func (a *Arena[V]) ReadSmall(ptr Ptr) (childBytes []byte, values []V, hasValue bool, value V) {
	pageIdx := ptr.PageIndex() >> 8
	slot := int(ptr.PageIndex() & 0xff)

	a.mu.Lock()
	p := a.pages[pageIdx]
	a.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	owner := p.smallOwners[slot]
	childBytes = append([]byte(nil), owner...)
	values = make([]V, len(owner))
	// locate the owner's slice within the flat index to recover parallel values
	base := 0
	for s := 0; s < slot; s++ {
		base += len(p.smallOwners[s])
	}
	copy(values, p.smallValues[base:base+len(owner)])
	hasValue = p.smallHasValue[slot]
	value = p.smallOwnValue[slot]
	return
}

// Free releases a page back to the freelist. Callers must guarantee no
// live pointer still references it. The heap-regime promotion path reads
// pages but does not free them.
func (a *Arena[V]) Free(pageIndex uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freelist.Set(uint(pageIndex))
}

// PageCount reports how many pages (free or not) the arena has allocated.
// PathMap.Stats does not include it.
func (a *Arena[V]) PageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages)
}
