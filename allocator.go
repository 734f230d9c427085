// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"sync"
	"sync/atomic"

	"github.com/pathmap-dev/pathmap/internal/arena"
)

// allocator is the node source for a PathMap: the heap regime (a
// sync.Pool-backed node cache, generalizing the teacher's pool.go) is
// always available; the arena regime (spec §4.2) is additionally enabled
// when Config.arenaCompact is set.
type allocator[V any] struct {
	config Config

	heap *nodePool[V]

	arena *arena.Arena[V] // nil unless config.arenaCompact

	totalAllocated atomic.Int64
	currentLive    atomic.Int64
}

func newAllocator[V any](cfg Config) *allocator[V] {
	a := &allocator[V]{config: cfg, heap: newNodePool[V]()}
	if cfg.arenaCompact {
		a.arena = arena.New[V](cfg.evictThreshold, cfg.minEvictThreshold, cfg.slimPtrs)
	}
	return a
}

// getHeapNode retrieves a *trieNode[V] from the pool, tracking statistics
// when Config.counters is set.
func (a *allocator[V]) getHeapNode() *trieNode[V] {
	n := a.heap.Get()
	if a.config.counters {
		a.currentLive.Add(1)
	}
	return n
}

// putHeapNode returns a *trieNode[V] to the pool once its last handle has
// been released. Nothing in the package calls it at present: released
// nodes are left to the garbage collector and never return to the pool.
func (a *allocator[V]) putHeapNode(n *trieNode[V]) {
	if a.config.counters {
		a.currentLive.Add(-1)
	}
	a.heap.Put(n)
}

// newHandle wraps a freshly allocated node (refcount 1) in a NodeHandle
// and tracks its allocation.
func (a *allocator[V]) newHandle(n *trieNode[V]) NodeHandle[V] {
	if a.config.counters {
		a.totalAllocated.Add(1)
	}
	return newHandleNoIncrement(n)
}

// Stats returns the number of nodes taken from the pool and not returned
// to it (since nodes are never returned, every node taken so far) and the
// number of nodes wrapped through newHandle, when Config.counters is set;
// both are zero otherwise.
func (a *allocator[V]) Stats() (live, total int64) {
	return a.currentLive.Load(), a.totalAllocated.Load()
}

// nodePool is a type-safe wrapper around sync.Pool specialized for
// *trieNode[V] instances, adapted from the teacher's pool.go.
type nodePool[V any] struct {
	sync.Pool
}

func newNodePool[V any]() *nodePool[V] {
	p := &nodePool[V]{}
	p.New = func() any { return new(trieNode[V]) }
	return p
}

func (p *nodePool[V]) Get() *trieNode[V] {
	return p.Pool.Get().(*trieNode[V])
}

func (p *nodePool[V]) Put(n *trieNode[V]) {
	n.reset()
	p.Pool.Put(n)
}
