// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package pathmap provides an in-memory associative container keyed by
// arbitrary byte strings and parameterized over a value type V.
//
// Unlike a flat hash map, keys are treated as paths: byte sequences forming
// a trie in which every prefix is itself addressable. PathMap offers:
//
//   - point access by full key (Get/Insert/Remove)
//   - prefix-scoped cursors ("zippers") that read, write, and navigate
//     along the trie
//   - whole-map algebraic operations (Join, Meet, Subtract, Restrict,
//     DropHead) that combine maps by sharing subtrees rather than copying
//     them
//   - controlled concurrent access to disjoint sub-tries of a single map,
//     via a ZipperHead
//
// PathMap is not a persistent database: there are no durability guarantees
// across process death, though the arena allocator's page image is a
// secondary, mmap-able on-disk artifact. PathMap is not a sorted-key store
// beyond what byte-lexicographic trie order provides incidentally, and it
// is not a concurrent-single-key store: concurrency is granted over
// disjoint prefix regions, never over one key from multiple goroutines.
package pathmap
