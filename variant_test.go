// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBridgeNodePromotionAndLookup exercises the experimental Bridge
// variant (spec §4.1's fifth node kind): once a Sparse node's children are
// all zero-extension single bytes (or that plus one longer tail edge), and
// WithBridgeNodes is set, crossing denseThreshold promotes it to Bridge
// instead of Dense, and every stored key must still resolve correctly
// through the Bridge lookup path.
func TestBridgeNodePromotionAndLookup(t *testing.T) {
	m := New[int](WithBridgeNodes(), WithDenseThreshold(2))

	keys := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	for k, v := range keys {
		mustInsert(t, m, k, v)
	}

	require.Equal(t, VariantBridge, m.root.variant(), "root should have promoted to Bridge once its single-byte children crossed denseThreshold")

	for k, want := range keys {
		got, ok := m.Get([]byte(k))
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	m.Remove([]byte("a"))
	_, ok := m.Get([]byte("a"))
	require.False(t, ok)
	got, ok := m.Get([]byte("b"))
	require.True(t, ok)
	require.Equal(t, 2, got)
}

// TestBridgeNodeWithTailEdge exercises the "handful of zero-extension
// children plus one longer tail edge" Bridge shape explicitly.
func TestBridgeNodeWithTailEdge(t *testing.T) {
	m := New[int](WithBridgeNodes(), WithDenseThreshold(2))

	mustInsert(t, m, "a", 1)
	mustInsert(t, m, "b", 2)
	mustInsert(t, m, "cdefgh", 3) // the one edge with a non-empty extension

	require.Equal(t, VariantBridge, m.root.variant())

	got, ok := m.Get([]byte("cdefgh"))
	require.True(t, ok)
	require.Equal(t, 3, got)

	got, ok = m.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, 1, got)
}

// TestBridgeNodeFallsBackToDenseWhenShapeDoesNotFit covers the case where
// two children both carry a non-empty extension: Bridge can only hold one
// tail edge, so promotion must fall back to Dense rather than silently
// dropping a key.
func TestBridgeNodeFallsBackToDenseWhenShapeDoesNotFit(t *testing.T) {
	m := New[int](WithBridgeNodes(), WithDenseThreshold(2))

	mustInsert(t, m, "ax", 1)
	mustInsert(t, m, "by", 2)
	mustInsert(t, m, "cz", 3)

	require.Equal(t, VariantDense, m.root.variant())

	for k, want := range map[string]int{"ax": 1, "by": 2, "cz": 3} {
		got, ok := m.Get([]byte(k))
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestWithAllDenseNodesAndWithBridgeNodesPanics(t *testing.T) {
	require.Panics(t, func() {
		New[int](WithAllDenseNodes(), WithBridgeNodes())
	})
}
