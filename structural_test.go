// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStructuralSharingBoundsNodeCount exercises spec §8's structural-sharing
// scenario: inserting every 2-byte path over a 4-letter alphabet (16 keys)
// should share each first byte among the four keys that start with it. That
// takes one value node per key, one node per distinct first byte and the
// root — 21 nodes — rather than a separate two-node chain per key (33).
func TestStructuralSharingBoundsNodeCount(t *testing.T) {
	m := New[int](WithCounters())

	alphabet := []byte("abcd")
	n := 0
	for _, x := range alphabet {
		for _, y := range alphabet {
			mustInsert(t, m, string([]byte{x, y}), n)
			n++
		}
	}
	require.Equal(t, 16, m.Len())

	live, _ := m.Stats()
	require.LessOrEqual(t, live, int64(21), "16 keys over a 4-letter alphabet should share their first-byte nodes, not allocate a chain per key")
}

func TestCloneMatchesOriginal(t *testing.T) {
	m := New[int](WithCounters())
	for i := 0; i < 50; i++ {
		mustInsert(t, m, string(rune('a'+i%26))+string(rune('a'+(i/26)%26)), i)
	}

	clone := m.Clone()
	require.Equal(t, m.Len(), clone.Len())
	require.True(t, Equal[int](m, clone))
}
