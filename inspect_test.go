// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllVisitsEveryEntryInOrder(t *testing.T) {
	m := buildMap(t, map[string]int{"b": 2, "a": 1, "ab": 3, "aa": 4})

	var got []string
	for path, v := range m.All() {
		got = append(got, string(path))
		want, ok := map[string]int{"a": 1, "b": 2, "ab": 3, "aa": 4}[string(path)]
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	require.Len(t, got, 4)
	require.True(t, sort.StringsAreSorted(got), "All should yield paths in trie (lexicographic) order, got %v", got)
}

func TestAllInSubtreeIsRelativeToFocus(t *testing.T) {
	m := buildMap(t, map[string]int{"scope/a": 1, "scope/b": 2, "other": 3})

	z := m.ReadZipper([]byte("scope"))
	got := map[string]int{}
	for path, v := range z.AllInSubtree() {
		got[string(path)] = v
	}
	require.Equal(t, map[string]int{"scope/a": 1, "scope/b": 2}, got)
}

func TestEqualReconcilesDifferingCompressionBoundaries(t *testing.T) {
	// Both maps store the same logical keys, but a keeps a valueless node
	// boundary at "te" that b never creates, so their edge extensions don't
	// align byte-for-byte. Subtract leaves that boundary in place (Remove
	// would collapse it back into one edge).
	a := New[int]()
	mustInsert(t, a, "te", 0)
	mustInsert(t, a, "team", 1)
	mustInsert(t, a, "teammate", 2)
	te := New[int]()
	mustInsert(t, te, "te", 0)
	a = Subtract(a, te)

	b := New[int]()
	mustInsert(t, b, "team", 1)
	mustInsert(t, b, "teammate", 2)

	require.True(t, Equal[int](a, b))

	mustInsert(t, b, "teamx", 9)
	require.False(t, Equal[int](a, b))
}

func TestEqualEmptyMaps(t *testing.T) {
	require.True(t, Equal[int](New[int](), New[int]()))
}

func TestDumpProducesNonEmptyTreeReport(t *testing.T) {
	m := buildMap(t, map[string]int{"team": 1, "teammate": 2})

	var buf bytes.Buffer
	m.Dump(&buf)

	out := buf.String()
	require.Contains(t, out, "root")
	require.Contains(t, out, "=value")
}

func TestDumpOnEmptyMapDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	require.NotPanics(t, func() { New[int]().Dump(&buf) })
}
