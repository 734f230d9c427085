// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadZipperNavigation(t *testing.T) {
	m := New[int]()
	mustInsert(t, m, "team", 1)
	mustInsert(t, m, "teammate", 2)

	z := m.ReadZipper(nil)
	require.Equal(t, AtNode, z.State())

	require.True(t, z.DescendByte('t'))
	require.Equal(t, MidEdge, z.State(), "the 'team' edge is multi-byte, so one byte in is mid-edge")

	require.True(t, z.DescendTo([]byte("eam")))
	require.Equal(t, AtNode, z.State())
	val, ok := z.Value()
	require.True(t, ok)
	require.Equal(t, 1, val)

	require.True(t, z.DescendTo([]byte("mate")))
	val, ok = z.Value()
	require.True(t, ok)
	require.Equal(t, 2, val)

	require.Equal(t, 4, z.Ascend(4))
	require.Equal(t, AtNode, z.State())
	val, ok = z.Value()
	require.True(t, ok)
	require.Equal(t, 1, val)
}

func TestReadZipperOffTrie(t *testing.T) {
	m := New[int]()
	mustInsert(t, m, "team", 1)

	z := m.ReadZipper([]byte("teamx"))
	require.Equal(t, OffTrie, z.State())
	require.True(t, z.IsDangling())

	require.Equal(t, 1, z.Ascend(1))
	require.Equal(t, AtNode, z.State())
	val, ok := z.Value()
	require.True(t, ok)
	require.Equal(t, 1, val)
}

func TestWriteZipperSetAndRemoveValue(t *testing.T) {
	m := New[int]()
	z := m.WriteZipper([]byte("abc"))
	old, existed := z.SetValue(42)
	require.False(t, existed)
	require.Zero(t, old)

	got, ok := m.Get([]byte("abc"))
	require.True(t, ok)
	require.Equal(t, 42, got)

	z2 := m.WriteZipper([]byte("abc"))
	old, existed = z2.RemoveValue()
	require.True(t, existed)
	require.Equal(t, 42, old)

	_, ok = m.Get([]byte("abc"))
	require.False(t, ok, "value should be gone after RemoveValue")
}

func TestWriteZipperSplitsEdgeMidWrite(t *testing.T) {
	m := New[int]()
	mustInsert(t, m, "teammate", 1)

	z := m.WriteZipper([]byte("team"))
	require.Equal(t, MidEdge, z.State())
	z.SetValue(2)

	got, ok := m.Get([]byte("team"))
	require.True(t, ok)
	require.Equal(t, 2, got)
	got, ok = m.Get([]byte("teammate"))
	require.True(t, ok)
	require.Equal(t, 1, got, "splitting the edge for the new value must not disturb the original")
}

func TestGraftMapAndTakeMap(t *testing.T) {
	src := New[int]()
	mustInsert(t, src, "x", 1)
	mustInsert(t, src, "y", 2)

	dst := New[int]()
	mustInsert(t, dst, "prefix/old", 99)

	z := dst.WriteZipper([]byte("prefix/"))
	z.GraftMap(src)

	got, ok := dst.Get([]byte("prefix/x"))
	require.True(t, ok)
	require.Equal(t, 1, got)
	_, ok = dst.Get([]byte("prefix/old"))
	require.False(t, ok, "Graft replaces the whole subtree at the focus")

	z2 := dst.WriteZipper([]byte("prefix/"))
	taken := z2.TakeMap()

	_, ok = dst.Get([]byte("prefix/x"))
	require.False(t, ok, "TakeMap must detach the subtree from the original map")
	got, ok = taken.Get([]byte("x"))
	require.True(t, ok)
	require.Equal(t, 1, got)

	// The detached map must be wholly independent: mutating it must not
	// resurrect anything under dst's old focus.
	taken.Insert([]byte("z"), 3)
	_, ok = dst.Get([]byte("prefix/z"))
	require.False(t, ok)
}

func TestForkIsIndependentOfOriginatingMap(t *testing.T) {
	m := New[int]()
	mustInsert(t, m, "a", 1)

	z := m.ReadZipper([]byte("a"))
	forked := z.Fork()

	m.Insert([]byte("a"), 2)

	val, ok := forked.Value()
	require.True(t, ok)
	require.Equal(t, 1, val, "a forked zipper holds its own reference and must not see later writes")
}
