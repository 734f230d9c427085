// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestZipperHeadRejectsOverlappingWrites(t *testing.T) {
	m := New[int]()
	head := m.ZipperHead()

	w1, err := head.WriteZipperAt([]byte("a/b"))
	require.NoError(t, err)
	defer w1.Close()

	_, err = head.WriteZipperAt([]byte("a"))
	require.Error(t, err, "a is a prefix of the outstanding a/b write")

	_, err = head.WriteZipperAt([]byte("a/b/c"))
	require.Error(t, err, "a/b/c extends the outstanding a/b write")

	w2, err := head.WriteZipperAt([]byte("x/y"))
	require.NoError(t, err, "a disjoint path must be grantable concurrently")
	w2.Close()
}

func TestZipperHeadReadsCanOverlapReadsNotWrites(t *testing.T) {
	m := New[int]()
	mustInsert(t, m, "a/b", 1)
	head := m.ZipperHead()

	r1, err := head.ReadZipperAt([]byte("a/b"))
	require.NoError(t, err)

	_, err = head.ReadZipperAt([]byte("a"))
	require.NoError(t, err, "two read zippers may overlap")

	_, err = head.WriteZipperAt([]byte("a/b"))
	require.Error(t, err, "a write must not be granted over an outstanding read")

	head.ReleaseReadZipperAt([]byte("a/b"))
	head.ReleaseReadZipperAt([]byte("a"))

	w, err := head.WriteZipperAt([]byte("a/b"))
	require.NoError(t, err, "once both reads release, the write should be grantable")
	w.Close()
	_ = r1
}

// TestZipperHeadConcurrentDisjointWriters exercises spec §8 scenario 6: many
// writer goroutines, each confined to its own disjoint subtree, run
// concurrently through one ZipperHead without losing or corrupting writes.
func TestZipperHeadConcurrentDisjointWriters(t *testing.T) {
	const writers = 8
	const keysPerWriter = 500

	m := New[int]()
	head := m.ZipperHead()

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			prefix := []byte(fmt.Sprintf("writer%d/", w))
			wz, err := head.WriteZipperAt(prefix)
			if err != nil {
				return err
			}
			defer wz.Close()

			for k := 0; k < keysPerWriter; k++ {
				key := []byte(fmt.Sprintf("key%d", k))
				wz.DescendTo(key)
				wz.SetValue(w*keysPerWriter + k)
				wz.Ascend(len(key))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, writers*keysPerWriter, m.Len())
	for w := 0; w < writers; w++ {
		for k := 0; k < keysPerWriter; k++ {
			key := []byte(fmt.Sprintf("writer%d/key%d", w, k))
			got, ok := m.Get(key)
			require.True(t, ok, "missing key %q", key)
			require.Equal(t, w*keysPerWriter+k, got)
		}
	}
}

func TestOutstandingZippersRequiresTracking(t *testing.T) {
	m := New[int]()
	head := m.ZipperHead()

	w, err := head.WriteZipperAt([]byte("a/b"))
	require.NoError(t, err)
	defer w.Close()

	require.Nil(t, head.OutstandingZippers(), "without WithZipperTracking, OutstandingZippers must report nothing")
}

func TestOutstandingZippersReportsLiveLeases(t *testing.T) {
	m := New[int](WithZipperTracking())
	head := m.ZipperHead()

	w, err := head.WriteZipperAt([]byte("a/b"))
	require.NoError(t, err)

	r, err := head.ReadZipperAt([]byte("x/y"))
	require.NoError(t, err)

	got := head.OutstandingZippers()
	require.Len(t, got, 2)

	byPath := map[string]bool{}
	for _, o := range got {
		byPath[string(o.Path)] = o.Write
	}
	require.Equal(t, map[string]bool{"a/b": true, "x/y": false}, byPath)

	w.Close()
	head.ReleaseReadZipperAt([]byte("x/y"))
	_ = r
	require.Empty(t, head.OutstandingZippers())
}
