// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package bitmap

import (
	"slices"
	"testing"
)

func TestZeroValue(t *testing.T) {
	t.Parallel()
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("a zero value EdgeSet256 must not panic: %v", r)
		}
	}()

	var b EdgeSet256
	b.MustSet(0)

	b = EdgeSet256{}
	b.MustClear(100)

	b = EdgeSet256{}
	b.Size()

	b = EdgeSet256{}
	b.Rank(100)

	b = EdgeSet256{}
	b.Test(42)

	b = EdgeSet256{}
	b.Locate(42)

	b = EdgeSet256{}
	b.All()
}

func TestSetClearTest(t *testing.T) {
	t.Parallel()

	var b EdgeSet256
	for _, bit := range []uint{0, 1, 63, 64, 128, 200, 255} {
		b.MustSet(bit)
		if !b.Test(bit) {
			t.Fatalf("bit %d should be set", bit)
		}
	}
	if b.Size() != 7 {
		t.Fatalf("expected 7 bits set, got %d", b.Size())
	}

	b.MustClear(64)
	if b.Test(64) {
		t.Fatal("bit 64 should be cleared")
	}
	if b.Size() != 6 {
		t.Fatalf("expected 6 bits set, got %d", b.Size())
	}
}

func TestRank(t *testing.T) {
	t.Parallel()

	var b EdgeSet256
	for _, bit := range []uint{3, 9, 64, 200} {
		b.MustSet(bit)
	}

	cases := []struct {
		idx  uint
		want int
	}{
		{0, -1},
		{3, 0},
		{8, 0},
		{9, 1},
		{63, 1},
		{64, 2},
		{199, 2},
		{200, 3},
		{255, 3},
	}
	for _, c := range cases {
		if got := b.Rank(c.idx); got != c.want {
			t.Errorf("Rank(%d) = %d, want %d", c.idx, got, c.want)
		}
	}
}

func TestLocate(t *testing.T) {
	t.Parallel()

	var b EdgeSet256
	for _, bit := range []uint{3, 9, 64, 200} {
		b.MustSet(bit)
	}

	if idx, ok := b.Locate(9); !ok || idx != 1 {
		t.Errorf("Locate(9) = (%d, %v), want (1, true)", idx, ok)
	}
	if _, ok := b.Locate(10); ok {
		t.Error("Locate(10) should report not-set")
	}
}

func TestUnionIntersectsAny(t *testing.T) {
	t.Parallel()

	var a, c EdgeSet256
	a.MustSet(1)
	a.MustSet(2)
	a.MustSet(200)

	c.MustSet(2)
	c.MustSet(3)

	union := a.Union(&c)
	wantUnion := []uint{1, 2, 3, 200}
	if got := union.All(); !slices.Equal(got, wantUnion) {
		t.Errorf("Union = %v, want %v", got, wantUnion)
	}

	if !a.IntersectsAny(&c) {
		t.Error("IntersectsAny should be true")
	}

	var d EdgeSet256
	d.MustSet(50)
	if a.IntersectsAny(&d) {
		t.Error("IntersectsAny should be false for disjoint sets")
	}
}
