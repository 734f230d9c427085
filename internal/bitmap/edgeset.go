// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package bitmap implements EdgeSet256, the 256-bit presence set PathMap's
// Dense and Bridge node variants use to record which of the 256 possible
// edge bytes are occupied, and from which a byte maps to a dense index via
// Locate. It lives in its own package because both the top-level trie node
// (node.go) and the arena's page-packing algorithm (internal/arena) share
// the same 256-wide set: a node promoted to VariantArenaCompact still needs
// the same byte-presence bookkeeping once it's packed into a page.
package bitmap

import "math/bits"

// EdgeSet256 is a 256-bit set, one bit per possible edge byte.
type EdgeSet256 [4]uint64

// MustSet sets the bit. Panics if bit > 255, by intention: a caller with an
// out-of-range edge byte has a bug worth surfacing immediately.
func (b *EdgeSet256) MustSet(bit uint) {
	b[bit>>6] |= 1 << (bit & 63)
}

// MustClear clears the bit, by the same out-of-range contract as MustSet.
func (b *EdgeSet256) MustClear(bit uint) {
	b[bit>>6] &^= 1 << (bit & 63)
}

// Test reports whether the bit is set.
func (b *EdgeSet256) Test(bit uint) bool {
	return b[bit>>6]&(1<<(bit&63)) != 0
}

// Rank returns the number of set bits at or below idx, minus one: the
// dense index a set bit maps to in a popcount-compressed edge array.
//
// Rank does not itself check whether idx is set; callers that need both
// use Locate instead.
func (b *EdgeSet256) Rank(idx uint) (rnk int) {
	rnk += bits.OnesCount64(b[0] & rankMask[uint8(idx)][0])
	rnk += bits.OnesCount64(b[1] & rankMask[uint8(idx)][1])
	rnk += bits.OnesCount64(b[2] & rankMask[uint8(idx)][2])
	rnk += bits.OnesCount64(b[3] & rankMask[uint8(idx)][3])
	rnk--
	return
}

// Locate reports whether bit is set and, if so, its dense index — the
// Test-then-Rank pair every Dense/Bridge lookup, overwrite and remove needs,
// folded into a single bit scan instead of two.
func (b *EdgeSet256) Locate(bit uint) (idx int, ok bool) {
	if !b.Test(bit) {
		return 0, false
	}
	return b.Rank(bit), true
}

// All returns the sorted set bits.
func (b *EdgeSet256) All() []uint {
	out := make([]uint, 0, 256)
	for wIdx, word := range b {
		for word != 0 {
			out = append(out, uint(wIdx<<6+bits.TrailingZeros64(word)))
			word &= word - 1
		}
	}
	return out
}

// Size is the number of set bits.
func (b *EdgeSet256) Size() (cnt int) {
	cnt += bits.OnesCount64(b[0])
	cnt += bits.OnesCount64(b[1])
	cnt += bits.OnesCount64(b[2])
	cnt += bits.OnesCount64(b[3])
	return
}

// IntersectsAny reports whether b and c share any set bit; the arena's
// small-page packer uses this to tell whether two nodes' edge bytes would
// collide in the same flat page index.
func (b *EdgeSet256) IntersectsAny(c *EdgeSet256) bool {
	return b[0]&c[0] != 0 ||
		b[1]&c[1] != 0 ||
		b[2]&c[2] != 0 ||
		b[3]&c[3] != 0
}

// Union computes the bitwise OR of b and c.
func (b *EdgeSet256) Union(c *EdgeSet256) (s EdgeSet256) {
	s[0] = b[0] | c[0]
	s[1] = b[1] | c[1]
	s[2] = b[2] | c[2]
	s[3] = b[3] | c[3]
	return
}

// rankMask[i] has all bits up to and including i set; used by Rank.
var rankMask = func() (m [256]EdgeSet256) {
	for i := range m {
		idx := uint(i)
		wIdx := idx >> 6
		for w := uint(0); w < wIdx; w++ {
			m[i][w] = ^uint64(0)
		}
		m[i][wIdx] = (uint64(1) << ((idx & 63) + 1)) - 1
		if idx&63 == 63 {
			m[i][wIdx] = ^uint64(0)
		}
	}
	return
}()
