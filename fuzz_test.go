// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"bytes"
	"testing"
)

// deriveEntries turns an arbitrary fuzz corpus into a bounded set of
// non-empty byte-string keys with int values, by walking data as a stream
// of (key-length, key bytes, value byte) records. Bounding both the entry
// count and key length keeps a single fuzz iteration fast regardless of
// how large a corpus entry the fuzzer grows.
func deriveEntries(data []byte, maxEntries int) map[string]int {
	out := make(map[string]int, maxEntries)
	for len(data) >= 2 && len(out) < maxEntries {
		klen := int(data[0]%16) + 1 // 1..16, never empty
		data = data[1:]
		if klen > len(data) {
			klen = len(data)
		}
		if klen == 0 {
			break
		}
		key := data[:klen]
		data = data[klen:]
		if len(data) == 0 {
			break
		}
		val := int(data[0])
		data = data[1:]
		out[string(key)] = val
	}
	return out
}

func buildMapFromEntries(entries map[string]int, opts ...Option) *PathMap[int] {
	m := New[int](opts...)
	for k, v := range entries {
		m.Insert([]byte(k), v)
	}
	return m
}

// FuzzInsertGetRemove checks that PathMap's point operations stay
// consistent with a plain map[string]int reference across arbitrary
// insert/get/remove sequences derived from the fuzz corpus.
func FuzzInsertGetRemove(f *testing.F) {
	f.Add([]byte("\x01a\x01\x02bb\x02\x00"))
	f.Add([]byte{})
	f.Add([]byte("\x04team\x01\x08teammate\x02"))

	f.Fuzz(func(t *testing.T, data []byte) {
		entries := deriveEntries(data, 64)
		m := New[int]()
		ref := make(map[string]int, len(entries))

		for k, v := range entries {
			m.Insert([]byte(k), v)
			ref[k] = v
		}

		for k, want := range ref {
			got, ok := m.Get([]byte(k))
			if !ok || got != want {
				t.Fatalf("Get(%q) = (%d, %v), want (%d, true)", k, got, ok, want)
			}
		}
		if m.Len() != len(ref) {
			t.Fatalf("Len() = %d, want %d", m.Len(), len(ref))
		}

		for k := range ref {
			old, existed := m.Remove([]byte(k))
			if !existed || old != ref[k] {
				t.Fatalf("Remove(%q) = (%d, %v), want (%d, true)", k, old, existed, ref[k])
			}
			if _, ok := m.Get([]byte(k)); ok {
				t.Fatalf("Get(%q) still found after Remove", k)
			}
		}
		if m.Len() != 0 {
			t.Fatalf("Len() = %d after removing every key, want 0", m.Len())
		}
	})
}

// FuzzJoinMeetSubtractInvariants checks the algebraic engine's defining
// properties (spec §4.6) across arbitrary two-map inputs: Join is a
// superset of both operands with the left side winning collisions, Meet
// keeps only shared keys, and Subtract removes exactly the right side's
// keys from the left.
func FuzzJoinMeetSubtractInvariants(f *testing.F) {
	f.Add([]byte("\x01a\x01"), []byte("\x01a\x02"))
	f.Add([]byte{}, []byte("\x01b\x09"))

	f.Fuzz(func(t *testing.T, dataL, dataR []byte) {
		left := deriveEntries(dataL, 32)
		right := deriveEntries(dataR, 32)

		l := buildMapFromEntries(left)
		r := buildMapFromEntries(right)

		joined := Join(l, r)
		for k, v := range left {
			got, ok := joined.Get([]byte(k))
			if !ok || got != v {
				t.Fatalf("Join: key %q from left = (%d, %v), want (%d, true) (left must win)", k, got, ok, v)
			}
		}
		for k, v := range right {
			if _, inLeft := left[k]; inLeft {
				continue
			}
			got, ok := joined.Get([]byte(k))
			if !ok || got != v {
				t.Fatalf("Join: key %q from right = (%d, %v), want (%d, true)", k, got, ok, v)
			}
		}

		met := Meet(l, r)
		for k := range left {
			_, inRight := right[k]
			_, inMet := met.Get([]byte(k))
			if inMet != inRight {
				t.Fatalf("Meet: key %q present=%v, want %v", k, inMet, inRight)
			}
		}

		diff := Subtract(l, r)
		for k, v := range left {
			_, inRight := right[k]
			got, ok := diff.Get([]byte(k))
			if inRight {
				if ok {
					t.Fatalf("Subtract: key %q should be gone, got %d", k, got)
				}
			} else if !ok || got != v {
				t.Fatalf("Subtract: key %q = (%d, %v), want (%d, true)", k, got, ok, v)
			}
		}
	})
}

// FuzzLinearRoundTrip checks that WriteLinear followed by ReadLinear
// reproduces the original map exactly, for arbitrary key/value sets
// derived from the fuzz corpus.
func FuzzLinearRoundTrip(f *testing.F) {
	f.Add([]byte("\x01a\x01\x02bb\x02\x00"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		entries := deriveEntries(data, 64)
		m := buildMapFromEntries(entries)

		var buf bytes.Buffer
		if err := m.WriteLinear(&buf, intCodec); err != nil {
			t.Fatalf("WriteLinear: %v", err)
		}

		got, err := ReadLinear[int](&buf, nil, intCodec)
		if err != nil {
			t.Fatalf("ReadLinear: %v", err)
		}
		if !Equal[int](m, got) {
			t.Fatalf("round-tripped map is not Equal to the original")
		}
		if got.Len() != m.Len() {
			t.Fatalf("Len() = %d after round trip, want %d", got.Len(), m.Len())
		}
	})
}

// FuzzDAGRoundTrip is FuzzLinearRoundTrip's DAG-format counterpart,
// additionally exercising content-hash deduplication on whatever repeated
// subtrees the derived key set happens to produce.
func FuzzDAGRoundTrip(f *testing.F) {
	f.Add([]byte("\x01a\x01\x02bb\x02\x00"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		entries := deriveEntries(data, 64)
		m := buildMapFromEntries(entries)

		var buf bytes.Buffer
		if err := m.WriteDAG(&buf, intCodec); err != nil {
			t.Fatalf("WriteDAG: %v", err)
		}

		got, err := ReadDAG[int](&buf, nil, intCodec)
		if err != nil {
			t.Fatalf("ReadDAG: %v", err)
		}
		if !Equal[int](m, got) {
			t.Fatalf("round-tripped map is not Equal to the original")
		}
		if got.Len() != m.Len() {
			t.Fatalf("Len() = %d after round trip, want %d", got.Len(), m.Len())
		}
	})
}
