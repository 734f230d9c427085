// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"golang.org/x/xerrors"
)

// Sentinel errors for the taxonomy in spec §7. Wrap with xerrors.Errorf
// and "%w" at call sites so errors.Is/errors.As keep working while still
// attaching a source frame for debugging.
var (
	// ErrAlloc reports that a node allocation failed (arena page
	// exhaustion, or the host allocator returning out of memory for a
	// heap-regime node). Fatal: the triggering operation aborts and the
	// map is left in its pre-operation state, because the new subtree is
	// always constructed before being spliced into the parent.
	ErrAlloc = xerrors.New("pathmap: node allocation failed")

	// ErrExclusivityViolation reports that a ZipperHead.WriteZipperAt (or
	// ReadZipperAt) request overlaps an already-outstanding region.
	// Recoverable: the caller may retry once the conflicting zipper is
	// released.
	ErrExclusivityViolation = xerrors.New("pathmap: exclusivity violation")

	// ErrInvalidPath reports a zero-length path where one is disallowed,
	// or an ascent past the root. Reads return the empty-result sentinel
	// (a miss); writes are a no-op.
	ErrInvalidPath = xerrors.New("pathmap: invalid path")

	// ErrSerialization reports a malformed or truncated stream (including
	// a bad magic) or an out-of-range DAG table reference. Neither format
	// carries a version number, so no version is checked.
	ErrSerialization = xerrors.New("pathmap: serialization error")
)

// AllocError wraps ErrAlloc with the operation that triggered it.
func AllocError(op string) error {
	return xerrors.Errorf("%s: %w", op, ErrAlloc)
}

// ExclusivityViolation wraps ErrExclusivityViolation with the conflicting
// path.
func ExclusivityViolation(path []byte) error {
	return xerrors.Errorf("path %q: %w", path, ErrExclusivityViolation)
}

// SerializationError wraps ErrSerialization with the byte offset at which
// decoding failed.
func SerializationError(offset int, reason string) error {
	return xerrors.Errorf("at offset %d, %s: %w", offset, reason, ErrSerialization)
}
