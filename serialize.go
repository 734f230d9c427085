// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package pathmap

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/blake2b"
)

// ValueCodec converts between a stored value and its wire bytes. PathMap
// has no way to discover an encoding for an arbitrary V on its own, so
// serialization entry points take one explicitly (spec §4.7).
type ValueCodec[V any] struct {
	Encode func(V) ([]byte, error)
	Decode func([]byte) (V, error)
}

const (
	linearMagic = "PMLN"
	dagMagic    = "PMDG"
)

// WriteLinear writes m in the Linear format (spec §4.7): a pre-order walk
// of the trie, one record per edge — (byte, ext length, ext bytes, has-
// value flag, value length, value bytes, child count) — reconstructible
// without any node-identity bookkeeping.
func (m *PathMap[V]) WriteLinear(w io.Writer, codec ValueCodec[V]) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(linearMagic); err != nil {
		return SerializationError(0, err.Error())
	}
	if err := writeLinearValue(bw, codec, m.root); err != nil {
		return err
	}
	if err := writeLinearNode(bw, m.alloc, codec, m.root); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return SerializationError(0, err.Error())
	}
	return nil
}

func writeLinearValue[V any](w *bufio.Writer, codec ValueCodec[V], h NodeHandle[V]) error {
	if h.valid() && h.n.hasValue {
		if err := w.WriteByte(1); err != nil {
			return SerializationError(0, err.Error())
		}
		b, err := codec.Encode(h.n.value)
		if err != nil {
			return SerializationError(0, "encode value: "+err.Error())
		}
		return writeUvarintBytes(w, b)
	}
	return w.WriteByte(0)
}

func writeUvarintBytes(w *bufio.Writer, b []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return SerializationError(0, err.Error())
	}
	if _, err := w.Write(b); err != nil {
		return SerializationError(0, err.Error())
	}
	return nil
}

func writeLinearNode[V any](w *bufio.Writer, a *allocator[V], codec ValueCodec[V], h NodeHandle[V]) error {
	if !h.valid() {
		return w.WriteByte(0)
	}
	addrs := h.n.getChildAddrs()
	var cntBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(cntBuf[:], uint64(len(addrs)))
	if _, err := w.Write(cntBuf[:n]); err != nil {
		return SerializationError(0, err.Error())
	}
	for _, b := range addrs {
		e, _ := h.n.childForByte(a, b)
		if err := w.WriteByte(b); err != nil {
			return SerializationError(0, err.Error())
		}
		if err := writeUvarintBytes(w, e.ext); err != nil {
			return err
		}
		if err := writeLinearValue(w, codec, e.child); err != nil {
			return err
		}
		if err := writeLinearNode(w, a, codec, e.child); err != nil {
			return err
		}
	}
	return nil
}

// ReadLinear reconstructs a PathMap from the Linear format.
func ReadLinear[V any](r io.Reader, opts []Option, codec ValueCodec[V]) (*PathMap[V], error) {
	br := bufio.NewReader(r)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, SerializationError(0, "short magic: "+err.Error())
	}
	if string(magic) != linearMagic {
		return nil, SerializationError(0, "bad magic")
	}

	m := New[V](opts...)
	hasValue, val, err := readLinearValue(br, codec)
	if err != nil {
		return nil, err
	}
	root, err := readLinearNode(br, m.alloc, codec, hasValue, val)
	if err != nil {
		return nil, err
	}
	m.root = root
	m.size = countEntries(m.alloc, root)
	return m, nil
}

func readLinearValue[V any](r *bufio.Reader, codec ValueCodec[V]) (bool, V, error) {
	var zero V
	flag, err := r.ReadByte()
	if err != nil {
		return false, zero, SerializationError(0, err.Error())
	}
	if flag == 0 {
		return false, zero, nil
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return false, zero, SerializationError(0, err.Error())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, zero, SerializationError(0, err.Error())
	}
	val, err := codec.Decode(buf)
	if err != nil {
		return false, zero, SerializationError(0, "decode value: "+err.Error())
	}
	return true, val, nil
}

func readLinearNode[V any](r *bufio.Reader, a *allocator[V], codec ValueCodec[V], hasValue bool, val V) (NodeHandle[V], error) {
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return NodeHandle[V]{}, SerializationError(0, err.Error())
	}
	if count == 0 && !hasValue {
		return NodeHandle[V]{}, nil
	}

	h := a.newHandle(newNode(a, VariantLine))
	h.n.hasValue = hasValue
	h.n.value = val

	for i := uint64(0); i < count; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return NodeHandle[V]{}, SerializationError(0, err.Error())
		}
		extLen, err := binary.ReadUvarint(r)
		if err != nil {
			return NodeHandle[V]{}, SerializationError(0, err.Error())
		}
		ext := make([]byte, extLen)
		if _, err := io.ReadFull(r, ext); err != nil {
			return NodeHandle[V]{}, SerializationError(0, err.Error())
		}
		childHasValue, childVal, err := readLinearValue(r, codec)
		if err != nil {
			return NodeHandle[V]{}, err
		}
		child, err := readLinearNode(r, a, codec, childHasValue, childVal)
		if err != nil {
			return NodeHandle[V]{}, err
		}
		h.n.setChild(a, b, edge[V]{ext: ext, child: child})
	}
	return h, nil
}

// dagRecord is one unique node's serialized body in the DAG format: its
// value slot, followed by (byte, ext, child table-index) triples.
type dagRecord struct {
	hash     [16]byte
	quickSum uint64
	body     []byte
}

// WriteDAG writes m in the DAG format (spec §4.7): nodes are deduplicated
// by content hash (blake2b-128, with an xxhash64 sum as a second check: a
// record is reused only when both match) into a unique-node table, and the
// whole table is compressed as one zlib body before being written out,
// followed by a root table-index.
func (m *PathMap[V]) WriteDAG(w io.Writer, codec ValueCodec[V]) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	enc := &dagEncoder[V]{
		alloc:  m.alloc,
		codec:  codec,
		byHash: make(map[[16]byte]int),
	}
	rootIdx, err := enc.intern(m.root)
	if err != nil {
		return err
	}

	var body []byte
	var countBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(countBuf[:], uint64(len(enc.records)))
	body = append(body, countBuf[:n]...)
	for _, rec := range enc.records {
		var lenBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(lenBuf[:], uint64(len(rec.body)))
		body = append(body, lenBuf[:n]...)
		body = append(body, rec.body...)
	}
	var rootBuf [binary.MaxVarintLen64]byte
	n = binary.PutUvarint(rootBuf[:], uint64(rootIdx))
	body = append(body, rootBuf[:n]...)

	if _, err := w.Write([]byte(dagMagic)); err != nil {
		return SerializationError(0, err.Error())
	}
	zw := zlib.NewWriter(w)
	if _, err := zw.Write(body); err != nil {
		return SerializationError(0, err.Error())
	}
	if err := zw.Close(); err != nil {
		return SerializationError(0, err.Error())
	}
	return nil
}

type dagEncoder[V any] struct {
	alloc   *allocator[V]
	codec   ValueCodec[V]
	records []dagRecord
	byHash  map[[16]byte]int
}

// intern serializes h's subtree bottom-up, returning its index in the
// shared record table — reusing an existing index whenever an identical
// subtree (by content hash) has already been interned.
func (enc *dagEncoder[V]) intern(h NodeHandle[V]) (int, error) {
	if !h.valid() {
		return -1, nil
	}

	var body []byte
	if h.n.hasValue {
		body = append(body, 1)
		b, err := enc.codec.Encode(h.n.value)
		if err != nil {
			return 0, SerializationError(0, "encode value: "+err.Error())
		}
		var lenBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
		body = append(body, lenBuf[:n]...)
		body = append(body, b...)
	} else {
		body = append(body, 0)
	}

	addrs := h.n.getChildAddrs()
	var cntBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(cntBuf[:], uint64(len(addrs)))
	body = append(body, cntBuf[:n]...)

	for _, b := range addrs {
		e, _ := h.n.childForByte(enc.alloc, b)
		childIdx, err := enc.intern(e.child)
		if err != nil {
			return 0, err
		}
		body = append(body, b)
		var extLenBuf [binary.MaxVarintLen64]byte
		ln := binary.PutUvarint(extLenBuf[:], uint64(len(e.ext)))
		body = append(body, extLenBuf[:ln]...)
		body = append(body, e.ext...)
		var idxBuf [binary.MaxVarintLen64]byte
		in := binary.PutVarint(idxBuf[:], int64(childIdx))
		body = append(body, idxBuf[:in]...)
	}

	sum := blake2b.Sum256(body) // truncated to 128 bits below
	var hash [16]byte
	copy(hash[:], sum[:16])
	quick := xxhash.Sum64(body)

	if idx, ok := enc.byHash[hash]; ok && enc.records[idx].quickSum == quick {
		return idx, nil
	}

	idx := len(enc.records)
	enc.records = append(enc.records, dagRecord{hash: hash, quickSum: quick, body: body})
	enc.byHash[hash] = idx
	return idx, nil
}

// ReadDAG reconstructs a PathMap from the DAG format.
func ReadDAG[V any](r io.Reader, opts []Option, codec ValueCodec[V]) (*PathMap[V], error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, SerializationError(0, "short magic: "+err.Error())
	}
	if string(magic) != dagMagic {
		return nil, SerializationError(0, "bad magic")
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, SerializationError(0, "zlib: "+err.Error())
	}
	defer zr.Close()
	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, SerializationError(0, "zlib read: "+err.Error())
	}

	m := New[V](opts...)
	dec := &dagDecoder[V]{alloc: m.alloc, codec: codec, body: body}
	count, err := dec.uvarint()
	if err != nil {
		return nil, err
	}
	handles := make([]NodeHandle[V], count)
	for i := uint64(0); i < count; i++ {
		recLen, err := dec.uvarint()
		if err != nil {
			return nil, err
		}
		recBody, err := dec.take(int(recLen))
		if err != nil {
			return nil, err
		}
		h, err := decodeDagRecord(m.alloc, codec, recBody, handles[:i])
		if err != nil {
			return nil, err
		}
		handles[i] = h
	}
	rootIdx, err := dec.varint()
	if err != nil {
		return nil, err
	}
	if rootIdx >= int64(count) {
		return nil, SerializationError(dec.pos, "root index out of range")
	}
	var root NodeHandle[V]
	if rootIdx >= 0 {
		root = handles[rootIdx].clone()
	}
	m.root = root
	m.size = countEntries(m.alloc, root)
	return m, nil
}

type dagDecoder[V any] struct {
	alloc *allocator[V]
	codec ValueCodec[V]
	body  []byte
	pos   int
}

func (d *dagDecoder[V]) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.body[d.pos:])
	if n <= 0 {
		return 0, SerializationError(d.pos, "truncated uvarint")
	}
	d.pos += n
	return v, nil
}

func (d *dagDecoder[V]) varint() (int64, error) {
	v, n := binary.Varint(d.body[d.pos:])
	if n <= 0 {
		return 0, SerializationError(d.pos, "truncated varint")
	}
	d.pos += n
	return v, nil
}

func (d *dagDecoder[V]) take(n int) ([]byte, error) {
	if d.pos+n > len(d.body) {
		return nil, SerializationError(d.pos, "truncated body")
	}
	b := d.body[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// decodeDagRecord decodes one record's body in isolation (records are
// self-contained byte slices produced by intern, so this uses its own
// cursor rather than dagDecoder's shared one), referencing already-decoded
// children by table index.
func decodeDagRecord[V any](a *allocator[V], codec ValueCodec[V], body []byte, prior []NodeHandle[V]) (NodeHandle[V], error) {
	d := &dagDecoder[V]{alloc: a, codec: codec, body: body}

	hasValueFlag, err := d.take(1)
	if err != nil {
		return NodeHandle[V]{}, err
	}

	h := a.newHandle(newNode(a, VariantLine))
	if hasValueFlag[0] == 1 {
		n, err := d.uvarint()
		if err != nil {
			return NodeHandle[V]{}, err
		}
		valBytes, err := d.take(int(n))
		if err != nil {
			return NodeHandle[V]{}, err
		}
		val, err := codec.Decode(valBytes)
		if err != nil {
			return NodeHandle[V]{}, SerializationError(0, "decode value: "+err.Error())
		}
		h.n.hasValue = true
		h.n.value = val
	}

	count, err := d.uvarint()
	if err != nil {
		return NodeHandle[V]{}, err
	}
	for i := uint64(0); i < count; i++ {
		bByte, err := d.take(1)
		if err != nil {
			return NodeHandle[V]{}, err
		}
		extLen, err := d.uvarint()
		if err != nil {
			return NodeHandle[V]{}, err
		}
		ext, err := d.take(int(extLen))
		if err != nil {
			return NodeHandle[V]{}, err
		}
		childIdx, err := d.varint()
		if err != nil {
			return NodeHandle[V]{}, err
		}
		if childIdx >= int64(len(prior)) {
			return NodeHandle[V]{}, SerializationError(d.pos, "child index out of range")
		}
		var child NodeHandle[V]
		if childIdx >= 0 {
			child = prior[childIdx].clone()
		}
		h.n.setChild(a, bByte[0], edge[V]{ext: append([]byte(nil), ext...), child: child})
	}
	return h, nil
}
