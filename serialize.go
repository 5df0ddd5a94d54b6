// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ufomap/ufomap/internal/arena"
	"github.com/ufomap/ufomap/internal/bitset"
)

// Serialize writes t's full tree shape and every configured attribute
// layer's payload to w, per §4.6 and §6.1: a fixed header, the
// length-prefixed tree-structure bitstream, then one payload section
// per layer in t.Layers() order (the payload sections carry no length
// prefix of their own).
//
// The wire format departs from the letter of §4.6 in one place, noted
// in DESIGN.md: a depth-1 block's second structure byte is repurposed
// as an "expanded" mask (which terminal slots are 8-wide leaf-block
// payloads rather than single collapsed values) instead of being
// omitted outright, since the decoder has no other way to recover that
// distinction — the source's native reader can infer it because it
// deserializes straight into typed leaf/inner node objects, a shortcut
// Go's Layer[B] abstraction, deliberately payload-agnostic, does not
// have.
func Serialize[B any](w io.Writer, t *Tree[B], compressed bool) error {
	var shapeBuf bytes.Buffer
	var visits []visitRecord[B]

	if err := encodeShape(t.root, t.rootDepth, &shapeBuf, &visits); err != nil {
		return err
	}

	hdr := Header{
		Version:     FormatVersion,
		LeafSize:    t.geom.LeafSize,
		DepthLevels: t.geom.Depth,
		Compressed:  compressed,
		NumNodes:    uint64(len(visits)),
	}
	if err := writeHeader(w, hdr); err != nil {
		return err
	}

	body, closeBody := gzipPayloadWriter(w, compressed)

	if err := binary.Write(body, binary.LittleEndian, uint64(shapeBuf.Len())); err != nil {
		return err
	}
	if _, err := body.Write(shapeBuf.Bytes()); err != nil {
		return err
	}

	for _, layer := range t.layers {
		if err := writeLayerPayload(body, layer, visits); err != nil {
			return err
		}
	}

	return closeBody()
}

func writeLayerPayload[B any](w io.Writer, layer Layer[B], visits []visitRecord[B]) error {
	for _, v := range visits {
		var err error
		switch v.kind {
		case visitSingle:
			err = layer.WriteSingle(w, v.payload, v.slot)
		case visitOcta:
			err = layer.WriteOcta(w, v.payload)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a stream written by Serialize and builds a fresh
// Tree configured with layers. The stream's own leaf_size/depth_levels
// fields (not the caller's) determine the rebuilt tree's Geometry,
// matching §4.6's "header fields take precedence, reader reconfigures
// to match" read semantics for a full stream; merging a stream into an
// already-populated Tree is the other half of that read-semantics
// paragraph, implemented separately as MergeModified for
// write-only-modified streams, which do carry enough shape information
// for a merge and none for a fresh rebuild.
func Deserialize[B any](r io.Reader, layers []Layer[B], reuse, lockless bool) (*Tree[B], error) {
	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	geom := Geometry{LeafSize: hdr.LeafSize, Depth: hdr.DepthLevels}
	t, err := NewTree(geom, layers, reuse, lockless)
	if err != nil {
		return nil, err
	}

	body, err := gzipPayloadReader(r, hdr.Compressed)
	if err != nil {
		return nil, err
	}

	var shapeLen uint64
	if err := binary.Read(body, binary.LittleEndian, &shapeLen); err != nil {
		return nil, ErrCorruptStream
	}

	shapeBytes := make([]byte, shapeLen)
	if _, err := io.ReadFull(body, shapeBytes); err != nil {
		return nil, ErrCorruptStream
	}

	var visits []visitRecord[B]
	shapeReader := bytes.NewReader(shapeBytes)
	if err := decodeShape(t, t.root, t.rootDepth, shapeReader, &visits); err != nil {
		return nil, err
	}

	for _, layer := range layers {
		if err := readLayerPayload(body, layer, visits); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func readLayerPayload[B any](r io.Reader, layer Layer[B], visits []visitRecord[B]) error {
	for _, v := range visits {
		var err error
		switch v.kind {
		case visitSingle:
			err = layer.ReadSingle(r, v.payload, v.slot)
		case visitOcta:
			err = layer.ReadOcta(r, v.payload)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SerializeModifiedOnly writes a delta stream holding only the slots
// whose modified bit is currently set (§4.6's write-only-modified
// mode): it first runs PropagateModified with keepModified so every
// aggregate on a dirty path is brought up to date without losing the
// bits the walk below still needs, then descends restricted to those
// bits, skipping every slot whose modified bit is clear. If
// clearModified is true, every visited modified bit is cleared
// afterward, so the stream behaves as a true delta since the last
// clear; if false, writing again immediately reproduces the same
// stream.
func SerializeModifiedOnly[B any](w io.Writer, t *Tree[B], compressed, clearModified bool) error {
	t.PropagateModified(true, 0)

	var shapeBuf bytes.Buffer
	var visits []visitRecord[B]

	if err := encodeShapeModified(t.root, t.rootDepth, &shapeBuf, &visits); err != nil {
		return err
	}

	hdr := Header{
		Version:     FormatVersion,
		LeafSize:    t.geom.LeafSize,
		DepthLevels: t.geom.Depth,
		Compressed:  compressed,
		NumNodes:    uint64(len(visits)),
	}
	if err := writeHeader(w, hdr); err != nil {
		return err
	}

	body, closeBody := gzipPayloadWriter(w, compressed)

	if err := binary.Write(body, binary.LittleEndian, uint64(shapeBuf.Len())); err != nil {
		return err
	}
	if _, err := body.Write(shapeBuf.Bytes()); err != nil {
		return err
	}

	for _, layer := range t.layers {
		if err := writeLayerPayload(body, layer, visits); err != nil {
			return err
		}
	}

	if err := closeBody(); err != nil {
		return err
	}

	if clearModified {
		t.ResetModified(t.rootDepth)
	}

	return nil
}

// MergeModified reads a stream written by SerializeModifiedOnly and
// merges it into t in place: a slot present in the stream is
// overwritten, expanding or collapsing child blocks as needed to match
// the stream's shape; a slot absent from the stream keeps whatever
// value t already held for it, per §4.6's read semantics ("copies the
// payload into the indicated slots only"). Every slot the merge
// touches is marked modified, so a subsequent PropagateModified on t
// recomputes every ancestor aggregate the merge may have invalidated.
//
// Unlike Deserialize, MergeModified has no fresh tree to reconfigure:
// the stream's leaf_size/depth_levels must match t's own geometry.
func MergeModified[B any](r io.Reader, t *Tree[B]) error {
	hdr, err := readHeader(r)
	if err != nil {
		return err
	}
	if hdr.LeafSize != t.geom.LeafSize || hdr.DepthLevels != t.geom.Depth {
		return ErrGeometryMismatch
	}

	body, err := gzipPayloadReader(r, hdr.Compressed)
	if err != nil {
		return err
	}

	var shapeLen uint64
	if err := binary.Read(body, binary.LittleEndian, &shapeLen); err != nil {
		return ErrCorruptStream
	}

	shapeBytes := make([]byte, shapeLen)
	if _, err := io.ReadFull(body, shapeBytes); err != nil {
		return ErrCorruptStream
	}

	var visits []visitRecord[B]
	shapeReader := bytes.NewReader(shapeBytes)
	if err := mergeShapeModified(t, t.root, t.rootDepth, shapeReader, &visits); err != nil {
		return err
	}

	for _, layer := range t.layers {
		if err := readLayerPayload(body, layer, visits); err != nil {
			return err
		}
	}

	return nil
}

// visitKind distinguishes a terminal slot whose payload lives as one
// collapsed single-parent value from one whose payload is the 8-wide
// array of a materialized leaf block.
type visitKind uint8

const (
	visitSingle visitKind = iota
	visitOcta
)

// visitRecord names one payload record in preorder stream order, the
// same order every attribute layer's payload section follows.
type visitRecord[B any] struct {
	kind    visitKind
	payload *B
	slot    uint8 // meaningful only when kind == visitSingle
}

// encodeShape writes blk's tree-structure bytes (§4.6) and appends one
// visitRecord per terminal slot, in preorder (terminal slots of blk
// before any recursion into its expanded children, matching the order
// the structure bytes themselves are written in).
//
// Two bytes are always emitted per visited block: validReturn (bit i
// set = slot i terminates here, single or octa form) and a second byte
// whose meaning depends on depth — at d > 1 it is validInner (bit i
// set = slot i is expanded and recursively encoded next); at d == 1 it
// is validOcta (bit i set = slot i's terminal payload is the 8-wide
// leaf-block form rather than the 1-wide collapsed form).
func encodeShape[B any](blk *arena.InnerBlock[B], d uint8, buf *bytes.Buffer, visits *[]visitRecord[B]) error {
	leafBits := bitset.BitSet8(blk.Leaf)

	var validReturn, second uint8
	var children []uint8

	for s := uint8(0); s < 8; s++ {
		switch {
		case leafBits.Test(uint(s)):
			validReturn |= 1 << s
			*visits = append(*visits, visitRecord[B]{kind: visitSingle, payload: &blk.Payload, slot: s})
		case d == 1:
			validReturn |= 1 << s
			second |= 1 << s
			*visits = append(*visits, visitRecord[B]{kind: visitOcta, payload: &blk.Leaves[s].Payload})
		default:
			second |= 1 << s
			children = append(children, s)
		}
	}

	if err := buf.WriteByte(validReturn); err != nil {
		return err
	}
	if err := buf.WriteByte(second); err != nil {
		return err
	}

	for _, s := range children {
		if err := encodeShape(blk.Inner[s], d-1, buf, visits); err != nil {
			return err
		}
	}

	return nil
}

// decodeShape mirrors encodeShape: it replays the same byte layout,
// materializing an InnerBlock/LeafBlock for every expanded slot it
// finds (t.arena.AcquireInner/AcquireLeaf) and appending the same
// visitRecord sequence the writer produced, so the payload sections
// that follow line up slot-for-slot.
func decodeShape[B any](t *Tree[B], blk *arena.InnerBlock[B], d uint8, r *bytes.Reader, visits *[]visitRecord[B]) error {
	validReturn, err := r.ReadByte()
	if err != nil {
		return ErrCorruptStream
	}
	second, err := r.ReadByte()
	if err != nil {
		return ErrCorruptStream
	}

	vr := bitset.BitSet8(validReturn)
	sb := bitset.BitSet8(second)

	leaf := bitset.BitSet8(blk.Leaf)
	var children []*arena.InnerBlock[B]

	for s := uint8(0); s < 8; s++ {
		switch {
		case d == 1 && vr.Test(uint(s)) && sb.Test(uint(s)):
			leaf = leaf.Clear(uint(s))
			lb := t.arena.AcquireLeaf()
			blk.Leaves[s] = lb
			*visits = append(*visits, visitRecord[B]{kind: visitOcta, payload: &lb.Payload})
		case vr.Test(uint(s)):
			leaf = leaf.Set(uint(s))
			*visits = append(*visits, visitRecord[B]{kind: visitSingle, payload: &blk.Payload, slot: s})
		case sb.Test(uint(s)):
			leaf = leaf.Clear(uint(s))
			child := t.arena.AcquireInner()
			blk.Inner[s] = child
			children = append(children, child)
		}
	}

	blk.Leaf = uint8(leaf)

	for _, child := range children {
		if err := decodeShape(t, child, d-1, r, visits); err != nil {
			return err
		}
	}

	return nil
}

// encodeShapeModified mirrors encodeShape but restricts the walk to
// slots whose modified bit is set. A third "included" byte records
// which of blk's 8 slots are present in the stream at all, so the
// reader can tell "absent from this delta" apart from "terminal,
// single collapsed value" — the two-byte validReturn/second scheme
// alone has no spare state for that.
func encodeShapeModified[B any](blk *arena.InnerBlock[B], d uint8, buf *bytes.Buffer, visits *[]visitRecord[B]) error {
	leafBits := bitset.BitSet8(blk.Leaf)
	modBits := bitset.BitSet8(blk.Modified)

	var included, validReturn, second uint8
	var children []uint8

	for s := uint8(0); s < 8; s++ {
		if !modBits.Test(uint(s)) {
			continue
		}
		included |= 1 << s

		switch {
		case leafBits.Test(uint(s)):
			validReturn |= 1 << s
			*visits = append(*visits, visitRecord[B]{kind: visitSingle, payload: &blk.Payload, slot: s})
		case d == 1:
			validReturn |= 1 << s
			second |= 1 << s
			*visits = append(*visits, visitRecord[B]{kind: visitOcta, payload: &blk.Leaves[s].Payload})
		default:
			second |= 1 << s
			children = append(children, s)
		}
	}

	for _, b := range [3]byte{included, validReturn, second} {
		if err := buf.WriteByte(b); err != nil {
			return err
		}
	}

	for _, s := range children {
		if err := encodeShapeModified(blk.Inner[s], d-1, buf, visits); err != nil {
			return err
		}
	}

	return nil
}

// mergeShapeModified replays a stream written by encodeShapeModified
// against an already-populated tree: for every included slot it
// materializes or releases child blocks as needed to match the
// stream's terminal/recurse classification, then appends the same
// visitRecord sequence the writer produced so the payload sections
// that follow line up slot-for-slot. Slots absent from the stream are
// left exactly as they were in blk.
func mergeShapeModified[B any](t *Tree[B], blk *arena.InnerBlock[B], d uint8, r *bytes.Reader, visits *[]visitRecord[B]) error {
	included, err := r.ReadByte()
	if err != nil {
		return ErrCorruptStream
	}
	validReturn, err := r.ReadByte()
	if err != nil {
		return ErrCorruptStream
	}
	second, err := r.ReadByte()
	if err != nil {
		return ErrCorruptStream
	}

	inc := bitset.BitSet8(included)
	vr := bitset.BitSet8(validReturn)
	sb := bitset.BitSet8(second)

	leaf := bitset.BitSet8(blk.Leaf)
	modified := bitset.BitSet8(blk.Modified)
	var children []*arena.InnerBlock[B]

	for s := uint8(0); s < 8; s++ {
		if !inc.Test(uint(s)) {
			continue
		}
		modified = modified.Set(uint(s))

		isOcta := d == 1 && sb.Test(uint(s))

		switch {
		case vr.Test(uint(s)) && !isOcta:
			if !leaf.Test(uint(s)) {
				if d == 1 {
					t.arena.ReleaseLeaf(blk.Leaves[s])
					blk.Leaves[s] = nil
				} else {
					t.arena.ReleaseInner(blk.Inner[s])
					blk.Inner[s] = nil
				}
			}
			leaf = leaf.Set(uint(s))
			*visits = append(*visits, visitRecord[B]{kind: visitSingle, payload: &blk.Payload, slot: s})

		case isOcta:
			lb := blk.Leaves[s]
			if leaf.Test(uint(s)) || lb == nil {
				lb = t.arena.AcquireLeaf()
				blk.Leaves[s] = lb
			}
			leaf = leaf.Clear(uint(s))
			*visits = append(*visits, visitRecord[B]{kind: visitOcta, payload: &lb.Payload})

		default:
			child := blk.Inner[s]
			if leaf.Test(uint(s)) || child == nil {
				child = t.arena.AcquireInner()
				child.Leaf = 0xFF
				blk.Inner[s] = child
			}
			leaf = leaf.Clear(uint(s))
			children = append(children, child)
		}
	}

	blk.Leaf = uint8(leaf)
	blk.Modified = uint8(modified)

	for _, child := range children {
		if err := mergeShapeModified(t, child, d-1, r, visits); err != nil {
			return err
		}
	}

	return nil
}
