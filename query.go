// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"github.com/ufomap/ufomap/internal/arena"
	"github.com/ufomap/ufomap/internal/bitset"
)

// NodeMatch is what Query yields: the code addressing a node, and a
// pointer to the 8-wide Payload array of the block that holds it.
// Code.Index(Code.Depth) selects which of the 8 entries is this node's
// own slot.
type NodeMatch[B any] struct {
	Code    Code
	Payload *B
}

// Slot returns the index of this node's own slot within Payload.
func (m NodeMatch[B]) Slot() uint8 { return m.Code.Index(m.Code.Depth) }

// Predicate drives the preorder traversal of Query and
// BoundingVolumeQuery (§4.5). Value reports whether a given node
// itself matches; Inner reports whether an already-expanded node's
// subtree might still contain a match, letting the walk skip whole
// branches. A nil field means "always true" — an unbounded predicate
// that visits (or descends into) everything.
type Predicate[B any] struct {
	Value func(code Code, payload *B) bool
	Inner func(code Code, payload *B) bool
}

// codeAt replaces the triplet at position depth of parentBits with
// slot, producing the code of that slot's node. This is the traversal
// analogue of Code.Child/Code.Sibling, except the caller supplies the
// depth explicitly instead of deriving it from an existing Code, since
// the walk is descending through block depths rather than starting
// from a known target code.
func codeAt(parentBits uint64, depth uint8, slot uint8) Code {
	shift := 3 * uint(depth)
	mask := uint64(0x7) << shift
	bits := (parentBits &^ mask) | (uint64(slot&0x7) << shift)
	return Code{bits: bits, Depth: depth}
}

// Query returns a range-over-func iterator over every existing node
// — inner aggregate slots and leaf voxels alike — in preorder,
// child-slot order 0..7, restricted by pred. Descent into an expanded
// slot's subtree is skipped when pred.Inner rejects it, mirroring the
// traversal-stack iterator idiom of the teacher's table_iter.go, here
// driving a block-arena walk instead of a popcount-compressed trie.
func (t *Tree[B]) Query(pred Predicate[B]) func(yield func(NodeMatch[B]) bool) {
	return func(yield func(NodeMatch[B]) bool) {
		t.walk(t.root, t.rootDepth, 0, pred, yield)
	}
}

func (t *Tree[B]) walk(blk *arena.InnerBlock[B], d uint8, bitsSoFar uint64, pred Predicate[B], yield func(NodeMatch[B]) bool) bool {
	leafBits := bitset.BitSet8(blk.Leaf)

	for s := uint8(0); s < 8; s++ {
		code := codeAt(bitsSoFar, d, s)

		if pred.Value == nil || pred.Value(code, &blk.Payload) {
			if !yield(NodeMatch[B]{Code: code, Payload: &blk.Payload}) {
				return false
			}
		}

		if leafBits.Test(uint(s)) {
			continue
		}

		if pred.Inner != nil && !pred.Inner(code, &blk.Payload) {
			continue
		}

		if d == 1 {
			if !t.walkLeaf(blk.Leaves[s], code.bits, pred, yield) {
				return false
			}
			continue
		}

		if !t.walk(blk.Inner[s], d-1, code.bits, pred, yield) {
			return false
		}
	}

	return true
}

func (t *Tree[B]) walkLeaf(lb *arena.LeafBlock[B], bitsSoFar uint64, pred Predicate[B], yield func(NodeMatch[B]) bool) bool {
	for s := uint8(0); s < 8; s++ {
		code := codeAt(bitsSoFar, 0, s)

		if pred.Value == nil || pred.Value(code, &lb.Payload) {
			if !yield(NodeMatch[B]{Code: code, Payload: &lb.Payload}) {
				return false
			}
		}
	}

	return true
}

// BoundingCube is the axis-aligned cube a node's code addresses.
type BoundingCube struct {
	Center    Point3
	HalfWidth float64
}

// BoundedMatch is a NodeMatch paired with its bounding cube (§4.5's
// "bounding-volume iterator").
type BoundedMatch[B any] struct {
	NodeMatch[B]
	Cube BoundingCube
}

// cubeFor computes the bounding cube a code addresses from the tree's
// geometry: the center is the same formula ToCoord uses, and the
// half-width is half a depth-0 voxel edge scaled by 2^depth.
func (t *Tree[B]) cubeFor(code Code) BoundingCube {
	half := t.geom.LeafSize / 2
	if code.Depth > 0 {
		half = t.geom.LeafSize * float64(int64(1)<<(code.Depth-1))
	}

	return BoundingCube{
		Center:    t.geom.ToCoord(code.Key()),
		HalfWidth: half,
	}
}

// BoundingVolumeQuery is Query, additionally reporting each yielded
// node's bounding cube.
func (t *Tree[B]) BoundingVolumeQuery(pred Predicate[B]) func(yield func(BoundedMatch[B]) bool) {
	return func(yield func(BoundedMatch[B]) bool) {
		t.Query(pred)(func(m NodeMatch[B]) bool {
			return yield(BoundedMatch[B]{NodeMatch: m, Cube: t.cubeFor(m.Code)})
		})
	}
}
