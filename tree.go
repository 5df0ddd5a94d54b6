// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"github.com/ufomap/ufomap/internal/arena"
	"github.com/ufomap/ufomap/internal/bitset"
)

// Tree is the octree index (C3): a fixed-height, 8-way tree of
// block-allocated sibling groups, generic over the caller's
// struct-of-arrays attribute payload B. It is the engine every
// concrete map type (OccupancyMap, OccupancyColorMap, FullMap, ...)
// embeds and configures with its own set of LayerOps.
//
// This plays the role the teacher's Table[V] plays for a routing
// table: Table owns the root *node[V] and drives Insert/Update's
// descend-and-mutate traversal; Tree owns the root block and drives
// Apply's descend-and-mutate traversal, generalized from bart's
// single popcount-compressed child array to the two-pool block arena
// C2 needs (§3.1, §3.3).
type Tree[B any] struct {
	root      *arena.InnerBlock[B]
	arena     *arena.Arena[B]
	geom      Geometry
	layers    []Layer[B]
	rootDepth uint8
}

// NewTree builds an empty tree: a single root block, every slot
// collapsed (leaf bit set), no children materialized.
//
// reuse enables the free-stack block recycler; lockless assumes a
// single writer and skips the per-depth creation locks (§3.3, §4.2).
func NewTree[B any](geom Geometry, layers []Layer[B], reuse, lockless bool) (*Tree[B], error) {
	if geom.Depth < MinDepthLevels || geom.Depth > MaxDepthLevels {
		return nil, ErrDepthLevels
	}

	root := new(arena.InnerBlock[B])
	root.Leaf = 0xFF // every slot starts collapsed into Payload

	return &Tree[B]{
		root:      root,
		arena:     arena.New[B](geom.Depth, reuse, lockless),
		geom:      geom,
		layers:    layers,
		rootDepth: geom.Depth - 1,
	}, nil
}

// Geometry returns the tree's quantization geometry.
func (t *Tree[B]) Geometry() Geometry { return t.geom }

// RootDepth returns D-1, the depth of the root block's own slots.
func (t *Tree[B]) RootDepth() uint8 { return t.rootDepth }

// Stats exposes the underlying arena's live/allocated block counts.
func (t *Tree[B]) Stats() (liveInner, allocInner, liveLeaf, allocLeaf int64) {
	return t.arena.Stats()
}

// Layers returns the tree's configured attribute layers, in the fixed
// order the serializer and façade both iterate them.
func (t *Tree[B]) Layers() []Layer[B] { return t.layers }

// Root exposes the root block for the serializer's tree-structure walk.
func (t *Tree[B]) Root() *arena.InnerBlock[B] { return t.root }

// locateResult is what a root-to-target descent arrives at: either an
// inner slot of blk (leafBlk == nil), or a leaf slot of leafBlk
// (reached only when code.Depth == 0).
type locateResult[B any] struct {
	blk     *arena.InnerBlock[B]
	slot    uint8
	depth   uint8 // depth of blk's own slots
	leafBlk *arena.LeafBlock[B]
}

// payload returns the *B this result addresses and, for a leaf-block
// hit, the leaf slot index (otherwise the inner slot index).
func (r locateResult[B]) payload() (p *B, slot uint8) {
	if r.leafBlk != nil {
		return &r.leafBlk.Payload, r.slot
	}
	return &r.blk.Payload, r.slot
}

// locate walks from the root along code's path. When create is true,
// it materializes missing inner/leaf blocks as it goes (§3.3); when
// false, it stops at the first collapsed slot it cannot descend
// through and reports ok=false.
//
// depthReached ≥ code.Depth whenever the walk stops early at a
// collapsed slot (exists=false but the aggregate at that slot is
// still the correct answer for anything coarser than code.Depth).
func (t *Tree[B]) locate(code Code, create bool) (res locateResult[B], exists bool) {
	if code.Depth > t.rootDepth {
		return locateResult[B]{}, false
	}

	d := t.rootDepth
	cur := t.root

	for {
		slot := code.Index(d)

		if d == code.Depth {
			return locateResult[B]{blk: cur, slot: slot, depth: d}, true
		}

		if d == 1 {
			// code.Depth == 0: one more step, into the leaf block under slot.
			if bitset.BitSet8(cur.Leaf).Test(uint(slot)) {
				if !create {
					return locateResult[B]{blk: cur, slot: slot, depth: d}, false
				}
				t.expandSlot(cur, d, slot)
			}
			return locateResult[B]{blk: cur, slot: code.Index(0), depth: 0, leafBlk: cur.Leaves[slot]}, true
		}

		if bitset.BitSet8(cur.Leaf).Test(uint(slot)) {
			if !create {
				return locateResult[B]{blk: cur, slot: slot, depth: d}, false
			}
			t.expandSlot(cur, d, slot)
		}

		cur = cur.Inner[slot]
		d--
	}
}

// expandSlot materializes the children of parent's slot at depth d
// (the depth of parent's own slots), filling every one of the 8 new
// children from parent's single-parent payload at slot, per §3.3.
func (t *Tree[B]) expandSlot(parent *arena.InnerBlock[B], d uint8, slot uint8) {
	t.arena.LockDepth(d)
	defer t.arena.UnlockDepth(d)

	// re-check: another goroutine may have expanded this slot while we
	// waited for the lock.
	if !bitset.BitSet8(parent.Leaf).Test(uint(slot)) {
		return
	}

	if d == 1 {
		lb := t.arena.AcquireLeaf()
		for j := uint8(0); j < 8; j++ {
			for _, l := range t.layers {
				l.Fill(&parent.Payload, slot, &lb.Payload, j)
			}
		}
		parent.Leaves[slot] = lb
	} else {
		ib := t.arena.AcquireInner()
		ib.Leaf = 0xFF
		for j := uint8(0); j < 8; j++ {
			for _, l := range t.layers {
				l.Fill(&parent.Payload, slot, &ib.Payload, j)
			}
		}
		parent.Inner[slot] = ib
	}

	parent.Leaf = uint8(bitset.BitSet8(parent.Leaf).Clear(uint(slot)))
	parent.Modified = uint8(bitset.BitSet8(parent.Modified).Set(uint(slot)))
}

// FindNode returns the existing node addressed by code without
// creating anything. ok is false if code's exact depth was never
// materialized (the subtree above it is still collapsed); depth
// reports how far the walk actually got.
func (t *Tree[B]) FindNode(code Code) (payload *B, depth uint8, ok bool) {
	res, exists := t.locate(code, false)
	if !exists {
		p, _ := res.payload()
		return p, res.depth, false
	}
	p, _ := res.payload()
	return p, res.depth, true
}

// CreateNode forces materialization down to code.Depth and returns a
// handle to the resulting payload slot, without altering any
// aggregate value (§4.3.3). markModified, if true, also sets the
// modified bit on every inner slot along the path from the root.
func (t *Tree[B]) CreateNode(code Code, markModified bool) (payload *B, slot uint8, err error) {
	if code.Depth > t.rootDepth {
		return nil, 0, ErrDepthOutOfRange
	}

	res, _ := t.locate(code, true)

	if markModified {
		t.markPath(code)
	}

	p, s := res.payload()
	return p, s, nil
}

// markPath sets the modified bit on every inner slot the path from
// the root to code passes through, without creating anything.
func (t *Tree[B]) markPath(code Code) {
	d := t.rootDepth
	cur := t.root

	for d > code.Depth && d >= 1 {
		slot := code.Index(d)
		cur.Modified = uint8(bitset.BitSet8(cur.Modified).Set(uint(slot)))

		if bitset.BitSet8(cur.Leaf).Test(uint(slot)) {
			return // nothing materialized below here yet
		}
		if d == 1 {
			return
		}
		cur = cur.Inner[slot]
		d--
	}
}

// Apply is the generic mutator entry point (§4.3.2): it descends from
// the root, creating blocks as needed, and reaches the 8-wide payload
// addressed by code — a leaf block's per-slot payload when
// code.Depth == 0, or an inner node's own single-parent payload
// otherwise. fLeaf, if non-nil, is called with that payload and the
// slot index code addresses (single-slot mutation); fBlock, if
// non-nil, is called with the whole 8-wide payload (whole-block
// mutation). Either or both may be supplied. Every inner slot on the
// path from the root to the target is marked modified. If propagate
// is true, PropagateModified is run over the whole tree afterward.
func (t *Tree[B]) Apply(code Code, fLeaf func(payload *B, slot uint8), fBlock func(payload *B), propagate bool) error {
	if code.Depth > t.rootDepth {
		return ErrDepthOutOfRange
	}

	res, _ := t.locate(code, true)
	t.markPath(code)

	payload, slot := res.payload()
	if fLeaf != nil {
		fLeaf(payload, slot)
	}
	if fBlock != nil {
		fBlock(payload)
	}

	if propagate {
		t.PropagateModified(false, 0)
	}

	return nil
}

// SetModified forces every inner slot at depth >= minDepth to be
// modified, top-down from the root, descending only through slots
// that are already expanded (there is nothing to mark below a
// collapsed slot). Used before reading the map after the caller
// changed an aggregation criterion in place (§4.3.5).
func (t *Tree[B]) SetModified(minDepth uint8) {
	t.setModifiedRec(t.root, t.rootDepth, minDepth)
}

func (t *Tree[B]) setModifiedRec(blk *arena.InnerBlock[B], d uint8, minDepth uint8) {
	if d < minDepth {
		return
	}

	blk.Modified = 0xFF

	leafBits := bitset.BitSet8(blk.Leaf)
	for i := uint8(0); i < 8; i++ {
		if leafBits.Test(uint(i)) {
			continue
		}
		if d == 1 {
			continue // leaf blocks carry no modified bitfield of their own
		}
		t.setModifiedRec(blk.Inner[i], d-1, minDepth)
	}
}

// ResetModified clears modified bits at depth <= maxDepth without
// recomputing any aggregate (§4.3.5's non-propagating clear, per
// DESIGN.md's resolution of the source's resetModified TODO): a plain
// bitwise clear of every modified byte at or below maxDepth, leaving
// aggregates exactly as they were.
func (t *Tree[B]) ResetModified(maxDepth uint8) {
	t.resetModifiedRec(t.root, t.rootDepth, maxDepth)
}

func (t *Tree[B]) resetModifiedRec(blk *arena.InnerBlock[B], d uint8, maxDepth uint8) {
	if d <= maxDepth {
		blk.Modified = 0
	}

	leafBits := bitset.BitSet8(blk.Leaf)
	for i := uint8(0); i < 8; i++ {
		if leafBits.Test(uint(i)) || d == 1 {
			continue
		}
		t.resetModifiedRec(blk.Inner[i], d-1, maxDepth)
	}
}
