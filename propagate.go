// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"github.com/ufomap/ufomap/internal/arena"
	"github.com/ufomap/ufomap/internal/bitset"
)

// PropagateModified is the only safe path to a query-consistent state
// after writes (§4.3.5): a top-down scan restricted by each block's
// modified bitfield that recurses to the bottom of every dirty path,
// aggregates each attribute layer bottom-up on the way back, and
// opportunistically collapses any slot at depth <= maxDepth whose
// children are, per every registered layer, now indistinguishable
// from a single uniform value.
//
// keepModified, if true, leaves every visited modified bit set instead
// of clearing it (used by callers who intend to re-propagate without
// re-marking, e.g. a dry-run aggregation pass).
func (t *Tree[B]) PropagateModified(keepModified bool, maxDepth uint8) {
	t.propagateRec(t.root, t.rootDepth, keepModified, maxDepth)
}

func (t *Tree[B]) propagateRec(blk *arena.InnerBlock[B], d uint8, keepModified bool, maxDepth uint8) {
	if blk.Modified == 0 {
		return
	}

	modBits := bitset.BitSet8(blk.Modified)
	leafBits := bitset.BitSet8(blk.Leaf)

	for i := uint8(0); i < 8; i++ {
		if !modBits.Test(uint(i)) || leafBits.Test(uint(i)) {
			continue
		}

		if d == 1 {
			lb := blk.Leaves[i]
			for _, l := range t.layers {
				l.Aggregate(&blk.Payload, i, &lb.Payload)
			}
		} else {
			child := blk.Inner[i]
			t.propagateRec(child, d-1, keepModified, maxDepth)
			for _, l := range t.layers {
				l.Aggregate(&blk.Payload, i, &child.Payload)
			}
		}

		if d <= maxDepth && t.collapsible(blk, d, i) {
			t.collapseSlot(blk, d, i)
		}
	}

	if !keepModified {
		blk.Modified = 0
	}
}

// collapsible reports whether every registered attribute layer agrees
// that slot i's 8 children (the block reached by descending into
// blk's slot i) are indistinguishable from one uniform value, per the
// default predicates table in §4.3.4.
func (t *Tree[B]) collapsible(blk *arena.InnerBlock[B], d uint8, slot uint8) bool {
	var payload *B
	if d == 1 {
		payload = &blk.Leaves[slot].Payload
	} else {
		payload = &blk.Inner[slot].Payload
	}

	for _, l := range t.layers {
		if !l.Collapsible(payload) {
			return false
		}
	}

	return true
}

// collapseSlot marks blk's slot as a leaf and drops its child block.
// The child block is only actually returned to the arena's free stack
// when it is itself fully collapsed (leaf == 0xFF): invariant 6 and
// §4.2's deallocation rule both require that a recycled block hold no
// live grandchildren, since Release* only resets the block's own
// fields and cannot reach through stale child pointers to free them
// too. A partially-collapsed child is simply dropped (unreachable, so
// the garbage collector reclaims it and everything beneath it) rather
// than pushed onto the recycler.
func (t *Tree[B]) collapseSlot(blk *arena.InnerBlock[B], d uint8, slot uint8) {
	if d == 1 {
		t.arena.ReleaseLeaf(blk.Leaves[slot])
		blk.Leaves[slot] = nil
	} else {
		child := blk.Inner[slot]
		if bitset.BitSet8(child.Leaf).All() {
			t.arena.ReleaseInner(child)
		}
		blk.Inner[slot] = nil
	}

	blk.Leaf = uint8(bitset.BitSet8(blk.Leaf).Set(uint(slot)))
}
