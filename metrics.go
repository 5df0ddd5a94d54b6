// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "github.com/ufomap/ufomap/internal/bitset"

// MapMetrics is a point-in-time snapshot of the counters invariant 7
// (§3.2) requires to stay consistent: the three node-kind counts sum
// to the live slot count of every existing block, and the allocated
// counts include recycled-but-resident blocks. This is the Go
// equivalent of the teacher's Table.Stats()/pool debug counters
// (pool.go, metrics_test.go), surfaced here as a single snapshot
// struct instead of bart's "/ipv4/size:count"-keyed map, since the
// octree has a fixed, small set of counters rather than an open-ended
// per-family statistics namespace.
type MapMetrics struct {
	// NumInnerNodes counts materialized inner slots at depth > 0 whose
	// leaf bit is clear, i.e. slots with an expanded child block.
	NumInnerNodes int64

	// NumInnerLeafNodes counts inner slots at depth > 0 whose leaf bit
	// is set: collapsed slots that carry only a single-parent payload.
	NumInnerLeafNodes int64

	// NumLeafNodes counts depth-0 voxels inside materialized leaf blocks.
	NumLeafNodes int64

	// LiveInnerBlocks/LiveLeafBlocks are the block-arena's currently
	// resident block counts (§3.3); AllocatedInnerBlocks/
	// AllocatedLeafBlocks additionally include blocks sitting on the
	// free-stack recycler (§4.2).
	LiveInnerBlocks      int64
	AllocatedInnerBlocks int64
	LiveLeafBlocks       int64
	AllocatedLeafBlocks  int64
}

// Metrics returns a snapshot of t's node and block counters.
func (t *Tree[B]) Metrics() MapMetrics {
	liveInner, allocInner, liveLeaf, allocLeaf := t.arena.Stats()

	m := MapMetrics{
		LiveInnerBlocks:      liveInner,
		AllocatedInnerBlocks: allocInner,
		LiveLeafBlocks:       liveLeaf,
		AllocatedLeafBlocks:  allocLeaf,
	}

	t.countRec(t.root, t.rootDepth, &m)

	return m
}

func (t *Tree[B]) countRec(blk *InnerBlock[B], d uint8, m *MapMetrics) {
	leafBits := bitset.BitSet8(blk.Leaf)

	for s := uint8(0); s < 8; s++ {
		if leafBits.Test(uint(s)) {
			m.NumInnerLeafNodes++
			continue
		}

		m.NumInnerNodes++

		if d == 1 {
			m.NumLeafNodes += 8
			continue
		}

		t.countRec(blk.Inner[s], d-1, m)
	}
}
