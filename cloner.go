// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "github.com/ufomap/ufomap/internal/arena"

// Clone returns a deep copy of t: a fresh arena, every live block
// recursively duplicated, sharing no pointers with the original.
//
// The source's OccupancyMapTime::operator= round-trips through its own
// in-memory serialization format instead, which makes assignment exact
// only up to file-format fidelity (§9's design-notes open question 2).
// We take the design notes' own stated preference and implement a
// direct structural copy instead of a serialize/deserialize round
// trip: nothing here is lossy, and a map with no attribute layers
// shaped to survive a wire round trip (e.g. one storing a value the
// layer's WriteSingle/ReadSingle pair does not faithfully preserve,
// such as a NaN payload under a codec that canonicalizes NaNs) would
// silently diverge from its source under the round-trip semantics.
// This is recorded as a deliberate Open Question resolution in
// DESIGN.md.
func (t *Tree[B]) Clone() *Tree[B] {
	clone := &Tree[B]{
		arena:     arena.New[B](t.geom.Depth, true, t.arena.Lockless()),
		geom:      t.geom,
		layers:    t.layers,
		rootDepth: t.rootDepth,
	}

	clone.root = cloneInner(clone.arena, t.root, t.rootDepth)

	return clone
}

func cloneInner[B any](a *arena.Arena[B], src *arena.InnerBlock[B], d uint8) *arena.InnerBlock[B] {
	dst := a.AcquireInner()
	dst.Leaf = src.Leaf
	dst.Modified = src.Modified
	dst.Payload = src.Payload

	for i := uint8(0); i < 8; i++ {
		switch {
		case src.Leaves[i] != nil:
			dst.Leaves[i] = cloneLeaf(a, src.Leaves[i])
		case src.Inner[i] != nil:
			dst.Inner[i] = cloneInner(a, src.Inner[i], d-1)
		}
	}

	return dst
}

func cloneLeaf[B any](a *arena.Arena[B], src *arena.LeafBlock[B]) *arena.LeafBlock[B] {
	dst := a.AcquireLeaf()
	dst.Payload = src.Payload
	return dst
}
