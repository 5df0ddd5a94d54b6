// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "testing"

// TestScenarioS1 (§8 S1): insert occupancy log-odds = +0.85 at a
// point, propagate, and read back +0.85 at depth 0 and at the root.
func TestScenarioS1(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 16}

	m, err := NewOccupancyMap(geom, WithOccupancyParams(OccupancyParams{
		ClampMin: -10, ClampMax: 10, AggregationCriterion: AggMax,
	}))
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	p := Point3{X: 0.05, Y: 0.05, Z: 0.05}

	code, err := codeFor(geom, p)
	if err != nil {
		t.Fatalf("codeFor: %v", err)
	}

	if err := m.Apply(code, func(payload *occupancyBlock, slot uint8) {
		payload.LogOdds[slot] = 0.85
	}, nil, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	m.PropagateModified(false, 0)

	payload, depth, ok := m.FindNode(code)
	if !ok {
		t.Fatal("leaf not found after write")
	}
	if got := payload.LogOdds[code.Index(depth)]; got != 0.85 {
		t.Fatalf("leaf log-odds = %v, want 0.85", got)
	}

	rootPayload, _, ok := m.FindNode(code.Parent(m.RootDepth()))
	if !ok {
		t.Fatal("root node not found")
	}
	if got := rootPayload.LogOdds[code.Index(m.RootDepth())]; got != 0.85 {
		t.Fatalf("root aggregate = %v, want 0.85 (max aggregation)", got)
	}
}

// TestScenarioS2 (§8 S2): inserting the same value at all 8 children
// of a depth-1 parent collapses the block on propagation.
func TestScenarioS2(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 16}

	m, err := NewOccupancyMap(geom, WithOccupancyParams(OccupancyParams{
		ClampMin: -10, ClampMax: 10, AggregationCriterion: AggMax,
	}))
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	base := Point3{X: 0.0, Y: 0.0, Z: 0.0}
	parentCode, err := codeFor(geom, base)
	if err != nil {
		t.Fatalf("codeFor: %v", err)
	}
	parentCode = parentCode.Parent(1)

	for i := uint8(0); i < 8; i++ {
		childCode := parentCode.Child(i)
		if err := m.Apply(childCode, func(payload *occupancyBlock, slot uint8) {
			payload.LogOdds[slot] = 0.85
		}, nil, false); err != nil {
			t.Fatalf("Apply child %d: %v", i, err)
		}
	}

	m.PropagateModified(false, m.RootDepth())

	_, depth, ok := m.FindNode(parentCode.Child(0))
	if ok {
		t.Fatal("expected the depth-1 block to have been collapsed away")
	}
	if depth != 1 {
		t.Fatalf("FindNode stopped at depth %d, want 1 (the now-leaf parent)", depth)
	}

	parentPayload, _, ok := m.FindNode(parentCode)
	if !ok {
		t.Fatal("parent slot itself should still resolve")
	}
	if got := parentPayload.LogOdds[parentCode.Index(1)]; got != 0.85 {
		t.Fatalf("collapsed parent log-odds = %v, want 0.85", got)
	}
}

// TestPropagateModifiedIdempotent is property 4 (§8): a second
// propagation pass after the first is a no-op (no panics, no changed
// aggregates, modified bits already clear).
func TestPropagateModifiedIdempotent(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	for i := 0; i < 20; i++ {
		p := Point3{X: float64(i) * 0.1, Y: 0, Z: 0}
		if err := m.InsertHit(p); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}

	m.PropagateModified(false, 0)

	before := snapshotOccupancy(t, m)
	m.PropagateModified(false, 0)
	after := snapshotOccupancy(t, m)

	if len(before) != len(after) {
		t.Fatalf("node count changed across idempotent propagate: %d -> %d", len(before), len(after))
	}
	for code, v := range before {
		if after[code] != v {
			t.Fatalf("value at %+v changed across idempotent propagate: %v -> %v", code, v, after[code])
		}
	}
}

// TestApplyMarksOnlyAncestorPath is property 3 (§8): after a successful
// write at code c, every ancestor of c has its modified bit for the
// relevant slot set, and no sibling slot's modified bit is falsely set.
func TestApplyMarksOnlyAncestorPath(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	p := Point3{X: 0.05, Y: 0.05, Z: 0.05}
	code, err := codeFor(geom, p)
	if err != nil {
		t.Fatalf("codeFor: %v", err)
	}

	if err := m.Apply(code, func(payload *occupancyBlock, slot uint8) {
		payload.LogOdds[slot] = 0.5
	}, nil, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	blk := m.root
	for d := m.RootDepth(); d >= 1; d-- {
		slot := code.Index(d)

		if blk.Modified&(1<<slot) == 0 {
			t.Fatalf("depth %d slot %d: modified bit not set on the write path", d, slot)
		}

		for s := uint8(0); s < 8; s++ {
			if s == slot {
				continue
			}
			if blk.Modified&(1<<s) != 0 {
				t.Fatalf("depth %d slot %d: modified bit falsely set on sibling slot %d", d, slot, s)
			}
		}

		if d == 1 {
			break
		}
		blk = blk.Inner[slot]
	}
}

func snapshotOccupancy(t *testing.T, m *OccupancyMap) map[Code]float32 {
	t.Helper()
	out := map[Code]float32{}
	for match := range m.Query(Predicate[occupancyBlock]{}) {
		out[match.Code] = match.Payload.LogOdds[match.Slot()]
	}
	return out
}

// TestResetModifiedDoesNotRecompute is §4.3.5's ResetModified: it
// clears modified bits without touching aggregates.
func TestResetModifiedDoesNotRecompute(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	p := Point3{X: 0.05, Y: 0.05, Z: 0.05}
	if err := m.InsertHit(p); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}

	m.ResetModified(m.RootDepth())

	if m.root.Modified != 0 {
		t.Fatalf("root.Modified = %08b, want 0 after ResetModified", m.root.Modified)
	}

	code, err := codeFor(geom, p)
	if err != nil {
		t.Fatalf("codeFor: %v", err)
	}
	if got := m.root.Payload.LogOdds[code.Index(m.RootDepth())]; got != 0 {
		t.Fatalf("root aggregate = %v after ResetModified, want 0 (the hit was never propagated)", got)
	}
}
