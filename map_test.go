// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "testing"

func TestOccupancyMapAtClassifiesUnknownFreeOccupied(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	unknownPt := Point3{X: 0.95, Y: 0.95, Z: 0.95}
	if _, ok := m.At(unknownPt); ok {
		t.Fatal("never-visited voxel should report ok=false")
	}

	hitPt := Point3{X: 0.05, Y: 0.05, Z: 0.05}
	for i := 0; i < 5; i++ {
		if err := m.InsertHit(hitPt); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}

	class, ok := m.At(hitPt)
	if !ok {
		t.Fatal("expected a repeatedly-hit voxel to resolve")
	}
	if class != Occupied {
		t.Fatalf("classification = %v, want Occupied", class)
	}

	missPt := Point3{X: -0.05, Y: -0.05, Z: -0.05}
	for i := 0; i < 5; i++ {
		if err := m.InsertMiss(missPt); err != nil {
			t.Fatalf("InsertMiss: %v", err)
		}
	}
	class, ok = m.At(missPt)
	if !ok {
		t.Fatal("expected a repeatedly-missed voxel to resolve")
	}
	if class != Free {
		t.Fatalf("classification = %v, want Free", class)
	}
}

func TestOccupancyMapRejectsOutOfBounds(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 4}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	far := geom.RootHalfWidth() * 10
	if err := m.InsertHit(Point3{X: far, Y: far, Z: far}); err != ErrOutOfBounds {
		t.Fatalf("InsertHit out of bounds = %v, want ErrOutOfBounds", err)
	}
}

func TestOccupancyColorMapCarriesColorAlongside(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 8}
	m, err := NewOccupancyColorMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyColorMap: %v", err)
	}

	p := Point3{X: 0.05, Y: 0.05, Z: 0.05}
	want := RGB{10, 20, 30}
	if err := m.InsertHit(p, want); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}

	code, err := codeFor(geom, p)
	if err != nil {
		t.Fatalf("codeFor: %v", err)
	}
	payload, depth, ok := m.FindNode(code)
	if !ok {
		t.Fatal("voxel not found after InsertHit")
	}
	if got := payload.Color[code.Index(depth)]; got != want {
		t.Fatalf("stored color = %+v, want %+v", got, want)
	}
}

func TestFullMapComposesAllLayers(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 8}
	m, err := NewFullMap(geom, SemanticMax)
	if err != nil {
		t.Fatalf("NewFullMap: %v", err)
	}

	p := Point3{X: 0.05, Y: 0.05, Z: 0.05}
	if err := m.InsertHit(p, 1000.0); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}

	code, err := codeFor(geom, p)
	if err != nil {
		t.Fatalf("codeFor: %v", err)
	}

	if err := m.Apply(code, func(payload *fullBlock, slot uint8) {
		var s SemanticSet
		s = s.insert(7, 3)
		payload.Semantic.Slots[slot] = s
		payload.Color[slot] = RGB{1, 2, 3}
	}, nil, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	payload, depth, ok := m.FindNode(code)
	if !ok {
		t.Fatal("voxel not found")
	}
	slot := code.Index(depth)

	if payload.HitCount[slot] != 1 {
		t.Fatalf("HitCount = %d, want 1", payload.HitCount[slot])
	}
	if payload.TimeStamp[slot] != 1000.0 {
		t.Fatalf("TimeStamp = %v, want 1000.0", payload.TimeStamp[slot])
	}
	if v, ok := payload.Semantic.Slots[slot].Find(7); !ok || v != 3 {
		t.Fatalf("semantic Find(7) = (%d,%v), want (3,true)", v, ok)
	}
	if payload.Color[slot] != (RGB{1, 2, 3}) {
		t.Fatalf("Color = %+v, want {1 2 3}", payload.Color[slot])
	}
}

func TestMetricsReflectsInsertedNodes(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	for i := 0; i < 12; i++ {
		if err := m.InsertHit(Point3{X: float64(i) * 0.1, Y: 0, Z: 0}); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}
	m.PropagateModified(false, 0)

	metrics := m.Metrics()
	if metrics.NumLeafNodes == 0 {
		t.Fatal("expected at least one leaf node recorded in metrics")
	}
	if metrics.AllocatedLeafBlocks == 0 {
		t.Fatal("expected at least one allocated leaf block recorded in metrics")
	}
}

func TestCloneIsIndependentDeepCopy(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	p := Point3{X: 0.05, Y: 0.05, Z: 0.05}
	if err := m.InsertHit(p); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}
	m.PropagateModified(false, 0)

	clonedTree := m.Tree.Clone()
	clone := &OccupancyMap{Tree: clonedTree, params: m.params}

	if err := m.InsertHit(p); err != nil {
		t.Fatalf("InsertHit on original: %v", err)
	}
	m.PropagateModified(false, 0)

	code, err := codeFor(geom, p)
	if err != nil {
		t.Fatalf("codeFor: %v", err)
	}
	origPayload, depth, _ := m.FindNode(code)
	clonePayload, cloneDepth, _ := clone.FindNode(code)

	if origPayload.LogOdds[code.Index(depth)] == clonePayload.LogOdds[code.Index(cloneDepth)] {
		t.Fatal("mutating the original after Clone must not affect the clone")
	}
}
