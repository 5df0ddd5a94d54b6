// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"math"
	"testing"
)

// TestScenarioS6 (§8 S6): nearest-neighbor search from a query point
// returns the closest inserted voxel first. The query filters on
// positive log-odds: an unfiltered query also yields collapsed unknown
// slots and untouched voxels, which sit at log-odds 0.
func TestScenarioS6(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	pts := []Point3{
		{X: 1.0, Y: 0, Z: 0},
		{X: -1.0, Y: 0, Z: 0},
		{X: 0, Y: 0.15, Z: 0},
		{X: 0, Y: -2.0, Z: 0},
	}
	for _, p := range pts {
		if err := m.InsertHit(p); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}
	m.PropagateModified(false, 0)

	query := Point3{X: 0, Y: 0, Z: 0}
	occupied := Predicate[occupancyBlock]{
		Value: func(code Code, payload *occupancyBlock) bool {
			return payload.LogOdds[code.Index(code.Depth)] > 0
		},
	}

	var first NodeMatch[occupancyBlock]
	var got bool
	for match, _ := range m.NearestQuery(query, occupied, 0) {
		first = match
		got = true
		break
	}
	if !got {
		t.Fatal("NearestQuery yielded nothing")
	}

	wantCoord := Point3{X: 0, Y: 0.15, Z: 0}
	gotCoord := geom.ToCoord(first.Code.Key())

	dist := math.Hypot(math.Hypot(gotCoord.X-wantCoord.X, gotCoord.Y-wantCoord.Y), gotCoord.Z-wantCoord.Z)
	if dist > geom.LeafSize {
		t.Fatalf("nearest voxel at %+v, want near %+v", gotCoord, wantCoord)
	}
}

// TestNearestQueryOrdersByDistance verifies successive yields are
// non-decreasing in squared distance (property 10, §8: best-first order).
func TestNearestQueryOrdersByDistance(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	for i := 0; i < 15; i++ {
		if err := m.InsertHit(Point3{X: float64(i) * 0.13, Y: float64(i%3) * 0.1, Z: 0}); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}
	m.PropagateModified(false, 0)

	query := Point3{X: 0.5, Y: 0.5, Z: 0}

	prev := -1.0
	count := 0
	for _, key := range m.NearestQuery(query, Predicate[occupancyBlock]{}, 0) {
		if key < prev {
			t.Fatalf("NearestQuery yielded out of order: %v after %v", key, prev)
		}
		prev = key
		count++
	}

	if count == 0 {
		t.Fatal("expected at least one result")
	}
}

func TestNearestQueryEpsilonEarlyStop(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	if err := m.InsertHit(Point3{X: 0, Y: 0, Z: 0}); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}
	if err := m.InsertHit(Point3{X: 1.0, Y: 0, Z: 0}); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}
	m.PropagateModified(false, 0)

	query := Point3{X: 0, Y: 0, Z: 0}

	count := 0
	first := -1.0
	for _, key := range m.NearestQuery(query, Predicate[occupancyBlock]{}, 0) {
		if first < 0 {
			first = key
		}
		if key > first {
			t.Fatalf("epsilon=0 yielded key %v after first key %v; the walk should have stopped", key, first)
		}
		count++
	}

	if count == 0 {
		t.Fatal("expected at least one nearest result")
	}
}
