// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"strings"
	"testing"
)

func TestFprintMentionsExpandedSlots(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 8}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	if err := m.InsertHit(Point3{X: 0.05, Y: 0.05, Z: 0.05}); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}

	out := m.String()
	if !strings.Contains(out, "slot") {
		t.Fatalf("expected Fprint/String output to mention at least one expanded slot, got:\n%s", out)
	}
}

func TestFprintEmptyTreeHasNoSlots(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 8}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	out := m.String()
	if strings.Contains(out, "slot") {
		t.Fatalf("a freshly created tree has no expanded slots, got:\n%s", out)
	}
}
