// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"math"
	"math/rand/v2"
	"testing"
)

func testGeom() Geometry {
	return Geometry{LeafSize: 0.1, Depth: 16}
}

// TestToCoordToKeyRoundTrip is property 1 (§8): for every coordinate
// inside the root cube and every depth, to_coord(to_key(coord, d))
// equals the center of the cube containing coord at depth d.
func TestToCoordToKeyRoundTrip(t *testing.T) {
	g := testGeom()
	prng := rand.New(rand.NewPCG(3, 4))
	half := g.RootHalfWidth()

	for i := 0; i < 2_000; i++ {
		p := Point3{
			X: (prng.Float64()*2 - 1) * half * 0.99,
			Y: (prng.Float64()*2 - 1) * half * 0.99,
			Z: (prng.Float64()*2 - 1) * half * 0.99,
		}

		depth := uint8(prng.IntN(int(g.Depth)))

		key, ok := g.ToKeyChecked(p, depth)
		if !ok {
			t.Fatalf("ToKeyChecked rejected in-bounds point %+v at depth %d", p, depth)
		}

		coord := g.ToCoord(key)

		// coord must be the center of the depth-d cube containing p: within
		// half a depth-d cube edge of p on every axis.
		edge := g.LeafSize * float64(int64(1)<<depth)
		for _, pair := range [][2]float64{{p.X, coord.X}, {p.Y, coord.Y}, {p.Z, coord.Z}} {
			if math.Abs(pair[0]-pair[1]) > edge/2+1e-9 {
				t.Fatalf("depth %d: coord %v too far from point %v (edge %v)", depth, coord, p, edge)
			}
		}

		// re-quantizing the center itself must be idempotent.
		key2 := g.ToKey(coord, depth)
		if key2 != key {
			t.Fatalf("re-quantizing center changed key: %+v -> %+v", key, key2)
		}
	}
}

func TestToKeyCheckedRejectsOutOfBounds(t *testing.T) {
	g := testGeom()
	half := g.RootHalfWidth()

	cases := []Point3{
		{X: half * 2, Y: 0, Z: 0},
		{X: 0, Y: -half * 2, Z: 0},
		{X: 0, Y: 0, Z: half * 10},
	}

	for _, p := range cases {
		if _, ok := g.ToKeyChecked(p, 0); ok {
			t.Errorf("expected out-of-bounds rejection for %+v", p)
		}
	}
}

func TestToKeyCheckedRejectsBadDepth(t *testing.T) {
	g := testGeom()
	if _, ok := g.ToKeyChecked(Point3{}, g.Depth); ok {
		t.Error("expected rejection for depth == D (only [0, D-1] valid)")
	}
}

func TestKeyToCodeIsDepthAligned(t *testing.T) {
	g := testGeom()
	key, ok := g.ToKeyChecked(Point3{X: 0.37, Y: -1.2, Z: 0.05}, 3)
	if !ok {
		t.Fatal("unexpected rejection")
	}

	mask := uint32(1)<<key.Depth - 1
	if key.X&mask != 0 || key.Y&mask != 0 || key.Z&mask != 0 {
		t.Fatalf("key %+v not depth-aligned", key)
	}
}
