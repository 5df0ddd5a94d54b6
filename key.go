// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"math"

	"github.com/ufomap/ufomap/internal/morton"
)

// MinDepthLevels and MaxDepthLevels bound the tree height D.
//
// The spec allows D in [3,22], but a Code is required to be a single
// 64-bit Morton interleave of the three axis keys (§3.1). Each axis key
// is D bits wide (see the to_key contract in §4.1 and the matching root
// cube formula; the narrower "[0, 2^(D-1))" phrasing in the §3.1
// entities summary does not survive contact with that formula and is
// treated as a summary typo). Fitting 3*D bits into 63
// usable bits of a uint64 therefore bounds D to 21, one short of the
// spec's generic upper bound of 22; D=22 is rejected with the same
// ErrDepthLevels domain-bounds error the spec prescribes for
// out-of-range depth-levels, not silently truncated.
const (
	MinDepthLevels = 3
	MaxDepthLevels = morton.MaxDepth // 21
)

// Point3 is a floating point coordinate in map space.
type Point3 struct {
	X, Y, Z float64
}

// Key is a triple of per-axis unsigned integer keys plus the depth at
// which the key is aligned. Key.X/Y/Z have their low Depth bits zero.
type Key struct {
	X, Y, Z uint32
	Depth   uint8
}

// Geometry bundles the quantization parameters shared by key/coordinate
// conversions: the edge length of a depth-0 voxel and the tree height.
type Geometry struct {
	LeafSize float64
	Depth    uint8 // D, number of depth levels; root depth is Depth-1
}

// offset is 2^(D-1), centering floor(coord/leaf_size) into [0, 2^D).
func (g Geometry) offset() int64 {
	return int64(1) << (g.Depth - 1)
}

// Span returns 2^D, the width in depth-0 voxels of the root cube edge.
func (g Geometry) Span() int64 {
	return int64(1) << g.Depth
}

// RootHalfWidth returns leaf_size * 2^(D-1), the half-edge of the root cube.
func (g Geometry) RootHalfWidth() float64 {
	return g.LeafSize * float64(g.offset())
}

// ToKey quantizes coord at the given depth without bounds checking; out
// of range input yields an out of range Key (caller error, see
// ToKeyChecked for the recoverable variant).
func (g Geometry) ToKey(coord Point3, depth uint8) Key {
	return Key{
		X:     quantizeAxis(coord.X, g, depth),
		Y:     quantizeAxis(coord.Y, g, depth),
		Z:     quantizeAxis(coord.Z, g, depth),
		Depth: depth,
	}
}

func quantizeAxis(v float64, g Geometry, depth uint8) uint32 {
	q := int64(math.Floor(v/g.LeafSize)) + g.offset()
	q = (q >> depth) << depth
	return uint32(q)
}

// ToKeyChecked is the recoverable variant of ToKey: it fails (ok=false)
// when depth is out of [0, D-1] or coord lies outside the root cube.
func (g Geometry) ToKeyChecked(coord Point3, depth uint8) (key Key, ok bool) {
	if depth > g.Depth-1 {
		return Key{}, false
	}

	span := g.Span()
	for _, v := range [3]float64{coord.X, coord.Y, coord.Z} {
		q := int64(math.Floor(v/g.LeafSize)) + g.offset()
		if q < 0 || q >= span {
			return Key{}, false
		}
	}

	return g.ToKey(coord, depth), true
}

// ToCoord recovers the center of the cube addressed by key.
func (g Geometry) ToCoord(key Key) Point3 {
	return Point3{
		X: dequantizeAxis(key.X, key.Depth, g),
		Y: dequantizeAxis(key.Y, key.Depth, g),
		Z: dequantizeAxis(key.Z, key.Depth, g),
	}
}

func dequantizeAxis(k uint32, depth uint8, g Geometry) float64 {
	// center of the cube: add half a cube edge (in depth-0 voxel units,
	// that's 2^depth / 2 = 2^(depth-1), or 0.5 voxels at depth 0).
	half := 0.5
	if depth > 0 {
		half = float64(int64(1) << (depth - 1))
	}
	return (float64(int64(k)-g.offset()) + half) * g.LeafSize
}

// ToCode converts key to a depth-tagged Morton code.
func (k Key) ToCode() Code {
	return Code{
		bits:  morton.Interleave(k.X, k.Y, k.Z),
		Depth: k.Depth,
	}
}
