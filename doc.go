// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

// Package ufomap implements a probabilistic volumetric 3D map backed
// by a fixed-height octree: block-allocated sibling groups, per-depth
// attribute layers, apply/propagate-based writes, predicate and
// nearest-neighbor queries, and a streaming serializer.
//
// The entry points are the façade constructors — NewOccupancyMap,
// NewOccupancyColorMap, NewFullMap — each composing a Tree[B] over a
// struct-of-arrays payload type B from a fixed set of Layer[B]
// implementations (occupancy, color, surfel, semantic, and plain
// scalar layers for time/intensity/counts/reflectance). Writes go
// through Tree.Apply; PropagateModified restores aggregate consistency
// before a query is trusted. Serialize/Deserialize persist a tree to
// an io.Writer/io.Reader in the format documented in wireformat.go.
package ufomap
