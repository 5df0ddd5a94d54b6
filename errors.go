// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "errors"

// Sentinel errors (§7): domain-bounds, I/O, allocation, and API-misuse
// kinds, matching the teacher's flat errors.New sentinel style (bart
// has no custom error types either — table.go/node.go return these
// directly or wrap them with fmt.Errorf's %w).
var (
	// ErrDepthLevels is returned when a requested tree height falls
	// outside [MinDepthLevels, MaxDepthLevels].
	ErrDepthLevels = errors.New("ufomap: depth levels out of range")

	// ErrOutOfBounds is returned when a coordinate lies outside the
	// root cube for the map's geometry.
	ErrOutOfBounds = errors.New("ufomap: coordinate out of bounds")

	// ErrDepthOutOfRange is returned when a requested query/apply depth
	// exceeds the tree's root depth.
	ErrDepthOutOfRange = errors.New("ufomap: depth exceeds root depth")

	// ErrNodeNotFound names the case where no node exists at the exact
	// requested depth (the subtree is collapsed above it, or never
	// allocated). FindNode does not return it; it reports that case
	// through its ok result.
	ErrNodeNotFound = errors.New("ufomap: node not found")

	// ErrLayerMismatch names a disagreement between a map's configured
	// attribute layers and a serialized stream. The stream header
	// carries no layer list, so no reader in this package returns it.
	ErrLayerMismatch = errors.New("ufomap: attribute layer set mismatch")

	// ErrCorruptStream is returned by the deserializer when the header,
	// tree-shape bitstream, or a payload stream fails a structural
	// sanity check.
	ErrCorruptStream = errors.New("ufomap: corrupt or truncated stream")

	// ErrUnsupportedVersion is returned when a stream's format version
	// is newer than this package understands.
	ErrUnsupportedVersion = errors.New("ufomap: unsupported stream version")

	// ErrGeometryMismatch is returned by MergeModified when a
	// modified-only stream's leaf_size/depth_levels does not match the
	// geometry of the tree it is being merged into.
	ErrGeometryMismatch = errors.New("ufomap: stream geometry does not match target tree")
)
