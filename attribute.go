// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "io"

// Layer is the full per-attribute contract: the apply/propagate
// operations of LayerOps (§4.4), plus the on-wire encode/decode pair
// §4.6's payload streams require. Every concrete attribute (scalar,
// color, surfel, semantic) implements both halves from a single
// constructor — the same "one function-value table per concern" shape
// the teacher's internal/nodes.NodeReadWriter uses to bundle
// read/write/iterate behind one interface instead of three.
type Layer[B any] interface {
	LayerOps[B]

	// WriteSingle/ReadSingle transfer the one collapsed (single-parent)
	// value standing in for slot's whole subtree — used whenever the
	// tree-structure walk's valid_return bit fires without the subtree
	// being individually materialized.
	WriteSingle(w io.Writer, payload *B, slot uint8) error
	ReadSingle(r io.Reader, payload *B, slot uint8) error

	// WriteOcta/ReadOcta transfer the full 8-wide per-slot form backing
	// a materialized leaf block.
	WriteOcta(w io.Writer, payload *B) error
	ReadOcta(r io.Reader, payload *B) error
}
