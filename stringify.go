// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a hierarchical tree diagram to w: a header line, then
// one line per expanded slot (a slot with a materialized child block),
// most coarse first, indented by depth, each naming the slot index and
// the depth of its child block. Collapsed slots and the voxels of leaf
// blocks get no line of their own. This is
// the octree analogue of the teacher's Table.Fprint (stringify2.go):
// the same glyph-and-indent walking style, substituting child-slot
// order 0..7 for bart's prefix-sorted kid order, since sibling order
// here is already fixed by invariant 4 and needs no sort step.
func (t *Tree[B]) Fprint(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "▼ depth=%d leaf_size=%g\n", t.rootDepth, t.geom.LeafSize); err != nil {
		return err
	}

	return t.fprintRec(w, t.root, t.rootDepth, "")
}

func (t *Tree[B]) fprintRec(w io.Writer, blk *InnerBlock[B], d uint8, pad string) error {
	leafBits := blk.Leaf

	var kids []uint8
	for s := uint8(0); s < 8; s++ {
		if leafBits&(1<<s) == 0 {
			kids = append(kids, s)
		}
	}

	glyph, spacer := "├─ ", "│  "

	for i, s := range kids {
		if i == len(kids)-1 {
			glyph, spacer = "└─ ", "   "
		}

		if _, err := fmt.Fprintf(w, "%s%sslot %d (depth %d)\n", pad, glyph, s, d-1); err != nil {
			return err
		}

		if d == 1 {
			continue // leaf block's 8 voxels are not individually lined
		}

		if err := t.fprintRec(w, blk.Inner[s], d-1, pad+spacer); err != nil {
			return err
		}
	}

	return nil
}

// String returns t's Fprint output. It panics if Fprint errors, which
// only happens on an io.Writer failure and a strings.Builder never
// fails to write.
func (t *Tree[B]) String() string {
	var b strings.Builder
	if err := t.Fprint(&b); err != nil {
		panic(err)
	}
	return b.String()
}
