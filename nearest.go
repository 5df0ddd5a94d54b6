// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"container/heap"
	"math"

	"github.com/ufomap/ufomap/internal/arena"
	"github.com/ufomap/ufomap/internal/bitset"
)

// nnItem is one entry of the best-first search frontier: either a
// terminal node ready to yield (childInner == childLeaf == nil) or an
// expandable one, carrying whichever block its children live in.
// payload == nil marks the single synthetic entry representing the
// whole map, which has no node of its own to test or yield — it only
// ever gets expanded into the root block's 8 slots.
type nnItem[B any] struct {
	key        float64
	code       Code
	payload    *B
	childInner *arena.InnerBlock[B]
	childLeaf  *arena.LeafBlock[B]
}

func (it *nnItem[B]) terminal() bool {
	return it.childInner == nil && it.childLeaf == nil
}

// nnHeap is a container/heap.Interface min-heap over nnItem.key,
// the idiomatic stdlib fit for a best-first search frontier (the
// teacher has no heap usage of its own — table_iter.go's traversal is
// a plain stack — so this is adopted fresh from the standard library
// rather than adapted from pack code; see DESIGN.md).
type nnHeap[B any] []*nnItem[B]

func (h nnHeap[B]) Len() int            { return len(h) }
func (h nnHeap[B]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }

// Less orders by key, then by Morton code bits, then by depth.
func (h nnHeap[B]) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	if h[i].code.bits != h[j].code.bits {
		return h[i].code.bits < h[j].code.bits
	}
	return h[i].code.Depth < h[j].code.Depth
}
func (h *nnHeap[B]) Push(x interface{}) { *h = append(*h, x.(*nnItem[B])) }

func (h *nnHeap[B]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// NearestQuery is the best-first nearest iterator (§4.5): a min-heap
// keyed by squared distance from query to each frontier node's cube.
// Popping a terminal node (a collapsed slot or an actual depth-0 leaf)
// yields it; popping an expandable node pushes its 8 children, unless
// pred.Inner rejects it. epsilon >= 0 allows early termination: once
// at least one match has been yielded, the walk stops as soon as the
// next candidate's key exceeds (1+epsilon) times the best key yielded
// so far, since no further result could still improve on it within
// that tolerance.
//
// Because every key is an exact squared distance (never an
// underestimate), the heap already pops leaves in true nearest-first
// order — ties on the key are broken by nnHeap.Less, which compares
// the nodes' Morton code bits (then depth), matching §4.1's specified
// tie-break.
func (t *Tree[B]) NearestQuery(query Point3, pred Predicate[B], epsilon float64) func(yield func(NodeMatch[B], float64) bool) {
	return func(yield func(NodeMatch[B], float64) bool) {
		h := &nnHeap[B]{}
		heap.Init(h)

		rootCube := BoundingCube{Center: Point3{}, HalfWidth: t.geom.RootHalfWidth()}
		heap.Push(h, &nnItem[B]{
			key:        sqDistPointCube(query, rootCube),
			code:       Code{Depth: t.geom.Depth},
			childInner: t.root,
		})

		bestKey := math.Inf(1)

		for h.Len() > 0 {
			it := heap.Pop(h).(*nnItem[B])

			if !math.IsInf(bestKey, 1) && it.key > (1+epsilon)*bestKey {
				return
			}

			if it.payload == nil {
				t.expandNN(h, it, query)
				continue
			}

			if it.terminal() {
				if pred.Value != nil && !pred.Value(it.code, it.payload) {
					continue
				}
				if it.key < bestKey {
					bestKey = it.key
				}
				if !yield(NodeMatch[B]{Code: it.code, Payload: it.payload}, it.key) {
					return
				}
				continue
			}

			if pred.Inner != nil && !pred.Inner(it.code, it.payload) {
				continue
			}
			t.expandNN(h, it, query)
		}
	}
}

// expandNN pushes the 8 children of it's referenced block onto h.
func (t *Tree[B]) expandNN(h *nnHeap[B], it *nnItem[B], query Point3) {
	if it.childLeaf != nil {
		for s := uint8(0); s < 8; s++ {
			code := codeAt(it.code.bits, 0, s)
			heap.Push(h, &nnItem[B]{
				key:     sqDistPointCube(query, t.cubeFor(code)),
				code:    code,
				payload: &it.childLeaf.Payload,
			})
		}
		return
	}

	blk := it.childInner
	d := it.code.Depth - 1
	leafBits := bitset.BitSet8(blk.Leaf)

	for s := uint8(0); s < 8; s++ {
		code := codeAt(it.code.bits, d, s)
		child := &nnItem[B]{
			key:     sqDistPointCube(query, t.cubeFor(code)),
			code:    code,
			payload: &blk.Payload,
		}

		if !leafBits.Test(uint(s)) {
			if d == 1 {
				child.childLeaf = blk.Leaves[s]
			} else {
				child.childInner = blk.Inner[s]
			}
		}

		heap.Push(h, child)
	}
}

// sqDistPointCube returns the squared Euclidean distance from p to
// the nearest point of the axis-aligned cube c (0 if p is inside).
func sqDistPointCube(p Point3, c BoundingCube) float64 {
	dx := axisClearance(p.X, c.Center.X, c.HalfWidth)
	dy := axisClearance(p.Y, c.Center.Y, c.HalfWidth)
	dz := axisClearance(p.Z, c.Center.Z, c.HalfWidth)
	return dx*dx + dy*dy + dz*dz
}

func axisClearance(v, center, halfWidth float64) float64 {
	d := math.Abs(v-center) - halfWidth
	if d < 0 {
		return 0
	}
	return d
}
