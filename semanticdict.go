// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "github.com/bits-and-blooms/bitset"

// LabelDictionary is the label-string mapping of §4.4.4's closing
// paragraph: a user-facing tag maps to a set of label ranges, a set of
// links to other tags (recursive, non-cyclic union on lookup), and an
// optional color.
//
// This is explicitly outside the octree core's algorithmic surface
// (§1) but lives in this package rather than a separate module. It is
// held in memory only: Serialize and SerializeModifiedOnly do not
// write it.
//
// Label ranges per tag use the real external bits-and-blooms/bitset
// package rather than the core's internal BitSet8: a tag's label
// coverage spans the full uint32 label universe (e.g. "floor" might
// claim labels 1000-1050 plus 90000-90010), which is exactly the
// sparse/arbitrary-length use case that package solves and the
// internal 8-bit one does not.
type LabelDictionary struct {
	ranges map[string]*bitset.BitSet
	links  map[string]map[string]struct{}
	colors map[string]RGB
	hasCol map[string]bool

	// tombstones: consumer-originated removals that must not be
	// resurrected by a later producer-originated read (see §4.4.4).
	removedRanges map[string]*bitset.BitSet
	removedLinks  map[string]map[string]struct{}
	removedColor  map[string]bool
	removedTags   map[string]struct{}
}

// NewLabelDictionary returns an empty dictionary.
func NewLabelDictionary() *LabelDictionary {
	return &LabelDictionary{
		ranges:        map[string]*bitset.BitSet{},
		links:         map[string]map[string]struct{}{},
		colors:        map[string]RGB{},
		hasCol:        map[string]bool{},
		removedRanges: map[string]*bitset.BitSet{},
		removedLinks:  map[string]map[string]struct{}{},
		removedColor:  map[string]bool{},
		removedTags:   map[string]struct{}{},
	}
}

// producerAddRange is called when reading a tag/range pair from an
// upstream source; it is suppressed for a (tag, label) the consumer
// has locally tombstoned.
func (d *LabelDictionary) producerAddRange(tag string, r LabelRange) {
	if tomb, ok := d.removedRanges[tag]; ok {
		for l := r.Lo; l <= r.Hi; l++ {
			if tomb.Test(uint(l)) {
				continue
			}
			d.addRangeLabel(tag, l)
		}
		return
	}

	for l := r.Lo; l <= r.Hi; l++ {
		d.addRangeLabel(tag, l)
	}
}

func (d *LabelDictionary) addRangeLabel(tag string, label uint32) {
	bs, ok := d.ranges[tag]
	if !ok {
		bs = bitset.New(0)
		d.ranges[tag] = bs
	}
	bs.Set(uint(label))
}

// AddRange is the consumer-originated (local) variant of adding label
// coverage to tag: it also clears any matching tombstone, since the
// consumer is explicitly re-adding what it once removed.
func (d *LabelDictionary) AddRange(tag string, r LabelRange) {
	delete(d.removedTags, tag)
	for l := r.Lo; l <= r.Hi; l++ {
		if tomb, ok := d.removedRanges[tag]; ok {
			tomb.Clear(uint(l))
		}
		d.addRangeLabel(tag, l)
	}
}

// RemoveRange removes label coverage from tag and records a tombstone
// so a subsequent producer read of the same range does not resurrect it.
func (d *LabelDictionary) RemoveRange(tag string, r LabelRange) {
	if bs, ok := d.ranges[tag]; ok {
		for l := r.Lo; l <= r.Hi; l++ {
			bs.Clear(uint(l))
		}
	}

	tomb, ok := d.removedRanges[tag]
	if !ok {
		tomb = bitset.New(0)
		d.removedRanges[tag] = tomb
	}
	for l := r.Lo; l <= r.Hi; l++ {
		tomb.Set(uint(l))
	}
}

// CoversLabel reports whether tag's own (non-recursive) ranges include label.
func (d *LabelDictionary) CoversLabel(tag string, label uint32) bool {
	bs, ok := d.ranges[tag]
	return ok && bs.Test(uint(label))
}

// Link adds a (non-cyclic, checked at lookup time) link from tag to other.
func (d *LabelDictionary) Link(tag, other string) {
	if tomb, ok := d.removedLinks[tag]; ok {
		delete(tomb, other)
	}
	if d.links[tag] == nil {
		d.links[tag] = map[string]struct{}{}
	}
	d.links[tag][other] = struct{}{}
}

// Unlink removes the link and tombstones it against resurrection.
func (d *LabelDictionary) Unlink(tag, other string) {
	if m, ok := d.links[tag]; ok {
		delete(m, other)
	}
	if d.removedLinks[tag] == nil {
		d.removedLinks[tag] = map[string]struct{}{}
	}
	d.removedLinks[tag][other] = struct{}{}
}

// SetColor sets tag's display color, clearing any tombstone.
func (d *LabelDictionary) SetColor(tag string, c RGB) {
	d.colors[tag] = c
	d.hasCol[tag] = true
	delete(d.removedColor, tag)
}

// RemoveColor clears tag's color and tombstones it.
func (d *LabelDictionary) RemoveColor(tag string) {
	delete(d.colors, tag)
	d.hasCol[tag] = false
	d.removedColor[tag] = true
}

// Color returns tag's color, if set.
func (d *LabelDictionary) Color(tag string) (RGB, bool) {
	c, ok := d.hasCol[tag]
	return d.colors[tag], ok && c
}

// CoversLabelRecursive reports whether label is covered by tag's own
// ranges, or by any tag reachable through Link edges. Cycles are
// tolerated via a visited set even though links are documented
// non-cyclic, since an upstream producer update could otherwise
// transiently introduce one.
func (d *LabelDictionary) CoversLabelRecursive(tag string, label uint32) bool {
	visited := map[string]bool{}
	return d.coversRec(tag, label, visited)
}

func (d *LabelDictionary) coversRec(tag string, label uint32, visited map[string]bool) bool {
	if visited[tag] {
		return false
	}
	visited[tag] = true

	if d.CoversLabel(tag, label) {
		return true
	}

	for other := range d.links[tag] {
		if d.coversRec(other, label, visited) {
			return true
		}
	}

	return false
}

// LinkedTags returns the set of tags reachable from tag by following
// Link edges. If recursive is false only tag's direct links are
// returned; otherwise the closure is computed by a cycle-tolerant
// breadth-first walk.
func (d *LabelDictionary) LinkedTags(tag string, recursive bool) map[string]struct{} {
	if !recursive {
		out := map[string]struct{}{}
		for other := range d.links[tag] {
			out[other] = struct{}{}
		}
		return out
	}

	visited := map[string]struct{}{}
	queue := []string{tag}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for other := range d.links[cur] {
			if _, seen := visited[other]; seen {
				continue
			}
			visited[other] = struct{}{}
			queue = append(queue, other)
		}
	}
	return visited
}

// Labels returns tag's label coverage as a bitset. If recursive is
// true, the ranges of every tag reachable through Link edges are
// unioned in as well, mirroring a tag such as "room" inheriting the
// coverage of a linked "ceiling"/"floor"/"wall" set.
func (d *LabelDictionary) Labels(tag string, recursive bool) *bitset.BitSet {
	out := bitset.New(0)
	if bs, ok := d.ranges[tag]; ok {
		out.InPlaceUnion(bs)
	}

	if !recursive {
		return out
	}

	for other := range d.LinkedTags(tag, true) {
		if bs, ok := d.ranges[other]; ok {
			out.InPlaceUnion(bs)
		}
	}
	return out
}

// ClearTag removes every range, link, and color entry for tag,
// tombstoning each so a later MergeFromUpstream does not resurrect
// them. It does not remove tag itself or other tags' links to it; use
// RemoveTag for that.
func (d *LabelDictionary) ClearTag(tag string) {
	if bs, ok := d.ranges[tag]; ok {
		if tomb, ok := d.removedRanges[tag]; ok {
			tomb.InPlaceUnion(bs)
		} else {
			d.removedRanges[tag] = bs.Clone()
		}
		delete(d.ranges, tag)
	}

	for other := range d.links[tag] {
		if d.removedLinks[tag] == nil {
			d.removedLinks[tag] = map[string]struct{}{}
		}
		d.removedLinks[tag][other] = struct{}{}
	}
	delete(d.links, tag)

	d.RemoveColor(tag)
}

// RemoveTag deletes tag entirely: its own ranges, links, and color, and
// every other tag's link pointing at it. The tag name itself is
// tombstoned against resurrection by a later producer read.
func (d *LabelDictionary) RemoveTag(tag string) {
	d.ClearTag(tag)
	delete(d.hasCol, tag)

	for owner, links := range d.links {
		if _, linked := links[tag]; linked {
			delete(links, tag)
			if d.removedLinks[owner] == nil {
				d.removedLinks[owner] = map[string]struct{}{}
			}
			d.removedLinks[owner][tag] = struct{}{}
		}
	}

	if d.removedTags == nil {
		d.removedTags = map[string]struct{}{}
	}
	d.removedTags[tag] = struct{}{}
}

// MergeFromUpstream applies a producer-originated snapshot of
// (tag, ranges, links, color) triples, honoring local tombstones so a
// round trip from upstream never resurrects a consumer-deleted entry.
func (d *LabelDictionary) MergeFromUpstream(tag string, ranges []LabelRange, links []string, color *RGB) {
	if _, removed := d.removedTags[tag]; removed {
		return
	}

	for _, r := range ranges {
		d.producerAddRange(tag, r)
	}

	for _, other := range links {
		if tomb, ok := d.removedLinks[tag]; ok {
			if _, removed := tomb[other]; removed {
				continue
			}
		}
		d.Link(tag, other)
	}

	if color != nil && !d.removedColor[tag] {
		d.colors[tag] = *color
		d.hasCol[tag] = true
	}
}
