// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"encoding/binary"
	"io"
	"slices"
)

// LabelValue is one (label, value) pair of a semantic set (§4.4.4).
type LabelValue struct {
	Label, Value uint32
}

// LabelRange is an inclusive [Lo, Hi] range of labels, used by Assign
// and Erase to act on a whole band of labels at once.
type LabelRange struct {
	Lo, Hi uint32
}

func (r LabelRange) contains(label uint32) bool {
	return label >= r.Lo && label <= r.Hi
}

func inAnyRange(label uint32, ranges []LabelRange) bool {
	for _, r := range ranges {
		if r.contains(label) {
			return true
		}
	}
	return false
}

// SemanticSet is one slot's sorted-by-label set of (label, value)
// pairs. The on-wire and in-memory shape is a plain sorted slice; the
// source's single packed 8-slot allocation with a 4-record size header
// (§4.4.4) is a micro-optimization the design notes (§9) explicitly
// permit dropping in favor of "eight small vectors plus an 8-entry
// header vector", which is exactly what SemanticBlock8 below is — the
// header vector is just len(slot) per slot, computed on demand instead
// of stored, since Go slices already carry their own length.
//
// Insertion here follows the same sorted-slice-plus-rank shape as the
// teacher's prefixCBTree.insert/delete (node.go), substituting a
// binary search over labels for the bitset popcount rank, since the
// label universe (uint32) is far too large for a fixed bitset index.
type SemanticSet []LabelValue

func (s SemanticSet) search(label uint32) (idx int, found bool) {
	idx, found = slices.BinarySearchFunc(s, label, func(e LabelValue, l uint32) int {
		switch {
		case e.Label < l:
			return -1
		case e.Label > l:
			return 1
		default:
			return 0
		}
	})
	return idx, found
}

// Find returns the value for label, if present.
func (s SemanticSet) Find(label uint32) (value uint32, ok bool) {
	if idx, found := s.search(label); found {
		return s[idx].Value, true
	}
	return 0, false
}

// Contains reports whether label is present.
func (s SemanticSet) Contains(label uint32) bool {
	_, found := s.search(label)
	return found
}

// Count returns the number of (label, value) pairs.
func (s SemanticSet) Count() int { return len(s) }

// LowerBound returns the index of the first entry with Label >= label.
func (s SemanticSet) LowerBound(label uint32) int {
	idx, _ := s.search(label)
	return idx
}

// UpperBound returns the index of the first entry with Label > label.
func (s SemanticSet) UpperBound(label uint32) int {
	idx, found := s.search(label)
	if found {
		return idx + 1
	}
	return idx
}

// EqualRange returns the [lo, hi) index range of entries whose Label
// falls within r.
func (s SemanticSet) EqualRange(r LabelRange) (lo, hi int) {
	lo, _ = s.search(r.Lo)
	hi, found := s.search(r.Hi)
	if found {
		hi++
	}
	return lo, hi
}

// All reports whether pred holds for every entry.
func (s SemanticSet) All(pred func(LabelValue) bool) bool {
	for _, e := range s {
		if !pred(e) {
			return false
		}
	}
	return true
}

// Any reports whether pred holds for at least one entry.
func (s SemanticSet) Any(pred func(LabelValue) bool) bool {
	for _, e := range s {
		if pred(e) {
			return true
		}
	}
	return false
}

// None reports whether pred holds for no entry.
func (s SemanticSet) None(pred func(LabelValue) bool) bool {
	return !s.Any(pred)
}

// Equal reports whether s and o hold the same (label, value) pairs.
func (s SemanticSet) Equal(o SemanticSet) bool {
	return slices.Equal(s, o)
}

// insert inserts (label, value) if label is absent; no-op otherwise
// (§4.4.4 insert).
func (s SemanticSet) insert(label, value uint32) SemanticSet {
	idx, found := s.search(label)
	if found {
		return s
	}
	return slices.Insert(s, idx, LabelValue{label, value})
}

// insertOrAssign sets label's value unconditionally, inserting if absent.
func (s SemanticSet) insertOrAssign(label, value uint32) SemanticSet {
	idx, found := s.search(label)
	if found {
		s[idx].Value = value
		return s
	}
	return slices.Insert(s, idx, LabelValue{label, value})
}

// insertOrAssignFunc sets label's value to f(old, present), inserting if absent.
func (s SemanticSet) insertOrAssignFunc(label uint32, f func(old uint32, present bool) uint32) SemanticSet {
	idx, found := s.search(label)
	if found {
		s[idx].Value = f(s[idx].Value, true)
		return s
	}
	return slices.Insert(s, idx, LabelValue{label, f(0, false)})
}

// assign sets value for every entry whose label falls in ranges.
func (s SemanticSet) assign(ranges []LabelRange, value uint32) SemanticSet {
	for i := range s {
		if inAnyRange(s[i].Label, ranges) {
			s[i].Value = value
		}
	}
	return s
}

// assignFunc is the callback form of assign.
func (s SemanticSet) assignFunc(ranges []LabelRange, f func(old uint32) uint32) SemanticSet {
	for i := range s {
		if inAnyRange(s[i].Label, ranges) {
			s[i].Value = f(s[i].Value)
		}
	}
	return s
}

// eraseLabel removes label, reporting whether it was present.
func (s SemanticSet) eraseLabel(label uint32) (SemanticSet, bool) {
	idx, found := s.search(label)
	if !found {
		return s, false
	}
	return slices.Delete(s, idx, idx+1), true
}

// eraseRanges removes every entry whose label falls in ranges.
func (s SemanticSet) eraseRanges(ranges []LabelRange) SemanticSet {
	return slices.DeleteFunc(s, func(e LabelValue) bool {
		return inAnyRange(e.Label, ranges)
	})
}

// erasePredicate removes every entry pred matches.
func (s SemanticSet) erasePredicate(pred func(LabelValue) bool) SemanticSet {
	return slices.DeleteFunc(s, pred)
}

// changeLabel renames oldLabel to newLabel, preserving sort order and
// overwriting any existing entry at newLabel.
func (s SemanticSet) changeLabel(oldLabel, newLabel uint32) SemanticSet {
	idx, found := s.search(oldLabel)
	if !found {
		return s
	}
	value := s[idx].Value
	s = slices.Delete(s, idx, idx+1)
	return s.insertOrAssign(newLabel, value)
}

// SemanticBlock8 holds the 8 per-slot SemanticSets of one block,
// leaf or single-parent alike (§3.1, §4.4.4).
type SemanticBlock8 struct {
	Slots [8]SemanticSet
}

// SemanticAggregation selects how a label's value is folded across 8
// children that all carry that label; §4.4.4 specifies max as the
// default, matching the default scalar propagation criterion.
type SemanticAggregation uint8

const (
	SemanticMax SemanticAggregation = iota
	SemanticMin
	SemanticMean
)

type semanticLayer[B any] struct {
	access func(*B) *SemanticBlock8
	crit   SemanticAggregation
}

// NewSemanticLayer builds the semantic attribute layer.
func NewSemanticLayer[B any](access func(*B) *SemanticBlock8, crit SemanticAggregation) Layer[B] {
	return semanticLayer[B]{access: access, crit: crit}
}

func (l semanticLayer[B]) Name() string { return "semantic" }

func (l semanticLayer[B]) Fill(parent *B, parentSlot uint8, child *B, childSlot uint8) {
	src := l.access(parent).Slots[parentSlot]
	l.access(child).Slots[childSlot] = append(SemanticSet(nil), src...)
}

// Aggregate unions the 8 children's label sets; a label present in
// more than one child gets the configured aggregation of those values.
func (l semanticLayer[B]) Aggregate(parent *B, parentSlot uint8, child *B) {
	block := l.access(child)

	sums := map[uint32][]uint32{}
	order := make([]uint32, 0, 8)

	for _, set := range block.Slots {
		for _, e := range set {
			if _, seen := sums[e.Label]; !seen {
				order = append(order, e.Label)
			}
			sums[e.Label] = append(sums[e.Label], e.Value)
		}
	}

	slices.Sort(order)

	out := make(SemanticSet, 0, len(order))
	for _, label := range order {
		out = append(out, LabelValue{Label: label, Value: foldValues(sums[label], l.crit)})
	}

	l.access(parent).Slots[parentSlot] = out
}

func foldValues(values []uint32, crit SemanticAggregation) uint32 {
	switch crit {
	case SemanticMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case SemanticMean:
		var sum uint64
		for _, v := range values {
			sum += uint64(v)
		}
		return uint32(sum / uint64(len(values)))
	default: // SemanticMax
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	}
}

// Collapsible reports whether all 8 slots carry element-wise equal sets.
func (l semanticLayer[B]) Collapsible(block *B) bool {
	sb := l.access(block)

	first := sb.Slots[0]
	for _, s := range sb.Slots[1:] {
		if !s.Equal(first) {
			return false
		}
	}

	return true
}

// writeSet emits [u32 size][size x (u32 label, u32 value)], the
// per-slot semantic record §4.4.4 prescribes.
func writeSet(w io.Writer, s SemanticSet) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	for _, e := range s {
		if err := binary.Write(w, binary.LittleEndian, e); err != nil {
			return err
		}
	}
	return nil
}

func readSet(r io.Reader) (SemanticSet, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	out := make(SemanticSet, n)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l semanticLayer[B]) WriteSingle(w io.Writer, payload *B, slot uint8) error {
	return writeSet(w, l.access(payload).Slots[slot])
}

func (l semanticLayer[B]) ReadSingle(r io.Reader, payload *B, slot uint8) error {
	s, err := readSet(r)
	if err != nil {
		return err
	}
	l.access(payload).Slots[slot] = s
	return nil
}

func (l semanticLayer[B]) WriteOcta(w io.Writer, payload *B) error {
	sb := l.access(payload)
	for i := range sb.Slots {
		if err := writeSet(w, sb.Slots[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l semanticLayer[B]) ReadOcta(r io.Reader, payload *B) error {
	sb := l.access(payload)
	for i := range sb.Slots {
		s, err := readSet(r)
		if err != nil {
			return err
		}
		sb.Slots[i] = s
	}
	return nil
}
