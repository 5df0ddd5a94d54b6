// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"encoding/binary"
	"io"
	"math"
	"reflect"

	"github.com/ufomap/ufomap/internal/arena"
)

// LayerOps is the per-attribute contract of §4.4: fill a freshly
// created block of 8 children from a parent slot, aggregate 8 children
// back into one parent slot, and report whether a block's 8 slots are
// collapsible.
//
// Block is the caller's struct-of-arrays payload type (see
// internal/arena.Block); the same type serves both as a parent's
// single-parent storage and as a child block's per-slot storage,
// which is why Fill/Aggregate both take a *Block and a slot index on
// either side instead of two distinct types — replacing the source's
// CRTP mixin composition with the "dispatch table" of function values
// the design notes call for (§9).
type LayerOps[Block any] interface {
	// Fill initializes child[childSlot] from parent[parentSlot].
	Fill(parent *Block, parentSlot uint8, child *Block, childSlot uint8)

	// Aggregate folds the 8 slots of child into parent[parentSlot]
	// using this attribute's configured aggregation criterion.
	Aggregate(parent *Block, parentSlot uint8, child *Block)

	// Collapsible reports whether every one of block's 8 slots is
	// equal under this attribute's equality rule.
	Collapsible(block *Block) bool

	// Name identifies the layer for Fprint/Metrics/error messages.
	Name() string
}

// InnerBlock and LeafBlock are the tree-shape block types, parameterized
// by the map's struct-of-arrays Block type.
type InnerBlock[B any] = arena.InnerBlock[B]
type LeafBlock[B any] = arena.LeafBlock[B]

// AggKind selects the upward aggregation criterion for a scalar layer
// (§4.4.1): the inner-slot value after propagation is this function of
// the eight child values.
type AggKind uint8

const (
	AggMin AggKind = iota
	AggMax
	AggMean
)

func (k AggKind) String() string {
	switch k {
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggMean:
		return "mean"
	default:
		return "unknown"
	}
}

// Number is the set of scalar types a generic scalar layer can carry:
// occupancy log-odds, timestamps, intensity, hit/miss counts,
// reflectance, and each color channel all fit one of these kinds.
type Number interface {
	~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// scalarLayer implements LayerOps for any attribute whose per-slot
// storage is a plain [8]T array reachable from Block via access, per
// §4.4.1 ("Color, intensity, count, reflectance, and time behave
// identically as scalar fields with independently configured
// aggregation").
type scalarLayer[B any, T Number] struct {
	name   string
	access func(*B) *[8]T
	crit   AggKind
}

// NewScalarLayer builds the Layer for one fixed-size scalar
// attribute. access must return a pointer into the caller's Block type
// that is stable across calls (i.e. a field selector, not a copy).
func NewScalarLayer[B any, T Number](name string, access func(*B) *[8]T, crit AggKind) Layer[B] {
	return scalarLayer[B, T]{name: name, access: access, crit: crit}
}

func (s scalarLayer[B, T]) Name() string { return s.name }

func (s scalarLayer[B, T]) Fill(parent *B, parentSlot uint8, child *B, childSlot uint8) {
	s.access(child)[childSlot] = s.access(parent)[parentSlot]
}

func (s scalarLayer[B, T]) Aggregate(parent *B, parentSlot uint8, child *B) {
	arr := *s.access(child)
	s.access(parent)[parentSlot] = aggregateScalar(arr, s.crit)
}

func (s scalarLayer[B, T]) Collapsible(block *B) bool {
	arr := s.access(block)
	first := arr[0]
	for _, v := range arr[1:] {
		if v != first {
			return false
		}
	}
	return true
}

// WriteSingle/ReadSingle/WriteOcta/ReadOcta use encoding/binary
// directly on T, the same little-endian fixed-width idiom
// scigolib-hdf5's *_write.go applies to its dataset element streams
// (binary.Write/Read accept any fixed-size numeric kind via
// reflection, so this works uniformly across every instantiation of
// the Number constraint without a per-type switch).
func (s scalarLayer[B, T]) WriteSingle(w io.Writer, payload *B, slot uint8) error {
	return binary.Write(w, binary.LittleEndian, s.access(payload)[slot])
}

func (s scalarLayer[B, T]) ReadSingle(r io.Reader, payload *B, slot uint8) error {
	var v T
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return err
	}
	s.access(payload)[slot] = v
	return nil
}

func (s scalarLayer[B, T]) WriteOcta(w io.Writer, payload *B) error {
	return binary.Write(w, binary.LittleEndian, s.access(payload))
}

func (s scalarLayer[B, T]) ReadOcta(r io.Reader, payload *B) error {
	return binary.Read(r, binary.LittleEndian, s.access(payload))
}

func aggregateScalar[T Number](arr [8]T, crit AggKind) T {
	switch crit {
	case AggMin:
		m := arr[0]
		for _, v := range arr[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case AggMax:
		m := arr[0]
		for _, v := range arr[1:] {
			if v > m {
				m = v
			}
		}
		return m
	default: // AggMean
		return meanOf(arr)
	}
}

// meanOf computes the arithmetic mean of arr, rounding half-away-from-
// zero back to T only when T is an integer kind; floating-point
// attributes (time, intensity, reflectance) keep full precision.
func meanOf[T Number](arr [8]T) T {
	var sum float64
	for _, v := range arr {
		sum += float64(v)
	}

	mean := sum / float64(len(arr))

	var zero T
	switch reflect.TypeOf(zero).Kind() {
	case reflect.Float32, reflect.Float64:
		return T(mean)
	default:
		return T(math.Round(mean))
	}
}
