// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"encoding/binary"
	"io"

	"github.com/ufomap/ufomap/internal/surfelmath"
)

// Surfel is a first/second-order point accumulator (§4.4.3).
type Surfel = surfelmath.Accumulator

// NormalAndPlanarity returns the surface normal (eigenvector of the
// smallest eigenvalue of the covariance) and the planarity measure
// 2(λ1-λ0)/(λ0+λ1+λ2), or ok=false if s has fewer than 2 points.
func NormalAndPlanarity(s Surfel) (normal [3]float64, planarity float64, ok bool) {
	cov, ok := s.Covariance()
	if !ok {
		return [3]float64{}, 0, false
	}

	eig := surfelmath.EigenSymmetric3(cov)
	return eig.Normal, eig.Planarity(), true
}

// surfelLayer implements LayerOps[B] for the surfel attribute.
// Fill copies the parent accumulator down verbatim (a freshly expanded
// child starts with its ancestor's accumulated moments, the same
// "fill from parent" rule every attribute follows); Aggregate merges
// the 8 children pairwise via the numerically stable Welford update.
type surfelLayer[B any] struct {
	access func(*B) *[8]Surfel
}

// NewSurfelLayer builds the surfel attribute layer.
func NewSurfelLayer[B any](access func(*B) *[8]Surfel) Layer[B] {
	return surfelLayer[B]{access: access}
}

func (s surfelLayer[B]) Name() string { return "surfel" }

func (s surfelLayer[B]) Fill(parent *B, parentSlot uint8, child *B, childSlot uint8) {
	s.access(child)[childSlot] = s.access(parent)[parentSlot]
}

func (s surfelLayer[B]) Aggregate(parent *B, parentSlot uint8, child *B) {
	arr := s.access(child)

	acc := arr[0]
	for _, v := range arr[1:] {
		acc = surfelmath.Merge(acc, v)
	}

	s.access(parent)[parentSlot] = acc
}

func (s surfelLayer[B]) Collapsible(block *B) bool {
	arr := s.access(block)

	first := arr[0]
	for _, v := range arr[1:] {
		if !(v.Equal(first) || surfelmath.Mergeable(first, v)) {
			return false
		}
	}

	return true
}

// WriteSingle/ReadSingle/WriteOcta/ReadOcta: an Accumulator is a plain
// fixed-size struct (uint32 + two float64 arrays), which
// encoding/binary's reflection-based path encodes directly, the same
// way scalarLayer's scalars do.
func (s surfelLayer[B]) WriteSingle(w io.Writer, payload *B, slot uint8) error {
	return binary.Write(w, binary.LittleEndian, s.access(payload)[slot])
}

func (s surfelLayer[B]) ReadSingle(r io.Reader, payload *B, slot uint8) error {
	var v Surfel
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return err
	}
	s.access(payload)[slot] = v
	return nil
}

func (s surfelLayer[B]) WriteOcta(w io.Writer, payload *B) error {
	return binary.Write(w, binary.LittleEndian, s.access(payload))
}

func (s surfelLayer[B]) ReadOcta(r io.Reader, payload *B) error {
	return binary.Read(r, binary.LittleEndian, s.access(payload))
}
