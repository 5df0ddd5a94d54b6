// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "io"

// RGB is a color sample, §4.4.2.
type RGB struct {
	R, G, B uint8
}

// colorLayer implements LayerOps[B] for the color attribute: a single
// value per slot, filled verbatim from the parent and aggregated by
// componentwise arithmetic mean (§4.4.2), using the same
// round-half-away-from-zero helper the scalar layers use.
type colorLayer[B any] struct {
	access func(*B) *[8]RGB
}

// NewColorLayer builds the color attribute layer. access must return a
// stable pointer to the block's [8]RGB array.
func NewColorLayer[B any](access func(*B) *[8]RGB) Layer[B] {
	return colorLayer[B]{access: access}
}

func (c colorLayer[B]) Name() string { return "color" }

func (c colorLayer[B]) Fill(parent *B, parentSlot uint8, child *B, childSlot uint8) {
	c.access(child)[childSlot] = c.access(parent)[parentSlot]
}

func (c colorLayer[B]) Aggregate(parent *B, parentSlot uint8, child *B) {
	arr := c.access(child)

	var rs, gs, bs [8]uint8
	for i, v := range arr {
		rs[i], gs[i], bs[i] = v.R, v.G, v.B
	}

	c.access(parent)[parentSlot] = RGB{
		R: meanOf(rs),
		G: meanOf(gs),
		B: meanOf(bs),
	}
}

func (c colorLayer[B]) Collapsible(block *B) bool {
	arr := c.access(block)

	first := arr[0]
	for _, v := range arr[1:] {
		if v != first {
			return false
		}
	}

	return true
}

func (c colorLayer[B]) WriteSingle(w io.Writer, payload *B, slot uint8) error {
	v := c.access(payload)[slot]
	_, err := w.Write([]byte{v.R, v.G, v.B})
	return err
}

func (c colorLayer[B]) ReadSingle(r io.Reader, payload *B, slot uint8) error {
	var buf [3]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	c.access(payload)[slot] = RGB{R: buf[0], G: buf[1], B: buf[2]}
	return nil
}

func (c colorLayer[B]) WriteOcta(w io.Writer, payload *B) error {
	arr := c.access(payload)
	buf := make([]byte, 0, 24)
	for _, v := range arr {
		buf = append(buf, v.R, v.G, v.B)
	}
	_, err := w.Write(buf)
	return err
}

func (c colorLayer[B]) ReadOcta(r io.Reader, payload *B) error {
	var buf [24]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	arr := c.access(payload)
	for i := range arr {
		arr[i] = RGB{R: buf[i*3], G: buf[i*3+1], B: buf[i*3+2]}
	}
	return nil
}
