// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"compress/gzip"
	"encoding/binary"
	"io"
)

// Magic and FormatVersion identify the on-disk/on-wire stream (§6.1).
const (
	Magic          = "UFOM"
	FormatVersion  = uint16(1)
	flagCompressed = uint8(1 << 0)
)

// Header is the fixed, little-endian file-level header (§6.1).
type Header struct {
	Version     uint16
	LeafSize    float64
	DepthLevels uint8
	Compressed  bool
	NumNodes    uint64
}

func (h Header) flags() uint8 {
	if h.Compressed {
		return flagCompressed
	}
	return 0
}

// writeHeader writes the 24-byte fixed header, little-endian
// throughout, matching scigolib-hdf5's *_write.go convention of one
// binary.Write call per field rather than a single struct blob (the
// magic tag is ASCII, not a binary.Write-able fixed type).
func writeHeader(w io.Writer, h Header) error {
	if _, err := w.Write([]byte(Magic)); err != nil {
		return err
	}
	for _, v := range []any{h.Version, h.LeafSize, h.DepthLevels, h.flags(), h.NumNodes} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readHeader(r io.Reader) (Header, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Header{}, ErrCorruptStream
	}
	if string(magic[:]) != Magic {
		return Header{}, ErrCorruptStream
	}

	var h Header
	var flags uint8

	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return Header{}, ErrCorruptStream
	}
	if h.Version > FormatVersion {
		return Header{}, ErrUnsupportedVersion
	}
	if err := binary.Read(r, binary.LittleEndian, &h.LeafSize); err != nil {
		return Header{}, ErrCorruptStream
	}
	if err := binary.Read(r, binary.LittleEndian, &h.DepthLevels); err != nil {
		return Header{}, ErrCorruptStream
	}
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return Header{}, ErrCorruptStream
	}
	h.Compressed = flags&flagCompressed != 0
	if err := binary.Read(r, binary.LittleEndian, &h.NumNodes); err != nil {
		return Header{}, ErrCorruptStream
	}

	return h, nil
}

// gzipPayloadWriter wraps w with gzip compression when compressed is
// true, matching the `compressed` header flag's contract (§4.6): the
// codec applies after the logical tree-structure/payload layout, not
// to the header. Grounded on scigolib-hdf5's filter_gzip.go writer and
// gaissmai-bart/cmd/routes.go's use of compress/gzip for reading
// pre-compressed route dumps.
func gzipPayloadWriter(w io.Writer, compressed bool) (io.Writer, func() error) {
	if !compressed {
		return w, func() error { return nil }
	}
	gz := gzip.NewWriter(w)
	return gz, gz.Close
}

func gzipPayloadReader(r io.Reader, compressed bool) (io.Reader, error) {
	if !compressed {
		return r, nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, ErrCorruptStream
	}
	return gz, nil
}
