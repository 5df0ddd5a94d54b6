// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import (
	"bytes"
	"math/rand/v2"
	"testing"
)

// TestSerializeRoundTrip is scenario S5 / property 7 (§8): writing a
// populated map and reading it back into an empty map with matching
// geometry yields a byte-for-byte identical subsequent write.
func TestSerializeRoundTrip(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 12}

	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	prng := rand.New(rand.NewPCG(21, 22))
	half := geom.RootHalfWidth()

	const n = 1000
	for i := 0; i < n; i++ {
		p := Point3{
			X: (prng.Float64()*2 - 1) * half * 0.95,
			Y: (prng.Float64()*2 - 1) * half * 0.95,
			Z: (prng.Float64()*2 - 1) * half * 0.95,
		}
		if err := m.InsertHit(p); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}
	m.PropagateModified(false, 0)

	var buf1 bytes.Buffer
	if err := m.Serialize(&buf1, false); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	loaded, err := DeserializeOccupancyMap(bytes.NewReader(buf1.Bytes()))
	if err != nil {
		t.Fatalf("DeserializeOccupancyMap: %v", err)
	}

	_, _, wantLeafNodes, wantAllocLeaf := m.Stats()
	_, _, gotLeafNodes, gotAllocLeaf := loaded.Stats()

	if wantLeafNodes != gotLeafNodes || wantAllocLeaf != gotAllocLeaf {
		t.Fatalf("leaf block stats mismatch after round trip: want (%d,%d) got (%d,%d)",
			wantLeafNodes, wantAllocLeaf, gotLeafNodes, gotAllocLeaf)
	}

	var buf2 bytes.Buffer
	if err := loaded.Serialize(&buf2, false); err != nil {
		t.Fatalf("second Serialize: %v", err)
	}

	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Fatal("re-serialized stream differs from the original")
	}
}

func TestSerializeRoundTripCompressed(t *testing.T) {
	geom := Geometry{LeafSize: 0.2, Depth: 8}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	for i := 0; i < 100; i++ {
		p := Point3{X: float64(i%5) * 0.2, Y: float64((i / 5) % 5) * 0.2, Z: 0}
		if err := m.InsertHit(p); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}
	m.PropagateModified(false, 0)

	var buf bytes.Buffer
	if err := m.Serialize(&buf, true); err != nil {
		t.Fatalf("Serialize(compressed): %v", err)
	}

	loaded, err := DeserializeOccupancyMap(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DeserializeOccupancyMap: %v", err)
	}

	wantCount := 0
	for range m.Query(Predicate[occupancyBlock]{}) {
		wantCount++
	}
	gotCount := 0
	for range loaded.Query(Predicate[occupancyBlock]{}) {
		gotCount++
	}
	if wantCount != gotCount {
		t.Fatalf("node count mismatch: want %d, got %d", wantCount, gotCount)
	}
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	_, err := DeserializeOccupancyMap(bytes.NewReader([]byte("not a ufo stream at all")))
	if err != ErrCorruptStream {
		t.Fatalf("err = %v, want ErrCorruptStream", err)
	}
}

// TestSerializeModifiedOnlyIsDelta is property 8 (§8): writing
// modified-only after a sequence of writes since the last propagate,
// then reading that stream into a copy of the pre-write map, produces
// the post-write map.
func TestSerializeModifiedOnlyIsDelta(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 10}

	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}

	basePts := []Point3{
		{X: 0.05, Y: 0.05, Z: 0.05},
		{X: -0.15, Y: 0.25, Z: -0.35},
		{X: 0.45, Y: -0.25, Z: 0.15},
	}
	for _, p := range basePts {
		if err := m.InsertHit(p); err != nil {
			t.Fatalf("InsertHit: %v", err)
		}
	}
	m.PropagateModified(false, 0)

	var preBuf bytes.Buffer
	if err := m.Serialize(&preBuf, false); err != nil {
		t.Fatalf("Serialize (pre-write snapshot): %v", err)
	}
	preCopy, err := DeserializeOccupancyMap(bytes.NewReader(preBuf.Bytes()))
	if err != nil {
		t.Fatalf("DeserializeOccupancyMap (pre-write copy): %v", err)
	}

	deltaPts := []Point3{
		{X: 0.05, Y: 0.05, Z: 0.05},   // re-hit an existing voxel
		{X: 0.65, Y: 0.65, Z: -0.65},  // a brand-new voxel
		{X: -0.45, Y: -0.45, Z: 0.45}, // another brand-new voxel
	}
	for _, p := range deltaPts {
		if err := m.InsertHit(p); err != nil {
			t.Fatalf("InsertHit (delta): %v", err)
		}
	}

	var deltaBuf bytes.Buffer
	if err := m.SerializeModifiedOnly(&deltaBuf, false, false); err != nil {
		t.Fatalf("SerializeModifiedOnly: %v", err)
	}

	if err := preCopy.MergeModified(bytes.NewReader(deltaBuf.Bytes())); err != nil {
		t.Fatalf("MergeModified: %v", err)
	}
	preCopy.PropagateModified(false, 0)

	allPts := append(append([]Point3{}, basePts...), deltaPts...)
	for _, p := range allPts {
		code, err := codeFor(geom, p)
		if err != nil {
			t.Fatalf("codeFor: %v", err)
		}

		wantPayload, wantDepth, wantOK := m.FindNode(code)
		gotPayload, gotDepth, gotOK := preCopy.FindNode(code)
		if wantOK != gotOK {
			t.Fatalf("FindNode(%v) ok mismatch: want %v, got %v", p, wantOK, gotOK)
		}
		if !wantOK {
			continue
		}

		want := wantPayload.LogOdds[code.Index(wantDepth)]
		got := gotPayload.LogOdds[code.Index(gotDepth)]
		if want != got {
			t.Fatalf("LogOdds at %v after merge = %v, want %v", p, got, want)
		}
	}
}

// TestSerializeModifiedOnlyClearIsIdempotent checks that, with
// clearModified set, writing modified-only twice in a row yields an
// empty delta the second time (nothing left dirty to report).
func TestSerializeModifiedOnlyClearIsIdempotent(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 8}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}
	if err := m.InsertHit(Point3{X: 0.05, Y: 0.05, Z: 0.05}); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}

	var buf1 bytes.Buffer
	if err := m.SerializeModifiedOnly(&buf1, false, true); err != nil {
		t.Fatalf("first SerializeModifiedOnly: %v", err)
	}

	var buf2 bytes.Buffer
	if err := m.SerializeModifiedOnly(&buf2, false, true); err != nil {
		t.Fatalf("second SerializeModifiedOnly: %v", err)
	}

	if buf1.Len() <= buf2.Len() {
		t.Fatalf("second delta (%d bytes) should be strictly smaller than the first (%d bytes) once modified bits are cleared", buf2.Len(), buf1.Len())
	}
}

func TestDeserializeRejectsTruncatedStream(t *testing.T) {
	geom := Geometry{LeafSize: 0.1, Depth: 8}
	m, err := NewOccupancyMap(geom)
	if err != nil {
		t.Fatalf("NewOccupancyMap: %v", err)
	}
	if err := m.InsertHit(Point3{X: 0.05, Y: 0.05, Z: 0.05}); err != nil {
		t.Fatalf("InsertHit: %v", err)
	}
	m.PropagateModified(false, 0)

	var buf bytes.Buffer
	if err := m.Serialize(&buf, false); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	truncated := buf.Bytes()[:buf.Len()-4]
	if _, err := DeserializeOccupancyMap(bytes.NewReader(truncated)); err == nil {
		t.Fatal("expected an error reading a truncated stream")
	}
}
