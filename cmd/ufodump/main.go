// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

// Command ufodump reads a .ufo occupancy-map file and prints its
// header fields, node/block metrics, and an optional ASCII tree dump.
//
// Grounded on the teacher's cmd/main.go/cmd/routes.go: a small,
// log.Fatal-on-error CLI layered on top of the library, exactly the
// "façade binaries layered on top may expose their own" allowance of
// §6.2.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ufomap/ufomap"
)

func main() {
	log.SetFlags(0)

	dump := flag.Bool("dump", false, "print an ASCII tree dump")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: ufodump [-dump] <file.ufo>")
	}

	m, err := loadOccupancyMap(flag.Arg(0))
	if err != nil {
		log.Fatalf("ufodump: %v", err)
	}

	printStats(m)

	if *dump {
		if err := m.Fprint(os.Stdout); err != nil {
			log.Fatalf("ufodump: %v", err)
		}
	}
}

func loadOccupancyMap(path string) (*ufomap.OccupancyMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ufomap.DeserializeOccupancyMap(f)
}

func printStats(m *ufomap.OccupancyMap) {
	geom := m.Geometry()
	metrics := m.Metrics()

	fmt.Printf("leaf_size:    %g\n", geom.LeafSize)
	fmt.Printf("depth_levels: %d\n", geom.Depth)
	fmt.Printf("inner_nodes:       %d\n", metrics.NumInnerNodes)
	fmt.Printf("inner_leaf_nodes:  %d\n", metrics.NumInnerLeafNodes)
	fmt.Printf("leaf_nodes:        %d\n", metrics.NumLeafNodes)
	fmt.Printf("live_inner_blocks: %d (allocated %d)\n", metrics.LiveInnerBlocks, metrics.AllocatedInnerBlocks)
	fmt.Printf("live_leaf_blocks:  %d (allocated %d)\n", metrics.LiveLeafBlocks, metrics.AllocatedLeafBlocks)
}
