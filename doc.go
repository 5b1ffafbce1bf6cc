// Package hashgrid builds a uniform spatial hash grid over a set of moving
// elements entirely on a compute device, once per frame.
//
// # Overview
//
// Every frame the grid runs five stages over device-resident buffers:
//
//  1. Bounds: reduce the element positions to an axis-aligned box.
//  2. Cell ids: assign each element slot a (cellID, elementID) pair.
//  3. Sort: order the pairs by cell id (bitonic in local memory, merged
//     across chunks when the capacity exceeds one chunk).
//  4. Cell start: map each cell id to the index of its first pair.
//  5. Statistics (optional): count occupied cells and collisions.
//
// Consumers read the published [Handles] to find every element in a cell
// by starting at CellStart[cell] and walking CellInstances while the cell
// id matches.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/hashgrid"
//	    "github.com/gogpu/hashgrid/backend"
//	    _ "github.com/gogpu/hashgrid/backend/software"
//	)
//
//	dev, err := backend.OpenDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	g, err := hashgrid.New(dev, hashgrid.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Close()
//
//	for range frames {
//	    // the producer writes element records into the data buffer
//	    h, err := g.Update()
//	    ...
//	}
//
// # Element Records
//
// The data buffer holds MaxElementCount records in the configured
// [Encoding]. A record whose first word is 0xFFFFFFFF is unwritten: it is
// skipped by the bounds stage and gets the out-of-range cell id
// MaxCellCount, which sorts after every real cell.
//
// # Buffers and Frames
//
// Buffers are allocated once per capacity. Frames with an unchanged
// capacity allocate nothing. The bounds computed in a frame become the
// previous bounds of the next frame by swapping references, and so do the
// two pair buffers used by the merge passes.
//
// # Telemetry
//
// [DebugProfile] times the pipeline on the device and feeds [Grid.Timings].
// [DebugStatistics] adds the statistics stage and an asynchronous readback
// delivered through [Grid.Statistics] some frames later. A readback that
// completes after its buffers were released is dropped.
package hashgrid

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
