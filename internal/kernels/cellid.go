package kernels

import (
	"math"

	"github.com/gogpu/hashgrid/gpucore"
)

// maxAxisCells caps the per-axis grid dimension so that the flattened index
// fits comfortably in 64 bits.
const maxAxisCells = 1 << 20

// GridDims returns the number of cells per axis spanned by the bounds:
// ceil((hi-lo)/cellSize), at least 1.
func GridDims(lo, hi, cellSize [3]float32) [3]uint32 {
	var dims [3]uint32
	for k := range 3 {
		extent := (hi[k] - lo[k]) / cellSize[k]
		d := math.Ceil(float64(extent))
		switch {
		case !(d >= 1):
			dims[k] = 1
		case d > maxAxisCells:
			dims[k] = maxAxisCells
		default:
			dims[k] = uint32(d)
		}
	}
	return dims
}

// CellCoord returns the grid coordinate of pos, clamped to [0, dims-1].
func CellCoord(pos, lo, cellSize [3]float32, dims [3]uint32) [3]uint32 {
	var c [3]uint32
	for k := range 3 {
		f := math.Floor(float64((pos[k] - lo[k]) / cellSize[k]))
		switch {
		case !(f >= 0):
			c[k] = 0
		case f >= float64(dims[k]-1):
			c[k] = dims[k] - 1
		default:
			c[k] = uint32(f)
		}
	}
	return c
}

// FlattenCell maps a grid coordinate to a cell id, clamped to
// [0, maxCellCount-1]. Coordinates beyond the table alias onto its last
// slot, which the statistics kernel reports as collisions.
func FlattenCell(c, dims [3]uint32, maxCellCount uint32) uint32 {
	flat := uint64(c[0]) + uint64(dims[0])*(uint64(c[1])+uint64(dims[1])*uint64(c[2]))
	return uint32(min(flat, uint64(maxCellCount-1)))
}

// CellID returns the cell id of a position inside the bounds [lo, hi].
func CellID(pos, lo, hi, cellSize [3]float32, maxCellCount uint32) uint32 {
	dims := GridDims(lo, hi, cellSize)
	return FlattenCell(CellCoord(pos, lo, cellSize, dims), dims, maxCellCount)
}

// UpdateList is grid_update_list/main: one (cellID, elementID) pair per
// element slot, with cellID = MaxCellCount for unwritten slots.
func UpdateList(group uint32, p *gpucore.Params, b *Buffers) {
	data := b[gpucore.SlotData]
	pairs := b[gpucore.SlotCellInstance]
	lo, hi := ReadBounds(b[gpucore.SlotBounds])
	dims := GridDims(lo, hi, p.CellSize)

	for t := range uint32(gpucore.ThreadsPerGroup) {
		i := groupThread(group, t)
		if i >= p.MaxElementCount {
			return
		}
		cell := p.MaxCellCount
		if pos, ok := Position(data, i, p.RecordWords); ok {
			cell = FlattenCell(CellCoord(pos, lo, p.CellSize, dims), dims, p.MaxCellCount)
		}
		pairs[i*gpucore.PairWords] = cell
		pairs[i*gpucore.PairWords+1] = i
	}
}
