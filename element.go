package hashgrid

import (
	"math"

	"github.com/gogpu/hashgrid/gpucore"
	"github.com/gogpu/hashgrid/internal/kernels"
)

// Encode writes one element record into dst, which must hold
// e.RecordWords() words. Velocity is dropped by the compact encoding.
func (e Encoding) Encode(dst []uint32, pos, vel Vec3) {
	dst[0] = math.Float32bits(pos.X)
	dst[1] = math.Float32bits(pos.Y)
	dst[2] = math.Float32bits(pos.Z)
	if e == EncodingExpanded {
		dst[3] = math.Float32bits(vel.X)
		dst[4] = math.Float32bits(vel.Y)
		dst[5] = math.Float32bits(vel.Z)
	}
}

// Clear marks the record in dst as unwritten.
func (e Encoding) Clear(dst []uint32) {
	for i := range e.RecordWords() {
		dst[i] = gpucore.Unwritten
	}
}

// Decode reads the position of a record. ok is false for unwritten
// records and non-finite positions.
func (e Encoding) Decode(src []uint32) (pos Vec3, ok bool) {
	p, ok := kernels.Position(src, 0, e.RecordWords())
	return vec3(p), ok
}

// CellOf returns the cell id the pipeline assigns to pos for the given
// bounds, cell size and table size.
func CellOf(pos Vec3, b Bounds, cellSize Vec3, maxCellCount uint32) uint32 {
	return kernels.CellID(pos.array(), b.Min.array(), b.Max.array(), cellSize.array(), maxCellCount)
}

func gridDims(lo, hi, cellSize [3]float32) [3]uint32 {
	return kernels.GridDims(lo, hi, cellSize)
}
