package hashgrid

import (
	"github.com/gogpu/hashgrid/gpucore"
	"github.com/gogpu/hashgrid/internal/kernels"
)

// Bounds is a decoded axis-aligned bounding box.
type Bounds struct {
	Min, Max Vec3
}

// DecodeBounds decodes the six words of a bounds buffer.
func DecodeBounds(words []uint32) Bounds {
	f := func(i int) float32 { return gpucore.FloatFromOrdered(words[i]) }
	return Bounds{
		Min: Vec3{f(gpucore.BoundsMinOff), f(gpucore.BoundsMinOff + 1), f(gpucore.BoundsMinOff + 2)},
		Max: Vec3{f(gpucore.BoundsMaxOff), f(gpucore.BoundsMaxOff + 1), f(gpucore.BoundsMaxOff + 2)},
	}
}

// Encode returns the six-word buffer form of b.
func (b Bounds) Encode() []uint32 {
	return []uint32{
		gpucore.OrderedFloat(b.Min.X), gpucore.OrderedFloat(b.Min.Y), gpucore.OrderedFloat(b.Min.Z),
		gpucore.OrderedFloat(b.Max.X), gpucore.OrderedFloat(b.Max.Y), gpucore.OrderedFloat(b.Max.Z),
	}
}

// Empty reports whether the box contains no point, as after a reset.
func (b Bounds) Empty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Contains reports whether p lies inside the box, borders included.
func (b Bounds) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Dims returns the number of cells per axis the box spans for a cell
// size: ceil((max-min)/cellSize), at least 1.
func (b Bounds) Dims(cellSize Vec3) [3]uint32 {
	return gridDims(b.Min.array(), b.Max.array(), cellSize.array())
}

// Coord returns the clamped 3D cell coordinate of p inside the box.
func (b Bounds) Coord(p Vec3, cellSize Vec3) [3]uint32 {
	lo, cs := b.Min.array(), cellSize.array()
	return kernels.CellCoord(p.array(), lo, cs, b.Dims(cellSize))
}
