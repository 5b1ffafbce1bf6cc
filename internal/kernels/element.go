package kernels

import (
	"math"

	"github.com/gogpu/hashgrid/gpucore"
)

// Position reads the position of element i from a data buffer with the
// given record stride. ok is false for unwritten slots and for positions
// that are not finite.
func Position(data []uint32, i, stride uint32) (pos [3]float32, ok bool) {
	base := i * stride
	if data[base] == gpucore.Unwritten {
		return pos, false
	}
	for k := range 3 {
		f := math.Float32frombits(data[base+uint32(k)])
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return pos, false
		}
		pos[k] = f
	}
	return pos, true
}

// ReadBounds decodes a bounds buffer into min and max corners.
func ReadBounds(b []uint32) (lo, hi [3]float32) {
	for k := range 3 {
		lo[k] = gpucore.FloatFromOrdered(b[gpucore.BoundsMinOff+k])
		hi[k] = gpucore.FloatFromOrdered(b[gpucore.BoundsMaxOff+k])
	}
	return lo, hi
}

// groupThread returns the element index of thread t in a 64-wide group.
func groupThread(group, t uint32) uint32 {
	return group*gpucore.ThreadsPerGroup + t
}
