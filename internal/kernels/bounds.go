package kernels

import (
	"math"

	"github.com/gogpu/hashgrid/gpucore"
)

// UpdateBounds is grid_update_bounds/main. Each group folds its 64 elements
// into a local min/max, then combines it into the current bounds with one
// atomic min and one atomic max per axis.
func UpdateBounds(group uint32, p *gpucore.Params, b *Buffers) {
	data := b[gpucore.SlotData]
	bounds := b[gpucore.SlotBounds]

	lo := [3]uint32{math.MaxUint32, math.MaxUint32, math.MaxUint32}
	var hi [3]uint32
	found := false

	for t := range uint32(gpucore.ThreadsPerGroup) {
		i := groupThread(group, t)
		if i >= p.MaxElementCount {
			break
		}
		pos, ok := Position(data, i, p.RecordWords)
		if !ok {
			continue
		}
		found = true
		for k := range 3 {
			e := gpucore.OrderedFloat(pos[k])
			lo[k] = min(lo[k], e)
			hi[k] = max(hi[k], e)
		}
	}

	if !found {
		return
	}
	for k := range 3 {
		atomicMin(&bounds[gpucore.BoundsMinOff+k], lo[k])
		atomicMax(&bounds[gpucore.BoundsMaxOff+k], hi[k])
	}
}
