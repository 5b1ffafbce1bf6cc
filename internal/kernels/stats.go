package kernels

import "github.com/gogpu/hashgrid/gpucore"

// Statistics is grid_statistics/main. The thread at the start of each run
// walks the run and folds its length into the counters. A run holding
// elements from more than one grid cell counts as one collision.
func Statistics(group uint32, p *gpucore.Params, b *Buffers) {
	data := b[gpucore.SlotData]
	pairs := b[gpucore.SlotCellInstance]
	stats := b[gpucore.SlotStatistics]
	lo, hi := ReadBounds(b[gpucore.SlotBounds])
	dims := GridDims(lo, hi, p.CellSize)
	n := p.MaxElementCount

	coord := func(k uint32) [3]uint32 {
		pos, _ := Position(data, pairs[k*gpucore.PairWords+1], p.RecordWords)
		return CellCoord(pos, lo, p.CellSize, dims)
	}

	for t := range uint32(gpucore.ThreadsPerGroup) {
		k := groupThread(group, t)
		if k >= n {
			return
		}
		c := pairs[k*gpucore.PairWords]
		if c >= p.MaxCellCount {
			continue
		}
		if k > 0 && pairs[(k-1)*gpucore.PairWords] == c {
			continue
		}

		first := coord(k)
		collided := false
		end := k + 1
		for end < n && pairs[end*gpucore.PairWords] == c {
			if !collided && coord(end) != first {
				collided = true
			}
			end++
		}

		count := end - k
		atomicAdd(&stats[gpucore.StatOccupied], 1)
		atomicMin(&stats[gpucore.StatMinPerCell], count)
		atomicMax(&stats[gpucore.StatMaxPerCell], count)
		if collided {
			atomicAdd(&stats[gpucore.StatCollisions], 1)
		}
	}
}
