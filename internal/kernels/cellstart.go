package kernels

import "github.com/gogpu/hashgrid/gpucore"

// ClearCellStart is grid_cell_start/ClearCellStart.
func ClearCellStart(group uint32, p *gpucore.Params, b *Buffers) {
	cellStart := b[gpucore.SlotCellStart]
	for t := range uint32(gpucore.ThreadsPerGroup) {
		c := groupThread(group, t)
		if c >= p.MaxCellCount {
			return
		}
		cellStart[c] = gpucore.EmptyCell
	}
}

// ComputeCellStart is grid_cell_start/ComputeCellStart. A sorted pair that
// opens a run of its cell id records its index. Pairs whose cell id is out
// of table range are skipped.
func ComputeCellStart(group uint32, p *gpucore.Params, b *Buffers) {
	pairs := b[gpucore.SlotCellInstance]
	cellStart := b[gpucore.SlotCellStart]

	for t := range uint32(gpucore.ThreadsPerGroup) {
		k := groupThread(group, t)
		if k >= p.MaxElementCount {
			return
		}
		c := pairs[k*gpucore.PairWords]
		if c >= p.MaxCellCount {
			continue
		}
		if k == 0 || pairs[(k-1)*gpucore.PairWords] != c {
			cellStart[c] = k
		}
	}
}
