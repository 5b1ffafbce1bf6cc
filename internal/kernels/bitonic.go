package kernels

import "github.com/gogpu/hashgrid/gpucore"

// pairKey packs a pair into its sort key: cell id first, element id second.
func pairKey(cell, elem uint32) uint64 {
	return uint64(cell)<<32 | uint64(elem)
}

// PairKey reads the sort key of pair i.
func PairKey(pairs []uint32, i uint32) uint64 {
	return pairKey(pairs[i*gpucore.PairWords], pairs[i*gpucore.PairWords+1])
}

func writePair(pairs []uint32, i uint32, key uint64) {
	pairs[i*gpucore.PairWords] = uint32(key >> 32)
	pairs[i*gpucore.PairWords+1] = uint32(key)
}

// sortChunk sorts pairs [base, base+size) of in into out using a bitonic
// network in local memory. Slots at or past n are padded with the pad key
// and never written back. size must be a power of two.
func sortChunk(in, out []uint32, base, size, threads, n uint32) {
	local := make([]uint64, size)
	padKey := pairKey(gpucore.PadKey, gpucore.PadKey)

	for t := range threads {
		for i := t; i < size; i += threads {
			if base+i < n {
				local[i] = PairKey(in, base+i)
			} else {
				local[i] = padKey
			}
		}
	}
	// barrier

	half := size / 2
	for k := uint32(2); k <= size; k <<= 1 {
		for j := k >> 1; j > 0; j >>= 1 {
			for t := range threads {
				for c := t; c < half; c += threads {
					i := 2*j*(c/j) + c%j
					l := i + j
					up := i&k == 0
					if (local[i] > local[l]) == up {
						local[i], local[l] = local[l], local[i]
					}
				}
			}
			// barrier
		}
	}

	for t := range threads {
		for i := t; i < size; i += threads {
			if base+i < n {
				writePair(out, base+i, local[i])
			}
		}
	}
}

// BitonicSort returns the single-dispatch sort kernel for a fixed bucket
// size. It is dispatched with one group and sorts all MaxElementCount pairs.
func BitonicSort(size, threads uint32) Func {
	return func(group uint32, p *gpucore.Params, b *Buffers) {
		sortChunk(b[gpucore.SlotInputSequence], b[gpucore.SlotSortedSequence],
			group*size, size, threads, p.MaxElementCount)
	}
}

// BitonicPrePass sorts chunk `group` of Params.SortSize pairs.
func BitonicPrePass(group uint32, p *gpucore.Params, b *Buffers) {
	sortChunk(b[gpucore.SlotInputSequence], b[gpucore.SlotSortedSequence],
		group*p.SortSize, p.SortSize, gpucore.PrePassThreads, p.MaxElementCount)
}
