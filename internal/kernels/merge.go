package kernels

import "github.com/gogpu/hashgrid/gpucore"

// lowerBound returns the number of pairs in [lo, hi) with key < key.
func lowerBound(pairs []uint32, lo, hi uint32, key uint64) uint32 {
	start := lo
	for lo < hi {
		mid := lo + (hi-lo)/2
		if PairKey(pairs, mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - start
}

// upperBound returns the number of pairs in [lo, hi) with key <= key.
func upperBound(pairs []uint32, lo, hi uint32, key uint64) uint32 {
	start := lo
	for lo < hi {
		mid := lo + (hi-lo)/2
		if PairKey(pairs, mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - start
}

// MergePass merges adjacent sorted runs of SubArraySize pairs from the
// input sequence into the sorted sequence. Each thread places one pair at
// its own index plus its rank in the partner run.
func MergePass(group uint32, p *gpucore.Params, b *Buffers) {
	in := b[gpucore.SlotInputSequence]
	out := b[gpucore.SlotSortedSequence]
	n := p.MaxElementCount
	run := p.SubArraySize

	for t := range uint32(gpucore.ThreadsPerGroup) {
		i := groupThread(group, t)
		if i >= n {
			return
		}
		key := PairKey(in, i)

		left := (i / (2 * run)) * 2 * run
		right := min(left+run, n)
		end := min(right+run, n)

		var dst uint32
		if i < right {
			dst = i + lowerBound(in, right, end, key)
		} else {
			dst = left + (i - right) + upperBound(in, left, right, key)
		}
		writePair(out, dst, key)
	}
}
