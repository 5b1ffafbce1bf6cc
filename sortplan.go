package hashgrid

import (
	"fmt"

	"github.com/gogpu/hashgrid/gpucore"
)

// LocalSortLimit returns the number of pairs one group can sort in local
// memory on a device with the given limits.
func LocalSortLimit(l gpucore.Limits) uint32 { return l.LocalSortLimit() }

// SortPlan is the sort strategy for one capacity on one device. It is
// resolved when buffers are allocated and reused every frame.
type SortPlan struct {
	// LocalSortLimit is the chunk size sorted in local memory.
	LocalSortLimit uint32

	// Entry is the kernel of the first sort dispatch: a single-pass
	// BitonicSort variant or BitonicPrePass.
	Entry string

	// Dispatch is the group count of the first sort dispatch. Y is 1.
	Dispatch Dispatch

	// MergePasses is the number of MergePass dispatches after a pre-pass.
	// Zero for the single-pass path.
	MergePasses uint32
}

// Hybrid reports whether the plan uses the pre-pass and merge network.
func (p SortPlan) Hybrid() bool { return p.Entry == gpucore.EntryBitonicPrePass }

func (p SortPlan) String() string {
	if p.Hybrid() {
		return fmt.Sprintf("%s(%d) + %d merge passes", p.Entry, p.LocalSortLimit, p.MergePasses)
	}
	return p.Entry
}

// SubArraySize returns the run length merged by merge pass i.
func (p SortPlan) SubArraySize(pass uint32) uint32 {
	return p.LocalSortLimit << pass
}

// PlanSort selects the sort kernels for maxElementCount pairs.
//
// Capacities up to the local sort limit use the smallest bitonic bucket
// (128, 1024, 2048, 4096) that covers them, in its wide variant when the
// device allows the group size and its 128-thread variant otherwise. Larger
// capacities sort chunks of LocalSortLimit pairs, then merge runs of
// doubling size log2(CeilPowerOfTwo(n)/LocalSortLimit) times.
//
// PlanSort panics if the pre-pass would need more than one row of groups.
func PlanSort(maxElementCount uint32, limits gpucore.Limits) SortPlan {
	lds := LocalSortLimit(limits)
	plan := SortPlan{
		LocalSortLimit: lds,
		Dispatch:       DispatchSize(maxElementCount, lds),
	}
	if plan.Dispatch.Y != 1 {
		panic(fmt.Sprintf("hashgrid: sort of %d pairs needs %d group rows", maxElementCount, plan.Dispatch.Y))
	}

	if maxElementCount > lds {
		plan.Entry = gpucore.EntryBitonicPrePass
		plan.MergePasses = HighestBit(CeilPowerOfTwo(maxElementCount) / lds)
		return plan
	}

	plan.Entry = bitonicVariant(maxElementCount, limits.MaxWorkgroupInvocations)
	return plan
}

func bitonicVariant(n, maxInvocations uint32) string {
	var bucket uint32
	switch {
	case n <= 128:
		return "BitonicSort128"
	case n <= 1024:
		bucket = 1024
	case n <= 2048:
		bucket = 2048
	default:
		bucket = 4096
	}
	wide := fmt.Sprintf("BitonicSort%d", bucket)
	if k, ok := gpucore.LookupSortKernel(wide); ok && k.Threads <= maxInvocations {
		return wide
	}
	return wide + "_128"
}

// maxSortableCount returns the largest capacity whose pre-pass fits in one
// row of groups.
func maxSortableCount(limits gpucore.Limits) uint64 {
	return uint64(MaxGroupsPerDimension) * uint64(LocalSortLimit(limits))
}
