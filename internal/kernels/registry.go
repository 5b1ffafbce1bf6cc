package kernels

import "github.com/gogpu/hashgrid/gpucore"

// Buffers holds the buffers bound to each slot for one dispatch.
// Unbound slots are nil.
type Buffers [gpucore.SlotCount][]uint32

// Func runs one thread group. group is the flattened group index
// (y*dispatchWidth + x).
type Func func(group uint32, p *gpucore.Params, b *Buffers)

// Kernel is one entry point of a program.
type Kernel struct {
	Program string
	Entry   string
	Threads uint32
	Run     Func
}

var registry = map[string]map[string]Kernel{}

func register(program, entry string, threads uint32, fn Func) {
	entries := registry[program]
	if entries == nil {
		entries = map[string]Kernel{}
		registry[program] = entries
	}
	entries[entry] = Kernel{Program: program, Entry: entry, Threads: threads, Run: fn}
}

func init() {
	register(gpucore.ProgramUpdateBounds, gpucore.EntryMain, gpucore.ThreadsPerGroup, UpdateBounds)
	register(gpucore.ProgramUpdateList, gpucore.EntryMain, gpucore.ThreadsPerGroup, UpdateList)

	register(gpucore.ProgramSortList, gpucore.EntryBitonicPrePass, gpucore.PrePassThreads, BitonicPrePass)
	for _, k := range gpucore.SortKernels {
		register(gpucore.ProgramSortList, k.Entry, k.Threads, BitonicSort(k.Size, k.Threads))
	}
	register(gpucore.ProgramSortList, gpucore.EntryMergePass, gpucore.ThreadsPerGroup, MergePass)

	register(gpucore.ProgramCellStart, gpucore.EntryClearCellStart, gpucore.ThreadsPerGroup, ClearCellStart)
	register(gpucore.ProgramCellStart, gpucore.EntryComputeCellStart, gpucore.ThreadsPerGroup, ComputeCellStart)

	register(gpucore.ProgramStatistics, gpucore.EntryMain, gpucore.ThreadsPerGroup, Statistics)
}

// HasProgram reports whether a program with the given name exists.
func HasProgram(program string) bool {
	_, ok := registry[program]
	return ok
}

// Lookup returns the kernel for a program entry point.
func Lookup(program, entry string) (Kernel, bool) {
	k, ok := registry[program][entry]
	return k, ok
}
