package gpucore

import (
	"encoding/binary"
	"math"
)

// Word-level sentinels shared by every kernel.
const (
	// Unwritten marks an element slot (first word) that holds no element.
	Unwritten uint32 = 0xFFFFFFFF

	// EmptyCell marks a cell-start entry with no pairs.
	EmptyCell uint32 = 0xFFFFFFFF

	// PadKey fills the unused tail of a local sort chunk. It compares after
	// every real pair, including out-of-range ones.
	PadKey uint32 = 0xFFFFFFFF
)

// ThreadsPerGroup is the group size of every non-sort kernel.
const ThreadsPerGroup = 64

// PairWords is the size of one (cellID, elementID) pair.
const PairWords = 2

// Bounds buffer layout: min xyz then max xyz, each as an ordered float.
const (
	BoundsWords  = 6
	BoundsMinOff = 0
	BoundsMaxOff = 3
)

// Statistics buffer layout.
const (
	StatOccupied = iota
	StatCollisions
	StatMinPerCell
	StatMaxPerCell
	StatisticsWords
)

// OrderedFloat maps a float32 to a uint32 whose unsigned order matches the
// numeric order of the floats. Negative values are bit-inverted and positive
// values get the sign bit set.
func OrderedFloat(f float32) uint32 {
	b := math.Float32bits(f)
	if b&0x80000000 != 0 {
		return ^b
	}
	return b | 0x80000000
}

// FloatFromOrdered inverts OrderedFloat.
func FloatFromOrdered(u uint32) float32 {
	if u&0x80000000 != 0 {
		return math.Float32frombits(u &^ 0x80000000)
	}
	return math.Float32frombits(^u)
}

// BoundsReset returns the reset value of a bounds buffer: min at +MaxFloat32
// and max at -MaxFloat32, so any real position tightens it.
func BoundsReset() []uint32 {
	hi := OrderedFloat(math.MaxFloat32)
	lo := OrderedFloat(-math.MaxFloat32)
	return []uint32{hi, hi, hi, lo, lo, lo}
}

// StatisticsReset returns the per-frame reset value of the statistics buffer.
func StatisticsReset() []uint32 {
	return []uint32{0, 0, math.MaxUint32, 0}
}

// Slot names a buffer binding. Binding index in a program is 1 + slot; the
// [Params] uniform always sits at binding 0.
type Slot uint8

const (
	SlotData Slot = iota
	SlotPreviousBounds
	SlotBounds
	SlotCellInstance
	SlotInputSequence
	SlotSortedSequence
	SlotCellStart
	SlotStatistics

	slotCount
)

// SlotCount is the number of binding slots.
const SlotCount = int(slotCount)

var slotNames = [...]string{
	"Data",
	"PreviousBounds",
	"Bounds",
	"CellInstance",
	"InputSequence",
	"SortedSequence",
	"CellStart",
	"Statistics",
}

func (s Slot) String() string {
	if int(s) < len(slotNames) {
		return slotNames[s]
	}
	return "Unknown"
}

// Binding returns the shader binding index of the slot.
func (s Slot) Binding() uint32 { return uint32(s) + 1 }

// Params is the uniform block bound at binding 0 of every kernel.
// Must match the Params struct in the WGSL programs (48 bytes).
type Params struct {
	CellSize        [3]float32
	MaxElementCount uint32
	MaxCellCount    uint32

	// DispatchWidth is the X group count of the dispatch, used by kernels
	// to flatten 2D-tiled group ids.
	DispatchWidth uint32

	// SubArraySize is the length of each sorted run merged by MergePass.
	SubArraySize uint32

	// RecordWords is the stride of one element record.
	RecordWords uint32

	// SortSize is the chunk length sorted in local memory by the bitonic
	// kernels.
	SortSize uint32
}

// ParamsSize is the uniform size in bytes.
const ParamsSize = 48

// Bytes serializes the params to the uniform layout.
func (p *Params) Bytes() []byte {
	buf := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(p.CellSize[0]))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(p.CellSize[1]))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(p.CellSize[2]))
	binary.LittleEndian.PutUint32(buf[12:], p.MaxElementCount)
	binary.LittleEndian.PutUint32(buf[16:], p.MaxCellCount)
	binary.LittleEndian.PutUint32(buf[20:], p.DispatchWidth)
	binary.LittleEndian.PutUint32(buf[24:], p.SubArraySize)
	binary.LittleEndian.PutUint32(buf[28:], p.RecordWords)
	binary.LittleEndian.PutUint32(buf[32:], p.SortSize)
	// 36..47: padding
	return buf
}

// Program names.
const (
	ProgramUpdateBounds = "grid_update_bounds"
	ProgramUpdateList   = "grid_update_list"
	ProgramSortList     = "grid_sort_list"
	ProgramCellStart    = "grid_cell_start"
	ProgramStatistics   = "grid_statistics"
)

// Kernel entry points.
const (
	EntryMain = "main"

	EntryBitonicPrePass = "BitonicPrePass"
	EntryMergePass      = "MergePass"

	EntryClearCellStart   = "ClearCellStart"
	EntryComputeCellStart = "ComputeCellStart"
)

// SortKernel describes one bitonic sort entry point of ProgramSortList.
type SortKernel struct {
	Entry string

	// Size is the number of pairs sorted in local memory. Zero for the
	// pre-pass, which sorts Params.SortSize pairs.
	Size uint32

	// Threads is the group size of the kernel.
	Threads uint32
}

// SortKernels lists the single-dispatch bitonic variants in ascending size.
// A "_128" suffix marks the variant for devices whose group size is too
// small for the wide one.
var SortKernels = []SortKernel{
	{Entry: "BitonicSort128", Size: 128, Threads: 64},
	{Entry: "BitonicSort1024", Size: 1024, Threads: 256},
	{Entry: "BitonicSort1024_128", Size: 1024, Threads: 128},
	{Entry: "BitonicSort2048", Size: 2048, Threads: 512},
	{Entry: "BitonicSort2048_128", Size: 2048, Threads: 128},
	{Entry: "BitonicSort4096", Size: 4096, Threads: 1024},
	{Entry: "BitonicSort4096_128", Size: 4096, Threads: 128},
}

// PrePassThreads is the group size of BitonicPrePass.
const PrePassThreads = 128

// LookupSortKernel returns the SortKernel with the given entry name.
func LookupSortKernel(entry string) (SortKernel, bool) {
	for _, k := range SortKernels {
		if k.Entry == entry {
			return k, true
		}
	}
	return SortKernel{}, false
}

// Access is how a program uses a bound buffer.
type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

// SlotUse is one buffer binding of a program.
type SlotUse struct {
	Slot   Slot
	Access Access
}

// ProgramSlots lists the buffer bindings of each program. All entry points
// of a program share one layout, so a dispatch must bind every slot listed
// for its program.
var ProgramSlots = map[string][]SlotUse{
	ProgramUpdateBounds: {
		{SlotData, ReadOnly},
		{SlotBounds, ReadWrite},
	},
	ProgramUpdateList: {
		{SlotData, ReadOnly},
		{SlotBounds, ReadOnly},
		{SlotCellInstance, ReadWrite},
	},
	ProgramSortList: {
		{SlotInputSequence, ReadOnly},
		{SlotSortedSequence, ReadWrite},
	},
	ProgramCellStart: {
		{SlotCellInstance, ReadOnly},
		{SlotCellStart, ReadWrite},
	},
	ProgramStatistics: {
		{SlotData, ReadOnly},
		{SlotBounds, ReadOnly},
		{SlotCellInstance, ReadOnly},
		{SlotStatistics, ReadWrite},
	},
}
