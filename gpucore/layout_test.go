package gpucore

import (
	"encoding/binary"
	"math"
	"sort"
	"testing"
)

// =============================================================================
// Ordered Float Tests
// =============================================================================

func TestOrderedFloat_RoundTrip(t *testing.T) {
	tests := []float32{
		0, 1, -1, 0.1, -0.1, 10, -10, 1e-30, -1e-30,
		math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32,
	}
	for _, f := range tests {
		if got := FloatFromOrdered(OrderedFloat(f)); got != f {
			t.Errorf("FloatFromOrdered(OrderedFloat(%g)) = %g", f, got)
		}
	}
}

func TestOrderedFloat_PreservesOrder(t *testing.T) {
	values := []float32{
		-math.MaxFloat32, -1e10, -3.5, -1, -0.25, -1e-20, 0,
		1e-20, 0.25, 1, 3.5, 1e10, math.MaxFloat32,
	}
	if !sort.SliceIsSorted(values, func(i, j int) bool { return values[i] < values[j] }) {
		t.Fatal("test values not sorted")
	}
	for i := 1; i < len(values); i++ {
		a, b := OrderedFloat(values[i-1]), OrderedFloat(values[i])
		if a >= b {
			t.Errorf("OrderedFloat(%g) = %#x, OrderedFloat(%g) = %#x, want ascending",
				values[i-1], a, values[i], b)
		}
	}
}

func TestBoundsReset(t *testing.T) {
	words := BoundsReset()
	if len(words) != BoundsWords {
		t.Fatalf("len(BoundsReset()) = %d, want %d", len(words), BoundsWords)
	}
	for i := 0; i < 3; i++ {
		if got := FloatFromOrdered(words[BoundsMinOff+i]); got != math.MaxFloat32 {
			t.Errorf("min[%d] = %g, want MaxFloat32", i, got)
		}
		if got := FloatFromOrdered(words[BoundsMaxOff+i]); got != -math.MaxFloat32 {
			t.Errorf("max[%d] = %g, want -MaxFloat32", i, got)
		}
	}
	// Any real value must tighten both ends.
	if OrderedFloat(1e30) >= words[BoundsMinOff] {
		t.Error("reset min does not compare above a large position")
	}
	if OrderedFloat(-1e30) <= words[BoundsMaxOff] {
		t.Error("reset max does not compare below a very negative position")
	}
}

func TestStatisticsReset(t *testing.T) {
	got := StatisticsReset()
	want := []uint32{0, 0, math.MaxUint32, 0}
	if len(got) != StatisticsWords {
		t.Fatalf("len = %d, want %d", len(got), StatisticsWords)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("StatisticsReset()[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

// =============================================================================
// Params / Slot Tests
// =============================================================================

func TestParams_Bytes(t *testing.T) {
	p := Params{
		CellSize:        [3]float32{1.5, 2, 0.5},
		MaxElementCount: 65536,
		MaxCellCount:    4096,
		DispatchWidth:   1024,
		SubArraySize:    2048,
		RecordWords:     3,
		SortSize:        4096,
	}
	b := p.Bytes()
	if len(b) != ParamsSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), ParamsSize)
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }
	if got := math.Float32frombits(word(1)); got != 2 {
		t.Errorf("cell size y = %g, want 2", got)
	}
	checks := []struct {
		idx  int
		want uint32
	}{
		{3, 65536}, {4, 4096}, {5, 1024}, {6, 2048}, {7, 3}, {8, 4096}, {9, 0}, {11, 0},
	}
	for _, c := range checks {
		if got := word(c.idx); got != c.want {
			t.Errorf("word %d = %d, want %d", c.idx, got, c.want)
		}
	}
}

func TestSlot_Binding(t *testing.T) {
	if SlotData.Binding() != 1 {
		t.Errorf("SlotData.Binding() = %d, want 1", SlotData.Binding())
	}
	if SlotStatistics.Binding() != uint32(SlotCount) {
		t.Errorf("SlotStatistics.Binding() = %d, want %d", SlotStatistics.Binding(), SlotCount)
	}
	if SlotCellStart.String() != "CellStart" {
		t.Errorf("SlotCellStart.String() = %q", SlotCellStart.String())
	}
	if Slot(200).String() != "Unknown" {
		t.Errorf("Slot(200).String() = %q, want Unknown", Slot(200).String())
	}
}

func TestLookupSortKernel(t *testing.T) {
	k, ok := LookupSortKernel("BitonicSort2048_128")
	if !ok {
		t.Fatal("BitonicSort2048_128 not found")
	}
	if k.Size != 2048 || k.Threads != 128 {
		t.Errorf("got %+v, want size 2048 threads 128", k)
	}
	if _, ok := LookupSortKernel("BitonicSort8192"); ok {
		t.Error("unexpected kernel BitonicSort8192")
	}
}
