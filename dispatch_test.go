package hashgrid

import (
	"math"
	"testing"
)

// =============================================================================
// Arithmetic Tests
// =============================================================================

func TestDivideUpMultiple(t *testing.T) {
	tests := []struct {
		value, multiple, want uint32
	}{
		{0, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{65536, 64, 1024},
		{math.MaxUint32 - 63, 64, 1<<26 - 1},
	}
	for _, tt := range tests {
		if got := DivideUpMultiple(tt.value, tt.multiple); got != tt.want {
			t.Errorf("DivideUpMultiple(%d, %d) = %d, want %d", tt.value, tt.multiple, got, tt.want)
		}
	}
}

func TestDivideUpMultiple_Panics(t *testing.T) {
	tests := []struct {
		name            string
		value, multiple uint32
	}{
		{"zero multiple", 10, 0},
		{"overflow", math.MaxUint32, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("DivideUpMultiple(%d, %d) did not panic", tt.value, tt.multiple)
				}
			}()
			DivideUpMultiple(tt.value, tt.multiple)
		})
	}
}

func TestCeilPowerOfTwo(t *testing.T) {
	tests := []struct{ in, want uint32 }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {2047, 2048}, {2048, 2048}, {2049, 4096},
		{4097, 8192}, {1 << 31, 1 << 31},
	}
	for _, tt := range tests {
		if got := CeilPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("CeilPowerOfTwo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHighestBit(t *testing.T) {
	tests := []struct{ in, want uint32 }{
		{1, 0}, {2, 1}, {3, 1}, {4096, 12}, {1 << 31, 31},
	}
	for _, tt := range tests {
		if got := HighestBit(tt.in); got != tt.want {
			t.Errorf("HighestBit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// DispatchSize Tests
// =============================================================================

func TestDispatchSize(t *testing.T) {
	tests := []struct {
		count, tpg uint32
		want       Dispatch
	}{
		{1, 64, Dispatch{1, 1}},
		{64, 64, Dispatch{1, 1}},
		{65, 64, Dispatch{2, 1}},
		{65536, 64, Dispatch{1024, 1}},
		{0xFFFF * 64, 64, Dispatch{0xFFFF, 1}},
		{0xFFFF*64 + 1, 64, Dispatch{0x8000, 2}},
		{4097, 4096, Dispatch{2, 1}},
	}
	for _, tt := range tests {
		got := DispatchSize(tt.count, tt.tpg)
		if got != tt.want {
			t.Errorf("DispatchSize(%d, %d) = %+v, want %+v", tt.count, tt.tpg, got, tt.want)
		}
	}
}

func TestDispatchSize_CoversAndRespectsCeiling(t *testing.T) {
	for _, count := range []uint32{1, 63, 4096, 1 << 22, 1 << 26, 1<<31 - 1} {
		d := DispatchSize(count, 64)
		if d.X > MaxGroupsPerDimension || d.Y > MaxGroupsPerDimension {
			t.Errorf("DispatchSize(%d) = %+v exceeds the per-axis ceiling", count, d)
		}
		if d.Groups()*64 < uint64(count) {
			t.Errorf("DispatchSize(%d) = %+v covers only %d threads", count, d, d.Groups()*64)
		}
	}
}
