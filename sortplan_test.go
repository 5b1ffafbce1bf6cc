package hashgrid

import (
	"testing"

	"github.com/gogpu/hashgrid/gpucore"
)

func limitsWith(invocations, storage uint32) gpucore.Limits {
	l := gpucore.DefaultLimits()
	l.MaxWorkgroupInvocations = invocations
	l.MaxWorkgroupStorageSize = storage
	return l
}

func TestLocalSortLimit(t *testing.T) {
	if got := LocalSortLimit(limitsWith(256, 16384)); got != 2048 {
		t.Errorf("LocalSortLimit(16 KiB) = %d, want 2048", got)
	}
	if got := LocalSortLimit(limitsWith(1024, 32768)); got != 4096 {
		t.Errorf("LocalSortLimit(32 KiB) = %d, want 4096", got)
	}
}

func TestPlanSort(t *testing.T) {
	desktop := limitsWith(1024, 32768)
	baseline := limitsWith(256, 16384)

	tests := []struct {
		name   string
		n      uint32
		limits gpucore.Limits
		entry  string
		passes uint32
		groups uint32
	}{
		{"tiny", 5, desktop, "BitonicSort128", 0, 1},
		{"128", 128, desktop, "BitonicSort128", 0, 1},
		{"129", 129, desktop, "BitonicSort1024", 0, 1},
		{"1024 narrow", 1000, limitsWith(128, 32768), "BitonicSort1024_128", 0, 1},
		{"2047 baseline", 2047, baseline, "BitonicSort2048_128", 0, 1},
		{"2048 baseline", 2048, baseline, "BitonicSort2048_128", 0, 1},
		{"2049 baseline", 2049, baseline, gpucore.EntryBitonicPrePass, 1, 2},
		{"4096 baseline", 4096, baseline, gpucore.EntryBitonicPrePass, 1, 2},
		{"4097 baseline", 4097, baseline, gpucore.EntryBitonicPrePass, 2, 3},
		{"2048 desktop", 2048, desktop, "BitonicSort2048", 0, 1},
		{"4096 desktop", 4096, desktop, "BitonicSort4096", 0, 1},
		{"4096 narrow", 4096, limitsWith(512, 32768), "BitonicSort4096_128", 0, 1},
		{"4097 desktop", 4097, desktop, gpucore.EntryBitonicPrePass, 1, 2},
		{"65536 desktop", 65536, desktop, gpucore.EntryBitonicPrePass, 4, 16},
		{"65537 desktop", 65537, desktop, gpucore.EntryBitonicPrePass, 5, 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanSort(tt.n, tt.limits)
			if p.Entry != tt.entry {
				t.Errorf("Entry = %s, want %s", p.Entry, tt.entry)
			}
			if p.MergePasses != tt.passes {
				t.Errorf("MergePasses = %d, want %d", p.MergePasses, tt.passes)
			}
			if p.Dispatch.X != tt.groups || p.Dispatch.Y != 1 {
				t.Errorf("Dispatch = %+v, want {%d 1}", p.Dispatch, tt.groups)
			}
			if p.Hybrid() != (tt.passes > 0) {
				t.Errorf("Hybrid() = %v with %d passes", p.Hybrid(), tt.passes)
			}
		})
	}
}

func TestSortPlan_MergeCoversCapacity(t *testing.T) {
	for _, n := range []uint32{4097, 8192, 8193, 100000, 1 << 20} {
		p := PlanSort(n, limitsWith(1024, 32768))
		last := p.SubArraySize(p.MergePasses - 1)
		if uint64(last)*2 < uint64(n) {
			t.Errorf("n=%d: final merge joins runs of %d, does not cover capacity", n, last)
		}
		if p.MergePasses > 1 && uint64(p.SubArraySize(p.MergePasses-2))*2 >= uint64(n) {
			t.Errorf("n=%d: %d passes, one too many", n, p.MergePasses)
		}
	}
}

func TestPlanSort_PanicsBeyondOneRow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("PlanSort did not panic for a multi-row pre-pass")
		}
	}()
	PlanSort(0xFFFF*2048+1, limitsWith(256, 16384))
}

func TestSortPlan_String(t *testing.T) {
	tests := []struct {
		n    uint32
		want string
	}{
		{100, "BitonicSort128"},
		{5000, "BitonicPrePass(2048) + 2 merge passes"},
	}
	for _, tt := range tests {
		if got := PlanSort(tt.n, limitsWith(256, 16384)).String(); got != tt.want {
			t.Errorf("PlanSort(%d).String() = %q, want %q", tt.n, got, tt.want)
		}
	}
}
