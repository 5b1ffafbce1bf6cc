package software

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/hashgrid/gpucore"
)

func newTestDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	d := New(opts...)
	t.Cleanup(d.Close)
	return d
}

func mustBuffer(t *testing.T, d *Device, words int, fill uint32) gpucore.BufferID {
	t.Helper()
	id, err := d.CreateBuffer(gpucore.BufferDesc{Label: t.Name(), Words: words, Fill: fill})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return id
}

func mustKernel(t *testing.T, d *Device, program, entry string) gpucore.KernelID {
	t.Helper()
	p, err := d.LoadProgram(program)
	if err != nil {
		t.Fatalf("LoadProgram(%s) error = %v", program, err)
	}
	k, err := d.FindKernel(p, entry)
	if err != nil {
		t.Fatalf("FindKernel(%s) error = %v", entry, err)
	}
	return k
}

// =============================================================================
// Buffer Tests
// =============================================================================

func TestDevice_BufferFillWriteRead(t *testing.T) {
	d := newTestDevice(t)
	id := mustBuffer(t, d, 8, 0xFFFFFFFF)

	if err := d.WriteBuffer(id, 2, []uint32{1, 2, 3}); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
	got := make([]uint32, 8)
	if err := d.ReadBuffer(id, 0, got); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	want := []uint32{0xFFFFFFFF, 0xFFFFFFFF, 1, 2, 3, 0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestDevice_BufferErrors(t *testing.T) {
	d := newTestDevice(t)

	if _, err := d.CreateBuffer(gpucore.BufferDesc{Words: 0}); err == nil {
		t.Error("CreateBuffer(0 words) succeeded")
	}

	id := mustBuffer(t, d, 4, 0)
	if err := d.WriteBuffer(id, 3, []uint32{1, 2}); !errors.Is(err, gpucore.ErrInvalidBuffer) {
		t.Errorf("out of range write error = %v, want ErrInvalidBuffer", err)
	}

	d.DestroyBuffer(id)
	if err := d.ReadBuffer(id, 0, make([]uint32, 1)); !errors.Is(err, gpucore.ErrInvalidBuffer) {
		t.Errorf("read after destroy error = %v, want ErrInvalidBuffer", err)
	}
	d.DestroyBuffer(id) // double destroy is a no-op
}

// =============================================================================
// Program Tests
// =============================================================================

func TestDevice_MissingProgram(t *testing.T) {
	d := newTestDevice(t, WithoutPrograms(gpucore.ProgramSortList))

	if _, err := d.LoadProgram(gpucore.ProgramSortList); !errors.Is(err, gpucore.ErrProgramNotFound) {
		t.Errorf("LoadProgram(hidden) error = %v, want ErrProgramNotFound", err)
	}
	if _, err := d.LoadProgram("grid_unknown"); !errors.Is(err, gpucore.ErrProgramNotFound) {
		t.Errorf("LoadProgram(unknown) error = %v, want ErrProgramNotFound", err)
	}
	if _, err := d.LoadProgram(gpucore.ProgramCellStart); err != nil {
		t.Errorf("LoadProgram(cell start) error = %v", err)
	}
}

func TestDevice_FindKernelHonoursLimits(t *testing.T) {
	lim := gpucore.DefaultLimits() // 256 invocations, 16 KiB
	d := newTestDevice(t, WithLimits(lim))
	p, err := d.LoadProgram(gpucore.ProgramSortList)
	if err != nil {
		t.Fatalf("LoadProgram() error = %v", err)
	}

	tests := []struct {
		entry string
		ok    bool
	}{
		{"BitonicSort128", true},
		{"BitonicSort1024", true},
		{"BitonicSort2048", false}, // 512 threads
		{"BitonicSort2048_128", true},
		{"BitonicSort4096_128", false}, // 32 KiB of group memory
		{gpucore.EntryMergePass, true},
	}
	for _, tt := range tests {
		_, err := d.FindKernel(p, tt.entry)
		if (err == nil) != tt.ok {
			t.Errorf("FindKernel(%s) error = %v, want ok=%v", tt.entry, err, tt.ok)
		}
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestDevice_SubmitDispatch(t *testing.T) {
	d := newTestDevice(t)
	clearKernel := mustKernel(t, d, gpucore.ProgramCellStart, gpucore.EntryClearCellStart)
	pairs := mustBuffer(t, d, 2, 0)
	cellStart := mustBuffer(t, d, 100, 7)

	cl := gpucore.NewCommandList("clear")
	cl.Dispatch(clearKernel, gpucore.Params{MaxCellCount: 100}, 2, 1,
		gpucore.Binding{Slot: gpucore.SlotCellInstance, Buffer: pairs},
		gpucore.Binding{Slot: gpucore.SlotCellStart, Buffer: cellStart})
	if err := d.Submit(cl); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got := make([]uint32, 100)
	if err := d.ReadBuffer(cellStart, 0, got); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	for i, v := range got {
		if v != gpucore.EmptyCell {
			t.Fatalf("cellStart[%d] = %d, want empty", i, v)
		}
	}
}

func TestDevice_SubmitRejectsMissingBinding(t *testing.T) {
	d := newTestDevice(t)
	clearKernel := mustKernel(t, d, gpucore.ProgramCellStart, gpucore.EntryClearCellStart)
	cellStart := mustBuffer(t, d, 100, 0)

	cl := gpucore.NewCommandList("clear")
	cl.Dispatch(clearKernel, gpucore.Params{MaxCellCount: 100}, 2, 1,
		gpucore.Binding{Slot: gpucore.SlotCellStart, Buffer: cellStart})
	if err := d.Submit(cl); !errors.Is(err, gpucore.ErrInvalidBuffer) {
		t.Errorf("Submit() error = %v, want ErrInvalidBuffer", err)
	}
}

func TestDevice_SubmitRejectsOversizedDispatch(t *testing.T) {
	d := newTestDevice(t)
	clearKernel := mustKernel(t, d, gpucore.ProgramCellStart, gpucore.EntryClearCellStart)
	pairs := mustBuffer(t, d, 2, 0)
	cellStart := mustBuffer(t, d, 1, 0)

	cl := gpucore.NewCommandList("clear")
	cl.Dispatch(clearKernel, gpucore.Params{MaxCellCount: 1}, 0x10000, 1,
		gpucore.Binding{Slot: gpucore.SlotCellInstance, Buffer: pairs},
		gpucore.Binding{Slot: gpucore.SlotCellStart, Buffer: cellStart})
	if err := d.Submit(cl); err == nil {
		t.Error("Submit() accepted 0x10000 groups on X")
	}
}

func TestDevice_ReadbackAndSamples(t *testing.T) {
	d := newTestDevice(t, WithReadbackDelay(5*time.Millisecond))
	buf := mustBuffer(t, d, 4, 0)

	var got atomic.Pointer[[]uint32]
	var sampled atomic.Bool

	cl := gpucore.NewCommandList("frame")
	cl.OnSample(func(name string, elapsed time.Duration) {
		if name == "frame" && elapsed >= 0 {
			sampled.Store(true)
		}
	})
	cl.BeginSample("frame")
	cl.SetBufferData(buf, []uint32{4, 3, 2, 1})
	cl.RequestReadback(buf, func(data []uint32) { got.Store(&data) })
	cl.SetBufferData(buf, []uint32{9, 9, 9, 9})
	cl.EndSample("frame")

	if err := d.Submit(cl); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	d.Wait()

	p := got.Load()
	if p == nil {
		t.Fatal("readback callback not invoked")
	}
	if (*p)[0] != 4 || (*p)[3] != 1 {
		t.Errorf("readback = %v, want the data at the point of request", *p)
	}
	if !sampled.Load() {
		t.Error("sample handler not invoked")
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestDevice_ClosedErrors(t *testing.T) {
	d := New()
	id, err := d.CreateBuffer(gpucore.BufferDesc{Words: 1})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	d.Close()
	d.Close()

	if _, err := d.CreateBuffer(gpucore.BufferDesc{Words: 1}); !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("CreateBuffer after Close error = %v", err)
	}
	if err := d.WriteBuffer(id, 0, []uint32{1}); !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("WriteBuffer after Close error = %v", err)
	}
	if err := d.Submit(gpucore.NewCommandList("x")); !errors.Is(err, gpucore.ErrDeviceClosed) {
		t.Errorf("Submit after Close error = %v", err)
	}
	d.DestroyBuffer(id)
	d.Wait()
}
