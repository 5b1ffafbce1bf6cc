package gpucore

import "testing"

func TestCommandList_Record(t *testing.T) {
	cl := NewCommandList("frame")
	data := []uint32{1, 2, 3}

	cl.BeginSample("update")
	cl.SetBufferData(7, data)
	cl.Dispatch(3, Params{MaxCellCount: 10}, 4, 2,
		Binding{Slot: SlotData, Buffer: 7},
		Binding{Slot: SlotBounds, Buffer: 8})
	cl.RequestReadback(9, func([]uint32) {})
	cl.EndSample("update")

	if cl.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", cl.Len())
	}

	// Recorded data must not alias the caller's slice.
	data[0] = 99
	if got := cl.Commands()[1].Data[0]; got != 1 {
		t.Errorf("SetBufferData data[0] = %d, want 1", got)
	}

	d := cl.Commands()[2]
	if d.Kind != CmdDispatch {
		t.Fatalf("Kind = %v, want Dispatch", d.Kind)
	}
	if d.GroupsX != 4 || d.GroupsY != 2 {
		t.Errorf("groups = (%d,%d), want (4,2)", d.GroupsX, d.GroupsY)
	}
	if got := d.BindingFor(SlotBounds); got != 8 {
		t.Errorf("BindingFor(Bounds) = %d, want 8", got)
	}
	if got := d.BindingFor(SlotCellStart); got != InvalidID {
		t.Errorf("BindingFor(CellStart) = %d, want InvalidID", got)
	}
}

func TestCommandList_SnapshotSurvivesClear(t *testing.T) {
	cl := NewCommandList("frame")
	cl.SetBufferData(1, []uint32{5})
	snap := cl.Snapshot()

	cl.Clear()
	cl.SetBufferData(2, []uint32{6})

	if cl.Len() != 1 {
		t.Fatalf("Len() after re-record = %d, want 1", cl.Len())
	}
	if snap[0].Buffer != 1 || snap[0].Data[0] != 5 {
		t.Errorf("snapshot = %+v, want buffer 1 data [5]", snap[0])
	}
}

func TestCommandKind_String(t *testing.T) {
	tests := []struct {
		kind CommandKind
		want string
	}{
		{CmdSetBufferData, "SetBufferData"},
		{CmdDispatch, "Dispatch"},
		{CmdReadback, "Readback"},
		{CommandKind(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
