package gpucore

import "time"

// CommandKind identifies a recorded command.
type CommandKind uint8

const (
	// CmdSetBufferData overwrites a buffer prefix with host data.
	CmdSetBufferData CommandKind = iota

	// CmdDispatch runs a kernel over a 2D grid of groups.
	CmdDispatch

	// CmdBeginSample starts a named timing sample.
	CmdBeginSample

	// CmdEndSample ends the innermost sample with the same name.
	CmdEndSample

	// CmdReadback copies a buffer and hands the copy to a callback once
	// the device reaches this point.
	CmdReadback
)

var commandKindNames = [...]string{
	"SetBufferData",
	"Dispatch",
	"BeginSample",
	"EndSample",
	"Readback",
}

func (k CommandKind) String() string {
	if int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return "Unknown"
}

// Binding attaches a buffer to a slot for one dispatch.
type Binding struct {
	Slot   Slot
	Buffer BufferID
}

// ReadbackFunc receives the words of a completed readback. It runs on a
// device goroutine at an arbitrary time after submission.
type ReadbackFunc func(data []uint32)

// SampleFunc receives the elapsed device time of a finished sample.
type SampleFunc func(name string, elapsed time.Duration)

// Command is one recorded operation. Which fields are meaningful depends on
// Kind.
type Command struct {
	Kind CommandKind

	// SetBufferData, Readback
	Buffer BufferID
	Data   []uint32

	// Dispatch
	Kernel   KernelID
	Params   Params
	GroupsX  uint32
	GroupsY  uint32
	Bindings []Binding

	// BeginSample, EndSample
	Name string

	// Readback
	OnReadback ReadbackFunc
}

// BindingFor returns the buffer bound to slot, or InvalidID.
func (c *Command) BindingFor(slot Slot) BufferID {
	for _, b := range c.Bindings {
		if b.Slot == slot {
			return b.Buffer
		}
	}
	return InvalidID
}

// CommandList records device work for one submission. A list may be cleared
// and re-recorded every frame; devices copy what they need at Submit.
type CommandList struct {
	Label    string
	commands []Command
	onSample SampleFunc
}

// NewCommandList creates an empty command list.
func NewCommandList(label string) *CommandList {
	return &CommandList{Label: label}
}

// Clear drops all recorded commands. The sample handler is kept.
func (cl *CommandList) Clear() {
	clear(cl.commands)
	cl.commands = cl.commands[:0]
}

// Len returns the number of recorded commands.
func (cl *CommandList) Len() int { return len(cl.commands) }

// Commands returns the recorded commands. The slice is owned by the list.
func (cl *CommandList) Commands() []Command { return cl.commands }

// SetBufferData records a write of data at word offset 0 of buf. The data
// is copied.
func (cl *CommandList) SetBufferData(buf BufferID, data []uint32) {
	cl.commands = append(cl.commands, Command{
		Kind:   CmdSetBufferData,
		Buffer: buf,
		Data:   append([]uint32(nil), data...),
	})
}

// Dispatch records a kernel launch over groupsX × groupsY groups.
func (cl *CommandList) Dispatch(kernel KernelID, params Params, groupsX, groupsY uint32, bindings ...Binding) {
	cl.commands = append(cl.commands, Command{
		Kind:     CmdDispatch,
		Kernel:   kernel,
		Params:   params,
		GroupsX:  groupsX,
		GroupsY:  groupsY,
		Bindings: append([]Binding(nil), bindings...),
	})
}

// BeginSample opens a named timing sample.
func (cl *CommandList) BeginSample(name string) {
	cl.commands = append(cl.commands, Command{Kind: CmdBeginSample, Name: name})
}

// EndSample closes a named timing sample.
func (cl *CommandList) EndSample(name string) {
	cl.commands = append(cl.commands, Command{Kind: CmdEndSample, Name: name})
}

// RequestReadback records an asynchronous copy of buf delivered to fn.
func (cl *CommandList) RequestReadback(buf BufferID, fn ReadbackFunc) {
	cl.commands = append(cl.commands, Command{
		Kind:       CmdReadback,
		Buffer:     buf,
		OnReadback: fn,
	})
}

// OnSample sets the handler receiving finished samples.
func (cl *CommandList) OnSample(fn SampleFunc) { cl.onSample = fn }

// SampleHandler returns the handler set by OnSample, or nil.
func (cl *CommandList) SampleHandler() SampleFunc { return cl.onSample }

// Snapshot returns an independent copy of the recorded commands, safe to
// execute after the list is cleared and re-recorded.
func (cl *CommandList) Snapshot() []Command {
	out := make([]Command, len(cl.commands))
	copy(out, cl.commands)
	return out
}
