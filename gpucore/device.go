package gpucore

import "errors"

// Resource IDs
//
// These opaque IDs represent device resources. Each device implementation
// maintains a mapping between IDs and its own resources.

// BufferID is an opaque handle to a device buffer of 32-bit words.
type BufferID uint64

// ProgramID is an opaque handle to a loaded compute program.
type ProgramID uint64

// KernelID is an opaque handle to one entry point of a program.
type KernelID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Sentinel errors returned by devices.
var (
	// ErrProgramNotFound is returned by LoadProgram when the device has no
	// program with the requested name.
	ErrProgramNotFound = errors.New("gpucore: program not found")

	// ErrKernelNotFound is returned by FindKernel for an unknown entry point.
	ErrKernelNotFound = errors.New("gpucore: kernel not found")

	// ErrInvalidBuffer is returned when a buffer ID is unknown or destroyed.
	ErrInvalidBuffer = errors.New("gpucore: invalid buffer")

	// ErrDeviceClosed is returned by any call made after Close.
	ErrDeviceClosed = errors.New("gpucore: device closed")
)

// Limits describes the device capabilities that drive kernel selection and
// dispatch sizing.
type Limits struct {
	// MaxWorkgroupInvocations is the maximum number of threads in one group.
	MaxWorkgroupInvocations uint32

	// MaxWorkgroupStorageSize is the group-local memory size in bytes.
	MaxWorkgroupStorageSize uint32

	// MaxWorkgroupsPerDimension is the dispatch ceiling per axis.
	MaxWorkgroupsPerDimension uint32

	// MaxBufferSize is the largest buffer the device accepts, in bytes.
	MaxBufferSize uint64
}

// DefaultLimits returns the limits every WebGPU-class device guarantees.
func DefaultLimits() Limits {
	return Limits{
		MaxWorkgroupInvocations:   256,
		MaxWorkgroupStorageSize:   16384,
		MaxWorkgroupsPerDimension: 0xFFFF,
		MaxBufferSize:             256 << 20,
	}
}

// Local sort chunk sizes in pairs. A pair takes 8 bytes of group memory.
const (
	LocalSortSmall = 2048
	LocalSortLarge = 4096
)

// LocalSortLimit returns the number of pairs one group can sort in local
// memory: 4096 when the group memory holds that many pairs, else 2048.
func (l Limits) LocalSortLimit() uint32 {
	if l.MaxWorkgroupStorageSize < LocalSortLarge*8 {
		return LocalSortSmall
	}
	return LocalSortLarge
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label string

	// Words is the buffer length in 32-bit words. Must be > 0.
	Words int

	// Fill is the value every word is initialised to.
	Fill uint32
}

// Device abstracts a compute device able to run the hashgrid programs.
//
// Implementations must be safe for use from one control goroutine plus the
// callbacks they invoke themselves. Buffer writes, submissions and
// destruction are ordered on the device timeline in call order.
type Device interface {
	// Name returns a human-readable device name.
	Name() string

	// Limits returns the device capabilities.
	Limits() Limits

	// LoadProgram loads the named compute program.
	// Returns ErrProgramNotFound if the device does not provide it.
	LoadProgram(name string) (ProgramID, error)

	// FindKernel resolves an entry point inside a loaded program.
	FindKernel(program ProgramID, entry string) (KernelID, error)

	// CreateBuffer allocates a buffer of desc.Words words filled with desc.Fill.
	CreateBuffer(desc BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer once all previously submitted work
	// referencing it has completed.
	DestroyBuffer(id BufferID)

	// WriteBuffer queues a host write of data at the given word offset.
	WriteBuffer(id BufferID, offset int, data []uint32) error

	// ReadBuffer waits for queued work and copies words out of a buffer.
	// It stalls the caller and is meant for tests and tools, never for the
	// per-frame path.
	ReadBuffer(id BufferID, offset int, dst []uint32) error

	// Submit queues a recorded command list for execution and returns
	// without waiting for it.
	Submit(cl *CommandList) error

	// Close waits for outstanding work and releases all device resources.
	Close()
}
