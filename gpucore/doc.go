// Package gpucore provides the device abstraction shared by the hashgrid
// pipeline and its backends.
//
// The pipeline never talks to a GPU API directly. It loads compute programs,
// allocates word-addressed buffers and records a [CommandList] per frame
// through the [Device] interface, which lets the same orchestration run on:
//   - backend/wgpu (gogpu/wgpu HAL, WGSL compiled with naga)
//   - backend/software (CPU emulation of the compute kernels)
//
//	               +-----------------+
//	               |    hashgrid     |
//	               |     (Grid)      |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |     gpucore     |
//	               | Device, Command |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/wgpu   |          |backend/software |
//	|  (hal.Device)   |          | (internal/      |
//	|                 |          |   kernels)      |
//	+-----------------+          +-----------------+
//
// # Resource Management
//
// Buffers, programs and kernels are referenced through opaque IDs
// ([BufferID], [ProgramID], [KernelID]). The device owns the mapping between
// IDs and backend resources. [InvalidID] is never handed out.
//
// # Buffer Layouts
//
// All buffers are arrays of 32-bit words. The layouts every backend must
// agree on (pairs, bounds, statistics, the [Params] uniform) are described
// in layout.go together with the order-preserving float encoding used for
// atomic bounds reduction.
//
// # Asynchrony
//
// [Device.Submit] returns once the command list is queued. Execution,
// readback callbacks and timing samples complete later, on a goroutine owned
// by the device. Callers must not block on them.
package gpucore
