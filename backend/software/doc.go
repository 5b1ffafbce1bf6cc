// Package software implements gpucore.Device on the CPU.
//
// Buffers are plain []uint32 slices and the compute programs are the Go
// kernels of internal/kernels. Work runs on a device timeline goroutine in
// submission order; the groups of each dispatch are spread over a worker
// pool. Submit never blocks on execution, and readback callbacks run on
// their own goroutines, so the package behaves like an asynchronous GPU
// queue from the caller's point of view.
//
// The package registers itself as backend "software".
package software
