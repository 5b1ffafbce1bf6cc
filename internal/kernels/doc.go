// Package kernels is the CPU reference of the hashgrid compute programs.
//
// Every entry point of the WGSL programs in backend/wgpu has a Go twin here
// with the same group size, buffer bindings and word layouts. A kernel runs
// one thread group at a time: threads of a group execute sequentially
// between barriers, and groups of one dispatch may run concurrently, so any
// write shared between groups goes through the atomics in atomic.go.
//
// backend/software executes these kernels; tests use them as the oracle for
// each stage.
package kernels
