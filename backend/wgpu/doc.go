// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements gpucore.Device on gogpu/wgpu.
//
// The grid programs are WGSL compute shaders embedded in the package and
// compiled to SPIR-V with gogpu/naga. Devices talk to the GPU through the
// wgpu HAL directly, the same way the accelerators of the gogpu stack do:
//
//	gpucore.CommandList -> hal.CommandEncoder (one compute pass per dispatch)
//	                    -> hal.Queue.Submit -> fence wait on a goroutine
//	                    -> readback callbacks, sample timings
//
// # Device Ownership
//
// [Open] creates its own Vulkan instance and device. [NewFromProvider]
// shares the device of a host application (for example gogpu) and leaves
// it alive on Close.
//
// # Bindings
//
// Every program uses bind group 0: the Params uniform at binding 0 and the
// buffers of gpucore.ProgramSlots at binding 1 + slot. Each dispatch gets
// its own uniform buffer and bind group, released once the submission
// completes.
//
// # Timing
//
// Samples are measured on the host from submission to fence completion of
// the command buffer that contains them.
//
// The package registers itself as backend "wgpu". Build with -tags nogpu to
// leave it out.
package wgpu
