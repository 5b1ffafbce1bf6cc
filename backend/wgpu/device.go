// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/hashgrid/backend"
	"github.com/gogpu/hashgrid/gpucore"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (gpucore.Device, error) {
		d, err := Open()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// fenceTimeout bounds every wait for submitted work.
const fenceTimeout = 5 * time.Second

// uploadChunk is the largest host write issued in one WriteBuffer call.
const uploadChunk = 1 << 20 // words

// Errors returned by the wgpu device.
var (
	// ErrNoAdapter is returned by Open when no GPU adapter is available.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter")

	// ErrProviderNotHAL is returned by NewFromProvider for providers that
	// do not expose HAL device and queue.
	ErrProviderNotHAL = errors.New("wgpu: provider does not expose HAL types")
)

type buffer struct {
	hal   hal.Buffer
	words int
	label string
}

func (b *buffer) size() uint64 { return uint64(b.words) * 4 }

type program struct {
	name       string
	modules    map[string]hal.ShaderModule // by entry point
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	slots      []gpucore.SlotUse
}

type kernel struct {
	program  *program
	entry    string
	pipeline hal.ComputePipeline
}

// Device is a gpucore.Device on a wgpu HAL device.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool // shared device, not destroyed on Close

	name   string
	limits gpucore.Limits
	closed bool

	nextID   atomic.Uint64
	buffers  map[gpucore.BufferID]*buffer
	programs map[gpucore.ProgramID]*program
	kernels  map[gpucore.KernelID]*kernel

	// inflight tracks submissions whose fence has not been reached.
	inflight sync.WaitGroup
}

var _ gpucore.Device = (*Device)(nil)

// Open creates a device on the first discrete or integrated GPU, falling
// back to the first adapter found.
func Open() (*Device, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoAdapter)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	d := newDevice(openDev.Device, openDev.Queue, selected.Info.Name, limits)
	d.instance = instance
	slogger().Info("wgpu: device opened", "adapter", selected.Info.Name, "type", selected.Info.DeviceType)
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, name string, limits gputypes.Limits) *Device {
	return &Device{
		device:   device,
		queue:    queue,
		name:     name,
		limits:   convertLimits(limits),
		buffers:  make(map[gpucore.BufferID]*buffer),
		programs: make(map[gpucore.ProgramID]*program),
		kernels:  make(map[gpucore.KernelID]*kernel),
	}
}

func convertLimits(l gputypes.Limits) gpucore.Limits {
	return gpucore.Limits{
		MaxWorkgroupInvocations:   l.MaxComputeInvocationsPerWorkgroup,
		MaxWorkgroupStorageSize:   l.MaxComputeWorkgroupStorageSize,
		MaxWorkgroupsPerDimension: l.MaxComputeWorkgroupsPerDimension,
		MaxBufferSize:             l.MaxBufferSize,
	}
}

func (d *Device) newID() uint64 { return d.nextID.Add(1) }

// Name returns the adapter name.
func (d *Device) Name() string { return "wgpu:" + d.name }

// Limits returns the limits the device was opened with.
func (d *Device) Limits() gpucore.Limits { return d.limits }

// SetLogger sets the package logger.
func (d *Device) SetLogger(l *slog.Logger) { SetLogger(l) }

// LoadProgram compiles the named program and creates its layouts. Entry
// points that exceed the device limits are skipped.
func (d *Device) LoadProgram(name string) (gpucore.ProgramID, error) {
	slots, ok := gpucore.ProgramSlots[name]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("wgpu: %q: %w", name, gpucore.ErrProgramNotFound)
	}
	sources, err := programSources(name, d.limits)
	if err != nil {
		return gpucore.InvalidID, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}

	p := &program{name: name, modules: make(map[string]hal.ShaderModule), slots: slots}
	if err := d.buildProgram(p, sources); err != nil {
		d.destroyProgram(p)
		return gpucore.InvalidID, fmt.Errorf("%w: %w", gpucore.ErrProgramNotFound, err)
	}

	id := gpucore.ProgramID(d.newID())
	d.programs[id] = p
	slogger().Debug("wgpu: program loaded", "program", name, "entries", len(p.modules))
	return id, nil
}

func (d *Device) buildProgram(p *program, sources []moduleSource) error {
	for _, src := range sources {
		if !src.fits(d.limits) {
			slogger().Debug("wgpu: module exceeds limits", "module", src.Label,
				"threads", src.Threads, "storage", src.Storage)
			continue
		}
		code, err := compileSPIRV(src.Label, src.WGSL)
		if err != nil {
			return err
		}
		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  src.Label,
			Source: hal.ShaderSource{SPIRV: code},
		})
		if err != nil {
			return fmt.Errorf("wgpu: create shader module %s: %w", src.Label, err)
		}
		for _, e := range src.Entries {
			p.modules[e] = module
		}
	}

	entries := []gputypes.BindGroupLayoutEntry{
		{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
	}
	for _, use := range p.slots {
		t := gputypes.BufferBindingTypeStorage
		if use.Access == gpucore.ReadOnly {
			t = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    use.Slot.Binding(),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		})
	}

	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.name + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group layout %s: %w", p.name, err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create pipeline layout %s: %w", p.name, err)
	}
	p.pipeLayout = pipeLayout
	return nil
}

func (d *Device) destroyProgram(p *program) {
	if p.pipeLayout != nil {
		d.device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		d.device.DestroyBindGroupLayout(p.bindLayout)
	}
	seen := make(map[hal.ShaderModule]bool)
	for _, m := range p.modules {
		if !seen[m] {
			seen[m] = true
			d.device.DestroyShaderModule(m)
		}
	}
}

// FindKernel creates the compute pipeline of an entry point.
func (d *Device) FindKernel(programID gpucore.ProgramID, entry string) (gpucore.KernelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	p, ok := d.programs[programID]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("wgpu: program %d: %w", programID, gpucore.ErrProgramNotFound)
	}
	module, ok := p.modules[entry]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("wgpu: %s/%s: %w", p.name, entry, gpucore.ErrKernelNotFound)
	}

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   p.name + "/" + entry,
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: entry},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create pipeline %s/%s: %w", p.name, entry, err)
	}

	id := gpucore.KernelID(d.newID())
	d.kernels[id] = &kernel{program: p, entry: entry, pipeline: pipeline}
	return id, nil
}

// CreateBuffer allocates a storage buffer and uploads its fill value.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Words <= 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer %q: size %d words", desc.Label, desc.Words)
	}
	size := uint64(desc.Words) * 4
	if size > d.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer %q: %d bytes exceeds limit %d",
			desc.Label, size, d.limits.MaxBufferSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}

	hb, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	b := &buffer{hal: hb, words: desc.Words, label: desc.Label}

	// Buffer contents are undefined until written.
	chunk := make([]uint32, min(desc.Words, uploadChunk))
	if desc.Fill != 0 {
		for i := range chunk {
			chunk[i] = desc.Fill
		}
	}
	for off := 0; off < desc.Words; off += len(chunk) {
		n := min(len(chunk), desc.Words-off)
		d.queue.WriteBuffer(hb, uint64(off)*4, wordsToBytes(chunk[:n]))
	}

	id := gpucore.BufferID(d.newID())
	d.buffers[id] = b
	slogger().Debug("wgpu: buffer created", "label", desc.Label, "id", id, "bytes", size)
	return id, nil
}

// DestroyBuffer waits for in-flight submissions, then releases the buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.inflight.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok || d.closed {
		return
	}
	delete(d.buffers, id)
	d.device.DestroyBuffer(b.hal)
}

// WriteBuffer queues a host write.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset int, data []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	b, err := d.lookup(id, offset, len(data))
	if err != nil {
		return err
	}
	d.queue.WriteBuffer(b.hal, uint64(offset)*4, wordsToBytes(data))
	return nil
}

// ReadBuffer copies a buffer range through a staging buffer and waits for
// the copy.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset int, dst []uint32) error {
	d.inflight.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	b, err := d.lookup(id, offset, len(dst))
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}

	size := uint64(len(dst)) * 4
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "hashgrid_read"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("hashgrid_read"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.hal, staging, []hal.BufferCopy{
		{SrcOffset: uint64(offset) * 4, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	raw := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, raw); err != nil {
		return fmt.Errorf("wgpu: read staging buffer: %w", err)
	}
	bytesToWords(dst, raw)
	return nil
}

// submitAndWait submits one command buffer and blocks until it completes.
// Called with mu held.
func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !ok {
		return fmt.Errorf("wgpu: wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}

func (d *Device) lookup(id gpucore.BufferID, offset, n int) (*buffer, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("wgpu: buffer %d: %w", id, gpucore.ErrInvalidBuffer)
	}
	if offset < 0 || offset+n > b.words {
		return nil, fmt.Errorf("wgpu: buffer %d: range [%d,%d) outside %d words: %w",
			id, offset, offset+n, b.words, gpucore.ErrInvalidBuffer)
	}
	return b, nil
}

// Wait blocks until all submitted work and its callbacks have completed.
func (d *Device) Wait() { d.inflight.Wait() }

// Close waits for outstanding work and releases every resource. A shared
// device is left alive. Close is safe to call multiple times.
func (d *Device) Close() {
	d.inflight.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	for id, k := range d.kernels {
		d.device.DestroyComputePipeline(k.pipeline)
		delete(d.kernels, id)
	}
	for id, p := range d.programs {
		d.destroyProgram(p)
		delete(d.programs, id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.hal)
		delete(d.buffers, id)
	}

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	slogger().Debug("wgpu: device closed", "name", d.name)
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func bytesToWords(dst []uint32, raw []byte) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
}
