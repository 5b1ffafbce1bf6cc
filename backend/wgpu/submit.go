// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/hashgrid/gpucore"
	"github.com/gogpu/wgpu/hal"
)

type pendingReadback struct {
	staging hal.Buffer
	words   int
	fn      gpucore.ReadbackFunc
}

// submission holds the transient resources of one submitted command list
// until its fence is reached.
type submission struct {
	label      string
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
	readbacks  []pendingReadback
	samples    []string
	onSample   gpucore.SampleFunc
	start      time.Time
}

// release destroys the transient resources. Called with mu held.
func (s *submission) release(dev hal.Device) {
	for _, bg := range s.bindGroups {
		dev.DestroyBindGroup(bg)
	}
	for _, b := range s.buffers {
		dev.DestroyBuffer(b)
	}
	for _, r := range s.readbacks {
		dev.DestroyBuffer(r.staging)
	}
	if s.cmdBuf != nil {
		dev.FreeCommandBuffer(s.cmdBuf)
	}
	if s.fence != nil {
		dev.DestroyFence(s.fence)
	}
}

// Submit encodes the command list into one command buffer, submits it and
// returns. Completion is handled on a goroutine.
func (d *Device) Submit(cl *gpucore.CommandList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}

	cmds := cl.Snapshot()
	if err := d.validate(cmds); err != nil {
		return err
	}

	sub := &submission{label: cl.Label, onSample: cl.SampleHandler()}
	if err := d.encode(sub, cmds); err != nil {
		sub.release(d.device)
		return err
	}

	fence, err := d.device.CreateFence()
	if err != nil {
		sub.release(d.device)
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	sub.fence = fence

	sub.start = time.Now()
	if err := d.queue.Submit([]hal.CommandBuffer{sub.cmdBuf}, fence, 1); err != nil {
		sub.release(d.device)
		return fmt.Errorf("wgpu: submit %s: %w", cl.Label, err)
	}

	d.inflight.Add(1)
	go d.complete(sub)
	return nil
}

func (d *Device) validate(cmds []gpucore.Command) error {
	limit := d.limits.MaxWorkgroupsPerDimension
	for i := range cmds {
		c := &cmds[i]
		switch c.Kind {
		case gpucore.CmdSetBufferData, gpucore.CmdReadback:
			if _, err := d.lookup(c.Buffer, 0, len(c.Data)); err != nil {
				return fmt.Errorf("wgpu: %s command %d: %w", c.Kind, i, err)
			}
		case gpucore.CmdDispatch:
			k, ok := d.kernels[c.Kernel]
			if !ok {
				return fmt.Errorf("wgpu: command %d: kernel %d: %w", i, c.Kernel, gpucore.ErrKernelNotFound)
			}
			if c.GroupsX > limit || c.GroupsY > limit {
				return fmt.Errorf("wgpu: command %d: %s/%s: dispatch %dx%d exceeds %d groups per dimension",
					i, k.program.name, k.entry, c.GroupsX, c.GroupsY, limit)
			}
			for _, use := range k.program.slots {
				if _, ok := d.buffers[c.BindingFor(use.Slot)]; !ok {
					return fmt.Errorf("wgpu: command %d: %s/%s: slot %s: %w",
						i, k.program.name, k.entry, use.Slot, gpucore.ErrInvalidBuffer)
				}
			}
		}
	}
	return nil
}

// encode records the commands into sub. Every dispatch gets its own compute
// pass so storage writes are visible to the next dispatch.
func (d *Device) encode(sub *submission, cmds []gpucore.Command) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: sub.label})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(sub.label); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	begun := make(map[string]bool)
	for i := range cmds {
		c := &cmds[i]
		var err error
		switch c.Kind {
		case gpucore.CmdSetBufferData:
			err = d.encodeUpload(sub, encoder, c)
		case gpucore.CmdDispatch:
			err = d.encodeDispatch(sub, encoder, c)
		case gpucore.CmdReadback:
			err = d.encodeReadback(sub, encoder, c)
		case gpucore.CmdBeginSample:
			begun[c.Name] = true
		case gpucore.CmdEndSample:
			if begun[c.Name] {
				delete(begun, c.Name)
				sub.samples = append(sub.samples, c.Name)
			}
		}
		if err != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("wgpu: %s command %d: %w", c.Kind, i, err)
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	sub.cmdBuf = cmdBuf
	return nil
}

// encodeUpload stages host data in a fresh buffer and copies it in command
// order, so the write lands between the surrounding dispatches.
func (d *Device) encodeUpload(sub *submission, encoder hal.CommandEncoder, c *gpucore.Command) error {
	if len(c.Data) == 0 {
		return nil
	}
	size := uint64(len(c.Data)) * 4
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: sub.label + "_upload",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create upload buffer: %w", err)
	}
	sub.buffers = append(sub.buffers, staging)
	d.queue.WriteBuffer(staging, 0, wordsToBytes(c.Data))

	encoder.CopyBufferToBuffer(staging, d.buffers[c.Buffer].hal, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	return nil
}

func (d *Device) encodeDispatch(sub *submission, encoder hal.CommandEncoder, c *gpucore.Command) error {
	k := d.kernels[c.Kernel]
	if c.GroupsX == 0 || c.GroupsY == 0 {
		return nil
	}

	uniform, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: k.entry + "_params",
		Size:  gpucore.ParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	sub.buffers = append(sub.buffers, uniform)
	d.queue.WriteBuffer(uniform, 0, c.Params.Bytes())

	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{Buffer: uniform.NativeHandle(), Offset: 0, Size: gpucore.ParamsSize}},
	}
	for _, use := range k.program.slots {
		b := d.buffers[c.BindingFor(use.Slot)]
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  use.Slot.Binding(),
			Resource: gputypes.BufferBinding{Buffer: b.hal.NativeHandle(), Offset: 0, Size: b.size()},
		})
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   k.entry + "_bind",
		Layout:  k.program.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	sub.bindGroups = append(sub.bindGroups, bg)

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: k.program.name + "/" + k.entry})
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(c.GroupsX, c.GroupsY, 1)
	pass.End()
	return nil
}

func (d *Device) encodeReadback(sub *submission, encoder hal.CommandEncoder, c *gpucore.Command) error {
	src := d.buffers[c.Buffer]
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: src.label + "_readback",
		Size:  src.size(),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create readback buffer: %w", err)
	}
	sub.readbacks = append(sub.readbacks, pendingReadback{staging: staging, words: src.words, fn: c.OnReadback})

	encoder.CopyBufferToBuffer(src.hal, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: src.size()},
	})
	return nil
}

// complete waits for a submission's fence, delivers its readbacks and
// samples, and releases its resources.
func (d *Device) complete(sub *submission) {
	defer d.inflight.Done()

	ok, err := d.device.Wait(sub.fence, 1, fenceTimeout)
	elapsed := time.Since(sub.start)

	d.mu.Lock()
	if err != nil || !ok {
		slogger().Error("wgpu: submission did not complete", "label", sub.label, "ok", ok, "err", err)
		sub.release(d.device)
		d.mu.Unlock()
		return
	}

	results := make([][]uint32, len(sub.readbacks))
	for i, r := range sub.readbacks {
		raw := make([]byte, r.words*4)
		if err := d.queue.ReadBuffer(r.staging, 0, raw); err != nil {
			slogger().Warn("wgpu: readback failed", "label", sub.label, "err", err)
			continue
		}
		results[i] = make([]uint32, r.words)
		bytesToWords(results[i], raw)
	}
	sub.release(d.device)
	d.mu.Unlock()

	if sub.onSample != nil {
		for _, name := range sub.samples {
			sub.onSample(name, elapsed)
		}
	}
	for i, r := range sub.readbacks {
		if results[i] != nil && r.fn != nil {
			r.fn(results[i])
		}
	}
}
