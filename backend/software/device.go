package software

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/hashgrid/backend"
	"github.com/gogpu/hashgrid/gpucore"
	"github.com/gogpu/hashgrid/internal/kernels"
	"github.com/gogpu/hashgrid/internal/parallel"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Device, error) {
		return New(), nil
	})
}

// timelineDepth bounds the number of queued device operations before
// callers block.
const timelineDepth = 64

// Device is a CPU implementation of gpucore.Device.
type Device struct {
	opts options
	pool *parallel.WorkerPool

	// Caller-side bookkeeping, guarded by mu.
	mu       sync.Mutex
	closed   bool
	live     map[gpucore.BufferID]int
	programs map[gpucore.ProgramID]string
	kernels  map[gpucore.KernelID]kernels.Kernel

	nextID atomic.Uint64

	// Device timeline. buffers is only touched by the timeline goroutine.
	ops      chan func()
	stopped  chan struct{}
	buffers  map[gpucore.BufferID][]uint32
	samples  map[string]time.Time
	inflight sync.WaitGroup
}

var _ gpucore.Device = (*Device)(nil)

// New creates a software device and starts its timeline.
func New(opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		opts:     o,
		pool:     parallel.NewWorkerPool(o.workers),
		live:     make(map[gpucore.BufferID]int),
		programs: make(map[gpucore.ProgramID]string),
		kernels:  make(map[gpucore.KernelID]kernels.Kernel),
		ops:      make(chan func(), timelineDepth),
		stopped:  make(chan struct{}),
		buffers:  make(map[gpucore.BufferID][]uint32),
		samples:  make(map[string]time.Time),
	}
	go d.run()
	slogger().Debug("software: device created", "workers", d.pool.Workers())
	return d
}

func (d *Device) run() {
	defer close(d.stopped)
	for op := range d.ops {
		op()
	}
}

// enqueue places op on the timeline. Must be called with mu held so that
// Close cannot close ops concurrently.
func (d *Device) enqueue(op func()) {
	d.ops <- op
}

func (d *Device) newID() uint64 { return d.nextID.Add(1) }

// SetLogger sets the logger of the software backend.
func (d *Device) SetLogger(l *slog.Logger) { SetLogger(l) }

// Name returns the device name.
func (d *Device) Name() string { return "software" }

// Limits returns the configured device limits.
func (d *Device) Limits() gpucore.Limits { return d.opts.limits }

// LoadProgram loads one of the built-in kernel programs.
func (d *Device) LoadProgram(name string) (gpucore.ProgramID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	if d.opts.missing[name] || !kernels.HasProgram(name) {
		return gpucore.InvalidID, fmt.Errorf("software: %q: %w", name, gpucore.ErrProgramNotFound)
	}
	id := gpucore.ProgramID(d.newID())
	d.programs[id] = name
	return id, nil
}

// FindKernel resolves an entry point. Sort kernels exceeding the device
// group size or group memory are reported as not found.
func (d *Device) FindKernel(program gpucore.ProgramID, entry string) (gpucore.KernelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	name, ok := d.programs[program]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: program %d: %w", program, gpucore.ErrProgramNotFound)
	}
	k, ok := kernels.Lookup(name, entry)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: %s/%s: %w", name, entry, gpucore.ErrKernelNotFound)
	}
	if k.Threads > d.opts.limits.MaxWorkgroupInvocations {
		return gpucore.InvalidID, fmt.Errorf("software: %s/%s needs %d threads, device has %d: %w",
			name, entry, k.Threads, d.opts.limits.MaxWorkgroupInvocations, gpucore.ErrKernelNotFound)
	}
	if sk, ok := gpucore.LookupSortKernel(entry); ok && sk.Size*8 > d.opts.limits.MaxWorkgroupStorageSize {
		return gpucore.InvalidID, fmt.Errorf("software: %s/%s needs %d bytes of group memory: %w",
			name, entry, sk.Size*8, gpucore.ErrKernelNotFound)
	}
	id := gpucore.KernelID(d.newID())
	d.kernels[id] = k
	return id, nil
}

// CreateBuffer allocates a buffer on the device timeline.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Words <= 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q: size %d words", desc.Label, desc.Words)
	}
	if uint64(desc.Words)*4 > d.opts.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q: %d bytes exceeds limit %d",
			desc.Label, uint64(desc.Words)*4, d.opts.limits.MaxBufferSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceClosed
	}
	id := gpucore.BufferID(d.newID())
	d.live[id] = desc.Words

	words, fill := desc.Words, desc.Fill
	d.enqueue(func() {
		buf := make([]uint32, words)
		if fill != 0 {
			for i := range buf {
				buf[i] = fill
			}
		}
		d.buffers[id] = buf
	})
	slogger().Debug("software: buffer created", "label", desc.Label, "id", id, "words", words)
	return id, nil
}

// DestroyBuffer releases a buffer after previously queued work.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if _, ok := d.live[id]; !ok {
		return
	}
	delete(d.live, id)
	d.enqueue(func() { delete(d.buffers, id) })
}

// WriteBuffer queues a host write.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset int, data []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	if err := d.checkRange(id, offset, len(data)); err != nil {
		return err
	}
	src := append([]uint32(nil), data...)
	d.enqueue(func() { copy(d.buffers[id][offset:], src) })
	return nil
}

// ReadBuffer waits for all queued work and copies words into dst.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset int, dst []uint32) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return gpucore.ErrDeviceClosed
	}
	if err := d.checkRange(id, offset, len(dst)); err != nil {
		d.mu.Unlock()
		return err
	}
	done := make(chan struct{})
	d.enqueue(func() {
		copy(dst, d.buffers[id][offset:])
		close(done)
	})
	d.mu.Unlock()

	<-done
	return nil
}

func (d *Device) checkRange(id gpucore.BufferID, offset, n int) error {
	words, ok := d.live[id]
	if !ok {
		return fmt.Errorf("software: buffer %d: %w", id, gpucore.ErrInvalidBuffer)
	}
	if offset < 0 || offset+n > words {
		return fmt.Errorf("software: buffer %d: range [%d,%d) outside %d words: %w",
			id, offset, offset+n, words, gpucore.ErrInvalidBuffer)
	}
	return nil
}

// Submit validates the command list and queues it on the timeline.
func (d *Device) Submit(cl *gpucore.CommandList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}

	cmds := cl.Snapshot()
	resolved := make([]kernels.Kernel, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		switch c.Kind {
		case gpucore.CmdSetBufferData, gpucore.CmdReadback:
			if err := d.checkRange(c.Buffer, 0, len(c.Data)); err != nil {
				return fmt.Errorf("software: %s command %d: %w", c.Kind, i, err)
			}
		case gpucore.CmdDispatch:
			k, err := d.validateDispatch(c)
			if err != nil {
				return fmt.Errorf("software: command %d: %w", i, err)
			}
			resolved[i] = k
		}
	}

	onSample := cl.SampleHandler()
	label := cl.Label
	d.enqueue(func() { d.execute(label, cmds, resolved, onSample) })
	return nil
}

func (d *Device) validateDispatch(c *gpucore.Command) (kernels.Kernel, error) {
	k, ok := d.kernels[c.Kernel]
	if !ok {
		return k, fmt.Errorf("kernel %d: %w", c.Kernel, gpucore.ErrKernelNotFound)
	}
	limit := d.opts.limits.MaxWorkgroupsPerDimension
	if c.GroupsX > limit || c.GroupsY > limit {
		return k, fmt.Errorf("%s/%s: dispatch %dx%d exceeds %d groups per dimension",
			k.Program, k.Entry, c.GroupsX, c.GroupsY, limit)
	}
	for _, use := range gpucore.ProgramSlots[k.Program] {
		id := c.BindingFor(use.Slot)
		if _, ok := d.live[id]; !ok {
			return k, fmt.Errorf("%s/%s: slot %s: %w", k.Program, k.Entry, use.Slot, gpucore.ErrInvalidBuffer)
		}
	}
	return k, nil
}

// execute runs one command list on the timeline goroutine.
func (d *Device) execute(label string, cmds []gpucore.Command, resolved []kernels.Kernel, onSample gpucore.SampleFunc) {
	for i := range cmds {
		c := &cmds[i]
		switch c.Kind {
		case gpucore.CmdSetBufferData:
			copy(d.buffers[c.Buffer], c.Data)

		case gpucore.CmdDispatch:
			d.dispatch(resolved[i], c)

		case gpucore.CmdBeginSample:
			d.samples[c.Name] = time.Now()

		case gpucore.CmdEndSample:
			start, ok := d.samples[c.Name]
			if !ok {
				continue
			}
			delete(d.samples, c.Name)
			if onSample != nil {
				onSample(c.Name, time.Since(start))
			}

		case gpucore.CmdReadback:
			d.readback(c)
		}
	}
	slogger().Debug("software: command list done", "label", label, "commands", len(cmds))
}

func (d *Device) dispatch(k kernels.Kernel, c *gpucore.Command) {
	var bufs kernels.Buffers
	for _, b := range c.Bindings {
		bufs[b.Slot] = d.buffers[b.Buffer]
	}
	params := c.Params
	groups := int(c.GroupsX) * int(c.GroupsY)
	d.pool.Range(groups, func(lo, hi int) {
		for g := lo; g < hi; g++ {
			k.Run(uint32(g), &params, &bufs)
		}
	})
}

func (d *Device) readback(c *gpucore.Command) {
	data := append([]uint32(nil), d.buffers[c.Buffer]...)
	fn := c.OnReadback
	if fn == nil {
		return
	}
	delay := d.opts.readbackDelay
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		fn(data)
	}()
}

// Wait blocks until all queued work and pending readback callbacks have
// completed.
func (d *Device) Wait() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	done := make(chan struct{})
	d.enqueue(func() { close(done) })
	d.mu.Unlock()

	<-done
	d.inflight.Wait()
}

// Close drains the timeline and pending callbacks, then releases all
// buffers. Close is safe to call multiple times.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ops)
	d.mu.Unlock()

	<-d.stopped
	d.inflight.Wait()
	d.pool.Close()

	d.mu.Lock()
	clear(d.live)
	clear(d.buffers)
	d.mu.Unlock()
	slogger().Debug("software: device closed")
}
