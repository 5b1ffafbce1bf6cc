package hashgrid

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/hashgrid/gpucore"
)

// SampleGrid is the name of the timing sample around the grid pipeline.
const SampleGrid = "HashGridUpdate"

// Handles are the buffers published after a frame. Consumers may read them
// and the designated producer may write the data buffer, but none of them
// may be resized or destroyed outside the Grid.
type Handles struct {
	// Frame is the frame that produced these handles.
	Frame uint64

	// Data is the element buffer: MaxElementCount records of
	// Encoding.RecordWords() words.
	Data gpucore.BufferID

	// Bounds is the box computed this frame; PreviousBounds the one from
	// the frame before. Both are six ordered-float words.
	Bounds         gpucore.BufferID
	PreviousBounds gpucore.BufferID

	// CellInstances is the sorted (cellID, elementID) pair buffer.
	CellInstances gpucore.BufferID

	// CellStart maps each cell id to the index of its first pair in
	// CellInstances, or gpucore.EmptyCell.
	CellStart gpucore.BufferID

	// Statistics is the statistics buffer, written in DebugStatistics mode.
	Statistics gpucore.BufferID

	CellSize        Vec3
	MaxElementCount uint32
	MaxCellCount    uint32
	Encoding        Encoding
}

// gridBuffers is one allocation of all grid buffers. The bounds and pair
// buffers each form a pair whose roles swap by reference.
type gridBuffers struct {
	config Config

	data       gpucore.BufferID
	cellStart  gpucore.BufferID
	statistics gpucore.BufferID

	previousBounds gpucore.BufferID
	currentBounds  gpucore.BufferID

	unsorted gpucore.BufferID
	sorted   gpucore.BufferID

	readback *statisticsReadback
}

func (b *gridBuffers) ids() []gpucore.BufferID {
	return []gpucore.BufferID{
		b.data, b.cellStart, b.statistics,
		b.previousBounds, b.currentBounds,
		b.unsorted, b.sorted,
	}
}

// Grid builds a uniform spatial hash grid over the elements of its data
// buffer every frame. All work runs on the device; Update only records and
// submits it.
//
// Update, SetConfig, WriteElements and Close must be called from one
// goroutine. Handles, Statistics, Timings and RecordConsumerTime are safe
// for concurrent use.
type Grid struct {
	device gpucore.Device
	opts   gridOptions
	limits gpucore.Limits

	cfg  Config
	bufs *gridBuffers
	plan SortPlan

	kernelBounds    gpucore.KernelID
	kernelList      gpucore.KernelID
	kernelClear     gpucore.KernelID
	kernelCellStart gpucore.KernelID
	kernelStats     gpucore.KernelID
	sortProgram     gpucore.ProgramID
	sortKernels     map[string]gpucore.KernelID

	cmd      *gpucore.CommandList
	sink     *statisticsSink
	profiler *profiler

	frame       uint64
	allocations int
	closed      bool

	mu      sync.RWMutex
	handles Handles
}

// New creates a grid on device. The device must provide the bounds, list,
// sort and cell-start programs; the statistics program is optional.
// The grid does not take ownership of the device.
func New(device gpucore.Device, cfg Config, opts ...Option) (*Grid, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	g := &Grid{
		device:      device,
		opts:        o,
		limits:      device.Limits(),
		cfg:         cfg,
		sortKernels: make(map[string]gpucore.KernelID),
		cmd:         gpucore.NewCommandList(o.label),
		sink:        &statisticsSink{onUpdate: o.onStatistics},
		profiler:    newProfiler(o.profileWindow),
	}
	if err := g.checkDevice(cfg); err != nil {
		return nil, err
	}

	attachLogger(device)
	if err := g.loadPrograms(); err != nil {
		Logger().Error("hashgrid: grid disabled", "device", device.Name(), "err", err)
		detachLogger(device)
		return nil, err
	}

	g.cmd.OnSample(func(name string, elapsed time.Duration) {
		if name == SampleGrid {
			g.profiler.recordGrid(elapsed)
		}
	})

	if err := g.reallocate(); err != nil {
		g.Close()
		return nil, err
	}

	Logger().Info("hashgrid: grid created",
		"device", device.Name(),
		"elements", cfg.MaxElementCount,
		"cells", cfg.MaxCellCount,
		"encoding", cfg.Encoding,
		"sort", g.plan.Entry)
	return g, nil
}

// checkDevice rejects capacities the device cannot sort in one row of
// pre-pass groups.
func (g *Grid) checkDevice(cfg Config) error {
	if limit := maxSortableCount(g.limits); uint64(cfg.MaxElementCount) > limit {
		return fmt.Errorf("%w: max element count %d exceeds %d sortable on %s",
			ErrInvalidConfig, cfg.MaxElementCount, limit, g.device.Name())
	}
	return nil
}

func (g *Grid) loadPrograms() error {
	load := func(name string) (gpucore.ProgramID, error) {
		id, err := g.device.LoadProgram(name)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", ErrMissingProgram, name, err)
		}
		return id, nil
	}
	find := func(program gpucore.ProgramID, name, entry string) (gpucore.KernelID, error) {
		id, err := g.device.FindKernel(program, entry)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("%w: %s/%s: %w", ErrMissingProgram, name, entry, err)
		}
		return id, nil
	}

	bounds, err := load(gpucore.ProgramUpdateBounds)
	if err != nil {
		return err
	}
	list, err := load(gpucore.ProgramUpdateList)
	if err != nil {
		return err
	}
	sortList, err := load(gpucore.ProgramSortList)
	if err != nil {
		return err
	}
	cellStart, err := load(gpucore.ProgramCellStart)
	if err != nil {
		return err
	}

	if g.kernelBounds, err = find(bounds, gpucore.ProgramUpdateBounds, gpucore.EntryMain); err != nil {
		return err
	}
	if g.kernelList, err = find(list, gpucore.ProgramUpdateList, gpucore.EntryMain); err != nil {
		return err
	}
	if g.kernelClear, err = find(cellStart, gpucore.ProgramCellStart, gpucore.EntryClearCellStart); err != nil {
		return err
	}
	if g.kernelCellStart, err = find(cellStart, gpucore.ProgramCellStart, gpucore.EntryComputeCellStart); err != nil {
		return err
	}
	g.sortProgram = sortList

	stats, err := g.device.LoadProgram(gpucore.ProgramStatistics)
	if err == nil {
		g.kernelStats, err = g.device.FindKernel(stats, gpucore.EntryMain)
	}
	if err != nil {
		g.kernelStats = gpucore.InvalidID
		Logger().Warn("hashgrid: statistics unavailable", "device", g.device.Name(), "err", err)
	}
	return nil
}

// sortKernel resolves and caches an entry point of the sort program.
func (g *Grid) sortKernel(entry string) (gpucore.KernelID, error) {
	if id, ok := g.sortKernels[entry]; ok {
		return id, nil
	}
	id, err := g.device.FindKernel(g.sortProgram, entry)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", ErrNoSortKernel, entry, err)
	}
	g.sortKernels[entry] = id
	return id, nil
}

// Config returns the requested configuration.
func (g *Grid) Config() Config { return g.cfg }

// SetConfig replaces the configuration. A capacity change reallocates all
// buffers before the next frame, which resets the bounds history and clears
// the element buffer. Debug mode changes apply from the next frame.
func (g *Grid) SetConfig(cfg Config) error {
	if g.closed {
		return ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := g.checkDevice(cfg); err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

// ensureBuffers reallocates when the configured capacity no longer matches
// the allocated buffers.
func (g *Grid) ensureBuffers() error {
	if g.bufs != nil && g.bufs.config.sameCapacity(g.cfg) {
		return nil
	}
	return g.reallocate()
}

// reallocate releases the current buffers and creates a new set sized for
// the configured capacity.
func (g *Grid) reallocate() error {
	cfg := g.cfg
	plan := PlanSort(cfg.MaxElementCount, g.limits)

	if _, err := g.sortKernel(plan.Entry); err != nil {
		return err
	}
	if plan.Hybrid() {
		if _, err := g.sortKernel(gpucore.EntryMergePass); err != nil {
			return err
		}
	}

	if g.bufs != nil {
		Logger().Info("hashgrid: capacity changed, reallocating",
			"elements", cfg.MaxElementCount, "cells", cfg.MaxCellCount, "encoding", cfg.Encoding)
		g.releaseBuffers()
	}

	bufs, err := g.createBuffers(cfg)
	if err != nil {
		return err
	}
	g.bufs = bufs
	g.plan = plan
	g.allocations++

	Logger().Debug("hashgrid: buffers allocated",
		"data_words", uint64(cfg.MaxElementCount)*uint64(cfg.Encoding.RecordWords()),
		"pair_words", uint64(cfg.MaxElementCount)*gpucore.PairWords,
		"cells", cfg.MaxCellCount,
		"sort", plan.Entry,
		"merge_passes", plan.MergePasses)
	return nil
}

func (g *Grid) createBuffers(cfg Config) (*gridBuffers, error) {
	n := int(cfg.MaxElementCount)
	b := &gridBuffers{
		config:   cfg,
		readback: &statisticsReadback{sink: g.sink},
	}

	specs := []struct {
		dst   *gpucore.BufferID
		name  string
		words int
		fill  uint32
		init  []uint32
	}{
		{&b.data, "Data", n * int(cfg.Encoding.RecordWords()), gpucore.Unwritten, nil},
		{&b.previousBounds, "PreviousBounds", gpucore.BoundsWords, 0, gpucore.BoundsReset()},
		{&b.currentBounds, "Bounds", gpucore.BoundsWords, 0, gpucore.BoundsReset()},
		{&b.unsorted, "CellInstanceA", n * gpucore.PairWords, 0, nil},
		{&b.sorted, "CellInstanceB", n * gpucore.PairWords, 0, nil},
		{&b.cellStart, "CellStart", int(cfg.MaxCellCount), gpucore.EmptyCell, nil},
		{&b.statistics, "Statistics", gpucore.StatisticsWords, 0, gpucore.StatisticsReset()},
	}

	for _, s := range specs {
		id, err := g.device.CreateBuffer(gpucore.BufferDesc{
			Label: g.opts.label + "." + s.name,
			Words: s.words,
			Fill:  s.fill,
		})
		if err == nil && s.init != nil {
			err = g.device.WriteBuffer(id, 0, s.init)
			if err != nil {
				g.device.DestroyBuffer(id)
			}
		}
		if err != nil {
			g.destroyPartial(b)
			return nil, fmt.Errorf("hashgrid: create %s buffer: %w", s.name, err)
		}
		*s.dst = id
	}
	return b, nil
}

// destroyPartial releases the buffers of a partially created set.
func (g *Grid) destroyPartial(b *gridBuffers) {
	b.readback.release()
	for _, id := range b.ids() {
		if id != gpucore.InvalidID {
			g.device.DestroyBuffer(id)
		}
	}
}

func (g *Grid) releaseBuffers() {
	if g.bufs == nil {
		return
	}
	g.destroyPartial(g.bufs)
	g.bufs = nil
}

// WriteElements writes element records starting at element index first.
// records must hold a whole number of records in the configured encoding.
// A pending capacity change is applied first so the write lands in the
// buffer the next frame reads.
func (g *Grid) WriteElements(first uint32, records []uint32) error {
	if g.closed {
		return ErrClosed
	}
	if err := g.ensureBuffers(); err != nil {
		return err
	}
	rw := g.bufs.config.Encoding.RecordWords()
	if uint32(len(records))%rw != 0 {
		return fmt.Errorf("hashgrid: %d words is not a whole number of %d-word records", len(records), rw)
	}
	count := uint64(len(records)) / uint64(rw)
	if uint64(first)+count > uint64(g.bufs.config.MaxElementCount) {
		return fmt.Errorf("hashgrid: elements [%d,%d) outside capacity %d",
			first, uint64(first)+count, g.bufs.config.MaxElementCount)
	}
	return g.device.WriteBuffer(g.bufs.data, int(first)*int(rw), records)
}

// Update records and submits one frame of the grid pipeline and returns
// the published handles. It does not wait for the device.
func (g *Grid) Update() (Handles, error) {
	if g.closed {
		return Handles{}, ErrClosed
	}
	if err := g.ensureBuffers(); err != nil {
		return Handles{}, err
	}

	g.profiler.commitFrame()
	g.frame++
	g.record()

	if err := g.device.Submit(g.cmd); err != nil {
		return Handles{}, fmt.Errorf("hashgrid: submit frame %d: %w", g.frame, err)
	}

	h := g.publish()
	b := g.bufs
	b.previousBounds, b.currentBounds = b.currentBounds, b.previousBounds
	return h, nil
}

// record fills the command list with this frame's dispatch sequence.
func (g *Grid) record() {
	b := g.bufs
	cfg := b.config
	n := cfg.MaxElementCount

	elements := DispatchSize(n, gpucore.ThreadsPerGroup)
	cells := DispatchSize(cfg.MaxCellCount, gpucore.ThreadsPerGroup)

	params := gpucore.Params{
		CellSize:        cfg.CellSize.array(),
		MaxElementCount: n,
		MaxCellCount:    cfg.MaxCellCount,
		DispatchWidth:   elements.X,
		RecordWords:     cfg.Encoding.RecordWords(),
		SortSize:        g.plan.LocalSortLimit,
	}
	bind := func(slot gpucore.Slot, id gpucore.BufferID) gpucore.Binding {
		return gpucore.Binding{Slot: slot, Buffer: id}
	}

	cl := g.cmd
	cl.Clear()
	profiling := g.cfg.Debug >= DebugProfile
	if profiling {
		cl.BeginSample(SampleGrid)
	}

	cl.SetBufferData(b.currentBounds, gpucore.BoundsReset())
	cl.Dispatch(g.kernelBounds, params, elements.X, elements.Y,
		bind(gpucore.SlotData, b.data),
		bind(gpucore.SlotBounds, b.currentBounds))

	cl.Dispatch(g.kernelList, params, elements.X, elements.Y,
		bind(gpucore.SlotData, b.data),
		bind(gpucore.SlotBounds, b.currentBounds),
		bind(gpucore.SlotCellInstance, b.unsorted))

	g.recordSort(params, elements)

	clearParams := params
	clearParams.DispatchWidth = cells.X
	cl.Dispatch(g.kernelClear, clearParams, cells.X, cells.Y,
		bind(gpucore.SlotCellInstance, b.sorted),
		bind(gpucore.SlotCellStart, b.cellStart))
	cl.Dispatch(g.kernelCellStart, params, elements.X, elements.Y,
		bind(gpucore.SlotCellInstance, b.sorted),
		bind(gpucore.SlotCellStart, b.cellStart))

	if g.cfg.Debug == DebugStatistics && g.kernelStats != gpucore.InvalidID {
		cl.SetBufferData(b.statistics, gpucore.StatisticsReset())
		cl.Dispatch(g.kernelStats, params, elements.X, elements.Y,
			bind(gpucore.SlotData, b.data),
			bind(gpucore.SlotBounds, b.currentBounds),
			bind(gpucore.SlotCellInstance, b.sorted),
			bind(gpucore.SlotStatistics, b.statistics))
		cl.RequestReadback(b.statistics, b.readback.callback(g.frame))
	}

	if profiling {
		cl.EndSample(SampleGrid)
	}
}

// recordSort records the sort of the unsorted pairs into the sorted buffer.
// In the hybrid path the two pair buffers swap roles before every merge
// pass, so the buffer holding the final runs always ends up as sorted.
func (g *Grid) recordSort(params gpucore.Params, elements Dispatch) {
	b := g.bufs
	plan := g.plan
	cl := g.cmd

	sortParams := params
	sortParams.DispatchWidth = plan.Dispatch.X
	cl.Dispatch(g.sortKernels[plan.Entry], sortParams, plan.Dispatch.X, plan.Dispatch.Y,
		gpucore.Binding{Slot: gpucore.SlotInputSequence, Buffer: b.unsorted},
		gpucore.Binding{Slot: gpucore.SlotSortedSequence, Buffer: b.sorted})

	merge := g.sortKernels[gpucore.EntryMergePass]
	for pass := range plan.MergePasses {
		b.unsorted, b.sorted = b.sorted, b.unsorted

		mergeParams := params
		mergeParams.SubArraySize = plan.SubArraySize(pass)
		cl.Dispatch(merge, mergeParams, elements.X, elements.Y,
			gpucore.Binding{Slot: gpucore.SlotInputSequence, Buffer: b.unsorted},
			gpucore.Binding{Slot: gpucore.SlotSortedSequence, Buffer: b.sorted})
	}
}

func (g *Grid) publish() Handles {
	b := g.bufs
	h := Handles{
		Frame:           g.frame,
		Data:            b.data,
		Bounds:          b.currentBounds,
		PreviousBounds:  b.previousBounds,
		CellInstances:   b.sorted,
		CellStart:       b.cellStart,
		Statistics:      b.statistics,
		CellSize:        b.config.CellSize,
		MaxElementCount: b.config.MaxElementCount,
		MaxCellCount:    b.config.MaxCellCount,
		Encoding:        b.config.Encoding,
	}
	g.mu.Lock()
	g.handles = h
	g.mu.Unlock()
	return h
}

// Handles returns the handles published by the last Update.
func (g *Grid) Handles() Handles {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.handles
}

// Plan returns the sort plan of the current allocation.
func (g *Grid) Plan() SortPlan { return g.plan }

// Frame returns the number of frames submitted.
func (g *Grid) Frame() uint64 { return g.frame }

// Allocations returns how many times the buffer set has been allocated.
// It is 1 after New and grows only on capacity changes.
func (g *Grid) Allocations() int { return g.allocations }

// Statistics returns the most recent completed statistics readback. Frames
// may lag behind Frame by any number of cycles.
func (g *Grid) Statistics() Statistics { return g.sink.load() }

// Timings returns the frame timing samples.
func (g *Grid) Timings() Timings { return g.profiler.timings() }

// RecordConsumerTime reports the time the downstream consumer spent on the
// last frame. It feeds the rolling average of Timings.
func (g *Grid) RecordConsumerTime(d time.Duration) { g.profiler.recordConsumer(d) }

// Close releases all grid buffers. Readbacks still in flight complete as
// no-ops. The device stays open. Close is safe to call multiple times.
func (g *Grid) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.releaseBuffers()
	detachLogger(g.device)

	g.mu.Lock()
	g.handles = Handles{}
	g.mu.Unlock()
	Logger().Debug("hashgrid: grid closed", "frames", g.frame)
}

// IsMissingProgram reports whether err means the device lacks a required
// compute program.
func IsMissingProgram(err error) bool { return errors.Is(err, ErrMissingProgram) }
