package hashgrid

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/gogpu/hashgrid/gpucore"
	"gonum.org/v1/gonum/stat"
)

// Statistics is one completed readback of the grid statistics buffer.
type Statistics struct {
	// Frame is the frame the counters were computed in. Zero means no
	// readback has completed yet.
	Frame uint64

	OccupiedCells uint32
	Collisions    uint32

	// MinPerCell is math.MaxUint32 when no cell is occupied.
	MinPerCell uint32
	MaxPerCell uint32
}

// CollisionRate returns the share of occupied cells holding elements from
// more than one grid cell, in percent.
func (s Statistics) CollisionRate() float64 {
	if s.OccupiedCells == 0 {
		return 0
	}
	return 100 * float64(s.Collisions) / float64(s.OccupiedCells)
}

// LogValue implements slog.LogValuer.
func (s Statistics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frame", s.Frame),
		slog.Any("occupied", s.OccupiedCells),
		slog.Any("collisions", s.Collisions),
		slog.Any("min_per_cell", s.MinPerCell),
		slog.Any("max_per_cell", s.MaxPerCell),
	)
}

func decodeStatistics(frame uint64, words []uint32) Statistics {
	return Statistics{
		Frame:         frame,
		OccupiedCells: words[gpucore.StatOccupied],
		Collisions:    words[gpucore.StatCollisions],
		MinPerCell:    words[gpucore.StatMinPerCell],
		MaxPerCell:    words[gpucore.StatMaxPerCell],
	}
}

// statisticsSink keeps the most recent completed readback.
type statisticsSink struct {
	mu       sync.Mutex
	latest   Statistics
	onUpdate func(Statistics)
}

func (s *statisticsSink) store(frame uint64, words []uint32) {
	if len(words) < gpucore.StatisticsWords {
		return
	}
	st := decodeStatistics(frame, words)

	s.mu.Lock()
	if frame <= s.latest.Frame {
		s.mu.Unlock()
		return
	}
	s.latest = st
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

func (s *statisticsSink) load() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// statisticsReadback is the receiving end of the readbacks issued against
// one statistics buffer. The buffer set holds the only strong reference;
// callbacks reach it through a weak pointer and drop data once the buffer
// set is released.
type statisticsReadback struct {
	released atomic.Bool
	sink     *statisticsSink
}

func (r *statisticsReadback) callback(frame uint64) gpucore.ReadbackFunc {
	wp := weak.Make(r)
	return func(data []uint32) {
		target := wp.Value()
		if target == nil || target.released.Load() {
			return
		}
		target.sink.store(frame, data)
	}
}

func (r *statisticsReadback) release() { r.released.Store(true) }

// Timings holds the frame timing samples.
type Timings struct {
	// Grid is the last completed grid pipeline sample.
	Grid time.Duration

	// Consumer is the last time reported through RecordConsumerTime.
	Consumer time.Duration

	// Average is the mean of Grid+Consumer over the frames in the rolling
	// window where both were non-zero.
	Average time.Duration

	// Samples is the number of frames in the window.
	Samples int
}

// DefaultProfileWindow is the number of frames averaged by Timings.
const DefaultProfileWindow = 64

// profiler accumulates grid and consumer samples into a rolling window.
type profiler struct {
	mu       sync.Mutex
	window   int
	history  []float64
	next     int
	grid     time.Duration
	consumer time.Duration
}

func newProfiler(window int) *profiler {
	if window <= 0 {
		window = DefaultProfileWindow
	}
	return &profiler{window: window, history: make([]float64, 0, window)}
}

func (p *profiler) recordGrid(d time.Duration) {
	p.mu.Lock()
	p.grid = d
	p.mu.Unlock()
}

func (p *profiler) recordConsumer(d time.Duration) {
	p.mu.Lock()
	p.consumer = d
	p.mu.Unlock()
}

// commitFrame appends the current grid+consumer total to the window.
func (p *profiler) commitFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grid <= 0 || p.consumer <= 0 {
		return
	}
	total := float64(p.grid + p.consumer)
	if len(p.history) < p.window {
		p.history = append(p.history, total)
		return
	}
	p.history[p.next] = total
	p.next = (p.next + 1) % p.window
}

func (p *profiler) timings() Timings {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := Timings{Grid: p.grid, Consumer: p.consumer, Samples: len(p.history)}
	if len(p.history) > 0 {
		t.Average = time.Duration(stat.Mean(p.history, nil))
	}
	return t
}
