package hashgrid

import (
	"fmt"
	"math"

	"github.com/gogpu/hashgrid/gpucore"
)

// Vec3 is a 3D vector of float32 components.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) array() [3]float32 { return [3]float32{v.X, v.Y, v.Z} }

func vec3(a [3]float32) Vec3 { return Vec3{a[0], a[1], a[2]} }

// Encoding selects the element record layout of the data buffer.
type Encoding uint8

const (
	// EncodingCompact stores position only: 3 words.
	EncodingCompact Encoding = iota

	// EncodingExpanded stores position then velocity: 6 words.
	EncodingExpanded
)

// RecordWords returns the record size of the encoding in 32-bit words.
func (e Encoding) RecordWords() uint32 {
	if e == EncodingExpanded {
		return 6
	}
	return 3
}

func (e Encoding) String() string {
	switch e {
	case EncodingCompact:
		return "compact"
	case EncodingExpanded:
		return "expanded"
	default:
		return fmt.Sprintf("Encoding(%d)", e)
	}
}

// DebugMode selects how much telemetry the grid collects.
type DebugMode uint8

const (
	// DebugNone collects nothing.
	DebugNone DebugMode = iota

	// DebugProfile times the grid pipeline every frame.
	DebugProfile

	// DebugStatistics adds the occupancy statistics pass and its
	// asynchronous readback to DebugProfile.
	DebugStatistics
)

func (m DebugMode) String() string {
	switch m {
	case DebugNone:
		return "none"
	case DebugProfile:
		return "profile"
	case DebugStatistics:
		return "statistics"
	default:
		return fmt.Sprintf("DebugMode(%d)", m)
	}
}

// Config holds the grid configuration. CellSize, MaxElementCount,
// MaxCellCount and Encoding are capacity parameters: changing any of them
// reallocates every buffer before the next frame.
type Config struct {
	// CellSize is the edge length of one cell per axis. All components
	// must be positive and finite.
	CellSize Vec3

	// MaxElementCount is the element capacity.
	MaxElementCount uint32

	// MaxCellCount is the size of the cell-start table. Cell ids are
	// clamped below it; MaxCellCount itself marks unwritten elements.
	MaxCellCount uint32

	// Encoding is the element record layout.
	Encoding Encoding

	// Debug selects telemetry collection. It does not trigger reallocation.
	Debug DebugMode
}

// Capacity limits.
const (
	// MaxElementCapacity keeps CeilPowerOfTwo(MaxElementCount) within
	// 32 bits.
	MaxElementCapacity = 1 << 31

	// MaxCellCapacity keeps the out-of-range cell id below the sort
	// padding key and the cell dispatch within uint32 arithmetic.
	MaxCellCapacity = math.MaxUint32 - gpucore.ThreadsPerGroup
)

// DefaultConfig returns the default configuration: 1.5 unit cells, 65536
// elements, 65536 cells, compact records, no telemetry.
func DefaultConfig() Config {
	return Config{
		CellSize:        Vec3{1.5, 1.5, 1.5},
		MaxElementCount: 65536,
		MaxCellCount:    65536,
		Encoding:        EncodingCompact,
		Debug:           DebugNone,
	}
}

// Validate reports whether the configuration can be run.
func (c Config) Validate() error {
	for i, v := range c.CellSize.array() {
		if !(v > 0) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: cell size component %d is %g, want positive and finite", ErrInvalidConfig, i, v)
		}
	}
	if c.MaxElementCount == 0 || c.MaxElementCount > MaxElementCapacity {
		return fmt.Errorf("%w: max element count %d, want 1..%d", ErrInvalidConfig, c.MaxElementCount, MaxElementCapacity)
	}
	if c.MaxCellCount == 0 || c.MaxCellCount > MaxCellCapacity {
		return fmt.Errorf("%w: max cell count %d, want 1..%d", ErrInvalidConfig, c.MaxCellCount, uint32(MaxCellCapacity))
	}
	if c.Encoding > EncodingExpanded {
		return fmt.Errorf("%w: unknown encoding %d", ErrInvalidConfig, c.Encoding)
	}
	if c.Debug > DebugStatistics {
		return fmt.Errorf("%w: unknown debug mode %d", ErrInvalidConfig, c.Debug)
	}
	return nil
}

// sameCapacity reports whether two configs share buffer sizes and layouts.
func (c Config) sameCapacity(o Config) bool {
	return c.CellSize == o.CellSize &&
		c.MaxElementCount == o.MaxElementCount &&
		c.MaxCellCount == o.MaxCellCount &&
		c.Encoding == o.Encoding
}
