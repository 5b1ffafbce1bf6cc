package hashgrid

import (
	"fmt"
	"math"
	"math/bits"
)

// MaxGroupsPerDimension is the per-axis dispatch ceiling.
const MaxGroupsPerDimension = 0xFFFF

// DivideUpMultiple returns ceil(value / multiple).
// It panics if multiple is zero or the rounding overflows uint32.
func DivideUpMultiple(value, multiple uint32) uint32 {
	if multiple == 0 {
		panic("hashgrid: DivideUpMultiple by zero")
	}
	if value > math.MaxUint32-(multiple-1) {
		panic(fmt.Sprintf("hashgrid: DivideUpMultiple(%d, %d) overflows uint32", value, multiple))
	}
	return (value + multiple - 1) / multiple
}

// CeilPowerOfTwo returns the smallest power of two >= v. CeilPowerOfTwo(0)
// is 1. It panics if the result does not fit in uint32.
func CeilPowerOfTwo(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	if v > 1<<31 {
		panic(fmt.Sprintf("hashgrid: CeilPowerOfTwo(%d) overflows uint32", v))
	}
	return 1 << bits.Len32(v-1)
}

// HighestBit returns the index of the highest set bit of v, which is
// log2(v) for powers of two. It panics for v == 0.
func HighestBit(v uint32) uint32 {
	if v == 0 {
		panic("hashgrid: HighestBit(0)")
	}
	return uint32(bits.Len32(v) - 1)
}

// Dispatch is the group count of a dispatch.
type Dispatch struct {
	X, Y uint32
}

// Groups returns the total group count X*Y.
func (d Dispatch) Groups() uint64 { return uint64(d.X) * uint64(d.Y) }

// DispatchSize returns a 2D group grid covering count threads in groups of
// threadsPerGroup, with neither axis above MaxGroupsPerDimension. Kernels
// flatten the group id as y*X + x and discard threads past count.
func DispatchSize(count, threadsPerGroup uint32) Dispatch {
	groups := DivideUpMultiple(count, threadsPerGroup)
	y := DivideUpMultiple(groups, MaxGroupsPerDimension)
	x := DivideUpMultiple(groups, y)
	return Dispatch{X: x, Y: y}
}
