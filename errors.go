package hashgrid

import "errors"

// Sentinel errors.
var (
	// ErrNilDevice is returned by New when no device is given.
	ErrNilDevice = errors.New("hashgrid: nil device")

	// ErrMissingProgram is returned by New when the device lacks one of the
	// required compute programs. The grid cannot run without them.
	ErrMissingProgram = errors.New("hashgrid: required compute program missing")

	// ErrNoSortKernel is returned when no bitonic sort variant fits the
	// device limits.
	ErrNoSortKernel = errors.New("hashgrid: no sort kernel fits the device")

	// ErrInvalidConfig is returned for configurations the pipeline cannot
	// represent.
	ErrInvalidConfig = errors.New("hashgrid: invalid config")

	// ErrClosed is returned by operations on a closed grid.
	ErrClosed = errors.New("hashgrid: grid closed")
)
