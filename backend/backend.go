// Package backend keeps the registry of compute device implementations.
//
// Backend packages register themselves from init(); import them for side
// effects and pick one by name or by priority:
//
//	import (
//	    "github.com/gogpu/hashgrid/backend"
//	    _ "github.com/gogpu/hashgrid/backend/software"
//	    _ "github.com/gogpu/hashgrid/backend/wgpu"
//	)
//
//	dev, err := backend.OpenDefault()
package backend

import "errors"

// Backend names.
const (
	BackendWGPU     = "wgpu"
	BackendSoftware = "software"
)

// ErrBackendNotAvailable is returned when a requested backend is not registered.
var ErrBackendNotAvailable = errors.New("backend: not available")
