package software

import (
	"time"

	"github.com/gogpu/hashgrid/gpucore"
)

// Option configures a Device.
type Option func(*options)

type options struct {
	limits        gpucore.Limits
	workers       int
	missing       map[string]bool
	readbackDelay time.Duration
}

func defaultOptions() options {
	l := gpucore.DefaultLimits()
	// Desktop-class defaults: 1024 invocations, 32 KiB of group memory.
	l.MaxWorkgroupInvocations = 1024
	l.MaxWorkgroupStorageSize = 32768
	l.MaxBufferSize = 1 << 30
	return options{limits: l}
}

// WithLimits overrides the reported device limits. Kernel lookup honours
// them: a sort kernel that needs more threads or group memory than the
// limits allow is unavailable.
func WithLimits(l gpucore.Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithWorkers sets the number of goroutines running thread groups.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithoutPrograms hides the named programs, as on a device where they
// failed to build.
func WithoutPrograms(names ...string) Option {
	return func(o *options) {
		if o.missing == nil {
			o.missing = make(map[string]bool)
		}
		for _, n := range names {
			o.missing[n] = true
		}
	}
}

// WithReadbackDelay delays every readback callback by d after the device
// reaches it.
func WithReadbackDelay(d time.Duration) Option {
	return func(o *options) { o.readbackDelay = d }
}
