package hashgrid

// Option configures a Grid during creation.
//
// Example:
//
//	g, err := hashgrid.New(dev, cfg,
//	    hashgrid.WithStatisticsHandler(func(s hashgrid.Statistics) {
//	        log.Printf("occupied=%d collisions=%d", s.OccupiedCells, s.Collisions)
//	    }))
type Option func(*gridOptions)

type gridOptions struct {
	onStatistics  func(Statistics)
	profileWindow int
	label         string
}

func defaultOptions() gridOptions {
	return gridOptions{
		profileWindow: DefaultProfileWindow,
		label:         "HashGrid",
	}
}

// WithStatisticsHandler sets a function called with every statistics
// readback newer than the last one seen. It runs on a device goroutine and
// must not call back into the Grid's Update.
func WithStatisticsHandler(fn func(Statistics)) Option {
	return func(o *gridOptions) {
		o.onStatistics = fn
	}
}

// WithProfileWindow sets the number of frames averaged by Timings.
// Values <= 0 keep DefaultProfileWindow.
func WithProfileWindow(frames int) Option {
	return func(o *gridOptions) {
		if frames > 0 {
			o.profileWindow = frames
		}
	}
}

// WithLabel sets the label prefix of the grid's buffers and command list.
func WithLabel(label string) Option {
	return func(o *gridOptions) {
		if label != "" {
			o.label = label
		}
	}
}
