// Command gridbench drives the hash grid with a bouncing particle world and
// reports per-frame timings and occupancy statistics.
//
// Usage:
//
//	gridbench [-config file.yaml] [-backend software|wgpu] [-frames N] [-out dir] [-metrics addr]
//
// With an output directory it writes frames.csv, the effective config.yaml
// and heatmap.png, an XY projection of the last frame's cell occupancy.
// With -metrics it serves Prometheus metrics on /metrics and the latest
// frame record on /stats while the run lasts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/hashgrid"
	"github.com/gogpu/hashgrid/backend"
	_ "github.com/gogpu/hashgrid/backend/software"
	_ "github.com/gogpu/hashgrid/backend/wgpu"
	"github.com/gogpu/hashgrid/gpucore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file merged over the defaults")
		backendName = flag.String("backend", "", "device backend (default: best available)")
		frames      = flag.Int("frames", 0, "override simulation.frames")
		outDir      = flag.String("out", "", "override output.dir")
		writeConfig = flag.String("write-config", "", "write the effective config to this file and exit")
		verbose     = flag.Bool("v", false, "log grid events at debug level")
		metricsAddr = flag.String("metrics", "", "serve metrics on this address, e.g. 127.0.0.1:6060")
	)
	flag.Parse()

	cfg, err := Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *frames > 0 {
		cfg.Simulation.Frames = *frames
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *writeConfig != "" {
		if err := cfg.WriteYAML(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	hashgrid.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	dev, err := openDevice(*backendName)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Close()

	var metrics *Metrics
	if *metricsAddr != "" {
		metrics = NewMetrics()
		srv := metrics.NewServer(*metricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Printf("Serving metrics on http://%s/metrics", *metricsAddr)
	}

	if err := run(cfg, dev, metrics, os.Stdout); err != nil {
		log.Fatalf("gridbench: %v", err)
	}
}

func openDevice(name string) (gpucore.Device, error) {
	if name == "" {
		return backend.OpenDefault()
	}
	return backend.Open(name)
}

// Summary is the outcome of a run.
type Summary struct {
	Frames     int
	Particles  int
	MeanMS     float64
	StdDevMS   float64
	Statistics hashgrid.Statistics
	Occupancy  Occupancy
}

// run simulates cfg.Simulation.Frames frames on dev and prints a summary
// to out. metrics may be nil.
func run(cfg *Config, dev gpucore.Device, metrics *Metrics, out io.Writer) error {
	gridCfg, err := cfg.Grid.hashgrid()
	if err != nil {
		return err
	}

	g, err := hashgrid.New(dev, gridCfg,
		hashgrid.WithLabel("gridbench"),
		hashgrid.WithProfileWindow(cfg.Grid.ProfileWindow),
		hashgrid.WithStatisticsHandler(func(s hashgrid.Statistics) {
			hashgrid.Logger().Debug("gridbench: statistics", "stats", s)
		}))
	if err != nil {
		return fmt.Errorf("creating grid: %w", err)
	}
	defer g.Close()

	var telemetry *Telemetry
	if cfg.Output.Dir != "" {
		if telemetry, err = NewTelemetry(cfg.Output.Dir); err != nil {
			return err
		}
		defer telemetry.Close()
		if err := cfg.WriteYAML(filepath.Join(cfg.Output.Dir, "config.yaml")); err != nil {
			return err
		}
	}

	world := NewWorld(cfg.Simulation)
	enc := gridCfg.Encoding
	records := make([]uint32, world.Len()*int(enc.RecordWords()))
	frameMS := make([]float64, 0, cfg.Simulation.Frames)

	var h hashgrid.Handles
	for range cfg.Simulation.Frames {
		start := time.Now()
		world.Step(cfg.Simulation.DT)
		world.Encode(enc, records)
		consumer := time.Since(start)

		if len(records) > 0 {
			if err := g.WriteElements(0, records); err != nil {
				return err
			}
		}
		if h, err = g.Update(); err != nil {
			return err
		}
		g.RecordConsumerTime(consumer)

		t := g.Timings()
		frameMS = append(frameMS, ms(t.Grid)+ms(consumer))
		rec := NewFrameRecord(h.Frame, t, g.Statistics())
		metrics.Observe(rec)
		if err := telemetry.Write(rec); err != nil {
			return err
		}
	}

	// Drain pending readbacks so the summary sees the last statistics.
	if w, ok := dev.(interface{ Wait() }); ok {
		w.Wait()
	}
	snap, err := ReadSnapshot(dev, h)
	if err != nil {
		return err
	}

	s := Summary{
		Frames:     cfg.Simulation.Frames,
		Particles:  world.Len(),
		Statistics: g.Statistics(),
		Occupancy:  ComputeOccupancy(snap, h),
	}
	s.MeanMS, s.StdDevMS = stat.MeanStdDev(frameMS, nil)

	if cfg.Output.Dir != "" {
		caption := fmt.Sprintf("frame %d, %d cells", h.Frame, s.Occupancy.Occupied)
		img := s.Occupancy.Render(cfg.Output.HeatmapScale, caption)
		if err := SavePNG(filepath.Join(cfg.Output.Dir, "heatmap.png"), img); err != nil {
			return err
		}
	}

	s.Print(out, dev.Name(), g.Plan())
	return nil
}

// Print writes the human-readable summary.
func (s Summary) Print(w io.Writer, device string, plan hashgrid.SortPlan) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "device:     %s\n", device)
	p.Fprintf(w, "sort:       %s\n", plan)
	p.Fprintf(w, "particles:  %d over %d frames\n", s.Particles, s.Frames)
	p.Fprintf(w, "frame time: %.3f ms (stddev %.3f ms)\n", s.MeanMS, s.StdDevMS)
	p.Fprintf(w, "occupied:   %d cells, max column %d\n", s.Occupancy.Occupied, s.Occupancy.Max)
	if s.Statistics.Frame > 0 {
		p.Fprintf(w, "collisions: %d (%.1f%%) at frame %d\n",
			s.Statistics.Collisions, s.Statistics.CollisionRate(), s.Statistics.Frame)
	}
}
