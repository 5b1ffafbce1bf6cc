package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/hashgrid/backend/software"
	"github.com/gogpu/hashgrid/gpucore"
)

func smallConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Grid.MaxElementCount = 3000
	cfg.Grid.MaxCellCount = 4096
	cfg.Grid.CellSize = [3]float32{4, 4, 4}
	cfg.Simulation.Particles = 2500
	cfg.Simulation.Frames = 6
	cfg.Simulation.Extent = [3]float32{32, 32, 8}
	return cfg
}

func TestRun_Software(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Output.Dir = t.TempDir()

	dev := software.New()
	defer dev.Close()

	metrics := NewMetrics()
	var out bytes.Buffer
	if err := run(cfg, dev, metrics, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if last := metrics.Last(); last.Frame != 6 {
		t.Errorf("metrics last frame = %d, want 6", last.Frame)
	}

	for _, want := range []string{"particles:  2,500 over 6 frames", "sort:       BitonicPrePass", "collisions:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary lacks %q:\n%s", want, out.String())
		}
	}
	for _, name := range []string{"frames.csv", "config.yaml", "heatmap.png"} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "frames.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if rows := strings.Count(strings.TrimSpace(string(data)), "\n"); rows != 6 {
		t.Errorf("frames.csv has %d data rows, want 6", rows)
	}
}

func TestRun_NoParticles(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Simulation.Particles = 0
	cfg.Grid.Debug = "none"

	dev := software.New()
	defer dev.Close()

	var out bytes.Buffer
	if err := run(cfg, dev, nil, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "occupied:   0 cells") {
		t.Errorf("summary = %q, want no occupied cells", out.String())
	}
	if strings.Contains(out.String(), "collisions:") {
		t.Errorf("summary reports statistics with debug none:\n%s", out.String())
	}
}

func TestRun_MissingPrograms(t *testing.T) {
	dev := software.New(software.WithoutPrograms(gpucore.ProgramSortList))
	defer dev.Close()
	if err := run(smallConfig(t), dev, nil, &bytes.Buffer{}); err == nil {
		t.Error("run() on a device without programs succeeded")
	}
}
