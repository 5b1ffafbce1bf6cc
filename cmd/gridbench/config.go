package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/gogpu/hashgrid"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds the benchmark configuration.
type Config struct {
	Grid       GridConfig       `yaml:"grid"`
	Simulation SimulationConfig `yaml:"simulation"`
	Output     OutputConfig     `yaml:"output"`
}

// GridConfig mirrors hashgrid.Config in YAML form.
type GridConfig struct {
	CellSize        [3]float32 `yaml:"cell_size"`
	MaxElementCount uint32     `yaml:"max_element_count"`
	MaxCellCount    uint32     `yaml:"max_cell_count"`
	Encoding        string     `yaml:"encoding"`
	Debug           string     `yaml:"debug"`
	ProfileWindow   int        `yaml:"profile_window"`
}

// SimulationConfig holds the particle world parameters.
type SimulationConfig struct {
	Particles int        `yaml:"particles"`
	Frames    int        `yaml:"frames"`
	DT        float32    `yaml:"dt"`
	Extent    [3]float32 `yaml:"extent"`
	MaxSpeed  float32    `yaml:"max_speed"`
	Seed      uint64     `yaml:"seed"`
}

// OutputConfig holds the output settings.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	HeatmapScale int    `yaml:"heatmap_scale"`
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	s := c.Simulation
	if s.Particles < 0 || uint64(s.Particles) > uint64(c.Grid.MaxElementCount) {
		return fmt.Errorf("simulation.particles = %d, want 0..%d (grid.max_element_count)", s.Particles, c.Grid.MaxElementCount)
	}
	if s.Frames <= 0 {
		return fmt.Errorf("simulation.frames = %d, want > 0", s.Frames)
	}
	for i, e := range s.Extent {
		if !(e > 0) {
			return fmt.Errorf("simulation.extent[%d] = %g, want > 0", i, e)
		}
	}
	if c.Output.HeatmapScale < 1 {
		c.Output.HeatmapScale = 1
	}
	_, err := c.Grid.hashgrid()
	return err
}

// hashgrid converts the YAML grid section and validates it.
func (g GridConfig) hashgrid() (hashgrid.Config, error) {
	cfg := hashgrid.Config{
		CellSize:        hashgrid.Vec3{X: g.CellSize[0], Y: g.CellSize[1], Z: g.CellSize[2]},
		MaxElementCount: g.MaxElementCount,
		MaxCellCount:    g.MaxCellCount,
	}
	switch g.Encoding {
	case "", "compact":
		cfg.Encoding = hashgrid.EncodingCompact
	case "expanded":
		cfg.Encoding = hashgrid.EncodingExpanded
	default:
		return cfg, fmt.Errorf("grid.encoding = %q, want compact or expanded", g.Encoding)
	}
	switch g.Debug {
	case "", "none":
		cfg.Debug = hashgrid.DebugNone
	case "profile":
		cfg.Debug = hashgrid.DebugProfile
	case "statistics":
		cfg.Debug = hashgrid.DebugStatistics
	default:
		return cfg, fmt.Errorf("grid.debug = %q, want none, profile or statistics", g.Debug)
	}
	return cfg, cfg.Validate()
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
