package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/gogpu/hashgrid"
)

// FrameRecord is one row of frames.csv.
type FrameRecord struct {
	Frame         uint64  `csv:"frame" json:"frame"`
	GridMS        float64 `csv:"grid_ms" json:"grid_ms"`
	ConsumerMS    float64 `csv:"consumer_ms" json:"consumer_ms"`
	AverageMS     float64 `csv:"average_ms" json:"average_ms"`
	StatsFrame    uint64  `csv:"stats_frame" json:"stats_frame"`
	OccupiedCells uint32  `csv:"occupied_cells" json:"occupied_cells"`
	Collisions    uint32  `csv:"collisions" json:"collisions"`
	MinPerCell    uint32  `csv:"min_per_cell" json:"min_per_cell"`
	MaxPerCell    uint32  `csv:"max_per_cell" json:"max_per_cell"`
	CollisionRate float64 `csv:"collision_rate" json:"collision_rate"`
}

// NewFrameRecord builds a row from the grid telemetry after a frame.
func NewFrameRecord(frame uint64, t hashgrid.Timings, s hashgrid.Statistics) FrameRecord {
	r := FrameRecord{
		Frame:         frame,
		GridMS:        ms(t.Grid),
		ConsumerMS:    ms(t.Consumer),
		AverageMS:     ms(t.Average),
		StatsFrame:    s.Frame,
		OccupiedCells: s.OccupiedCells,
		Collisions:    s.Collisions,
		MaxPerCell:    s.MaxPerCell,
		CollisionRate: s.CollisionRate(),
	}
	if s.OccupiedCells > 0 {
		r.MinPerCell = s.MinPerCell
	}
	return r
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Telemetry writes frame records as CSV. A nil *Telemetry discards them.
type Telemetry struct {
	w             io.Writer
	closer        io.Closer
	headerWritten bool
}

// NewTelemetry creates dir and frames.csv inside it.
func NewTelemetry(dir string) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "frames.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating frames.csv: %w", err)
	}
	return &Telemetry{w: f, closer: f}, nil
}

// Write appends one record, preceded by the header on first use.
func (t *Telemetry) Write(r FrameRecord) error {
	if t == nil {
		return nil
	}
	records := []FrameRecord{r}
	if !t.headerWritten {
		if err := gocsv.Marshal(records, t.w); err != nil {
			return fmt.Errorf("writing frames: %w", err)
		}
		t.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, t.w); err != nil {
		return fmt.Errorf("writing frames: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (t *Telemetry) Close() error {
	if t == nil || t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
