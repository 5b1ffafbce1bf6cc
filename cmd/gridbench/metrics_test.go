package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()
	m.Observe(FrameRecord{Frame: 1, GridMS: 1.5, ConsumerMS: 0.2})
	m.Observe(FrameRecord{Frame: 2, GridMS: 1.0, StatsFrame: 1, OccupiedCells: 40, Collisions: 3, MaxPerCell: 7})

	if got := testutil.ToFloat64(m.frames); got != 2 {
		t.Errorf("frames = %g, want 2", got)
	}
	if got := testutil.ToFloat64(m.occupied); got != 40 {
		t.Errorf("occupied = %g, want 40", got)
	}
	if got := testutil.ToFloat64(m.collisions); got != 3 {
		t.Errorf("collisions = %g, want 3", got)
	}
	if got := m.Last().Frame; got != 2 {
		t.Errorf("Last().Frame = %d, want 2", got)
	}
}

func TestMetrics_StatsWithoutReadbackKeepGauges(t *testing.T) {
	m := NewMetrics()
	m.Observe(FrameRecord{Frame: 1, StatsFrame: 1, OccupiedCells: 12})
	m.Observe(FrameRecord{Frame: 2})
	if got := testutil.ToFloat64(m.occupied); got != 12 {
		t.Errorf("occupied = %g, want 12 from the last readback", got)
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.Observe(FrameRecord{Frame: 1})
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.Observe(FrameRecord{Frame: 9, GridMS: 2, StatsFrame: 8, OccupiedCells: 5})
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics status = %d", code)
	}
	for _, want := range []string{"gridbench_frames_total 1", "gridbench_occupied_cells 5", "gridbench_grid_duration_seconds_count 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics lacks %q", want)
		}
	}

	code, body = get(t, srv, "/stats")
	if code != http.StatusOK {
		t.Fatalf("/stats status = %d", code)
	}
	var rec FrameRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		t.Fatalf("/stats body %q: %v", body, err)
	}
	if rec.Frame != 9 || rec.OccupiedCells != 5 {
		t.Errorf("/stats = %+v, want frame 9 with 5 occupied cells", rec)
	}

	if code, _ := get(t, srv, "/health"); code != http.StatusOK {
		t.Errorf("/health status = %d", code)
	}
	if code, _ := get(t, srv, "/missing"); code != http.StatusNotFound {
		t.Errorf("/missing status = %d, want 404", code)
	}
}
