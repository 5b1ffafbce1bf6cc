package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports frame records to Prometheus and keeps the latest one for
// the /stats endpoint. A nil *Metrics discards observations.
type Metrics struct {
	registry *prometheus.Registry

	gridTime     prometheus.Histogram
	consumerTime prometheus.Histogram
	frames       prometheus.Counter
	occupied     prometheus.Gauge
	collisions   prometheus.Gauge
	maxPerCell   prometheus.Gauge

	mu   sync.Mutex
	last FrameRecord
}

// NewMetrics registers the gridbench metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	buckets := []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1}
	return &Metrics{
		registry: reg,
		gridTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridbench_grid_duration_seconds",
			Help:    "Grid pipeline time per frame",
			Buckets: buckets,
		}),
		consumerTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridbench_consumer_duration_seconds",
			Help:    "Particle step and encode time per frame",
			Buckets: buckets,
		}),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridbench_frames_total",
			Help: "Frames submitted",
		}),
		occupied: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridbench_occupied_cells",
			Help: "Occupied cells in the latest statistics readback",
		}),
		collisions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridbench_collisions",
			Help: "Colliding cells in the latest statistics readback",
		}),
		maxPerCell: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridbench_max_per_cell",
			Help: "Largest cell population in the latest statistics readback",
		}),
	}
}

// Observe records one frame.
func (m *Metrics) Observe(r FrameRecord) {
	if m == nil {
		return
	}
	m.frames.Inc()
	if r.GridMS > 0 {
		m.gridTime.Observe(r.GridMS / 1000)
	}
	m.consumerTime.Observe(r.ConsumerMS / 1000)
	if r.StatsFrame > 0 {
		m.occupied.Set(float64(r.OccupiedCells))
		m.collisions.Set(float64(r.Collisions))
		m.maxPerCell.Set(float64(r.MaxPerCell))
	}

	m.mu.Lock()
	m.last = r
	m.mu.Unlock()
}

// Last returns the most recent frame record.
func (m *Metrics) Last() FrameRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Handler routes /metrics, /stats and /health.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Last())
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

// NewServer returns an HTTP server for the metrics endpoints on addr.
func (m *Metrics) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
