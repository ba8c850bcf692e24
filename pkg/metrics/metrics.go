// Package metrics exposes Prometheus collectors for the bear.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-ruxpin/pkg/actuator"
)

// Metrics owns a registry and every collector registered on it.
type Metrics struct {
	registry *prometheus.Registry

	ActuatorMoves       *prometheus.CounterVec
	ActuatorMoveErrors  *prometheus.CounterVec
	Performances        *prometheus.CounterVec
	PerformanceDuration *prometheus.HistogramVec
	Blinks              prometheus.Counter
	Busy                prometheus.Gauge
	AudioAmplitude      prometheus.Gauge
	WSClients           prometheus.Gauge
}

// New creates a Metrics with its own registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActuatorMoves: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruxpin_actuator_moves_total",
				Help: "Total number of actuator moves",
			},
			[]string{"actuator", "direction"},
		),
		ActuatorMoveErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruxpin_actuator_move_errors_total",
				Help: "Total number of actuator moves that failed",
			},
			[]string{"actuator"},
		),
		Performances: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruxpin_performances_total",
				Help: "Total number of speak and play performances",
			},
			[]string{"kind", "result"},
		),
		PerformanceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruxpin_performance_duration_seconds",
				Help:    "Performance duration in seconds",
				Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
			},
			[]string{"kind"},
		),
		Blinks: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ruxpin_blinks_total",
				Help: "Total number of completed blinks",
			},
		),
		Busy: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ruxpin_busy",
				Help: "1 while a performance is in progress",
			},
		),
		AudioAmplitude: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ruxpin_audio_amplitude",
				Help: "Loudness of the clip currently playing",
			},
		),
		WSClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ruxpin_ws_clients",
				Help: "Number of connected WebSocket clients",
			},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveMove implements actuator.MoveObserver.
func (m *Metrics) ObserveMove(name string, dir actuator.Direction, err error) {
	m.ActuatorMoves.WithLabelValues(name, dir.String()).Inc()
	if err != nil {
		m.ActuatorMoveErrors.WithLabelValues(name).Inc()
	}
}

// ObservePerformance records a finished speak or play.
func (m *Metrics) ObservePerformance(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Performances.WithLabelValues(kind, result).Inc()
	m.PerformanceDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetBusy sets the busy gauge.
func (m *Metrics) SetBusy(busy bool) {
	if busy {
		m.Busy.Set(1)
	} else {
		m.Busy.Set(0)
	}
}

// ObserveBlink counts a completed blink.
func (m *Metrics) ObserveBlink() {
	m.Blinks.Inc()
}

// SetAmplitude sets the amplitude gauge.
func (m *Metrics) SetAmplitude(v int) {
	m.AudioAmplitude.Set(float64(v))
}

var _ actuator.MoveObserver = (*Metrics)(nil)
