// Package metrics exports run and directive counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callrunner/callrunner/internal/directive"
	"github.com/callrunner/callrunner/internal/runner"
)

// Collector implements runner.Observer and records Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	directivesTotal   *prometheus.CounterVec
	directiveDuration *prometheus.HistogramVec
	activeDirectives  prometheus.Gauge
	phase             *prometheus.GaugeVec
	lastRun           prometheus.Gauge
}

var _ runner.Observer = (*Collector)(nil)

var phases = []runner.Phase{runner.PhaseDiscover, runner.PhaseFetch, runner.PhaseExecute, runner.PhaseAggregate}

// NewCollector creates a collector on its own registry, which also carries
// the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callrunner_runs_total",
				Help: "Total number of manifest runs by response status code",
			},
			[]string{"status_code"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callrunner_run_duration_seconds",
				Help:    "Wall-clock duration of manifest runs",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 3600},
			},
		),
		directivesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callrunner_directives_total",
				Help: "Total number of directives executed by outcome status",
			},
			[]string{"status"},
		),
		directiveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callrunner_directive_duration_seconds",
				Help:    "Time from submission to terminal status per directive",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		activeDirectives: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callrunner_active_directives",
				Help: "Directives currently submitted and being polled",
			},
		),
		phase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callrunner_run_phase",
				Help: "1 for the phase the current run is in",
			},
			[]string{"phase"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callrunner_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) OnPhase(_ string, p runner.Phase) {
	for _, known := range phases {
		v := 0.0
		if known == p {
			v = 1
		}
		c.phase.WithLabelValues(string(known)).Set(v)
	}
}

func (c *Collector) OnDirectiveStart(string, int, int, directive.Directive) {
	c.activeDirectives.Inc()
}

func (c *Collector) OnDirectiveDone(_ string, _ int, er runner.ExecutionResult) {
	c.activeDirectives.Dec()
	status := string(er.Status)
	c.directivesTotal.WithLabelValues(status).Inc()
	if er.Duration > 0 {
		c.directiveDuration.WithLabelValues(status).Observe(er.Duration.Seconds())
	}
}

func (c *Collector) OnRunDone(r *runner.Result) {
	c.runsTotal.WithLabelValues(strconv.Itoa(r.StatusCode())).Inc()
	c.runDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	c.lastRun.Set(float64(r.FinishedAt.Unix()))
	for _, p := range phases {
		c.phase.WithLabelValues(string(p)).Set(0)
	}
}
