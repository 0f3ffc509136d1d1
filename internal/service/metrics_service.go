package service

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
)

const metricsNamespace = "proctor"

var solveBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}

type httpMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

type cacheMetrics struct {
	lookups  *prometheus.HistogramVec
	writes   prometheus.Histogram
	hitRatio prometheus.Gauge
}

type solverMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	relaxations *prometheus.CounterVec
	objective   prometheus.Gauge
	inFlight    prometheus.Gauge
}

// MetricsService owns a private Prometheus registry with HTTP, cache and solver collectors
// plus the Go runtime and process collectors. Every method is safe on a nil receiver.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler
	http     httpMetrics
	cache    cacheMetrics
	solver   solverMetrics

	cacheHits, cacheMisses atomic.Uint64
}

func NewMetricsService() *MetricsService {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &MetricsService{
		registry: reg,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
	m.http = httpMetrics{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency by route template.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		total: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route template and status.",
		}, []string{"method", "route", "status"}),
	}
	m.cache = cacheMetrics{
		lookups: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "lookup_seconds",
			Help: "Cache lookup latency by result.", Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"result"}),
		writes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "write_seconds",
			Help: "Cache write latency.", Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		hitRatio: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "cache", Name: "hit_ratio",
			Help: "Hits over lookups since start.",
		}),
	}
	m.solver = solverMetrics{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "solver", Name: "duration_seconds",
			Help: "Solver wall time by outcome.", Buckets: solveBuckets,
		}, []string{"status"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "solver", Name: "runs_total",
			Help: "Solver runs by outcome.",
		}, []string{"status"}),
		relaxations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "solver", Name: "relaxations_total",
			Help: "Relaxation steps kept by feasible solves.",
		}, []string{"kind"}),
		objective: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "solver", Name: "last_objective",
			Help: "Objective of the latest feasible solve.",
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "solver", Name: "in_flight",
			Help: "Solver runs currently executing.",
		}),
	}
	return m
}

// Handler serves the registry; a nil service answers 503.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest satisfies middleware.RequestObserver.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.http.duration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.http.total.WithLabelValues(method, route, code).Inc()
}

func (m *MetricsService) RecordCacheOperation(hit bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	m.cache.lookups.WithLabelValues(result).Observe(elapsed.Seconds())

	hits := m.cacheHits.Load()
	if total := hits + m.cacheMisses.Load(); total > 0 {
		m.cache.hitRatio.Set(float64(hits) / float64(total))
	}
}

func (m *MetricsService) ObserveCacheWrite(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cache.writes.Observe(elapsed.Seconds())
}

// SolveStarted bumps the in-flight gauge; call the returned func when the run ends.
func (m *MetricsService) SolveStarted() func() {
	if m == nil {
		return func() {}
	}
	m.solver.inFlight.Inc()
	return m.solver.inFlight.Dec
}

// ObserveSolve records one run. A nil result is counted under "error".
func (m *MetricsService) ObserveSolve(result *scheduler.Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "error"
	if result != nil {
		status = string(result.Status)
	}
	m.solver.duration.WithLabelValues(status).Observe(elapsed.Seconds())
	m.solver.runs.WithLabelValues(status).Inc()
	if result == nil || !result.Feasible() {
		return
	}
	m.solver.objective.Set(float64(result.Objective))
	for _, step := range result.Relaxations {
		m.solver.relaxations.WithLabelValues(string(step.Kind)).Inc()
	}
}
