package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
)

func TestMetricsServiceCacheHitRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.InDelta(t, 0.5, testutil.ToFloat64(m.cache.hitRatio), 1e-9)
	assert.Equal(t, 2, testutil.CollectAndCount(m.cache.lookups))
}

func TestMetricsServiceObserveSolve(t *testing.T) {
	m := NewMetricsService()
	done := m.SolveStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solver.inFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.solver.inFlight))

	m.ObserveSolve(&scheduler.Result{
		Status:      scheduler.StatusFeasible,
		Objective:   1234,
		Relaxations: []scheduler.RelaxationStep{{Kind: scheduler.RelaxGradeFlexibility}},
	}, 2*time.Second)
	m.ObserveSolve(&scheduler.Result{Status: scheduler.StatusInfeasible}, time.Second)
	m.ObserveSolve(nil, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.solver.runs.WithLabelValues("feasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solver.runs.WithLabelValues("infeasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solver.runs.WithLabelValues("error")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.solver.objective))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solver.relaxations.WithLabelValues(string(scheduler.RelaxGradeFlexibility))))
}

func TestMetricsServiceHandlerExposesNamespacedSeries(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/sessions/:id", http.StatusOK, 20*time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `proctor_http_requests_total{method="GET",route="/api/v1/sessions/:id",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsServiceNilReceiver(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveCacheWrite(time.Millisecond)
	m.ObserveSolve(nil, time.Second)
	m.SolveStarted()()
	assert.Nil(t, m.Registry())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
