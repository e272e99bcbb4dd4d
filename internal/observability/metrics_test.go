package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveFlightRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewProcessingCollector(reg)
	if err != nil {
		t.Fatalf("NewProcessingCollector: %v", err)
	}

	collector.ObserveFlight(FlightResult{
		Status:     StatusAnalysed,
		Duration:   20 * time.Millisecond,
		Positions:  120,
		Invalid:    3,
		Duplicates: 2,
		Waypoints:  []int{9},
	})
	collector.ObserveFlight(FlightResult{Status: StatusRejected, Positions: 1})

	if got := testutil.ToFloat64(collector.Flights.WithLabelValues(StatusAnalysed)); got != 1 {
		t.Fatalf("trajectory_flights_total{analysed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Flights.WithLabelValues(StatusRejected)); got != 1 {
		t.Fatalf("trajectory_flights_total{rejected} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Positions.WithLabelValues("total")); got != 121 {
		t.Fatalf("trajectory_positions_total{total} = %v, want 121", got)
	}
	if got := testutil.ToFloat64(collector.Positions.WithLabelValues("invalid")); got != 3 {
		t.Fatalf("trajectory_positions_total{invalid} = %v, want 3", got)
	}
	if count := histogramSampleCount(t, reg, "trajectory_processing_seconds"); count != 2 {
		t.Fatalf("trajectory_processing_seconds sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "trajectory_waypoints"); count != 1 {
		t.Fatalf("trajectory_waypoints sample_count = %d, want 1", count)
	}
}

func TestStartedTracksInProgress(t *testing.T) {
	collector, err := NewProcessingCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewProcessingCollector: %v", err)
	}

	done := collector.Started()
	if got := testutil.ToFloat64(collector.InFlight); got != 1 {
		t.Fatalf("in progress = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(collector.InFlight); got != 0 {
		t.Fatalf("in progress = %v, want 0", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewProcessingCollector(reg)
	if err != nil {
		t.Fatalf("first NewProcessingCollector: %v", err)
	}
	second, err := NewProcessingCollector(reg)
	if err != nil {
		t.Fatalf("second NewProcessingCollector: %v", err)
	}

	first.ObserveFlight(FlightResult{Status: StatusFailed})
	if got := testutil.ToFloat64(second.Flights.WithLabelValues(StatusFailed)); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *ProcessingCollector
	collector.ObserveFlight(FlightResult{Status: StatusAnalysed})
	collector.Started()()
}

func TestMuxServesMetricsAndHealth(t *testing.T) {
	collector, err := NewProcessingCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewProcessingCollector: %v", err)
	}
	collector.ObserveFlight(FlightResult{Status: StatusAnalysed, Waypoints: []int{4}})
	mux := collector.NewMux()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"trajectory_flights_total",
		"trajectory_processing_seconds",
		"trajectory_positions_total",
		"trajectory_waypoints",
		"trajectory_flights_in_progress",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("/health = %d %q", rr.Code, rr.Body.String())
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := histogram(m); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}

func histogram(m *dto.Metric) *dto.Histogram {
	return m.GetHistogram()
}
