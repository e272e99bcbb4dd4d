// Package observability exposes Prometheus metrics for trajectory processing.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flight outcomes used as the status label of trajectory_flights_total.
const (
	StatusAnalysed = "analysed"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// FlightResult describes one analysed (or rejected) flight. Position counts
// are summed over every source of the flight.
type FlightResult struct {
	Status     string
	Duration   time.Duration
	Positions  int
	Invalid    int
	Duplicates int

	// Waypoints holds the waypoint count of each trajectory produced
	Waypoints []int
}

// ProcessingCollector bundles the trajectory processing metrics.
type ProcessingCollector struct {
	gatherer prometheus.Gatherer

	Flights           *prometheus.CounterVec
	ProcessingSeconds prometheus.Histogram
	Positions         *prometheus.CounterVec
	Waypoints         prometheus.Histogram
	InFlight          prometheus.Gauge
}

// NewProcessingCollector registers processing metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewProcessingCollector(reg prometheus.Registerer) (*ProcessingCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	flights, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trajectory_flights_total",
		Help: "Flights processed, labeled by outcome.",
	}, []string{"status"}), "trajectory_flights_total")
	if err != nil {
		return nil, err
	}

	seconds, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trajectory_processing_seconds",
		Help:    "Time taken to analyse one flight in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}), "trajectory_processing_seconds")
	if err != nil {
		return nil, err
	}

	positions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trajectory_positions_total",
		Help: "Positions read, labeled by kind (total, invalid, duplicate).",
	}, []string{"kind"}), "trajectory_positions_total")
	if err != nil {
		return nil, err
	}

	waypoints, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trajectory_waypoints",
		Help:    "Number of waypoints in each trajectory produced.",
		Buckets: prometheus.ExponentialBuckets(2, 2, 8),
	}), "trajectory_waypoints")
	if err != nil {
		return nil, err
	}

	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trajectory_flights_in_progress",
		Help: "Flights currently being analysed.",
	}), "trajectory_flights_in_progress")
	if err != nil {
		return nil, err
	}

	return &ProcessingCollector{
		gatherer:          gatherer,
		Flights:           flights,
		ProcessingSeconds: seconds,
		Positions:         positions,
		Waypoints:         waypoints,
		InFlight:          inFlight,
	}, nil
}

// Started marks a flight as in progress and returns a func that clears it.
func (c *ProcessingCollector) Started() func() {
	if c == nil {
		return func() {}
	}
	c.InFlight.Inc()
	return c.InFlight.Dec
}

// ObserveFlight records the outcome of one flight.
func (c *ProcessingCollector) ObserveFlight(r FlightResult) {
	if c == nil {
		return
	}
	c.Flights.WithLabelValues(r.Status).Inc()
	c.ProcessingSeconds.Observe(r.Duration.Seconds())
	c.Positions.WithLabelValues("total").Add(float64(r.Positions))
	c.Positions.WithLabelValues("invalid").Add(float64(r.Invalid))
	c.Positions.WithLabelValues("duplicate").Add(float64(r.Duplicates))
	for _, n := range r.Waypoints {
		c.Waypoints.Observe(float64(n))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ProcessingCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewMux serves /metrics and a /health check.
func (c *ProcessingCollector) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	return mux
}

// Serve runs the metrics server on addr until ctx is cancelled.
func (c *ProcessingCollector) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
