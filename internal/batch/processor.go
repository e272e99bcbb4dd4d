// Package batch analyses many flights concurrently and stores the resulting
// trajectories.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/unklstewy/ads-trajectory/internal/db"
	"github.com/unklstewy/ads-trajectory/internal/logging"
	"github.com/unklstewy/ads-trajectory/internal/observability"
	"github.com/unklstewy/ads-trajectory/pkg/adsb"
	"github.com/unklstewy/ads-trajectory/pkg/analysis"
	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/timeprofile"
)

// TrajectoryStore persists analysed trajectories.
type TrajectoryStore interface {
	SaveTrajectory(ctx context.Context, t db.StoredTrajectory) error
}

// Options configures a Processor.
type Options struct {
	// Workers is the number of flights analysed at once
	Workers int

	// FlightsPerSecond paces flight starts; 0 means unlimited
	FlightsPerSecond float64

	// Burst is the number of flights allowed to start together
	Burst int

	// Settings are applied to every flight
	Settings analysis.Settings

	// Retry governs reloading positions after connection failures
	Retry db.RetryConfig
}

// Outcome is the result of processing one flight.
type Outcome struct {
	FlightID string
	Status   string

	// Trajectories holds one entry per source that could be analysed
	Trajectories []db.StoredTrajectory

	// Err is the first error met, if any
	Err error
}

// Processor analyses flights read from a position source.
type Processor struct {
	source  adsb.PositionSource
	store   TrajectoryStore
	opts    Options
	limiter *rate.Limiter
	metrics *observability.ProcessingCollector
	log     logging.Logger
}

// NewProcessor creates a processor. metrics and log may be nil.
func NewProcessor(source adsb.PositionSource, store TrajectoryStore, opts Options,
	metrics *observability.ProcessingCollector, log logging.Logger) *Processor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if log == nil {
		log = logging.Noop()
	}
	if opts.Retry == (db.RetryConfig{}) {
		opts.Retry = db.DefaultRetryConfig()
	}

	limit := rate.Inf
	if opts.FlightsPerSecond > 0 {
		limit = rate.Limit(opts.FlightsPerSecond)
	}
	burst := max(opts.Burst, 1)

	return &Processor{
		source:  source,
		store:   store,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		log:     log,
	}
}

// ProcessRange analyses every flight with reports in [from, to).
func (p *Processor) ProcessRange(ctx context.Context, runID uuid.UUID, from, to time.Time) (db.RunSummary, error) {
	flights, err := db.WithRetryResult(ctx, p.opts.Retry, func() ([]adsb.Flight, error) {
		return p.source.ListFlights(ctx, from, to)
	})
	if err != nil {
		return db.RunSummary{}, fmt.Errorf("failed to list flights: %w", err)
	}

	ctx, log := p.runContext(ctx, runID)
	log.Info(ctx, "flights selected",
		logging.Int("flights", len(flights)),
		logging.String("from", from.UTC().Format(time.RFC3339)),
		logging.String("to", to.UTC().Format(time.RFC3339)))

	ids := make([]string, len(flights))
	for i, f := range flights {
		ids[i] = f.FlightID
	}
	return p.ProcessFlights(ctx, runID, ids)
}

// ProcessFlights analyses the given flights concurrently. A flight that
// cannot be analysed is logged and counted; it does not stop the run.
// The returned error is non-nil only when ctx ends the run early.
func (p *Processor) ProcessFlights(ctx context.Context, runID uuid.UUID, flightIDs []string) (db.RunSummary, error) {
	var (
		mu      sync.Mutex
		summary db.RunSummary
	)

	ctx, _ = p.runContext(ctx, runID)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, id := range flightIDs {
		if err := p.limiter.Wait(gctx); err != nil {
			break
		}

		g.Go(func() error {
			outcome := p.ProcessFlight(gctx, runID, id)

			mu.Lock()
			defer mu.Unlock()
			summary.Total++
			switch outcome.Status {
			case observability.StatusAnalysed:
				summary.Analysed++
			case observability.StatusRejected:
				summary.Rejected++
			default:
				summary.Failed++
			}
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ProcessFlight loads, analyses and stores one flight. Each source of
// positions yields its own trajectory.
func (p *Processor) ProcessFlight(ctx context.Context, runID uuid.UUID, flightID string) Outcome {
	ctx, log := p.runContext(ctx, runID)
	log = log.With(logging.Flight(flightID))
	done := p.metrics.Started()
	defer done()

	outcome := Outcome{FlightID: flightID}
	result := observability.FlightResult{}
	start := time.Now()
	defer func() {
		result.Status = outcome.Status
		result.Duration = time.Since(start)
		p.metrics.ObserveFlight(result)
	}()

	positions, err := db.WithRetryResult(ctx, p.opts.Retry, func() ([]adsb.Position, error) {
		return p.source.LoadPositions(ctx, flightID)
	})
	if err != nil {
		log.Error(ctx, "failed to load positions", logging.Err(err))
		outcome.Status = observability.StatusFailed
		outcome.Err = err
		return outcome
	}

	groups, sources := adsb.GroupBySource(positions)
	if len(sources) == 0 {
		outcome.Status = observability.StatusRejected
		outcome.Err = analysis.ErrTooFewPositions
		log.Warn(ctx, "flight has no positions")
		return outcome
	}

	failed := 0
	for _, source := range sources {
		stored, metrics, status, err := p.analyseSource(ctx, runID, groups[source], log.With(logging.String("source", source)))
		result.Positions += metrics.Positions
		result.Invalid += metrics.InvalidPositions
		result.Duplicates += metrics.DuplicatePositions

		switch status {
		case observability.StatusAnalysed:
			outcome.Trajectories = append(outcome.Trajectories, stored)
			result.Waypoints = append(result.Waypoints, metrics.Waypoints)
		case observability.StatusFailed:
			failed++
		}
		if err != nil && outcome.Err == nil {
			outcome.Err = err
		}
	}

	switch {
	case len(outcome.Trajectories) > 0:
		outcome.Status = observability.StatusAnalysed
	case failed > 0:
		outcome.Status = observability.StatusFailed
	default:
		outcome.Status = observability.StatusRejected
	}
	return outcome
}

// analyseSource analyses and stores the positions of one flight from one
// source. It returns the analysis metrics even when the trajectory is not
// stored.
func (p *Processor) analyseSource(ctx context.Context, runID uuid.UUID, positions []adsb.Position,
	log logging.Logger) (db.StoredTrajectory, analysis.Metrics, string, error) {
	start := time.Now()

	traj, metrics, err := analysis.Analyse(positions, p.opts.Settings)
	if err != nil {
		log.Warn(ctx, "trajectory not analysed",
			logging.Err(err), logging.Int("positions", metrics.Positions),
			logging.Int("invalid", metrics.InvalidPositions))
		return db.StoredTrajectory{}, metrics, classify(err), err
	}

	stored := db.NewStoredTrajectory(runID, traj, metrics)
	if err := db.WithRetry(ctx, p.opts.Retry, func() error {
		return p.store.SaveTrajectory(ctx, stored)
	}); err != nil {
		log.Error(ctx, "failed to store trajectory", logging.Err(err))
		return db.StoredTrajectory{}, metrics, observability.StatusFailed, err
	}

	log.Debug(ctx, "trajectory analysed",
		logging.Int("positions", metrics.Positions),
		logging.Int("waypoints", metrics.Waypoints),
		logging.Float64("cross_track_rms_nm", metrics.CrossTrackRMS),
		logging.Float64("time_stddev_s", metrics.TimeStdDev),
		logging.String("altitude_profile", metrics.AltitudeProfile.String()),
		logging.Duration("elapsed", time.Since(start)))
	return stored, metrics, observability.StatusAnalysed, nil
}

// runContext returns ctx carrying the run ID and a logger annotated with it.
func (p *Processor) runContext(ctx context.Context, runID uuid.UUID) (context.Context, logging.Logger) {
	if logging.RunIDFromContext(ctx) == runID.String() {
		return ctx, logging.FromContext(ctx)
	}
	ctx, log := logging.WithRunLogger(logging.ContextWithRunID(ctx, runID.String()), p.log)
	return logging.ContextWithLogger(ctx, log), log
}

// classify separates unusable input from processing failures.
func classify(err error) string {
	switch {
	case errors.Is(err, analysis.ErrTooFewPositions),
		errors.Is(err, timeprofile.ErrDegenerateInput),
		errors.Is(err, coordinates.ErrInvalidCoordinate),
		errors.Is(err, timeprofile.ErrSpeedLimitInfeasible):
		return observability.StatusRejected
	default:
		return observability.StatusFailed
	}
}
