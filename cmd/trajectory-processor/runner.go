package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/unklstewy/ads-trajectory/internal/batch"
	"github.com/unklstewy/ads-trajectory/internal/db"
	"github.com/unklstewy/ads-trajectory/internal/observability"
	"github.com/unklstewy/ads-trajectory/pkg/analysis"
	"github.com/unklstewy/ads-trajectory/pkg/config"
	"github.com/unklstewy/ads-trajectory/pkg/tracking"
)

// runner drives analysis runs against the database.
type runner struct {
	db           *db.DB
	trajectories *db.TrajectoryRepository
	processor    *batch.Processor
	settings     config.TrajectoryConfig
	lookback     time.Duration
	keepRuns     time.Duration
	positions    time.Duration

	// Statistics
	totalRuns     int
	totalAnalysed int
}

// parseWindow resolves the -from and -to flags. Empty values default to
// now - lookback and now.
func parseWindow(fromStr, toStr string, lookback time.Duration, now time.Time) (time.Time, time.Time, error) {
	to := now
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
		to = t
	}

	from := to.Add(-lookback)
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
		from = t
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("window start %s is not before end %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from.UTC(), to.UTC(), nil
}

// runStatus maps the error that ended a run to its stored status.
func runStatus(err error) string {
	switch {
	case err == nil:
		return db.RunFinished
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return db.RunCancelled
	default:
		return db.RunFailed
	}
}

// runWindow processes every flight with reports in [from, to) as one run.
func (r *runner) runWindow(ctx context.Context, from, to time.Time) error {
	run, err := r.trajectories.CreateRun(ctx, r.settings)
	if err != nil {
		return err
	}
	log.Printf("\nRun %s: %s to %s", run.ID, from.Format(time.RFC3339), to.Format(time.RFC3339))

	start := time.Now()
	summary, runErr := r.processor.ProcessRange(ctx, run.ID, from, to)

	// Record the outcome even when ctx was cancelled.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.trajectories.FinishRun(finishCtx, run.ID, runStatus(runErr), summary); err != nil {
		log.Printf("✗ Failed to record run: %v", err)
	}

	r.totalRuns++
	r.totalAnalysed += summary.Analysed

	if runErr != nil {
		log.Printf("✗ Run %s stopped after %d flights: %v", run.ID, summary.Total, runErr)
		return runErr
	}
	log.Printf("✓ Run %s: %d flights, %d analysed, %d rejected, %d failed (%v)",
		run.ID, summary.Total, summary.Analysed, summary.Rejected, summary.Failed,
		time.Since(start).Round(time.Millisecond))
	return nil
}

// runEvery processes the flights seen since the previous cycle, starting
// with one lookback period, until ctx is cancelled.
func (r *runner) runEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	to := time.Now().UTC()
	if err := r.runWindow(ctx, to.Add(-r.lookback), to); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			from := to
			to = time.Now().UTC()
			if err := r.runWindow(ctx, from, to); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("✗ Cycle failed, will retry next interval: %v", err)
				to = from
				continue
			}
			r.cleanup(ctx)
			r.printStats(ctx)
		}
	}
}

// runFlight analyses one flight and prints its trajectories.
func (r *runner) runFlight(ctx context.Context, flightID string) error {
	run, err := r.trajectories.CreateRun(ctx, r.settings)
	if err != nil {
		return err
	}

	outcome := r.processor.ProcessFlight(ctx, run.ID, flightID)

	summary := db.RunSummary{Total: 1}
	switch {
	case len(outcome.Trajectories) > 0:
		summary.Analysed = 1
	case outcome.Status == observability.StatusRejected:
		summary.Rejected = 1
	default:
		summary.Failed = 1
	}
	if err := r.trajectories.FinishRun(context.WithoutCancel(ctx), run.ID, db.RunFinished, summary); err != nil {
		log.Printf("✗ Failed to record run: %v", err)
	}

	if len(outcome.Trajectories) == 0 {
		return fmt.Errorf("flight %s %s: %w", flightID, outcome.Status, outcome.Err)
	}

	for _, t := range outcome.Trajectories {
		m := t.Metrics
		log.Printf("\n✓ %s (%s) starting %s", t.FlightID, t.Source, t.StartTime.Format(time.RFC3339))
		log.Printf("  Positions: %d (%d invalid, %d duplicate), period %.1fs",
			m.Positions, m.InvalidPositions, m.DuplicatePositions, m.PositionPeriod)
		log.Printf("  Path: %d waypoints, %.1f NM, RMS cross-track %.3f NM",
			m.Waypoints, m.PathLengthNM, m.CrossTrackRMS)
		log.Printf("  Time: %.0fs, offset %.2fs, SD %.2fs, max speed %.0f kt, %s",
			m.DurationSeconds, m.TimeOffset, m.TimeStdDev, m.MaxSpeedKnots, m.AltitudeProfile)
		if m.Unordered {
			log.Println("  ⚠️  Positions were out of order along the path")
		}
		for i, w := range t.Waypoints {
			turn := 0.0
			if i > 0 && i < len(t.Waypoints)-1 {
				turn = tracking.TurnAngle(t.Waypoints[i-1], w, t.Waypoints[i+1])
			}
			log.Printf("    %2d  %9.4f %10.4f  turn %+6.1f°", i, w.Latitude, w.Longitude, turn)
		}
		if err := r.printProfile(t); err != nil {
			log.Printf("  ✗ %v", err)
		}
	}
	return nil
}

// printProfile prints the vertical profile of a trajectory and, with
// -positions, its interpolated positions.
func (r *runner) printProfile(t db.StoredTrajectory) error {
	traj, err := t.Trajectory()
	if err != nil {
		return fmt.Errorf("failed to rebuild trajectory: %w", err)
	}

	if len(traj.Distances) == 0 {
		return nil
	}
	profile := traj.VerticalProfile()
	lowest, highest := profile.AltitudeRange(0, traj.Distances[len(traj.Distances)-1])
	log.Printf("  Altitude: %.0f to %.0f ft, top of climb %.1f NM, top of descent %.1f NM",
		lowest, highest, profile.TopOfClimbDistance(), profile.TopOfDescentDistance())

	if r.positions <= 0 {
		return nil
	}
	points, err := traj.Interpolate(r.positions, min(r.positions, analysis.DefaultTurnInterval))
	if err != nil {
		return fmt.Errorf("failed to interpolate positions: %w", err)
	}
	log.Printf("  %d positions:", len(points))
	for _, p := range points {
		log.Printf("    %s  %8.2f NM  %9.4f %10.4f  %6.0f ft  %4.0f kt  %5.1f°  %+6.0f ft/min",
			p.Time.UTC().Format("15:04:05"), p.Distance, p.Latitude, p.Longitude,
			p.Altitude, p.GroundSpeed, p.GroundTrack, p.VerticalSpeed)
	}
	return nil
}

// cleanup removes old runs when -keep-runs is set.
func (r *runner) cleanup(ctx context.Context) {
	if r.keepRuns <= 0 {
		return
	}
	n, err := r.db.CleanupOldRuns(ctx, r.keepRuns)
	if err != nil {
		log.Printf("Error during cleanup: %v", err)
		return
	}
	if n > 0 {
		log.Printf("✓ Cleanup removed %d old runs", n)
	}
}

// printStats displays current statistics.
func (r *runner) printStats(ctx context.Context) {
	stats, err := r.db.GetStats(ctx)
	if err != nil {
		log.Printf("Error getting stats: %v", err)
		return
	}
	log.Printf("📊 Stats: %d positions, %d flights | %d runs, %d trajectories stored | %d runs, %d analysed this session",
		stats.Positions, stats.Flights, stats.Runs, stats.Trajectories, r.totalRuns, r.totalAnalysed)
}
