// Package analysis turns the raw reports of one flight into a smoothed
// trajectory: a simplified horizontal path with consistent time and speed
// profiles along it, plus quality metrics describing the input.
package analysis

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/unklstewy/ads-trajectory/pkg/adsb"
	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/horizontal"
	"github.com/unklstewy/ads-trajectory/pkg/timeprofile"
	"github.com/unklstewy/ads-trajectory/pkg/tracking"
)

// ErrTooFewPositions is returned when fewer than two usable positions remain.
var ErrTooFewPositions = errors.New("too few positions")

// Settings controls trajectory analysis.
type Settings struct {
	// AcrossTrackToleranceNM is the largest distance a position may lie from
	// the simplified path
	AcrossTrackToleranceNM float64

	// MaxSpeedKnots bounds the smoothed ground speed
	MaxSpeedKnots float64

	// DuplicateToleranceNM is the along-path distance under which consecutive
	// positions are treated as the same position
	DuplicateToleranceNM float64

	// SmoothingWindow is the number of positions in each local regression.
	// It is reduced to the number of positions when larger.
	SmoothingWindow int

	// SmoothingIterations is the number of smoothing passes
	SmoothingIterations int

	// CleanPositions removes invalid reports before analysis
	CleanPositions bool

	// Cleaning configures position cleaning
	Cleaning tracking.CleaningConfig

	// FastProjection measures each position against the leg that covered it
	// during path simplification instead of searching the finished path.
	// It has no effect when ModelTurns is set.
	FastProjection bool

	// ModelTurns replaces the corner at each interior waypoint with a turn
	// estimated from the positions flown around it.
	ModelTurns bool
}

// DefaultSettings returns the standard analysis settings.
func DefaultSettings() Settings {
	return Settings{
		AcrossTrackToleranceNM: 0.25,
		MaxSpeedKnots:          tracking.DefaultMaxSpeedKnots,
		DuplicateToleranceNM:   0.01,
		SmoothingWindow:        5,
		SmoothingIterations:    3,
		CleanPositions:         true,
		Cleaning:               tracking.DefaultCleaningConfig(),
	}
}

// SmoothedTrajectory is the analysed trajectory of one flight from one source.
// Distances, Times, Speeds and Altitudes are parallel slices in path order.
type SmoothedTrajectory struct {
	FlightID string
	Source   string

	// StartTime is the time of the earliest position; Times are relative to it
	StartTime time.Time

	// Path is the simplified horizontal path
	Path *horizontal.Path

	// Distances along Path in nautical miles
	Distances []float64

	// Times are smoothed elapsed times in seconds
	Times []float64

	// Speeds are smoothed ground speeds in knots over the leg ending at each
	// position; the first is zero
	Speeds []float64

	// Altitudes in feet
	Altitudes []float64
}

// Waypoints returns the path waypoints as latitude/longitude pairs.
func (t *SmoothedTrajectory) Waypoints() []coordinates.Geographic {
	return t.Path.Geographic()
}

// Duration returns the smoothed flight time.
func (t *SmoothedTrajectory) Duration() time.Duration {
	if len(t.Times) == 0 {
		return 0
	}
	return time.Duration((t.Times[len(t.Times)-1] - t.Times[0]) * float64(time.Second))
}

// PositionAt returns the interpolated position at elapsed seconds.
func (t *SmoothedTrajectory) PositionAt(elapsed float64) coordinates.Geographic {
	radians := make([]float64, len(t.Distances))
	for i, d := range t.Distances {
		radians[i] = coordinates.NauticalMilesToRadians(d)
	}
	return tracking.PositionAtTime(t.Path, radians, t.Times, elapsed)
}

// Metrics describes the quality of the positions behind a trajectory.
type Metrics struct {
	Positions          int
	InvalidPositions   int
	DuplicatePositions int
	Waypoints          int

	// PositionPeriod is the mean time between positions in seconds
	PositionPeriod float64

	// Unordered is true when path distance order differs from time order
	Unordered bool

	AltitudeProfile AltitudeProfile

	// CrossTrackRMS is the RMS distance of positions from the path in NM
	CrossTrackRMS float64

	// TimeOffset and TimeStdDev summarise raw minus smoothed times in seconds
	TimeOffset float64
	TimeStdDev float64

	PathLengthNM    float64
	DurationSeconds float64
	MaxSpeedKnots   float64
}

// sample is one position with its path-relative values.
type sample struct {
	distance float64
	elapsed  float64
	altitude float64
}

// Analyse derives a smoothed trajectory from the reports of one flight and one
// source. Positions need not be sorted.
func Analyse(positions []adsb.Position, settings Settings) (*SmoothedTrajectory, Metrics, error) {
	var metrics Metrics
	metrics.Positions = len(positions)
	if len(positions) < 2 {
		return nil, metrics, fmt.Errorf("%w: %d", ErrTooFewPositions, len(positions))
	}

	sorted := make([]adsb.Position, len(positions))
	copy(sorted, positions)
	adsb.SortByTime(sorted)

	if settings.CleanPositions {
		invalid, counts := tracking.FindInvalidPositions(sorted, settings.Cleaning)
		sorted = tracking.Valid(sorted, invalid)
		metrics.InvalidPositions = counts.Total
		if len(sorted) < 2 {
			return nil, metrics, fmt.Errorf("%w: %d valid of %d", ErrTooFewPositions, len(sorted), len(positions))
		}
	}

	start := sorted[0].Time
	metrics.PositionPeriod = sorted[len(sorted)-1].Time.Sub(start).Seconds() / float64(len(sorted)-1)

	points := make([]coordinates.EcefVector, len(sorted))
	for i, p := range sorted {
		v, err := p.Ecef()
		if err != nil {
			return nil, metrics, fmt.Errorf("position %d: %w", i, err)
		}
		points[i] = v
	}

	tolerance := coordinates.NauticalMilesToRadians(settings.AcrossTrackToleranceNM)
	path, err := horizontal.DerivePath(points, tolerance, settings.FastProjection)
	if err != nil {
		return nil, metrics, fmt.Errorf("failed to derive path: %w", err)
	}
	if settings.ModelTurns {
		path = path.WithTurns(points, tolerance)
	}
	metrics.Waypoints = path.Len()
	metrics.PathLengthNM = coordinates.RadiansToNauticalMiles(path.Length())

	projections := path.AlongTrack()
	if projections == nil {
		projections = horizontal.ProjectDistances(path, points, tolerance)
	}
	metrics.CrossTrackRMS = coordinates.RadiansToNauticalMiles(horizontal.CrossTrackRMS(projections))

	samples := make([]sample, len(sorted))
	for i, p := range sorted {
		samples[i] = sample{
			distance: coordinates.RadiansToNauticalMiles(projections[i].Distance),
			elapsed:  p.Time.Sub(start).Seconds(),
			altitude: p.Altitude,
		}
	}

	// Positions are already in time order, so a stable sort on distance
	// orders by distance then time.
	metrics.Unordered = !sort.SliceIsSorted(samples, func(i, j int) bool {
		return samples[i].distance < samples[j].distance
	})
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].distance < samples[j].distance
	})

	distances := make([]float64, len(samples))
	for i, s := range samples {
		distances[i] = s.distance
	}
	duplicates := timeprofile.FindDuplicates(distances, settings.DuplicateToleranceNM)

	kept := make([]sample, 0, len(samples))
	for i, s := range samples {
		if duplicates[i] {
			metrics.DuplicatePositions++
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) < 2 {
		return nil, metrics, fmt.Errorf("%w: %w: %d distinct along the path",
			ErrTooFewPositions, timeprofile.ErrDegenerateInput, len(kept))
	}

	traj := &SmoothedTrajectory{
		FlightID:  sorted[0].FlightID,
		Source:    sorted[0].Source,
		StartTime: start,
		Path:      path,
		Distances: make([]float64, len(kept)),
		Altitudes: make([]float64, len(kept)),
	}
	raw := make([]float64, len(kept))
	for i, s := range kept {
		traj.Distances[i] = s.distance
		traj.Altitudes[i] = s.altitude
		raw[i] = s.elapsed
	}
	metrics.AltitudeProfile = traj.VerticalProfile().Type()

	series := timeprofile.TimeSeries{Distances: traj.Distances, Times: raw}
	window := min(max(settings.SmoothingWindow, 1), len(kept))
	smoothed, err := series.Smooth(window, settings.SmoothingIterations,
		settings.MaxSpeedKnots/coordinates.SecondsPerHour)
	if err != nil {
		return nil, metrics, fmt.Errorf("failed to smooth times: %w", err)
	}
	traj.Times = smoothed.Times

	traj.Speeds = smoothed.Speeds()
	for i := range traj.Speeds {
		traj.Speeds[i] *= coordinates.SecondsPerHour
		metrics.MaxSpeedKnots = max(metrics.MaxSpeedKnots, traj.Speeds[i])
	}

	residuals := series.Residuals(smoothed)
	metrics.TimeOffset = residuals.Mean
	metrics.TimeStdDev = residuals.StdDev
	metrics.DurationSeconds = traj.Duration().Seconds()

	return traj, metrics, nil
}
