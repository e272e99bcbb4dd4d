package analysis

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/horizontal"
	"github.com/unklstewy/ads-trajectory/pkg/timeprofile"
)

// Default sampling intervals for Interpolate.
const (
	DefaultStraightInterval = 6 * time.Second
	DefaultTurnInterval     = time.Second
)

// minTimeStep is the smallest gap in seconds between interpolated positions.
const minTimeStep = 1e-3

// ErrInvalidInterval is returned for a sampling interval that is not positive.
var ErrInvalidInterval = errors.New("sampling interval must be positive")

// TrajectoryPoint is one interpolated position of a smoothed trajectory.
type TrajectoryPoint struct {
	Time time.Time

	// Distance along the path in NM
	Distance  float64
	Latitude  float64
	Longitude float64

	// Altitude in feet
	Altitude float64

	// GroundSpeed in knots
	GroundSpeed float64

	// GroundTrack in degrees from true north
	GroundTrack float64

	// VerticalSpeed in feet per minute
	VerticalSpeed float64
}

// VerticalProfile returns the altitude profile of the trajectory.
func (t *SmoothedTrajectory) VerticalProfile() VerticalProfile {
	return NewVerticalProfile(t.Distances, t.Altitudes)
}

// Interpolate samples the trajectory every straightInterval along straight
// sections and every turnInterval while turning. Every waypoint and turn
// boundary is included. Elapsed time and distance are related by monotone
// cubics fitted to the smoothed time profile, so positions never move
// backwards along the path.
func (t *SmoothedTrajectory) Interpolate(straightInterval, turnInterval time.Duration) ([]TrajectoryPoint, error) {
	if straightInterval <= 0 || turnInterval <= 0 {
		return nil, fmt.Errorf("%w: straight %s, turn %s", ErrInvalidInterval, straightInterval, turnInterval)
	}
	if err := strictlyIncreasing(t.Distances, t.Times); err != nil {
		return nil, err
	}

	var byDistance, byTime interp.FritschButland
	if err := byDistance.Fit(t.Distances, t.Times); err != nil {
		return nil, fmt.Errorf("failed to fit time profile: %w", err)
	}
	if err := byTime.Fit(t.Times, t.Distances); err != nil {
		return nil, fmt.Errorf("failed to fit distance profile: %w", err)
	}

	sections := t.Path.Sections()
	sectionTimes := make([]float64, len(sections))
	for i, s := range sections {
		sectionTimes[i] = byDistance.Predict(coordinates.RadiansToNauticalMiles(s.Distance))
	}
	times := interpolationTimes(sectionTimes, sections,
		straightInterval.Seconds(), turnInterval.Seconds())

	profile := t.VerticalProfile()
	points := make([]TrajectoryPoint, len(times))
	for i, elapsed := range times {
		distance := byTime.Predict(elapsed)
		radians := coordinates.NauticalMilesToRadians(distance)
		lat, lon := coordinates.ToLatLon(t.Path.Position(radians))
		points[i] = TrajectoryPoint{
			Time:        t.StartTime.Add(time.Duration(elapsed * float64(time.Second))),
			Distance:    distance,
			Latitude:    lat,
			Longitude:   lon,
			Altitude:    profile.Interpolate(distance),
			GroundTrack: t.Path.GroundTrack(radians),
		}
	}

	for i := 1; i < len(points); i++ {
		dt := times[i] - times[i-1]
		points[i-1].GroundSpeed = coordinates.SecondsPerHour * (points[i].Distance - points[i-1].Distance) / dt
		points[i-1].VerticalSpeed = 60 * (points[i].Altitude - points[i-1].Altitude) / dt
	}
	if n := len(points); n > 1 {
		points[n-1].GroundSpeed = points[n-2].GroundSpeed
		points[n-1].VerticalSpeed = points[n-2].VerticalSpeed
	}
	return points, nil
}

// strictlyIncreasing checks that distances and times can be fitted.
func strictlyIncreasing(distances, times []float64) error {
	if len(distances) < 2 || len(times) != len(distances) {
		return fmt.Errorf("%w: %d distances and %d times", timeprofile.ErrDegenerateInput, len(distances), len(times))
	}
	for i := 1; i < len(distances); i++ {
		if distances[i] <= distances[i-1] || times[i] <= times[i-1] {
			return fmt.Errorf("%w: profile not strictly increasing at %d", timeprofile.ErrDegenerateInput, i)
		}
	}
	return nil
}

// interpolationTimes returns the section times with extra times inserted
// every straight seconds between them, or every turn seconds after a turn
// start. Times closer than minTimeStep to the previous one are skipped.
func interpolationTimes(sectionTimes []float64, sections []horizontal.Section, straight, turn float64) []float64 {
	times := []float64{sectionTimes[0]}
	for i := 1; i < len(sectionTimes); i++ {
		interval := straight
		if sections[i-1].Type == horizontal.SectionTurnStart {
			interval = turn
		}

		next := sectionTimes[i]
		for at := times[len(times)-1] + interval; at < next-minTimeStep; at += interval {
			times = append(times, at)
		}
		if next > times[len(times)-1]+minTimeStep {
			times = append(times, next)
		}
	}
	return times
}
