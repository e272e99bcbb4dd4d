// Package timeprofile derives consistent elapsed-time and ground-speed profiles
// along a path from noisy position timestamps.
//
// All functions are unit agnostic: speeds are expressed in the distance unit of
// the inputs per unit of time. Callers working in nautical miles and seconds
// multiply by coordinates.SecondsPerHour to obtain knots.
package timeprofile

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrDegenerateInput is returned for a series that cannot be smoothed:
	// mismatched lengths, decreasing distances, or fewer than two distinct
	// distances.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrInvalidWindow is returned when the smoothing window is smaller than one
	// sample or larger than the series.
	ErrInvalidWindow = errors.New("invalid smoothing window")

	// ErrInvalidIterations is returned for a negative iteration count.
	ErrInvalidIterations = errors.New("invalid iteration count")

	// ErrInvalidMaxSpeed is returned when the maximum speed is not positive.
	ErrInvalidMaxSpeed = errors.New("invalid maximum speed")

	// ErrSpeedLimitInfeasible is returned when the total distance cannot be
	// covered within the fixed start and end times at the maximum speed.
	ErrSpeedLimitInfeasible = errors.New("maximum speed cannot be satisfied")
)

// GroundSpeed returns legLength / duration, or zero when duration is not positive.
func GroundSpeed(legLength, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return legLength / duration
}

// LegSpeeds returns the ground speed over the leg ending at each sample.
// The first element is zero.
func LegSpeeds(distances, times []float64) []float64 {
	n := min(len(distances), len(times))
	speeds := make([]float64, n)
	for i := 1; i < n; i++ {
		speeds[i] = GroundSpeed(distances[i]-distances[i-1], times[i]-times[i-1])
	}
	return speeds
}

// ElapsedTimes returns the seconds elapsed since the first timestamp.
func ElapsedTimes(times []time.Time) []float64 {
	elapsed := make([]float64, len(times))
	for i, t := range times {
		elapsed[i] = t.Sub(times[0]).Seconds()
	}
	return elapsed
}

// FindDuplicates flags samples whose distance is within tolerance of the
// previous sample. The first sample is never a duplicate.
func FindDuplicates(distances []float64, tolerance float64) []bool {
	mask := make([]bool, len(distances))
	for i := 1; i < len(distances); i++ {
		mask[i] = math.Abs(distances[i]-distances[i-1]) < tolerance
	}
	return mask
}
