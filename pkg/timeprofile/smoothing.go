package timeprofile

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowBandwidthFactor widens the tricube kernel beyond the furthest sample
// in a window so that every sample in it carries some weight.
const WindowBandwidthFactor = 1.5

// SmoothTimes returns elapsed times smoothed against along-path distance.
//
// Each of the given iterations re-estimates every interior time with a
// tricube weighted linear regression of time on distance over windowSize
// samples centred on it, then applies the speed constraint. The constraint is
// applied once even when iterations is zero. It raises each time so that the
// leg into it is flown no faster than maxSpeed, and caps it so that the rest
// of the path can still be flown at maxSpeed before the last time.
//
// The first and last times are preserved exactly, the result is
// non-decreasing and no leg exceeds maxSpeed. The inputs are not modified.
//
// Parameters:
//   - distances: non-decreasing along-path distances, at least two distinct
//   - elapsedTimes: times of each sample, same length as distances
//   - windowSize: samples per local regression, 1..len(distances)
//   - iterations: number of smoothing passes
//   - maxSpeed: maximum ground speed in distance units per time unit
//
// Returns the smoothed times, or an error wrapping ErrDegenerateInput,
// ErrInvalidWindow, ErrInvalidIterations, ErrInvalidMaxSpeed or
// ErrSpeedLimitInfeasible.
func SmoothTimes(distances, elapsedTimes []float64, windowSize, iterations int, maxSpeed float64) ([]float64, error) {
	n := len(distances)
	if n < 2 {
		return nil, fmt.Errorf("%w: %d samples", ErrDegenerateInput, n)
	}
	if len(elapsedTimes) != n {
		return nil, fmt.Errorf("%w: %d distances but %d times", ErrDegenerateInput, n, len(elapsedTimes))
	}
	if windowSize < 1 || windowSize > n {
		return nil, fmt.Errorf("%w: %d for %d samples", ErrInvalidWindow, windowSize, n)
	}
	if iterations < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}
	if !(maxSpeed > 0) || math.IsInf(maxSpeed, 0) {
		return nil, fmt.Errorf("%w: %f", ErrInvalidMaxSpeed, maxSpeed)
	}
	for i := range n {
		if math.IsNaN(distances[i]) || math.IsInf(distances[i], 0) ||
			math.IsNaN(elapsedTimes[i]) || math.IsInf(elapsedTimes[i], 0) {
			return nil, fmt.Errorf("%w: non-finite value at %d", ErrDegenerateInput, i)
		}
		if i > 0 && distances[i] < distances[i-1] {
			return nil, fmt.Errorf("%w: distance decreases at %d", ErrDegenerateInput, i)
		}
	}
	if distances[n-1] == distances[0] {
		return nil, fmt.Errorf("%w: all %d samples at distance %g", ErrDegenerateInput, n, distances[0])
	}

	limits := newSpeedLimits(distances, maxSpeed)
	duration := elapsedTimes[n-1] - elapsedTimes[0]
	if limits.total > duration {
		return nil, fmt.Errorf("%w: %g over %g needs at least %g", ErrSpeedLimitInfeasible,
			distances[n-1]-distances[0], duration, limits.total)
	}

	smoothed := make([]float64, n)
	copy(smoothed, elapsedTimes)

	for range iterations {
		smoothed = limits.apply(localRegression(distances, smoothed, windowSize))
	}
	if iterations == 0 {
		smoothed = limits.apply(smoothed)
	}

	return smoothed, nil
}

// localRegression estimates each interior time from a weighted linear fit of
// its window. The first and last samples are copied unchanged.
func localRegression(distances, times []float64, windowSize int) []float64 {
	n := len(times)
	out := make([]float64, n)
	out[0], out[n-1] = times[0], times[n-1]

	x := make([]float64, windowSize)
	weights := make([]float64, windowSize)

	for i := 1; i < n-1; i++ {
		start := min(max(0, i-windowSize/2), n-windowSize)
		y := times[start : start+windowSize]

		for j := range x {
			x[j] = distances[start+j] - distances[i]
		}

		if floats.Max(x) == floats.Min(x) {
			out[i] = stat.Mean(y, nil)
			continue
		}

		tricube(x, weights)
		alpha, _ := stat.LinearRegression(x, y, weights, false)
		out[i] = alpha
	}
	return out
}

// tricube fills weights with the tricube kernel of the offsets x.
func tricube(x, weights []float64) {
	bandwidth := WindowBandwidthFactor * math.Max(math.Abs(floats.Min(x)), math.Abs(floats.Max(x)))
	for j, v := range x {
		u := math.Abs(v) / bandwidth
		c := 1 - u*u*u
		weights[j] = c * c * c
	}
}

// speedLimits holds the minimum leg durations at the maximum speed.
type speedLimits struct {
	// minDuration[i] is the shortest time to fly the leg ending at sample i
	minDuration []float64

	// remaining[i] is the shortest time to fly from sample i to the end
	remaining []float64

	total float64
}

func newSpeedLimits(distances []float64, maxSpeed float64) speedLimits {
	n := len(distances)
	l := speedLimits{
		minDuration: make([]float64, n),
		remaining:   make([]float64, n),
	}
	for i := 1; i < n; i++ {
		l.minDuration[i] = (distances[i] - distances[i-1]) / maxSpeed
	}
	for i := n - 2; i >= 0; i-- {
		l.remaining[i] = l.remaining[i+1] + l.minDuration[i+1]
	}
	l.total = l.remaining[0]
	return l
}

// apply returns times adjusted so that no leg is faster than the limit while
// keeping the first and last times fixed.
func (l speedLimits) apply(times []float64) []float64 {
	n := len(times)
	out := make([]float64, n)
	out[0], out[n-1] = times[0], times[n-1]

	for i := 1; i < n-1; i++ {
		earliest := out[i-1] + l.minDuration[i]
		latest := out[n-1] - l.remaining[i]
		out[i] = math.Min(math.Max(times[i], earliest), latest)
	}
	return out
}
