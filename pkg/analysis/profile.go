package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// VerticalProfile is altitude as a function of distance along a path.
// Distances are in nautical miles and non-decreasing; altitudes are in feet.
type VerticalProfile struct {
	Distances []float64
	Altitudes []float64
}

// NewVerticalProfile builds the profile of altitudes at distances. Positions
// inside cruise sections are dropped: interpolating between the ends of a
// section reproduces them.
func NewVerticalProfile(distances, altitudes []float64) VerticalProfile {
	n := min(len(distances), len(altitudes))
	inside := FindCruisePositions(n, FindCruiseSections(altitudes[:n]))

	profile := VerticalProfile{
		Distances: make([]float64, 0, n),
		Altitudes: make([]float64, 0, n),
	}
	for i := range n {
		if inside[i] {
			continue
		}
		profile.Distances = append(profile.Distances, distances[i])
		profile.Altitudes = append(profile.Altitudes, altitudes[i])
	}
	return profile
}

// Len returns the number of profile points.
func (p VerticalProfile) Len() int {
	return len(p.Distances)
}

// Type classifies the profile.
func (p VerticalProfile) Type() AltitudeProfile {
	return ClassifyAltitudeProfile(p.Altitudes)
}

// Interpolate returns the altitude at distance, extrapolating linearly beyond
// either end of the profile.
func (p VerticalProfile) Interpolate(distance float64) float64 {
	switch p.Len() {
	case 0:
		return 0
	case 1:
		return p.Altitudes[0]
	}

	i := sort.SearchFloat64s(p.Distances, distance) - 1
	i = max(0, min(i, p.Len()-2))
	span := p.Distances[i+1] - p.Distances[i]
	if span <= 0 {
		return p.Altitudes[i]
	}
	ratio := (distance - p.Distances[i]) / span
	return p.Altitudes[i] + ratio*(p.Altitudes[i+1]-p.Altitudes[i])
}

// AltitudeRange returns the lowest and highest altitudes flown between the
// start and finish distances.
func (p VerticalProfile) AltitudeRange(start, finish float64) (lowest, highest float64) {
	_, altitudes := p.section(start, finish)
	if len(altitudes) == 0 {
		return 0, 0
	}
	return floats.Min(altitudes), floats.Max(altitudes)
}

// TopOfClimbIndex returns the index of the first highest altitude.
func (p VerticalProfile) TopOfClimbIndex() int {
	if p.Len() == 0 {
		return 0
	}
	return floats.MaxIdx(p.Altitudes)
}

// TopOfDescentIndex returns the index at which the final descent from the
// highest altitude begins: the top of climb, or the point after it when the
// aircraft stayed level there.
func (p VerticalProfile) TopOfDescentIndex() int {
	tod := p.TopOfClimbIndex()
	if tod < p.Len()-1 && p.Altitudes[tod] == p.Altitudes[tod+1] {
		tod++
	}
	return tod
}

// TopOfClimbDistance returns the distance of the top of climb in NM.
func (p VerticalProfile) TopOfClimbDistance() float64 {
	if p.Len() == 0 {
		return 0
	}
	return p.Distances[p.TopOfClimbIndex()]
}

// TopOfDescentDistance returns the distance of the top of descent in NM.
func (p VerticalProfile) TopOfDescentDistance() float64 {
	if p.Len() == 0 {
		return 0
	}
	return p.Distances[p.TopOfDescentIndex()]
}

// IntersectionDistances returns the distances between start and finish at
// which the profile passes through altitude. Touching the altitude without
// crossing it, or flying level at it, is not an intersection.
func (p VerticalProfile) IntersectionDistances(altitude, start, finish float64) []float64 {
	distances, altitudes := p.section(start, finish)

	var out []float64
	for i := 1; i < len(altitudes); i++ {
		a0, a1 := altitudes[i-1], altitudes[i]
		if a0 == a1 || altitude <= math.Min(a0, a1) || altitude >= math.Max(a0, a1) {
			continue
		}
		ratio := (altitude - a0) / (a1 - a0)
		out = append(out, distances[i-1]+ratio*(distances[i]-distances[i-1]))
	}
	return out
}

// section returns the profile from start to finish: the interpolated start
// point, every profile point after it and before finish, and the finish point.
// Distances outside the profile are clamped to its ends.
func (p VerticalProfile) section(start, finish float64) ([]float64, []float64) {
	if p.Len() == 0 {
		return nil, nil
	}

	startIndex, startRatio := valueReference(p.Distances, start)
	finishIndex, finishRatio := valueReference(p.Distances, finish)

	distances := []float64{valueAt(p.Distances, startIndex, startRatio)}
	altitudes := []float64{valueAt(p.Altitudes, startIndex, startRatio)}
	for i := startIndex + 1; i <= finishIndex; i++ {
		distances = append(distances, p.Distances[i])
		altitudes = append(altitudes, p.Altitudes[i])
	}
	if finishRatio > 0 && finishIndex >= startIndex {
		distances = append(distances, valueAt(p.Distances, finishIndex, finishRatio))
		altitudes = append(altitudes, valueAt(p.Altitudes, finishIndex, finishRatio))
	}
	return distances, altitudes
}

// valueReference returns the index of the last value at or before v and the
// fraction of the way from it to the next value, in [0, 1). Values beyond
// either end give that end with a zero ratio.
func valueReference(values []float64, v float64) (int, float64) {
	index := sort.SearchFloat64s(values, v)
	if index == len(values) {
		return len(values) - 1, 0
	}
	if index == 0 || v >= values[index] {
		return index, 0
	}

	index--
	span := values[index+1] - values[index]
	if span <= 0 {
		return index, 0
	}
	return index, (v - values[index]) / span
}

// valueAt is the value ratio of the way from values[index] to the next value.
func valueAt(values []float64, index int, ratio float64) float64 {
	if ratio == 0 || index+1 >= len(values) {
		return values[index]
	}
	return values[index] + ratio*(values[index+1]-values[index])
}
