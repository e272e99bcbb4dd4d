package analysis

import (
	"fmt"
	"math"
)

// AltitudeProfile classifies the vertical shape of a trajectory.
type AltitudeProfile int

const (
	Cruising AltitudeProfile = iota
	Climbing
	Descending
	ClimbingAndDescending
)

// String returns the profile name used in storage and display.
func (p AltitudeProfile) String() string {
	switch p {
	case Cruising:
		return "cruising"
	case Climbing:
		return "climbing"
	case Descending:
		return "descending"
	default:
		return "climbing_and_descending"
	}
}

// CruiseToleranceFeet is how far an altitude may be from a whole thousand
// feet and still count as a cruising level.
const CruiseToleranceFeet = 200.0

// ClosestCruisingAltitude rounds an altitude to the nearest thousand feet.
func ClosestCruisingAltitude(altitude float64) float64 {
	return 1000 * math.Floor((altitude+500)/1000)
}

// IsCruising reports whether altitude is within CruiseToleranceFeet of a
// cruising level.
func IsCruising(altitude float64) bool {
	return math.Abs(altitude-ClosestCruisingAltitude(altitude)) <= CruiseToleranceFeet
}

// FindLevelSections returns start/finish index pairs of runs of equal
// consecutive altitudes. A single differing altitude ends a run.
func FindLevelSections(altitudes []float64) []int {
	var indices []int
	if len(altitudes) <= 2 {
		return indices
	}

	level := altitudes[0] == altitudes[1]
	if level {
		indices = append(indices, 0)
	}
	for i := 1; i < len(altitudes)-1; i++ {
		next := altitudes[i] == altitudes[i+1]
		if level != next {
			indices = append(indices, i)
		}
		level = next
	}
	if level {
		indices = append(indices, len(altitudes)-1)
	}
	return indices
}

// FindCruiseSections returns the start/finish index pairs of FindLevelSections
// with consecutive sections at the same cruising altitude merged, provided
// every altitude between them is within CruiseToleranceFeet of it.
func FindCruiseSections(altitudes []float64) []int {
	indices := FindLevelSections(altitudes)
	if len(indices) == 0 {
		return indices
	}

	previous := altitudes[indices[0]]
	cruising := IsCruising(previous)
	if cruising {
		previous = ClosestCruisingAltitude(previous)
	}

	merged := make(map[int]bool)
	for i := 2; i < len(indices); i += 2 {
		altitude := altitudes[indices[i]]
		if !IsCruising(altitude) {
			previous, cruising = altitude, false
			continue
		}

		level := ClosestCruisingAltitude(altitude)
		if cruising && previous == level && withinLevel(altitudes[indices[i-1]+1:indices[i]], level) {
			merged[i-1] = true
			merged[i] = true
		}
		previous, cruising = level, true
	}

	sections := make([]int, 0, len(indices))
	for i, index := range indices {
		if !merged[i] {
			sections = append(sections, index)
		}
	}
	return sections
}

// withinLevel reports whether every altitude is within CruiseToleranceFeet of level.
func withinLevel(altitudes []float64, level float64) bool {
	for _, a := range altitudes {
		if math.Abs(a-level) > CruiseToleranceFeet {
			return false
		}
	}
	return true
}

// FindCruisePositions marks the positions strictly inside each section of
// start/finish index pairs.
func FindCruisePositions(n int, sections []int) []bool {
	inside := make([]bool, n)
	for i := 0; i+1 < len(sections); i += 2 {
		for j := sections[i] + 1; j < sections[i+1] && j < n; j++ {
			inside[j] = true
		}
	}
	return inside
}

// ClassifyAltitudeProfile classifies altitudes, given in path order.
// A trajectory that cruises at one level from its first to its last position
// is Cruising.
func ClassifyAltitudeProfile(altitudes []float64) AltitudeProfile {
	if len(altitudes) == 0 {
		return Cruising
	}

	sections := FindCruiseSections(altitudes)
	if len(sections) == 2 && sections[0] == 0 && sections[1] == len(altitudes)-1 &&
		IsCruising(altitudes[0]) {
		return Cruising
	}

	highest := altitudes[0]
	for _, a := range altitudes {
		highest = max(highest, a)
	}
	climbs := highest > altitudes[0]
	descends := highest > altitudes[len(altitudes)-1]

	switch {
	case climbs && !descends:
		return Climbing
	case descends && !climbs:
		return Descending
	case !climbs && !descends:
		return Cruising
	default:
		return ClimbingAndDescending
	}
}

// ParseAltitudeProfile is the inverse of AltitudeProfile.String.
func ParseAltitudeProfile(s string) (AltitudeProfile, error) {
	for _, p := range []AltitudeProfile{Cruising, Climbing, Descending, ClimbingAndDescending} {
		if p.String() == s {
			return p, nil
		}
	}
	return Cruising, fmt.Errorf("unknown altitude profile %q", s)
}
