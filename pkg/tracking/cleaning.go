package tracking

import (
	"sort"

	"github.com/unklstewy/ads-trajectory/pkg/adsb"
	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/timeprofile"
)

// Default cleaning limits.
const (
	// DefaultMaxSpeedKnots is the fastest plausible ground speed between reports
	DefaultMaxSpeedKnots = 750.0

	// DefaultDistanceAccuracyNM is the largest distance between two reports
	// of the same position at the same time
	DefaultDistanceAccuracyNM = 0.25

	// DefaultTimePrecisionSeconds is the resolution of report timestamps
	DefaultTimePrecisionSeconds = 1.0
)

// CleaningConfig controls FindInvalidPositions.
type CleaningConfig struct {
	// MaxSpeedKnots is the fastest ground speed permitted between reports
	MaxSpeedKnots float64

	// DistanceAccuracyNM is subtracted from each distance before computing speed
	DistanceAccuracyNM float64

	// TimePrecisionSeconds is added to each duration before computing speed
	TimePrecisionSeconds float64

	// CheckAddresses marks reports whose ICAO address differs from the
	// flight's most common address as invalid
	CheckAddresses bool
}

// DefaultCleaningConfig returns the standard cleaning limits.
func DefaultCleaningConfig() CleaningConfig {
	return CleaningConfig{
		MaxSpeedKnots:        DefaultMaxSpeedKnots,
		DistanceAccuracyNM:   DefaultDistanceAccuracyNM,
		TimePrecisionSeconds: DefaultTimePrecisionSeconds,
		CheckAddresses:       true,
	}
}

// CleaningCounts reports why positions were rejected.
type CleaningCounts struct {
	Total       int
	Duplicates  int
	Addresses   int
	Coordinates int
	Speed       int
	Altitude    int
}

// duplicateKey identifies a repeated report.
type duplicateKey struct {
	unixNano int64
	lat, lon float64
	alt      float64
	icao     string
	squawk   string
}

// FindInvalidPositions marks reports that cannot belong to a plausible flight.
//
// The positions must be for one flight in time order. A report is invalid if:
//   - it repeats an earlier report exactly (only when it carries an ICAO address),
//   - its latitude or longitude is out of range,
//   - its ICAO address differs from the flight's most common address,
//   - reaching it from the last valid report needs more than MaxSpeedKnots,
//     even allowing for DistanceAccuracyNM and TimePrecisionSeconds,
//   - it reverses between climbing and descending without a level phase while
//     its squawk also changes.
//
// Returns a mask with invalid reports set to true, and the counts by cause.
func FindInvalidPositions(positions []adsb.Position, cfg CleaningConfig) ([]bool, CleaningCounts) {
	invalid := make([]bool, len(positions))
	var counts CleaningCounts
	if len(positions) == 0 {
		return invalid, counts
	}

	seen := make(map[duplicateKey]bool, len(positions))
	for i, p := range positions {
		if p.ICAO == "" {
			continue
		}
		key := duplicateKey{p.Time.UnixNano(), p.Latitude, p.Longitude, p.Altitude, p.ICAO, p.Squawk}
		if seen[key] {
			invalid[i] = true
			counts.Duplicates++
		}
		seen[key] = true
	}

	if cfg.CheckAddresses {
		if primary := mostCommonAddress(positions); primary != "" {
			for i, p := range positions {
				if p.ICAO != "" && p.ICAO != primary && !invalid[i] {
					invalid[i] = true
					counts.Addresses++
				}
			}
		}
	}

	points := make([]coordinates.EcefVector, len(positions))
	for i, p := range positions {
		v, err := p.Ecef()
		if err != nil {
			if !invalid[i] {
				invalid[i] = true
				counts.Coordinates++
			}
			continue
		}
		points[i] = v
	}

	ref := firstValid(invalid)
	if ref < 0 {
		counts.Total = len(positions)
		return invalid, counts
	}

	prev := ref
	refAttitude := 0
	for i := ref + 1; i < len(positions); i++ {
		if invalid[i] {
			continue
		}

		distance := coordinates.RadiansToNauticalMiles(points[i].GreatCircleDistance(points[ref]))
		elapsed := positions[i].Time.Sub(positions[ref].Time).Seconds()
		speed := MinimumSpeedKnots(distance, elapsed, cfg.DistanceAccuracyNM, cfg.TimePrecisionSeconds)

		bad := false
		if speed > cfg.MaxSpeedKnots {
			bad = true
			counts.Speed++
		}

		attitude := sign(positions[i].Altitude - positions[prev].Altitude)
		if attitude != refAttitude {
			if positions[i].Squawk == positions[ref].Squawk {
				refAttitude = attitude
			} else if positions[i].Squawk != positions[prev].Squawk {
				bad = true
				counts.Altitude++
			}
		}

		if bad {
			invalid[i] = true
		} else {
			ref = i
		}
		prev = i
	}

	for _, v := range invalid {
		if v {
			counts.Total++
		}
	}
	return invalid, counts
}

// MinimumSpeedKnots returns the slowest ground speed consistent with two
// reports distanceNM apart and seconds apart, given the measurement accuracy.
func MinimumSpeedKnots(distanceNM, seconds, accuracyNM, precisionSeconds float64) float64 {
	return coordinates.SecondsPerHour * timeprofile.GroundSpeed(distanceNM-accuracyNM, seconds+precisionSeconds)
}

// Valid returns the positions not marked in mask.
func Valid(positions []adsb.Position, mask []bool) []adsb.Position {
	out := make([]adsb.Position, 0, len(positions))
	for i, p := range positions {
		if i < len(mask) && mask[i] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func mostCommonAddress(positions []adsb.Position) string {
	counts := make(map[string]int)
	for _, p := range positions {
		if p.ICAO != "" {
			counts[p.ICAO]++
		}
	}

	addresses := make([]string, 0, len(counts))
	for a := range counts {
		addresses = append(addresses, a)
	}
	sort.Slice(addresses, func(i, j int) bool {
		if counts[addresses[i]] != counts[addresses[j]] {
			return counts[addresses[i]] > counts[addresses[j]]
		}
		return addresses[i] < addresses[j]
	})

	if len(addresses) == 0 {
		return ""
	}
	return addresses[0]
}

func firstValid(invalid []bool) int {
	for i, v := range invalid {
		if !v {
			return i
		}
	}
	return -1
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
