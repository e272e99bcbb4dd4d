package tracking

import (
	"math"
	"sort"

	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/horizontal"
)

// InterpolateGreatCircle finds a point along a great circle path.
// fraction=0 returns start point, fraction=1 returns end point.
//
// Uses spherical linear interpolation (slerp) on unit vectors.
func InterpolateGreatCircle(from, to coordinates.Geographic, fraction float64) coordinates.Geographic {
	a, errA := from.ToEcef()
	b, errB := to.ToEcef()
	if errA != nil || errB != nil {
		return from
	}

	arc := coordinates.NewArc(a, b)
	if arc.Degenerate() {
		return from
	}

	lat, lon := coordinates.ToLatLon(arc.Position(fraction * arc.Length))
	return coordinates.Geographic{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  from.Altitude + fraction*(to.Altitude-from.Altitude),
	}
}

// PositionAtDistance returns the point on path at the given distance (radians)
// from its first waypoint, flying around any turns. Distances outside the path
// are clamped to its ends.
func PositionAtDistance(path *horizontal.Path, distance float64) coordinates.EcefVector {
	return path.Position(distance)
}

// DistanceAtTime linearly interpolates a distance profile at elapsed time t.
// times must be non-decreasing. Times before the first sample or after the
// last are clamped to the first or last distance.
func DistanceAtTime(distances, times []float64, t float64) float64 {
	n := min(len(distances), len(times))
	if n == 0 {
		return 0
	}
	if t <= times[0] {
		return distances[0]
	}
	if t >= times[n-1] {
		return distances[n-1]
	}

	i := sort.SearchFloat64s(times[:n], t)
	if times[i] == t {
		return distances[i]
	}

	span := times[i] - times[i-1]
	if span <= 0 {
		return distances[i]
	}
	fraction := (t - times[i-1]) / span
	return distances[i-1] + fraction*(distances[i]-distances[i-1])
}

// PositionAtTime returns the position on path reached at elapsed time t, given
// a distance profile in radians and its smoothed times.
func PositionAtTime(path *horizontal.Path, distances, times []float64, t float64) coordinates.Geographic {
	d := DistanceAtTime(distances, times, t)
	lat, lon := coordinates.ToLatLon(PositionAtDistance(path, d))
	return coordinates.Geographic{Latitude: lat, Longitude: lon}
}

// normalizeAngle returns an angle in degrees wrapped to (-180, 180].
func normalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}

// TurnAngle returns the signed change of course in degrees at the middle of
// three consecutive points. Positive values turn right.
func TurnAngle(prev, at, next coordinates.Geographic) float64 {
	return normalizeAngle(coordinates.Bearing(at, next) - coordinates.Bearing(prev, at))
}
