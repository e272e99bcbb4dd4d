// Package coordinates provides spherical-earth geometry for aircraft
// positions: latitude/longitude conversion to earth-fixed unit vectors,
// great-circle arcs and distances in nautical miles.
package coordinates

import (
	"math"
)

// Unit conversions
const (
	DegreesToRadians = math.Pi / 180.0
	RadiansToDegrees = 180.0 / math.Pi

	// FeetToMeters converts reported pressure altitudes to metres
	FeetToMeters = 0.3048

	// SecondsPerHour converts speeds in nautical miles per second to knots
	SecondsPerHour = 3600.0
)

// Geographic is a latitude/longitude position. Distances and bearings treat
// the earth as a sphere; Altitude is carried along but never used in them.
type Geographic struct {
	// Latitude in decimal degrees, positive north
	Latitude float64

	// Longitude in decimal degrees, positive east
	Longitude float64

	// Altitude in metres
	Altitude float64
}

// unit returns the ECEF unit vector of g without range checks.
func (g Geographic) unit() EcefVector {
	lat := g.Latitude * DegreesToRadians
	lon := g.Longitude * DegreesToRadians
	return EcefVector{
		X: math.Cos(lat) * math.Cos(lon),
		Y: math.Cos(lat) * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

// NormalizeAzimuth wraps an angle in degrees into [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}

// Bearing returns the initial great-circle course from one position to
// another in degrees clockwise from true north, in [0, 360).
//
// The direction of travel is the component of the destination vector
// perpendicular to the start vector, resolved against the local north and
// east unit vectors at the start.
func Bearing(from, to Geographic) float64 {
	a, b := from.unit(), to.unit()

	lat := from.Latitude * DegreesToRadians
	lon := from.Longitude * DegreesToRadians
	north := EcefVector{
		X: -math.Sin(lat) * math.Cos(lon),
		Y: -math.Sin(lat) * math.Sin(lon),
		Z: math.Cos(lat),
	}
	east := EcefVector{X: -math.Sin(lon), Y: math.Cos(lon)}

	direction := b.Add(a.Scale(-a.Dot(b)))
	return NormalizeAzimuth(math.Atan2(direction.Dot(east), direction.Dot(north)) * RadiansToDegrees)
}

// DistanceNauticalMiles returns the great-circle distance between two
// positions, consistent with EcefVector.GreatCircleDistance and
// RadiansToNauticalMiles.
func DistanceNauticalMiles(from, to Geographic) float64 {
	return RadiansToNauticalMiles(from.unit().GreatCircleDistance(to.unit()))
}
