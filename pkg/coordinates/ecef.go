package coordinates

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is outside its
// valid range or is not a finite number.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// EcefVector is a unit vector in Earth-Centred, Earth-Fixed coordinates.
// The earth is treated as a unit sphere: X points at (0°N, 0°E), Y at
// (0°N, 90°E) and Z at the north pole.
//
// Vectors are values; every operation returns a new vector.
type EcefVector struct {
	X float64
	Y float64
	Z float64
}

// ToEcef converts a latitude/longitude pair in degrees to a unit ECEF vector.
// Returns ErrInvalidCoordinate when lat is outside [-90, 90] or lon is outside
// [-180, 180].
func ToEcef(lat, lon float64) (EcefVector, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return EcefVector{}, fmt.Errorf("%w: latitude %f", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return EcefVector{}, fmt.Errorf("%w: longitude %f", ErrInvalidCoordinate, lon)
	}

	latRad := lat * DegreesToRadians
	lonRad := lon * DegreesToRadians
	cosLat := math.Cos(latRad)

	return EcefVector{
		X: cosLat * math.Cos(lonRad),
		Y: cosLat * math.Sin(lonRad),
		Z: math.Sin(latRad),
	}, nil
}

// ToEcef converts the geographic position to a unit ECEF vector.
// Altitude is ignored.
func (g Geographic) ToEcef() (EcefVector, error) {
	return ToEcef(g.Latitude, g.Longitude)
}

// ToLatLon converts a unit ECEF vector back to latitude and longitude in degrees.
func ToLatLon(v EcefVector) (lat, lon float64) {
	lat = math.Atan2(v.Z, math.Hypot(v.X, v.Y)) * RadiansToDegrees
	lon = math.Atan2(v.Y, v.X) * RadiansToDegrees
	return lat, lon
}

// Dot returns the scalar product of two vectors.
func (v EcefVector) Dot(o EcefVector) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the vector product v × o.
func (v EcefVector) Cross(o EcefVector) EcefVector {
	return EcefVector{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Add returns v + o.
func (v EcefVector) Add(o EcefVector) EcefVector {
	return EcefVector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v multiplied by s.
func (v EcefVector) Scale(s float64) EcefVector {
	return EcefVector{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Norm returns the Euclidean length of the vector.
func (v EcefVector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns the vector scaled to unit length.
// The zero vector is returned unchanged.
func (v EcefVector) Normalize() EcefVector {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// GreatCircleDistance returns the angle in radians between two unit vectors.
// atan2 keeps the result accurate for both very small and near-antipodal
// separations.
func (v EcefVector) GreatCircleDistance(o EcefVector) float64 {
	return math.Atan2(v.Cross(o).Norm(), v.Dot(o))
}

// RadiansToNauticalMiles converts an angle on the unit sphere to nautical miles.
// One nautical mile is one minute of arc.
func RadiansToNauticalMiles(rad float64) float64 {
	return 60.0 * rad * RadiansToDegrees
}

// NauticalMilesToRadians converts nautical miles to an angle on the unit sphere.
func NauticalMilesToRadians(nm float64) float64 {
	return nm / 60.0 * DegreesToRadians
}
