package horizontal

import (
	"math"

	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
)

const (
	// MinTurnAngle is the smallest change of direction (radians) modelled as a turn.
	MinTurnAngle = 1.0 * coordinates.DegreesToRadians

	// MaxTurnAngle is the largest change of direction (radians) modelled as a turn.
	MaxTurnAngle = 150.0 * coordinates.DegreesToRadians

	// MaxTurnInitiationDistance bounds the distance (radians) before a
	// waypoint at which a turn may begin: 20 NM, following ICAO 9905.
	MaxTurnInitiationDistance = 20.0 / 60.0 * coordinates.DegreesToRadians

	// MinTurnLeg is the shortest usable turn initiation distance (radians,
	// 2 NM). Waypoints whose legs only allow less are flown as corners.
	MinTurnLeg = 2.0 / 60.0 * coordinates.DegreesToRadians
)

// TurnArc is the circular arc flown between an inbound and an outbound leg
// instead of the corner at their shared waypoint.
//
// Angle is the signed change of direction in radians, positive for right
// turns. Radius is the angular radius of the turn. A TurnArc with a zero
// Radius is not a turn: Start, Centre and Finish all equal the waypoint.
type TurnArc struct {
	Start  coordinates.EcefVector
	Centre coordinates.EcefVector
	Finish coordinates.EcefVector
	Angle  float64
	Radius float64
}

// NewTurnArc returns the turn between inbound and outbound that starts
// distance radians before their shared waypoint and finishes the same
// distance after it. Turns sharper than MaxTurnAngle or gentler than
// MinTurnAngle are not modelled.
func NewTurnArc(inbound, outbound coordinates.Arc, distance float64) TurnArc {
	turn := TurnArc{
		Start:  outbound.Start,
		Centre: outbound.Start,
		Finish: outbound.Start,
	}

	angle := inbound.TurnAngle(outbound.End)
	if distance <= 0 || !isTurn(angle) {
		return turn
	}

	turn.Angle = angle
	turn.Radius = distance / math.Tan(0.5*math.Abs(angle))
	turn.Start = inbound.Position(inbound.Length - distance)
	turn.Centre = inbound.PerpendicularPosition(turn.Start, -math.Copysign(turn.Radius, angle))
	turn.Finish = outbound.Position(distance)
	return turn
}

func isTurn(angle float64) bool {
	a := math.Abs(angle)
	return a > MinTurnAngle && a <= MaxTurnAngle
}

// Valid reports whether the arc is a modelled turn.
func (t TurnArc) Valid() bool {
	return t.Radius > 0
}

// Length returns the distance flown around the turn in radians.
func (t TurnArc) Length() float64 {
	return t.Radius * math.Abs(t.Angle)
}

// CrossTrackDistance returns the distance of p from the turn in radians,
// positive outside the turn and negative inside it.
func (t TurnArc) CrossTrackDistance(p coordinates.EcefVector) float64 {
	return t.Centre.GreatCircleDistance(p) - t.Radius
}

// AlongTrackDistance returns the distance around the turn from Start to the
// radial through p. Negative values lie before Start.
func (t TurnArc) AlongTrackDistance(p coordinates.EcefVector) float64 {
	start := t.radial(t.Start)
	point := t.radial(p)
	anticlockwise := math.Atan2(t.Centre.Dot(start.Cross(point)), start.Dot(point))
	if t.Angle > 0 {
		return -t.Radius * anticlockwise
	}
	return t.Radius * anticlockwise
}

// radial is the component of p perpendicular to the turn centre.
func (t TurnArc) radial(p coordinates.EcefVector) coordinates.EcefVector {
	return p.Add(t.Centre.Scale(-t.Centre.Dot(p)))
}

// Position returns the point reached after turning through the given
// fraction of Angle from Start.
func (t TurnArc) Position(fraction float64) coordinates.EcefVector {
	if !t.Valid() {
		return t.Start
	}

	// Rotate Start about the centre; right turns rotate clockwise.
	phi := -t.Angle * fraction
	cos, sin := math.Cos(phi), math.Sin(phi)
	k, v := t.Centre, t.Start
	return v.Scale(cos).
		Add(k.Cross(v).Scale(sin)).
		Add(k.Scale(k.Dot(v) * (1 - cos))).
		Normalize()
}

// maxTurnInitiationDistance is the largest turn initiation distance allowed
// between legs of the given lengths.
func maxTurnInitiationDistance(inbound, outbound float64) float64 {
	return math.Min(0.5*math.Min(inbound, outbound), MaxTurnInitiationDistance)
}

// turnInitiationDistance estimates how far before the waypoint between
// inbound and outbound the aircraft began to turn, from a point flown just
// after it. A point within threshold of either leg shows a late turn and
// gives its own distance from the waypoint. Otherwise the radius of the turn
// through the point is found from its offset from the bisector of the legs.
// The result never exceeds maxDistance.
func turnInitiationDistance(inbound, outbound coordinates.Arc, point coordinates.EcefVector,
	maxDistance, threshold float64) float64 {
	distance := outbound.Start.GreatCircleDistance(point)
	if distance >= maxDistance {
		return maxDistance
	}

	xtdIn := math.Abs(inbound.CrossTrackDistance(point))
	xtdOut := math.Abs(outbound.CrossTrackDistance(point))
	if xtdIn <= threshold || xtdOut <= threshold {
		return distance
	}

	bisector := inbound.Pole.Add(outbound.Pole).Normalize()
	xtd := math.Abs(math.Asin(clampUnit(bisector.Dot(point))))
	if xtd >= distance {
		return distance
	}

	// The bisector is perpendicular to the pole, hence acos.
	angle := math.Acos(xtd / distance)
	halfTurn := 0.5 * math.Abs(inbound.TurnAngle(outbound.End))
	cosAngle := math.Cos(angle)
	cosHalf := math.Cos(halfTurn)
	sin2Half := 1 - cosHalf*cosHalf
	factor := math.Max(cosAngle*cosAngle-sin2Half, 0)
	radius := distance * cosHalf * (cosAngle + math.Sqrt(factor)) / sin2Half

	return math.Min(radius*math.Tan(halfTurn), maxDistance)
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
