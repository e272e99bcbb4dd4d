package coordinates

import "math"

// MinimumPoleNorm is the smallest |a×b| for which two points define a unique
// great circle. Below it the points are treated as coincident (or antipodal).
const MinimumPoleNorm = 1e-14

// Arc is the great-circle arc from Start to End.
//
// Pole is the unit normal of the great circle plane, oriented so that moving
// from Start towards End is a positive rotation about it. Length is the arc
// angle in radians.
type Arc struct {
	Start  EcefVector
	End    EcefVector
	Pole   EcefVector
	Length float64
}

// NewArc constructs the great-circle arc between two unit vectors.
func NewArc(start, end EcefVector) Arc {
	axis := start.Cross(end)
	arc := Arc{
		Start:  start,
		End:    end,
		Length: start.GreatCircleDistance(end),
	}
	if axis.Norm() > MinimumPoleNorm {
		arc.Pole = axis.Normalize()
	}
	return arc
}

// Degenerate reports whether the arc has no well-defined great circle,
// i.e. Start and End coincide or are antipodal.
func (a Arc) Degenerate() bool {
	return a.Pole == (EcefVector{})
}

// direction is the unit tangent at Start pointing towards End.
func (a Arc) direction() EcefVector {
	return a.Pole.Cross(a.Start)
}

// CrossTrackDistance returns the signed angular distance in radians of p from
// the arc's great circle. Positive values lie to the left of the direction of
// travel. A degenerate arc returns the distance from Start.
func (a Arc) CrossTrackDistance(p EcefVector) float64 {
	if a.Degenerate() {
		return a.Start.GreatCircleDistance(p)
	}
	return math.Asin(clamp(a.Pole.Dot(p), -1, 1))
}

// AlongTrackDistance returns the signed angular distance in radians from Start
// to the foot of the perpendicular from p onto the arc's great circle.
// Negative values lie behind Start. A degenerate arc returns zero.
func (a Arc) AlongTrackDistance(p EcefVector) float64 {
	if a.Degenerate() {
		return 0
	}
	return math.Atan2(a.direction().Dot(p), a.Start.Dot(p))
}

// ClosestDistance returns the angular distance in radians from p to the nearest
// point of the arc: the cross-track distance when p projects inside the arc,
// otherwise the distance to the nearer endpoint.
func (a Arc) ClosestDistance(p EcefVector) float64 {
	return a.ClosestDistanceWithin(p, 0, a.Length)
}

// ClosestDistanceWithin is ClosestDistance with the perpendicular span widened
// to the along-track interval [from, to]. It lets a caller extend the ends of
// an open path slightly so that points just beyond a terminal waypoint still
// measure against the leg rather than its endpoint.
func (a Arc) ClosestDistanceWithin(p EcefVector, from, to float64) float64 {
	if a.Degenerate() {
		return a.Start.GreatCircleDistance(p)
	}

	atd := a.AlongTrackDistance(p)
	if atd >= from && atd <= to {
		return math.Abs(a.CrossTrackDistance(p))
	}
	return math.Min(a.Start.GreatCircleDistance(p), a.End.GreatCircleDistance(p))
}

// Position returns the point at the given along-track distance from Start.
// A degenerate arc returns Start.
func (a Arc) Position(distance float64) EcefVector {
	if a.Degenerate() {
		return a.Start
	}
	return a.Start.Scale(math.Cos(distance)).
		Add(a.direction().Scale(math.Sin(distance))).
		Normalize()
}

// PerpendicularPosition returns the point reached by moving distance radians
// from point at right angles to the arc's great circle. Positive distances
// move to the left of the direction of travel.
func (a Arc) PerpendicularPosition(point EcefVector, distance float64) EcefVector {
	if a.Degenerate() {
		return point
	}
	return point.Scale(math.Cos(distance)).
		Add(a.Pole.Scale(math.Sin(distance))).
		Normalize()
}

// TurnAngle returns the signed angle in radians between the arc and the great
// circle from End to p. Positive angles turn right. Returns zero when either
// great circle is undefined.
func (a Arc) TurnAngle(p EcefVector) float64 {
	next := NewArc(a.End, p)
	if a.Degenerate() || next.Degenerate() {
		return 0
	}
	return math.Atan2(next.Pole.Cross(a.Pole).Dot(a.End), a.Pole.Dot(next.Pole))
}

// Azimuth returns the direction of travel along the arc's great circle at p,
// in degrees clockwise from true north within [0, 360).
func (a Arc) Azimuth(p EcefVector) float64 {
	east := EcefVector{X: -p.Y, Y: p.X}
	if a.Degenerate() || east.Norm() <= MinimumPoleNorm {
		return 0
	}
	east = east.Normalize()
	north := p.Cross(east)
	track := a.Pole.Cross(p)
	return NormalizeAzimuth(math.Atan2(track.Dot(east), track.Dot(north)) * RadiansToDegrees)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
