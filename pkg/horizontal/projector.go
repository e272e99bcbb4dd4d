package horizontal

import (
	"math"

	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
)

const (
	// PathEndEpsilon widens the first and last legs beyond the path ends (radians)
	// so that points marginally outside the path still project perpendicularly.
	PathEndEpsilon = 1e-9

	// SnapDistance is the distance (radians) within which a point is treated
	// as lying on a waypoint.
	SnapDistance = 1e-12
)

// ProjectDistances returns the along-path projection of each point.
//
// Points are expected in approximate path order. Each point is measured
// against the leg used for the previous point and its two neighbours; the
// closest of those is accepted while it lies within tolerance (radians).
// Otherwise every leg is searched and the closest is used. Projection never
// fails: a point far from the path is measured against its nearest leg.
//
// The along-track distance is clamped to the chosen leg, so the result is
// always within [0, path.Length()]. A point on a waypoint returns exactly that
// waypoint's distance. Where the path has turns, a point beside a turn is
// measured around the turn and its cross-track distance is taken from the
// turn arc.
func ProjectDistances(path *Path, points []coordinates.EcefVector, tolerance float64) []Projection {
	out := make([]Projection, len(points))
	if path == nil || path.Len() == 0 {
		return out
	}

	legCount := path.Legs()
	if legCount == 0 {
		for i, pt := range points {
			out[i] = Projection{CrossTrack: path.Waypoints[0].GreatCircleDistance(pt)}
		}
		return out
	}

	arcs := make([]coordinates.Arc, legCount)
	for i := range arcs {
		arcs[i] = path.Leg(i)
	}

	closest := func(leg int, pt coordinates.EcefVector) float64 {
		from, to := 0.0, arcs[leg].Length
		if leg == 0 {
			from = -PathEndEpsilon
		}
		if leg == legCount-1 {
			to += PathEndEpsilon
		}
		return arcs[leg].ClosestDistanceWithin(pt, from, to)
	}

	current := 0
	for i, pt := range points {
		best, bestDistance := current, closest(current, pt)
		for _, candidate := range []int{current - 1, current + 1} {
			if candidate < 0 || candidate >= legCount {
				continue
			}
			if d := closest(candidate, pt); d < bestDistance {
				best, bestDistance = candidate, d
			}
		}

		if bestDistance > tolerance {
			for leg := range arcs {
				if d := closest(leg, pt); d < bestDistance {
					best, bestDistance = leg, d
				}
			}
		}

		out[i] = Projection{
			Distance:   legDistance(path, arcs[best], best, pt),
			Segment:    best,
			CrossTrack: path.crossTrack(arcs[best], best, pt),
		}

		current = best
		if current < legCount-1 && out[i].Distance >= path.Distances[current+1] {
			current++
		}
	}

	return out
}

// legDistance is the path distance of pt measured along the given leg.
func legDistance(path *Path, arc coordinates.Arc, leg int, pt coordinates.EcefVector) float64 {
	if arc.Start.GreatCircleDistance(pt) <= SnapDistance {
		return path.Distances[leg]
	}
	if arc.End.GreatCircleDistance(pt) <= SnapDistance {
		return path.Distances[leg+1]
	}

	along := arc.AlongTrackDistance(pt)
	var offset float64
	switch w := path.turnBeside(leg, along); w {
	case leg:
		offset = path.turns[w].AlongTrackDistance(pt) - path.halfLengths[w]
	case leg + 1:
		offset = path.turns[w].AlongTrackDistance(pt) + path.legPathLength(leg) - path.halfLengths[w]
	default:
		offset = along - path.shortening(leg)
	}
	return path.Distances[leg] + math.Max(0, math.Min(path.legPathLength(leg), offset))
}

// crossTrack is the signed cross-track distance of pt from leg, or from the
// turn beside it. Points outside a turn lie to its left for a right turn.
func (p *Path) crossTrack(arc coordinates.Arc, leg int, pt coordinates.EcefVector) float64 {
	if w := p.turnBeside(leg, arc.AlongTrackDistance(pt)); w >= 0 {
		turn := p.turns[w]
		return math.Copysign(1, turn.Angle) * turn.CrossTrackDistance(pt)
	}
	return signedCrossTrack(arc, pt)
}

// ProjectedDistances is a convenience wrapper returning only the distances of
// ProjectDistances.
func ProjectedDistances(path *Path, points []coordinates.EcefVector, tolerance float64) []float64 {
	projections := ProjectDistances(path, points, tolerance)
	distances := make([]float64, len(projections))
	for i, p := range projections {
		distances[i] = p.Distance
	}
	return distances
}

// CrossTrackRMS returns the root mean square of the cross-track distances.
func CrossTrackRMS(projections []Projection) float64 {
	if len(projections) == 0 {
		return 0
	}
	var sum float64
	for _, p := range projections {
		sum += p.CrossTrack * p.CrossTrack
	}
	return math.Sqrt(sum / float64(len(projections)))
}
