// Package horizontal reduces dense position sequences to a minimal
// great-circle path and measures along-path distances against it.
package horizontal

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
)

var (
	// ErrInsufficientPoints is returned when fewer than two points are supplied.
	ErrInsufficientPoints = errors.New("at least two points are required")

	// ErrInvalidTolerance is returned for a negative or NaN tolerance.
	ErrInvalidTolerance = errors.New("invalid tolerance")
)

// MinimumArcLength is the shortest chord, in radians (0.1 NM), that is used as
// a great circle when measuring deviation. Shorter chords (such as a flight
// returning to its origin) measure deviation as distance from the chord start.
const MinimumArcLength = 0.1 / 60.0 * coordinates.DegreesToRadians

// Path is an ordered sequence of waypoints joined by great-circle legs.
type Path struct {
	// Waypoints in path order
	Waypoints []coordinates.EcefVector

	// Distances is the cumulative distance in radians of each waypoint from
	// the first, flown around any turns. Distances[0] is zero and the slice is
	// non-decreasing.
	Distances []float64

	// Indices holds the input index of each waypoint
	Indices []int

	// TurnDistances holds the turn initiation distance in radians at each
	// waypoint: how far before it the turn onto the next leg begins. It is
	// zero at both ends and wherever the path turns at the waypoint itself.
	TurnDistances []float64

	legLengths  []float64
	turns       []TurnArc
	halfLengths []float64
	alongTrack  []Projection
}

// SectionType identifies the boundaries of straight and turning sections.
type SectionType int

const (
	SectionWaypoint SectionType = iota
	SectionTurnStart
	SectionTurnFinish
)

// Section is a boundary between straight and turning parts of a path.
type Section struct {
	// Distance along the path in radians
	Distance float64
	Type     SectionType
}

// Projection is the position of a point relative to a path.
type Projection struct {
	// Distance along the path from the first waypoint in radians
	Distance float64

	// Segment is the index of the leg the point was measured against.
	// Leg i runs from Waypoints[i] to Waypoints[i+1].
	Segment int

	// CrossTrack is the signed distance from the leg's great circle in radians
	CrossTrack float64
}

// NewPath builds a Path from an ordered list of waypoints.
// Returns ErrInsufficientPoints if no waypoints are supplied.
func NewPath(waypoints []coordinates.EcefVector) (*Path, error) {
	if len(waypoints) == 0 {
		return nil, ErrInsufficientPoints
	}
	indices := make([]int, len(waypoints))
	for i := range indices {
		indices[i] = i
	}
	return newPath(waypoints, indices, nil), nil
}

// RestorePath rebuilds a derived Path from its waypoints and the input index
// of each one, as stored after DerivePath.
func RestorePath(waypoints []coordinates.EcefVector, indices []int) (*Path, error) {
	return RestorePathWithTurns(waypoints, indices, nil)
}

// RestorePathWithTurns is RestorePath for a path with turns, given the turn
// initiation distance of each waypoint. An empty turnDistances restores a
// path without turns.
func RestorePathWithTurns(waypoints []coordinates.EcefVector, indices []int, turnDistances []float64) (*Path, error) {
	if len(waypoints) == 0 {
		return nil, ErrInsufficientPoints
	}
	if len(indices) != len(waypoints) {
		return nil, fmt.Errorf("have %d indices for %d waypoints", len(indices), len(waypoints))
	}
	if len(turnDistances) != 0 && len(turnDistances) != len(waypoints) {
		return nil, fmt.Errorf("have %d turn distances for %d waypoints", len(turnDistances), len(waypoints))
	}
	return newPath(waypoints, indices, turnDistances), nil
}

// newPath builds a path, modelling a turn at each interior waypoint with a
// positive turn distance. Turn distances are limited to half of the shorter
// adjacent leg so that turns never overlap.
func newPath(waypoints []coordinates.EcefVector, indices []int, turnDistances []float64) *Path {
	n := len(waypoints)
	p := &Path{
		Waypoints:     waypoints,
		Indices:       indices,
		TurnDistances: make([]float64, n),
		legLengths:    make([]float64, max(0, n-1)),
		turns:         make([]TurnArc, n),
		halfLengths:   make([]float64, n),
	}
	for i := range p.legLengths {
		p.legLengths[i] = waypoints[i].GreatCircleDistance(waypoints[i+1])
	}

	for i := 1; i < n-1 && i < len(turnDistances); i++ {
		d := math.Min(turnDistances[i], 0.5*math.Min(p.legLengths[i-1], p.legLengths[i]))
		turn := NewTurnArc(p.Leg(i-1), p.Leg(i), d)
		if !turn.Valid() {
			continue
		}
		p.TurnDistances[i] = d
		p.turns[i] = turn
		p.halfLengths[i] = 0.5 * turn.Length()
	}

	lengths := make([]float64, n)
	for i, leg := range p.legLengths {
		lengths[i+1] = leg - p.shortening(i) - p.shortening(i+1)
	}
	p.Distances = floats.CumSum(make([]float64, n), lengths)
	return p
}

// shortening is how much shorter the path is than the legs either side of
// waypoint i, on each side, because of the turn there.
func (p *Path) shortening(i int) float64 {
	return p.TurnDistances[i] - p.halfLengths[i]
}

// WithTurns returns a copy of p with turns modelled at its interior
// waypoints, estimated from points: the positions p was derived from, with
// tolerance as given to DerivePath. A waypoint is given a turn when the change
// of direction lies between MinTurnAngle and MaxTurnAngle and both adjacent
// legs allow a turn initiation distance longer than MinTurnLeg.
func (p *Path) WithTurns(points []coordinates.EcefVector, tolerance float64) *Path {
	distances := make([]float64, p.Len())
	for i := 1; i < p.Len()-1; i++ {
		inbound, outbound := p.Leg(i-1), p.Leg(i)
		maxDistance := maxTurnInitiationDistance(inbound.Length, outbound.Length)
		if maxDistance <= MinTurnLeg || !isTurn(inbound.TurnAngle(outbound.End)) {
			continue
		}

		next := p.Indices[i] + 1
		if next >= len(points) {
			continue
		}
		distances[i] = turnInitiationDistance(inbound, outbound, points[next], maxDistance, tolerance/4)
	}
	return newPath(p.Waypoints, p.Indices, distances)
}

// Len returns the number of waypoints.
func (p *Path) Len() int {
	return len(p.Waypoints)
}

// Length returns the total path length in radians.
func (p *Path) Length() float64 {
	if len(p.Distances) == 0 {
		return 0
	}
	return p.Distances[len(p.Distances)-1]
}

// Legs returns the number of legs (one fewer than the waypoints).
func (p *Path) Legs() int {
	return max(0, len(p.Waypoints)-1)
}

// Leg returns the great-circle arc of leg i.
func (p *Path) Leg(i int) coordinates.Arc {
	return coordinates.NewArc(p.Waypoints[i], p.Waypoints[i+1])
}

// Turn returns the turn at waypoint i. It is not Valid where the path has no
// turn.
func (p *Path) Turn(i int) TurnArc {
	return p.turns[i]
}

// HasTurns reports whether any waypoint has a turn.
func (p *Path) HasTurns() bool {
	for _, d := range p.TurnDistances {
		if d > 0 {
			return true
		}
	}
	return false
}

// Position returns the point at distance radians along the path, flying
// around any turns. Distances outside the path are clamped to its ends.
func (p *Path) Position(distance float64) coordinates.EcefVector {
	if p.Legs() == 0 || distance <= 0 {
		return p.Waypoints[0]
	}
	if distance >= p.Length() {
		return p.Waypoints[p.Len()-1]
	}

	leg := p.legAt(distance)
	offset := distance - p.Distances[leg]
	if w, fraction, ok := p.turnAt(leg, offset); ok {
		return p.turns[w].Position(fraction)
	}
	return p.Leg(leg).Position(offset + p.shortening(leg))
}

// GroundTrack returns the direction of travel in degrees from true north at
// distance radians along the path.
func (p *Path) GroundTrack(distance float64) float64 {
	if p.Legs() == 0 {
		return 0
	}
	distance = math.Max(0, math.Min(distance, p.Length()))

	leg := p.legAt(distance)
	offset := distance - p.Distances[leg]
	if w, fraction, ok := p.turnAt(leg, offset); ok {
		turn := p.turns[w]
		track := p.Leg(w-1).Azimuth(turn.Start) + fraction*turn.Angle*coordinates.RadiansToDegrees
		return coordinates.NormalizeAzimuth(track)
	}
	arc := p.Leg(leg)
	return arc.Azimuth(arc.Position(offset + p.shortening(leg)))
}

// Sections returns the distances of every waypoint, turn start and turn
// finish in path order. A waypoint with a turn is replaced by the start and
// finish of the turn.
func (p *Path) Sections() []Section {
	sections := make([]Section, 0, 2*p.Len())
	for i, d := range p.Distances {
		if half := p.halfLengths[i]; half > 0 {
			sections = append(sections,
				Section{Distance: d - half, Type: SectionTurnStart},
				Section{Distance: d + half, Type: SectionTurnFinish})
			continue
		}
		sections = append(sections, Section{Distance: d, Type: SectionWaypoint})
	}
	return sections
}

// legAt returns the leg containing distance, which must lie within the path.
func (p *Path) legAt(distance float64) int {
	leg := sort.SearchFloat64s(p.Distances, distance)
	if leg == len(p.Distances) || p.Distances[leg] > distance {
		leg--
	}
	return max(0, min(leg, p.Legs()-1))
}

// legPathLength is the distance flown between waypoints leg and leg+1.
func (p *Path) legPathLength(leg int) float64 {
	return p.Distances[leg+1] - p.Distances[leg]
}

// turnAt returns the waypoint whose turn is being flown at offset from the
// start of leg, and the fraction of the turn completed.
func (p *Path) turnAt(leg int, offset float64) (int, float64, bool) {
	if half := p.halfLengths[leg]; half > 0 && offset < half {
		return leg, 0.5 * (offset + half) / half, true
	}
	if half := p.halfLengths[leg+1]; half > 0 {
		if into := offset - (p.legPathLength(leg) - half); into > 0 {
			return leg + 1, 0.5 * into / half, true
		}
	}
	return 0, 0, false
}

// turnBeside returns the waypoint whose turn lies beside the given along
// track distance on leg, or -1 when it lies beside the straight section.
func (p *Path) turnBeside(leg int, along float64) int {
	if d := p.TurnDistances[leg]; d > 0 && along < d {
		return leg
	}
	if d := p.TurnDistances[leg+1]; d > 0 && along > p.legLengths[leg]-d {
		return leg + 1
	}
	return -1
}

// AlongTrack returns, for every point given to DerivePath, its projection onto
// the leg that covered it during simplification. It is nil unless DerivePath
// was asked to record it.
func (p *Path) AlongTrack() []Projection {
	return p.alongTrack
}

// Geographic returns the waypoints as latitude/longitude pairs.
func (p *Path) Geographic() []coordinates.Geographic {
	out := make([]coordinates.Geographic, len(p.Waypoints))
	for i, w := range p.Waypoints {
		lat, lon := coordinates.ToLatLon(w)
		out[i] = coordinates.Geographic{Latitude: lat, Longitude: lon}
	}
	return out
}

// span is an inclusive range of input indices awaiting simplification.
type span struct {
	start, end int
}

// DerivePath simplifies points into the smallest ordered subsequence whose
// great-circle legs stay within tolerance (radians) of every input point.
//
// The first and last points are always retained. Each pending span is
// split at the point of maximum cross-track deviation from the span's chord
// while that deviation exceeds tolerance; the earliest index wins ties.
// A tolerance of zero keeps every point apart from consecutive exact
// duplicates.
//
// When includeAlongTrack is true, the returned Path also records the along
// path projection of every input point (see Path.AlongTrack).
func DerivePath(points []coordinates.EcefVector, tolerance float64, includeAlongTrack bool) (*Path, error) {
	n := len(points)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientPoints, n)
	}
	if math.IsNaN(tolerance) || tolerance < 0 {
		return nil, fmt.Errorf("%w: %f", ErrInvalidTolerance, tolerance)
	}

	var keep []bool
	if tolerance == 0 {
		keep = distinctPoints(points)
	} else {
		keep = simplify(points, tolerance)
	}

	waypoints := make([]coordinates.EcefVector, 0, n)
	indices := make([]int, 0, n)
	for i, k := range keep {
		if k {
			waypoints = append(waypoints, points[i])
			indices = append(indices, i)
		}
	}

	path := newPath(waypoints, indices, nil)
	if includeAlongTrack {
		path.alongTrack = path.coveredProjections(points)
	}
	return path, nil
}

// simplify marks the points to keep using an explicit stack of spans.
func simplify(points []coordinates.EcefVector, tolerance float64) []bool {
	keep := make([]bool, len(points))
	keep[0] = true
	keep[len(points)-1] = true

	stack := []span{{start: 0, end: len(points) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.end-s.start < 2 {
			continue
		}

		index, deviation := furthestPoint(points, s)
		if deviation > tolerance {
			keep[index] = true
			// Push the later half first so the earlier half is processed first.
			stack = append(stack, span{start: index, end: s.end}, span{start: s.start, end: index})
		}
	}
	return keep
}

// furthestPoint returns the index and deviation of the intermediate point of s
// furthest from the chord between its ends. The earliest index wins ties.
func furthestPoint(points []coordinates.EcefVector, s span) (int, float64) {
	chord := coordinates.NewArc(points[s.start], points[s.end])
	short := chord.Length < MinimumArcLength

	index, deviation := s.start+1, -1.0
	for i := s.start + 1; i < s.end; i++ {
		var d float64
		if short {
			d = chord.Start.GreatCircleDistance(points[i])
		} else {
			d = math.Abs(chord.CrossTrackDistance(points[i]))
		}
		if d > deviation {
			index, deviation = i, d
		}
	}
	return index, deviation
}

// distinctPoints keeps every point that differs from its predecessor. The last
// point is always kept, so any run of duplicates ending the sequence collapses
// onto it.
func distinctPoints(points []coordinates.EcefVector) []bool {
	last := len(points) - 1
	keep := make([]bool, len(points))
	keep[0] = true
	for i := 1; i < last; i++ {
		keep[i] = points[i] != points[i-1]
	}
	keep[last] = true

	for j := last - 1; j > 0 && points[j] == points[last]; j-- {
		keep[j] = false
	}
	return keep
}

// coveredProjections projects every input point onto the leg spanning its
// input index.
func (p *Path) coveredProjections(points []coordinates.EcefVector) []Projection {
	out := make([]Projection, len(points))
	if p.Legs() == 0 {
		return out
	}

	leg := 0
	arc := p.Leg(leg)
	for i, pt := range points {
		for leg < p.Legs()-1 && i > p.Indices[leg+1] {
			leg++
			arc = p.Leg(leg)
		}

		distance := p.Distances[leg] + clampAlongTrack(arc, pt)
		switch i {
		case p.Indices[leg]:
			distance = p.Distances[leg]
		case p.Indices[leg+1]:
			distance = p.Distances[leg+1]
		}

		out[i] = Projection{
			Distance:   distance,
			Segment:    leg,
			CrossTrack: signedCrossTrack(arc, pt),
		}
	}
	return out
}

// clampAlongTrack limits the along-track distance of pt to the extent of arc.
func clampAlongTrack(arc coordinates.Arc, pt coordinates.EcefVector) float64 {
	return math.Max(0, math.Min(arc.Length, arc.AlongTrackDistance(pt)))
}

// signedCrossTrack is the cross-track distance of pt, or zero for a
// degenerate leg.
func signedCrossTrack(arc coordinates.Arc, pt coordinates.EcefVector) float64 {
	if arc.Degenerate() {
		return 0
	}
	return arc.CrossTrackDistance(pt)
}
