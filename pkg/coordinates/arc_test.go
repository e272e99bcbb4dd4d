package coordinates

import (
	"math"
	"testing"
)

func mustEcef(t *testing.T, lat, lon float64) EcefVector {
	t.Helper()
	v, err := ToEcef(lat, lon)
	if err != nil {
		t.Fatalf("ToEcef(%f, %f): %v", lat, lon, err)
	}
	return v
}

// TestArcAlongEquator tests cross and along track distances for an equatorial arc
func TestArcAlongEquator(t *testing.T) {
	arc := NewArc(mustEcef(t, 0, 0), mustEcef(t, 0, 10))

	if math.Abs(arc.Length-10*DegreesToRadians) > 1e-12 {
		t.Fatalf("Expected length of 10 degrees, got %f", arc.Length*RadiansToDegrees)
	}

	tests := []struct {
		name       string
		lat, lon   float64
		wantXtd    float64 // degrees
		wantAtd    float64 // degrees
		wantClosed float64 // degrees
	}{
		{"On the arc", 0, 5, 0, 5, 0},
		{"Left of the arc", 1, 5, 1, 5, 1},
		{"Right of the arc", -2, 3, -2, 3, 2},
		{"Behind the start", 0, -3, 0, -3, 3},
		{"Beyond the end", 0, 12, 0, 12, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustEcef(t, tt.lat, tt.lon)

			xtd := arc.CrossTrackDistance(p) * RadiansToDegrees
			if math.Abs(xtd-tt.wantXtd) > 1e-9 {
				t.Errorf("Cross track: expected %f, got %f", tt.wantXtd, xtd)
			}

			atd := arc.AlongTrackDistance(p) * RadiansToDegrees
			if math.Abs(atd-tt.wantAtd) > 0.05 {
				t.Errorf("Along track: expected %f, got %f", tt.wantAtd, atd)
			}

			closest := arc.ClosestDistance(p) * RadiansToDegrees
			if math.Abs(closest-tt.wantClosed) > 1e-6 {
				t.Errorf("Closest distance: expected %f, got %f", tt.wantClosed, closest)
			}
		})
	}
}

// TestArcClosestDistanceWithin tests extending the perpendicular span of an arc
func TestArcClosestDistanceWithin(t *testing.T) {
	arc := NewArc(mustEcef(t, 0, 0), mustEcef(t, 0, 10))
	p := mustEcef(t, 0.5, 10.2)

	plain := arc.ClosestDistance(p)
	extended := arc.ClosestDistanceWithin(p, 0, arc.Length+1*DegreesToRadians)

	if extended >= plain {
		t.Errorf("Expected extended span to measure perpendicular distance, got %f >= %f", extended, plain)
	}
	if math.Abs(extended*RadiansToDegrees-0.5) > 1e-9 {
		t.Errorf("Expected 0.5 degree cross track, got %f", extended*RadiansToDegrees)
	}
}

// TestDegenerateArc tests arcs whose end points coincide
func TestDegenerateArc(t *testing.T) {
	start := mustEcef(t, 10, 20)
	arc := NewArc(start, start)

	if !arc.Degenerate() {
		t.Fatal("Expected arc between identical points to be degenerate")
	}

	p := mustEcef(t, 11, 20)
	if d := arc.CrossTrackDistance(p); math.Abs(d-DegreesToRadians) > 1e-12 {
		t.Errorf("Expected distance from start, got %f", d)
	}
	if d := arc.AlongTrackDistance(p); d != 0 {
		t.Errorf("Expected zero along track, got %f", d)
	}
	if got := arc.Position(0.1); got != start {
		t.Errorf("Expected start, got %+v", got)
	}
}

// TestArcPosition tests interpolation along an arc
func TestArcPosition(t *testing.T) {
	arc := NewArc(mustEcef(t, 0, 0), mustEcef(t, 0, 90))

	mid := arc.Position(arc.Length / 2)
	lat, lon := ToLatLon(mid)
	if math.Abs(lat) > 1e-9 || math.Abs(lon-45) > 1e-9 {
		t.Errorf("Expected (0, 45), got (%f, %f)", lat, lon)
	}

	end := arc.Position(arc.Length)
	if end.GreatCircleDistance(arc.End) > 1e-12 {
		t.Errorf("Expected position at length to equal end point")
	}
}

// TestArcTurnAngle tests the signed change of direction at the end of an arc
func TestArcTurnAngle(t *testing.T) {
	arc := NewArc(mustEcef(t, 0, 0), mustEcef(t, 0, 10))

	tests := []struct {
		name     string
		lat, lon float64
		expected float64
	}{
		{"Right turn to the south", -10, 10, 90},
		{"Left turn to the north", 10, 10, -90},
		{"Straight on", 0, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := arc.TurnAngle(mustEcef(t, tt.lat, tt.lon)) * RadiansToDegrees
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Expected %f, got %f", tt.expected, got)
			}
		})
	}

	t.Run("Degenerate arc has no turn", func(t *testing.T) {
		p := mustEcef(t, 0, 0)
		if got := NewArc(p, p).TurnAngle(mustEcef(t, 1, 1)); got != 0 {
			t.Errorf("Expected 0, got %f", got)
		}
	})
}

// TestArcPerpendicularPosition tests offsets to either side of an arc
func TestArcPerpendicularPosition(t *testing.T) {
	arc := NewArc(mustEcef(t, 0, 0), mustEcef(t, 0, 10))
	point := mustEcef(t, 0, 5)

	lat, lon := ToLatLon(arc.PerpendicularPosition(point, DegreesToRadians))
	if math.Abs(lat-1) > 1e-9 || math.Abs(lon-5) > 1e-9 {
		t.Errorf("Expected (1, 5) to the left, got (%f, %f)", lat, lon)
	}

	lat, lon = ToLatLon(arc.PerpendicularPosition(point, -DegreesToRadians))
	if math.Abs(lat+1) > 1e-9 || math.Abs(lon-5) > 1e-9 {
		t.Errorf("Expected (-1, 5) to the right, got (%f, %f)", lat, lon)
	}
}

// TestArcAzimuth tests the direction of travel along an arc
func TestArcAzimuth(t *testing.T) {
	tests := []struct {
		name       string
		start, end [2]float64
		expected   float64
	}{
		{"Eastbound", [2]float64{0, 0}, [2]float64{0, 10}, 90},
		{"Westbound", [2]float64{0, 10}, [2]float64{0, 0}, 270},
		{"Northbound", [2]float64{0, 0}, [2]float64{10, 0}, 0},
		{"Southbound", [2]float64{10, 0}, [2]float64{0, 0}, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arc := NewArc(mustEcef(t, tt.start[0], tt.start[1]), mustEcef(t, tt.end[0], tt.end[1]))
			got := arc.Azimuth(arc.Position(arc.Length / 2))
			if math.Abs(got-tt.expected) > 1e-6 && math.Abs(got-tt.expected) < 360-1e-6 {
				t.Errorf("Expected %f, got %f", tt.expected, got)
			}
		})
	}
}
