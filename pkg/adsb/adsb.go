package adsb

import (
	"context"
	"sort"
	"time"

	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
)

// Position is a single surveillance report for a flight.
// All position data is in WGS84 coordinate system.
type Position struct {
	// FlightID identifies the flight the report was correlated to
	FlightID string

	// Source is the sensor or feed that produced the report (e.g. "adsb", "radar")
	Source string

	// ICAO is the unique 24-bit ICAO aircraft address (e.g., "A12345").
	// Empty for sources that do not report it.
	ICAO string

	// Callsign is the flight number or aircraft registration
	Callsign string

	// Squawk is the SSR (transponder) code
	Squawk string

	// Time is when the position was measured (UTC)
	Time time.Time

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64

	// Altitude in feet above mean sea level (MSL)
	// Note: Some aircraft report geometric altitude, others barometric
	Altitude float64

	// GroundSpeed in knots as reported by the source (zero if not reported)
	GroundSpeed float64

	// Track is the ground track (heading) in degrees (0-359)
	// 0 = North, 90 = East, 180 = South, 270 = West
	Track float64
}

// Geographic returns the report's position with altitude converted to meters.
func (p Position) Geographic() coordinates.Geographic {
	return coordinates.Geographic{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Altitude:  p.Altitude * coordinates.FeetToMeters,
	}
}

// Ecef returns the report's horizontal position as a unit vector.
func (p Position) Ecef() (coordinates.EcefVector, error) {
	return coordinates.ToEcef(p.Latitude, p.Longitude)
}

// Flight summarises the reports held for one flight.
type Flight struct {
	FlightID  string
	Callsign  string
	ICAO      string
	Positions int
	FirstSeen time.Time
	LastSeen  time.Time
}

// PositionSource is the interface that position stores must implement.
// This abstraction allows the trajectory processor to read from the database
// or from in-memory fixtures in tests.
type PositionSource interface {
	// ListFlights returns flights with reports between from and to.
	ListFlights(ctx context.Context, from, to time.Time) ([]Flight, error)

	// LoadPositions returns every report for a flight in time order.
	LoadPositions(ctx context.Context, flightID string) ([]Position, error)
}

// SortByTime sorts positions into time order in place. Reports with equal
// times keep their relative order.
func SortByTime(positions []Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Time.Before(positions[j].Time)
	})
}

// GroupBySource splits positions by source, each group in time order.
// Returns the groups and the source names in sorted order.
func GroupBySource(positions []Position) (map[string][]Position, []string) {
	groups := make(map[string][]Position)
	for _, p := range positions {
		groups[p.Source] = append(groups[p.Source], p)
	}

	sources := make([]string, 0, len(groups))
	for source, group := range groups {
		SortByTime(group)
		sources = append(sources, source)
	}
	sort.Strings(sources)

	return groups, sources
}
