package adsb

import (
	"errors"
	"testing"
	"time"

	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
)

// TestGroupBySource tests splitting reports by source.
func TestGroupBySource(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	positions := []Position{
		{Source: "radar", Time: base.Add(20 * time.Second), Latitude: 1},
		{Source: "adsb", Time: base.Add(10 * time.Second), Latitude: 2},
		{Source: "radar", Time: base, Latitude: 3},
		{Source: "adsb", Time: base, Latitude: 4},
		{Source: "adsb", Time: base.Add(10 * time.Second), Latitude: 5},
	}

	groups, sources := GroupBySource(positions)

	if len(sources) != 2 || sources[0] != "adsb" || sources[1] != "radar" {
		t.Fatalf("Expected sources [adsb radar], got %v", sources)
	}

	t.Run("Groups are time ordered", func(t *testing.T) {
		for source, group := range groups {
			for i := 1; i < len(group); i++ {
				if group[i].Time.Before(group[i-1].Time) {
					t.Errorf("%s: position %d out of order", source, i)
				}
			}
		}
	})

	t.Run("Equal times keep input order", func(t *testing.T) {
		adsb := groups["adsb"]
		if len(adsb) != 3 {
			t.Fatalf("Expected 3 adsb positions, got %d", len(adsb))
		}
		if adsb[1].Latitude != 2 || adsb[2].Latitude != 5 {
			t.Errorf("Expected stable order, got %v then %v", adsb[1].Latitude, adsb[2].Latitude)
		}
	})
}

// TestPositionConversions tests geographic and ECEF conversion of a report.
func TestPositionConversions(t *testing.T) {
	p := Position{Latitude: 51.5, Longitude: -0.45, Altitude: 10000}

	geo := p.Geographic()
	if geo.Altitude != 10000*coordinates.FeetToMeters {
		t.Errorf("Expected altitude in meters, got %f", geo.Altitude)
	}

	if _, err := p.Ecef(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	bad := Position{Latitude: 91}
	if _, err := bad.Ecef(); !errors.Is(err, coordinates.ErrInvalidCoordinate) {
		t.Errorf("Expected ErrInvalidCoordinate, got %v", err)
	}
}
