package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/ads-trajectory/pkg/adsb"
	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/timeprofile"
)

var flightStart = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// straightFlight returns n reports 10 s apart flying east along the equator
// at 450 kt (1.25 NM per report).
func straightFlight(n int) []adsb.Position {
	step := 1.25 / 60.0
	positions := make([]adsb.Position, n)
	for i := range positions {
		positions[i] = adsb.Position{
			FlightID:  "BAW123-20240601",
			Source:    "adsb",
			ICAO:      "400ABC",
			Squawk:    "2201",
			Time:      flightStart.Add(time.Duration(i) * 10 * time.Second),
			Longitude: float64(i) * step,
			Altitude:  35000,
		}
	}
	return positions
}

// cornerFlight flies east for n reports and then north for n reports.
func cornerFlight(n int) []adsb.Position {
	step := 1.25 / 60.0
	positions := straightFlight(2 * n)
	for i := n; i < 2*n; i++ {
		positions[i].Longitude = float64(n-1) * step
		positions[i].Latitude = float64(i-n+1) * step
	}
	return positions
}

func TestAnalyse(t *testing.T) {
	t.Parallel()

	t.Run("straight flight", func(t *testing.T) {
		t.Parallel()
		traj, metrics, err := Analyse(straightFlight(60), DefaultSettings())
		require.NoError(t, err)

		assert.Equal(t, "BAW123-20240601", traj.FlightID)
		assert.Equal(t, "adsb", traj.Source)
		assert.Equal(t, flightStart, traj.StartTime)
		assert.Len(t, traj.Waypoints(), 2)

		require.Len(t, traj.Distances, 60)
		require.Len(t, traj.Times, 60)
		require.Len(t, traj.Speeds, 60)
		assert.Equal(t, 0.0, traj.Speeds[0])
		for i := 1; i < len(traj.Speeds); i++ {
			assert.InDelta(t, 450.0, traj.Speeds[i], 1e-6, "speed %d", i)
		}
		assert.Equal(t, 0.0, traj.Times[0])
		assert.Equal(t, 590.0, traj.Times[59])

		assert.Equal(t, 60, metrics.Positions)
		assert.Equal(t, 0, metrics.InvalidPositions)
		assert.Equal(t, 0, metrics.DuplicatePositions)
		assert.Equal(t, 2, metrics.Waypoints)
		assert.InDelta(t, 10.0, metrics.PositionPeriod, 1e-9)
		assert.False(t, metrics.Unordered)
		assert.Equal(t, Cruising, metrics.AltitudeProfile)
		assert.InDelta(t, 0.0, metrics.CrossTrackRMS, 1e-9)
		assert.InDelta(t, 0.0, metrics.TimeStdDev, 1e-6)
		assert.InDelta(t, 73.75, metrics.PathLengthNM, 1e-6)
		assert.InDelta(t, 590.0, metrics.DurationSeconds, 1e-6)
		assert.InDelta(t, 450.0, metrics.MaxSpeedKnots, 1e-6)
	})

	t.Run("corner keeps three waypoints", func(t *testing.T) {
		t.Parallel()
		traj, metrics, err := Analyse(cornerFlight(30), DefaultSettings())
		require.NoError(t, err)

		assert.Equal(t, 3, metrics.Waypoints)
		geo := traj.Waypoints()
		assert.InDelta(t, 29*1.25/60.0, geo[1].Longitude, 1e-9)
		assert.InDelta(t, 0.0, geo[1].Latitude, 1e-9)

		for i := 1; i < len(traj.Distances); i++ {
			assert.GreaterOrEqual(t, traj.Distances[i], traj.Distances[i-1])
			assert.GreaterOrEqual(t, traj.Times[i], traj.Times[i-1])
			assert.LessOrEqual(t, traj.Speeds[i], 750.0+1e-6)
		}
	})

	t.Run("out of order positions are flagged", func(t *testing.T) {
		t.Parallel()
		positions := straightFlight(30)
		positions[10].Longitude, positions[11].Longitude = positions[11].Longitude, positions[10].Longitude

		settings := DefaultSettings()
		settings.CleanPositions = false
		traj, metrics, err := Analyse(positions, settings)
		require.NoError(t, err)

		assert.True(t, metrics.Unordered)
		for i := 1; i < len(traj.Distances); i++ {
			assert.GreaterOrEqual(t, traj.Distances[i], traj.Distances[i-1])
			assert.GreaterOrEqual(t, traj.Times[i], traj.Times[i-1])
		}
	})

	t.Run("duplicate positions are removed", func(t *testing.T) {
		t.Parallel()
		positions := straightFlight(20)
		repeat := positions[5]
		repeat.Time = repeat.Time.Add(time.Second)
		positions = append(positions, repeat)

		settings := DefaultSettings()
		settings.CleanPositions = false
		traj, metrics, err := Analyse(positions, settings)
		require.NoError(t, err)

		assert.Equal(t, 1, metrics.DuplicatePositions)
		assert.Len(t, traj.Distances, 20)
	})

	t.Run("unsorted input is accepted", func(t *testing.T) {
		t.Parallel()
		positions := straightFlight(20)
		positions[0], positions[19] = positions[19], positions[0]

		traj, metrics, err := Analyse(positions, DefaultSettings())
		require.NoError(t, err)
		assert.False(t, metrics.Unordered)
		assert.Equal(t, flightStart, traj.StartTime)
	})

	t.Run("fast projection agrees with path projection", func(t *testing.T) {
		t.Parallel()
		settings := DefaultSettings()
		full, _, err := Analyse(cornerFlight(20), settings)
		require.NoError(t, err)

		settings.FastProjection = true
		fast, _, err := Analyse(cornerFlight(20), settings)
		require.NoError(t, err)

		assert.Equal(t, full.Path.Indices, fast.Path.Indices)
		assert.InDeltaSlice(t, full.Distances, fast.Distances, 1e-6)
	})

	t.Run("modelled turn shortens a cornering path", func(t *testing.T) {
		t.Parallel()
		settings := DefaultSettings()
		corner, cornerMetrics, err := Analyse(cornerFlight(30), settings)
		require.NoError(t, err)

		settings.ModelTurns = true
		turned, metrics, err := Analyse(cornerFlight(30), settings)
		require.NoError(t, err)

		assert.False(t, corner.Path.HasTurns())
		require.True(t, turned.Path.HasTurns())
		assert.InDelta(t, 1.25, coordinates.RadiansToNauticalMiles(turned.Path.TurnDistances[1]), 1e-6)
		assert.Equal(t, cornerMetrics.Waypoints, metrics.Waypoints)
		assert.Less(t, metrics.PathLengthNM, cornerMetrics.PathLengthNM)

		require.Len(t, turned.Distances, 60)
		for i := 1; i < len(turned.Distances); i++ {
			assert.Greater(t, turned.Distances[i], turned.Distances[i-1], "distance %d", i)
		}
		assert.InDelta(t, metrics.PathLengthNM, turned.Distances[59], 1e-6)
	})

	t.Run("position at elapsed time", func(t *testing.T) {
		t.Parallel()
		traj, _, err := Analyse(straightFlight(60), DefaultSettings())
		require.NoError(t, err)

		at := traj.PositionAt(295)
		assert.InDelta(t, 0.0, at.Latitude, 1e-9)
		assert.InDelta(t, 295*0.125/60.0, at.Longitude, 1e-6)
	})
}

func TestAnalyseErrors(t *testing.T) {
	t.Parallel()

	_, _, err := Analyse(straightFlight(1), DefaultSettings())
	assert.ErrorIs(t, err, ErrTooFewPositions)

	positions := straightFlight(2)
	positions[1].Longitude = 20 // 1200 NM in ten seconds
	_, metrics, err := Analyse(positions, DefaultSettings())
	assert.ErrorIs(t, err, ErrTooFewPositions)
	assert.Equal(t, 1, metrics.InvalidPositions)

	settings := DefaultSettings()
	settings.CleanPositions = false
	positions = straightFlight(5)
	positions[2].Latitude = 95
	_, _, err = Analyse(positions, settings)
	assert.ErrorIs(t, err, coordinates.ErrInvalidCoordinate)

	stationary := straightFlight(5)
	for i := range stationary {
		stationary[i].Longitude = 0
	}
	_, _, err = Analyse(stationary, settings)
	assert.ErrorIs(t, err, ErrTooFewPositions)
	assert.ErrorIs(t, err, timeprofile.ErrDegenerateInput)
}

func TestClassifyAltitudeProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		altitudes []float64
		want      AltitudeProfile
	}{
		{"level at flight level", []float64{35000, 35000, 35000, 35000}, Cruising},
		{"climb", []float64{1000, 5000, 10000, 20000}, Climbing},
		{"climb then level", []float64{1000, 5000, 10000, 10000}, Climbing},
		{"descent", []float64{30000, 20000, 10000, 2000}, Descending},
		{"climb and descent", []float64{2000, 30000, 30000, 3000}, ClimbingAndDescending},
		{"cruise with a small deviation", []float64{35000, 35000, 35100, 35000, 35000}, Cruising},
		{"empty", nil, Cruising},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyAltitudeProfile(tt.altitudes))
		})
	}
}

func TestFindLevelSections(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{0, 2, 4, 6}, FindLevelSections([]float64{1, 1, 1, 2, 3, 3, 3}))
	assert.Equal(t, []int{2, 4}, FindLevelSections([]float64{1, 2, 3, 3, 3}))
	assert.Nil(t, FindLevelSections([]float64{1, 2, 3}))
	assert.Nil(t, FindLevelSections([]float64{1, 1}))
}

func TestFindCruiseSections(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{0, 4}, FindCruiseSections([]float64{35000, 35000, 35100, 35000, 35000}))
	assert.Equal(t, []int{0, 1, 3, 4}, FindCruiseSections([]float64{35000, 35000, 35300, 35000, 35000}))
	assert.Equal(t, []int{0, 1, 2, 3}, FindCruiseSections([]float64{35000, 35000, 36000, 36000}))
	assert.Empty(t, FindCruiseSections([]float64{10, 20}))

	assert.Equal(t, []bool{false, true, true, true, false}, FindCruisePositions(5, []int{0, 4}))
	assert.Equal(t, []bool{false, false, false}, FindCruisePositions(3, nil))
}

func TestCruisingAltitude(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 35000.0, ClosestCruisingAltitude(35150))
	assert.Equal(t, 36000.0, ClosestCruisingAltitude(35600))
	assert.True(t, IsCruising(34850))
	assert.False(t, IsCruising(34500))
	assert.Equal(t, "climbing_and_descending", ClimbingAndDescending.String())

	profile, err := ParseAltitudeProfile("descending")
	require.NoError(t, err)
	assert.Equal(t, Descending, profile)
	_, err = ParseAltitudeProfile("hovering")
	assert.Error(t, err)
}
