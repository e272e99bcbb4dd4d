package db

import (
	"context"
	"math"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/unklstewy/ads-trajectory/pkg/adsb"
	"github.com/unklstewy/ads-trajectory/pkg/analysis"
	"github.com/unklstewy/ads-trajectory/pkg/config"
)

// fixtureFlight returns reports 10 s apart flying east along the equator at
// 450 kt.
func fixtureFlight(flightID string, n int) []adsb.Position {
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	positions := make([]adsb.Position, n)
	for i := range positions {
		positions[i] = adsb.Position{
			FlightID:  flightID,
			Source:    "adsb",
			ICAO:      "400ABC",
			Callsign:  "BAW123",
			Squawk:    "2201",
			Time:      start.Add(time.Duration(i) * 10 * time.Second),
			Longitude: float64(i) * 1.25 / 60.0,
			Altitude:  35000,
		}
	}
	return positions
}

// TestPositionValues tests COPY row construction.
func TestPositionValues(t *testing.T) {
	p := fixtureFlight("F1", 1)[0]
	p.Source = ""

	values := positionValues(p)
	if len(values) != len(positionColumns) {
		t.Fatalf("Expected %d values, got %d", len(positionColumns), len(values))
	}
	if values[1] != "adsb" {
		t.Errorf("Expected default source adsb, got %v", values[1])
	}
	if ts, ok := values[5].(time.Time); !ok || ts.Location() != time.UTC {
		t.Errorf("Expected UTC timestamp, got %v", values[5])
	}
}

// TestWaypointArrays tests splitting and joining waypoint columns.
func TestWaypointArrays(t *testing.T) {
	traj, metrics, err := analysis.Analyse(fixtureFlight("F1", 30), analysis.DefaultSettings())
	if err != nil {
		t.Fatalf("Analyse failed: %v", err)
	}

	lats, lons := splitWaypoints(traj.Waypoints())
	joined, err := joinWaypoints(lats, lons)
	if err != nil {
		t.Fatalf("joinWaypoints failed: %v", err)
	}
	if diff := cmp.Diff(traj.Waypoints(), joined); diff != "" {
		t.Errorf("Waypoints mismatch (-want +got):\n%s", diff)
	}

	if _, err := joinWaypoints([]float64{1}, nil); err == nil {
		t.Error("Expected error for mismatched arrays")
	}

	if metrics.Waypoints != len(lats) {
		t.Errorf("Expected %d waypoints, got %d", metrics.Waypoints, len(lats))
	}
}

// TestStoredTrajectory tests conversion to and from the stored form.
func TestStoredTrajectory(t *testing.T) {
	traj, metrics, err := analysis.Analyse(fixtureFlight("F1", 30), analysis.DefaultSettings())
	if err != nil {
		t.Fatalf("Analyse failed: %v", err)
	}

	runID := uuid.New()
	stored := NewStoredTrajectory(runID, traj, metrics)
	if stored.ID == uuid.Nil || stored.RunID != runID {
		t.Errorf("Expected new ID for run %s, got %+v", runID, stored.ID)
	}
	if stored.FlightID != "F1" || stored.Source != "adsb" {
		t.Errorf("Expected F1/adsb, got %s/%s", stored.FlightID, stored.Source)
	}

	rebuilt, err := stored.Trajectory()
	if err != nil {
		t.Fatalf("Trajectory failed: %v", err)
	}
	if diff := cmp.Diff(traj.Path.Indices, rebuilt.Path.Indices); diff != "" {
		t.Errorf("Indices mismatch (-want +got):\n%s", diff)
	}
	if math.Abs(rebuilt.Path.Length()-traj.Path.Length()) > 1e-12 {
		t.Errorf("Expected path length %f, got %f", traj.Path.Length(), rebuilt.Path.Length())
	}

	want := traj.PositionAt(100)
	got := rebuilt.PositionAt(100)
	if math.Abs(want.Longitude-got.Longitude) > 1e-9 || math.Abs(want.Latitude-got.Latitude) > 1e-9 {
		t.Errorf("Expected position %+v, got %+v", want, got)
	}
}

// TestStoredTrajectoryWithTurns tests that modelled turns survive storage.
func TestStoredTrajectoryWithTurns(t *testing.T) {
	positions := fixtureFlight("F2", 60)
	for i := 30; i < 60; i++ {
		positions[i].Longitude = 29 * 1.25 / 60.0
		positions[i].Latitude = float64(i-29) * 1.25 / 60.0
	}
	settings := analysis.DefaultSettings()
	settings.ModelTurns = true
	traj, metrics, err := analysis.Analyse(positions, settings)
	if err != nil {
		t.Fatalf("Analyse failed: %v", err)
	}
	if !traj.Path.HasTurns() {
		t.Fatal("Expected a modelled turn")
	}

	stored := NewStoredTrajectory(uuid.New(), traj, metrics)
	if len(stored.TurnDistances) != len(stored.Waypoints) {
		t.Fatalf("Expected %d turn distances, got %d", len(stored.Waypoints), len(stored.TurnDistances))
	}
	if stored.TurnDistances[0] != 0 || stored.TurnDistances[len(stored.TurnDistances)-1] != 0 {
		t.Errorf("Expected no turns at the ends, got %v", stored.TurnDistances)
	}

	rebuilt, err := stored.Trajectory()
	if err != nil {
		t.Fatalf("Trajectory failed: %v", err)
	}
	if !rebuilt.Path.HasTurns() {
		t.Error("Expected the rebuilt path to turn")
	}
	for i, want := range traj.Path.Distances {
		if got := rebuilt.Path.Distances[i]; math.Abs(got-want) > 1e-12 {
			t.Errorf("Expected waypoint distance %d to be %g, got %g", i, want, got)
		}
	}
	if math.Abs(rebuilt.Path.Length()-traj.Path.Length()) > 1e-12 {
		t.Errorf("Expected path length %f, got %f", traj.Path.Length(), rebuilt.Path.Length())
	}

	t.Run("Straight flight stores no turns", func(t *testing.T) {
		traj, metrics, err := analysis.Analyse(fixtureFlight("F1", 30), settings)
		if err != nil {
			t.Fatalf("Analyse failed: %v", err)
		}
		if stored := NewStoredTrajectory(uuid.New(), traj, metrics); stored.TurnDistances != nil {
			t.Errorf("Expected no turn distances, got %v", stored.TurnDistances)
		}
	})
}

// TestInt64Conversion tests index array conversion.
func TestInt64Conversion(t *testing.T) {
	in := []int{0, 4, 17}
	if diff := cmp.Diff(in, fromInt64s(toInt64s(in))); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
}

// testDatabase connects to the database named by ADS_TRAJECTORY_TEST_DB_HOST,
// skipping the test when it is not set.
func testDatabase(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("ADS_TRAJECTORY_TEST_DB_HOST")
	if host == "" {
		t.Skip("ADS_TRAJECTORY_TEST_DB_HOST not set")
	}

	cfg := config.DefaultConfig().Database
	cfg.Host = host
	if port, err := strconv.Atoi(os.Getenv("ADS_TRAJECTORY_TEST_DB_PORT")); err == nil {
		cfg.Port = port
	}
	if user := os.Getenv("ADS_TRAJECTORY_TEST_DB_USER"); user != "" {
		cfg.Username = user
	}
	cfg.Password = os.Getenv("ADS_TRAJECTORY_TEST_DB_PASSWORD")

	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	return db
}

// TestRepositoriesIntegration exercises both repositories against PostgreSQL.
func TestRepositoriesIntegration(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	positions := NewPositionRepository(db)
	trajectories := NewTrajectoryRepository(db)

	flightID := "TEST-" + uuid.NewString()
	fixture := fixtureFlight(flightID, 40)
	t.Cleanup(func() { positions.DeleteFlight(context.Background(), flightID) })

	if err := positions.InsertPositions(ctx, fixture); err != nil {
		t.Fatalf("InsertPositions failed: %v", err)
	}

	t.Run("Flight summary", func(t *testing.T) {
		flight, err := positions.GetFlight(ctx, flightID)
		if err != nil {
			t.Fatalf("GetFlight failed: %v", err)
		}
		if flight.Positions != 40 || flight.ICAO != "400ABC" {
			t.Errorf("Unexpected flight summary: %+v", flight)
		}

		flights, err := positions.ListFlights(ctx, fixture[0].Time, fixture[39].Time.Add(time.Second))
		if err != nil {
			t.Fatalf("ListFlights failed: %v", err)
		}
		found := false
		for _, f := range flights {
			found = found || f.FlightID == flightID
		}
		if !found {
			t.Errorf("Expected %s in listed flights", flightID)
		}
	})

	t.Run("Positions round trip", func(t *testing.T) {
		loaded, err := positions.LoadPositions(ctx, flightID)
		if err != nil {
			t.Fatalf("LoadPositions failed: %v", err)
		}
		if diff := cmp.Diff(fixture, loaded); diff != "" {
			t.Errorf("Positions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Run and trajectory", func(t *testing.T) {
		settings := config.DefaultConfig().Trajectory
		run, err := trajectories.CreateRun(ctx, settings)
		if err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}

		traj, metrics, err := analysis.Analyse(fixture, settings.Settings())
		if err != nil {
			t.Fatalf("Analyse failed: %v", err)
		}
		stored := NewStoredTrajectory(run.ID, traj, metrics)
		if err := trajectories.SaveTrajectory(ctx, stored); err != nil {
			t.Fatalf("SaveTrajectory failed: %v", err)
		}

		summary := RunSummary{Total: 1, Analysed: 1}
		if err := trajectories.FinishRun(ctx, run.ID, RunFinished, summary); err != nil {
			t.Fatalf("FinishRun failed: %v", err)
		}

		latest, err := trajectories.LatestRun(ctx)
		if err != nil {
			t.Fatalf("LatestRun failed: %v", err)
		}
		if latest.ID != run.ID || latest.Summary != summary || latest.FinishedAt == nil {
			t.Errorf("Unexpected latest run: %+v", latest)
		}
		if latest.Settings != settings {
			t.Errorf("Expected settings to round trip, got %+v", latest.Settings)
		}

		list, err := trajectories.ListTrajectories(ctx, run.ID, 0)
		if err != nil {
			t.Fatalf("ListTrajectories failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("Expected 1 trajectory, got %d", len(list))
		}
		if diff := cmp.Diff(stored, list[0]); diff != "" {
			t.Errorf("Trajectory mismatch (-want +got):\n%s", diff)
		}

		got, err := trajectories.GetTrajectory(ctx, stored.ID)
		if err != nil || got.ID != stored.ID {
			t.Errorf("GetTrajectory returned %v, %v", got.ID, err)
		}
	})
}
