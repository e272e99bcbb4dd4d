package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unklstewy/ads-trajectory/pkg/analysis"
	"github.com/unklstewy/ads-trajectory/pkg/config"
	"github.com/unklstewy/ads-trajectory/pkg/coordinates"
	"github.com/unklstewy/ads-trajectory/pkg/horizontal"
)

// ErrNoRuns is returned by LatestRun when no run has finished.
var ErrNoRuns = errors.New("no finished analysis runs")

// Run statuses.
const (
	RunRunning   = "running"
	RunFinished  = "finished"
	RunCancelled = "cancelled"
	RunFailed    = "failed"
)

// Run is one batch execution of the trajectory processor.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Settings   config.TrajectoryConfig
	Summary    RunSummary
}

// RunSummary counts flight outcomes in a run.
type RunSummary struct {
	Total    int
	Analysed int
	Rejected int
	Failed   int
}

// StoredTrajectory is a smoothed trajectory as persisted, with its metrics.
type StoredTrajectory struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	FlightID  string
	Source    string
	StartTime time.Time

	Waypoints []coordinates.Geographic

	// WaypointIndices is the index of each waypoint in the cleaned positions
	WaypointIndices []int

	// TurnDistances is the turn initiation distance at each waypoint in NM;
	// empty for a path without turns
	TurnDistances []float64

	Distances []float64 // NM
	Times     []float64 // seconds after StartTime
	Speeds    []float64 // knots
	Altitudes []float64 // feet

	Metrics analysis.Metrics
}

// Trajectory rebuilds the analysis form, including its path, so it can be
// interpolated.
func (s StoredTrajectory) Trajectory() (*analysis.SmoothedTrajectory, error) {
	points := make([]coordinates.EcefVector, len(s.Waypoints))
	for i, w := range s.Waypoints {
		v, err := w.ToEcef()
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		points[i] = v
	}

	indices := s.WaypointIndices
	if len(indices) != len(points) {
		indices = make([]int, len(points))
		for i := range indices {
			indices[i] = i
		}
	}
	var turns []float64
	if len(s.TurnDistances) == len(points) {
		turns = make([]float64, len(points))
		for i, d := range s.TurnDistances {
			turns[i] = coordinates.NauticalMilesToRadians(d)
		}
	}
	path, err := horizontal.RestorePathWithTurns(points, indices, turns)
	if err != nil {
		return nil, err
	}

	return &analysis.SmoothedTrajectory{
		FlightID:  s.FlightID,
		Source:    s.Source,
		StartTime: s.StartTime,
		Path:      path,
		Distances: s.Distances,
		Times:     s.Times,
		Speeds:    s.Speeds,
		Altitudes: s.Altitudes,
	}, nil
}

// NewStoredTrajectory prepares an analysed trajectory for storage.
func NewStoredTrajectory(runID uuid.UUID, traj *analysis.SmoothedTrajectory, metrics analysis.Metrics) StoredTrajectory {
	var turns []float64
	if traj.Path.HasTurns() {
		turns = make([]float64, len(traj.Path.TurnDistances))
		for i, d := range traj.Path.TurnDistances {
			turns[i] = coordinates.RadiansToNauticalMiles(d)
		}
	}

	return StoredTrajectory{
		ID:              uuid.New(),
		RunID:           runID,
		FlightID:        traj.FlightID,
		Source:          traj.Source,
		StartTime:       traj.StartTime.UTC(),
		Waypoints:       traj.Waypoints(),
		WaypointIndices: traj.Path.Indices,
		TurnDistances:   turns,
		Distances:       traj.Distances,
		Times:           traj.Times,
		Speeds:          traj.Speeds,
		Altitudes:       traj.Altitudes,
		Metrics:         metrics,
	}
}

// TrajectoryRepository handles analysis runs and their trajectories.
type TrajectoryRepository struct {
	db *DB
}

// NewTrajectoryRepository creates a new trajectory repository.
func NewTrajectoryRepository(db *DB) *TrajectoryRepository {
	return &TrajectoryRepository{db: db}
}

// CreateRun records the start of a batch run with the settings it uses.
func (r *TrajectoryRepository) CreateRun(ctx context.Context, settings config.TrajectoryConfig) (Run, error) {
	run := Run{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
		Settings:  settings,
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return Run{}, fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, started_at, status, settings)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.StartedAt, run.Status, settingsJSON,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// FinishRun records the outcome of a run.
func (r *TrajectoryRepository) FinishRun(ctx context.Context, id uuid.UUID, status string, summary RunSummary) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE analysis_runs SET
			finished_at = $2,
			status = $3,
			flights_total = $4,
			flights_analysed = $5,
			flights_rejected = $6,
			flights_failed = $7
		 WHERE id = $1`,
		id, time.Now().UTC(), status,
		summary.Total, summary.Analysed, summary.Rejected, summary.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// LatestRun returns the most recently started finished run.
func (r *TrajectoryRepository) LatestRun(ctx context.Context) (Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, settings,
		        flights_total, flights_analysed, flights_rejected, flights_failed
		 FROM analysis_runs
		 WHERE status = $1
		 ORDER BY started_at DESC
		 LIMIT 1`,
		RunFinished,
	)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	return run, err
}

func scanRun(row *sql.Row) (Run, error) {
	var (
		run          Run
		finishedAt   sql.NullTime
		settingsJSON []byte
	)
	err := row.Scan(&run.ID, &run.StartedAt, &finishedAt, &run.Status, &settingsJSON,
		&run.Summary.Total, &run.Summary.Analysed, &run.Summary.Rejected, &run.Summary.Failed)
	if err != nil {
		return Run{}, err
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if err := json.Unmarshal(settingsJSON, &run.Settings); err != nil {
		return Run{}, fmt.Errorf("failed to parse run settings: %w", err)
	}
	return run, nil
}

// SaveTrajectory stores a trajectory and its metrics in one transaction.
func (r *TrajectoryRepository) SaveTrajectory(ctx context.Context, t StoredTrajectory) error {
	lats, lons := splitWaypoints(t.Waypoints)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trajectories (
			id, run_id, flight_id, source, start_time,
			waypoint_lats, waypoint_lons, waypoint_indices, turn_distances_nm,
			distances_nm, elapsed_s, speeds_kts, altitudes_ft
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.RunID, t.FlightID, t.Source, t.StartTime,
		pq.Array(lats), pq.Array(lons), pq.Array(toInt64s(t.WaypointIndices)),
		pq.Array(nonNil(t.TurnDistances)),
		pq.Array(t.Distances), pq.Array(t.Times), pq.Array(t.Speeds), pq.Array(t.Altitudes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trajectory %s/%s: %w", t.FlightID, t.Source, err)
	}

	m := t.Metrics
	_, err = tx.ExecContext(ctx,
		`INSERT INTO trajectory_metrics (
			trajectory_id, positions, invalid_positions, duplicate_positions,
			waypoints, position_period_s, unordered, altitude_profile,
			cross_track_rms_nm, time_offset_s, time_stddev_s,
			path_length_nm, duration_s, max_speed_kts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, m.Positions, m.InvalidPositions, m.DuplicatePositions,
		m.Waypoints, m.PositionPeriod, m.Unordered, m.AltitudeProfile.String(),
		m.CrossTrackRMS, m.TimeOffset, m.TimeStdDev,
		m.PathLengthNM, m.DurationSeconds, m.MaxSpeedKnots,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trajectory metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trajectory: %w", err)
	}
	return nil
}

const trajectorySelect = `SELECT t.id, t.run_id, t.flight_id, t.source, t.start_time,
		t.waypoint_lats, t.waypoint_lons, t.waypoint_indices, t.turn_distances_nm,
		t.distances_nm, t.elapsed_s, t.speeds_kts, t.altitudes_ft,
		m.positions, m.invalid_positions, m.duplicate_positions, m.waypoints,
		m.position_period_s, m.unordered, m.altitude_profile,
		m.cross_track_rms_nm, m.time_offset_s, m.time_stddev_s,
		m.path_length_nm, m.duration_s, m.max_speed_kts
	FROM trajectories t
	JOIN trajectory_metrics m ON m.trajectory_id = t.id`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrajectory(row rowScanner) (StoredTrajectory, error) {
	var (
		t          StoredTrajectory
		lats, lons []float64
		indices    []int64
		profile    string
	)
	m := &t.Metrics
	err := row.Scan(&t.ID, &t.RunID, &t.FlightID, &t.Source, &t.StartTime,
		pq.Array(&lats), pq.Array(&lons), pq.Array(&indices), pq.Array(&t.TurnDistances),
		pq.Array(&t.Distances), pq.Array(&t.Times), pq.Array(&t.Speeds), pq.Array(&t.Altitudes),
		&m.Positions, &m.InvalidPositions, &m.DuplicatePositions, &m.Waypoints,
		&m.PositionPeriod, &m.Unordered, &profile,
		&m.CrossTrackRMS, &m.TimeOffset, &m.TimeStdDev,
		&m.PathLengthNM, &m.DurationSeconds, &m.MaxSpeedKnots,
	)
	if err != nil {
		return StoredTrajectory{}, err
	}

	if m.AltitudeProfile, err = analysis.ParseAltitudeProfile(profile); err != nil {
		return StoredTrajectory{}, err
	}
	if t.Waypoints, err = joinWaypoints(lats, lons); err != nil {
		return StoredTrajectory{}, err
	}
	t.WaypointIndices = fromInt64s(indices)
	if len(t.TurnDistances) == 0 {
		t.TurnDistances = nil
	}
	return t, nil
}

// ListTrajectories returns up to limit trajectories of a run ordered by start
// time. A limit of 0 returns all of them.
func (r *TrajectoryRepository) ListTrajectories(ctx context.Context, runID uuid.UUID, limit int) ([]StoredTrajectory, error) {
	query := trajectorySelect + ` WHERE t.run_id = $1 ORDER BY t.start_time, t.flight_id, t.source`
	args := []any{runID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectories: %w", err)
	}
	defer rows.Close()

	var trajectories []StoredTrajectory
	for rows.Next() {
		t, err := scanTrajectory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trajectory: %w", err)
		}
		trajectories = append(trajectories, t)
	}

	return trajectories, rows.Err()
}

// GetTrajectory returns one stored trajectory.
func (r *TrajectoryRepository) GetTrajectory(ctx context.Context, id uuid.UUID) (StoredTrajectory, error) {
	t, err := scanTrajectory(r.db.QueryRowContext(ctx, trajectorySelect+` WHERE t.id = $1`, id))
	if err != nil {
		return StoredTrajectory{}, fmt.Errorf("failed to get trajectory %s: %w", id, err)
	}
	return t, nil
}

func splitWaypoints(waypoints []coordinates.Geographic) (lats, lons []float64) {
	lats = make([]float64, len(waypoints))
	lons = make([]float64, len(waypoints))
	for i, w := range waypoints {
		lats[i] = w.Latitude
		lons[i] = w.Longitude
	}
	return lats, lons
}

func joinWaypoints(lats, lons []float64) ([]coordinates.Geographic, error) {
	if len(lats) != len(lons) {
		return nil, fmt.Errorf("waypoint arrays differ in length: %d latitudes, %d longitudes", len(lats), len(lons))
	}
	waypoints := make([]coordinates.Geographic, len(lats))
	for i := range lats {
		waypoints[i] = coordinates.Geographic{Latitude: lats[i], Longitude: lons[i]}
	}
	return waypoints, nil
}

func toInt64s(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

func fromInt64s(v []int64) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

// nonNil stores a nil slice as an empty array rather than NULL.
func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
