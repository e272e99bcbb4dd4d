package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/unklstewy/ads-trajectory/pkg/adsb"
)

// PositionRepository reads and writes raw position reports.
// It implements adsb.PositionSource.
type PositionRepository struct {
	db *DB
}

// NewPositionRepository creates a new position repository.
func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

var _ adsb.PositionSource = (*PositionRepository)(nil)

// ListFlights returns flights whose reports overlap [from, to), ordered by
// first report time.
func (r *PositionRepository) ListFlights(ctx context.Context, from, to time.Time) ([]adsb.Flight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT flight_id, MAX(callsign), MAX(icao), COUNT(*),
		        MIN(timestamp), MAX(timestamp)
		 FROM positions
		 GROUP BY flight_id
		 HAVING MIN(timestamp) < $2 AND MAX(timestamp) >= $1
		 ORDER BY MIN(timestamp), flight_id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	var flights []adsb.Flight
	for rows.Next() {
		var f adsb.Flight
		if err := rows.Scan(&f.FlightID, &f.Callsign, &f.ICAO, &f.Positions,
			&f.FirstSeen, &f.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, f)
	}

	return flights, rows.Err()
}

// GetFlight returns the summary of a single flight.
func (r *PositionRepository) GetFlight(ctx context.Context, flightID string) (adsb.Flight, error) {
	f := adsb.Flight{FlightID: flightID}
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(callsign), MAX(icao), COUNT(*), MIN(timestamp), MAX(timestamp)
		 FROM positions
		 WHERE flight_id = $1
		 HAVING COUNT(*) > 0`,
		flightID,
	).Scan(&f.Callsign, &f.ICAO, &f.Positions, &f.FirstSeen, &f.LastSeen)
	if err != nil {
		return adsb.Flight{}, fmt.Errorf("failed to query flight %s: %w", flightID, err)
	}
	return f, nil
}

// LoadPositions returns every report for a flight in time order.
func (r *PositionRepository) LoadPositions(ctx context.Context, flightID string) ([]adsb.Position, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT flight_id, source, icao, callsign, squawk, timestamp,
		        latitude, longitude, altitude_ft, ground_speed_kts, track_deg
		 FROM positions
		 WHERE flight_id = $1
		 ORDER BY timestamp, id`,
		flightID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []adsb.Position
	for rows.Next() {
		var p adsb.Position
		if err := rows.Scan(&p.FlightID, &p.Source, &p.ICAO, &p.Callsign, &p.Squawk,
			&p.Time, &p.Latitude, &p.Longitude, &p.Altitude, &p.GroundSpeed, &p.Track); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// positionColumns are the columns written by InsertPositions, in order.
var positionColumns = []string{
	"flight_id", "source", "icao", "callsign", "squawk", "timestamp",
	"latitude", "longitude", "altitude_ft", "ground_speed_kts", "track_deg",
}

// positionValues returns the column values of p in positionColumns order.
func positionValues(p adsb.Position) []any {
	source := p.Source
	if source == "" {
		source = "adsb"
	}
	return []any{
		p.FlightID, source, p.ICAO, p.Callsign, p.Squawk, p.Time.UTC(),
		p.Latitude, p.Longitude, p.Altitude, p.GroundSpeed, p.Track,
	}
}

// InsertPositions bulk loads reports with COPY inside a single transaction.
func (r *PositionRepository) InsertPositions(ctx context.Context, positions []adsb.Position) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("positions", positionColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i, p := range positions {
		if _, err := stmt.ExecContext(ctx, positionValues(p)...); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy position %d: %w", i, err)
		}
	}

	// Flush buffered rows
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit positions: %w", err)
	}
	return nil
}

// DeleteFlight removes all reports for a flight.
func (r *PositionRepository) DeleteFlight(ctx context.Context, flightID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE flight_id = $1`, flightID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete flight %s: %w", flightID, err)
	}
	return res.RowsAffected()
}
