// Package storage persists flight rows and runs the grouped count back
// against them. SQLite is the primary store; Postgres and ClickHouse are
// optional mirrors of the same table.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"arrivals_etl/internal/flights"
)

// SQLite wraps a file-backed SQLite database holding the flights table.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the SQLite database at path. Every failure is
// returned as a *StorageError.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}

	// sql.Open is lazy; touch the file so permission problems surface here.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "open", Path: path, Err: fmt.Errorf("enable WAL: %w", err)}
	}

	return &SQLite{db: db, path: path}, nil
}

// Name implements FlightStore.
func (s *SQLite) Name() string { return "sqlite" }

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return &StorageError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

// ReplaceFlights drops and recreates the flights table and inserts rows,
// all in one transaction.
func (s *SQLite) ReplaceFlights(ctx context.Context, rows []flights.FlightRow) error {
	if err := s.replace(ctx, rows); err != nil {
		return &StorageError{Op: "replace", Path: s.path, Err: err}
	}
	return nil
}

func (s *SQLite) replace(ctx context.Context, rows []flights.FlightRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	DROP TABLE IF EXISTS flights;
	CREATE TABLE flights (
		flight_number TEXT,
		departure_airport TEXT,
		arrival_time TEXT
	);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO flights (flight_number, departure_airport, arrival_time) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.FlightNumber, r.DepartureAirport, r.ArrivalTime); err != nil {
			return fmt.Errorf("insert flight %s: %w", r.FlightNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Flights returns every stored row in insertion order.
func (s *SQLite) Flights(ctx context.Context) ([]flights.FlightRow, error) {
	if err := s.requireTable(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT flight_number, departure_airport, arrival_time FROM flights ORDER BY rowid`)
	if err != nil {
		return nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []flights.FlightRow
	for rows.Next() {
		var fn, dep, arr sql.NullString
		if err := rows.Scan(&fn, &dep, &arr); err != nil {
			return nil, &StorageError{Op: "query", Path: s.path, Err: fmt.Errorf("scan row: %w", err)}
		}
		out = append(out, flights.FlightRow{
			FlightNumber:     fn.String,
			DepartureAirport: dep.String,
			ArrivalTime:      arr.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}
	return out, nil
}

// CountByDeparture returns flight counts grouped by departure airport.
func (s *SQLite) CountByDeparture(ctx context.Context) ([]flights.DepartureCount, error) {
	if err := s.requireTable(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, countByDepartureSQL)
	if err != nil {
		return nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}
	defer func() { _ = rows.Close() }()

	counts := []flights.DepartureCount{}
	for rows.Next() {
		var c flights.DepartureCount
		if err := rows.Scan(&c.DepartureAirport, &c.FlightCount); err != nil {
			return nil, &StorageError{Op: "query", Path: s.path, Err: fmt.Errorf("scan count: %w", err)}
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}
	return counts, nil
}

func (s *SQLite) requireTable(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, TableFlights).Scan(&n)
	if err != nil {
		return &StorageError{Op: "query", Path: s.path, Err: err}
	}
	if n == 0 {
		return &StorageError{Op: "query", Path: s.path, Err: ErrNoFlightsTable}
	}
	return nil
}
