package storage

import (
	"context"
	"errors"
	"fmt"

	"arrivals_etl/internal/flights"
)

// Schema of the flights table, shared by every backend. No primary key:
// the table is a snapshot of one fetch and is replaced wholesale.
const (
	TableFlights = "flights"

	countByDepartureSQL = `SELECT departure_airport, COUNT(*) AS flight_count
		FROM flights
		GROUP BY departure_airport
		ORDER BY flight_count DESC, departure_airport ASC`
)

// ErrNoFlightsTable is returned when querying a store that has never been
// written to.
var ErrNoFlightsTable = errors.New("flights table does not exist")

// StorageError wraps any failure opening, writing or reading a store.
type StorageError struct {
	Op   string // "open", "replace", "query", "close".
	Path string // File path or address of the store.
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FlightStore is implemented by every backend holding the flights table.
type FlightStore interface {
	// ReplaceFlights drops any previous contents and stores rows.
	ReplaceFlights(ctx context.Context, rows []flights.FlightRow) error
	// CountByDeparture runs the grouped count over the stored table.
	CountByDeparture(ctx context.Context) ([]flights.DepartureCount, error)
	// Name identifies the backend in logs.
	Name() string
	Close() error
}

// Mirrors holds the optional secondary stores. Their failures never fail a
// run; they are reported per mirror.
type Mirrors []FlightStore

// MirrorConfig selects which mirrors to open.
type MirrorConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
}

// OpenMirrors opens every configured mirror. A mirror that cannot be opened
// is reported in errs and left out.
func OpenMirrors(ctx context.Context, cfg MirrorConfig) (Mirrors, map[string]error) {
	var ms Mirrors
	errs := make(map[string]error)

	if cfg.Postgres.DSN != "" {
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			errs["postgres"] = err
		} else {
			ms = append(ms, pg)
		}
	}
	if cfg.ClickHouse.Addr != "" {
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			errs["clickhouse"] = err
		} else {
			ms = append(ms, ch)
		}
	}
	return ms, errs
}

// ReplaceAll writes rows to every mirror and returns per-mirror errors,
// including a disagreement between the mirror's grouped count and want.
func (m Mirrors) ReplaceAll(ctx context.Context, rows []flights.FlightRow, want []flights.DepartureCount) map[string]error {
	errs := make(map[string]error)
	for _, s := range m {
		if err := s.ReplaceFlights(ctx, rows); err != nil {
			errs[s.Name()] = err
			continue
		}
		got, err := s.CountByDeparture(ctx)
		if err != nil {
			errs[s.Name()] = err
			continue
		}
		if !flights.SameCounts(got, want) {
			errs[s.Name()] = fmt.Errorf("%s: grouped count %v does not match %v", s.Name(), got, want)
		}
	}
	return errs
}

// Close closes every mirror, returning the first error.
func (m Mirrors) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return first
}
