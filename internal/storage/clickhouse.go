package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"arrivals_etl/internal/flights"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Addr     string // host:port of the native protocol.
	Database string
	User     string
	Password string
}

// ClickHouse mirrors the flights table into ClickHouse.
type ClickHouse struct {
	conn driver.Conn
	addr string
}

// OpenClickHouse opens a connection to ClickHouse and pings it.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, &StorageError{Op: "open", Path: cfg.Addr, Err: fmt.Errorf("open clickhouse: %w", err)}
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, &StorageError{Op: "open", Path: cfg.Addr, Err: fmt.Errorf("ping clickhouse: %w", err)}
	}

	return &ClickHouse{conn: conn, addr: cfg.Addr}, nil
}

// Name implements FlightStore.
func (d *ClickHouse) Name() string { return "clickhouse" }

// Close closes the ClickHouse connection.
func (d *ClickHouse) Close() error {
	return d.conn.Close()
}

// ReplaceFlights empties the flights table and batch-inserts rows.
// ClickHouse DDL is not transactional, so a failure mid-way can leave the
// table empty; the next run replaces it again.
func (d *ClickHouse) ReplaceFlights(ctx context.Context, rows []flights.FlightRow) error {
	if err := d.replace(ctx, rows); err != nil {
		return &StorageError{Op: "replace", Path: d.addr, Err: err}
	}
	return nil
}

func (d *ClickHouse) replace(ctx context.Context, rows []flights.FlightRow) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS flights (
			flight_number     String,
			departure_airport LowCardinality(String),
			arrival_time      String
		) ENGINE = MergeTree
		ORDER BY departure_airport`,
		`TRUNCATE TABLE IF EXISTS flights`,
	}
	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("prepare table: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `INSERT INTO flights (flight_number, departure_airport, arrival_time)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.FlightNumber, r.DepartureAirport, r.ArrivalTime); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByDeparture returns flight counts grouped by departure airport.
func (d *ClickHouse) CountByDeparture(ctx context.Context) ([]flights.DepartureCount, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT departure_airport, count() AS flight_count
		FROM flights
		GROUP BY departure_airport
		ORDER BY flight_count DESC, departure_airport ASC`)
	if err != nil {
		return nil, &StorageError{Op: "query", Path: d.addr, Err: err}
	}
	defer rows.Close()

	var counts []flights.DepartureCount
	for rows.Next() {
		var airport string
		var n uint64
		if err := rows.Scan(&airport, &n); err != nil {
			return nil, &StorageError{Op: "query", Path: d.addr, Err: fmt.Errorf("scan count: %w", err)}
		}
		counts = append(counts, flights.DepartureCount{DepartureAirport: airport, FlightCount: int(n)})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Path: d.addr, Err: fmt.Errorf("iterate counts: %w", err)}
	}
	return counts, nil
}
