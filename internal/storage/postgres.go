package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arrivals_etl/internal/flights"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN string
}

// Postgres mirrors the flights table into PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	addr string
}

// OpenPostgres opens a small connection pool and pings it.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("parse postgres config: %w", err)}
	}
	addr := fmt.Sprintf("%s:%d/%s", poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Port, poolCfg.ConnConfig.Database)

	poolCfg.MaxConns = 2
	poolCfg.MinConns = 0
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: addr, Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &StorageError{Op: "open", Path: addr, Err: fmt.Errorf("ping postgres: %w", err)}
	}

	return &Postgres{pool: pool, addr: addr}, nil
}

// Name implements FlightStore.
func (d *Postgres) Name() string { return "postgres" }

// Close closes the connection pool.
func (d *Postgres) Close() error {
	d.pool.Close()
	return nil
}

// ReplaceFlights recreates the flights table and bulk-loads rows with COPY.
func (d *Postgres) ReplaceFlights(ctx context.Context, rows []flights.FlightRow) error {
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS flights`); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			CREATE TABLE flights (
				flight_number     TEXT,
				departure_airport TEXT,
				arrival_time      TEXT
			)`); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.FlightNumber, r.DepartureAirport, r.ArrivalTime}, nil
		})
		n, err := tx.CopyFrom(ctx, pgx.Identifier{TableFlights},
			[]string{"flight_number", "departure_airport", "arrival_time"}, src)
		if err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copied %d rows, want %d", n, len(rows))
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "replace", Path: d.addr, Err: err}
	}
	return nil
}

// CountByDeparture returns flight counts grouped by departure airport.
func (d *Postgres) CountByDeparture(ctx context.Context) ([]flights.DepartureCount, error) {
	rows, err := d.pool.Query(ctx, countByDepartureSQL)
	if err != nil {
		return nil, &StorageError{Op: "query", Path: d.addr, Err: err}
	}

	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (flights.DepartureCount, error) {
		var c flights.DepartureCount
		var n int64
		err := row.Scan(&c.DepartureAirport, &n)
		c.FlightCount = int(n)
		return c, err
	})
	if err != nil {
		return nil, &StorageError{Op: "query", Path: d.addr, Err: err}
	}
	return counts, nil
}
