package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrivals_etl/internal/flights"
)

// fakeStore is an in-memory FlightStore.
type fakeStore struct {
	name      string
	rows      []flights.FlightRow
	failWrite error
	skew      int
	closed    bool
}

func (f *fakeStore) Name() string { return f.name }
func (f *fakeStore) Close() error { f.closed = true; return nil }

func (f *fakeStore) ReplaceFlights(_ context.Context, rows []flights.FlightRow) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	f.rows = append([]flights.FlightRow(nil), rows...)
	return nil
}

func (f *fakeStore) CountByDeparture(_ context.Context) ([]flights.DepartureCount, error) {
	counts := flights.Aggregate(f.rows)
	if f.skew != 0 && len(counts) > 0 {
		counts[0].FlightCount += f.skew
	}
	return counts, nil
}

func TestMirrorsReplaceAll(t *testing.T) {
	good := &fakeStore{name: "good"}
	broken := &fakeStore{name: "broken", failWrite: errors.New("connection reset")}
	skewed := &fakeStore{name: "skewed", skew: 1}
	ms := Mirrors{good, broken, skewed}

	errs := ms.ReplaceAll(context.Background(), exampleRows, flights.Aggregate(exampleRows))

	assert.NotContains(t, errs, "good")
	assert.Contains(t, errs, "broken")
	assert.Contains(t, errs, "skewed")
	assert.Equal(t, exampleRows, good.rows)

	require.NoError(t, ms.Close())
	assert.True(t, good.closed && broken.closed && skewed.closed)
}

func TestOpenMirrorsNoneConfigured(t *testing.T) {
	ms, errs := OpenMirrors(context.Background(), MirrorConfig{})
	assert.Empty(t, ms)
	assert.Empty(t, errs)
}

// Backend round trips run only when a server is available.

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("No PostgreSQL connection available")
	}
	ctx := context.Background()
	pg, err := OpenPostgres(ctx, PostgresConfig{DSN: dsn})
	if err != nil {
		t.Skipf("No PostgreSQL connection available: %v", err)
	}
	defer pg.Close()

	testRoundTrip(t, pg)
}

func TestClickHouseRoundTrip(t *testing.T) {
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("No ClickHouse connection available")
	}
	ctx := context.Background()
	ch, err := OpenClickHouse(ctx, ClickHouseConfig{Addr: addr, Database: "default", User: "default"})
	if err != nil {
		t.Skipf("No ClickHouse connection available: %v", err)
	}
	defer ch.Close()

	testRoundTrip(t, ch)
}

func testRoundTrip(t *testing.T, s FlightStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.ReplaceFlights(ctx, exampleRows))
	second := []flights.FlightRow{{FlightNumber: "FR1", DepartureAirport: "STN", ArrivalTime: "a"}}
	require.NoError(t, s.ReplaceFlights(ctx, second))

	got, err := s.CountByDeparture(ctx)
	require.NoError(t, err)
	assert.True(t, flights.SameCounts(flights.Aggregate(second), got), "got %v", got)
}
