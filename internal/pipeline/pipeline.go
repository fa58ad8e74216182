// Package pipeline runs one fetch, shape, store, query and plot cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"arrivals_etl/internal/aviationstack"
	"arrivals_etl/internal/chart"
	"arrivals_etl/internal/config"
	"arrivals_etl/internal/flights"
	"arrivals_etl/internal/logger"
	"arrivals_etl/internal/metrics"
	"arrivals_etl/internal/notify"
	"arrivals_etl/internal/storage"
)

// ErrNoFlights is returned when the API call yields no usable records.
// Nothing is written in that case.
var ErrNoFlights = errors.New("no flights returned")

// MismatchError reports that the grouped count read back from the store
// disagrees with the in-memory aggregate.
type MismatchError struct {
	InMemory []flights.DepartureCount
	Stored   []flights.DepartureCount
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("stored counts %v do not match in-memory counts %v", e.Stored, e.InMemory)
}

// Fetcher returns flight records for an arrival airport.
type Fetcher interface {
	FetchArrivals(ctx context.Context, airport string, limit int) ([]flights.FlightRecord, error)
}

// Deps are the collaborators of a run. A nil Fetcher becomes an
// aviationstack client built from the config; nil Log, Metrics and Out
// become a nop logger, fresh collectors and io.Discard. Mirrors and
// Publisher are optional, see Connect.
type Deps struct {
	Fetcher   Fetcher
	Log       logger.Logger
	Metrics   *metrics.Pipeline
	Out       io.Writer
	Mirrors   storage.Mirrors
	Publisher notify.Publisher
	Now       func() time.Time
}

// Result describes a completed run.
type Result struct {
	ArrivalAirport string
	Records        int
	Rows           []flights.FlightRow
	Skipped        []*flights.ShapeError
	Counts         []flights.DepartureCount
	StoredCounts   []flights.DepartureCount
	DBPath         string
	ChartPath      string
	MirrorErrors   map[string]error
	PublishErr     error
	Duration       time.Duration
}

// Run executes the pipeline with cfg. The config is validated first; a
// *config.ConfigError means no network call was made.
func Run(ctx context.Context, cfg config.Config, deps Deps) (res *Result, err error) {
	deps = withDefaults(deps)
	log, m := deps.Log, deps.Metrics
	start := deps.Now()

	stage := "config"
	defer func() {
		if err != nil {
			m.Errors.WithLabelValues(stage).Inc()
			m.Runs.WithLabelValues("failure").Inc()
			log.Error("run failed", "stage", stage, "error", err)
			return
		}
		m.Runs.WithLabelValues("success").Inc()
		m.LastSuccess.Set(float64(deps.Now().Unix()))
	}()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil {
		deps.Fetcher = aviationstack.NewClient(aviationstack.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	}
	log = log.With("airport", cfg.ArrivalAirport)
	res = &Result{ArrivalAirport: cfg.ArrivalAirport, DBPath: cfg.DBPath, ChartPath: cfg.ChartPath}

	stage = "fetch"
	t := time.Now()
	records, err := deps.Fetcher.FetchArrivals(ctx, cfg.ArrivalAirport, cfg.Limit)
	m.ObserveStage(stage, t)
	if err != nil {
		return nil, fmt.Errorf("fetch arrivals: %w", err)
	}
	res.Records = len(records)
	m.RecordsFetched.Add(float64(len(records)))
	log.Info("fetched flights", "records", len(records), "limit", cfg.Limit)

	stage = "shape"
	rows, skipped, err := flights.Shape(records, cfg.Policy())
	if err != nil {
		return nil, fmt.Errorf("shape records: %w", err)
	}
	for _, s := range skipped {
		log.Warn("skipped record", "index", s.Index, "missing", s.Field)
	}
	m.RecordsSkipped.Add(float64(len(skipped)))
	if len(rows) == 0 {
		return nil, ErrNoFlights
	}
	res.Rows, res.Skipped = rows, skipped
	printFlights(deps.Out, rows)

	res.Counts = flights.Aggregate(rows)
	printCounts(deps.Out, "", res.Counts)

	stage = "store"
	t = time.Now()
	stored, err := persist(ctx, cfg.DBPath, rows)
	m.ObserveStage(stage, t)
	if err != nil {
		return nil, err
	}
	res.StoredCounts = stored
	m.RowsStored.Set(float64(len(rows)))
	log.Info("stored flights", "db", cfg.DBPath, "rows", len(rows))
	printCounts(deps.Out, "SQL Query Result:", stored)
	fmt.Fprintf(deps.Out, "Data saved to %s (table %s)\n", cfg.DBPath, storage.TableFlights)

	stage = "verify"
	if !flights.SameCounts(res.Counts, stored) {
		return nil, &MismatchError{InMemory: res.Counts, Stored: stored}
	}

	if len(deps.Mirrors) > 0 {
		t = time.Now()
		errs := deps.Mirrors.ReplaceAll(ctx, rows, res.Counts)
		m.ObserveStage("mirror", t)
		for name, merr := range errs {
			m.Errors.WithLabelValues("mirror").Inc()
			log.Warn("mirror write failed", "mirror", name, "error", merr)
		}
		if len(errs) > 0 {
			res.MirrorErrors = errs
		}
	}

	stage = "render"
	t = time.Now()
	if err := chart.Render(res.Counts, chart.DefaultOptions(cfg.ChartPath, cfg.ArrivalAirport)); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	m.ObserveStage(stage, t)
	fmt.Fprintf(deps.Out, "Plot saved to %s\n", cfg.ChartPath)

	res.Duration = deps.Now().Sub(start)

	if deps.Publisher != nil {
		res.PublishErr = deps.Publisher.Publish(notify.RunSummary{
			ArrivalAirport: cfg.ArrivalAirport,
			Records:        res.Records,
			Rows:           len(rows),
			Skipped:        len(skipped),
			Counts:         res.Counts,
			DBPath:         cfg.DBPath,
			ChartPath:      cfg.ChartPath,
			FinishedAt:     deps.Now().UTC(),
		})
		if res.PublishErr != nil {
			m.Errors.WithLabelValues("publish").Inc()
			log.Warn("publish run summary failed", "error", res.PublishErr)
		}
	}

	log.Info("run complete", "rows", len(rows), "airports", len(res.Counts), "duration", res.Duration)
	return res, nil
}

// persist replaces the flights table and reads the grouped count back. The
// store is closed before returning on every path.
func persist(ctx context.Context, path string, rows []flights.FlightRow) (counts []flights.DepartureCount, err error) {
	db, err := storage.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := db.ReplaceFlights(ctx, rows); err != nil {
		return nil, err
	}
	return db.CountByDeparture(ctx)
}

func withDefaults(d Deps) Deps {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewPipeline("arrivals")
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
