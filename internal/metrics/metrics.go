// Package metrics holds the Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline holds all pipeline collectors, registered on their own registry.
type Pipeline struct {
	Registry *prometheus.Registry

	Runs           *prometheus.CounterVec
	RecordsFetched prometheus.Counter
	RowsStored     prometheus.Gauge
	RecordsSkipped prometheus.Counter
	StageDuration  *prometheus.HistogramVec
	Errors         *prometheus.CounterVec
	LastSuccess    prometheus.Gauge
}

// NewPipeline creates the collectors under namespace.
func NewPipeline(namespace string) *Pipeline {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Pipeline{
		Registry: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RecordsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Flight records returned by the API",
		}),
		RowsStored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_stored",
			Help:      "Rows in the flights table after the last run",
		}),
		RecordsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records dropped for missing fields",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by pipeline stage",
		}, []string{"stage"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
}

// ObserveStage records how long stage took since start.
func (p *Pipeline) ObserveStage(stage string, start time.Time) {
	p.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler exposes the registry over HTTP.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{Registry: p.Registry})
}
