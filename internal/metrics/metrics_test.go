package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCollectors(t *testing.T) {
	m := NewPipeline("arrivals")

	m.Runs.WithLabelValues("success").Inc()
	m.RecordsFetched.Add(10)
	m.RowsStored.Set(9)
	m.RecordsSkipped.Inc()
	m.Errors.WithLabelValues("fetch").Inc()
	m.ObserveStage("fetch", time.Now().Add(-time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.RecordsFetched))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.RowsStored))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestSeparateRegistries(t *testing.T) {
	// Two pipelines must not collide on registration.
	a := NewPipeline("arrivals")
	b := NewPipeline("arrivals")
	a.RecordsFetched.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RecordsFetched))
}

func TestHandler(t *testing.T) {
	m := NewPipeline("arrivals")
	m.RecordsFetched.Add(3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "arrivals_records_fetched_total 3")
}
