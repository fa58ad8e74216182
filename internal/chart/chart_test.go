package chart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrivals_etl/internal/flights"
)

var lhrOnly = []flights.DepartureCount{{DepartureAirport: "LHR", FlightCount: 2}}

func TestBars(t *testing.T) {
	assert.Equal(t, []Bar{{Label: "LHR", Height: 2}}, Bars(lhrOnly))
}

func TestRenderPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight_chart.png")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, Render(lhrOnly, DefaultOptions(path, "DUB")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")), "not a PNG")
}

func TestRenderPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts", "flight_chart.pdf")
	counts := []flights.DepartureCount{
		{DepartureAirport: "LHR", FlightCount: 14},
		{DepartureAirport: "CDG", FlightCount: 3},
		{DepartureAirport: "AMS", FlightCount: 1},
	}

	require.NoError(t, Render(counts, DefaultOptions(path, "DUB")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "not a PDF")
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()

	err := Render(nil, DefaultOptions(filepath.Join(dir, "x.png"), "DUB"))
	assert.ErrorIs(t, err, ErrNoData)

	err = Render(lhrOnly, DefaultOptions(filepath.Join(dir, "x.gif"), "DUB"))
	assert.Error(t, err)
}

func TestIntegerTicks(t *testing.T) {
	ticks := integerTicks{}.Ticks(0, 3)
	var labels []string
	for _, tk := range ticks {
		labels = append(labels, tk.Label)
	}
	assert.Equal(t, []string{"0", "1", "2", "3"}, labels)

	assert.Equal(t, 1, tickStep(10))
	assert.Equal(t, 3, tickStep(25))
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions("c.png", "DUB")
	assert.Equal(t, "Flights Arriving at DUB by Departure Airport", o.Title)
	assert.Equal(t, "Departure Airport", o.XLabel)
	assert.Equal(t, "Number of Flights", o.YLabel)
}
