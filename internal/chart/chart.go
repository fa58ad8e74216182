// Package chart draws the per-airport bar chart. The output format follows
// the file extension: .png is rendered with gonum/plot, .pdf with gofpdf.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"arrivals_etl/internal/flights"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("chart: no departure counts to plot")

var (
	barFill    = color.RGBA{R: 135, G: 206, B: 235, A: 255} // skyblue
	barOutline = color.Black
)

// Options controls labels and output.
type Options struct {
	Path   string
	Title  string
	XLabel string
	YLabel string

	// Width and Height of a PNG in inches; zero means 6.4 x 4.8.
	Width, Height float64
}

// DefaultOptions returns the labels used for an arrival airport.
func DefaultOptions(path, arrivalAirport string) Options {
	return Options{
		Path:   path,
		Title:  fmt.Sprintf("Flights Arriving at %s by Departure Airport", arrivalAirport),
		XLabel: "Departure Airport",
		YLabel: "Number of Flights",
	}
}

// Bar is one category on the chart.
type Bar struct {
	Label  string
	Height int
}

// Bars returns the bars drawn for counts, in the order given.
func Bars(counts []flights.DepartureCount) []Bar {
	out := make([]Bar, len(counts))
	for i, c := range counts {
		out[i] = Bar{Label: c.DepartureAirport, Height: c.FlightCount}
	}
	return out
}

// Render writes the chart to opts.Path, replacing any existing file.
func Render(counts []flights.DepartureCount, opts Options) error {
	if len(counts) == 0 {
		return ErrNoData
	}
	if opts.Path == "" {
		return errors.New("chart: empty output path")
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("chart: create directory: %w", err)
		}
	}

	bars := Bars(counts)
	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".png":
		return renderPNG(bars, opts)
	case ".pdf":
		return renderPDF(bars, opts)
	}
	return fmt.Errorf("chart: unsupported format %q", filepath.Ext(opts.Path))
}

func renderPNG(bars []Bar, opts Options) error {
	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel
	p.Y.Min = 0

	values := make(plotter.Values, len(bars))
	labels := make([]string, len(bars))
	for i, b := range bars {
		values[i] = float64(b.Height)
		labels[i] = b.Label
	}

	bc, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return fmt.Errorf("chart: bar chart: %w", err)
	}
	bc.Color = barFill
	bc.LineStyle.Color = barOutline
	bc.LineStyle.Width = vg.Points(0.8)
	p.Add(bc)

	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Tick.Marker = integerTicks{}

	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = 6.4
	}
	if h <= 0 {
		h = 4.8
	}
	if err := p.Save(vg.Length(w)*vg.Inch, vg.Length(h)*vg.Inch, opts.Path); err != nil {
		return fmt.Errorf("chart: save %s: %w", opts.Path, err)
	}
	return nil
}

// integerTicks labels the count axis with whole numbers only.
type integerTicks struct{}

func (integerTicks) Ticks(min, max float64) []plot.Tick {
	step := tickStep(int(math.Ceil(max)))
	var ticks []plot.Tick
	for v := 0; float64(v) <= max; v += step {
		if float64(v) < min {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: float64(v), Label: fmt.Sprint(v)})
	}
	return ticks
}

// tickStep picks a whole-number step giving at most ten ticks up to max.
func tickStep(max int) int {
	if max <= 10 {
		return 1
	}
	return int(math.Ceil(float64(max) / 10))
}
