package chart

import (
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
)

// Page geometry in mm for an A4 landscape page.
const (
	pdfMarginL = 30.0
	pdfMarginR = 15.0
	pdfTop     = 30.0
	pdfBottom  = 160.0
	pdfPageW   = 297.0
)

func renderPDF(bars []Bar, opts Options) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(opts.Title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(pdfMarginL, 12)
	pdf.CellFormat(pdfPageW-pdfMarginL-pdfMarginR, 10, opts.Title, "", 0, "C", false, 0, "")

	maxH := 0
	for _, b := range bars {
		if b.Height > maxH {
			maxH = b.Height
		}
	}
	step := tickStep(maxH)
	top := ((maxH + step - 1) / step) * step
	if top == 0 {
		top = 1
	}

	gridW := pdfPageW - pdfMarginL - pdfMarginR
	gridH := pdfBottom - pdfTop
	v := func(n int) float64 { return pdfBottom - float64(n)/float64(top)*gridH }

	// Value axis with integer ticks.
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.3)
	pdf.Line(pdfMarginL, pdfTop, pdfMarginL, pdfBottom)
	pdf.Line(pdfMarginL, pdfBottom, pdfMarginL+gridW, pdfBottom)
	pdf.SetFont("Helvetica", "", 9)
	for n := 0; n <= top; n += step {
		y := v(n)
		pdf.Line(pdfMarginL-1.5, y, pdfMarginL, y)
		label := strconv.Itoa(n)
		pdf.Text(pdfMarginL-3-pdf.GetStringWidth(label), y+1.2, label)
	}

	// One bar per airport; labels rotated under the category axis.
	slot := gridW / float64(len(bars))
	barW := slot * 0.6
	pdf.SetFillColor(int(barFill.R), int(barFill.G), int(barFill.B))
	for i, b := range bars {
		x := pdfMarginL + float64(i)*slot + (slot-barW)/2
		y := v(b.Height)
		pdf.Rect(x, y, barW, pdfBottom-y, "FD")

		cx := x + barW/2
		pdf.TransformBegin()
		pdf.TransformRotate(45, cx, pdfBottom+4)
		pdf.Text(cx-pdf.GetStringWidth(b.Label), pdfBottom+4, b.Label)
		pdf.TransformEnd()
	}

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(pdfMarginL, pdfBottom+24)
	pdf.CellFormat(gridW, 8, opts.XLabel, "", 0, "C", false, 0, "")

	pdf.TransformBegin()
	pdf.TransformRotate(90, 12, pdfBottom)
	pdf.SetXY(12, pdfBottom-4)
	pdf.CellFormat(gridH, 8, opts.YLabel, "", 0, "C", false, 0, "")
	pdf.TransformEnd()

	if err := pdf.OutputFileAndClose(opts.Path); err != nil {
		return fmt.Errorf("chart: write %s: %w", opts.Path, err)
	}
	return nil
}
