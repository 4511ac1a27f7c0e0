// Package charts draws summary tables as PNG images.
package charts

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"sales-dashboard/internal/models"
)

const (
	chartHeight   = 480
	minChartWidth = 1024
	barWidth      = 36
	barSpacing    = 12
	maxBars       = 60
	ContentType   = "image/png"
)

var ErrNoData = errors.New("no data to chart")

var barColor = drawing.ColorFromHex("1565ff")

// Render writes t as a PNG. Series tables become line charts with one line
// per series; everything else becomes a bar chart.
func Render(w io.Writer, t models.SummaryTable) error {
	if t.Empty || len(t.Rows) == 0 {
		return ErrNoData
	}

	var r interface {
		Render(chart.RendererProvider, io.Writer) error
	}
	r = barChart(t)
	if t.Kind == models.KindSeries {
		if ch, ok := lineChart(t); ok {
			r = ch
		}
	}
	if err := r.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s: %w", t.Name, err)
	}
	return nil
}

func barLabel(row models.SummaryRow) string {
	if row.Series == "" {
		return row.Key
	}
	return row.Key + " / " + row.Series
}

func barChart(t models.SummaryTable) chart.BarChart {
	rows := t.Rows
	if len(rows) > maxBars {
		rows = rows[:maxBars]
	}

	bars := make([]chart.Value, len(rows))
	values := make([]float64, len(rows))
	for i, row := range rows {
		bars[i] = chart.Value{
			Label: barLabel(row),
			Value: row.Value,
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor},
		}
		values[i] = row.Value
	}

	width := max(len(bars)*(barWidth+barSpacing)+200, minChartWidth)

	return chart.BarChart{
		Title:      t.Title,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		Width:      width,
		Height:     chartHeight,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		XAxis:      chart.Style{TextRotationDegrees: 45},
		YAxis: chart.YAxis{
			Name:  t.ValueLabel,
			Range: valueRange(values),
		},
		Bars: bars,
	}
}

// lineChart returns ok=false when there are fewer than two distinct keys,
// which a continuous series cannot draw.
func lineChart(t models.SummaryTable) (chart.Chart, bool) {
	keyIndex := make(map[string]int)
	var keys []string
	for _, row := range t.Rows {
		if _, ok := keyIndex[row.Key]; !ok {
			keyIndex[row.Key] = len(keys)
			keys = append(keys, row.Key)
		}
	}
	if len(keys) < 2 {
		return chart.Chart{}, false
	}

	var (
		series []chart.Series
		values []float64
	)
	for i, name := range t.SeriesNames() {
		var xs, ys []float64
		for _, row := range t.Rows {
			if row.Series != name {
				continue
			}
			xs = append(xs, float64(keyIndex[row.Key]))
			ys = append(ys, row.Value)
		}
		if len(xs) < 2 {
			continue
		}
		values = append(values, ys...)
		color := chart.GetDefaultColor(i)
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: color, StrokeWidth: 2, DotColor: color, DotWidth: 3},
		})
	}
	if len(series) == 0 {
		return chart.Chart{}, false
	}

	ticks := make([]chart.Tick, len(keys))
	for i, k := range keys {
		ticks[i] = chart.Tick{Value: float64(i), Label: k}
	}

	ch := chart.Chart{
		Title:      t.Title,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		Width:      max(len(keys)*40+200, minChartWidth),
		Height:     chartHeight,
		XAxis: chart.XAxis{
			Name:  t.KeyLabel,
			Ticks: ticks,
			Range: &chart.ContinuousRange{Min: 0, Max: float64(len(keys) - 1)},
			Style: chart.Style{TextRotationDegrees: 45},
		},
		YAxis: chart.YAxis{
			Name:  t.ValueLabel,
			Range: valueRange(values),
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch, true
}

// valueRange always includes zero and never collapses to a single point.
func valueRange(values []float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi <= lo {
		hi = lo + 1
	}
	pad := (hi - lo) * 0.05
	if lo < 0 {
		lo -= pad
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + pad}
}
