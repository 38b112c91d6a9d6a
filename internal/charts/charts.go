// Package charts renders the dashboard charts to inline SVG with go-chart.
package charts

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"math"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"budget/internal/core"
)

// Palette is cycled through for pie slices.
var Palette = []string{"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f", "#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac"}

const (
	DistributedColor = "#4e79a7"
	ActualColor      = "#f28e2b"

	barWidth  = 480
	barHeight = 260
	pieSize   = 260
)

type Series struct {
	Name  string
	Color string
}

// BarChart is a rendered grouped bar chart plus its legend.
type BarChart struct {
	SVG    template.HTML
	Series []Series
}

// GroupedBars draws, per bucket, the amount distributed to it next to the
// amount actually spent under the matching expense type.
func GroupedBars(cmp []core.BucketComparison) (BarChart, error) {
	c := BarChart{Series: []Series{
		{Name: "Distributed", Color: DistributedColor},
		{Name: "Actual", Color: ActualColor},
	}}
	if len(cmp) == 0 {
		return c, nil
	}

	peak := 0.0
	var bars []chart.Value
	for _, b := range cmp {
		for j, v := range []decimal.Decimal{b.Distributed, b.Actual} {
			f := math.Max(0, toFloat(v))
			peak = math.Max(peak, f)
			label := ""
			if j == 0 {
				label = html.EscapeString(string(b.Bucket))
			}
			bars = append(bars, chart.Value{Label: label, Value: f, Style: fill(c.Series[j].Color)})
		}
	}

	step := tickStep(peak)
	ceiling := math.Max(step, math.Ceil(peak/step)*step)
	var ticks []chart.Tick
	for i := 0; i <= int(math.Round(ceiling/step)); i++ {
		v := step * float64(i)
		ticks = append(ticks, chart.Tick{Value: v, Label: formatLabel(v)})
	}

	graph := chart.BarChart{
		Width:      barWidth,
		Height:     barHeight,
		BarWidth:   36,
		BarSpacing: 12,
		Background: chart.Style{Padding: chart.Box{Top: 16, Left: 8, Right: 8, Bottom: 8}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: ceiling},
			Ticks: ticks,
		},
		Bars: bars,
	}
	svg, err := render(graph.Render)
	if err != nil {
		return c, fmt.Errorf("render bar chart: %w", err)
	}
	c.SVG = svg
	return c, nil
}

type Slice struct {
	Label   string
	Color   string
	Percent string
	Value   string
}

// PieChart is a rendered pie chart plus its legend. SVG is empty when there
// is nothing to draw.
type PieChart struct {
	SVG    template.HTML
	Slices []Slice
}

// Pie draws each group's share of the total. Groups with a zero or negative
// amount get no slice.
func Pie(groups []core.GroupTotal) (PieChart, error) {
	var p PieChart

	total := decimal.Zero
	for _, g := range groups {
		if g.Amount.IsPositive() {
			total = total.Add(g.Amount)
		}
	}
	if !total.IsPositive() {
		return p, nil
	}

	var values []chart.Value
	for _, g := range groups {
		if !g.Amount.IsPositive() {
			continue
		}
		color := Palette[len(p.Slices)%len(Palette)]
		label := labelOrBlank(g.Name)
		p.Slices = append(p.Slices, Slice{
			Label:   label,
			Color:   color,
			Percent: g.Amount.Div(total).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%",
			Value:   core.FormatMoney(g.Amount),
		})
		values = append(values, chart.Value{Label: html.EscapeString(label), Value: toFloat(g.Amount), Style: fill(color)})
	}

	graph := chart.PieChart{
		Width:  pieSize,
		Height: pieSize,
		// a lone slice is drawn as a circle in the series style
		SliceStyle: fill(Palette[0]),
		Values:     values,
	}
	svg, err := render(graph.Render)
	if err != nil {
		return PieChart{}, fmt.Errorf("render pie chart: %w", err)
	}
	p.SVG = svg
	return p, nil
}

// render writes a chart as SVG. go-chart does not escape text, so callers
// escape labels before handing them over.
func render(draw func(chart.RendererProvider, io.Writer) error) (template.HTML, error) {
	var buf bytes.Buffer
	if err := draw(chart.SVG, &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func fill(hex string) chart.Style {
	c := drawing.ColorFromHex(hex)
	return chart.Style{FillColor: c, StrokeColor: c}
}

func labelOrBlank(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// tickStep picks a 1/2/5 step giving about five intervals up to maxVal.
func tickStep(maxVal float64) float64 {
	if maxVal <= 0 {
		return 1
	}
	rough := maxVal / 5
	exp := math.Floor(math.Log10(rough))
	base := math.Pow(10, exp)
	frac := rough / base

	switch {
	case frac < 1.5:
		return base
	case frac < 3.5:
		return 2 * base
	default:
		return 5 * base
	}
}

func formatLabel(v float64) string {
	switch {
	case v >= 1e6:
		if v == math.Trunc(v/1e6)*1e6 {
			return fmt.Sprintf("%.0fM", v/1e6)
		}
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		if v == math.Trunc(v/1e3)*1e3 {
			return fmt.Sprintf("%.0fk", v/1e3)
		}
		return fmt.Sprintf("%.1fk", v/1e3)
	case v >= 1 || v == 0:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
