package sandbox

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Figure dimensions for saved artifacts.
const (
	figureWidth  = 6 * vg.Inch
	figureHeight = 4 * vg.Inch
)

var barWidth = vg.Points(20)

// Figure is a renderable plot under construction. Scripts obtain one
// via plot.figure() and chain drawing calls on it; the session saves
// every figure created during the run, in creation order, after the
// script finishes.
type Figure struct {
	p   *plot.Plot
	seq int

	// last plotter added, for legend entries
	lastThumb plot.Thumbnailer
	lastName  string
}

func (f *Figure) Line(xs, ys []float64) (*Figure, error) {
	xys, err := toXYs("line", xs, ys)
	if err != nil {
		return nil, err
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("plot line: %w", err)
	}
	f.p.Add(line)
	f.lastThumb = line
	f.lastName = "line"
	return f, nil
}

func (f *Figure) Scatter(xs, ys []float64) (*Figure, error) {
	xys, err := toXYs("scatter", xs, ys)
	if err != nil {
		return nil, err
	}
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("plot scatter: %w", err)
	}
	f.p.Add(scatter)
	f.lastThumb = scatter
	f.lastName = "scatter"
	return f, nil
}

func (f *Figure) Bar(labels []string, values []float64) (*Figure, error) {
	if len(labels) != len(values) {
		return nil, fmt.Errorf("plot bar: %d labels for %d values", len(labels), len(values))
	}
	bars, err := plotter.NewBarChart(plotter.Values(values), barWidth)
	if err != nil {
		return nil, fmt.Errorf("plot bar: %w", err)
	}
	f.p.Add(bars)
	f.p.NominalX(labels...)
	f.lastThumb = bars
	f.lastName = "bar"
	return f, nil
}

func (f *Figure) Title(text string) *Figure {
	f.p.Title.Text = text
	return f
}

func (f *Figure) XLabel(text string) *Figure {
	f.p.X.Label.Text = text
	return f
}

func (f *Figure) YLabel(text string) *Figure {
	f.p.Y.Label.Text = text
	return f
}

func (f *Figure) Grid() *Figure {
	f.p.Add(plotter.NewGrid())
	return f
}

// Legend names the most recently drawn series.
func (f *Figure) Legend(name string) (*Figure, error) {
	if f.lastThumb == nil {
		return nil, fmt.Errorf("plot legend: nothing drawn yet")
	}
	f.p.Legend.Add(name, f.lastThumb)
	return f, nil
}

func (f *Figure) String() string {
	return fmt.Sprintf("figure(%d)", f.seq)
}

// render produces the PNG bytes for this figure.
func (f *Figure) render() ([]byte, error) {
	wt, err := f.p.WriterTo(figureWidth, figureHeight, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render figure %d: %w", f.seq, err)
	}
	var buf writerBuffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render figure %d: %w", f.seq, err)
	}
	return buf.bytes, nil
}

func toXYs(op string, xs, ys []float64) (plotter.XYs, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("plot %s: %d x values for %d y values", op, len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("plot %s: empty series", op)
	}
	xys := make(plotter.XYs, len(xs))
	for i := range xs {
		xys[i].X = xs[i]
		xys[i].Y = ys[i]
	}
	return xys, nil
}

type writerBuffer struct {
	bytes []byte
}

func (w *writerBuffer) Write(p []byte) (int, error) {
	w.bytes = append(w.bytes, p...)
	return len(p), nil
}

func buildPlotModule(s *session) any {
	return map[string]any{
		"figure": func() (*Figure, error) {
			return s.newFigure()
		},
		"figures": func() int {
			return len(s.figures)
		},
	}
}
