package exports

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ProfilePlot collects profiles of a field at due steps and renders them
// into one PNG when the run ends.
type ProfilePlot struct {
	label   string
	field   string
	dir     string
	cadence Cadence
	shots   []Snapshot
}

func NewProfilePlot(label, field, dir string, cadence Cadence) *ProfilePlot {
	return &ProfilePlot{label: label, field: field, dir: dir, cadence: cadence}
}

func (pp *ProfilePlot) Name() string { return pp.label }

func (pp *ProfilePlot) Cadence() Cadence { return pp.cadence }

func (pp *ProfilePlot) Record(p Probe, _ Writer, _ int) error {
	prof, err := p.Profile(pp.field)
	if err != nil {
		return err
	}
	pp.shots = append(pp.shots, Snapshot{Field: pp.field, Time: p.Time(), Profile: prof})
	return nil
}

// Path is the file the plot is rendered to.
func (pp *ProfilePlot) Path() string {
	return filepath.Join(pp.dir, pp.label+".png")
}

func (pp *ProfilePlot) Close() error {
	if len(pp.shots) == 0 {
		return nil
	}
	if err := os.MkdirAll(pp.dir, 0755); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = pp.label
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = pp.field
	p.Add(plotter.NewGrid())

	for i, shot := range pp.shots {
		xs, vs := shot.Profile.Points()
		pts := make(plotter.XYs, len(xs))
		for k := range xs {
			pts[k].X = xs[k]
			pts[k].Y = vs[k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", pp.label, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("t=%g", shot.Time), line)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, pp.Path())
}
