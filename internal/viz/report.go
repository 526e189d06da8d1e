package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/sim"
)

// Summary describes a finished run.
func (s Styles) Summary(name string, res *sim.Result, endTime float64) string {
	var b strings.Builder
	b.WriteString(s.Title.Render(name))
	b.WriteString("\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", s.Label.Render(fmt.Sprintf("%-12s", label)), s.Value.Render(value))
	}
	row("final time", fmt.Sprintf("%g s", res.FinalTime))
	row("steps", fmt.Sprintf("%d (%d rejected)", res.Steps, res.Rejections))
	row("elapsed", res.Elapsed.String())

	if endTime > 0 {
		b.WriteString(s.Label.Render(fmt.Sprintf("%-12s", "progress")) + " ")
		b.WriteString(s.ProgressBar(res.FinalTime/endTime, 30))
		b.WriteString("\n")
	}
	if len(res.Times) > 1 {
		row("stepsize", Sparkline(stepsizes(res.Times), 40))
	}
	for i, e := range res.Errors {
		row(fmt.Sprintf("error %d", i+1), fmt.Sprintf("%.3e", e))
	}

	sinks := make([]string, 0, len(res.DerivedQuantities))
	for name := range res.DerivedQuantities {
		sinks = append(sinks, name)
	}
	sort.Strings(sinks)
	for _, name := range sinks {
		table := res.DerivedQuantities[name]
		last := table.Last()
		if last == nil {
			continue
		}
		var lines []string
		for i, title := range table.Header[1:] {
			lines = append(lines, fmt.Sprintf("%s %s", s.Label.Render(title), s.Value.Render(fmt.Sprintf("%.6g", last[i+1]))))
		}
		b.WriteString(s.Panel.Render(s.Subtle.Render(name) + "\n" + strings.Join(lines, "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

// Warnings lists configuration warnings.
func (s Styles) Warnings(warnings []string) string {
	var b strings.Builder
	for _, w := range warnings {
		b.WriteString(s.Warning.Render("warning: " + w))
		b.WriteString("\n")
	}
	return b.String()
}

func stepsizes(times []float64) []float64 {
	out := make([]float64, 0, len(times))
	prev := 0.0
	for _, t := range times {
		out = append(out, t-prev)
		prev = t
	}
	return out
}

// Chart plots one column of a derived quantity table against its rows.
func Chart(table *exports.Table, column string, width, height int) (string, error) {
	values, ok := table.Column(column)
	if !ok {
		return "", fmt.Errorf("viz: no column %q (have %s)", column, strings.Join(table.Header, ", "))
	}
	if len(values) == 0 {
		return "", fmt.Errorf("viz: column %q is empty", column)
	}
	times, _ := table.Column(table.Header[0])
	caption := fmt.Sprintf("%s, t = %g .. %g s", column, times[0], times[len(times)-1])
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	), nil
}

// ProfileChart plots a field profile against position.
func ProfileChart(p exports.Profile, width, height int) (string, error) {
	xs, vs := p.Points()
	if len(vs) == 0 {
		return "", fmt.Errorf("viz: profile %q is empty", p.Field)
	}
	caption := fmt.Sprintf("%s, x = %g .. %g", p.Field, xs[0], xs[len(xs)-1])
	return asciigraph.Plot(vs,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	), nil
}
