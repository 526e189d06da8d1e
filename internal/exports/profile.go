// Package exports schedules and writes the outputs of a run: field
// snapshots, derived quantities and profile plots.
package exports

import (
	"errors"
	"math"
)

var ErrNoSegment = errors.New("exports: no data at requested position")

// Segment is the linear restriction of a field to one cell.
type Segment struct {
	Volume int
	X      [2]float64
	V      [2]float64
}

// Profile is a piecewise linear field, possibly discontinuous between
// segments.
type Profile struct {
	Field    string
	Segments []Segment
}

func (p Profile) in(s Segment, volume int) bool {
	return volume == 0 || s.Volume == volume
}

// Integral integrates the field over a volume (0 means everywhere).
func (p Profile) Integral(volume int) float64 {
	sum := 0.0
	for _, s := range p.Segments {
		if p.in(s, volume) {
			sum += 0.5 * (s.V[0] + s.V[1]) * (s.X[1] - s.X[0])
		}
	}
	return sum
}

func (p Profile) Length(volume int) float64 {
	sum := 0.0
	for _, s := range p.Segments {
		if p.in(s, volume) {
			sum += s.X[1] - s.X[0]
		}
	}
	return sum
}

func (p Profile) Max(volume int) float64 {
	out := math.Inf(-1)
	for _, s := range p.Segments {
		if p.in(s, volume) {
			out = math.Max(out, math.Max(s.V[0], s.V[1]))
		}
	}
	return out
}

func (p Profile) Min(volume int) float64 {
	out := math.Inf(1)
	for _, s := range p.Segments {
		if p.in(s, volume) {
			out = math.Min(out, math.Min(s.V[0], s.V[1]))
		}
	}
	return out
}

// At interpolates the field at x, taking the first segment containing it.
func (p Profile) At(x float64) (float64, error) {
	for _, s := range p.Segments {
		if x < s.X[0] || x > s.X[1] {
			continue
		}
		xi := (x - s.X[0]) / (s.X[1] - s.X[0])
		return s.V[0] + (s.V[1]-s.V[0])*xi, nil
	}
	return 0, ErrNoSegment
}

// Points flattens the profile to nodal coordinates. Shared nodes appear
// once unless the field jumps there.
func (p Profile) Points() (xs, vs []float64) {
	for i, s := range p.Segments {
		if i == 0 || s.X[0] != xs[len(xs)-1] || s.V[0] != vs[len(vs)-1] {
			xs = append(xs, s.X[0])
			vs = append(vs, s.V[0])
		}
		xs = append(xs, s.X[1])
		vs = append(vs, s.V[1])
	}
	return xs, vs
}

// Probe gives read access to the solution at the current accepted step.
type Probe interface {
	Time() float64
	Profile(field string) (Profile, error)
	SurfaceValue(field string, surface int) (float64, error)
	SurfaceFlux(field string, surface int) (float64, error)
}
