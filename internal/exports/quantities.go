package exports

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/h2transport/internal/fem"
	"github.com/san-kum/h2transport/internal/value"
)

// Quantity is a scalar computed from the solution.
type Quantity interface {
	Title() string
	Compute(p Probe) (float64, error)
}

type volumeQuantity struct {
	kind   string
	Field  string
	Volume int
	reduce func(Profile, int) float64
}

func (q *volumeQuantity) Title() string {
	return fmt.Sprintf("%s %s volume %d", q.kind, q.Field, q.Volume)
}

func (q *volumeQuantity) Compute(p Probe) (float64, error) {
	prof, err := p.Profile(q.Field)
	if err != nil {
		return 0, err
	}
	return q.reduce(prof, q.Volume), nil
}

func TotalVolume(field string, volume int) Quantity {
	return &volumeQuantity{kind: "Total", Field: field, Volume: volume, reduce: Profile.Integral}
}

func AverageVolume(field string, volume int) Quantity {
	return &volumeQuantity{kind: "Average", Field: field, Volume: volume, reduce: func(p Profile, v int) float64 {
		return p.Integral(v) / p.Length(v)
	}}
}

func MaximumVolume(field string, volume int) Quantity {
	return &volumeQuantity{kind: "Maximum", Field: field, Volume: volume, reduce: Profile.Max}
}

func MinimumVolume(field string, volume int) Quantity {
	return &volumeQuantity{kind: "Minimum", Field: field, Volume: volume, reduce: Profile.Min}
}

type surfaceQuantity struct {
	kind    string
	Field   string
	Surface int
	compute func(Probe, string, int) (float64, error)
}

func (q *surfaceQuantity) Title() string {
	return fmt.Sprintf("%s %s surface %d", q.kind, q.Field, q.Surface)
}

func (q *surfaceQuantity) Compute(p Probe) (float64, error) {
	return q.compute(p, q.Field, q.Surface)
}

// TotalSurface is the surface integral of a field, a point value in 1D.
func TotalSurface(field string, surface int) Quantity {
	return &surfaceQuantity{kind: "Total", Field: field, Surface: surface, compute: Probe.SurfaceValue}
}

// SurfaceFlux is the outward diffusive flux of a field through a surface.
func SurfaceFlux(field string, surface int) Quantity {
	return &surfaceQuantity{kind: "Flux", Field: field, Surface: surface, compute: Probe.SurfaceFlux}
}

type pointValue struct {
	Field string
	X     float64
}

func PointValue(field string, x float64) Quantity { return &pointValue{Field: field, X: x} }

func (q *pointValue) Title() string { return fmt.Sprintf("%s value at x=%g", q.Field, q.X) }

func (q *pointValue) Compute(p Probe) (float64, error) {
	prof, err := p.Profile(q.Field)
	if err != nil {
		return 0, err
	}
	return prof.At(q.X)
}

// Norm selects how an error is measured.
type Norm string

const (
	NormMax Norm = "max"
	NormL2  Norm = "L2"
)

type errorNorm struct {
	Field string
	Exact value.Value
	Norm  Norm
}

// Error measures the distance between a field and an exact solution u(x, t).
func Error(field string, exact value.Value, norm Norm) Quantity {
	if norm == "" {
		norm = NormMax
	}
	return &errorNorm{Field: field, Exact: exact, Norm: norm}
}

func (q *errorNorm) Title() string { return fmt.Sprintf("Error %s %s", q.Field, q.Norm) }

func (q *errorNorm) Compute(p Probe) (float64, error) {
	prof, err := p.Profile(q.Field)
	if err != nil {
		return 0, err
	}
	t := p.Time()
	out := 0.0
	for _, s := range prof.Segments {
		switch q.Norm {
		case NormL2:
			e := fem.Element{X0: s.X[0], H: s.X[1] - s.X[0]}
			for k, xi := range fem.Gauss3.Points {
				x := e.X(xi)
				d := fem.Interp(s.V, xi) - q.Exact.At(x, t, 0)
				out += fem.Gauss3.Weights[k] * e.H * d * d
			}
		default:
			for a := 0; a < 2; a++ {
				out = math.Max(out, math.Abs(s.V[a]-q.Exact.At(s.X[a], t, 0)))
			}
		}
	}
	if q.Norm == NormL2 {
		out = math.Sqrt(out)
	}
	return out, nil
}

type factory func(field string, id int) Quantity

var kinds = map[string]factory{
	"total_volume":   TotalVolume,
	"average_volume": AverageVolume,
	"maximum_volume": MaximumVolume,
	"minimum_volume": MinimumVolume,
	"total_surface":  TotalSurface,
	"surface_flux":   SurfaceFlux,
}

// NewQuantity builds a quantity by configuration name. id is a volume or a
// surface id depending on the kind.
func NewQuantity(kind, field string, id int) (Quantity, error) {
	fn, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown derived quantity: %s", kind)
	}
	return fn(field, id), nil
}

// Kinds lists the quantity names accepted by NewQuantity.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
