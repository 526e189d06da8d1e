// Package heat assembles the heat equation
// rho*cp*dT/dt = div(lambda grad T) + f on the parent mesh.
package heat

import (
	"fmt"

	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/fem"
	"github.com/san-kum/h2transport/internal/fields"
	"github.com/san-kum/h2transport/internal/model"
)

type fluxBC struct {
	bc     *model.BoundaryCondition
	vertex int
}

type Problem struct {
	model     *model.Model
	space     *fem.Space
	field     int
	registry  *fields.Registry
	cellMat   []*model.Material
	surfaces  map[int]int
	natural   []fluxBC
	dirichlet []fem.Constraint

	t, dt     float64
	transient bool
}

// New binds the heat problem of a validated model.
func New(m *model.Model) *Problem {
	p := &Problem{
		model:     m,
		space:     fem.NewSpace(m.Mesh),
		registry:  fields.New(),
		cellMat:   make([]*model.Material, m.Mesh.NumCells()),
		surfaces:  make(map[int]int),
		transient: m.Temperature.Kind == model.TransientHeat,
	}
	p.field = p.space.Add(model.FieldTemperature, fem.Continuous)
	p.registry.Add("temperature", p.space.Size())
	for c, tag := range m.Mesh.Tags {
		p.cellMat[c] = m.Material(tag)
	}
	for _, s := range m.Surfaces {
		if v, ok := m.Mesh.VertexAt(s.X); ok {
			p.surfaces[s.ID] = v
		}
	}
	for i := range m.BoundaryConditions {
		bc := &m.BoundaryConditions[i]
		if bc.Field != model.FieldTemperature || bc.Kind != model.Flux {
			continue
		}
		for _, s := range bc.Surfaces {
			p.natural = append(p.natural, fluxBC{bc: bc, vertex: p.surfaces[s]})
		}
	}
	return p
}

// Transient reports whether the temperature evolves in time.
func (p *Problem) Transient() bool { return p.transient }

func (p *Problem) Registry() *fields.Registry { return p.registry }

// Temperature is the nodal temperature of the working state.
func (p *Problem) Temperature() []float64 { return p.registry.Current()[0] }

// Previous is the nodal temperature of the last accepted step.
func (p *Problem) Previous() []float64 { return p.registry.Previous()[0] }

// InitialState sets the initial temperature (or the initial guess of a
// stationary problem).
func (p *Problem) InitialState() error {
	init := p.model.Temperature.Value
	for _, ic := range p.model.InitialConditions {
		if ic.Field == model.FieldTemperature {
			init = ic.Value
		}
	}
	if init.Defined() {
		var evalErr error
		p.space.Interpolate(p.Temperature(), p.field, func(x float64) float64 {
			v, err := init.Eval(x, 0, 0)
			if err != nil && evalErr == nil {
				evalErr = err
			}
			return v
		})
		if evalErr != nil {
			return fmt.Errorf("initial temperature: %w", evalErr)
		}
	}
	p.registry.Initialise()
	return nil
}

func (p *Problem) Commit() { p.registry.Commit() }

func (p *Problem) Restore() { p.registry.Restore() }

// Prepare sets the time level and evaluates the Dirichlet data at t.
func (p *Problem) Prepare(t, dt float64) error {
	p.t, p.dt = t, dt
	p.dirichlet = p.dirichlet[:0]
	for i := range p.model.BoundaryConditions {
		bc := &p.model.BoundaryConditions[i]
		if bc.Field != model.FieldTemperature || bc.Kind != model.Dirichlet {
			continue
		}
		for _, s := range bc.Surfaces {
			v := p.surfaces[s]
			g, err := bc.Value.Eval(p.model.Mesh.Vertices[v], t, 0)
			if err != nil {
				return err
			}
			p.dirichlet = append(p.dirichlet, fem.Constraint{Dof: v, Value: g})
		}
	}
	return nil
}

func (p *Problem) NumBlocks() int { return 1 }

func (p *Problem) BlockSize(int) int { return p.space.Size() }

func (p *Problem) Coupled(i, j int) bool { return i == j }

func (p *Problem) Dirichlet(int) []fem.Constraint { return p.dirichlet }

func (p *Problem) Residual(_ int, u [][]float64, r []float64) error {
	p.assemble(u[0], r, nil)
	return nil
}

func (p *Problem) Jacobian(_, _ int, u [][]float64, m fem.Matrix) error {
	p.assemble(u[0], nil, m)
	return nil
}

func (p *Problem) source(material int, x float64) float64 {
	sum := 0.0
	for k := range p.model.Sources {
		src := &p.model.Sources[k]
		if src.Field != model.FieldTemperature {
			continue
		}
		if len(src.Volumes) > 0 && !contains(src.Volumes, material) {
			continue
		}
		sum += src.Value.At(x, p.t, 0)
	}
	return sum
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (p *Problem) assemble(u, r []float64, m fem.Matrix) {
	prev := p.registry.Previous()[0]
	for c := range p.model.Mesh.Cells {
		mat := p.cellMat[c]
		e := p.space.Element(c)
		dN := e.DN()
		dofs := p.space.Dofs(p.field, c)
		T := p.space.Values(u, p.field, c)
		To := p.space.Values(prev, p.field, c)
		grad := e.Grad(T)
		capacity := 0.0
		if p.transient {
			capacity = mat.Rho * mat.HeatCapacity / p.dt
		}

		for q, xi := range fem.Gauss3.Points {
			N := fem.N(xi)
			jw := fem.Gauss3.Weights[q] * e.H
			if r != nil {
				f := p.source(mat.ID, e.X(xi))
				rate := capacity * (fem.Interp(T, xi) - fem.Interp(To, xi))
				for a := 0; a < 2; a++ {
					r[dofs[a]] += jw * (mat.ThermalCond*grad*dN[a] + (rate-f)*N[a])
				}
			}
			if m != nil {
				for a := 0; a < 2; a++ {
					for b := 0; b < 2; b++ {
						m.Add(dofs[a], dofs[b], jw*(mat.ThermalCond*dN[a]*dN[b]+capacity*N[a]*N[b]))
					}
				}
			}
		}
	}

	if r == nil {
		return
	}
	for _, nb := range p.natural {
		r[nb.vertex] -= nb.bc.Value.At(p.model.Mesh.Vertices[nb.vertex], p.t, u[nb.vertex])
	}
}

// Profile returns the temperature field.
func (p *Problem) Profile() exports.Profile {
	m := p.model.Mesh
	T := p.Temperature()
	prof := exports.Profile{Field: model.FieldTemperature}
	for c, cell := range m.Cells {
		prof.Segments = append(prof.Segments, exports.Segment{
			Volume: m.Tags[c],
			X:      [2]float64{m.Vertices[cell[0]], m.Vertices[cell[1]]},
			V:      [2]float64{T[cell[0]], T[cell[1]]},
		})
	}
	return prof
}

func (p *Problem) SurfaceValue(surface int) (float64, error) {
	v, ok := p.surfaces[surface]
	if !ok {
		return 0, fmt.Errorf("unknown surface %d", surface)
	}
	return p.Temperature()[v], nil
}

// SurfaceFlux is the outward heat flux -lambda grad(T).n.
func (p *Problem) SurfaceFlux(surface int) (float64, error) {
	v, ok := p.surfaces[surface]
	if !ok {
		return 0, fmt.Errorf("unknown surface %d", surface)
	}
	m := p.model.Mesh
	cells := m.CellsAt(v)
	if len(cells) > 1 {
		return 0, fmt.Errorf("surface %d is not on the boundary", surface)
	}
	c := cells[0]
	normal := -1.0
	if m.Cells[c][1] == v {
		normal = 1
	}
	grad := p.space.Element(c).Grad(p.space.Values(p.Temperature(), p.field, c))
	return -p.cellMat[c].ThermalCond * grad * normal, nil
}
