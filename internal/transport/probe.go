package transport

import (
	"fmt"

	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/model"
)

// InitialState interpolates the initial conditions into the working state
// and commits it as the first time level.
func (p *Problem) InitialState() error {
	u := p.registry.Current()
	for i, b := range p.blocks {
		for k := range p.model.InitialConditions {
			ic := &p.model.InitialConditions[k]
			f, ok := b.Space.Lookup(ic.Field)
			if !ok {
				continue
			}
			for c, cell := range b.Mesh.Cells {
				mat := b.cellMat[c]
				dofs := b.Space.Dofs(f, c)
				for a, v := range cell {
					x, T := b.Mesh.Vertices[v], b.temp[v]
					val, err := ic.Value.Eval(x, 0, T)
					if err != nil {
						return fmt.Errorf("initial condition %s: %w", ic.Field, err)
					}
					if f == b.mobile {
						val /= p.solubility(mat, T)
					}
					u[i][dofs[a]] = val
				}
			}
		}
	}
	p.registry.Initialise()
	return nil
}

// Commit accepts the working state.
func (p *Problem) Commit() { p.registry.Commit() }

// Restore discards the working state.
func (p *Problem) Restore() { p.registry.Restore() }

// cellValues returns the nodal values of a species field on a cell of a
// block; mobile values are converted to concentrations.
func (p *Problem) cellValues(b *Block, u []float64, field string, c int) ([2]float64, error) {
	switch field {
	case model.FieldSolute:
		w := b.Space.Values(u, b.mobile, c)
		cell := b.Mesh.Cells[c]
		mat := b.cellMat[c]
		return [2]float64{
			p.solubility(mat, b.temp[cell[0]]) * w[0],
			p.solubility(mat, b.temp[cell[1]]) * w[1],
		}, nil
	case model.FieldRetention:
		out, _ := p.cellValues(b, u, model.FieldSolute, c)
		for _, slot := range b.traps {
			if !slot.active[c] {
				continue
			}
			v := b.Space.Values(u, slot.field, c)
			out[0] += v[0]
			out[1] += v[1]
		}
		return out, nil
	case model.FieldTemperature:
		cell := b.Mesh.Cells[c]
		return [2]float64{b.temp[cell[0]], b.temp[cell[1]]}, nil
	}
	if f, ok := b.Space.Lookup(field); ok {
		for _, slot := range b.traps {
			if (f == slot.field || f == slot.density) && !slot.active[c] {
				return [2]float64{}, nil
			}
		}
		return b.Space.Values(u, f, c), nil
	}
	if p.knownField(field) {
		return [2]float64{}, nil
	}
	return [2]float64{}, fmt.Errorf("unknown field %q", field)
}

func (p *Problem) knownField(field string) bool {
	for i, tr := range p.model.Traps {
		if field == model.TrapField(i) || (tr.Extrinsic != nil && field == model.DensityField(i)) {
			return true
		}
	}
	return false
}

// Profile returns a field of the working state over every block. Traps are
// zero outside their materials.
func (p *Problem) Profile(field string) (exports.Profile, error) {
	u := p.registry.Current()
	prof := exports.Profile{Field: field}
	for i, b := range p.blocks {
		for c, cell := range b.Mesh.Cells {
			v, err := p.cellValues(b, u[i], field, c)
			if err != nil {
				return exports.Profile{}, err
			}
			prof.Segments = append(prof.Segments, exports.Segment{
				Volume: b.cellMat[c].ID,
				X:      [2]float64{b.Mesh.Vertices[cell[0]], b.Mesh.Vertices[cell[1]]},
				V:      v,
			})
		}
	}
	return prof, nil
}

// boundaryCell finds the block and cell touching a surface, and the local
// node of the surface vertex. On a surface inside a block the cell on the
// left is used.
func (p *Problem) boundaryCell(surface int) (*Block, int, int, error) {
	for _, b := range p.blocks {
		v, ok := b.surfaces[surface]
		if !ok {
			continue
		}
		c := b.Mesh.CellsAt(v)[0]
		node := 0
		if b.Mesh.Cells[c][1] == v {
			node = 1
		}
		return b, c, node, nil
	}
	return nil, 0, 0, fmt.Errorf("unknown surface %d", surface)
}

func (p *Problem) blockIndex(b *Block) int {
	for i := range p.blocks {
		if p.blocks[i] == b {
			return i
		}
	}
	return -1
}

// SurfaceValue is the field value at a surface.
func (p *Problem) SurfaceValue(field string, surface int) (float64, error) {
	b, c, node, err := p.boundaryCell(surface)
	if err != nil {
		return 0, err
	}
	v, err := p.cellValues(b, p.registry.Current()[p.blockIndex(b)], field, c)
	if err != nil {
		return 0, err
	}
	return v[node], nil
}

// SurfaceFlux is the outward flux -D grad(c).n of the mobile species,
// including the Soret contribution when enabled.
func (p *Problem) SurfaceFlux(field string, surface int) (float64, error) {
	if field != model.FieldSolute {
		return 0, fmt.Errorf("surface flux of field %q is not defined", field)
	}
	b, c, node, err := p.boundaryCell(surface)
	if err != nil {
		return 0, err
	}
	// the outward normal is undefined inside a block
	if len(b.Mesh.CellsAt(b.surfaces[surface])) > 1 {
		return 0, fmt.Errorf("surface %d is not on the boundary of its block", surface)
	}
	cv, err := p.cellValues(b, p.registry.Current()[p.blockIndex(b)], field, c)
	if err != nil {
		return 0, err
	}
	cell := b.Mesh.Cells[c]
	T := [2]float64{b.temp[cell[0]], b.temp[cell[1]]}
	e := b.Space.Element(c)
	mat := b.cellMat[c]
	D := mat.D(T[node])

	grad := D * e.Grad(cv)
	if p.model.Settings.Soret {
		grad += D * mat.HeatOfTransport * cv[node] / (model.KB * T[node] * T[node]) * e.Grad(T)
	}
	normal := -1.0
	if node == 1 {
		normal = 1
	}
	return -grad * normal, nil
}
