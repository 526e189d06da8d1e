// Package transport assembles the hydrogen transport equations: mobile
// diffusion, trapping and interface coupling between subdomains. Each
// subdomain owns one block of unknowns; the block Jacobian is only non-zero
// on the diagonal and between subdomains sharing an interface.
package transport

import (
	"fmt"

	"github.com/san-kum/h2transport/internal/fem"
	"github.com/san-kum/h2transport/internal/fields"
	"github.com/san-kum/h2transport/internal/mesh"
	"github.com/san-kum/h2transport/internal/model"
)

// trapSlot binds a trap to the fields of one block.
type trapSlot struct {
	index   int
	trap    *model.Trap
	field   int
	density int
	// active marks the cells the trap exists in.
	active []bool
	// isolated lists dofs outside every active cell.
	isolated []int
}

// Block is one subdomain: a mesh, its mixed space and per-cell materials.
type Block struct {
	Name  string
	Mesh  *mesh.Mesh
	Sub   *mesh.Submesh
	Space *fem.Space

	mobile   int
	traps    []trapSlot
	cellMat  []*model.Material
	temp     []float64
	tempPrev []float64
	natural  []naturalBC
	surfaces map[int]int
}

// naturalBC is a flux condition located on a block vertex.
type naturalBC struct {
	bc     *model.BoundaryCondition
	vertex int
	cell   int
}

// link is an interface between a left and a right block.
type link struct {
	left, right         int
	leftCell, rightCell int
	penalty             float64
	x                   float64
}

type Problem struct {
	model    *model.Model
	blocks   []*Block
	links    []link
	registry *fields.Registry

	t, dt     float64
	transient bool
	dirichlet [][]fem.Constraint
}

// New binds a validated model to function spaces.
func New(m *model.Model) (*Problem, error) {
	p := &Problem{model: m, registry: fields.New(), transient: m.Settings.Transient}

	if m.Discontinuous() {
		for i := range m.Materials {
			mat := &m.Materials[i]
			sub, err := m.Mesh.Submesh(mat.ID)
			if err != nil {
				return nil, err
			}
			p.addBlock(fmt.Sprintf("material %d", mat.ID), sub.Mesh, sub)
		}
		if err := p.linkInterfaces(); err != nil {
			return nil, err
		}
	} else {
		p.addBlock("domain", m.Mesh, nil)
	}

	for _, b := range p.blocks {
		p.registry.Add(b.Name, b.Space.Size())
		p.locateBCs(b)
	}
	p.dirichlet = make([][]fem.Constraint, len(p.blocks))
	return p, nil
}

func (p *Problem) addBlock(name string, m *mesh.Mesh, sub *mesh.Submesh) {
	b := &Block{
		Name:     name,
		Mesh:     m,
		Sub:      sub,
		Space:    fem.NewSpace(m),
		cellMat:  make([]*model.Material, m.NumCells()),
		temp:     make([]float64, m.NumVertices()),
		tempPrev: make([]float64, m.NumVertices()),
		surfaces: make(map[int]int),
	}
	for c, tag := range m.Tags {
		b.cellMat[c] = p.model.Material(tag)
	}
	b.mobile = b.Space.Add(model.FieldSolute, fem.Continuous)

	layout := fem.Continuous
	if p.model.Settings.TrapsElementType == model.DG {
		layout = fem.Discontinuous
	}
	for i := range p.model.Traps {
		tr := &p.model.Traps[i]
		slot := trapSlot{index: i, trap: tr, density: -1, active: make([]bool, m.NumCells())}
		present := false
		for c, mat := range b.cellMat {
			slot.active[c] = tr.In(mat.ID)
			present = present || slot.active[c]
		}
		if !present {
			continue
		}
		slot.field = b.Space.Add(model.TrapField(i), layout)
		if tr.Extrinsic != nil {
			slot.density = b.Space.Add(model.DensityField(i), layout)
		}
		slot.isolated = isolatedDofs(b.Space, slot)
		b.traps = append(b.traps, slot)
	}

	for _, s := range p.model.Surfaces {
		if v, ok := m.VertexAt(s.X); ok {
			b.surfaces[s.ID] = v
		}
	}
	p.blocks = append(p.blocks, b)
}

// isolatedDofs returns the trap dofs (and density dofs) not touched by any
// active cell.
func isolatedDofs(sp *fem.Space, slot trapSlot) []int {
	fieldsOf := []int{slot.field}
	if slot.density >= 0 {
		fieldsOf = append(fieldsOf, slot.density)
	}
	var out []int
	for _, f := range fieldsOf {
		touched := make(map[int]bool)
		for c := range sp.Mesh.Cells {
			if slot.active[c] {
				d := sp.Dofs(f, c)
				touched[d[0]], touched[d[1]] = true, true
			}
		}
		fd := sp.Fields[f]
		for dof := fd.Offset; dof < fd.Offset+fd.Size; dof++ {
			if !touched[dof] {
				out = append(out, dof)
			}
		}
	}
	return out
}

func (p *Problem) blockOf(material int) int {
	for i, b := range p.blocks {
		if b.Sub != nil && b.Sub.Tag == material {
			return i
		}
	}
	return -1
}

func (p *Problem) linkInterfaces() error {
	for _, itf := range p.model.Interfaces {
		s := p.model.Surface(itf.Surface)
		a, b := p.blockOf(itf.Materials[0]), p.blockOf(itf.Materials[1])
		// the left block ends at the interface
		if lo, _ := p.blocks[a].Mesh.Bounds(); lo >= s.X {
			a, b = b, a
		}
		left, right := p.blocks[a], p.blocks[b]
		lv, okL := left.Mesh.VertexAt(s.X)
		rv, okR := right.Mesh.VertexAt(s.X)
		if !okL || !okR || lv != left.Mesh.NumVertices()-1 || rv != 0 {
			return fmt.Errorf("interface at x=%g does not join the ends of materials %d and %d", s.X, itf.Materials[0], itf.Materials[1])
		}
		p.links = append(p.links, link{
			left:      a,
			right:     b,
			leftCell:  left.Mesh.NumCells() - 1,
			rightCell: 0,
			penalty:   itf.Penalty,
			x:         s.X,
		})
	}
	return nil
}

func (p *Problem) locateBCs(b *Block) {
	for i := range p.model.BoundaryConditions {
		bc := &p.model.BoundaryConditions[i]
		if bc.Kind.Essential() || bc.Field != model.FieldSolute {
			continue
		}
		for _, s := range bc.Surfaces {
			v, ok := b.surfaces[s]
			if !ok {
				continue
			}
			b.natural = append(b.natural, naturalBC{bc: bc, vertex: v, cell: b.Mesh.CellsAt(v)[0]})
		}
	}
}

func (p *Problem) Registry() *fields.Registry { return p.registry }

func (p *Problem) Blocks() []*Block { return p.blocks }

// SetTemperature sets the nodal temperature of the new and previous time
// levels from parent mesh vertex values.
func (p *Problem) SetTemperature(current, previous []float64) {
	for _, b := range p.blocks {
		if b.Sub != nil {
			b.Sub.Restrict(current, b.temp)
			b.Sub.Restrict(previous, b.tempPrev)
			continue
		}
		copy(b.temp, current)
		copy(b.tempPrev, previous)
	}
}

// solubility is the factor turning the mobile unknown into a concentration.
func (p *Problem) solubility(mat *model.Material, T float64) float64 {
	if !p.model.Settings.ChemicalPot {
		return 1
	}
	return mat.S(T)
}

// Prepare sets the time level of the next solve and evaluates the
// Dirichlet data at t.
func (p *Problem) Prepare(t, dt float64) error {
	p.t, p.dt = t, dt
	for i, b := range p.blocks {
		cons, err := p.constraints(b, t)
		if err != nil {
			return err
		}
		p.dirichlet[i] = cons
	}
	return nil
}

func (p *Problem) constraints(b *Block, t float64) ([]fem.Constraint, error) {
	var out []fem.Constraint
	for i := range p.model.BoundaryConditions {
		bc := &p.model.BoundaryConditions[i]
		if !bc.Kind.Essential() || bc.Field == model.FieldTemperature {
			continue
		}
		f, ok := b.Space.Lookup(bc.Field)
		if !ok {
			continue
		}
		for _, s := range bc.Surfaces {
			v, ok := b.surfaces[s]
			if !ok {
				continue
			}
			x, T := b.Mesh.Vertices[v], b.temp[v]
			for _, c := range b.Mesh.CellsAt(v) {
				mat := b.cellMat[c]
				g, err := essentialValue(bc, mat, x, t, T)
				if err != nil {
					return nil, err
				}
				if f == b.mobile {
					g /= p.solubility(mat, T)
				}
				local := 0
				if b.Mesh.Cells[c][1] == v {
					local = 1
				}
				out = append(out, fem.Constraint{Dof: b.Space.Dofs(f, c)[local], Value: g})
				if b.Space.Fields[f].Layout == fem.Continuous {
					break
				}
			}
		}
	}
	return out, nil
}

func essentialValue(bc *model.BoundaryCondition, mat *model.Material, x, t, T float64) (float64, error) {
	if bc.Kind == model.Sievert {
		pressure, err := bc.Pressure.Eval(x, t, T)
		if err != nil {
			return 0, err
		}
		return model.Arrhenius(bc.S0, bc.ES, T) * sqrtPositive(pressure), nil
	}
	return bc.Value.Eval(x, t, T)
}
