package fem

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/h2transport/internal/mesh"
)

type Layout int

const (
	// Continuous fields have one dof per vertex.
	Continuous Layout = iota
	// Discontinuous fields have two dofs per cell with no coupling between cells.
	Discontinuous
)

type Field struct {
	Name   string
	Layout Layout
	Offset int
	Size   int
}

// Space is a mixed P1 space: an ordered list of fields sharing one mesh and
// one unknown vector.
type Space struct {
	Mesh   *mesh.Mesh
	Fields []Field
	size   int
}

func NewSpace(m *mesh.Mesh) *Space {
	return &Space{Mesh: m}
}

// Add appends a field and returns its index.
func (s *Space) Add(name string, layout Layout) int {
	n := s.Mesh.NumVertices()
	if layout == Discontinuous {
		n = 2 * s.Mesh.NumCells()
	}
	s.Fields = append(s.Fields, Field{Name: name, Layout: layout, Offset: s.size, Size: n})
	s.size += n
	return len(s.Fields) - 1
}

func (s *Space) Size() int { return s.size }

func (s *Space) Lookup(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Dofs returns the two dofs of field f on cell c.
func (s *Space) Dofs(f, c int) [2]int {
	fd := s.Fields[f]
	if fd.Layout == Discontinuous {
		return [2]int{fd.Offset + 2*c, fd.Offset + 2*c + 1}
	}
	cell := s.Mesh.Cells[c]
	return [2]int{fd.Offset + cell[0], fd.Offset + cell[1]}
}

// Values gathers the nodal values of field f on cell c.
func (s *Space) Values(u []float64, f, c int) [2]float64 {
	d := s.Dofs(f, c)
	return [2]float64{u[d[0]], u[d[1]]}
}

func (s *Space) Element(c int) Element {
	return Element{X0: s.Mesh.Vertices[s.Mesh.Cells[c][0]], H: s.Mesh.H(c)}
}

// Interpolate sets field f to fn evaluated at its nodes.
func (s *Space) Interpolate(u []float64, f int, fn func(x float64) float64) {
	for c := range s.Mesh.Cells {
		d := s.Dofs(f, c)
		for a, v := range s.Mesh.Cells[c] {
			u[d[a]] = fn(s.Mesh.Vertices[v])
		}
	}
}

// Matrix receives Jacobian contributions.
type Matrix interface {
	Add(i, j int, v float64)
}

// DOKBlock adds into a dictionary-of-keys matrix at a block offset.
type DOKBlock struct {
	M        *sparse.DOK
	Row, Col int
}

func (b DOKBlock) Add(i, j int, v float64) {
	if v == 0 {
		return
	}
	r, c := b.Row+i, b.Col+j
	b.M.Set(r, c, b.M.At(r, c)+v)
}

// DenseMatrix adapts a gonum dense matrix.
type DenseMatrix struct {
	*mat.Dense
}

func NewDenseMatrix(n int) DenseMatrix {
	return DenseMatrix{mat.NewDense(n, n, nil)}
}

func (d DenseMatrix) Add(i, j int, v float64) {
	d.Set(i, j, d.At(i, j)+v)
}

// Constraint pins a dof to a value.
type Constraint struct {
	Dof   int
	Value float64
}

func (c Constraint) String() string {
	return fmt.Sprintf("u[%d]=%g", c.Dof, c.Value)
}
