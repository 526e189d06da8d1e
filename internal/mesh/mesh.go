// Package mesh provides the one-dimensional meshes the solver runs on:
// interval meshes with per-cell volume tags and submeshes that keep the
// mapping back to their parent.
package mesh

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrEmptyMesh     = errors.New("mesh: no cells")
	ErrNotIncreasing = errors.New("mesh: vertices must be strictly increasing")
)

// Mesh is an interval mesh. Cell c spans Vertices[Cells[c][0]] to
// Vertices[Cells[c][1]].
type Mesh struct {
	Vertices []float64
	Cells    [][2]int
	Tags     []int
}

// Refinement asks for at least Cells cells left of X.
type Refinement struct {
	Cells int
	X     float64
}

func NewUniform(cells int, size float64) (*Mesh, error) {
	if cells <= 0 {
		return nil, ErrEmptyMesh
	}
	v := make([]float64, cells+1)
	for i := range v {
		v[i] = size * float64(i) / float64(cells)
	}
	return FromVertices(v)
}

func FromVertices(vertices []float64) (*Mesh, error) {
	if len(vertices) < 2 {
		return nil, ErrEmptyMesh
	}
	for i := 1; i < len(vertices); i++ {
		if !(vertices[i] > vertices[i-1]) {
			return nil, fmt.Errorf("%w: x[%d]=%g, x[%d]=%g", ErrNotIncreasing, i-1, vertices[i-1], i, vertices[i])
		}
	}
	m := &Mesh{
		Vertices: append([]float64(nil), vertices...),
		Cells:    make([][2]int, len(vertices)-1),
		Tags:     make([]int, len(vertices)-1),
	}
	for c := range m.Cells {
		m.Cells[c] = [2]int{c, c + 1}
	}
	return m, nil
}

// FromRefinements builds a uniform mesh and bisects the cells left of each
// refinement abscissa until the requested count is reached.
func FromRefinements(cells int, size float64, refinements []Refinement) (*Mesh, error) {
	base, err := NewUniform(cells, size)
	if err != nil {
		return nil, err
	}
	v := base.Vertices
	for _, r := range refinements {
		for iter := 0; countBelow(v, r.X) < r.Cells; iter++ {
			if iter > 40 {
				return nil, fmt.Errorf("mesh: refinement to %d cells below x=%g does not terminate", r.Cells, r.X)
			}
			v = bisectBelow(v, r.X)
		}
	}
	return FromVertices(v)
}

func countBelow(v []float64, x float64) int {
	n := 0
	for i := 1; i < len(v); i++ {
		if v[i] <= x*(1+1e-12) {
			n++
		}
	}
	return n
}

func bisectBelow(v []float64, x float64) []float64 {
	out := make([]float64, 0, 2*len(v))
	out = append(out, v[0])
	for i := 1; i < len(v); i++ {
		if v[i] <= x*(1+1e-12) {
			out = append(out, 0.5*(v[i-1]+v[i]))
		}
		out = append(out, v[i])
	}
	return out
}

func (m *Mesh) NumCells() int { return len(m.Cells) }

func (m *Mesh) NumVertices() int { return len(m.Vertices) }

// H is the length of cell c.
func (m *Mesh) H(c int) float64 {
	return m.Vertices[m.Cells[c][1]] - m.Vertices[m.Cells[c][0]]
}

func (m *Mesh) Midpoint(c int) float64 {
	return 0.5 * (m.Vertices[m.Cells[c][0]] + m.Vertices[m.Cells[c][1]])
}

func (m *Mesh) Bounds() (float64, float64) {
	return m.Vertices[0], m.Vertices[len(m.Vertices)-1]
}

// VertexAt returns the vertex at x within a relative tolerance.
func (m *Mesh) VertexAt(x float64) (int, bool) {
	lo, hi := m.Bounds()
	tol := 1e-10 * math.Max(hi-lo, 1e-300)
	i := sort.SearchFloat64s(m.Vertices, x-tol)
	if i < len(m.Vertices) && math.Abs(m.Vertices[i]-x) <= tol {
		return i, true
	}
	return -1, false
}

// CellsAt returns the cells touching vertex v.
func (m *Mesh) CellsAt(v int) []int {
	var out []int
	for c, cell := range m.Cells {
		if cell[0] == v || cell[1] == v {
			out = append(out, c)
		}
	}
	return out
}

// Tag assigns each cell the id of the region containing its midpoint.
// Every cell must fall in exactly one region.
func (m *Mesh) Tag(regions map[int][2]float64) error {
	ids := make([]int, 0, len(regions))
	for id := range regions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for c := range m.Cells {
		mid := m.Midpoint(c)
		m.Tags[c] = 0
		for _, id := range ids {
			r := regions[id]
			if mid < r[0] || mid > r[1] {
				continue
			}
			if m.Tags[c] != 0 {
				return fmt.Errorf("mesh: cell %d (x=%g) lies in regions %d and %d", c, mid, m.Tags[c], id)
			}
			m.Tags[c] = id
		}
		if m.Tags[c] == 0 {
			return fmt.Errorf("mesh: cell %d (x=%g) belongs to no region", c, mid)
		}
	}
	return nil
}

// TagAll marks every cell with id.
func (m *Mesh) TagAll(id int) {
	for c := range m.Tags {
		m.Tags[c] = id
	}
}

// Submesh is the part of a parent mesh carrying one tag.
type Submesh struct {
	*Mesh
	Tag            int
	CellToParent   []int
	VertexToParent []int
}

// Submesh extracts the cells tagged id. The tagged cells must be contiguous.
func (m *Mesh) Submesh(id int) (*Submesh, error) {
	first, last := -1, -1
	for c, tag := range m.Tags {
		if tag != id {
			continue
		}
		if first < 0 {
			first = c
		} else if c != last+1 {
			return nil, fmt.Errorf("mesh: region %d is not contiguous", id)
		}
		last = c
	}
	if first < 0 {
		return nil, fmt.Errorf("mesh: region %d has no cells", id)
	}

	v0 := m.Cells[first][0]
	v1 := m.Cells[last][1]
	sub, err := FromVertices(m.Vertices[v0 : v1+1])
	if err != nil {
		return nil, err
	}
	sub.TagAll(id)

	s := &Submesh{
		Mesh:           sub,
		Tag:            id,
		CellToParent:   make([]int, sub.NumCells()),
		VertexToParent: make([]int, sub.NumVertices()),
	}
	for c := range s.CellToParent {
		s.CellToParent[c] = first + c
	}
	for v := range s.VertexToParent {
		s.VertexToParent[v] = v0 + v
	}
	return s, nil
}

// Restrict copies parent vertex values onto the submesh.
func (s *Submesh) Restrict(parent, out []float64) {
	for v, p := range s.VertexToParent {
		out[v] = parent[p]
	}
}
