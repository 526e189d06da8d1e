package fem

import (
	"math"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/h2transport/internal/mesh"
)

func TestGaussRule(t *testing.T) {
	r := Gauss3
	require.Len(t, r.Points, 3)

	sum := 0.0
	for _, w := range r.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-14)

	// x^5 on [0, 1] integrates to 1/6.
	got := 0.0
	for q, xi := range r.Points {
		got += r.Weights[q] * math.Pow(xi, 5)
	}
	assert.InDelta(t, 1.0/6.0, got, 1e-14)
}

func TestElement(t *testing.T) {
	e := Element{X0: 1, H: 0.5}
	assert.Equal(t, 1.25, e.X(0.5))
	assert.Equal(t, [2]float64{-2, 2}, e.DN())
	assert.Equal(t, 4.0, e.Grad([2]float64{1, 3}))
	assert.Equal(t, 2.0, Interp([2]float64{1, 3}, 0.5))
}

func TestSpaceDofs(t *testing.T) {
	m, err := mesh.NewUniform(4, 1)
	require.NoError(t, err)

	s := NewSpace(m)
	cg := s.Add("solute", Continuous)
	dg := s.Add("1", Discontinuous)

	assert.Equal(t, 5+8, s.Size())
	assert.Equal(t, [2]int{2, 3}, s.Dofs(cg, 2))
	assert.Equal(t, [2]int{5 + 4, 5 + 5}, s.Dofs(dg, 2))

	idx, ok := s.Lookup("1")
	assert.True(t, ok)
	assert.Equal(t, dg, idx)

	u := make([]float64, s.Size())
	s.Interpolate(u, dg, func(x float64) float64 { return 2 * x })
	assert.Equal(t, [2]float64{1, 1.5}, s.Values(u, dg, 2))
}

func TestDOKBlockAccumulates(t *testing.T) {
	dok := sparse.NewDOK(4, 4)
	b := DOKBlock{M: dok, Row: 2, Col: 1}
	b.Add(0, 0, 1.5)
	b.Add(0, 0, 2)
	b.Add(1, 2, 0)

	assert.Equal(t, 3.5, dok.At(2, 1))
	assert.Equal(t, 1, dok.NNZ())
}
