package transport

import (
	"github.com/san-kum/h2transport/internal/fem"
)

// side is the interface trace of one block.
type side struct {
	block int
	cell  int
	node  int
	e     fem.Element
	dofs  [2]int
	s     [2]float64
	D     float64
	flux  float64
	// potential p = pi*w at the interface node
	pi, p float64
}

func (p *Problem) trace(block, cell, node int, u [][]float64) side {
	b := p.blocks[block]
	mat := b.cellMat[cell]
	verts := b.Mesh.Cells[cell]
	T := [2]float64{b.temp[verts[0]], b.temp[verts[1]]}
	sd := side{
		block: block,
		cell:  cell,
		node:  node,
		e:     b.Space.Element(cell),
		dofs:  b.Space.Dofs(b.mobile, cell),
		s:     [2]float64{p.solubility(mat, T[0]), p.solubility(mat, T[1])},
		D:     mat.D(T[node]),
	}
	w := b.Space.Values(u[block], b.mobile, cell)
	sd.flux = sd.D * sd.e.Grad([2]float64{sd.s[0] * w[0], sd.s[1] * w[1]})
	sd.pi = 1
	if !p.model.Settings.ChemicalPot {
		sd.pi = 1 / mat.S(T[node])
	}
	sd.p = sd.pi * w[node]
	return sd
}

// dFlux is the derivative of the side flux with respect to its local dof k.
func (sd side) dFlux(k int) float64 {
	return sd.D * sd.e.DN()[k] * sd.s[k]
}

// dJump is the derivative of the potential jump with respect to local dof k.
func (sd side) dJump(k int, sign float64) float64 {
	if k != sd.node {
		return 0
	}
	return sign * sd.pi
}

// coupling adds the interior penalty terms of link l to the rows of block
// row. With col < 0 the residual is assembled into r, otherwise the
// derivatives with respect to block col go to m.
//
// With n the normal pointing from left to right, [p] = p_L - p_R and
// {F} = (F_L + F_R)/2, the left rows get -{F}n v - 1/2 D dv n [p] + sigma [p] v
// and the right rows +{F}n v - 1/2 D dv n [p] - sigma [p] v.
func (p *Problem) coupling(l link, row, col int, u [][]float64, r []float64, m fem.Matrix) {
	L := p.trace(l.left, l.leftCell, 1, u)
	R := p.trace(l.right, l.rightCell, 0, u)
	sigma := 2 * l.penalty / (L.e.H + R.e.H)
	jump := L.p - R.p
	avg := 0.5 * (L.flux + R.flux)

	self, sign := L, 1.0
	if row == l.right {
		self, sign = R, -1.0
	}
	dN := self.e.DN()

	for k := 0; k < 2; k++ {
		v := 0.0
		if k == self.node {
			v = 1
		}
		// coefficients of {F} and [p] in row k
		cFlux := -sign * v
		cJump := -0.5*self.D*dN[k] + sign*sigma*v

		if col < 0 {
			r[self.dofs[k]] += cFlux*avg + cJump*jump
			continue
		}

		other, jumpSign := L, 1.0
		if col == l.right {
			other, jumpSign = R, -1.0
		}
		for j := 0; j < 2; j++ {
			m.Add(self.dofs[k], other.dofs[j], cFlux*0.5*other.dFlux(j)+cJump*other.dJump(j, jumpSign))
		}
	}
}
