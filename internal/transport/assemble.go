package transport

import (
	"math"

	"github.com/san-kum/h2transport/internal/fem"
	"github.com/san-kum/h2transport/internal/model"
)

func (p *Problem) NumBlocks() int { return len(p.blocks) }

func (p *Problem) BlockSize(i int) int { return p.blocks[i].Space.Size() }

// Coupled reports whether block i depends on the unknowns of block j.
func (p *Problem) Coupled(i, j int) bool {
	if i == j {
		return true
	}
	for _, l := range p.links {
		if (l.left == i && l.right == j) || (l.left == j && l.right == i) {
			return true
		}
	}
	return false
}

func (p *Problem) Dirichlet(i int) []fem.Constraint { return p.dirichlet[i] }

func (p *Problem) Residual(i int, u [][]float64, r []float64) error {
	p.volume(i, u, r, nil)
	p.boundary(i, u, r, nil)
	for _, l := range p.links {
		if l.left == i || l.right == i {
			p.coupling(l, i, -1, u, r, nil)
		}
	}
	return nil
}

func (p *Problem) Jacobian(i, j int, u [][]float64, m fem.Matrix) error {
	if i == j {
		p.volume(i, u, nil, m)
		p.boundary(i, u, nil, m)
	}
	for _, l := range p.links {
		if (l.left == i || l.right == i) && (l.left == j || l.right == j) {
			p.coupling(l, i, j, u, nil, m)
		}
	}
	return nil
}

// source sums the sources of a field over the material of a cell.
func (p *Problem) source(field string, material int, x, T float64) float64 {
	sum := 0.0
	for k := range p.model.Sources {
		src := &p.model.Sources[k]
		if src.Field != field || !inVolumes(src.Volumes, material) {
			continue
		}
		sum += src.Value.At(x, p.t, T)
	}
	return sum
}

func inVolumes(volumes []int, id int) bool {
	if len(volumes) == 0 {
		return true
	}
	for _, v := range volumes {
		if v == id {
			return true
		}
	}
	return false
}

// volume adds the cell integrals of block i. r or m may be nil.
func (p *Problem) volume(i int, u [][]float64, r []float64, m fem.Matrix) {
	b := p.blocks[i]
	sp := b.Space
	ui, prev := u[i], p.registry.Previous()[i]
	soret := p.model.Settings.Soret
	transient := p.transient

	for c, cell := range b.Mesh.Cells {
		mat := b.cellMat[c]
		e := sp.Element(c)
		dN := e.DN()
		T := [2]float64{b.temp[cell[0]], b.temp[cell[1]]}
		To := [2]float64{b.tempPrev[cell[0]], b.tempPrev[cell[1]]}
		s := [2]float64{p.solubility(mat, T[0]), p.solubility(mat, T[1])}
		so := [2]float64{p.solubility(mat, To[0]), p.solubility(mat, To[1])}

		w := sp.Values(ui, b.mobile, c)
		wo := sp.Values(prev, b.mobile, c)
		cn := [2]float64{s[0] * w[0], s[1] * w[1]}
		co := [2]float64{so[0] * wo[0], so[1] * wo[1]}
		gradC := e.Grad(cn)
		gradT := e.Grad(T)
		dofs := sp.Dofs(b.mobile, c)

		for q, xi := range fem.Gauss3.Points {
			N := fem.N(xi)
			jw := fem.Gauss3.Weights[q] * e.H
			x := e.X(xi)
			Tq := fem.Interp(T, xi)
			D := mat.D(Tq)
			cq := fem.Interp(cn, xi)

			flux := D * gradC
			thermo := 0.0
			if soret {
				thermo = D * mat.HeatOfTransport / (model.KB * Tq * Tq) * gradT
				flux += thermo * cq
			}

			if r != nil {
				f := p.source(model.FieldSolute, mat.ID, x, Tq)
				rate := 0.0
				if transient {
					rate = (cq - fem.Interp(co, xi)) / p.dt
				}
				for a := 0; a < 2; a++ {
					r[dofs[a]] += jw * (flux*dN[a] + (rate-f)*N[a])
				}
			}
			if m != nil {
				for a := 0; a < 2; a++ {
					for bb := 0; bb < 2; bb++ {
						v := D*dN[bb]*dN[a] + thermo*N[bb]*dN[a]
						if transient {
							v += N[bb] * N[a] / p.dt
						}
						m.Add(dofs[a], dofs[bb], jw*v*s[bb])
					}
				}
			}

			for _, slot := range b.traps {
				if slot.active[c] {
					p.trapping(b, slot, c, e, xi, jw, Tq, cq, s, dofs, ui, prev, r, m)
				}
			}
		}
	}

	for _, slot := range b.traps {
		for _, dof := range slot.isolated {
			if r != nil {
				r[dof] += ui[dof]
			}
			if m != nil {
				m.Add(dof, dof, 1)
			}
		}
	}
}

// trapping adds the quadrature point contribution of one trap in cell c.
func (p *Problem) trapping(b *Block, slot trapSlot, c int, e fem.Element, xi, jw, Tq, cq float64,
	s [2]float64, mobile [2]int, ui, prev, r []float64, m fem.Matrix) {

	sp := b.Space
	tr := slot.trap
	N := fem.N(xi)
	x := e.X(xi)
	dofs := sp.Dofs(slot.field, c)
	ct := fem.Interp(sp.Values(ui, slot.field, c), xi)
	cto := fem.Interp(sp.Values(prev, slot.field, c), xi)

	var n float64
	var ndofs [2]int
	if slot.density >= 0 {
		ndofs = sp.Dofs(slot.density, c)
		n = fem.Interp(sp.Values(ui, slot.density, c), xi)
	} else {
		n = tr.Density.At(x, p.t, Tq)
	}
	k, rel := tr.K(Tq), tr.P(Tq)
	inv := 0.0
	if p.transient {
		inv = 1 / p.dt
	}

	if r != nil {
		rate := (ct - cto) * inv
		f := p.source(model.TrapField(slot.index), b.cellMat[c].ID, x, Tq)
		rt := rate - k*cq*(n-ct) + rel*ct - f
		for a := 0; a < 2; a++ {
			r[mobile[a]] += jw * rate * N[a]
			r[dofs[a]] += jw * rt * N[a]
		}
	}
	if m != nil {
		for a := 0; a < 2; a++ {
			for bb := 0; bb < 2; bb++ {
				nn := jw * N[a] * N[bb]
				m.Add(mobile[a], dofs[bb], nn*inv)
				m.Add(dofs[a], mobile[bb], -nn*k*(n-ct)*s[bb])
				m.Add(dofs[a], dofs[bb], nn*(inv+k*cq+rel))
				if slot.density >= 0 {
					m.Add(dofs[a], ndofs[bb], -nn*k*cq)
				}
			}
		}
	}

	if slot.density >= 0 {
		p.extrinsic(sp, slot, c, x, xi, jw, Tq, ndofs, ui, prev, r, m)
	}
}

// extrinsic adds the creation law of an extrinsic trap density.
func (p *Problem) extrinsic(sp *fem.Space, slot trapSlot, c int, x, xi, jw, Tq float64,
	dofs [2]int, ui, prev, r []float64, m fem.Matrix) {

	f := slot.trap.Extrinsic
	N := fem.N(xi)
	phi := f.Phi0.At(x, p.t, Tq)
	a := f.EtaA * f.FA.At(x, p.t, Tq)
	bterm := f.EtaB * f.FB.At(x, p.t, Tq)

	if r != nil {
		n := fem.Interp(sp.Values(ui, slot.density, c), xi)
		no := fem.Interp(sp.Values(prev, slot.density, c), xi)
		rn := (n-no)/p.dt - phi*((1-n/f.NAmax)*a+(1-n/f.NBmax)*bterm)
		for i := 0; i < 2; i++ {
			r[dofs[i]] += jw * rn * N[i]
		}
	}
	if m != nil {
		d := 1/p.dt + phi*(a/f.NAmax+bterm/f.NBmax)
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				m.Add(dofs[i], dofs[j], jw*d*N[i]*N[j])
			}
		}
	}
}

// boundary adds the flux conditions of block i.
func (p *Problem) boundary(i int, u [][]float64, r []float64, m fem.Matrix) {
	b := p.blocks[i]
	for _, nb := range b.natural {
		x, T := b.Mesh.Vertices[nb.vertex], b.temp[nb.vertex]
		dof := b.Space.Fields[b.mobile].Offset + nb.vertex
		switch nb.bc.Kind {
		case model.Flux:
			if r != nil {
				r[dof] -= nb.bc.Value.At(x, p.t, T)
			}
		case model.RecombinationFlux:
			s := p.solubility(b.cellMat[nb.cell], T)
			c := s * u[i][dof]
			kr := model.Arrhenius(nb.bc.Kr0, nb.bc.EKr, T)
			order := float64(nb.bc.Order)
			if r != nil {
				r[dof] += kr * math.Pow(c, order)
			}
			if m != nil {
				m.Add(dof, dof, kr*order*math.Pow(c, order-1)*s)
			}
		}
	}
}

func sqrtPositive(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
