// Package newton implements a block Newton solver. The unknowns are split in
// blocks (one per subdomain); the Jacobian is assembled block by block into a
// single global system which is solved with a dense LU factorisation.
package newton

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/h2transport/internal/fem"
	"github.com/san-kum/h2transport/internal/simerr"
)

// System is a nonlinear problem split in blocks. Jacobian(i, j) is only
// requested when Coupled(i, j) is true.
type System interface {
	NumBlocks() int
	BlockSize(i int) int
	Coupled(i, j int) bool
	Residual(i int, u [][]float64, r []float64) error
	Jacobian(i, j int, u [][]float64, m fem.Matrix) error
	Dirichlet(i int) []fem.Constraint
}

// Policy is the convergence policy.
type Policy struct {
	AbsoluteTolerance float64
	RelativeTolerance float64
	MaximumIterations int

	// UpdateJacobian re-assembles the Jacobian at every iteration. When false
	// the factorisation of the first iteration is reused.
	UpdateJacobian bool

	// Relaxation scales every update; 0 means 1.
	Relaxation float64
}

// Report describes a finished solve.
type Report struct {
	Iterations      int
	InitialResidual float64
	Residual        float64
}

type Solver struct {
	Policy Policy
	logger *slog.Logger
}

func NewSolver(p Policy, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Solver{Policy: p, logger: logger}
}

type layout struct {
	offsets []int
	size    int
}

func newLayout(sys System) layout {
	l := layout{offsets: make([]int, sys.NumBlocks()+1)}
	for i := 0; i < sys.NumBlocks(); i++ {
		l.offsets[i+1] = l.offsets[i] + sys.BlockSize(i)
	}
	l.size = l.offsets[len(l.offsets)-1]
	return l
}

// Solve iterates until convergence, updating u in place. At least one update
// is applied before convergence is tested. On error u is left at the last
// iterate and must be restored by the caller.
func (s *Solver) Solve(sys System, u [][]float64) (Report, error) {
	p := s.Policy
	relax := p.Relaxation
	if relax == 0 {
		relax = 1
	}

	l := newLayout(sys)
	r := make([]float64, l.size)
	rhs := mat.NewVecDense(l.size, nil)
	dx := mat.NewVecDense(l.size, nil)

	var (
		rep      Report
		lu       mat.LU
		raw      *mat.Dense
		factored bool
	)

	for it := 0; ; it++ {
		cons, err := s.residual(sys, l, u, r)
		if err != nil {
			return rep, err
		}
		if !allFinite(r) {
			return rep, s.diverged(rep, "non-finite residual")
		}

		norm := floats.Norm(r, 2)
		if it == 0 {
			rep.InitialResidual = norm
		}
		rep.Residual = norm
		s.logger.Debug("newton iteration", "iteration", it, "residual", norm)

		if it > 0 && converged(norm, rep.InitialResidual, p) {
			return rep, nil
		}
		if it >= p.MaximumIterations {
			return rep, s.diverged(rep, fmt.Sprintf("no convergence in %d iterations", p.MaximumIterations))
		}

		if !factored || p.UpdateJacobian {
			raw, err = s.jacobian(sys, l, u)
			if err != nil {
				return rep, err
			}
			if !allFinite(raw.RawMatrix().Data) {
				return rep, s.diverged(rep, "non-finite jacobian")
			}
			lu.Factorize(eliminate(raw, cons))
			factored = true
		}

		lift(raw, cons, r, rhs)
		if err := lu.SolveVecTo(dx, false, rhs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return rep, s.diverged(rep, fmt.Sprintf("singular jacobian: %v", err))
			}
			s.logger.Warn("ill-conditioned jacobian", "condition", float64(cond))
		}
		if !allFinite(dx.RawVector().Data) {
			return rep, s.diverged(rep, "non-finite update")
		}

		for b := range u {
			off := l.offsets[b]
			for k := range u[b] {
				u[b][k] += relax * dx.AtVec(off+k)
			}
		}
		rep.Iterations = it + 1
	}
}

func converged(norm, initial float64, p Policy) bool {
	if norm == 0 || norm < p.AbsoluteTolerance {
		return true
	}
	return initial > 0 && norm/initial < p.RelativeTolerance
}

func (s *Solver) diverged(rep Report, reason string) error {
	s.logger.Debug("newton diverged", "iterations", rep.Iterations, "residual", rep.Residual, "reason", reason)
	return &simerr.DivergenceError{Iterations: rep.Iterations, Residual: rep.Residual, Reason: reason}
}

// residual assembles the global residual. Constrained rows hold u - g.
func (s *Solver) residual(sys System, l layout, u [][]float64, r []float64) ([]fem.Constraint, error) {
	var cons []fem.Constraint
	for i := 0; i < sys.NumBlocks(); i++ {
		off := l.offsets[i]
		block := r[off:l.offsets[i+1]]
		for k := range block {
			block[k] = 0
		}
		if err := sys.Residual(i, u, block); err != nil {
			return nil, fmt.Errorf("residual of block %d: %w", i, err)
		}
		for _, c := range sys.Dirichlet(i) {
			r[off+c.Dof] = u[i][c.Dof] - c.Value
			cons = append(cons, fem.Constraint{Dof: off + c.Dof, Value: c.Value})
		}
	}
	return cons, nil
}

func (s *Solver) jacobian(sys System, l layout, u [][]float64) (*mat.Dense, error) {
	dok := sparse.NewDOK(l.size, l.size)
	for i := 0; i < sys.NumBlocks(); i++ {
		for j := 0; j < sys.NumBlocks(); j++ {
			if !sys.Coupled(i, j) {
				continue
			}
			target := fem.DOKBlock{M: dok, Row: l.offsets[i], Col: l.offsets[j]}
			if err := sys.Jacobian(i, j, u, target); err != nil {
				return nil, fmt.Errorf("jacobian block (%d, %d): %w", i, j, err)
			}
		}
	}
	return dok.ToDense(), nil
}

// eliminate returns a copy of a with the constrained rows and columns
// replaced by identity.
func eliminate(a *mat.Dense, cons []fem.Constraint) *mat.Dense {
	out := mat.DenseCopyOf(a)
	n, _ := out.Dims()
	for _, c := range cons {
		for k := 0; k < n; k++ {
			out.Set(c.Dof, k, 0)
			out.Set(k, c.Dof, 0)
		}
		out.Set(c.Dof, c.Dof, 1)
	}
	return out
}

// lift builds the right hand side -r, moving the known increments of the
// constrained dofs to the right hand side with the unmodified Jacobian.
func lift(raw *mat.Dense, cons []fem.Constraint, r []float64, rhs *mat.VecDense) {
	fixed := make(map[int]float64, len(cons))
	for _, c := range cons {
		fixed[c.Dof] = -r[c.Dof]
	}
	for k, v := range r {
		rhs.SetVec(k, -v)
	}
	for dof, delta := range fixed {
		if delta == 0 {
			continue
		}
		for k := range r {
			if _, ok := fixed[k]; ok {
				continue
			}
			rhs.SetVec(k, rhs.AtVec(k)-raw.At(k, dof)*delta)
		}
	}
	for dof, delta := range fixed {
		rhs.SetVec(dof, delta)
	}
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
