// Package fem holds the linear finite element primitives shared by the
// transport and heat assemblers.
package fem

import (
	"gonum.org/v1/gonum/integrate/quad"
)

// Rule is a quadrature rule on the reference cell [0, 1].
type Rule struct {
	Points  []float64
	Weights []float64
}

// Gauss returns the n point Gauss-Legendre rule on [0, 1].
func Gauss(n int) Rule {
	r := Rule{Points: make([]float64, n), Weights: make([]float64, n)}
	quad.Legendre{}.FixedLocations(r.Points, r.Weights, 0, 1)
	return r
}

// Gauss3 integrates polynomials up to degree five exactly.
var Gauss3 = Gauss(3)

// Element is a P1 interval cell.
type Element struct {
	X0 float64
	H  float64
}

func (e Element) X(xi float64) float64 { return e.X0 + e.H*xi }

// N returns the shape function values at reference coordinate xi.
func N(xi float64) [2]float64 { return [2]float64{1 - xi, xi} }

// DN returns the physical shape function gradients.
func (e Element) DN() [2]float64 { return [2]float64{-1 / e.H, 1 / e.H} }

// Interp evaluates a P1 field with nodal values v at xi.
func Interp(v [2]float64, xi float64) float64 { return v[0] + (v[1]-v[0])*xi }

// Grad is the (constant) gradient of a P1 field on e.
func (e Element) Grad(v [2]float64) float64 { return (v[1] - v[0]) / e.H }
