// Package fields owns the unknown vectors of a problem: one per block, with
// the last accepted time step and the last Newton iterate kept alongside.
package fields

import (
	"math"
)

type Registry struct {
	names    []string
	current  [][]float64
	previous [][]float64
	iterate  [][]float64
}

func New() *Registry {
	return &Registry{}
}

// Add registers a block of size n and returns its index.
func (r *Registry) Add(name string, n int) int {
	r.names = append(r.names, name)
	r.current = append(r.current, make([]float64, n))
	r.previous = append(r.previous, make([]float64, n))
	r.iterate = append(r.iterate, make([]float64, n))
	return len(r.names) - 1
}

func (r *Registry) Len() int { return len(r.names) }

func (r *Registry) Name(i int) string { return r.names[i] }

// Current is the working state mutated by the nonlinear solver.
func (r *Registry) Current() [][]float64 { return r.current }

// Previous is the last accepted time step.
func (r *Registry) Previous() [][]float64 { return r.previous }

// Iterate is the state saved by the last call to SaveIterate.
func (r *Registry) Iterate() [][]float64 { return r.iterate }

// SaveIterate snapshots the working state before a solve.
func (r *Registry) SaveIterate() {
	copyBlocks(r.iterate, r.current)
}

// Commit accepts the working state as the new time level.
func (r *Registry) Commit() {
	copyBlocks(r.previous, r.current)
}

// Restore resets the working state to the last accepted time level.
func (r *Registry) Restore() {
	copyBlocks(r.current, r.previous)
}

// Initialise sets both time levels of every block.
func (r *Registry) Initialise() {
	copyBlocks(r.previous, r.current)
	copyBlocks(r.iterate, r.current)
}

// Finite reports whether every working value is finite.
func (r *Registry) Finite() bool {
	for _, b := range r.current {
		for _, v := range b {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func copyBlocks(dst, src [][]float64) {
	for i := range src {
		copy(dst[i], src[i])
	}
}
