package sim

import (
	"context"
	"sync"
)

// Batch runs independent simulations concurrently. Simulations share no
// state, so each one runs on its own goroutine.
type Batch struct {
	sims []*Simulation
}

func NewBatch(sims ...*Simulation) *Batch {
	return &Batch{sims: sims}
}

func (b *Batch) Len() int { return len(b.sims) }

// Run returns one result and one error per simulation, in order. A failed
// run does not stop the others.
func (b *Batch) Run(ctx context.Context) ([]*Result, []error) {
	results := make([]*Result, len(b.sims))
	errs := make([]error, len(b.sims))

	var wg sync.WaitGroup
	for i, s := range b.sims {
		wg.Add(1)
		go func(idx int, s *Simulation) {
			defer wg.Done()
			results[idx], errs[idx] = s.Run(ctx)
		}(i, s)
	}

	wg.Wait()
	return results, errs
}
