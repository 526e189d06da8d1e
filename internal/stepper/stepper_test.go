package stepper

import (
	"errors"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/h2transport/internal/simerr"
)

// scripted fails any step larger than maxDt and reports a fixed iteration count.
type scripted struct {
	maxDt      float64
	iterations int
	err        error

	solves, commits, restores int
	times                     []float64
}

func (p *scripted) Solve(t, dt float64) (int, error) {
	p.solves++
	if p.err != nil {
		return 0, p.err
	}
	if dt > p.maxDt {
		return 0, &simerr.DivergenceError{Reason: "too large"}
	}
	p.times = append(p.times, t)
	return p.iterations, nil
}

func (p *scripted) Restore() { p.restores++ }
func (p *scripted) Commit()  { p.commits++ }

var _ = Describe("Stepsize", func() {
	It("grows on easy steps and caps at the maximum", func() {
		s := NewStepsize(1, 0.1, 1.5, 1.2)
		s.Adapt(1, 2)
		Expect(s.Value).To(BeNumerically("~", 1.2, 1e-12))
		s.Adapt(2, 2)
		s.Adapt(3, 2)
		Expect(s.Value).To(Equal(1.5))
	})

	It("shrinks when Newton needs many iterations but not below the minimum", func() {
		s := NewStepsize(1, 0.9, 10, 1.2)
		s.Adapt(1, 7)
		Expect(s.Value).To(Equal(0.9))
	})

	It("applies stepsize_stop_max after t_stop", func() {
		s := NewStepsize(1, 0.01, 10, 2)
		s.StopTime, s.StopMax = 5, 0.5
		s.Adapt(4, 1)
		Expect(s.Value).To(Equal(2.0))
		s.Adapt(5, 1)
		Expect(s.Value).To(Equal(0.5))
	})

	It("lands on stops and the final time", func() {
		s := NewStepsize(1, 0.01, 10, 1)
		s.AddStops(2.5, 0.5)
		dt, target := s.Propose(0, 10)
		Expect(target).To(Equal(0.5))
		Expect(dt).To(Equal(0.5))

		dt, target = s.Propose(0.5, 10)
		Expect(target).To(Equal(1.5))
		Expect(dt).To(Equal(1.0))

		_, target = s.Propose(2, 10)
		Expect(target).To(Equal(2.5))

		dt, target = s.Propose(9.7, 10)
		Expect(target).To(Equal(10.0))
		Expect(dt).To(BeNumerically("~", 0.3, 1e-12))
	})

	It("halves when the ratio does not exceed one", func() {
		s := NewStepsize(1, 0.1, 10, 1)
		Expect(s.Shrink(1)).To(Succeed())
		Expect(s.Value).To(Equal(0.5))
	})

	It("shrinks from a clipped step rather than the nominal stepsize", func() {
		s := NewStepsize(10, 0.01, 100, 2)
		Expect(s.Shrink(0.4)).To(Succeed())
		Expect(s.Value).To(Equal(0.2))
	})

	It("refuses to shrink below the minimum", func() {
		s := NewStepsize(0.15, 0.1, 10, 2)
		Expect(s.Shrink(0.15)).To(MatchError(ErrBelowMinimum))
		Expect(s.Value).To(Equal(0.15))
	})
})

var _ = Describe("Stepper", func() {
	var (
		size  *Stepsize
		state *State
	)

	BeforeEach(func() {
		size = NewStepsize(1, 0.01, 2, 1.1)
		state = &State{}
	})

	It("runs to the final time through accepted steps", func() {
		p := &scripted{maxDt: 10, iterations: 2}
		s := New(size, 5, 0, nil)

		for state.Phase != Terminal {
			Expect(s.Advance(state, p)).To(Succeed())
			Expect(size.Value).To(BeNumerically("<=", size.Max))
		}
		Expect(state.T).To(Equal(5.0))
		Expect(p.commits).To(Equal(state.Step))
		Expect(p.restores).To(BeZero())
		Expect(state.Converged).To(BeTrue())
	})

	It("retries rejected steps with a strictly smaller stepsize", func() {
		p := &scripted{maxDt: 0.85, iterations: 2}
		s := New(size, 1, 0, nil)

		Expect(s.Advance(state, p)).To(Succeed())
		Expect(state.Rejections).To(Equal(2))
		Expect(p.restores).To(Equal(2))
		Expect(state.T).To(BeNumerically("~", 1/1.1/1.1, 1e-12))
		Expect(size.Value).To(BeNumerically(">=", size.Min))
	})

	It("fails with a divergence error once the stepsize would drop below dt_min", func() {
		p := &scripted{maxDt: 0.001, iterations: 2}
		s := New(size, 1, 0, nil)

		err := s.Advance(state, p)
		Expect(errors.Is(err, simerr.ErrDiverged)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("the solver diverged"))
		Expect(strings.Count(err.Error(), "the solver diverged")).To(Equal(1))
		Expect(state.Phase).To(Equal(Terminal))
		Expect(state.Step).To(BeZero())
	})

	It("retries a step clipped to the final time with a smaller step", func() {
		p := &scripted{maxDt: 0.3, iterations: 2}
		s := New(NewStepsize(10, 0.05, 100, 2), 0.4, 0, nil)

		for state.Phase != Terminal {
			Expect(s.Advance(state, p)).To(Succeed())
		}
		Expect(state.T).To(BeNumerically("~", 0.4, 1e-12))
		Expect(state.Rejections).To(Equal(1))
		Expect(p.times[0]).To(BeNumerically("~", 0.2, 1e-12))
	})

	It("propagates non-divergence errors without retrying", func() {
		boom := errors.New("boom")
		p := &scripted{maxDt: 1, err: boom}
		s := New(size, 1, 0, nil)

		Expect(s.Advance(state, p)).To(MatchError(boom))
		Expect(p.solves).To(Equal(1))
	})

	It("stops when the step budget is exhausted", func() {
		p := &scripted{maxDt: 10, iterations: 1}
		s := New(NewStepsize(0.1, 0.01, 1, 1), 100, 3, nil)

		for state.Phase != Terminal {
			Expect(s.Advance(state, p)).To(Succeed())
		}
		Expect(state.Step).To(Equal(3))
		Expect(state.T).To(BeNumerically("<", 100))
	})

	It("lands exactly on milestones", func() {
		size.AddStops(0.25, 1.75)
		p := &scripted{maxDt: 10, iterations: 1}
		s := New(size, 3, 0, nil)

		for state.Phase != Terminal {
			Expect(s.Advance(state, p)).To(Succeed())
		}
		Expect(p.times).To(ContainElements(0.25, 1.75, 3.0))
		Expect(math.IsNaN(state.T)).To(BeFalse())
	})
})
