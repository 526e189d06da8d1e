package stepper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/h2transport/internal/simerr"
)

type Phase int

const (
	Proposing Phase = iota
	Solving
	Accepted
	Rejected
	Terminal
)

func (p Phase) String() string {
	switch p {
	case Proposing:
		return "proposing"
	case Solving:
		return "solving"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// State is the run-scoped time stepping state.
type State struct {
	T          float64
	Step       int
	Phase      Phase
	Converged  bool
	Rejections int
}

// Problem is solved once per trial step.
type Problem interface {
	// Solve advances from the last accepted state to time t with step dt and
	// returns the Newton iteration count.
	Solve(t, dt float64) (int, error)
	// Restore returns to the last accepted state.
	Restore()
	// Commit accepts the solved state.
	Commit()
}

type Stepper struct {
	Size     *Stepsize
	Final    float64
	MaxSteps int

	logger *slog.Logger
}

func New(size *Stepsize, final float64, maxSteps int, logger *slog.Logger) *Stepper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stepper{Size: size, Final: final, MaxSteps: maxSteps, logger: logger}
}

// Done reports whether the final time or the step budget has been reached.
func (s *Stepper) Done(st *State) bool {
	if st.T >= s.Final-tolerance(s.Final) {
		return true
	}
	return s.MaxSteps > 0 && st.Step >= s.MaxSteps
}

// Advance takes one accepted step, retrying with smaller steps on
// divergence. Errors other than divergence are returned unchanged.
func (s *Stepper) Advance(st *State, p Problem) error {
	for {
		st.Phase = Proposing
		dt, target := s.Size.Propose(st.T, s.Final)

		st.Phase = Solving
		iterations, err := p.Solve(target, dt)
		if err == nil {
			p.Commit()
			st.T = target
			st.Step++
			st.Phase = Accepted
			st.Converged = true
			s.Size.Adapt(st.T, iterations)
			s.logger.Debug("step accepted", "step", st.Step, "t", st.T, "dt", dt, "iterations", iterations, "next_dt", s.Size.Value)
			if s.Done(st) {
				st.Phase = Terminal
			}
			return nil
		}
		if !errors.Is(err, simerr.ErrDiverged) {
			return err
		}

		p.Restore()
		st.Phase = Rejected
		st.Converged = false
		st.Rejections++
		if serr := s.Size.Shrink(dt); serr != nil {
			st.Phase = Terminal
			out := &simerr.DivergenceError{
				Time:   st.T,
				Step:   st.Step,
				Reason: fmt.Sprintf("stepsize %g cannot shrink below dt_min %g", dt, s.Size.Min),
			}
			var last *simerr.DivergenceError
			if errors.As(err, &last) {
				out.Iterations, out.Residual = last.Iterations, last.Residual
			}
			return out
		}
		s.logger.Info("step rejected", "t", st.T, "dt", dt, "next_dt", s.Size.Value, "error", err)
	}
}
