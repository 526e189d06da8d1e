// Package sim orchestrates a hydrogen transport run: it binds a model to its
// sub-problems, drives the time stepper and feeds the export sinks.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/heat"
	"github.com/san-kum/h2transport/internal/model"
	"github.com/san-kum/h2transport/internal/newton"
	"github.com/san-kum/h2transport/internal/simerr"
	"github.com/san-kum/h2transport/internal/stepper"
	"github.com/san-kum/h2transport/internal/transport"
)

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("sim: simulation already ran")

type Option func(*Simulation)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithWriter sets where exports go. The default keeps them in memory.
func WithWriter(w exports.Writer) Option {
	return func(s *Simulation) { s.writer = w }
}

type Simulation struct {
	model  *model.Model
	logger *slog.Logger
	writer exports.Writer

	species      *transport.Problem
	heat         *heat.Problem
	speciesSolve *newton.Solver
	heatSolve    *newton.Solver
	scheduler    *exports.Scheduler
	stepper      *stepper.Stepper

	// nodal temperature on the parent mesh, new and last accepted level
	temp, tempPrev []float64

	state       stepper.State
	times       []float64
	initialised bool
	ran         bool
}

func New(m *model.Model, opts ...Option) *Simulation {
	s := &Simulation{model: m}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.writer == nil {
		s.writer = exports.NewMemory()
	}
	return s
}

func (s *Simulation) Model() *model.Model { return s.model }

// State is the current time stepping state.
func (s *Simulation) State() stepper.State { return s.state }

// Initialise validates the model, builds the function spaces and sets the
// initial conditions. A stationary heat problem is solved here.
func (s *Simulation) Initialise() error {
	m := s.model
	if err := m.Validate(); err != nil {
		return err
	}
	species, err := transport.New(m)
	if err != nil {
		return err
	}
	s.species = species

	policy := newton.Policy{
		AbsoluteTolerance: m.Settings.AbsoluteTolerance,
		RelativeTolerance: m.Settings.RelativeTolerance,
		MaximumIterations: m.Settings.MaximumIterations,
		UpdateJacobian:    m.Settings.UpdateJacobian,
		Relaxation:        m.Settings.Relaxation,
	}
	s.speciesSolve = newton.NewSolver(policy, s.logger.With("problem", "species"))

	n := m.Mesh.NumVertices()
	s.temp, s.tempPrev = make([]float64, n), make([]float64, n)
	if m.Temperature.Solved() {
		s.heat = heat.New(m)
		s.heatSolve = newton.NewSolver(policy, s.logger.With("problem", "heat"))
		if err := s.heat.InitialState(); err != nil {
			return err
		}
		if !s.heat.Transient() {
			if err := s.solveHeat(0, 0); err != nil {
				return fmt.Errorf("stationary heat: %w", err)
			}
			s.heat.Commit()
		}
		copy(s.temp, s.heat.Temperature())
		copy(s.tempPrev, s.heat.Previous())
	} else {
		if err := s.prescribe(0); err != nil {
			return err
		}
		copy(s.tempPrev, s.temp)
	}
	s.species.SetTemperature(s.temp, s.tempPrev)
	if err := s.species.InitialState(); err != nil {
		return err
	}

	s.scheduler = exports.NewScheduler(s.writer, m.Exports...)
	if m.Settings.Transient {
		dt := m.Dt
		size := stepper.NewStepsize(dt.InitialValue, dt.Min, dt.Max, dt.ChangeRatio)
		size.StopTime, size.StopMax = dt.StopTime, dt.StopMax
		size.AddStops(dt.Milestones...)
		size.AddStops(s.scheduler.Stops()...)
		s.stepper = stepper.New(size, m.Settings.FinalTime, dt.MaxSteps, s.logger)
	}
	s.state = stepper.State{Phase: stepper.Proposing}
	s.initialised = true

	s.logger.Info("simulation initialised",
		"blocks", s.species.NumBlocks(),
		"cells", m.Mesh.NumCells(),
		"transient", m.Settings.Transient,
		"temperature", m.Temperature.Kind.String(),
		"sinks", len(m.Exports))
	return nil
}

// prescribe evaluates the prescribed temperature at t into s.temp.
func (s *Simulation) prescribe(t float64) error {
	for v, x := range s.model.Mesh.Vertices {
		T, err := s.model.Temperature.Value.Eval(x, t, 0)
		if err != nil {
			return fmt.Errorf("temperature: %w", err)
		}
		s.temp[v] = T
	}
	return nil
}

func (s *Simulation) solveHeat(t, dt float64) error {
	if err := s.heat.Prepare(t, dt); err != nil {
		return err
	}
	_, err := s.heatSolve.Solve(s.heat, s.heat.Registry().Current())
	return err
}

// Run advances the simulation to its final state and collects the results.
// Exports are flushed on every exit path.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	if s.ran {
		return nil, ErrAlreadyRun
	}
	if !s.initialised {
		if err := s.Initialise(); err != nil {
			return nil, err
		}
	}
	s.ran = true
	start := time.Now()

	if err := s.loop(ctx); err != nil {
		s.state.Phase = stepper.Terminal
		if cerr := s.scheduler.Close(); cerr != nil {
			s.logger.Warn("closing exports", "error", cerr)
		}
		return nil, err
	}

	s.state.Phase = stepper.Terminal
	if err := s.scheduler.Finish(probe{s}, s.state.Step, !s.model.Settings.Transient); err != nil {
		return nil, err
	}
	res := s.result(time.Since(start))
	s.logger.Info("simulation finished",
		"t", s.state.T, "steps", s.state.Step, "rejections", s.state.Rejections, "elapsed", res.Elapsed)
	return res, nil
}

func (s *Simulation) loop(ctx context.Context) error {
	if !s.model.Settings.Transient {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := (trial{s}).Solve(0, 0); err != nil {
			return err
		}
		s.species.Commit()
		s.state.Converged = true
		s.times = append(s.times, 0)
		return nil
	}

	for !s.stepper.Done(&s.state) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.stepper.Advance(&s.state, trial{s}); err != nil {
			return err
		}
		s.times = append(s.times, s.state.T)
		if err := s.scheduler.Accepted(probe{s}, s.state.Step); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) result(elapsed time.Duration) *Result {
	res := &Result{
		Times:             s.times,
		Steps:             s.state.Step,
		Rejections:        s.state.Rejections,
		FinalTime:         s.state.T,
		Elapsed:           elapsed,
		DerivedQuantities: make(map[string]*exports.Table),
		Fields:            make(map[string]exports.Profile),
	}
	for _, sink := range s.scheduler.Sinks() {
		dq, ok := sink.(*exports.DerivedQuantities)
		if !ok {
			continue
		}
		res.DerivedQuantities[dq.Name()] = dq.Table()
		if dq.Name() == ErrorSink {
			if last := dq.Table().Last(); len(last) > 1 {
				res.Errors = last[1:]
			}
		}
	}
	for _, field := range s.fieldNames() {
		prof, err := probe{s}.Profile(field)
		if err != nil {
			s.logger.Warn("final profile", "field", field, "error", err)
			continue
		}
		res.Fields[field] = prof
	}
	return res
}

func (s *Simulation) fieldNames() []string {
	names := []string{model.FieldSolute, model.FieldRetention, model.FieldTemperature}
	for i, tr := range s.model.Traps {
		names = append(names, model.TrapField(i))
		if tr.Extrinsic != nil {
			names = append(names, model.DensityField(i))
		}
	}
	return names
}

// trial is the stepper's view of the simulation: one implicit step of the
// coupled heat and species problems.
type trial struct{ s *Simulation }

func (tr trial) Solve(t, dt float64) (int, error) {
	s := tr.s
	switch {
	case s.heat == nil:
		if err := s.prescribe(t); err != nil {
			return 0, err
		}
	case s.heat.Transient():
		if err := s.solveHeat(t, dt); err != nil {
			return 0, annotate(err, t, s.state.Step+1)
		}
		copy(s.temp, s.heat.Temperature())
	}
	s.species.SetTemperature(s.temp, s.tempPrev)
	if err := s.species.Prepare(t, dt); err != nil {
		return 0, err
	}
	rep, err := s.speciesSolve.Solve(s.species, s.species.Registry().Current())
	if err != nil {
		return rep.Iterations, annotate(err, t, s.state.Step+1)
	}
	return rep.Iterations, nil
}

func (tr trial) Restore() {
	s := tr.s
	s.species.Restore()
	if s.heat != nil && s.heat.Transient() {
		s.heat.Restore()
	}
}

func (tr trial) Commit() {
	s := tr.s
	s.species.Commit()
	if s.heat != nil && s.heat.Transient() {
		s.heat.Commit()
	}
	copy(s.tempPrev, s.temp)
}

func annotate(err error, t float64, step int) error {
	var div *simerr.DivergenceError
	if errors.As(err, &div) {
		div.Time, div.Step = t, step
	}
	return err
}

// probe exposes the solution to the export sinks.
type probe struct{ s *Simulation }

func (p probe) Time() float64 { return p.s.state.T }

func (p probe) Profile(field string) (exports.Profile, error) {
	if field == model.FieldTemperature && p.s.heat != nil {
		return p.s.heat.Profile(), nil
	}
	return p.s.species.Profile(field)
}

func (p probe) SurfaceValue(field string, surface int) (float64, error) {
	if field == model.FieldTemperature && p.s.heat != nil {
		return p.s.heat.SurfaceValue(surface)
	}
	return p.s.species.SurfaceValue(field, surface)
}

func (p probe) SurfaceFlux(field string, surface int) (float64, error) {
	if field == model.FieldTemperature && p.s.heat != nil {
		return p.s.heat.SurfaceFlux(surface)
	}
	return p.s.species.SurfaceFlux(field, surface)
}
