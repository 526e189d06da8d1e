package exports

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Cadence decides at which accepted steps a sink records.
type Cadence struct {
	// Every records every Nth step; 0 or 1 means every step.
	Every int
	// LastOnly records once, at the end of the run.
	LastOnly bool
	// Times records at these times only. The stepper lands on them.
	Times []float64
}

// Due reports whether a sink with this cadence records at step, time t.
func (c Cadence) Due(step int, t float64) bool {
	if c.LastOnly {
		return false
	}
	if len(c.Times) > 0 {
		for _, at := range c.Times {
			if math.Abs(t-at) <= 1e-9*math.Max(1, math.Abs(at)) {
				return true
			}
		}
		return false
	}
	every := c.Every
	if every < 1 {
		every = 1
	}
	return step%every == 0
}

// Sink consumes the solution at due steps.
type Sink interface {
	Name() string
	Cadence() Cadence
	Record(p Probe, w Writer, step int) error
}

// Closer is implemented by sinks holding output until the run ends.
type Closer interface {
	Close() error
}

// Scheduler dispatches accepted steps to the sinks that are due.
type Scheduler struct {
	sinks  []Sink
	writer Writer
}

func NewScheduler(w Writer, sinks ...Sink) *Scheduler {
	if w == nil {
		w = NewMemory()
	}
	return &Scheduler{sinks: sinks, writer: w}
}

func (s *Scheduler) Add(sink Sink) { s.sinks = append(s.sinks, sink) }

func (s *Scheduler) Sinks() []Sink { return s.sinks }

func (s *Scheduler) Writer() Writer { return s.writer }

// Stops returns the export times the stepper must land on.
func (s *Scheduler) Stops() []float64 {
	var out []float64
	for _, sink := range s.sinks {
		out = append(out, sink.Cadence().Times...)
	}
	sort.Float64s(out)
	return out
}

// Accepted records every due sink after an accepted step.
func (s *Scheduler) Accepted(p Probe, step int) error {
	for _, sink := range s.sinks {
		if !sink.Cadence().Due(step, p.Time()) {
			continue
		}
		if err := sink.Record(p, s.writer, step); err != nil {
			return fmt.Errorf("export %s: %w", sink.Name(), err)
		}
	}
	return nil
}

// Finish records the last-step-only sinks, or every sink when all is set
// (stationary runs), then closes sinks and flushes the writer. A failing sink
// does not stop the others, and the writer is closed either way.
func (s *Scheduler) Finish(p Probe, step int, all bool) error {
	var errs []error
	for _, sink := range s.sinks {
		if !all && !sink.Cadence().LastOnly {
			continue
		}
		if err := sink.Record(p, s.writer, step); err != nil {
			errs = append(errs, fmt.Errorf("export %s: %w", sink.Name(), err))
		}
	}
	errs = append(errs, s.Close())
	return errors.Join(errs...)
}

// Close releases sink and writer resources without recording.
func (s *Scheduler) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if c, ok := sink.(Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	errs = append(errs, s.writer.Flush())
	return errors.Join(errs...)
}
