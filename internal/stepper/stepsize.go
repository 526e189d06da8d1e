// Package stepper drives adaptive implicit time stepping.
package stepper

import (
	"errors"
	"math"
	"sort"
)

// ErrBelowMinimum is returned when a rejected step cannot shrink further.
var ErrBelowMinimum = errors.New("stepper: stepsize below dt_min")

// iterationTarget is the Newton iteration count under which the stepsize grows.
const iterationTarget = 5

// Stepsize is the adaptive stepsize. Min <= Value <= Max holds after every
// adjustment.
type Stepsize struct {
	Value       float64
	Min         float64
	Max         float64
	ChangeRatio float64

	// After StopTime the stepsize is capped at StopMax (when positive).
	StopTime float64
	StopMax  float64

	stops []float64
}

func NewStepsize(initial, min, max, ratio float64) *Stepsize {
	if max <= 0 {
		max = math.Inf(1)
	}
	return &Stepsize{Value: initial, Min: min, Max: max, ChangeRatio: ratio}
}

// AddStops registers times the stepper must land on exactly.
func (s *Stepsize) AddStops(times ...float64) {
	s.stops = append(s.stops, times...)
	sort.Float64s(s.stops)
}

func (s *Stepsize) Stops() []float64 { return s.stops }

func tolerance(t float64) float64 {
	return 1e-12 * math.Max(1, math.Abs(t))
}

// NextStop returns the first stop strictly after t.
func (s *Stepsize) NextStop(t float64) (float64, bool) {
	i := sort.SearchFloat64s(s.stops, t+tolerance(t))
	if i < len(s.stops) {
		return s.stops[i], true
	}
	return 0, false
}

// Propose returns the trial step from t and the time it lands on. Steps are
// shortened to land on the next stop or on final.
func (s *Stepsize) Propose(t, final float64) (dt, target float64) {
	dt, target = s.Value, t+s.Value
	if stop, ok := s.NextStop(t); ok && stop <= target+tolerance(stop) {
		dt, target = stop-t, stop
	}
	if final <= target+tolerance(final) {
		dt, target = final-t, final
	}
	return dt, target
}

// Adapt updates the stepsize after a step accepted at time t that took
// the given number of Newton iterations.
func (s *Stepsize) Adapt(t float64, iterations int) {
	if s.ChangeRatio > 0 {
		if iterations < iterationTarget {
			s.Value *= s.ChangeRatio
		} else {
			s.Value /= s.ChangeRatio
		}
	}
	if s.StopMax > 0 && t >= s.StopTime {
		s.Value = math.Min(s.Value, s.StopMax)
	}
	s.Value = math.Min(math.Max(s.Value, s.Min), s.Max)
}

// Shrink reduces the stepsize after a step of size dt was rejected: dt is
// scaled by 1/ChangeRatio when the ratio exceeds one, halved otherwise. The
// rejected dt may be shorter than Value when it was clipped to a stop.
func (s *Stepsize) Shrink(dt float64) error {
	factor := 0.5
	if s.ChangeRatio > 1 {
		factor = 1 / s.ChangeRatio
	}
	next := math.Min(dt, s.Value) * factor
	if next < s.Min {
		return ErrBelowMinimum
	}
	s.Value = next
	return nil
}
