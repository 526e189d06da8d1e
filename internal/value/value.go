// Package value implements position, time and temperature dependent
// coefficients. A Value is a tagged variant over the arguments it depends on;
// the tag is fixed when the value is built and drives the time/temperature
// dependency flags used to decide re-evaluation.
package value

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/san-kum/h2transport/internal/simerr"
)

// Arity is the set of arguments a value depends on.
type Arity uint8

const (
	DependsOnX Arity = 1 << iota
	DependsOnTime
	DependsOnTemperature
)

const (
	None      Arity = 0
	X               = DependsOnX
	Time            = DependsOnTime
	Temp            = DependsOnTemperature
	XTime           = DependsOnX | DependsOnTime
	XTemp           = DependsOnX | DependsOnTemperature
	TimeTemp        = DependsOnTime | DependsOnTemperature
	XTimeTemp       = DependsOnX | DependsOnTime | DependsOnTemperature
)

func (a Arity) String() string {
	if a == None {
		return "none"
	}
	var parts []string
	if a&DependsOnX != 0 {
		parts = append(parts, "x")
	}
	if a&DependsOnTime != 0 {
		parts = append(parts, "t")
	}
	if a&DependsOnTemperature != 0 {
		parts = append(parts, "T")
	}
	return strings.Join(parts, "+")
}

// Value is a scalar coefficient c(x, t, T).
type Value struct {
	arity  Arity
	set    bool
	source string
	c      float64
	fn     func(x, t, T float64) float64
	prog   *vm.Program
}

func Constant(c float64) Value {
	return Value{set: true, c: c, source: strconv.FormatFloat(c, 'g', -1, 64)}
}

func OfX(f func(x float64) float64) Value {
	return Value{arity: X, set: true, fn: func(x, _, _ float64) float64 { return f(x) }}
}

func OfTime(f func(t float64) float64) Value {
	return Value{arity: Time, set: true, fn: func(_, t, _ float64) float64 { return f(t) }}
}

func OfTemp(f func(T float64) float64) Value {
	return Value{arity: Temp, set: true, fn: func(_, _, T float64) float64 { return f(T) }}
}

func OfXTime(f func(x, t float64) float64) Value {
	return Value{arity: XTime, set: true, fn: func(x, t, _ float64) float64 { return f(x, t) }}
}

func OfXTemp(f func(x, T float64) float64) Value {
	return Value{arity: XTemp, set: true, fn: func(x, _, T float64) float64 { return f(x, T) }}
}

func OfTimeTemp(f func(t, T float64) float64) Value {
	return Value{arity: TimeTemp, set: true, fn: func(_, t, T float64) float64 { return f(t, T) }}
}

func OfXTimeTemp(f func(x, t, T float64) float64) Value {
	return Value{arity: XTimeTemp, set: true, fn: f}
}

// Implantation is a Gaussian volumetric source centred on depth:
// flux * exp(-(x-depth)^2 / (2 width^2)) / (width sqrt(2 pi)). It depends on
// x and on whatever flux depends on.
func Implantation(flux Value, depth, width float64) Value {
	norm := 1 / (width * math.Sqrt(2*math.Pi))
	return Value{
		arity:  flux.arity | DependsOnX,
		set:    true,
		source: fmt.Sprintf("implantation(flux=%s, depth=%g, width=%g)", flux, depth, width),
		fn: func(x, t, T float64) float64 {
			z := (x - depth) / width
			return flux.At(x, t, T) * norm * math.Exp(-0.5*z*z)
		},
	}
}

var identifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Parse builds a value from a number or an expression over x, t and T.
func Parse(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, fmt.Errorf("empty value expression")
	}
	if c, err := strconv.ParseFloat(s, 64); err == nil {
		return Constant(c), nil
	}

	prog, err := expr.Compile(s, expr.Env(newEnv(0, 0, 0)))
	if err != nil {
		return Value{}, fmt.Errorf("compile %q: %w", s, err)
	}

	var arity Arity
	for _, id := range identifier.FindAllString(s, -1) {
		switch id {
		case "x":
			arity |= DependsOnX
		case "t":
			arity |= DependsOnTime
		case "T":
			arity |= DependsOnTemperature
		}
	}
	return Value{arity: arity, set: true, source: s, prog: prog}, nil
}

// MustParse is Parse for literals in presets and tests.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) Arity() Arity { return v.arity }

func (v Value) Defined() bool { return v.set }

func (v Value) IsConstant() bool { return v.arity == None }

func (v Value) SpaceDependent() bool { return v.arity&DependsOnX != 0 }

func (v Value) TimeDependent() bool { return v.arity&DependsOnTime != 0 }

func (v Value) TemperatureDependent() bool { return v.arity&DependsOnTemperature != 0 }

func (v Value) String() string {
	if v.source != "" {
		return v.source
	}
	return "func(" + v.arity.String() + ")"
}

// Eval returns the value at position x, time t and temperature T.
func (v Value) Eval(x, t, T float64) (float64, error) {
	switch {
	case v.prog != nil:
		out, err := expr.Run(v.prog, newEnv(x, t, T))
		if err != nil {
			return 0, fmt.Errorf("evaluate %q: %w", v.source, err)
		}
		return toFloat(v.source, out)
	case v.fn != nil:
		return v.fn(x, t, T), nil
	default:
		return v.c, nil
	}
}

// At is Eval for values already validated by Check.
func (v Value) At(x, t, T float64) float64 {
	out, err := v.Eval(x, t, T)
	if err != nil {
		return math.NaN()
	}
	return out
}

// Check evaluates the value once so type errors surface at setup.
func (v Value) Check() error {
	if !v.set {
		return nil
	}
	_, err := v.Eval(0.5, 0, 300)
	return err
}

func toFloat(source string, out any) (float64, error) {
	switch n := out.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	default:
		return 0, &simerr.ValueTypeError{Source: source, Got: fmt.Sprintf("%T", out)}
	}
}

func newEnv(x, t, T float64) map[string]any {
	return map[string]any{
		"x":    x,
		"t":    t,
		"T":    T,
		"pi":   math.Pi,
		"k_B":  8.6173303e-5,
		"exp":  math.Exp,
		"log":  math.Log,
		"sqrt": math.Sqrt,
		"sin":  math.Sin,
		"cos":  math.Cos,
		"tanh": math.Tanh,
		"pow":  math.Pow,
	}
}
