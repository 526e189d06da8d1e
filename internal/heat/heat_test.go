package heat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/h2transport/internal/mesh"
	"github.com/san-kum/h2transport/internal/model"
	"github.com/san-kum/h2transport/internal/newton"
	"github.com/san-kum/h2transport/internal/value"
)

func slab(t *testing.T, kind model.TemperatureKind, cells int) *model.Model {
	t.Helper()
	msh, err := mesh.NewUniform(cells, 1)
	require.NoError(t, err)
	m := &model.Model{
		Mesh: msh,
		Materials: []model.Material{{
			ID: 1, D0: 1, ThermalCond: 1, Rho: 2, HeatCapacity: 3,
		}},
		Temperature: model.Temperature{Kind: kind},
		Settings:    model.DefaultSettings(),
	}
	if kind == model.TransientHeat {
		m.Settings.Transient = true
		m.Settings.FinalTime = 1
		m.Dt = model.Timing{InitialValue: 0.1}
	}
	return m
}

func solve(t *testing.T, p *Problem) newton.Report {
	t.Helper()
	rep, err := newton.NewSolver(newton.Policy{
		AbsoluteTolerance: 1e-10,
		RelativeTolerance: 1e-10,
		MaximumIterations: 10,
		UpdateJacobian:    true,
	}, nil).Solve(p, p.Registry().Current())
	require.NoError(t, err)
	return rep
}

func TestStationaryManufacturedSolution(t *testing.T) {
	exact := value.MustParse("1 + 2*x*x")
	m := slab(t, model.StationaryHeat, 200)
	m.BoundaryConditions = []model.BoundaryCondition{
		{Kind: model.Dirichlet, Surfaces: []int{1, 2}, Field: model.FieldTemperature, Value: exact},
	}
	m.Sources = []model.Source{{Field: model.FieldTemperature, Value: value.Constant(-4)}}
	require.NoError(t, m.Validate())

	p := New(m)
	assert.False(t, p.Transient())
	require.NoError(t, p.InitialState())
	require.NoError(t, p.Prepare(0, 0))
	solve(t, p)

	worst := 0.0
	for v, x := range m.Mesh.Vertices {
		worst = math.Max(worst, math.Abs(p.Temperature()[v]-exact.At(x, 0, 0)))
	}
	assert.Less(t, worst, 1e-9)

	// -lambda dT/dx n with dT/dx = 4x
	flux, err := p.SurfaceFlux(2)
	require.NoError(t, err)
	assert.InDelta(t, -4.0, flux, 0.02)
	hot, err := p.SurfaceValue(2)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, hot, 1e-9)
}

func TestTransientFluxHeatsTheSlab(t *testing.T) {
	m := slab(t, model.TransientHeat, 10)
	m.Temperature.Value = value.Constant(300)
	m.BoundaryConditions = []model.BoundaryCondition{
		{Kind: model.Flux, Surfaces: []int{1}, Field: model.FieldTemperature, Value: value.Constant(6)},
	}
	require.NoError(t, m.Validate())

	p := New(m)
	require.True(t, p.Transient())
	require.NoError(t, p.InitialState())

	energy := func() float64 {
		return p.Profile().Integral(1) * m.Materials[0].Rho * m.Materials[0].HeatCapacity
	}
	before := energy()

	// the inflow of 6 over 0.5 s raises the stored energy by 3
	for step := 1; step <= 5; step++ {
		require.NoError(t, p.Prepare(0.1*float64(step), 0.1))
		solve(t, p)
		p.Commit()
	}
	assert.InDelta(t, 3.0, energy()-before, 1e-6)
	assert.Equal(t, p.Temperature(), p.Previous())

	// a rejected step leaves the accepted state untouched
	accepted := append([]float64(nil), p.Temperature()...)
	p.Temperature()[3] = math.NaN()
	p.Restore()
	assert.Equal(t, accepted, p.Temperature())
}

func TestInitialConditionOverridesTemperature(t *testing.T) {
	m := slab(t, model.TransientHeat, 4)
	m.Temperature.Value = value.Constant(300)
	m.InitialConditions = []model.InitialCondition{
		{Field: model.FieldTemperature, Value: value.MustParse("400 + 100*x")},
	}
	require.NoError(t, m.Validate())

	p := New(m)
	require.NoError(t, p.InitialState())
	assert.InDelta(t, 400.0, p.Temperature()[0], 1e-12)
	assert.InDelta(t, 500.0, p.Temperature()[4], 1e-12)
	assert.Equal(t, p.Temperature(), p.Previous())
}
