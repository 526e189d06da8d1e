package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/h2transport/internal/config"
	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/simerr"
	"github.com/san-kum/h2transport/internal/stepper"
)

func run(t *testing.T, cfg *config.Config, opts ...Option) (*Result, error) {
	t.Helper()
	m, err := Build(cfg)
	require.NoError(t, err)
	return New(m, opts...).Run(context.Background())
}

func finite(t *testing.T, prof exports.Profile) {
	t.Helper()
	for _, s := range prof.Segments {
		for _, v := range s.V {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "field %s is not finite", prof.Field)
		}
	}
}

func TestManufacturedSolutions(t *testing.T) {
	tests := []struct {
		group, preset string
	}{
		{"heat", "stationary_mms"},
		{"diffusion", "stationary_mms"},
	}

	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			res, err := run(t, config.GetPreset(tt.group, tt.preset))
			require.NoError(t, err)
			require.Len(t, res.Errors, 1)
			assert.Less(t, res.Errors[0], 1e-9)
			assert.Equal(t, 0, res.Steps)
		})
	}
}

// refine runs a preset on 20, 40 and 80 cells and returns the error norms
// of each run.
func refine(t *testing.T, group, preset string) [][]float64 {
	t.Helper()
	var norms [][]float64
	for _, cells := range []int{20, 40, 80} {
		cfg := config.GetPreset(group, preset)
		cfg.Mesh.InitialNumberOfCells = cells
		res, err := run(t, cfg)
		require.NoError(t, err, "%d cells", cells)
		norms = append(norms, res.Errors)
	}
	return norms
}

func TestManufacturedConvergence(t *testing.T) {
	tests := []struct {
		group, preset string
		fields        int
	}{
		{"trapping", "transient_mms", 2},
		{"diffusion", "soret_mms", 1},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			norms := refine(t, tt.group, tt.preset)
			for _, n := range norms {
				require.Len(t, n, tt.fields)
			}
			for k := 0; k < tt.fields; k++ {
				assert.Less(t, norms[2][k], 1e-3, "field %d", k)
				for i := 1; i < len(norms); i++ {
					ratio := norms[i-1][k] / norms[i][k]
					assert.InDelta(t, 4.0, ratio, 0.6, "field %d, halving %d: %v", k, i, norms)
				}
			}
		})
	}
}

func TestChemicalPotentialMassBalance(t *testing.T) {
	res, err := run(t, config.GetPreset("diffusion", "chemical_potential"))
	require.NoError(t, err)

	table := res.DerivedQuantities["derived_quantities"]
	require.NotNil(t, table)
	require.NotEmpty(t, table.Rows)
	totals, ok := table.Column("Total solute volume 1")
	require.True(t, ok, "header %v", table.Header)
	for i, v := range totals {
		assert.InDelta(t, 1.0, v, 1e-6, "row %d", i)
	}
	assert.InDelta(t, 100.0, res.FinalTime, 1e-9)
}

func TestExportCadence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings.Transient = true
	cfg.Settings.FinalTime = 1
	cfg.Dt = config.DtConfig{InitialValue: 0.01, StepsizeChangeRatio: 1}
	cfg.Exports.TXT = []config.FieldExportConfig{
		{Field: "solute", Label: "every_step", NbIterationsBetweenExports: 1},
		{Field: "solute", Label: "every_ten", NbIterationsBetweenExports: 10},
		{Field: "solute", Label: "last", LastTimestepOnly: true},
		{Field: "solute", Label: "at_times", Times: []float64{0.255, 0.5}},
	}

	mem := exports.NewMemory()
	res, err := run(t, cfg, WithWriter(mem))
	require.NoError(t, err)

	every, ten := len(mem.Snapshots["every_step"]), len(mem.Snapshots["every_ten"])
	assert.Greater(t, every, ten)
	assert.Equal(t, res.Steps, every)
	assert.Equal(t, res.Steps/10, ten)
	require.Len(t, mem.Snapshots["last"], 1)
	assert.InDelta(t, 1.0, mem.Snapshots["last"][0].Time, 1e-12)

	at := mem.Snapshots["at_times"]
	require.Len(t, at, 2)
	assert.InDelta(t, 0.255, at[0].Time, 1e-9)
	assert.Contains(t, res.Times, at[0].Time)
}

func TestMilestonesAndStepBudget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings.Transient = true
	cfg.Settings.FinalTime = 10
	cfg.Dt = config.DtConfig{InitialValue: 0.3, StepsizeChangeRatio: 1.5, Milestones: []float64{1}}

	res, err := run(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, res.Times, 1.0)
	assert.InDelta(t, 10, res.FinalTime, 1e-9)

	cfg.Dt.MaxSteps = 3
	res, err = run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
	assert.Less(t, res.FinalTime, 10.0)
}

func TestNegativeTemperatureDiverges(t *testing.T) {
	t.Run("stationary", func(t *testing.T) {
		_, err := run(t, config.GetPreset("failure", "negative_temperature"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, simerr.ErrDiverged))
		assert.Contains(t, err.Error(), "the solver diverged")
	})

	t.Run("transient", func(t *testing.T) {
		cfg := config.GetPreset("failure", "negative_temperature")
		cfg.Settings.Transient = true
		cfg.Settings.FinalTime = 1
		cfg.Dt = config.DtConfig{InitialValue: 0.1, StepsizeChangeRatio: 2, DtMin: 0.01}

		m, err := Build(cfg)
		require.NoError(t, err)
		s := New(m)
		_, err = s.Run(context.Background())

		var div *simerr.DivergenceError
		require.ErrorAs(t, err, &div)
		assert.Equal(t, 0, div.Step)
		assert.Equal(t, stepper.Terminal, s.State().Phase)
		assert.Positive(t, s.State().Rejections)
	})
}

func TestInterfaceSolubilityJump(t *testing.T) {
	res, err := run(t, config.GetPreset("diffusion", "interface"))
	require.NoError(t, err)

	prof := res.Fields["solute"]
	finite(t, prof)
	var left, right float64
	for _, s := range prof.Segments {
		if math.Abs(s.X[1]-0.5) < 1e-12 {
			left = s.V[1]
		}
		if math.Abs(s.X[0]-0.5) < 1e-12 {
			right = s.V[0]
		}
	}
	assert.InDelta(t, 8.0/3, left, 1e-8)
	assert.InDelta(t, 4.0/3, right, 1e-8)
	assert.InDelta(t, 2, left/right, 1e-8)

	last := res.DerivedQuantities["derived_quantities"].Last()
	require.Len(t, last, 3)
	assert.InDelta(t, 5.0/3, last[1], 1e-8)
	assert.InDelta(t, 1.0/3, last[2], 1e-8)
}

func TestTrapsOnSubset(t *testing.T) {
	res, err := run(t, config.GetPreset("trapping", "partial"))
	require.NoError(t, err)

	for name, prof := range res.Fields {
		finite(t, prof)
		if name != "1" {
			continue
		}
		for _, s := range prof.Segments {
			if s.Volume == 2 {
				assert.Equal(t, [2]float64{0, 0}, s.V)
			}
		}
	}
	last := res.DerivedQuantities["derived_quantities"].Last()
	assert.Greater(t, last[1], last[2], "the trapped side holds more")
}

func TestFrozenJacobianMatchesNewton(t *testing.T) {
	full, err := run(t, config.GetPreset("trapping", "partial"))
	require.NoError(t, err)

	cfg := config.GetPreset("trapping", "partial")
	cfg.Settings.UpdateJacobian = false
	frozen, err := run(t, cfg)
	require.NoError(t, err)

	a := full.DerivedQuantities["derived_quantities"].Last()
	b := frozen.DerivedQuantities["derived_quantities"].Last()
	require.Equal(t, len(a), len(b))
	assert.InDelta(t, a[0], b[0], 1e-9)
	for i := 1; i < len(a); i++ {
		assert.InEpsilon(t, a[i], b[i], 1e-5)
	}
}

func TestExtrinsicTrap(t *testing.T) {
	res, err := run(t, config.GetPreset("trapping", "extrinsic"))
	require.NoError(t, err)

	density, ok := res.Fields["density_1"]
	require.True(t, ok)
	finite(t, density)
	for _, s := range density.Segments {
		for _, v := range s.V {
			assert.Greater(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	last := res.DerivedQuantities["derived_quantities"].Last()
	assert.Positive(t, last[1])
}

func TestRunLifecycle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings.Transient = true
	cfg.Settings.FinalTime = 1
	cfg.Dt = config.DtConfig{InitialValue: 0.1}

	m, err := Build(cfg)
	require.NoError(t, err)
	s := New(m)
	require.NoError(t, s.Initialise())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestInitialiseRejectsBadModels(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"duplicate material ids", func(c *config.Config) {
			c.Materials = append(c.Materials, c.Materials[0])
		}},
		{"unknown surface", func(c *config.Config) {
			c.BoundaryConditions[0].Surfaces = []int{7}
		}},
		{"transient without final time", func(c *config.Config) {
			c.Settings.Transient = true
			c.Dt.InitialValue = 0.1
		}},
		{"trap in unknown material", func(c *config.Config) {
			c.Traps = []config.TrapConfig{{K0: 1, P0: 1, Density: "1", Materials: []int{9}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			m, err := Build(cfg)
			require.NoError(t, err)
			err = New(m).Initialise()
			assert.ErrorIs(t, err, simerr.ErrConfiguration)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"unknown bc", func(c *config.Config) { c.BoundaryConditions[0].Type = "robin" }},
		{"bad expression", func(c *config.Config) { c.BoundaryConditions[0].Value = "1 +* x" }},
		{"unknown temperature type", func(c *config.Config) { c.Temperature.Type = "guess" }},
		{"unknown quantity", func(c *config.Config) {
			c.Exports.DerivedQuantities = &config.DerivedQuantitiesConfig{
				Quantities: []config.QuantityConfig{{Type: "median", Field: "solute"}},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			_, err := Build(cfg)
			assert.ErrorIs(t, err, simerr.ErrConfiguration)
		})
	}
}

func TestImplantationSource(t *testing.T) {
	res, err := run(t, config.GetPreset("diffusion", "implantation"))
	require.NoError(t, err)

	row := res.DerivedQuantities["derived_quantities"].Last()
	require.Len(t, row, 4)
	// -c'' = flux*N(0.25, 0.02), c(0) = c(1) = 0
	depth, width := 0.25, 0.02
	assert.InDelta(t, (depth*(1-depth)-width*width)/2, row[1], 1e-3)
	assert.InDelta(t, 1-depth, row[2], 5e-3)
	assert.InDelta(t, depth, row[3], 5e-3)

	peak, at := 0.0, 0.0
	for _, s := range res.Fields["solute"].Segments {
		if s.V[0] > peak {
			peak, at = s.V[0], s.X[0]
		}
	}
	assert.InDelta(t, depth, at, 0.01)
}

func TestImplantationSourceErrors(t *testing.T) {
	source := func(c *config.Config) *config.SourceConfig {
		c.Sources = []config.SourceConfig{{Type: config.SourceImplantationFlux, Flux: "1", ImpDepth: 0.1, Width: 0.01}}
		return &c.Sources[0]
	}

	cfg := config.DefaultConfig()
	source(cfg).Flux = "t < 10 ? 2 : 0"
	m, err := Build(cfg)
	require.NoError(t, err)
	assert.True(t, m.Sources[0].Value.TimeDependent())
	assert.True(t, m.Sources[0].Value.SpaceDependent())

	cfg = config.DefaultConfig()
	source(cfg).Width = 0
	_, err = Build(cfg)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)

	cfg = config.DefaultConfig()
	source(cfg).Flux = ""
	_, err = Build(cfg)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)

	cfg = config.DefaultConfig()
	source(cfg).Flux = "t < 10"
	_, err = Build(cfg)
	assert.ErrorIs(t, err, simerr.ErrValueType)

	cfg = config.DefaultConfig()
	source(cfg).Type = "neutron"
	_, err = Build(cfg)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestBatch(t *testing.T) {
	var sims []*Simulation
	for _, name := range []string{"stationary_mms", "interface"} {
		m, err := Build(config.GetPreset("diffusion", name))
		require.NoError(t, err)
		sims = append(sims, New(m))
	}
	m, err := Build(config.GetPreset("failure", "negative_temperature"))
	require.NoError(t, err)
	sims = append(sims, New(m))

	results, errs := NewBatch(sims...).Run(context.Background())
	require.Len(t, results, 3)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.ErrorIs(t, errs[2], simerr.ErrDiverged)
	assert.Nil(t, results[2])
}
