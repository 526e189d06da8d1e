package config

import "sort"

// Presets builds ready-to-run configurations, grouped by the physics they
// exercise.
var Presets = map[string]map[string]func() *Config{
	"heat": {
		"stationary_mms": heatStationaryMMS,
	},
	"diffusion": {
		"stationary_mms":     diffusionStationaryMMS,
		"chemical_potential": chemicalPotentialBalance,
		"interface":          twoMaterialInterface,
		"implantation":       implantation,
		"soret_mms":          soretMMS,
	},
	"trapping": {
		"extrinsic":     extrinsicTrap,
		"partial":       partialTraps,
		"transient_mms": transientTrapMMS,
	},
	"failure": {
		"negative_temperature": negativeTemperature,
	},
}

func GetPreset(group, preset string) *Config {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	build, ok := groupPresets[preset]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(group string) []string {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groupPresets))
	for name := range groupPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Groups lists the preset groups.
func Groups() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const parabola = "1 + 2*x*x"

func heatStationaryMMS() *Config {
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 200
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(1), ED: ptr(0), ThermalCond: ptr(1)}}
	cfg.Temperature = TemperatureConfig{Type: TemperatureStationary}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1, 2}, Field: "T", Value: parabola},
		{Type: "dirichlet", Surfaces: []int{1, 2}, Value: "0"},
	}
	cfg.Sources = []SourceConfig{{Field: "T", Volumes: []int{1}, Value: "-4"}}
	cfg.Exports.Error = []ErrorConfig{{Field: "T", ExactSolution: parabola, Norm: "max"}}
	return cfg
}

func diffusionStationaryMMS() *Config {
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 200
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(4.1e-7), ED: ptr(0.39)}}
	cfg.Temperature = TemperatureConfig{Type: TemperatureExpression, Value: "700"}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1, 2}, Value: parabola},
	}
	cfg.Sources = []SourceConfig{{Volumes: []int{1}, Value: "-4*4.1e-7*exp(-0.39/(k_B*T))"}}
	cfg.Exports.Error = []ErrorConfig{{Field: "solute", ExactSolution: parabola, Norm: "max"}}
	return cfg
}

// soretMMS manufactures c = 1 + sin(pi x) under the gradient of
// T = 500 + 100x, with heat of transport 0.1 eV.
func soretMMS() *Config {
	const exact = "1 + sin(pi*x)"
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 20
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(1), ED: ptr(0), H: ptr(0.1)}}
	cfg.Temperature = TemperatureConfig{Type: TemperatureExpression, Value: "500 + 100*x"}
	cfg.Settings.Soret = true
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1, 2}, Value: exact},
	}
	// -d/dx(c' + c Q T'/(k_B T^2))
	cfg.Sources = []SourceConfig{{Field: "solute", Value: "pi**2*sin(pi*x) - pi*cos(pi*x)*10/(k_B*T**2) + (" + exact + ")*2000/(k_B*T**3)"}}
	cfg.Exports.Error = []ErrorConfig{{Field: "solute", ExactSolution: exact, Norm: "L2"}}
	return cfg
}

// transientTrapMMS manufactures a mobile and a trapped concentration that
// are both linear in time, so backward Euler is exact and only the spatial
// error is left.
func transientTrapMMS() *Config {
	const (
		mobile  = "1 + sin(pi*x) + t"
		trapped = "0.2 + 0.1*sin(pi*x) + 0.1*t"
	)
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 20
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(1), ED: ptr(0)}}
	cfg.Traps = []TrapConfig{{K0: 1, Ek: 0, P0: 0.5, Ep: 0, Density: "2", Materials: []int{1}}}
	cfg.InitialConditions = []InitialCondition{
		{Field: "solute", Value: mobile},
		{Field: "1", Value: trapped},
	}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1, 2}, Value: mobile},
	}
	cfg.Sources = []SourceConfig{
		{Field: "solute", Value: "1.1 + pi**2*sin(pi*x)"},
		{Field: "1", Value: "0.1 - (" + mobile + ")*(2 - (" + trapped + ")) + 0.5*(" + trapped + ")"},
	}
	cfg.Settings.Transient = true
	cfg.Settings.FinalTime = 1
	cfg.Dt = DtConfig{InitialValue: 0.25, StepsizeChangeRatio: 1, DtMin: 1e-3}
	cfg.Exports.Error = []ErrorConfig{
		{Field: "solute", ExactSolution: mobile, Norm: "L2"},
		{Field: "1", ExactSolution: trapped, Norm: "L2"},
	}
	return cfg
}

// chemicalPotentialBalance has no boundary flux, so the total inventory of
// the initial unit concentration stays 1 while T ramps.
func chemicalPotentialBalance() *Config {
	cfg := base()
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(1), ED: ptr(0.1), S0: ptr(2), ES: ptr(0.2)}}
	cfg.InitialConditions = []InitialCondition{{Field: "solute", Value: "1"}}
	cfg.Temperature = TemperatureConfig{Type: TemperatureExpression, Value: "700 + 210*t"}
	cfg.Settings.Transient = true
	cfg.Settings.FinalTime = 100
	cfg.Settings.ChemicalPot = true
	cfg.Dt = DtConfig{InitialValue: 2, StepsizeChangeRatio: 1.1, DtMin: 1e-5}
	cfg.Exports.DerivedQuantities = &DerivedQuantitiesConfig{
		File:       "derived_quantities",
		Quantities: []QuantityConfig{{Type: "total_volume", Field: "solute", Volume: 1}},
	}
	return cfg
}

// twoMaterialInterface joins two slabs of solubility 2 and 1 at x=0.5.
func twoMaterialInterface() *Config {
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 20
	cfg.Materials = []MaterialConfig{
		{ID: 1, Name: "left", D0: ptr(1), ED: ptr(0), S0: ptr(2), ES: ptr(0), Borders: []float64{0, 0.5}},
		{ID: 2, Name: "right", D0: ptr(1), ED: ptr(0), S0: ptr(1), ES: ptr(0), Borders: []float64{0.5, 1}},
	}
	cfg.Surfaces = []SurfaceConfig{{ID: 1, X: 0}, {ID: 2, X: 1}, {ID: 3, X: 0.5}}
	cfg.Interfaces = []InterfaceConfig{{Surface: 3, Materials: []int{1, 2}}}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1}, Value: "4"},
		{Type: "dirichlet", Surfaces: []int{2}, Value: "0"},
	}
	cfg.Exports.DerivedQuantities = &DerivedQuantitiesConfig{
		File: "derived_quantities",
		Quantities: []QuantityConfig{
			{Type: "total_volume", Field: "solute", Volume: 1},
			{Type: "total_volume", Field: "solute", Volume: 2},
		},
	}
	return cfg
}

// implantation deposits a unit flux as a narrow Gaussian at x=0.25 between
// two absorbing surfaces.
func implantation() *Config {
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 200
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(1), ED: ptr(0)}}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1, 2}, Value: "0"},
	}
	cfg.Sources = []SourceConfig{{Type: SourceImplantationFlux, Volumes: []int{1}, Flux: "1", ImpDepth: 0.25, Width: 0.02}}
	cfg.Exports.DerivedQuantities = &DerivedQuantitiesConfig{
		File: "derived_quantities",
		Quantities: []QuantityConfig{
			{Type: "total_volume", Field: "solute", Volume: 1},
			{Type: "surface_flux", Field: "solute", Surface: 1},
			{Type: "surface_flux", Field: "solute", Surface: 2},
		},
	}
	return cfg
}

func extrinsicTrap() *Config {
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 20
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(1), ED: ptr(0)}}
	cfg.Traps = []TrapConfig{{
		Type: "extrinsic", K0: 1, Ek: 0, P0: 0.1, Ep: 0, Materials: []int{1},
		FormParameters: &ExtrinsicConfig{
			Phi0: "1", NAmax: 1, NBmax: 1, EtaA: 0.5, EtaB: 0.5, FA: "1", FB: "0",
		},
	}}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1}, Value: "1"},
		{Type: "dirichlet", Surfaces: []int{2}, Value: "0"},
	}
	cfg.Settings.Transient = true
	cfg.Settings.FinalTime = 1
	cfg.Dt = DtConfig{InitialValue: 0.1, StepsizeChangeRatio: 1.2, DtMin: 1e-6}
	cfg.Exports.DerivedQuantities = &DerivedQuantitiesConfig{
		File: "derived_quantities",
		Quantities: []QuantityConfig{
			{Type: "total_volume", Field: "1", Volume: 1},
			{Type: "maximum_volume", Field: "density_1", Volume: 1},
		},
	}
	return cfg
}

// partialTraps places a trap in the left material only.
func partialTraps() *Config {
	cfg := base()
	cfg.Mesh.InitialNumberOfCells = 20
	cfg.Materials = []MaterialConfig{
		{ID: 1, D0: ptr(1), ED: ptr(0), Borders: []float64{0, 0.5}},
		{ID: 2, D0: ptr(1), ED: ptr(0), Borders: []float64{0.5, 1}},
	}
	cfg.Traps = []TrapConfig{{K0: 1, Ek: 0, P0: 0.5, Ep: 0, Density: "2", Materials: []int{1}}}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1}, Value: "1"},
		{Type: "dirichlet", Surfaces: []int{2}, Value: "0"},
	}
	cfg.Settings.Transient = true
	cfg.Settings.FinalTime = 1
	cfg.Dt = DtConfig{InitialValue: 0.1, StepsizeChangeRatio: 1, DtMin: 1e-6}
	cfg.Exports.DerivedQuantities = &DerivedQuantitiesConfig{
		File: "derived_quantities",
		Quantities: []QuantityConfig{
			{Type: "total_volume", Field: "retention", Volume: 1},
			{Type: "total_volume", Field: "retention", Volume: 2},
		},
	}
	return cfg
}

// negativeTemperature cannot converge: D(T) overflows below 0 K.
func negativeTemperature() *Config {
	cfg := DefaultConfig()
	cfg.Materials = []MaterialConfig{{ID: 1, D0: ptr(1), ED: ptr(1)}}
	cfg.Temperature = TemperatureConfig{Type: TemperatureExpression, Value: "-1"}
	cfg.Settings.MaximumIterations = 2
	return cfg
}
