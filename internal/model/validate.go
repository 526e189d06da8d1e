package model

import (
	"fmt"
	"sort"

	"github.com/san-kum/h2transport/internal/simerr"
	"github.com/san-kum/h2transport/internal/value"
)

// Validate checks the definition for consistency and tags the mesh cells
// with material ids. Defaults are filled in for surfaces and penalties.
func (m *Model) Validate() error {
	if m.Mesh == nil {
		return simerr.Configuration("mesh", "no mesh defined")
	}
	if len(m.Materials) == 0 {
		return simerr.Configuration("materials", "at least one material is required")
	}
	if err := m.validateMaterials(); err != nil {
		return err
	}
	if err := m.tagMesh(); err != nil {
		return err
	}
	if err := m.validateSurfaces(); err != nil {
		return err
	}
	if err := m.validateInterfaces(); err != nil {
		return err
	}
	if err := m.validateTraps(); err != nil {
		return err
	}
	if err := m.validateConditions(); err != nil {
		return err
	}
	if err := m.validateTemperature(); err != nil {
		return err
	}
	return m.validateSettings()
}

func (m *Model) validateMaterials() error {
	seen := make(map[int]bool)
	for _, mat := range m.Materials {
		if mat.ID <= 0 {
			return simerr.Configuration("materials.id", "material ids must be positive, got %d", mat.ID)
		}
		if seen[mat.ID] {
			return simerr.Configuration("materials.id", "some materials have the same id: %d", mat.ID)
		}
		seen[mat.ID] = true
		if m.Settings.ChemicalPot && !mat.HasSolubility {
			return simerr.Configuration("materials.S_0", "material %d needs a solubility when chemical_pot is enabled", mat.ID)
		}
	}
	return nil
}

func (m *Model) tagMesh() error {
	if len(m.Materials) == 1 && m.Materials[0].Borders == [2]float64{} {
		m.Mesh.TagAll(m.Materials[0].ID)
		return nil
	}
	regions := make(map[int][2]float64, len(m.Materials))
	for _, mat := range m.Materials {
		if !(mat.Borders[1] > mat.Borders[0]) {
			return simerr.Configuration("materials.borders", "material %d needs borders [x0, x1]", mat.ID)
		}
		regions[mat.ID] = mat.Borders
	}
	if err := m.Mesh.Tag(regions); err != nil {
		return simerr.Configuration("materials.borders", "%v", err)
	}
	return nil
}

func (m *Model) validateSurfaces() error {
	if len(m.Surfaces) == 0 {
		lo, hi := m.Mesh.Bounds()
		m.Surfaces = []Surface{{ID: 1, X: lo}, {ID: 2, X: hi}}
	}
	seen := make(map[int]bool)
	for _, s := range m.Surfaces {
		if seen[s.ID] {
			return simerr.Configuration("surfaces.id", "some surfaces have the same id: %d", s.ID)
		}
		seen[s.ID] = true
		if _, ok := m.Mesh.VertexAt(s.X); !ok {
			return simerr.Configuration("surfaces.x", "surface %d at x=%g is not a mesh vertex", s.ID, s.X)
		}
	}
	return nil
}

func (m *Model) validateInterfaces() error {
	for i := range m.Interfaces {
		itf := &m.Interfaces[i]
		if itf.Penalty == 0 {
			itf.Penalty = DefaultPenalty
		}
		s := m.Surface(itf.Surface)
		if s == nil {
			return simerr.Configuration("interfaces.surface", "unknown surface %d", itf.Surface)
		}
		a, b := itf.Materials[0], itf.Materials[1]
		if a == b || m.Material(a) == nil || m.Material(b) == nil {
			return simerr.Configuration("interfaces.subdomains", "interface %d needs two distinct known materials, got %d and %d", itf.Surface, a, b)
		}
		v, _ := m.Mesh.VertexAt(s.X)
		touching := make(map[int]bool)
		for _, c := range m.Mesh.CellsAt(v) {
			touching[m.Mesh.Tags[c]] = true
		}
		if !touching[a] || !touching[b] {
			return simerr.Configuration("interfaces.subdomains", "materials %d and %d are not adjacent at x=%g", a, b, s.X)
		}
	}
	return nil
}

func (m *Model) validateTraps() error {
	for i := range m.Traps {
		tr := &m.Traps[i]
		key := fmt.Sprintf("traps[%d]", i)
		if len(tr.Materials) == 0 {
			return simerr.Configuration(key+".materials", "trap needs at least one material")
		}
		for _, id := range tr.Materials {
			if m.Material(id) == nil {
				return simerr.Configuration(key+".materials", "unknown material %d", id)
			}
		}
		if tr.Extrinsic == nil {
			if !tr.Density.Defined() {
				return simerr.Configuration(key+".density", "intrinsic trap needs a density")
			}
			if err := tr.Density.Check(); err != nil {
				return err
			}
			continue
		}
		if !m.Settings.Transient {
			return simerr.Configuration(key, "extrinsic traps require a transient simulation")
		}
		f := tr.Extrinsic
		if f.NAmax <= 0 || f.NBmax <= 0 {
			return simerr.Configuration(key+".form_parameters", "n_amax and n_bmax must be positive")
		}
		if err := checkValues(f.Phi0, f.FA, f.FB); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) validField(field string) bool {
	switch field {
	case FieldSolute:
		return true
	case FieldTemperature:
		return m.Temperature.Solved()
	}
	i, ok := TrapIndex(field)
	return ok && i < len(m.Traps)
}

func (m *Model) validateConditions() error {
	for i, bc := range m.BoundaryConditions {
		key := fmt.Sprintf("boundary_conditions[%d]", i)
		if !m.validField(bc.Field) {
			return simerr.Configuration(key+".field", "unknown field %q", bc.Field)
		}
		for _, s := range bc.Surfaces {
			if m.Surface(s) == nil {
				return simerr.Configuration(key+".surfaces", "unknown surface %d", s)
			}
		}
		switch bc.Kind {
		case Dirichlet, Flux:
			if !bc.Value.Defined() {
				return simerr.Configuration(key+".value", "%s condition needs a value", bc.Kind)
			}
			if bc.Kind == Flux && bc.Field != FieldSolute && bc.Field != FieldTemperature {
				return simerr.Configuration(key+".field", "%s condition applies to solute or T, got %q", bc.Kind, bc.Field)
			}
		case RecombinationFlux:
			if bc.Field != FieldSolute || bc.Order < 1 {
				return simerr.Configuration(key, "recombination flux applies to solute with order >= 1")
			}
		case Sievert:
			if bc.Field != FieldSolute || !bc.Pressure.Defined() {
				return simerr.Configuration(key, "sievert condition applies to solute and needs a pressure")
			}
		}
		if err := checkValues(bc.Value, bc.Pressure); err != nil {
			return err
		}
	}

	for i, src := range m.Sources {
		key := fmt.Sprintf("sources[%d]", i)
		if !m.validField(src.Field) {
			return simerr.Configuration(key+".field", "unknown field %q", src.Field)
		}
		for _, id := range src.Volumes {
			if m.Material(id) == nil {
				return simerr.Configuration(key+".volumes", "unknown volume %d", id)
			}
		}
		if err := checkValues(src.Value); err != nil {
			return err
		}
	}

	for i, ic := range m.InitialConditions {
		key := fmt.Sprintf("initial_conditions[%d]", i)
		if ic.Field != FieldTemperature && !m.validField(ic.Field) {
			return simerr.Configuration(key+".field", "unknown field %q", ic.Field)
		}
		if err := checkValues(ic.Value); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) validateTemperature() error {
	t := m.Temperature
	switch t.Kind {
	case Prescribed:
		if !t.Value.Defined() {
			return simerr.Configuration("temperature.value", "a prescribed temperature needs a value")
		}
		if t.Value.TemperatureDependent() {
			return simerr.Configuration("temperature.value", "temperature cannot depend on T")
		}
	case TransientHeat:
		if !m.Settings.Transient {
			return simerr.Configuration("temperature.type", "a transient heat problem requires a transient simulation")
		}
		if !t.Value.Defined() {
			return simerr.Configuration("temperature.initial_value", "a transient heat problem needs an initial temperature")
		}
	}
	if t.Solved() {
		for _, mat := range m.Materials {
			if mat.ThermalCond <= 0 {
				return simerr.Configuration("materials.thermal_cond", "material %d needs thermal_cond to solve the heat equation", mat.ID)
			}
			if t.Kind == TransientHeat && (mat.Rho <= 0 || mat.HeatCapacity <= 0) {
				return simerr.Configuration("materials.rho", "material %d needs rho and heat_capacity for a transient heat problem", mat.ID)
			}
		}
	}
	return checkValues(t.Value)
}

func (m *Model) validateSettings() error {
	s := &m.Settings
	if s.MaximumIterations <= 0 {
		return simerr.Configuration("settings.maximum_iterations", "must be positive, got %d", s.MaximumIterations)
	}
	if s.AbsoluteTolerance < 0 || s.RelativeTolerance < 0 {
		return simerr.Configuration("settings", "tolerances must be non-negative")
	}
	if s.Relaxation == 0 {
		s.Relaxation = 1
	}
	switch s.TrapsElementType {
	case "":
		s.TrapsElementType = CG
	case CG, DG:
	default:
		return simerr.Configuration("settings.traps_element_type", "must be CG or DG, got %q", s.TrapsElementType)
	}
	if !s.Transient {
		return nil
	}

	dt := &m.Dt
	if s.FinalTime <= 0 {
		return simerr.Configuration("settings.final_time", "a transient simulation needs final_time > 0")
	}
	if dt.InitialValue <= 0 {
		return simerr.Configuration("dt.initial_value", "a transient simulation needs a positive initial stepsize")
	}
	if dt.ChangeRatio == 0 {
		dt.ChangeRatio = 1
	}
	if dt.ChangeRatio < 0 {
		return simerr.Configuration("dt.stepsize_change_ratio", "must be positive")
	}
	if dt.Max == 0 {
		dt.Max = s.FinalTime
	}
	if dt.Min < 0 || dt.Min > dt.InitialValue || dt.InitialValue > dt.Max {
		return simerr.Configuration("dt", "need dt_min <= initial_value <= dt_max, got %g, %g, %g", dt.Min, dt.InitialValue, dt.Max)
	}
	sort.Float64s(dt.Milestones)
	for _, ms := range dt.Milestones {
		if ms <= 0 || ms > s.FinalTime {
			return simerr.Configuration("dt.milestones", "milestone %g outside (0, final_time]", ms)
		}
	}
	return nil
}

func checkValues(vs ...value.Value) error {
	for _, v := range vs {
		if err := v.Check(); err != nil {
			return err
		}
	}
	return nil
}
