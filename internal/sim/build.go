package sim

import (
	"fmt"
	"strings"

	"github.com/san-kum/h2transport/internal/config"
	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/mesh"
	"github.com/san-kum/h2transport/internal/model"
	"github.com/san-kum/h2transport/internal/simerr"
	"github.com/san-kum/h2transport/internal/value"
)

// Build turns a configuration into a model. Values are parsed here; the
// model is validated by Initialise.
func Build(cfg *config.Config) (*model.Model, error) {
	b := builder{}
	m := &model.Model{}

	var err error
	if m.Mesh, err = buildMesh(cfg.Mesh); err != nil {
		return nil, simerr.Configuration("mesh", "%v", err)
	}

	for _, mc := range cfg.Materials {
		mat := model.Material{
			ID:              mc.ID,
			Name:            mc.Name,
			D0:              deref(mc.D0),
			ED:              deref(mc.ED),
			HasSolubility:   mc.S0 != nil,
			S0:              deref(mc.S0),
			ES:              deref(mc.ES),
			ThermalCond:     deref(mc.ThermalCond),
			HeatCapacity:    deref(mc.HeatCapacity),
			Rho:             deref(mc.Rho),
			HeatOfTransport: deref(mc.H),
		}
		if len(mc.Borders) == 2 {
			mat.Borders = [2]float64{mc.Borders[0], mc.Borders[1]}
		} else if len(mc.Borders) != 0 {
			return nil, simerr.Configuration("materials.borders", "material %d: borders need two values", mc.ID)
		}
		m.Materials = append(m.Materials, mat)
	}

	for _, sc := range cfg.Surfaces {
		m.Surfaces = append(m.Surfaces, model.Surface{ID: sc.ID, X: sc.X})
	}
	for _, ic := range cfg.Interfaces {
		if len(ic.Materials) != 2 {
			return nil, simerr.Configuration("interfaces.materials", "interface at surface %d needs two materials", ic.Surface)
		}
		m.Interfaces = append(m.Interfaces, model.Interface{
			Surface:   ic.Surface,
			Materials: [2]int{ic.Materials[0], ic.Materials[1]},
			Penalty:   ic.Penalty,
		})
	}

	for i, tc := range cfg.Traps {
		key := fmt.Sprintf("traps[%d]", i)
		tr := model.Trap{
			K0: tc.K0, Ek: tc.Ek, P0: tc.P0, Ep: tc.Ep,
			Density:   b.value(key+".density", tc.Density),
			Materials: tc.Materials,
		}
		switch tc.Type {
		case "", "intrinsic":
		case "extrinsic":
			f := tc.FormParameters
			if f == nil {
				return nil, simerr.Configuration(key+".form_parameters", "extrinsic traps need form_parameters")
			}
			tr.Extrinsic = &model.ExtrinsicForm{
				Phi0:  b.value(key+".phi_0", f.Phi0),
				NAmax: f.NAmax, NBmax: f.NBmax,
				EtaA: f.EtaA, EtaB: f.EtaB,
				FA: b.value(key+".f_a", f.FA),
				FB: b.value(key+".f_b", f.FB),
			}
		default:
			return nil, simerr.Configuration(key+".type", "unknown trap type %q", tc.Type)
		}
		m.Traps = append(m.Traps, tr)
	}

	for i, bc := range cfg.BoundaryConditions {
		key := fmt.Sprintf("boundary_conditions[%d]", i)
		kind, ok := model.ParseBCKind(bc.Type)
		if !ok {
			return nil, simerr.Configuration(key+".type", "unknown boundary condition %q", bc.Type)
		}
		m.BoundaryConditions = append(m.BoundaryConditions, model.BoundaryCondition{
			Kind:     kind,
			Surfaces: bc.Surfaces,
			Field:    field(bc.Field),
			Value:    b.value(key+".value", bc.Value),
			Kr0:      bc.Kr0,
			EKr:      bc.EKr,
			Order:    bc.Order,
			S0:       bc.S0,
			ES:       bc.ES,
			Pressure: b.value(key+".pressure", bc.Pressure),
		})
	}
	for i, sc := range cfg.Sources {
		volumes := sc.Volumes
		if len(volumes) == 0 {
			for _, mat := range m.Materials {
				volumes = append(volumes, mat.ID)
			}
		}
		key := fmt.Sprintf("sources[%d]", i)
		src := model.Source{Field: field(sc.Field), Volumes: volumes}
		switch sc.Type {
		case "", "source":
			src.Value = b.value(key+".value", sc.Value)
		case config.SourceImplantationFlux:
			if sc.Flux == "" {
				return nil, simerr.Configuration(key+".flux", "implantation_flux needs a flux")
			}
			if sc.Width <= 0 {
				return nil, simerr.Configuration(key+".width", "width must be positive, got %g", sc.Width)
			}
			flux := b.value(key+".flux", sc.Flux)
			if err := flux.Check(); err != nil {
				return nil, err
			}
			src.Value = value.Implantation(flux, sc.ImpDepth, sc.Width)
		default:
			return nil, simerr.Configuration(key+".type", "unknown source type %q", sc.Type)
		}
		m.Sources = append(m.Sources, src)
	}
	for i, ic := range cfg.InitialConditions {
		m.InitialConditions = append(m.InitialConditions, model.InitialCondition{
			Field: field(ic.Field),
			Value: b.value(fmt.Sprintf("initial_conditions[%d].value", i), ic.Value),
		})
	}

	switch tc := cfg.Temperature; tc.Type {
	case config.TemperatureExpression, "":
		m.Temperature = model.Temperature{Kind: model.Prescribed, Value: b.value("temperature.value", tc.Value)}
	case config.TemperatureStationary:
		m.Temperature = model.Temperature{Kind: model.StationaryHeat, Value: b.value("temperature.initial_value", tc.InitialValue)}
	case config.TemperatureTransient:
		m.Temperature = model.Temperature{Kind: model.TransientHeat, Value: b.value("temperature.initial_value", tc.InitialValue)}
	default:
		return nil, simerr.Configuration("temperature.type", "unknown temperature type %q", tc.Type)
	}

	st := cfg.Settings
	m.Settings = model.Settings{
		AbsoluteTolerance: st.AbsoluteTolerance,
		RelativeTolerance: st.RelativeTolerance,
		MaximumIterations: st.MaximumIterations,
		Relaxation:        st.Relaxation,
		Transient:         st.Transient,
		FinalTime:         st.FinalTime,
		ChemicalPot:       st.ChemicalPot,
		Soret:             st.Soret,
		UpdateJacobian:    st.UpdateJacobian,
		TrapsElementType:  model.ElementType(strings.ToUpper(st.TrapsElementType)),
	}
	dt := cfg.Dt
	m.Dt = model.Timing{
		InitialValue: dt.InitialValue,
		ChangeRatio:  dt.StepsizeChangeRatio,
		Min:          dt.DtMin,
		Max:          dt.DtMax,
		StopTime:     dt.TStop,
		StopMax:      dt.StepsizeStopMax,
		Milestones:   append([]float64(nil), dt.Milestones...),
		MaxSteps:     dt.MaxSteps,
	}

	if m.Exports, err = b.exports(cfg.Exports); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder keeps the first value parse error so that the construction above
// reads straight through.
type builder struct {
	err error
}

func (b *builder) value(key string, e config.Expr) value.Value {
	if e == "" {
		return value.Value{}
	}
	v, err := value.Parse(string(e))
	if err != nil && b.err == nil {
		b.err = simerr.Configuration(key, "%v", err)
	}
	return v
}

func (b *builder) exports(ec config.ExportsConfig) ([]exports.Sink, error) {
	folder := ec.Folder
	if folder == "" {
		folder = config.DefaultFolder
	}
	var sinks []exports.Sink

	if dq := ec.DerivedQuantities; dq != nil {
		var qs []exports.Quantity
		for i, qc := range dq.Quantities {
			q, err := quantity(qc)
			if err != nil {
				return nil, simerr.Configuration(fmt.Sprintf("exports.derived_quantities.quantities[%d]", i), "%v", err)
			}
			qs = append(qs, q)
		}
		name := strings.TrimSuffix(dq.File, ".csv")
		if name == "" {
			name = "derived_quantities"
		}
		cadence := exports.Cadence{Every: dq.NbIterationsBetweenCompute, LastOnly: dq.LastTimestepOnly}
		sinks = append(sinks, exports.NewDerivedQuantities(name, cadence, qs...))
	}

	for _, fc := range ec.TXT {
		sinks = append(sinks, exports.NewFieldSnapshot(label(fc), field(fc.Field), cadence(fc)))
	}
	for _, fc := range ec.Plots {
		sinks = append(sinks, exports.NewProfilePlot(label(fc), field(fc.Field), folder, cadence(fc)))
	}

	if len(ec.Error) > 0 {
		var qs []exports.Quantity
		for i, e := range ec.Error {
			exact := b.value(fmt.Sprintf("exports.error[%d].exact_solution", i), e.ExactSolution)
			norm := exports.Norm(e.Norm)
			if norm != "" && norm != exports.NormMax && norm != exports.NormL2 {
				return nil, simerr.Configuration(fmt.Sprintf("exports.error[%d].norm", i), "unknown norm %q", e.Norm)
			}
			qs = append(qs, exports.Error(field(e.Field), exact, norm))
		}
		sinks = append(sinks, exports.NewDerivedQuantities(ErrorSink, exports.Cadence{LastOnly: true}, qs...))
	}
	return sinks, nil
}

func quantity(qc config.QuantityConfig) (exports.Quantity, error) {
	switch qc.Type {
	case "point_value":
		return exports.PointValue(field(qc.Field), qc.X), nil
	case "total_surface", "surface_flux":
		return exports.NewQuantity(qc.Type, field(qc.Field), qc.Surface)
	default:
		return exports.NewQuantity(qc.Type, field(qc.Field), qc.Volume)
	}
}

func cadence(fc config.FieldExportConfig) exports.Cadence {
	return exports.Cadence{
		Every:    fc.NbIterationsBetweenExports,
		LastOnly: fc.LastTimestepOnly,
		Times:    fc.Times,
	}
}

func label(fc config.FieldExportConfig) string {
	if fc.Label != "" {
		return fc.Label
	}
	return field(fc.Field)
}

func field(name string) string {
	if name == "" {
		return model.FieldSolute
	}
	return name
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func buildMesh(mc config.MeshConfig) (*mesh.Mesh, error) {
	if len(mc.Vertices) > 0 {
		return mesh.FromVertices(mc.Vertices)
	}
	refinements := make([]mesh.Refinement, len(mc.Refinements))
	for i, r := range mc.Refinements {
		refinements[i] = mesh.Refinement{Cells: r.Cells, X: r.X}
	}
	return mesh.FromRefinements(mc.InitialNumberOfCells, mc.Size, refinements)
}
