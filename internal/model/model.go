// Package model declares the entities of a hydrogen transport problem:
// materials, traps, surfaces, interfaces, boundary conditions, sources,
// temperature and solver settings.
package model

import (
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/mesh"
	"github.com/san-kum/h2transport/internal/value"
)

// KB is the Boltzmann constant in eV/K.
const KB = 8.6173303e-5

// Field names understood by boundary conditions, sources and exports.
const (
	FieldSolute      = "solute"
	FieldRetention   = "retention"
	FieldTemperature = "T"
)

// Arrhenius evaluates pre*exp(-e/(kB*T)).
func Arrhenius(pre, e, T float64) float64 {
	return pre * math.Exp(-e/(KB*T))
}

type Material struct {
	ID   int
	Name string

	D0, ED float64

	HasSolubility bool
	S0, ES        float64

	ThermalCond  float64
	HeatCapacity float64
	Rho          float64

	// HeatOfTransport is the Soret coefficient Q in eV.
	HeatOfTransport float64

	Borders [2]float64
}

func (m *Material) D(T float64) float64 {
	return Arrhenius(m.D0, m.ED, T)
}

// S is the solubility; materials without a solubility law use 1.
func (m *Material) S(T float64) float64 {
	if !m.HasSolubility {
		return 1
	}
	return Arrhenius(m.S0, m.ES, T)
}

// Trap is a population of immobile binding sites.
type Trap struct {
	K0, Ek float64
	P0, Ep float64

	// Density is the trap site density for intrinsic traps.
	Density value.Value

	// Materials lists the material ids the trap exists in.
	Materials []int

	// Extrinsic is set when the density evolves in time.
	Extrinsic *ExtrinsicForm
}

func (tr *Trap) K(T float64) float64 { return Arrhenius(tr.K0, tr.Ek, T) }

func (tr *Trap) P(T float64) float64 { return Arrhenius(tr.P0, tr.Ep, T) }

func (tr *Trap) In(material int) bool {
	for _, id := range tr.Materials {
		if id == material {
			return true
		}
	}
	return false
}

// ExtrinsicForm holds the creation law of an extrinsic trap:
// dn/dt = phi0 * ((1 - n/NAmax)*EtaA*FA + (1 - n/NBmax)*EtaB*FB).
type ExtrinsicForm struct {
	Phi0         value.Value
	NAmax, NBmax float64
	EtaA, EtaB   float64
	FA, FB       value.Value
}

// Surface is a tagged point of the 1D domain.
type Surface struct {
	ID int
	X  float64
}

// Interface glues two materials at a surface.
type Interface struct {
	Surface   int
	Materials [2]int
	Penalty   float64
}

// DefaultPenalty is the interior penalty coefficient used when none is set.
const DefaultPenalty = 10.0

type BCKind int

const (
	Dirichlet BCKind = iota
	Flux
	RecombinationFlux
	Sievert
)

func (k BCKind) String() string {
	switch k {
	case Dirichlet:
		return "dirichlet"
	case Flux:
		return "flux"
	case RecombinationFlux:
		return "recombination_flux"
	case Sievert:
		return "sievert"
	default:
		return "unknown"
	}
}

// ParseBCKind maps a configuration name to a kind.
func ParseBCKind(s string) (BCKind, bool) {
	for k := Dirichlet; k <= Sievert; k++ {
		if k.String() == strings.ToLower(s) {
			return k, true
		}
	}
	return 0, false
}

// Essential reports whether the condition constrains dofs.
func (k BCKind) Essential() bool {
	return k == Dirichlet || k == Sievert
}

type BoundaryCondition struct {
	Kind     BCKind
	Surfaces []int
	Field    string
	Value    value.Value

	// recombination flux -Kr0*exp(-EKr/kB T)*c^Order
	Kr0, EKr float64
	Order    int

	// sievert c = S0*exp(-ES/kB T)*sqrt(Pressure)
	S0, ES   float64
	Pressure value.Value
}

func (bc *BoundaryCondition) TimeDependent() bool {
	return bc.Value.TimeDependent() || bc.Pressure.TimeDependent()
}

func (bc *BoundaryCondition) TemperatureDependent() bool {
	switch bc.Kind {
	case RecombinationFlux, Sievert:
		return true
	}
	return bc.Value.TemperatureDependent()
}

type Source struct {
	Field   string
	Volumes []int
	Value   value.Value
}

type InitialCondition struct {
	Field string
	Value value.Value
}

type TemperatureKind int

const (
	Prescribed TemperatureKind = iota
	StationaryHeat
	TransientHeat
)

func (k TemperatureKind) String() string {
	switch k {
	case StationaryHeat:
		return "solve_stationary"
	case TransientHeat:
		return "solve_transient"
	default:
		return "expression"
	}
}

// Temperature is either a prescribed field T(x, t) or a heat problem.
// For a transient heat problem Value is the initial temperature.
type Temperature struct {
	Kind  TemperatureKind
	Value value.Value
}

func (t Temperature) Solved() bool { return t.Kind != Prescribed }

type ElementType string

const (
	CG ElementType = "CG"
	DG ElementType = "DG"
)

type Settings struct {
	AbsoluteTolerance float64
	RelativeTolerance float64
	MaximumIterations int
	Relaxation        float64

	Transient bool
	FinalTime float64

	ChemicalPot      bool
	Soret            bool
	UpdateJacobian   bool
	TrapsElementType ElementType
}

// Timing configures the adaptive stepsize.
type Timing struct {
	InitialValue float64
	ChangeRatio  float64
	Min          float64
	Max          float64
	StopTime     float64
	StopMax      float64
	Milestones   []float64
	MaxSteps     int
}

// Model is a complete problem definition.
type Model struct {
	Mesh *mesh.Mesh

	Materials          []Material
	Surfaces           []Surface
	Interfaces         []Interface
	Traps              []Trap
	BoundaryConditions []BoundaryCondition
	Sources            []Source
	InitialConditions  []InitialCondition
	Temperature        Temperature

	Settings Settings
	Dt       Timing

	Exports []exports.Sink
}

// Discontinuous reports whether materials live on separate submeshes.
func (m *Model) Discontinuous() bool { return len(m.Interfaces) > 0 }

func (m *Model) Material(id int) *Material {
	for i := range m.Materials {
		if m.Materials[i].ID == id {
			return &m.Materials[i]
		}
	}
	return nil
}

func (m *Model) Surface(id int) *Surface {
	for i := range m.Surfaces {
		if m.Surfaces[i].ID == id {
			return &m.Surfaces[i]
		}
	}
	return nil
}

// TrapField is the field name of trap i (zero based).
func TrapField(i int) string { return strconv.Itoa(i + 1) }

// DensityField is the field name of the density of extrinsic trap i.
func DensityField(i int) string { return "density_" + strconv.Itoa(i+1) }

// TrapIndex parses a trap field name.
func TrapIndex(field string) (int, bool) {
	n, err := strconv.Atoi(field)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// DefaultSettings returns solver settings matching a steady run.
func DefaultSettings() Settings {
	return Settings{
		AbsoluteTolerance: 1e-10,
		RelativeTolerance: 1e-10,
		MaximumIterations: 30,
		Relaxation:        1,
		UpdateJacobian:    true,
		TrapsElementType:  CG,
	}
}
