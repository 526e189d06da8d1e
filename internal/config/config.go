package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/h2transport/internal/simerr"
)

const (
	DefaultCells       = 100
	DefaultSize        = 1.0
	DefaultTemperature = "300"
	DefaultTolerance   = 1e-10
	DefaultIterations  = 30
	DefaultFolder      = "results"
)

// Expr is a constant or an expression of x, t and T. Numbers and strings are
// both accepted in yaml.
type Expr string

func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number or an expression", node.Line)
	}
	*e = Expr(strings.TrimSpace(node.Value))
	return nil
}

// Num formats a constant as an expression.
func Num(v float64) Expr { return Expr(strconv.FormatFloat(v, 'g', -1, 64)) }

type Config struct {
	Mesh               MeshConfig         `yaml:"mesh"`
	Materials          []MaterialConfig   `yaml:"materials"`
	Surfaces           []SurfaceConfig    `yaml:"surfaces,omitempty"`
	Interfaces         []InterfaceConfig  `yaml:"interfaces,omitempty"`
	Traps              []TrapConfig       `yaml:"traps,omitempty"`
	InitialConditions  []InitialCondition `yaml:"initial_conditions,omitempty"`
	BoundaryConditions []BCConfig         `yaml:"boundary_conditions,omitempty"`
	Sources            []SourceConfig     `yaml:"sources,omitempty"`
	Temperature        TemperatureConfig  `yaml:"temperature"`
	Settings           SettingsConfig     `yaml:"settings"`
	Dt                 DtConfig           `yaml:"dt,omitempty"`
	Exports            ExportsConfig      `yaml:"exports,omitempty"`
}

type MeshConfig struct {
	InitialNumberOfCells int                `yaml:"initial_number_of_cells,omitempty"`
	Size                 float64            `yaml:"size,omitempty"`
	Refinements          []RefinementConfig `yaml:"refinements,omitempty"`
	Vertices             []float64          `yaml:"vertices,omitempty"`
}

type RefinementConfig struct {
	Cells int     `yaml:"cells"`
	X     float64 `yaml:"x"`
}

// MaterialConfig keeps optional properties as pointers so that the set of
// keys a material declares can be compared across materials.
type MaterialConfig struct {
	ID           int       `yaml:"id"`
	Name         string    `yaml:"name,omitempty"`
	D0           *float64  `yaml:"D_0,omitempty"`
	ED           *float64  `yaml:"E_D,omitempty"`
	S0           *float64  `yaml:"S_0,omitempty"`
	ES           *float64  `yaml:"E_S,omitempty"`
	ThermalCond  *float64  `yaml:"thermal_cond,omitempty"`
	HeatCapacity *float64  `yaml:"heat_capacity,omitempty"`
	Rho          *float64  `yaml:"rho,omitempty"`
	H            *float64  `yaml:"H,omitempty"`
	Borders      []float64 `yaml:"borders,omitempty"`
}

// Keys lists the property keys the material sets.
func (m *MaterialConfig) Keys() []string {
	var keys []string
	for _, k := range []struct {
		name string
		v    *float64
	}{
		{"D_0", m.D0}, {"E_D", m.ED}, {"S_0", m.S0}, {"E_S", m.ES},
		{"thermal_cond", m.ThermalCond}, {"heat_capacity", m.HeatCapacity},
		{"rho", m.Rho}, {"H", m.H},
	} {
		if k.v != nil {
			keys = append(keys, k.name)
		}
	}
	if len(m.Borders) > 0 {
		keys = append(keys, "borders")
	}
	return keys
}

type SurfaceConfig struct {
	ID int     `yaml:"id"`
	X  float64 `yaml:"x"`
}

type InterfaceConfig struct {
	Surface   int     `yaml:"surface"`
	Materials []int   `yaml:"materials"`
	Penalty   float64 `yaml:"penalty,omitempty"`
}

type TrapConfig struct {
	Type           string           `yaml:"type,omitempty"`
	K0             float64          `yaml:"k_0"`
	Ek             float64          `yaml:"E_k"`
	P0             float64          `yaml:"p_0"`
	Ep             float64          `yaml:"E_p"`
	Density        Expr             `yaml:"density,omitempty"`
	Materials      []int            `yaml:"materials"`
	FormParameters *ExtrinsicConfig `yaml:"form_parameters,omitempty"`
}

type ExtrinsicConfig struct {
	Phi0  Expr    `yaml:"phi_0"`
	NAmax float64 `yaml:"n_amax"`
	NBmax float64 `yaml:"n_bmax"`
	EtaA  float64 `yaml:"eta_a"`
	EtaB  float64 `yaml:"eta_b"`
	FA    Expr    `yaml:"f_a"`
	FB    Expr    `yaml:"f_b"`
}

type InitialCondition struct {
	Field string `yaml:"field,omitempty"`
	Value Expr   `yaml:"value"`
}

type BCConfig struct {
	Type     string `yaml:"type"`
	Surfaces []int  `yaml:"surfaces"`
	Field    string `yaml:"field,omitempty"`
	Value    Expr   `yaml:"value,omitempty"`

	Kr0   float64 `yaml:"Kr_0,omitempty"`
	EKr   float64 `yaml:"E_Kr,omitempty"`
	Order int     `yaml:"order,omitempty"`

	S0       float64 `yaml:"S_0,omitempty"`
	ES       float64 `yaml:"E_S,omitempty"`
	Pressure Expr    `yaml:"pressure,omitempty"`
}

const SourceImplantationFlux = "implantation_flux"

// SourceConfig is a volumetric source. An implantation_flux source is built
// from flux, imp_depth and width instead of value.
type SourceConfig struct {
	Type     string  `yaml:"type,omitempty"`
	Field    string  `yaml:"field,omitempty"`
	Volumes  []int   `yaml:"volumes,omitempty"`
	Value    Expr    `yaml:"value,omitempty"`
	Flux     Expr    `yaml:"flux,omitempty"`
	ImpDepth float64 `yaml:"imp_depth,omitempty"`
	Width    float64 `yaml:"width,omitempty"`
}

const (
	TemperatureExpression = "expression"
	TemperatureStationary = "solve_stationary"
	TemperatureTransient  = "solve_transient"
)

type TemperatureConfig struct {
	Type         string `yaml:"type"`
	Value        Expr   `yaml:"value,omitempty"`
	InitialValue Expr   `yaml:"initial_value,omitempty"`
}

type SettingsConfig struct {
	AbsoluteTolerance float64 `yaml:"absolute_tolerance"`
	RelativeTolerance float64 `yaml:"relative_tolerance"`
	MaximumIterations int     `yaml:"maximum_iterations"`
	Relaxation        float64 `yaml:"relaxation,omitempty"`
	Transient         bool    `yaml:"transient"`
	FinalTime         float64 `yaml:"final_time,omitempty"`
	ChemicalPot       bool    `yaml:"chemical_pot,omitempty"`
	Soret             bool    `yaml:"soret,omitempty"`
	UpdateJacobian    bool    `yaml:"update_jacobian"`
	TrapsElementType  string  `yaml:"traps_element_type,omitempty"`
}

type DtConfig struct {
	InitialValue        float64   `yaml:"initial_value,omitempty"`
	StepsizeChangeRatio float64   `yaml:"stepsize_change_ratio,omitempty"`
	DtMin               float64   `yaml:"dt_min,omitempty"`
	DtMax               float64   `yaml:"dt_max,omitempty"`
	TStop               float64   `yaml:"t_stop,omitempty"`
	StepsizeStopMax     float64   `yaml:"stepsize_stop_max,omitempty"`
	Milestones          []float64 `yaml:"milestones,omitempty"`
	MaxSteps            int       `yaml:"max_steps,omitempty"`
}

type ExportsConfig struct {
	Folder            string                   `yaml:"folder,omitempty"`
	DerivedQuantities *DerivedQuantitiesConfig `yaml:"derived_quantities,omitempty"`
	TXT               []FieldExportConfig      `yaml:"txt,omitempty"`
	Plots             []FieldExportConfig      `yaml:"plots,omitempty"`
	Error             []ErrorConfig            `yaml:"error,omitempty"`
}

type DerivedQuantitiesConfig struct {
	File                       string           `yaml:"file,omitempty"`
	NbIterationsBetweenCompute int              `yaml:"nb_iterations_between_compute,omitempty"`
	LastTimestepOnly           bool             `yaml:"last_timestep_only,omitempty"`
	Quantities                 []QuantityConfig `yaml:"quantities"`
}

type QuantityConfig struct {
	Type    string  `yaml:"type"`
	Field   string  `yaml:"field"`
	Volume  int     `yaml:"volume,omitempty"`
	Surface int     `yaml:"surface,omitempty"`
	X       float64 `yaml:"x,omitempty"`
}

type FieldExportConfig struct {
	Field                      string    `yaml:"field"`
	Label                      string    `yaml:"label,omitempty"`
	Times                      []float64 `yaml:"times,omitempty"`
	NbIterationsBetweenExports int       `yaml:"nb_iterations_between_exports,omitempty"`
	LastTimestepOnly           bool      `yaml:"last_timestep_only,omitempty"`
}

type ErrorConfig struct {
	Field         string `yaml:"field"`
	ExactSolution Expr   `yaml:"exact_solution"`
	Norm          string `yaml:"norm,omitempty"`
}

func ptr(v float64) *float64 { return &v }

// DefaultConfig is a steady diffusion run through a unit slab.
func DefaultConfig() *Config {
	cfg := base()
	cfg.Materials = []MaterialConfig{{ID: 1, Name: "slab", D0: ptr(1), ED: ptr(0)}}
	cfg.BoundaryConditions = []BCConfig{
		{Type: "dirichlet", Surfaces: []int{1}, Value: "1"},
		{Type: "dirichlet", Surfaces: []int{2}, Value: "0"},
	}
	return cfg
}

// base holds the scalar defaults a file is decoded over.
func base() *Config {
	return &Config{
		Mesh:        MeshConfig{InitialNumberOfCells: DefaultCells, Size: DefaultSize},
		Temperature: TemperatureConfig{Type: TemperatureExpression, Value: DefaultTemperature},
		Settings: SettingsConfig{
			AbsoluteTolerance: DefaultTolerance,
			RelativeTolerance: DefaultTolerance,
			MaximumIterations: DefaultIterations,
			UpdateJacobian:    true,
			TrapsElementType:  "CG",
		},
	}
}

// Load reads a configuration file. Unknown and unused keys come back as
// warnings; inconsistent material declarations are errors.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, []string, error) {
	cfg := base()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, simerr.Configuration("", "%v", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, simerr.Configuration("", "%v", err)
	}
	warnings := UnknownKeys(&root)
	more, err := cfg.Validate()
	warnings = append(warnings, more...)
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks what cannot be expressed by the schema alone.
func (c *Config) Validate() ([]string, error) {
	if len(c.Materials) == 0 {
		return nil, simerr.Configuration("materials", "at least one material is required")
	}
	seen := make(map[int]bool)
	var reference []string
	for i := range c.Materials {
		m := &c.Materials[i]
		if seen[m.ID] {
			return nil, simerr.Configuration("materials", "some materials have the same id (%d)", m.ID)
		}
		seen[m.ID] = true
		if m.D0 == nil || m.ED == nil {
			return nil, simerr.Configuration("materials", "material %d needs D_0 and E_D", m.ID)
		}
		keys := m.Keys()
		if i == 0 {
			reference = keys
			continue
		}
		if strings.Join(keys, ",") != strings.Join(reference, ",") {
			return nil, simerr.Configuration("materials",
				"materials %d and %d declare different keys: %v vs %v",
				c.Materials[0].ID, m.ID, reference, keys)
		}
	}
	return c.unusedKeys(), nil
}

func (c *Config) unusedKeys() []string {
	unused := map[string]bool{}
	switch c.Temperature.Type {
	case TemperatureExpression, "":
		unused["thermal_cond"] = true
		unused["heat_capacity"] = true
		unused["rho"] = true
	case TemperatureStationary:
		unused["heat_capacity"] = true
		unused["rho"] = true
	}
	if !c.Settings.Soret {
		unused["H"] = true
	}
	if !c.Settings.ChemicalPot && len(c.Interfaces) == 0 {
		unused["S_0"] = true
		unused["E_S"] = true
	}
	var warnings []string
	for _, k := range c.Materials[0].Keys() {
		if unused[k] {
			warnings = append(warnings, fmt.Sprintf("materials: %s will be ignored", k))
		}
	}
	return warnings
}

// schema lists the accepted keys of each mapping, by path. Sequences share
// the path of their parent key.
var schema = map[string][]string{
	"": {"mesh", "materials", "surfaces", "interfaces", "traps", "initial_conditions",
		"boundary_conditions", "sources", "temperature", "settings", "dt", "exports"},
	"mesh":             {"initial_number_of_cells", "size", "refinements", "vertices"},
	"mesh.refinements": {"cells", "x"},
	"materials": {"id", "name", "D_0", "E_D", "S_0", "E_S", "thermal_cond",
		"heat_capacity", "rho", "H", "borders"},
	"surfaces":              {"id", "x"},
	"interfaces":            {"surface", "materials", "penalty"},
	"traps":                 {"type", "k_0", "E_k", "p_0", "E_p", "density", "materials", "form_parameters"},
	"traps.form_parameters": {"phi_0", "n_amax", "n_bmax", "eta_a", "eta_b", "f_a", "f_b"},
	"initial_conditions":    {"field", "value"},
	"boundary_conditions": {"type", "surfaces", "field", "value", "Kr_0", "E_Kr", "order",
		"S_0", "E_S", "pressure"},
	"sources":     {"type", "field", "volumes", "value", "flux", "imp_depth", "width"},
	"temperature": {"type", "value", "initial_value"},
	"settings": {"absolute_tolerance", "relative_tolerance", "maximum_iterations",
		"relaxation", "transient", "final_time", "chemical_pot", "soret", "update_jacobian",
		"traps_element_type"},
	"dt": {"initial_value", "stepsize_change_ratio", "dt_min", "dt_max", "t_stop",
		"stepsize_stop_max", "milestones", "max_steps"},
	"exports":                               {"folder", "derived_quantities", "txt", "plots", "error"},
	"exports.derived_quantities":            {"file", "nb_iterations_between_compute", "last_timestep_only", "quantities"},
	"exports.derived_quantities.quantities": {"type", "field", "volume", "surface", "x"},
	"exports.txt":                           {"field", "label", "times", "nb_iterations_between_exports", "last_timestep_only"},
	"exports.plots":                         {"field", "label", "times", "nb_iterations_between_exports", "last_timestep_only"},
	"exports.error":                         {"field", "exact_solution", "norm"},
}

// UnknownKeys walks a parsed document and reports keys the schema does not
// know about.
func UnknownKeys(root *yaml.Node) []string {
	var warnings []string
	var walk func(n *yaml.Node, path string)
	walk = func(n *yaml.Node, path string) {
		switch n.Kind {
		case yaml.DocumentNode, yaml.SequenceNode:
			for _, child := range n.Content {
				walk(child, path)
			}
		case yaml.MappingNode:
			known, checked := schema[path]
			for i := 0; i+1 < len(n.Content); i += 2 {
				key := n.Content[i].Value
				if checked && !contains(known, key) {
					warnings = append(warnings, fmt.Sprintf("line %d: unknown key %q in %s", n.Content[i].Line, key, section(path)))
					continue
				}
				walk(n.Content[i+1], join(path, key))
			}
		}
	}
	walk(root, "")
	sort.Strings(warnings)
	return warnings
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func section(path string) string {
	if path == "" {
		return "the top level"
	}
	return path
}
