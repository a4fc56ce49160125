package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/testutil"
	"github.com/roach88/ancpsim/internal/thermo"
)

// Scenario defines one recipe evaluation test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Recipe RecipeSpec `yaml:"recipe"`

	// ChamberPressureBar defaults to 70 bar.
	ChamberPressureBar float64 `yaml:"chamber_pressure_bar,omitempty"`

	// Config holds nested settings layered over the defaults, keyed like
	// the configuration file sections.
	Config map[string]any `yaml:"config,omitempty"`

	// Ingredients is an optional ingredient database file, relative to the
	// scenario file. The bundled database is used when empty.
	Ingredients string `yaml:"ingredients,omitempty"`

	Solver SolverScript `yaml:"solver"`

	// Evaluations is how many times the recipe is evaluated against the
	// same store. Defaults to 1.
	Evaluations int  `yaml:"evaluations,omitempty"`
	NoCache     bool `yaml:"no_cache,omitempty"`

	// ExpectError, when set, must appear in the error of every evaluation.
	ExpectError string `yaml:"expect_error,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// RecipeSpec is the recipe under test.
type RecipeSpec struct {
	PropellantName string             `yaml:"propellant_name,omitempty"`
	Composition    map[string]float64 `yaml:"composition"`
}

// Recipe returns a copy of the scenario recipe.
func (r RecipeSpec) Recipe() *propellant.Recipe {
	comp := make(propellant.Composition, len(r.Composition))
	for name, pct := range r.Composition {
		comp[name] = pct
	}
	return &propellant.Recipe{Name: r.PropellantName, Composition: comp}
}

// SolverScript scripts the equilibrium solver. Steps answer equilibrate
// calls in order; calls past the end fail to converge.
type SolverScript struct {
	ReactantEnthalpy float64    `yaml:"reactant_enthalpy"`
	EnthalpyError    string     `yaml:"enthalpy_error,omitempty"`
	Steps            []StepSpec `yaml:"steps,omitempty"`
}

// StepSpec is one scripted answer: either a converged state or a failure.
type StepSpec struct {
	Converge *StateSpec `yaml:"converge,omitempty"`
	Fail     string     `yaml:"fail,omitempty"`
}

// StateSpec describes a converged product state. MolecularWeight is in
// g/mol.
type StateSpec struct {
	Temperature     float64 `yaml:"temperature"`
	Gamma           float64 `yaml:"gamma"`
	MolecularWeight float64 `yaml:"molecular_weight"`
}

// Build returns a fresh scripted solver for one scenario run.
func (s SolverScript) Build() *testutil.ScriptedSolver {
	steps := make([]testutil.Step, 0, len(s.Steps))
	for _, step := range s.Steps {
		if step.Converge != nil {
			st := step.Converge
			steps = append(steps, testutil.Converge(
				testutil.ProductState(st.Temperature, st.Gamma, st.MolecularWeight/1000)))
			continue
		}
		steps = append(steps, testutil.Fail(step.Fail))
	}
	solver := testutil.NewScriptedSolver(s.ReactantEnthalpy, steps...)
	if s.EnthalpyError != "" {
		solver.EnthalpyErr = errors.New(s.EnthalpyError)
	}
	return solver
}

// Assertion validates the trace, the last report, or the run store.
type Assertion struct {
	Type string `yaml:"type"`

	// Stage and Outcome select attempts (trace_contains, trace_count).
	// Outcome is "converged" or "failed"; empty matches either.
	Stage   string `yaml:"stage,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Stages is the expected attempt order (trace_order).
	Stages []string `yaml:"stages,omitempty"`

	// Count is the expected number of matching attempts (trace_count).
	Count int `yaml:"count,omitempty"`

	// Field, Value and Tolerance check one report field (result).
	Field     string  `yaml:"field,omitempty"`
	Value     any     `yaml:"value,omitempty"`
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Codes are the expected diagnostic codes (diagnostics).
	Codes []string `yaml:"codes,omitempty"`

	// Where and Expect query the runs table (final_state).
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertResult        = "result"
	AssertDiagnostics   = "diagnostics"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the ingredients path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Ingredients != "" && !filepath.IsAbs(scenario.Ingredients) {
		scenario.Ingredients = filepath.Join(filepath.Dir(path), scenario.Ingredients)
	}
	if scenario.ChamberPressureBar == 0 {
		scenario.ChamberPressureBar = thermo.DefaultChamberPressureBar
	}
	if scenario.Evaluations == 0 {
		scenario.Evaluations = 1
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, ordered by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(p)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Recipe.Composition) == 0 {
		return fmt.Errorf("recipe.composition is required and must be non-empty")
	}
	if s.ChamberPressureBar < 0 {
		return fmt.Errorf("chamber_pressure_bar must be positive, got %v", s.ChamberPressureBar)
	}
	if s.Evaluations < 0 {
		return fmt.Errorf("evaluations must be positive, got %d", s.Evaluations)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Ingredients != "" {
		if _, err := os.Stat(s.Ingredients); os.IsNotExist(err) {
			return fmt.Errorf("ingredients file not found: %s", s.Ingredients)
		}
	}

	for i, step := range s.Solver.Steps {
		if (step.Converge == nil) == (step.Fail == "") {
			return fmt.Errorf("solver.steps[%d]: exactly one of converge or fail is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Stages) == 0 {
			return fmt.Errorf("assertions[%d]: stages list is required for trace_order", index)
		}
		for _, name := range a.Stages {
			if err := checkStage(index, name); err != nil {
				return err
			}
		}
	case AssertTraceCount:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertResult:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for result", index)
		}
		if a.Tolerance < 0 {
			return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
		}
	case AssertDiagnostics:
		if a.Codes == nil {
			return fmt.Errorf("assertions[%d]: codes is required for diagnostics (use [] for none)", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Stage != "" {
		if err := checkStage(index, a.Stage); err != nil {
			return err
		}
	}
	switch a.Outcome {
	case "", outcomeConverged, outcomeFailed:
	default:
		return fmt.Errorf("assertions[%d]: outcome must be %q or %q, got %q", index, outcomeConverged, outcomeFailed, a.Outcome)
	}
	return nil
}

func checkStage(index int, name string) error {
	var s equilibrium.Stage
	if err := s.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("assertions[%d]: %w", index, err)
	}
	return nil
}
