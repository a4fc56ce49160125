package testutil

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/roach88/ancpsim/internal/equilibrium"
)

// Step is one scripted Equilibrate outcome. A non-empty Fail produces a
// *equilibrium.ConvergenceError carrying the request's mode and method;
// otherwise State is returned.
type Step struct {
	State *equilibrium.State
	Fail  string
	Err   error
}

// Converge returns a step that yields state.
func Converge(state *equilibrium.State) Step {
	return Step{State: state}
}

// Fail returns a step that does not converge.
func Fail(message string) Step {
	return Step{Fail: message}
}

// ScriptedSolver is an equilibrium.Solver that replays a fixed script.
//
// Equilibrate consumes Steps in order. Once the script runs out every call
// fails to converge. Requests are recorded for assertions.
type ScriptedSolver struct {
	mu sync.Mutex

	// ReactantEnthalpy is returned by Enthalpy, J/kg.
	ReactantEnthalpy float64
	EnthalpyErr      error

	Steps []Step

	Requests      []equilibrium.Request
	EnthalpyCalls int
}

var _ equilibrium.Solver = (*ScriptedSolver)(nil)

// NewScriptedSolver creates a solver returning h from Enthalpy and replaying
// steps from Equilibrate.
func NewScriptedSolver(h float64, steps ...Step) *ScriptedSolver {
	return &ScriptedSolver{ReactantEnthalpy: h, Steps: steps}
}

// Enthalpy implements equilibrium.Solver.
func (s *ScriptedSolver) Enthalpy(ctx context.Context, _ *equilibrium.SpeciesSet, _ equilibrium.Mixture) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EnthalpyCalls++
	return s.ReactantEnthalpy, s.EnthalpyErr
}

// Equilibrate implements equilibrium.Solver.
func (s *ScriptedSolver) Equilibrate(ctx context.Context, _ *equilibrium.SpeciesSet, req equilibrium.Request) (*equilibrium.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)

	if len(s.Steps) == 0 {
		return nil, &equilibrium.ConvergenceError{Mode: req.Mode, Method: req.Options.Method, Message: "script exhausted"}
	}
	step := s.Steps[0]
	s.Steps = s.Steps[1:]

	switch {
	case step.Err != nil:
		return nil, step.Err
	case step.Fail != "":
		return nil, &equilibrium.ConvergenceError{Mode: req.Mode, Method: req.Options.Method, Message: step.Fail}
	case step.State == nil:
		return nil, errors.New("scripted step has neither state nor failure")
	}
	st := *step.State
	st.Pressure = req.Mixture.Pressure
	st.MassFractions = maps.Clone(step.State.MassFractions)
	st.MoleFractions = maps.Clone(step.State.MoleFractions)
	return &st, nil
}

// Calls returns the number of Equilibrate calls so far.
func (s *ScriptedSolver) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// ProductMoleFractions is a plausible AN/Mg exhaust composition.
func ProductMoleFractions() map[string]float64 {
	return map[string]float64{
		"H2O":    0.30,
		"H2":     0.25,
		"CO":     0.20,
		"N2":     0.15,
		"MgO(l)": 0.08,
		"CO2":    0.015,
		"OH":     0.005,
	}
}

// ProductState builds an equilibrated state with the given flame temperature
// (K), heat-capacity ratio and mean molecular weight (kg/mol).
func ProductState(temperature, gamma, mwKgPerMol float64) *equilibrium.State {
	const cp = 2000.0
	x := ProductMoleFractions()
	return &equilibrium.State{
		Temperature:         temperature,
		MeanMolecularWeight: mwKgPerMol,
		CpMass:              cp,
		CvMass:              cp / gamma,
		MoleFractions:       x,
		MassFractions:       maps.Clone(x),
	}
}
