package equilibrium

import (
	"context"
	"errors"
	"fmt"
)

// Mode selects what the solver holds fixed.
type Mode string

const (
	// ModeTP holds temperature and pressure and equilibrates composition.
	ModeTP Mode = "TP"

	// ModeHP holds enthalpy and pressure and equilibrates composition and
	// temperature (adiabatic flame).
	ModeHP Mode = "HP"
)

// Method names a solver strategy.
type Method string

const (
	MethodVCS   Method = "vcs"
	MethodAuto  Method = "auto"
	MethodGibbs Method = "gibbs"
)

// Options bound a single solver call.
type Options struct {
	Method        Method  `json:"method" yaml:"method"`
	RelTol        float64 `json:"rtol,omitempty" yaml:"rtol,omitempty"`
	MaxSteps      int     `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	MaxIter       int     `json:"max_iter,omitempty" yaml:"max_iter,omitempty"`
	EstimateEquil int     `json:"estimate_equil" yaml:"estimate_equil"`
}

// Mixture is a thermodynamic state with a mass-fraction composition.
// Temperature is in K and pressure in Pa.
type Mixture struct {
	Temperature   float64            `json:"T"`
	Pressure      float64            `json:"P"`
	MassFractions map[string]float64 `json:"Y"`
}

// Request is one equilibration call. Enthalpy (J/kg) is the constraint for
// ModeHP and ignored for ModeTP; Mixture is the starting state.
type Request struct {
	Mode     Mode    `json:"mode"`
	Mixture  Mixture `json:"mixture"`
	Enthalpy float64 `json:"h,omitempty"`
	Options  Options `json:"options"`
}

// State is an equilibrated mixture.
type State struct {
	Temperature float64 `json:"T"` // K
	Pressure    float64 `json:"P"` // Pa

	// MeanMolecularWeight is in kg/mol.
	MeanMolecularWeight float64 `json:"mean_molecular_weight"`

	CpMass float64 `json:"cp_mass"` // J/(kg K)
	CvMass float64 `json:"cv_mass"` // J/(kg K)

	MassFractions map[string]float64 `json:"Y,omitempty"`
	MoleFractions map[string]float64 `json:"X,omitempty"`
}

// Solver is the external equilibrium capability.
//
// Implementations must be safe to call sequentially with independent inputs;
// Runner never issues concurrent calls.
type Solver interface {
	// Enthalpy returns the mass-specific enthalpy (J/kg) of mix, without
	// equilibrating it.
	Enthalpy(ctx context.Context, set *SpeciesSet, mix Mixture) (float64, error)

	// Equilibrate runs one equilibration. Non-convergence is reported as a
	// *ConvergenceError.
	Equilibrate(ctx context.Context, set *SpeciesSet, req Request) (*State, error)
}

// ErrNotConverged is matched by ConvergenceError via errors.Is.
var ErrNotConverged = errors.New("equilibrium did not converge")

// ErrExhausted is returned by Runner.Run once every stage has failed.
var ErrExhausted = errors.New("all equilibrium stages failed")

// ConvergenceError reports a solver call that did not converge.
type ConvergenceError struct {
	Mode    Mode
	Method  Method
	Message string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s equilibration (%s) did not converge: %s", e.Mode, e.Method, e.Message)
}

// Is reports ErrNotConverged.
func (e *ConvergenceError) Is(target error) bool {
	return target == ErrNotConverged
}

// IsConvergenceError returns true if err is or wraps a ConvergenceError.
func IsConvergenceError(err error) bool {
	var ce *ConvergenceError
	return errors.As(err, &ce)
}
