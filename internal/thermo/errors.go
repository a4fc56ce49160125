package thermo

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed performance evaluation.
type ErrorCode string

const (
	// CodeConvergenceFailure: every equilibrium stage failed.
	CodeConvergenceFailure ErrorCode = "SOLVER_CONVERGENCE_FAILURE"

	// CodePhysicallyImplausible: converged, but the flame temperature does
	// not exceed MinFlameTemperature.
	CodePhysicallyImplausible ErrorCode = "PHYSICALLY_IMPLAUSIBLE"

	// CodeInvalidThermalState: non-positive heat capacity at constant volume.
	CodeInvalidThermalState ErrorCode = "INVALID_THERMAL_STATE"

	// CodeInvalidGamma: cp/cv does not exceed 1.
	CodeInvalidGamma ErrorCode = "INVALID_GAMMA"

	// CodeUnknownIngredient: the recipe names an ingredient missing from
	// the database.
	CodeUnknownIngredient ErrorCode = "UNKNOWN_INGREDIENT"

	// CodeInvalidInput: the recipe, pressure or an ingredient record cannot
	// be turned into a solver problem.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeSolverError: the solver could not be run at all (missing
	// interpreter, reactant enthalpy failure, cancellation).
	CodeSolverError ErrorCode = "SOLVER_ERROR"
)

// Error is a performance evaluation failure.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConvergenceFailure returns true if err is a SOLVER_CONVERGENCE_FAILURE.
func IsConvergenceFailure(err error) bool {
	return CodeOf(err) == CodeConvergenceFailure
}

// IsPhysicallyImplausible returns true if err is a PHYSICALLY_IMPLAUSIBLE
// failure.
func IsPhysicallyImplausible(err error) bool {
	return CodeOf(err) == CodePhysicallyImplausible
}
