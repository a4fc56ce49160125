package equilibrium

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Stage is a state of the staged retry policy.
type Stage int

const (
	StageWarmStart Stage = iota
	StageTight
	StageRelaxed
	StageFallback
	StageConverged
	StageFailed
)

var stageNames = map[Stage]string{
	StageWarmStart: "warm_start",
	StageTight:     "tight",
	StageRelaxed:   "relaxed",
	StageFallback:  "fallback",
	StageConverged: "converged",
	StageFailed:    "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// Terminal reports whether no further transitions happen from s.
func (s Stage) Terminal() bool {
	return s == StageConverged || s == StageFailed
}

// Next is the transition function. The warm start always advances to Tight
// regardless of outcome; every later stage converges on success or falls
// through to the next on failure.
func Next(s Stage, err error) Stage {
	switch s {
	case StageWarmStart:
		return StageTight
	case StageTight, StageRelaxed, StageFallback:
		if err == nil {
			return StageConverged
		}
		return fallthroughStage[s]
	default:
		return s
	}
}

// fallthroughStage is where each equilibrium stage goes on failure.
var fallthroughStage = map[Stage]Stage{
	StageTight:    StageRelaxed,
	StageRelaxed:  StageFallback,
	StageFallback: StageFailed,
}

// StageSpec configures one solver stage.
type StageSpec struct {
	Mode    Mode    `json:"mode" yaml:"mode"`
	Options Options `json:"options" yaml:"options"`
}

// Policy holds the per-stage solver settings.
type Policy struct {
	// WarmStartTemperature is the fixed temperature of the warm start, K.
	WarmStartTemperature float64 `json:"warm_start_temperature"`

	WarmStart StageSpec `json:"warm_start"`
	Tight     StageSpec `json:"tight"`
	Relaxed   StageSpec `json:"relaxed"`
	Fallback  StageSpec `json:"fallback"`
}

// DefaultPolicy returns the standard four-stage policy.
func DefaultPolicy() Policy {
	return Policy{
		WarmStartTemperature: 2200,
		WarmStart: StageSpec{
			Mode:    ModeTP,
			Options: Options{Method: MethodVCS, MaxSteps: 500, MaxIter: 200},
		},
		Tight: StageSpec{
			Mode:    ModeHP,
			Options: Options{Method: MethodVCS, RelTol: 1e-6, MaxSteps: 2000, MaxIter: 500},
		},
		Relaxed: StageSpec{
			Mode:    ModeHP,
			Options: Options{Method: MethodVCS, RelTol: 1e-5, MaxSteps: 3000},
		},
		Fallback: StageSpec{
			Mode:    ModeHP,
			Options: Options{Method: MethodAuto, MaxSteps: 2000},
		},
	}
}

// Spec returns the settings for a non-terminal stage.
func (p Policy) Spec(s Stage) (StageSpec, bool) {
	switch s {
	case StageWarmStart:
		return p.WarmStart, true
	case StageTight:
		return p.Tight, true
	case StageRelaxed:
		return p.Relaxed, true
	case StageFallback:
		return p.Fallback, true
	}
	return StageSpec{}, false
}

// Attempt records one solver call made by the runner.
type Attempt struct {
	Stage     Stage         `json:"stage"`
	Mode      Mode          `json:"mode"`
	Method    Method        `json:"method"`
	Converged bool          `json:"converged"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Observer is notified after every attempt. Implementations must not block.
type Observer interface {
	ObserveAttempt(Attempt)
}

// Problem is the input to a staged run. Reactants is the unburned mixture at
// the reference temperature and chamber pressure.
type Problem struct {
	Set       *SpeciesSet
	Reactants Mixture
}

// Outcome is the result of a staged run.
type Outcome struct {
	// Final is StageConverged or StageFailed.
	Final Stage

	// ConvergedAt is the stage that produced State. Zero if Final is
	// StageFailed.
	ConvergedAt Stage

	State    *State
	Attempts []Attempt

	// Enthalpy is the reactant mass-specific enthalpy, J/kg.
	Enthalpy float64

	// WarmStartFailed is set when the warm start did not converge and
	// the constrained stages began from the raw reactants instead.
	WarmStartFailed bool
}

// Runner drives a Solver through a Policy.
type Runner struct {
	Solver   Solver
	Policy   Policy
	Logger   *slog.Logger
	Observer Observer

	// Now is the clock used to time attempts. Defaults to time.Now.
	Now func() time.Time
}

// NewRunner creates a runner with the default policy.
func NewRunner(solver Solver, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		Solver: solver,
		Policy: DefaultPolicy(),
		Logger: logger,
	}
}

// Run executes the staged policy. It returns the outcome together with an
// error wrapping ErrExhausted when every stage failed. Context cancellation
// and reactant enthalpy failures are returned as-is with a nil outcome.
func (r *Runner) Run(ctx context.Context, p Problem) (*Outcome, error) {
	if p.Set == nil {
		return nil, errors.New("equilibrium: nil species set")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	out := &Outcome{}
	var (
		start   Mixture
		lastErr error
	)

	stage := StageWarmStart
	for !stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec, _ := r.Policy.Spec(stage)

		if stage == StageWarmStart {
			warm := Mixture{
				Temperature:   r.Policy.WarmStartTemperature,
				Pressure:      p.Reactants.Pressure,
				MassFractions: p.Reactants.MassFractions,
			}
			st, err := r.attempt(ctx, out, stage, spec, Request{
				Mode:    spec.Mode,
				Mixture: warm,
				Options: spec.Options,
			}, p.Set)
			if err != nil {
				logger.Warn("warm start failed, continuing from reactants",
					"error", err)
				out.WarmStartFailed = true
				start = warm
			} else {
				start = Mixture{
					Temperature:   st.Temperature,
					Pressure:      p.Reactants.Pressure,
					MassFractions: st.MassFractions,
				}
			}

			// The enthalpy constraint is always the unburned reactants'.
			h, err := r.Solver.Enthalpy(ctx, p.Set, p.Reactants)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("reactant enthalpy: %w", err)
			}
			out.Enthalpy = h
			logger.Debug("reactant enthalpy", "h_J_kg", h)

			stage = Next(stage, err)
			continue
		}

		st, err := r.attempt(ctx, out, stage, spec, Request{
			Mode:     spec.Mode,
			Mixture:  start,
			Enthalpy: out.Enthalpy,
			Options:  spec.Options,
		}, p.Set)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Info("equilibrium stage failed", "stage", stage, "error", err)
			lastErr = err
		} else {
			out.State = st
			out.ConvergedAt = stage
			logger.Debug("equilibrium converged", "stage", stage,
				"T", st.Temperature)
		}
		stage = Next(stage, err)
	}

	out.Final = stage
	if stage == StageFailed {
		out.ConvergedAt = 0
		return out, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
	}
	return out, nil
}

func (r *Runner) attempt(ctx context.Context, out *Outcome, stage Stage, spec StageSpec, req Request, set *SpeciesSet) (*State, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	began := now()
	st, err := r.Solver.Equilibrate(ctx, set, req)
	if err == nil && st == nil {
		err = &ConvergenceError{Mode: spec.Mode, Method: spec.Options.Method, Message: "solver returned no state"}
	}

	a := Attempt{
		Stage:     stage,
		Mode:      spec.Mode,
		Method:    spec.Options.Method,
		Converged: err == nil,
		Duration:  now().Sub(began),
	}
	if err != nil {
		a.Error = err.Error()
	}
	out.Attempts = append(out.Attempts, a)
	if r.Observer != nil {
		r.Observer.ObserveAttempt(a)
	}
	return st, err
}
