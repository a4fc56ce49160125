// Package cantera implements equilibrium.Solver on top of the Cantera
// Python package.
//
// Every call starts a short-lived interpreter running an embedded helper
// script. The request travels as one JSON document on stdin and the reply
// comes back as one JSON document on stdout, so no state survives between
// calls.
package cantera

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/roach88/ancpsim/internal/equilibrium"
)

//go:embed helper.py
var helperScript string

// DefaultPython is the interpreter used when none is configured.
const DefaultPython = "python3"

// ErrUnavailable is returned when the interpreter or the cantera package
// cannot be found.
var ErrUnavailable = errors.New("cantera unavailable")

// Exec runs the helper with the given stdin and returns its stdout.
type Exec func(ctx context.Context, stdin []byte) ([]byte, error)

// Solver talks to Cantera through Exec.
type Solver struct {
	exec   Exec
	python string
	logger *slog.Logger
}

var _ equilibrium.Solver = (*Solver)(nil)

// New creates a solver that runs the helper with the given interpreter.
func New(python string, logger *slog.Logger) *Solver {
	if python == "" {
		python = DefaultPython
	}
	s := NewWithExec(CommandExec(python), logger)
	s.python = python
	return s
}

// NewWithExec creates a solver with a custom transport.
func NewWithExec(run Exec, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Solver{exec: run, logger: logger}
}

// CommandExec returns an Exec that runs `python -c <helper>`.
func CommandExec(python string) Exec {
	return func(ctx context.Context, stdin []byte) ([]byte, error) {
		cmd := exec.CommandContext(ctx, python, "-c", helperScript)
		cmd.Stdin = bytes.NewReader(stdin)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, exec.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, python)
			}
			msg := strings.TrimSpace(stderr.String())
			return nil, fmt.Errorf("%s helper: %w: %s", python, err, msg)
		}
		return stdout.Bytes(), nil
	}
}

type request struct {
	Op       string                  `json:"op"`
	Species  *equilibrium.SpeciesSet `json:"species,omitempty"`
	Mixture  *equilibrium.Mixture    `json:"mixture,omitempty"`
	Mode     equilibrium.Mode        `json:"mode,omitempty"`
	Enthalpy float64                 `json:"h"`
	Options  *equilibrium.Options    `json:"options,omitempty"`
}

type response struct {
	OK      bool               `json:"ok"`
	Kind    string             `json:"kind"`
	Error   string             `json:"error"`
	H       *float64           `json:"h"`
	State   *equilibrium.State `json:"state"`
	Version string             `json:"version"`
}

// Enthalpy implements equilibrium.Solver.
func (s *Solver) Enthalpy(ctx context.Context, set *equilibrium.SpeciesSet, mix equilibrium.Mixture) (float64, error) {
	resp, err := s.call(ctx, request{Op: "enthalpy", Species: set, Mixture: &mix})
	if err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, s.failure(resp, "", "")
	}
	if resp.H == nil {
		return 0, errors.New("cantera helper: enthalpy missing from reply")
	}
	return *resp.H, nil
}

// Equilibrate implements equilibrium.Solver.
func (s *Solver) Equilibrate(ctx context.Context, set *equilibrium.SpeciesSet, req equilibrium.Request) (*equilibrium.State, error) {
	s.logger.Debug("cantera equilibrate",
		"mode", req.Mode,
		"method", req.Options.Method,
		"T0", req.Mixture.Temperature)

	mix := req.Mixture
	opts := req.Options
	resp, err := s.call(ctx, request{
		Op:       "equilibrate",
		Species:  set,
		Mixture:  &mix,
		Mode:     req.Mode,
		Enthalpy: req.Enthalpy,
		Options:  &opts,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, s.failure(resp, req.Mode, req.Options.Method)
	}
	if resp.State == nil {
		return nil, &equilibrium.ConvergenceError{Mode: req.Mode, Method: req.Options.Method, Message: "no state in reply"}
	}
	return resp.State, nil
}

// Version reports the Cantera package version.
func (s *Solver) Version(ctx context.Context) (string, error) {
	resp, err := s.call(ctx, request{Op: "version"})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", s.failure(resp, "", "")
	}
	return resp.Version, nil
}

// Identity names the Cantera release and interpreter behind s. Stored runs
// are keyed on it, so upgrading either invalidates cached results. A failed
// version lookup is reported as "unknown".
func (s *Solver) Identity(ctx context.Context) string {
	v, err := s.Version(ctx)
	if err != nil {
		s.logger.Debug("cantera version lookup failed", "error", err)
		v = "unknown"
	}
	if s.python == "" {
		return "cantera " + v
	}
	return fmt.Sprintf("cantera %s (%s)", v, s.python)
}

func (s *Solver) call(ctx context.Context, req request) (*response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode cantera request: %w", err)
	}
	out, err := s.exec(ctx, payload)
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return nil, fmt.Errorf("decode cantera reply: %w", err)
	}
	return &resp, nil
}

func (s *Solver) failure(resp *response, mode equilibrium.Mode, method equilibrium.Method) error {
	switch resp.Kind {
	case "unavailable":
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Error)
	case "convergence":
		return &equilibrium.ConvergenceError{Mode: mode, Method: method, Message: resp.Error}
	default:
		return fmt.Errorf("cantera: %s", resp.Error)
	}
}
