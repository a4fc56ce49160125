package thermo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/diag"
	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/formula"
	"github.com/roach88/ancpsim/internal/propellant"
)

// Validation bounds for a converged state.
const (
	// MinFlameTemperature is the lowest flame temperature (K, exclusive)
	// that indicates real combustion.
	MinFlameTemperature = 500.0

	// MaxMolecularWeight (g/mol) above which a warning is attached.
	MaxMolecularWeight = 50.0

	// Expected band for the specific-heat ratio. Values outside it are
	// flagged but not rejected.
	GammaBandLow  = 1.15
	GammaBandHigh = 1.35

	// MajorProductThreshold is the mole fraction above which a product is
	// reported.
	MajorProductThreshold = 0.02

	// DefaultChamberPressureBar is used when the caller has no preference.
	DefaultChamberPressureBar = 70.0
)

// Product is one major equilibrium product.
type Product struct {
	Name         string            `json:"name"`
	MoleFraction float64           `json:"mole_fraction"`
	Phase        equilibrium.Phase `json:"phase"`
}

// Result is the outcome of a performance evaluation. On failure Error and
// ErrorCode are set and TFlame is 0; Attempts and Diagnostics are still
// populated as far as the evaluation got.
type Result struct {
	TFlame                 float64 `json:"t_flame_K"`
	Gamma                  float64 `json:"gamma,omitempty"`
	ProductMolecularWeight float64 `json:"product_molecular_weight_g_mol,omitempty"`
	CStar                  float64 `json:"c_star_m_s,omitempty"`
	CfVacuum               float64 `json:"cf_vacuum,omitempty"`
	IspIdeal               float64 `json:"isp_vacuum_sec_ideal,omitempty"`
	IspDelivered           float64 `json:"isp_vacuum_sec_delivered,omitempty"`

	ChamberPressureBar float64 `json:"chamber_pressure_bar"`
	InitialEnthalpy    float64 `json:"initial_enthalpy_J_kg,omitempty"`

	MajorProducts  []Product             `json:"major_products,omitempty"`
	ConvergedStage string                `json:"converged_stage,omitempty"`
	Attempts       []equilibrium.Attempt `json:"attempts,omitempty"`
	Diagnostics    diag.List             `json:"diagnostics,omitempty"`

	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
}

// Failed reports whether r is the error variant.
func (r *Result) Failed() bool {
	return r.ErrorCode != ""
}

// Err returns the failure as an *Error, or nil.
func (r *Result) Err() error {
	if !r.Failed() {
		return nil
	}
	return &Error{Code: r.ErrorCode, Message: r.Error}
}

func (r *Result) fail(err *Error) *Result {
	r.TFlame = 0
	r.Gamma = 0
	r.ProductMolecularWeight = 0
	r.CStar = 0
	r.CfVacuum = 0
	r.IspIdeal = 0
	r.IspDelivered = 0
	r.MajorProducts = nil
	r.Error = err.Message
	r.ErrorCode = err.Code
	return r
}

// Calculator evaluates recipes against an equilibrium solver.
type Calculator struct {
	Solver   equilibrium.Solver
	Catalog  *equilibrium.Catalog
	Policy   equilibrium.Policy
	Logger   *slog.Logger
	Observer equilibrium.Observer

	// Now times solver attempts. Defaults to time.Now.
	Now func() time.Time
}

// NewCalculator creates a calculator with the bundled catalog and the
// default staged policy.
func NewCalculator(solver equilibrium.Solver, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Calculator{
		Solver:  solver,
		Catalog: equilibrium.DefaultCatalog(),
		Policy:  equilibrium.DefaultPolicy(),
		Logger:  logger,
	}
}

// Calculate evaluates comp at the given chamber pressure (bar). Only the
// efficiencies of cfg are used here; the catalyst rule is applied by the
// caller beforehand.
func (c *Calculator) Calculate(ctx context.Context, comp propellant.Composition, db propellant.Database, cfg config.Simulation, pcBar float64) (res *Result) {
	res = &Result{ChamberPressureBar: pcBar}
	logger := c.logger()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("performance evaluation panicked", "panic", p)
			res.fail(newError(CodeSolverError, nil, "internal failure: %v", p))
		}
	}()

	if !(pcBar > 0) || math.IsInf(pcBar, 0) {
		return res.fail(newError(CodeInvalidInput, nil, "chamber pressure must be positive, got %v bar", pcBar))
	}

	set, reactants, err := BuildProblem(comp, db, c.Catalog, pcBar)
	if err != nil {
		return res.fail(classifyInput(err))
	}

	runner := &equilibrium.Runner{
		Solver:   c.Solver,
		Policy:   c.Policy,
		Logger:   logger,
		Observer: c.Observer,
		Now:      c.Now,
	}
	logger.Debug("starting equilibrium", "pc_bar", pcBar, "reactants", len(set.Reactants))

	out, err := runner.Run(ctx, equilibrium.Problem{Set: set, Reactants: reactants})
	if out != nil {
		res.Attempts = out.Attempts
		res.InitialEnthalpy = out.Enthalpy
		if out.WarmStartFailed {
			res.Diagnostics.Add(diag.Info(diag.CodeWarmStartFailed,
				map[string]float64{"temperature_K": c.Policy.WarmStartTemperature},
				"warm start at %g K did not converge; equilibrated from the reactant mixture", c.Policy.WarmStartTemperature))
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, equilibrium.ErrExhausted):
			logger.Warn("equilibration failed at every stage", "error", err)
			return res.fail(newError(CodeConvergenceFailure, err, "equilibration failed: %v", err))
		default:
			logger.Warn("solver error", "error", err)
			return res.fail(newError(CodeSolverError, err, "%v", err))
		}
	}
	if out.State == nil {
		logger.Error("equilibrium finished without a state", "final", out.Final)
		return res.fail(newError(CodeConvergenceFailure, nil, "equilibration produced no converged state"))
	}
	res.ConvergedStage = out.ConvergedAt.String()

	if verr := c.derive(res, out.State, cfg); verr != nil {
		logger.Warn("converged state rejected", "code", verr.Code, "error", verr.Message)
		return res.fail(verr)
	}
	return res
}

// derive validates st and fills the performance fields of res.
func (c *Calculator) derive(res *Result, st *equilibrium.State, cfg config.Simulation) *Error {
	tFlame := st.Temperature
	mwG := st.MeanMolecularWeight * 1000

	if !(tFlame > MinFlameTemperature) {
		return newError(CodePhysicallyImplausible, nil,
			"flame temperature too low (%.0f K): combustion did not occur", tFlame)
	}
	if mwG > MaxMolecularWeight {
		res.Diagnostics.Add(diag.Warning(diag.CodeHighMolecularWeight,
			map[string]float64{"molecular_weight_g_mol": mwG},
			"high product molecular weight (%.1f g/mol)", mwG))
	}
	if !(st.CvMass > 0) {
		return newError(CodeInvalidThermalState, nil, "invalid cv_mass: %v", st.CvMass)
	}
	gamma := st.CpMass / st.CvMass
	if !(gamma > 1) {
		return newError(CodeInvalidGamma, nil, "invalid gamma: %.4f", gamma)
	}
	if gamma < GammaBandLow || gamma > GammaBandHigh {
		res.Diagnostics.Add(diag.Warning(diag.CodeGammaOutOfBand,
			map[string]float64{"gamma": gamma},
			"gamma (%.4f) outside typical range %.2f-%.2f", gamma, GammaBandLow, GammaBandHigh))
	}
	if !(st.MeanMolecularWeight > 0) {
		return newError(CodeInvalidThermalState, nil, "invalid mean molecular weight: %v", st.MeanMolecularWeight)
	}

	perf := Derive(tFlame, gamma, st.MeanMolecularWeight)
	res.TFlame = tFlame
	res.Gamma = gamma
	res.ProductMolecularWeight = mwG
	res.CStar = perf.CStar
	res.CfVacuum = perf.CfVacuum
	res.IspIdeal = perf.IspIdeal
	res.IspDelivered = perf.IspIdeal * cfg.Efficiencies.Product()
	res.MajorProducts = MajorProducts(st.MoleFractions)
	return nil
}

func (c *Calculator) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// BuildProblem turns a recipe into the solver's reactant species set and
// the unburned mixture at the reference temperature and pcBar. Ingredients
// at zero percent are left out.
func BuildProblem(comp propellant.Composition, db propellant.Database, catalog *equilibrium.Catalog, pcBar float64) (*equilibrium.SpeciesSet, equilibrium.Mixture, error) {
	set := &equilibrium.SpeciesSet{Catalog: catalog}
	fractions := make(map[string]float64, len(comp))

	for _, name := range comp.Names() {
		pct := comp[name]
		if pct < 0 || math.IsNaN(pct) {
			return nil, equilibrium.Mixture{}, fmt.Errorf("ingredient %q: invalid percent %v", name, pct)
		}
		if pct == 0 {
			continue
		}
		rec, err := db.Lookup(name)
		if err != nil {
			return nil, equilibrium.Mixture{}, err
		}
		counts, err := formula.Parse(rec.Formula)
		if err != nil {
			return nil, equilibrium.Mixture{}, fmt.Errorf("ingredient %q: %w", rec.Name, err)
		}
		sp := equilibrium.NewReactant(rec.Name, counts, rec.EnthalpyFormation)
		set.Reactants = append(set.Reactants, sp)
		fractions[sp.Name] += pct / 100
	}
	if len(set.Reactants) == 0 {
		return nil, equilibrium.Mixture{}, errors.New("recipe has no ingredients with a positive percentage")
	}

	return set, equilibrium.Mixture{
		Temperature:   equilibrium.ReferenceTemperature,
		Pressure:      pcBar * 1e5,
		MassFractions: fractions,
	}, nil
}

func classifyInput(err error) *Error {
	if errors.Is(err, propellant.ErrUnknownIngredient) {
		return newError(CodeUnknownIngredient, err, "%v", err)
	}
	return newError(CodeInvalidInput, err, "%v", err)
}

// MajorProducts returns the species whose mole fraction exceeds
// MajorProductThreshold, largest first.
func MajorProducts(moleFractions map[string]float64) []Product {
	var out []Product
	for name, x := range moleFractions {
		if x <= MajorProductThreshold {
			continue
		}
		phase := equilibrium.PhaseGas
		if equilibrium.IsCondensedName(name) {
			phase = equilibrium.PhaseCondensed
		}
		out = append(out, Product{Name: name, MoleFraction: x, Phase: phase})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MoleFraction != out[j].MoleFraction {
			return out[i].MoleFraction > out[j].MoleFraction
		}
		return out[i].Name < out[j].Name
	})
	return out
}
