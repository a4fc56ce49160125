package thermo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/diag"
	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/testutil"
)

func exampleRecipe() propellant.Composition {
	return propellant.Composition{
		"Ammonium Nitrate":                65.0,
		"Potassium Nitrate":               5.0,
		"Magnesium":                       15.0,
		"Castor Oil":                      7.5,
		"Methylene Diphenyl Diisocyanate": 7.5,
	}
}

func newCalculator(solver equilibrium.Solver) *Calculator {
	c := NewCalculator(solver, nil)
	c.Now = testutil.NewClock(time.Millisecond).Now
	return c
}

func warm() testutil.Step {
	return testutil.Converge(testutil.ProductState(2200, 1.25, 0.024))
}

func calculate(t *testing.T, solver equilibrium.Solver) *Result {
	t.Helper()
	c := newCalculator(solver)
	return c.Calculate(context.Background(), exampleRecipe(), propellant.DefaultDatabase(), config.Default(), DefaultChamberPressureBar)
}

func TestCalculate_Converged(t *testing.T) {
	solver := testutil.NewScriptedSolver(-3.43797e6, warm(), testutil.Converge(testutil.ProductState(2500, 1.2, 0.025)))
	res := calculate(t, solver)

	require.False(t, res.Failed(), res.Error)
	require.NoError(t, res.Err())

	assert.Equal(t, 2500.0, res.TFlame)
	assert.InDelta(t, 1.2, res.Gamma, 1e-12)
	assert.InDelta(t, 25.0, res.ProductMolecularWeight, 1e-9)
	assert.InDelta(t, 1406.003, res.CStar, 1e-3)
	assert.InDelta(t, 2.246578, res.CfVacuum, 1e-6)
	assert.InDelta(t, 322.097, res.IspIdeal, 1e-3)
	assert.Equal(t, res.IspIdeal*config.Default().Efficiencies.Product(), res.IspDelivered)
	assert.InDelta(t, 322.097*0.7866, res.IspDelivered, 1e-3)

	assert.Equal(t, 70.0, res.ChamberPressureBar)
	assert.Equal(t, -3.43797e6, res.InitialEnthalpy)
	assert.Equal(t, "tight", res.ConvergedStage)
	assert.Len(t, res.Attempts, 2)
	assert.Empty(t, res.Diagnostics)

	require.Len(t, res.MajorProducts, 5)
	assert.Equal(t, "H2O", res.MajorProducts[0].Name)
	assert.Equal(t, "H2", res.MajorProducts[1].Name)
	last := res.MajorProducts[4]
	assert.Equal(t, "MgO(l)", last.Name)
	assert.Equal(t, equilibrium.PhaseCondensed, last.Phase)

	// unburned mixture handed to the solver
	warmReq := solver.Requests[0]
	assert.Equal(t, 70e5, warmReq.Mixture.Pressure)
	assert.InDelta(t, 0.65, warmReq.Mixture.MassFractions["Ammonium_Nitrate"], 1e-12)
	assert.InDelta(t, 0.075, warmReq.Mixture.MassFractions["Methylene_Diphenyl_Diisocyanate"], 1e-12)
}

func TestCalculate_AllStagesFail(t *testing.T) {
	solver := testutil.NewScriptedSolver(-3.4e6,
		testutil.Fail("warm"), testutil.Fail("tight"), testutil.Fail("relaxed"), testutil.Fail("fallback"))

	var res *Result
	require.NotPanics(t, func() { res = calculate(t, solver) })

	assert.True(t, res.Failed())
	assert.Equal(t, CodeConvergenceFailure, res.ErrorCode)
	assert.Equal(t, 0.0, res.TFlame)
	assert.NotEmpty(t, res.Error)
	assert.Len(t, res.Attempts, 4)
	assert.Empty(t, res.ConvergedStage)
	assert.True(t, IsConvergenceFailure(res.Err()))
	assert.True(t, res.Diagnostics.Has(diag.CodeWarmStartFailed))
}

func TestCalculate_FallbackFailureAfterWarmStart(t *testing.T) {
	solver := testutil.NewScriptedSolver(-3.4e6,
		testutil.Converge(testutil.ProductState(2200, 1.25, 0.024)),
		testutil.Fail("tight"), testutil.Fail("relaxed"), testutil.Fail("fallback"))

	var res *Result
	require.NotPanics(t, func() { res = calculate(t, solver) })

	assert.Equal(t, CodeConvergenceFailure, res.ErrorCode)
	assert.NotEqual(t, CodeSolverError, res.ErrorCode)
	assert.Len(t, res.Attempts, 4)
	assert.Empty(t, res.ConvergedStage)
	assert.False(t, res.Diagnostics.Has(diag.CodeWarmStartFailed))
}

func TestCalculate_StateValidation(t *testing.T) {
	tests := []struct {
		name  string
		state *equilibrium.State
		code  ErrorCode
	}{
		{
			name:  "cold flame",
			state: testutil.ProductState(450, 1.2, 0.025),
			code:  CodePhysicallyImplausible,
		},
		{
			name:  "exactly 500 K",
			state: testutil.ProductState(500, 1.2, 0.025),
			code:  CodePhysicallyImplausible,
		},
		{
			name:  "zero cv",
			state: &equilibrium.State{Temperature: 2500, MeanMolecularWeight: 0.025, CpMass: 2000, CvMass: 0},
			code:  CodeInvalidThermalState,
		},
		{
			name:  "negative cv",
			state: &equilibrium.State{Temperature: 2500, MeanMolecularWeight: 0.025, CpMass: 2000, CvMass: -5},
			code:  CodeInvalidThermalState,
		},
		{
			name:  "gamma of one",
			state: &equilibrium.State{Temperature: 2500, MeanMolecularWeight: 0.025, CpMass: 1500, CvMass: 1500},
			code:  CodeInvalidGamma,
		},
		{
			name:  "zero molecular weight",
			state: &equilibrium.State{Temperature: 2500, MeanMolecularWeight: 0, CpMass: 2000, CvMass: 1650},
			code:  CodeInvalidThermalState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solver := testutil.NewScriptedSolver(-3.4e6, warm(), testutil.Converge(tt.state))
			res := calculate(t, solver)

			assert.Equal(t, tt.code, res.ErrorCode)
			assert.Equal(t, 0.0, res.TFlame)
			assert.Zero(t, res.IspDelivered)
			assert.Nil(t, res.MajorProducts)
			assert.Equal(t, "tight", res.ConvergedStage)
		})
	}
}

func TestCalculate_Warnings(t *testing.T) {
	tests := []struct {
		name  string
		state *equilibrium.State
		code  diag.Code
	}{
		{"gamma above band", testutil.ProductState(2500, 1.4, 0.025), diag.CodeGammaOutOfBand},
		{"gamma below band", testutil.ProductState(2500, 1.1, 0.025), diag.CodeGammaOutOfBand},
		{"heavy products", testutil.ProductState(2500, 1.2, 0.055), diag.CodeHighMolecularWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solver := testutil.NewScriptedSolver(-3.4e6, warm(), testutil.Converge(tt.state))
			res := calculate(t, solver)

			require.False(t, res.Failed(), res.Error)
			assert.Equal(t, []diag.Code{tt.code}, res.Diagnostics.Codes())
			assert.Equal(t, diag.SeverityWarning, res.Diagnostics[0].Severity)
			assert.Greater(t, res.IspDelivered, 0.0)
		})
	}
}

func TestCalculate_WarmStartFailureIsDiagnostic(t *testing.T) {
	solver := testutil.NewScriptedSolver(-3.4e6, testutil.Fail("tp"), testutil.Converge(testutil.ProductState(2500, 1.2, 0.025)))
	res := calculate(t, solver)

	require.False(t, res.Failed())
	assert.Equal(t, []diag.Code{diag.CodeWarmStartFailed}, res.Diagnostics.Codes())
	assert.Equal(t, diag.SeverityInfo, res.Diagnostics[0].Severity)
}

func TestCalculate_InputErrors(t *testing.T) {
	db := propellant.DefaultDatabase()
	tests := []struct {
		name string
		comp propellant.Composition
		pc   float64
		code ErrorCode
	}{
		{"unknown ingredient", propellant.Composition{"Unobtainium": 100}, 70, CodeUnknownIngredient},
		{"zero pressure", exampleRecipe(), 0, CodeInvalidInput},
		{"negative pressure", exampleRecipe(), -3, CodeInvalidInput},
		{"empty recipe", propellant.Composition{}, 70, CodeInvalidInput},
		{"only zero percentages", propellant.Composition{"Magnesium": 0}, 70, CodeInvalidInput},
		{"negative percentage", propellant.Composition{"Magnesium": -5}, 70, CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solver := testutil.NewScriptedSolver(0)
			c := newCalculator(solver)

			res := c.Calculate(context.Background(), tt.comp, db, config.Default(), tt.pc)
			assert.Equal(t, tt.code, res.ErrorCode)
			assert.Equal(t, 0.0, res.TFlame)
			assert.Equal(t, 0, solver.Calls(), "solver is not reached")
		})
	}
}

func TestCalculate_SolverErrors(t *testing.T) {
	t.Run("reactant enthalpy", func(t *testing.T) {
		solver := testutil.NewScriptedSolver(0, warm())
		solver.EnthalpyErr = errors.New("species AN has no thermo")
		res := calculate(t, solver)

		assert.Equal(t, CodeSolverError, res.ErrorCode)
		assert.Contains(t, res.Error, "reactant enthalpy")
		assert.Len(t, res.Attempts, 0, "outcome is dropped with the error")
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := newCalculator(testutil.NewScriptedSolver(0))
		res := c.Calculate(ctx, exampleRecipe(), propellant.DefaultDatabase(), config.Default(), 70)
		assert.Equal(t, CodeSolverError, res.ErrorCode)
		assert.Contains(t, res.Error, "canceled")
	})

	t.Run("nil solver does not panic", func(t *testing.T) {
		c := newCalculator(nil)
		var res *Result
		require.NotPanics(t, func() {
			res = c.Calculate(context.Background(), exampleRecipe(), propellant.DefaultDatabase(), config.Default(), 70)
		})
		assert.Equal(t, CodeSolverError, res.ErrorCode)
	})
}

func TestCalculate_ZeroEfficienciesCountAsOne(t *testing.T) {
	solver := testutil.NewScriptedSolver(-3.4e6, warm(), testutil.Converge(testutil.ProductState(2500, 1.2, 0.025)))
	cfg := config.Default()
	cfg.Efficiencies = config.Efficiencies{}

	c := newCalculator(solver)
	res := c.Calculate(context.Background(), exampleRecipe(), propellant.DefaultDatabase(), cfg, 70)

	require.False(t, res.Failed())
	assert.Equal(t, res.IspIdeal, res.IspDelivered)
}

func TestBuildProblem(t *testing.T) {
	comp := propellant.Composition{"Ammonium Nitrate": 70, "Magnesium": 30, "Ferric Oxide": 0}
	set, mix, err := BuildProblem(comp, propellant.DefaultDatabase(), equilibrium.DefaultCatalog(), 50)
	require.NoError(t, err)

	assert.Equal(t, []string{"Ammonium_Nitrate", "Magnesium"}, set.ReactantNames())
	assert.NotNil(t, set.Catalog)
	assert.Equal(t, equilibrium.ReferenceTemperature, mix.Temperature)
	assert.Equal(t, 50e5, mix.Pressure)
	assert.Equal(t, map[string]float64{"Ammonium_Nitrate": 0.7, "Magnesium": 0.3}, mix.MassFractions)
}

func TestBuildProblem_BadFormula(t *testing.T) {
	db := propellant.NewDatabase(map[string]propellant.Ingredient{
		"Mystery": {Formula: "C2(H", MolecularWeight: 10},
	})
	_, _, err := BuildProblem(propellant.Composition{"Mystery": 100}, db, nil, 70)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidInput, classifyInput(err).Code)
}

func TestMajorProducts(t *testing.T) {
	got := MajorProducts(map[string]float64{
		"N2":     0.2,
		"CO":     0.2,
		"H2O":    0.5,
		"MgO(s)": 0.08,
		"OH":     0.02,
		"H":      0.001,
	})
	require.Len(t, got, 4)
	assert.Equal(t, []string{"H2O", "CO", "N2", "MgO(s)"}, []string{got[0].Name, got[1].Name, got[2].Name, got[3].Name})
	assert.Equal(t, equilibrium.PhaseGas, got[0].Phase)
	assert.Equal(t, equilibrium.PhaseCondensed, got[3].Phase)

	assert.Empty(t, MajorProducts(nil))
}

func TestErrorHelpers(t *testing.T) {
	err := newError(CodePhysicallyImplausible, nil, "too cold")
	assert.Equal(t, "PHYSICALLY_IMPLAUSIBLE: too cold", err.Error())
	assert.True(t, IsPhysicallyImplausible(err))
	assert.False(t, IsConvergenceFailure(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))

	wrapped := newError(CodeConvergenceFailure, equilibrium.ErrExhausted, "x")
	assert.ErrorIs(t, wrapped, equilibrium.ErrExhausted)
}
