package simulate

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/diag"
	"github.com/roach88/ancpsim/internal/metrics"
	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/store"
	"github.com/roach88/ancpsim/internal/testutil"
	"github.com/roach88/ancpsim/internal/thermo"
)

func recipe(withCatalyst bool) *propellant.Recipe {
	comp := propellant.Composition{
		"Ammonium Nitrate":                65.0,
		"Potassium Nitrate":               5.0,
		"Magnesium":                       15.0,
		"Castor Oil":                      7.5,
		"Methylene Diphenyl Diisocyanate": 7.5,
	}
	if withCatalyst {
		comp["Ammonium Nitrate"] = 63.0
		comp["Ferric Oxide"] = 2.0
	}
	return &propellant.Recipe{Name: "ANCP-1", Composition: comp}
}

func converging() *testutil.ScriptedSolver {
	return testutil.NewScriptedSolver(-3.4e6,
		testutil.Converge(testutil.ProductState(2200, 1.25, 0.024)),
		testutil.Converge(testutil.ProductState(2500, 1.2, 0.025)))
}

func evaluator(solver *testutil.ScriptedSolver) *Evaluator {
	calc := thermo.NewCalculator(solver, nil)
	calc.Now = testutil.NewClock(time.Millisecond).Now
	return &Evaluator{Calculator: calc}
}

func input(r *propellant.Recipe) Input {
	return Input{
		Recipe:             r,
		Database:           propellant.DefaultDatabase(),
		Config:             &config.Loaded{Simulation: config.Default()},
		ChamberPressureBar: 70,
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"),
		store.WithIDGenerator(testutil.NewSequenceIDGenerator("run")),
		store.WithClock(testutil.NewClock(time.Second).Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEvaluate(t *testing.T) {
	solver := converging()
	rep, err := evaluator(solver).Evaluate(context.Background(), input(recipe(false)))
	require.NoError(t, err)

	assert.Equal(t, "ANCP-1", rep.Recipe.Name)
	assert.InDelta(t, -40.387, rep.Stoichiometry.OxygenBalance, 1e-3)
	assert.Nil(t, rep.Catalyst)
	assert.Equal(t, config.Default(), rep.Config)
	assert.InDelta(t, 3.5*math.Sqrt(7), rep.BurnRate, 1e-12)

	require.False(t, rep.Performance.Failed())
	assert.Equal(t, 2500.0, rep.Performance.TFlame)
	assert.Empty(t, rep.Diagnostics)
	assert.Empty(t, rep.InputHash, "no store, no hash")
	assert.Empty(t, rep.RunID)
}

func TestEvaluate_CatalystScalesBurnRate(t *testing.T) {
	base := config.Default()
	rep, err := evaluator(converging()).Evaluate(context.Background(), input(recipe(true)))
	require.NoError(t, err)

	require.NotNil(t, rep.Catalyst)
	assert.InDelta(t, base.BurnRate.A*base.Catalyst.FerricOxideMultiplier, rep.Config.BurnRate.A, 1e-12)
	assert.InDelta(t, rep.Config.BurnRate.A*math.Sqrt(7), rep.BurnRate, 1e-12)
	assert.Equal(t, []diag.Code{diag.CodeCatalystApplied}, rep.Diagnostics.Codes())
	assert.Equal(t, base, config.Default(), "shared default untouched")
}

func TestEvaluate_DiagnosticsMergeInOrder(t *testing.T) {
	in := input(recipe(true))
	in.Recipe.Composition["Magnesium"] = 14.0 // sums to 99
	in.Config.Diagnostics.Add(diag.Info(diag.CodeConfigDefaults, nil, "defaults"))

	solver := testutil.NewScriptedSolver(-3.4e6,
		testutil.Fail("tp"),
		testutil.Converge(testutil.ProductState(2500, 1.4, 0.025)))
	rep, err := evaluator(solver).Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []diag.Code{
		diag.CodeConfigDefaults,
		diag.CodeMassBalance,
		diag.CodeCatalystApplied,
		diag.CodeWarmStartFailed,
		diag.CodeGammaOutOfBand,
	}, rep.Diagnostics.Codes())
}

func TestEvaluate_UnknownIngredientAborts(t *testing.T) {
	solver := converging()
	r := &propellant.Recipe{Composition: propellant.Composition{"Unobtainium": 100}}

	rep, err := evaluator(solver).Evaluate(context.Background(), input(r))
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, propellant.ErrUnknownIngredient)
	assert.Equal(t, 0, solver.Calls())
}

func TestEvaluate_PerformanceFailureIsNotAnError(t *testing.T) {
	solver := testutil.NewScriptedSolver(-3.4e6)
	rep, err := evaluator(solver).Evaluate(context.Background(), input(recipe(false)))
	require.NoError(t, err)

	assert.Equal(t, thermo.CodeConvergenceFailure, rep.Performance.ErrorCode)
	assert.Equal(t, 0.0, rep.Performance.TFlame)
	assert.NotNil(t, rep.Stoichiometry)
}

func TestEvaluate_StoreAndCache(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	rec := metrics.New()

	solver := converging()
	ev := evaluator(solver)
	ev.Store = st
	ev.Metrics = rec

	first, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)
	assert.Equal(t, "run-0001", first.RunID)
	assert.Len(t, first.InputHash, 64)
	assert.False(t, first.Cached)
	calls := solver.Calls()

	second, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "run-0001", second.RunID)
	assert.Equal(t, first.InputHash, second.InputHash)
	assert.Equal(t, first.Performance.TFlame, second.Performance.TFlame)
	assert.Equal(t, calls, solver.Calls(), "solver not called for a cached result")
	assert.True(t, second.Diagnostics.Has(diag.CodeCachedResult))

	series, err := promtest.GatherAndCount(rec.Registry(), "ancp_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one converged, one cached")
}

func TestEvaluate_NoCache(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	ev := evaluator(converging())
	ev.Store = st
	_, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)

	ev.Calculator.Solver = converging()
	ev.NoCache = true
	rep, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)
	assert.False(t, rep.Cached)
	assert.Equal(t, "run-0002", rep.RunID)

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestEvaluate_SolverUpgradeMissesCache(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	ev := evaluator(converging())
	ev.Store = st
	ev.SolverID = "cantera 3.0.1 (python3)"
	first, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)

	solver := converging()
	ev.Calculator.Solver = solver
	ev.SolverID = "cantera 3.1.0 (python3)"
	second, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)

	assert.False(t, second.Cached)
	assert.NotEqual(t, first.InputHash, second.InputHash)
	assert.Equal(t, "run-0002", second.RunID)
	assert.Positive(t, solver.Calls())
}

func TestEvaluate_FailedRunsAreNotCached(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	ev := evaluator(testutil.NewScriptedSolver(-3.4e6))
	ev.Store = st
	first, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)
	require.True(t, first.Performance.Failed())

	solver := converging()
	ev.Calculator.Solver = solver
	second, err := ev.Evaluate(ctx, input(recipe(false)))
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.False(t, second.Performance.Failed())
	assert.Greater(t, solver.Calls(), 0)
}

func TestEvaluate_NilRecipe(t *testing.T) {
	_, err := evaluator(converging()).Evaluate(context.Background(), Input{})
	assert.Error(t, err)
}
