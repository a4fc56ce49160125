package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/testutil"
)

const ancpRecipe = `{
  "propellant_name": "ANCP-1",
  "composition": {
    "Ammonium Nitrate": 65,
    "Potassium Nitrate": 5,
    "Magnesium": 15,
    "Castor Oil": 7.5,
    "Methylene Diphenyl Diisocyanate": 7.5
  }
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func converging() *testutil.ScriptedSolver {
	return testutil.NewScriptedSolver(-3.4e6,
		testutil.Converge(testutil.ProductState(2200, 1.25, 0.024)),
		testutil.Converge(testutil.ProductState(2500, 1.2, 0.025)))
}

func exhausted() *testutil.ScriptedSolver {
	return testutil.NewScriptedSolver(-3.4e6,
		testutil.Fail("warm start"),
		testutil.Fail("tight"),
		testutil.Fail("relaxed"),
		testutil.Fail("fallback"))
}

// execSimulate runs the simulate command with a scripted solver and a
// configuration path that does not exist, so defaults apply.
func execSimulate(t *testing.T, format string, solver equilibrium.Solver, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts := &SimulateOptions{RootOptions: &RootOptions{Format: format}, Solver: solver}
	cmd := newSimulateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.ini")))
	err := cmd.Execute()
	return buf.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestSimulateJSON(t *testing.T) {
	recipe := writeFile(t, t.TempDir(), "recipe.json", ancpRecipe)

	out, err := execSimulate(t, "json", converging(), recipe)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.InDelta(t, 3.5*math.Sqrt(7), data["burn_rate_mm_s"], 1e-9)

	perf := data["performance"].(map[string]any)
	assert.Equal(t, 2500.0, perf["t_flame_K"])
	assert.Equal(t, "tight", perf["converged_stage"])
	assert.InDelta(t, 253.3617, perf["isp_vacuum_sec_delivered"], 1e-3)
	assert.NotContains(t, perf, "error_code")

	stoich := data["stoichiometry"].(map[string]any)
	assert.InDelta(t, -40.387, stoich["oxygen_balance_percent"], 1e-3)
}

func TestSimulateText(t *testing.T) {
	recipe := writeFile(t, t.TempDir(), "recipe.json", ancpRecipe)

	out, err := execSimulate(t, "text", converging(), recipe, "--pc", "70")
	require.NoError(t, err)

	assert.Contains(t, out, "ANCP-Sim")
	assert.Contains(t, out, "ANCP-1")
	assert.Contains(t, out, "Stoichiometry Results")
	assert.Contains(t, out, "2500")
	assert.Contains(t, out, "CONFIG_DEFAULTS")
}

func TestSimulatePerformanceFailure(t *testing.T) {
	recipe := writeFile(t, t.TempDir(), "recipe.json", ancpRecipe)

	out, err := execSimulate(t, "json", exhausted(), recipe)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePerformance, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "SOLVER_CONVERGENCE_FAILURE")

	require.NotNil(t, resp.Data, "the report is still delivered")
	perf := resp.Data.(map[string]any)["performance"].(map[string]any)
	assert.Equal(t, "SOLVER_CONVERGENCE_FAILURE", perf["error_code"])
	assert.Equal(t, 0.0, perf["t_flame_K"])
}

func TestSimulatePerformanceFailureText(t *testing.T) {
	recipe := writeFile(t, t.TempDir(), "recipe.json", ancpRecipe)

	out, err := execSimulate(t, "text", exhausted(), recipe)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "SOLVER_CONVERGENCE_FAILURE")
}

func TestSimulateMissingRecipe(t *testing.T) {
	out, err := execSimulate(t, "json", converging(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestSimulateInvalidRecipe(t *testing.T) {
	recipe := writeFile(t, t.TempDir(), "recipe.json", `{"composition": {"Magnesium": 150}}`)

	out, err := execSimulate(t, "json", converging(), recipe)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, ErrCodeInvalidFile, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Details)
}

func TestSimulateUnknownIngredient(t *testing.T) {
	recipe := writeFile(t, t.TempDir(), "recipe.json",
		`{"composition": {"Ammonium Nitrate": 80, "Unobtainium": 20}}`)

	solver := converging()
	out, err := execSimulate(t, "json", solver, recipe)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeUnknownIngredient, decodeResponse(t, out).Error.Code)
	assert.Zero(t, solver.Calls())
}

func TestSimulateStoreAndCache(t *testing.T) {
	dir := t.TempDir()
	recipe := writeFile(t, dir, "recipe.json", ancpRecipe)
	db := filepath.Join(dir, "runs.db")
	solver := converging()

	out, err := execSimulate(t, "json", solver, recipe, "--db", db)
	require.NoError(t, err)
	first := decodeResponse(t, out).Data.(map[string]any)
	assert.NotEmpty(t, first["run_id"])
	assert.NotContains(t, first, "cached")
	calls := solver.Calls()

	out, err = execSimulate(t, "json", solver, recipe, "--db", db)
	require.NoError(t, err)
	second := decodeResponse(t, out).Data.(map[string]any)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["run_id"], second["run_id"])
	assert.Equal(t, calls, solver.Calls(), "cached run does not call the solver")
}

func TestSimulateMetricsOut(t *testing.T) {
	dir := t.TempDir()
	recipe := writeFile(t, dir, "recipe.json", ancpRecipe)
	metricsPath := filepath.Join(dir, "ancp.prom")

	_, err := execSimulate(t, "text", converging(), recipe, "--metrics-out", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ancp_evaluations_total")
}

func TestSimulateMissingArgs(t *testing.T) {
	_, err := execSimulate(t, "text", converging())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
