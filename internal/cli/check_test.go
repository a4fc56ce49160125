package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")
	goldenDir    = filepath.Join("..", "harness", "testdata", "golden")
)

const failingScenario = `name: wrong_temperature
description: "Asserts a flame temperature the script never produces"
recipe:
  composition:
    Ammonium Nitrate: 80
    Magnesium: 20
solver:
  reactant_enthalpy: -3.0e6
  steps:
    - converge: { temperature: 2200, gamma: 1.25, molecular_weight: 24 }
    - converge: { temperature: 2500, gamma: 1.2, molecular_weight: 25 }
assertions:
  - type: result
    field: t_flame_K
    value: 3000
`

func TestCheckMissingArgs(t *testing.T) {
	_, err := execRoot(t, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestCheckNonExistentDir(t *testing.T) {
	out, err := execRoot(t, "check", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "scenarios directory not found")
}

func TestCheckEmptyDir(t *testing.T) {
	out, err := execRoot(t, "check", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestCheckEmptyDirJSON(t *testing.T) {
	out, err := execRoot(t, "--format", "json", "check", t.TempDir())
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0.0, resp.Data.(map[string]any)["total"])
}

func TestCheckScenarios(t *testing.T) {
	out, err := execRoot(t, "check", scenariosDir, "--golden", goldenDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ tight_then_cached")
	assert.Contains(t, out, "✓ fallback_with_catalyst")
	assert.Contains(t, out, "0 failed")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestCheckFilter(t *testing.T) {
	out, err := execRoot(t, "--format", "json", "check", scenariosDir, "--filter", "tight*")
	require.NoError(t, err)

	data := decodeResponse(t, out).Data.(map[string]any)
	assert.Equal(t, 1.0, data["total"])
	assert.Equal(t, 1.0, data["passed"])
}

func TestCheckInvalidFilter(t *testing.T) {
	_, err := execRoot(t, "check", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCheckFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong_temperature.yaml", failingScenario)

	out, err := execRoot(t, "check", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_temperature")
	assert.Contains(t, out, "t_flame_K")
	assert.Contains(t, out, "1 failed")
}

func TestCheckFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong_temperature.yaml", failingScenario)
	writeFile(t, dir, "broken.yaml", "name: [unterminated\n")

	out, err := execRoot(t, "--format", "json", "check", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, 2.0, data["failed"])
}

func TestCheckGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	golden := filepath.Join(dir, "golden")
	require.NoError(t, os.MkdirAll(golden, 0755))

	src, err := os.ReadFile(filepath.Join(scenariosDir, "exhausted.yaml"))
	require.NoError(t, err)
	writeFile(t, dir, "exhausted.yaml", string(src))
	writeFile(t, golden, "exhausted.golden", `{"scenario_name":"exhausted","trace":[]}`)

	out, err := execRoot(t, "check", dir, "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "")
	writeFile(t, dir, "b.yml", "")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	writeFile(t, filepath.Join(dir, "nested"), "c.yaml", "")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml")}, files)
}
