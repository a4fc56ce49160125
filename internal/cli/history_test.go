package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryEmpty(t *testing.T) {
	out, err := execRoot(t, "history", "--db", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestHistoryEmptyJSON(t *testing.T) {
	out, err := execRoot(t, "--format", "json", "history", "--db", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{}, resp.Data)
}

func TestHistoryListsRuns(t *testing.T) {
	dir := t.TempDir()
	recipe := writeFile(t, dir, "recipe.json", ancpRecipe)
	db := filepath.Join(dir, "runs.db")

	_, err := execSimulate(t, "text", converging(), recipe, "--db", db)
	require.NoError(t, err)
	_, err = execSimulate(t, "text", exhausted(), recipe, "--db", db, "--pc", "50")
	require.Error(t, err)

	out, err := execRoot(t, "--format", "json", "history", "--db", db)
	require.NoError(t, err)
	runs := decodeResponse(t, out).Data.([]any)
	require.Len(t, runs, 2)

	statuses := map[string]bool{}
	for _, r := range runs {
		run := r.(map[string]any)
		assert.Equal(t, "ANCP-1", run["propellant_name"])
		statuses[run["status"].(string)] = true
	}
	assert.Equal(t, map[string]bool{"converged": true, "failed": true}, statuses)

	out, err = execRoot(t, "history", "--db", db, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "PROPELLANT")
	assert.Contains(t, out, "ANCP-1")
}

func TestHistoryRequiresDB(t *testing.T) {
	_, err := execRoot(t, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestHistoryNegativeLimit(t *testing.T) {
	_, err := execRoot(t, "history", "--db", filepath.Join(t.TempDir(), "runs.db"), "--limit", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
