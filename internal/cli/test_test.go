package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func runTestCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, context.Background(), append([]string{"test"}, args...)...)
}

func TestTest_HarnessScenariosMatchGolden(t *testing.T) {
	out, err := runTestCommand(t, harnessScenarios)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ offline_edits_converge\n")
	assert.Contains(t, out, "✓ clock_behind\n")
	assert.Contains(t, out, "✓ hub_over_http\n")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTest_Filter(t *testing.T) {
	out, err := runTestCommand(t, harnessScenarios, "--filter", "hub_*", "--format", "json")
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "hub_over_http", resp.Data.Scenarios[0].Name)
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := runTestCommand(t, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_EmptyDirectory(t *testing.T) {
	out, err := runTestCommand(t, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

const passingScenario = `name: pass
description: "one card reaches the other device"
devices: [a, b]
steps:
  - record:
      device: a
      stream: deck/x
      events:
        - {kind: card_added, card: c1, front: f, back: b}
  - sync: {local: b, remote: a}
assertions:
  - type: counts
    device: b
    stream: deck/x
    counts: {a: 1}
`

func writeScenario(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestTest_UpdateThenCompare(t *testing.T) {
	root := t.TempDir()
	scenarios := filepath.Join(root, "scenarios")
	writeScenario(t, scenarios, "pass.yaml", passingScenario)

	out, err := runTestCommand(t, scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ pass (no golden file)")

	out, err = runTestCommand(t, scenarios, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ pass (golden updated)")
	golden, err := os.ReadFile(filepath.Join(root, "golden", "pass.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario":"pass"`)

	out, err = runTestCommand(t, scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ pass\n")

	require.NoError(t, os.WriteFile(filepath.Join(root, "golden", "pass.golden"), []byte("{}"), 0o644))
	out, err = runTestCommand(t, scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTest_FailuresExitOne(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")
	writeScenario(t, dir, "wrong.yaml", `name: wrong
description: "expects more than was recorded"
devices: [a]
steps:
  - record:
      device: a
      stream: deck/x
      events:
        - {kind: card_added, card: c1}
assertions:
  - type: reviews
    device: a
    stream: deck/x
    reviews: 3
`)

	out, err := runTestCommand(t, dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "broken.yaml", resp.Data.Scenarios[0].Name)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "wrong", resp.Data.Scenarios[1].Name)
	assert.Contains(t, resp.Data.Scenarios[1].Errors[0], "Assertion failed: reviews")
}
