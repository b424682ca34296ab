package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const kycYAML = `nodes:
  - id: collect
    kind: level
    data:
      label: Collect User Data
      levelName: Identity
  - id: risk
    kind: condition
    data:
      label: Risk Assessment
      branches:
        - name: High Risk
          condition: riskScore >= 70
  - id: review
    kind: action
    data:
      label: Manual Review
  - id: approve
    kind: action
    data:
      label: Auto-Approve
edges:
  - source: collect
    target: risk
  - source: risk
    target: review
    branchTag: branch-0
  - source: risk
    target: approve
    branchTag: else
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_YAMLOutput(t *testing.T) {
	path := writeFile(t, "kyc.yaml", kycYAML)

	out, err := execute(t, "", "run", path, "--context", `{"riskScore": 85}`)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	result := doc["result"].(map[string]any)
	assert.Equal(t, "completed", result["status"])
	assert.Empty(t, result["steps"])
	summary := result["summary"].(map[string]any)
	assert.Equal(t, []any{"collect", "risk", "review"}, summary["visited_path"])
}

func TestRun_JSONDebugFromStdin(t *testing.T) {
	out, err := execute(t, kycYAML, "run", "-", "--format", "yaml", "--debug", "-o", "json", "--context", "riskScore: 5")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	steps := doc["result"].(map[string]any)["steps"].([]any)
	assert.Len(t, steps, 3)
	assert.Equal(t, "approve", steps[2].(map[string]any)["node_id"])
}

func TestRun_ContextFile(t *testing.T) {
	path := writeFile(t, "kyc.yaml", kycYAML)
	ctxFile := writeFile(t, "ctx.json", `{"riskScore": 90}`)

	out, err := execute(t, "", "run", path, "--context-file", ctxFile, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"review"`)
}

func TestRun_FailedRunPrintsTraceAndFails(t *testing.T) {
	path := writeFile(t, "loop.yaml", `nodes:
  - {id: a, kind: level}
  - {id: b, kind: level}
  - {id: c, kind: level}
edges:
  - {source: a, target: b}
  - {source: b, target: c}
  - {source: c, target: b}
`)
	out, err := execute(t, "", "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_detected")
	assert.Contains(t, out, "status: failed")
}

func TestRun_Errors(t *testing.T) {
	_, err := execute(t, "", "run", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read workflow")

	path := writeFile(t, "kyc.yaml", kycYAML)
	_, err = execute(t, "", "run", path, "--context", "[1, 2")
	assert.ErrorContains(t, err, "--context")

	_, err = execute(t, "", "run")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, "kyc.yaml", kycYAML)
	out, err := execute(t, "", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid: true")

	broken := writeFile(t, "broken.json", `{"nodes":[{"id":"a","kind":"level"}],"edges":[{"source":"a","target":"ghost"}]}`)
	out, err = execute(t, "", "validate", broken)
	assert.ErrorContains(t, err, "1 error(s)")
	assert.Contains(t, out, "node_not_found")
}

func TestDOTAndConvert(t *testing.T) {
	path := writeFile(t, "kyc.yaml", kycYAML)

	out, err := execute(t, "", "dot", path, "--name", "kyc")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "digraph kyc {"), out)
	assert.Contains(t, out, "diamond")

	dir := t.TempDir()
	target := filepath.Join(dir, "kyc.json")
	_, err = execute(t, "", "convert", path, "--to", "json", "--out", target)
	require.NoError(t, err)

	// The converted file runs the same way.
	out, err = execute(t, "", "run", target, "--context", `{"riskScore": 85}`, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"review"`)

	_, err = execute(t, "", "convert", path, "--to", "drawflow")
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	path := writeFile(t, "kyc.yaml", kycYAML)
	out, err := execute(t, "", "paths", path)
	require.NoError(t, err)
	assert.Contains(t, out, "start: collect")
	assert.Contains(t, out, "end nodes: review, approve")
	assert.Contains(t, out, "collect -> risk -> review")
	assert.Contains(t, out, "collect -> risk -> approve")

	out, err = execute(t, "", "paths", path, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "(stopped after 1 paths)")
}

func TestTemplates(t *testing.T) {
	out, err := execute(t, "", "templates", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "country-kyc")
	assert.Contains(t, out, "simple-linear")

	out, err = execute(t, "", "templates", "show", "multi-branch", "--format", "json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.NotEmpty(t, doc["nodes"])

	out, err = execute(t, "", "templates", "run", "country-kyc", "--context", `{"age": 16}`, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"reject-minor"`)

	_, err = execute(t, "", "templates", "run", "nope")
	assert.ErrorContains(t, err, "unknown template")
}
