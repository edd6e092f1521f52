package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	specsDir        = filepath.Join("..", "harness", "testdata", "specs")
	plansDir        = filepath.Join("..", "harness", "testdata", "plans")
	scenariosDir    = filepath.Join("..", "harness", "testdata", "scenarios")
	invalidSpecsDir = filepath.Join("..", "catalog", "testdata", "invalid")

	revenuePlan = filepath.Join(plansDir, "revenue.yaml")
)

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// decodeData decodes a successful JSON response's data into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// decodeError decodes an error JSON response.
func decodeError(t *testing.T, out string) CLIError {
	t.Helper()

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "error", resp.Status, out)
	require.NotNil(t, resp.Error)
	return *resp.Error
}
