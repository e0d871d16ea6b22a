package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	ordersTopology  = "../harness/testdata/topologies/orders.cue"
	counterTopology = "../harness/testdata/topologies/counter.cue"
	scenariosDir    = "../harness/testdata/scenarios"
	goldenDir       = "../harness/testdata/golden"
)

const ordersFacts = `facts:
  - name: OrderPlaced
    payload: {order_id: A-100, total: 420.0}
  - name: OrderPlaced
    payload: {order_id: B-200, total: 640.0}
`

// runCLI executes the root command and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// jsonResponse is CLIResponse with the payload left undecoded.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out string, data any) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

// emitOrders records the orders emission into dbPath with sequential ids.
func emitOrders(t *testing.T, dbPath string) {
	t.Helper()
	facts := writeFile(t, t.TempDir(), "facts.yaml", ordersFacts)
	_, stderr, code := runCLI(t, "emit", ordersTopology,
		"--facts", facts, "--db", dbPath,
		"--id-prefix", "fact", "--now", "2024-01-01T00:00:00Z")
	require.Equal(t, ExitSuccess, code, stderr)
}
