package checkworker_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sigcheck/sigcheck/internal/checkworker"
	"github.com/sigcheck/sigcheck/internal/rpc"
)

func runWorker(t *testing.T, kind checkworker.Kind, env *checkworker.Environment, in []rpc.Message) []rpc.Message {
	t.Helper()
	var inBuf bytes.Buffer
	writer := rpc.NewWriter(&inBuf)
	for _, msg := range in {
		require.NoError(t, writer.WriteMessage(msg))
	}

	var outBuf bytes.Buffer
	w := checkworker.New(kind, 0, env, &inBuf, &outBuf, zaptest.NewLogger(t))
	require.NoError(t, w.Run())

	reader := rpc.NewReader(&outBuf)
	var out []rpc.Message
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			break
		}
		out = append(out, msg)
	}
	return out
}

func TestWorkerHoverRepliesWithEmptyResult(t *testing.T) {
	req := rpc.NewRequest(1, "textDocument/hover", map[string]interface{}{
		"textDocument": map[string]string{"uri": "file:///a.fx"},
	})
	out := runWorker(t, checkworker.Interaction, newEnv(), []rpc.Message{req})
	require.Len(t, out, 1)
	assert.True(t, out[0].IsResponse())
	assert.EqualValues(t, 1, out[0].ID)
}

func TestWorkerWorkspaceSymbolRepliesWithEmptyArray(t *testing.T) {
	req := rpc.NewRequest(2, "workspace/symbol", map[string]string{"query": "Foo"})
	out := runWorker(t, checkworker.Interaction, newEnv(), []rpc.Message{req})
	require.Len(t, out, 1)
	assert.Equal(t, "[]", string(out[0].Result))
}

func TestWorkerTypecheckStartPublishesDiagnosticsAndUpdate(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.fx")
	require.NoError(t, os.WriteFile(source, []byte("dummy"), 0o644))
	sidecar := source + ".sigfacts.yaml"
	content := `
checks:
  - token: {line: 1, column: 1, lexeme: "x"}
    sub: {kind: nominal, name: Int}
    sup: {kind: nominal, name: String}
`
	require.NoError(t, os.WriteFile(sidecar, []byte(content), 0o644))

	req := rpc.NewNotification("$/steep/typecheck_start", map[string]interface{}{
		"guid":  "g1",
		"paths": []string{"file://" + source},
	})
	out := runWorker(t, checkworker.Code, newEnv(), []rpc.Message{req})
	require.Len(t, out, 2)
	assert.Equal(t, "textDocument/publishDiagnostics", out[0].Method)
	assert.Contains(t, string(out[0].Params), "type_mismatch")
	assert.Equal(t, "$/steep/typecheck_update", out[1].Method)
	assert.Contains(t, string(out[1].Params), "g1")
}

func TestWorkerShutdownAcks(t *testing.T) {
	req := rpc.NewRequest(9, "shutdown", nil)
	out := runWorker(t, checkworker.Signature, newEnv(), []rpc.Message{req})
	require.Len(t, out, 1)
	assert.True(t, out[0].IsResponse())
}
