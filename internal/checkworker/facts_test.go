package checkworker_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcheck/sigcheck/internal/checkworker"
)

func TestLoadFactsMissingSidecarIsNotAnError(t *testing.T) {
	facts, err := checkworker.LoadFacts(filepath.Join(t.TempDir(), "a.fx"))
	require.NoError(t, err)
	assert.Empty(t, facts.Checks)
}

func TestLoadFactsParsesSidecar(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.fx")
	sidecar := source + ".sigfacts.yaml"
	content := `
checks:
  - token: {line: 2, column: 3, lexeme: "foo"}
    sub: {kind: nominal, name: Int}
    sup: {kind: nominal, name: String}
`
	require.NoError(t, os.WriteFile(sidecar, []byte(content), 0o644))

	facts, err := checkworker.LoadFacts(source)
	require.NoError(t, err)
	require.Len(t, facts.Checks, 1)
	assert.Equal(t, 2, facts.Checks[0].Token.Line)
	assert.Equal(t, "foo", facts.Checks[0].Token.Lexeme)
}

func TestLoadFactsPropagatesMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.fx")
	sidecar := source + ".sigfacts.yaml"
	require.NoError(t, os.WriteFile(sidecar, []byte("checks: [not, valid, -"), 0o644))

	_, err := checkworker.LoadFacts(source)
	assert.Error(t, err)
}
