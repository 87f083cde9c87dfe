package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcheck/sigcheck/internal/config"
	"github.com/sigcheck/sigcheck/internal/diagnostics"
)

func TestLoadExpectationsParsesPerPathList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expectations.yaml")
	content := `
a.fx:
  - range:
      start: {line: 1, character: 2}
      end: {line: 1, character: 5}
    severity: 1
    code: type_mismatch
    message: "Int is not a subtype of String"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	exp, err := config.LoadExpectations(path)
	require.NoError(t, err)
	require.Len(t, exp["a.fx"], 1)
	assert.Equal(t, "type_mismatch", exp["a.fx"][0].Code)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	exp := config.Expectations{
		"a.fx": {{Code: "type_mismatch", Message: "boom", Severity: diagnostics.SeverityError}},
	}
	require.NoError(t, config.Save(path, exp))

	loaded, err := config.LoadExpectations(path)
	require.NoError(t, err)
	assert.Equal(t, exp, loaded)
}

func TestCompareClassifiesExpectedMissingAndUnexpected(t *testing.T) {
	expected := []config.ExpectedDiagnostic{
		{Code: "type_mismatch", Message: "matched", Severity: diagnostics.SeverityError},
		{Code: "arity_mismatch", Message: "never happens", Severity: diagnostics.SeverityError},
	}
	actual := []diagnostics.Diagnostic{
		{Code: "type_mismatch", Message: "matched", Severity: diagnostics.SeverityError},
		{Code: "missing_method", Message: "surprise", Severity: diagnostics.SeverityError},
	}

	cmp := config.Compare(expected, actual)
	require.Len(t, cmp.Expected, 1)
	require.Len(t, cmp.Missing, 1)
	require.Len(t, cmp.Unexpected, 1)
	assert.Equal(t, "arity_mismatch", cmp.Missing[0].Code)
	assert.Equal(t, "missing_method", cmp.Unexpected[0].Code)
}
