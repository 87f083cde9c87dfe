package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sigcheck/sigcheck/internal/diagnostics"
)

// ExpectedDiagnostic is one entry of an expectations file's per-path list.
type ExpectedDiagnostic struct {
	Range    diagnostics.Range        `yaml:"range"`
	Severity diagnostics.Severity     `yaml:"severity"`
	Code     string                   `yaml:"code"`
	Message  string                   `yaml:"message"`
}

// Expectations is the external format `{ path: [diagnostic, ...] }`.
type Expectations map[string][]ExpectedDiagnostic

// LoadExpectations reads an expectations YAML file.
func LoadExpectations(path string) (Expectations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading expectations %s: %w", path, err)
	}
	var exp Expectations
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parsing expectations %s: %w", path, err)
	}
	return exp, nil
}

// Save writes exp to path as YAML.
func Save(path string, exp Expectations) error {
	data, err := yaml.Marshal(exp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Comparison categorizes one path's actual diagnostics against its
// expectations.
type Comparison struct {
	Expected   []ExpectedDiagnostic
	Unexpected []diagnostics.Diagnostic
	Missing    []ExpectedDiagnostic
}

// Compare performs the set-wise comparison described in the expectations
// file's contract: each actual diagnostic is expected or unexpected, each
// expectation not matched by an actual diagnostic is missing.
func Compare(expected []ExpectedDiagnostic, actual []diagnostics.Diagnostic) Comparison {
	matchedExpected := make([]bool, len(expected))
	matchedActual := make([]bool, len(actual))

	for i, a := range actual {
		for j, e := range expected {
			if matchedExpected[j] {
				continue
			}
			if matches(e, a) {
				matchedExpected[j] = true
				matchedActual[i] = true
				break
			}
		}
	}

	result := Comparison{}
	for j, e := range expected {
		if matchedExpected[j] {
			result.Expected = append(result.Expected, e)
		} else {
			result.Missing = append(result.Missing, e)
		}
	}
	for i, a := range actual {
		if !matchedActual[i] {
			result.Unexpected = append(result.Unexpected, a)
		}
	}
	return result
}

func matches(e ExpectedDiagnostic, a diagnostics.Diagnostic) bool {
	return e.Range == a.Range && e.Severity == a.Severity && e.Code == a.Code && e.Message == a.Message
}
