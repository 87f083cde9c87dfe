package checkworker

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sigcheck/sigcheck/internal/diagnostics"
)

// CheckSpec is one subtype obligation a file's fact sheet asks the
// worker to verify: "at this token, is sub a subtype of sup", optionally
// with its own unknowns/vars for constraint solving (a method-call
// resolution site).
type CheckSpec struct {
	Token    TokenSpec `yaml:"token"`
	Sub      TypeSpec  `yaml:"sub"`
	Sup      TypeSpec  `yaml:"sup"`
	Unknowns []string  `yaml:"unknowns,omitempty"`
	Vars     []string  `yaml:"vars,omitempty"`
}

// TokenSpec is the YAML form of diagnostics.Token.
type TokenSpec struct {
	Line   int    `yaml:"line"`
	Column int    `yaml:"column"`
	Lexeme string `yaml:"lexeme"`
}

func (t TokenSpec) ToToken() diagnostics.Token {
	return diagnostics.Token{Line: t.Line, Column: t.Column, Lexeme: t.Lexeme}
}

// FileFacts is a source file's fact sheet: the already-typed obligations
// produced by the (out-of-scope) front end that parses the source
// language into an AST of types.
type FileFacts struct {
	Checks []CheckSpec `yaml:"checks"`
}

// factsPath returns the sidecar fact-sheet path for a source file.
func factsPath(sourcePath string) string {
	return sourcePath + ".sigfacts.yaml"
}

// LoadFacts reads the fact sheet for sourcePath. A missing sidecar is not
// an error: the file simply has nothing to check.
func LoadFacts(sourcePath string) (*FileFacts, error) {
	data, err := os.ReadFile(factsPath(sourcePath))
	if os.IsNotExist(err) {
		return &FileFacts{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fact sheet for %s: %w", sourcePath, err)
	}
	var facts FileFacts
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("parsing fact sheet for %s: %w", sourcePath, err)
	}
	return &facts, nil
}
