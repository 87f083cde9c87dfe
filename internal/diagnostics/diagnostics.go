// Package diagnostics defines the wire shape of a type-check diagnostic
// and the checker-internal error a worker attaches to a source range,
// plus a colorized CLI summary line.
package diagnostics

import (
	"fmt"
)

// Severity mirrors LSP's DiagnosticSeverity.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// Position is an LSP 0-based line/character position.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is an LSP half-open source range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is the LSP wire shape published via textDocument/publishDiagnostics.
type Diagnostic struct {
	Range    Range    `json:"range"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
	Source   string   `json:"source"`
}

// Token is the lexical token a DiagnosticError points at.
type Token struct {
	Line   int
	Column int
	Lexeme string
}

// Code classifies a DiagnosticError by the error-taxonomy kind that
// produced it.
type Code string

const (
	CodeTypeMismatch       Code = "type_mismatch"
	CodeMissingMethod      Code = "missing_method"
	CodeParameterMismatch  Code = "parameter_mismatch"
	CodeArityMismatch      Code = "arity_mismatch"
	CodeUnsatisfiableBound Code = "unsatisfiable_constraint"
)

// DiagnosticError is a type-checking error attached to a source range: it
// is never thrown, only accumulated by a worker's checking pass and
// converted into a Diagnostic when published.
type DiagnosticError struct {
	File    string
	Token   Token
	Code    Code
	Message string
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Token.Line, e.Token.Column, e.Message)
}

// ToDiagnostic converts a DiagnosticError into its LSP wire shape,
// translating the 1-based token position to LSP's 0-based Range.
func ToDiagnostic(err *DiagnosticError) Diagnostic {
	return Diagnostic{
		Range: Range{
			Start: Position{Line: err.Token.Line - 1, Character: err.Token.Column - 1},
			End:   Position{Line: err.Token.Line - 1, Character: err.Token.Column - 1 + len(err.Token.Lexeme)},
		},
		Severity: SeverityError,
		Code:     string(err.Code),
		Message:  err.Error(),
		Source:   "sigcheck",
	}
}

// ForFile filters a slice of diagnostics down to those attached to path.
func ForFile(errs []*DiagnosticError, path string) []Diagnostic {
	out := make([]Diagnostic, 0, len(errs))
	for _, e := range errs {
		if e.File != "" && path != "" && e.File != path {
			continue
		}
		out = append(out, ToDiagnostic(e))
	}
	return out
}
