package checkworker

import (
	"fmt"

	"github.com/sigcheck/sigcheck/internal/constraints"
	"github.com/sigcheck/sigcheck/internal/diagnostics"
	"github.com/sigcheck/sigcheck/internal/subtyping"
	"github.com/sigcheck/sigcheck/internal/types"
)

// CheckFile runs every CheckSpec in facts against env, returning one
// DiagnosticError per failed obligation.
func CheckFile(path string, facts *FileFacts, env *Environment) []*diagnostics.DiagnosticError {
	var errs []*diagnostics.DiagnosticError
	for _, spec := range facts.Checks {
		if err := checkOne(path, spec, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func checkOne(path string, spec CheckSpec, env *Environment) *diagnostics.DiagnosticError {
	token := spec.Token.ToToken()
	loc := &types.SourceLocation{File: path, Line: token.Line, Column: token.Column}

	sub, err := spec.Sub.ToType(loc)
	if err != nil {
		return &diagnostics.DiagnosticError{File: path, Token: token, Code: diagnostics.CodeTypeMismatch, Message: err.Error()}
	}
	sup, err := spec.Sup.ToType(loc)
	if err != nil {
		return &diagnostics.DiagnosticError{File: path, Token: token, Code: diagnostics.CodeTypeMismatch, Message: err.Error()}
	}

	store, err := constraints.New(spec.Unknowns, spec.Vars)
	if err != nil {
		return &diagnostics.DiagnosticError{File: path, Token: token, Code: diagnostics.CodeUnsatisfiableBound, Message: err.Error()}
	}

	ctx := subtyping.Context{Env: env.Registry}
	result := subtyping.Check(subtyping.Relation{Sub: sub, Sup: sup}, ctx, store)
	if !result.OK {
		return &diagnostics.DiagnosticError{
			File:    path,
			Token:   token,
			Code:    codeForReason(result.Reason),
			Message: fmt.Sprintf("%s is not a subtype of %s: %s", sub, sup, result.Detail),
		}
	}

	if store.Empty() {
		return nil
	}

	// A store isn't necessarily empty after a successful check: unknowns
	// recorded bounds without being resolved. Solve it to surface
	// unsatisfiable double-ended constraints as diagnostics too.
	variance := func(unknown string) types.Variance { return types.Invariant }
	if _, err := constraints.Solve(store, ctx, variance); err != nil {
		return &diagnostics.DiagnosticError{
			File:    path,
			Token:   token,
			Code:    diagnostics.CodeUnsatisfiableBound,
			Message: err.Error(),
		}
	}
	return nil
}

func codeForReason(r subtyping.Reason) diagnostics.Code {
	switch r {
	case subtyping.MissingMethod:
		return diagnostics.CodeMissingMethod
	case subtyping.ParameterMismatch:
		return diagnostics.CodeParameterMismatch
	case subtyping.ArityMismatch:
		return diagnostics.CodeArityMismatch
	case subtyping.UnsatisfiableBound:
		return diagnostics.CodeUnsatisfiableBound
	default:
		return diagnostics.CodeTypeMismatch
	}
}
