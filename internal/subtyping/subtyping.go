// Package subtyping implements the structural subtyping checker: deciding
// S <: T under a context, optionally recording bounds for unknown type
// variables into a constraint store.
package subtyping

import (
	"fmt"

	"github.com/sigcheck/sigcheck/internal/types"
)

// Reason classifies why a Check failed.
type Reason string

const (
	TypeMismatch        Reason = "type_mismatch"
	MissingMethod       Reason = "missing_method"
	ParameterMismatch   Reason = "parameter_mismatch"
	UnsatisfiableBound  Reason = "unsatisfiable_bound"
	ArityMismatch       Reason = "arity_mismatch"
)

// Relation is an ordered pair (sub, sup) whose intended meaning is
// sub <: sup.
type Relation struct {
	Sub types.Type
	Sup types.Type
}

// Context carries the ambient type-checking context a subtyping decision
// may need: the receiver types in scope and the nominal-type environment
// used to resolve super-chains and aliases.
type Context struct {
	SelfType     types.Type
	InstanceType types.Type
	ClassType    types.Type
	Env          types.Environment
}

// Bounds is the subset of the constraint store's contract the checker
// needs: recording that an unknown's value must lie below an upper bound,
// or above a lower bound. Implemented by *constraints.Store.
type Bounds interface {
	IsUnknown(name string) bool
	AddLower(name string, t types.Type) error
	AddUpper(name string, t types.Type) error
}

// Trace records the chain of relations explored to reach a verdict, for
// diagnostics and tests.
type Trace []Relation

// Result is the outcome of a Check call.
type Result struct {
	OK     bool
	Trace  Trace
	Reason Reason
	Detail string
}

func success(trace Trace) Result {
	return Result{OK: true, Trace: trace}
}

func failure(trace Trace, reason Reason, detail string) Result {
	return Result{OK: false, Trace: trace, Reason: reason, Detail: detail}
}

// pairKey is the co-inductive guard-set key for a (sub, sup) pair, using
// structural (string) identity rather than pointer identity since type
// nodes are plain values.
type pairKey struct {
	sub string
	sup string
}

// Check decides relation.Sub <: relation.Sup under ctx, optionally
// recording bounds for unknown variables into constraints. constraints
// may be nil for a pure query with no unknowns in scope.
func Check(relation Relation, ctx Context, constraints Bounds) Result {
	guard := map[pairKey]bool{}
	return check(relation.Sub, relation.Sup, ctx, constraints, guard, nil)
}

func check(sub, sup types.Type, ctx Context, bounds Bounds, guard map[pairKey]bool, trace Trace) Result {
	rel := Relation{Sub: sub, Sup: sup}
	trace = append(trace, rel)

	key := pairKey{sub: sub.String(), sup: sup.String()}
	if guard[key] {
		return success(trace)
	}
	guard[key] = true
	defer delete(guard, key)

	// Case 1: Bot/Top/Any short-circuits.
	if _, ok := sub.(types.TBot); ok {
		return success(trace)
	}
	if _, ok := sup.(types.TTop); ok {
		return success(trace)
	}
	if _, ok := sub.(types.TAny); ok {
		return success(trace)
	}
	if _, ok := sup.(types.TAny); ok {
		return success(trace)
	}

	// Case 2: unknown variables record bounds instead of deciding.
	if subVar, ok := sub.(types.TVar); ok && bounds != nil && bounds.IsUnknown(subVar.Name) {
		if err := bounds.AddUpper(subVar.Name, sup); err != nil {
			return failure(trace, UnsatisfiableBound, err.Error())
		}
		return success(trace)
	}
	if supVar, ok := sup.(types.TVar); ok && bounds != nil && bounds.IsUnknown(supVar.Name) {
		if err := bounds.AddLower(supVar.Name, sub); err != nil {
			return failure(trace, UnsatisfiableBound, err.Error())
		}
		return success(trace)
	}

	// Case 3: union/intersection distribution, short-circuited.
	if subUnion, ok := sub.(types.TUnion); ok {
		for _, disjunct := range subUnion.Types {
			if r := check(disjunct, sup, ctx, bounds, guard, trace); !r.OK {
				return r
			}
		}
		return success(trace)
	}
	if supIntersection, ok := sup.(types.TIntersection); ok {
		for _, conjunct := range supIntersection.Types {
			if r := check(sub, conjunct, ctx, bounds, guard, trace); !r.OK {
				return r
			}
		}
		return success(trace)
	}
	if supUnion, ok := sup.(types.TUnion); ok {
		for _, disjunct := range supUnion.Types {
			if r := check(sub, disjunct, ctx, bounds, guard, trace); r.OK {
				return success(trace)
			}
		}
		return failure(trace, TypeMismatch, fmt.Sprintf("%s is not a member of %s", sub, sup))
	}
	if subIntersection, ok := sub.(types.TIntersection); ok {
		for _, conjunct := range subIntersection.Types {
			if r := check(conjunct, sup, ctx, bounds, guard, trace); r.OK {
				return success(trace)
			}
		}
		return failure(trace, TypeMismatch, fmt.Sprintf("no conjunct of %s satisfies %s", sub, sup))
	}

	// Case 4: nominal types.
	if subNom, ok := sub.(types.TNominal); ok {
		if supNom, ok := sup.(types.TNominal); ok {
			return checkNominal(subNom, supNom, ctx, bounds, guard, trace)
		}
	}

	// Case 5: tuples and records.
	if subTuple, ok := sub.(types.TTuple); ok {
		if supTuple, ok := sup.(types.TTuple); ok {
			return checkTuple(subTuple, supTuple, ctx, bounds, guard, trace)
		}
	}
	if subRecord, ok := sub.(types.TRecord); ok {
		if supRecord, ok := sup.(types.TRecord); ok {
			return checkRecord(subRecord, supRecord, ctx, bounds, guard, trace)
		}
	}

	// Case 6: procedures.
	if subProc, ok := sub.(types.TProc); ok {
		if supProc, ok := sup.(types.TProc); ok {
			return checkProc(subProc, supProc, ctx, bounds, guard, trace)
		}
	}

	// Case 7: fallback.
	if sub.String() == sup.String() {
		return success(trace)
	}
	return failure(trace, TypeMismatch, fmt.Sprintf("%s is not a subtype of %s", sub, sup))
}

func checkNominal(sub, sup types.TNominal, ctx Context, bounds Bounds, guard map[pairKey]bool, trace Trace) Result {
	if sub.Kind == sup.Kind && sub.Name == sup.Name {
		if len(sub.Args) != len(sup.Args) {
			return failure(trace, ArityMismatch, fmt.Sprintf("%s expects %d arguments, got %d", sub.Name, len(sup.Args), len(sub.Args)))
		}
		for i := range sub.Args {
			v := types.Invariant
			if ctx.Env != nil {
				v = ctx.Env.VarianceAt(sub.Name, i)
			}
			switch v {
			case types.Covariant:
				if r := check(sub.Args[i], sup.Args[i], ctx, bounds, guard, trace); !r.OK {
					return r
				}
			case types.Contravariant:
				if r := check(sup.Args[i], sub.Args[i], ctx, bounds, guard, trace); !r.OK {
					return r
				}
			default:
				if r := check(sub.Args[i], sup.Args[i], ctx, bounds, guard, trace); !r.OK {
					return r
				}
				if r := check(sup.Args[i], sub.Args[i], ctx, bounds, guard, trace); !r.OK {
					return r
				}
			}
		}
		return success(trace)
	}

	if ctx.Env != nil {
		if underlying, ok := ctx.Env.ResolveAlias(sub); ok {
			return check(underlying, sup, ctx, bounds, guard, trace)
		}
		for _, super := range ctx.Env.SuperTypes(sub.Name) {
			instantiated := instantiateSuper(super, sub, ctx.Env.FormalParams(sub.Name))
			if r := check(instantiated, sup, ctx, bounds, guard, trace); r.OK {
				return success(trace)
			}
		}
	}
	return failure(trace, TypeMismatch, fmt.Sprintf("%s is not %s and shares no supertype", sub.Name, sup.Name))
}

// instantiateSuper substitutes a subtype's own type arguments for any
// rigid type variables appearing in its declared supertype's argument
// list, e.g. `class Box<T> : Container<T>` walking from `Box<Int>`
// substitutes T=Int into `Container<T>`. The declared supertype uses the
// subtype constructor's own formal parameter names (T, U, ...) as
// placeholders, matched positionally against sub's own formal names.
func instantiateSuper(super types.TNominal, sub types.TNominal, selfParams []string) types.TNominal {
	if len(selfParams) == 0 || len(sub.Args) == 0 {
		return super
	}
	subst := types.Subst{}
	for i, param := range selfParams {
		if i < len(sub.Args) {
			subst[param] = sub.Args[i]
		}
	}
	args := make([]types.Type, len(super.Args))
	for i, a := range super.Args {
		args[i] = a.Apply(subst)
	}
	return types.TNominal{Kind: super.Kind, Name: super.Name, Args: args, Loc: super.Loc}
}

func checkTuple(sub, sup types.TTuple, ctx Context, bounds Bounds, guard map[pairKey]bool, trace Trace) Result {
	if len(sub.Elements) != len(sup.Elements) {
		return failure(trace, ArityMismatch, fmt.Sprintf("tuple length mismatch: %d vs %d", len(sub.Elements), len(sup.Elements)))
	}
	for i := range sub.Elements {
		if r := check(sub.Elements[i], sup.Elements[i], ctx, bounds, guard, trace); !r.OK {
			return r
		}
	}
	return success(trace)
}

func checkRecord(sub, sup types.TRecord, ctx Context, bounds Bounds, guard map[pairKey]bool, trace Trace) Result {
	for key, supField := range sup.Fields {
		subField, ok := sub.Fields[key]
		if !ok {
			return failure(trace, MissingMethod, fmt.Sprintf("record is missing field %q", key))
		}
		if r := check(subField, supField, ctx, bounds, guard, trace); !r.OK {
			return r
		}
	}
	return success(trace)
}

func checkProc(sub, sup types.TProc, ctx Context, bounds Bounds, guard map[pairKey]bool, trace Trace) Result {
	if len(sub.Params) != len(sup.Params) {
		return failure(trace, ParameterMismatch, fmt.Sprintf("parameter count mismatch: %d vs %d", len(sub.Params), len(sup.Params)))
	}
	for i := range sub.Params {
		subParam, supParam := sub.Params[i], sup.Params[i]
		if subParam.Name != "" && supParam.Name != "" && subParam.Name != supParam.Name {
			return failure(trace, ParameterMismatch, fmt.Sprintf("keyword parameter mismatch: %q vs %q", subParam.Name, supParam.Name))
		}
		// Parameters are contravariant: the supertype's parameter must be
		// an acceptable argument wherever the subtype's parameter is.
		if r := check(supParam.Type, subParam.Type, ctx, bounds, guard, trace); !r.OK {
			return r
		}
	}
	return check(sub.Return, sup.Return, ctx, bounds, guard, trace)
}
