package constraints

import (
	"fmt"

	"github.com/sigcheck/sigcheck/internal/subtyping"
	"github.com/sigcheck/sigcheck/internal/types"
)

// UnsatisfiableConstraint is returned by Solve when a double-ended
// unknown's lower bound does not satisfy its upper bound.
type UnsatisfiableConstraint struct {
	Unknown string
	Lower   types.Type
	Upper   types.Type
}

func (e *UnsatisfiableConstraint) Error() string {
	return fmt.Sprintf("unsatisfiable constraint on %s: %s is not a subtype of %s", e.Unknown, e.Lower, e.Upper)
}

// VarianceOf reports the declared variance of an unknown, used at solver
// step 4 to pick its final binding.
type VarianceOf func(unknown string) types.Variance

type shape int

const (
	shapeFree shape = iota
	shapeDetermined
	shapeDoubleEnded
)

func classify(lower, upper types.Type) shape {
	_, lowerIsBot := lower.(types.TBot)
	_, upperIsTop := upper.(types.TTop)
	switch {
	case lowerIsBot && upperIsTop:
		return shapeFree
	case lowerIsBot && !upperIsTop:
		return shapeDetermined
	case !lowerIsBot && upperIsTop:
		return shapeDetermined
	default:
		return shapeDoubleEnded
	}
}

// Solve produces a closed substitution satisfying every bound in store,
// or an error (*UnsatisfiableConstraint or *InvariantViolation).
func Solve(store *Store, ctx subtyping.Context, variance VarianceOf) (types.Subst, error) {
	subst := types.Subst{}
	var doubleEnded []string

	for _, v := range store.Unknowns() {
		lower, upper := store.Lower(v), store.Upper(v)
		switch classify(lower, upper) {
		case shapeDetermined:
			if _, lowerIsBot := lower.(types.TBot); lowerIsBot {
				subst[v] = upper
			} else {
				subst[v] = lower
			}
		case shapeDoubleEnded:
			doubleEnded = append(doubleEnded, v)
		case shapeFree:
			// bound at step 5, once nested solving is done.
		}
	}

	if len(doubleEnded) == 0 {
		bindFree(store, subst)
		return subst, nil
	}

	nestedUnknowns := map[string]bool{}
	relations := make([]subtyping.Relation, 0, len(doubleEnded))
	for _, v := range doubleEnded {
		lower := store.Lower(v).Apply(subst)
		upper := store.Upper(v).Apply(subst)
		relations = append(relations, subtyping.Relation{Sub: lower, Sup: upper})
		for _, fv := range lower.FreeTypeVariables() {
			if store.IsUnknown(fv.Name) {
				nestedUnknowns[fv.Name] = true
			}
		}
		for _, fv := range upper.FreeTypeVariables() {
			if store.IsUnknown(fv.Name) {
				nestedUnknowns[fv.Name] = true
			}
		}
	}

	names := make([]string, 0, len(nestedUnknowns))
	for n := range nestedUnknowns {
		names = append(names, n)
	}
	nested, err := New(names, store.Unknowns())
	if err != nil {
		return nil, err
	}

	for i, v := range doubleEnded {
		rel := relations[i]
		result := subtyping.Check(rel, ctx, nested)
		if !result.OK {
			return nil, &UnsatisfiableConstraint{Unknown: v, Lower: rel.Sub, Upper: rel.Sup}
		}
	}

	var nestedSubst types.Subst
	if len(names) > 0 {
		nestedSubst, err = Solve(nested, ctx, variance)
		if err != nil {
			return nil, err
		}
	} else {
		nestedSubst = types.Subst{}
	}
	subst = subst.Compose(nestedSubst)

	for _, v := range doubleEnded {
		lower := store.Lower(v).Apply(subst)
		upper := store.Upper(v).Apply(subst)
		var chosen types.Type
		switch variance(v) {
		case types.Contravariant:
			chosen = upper
		case types.Covariant:
			chosen = lower
		default:
			if types.NodeCount(upper) < types.NodeCount(lower) {
				chosen = upper
			} else {
				chosen = lower
			}
		}
		subst[v] = chosen
	}

	bindFree(store, subst)
	return subst, nil
}

// bindFree binds every unknown still unbound in subst to Any (step 5).
func bindFree(store *Store, subst types.Subst) {
	for _, v := range store.Unknowns() {
		if _, bound := subst[v]; !bound {
			subst[v] = types.TAny{}
		}
	}
}
