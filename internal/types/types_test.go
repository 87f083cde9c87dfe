package types_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/sigcheck/sigcheck/internal/types"
)

func TestNormalizeUnionFlattensAndDedupes(t *testing.T) {
	u := types.NormalizeUnion([]types.Type{
		types.TUnion{Types: []types.Type{
			types.TNominal{Name: "Int"},
			types.TNominal{Name: "String"},
		}},
		types.TNominal{Name: "Int"},
	})
	assert.Equal(t, "Int | String", u.String())
}

func TestNormalizeUnionOfOneIsTheElement(t *testing.T) {
	u := types.NormalizeUnion([]types.Type{types.TNominal{Name: "Int"}})
	assert.Equal(t, types.TNominal{Name: "Int"}, u)
}

func TestNormalizeUnionOfNoneIsBot(t *testing.T) {
	u := types.NormalizeUnion(nil)
	assert.IsType(t, types.TBot{}, u)
}

func TestNormalizeIntersectionOfNoneIsTop(t *testing.T) {
	i := types.NormalizeIntersection(nil)
	assert.IsType(t, types.TTop{}, i)
}

func TestApplySubstitutesFreeVariable(t *testing.T) {
	tv := types.TVar{Name: "T"}
	subst := types.Subst{"T": types.TNominal{Name: "Int"}}
	applied := tv.Apply(subst)
	assert.Equal(t, types.TNominal{Name: "Int"}, applied)
}

func TestApplyIsCycleSafe(t *testing.T) {
	// T -> Array<T> is a legitimate recursive binding (e.g. a linked
	// structural type); applying it must terminate rather than loop.
	subst := types.Subst{"T": types.TNominal{Name: "Array", Args: []types.Type{types.TVar{Name: "T"}}}}
	result := (types.TVar{Name: "T"}).Apply(subst)
	assert.Equal(t, "Array<T>", result.String())
}

func TestFreeTypeVariablesOfProc(t *testing.T) {
	proc := types.TProc{
		Params: []types.Param{{Name: "x", Type: types.TVar{Name: "A"}}},
		Return: types.TVar{Name: "B"},
	}
	free := proc.FreeTypeVariables()
	names := make([]string, len(free))
	for i, v := range free {
		names[i] = v.Name
	}
	assert.ElementsMatch(t, []string{"A", "B"}, names)
}

func TestNodeCountCountsConstructorsAndLeaves(t *testing.T) {
	leaf := types.TNominal{Name: "Int"}
	assert.Equal(t, 1, types.NodeCount(leaf))

	nested := types.TTuple{Elements: []types.Type{leaf, leaf}}
	assert.Equal(t, 3, types.NodeCount(nested))
}

func TestTupleApplyAppliesToEveryElementWithoutMutatingTheOriginal(t *testing.T) {
	original := types.TTuple{Elements: []types.Type{types.TVar{Name: "T"}, types.TNominal{Name: "Int"}}}
	subst := types.Subst{"T": types.TNominal{Name: "String"}}
	applied := original.Apply(subst)

	want := types.TTuple{Elements: []types.Type{types.TNominal{Name: "String"}, types.TNominal{Name: "Int"}}}
	if diff := cmp.Diff(want, applied); diff != "" {
		t.Errorf("Apply result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(types.TTuple{Elements: []types.Type{types.TVar{Name: "T"}, types.TNominal{Name: "Int"}}}, original); diff != "" {
		t.Errorf("Apply must not mutate the receiver (-want +got):\n%s", diff)
	}
}

func TestRecordStringIsKeySorted(t *testing.T) {
	r := types.TRecord{Fields: map[string]types.Type{
		"b": types.TNominal{Name: "Int"},
		"a": types.TNominal{Name: "String"},
	}}
	assert.Equal(t, "{ a: String, b: Int }", r.String())
}
