package subtyping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcheck/sigcheck/internal/constraints"
	"github.com/sigcheck/sigcheck/internal/subtyping"
	"github.com/sigcheck/sigcheck/internal/types"
)

func nominal(name string) types.TNominal { return types.TNominal{Name: name} }

func TestBotIsSubtypeOfEverything(t *testing.T) {
	r := subtyping.Check(subtyping.Relation{Sub: types.TBot{}, Sup: nominal("Int")}, subtyping.Context{}, nil)
	assert.True(t, r.OK)
}

func TestEverythingIsSubtypeOfTop(t *testing.T) {
	r := subtyping.Check(subtyping.Relation{Sub: nominal("Int"), Sup: types.TTop{}}, subtyping.Context{}, nil)
	assert.True(t, r.OK)
}

func TestIdenticalNominalsAreSubtypes(t *testing.T) {
	r := subtyping.Check(subtyping.Relation{Sub: nominal("Int"), Sup: nominal("Int")}, subtyping.Context{}, nil)
	assert.True(t, r.OK)
}

func TestUnrelatedNominalsFailWithTypeMismatch(t *testing.T) {
	r := subtyping.Check(subtyping.Relation{Sub: nominal("Int"), Sup: nominal("String")}, subtyping.Context{}, nil)
	require.False(t, r.OK)
	assert.Equal(t, subtyping.TypeMismatch, r.Reason)
}

func TestSuperTypeResolvedThroughEnvironment(t *testing.T) {
	env := types.NewRegistry()
	env.DeclareSuper("Cat", nil, types.TNominal{Name: "Animal"})
	r := subtyping.Check(
		subtyping.Relation{Sub: nominal("Cat"), Sup: nominal("Animal")},
		subtyping.Context{Env: env},
		nil,
	)
	assert.True(t, r.OK)
}

func TestGenericSuperTypeInstantiatesFormalParams(t *testing.T) {
	env := types.NewRegistry()
	env.DeclareShape("Box", []types.Variance{types.Covariant})
	env.DeclareShape("Container", []types.Variance{types.Covariant})
	env.DeclareSuper("Box", []string{"T"}, types.TNominal{Name: "Container", Args: []types.Type{types.TVar{Name: "T"}}})

	boxOfInt := types.TNominal{Name: "Box", Args: []types.Type{nominal("Int")}}
	containerOfInt := types.TNominal{Name: "Container", Args: []types.Type{nominal("Int")}}

	r := subtyping.Check(subtyping.Relation{Sub: boxOfInt, Sup: containerOfInt}, subtyping.Context{Env: env}, nil)
	assert.True(t, r.OK)

	containerOfString := types.TNominal{Name: "Container", Args: []types.Type{nominal("String")}}
	r2 := subtyping.Check(subtyping.Relation{Sub: boxOfInt, Sup: containerOfString}, subtyping.Context{Env: env}, nil)
	assert.False(t, r2.OK)
}

func TestUnionSubtypeRequiresEveryDisjunct(t *testing.T) {
	sub := types.TUnion{Types: []types.Type{nominal("Int"), nominal("String")}}
	r := subtyping.Check(subtyping.Relation{Sub: sub, Sup: nominal("Any")}, subtyping.Context{}, nil)
	assert.False(t, r.OK) // Any here is a plain nominal, not types.TAny{} - neither disjunct matches
}

func TestUnionSupertypeAcceptsAnyMatchingDisjunct(t *testing.T) {
	sup := types.TUnion{Types: []types.Type{nominal("Int"), nominal("String")}}
	r := subtyping.Check(subtyping.Relation{Sub: nominal("String"), Sup: sup}, subtyping.Context{}, nil)
	assert.True(t, r.OK)
}

func TestProcParametersAreContravariant(t *testing.T) {
	// (Animal) -> Cat  <:  (Cat) -> Animal   iff the parameter direction is
	// reversed: a caller of the supertype may pass only a Cat, and the sub
	// must therefore accept at least Cat, i.e. accept a wider Animal.
	env := types.NewRegistry()
	env.DeclareSuper("Cat", nil, types.TNominal{Name: "Animal"})

	sub := types.TProc{Params: []types.Param{{Type: nominal("Animal")}}, Return: nominal("Cat")}
	sup := types.TProc{Params: []types.Param{{Type: nominal("Cat")}}, Return: nominal("Animal")}

	r := subtyping.Check(subtyping.Relation{Sub: sub, Sup: sup}, subtyping.Context{Env: env}, nil)
	assert.True(t, r.OK)
}

func TestRecordWidthSubtypingAllowsExtraFields(t *testing.T) {
	sub := types.TRecord{Fields: map[string]types.Type{"x": nominal("Int"), "y": nominal("Int")}}
	sup := types.TRecord{Fields: map[string]types.Type{"x": nominal("Int")}}
	r := subtyping.Check(subtyping.Relation{Sub: sub, Sup: sup}, subtyping.Context{}, nil)
	assert.True(t, r.OK)
}

func TestRecordMissingFieldFails(t *testing.T) {
	sub := types.TRecord{Fields: map[string]types.Type{"x": nominal("Int")}}
	sup := types.TRecord{Fields: map[string]types.Type{"x": nominal("Int"), "y": nominal("Int")}}
	r := subtyping.Check(subtyping.Relation{Sub: sub, Sup: sup}, subtyping.Context{}, nil)
	require.False(t, r.OK)
	assert.Equal(t, subtyping.MissingMethod, r.Reason)
}

func TestUnknownVariableRecordsBoundInsteadOfFailing(t *testing.T) {
	store, err := constraints.New([]string{"X"}, nil)
	require.NoError(t, err)

	r := subtyping.Check(
		subtyping.Relation{Sub: nominal("Int"), Sup: types.TVar{Name: "X"}},
		subtyping.Context{},
		store,
	)
	assert.True(t, r.OK)
	assert.Equal(t, nominal("Int"), store.Lower("X"))
}

func TestCoinductiveGuardTerminatesOnRecursiveNominals(t *testing.T) {
	env := types.NewRegistry()
	env.DeclareShape("Node", []types.Variance{types.Invariant})
	env.DeclareSuper("Node", []string{"T"}, types.TNominal{Name: "Node", Args: []types.Type{types.TVar{Name: "T"}}})

	selfReferential := types.TNominal{Name: "Node", Args: []types.Type{nominal("Int")}}
	r := subtyping.Check(subtyping.Relation{Sub: selfReferential, Sup: selfReferential}, subtyping.Context{Env: env}, nil)
	assert.True(t, r.OK)
}
