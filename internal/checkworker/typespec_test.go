package checkworker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcheck/sigcheck/internal/checkworker"
	"github.com/sigcheck/sigcheck/internal/types"
)

func TestToTypeNominalWithArgs(t *testing.T) {
	spec := checkworker.TypeSpec{
		Kind: "nominal",
		Name: "Array",
		Args: []checkworker.TypeSpec{{Kind: "nominal", Name: "Int"}},
	}
	got, err := spec.ToType(nil)
	require.NoError(t, err)
	assert.Equal(t, "Array<Int>", got.String())
}

func TestToTypeRejectsUnknownKind(t *testing.T) {
	spec := checkworker.TypeSpec{Kind: "bogus"}
	_, err := spec.ToType(nil)
	assert.Error(t, err)
}

func TestToTypeProcDefaultsReturnToAny(t *testing.T) {
	spec := checkworker.TypeSpec{Kind: "proc"}
	got, err := spec.ToType(nil)
	require.NoError(t, err)
	proc, ok := got.(types.TProc)
	require.True(t, ok)
	assert.IsType(t, types.TAny{}, proc.Return)
}

func TestToTypeLogicModeDefaultsToTruthy(t *testing.T) {
	spec := checkworker.TypeSpec{Kind: "logic"}
	got, err := spec.ToType(nil)
	require.NoError(t, err)
	logic, ok := got.(types.TLogic)
	require.True(t, ok)
	assert.Equal(t, types.Truthy, logic.Mode)
}

func TestToTypeRecordBuildsFieldMap(t *testing.T) {
	spec := checkworker.TypeSpec{
		Kind: "record",
		Fields: map[string]checkworker.TypeSpec{
			"x": {Kind: "nominal", Name: "Int"},
		},
	}
	got, err := spec.ToType(nil)
	require.NoError(t, err)
	assert.Equal(t, "{ x: Int }", got.String())
}

func TestToTypeUnknownNominalKindErrors(t *testing.T) {
	spec := checkworker.TypeSpec{Kind: "nominal", Name: "Foo", NominalKind: "bogus"}
	_, err := spec.ToType(nil)
	assert.Error(t, err)
}
