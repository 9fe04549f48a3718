package structure_test

import (
	"encoding/json"
	"math"
	"testing"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nestedType = types.Struct(types.Tensor(types.Float32, 2), types.Tensor(types.Float64))

func mustLiteral(t *testing.T, typ types.Type, lit any) structure.Value {
	t.Helper()

	v, err := structure.FromLiteral(typ, lit)
	require.NoError(t, err)

	return v
}

func TestFromLiteral(t *testing.T) {
	t.Parallel()

	v := mustLiteral(t, nestedType, []any{[]float64{1, 2}, 3.0})
	assert.True(t, v.Type().Equivalent(nestedType))
	assert.NoError(t, v.Conforms(nestedType))

	leaves := v.Flatten()
	require.Len(t, leaves, 2)
	assert.Equal(t, []float64{1, 2}, leaves[0].Values())
	assert.Equal(t, types.Float64, leaves[1].DType())

	assert.Equal(t, []any{[]any{1.0, 2.0}, 3.0}, v.Literal())
}

func TestFromLiteralNamed(t *testing.T) {
	t.Parallel()

	typ := types.NamedStruct(
		types.Element{Name: "w", Type: types.Tensor(types.Float32, 3)},
		types.Element{Name: "b", Type: types.Tensor(types.Float32)},
	)

	v, err := structure.FromJSON(typ, []byte(`{"w": [1, 2, 3], "b": 0.5}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"w": []any{1.0, 2.0, 3.0}, "b": 0.5}, v.Literal())

	_, err = structure.FromJSON(typ, []byte(`{"w": [1, 2, 3]}`))
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)

	_, err = structure.FromJSON(typ, []byte(`{"w": [1, 2], "b": 0.5}`))
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)
}

func TestFromLiteralErrors(t *testing.T) {
	t.Parallel()

	_, err := structure.FromLiteral(nestedType, []any{[]float64{1, 2}})
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)

	_, err = structure.FromLiteral(nestedType, 1.0)
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)

	_, err = structure.FromLiteral(types.AtClients(types.Tensor(types.Float32)), 1.0)
	assert.ErrorIs(t, err, pkgerrors.ErrTypeMismatch)
}

func TestMap(t *testing.T) {
	t.Parallel()

	v := mustLiteral(t, nestedType, []any{[]float64{1, 2}, 3.0})
	doubled, err := structure.Map(v, func(x tensor.Tensor) (tensor.Tensor, error) {
		return x.Mul(2), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{2.0, 4.0}, 6.0}, doubled.Literal())
	assert.True(t, doubled.Type().Equivalent(nestedType))
}

func TestZip(t *testing.T) {
	t.Parallel()

	a := mustLiteral(t, nestedType, []any{[]float64{1, 2}, 3.0})
	b := mustLiteral(t, nestedType, []any{[]float64{2, 5}, 4.0})

	sum, err := structure.Zip(a, b, tensor.Add)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{3.0, 7.0}, 7.0}, sum.Literal())

	other := mustLiteral(t, types.Struct(types.Tensor(types.Float32, 2)), []any{[]float64{1, 2}})
	_, err = structure.Zip(a, other, tensor.Add)
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)

	_, err = structure.Zip(a, structure.Leaf(tensor.Scalar(types.Float32, 1)), tensor.Add)
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)
}

func TestZeros(t *testing.T) {
	t.Parallel()

	z, err := structure.Zeros(nestedType)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{0.0, 0.0}, 0.0}, z.Literal())

	_, err = structure.Zeros(types.SequenceType{Element: types.Tensor(types.Float32)})
	assert.ErrorIs(t, err, pkgerrors.ErrTypeMismatch)
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	v := structure.NamedStruct(
		structure.Element{Name: "w", Value: mustLiteral(t, types.Tensor(types.Int32, 2, 2), [][]int32{{1, 2}, {3, 4}})},
		structure.Element{Name: "b", Value: structure.Leaf(tensor.Scalar(types.Float16, 0.5))},
	)

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded structure.Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, v.Equal(decoded), "decoded %s", decoded)
	assert.True(t, v.Type().Equivalent(decoded.Type()))
}

func TestJSONNonFinite(t *testing.T) {
	t.Parallel()

	leaf, err := tensor.New(types.Float32, types.Shape{3}, []float64{math.NaN(), math.Inf(1), math.Inf(-1)})
	require.NoError(t, err)
	v := structure.Leaf(leaf)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `["NaN","Infinity","-Infinity"]`)

	var decoded structure.Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, v.Equal(decoded), "decoded %s", decoded)
}
