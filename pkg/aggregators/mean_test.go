package aggregators_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/absmach/fedagg/pkg/aggregators"
	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const measurementConstant = 42

var (
	floatType  = types.Tensor(types.Float32)
	structType = types.Struct(types.Tensor(types.Float32, 2), types.Tensor(types.Float64))
)

// sumPlusOneFactory sums client values, adds one to the result, counts its
// invocations in the state and always reports measurementConstant.
type sumPlusOneFactory struct{}

func (sumPlusOneFactory) CreateUnweighted(valueType types.Type) (aggregators.UnweightedProcess, error) {
	if err := aggregators.CheckValueType(valueType); err != nil {
		return nil, err
	}

	return &sumPlusOne{valueType: valueType}, nil
}

type sumPlusOne struct {
	valueType types.Type
}

func (p *sumPlusOne) Types() aggregators.ProcessTypes {
	return aggregators.ProcessTypes{
		State:        types.Tensor(types.Int32),
		Value:        p.valueType,
		Measurements: types.Tensor(types.Int32),
	}
}

func (p *sumPlusOne) Initialize() any {
	return 0
}

func (p *sumPlusOne) Next(state any, values []structure.Value) (aggregators.MeasuredOutput, error) {
	counter, ok := state.(int)
	if !ok {
		return aggregators.MeasuredOutput{}, fmt.Errorf("unexpected state %T", state)
	}
	sum, err := aggregators.Sum(p.valueType, values)
	if err != nil {
		return aggregators.MeasuredOutput{}, err
	}
	plusOne, err := structure.Map(sum, func(t tensor.Tensor) (tensor.Tensor, error) {
		vals := t.Values()
		for i := range vals {
			vals[i]++
		}

		return tensor.New(t.DType(), t.Shape(), vals)
	})
	if err != nil {
		return aggregators.MeasuredOutput{}, err
	}

	return aggregators.MeasuredOutput{
		State:        counter + 1,
		Result:       plusOne,
		Measurements: measurementConstant,
	}, nil
}

func scalars(t *testing.T, dtype types.DType, vals ...float64) []structure.Value {
	t.Helper()

	out := make([]structure.Value, len(vals))
	for i, v := range vals {
		out[i] = structure.Leaf(tensor.Scalar(dtype, v))
	}

	return out
}

func structValues(t *testing.T) []structure.Value {
	t.Helper()

	lits := []any{
		[]any{[]float64{1, 2}, 3.0},
		[]any{[]float64{2, 5}, 4.0},
		[]any{[]float64{3, 0}, 5.0},
	}
	out := make([]structure.Value, len(lits))
	for i, lit := range lits {
		v, err := structure.FromLiteral(structType, lit)
		require.NoError(t, err)
		out[i] = v
	}

	return out
}

func scalarResult(t *testing.T, out aggregators.MeasuredOutput) float64 {
	t.Helper()

	leaf, ok := out.Result.Tensor()
	require.True(t, ok)
	v, err := leaf.Item()
	require.NoError(t, err)

	return v
}

func assertLiteralClose(t *testing.T, expected, actual any) {
	t.Helper()

	switch e := expected.(type) {
	case []any:
		a, ok := actual.([]any)
		require.True(t, ok, "expected a list, got %T", actual)
		require.Len(t, a, len(e))
		for i := range e {
			assertLiteralClose(t, e[i], a[i])
		}
	case float64:
		a, ok := actual.(float64)
		require.True(t, ok, "expected a number, got %T", actual)
		assert.InDelta(t, e, a, 1e-6)
	default:
		t.Fatalf("unsupported literal %T", expected)
	}
}

func TestTypePropertiesUnweighted(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		factory    *aggregators.MeanFactory
		innerState types.Type
	}{
		{"default", aggregators.NewMeanFactory(), types.Struct()},
		{"inner value sum", aggregators.NewMeanFactory(aggregators.WithValueSumFactory(sumPlusOneFactory{})), types.Tensor(types.Int32)},
	}

	for _, tc := range cases {
		for _, valueType := range []types.Type{floatType, structType} {
			t.Run(tc.name+"/"+valueType.String(), func(t *testing.T) {
				t.Parallel()

				process, err := tc.factory.CreateUnweighted(valueType)
				require.NoError(t, err)

				stateType := types.AtServer(types.NamedStruct(types.Element{Name: aggregators.ValueSumKey, Type: tc.innerState}))
				expectedInit := types.FunctionType{Result: stateType}
				assert.True(t, process.Types().InitializeType().Equivalent(expectedInit), "got %s", process.Types().InitializeType())

				expectedNext := types.FunctionType{
					Parameter: types.NamedStruct(
						types.Element{Name: "state", Type: stateType},
						types.Element{Name: "value", Type: types.AtClients(valueType)},
					),
					Result: types.NamedStruct(
						types.Element{Name: "state", Type: stateType},
						types.Element{Name: "result", Type: types.AtServer(valueType)},
						types.Element{Name: "measurements", Type: stateType},
					),
				}
				assert.True(t, process.Types().NextType().Equivalent(expectedNext), "got %s", process.Types().NextType())
			})
		}
	}
}

func TestTypePropertiesWeighted(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		factory    *aggregators.MeanFactory
		innerState types.Type
	}{
		{"default", aggregators.NewMeanFactory(), types.Struct()},
		{
			"inner value and weight sums",
			aggregators.NewMeanFactory(
				aggregators.WithValueSumFactory(sumPlusOneFactory{}),
				aggregators.WithWeightSumFactory(sumPlusOneFactory{}),
			),
			types.Tensor(types.Int32),
		},
	}
	weightTypes := []types.DType{types.Float32, types.Float64, types.Int32, types.Int64}

	for _, tc := range cases {
		for _, valueType := range []types.Type{floatType, structType} {
			for _, wd := range weightTypes {
				weightType := types.Tensor(wd)
				t.Run(fmt.Sprintf("%s/%s/%s", tc.name, valueType, weightType), func(t *testing.T) {
					t.Parallel()

					process, err := tc.factory.CreateWeighted(valueType, weightType)
					require.NoError(t, err)

					stateType := types.AtServer(types.NamedStruct(
						types.Element{Name: aggregators.ValueSumKey, Type: tc.innerState},
						types.Element{Name: aggregators.WeightSumKey, Type: tc.innerState},
					))
					expectedInit := types.FunctionType{Result: stateType}
					assert.True(t, process.Types().InitializeType().Equivalent(expectedInit))

					expectedNext := types.FunctionType{
						Parameter: types.NamedStruct(
							types.Element{Name: "state", Type: stateType},
							types.Element{Name: "value", Type: types.AtClients(valueType)},
							types.Element{Name: "weight", Type: types.AtClients(weightType)},
						),
						Result: types.NamedStruct(
							types.Element{Name: "state", Type: stateType},
							types.Element{Name: "result", Type: types.AtServer(valueType)},
							types.Element{Name: "measurements", Type: stateType},
						),
					}
					assert.True(t, process.Types().NextType().Equivalent(expectedNext), "got %s", process.Types().NextType())
				})
			}
		}
	}
}

func TestIncorrectCreateTypeFails(t *testing.T) {
	t.Parallel()

	wrongTypes := map[string]types.Type{
		"federated type": types.AtServer(floatType),
		"function type":  types.FunctionType{Result: types.Struct()},
		"sequence type":  types.SequenceType{Element: floatType},
		"string tensor":  types.Tensor(types.String),
		"bool leaf":      types.Struct(floatType, types.Tensor(types.Bool, 2)),
	}

	for name, wrong := range wrongTypes {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			factory := aggregators.NewMeanFactory()
			_, err := factory.CreateUnweighted(wrong)
			assert.ErrorIs(t, err, pkgerrors.ErrTypeMismatch)
			_, err = factory.CreateWeighted(wrong, floatType)
			assert.ErrorIs(t, err, pkgerrors.ErrTypeMismatch)
			_, err = factory.CreateWeighted(floatType, wrong)
			assert.ErrorIs(t, err, pkgerrors.ErrTypeMismatch)
		})
	}
}

func TestWeightTypeMustBeNumericScalar(t *testing.T) {
	t.Parallel()

	factory := aggregators.NewMeanFactory()
	for _, wt := range []types.Type{types.Tensor(types.Float32, 2), types.Tensor(types.Bool), structType} {
		_, err := factory.CreateWeighted(floatType, wt)
		assert.ErrorIs(t, err, pkgerrors.ErrTypeMismatch, "weight type %s", wt)
	}
}

func TestScalarValueUnweighted(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory().CreateUnweighted(floatType)
	require.NoError(t, err)

	expected := aggregators.State{aggregators.ValueSumKey: aggregators.Empty{}}
	state := process.Initialize()
	assert.Equal(t, expected, state)

	out, err := process.Next(state, scalars(t, types.Float32, 1, 2, 3))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, scalarResult(t, out), 1e-6)
	assert.Equal(t, expected, out.State)
	assert.Equal(t, aggregators.Measurements{aggregators.ValueSumKey: aggregators.Empty{}}, out.Measurements)
}

func TestScalarValueWeighted(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory().CreateWeighted(floatType, floatType)
	require.NoError(t, err)

	expected := aggregators.State{aggregators.ValueSumKey: aggregators.Empty{}, aggregators.WeightSumKey: aggregators.Empty{}}
	state := process.Initialize()
	assert.Equal(t, expected, state)

	out, err := process.Next(state, scalars(t, types.Float32, 1, 2, 3), scalars(t, types.Float32, 3, 2, 1))
	require.NoError(t, err)
	assert.InDelta(t, 10.0/6.0, scalarResult(t, out), 1e-6)
	assert.Equal(t, expected, out.State)
	assert.Equal(t, aggregators.Measurements{aggregators.ValueSumKey: aggregators.Empty{}, aggregators.WeightSumKey: aggregators.Empty{}}, out.Measurements)
}

func TestStructureValueUnweighted(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory().CreateUnweighted(structType)
	require.NoError(t, err)

	out, err := process.Next(process.Initialize(), structValues(t))
	require.NoError(t, err)
	assert.True(t, out.Result.Type().Equivalent(structType))
	assertLiteralClose(t, []any{[]any{2.0, 7.0 / 3.0}, 4.0}, out.Result.Literal())
}

func TestStructureValueWeighted(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory().CreateWeighted(structType, floatType)
	require.NoError(t, err)

	out, err := process.Next(process.Initialize(), structValues(t), scalars(t, types.Float32, 3, 2, 1))
	require.NoError(t, err)
	assert.True(t, out.Result.Type().Equivalent(structType))
	assertLiteralClose(t, []any{[]any{10.0 / 6.0, 16.0 / 6.0}, 22.0 / 6.0}, out.Result.Literal())
}

func TestWeightArg(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory().CreateWeighted(floatType, floatType)
	require.NoError(t, err)
	state := process.Initialize()
	values := scalars(t, types.Float32, 1, 2, 3)

	cases := []struct {
		weights  []float64
		expected float64
	}{
		{[]float64{1, 1, 1}, 2},
		{[]float64{0.1, 0.1, 0.1}, 2},
		{[]float64{6, 3, 1}, 1.5},
	}
	for _, tc := range cases {
		out, err := process.Next(state, values, scalars(t, types.Float32, tc.weights...))
		require.NoError(t, err)
		assert.InDelta(t, tc.expected, scalarResult(t, out), 1e-6)
	}
}

func TestIntegerWeights(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory().CreateWeighted(floatType, types.Tensor(types.Int64))
	require.NoError(t, err)

	out, err := process.Next(process.Initialize(), scalars(t, types.Float32, 1, 2, 3), scalars(t, types.Int64, 3, 2, 1))
	require.NoError(t, err)
	assert.InDelta(t, 10.0/6.0, scalarResult(t, out), 1e-6)
}

func TestWeightArgAllZeros(t *testing.T) {
	t.Parallel()

	values := scalars(t, types.Float32, 1, 2, 3)
	weights := scalars(t, types.Float32, 0, 0, 0)

	nanProcess, err := aggregators.NewMeanFactory(aggregators.WithNoNaNDivision(false)).CreateWeighted(floatType, floatType)
	require.NoError(t, err)
	out, err := nanProcess.Next(nanProcess.Initialize(), values, weights)
	require.NoError(t, err)
	got := scalarResult(t, out)
	assert.True(t, math.IsNaN(got) || math.IsInf(got, 0), "expected a non-finite result, got %v", got)

	safeProcess, err := aggregators.NewMeanFactory(aggregators.WithNoNaNDivision(true)).CreateWeighted(floatType, floatType)
	require.NoError(t, err)
	out, err = safeProcess.Next(safeProcess.Initialize(), values, weights)
	require.NoError(t, err)
	assert.Equal(t, 0.0, scalarResult(t, out))
}

func TestNoClientsUnweighted(t *testing.T) {
	t.Parallel()

	safe, err := aggregators.NewMeanFactory(aggregators.WithNoNaNDivision(true)).CreateUnweighted(floatType)
	require.NoError(t, err)
	out, err := safe.Next(safe.Initialize(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, scalarResult(t, out))

	plain, err := aggregators.NewMeanFactory().CreateUnweighted(floatType)
	require.NoError(t, err)
	out, err = plain.Next(plain.Initialize(), nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(scalarResult(t, out)))
}

func TestInnerValueSumFactoryUnweighted(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory(aggregators.WithValueSumFactory(sumPlusOneFactory{})).CreateUnweighted(floatType)
	require.NoError(t, err)

	state := process.Initialize()
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: 0}, state)

	// Values sum to 7.
	out, err := process.Next(state, scalars(t, types.Float32, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: 1}, out.State)
	assert.InDelta(t, 7.0/3.0, scalarResult(t, out), 1e-6)
	assert.Equal(t, aggregators.Measurements{aggregators.ValueSumKey: measurementConstant}, out.Measurements)
}

func TestInnerValueSumFactoryWeighted(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory(aggregators.WithValueSumFactory(sumPlusOneFactory{})).CreateWeighted(floatType, floatType)
	require.NoError(t, err)

	state := process.Initialize()
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: 0, aggregators.WeightSumKey: aggregators.Empty{}}, state)

	// Weighted values sum to 11.
	out, err := process.Next(state, scalars(t, types.Float32, 1, 2, 3), scalars(t, types.Float32, 3, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: 1, aggregators.WeightSumKey: aggregators.Empty{}}, out.State)
	assert.InDelta(t, 11.0/6.0, scalarResult(t, out), 1e-6)
	assert.Equal(t, aggregators.Measurements{aggregators.ValueSumKey: measurementConstant, aggregators.WeightSumKey: aggregators.Empty{}}, out.Measurements)
}

func TestInnerWeightSumFactory(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory(aggregators.WithWeightSumFactory(sumPlusOneFactory{})).CreateWeighted(floatType, floatType)
	require.NoError(t, err)

	state := process.Initialize()
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: aggregators.Empty{}, aggregators.WeightSumKey: 0}, state)

	// Weights sum to 4.
	out, err := process.Next(state, scalars(t, types.Float32, 1, 2, 3), scalars(t, types.Float32, 1, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: aggregators.Empty{}, aggregators.WeightSumKey: 1}, out.State)
	assert.InDelta(t, 1.5, scalarResult(t, out), 1e-6)
	assert.Equal(t, aggregators.Measurements{aggregators.ValueSumKey: aggregators.Empty{}, aggregators.WeightSumKey: measurementConstant}, out.Measurements)
}

func TestInnerValueAndWeightSumFactory(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory(
		aggregators.WithValueSumFactory(sumPlusOneFactory{}),
		aggregators.WithWeightSumFactory(sumPlusOneFactory{}),
	).CreateWeighted(floatType, floatType)
	require.NoError(t, err)

	state := process.Initialize()
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: 0, aggregators.WeightSumKey: 0}, state)

	// Weighted values sum to 7 and weights to 4.
	out, err := process.Next(state, scalars(t, types.Float32, 1, 2, 3), scalars(t, types.Float32, 1, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, aggregators.State{aggregators.ValueSumKey: 1, aggregators.WeightSumKey: 1}, out.State)
	assert.InDelta(t, 7.0/4.0, scalarResult(t, out), 1e-6)
	assert.Equal(t, aggregators.Measurements{aggregators.ValueSumKey: measurementConstant, aggregators.WeightSumKey: measurementConstant}, out.Measurements)
}

func TestNextInvalidInput(t *testing.T) {
	t.Parallel()

	process, err := aggregators.NewMeanFactory().CreateWeighted(floatType, floatType)
	require.NoError(t, err)

	_, err = process.Next(aggregators.State{aggregators.ValueSumKey: aggregators.Empty{}}, nil, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)

	_, err = process.Next(process.Initialize(), scalars(t, types.Float32, 1, 2), scalars(t, types.Float32, 1))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)

	_, err = process.Next(process.Initialize(), scalars(t, types.Float64, 1), scalars(t, types.Float32, 1))
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedValue)
}
