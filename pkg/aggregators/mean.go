package aggregators

import (
	"fmt"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
)

var (
	_ UnweightedFactory = (*MeanFactory)(nil)
	_ WeightedFactory   = (*MeanFactory)(nil)
)

// MeanFactory creates processes computing the (weighted) mean of client
// values. Summation is delegated to the inner sum factories; the mean process
// only performs the final division.
type MeanFactory struct {
	valueSum      UnweightedFactory
	weightSum     UnweightedFactory
	noNaNDivision bool
}

type Option func(*MeanFactory)

// WithValueSumFactory replaces the factory summing (weighted) client values.
func WithValueSumFactory(f UnweightedFactory) Option {
	return func(mf *MeanFactory) {
		mf.valueSum = f
	}
}

// WithWeightSumFactory replaces the factory summing client weights.
func WithWeightSumFactory(f UnweightedFactory) Option {
	return func(mf *MeanFactory) {
		mf.weightSum = f
	}
}

// WithNoNaNDivision makes a zero denominator produce 0 instead of NaN or Inf.
func WithNoNaNDivision(enabled bool) Option {
	return func(mf *MeanFactory) {
		mf.noNaNDivision = enabled
	}
}

func NewMeanFactory(opts ...Option) *MeanFactory {
	mf := &MeanFactory{
		valueSum:  NewSumFactory(),
		weightSum: NewSumFactory(),
	}
	for _, opt := range opts {
		opt(mf)
	}

	return mf
}

func (mf *MeanFactory) CreateUnweighted(valueType types.Type) (UnweightedProcess, error) {
	if err := CheckValueType(valueType); err != nil {
		return nil, err
	}

	valueSum, err := mf.valueSum.CreateUnweighted(valueType)
	if err != nil {
		return nil, fmt.Errorf("failed to create value sum process: %w", err)
	}

	return &unweightedMean{
		valueType:     valueType,
		valueSum:      valueSum,
		noNaNDivision: mf.noNaNDivision,
	}, nil
}

func (mf *MeanFactory) CreateWeighted(valueType, weightType types.Type) (WeightedProcess, error) {
	if err := CheckValueType(valueType); err != nil {
		return nil, err
	}
	if err := CheckWeightType(weightType); err != nil {
		return nil, err
	}

	valueSum, err := mf.valueSum.CreateUnweighted(valueType)
	if err != nil {
		return nil, fmt.Errorf("failed to create value sum process: %w", err)
	}
	weightSum, err := mf.weightSum.CreateUnweighted(weightType)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight sum process: %w", err)
	}

	return &weightedMean{
		valueType:     valueType,
		weightType:    weightType,
		valueSum:      valueSum,
		weightSum:     weightSum,
		noNaNDivision: mf.noNaNDivision,
	}, nil
}

type unweightedMean struct {
	valueType     types.Type
	valueSum      UnweightedProcess
	noNaNDivision bool
}

func (p *unweightedMean) Types() ProcessTypes {
	inner := p.valueSum.Types()

	return ProcessTypes{
		State:        types.NamedStruct(types.Element{Name: ValueSumKey, Type: inner.State}),
		Value:        p.valueType,
		Measurements: types.NamedStruct(types.Element{Name: ValueSumKey, Type: inner.Measurements}),
	}
}

func (p *unweightedMean) Initialize() any {
	return State{ValueSumKey: p.valueSum.Initialize()}
}

func (p *unweightedMean) Next(state any, values []structure.Value) (MeasuredOutput, error) {
	st, err := stateOf(state, ValueSumKey)
	if err != nil {
		return MeasuredOutput{}, err
	}

	out, err := p.valueSum.Next(st[ValueSumKey], values)
	if err != nil {
		return MeasuredOutput{}, err
	}

	count := float64(len(values))
	result, err := structure.Map(out.Result, func(t tensor.Tensor) (tensor.Tensor, error) {
		return t.Div(count, p.noNaNDivision), nil
	})
	if err != nil {
		return MeasuredOutput{}, err
	}

	return MeasuredOutput{
		State:        State{ValueSumKey: out.State},
		Result:       result,
		Measurements: Measurements{ValueSumKey: out.Measurements},
	}, nil
}

type weightedMean struct {
	valueType     types.Type
	weightType    types.Type
	valueSum      UnweightedProcess
	weightSum     UnweightedProcess
	noNaNDivision bool
}

func (p *weightedMean) Types() ProcessTypes {
	value := p.valueSum.Types()
	weight := p.weightSum.Types()

	return ProcessTypes{
		State: types.NamedStruct(
			types.Element{Name: ValueSumKey, Type: value.State},
			types.Element{Name: WeightSumKey, Type: weight.State},
		),
		Value:  p.valueType,
		Weight: p.weightType,
		Measurements: types.NamedStruct(
			types.Element{Name: ValueSumKey, Type: value.Measurements},
			types.Element{Name: WeightSumKey, Type: weight.Measurements},
		),
	}
}

func (p *weightedMean) Initialize() any {
	return State{
		ValueSumKey:  p.valueSum.Initialize(),
		WeightSumKey: p.weightSum.Initialize(),
	}
}

func (p *weightedMean) Next(state any, values, weights []structure.Value) (MeasuredOutput, error) {
	st, err := stateOf(state, ValueSumKey, WeightSumKey)
	if err != nil {
		return MeasuredOutput{}, err
	}
	if len(values) != len(weights) {
		return MeasuredOutput{}, fmt.Errorf("%w: %d values but %d weights", pkgerrors.ErrInvalidData, len(values), len(weights))
	}

	weighted := make([]structure.Value, len(values))
	for i := range values {
		w, err := p.scalarWeight(weights[i])
		if err != nil {
			return MeasuredOutput{}, fmt.Errorf("client %d: %w", i, err)
		}
		weighted[i], err = structure.Map(values[i], func(t tensor.Tensor) (tensor.Tensor, error) {
			return t.Mul(w), nil
		})
		if err != nil {
			return MeasuredOutput{}, err
		}
	}

	valueOut, err := p.valueSum.Next(st[ValueSumKey], weighted)
	if err != nil {
		return MeasuredOutput{}, err
	}
	weightOut, err := p.weightSum.Next(st[WeightSumKey], weights)
	if err != nil {
		return MeasuredOutput{}, err
	}
	weightSum, err := p.scalarWeight(weightOut.Result)
	if err != nil {
		return MeasuredOutput{}, err
	}

	result, err := structure.Map(valueOut.Result, func(t tensor.Tensor) (tensor.Tensor, error) {
		return t.Div(weightSum, p.noNaNDivision), nil
	})
	if err != nil {
		return MeasuredOutput{}, err
	}

	return MeasuredOutput{
		State: State{
			ValueSumKey:  valueOut.State,
			WeightSumKey: weightOut.State,
		},
		Result: result,
		Measurements: Measurements{
			ValueSumKey:  valueOut.Measurements,
			WeightSumKey: weightOut.Measurements,
		},
	}, nil
}

func (p *weightedMean) scalarWeight(v structure.Value) (float64, error) {
	if err := v.Conforms(p.weightType); err != nil {
		return 0, err
	}
	t, _ := v.Tensor()

	return t.Item()
}
