package aggregators

import (
	"fmt"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
)

var _ UnweightedFactory = SumFactory{}

// SumFactory creates processes that sum client values leaf-wise and keep no
// state.
type SumFactory struct{}

func NewSumFactory() SumFactory {
	return SumFactory{}
}

func (SumFactory) CreateUnweighted(valueType types.Type) (UnweightedProcess, error) {
	if err := CheckValueType(valueType); err != nil {
		return nil, err
	}

	return &sumProcess{valueType: valueType}, nil
}

type sumProcess struct {
	valueType types.Type
}

func (p *sumProcess) Types() ProcessTypes {
	return ProcessTypes{
		State:        types.Struct(),
		Value:        p.valueType,
		Measurements: types.Struct(),
	}
}

func (p *sumProcess) Initialize() any {
	return Empty{}
}

func (p *sumProcess) Next(state any, values []structure.Value) (MeasuredOutput, error) {
	if _, ok := state.(Empty); !ok {
		return MeasuredOutput{}, fmt.Errorf("%w: unexpected sum state %T", pkgerrors.ErrInvalidData, state)
	}

	sum, err := Sum(p.valueType, values)
	if err != nil {
		return MeasuredOutput{}, err
	}

	return MeasuredOutput{
		State:        Empty{},
		Result:       sum,
		Measurements: Empty{},
	}, nil
}

// Sum adds values of type valueType leaf-wise. It returns zeros when there
// are no values.
func Sum(valueType types.Type, values []structure.Value) (structure.Value, error) {
	if len(values) == 0 {
		return structure.Zeros(valueType)
	}

	for i, v := range values {
		if err := v.Conforms(valueType); err != nil {
			return structure.Value{}, fmt.Errorf("client %d: %w", i, err)
		}
	}

	sum := values[0]
	for _, v := range values[1:] {
		var err error
		sum, err = structure.Zip(sum, v, tensor.Add)
		if err != nil {
			return structure.Value{}, err
		}
	}

	return sum, nil
}
