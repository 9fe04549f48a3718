// Package aggregators implements stateful aggregation processes over values
// contributed by clients, in particular a weighted and unweighted mean built
// from pluggable sum processes.
package aggregators

import (
	"fmt"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/types"
)

const (
	ValueSumKey  = "value_sum_process"
	WeightSumKey = "weight_sum_process"
)

// State is the server state of a mean process, holding the opaque state of
// each inner process under its role key.
type State map[string]any

// Measurements holds the diagnostics emitted by each inner process, keyed
// like State.
type Measurements map[string]any

// Empty is the state and measurement of processes that keep none.
type Empty struct{}

type MeasuredOutput struct {
	State        any
	Result       structure.Value
	Measurements any
}

// ProcessTypes describes the unplaced types a process works with. Weight is
// nil for unweighted processes.
type ProcessTypes struct {
	State        types.Type
	Value        types.Type
	Weight       types.Type
	Measurements types.Type
}

// InitializeType is the federated signature of Initialize.
func (pt ProcessTypes) InitializeType() types.FunctionType {
	return types.FunctionType{Result: types.AtServer(pt.State)}
}

// NextType is the federated signature of Next: the state lives at the
// server, values and weights at the clients, and the result is placed at the
// server.
func (pt ProcessTypes) NextType() types.FunctionType {
	params := []types.Element{
		{Name: "state", Type: types.AtServer(pt.State)},
		{Name: "value", Type: types.AtClients(pt.Value)},
	}
	if pt.Weight != nil {
		params = append(params, types.Element{Name: "weight", Type: types.AtClients(pt.Weight)})
	}

	return types.FunctionType{
		Parameter: types.NamedStruct(params...),
		Result: types.NamedStruct(
			types.Element{Name: "state", Type: types.AtServer(pt.State)},
			types.Element{Name: "result", Type: types.AtServer(pt.Value)},
			types.Element{Name: "measurements", Type: types.AtServer(pt.Measurements)},
		),
	}
}

// UnweightedProcess aggregates one value per client.
type UnweightedProcess interface {
	Types() ProcessTypes
	Initialize() any
	Next(state any, values []structure.Value) (MeasuredOutput, error)
}

// WeightedProcess aggregates one value and one scalar weight per client.
type WeightedProcess interface {
	Types() ProcessTypes
	Initialize() any
	Next(state any, values, weights []structure.Value) (MeasuredOutput, error)
}

type UnweightedFactory interface {
	CreateUnweighted(valueType types.Type) (UnweightedProcess, error)
}

type WeightedFactory interface {
	CreateWeighted(valueType, weightType types.Type) (WeightedProcess, error)
}

// CheckValueType accepts a numeric tensor type or a nested struct of them.
func CheckValueType(t types.Type) error {
	if t == nil {
		return fmt.Errorf("%w: missing value type", pkgerrors.ErrTypeMismatch)
	}
	if !types.IsStructureOfTensors(t) {
		return fmt.Errorf("%w: value type must be a tensor or a structure of tensors, got %s", pkgerrors.ErrTypeMismatch, t)
	}
	for _, leaf := range types.Leaves(t) {
		if !leaf.DType.IsNumeric() {
			return fmt.Errorf("%w: value type %s has non-numeric leaf %s", pkgerrors.ErrTypeMismatch, t, leaf)
		}
	}

	return nil
}

// CheckWeightType accepts a scalar integer or floating point tensor type.
func CheckWeightType(t types.Type) error {
	if t == nil {
		return fmt.Errorf("%w: missing weight type", pkgerrors.ErrTypeMismatch)
	}
	tt, ok := t.(types.TensorType)
	if !ok || !tt.IsScalar() || !tt.DType.IsNumeric() {
		return fmt.Errorf("%w: weight type must be a numeric scalar, got %s", pkgerrors.ErrTypeMismatch, t)
	}

	return nil
}

func stateOf(state any, keys ...string) (State, error) {
	st, ok := state.(State)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected state %T", pkgerrors.ErrInvalidData, state)
	}
	if len(st) != len(keys) {
		return nil, fmt.Errorf("%w: state has %d keys, expected %v", pkgerrors.ErrInvalidData, len(st), keys)
	}
	for _, k := range keys {
		if _, ok := st[k]; !ok {
			return nil, fmt.Errorf("%w: state is missing %q", pkgerrors.ErrInvalidData, k)
		}
	}

	return st, nil
}
