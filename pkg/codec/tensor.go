// Package codec converts tensors and structures of tensors to and from
// self-describing value envelopes.
package codec

import (
	"fmt"
	"strings"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
	"google.golang.org/protobuf/types/known/anypb"
)

const (
	typeURLPrefix     = "type.googleapis.com/"
	tensorMessageName = "tensorflow.TensorProto"

	// TensorTypeURL identifies a TensorProto packed into an Any.
	TensorTypeURL = typeURLPrefix + tensorMessageName
)

// SerializeTensorValue packs value into a tensor envelope. With a nil
// typeSpec the dtype and shape are inferred from value; otherwise typeSpec
// must be a tensor type, value is converted to its dtype and its shape must
// match.
func SerializeTensorValue(value any, typeSpec types.Type) (Value, error) {
	var (
		t   tensor.Tensor
		err error
	)
	switch {
	case typeSpec != nil:
		tt, ok := typeSpec.(types.TensorType)
		if !ok {
			return Value{}, fmt.Errorf("%w: expected a tensor type, got %s", pkgerrors.ErrTypeMismatch, typeSpec)
		}
		t, err = tensor.FromLiteral(tt, value)
	default:
		dtype, shape, data, ierr := tensor.Infer(value)
		if ierr != nil {
			return Value{}, ierr
		}
		t, err = tensor.New(dtype, shape, data)
	}
	if err != nil {
		return Value{}, err
	}

	return Value{
		Kind: KindTensor,
		Tensor: &anypb.Any{
			TypeUrl: TensorTypeURL,
			Value:   marshalTensorProto(t),
		},
	}, nil
}

// DeserializeTensorValue unpacks a tensor envelope. The returned type is
// recovered from the payload itself.
func DeserializeTensorValue(v Value) (tensor.Tensor, types.TensorType, error) {
	if v.Kind != KindTensor {
		return tensor.Tensor{}, types.TensorType{}, fmt.Errorf("%w: not a tensor value: %s", pkgerrors.ErrMalformedValue, v.Kind)
	}
	if v.Tensor == nil || messageName(v.Tensor.GetTypeUrl()) != tensorMessageName {
		return tensor.Tensor{}, types.TensorType{}, fmt.Errorf("%w: unable to unpack the received tensor value", pkgerrors.ErrMalformedValue)
	}

	t, err := unmarshalTensorProto(v.Tensor.GetValue())
	if err != nil {
		return tensor.Tensor{}, types.TensorType{}, fmt.Errorf("unable to unpack the received tensor value: %w", err)
	}

	return t, t.Type(), nil
}

// SerializeValue packs a structure of tensors, keeping element names.
func SerializeValue(v structure.Value) (Value, error) {
	if leaf, ok := v.Tensor(); ok {
		return SerializeTensorValue(leaf, leaf.Type())
	}

	elems := v.Elements()
	out := make([]Element, len(elems))
	for i, e := range elems {
		packed, err := SerializeValue(e.Value)
		if err != nil {
			return Value{}, err
		}
		out[i] = Element{Name: e.Name, Value: packed}
	}

	return Value{Kind: KindStruct, Struct: out}, nil
}

// DeserializeValue unpacks tensor and struct envelopes into a structure and
// its type.
func DeserializeValue(v Value) (structure.Value, types.Type, error) {
	switch v.Kind {
	case KindTensor:
		t, tt, err := DeserializeTensorValue(v)
		if err != nil {
			return structure.Value{}, nil, err
		}

		return structure.Leaf(t), tt, nil
	case KindStruct:
		elems := make([]structure.Element, len(v.Struct))
		typeElems := make([]types.Element, len(v.Struct))
		for i, e := range v.Struct {
			value, t, err := DeserializeValue(e.Value)
			if err != nil {
				return structure.Value{}, nil, err
			}
			elems[i] = structure.Element{Name: e.Name, Value: value}
			typeElems[i] = types.Element{Name: e.Name, Type: t}
		}

		return structure.NamedStruct(elems...), types.NamedStruct(typeElems...), nil
	default:
		return structure.Value{}, nil, fmt.Errorf("%w: cannot deserialize %s values", pkgerrors.ErrMalformedValue, v.Kind)
	}
}

func messageName(typeURL string) string {
	if i := strings.LastIndexByte(typeURL, '/'); i >= 0 {
		return typeURL[i+1:]
	}

	return typeURL
}
