package structure

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
)

// FromLiteral builds a value of type t from nested Go data. Tensor leaves take
// anything tensor.FromLiteral accepts; structs take a []any with one entry per
// element or, when every element is named, a map[string]any.
func FromLiteral(t types.Type, lit any) (Value, error) {
	if v, ok := lit.(Value); ok {
		if err := v.Conforms(t); err != nil {
			return Value{}, err
		}

		return v, nil
	}

	switch tt := t.(type) {
	case types.TensorType:
		leaf, err := tensor.FromLiteral(tt, lit)
		if err != nil {
			return Value{}, err
		}

		return Leaf(leaf), nil
	case types.StructType:
		return structFromLiteral(tt, lit)
	default:
		return Value{}, fmt.Errorf("%w: %s is not a structure of tensors", pkgerrors.ErrTypeMismatch, t)
	}
}

func structFromLiteral(t types.StructType, lit any) (Value, error) {
	var items []any
	switch l := lit.(type) {
	case []any:
		items = l
	case map[string]any:
		items = make([]any, len(t.Elements))
		for i, e := range t.Elements {
			item, ok := l[e.Name]
			if e.Name == "" || !ok {
				return Value{}, fmt.Errorf("%w: missing element %q", pkgerrors.ErrMalformedValue, e.Name)
			}
			items[i] = item
		}
		if len(l) != len(t.Elements) {
			return Value{}, fmt.Errorf("%w: expected %d elements, got %d", pkgerrors.ErrMalformedValue, len(t.Elements), len(l))
		}
	default:
		return Value{}, fmt.Errorf("%w: expected a list for %s, got %T", pkgerrors.ErrMalformedValue, t, lit)
	}
	if len(items) != len(t.Elements) {
		return Value{}, fmt.Errorf("%w: expected %d elements, got %d", pkgerrors.ErrMalformedValue, len(t.Elements), len(items))
	}

	elems := make([]Element, len(items))
	for i, item := range items {
		v, err := FromLiteral(t.Elements[i].Type, item)
		if err != nil {
			return Value{}, err
		}
		elems[i] = Element{Name: t.Elements[i].Name, Value: v}
	}

	return Value{elements: elems}, nil
}

// FromJSON decodes a JSON literal into a value of type t.
func FromJSON(t types.Type, data []byte) (Value, error) {
	var lit any
	if err := json.Unmarshal(data, &lit); err != nil {
		return Value{}, fmt.Errorf("%w: %s", pkgerrors.ErrMalformedValue, err)
	}

	return FromLiteral(t, lit)
}

// Literal is the inverse of FromLiteral. Structs whose elements are all named
// become maps.
func (v Value) Literal() any {
	if v.leaf != nil {
		return v.leaf.Literal()
	}

	named := len(v.elements) > 0
	for _, e := range v.elements {
		if e.Name == "" {
			named = false

			break
		}
	}
	if named {
		out := make(map[string]any, len(v.elements))
		for _, e := range v.elements {
			out[e.Name] = e.Value.Literal()
		}

		return out
	}

	out := make([]any, len(v.elements))
	for i, e := range v.elements {
		out[i] = e.Value.Literal()
	}

	return out
}
