// Package structure represents nested values whose leaves are tensors and
// provides leaf-wise mapping over them.
package structure

import (
	"fmt"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
)

// Value is either a tensor leaf or a struct of (optionally named) values.
type Value struct {
	leaf     *tensor.Tensor
	elements []Element
}

type Element struct {
	Name  string
	Value Value
}

func Leaf(t tensor.Tensor) Value {
	return Value{leaf: &t}
}

// Struct builds an unnamed struct value.
func Struct(members ...Value) Value {
	elems := make([]Element, len(members))
	for i, m := range members {
		elems[i] = Element{Value: m}
	}

	return Value{elements: elems}
}

func NamedStruct(elems ...Element) Value {
	return Value{elements: append([]Element{}, elems...)}
}

func (v Value) IsLeaf() bool {
	return v.leaf != nil
}

// Tensor returns the leaf tensor, if v is a leaf.
func (v Value) Tensor() (tensor.Tensor, bool) {
	if v.leaf == nil {
		return tensor.Tensor{}, false
	}

	return *v.leaf, true
}

func (v Value) Elements() []Element {
	return append([]Element(nil), v.elements...)
}

// Type derives the type descriptor of v.
func (v Value) Type() types.Type {
	if v.leaf != nil {
		return v.leaf.Type()
	}
	elems := make([]types.Element, len(v.elements))
	for i, e := range v.elements {
		elems[i] = types.Element{Name: e.Name, Type: e.Value.Type()}
	}

	return types.StructType{Elements: elems}
}

// Conforms checks that v has exactly type t.
func (v Value) Conforms(t types.Type) error {
	if !types.IsStructureOfTensors(t) {
		return fmt.Errorf("%w: %s is not a structure of tensors", pkgerrors.ErrTypeMismatch, t)
	}
	if !v.Type().Equivalent(t) {
		return fmt.Errorf("%w: value of type %s does not conform to %s", pkgerrors.ErrMalformedValue, v.Type(), t)
	}

	return nil
}

// Flatten returns the leaves in depth-first order.
func (v Value) Flatten() []tensor.Tensor {
	if v.leaf != nil {
		return []tensor.Tensor{*v.leaf}
	}
	var leaves []tensor.Tensor
	for _, e := range v.elements {
		leaves = append(leaves, e.Value.Flatten()...)
	}

	return leaves
}

func (v Value) Equal(o Value) bool {
	if (v.leaf == nil) != (o.leaf == nil) {
		return false
	}
	if v.leaf != nil {
		return v.leaf.Equal(*o.leaf)
	}
	if len(v.elements) != len(o.elements) {
		return false
	}
	for i := range v.elements {
		if v.elements[i].Name != o.elements[i].Name || !v.elements[i].Value.Equal(o.elements[i].Value) {
			return false
		}
	}

	return true
}

func (v Value) String() string {
	if v.leaf != nil {
		return v.leaf.String()
	}
	s := "<"
	for i, e := range v.elements {
		if i > 0 {
			s += ","
		}
		if e.Name != "" {
			s += e.Name + "="
		}
		s += e.Value.String()
	}

	return s + ">"
}

// Map applies fn to every leaf, keeping the structure.
func Map(v Value, fn func(tensor.Tensor) (tensor.Tensor, error)) (Value, error) {
	if v.leaf != nil {
		t, err := fn(*v.leaf)
		if err != nil {
			return Value{}, err
		}

		return Leaf(t), nil
	}

	elems := make([]Element, len(v.elements))
	for i, e := range v.elements {
		mapped, err := Map(e.Value, fn)
		if err != nil {
			return Value{}, err
		}
		elems[i] = Element{Name: e.Name, Value: mapped}
	}

	return Value{elements: elems}, nil
}

// Zip applies fn to corresponding leaves of a and b, which must share the
// same structure and element names.
func Zip(a, b Value, fn func(x, y tensor.Tensor) (tensor.Tensor, error)) (Value, error) {
	if (a.leaf == nil) != (b.leaf == nil) {
		return Value{}, fmt.Errorf("%w: cannot zip %s with %s", pkgerrors.ErrMalformedValue, a.Type(), b.Type())
	}
	if a.leaf != nil {
		t, err := fn(*a.leaf, *b.leaf)
		if err != nil {
			return Value{}, err
		}

		return Leaf(t), nil
	}
	if len(a.elements) != len(b.elements) {
		return Value{}, fmt.Errorf("%w: cannot zip %s with %s", pkgerrors.ErrMalformedValue, a.Type(), b.Type())
	}

	elems := make([]Element, len(a.elements))
	for i := range a.elements {
		if a.elements[i].Name != b.elements[i].Name {
			return Value{}, fmt.Errorf("%w: element %d named %q and %q", pkgerrors.ErrMalformedValue, i, a.elements[i].Name, b.elements[i].Name)
		}
		zipped, err := Zip(a.elements[i].Value, b.elements[i].Value, fn)
		if err != nil {
			return Value{}, err
		}
		elems[i] = Element{Name: a.elements[i].Name, Value: zipped}
	}

	return Value{elements: elems}, nil
}

// Zeros returns a value of type t with every leaf zero-filled.
func Zeros(t types.Type) (Value, error) {
	switch tt := t.(type) {
	case types.TensorType:
		z, err := tensor.Zeros(tt)
		if err != nil {
			return Value{}, err
		}

		return Leaf(z), nil
	case types.StructType:
		elems := make([]Element, len(tt.Elements))
		for i, e := range tt.Elements {
			z, err := Zeros(e.Type)
			if err != nil {
				return Value{}, err
			}
			elems[i] = Element{Name: e.Name, Value: z}
		}

		return Value{elements: elems}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s is not a structure of tensors", pkgerrors.ErrTypeMismatch, t)
	}
}
