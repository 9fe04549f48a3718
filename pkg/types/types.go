package types

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
)

type Kind uint8

const (
	KindTensor Kind = iota + 1
	KindStruct
	KindFederated
	KindFunction
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindTensor:
		return "tensor"
	case KindStruct:
		return "struct"
	case KindFederated:
		return "federated"
	case KindFunction:
		return "function"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Type describes the type of a value in a federated computation. The set of
// implementations is closed: TensorType, StructType, FederatedType,
// FunctionType and SequenceType.
type Type interface {
	Kind() Kind
	String() string
	// Equivalent reports whether both types have the same structure, names,
	// dtypes, shapes and placements.
	Equivalent(other Type) bool

	sealed()
}

type Placement string

const (
	Clients Placement = "CLIENTS"
	Server  Placement = "SERVER"
)

// Shape holds tensor dimensions. A negative dimension is unknown.
type Shape []int64

func (s Shape) Rank() int {
	return len(s)
}

// NumElements returns the element count, or -1 if any dimension is unknown
// or the count does not fit in an int64.
func (s Shape) NumElements() int64 {
	for _, d := range s {
		if d < 0 {
			return -1
		}
	}
	if slices.Contains(s, 0) {
		return 0
	}

	n := int64(1)
	for _, d := range s {
		if n > math.MaxInt64/d {
			return -1
		}
		n *= d
	}

	return n
}

func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}

	return true
}

func (s Shape) String() string {
	dims := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			dims[i] = "?"

			continue
		}
		dims[i] = strconv.FormatInt(d, 10)
	}

	return "[" + strings.Join(dims, ",") + "]"
}

type TensorType struct {
	DType DType
	Shape Shape
}

// Tensor returns a tensor type with the given dtype and dimensions.
func Tensor(dtype DType, dims ...int64) TensorType {
	return TensorType{DType: dtype, Shape: Shape(dims)}
}

func (TensorType) Kind() Kind { return KindTensor }

func (TensorType) sealed() {}

func (t TensorType) IsScalar() bool {
	return t.Shape.Rank() == 0
}

func (t TensorType) String() string {
	if t.Shape.Rank() == 0 {
		return t.DType.String()
	}

	return t.DType.String() + t.Shape.String()
}

func (t TensorType) Equivalent(other Type) bool {
	o, ok := other.(TensorType)
	if !ok {
		return false
	}

	return t.DType == o.DType && t.Shape.Equal(o.Shape)
}

// Element is a member of a StructType. Name is empty for positional members.
type Element struct {
	Name string
	Type Type
}

type StructType struct {
	Elements []Element
}

// Struct returns an unnamed struct type of the given members.
func Struct(members ...Type) StructType {
	elems := make([]Element, len(members))
	for i, m := range members {
		elems[i] = Element{Type: m}
	}

	return StructType{Elements: elems}
}

// NamedStruct returns a struct type of the given named members.
func NamedStruct(elems ...Element) StructType {
	return StructType{Elements: elems}
}

func (StructType) Kind() Kind { return KindStruct }

func (StructType) sealed() {}

func (t StructType) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		if e.Name != "" {
			parts[i] = e.Name + "=" + e.Type.String()

			continue
		}
		parts[i] = e.Type.String()
	}

	return "<" + strings.Join(parts, ",") + ">"
}

func (t StructType) Equivalent(other Type) bool {
	o, ok := other.(StructType)
	if !ok || len(t.Elements) != len(o.Elements) {
		return false
	}
	for i := range t.Elements {
		if t.Elements[i].Name != o.Elements[i].Name {
			return false
		}
		if !equivalent(t.Elements[i].Type, o.Elements[i].Type) {
			return false
		}
	}

	return true
}

// Field returns the type of the named member.
func (t StructType) Field(name string) (Type, bool) {
	for _, e := range t.Elements {
		if e.Name == name {
			return e.Type, true
		}
	}

	return nil, false
}

type FederatedType struct {
	Member    Type
	Placement Placement
	AllEqual  bool
}

// AtClients places member at clients with one value per client.
func AtClients(member Type) FederatedType {
	return FederatedType{Member: member, Placement: Clients}
}

// AtServer places member at the server as a single value.
func AtServer(member Type) FederatedType {
	return FederatedType{Member: member, Placement: Server, AllEqual: true}
}

func (FederatedType) Kind() Kind { return KindFederated }

func (FederatedType) sealed() {}

func (t FederatedType) String() string {
	if t.AllEqual {
		return t.Member.String() + "@" + string(t.Placement)
	}

	return "{" + t.Member.String() + "}@" + string(t.Placement)
}

func (t FederatedType) Equivalent(other Type) bool {
	o, ok := other.(FederatedType)
	if !ok {
		return false
	}

	return t.Placement == o.Placement && t.AllEqual == o.AllEqual && equivalent(t.Member, o.Member)
}

// FunctionType has a nil Parameter for functions without arguments.
type FunctionType struct {
	Parameter Type
	Result    Type
}

func (FunctionType) Kind() Kind { return KindFunction }

func (FunctionType) sealed() {}

func (t FunctionType) String() string {
	if t.Parameter == nil {
		return "( -> " + t.Result.String() + ")"
	}

	return "(" + t.Parameter.String() + " -> " + t.Result.String() + ")"
}

func (t FunctionType) Equivalent(other Type) bool {
	o, ok := other.(FunctionType)
	if !ok {
		return false
	}

	return equivalent(t.Parameter, o.Parameter) && equivalent(t.Result, o.Result)
}

type SequenceType struct {
	Element Type
}

func (SequenceType) Kind() Kind { return KindSequence }

func (SequenceType) sealed() {}

func (t SequenceType) String() string {
	return t.Element.String() + "*"
}

func (t SequenceType) Equivalent(other Type) bool {
	o, ok := other.(SequenceType)
	if !ok {
		return false
	}

	return equivalent(t.Element, o.Element)
}

func equivalent(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a.Equivalent(b)
}

// ToType converts a DType, a Type, or a (nested) slice of those into a Type.
// Slices become unnamed struct types.
func ToType(v any) (Type, error) {
	switch t := v.(type) {
	case Type:
		return t, nil
	case DType:
		return Tensor(t), nil
	case []Type:
		return Struct(t...), nil
	case []Element:
		return NamedStruct(t...), nil
	case []any:
		members := make([]Type, len(t))
		for i, m := range t {
			mt, err := ToType(m)
			if err != nil {
				return nil, err
			}
			members[i] = mt
		}

		return Struct(members...), nil
	case string:
		return Parse(t)
	default:
		return nil, fmt.Errorf("%w: cannot convert %T to a type", pkgerrors.ErrTypeMismatch, v)
	}
}

// IsStructureOfTensors reports whether t is a tensor type or a struct whose
// leaves are all tensor types.
func IsStructureOfTensors(t Type) bool {
	switch tt := t.(type) {
	case TensorType:
		return true
	case StructType:
		for _, e := range tt.Elements {
			if !IsStructureOfTensors(e.Type) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// Leaves returns the tensor types of t in depth-first order.
func Leaves(t Type) []TensorType {
	switch tt := t.(type) {
	case TensorType:
		return []TensorType{tt}
	case StructType:
		var leaves []TensorType
		for _, e := range tt.Elements {
			leaves = append(leaves, Leaves(e.Type)...)
		}

		return leaves
	default:
		return nil
	}
}
