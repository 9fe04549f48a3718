package tensor

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/types"
)

// Infer derives dtype, shape and row-major elements from a Go literal: a
// scalar, a flat or two-level typed slice, or nested []any as produced by
// encoding/json. Mixed element kinds are promoted bool < int32 < int64 <
// float32 < float64.
func Infer(lit any) (types.DType, types.Shape, []float64, error) {
	if t, ok := lit.(Tensor); ok {
		return t.dtype, t.Shape(), t.Values(), nil
	}

	inf := &inference{}
	shape, err := inf.walk(normalize(lit), 0)
	if err != nil {
		return types.Invalid, nil, nil, err
	}
	if inf.dtype == types.Invalid {
		inf.dtype = types.Float32
	}

	return inf.dtype, shape, inf.data, nil
}

// FromLiteral builds a tensor of type tt from a literal. The literal's shape
// must match tt exactly; unknown dimensions in tt match any size.
func FromLiteral(tt types.TensorType, lit any) (Tensor, error) {
	_, shape, data, err := Infer(lit)
	if err != nil {
		return Tensor{}, err
	}
	if !shapeMatches(tt.Shape, shape) {
		return Tensor{}, fmt.Errorf("%w: expected shape %s, got %s", pkgerrors.ErrMalformedValue, tt.Shape, shape)
	}

	return New(tt.DType, shape, data)
}

// Literal returns the elements nested per the shape: a float64 (or bool) for
// scalars, []any otherwise.
func (t Tensor) Literal() any {
	if t.shape.Rank() == 0 {
		return t.element(0)
	}
	lit, _ := t.nest(0, 0)

	return lit
}

func (t Tensor) nest(dim, offset int) (any, int) {
	n := int(t.shape[dim])
	out := make([]any, n)
	for i := 0; i < n; i++ {
		if dim == t.shape.Rank()-1 {
			out[i] = t.element(offset)
			offset++

			continue
		}
		out[i], offset = t.nest(dim+1, offset)
	}

	return out, offset
}

func (t Tensor) element(i int) any {
	if t.dtype == types.Bool {
		return t.data[i] != 0
	}

	return t.data[i]
}

func shapeMatches(want, got types.Shape) bool {
	if want.Rank() != got.Rank() {
		return false
	}
	for i := range want {
		if want[i] >= 0 && want[i] != got[i] {
			return false
		}
	}

	return true
}

type inference struct {
	dtype types.DType
	data  []float64
}

func (inf *inference) walk(lit any, depth int) (types.Shape, error) {
	items, ok := lit.([]any)
	if !ok {
		v, dtype, err := scalar(lit)
		if err != nil {
			return nil, err
		}
		inf.promote(dtype)
		inf.data = append(inf.data, v)

		return types.Shape{}, nil
	}

	var inner types.Shape
	for i, item := range items {
		s, err := inf.walk(normalize(item), depth+1)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			inner = s

			continue
		}
		if !inner.Equal(s) {
			return nil, fmt.Errorf("%w: ragged literal at depth %d", pkgerrors.ErrMalformedValue, depth)
		}
	}

	return append(types.Shape{int64(len(items))}, inner...), nil
}

var promotion = map[types.DType]int{
	types.Invalid: 0,
	types.Bool:    1,
	types.Int32:   2,
	types.Int64:   3,
	types.Float32: 4,
	types.Float64: 5,
}

func (inf *inference) promote(d types.DType) {
	if promotion[d] > promotion[inf.dtype] {
		inf.dtype = d
	}
}

func scalar(lit any) (float64, types.DType, error) {
	switch v := lit.(type) {
	case float64:
		return v, types.Float64, nil
	case float32:
		return float64(v), types.Float32, nil
	case int:
		return float64(v), types.Int64, nil
	case int64:
		return float64(v), types.Int64, nil
	case int32:
		return float64(v), types.Int32, nil
	case bool:
		if v {
			return 1, types.Bool, nil
		}

		return 0, types.Bool, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, types.Invalid, fmt.Errorf("%w: %s", pkgerrors.ErrMalformedValue, err)
		}
		if _, err := v.Int64(); err == nil {
			return f, types.Int64, nil
		}

		return f, types.Float64, nil
	default:
		return 0, types.Invalid, fmt.Errorf("%w: unsupported element %T", pkgerrors.ErrMalformedValue, lit)
	}
}

func normalize(lit any) any {
	switch v := lit.(type) {
	case []float64:
		return anySlice(v)
	case []float32:
		return anySlice(v)
	case []int:
		return anySlice(v)
	case []int32:
		return anySlice(v)
	case []int64:
		return anySlice(v)
	case []bool:
		return anySlice(v)
	case [][]float64:
		return nestedSlice(v)
	case [][]float32:
		return nestedSlice(v)
	case [][]int32:
		return nestedSlice(v)
	case [][]int64:
		return nestedSlice(v)
	default:
		return lit
	}
}

func anySlice[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}

	return out
}

func nestedSlice[T any](s [][]T) []any {
	out := make([]any, len(s))
	for i, row := range s {
		out[i] = anySlice(row)
	}

	return out
}
