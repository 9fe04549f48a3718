// Package tensor holds dense, typed, shaped numeric arrays and the elementwise
// arithmetic needed to aggregate them.
//
// Elements are kept as float64 regardless of dtype and rounded to the dtype's
// precision after every operation, so int64 values are exact only up to 2^53.
package tensor

import (
	"fmt"
	"math"
	"strings"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/x448/float16"
)

type Tensor struct {
	dtype types.DType
	shape types.Shape
	data  []float64
}

// New builds a tensor, converting data to the dtype's precision. The number
// of elements must match the shape.
func New(dtype types.DType, shape types.Shape, data []float64) (Tensor, error) {
	if !dtype.IsNumeric() && dtype != types.Bool {
		return Tensor{}, fmt.Errorf("%w: unsupported dtype %s", pkgerrors.ErrTypeMismatch, dtype)
	}
	n := shape.NumElements()
	if n < 0 {
		return Tensor{}, fmt.Errorf("%w: shape %s is not fully defined or too large", pkgerrors.ErrMalformedValue, shape)
	}
	if int64(len(data)) != n {
		return Tensor{}, fmt.Errorf("%w: %d elements do not fit shape %s", pkgerrors.ErrMalformedValue, len(data), shape)
	}

	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = convert(dtype, v)
	}

	return Tensor{
		dtype: dtype,
		shape: append(types.Shape{}, shape...),
		data:  values,
	}, nil
}

// Scalar returns a rank-0 tensor.
func Scalar(dtype types.DType, v float64) Tensor {
	return Tensor{
		dtype: dtype,
		shape: types.Shape{},
		data:  []float64{convert(dtype, v)},
	}
}

// Zeros returns a tensor of the given type filled with zeros.
func Zeros(tt types.TensorType) (Tensor, error) {
	n := tt.Shape.NumElements()
	if n < 0 {
		return Tensor{}, fmt.Errorf("%w: shape %s is not fully defined or too large", pkgerrors.ErrMalformedValue, tt.Shape)
	}

	return New(tt.DType, tt.Shape, make([]float64, n))
}

func (t Tensor) DType() types.DType {
	return t.dtype
}

func (t Tensor) Shape() types.Shape {
	return append(types.Shape{}, t.shape...)
}

func (t Tensor) Type() types.TensorType {
	return types.TensorType{DType: t.dtype, Shape: t.Shape()}
}

func (t Tensor) Len() int {
	return len(t.data)
}

// Values returns a copy of the elements in row-major order.
func (t Tensor) Values() []float64 {
	return append([]float64(nil), t.data...)
}

// At returns the i-th element in row-major order.
func (t Tensor) At(i int) float64 {
	return t.data[i]
}

// Item returns the only element of a single-element tensor.
func (t Tensor) Item() (float64, error) {
	if len(t.data) != 1 {
		return 0, fmt.Errorf("%w: tensor of shape %s is not a scalar", pkgerrors.ErrMalformedValue, t.shape)
	}

	return t.data[0], nil
}

// Cast converts the elements to another dtype.
func (t Tensor) Cast(dtype types.DType) Tensor {
	out := Tensor{dtype: dtype, shape: t.Shape(), data: make([]float64, len(t.data))}
	for i, v := range t.data {
		out.data[i] = convert(dtype, v)
	}

	return out
}

// Reshape returns the same elements under a different shape.
func (t Tensor) Reshape(shape types.Shape) (Tensor, error) {
	if shape.NumElements() != int64(len(t.data)) {
		return Tensor{}, fmt.Errorf("%w: cannot reshape %s to %s", pkgerrors.ErrMalformedValue, t.shape, shape)
	}

	return Tensor{dtype: t.dtype, shape: append(types.Shape{}, shape...), data: t.Values()}, nil
}

// Add returns the elementwise sum of two tensors of the same type.
func Add(a, b Tensor) (Tensor, error) {
	if a.dtype != b.dtype || !a.shape.Equal(b.shape) {
		return Tensor{}, fmt.Errorf("%w: cannot add %s and %s", pkgerrors.ErrMalformedValue, a.Type(), b.Type())
	}
	out := Tensor{dtype: a.dtype, shape: a.Shape(), data: make([]float64, len(a.data))}
	for i := range a.data {
		out.data[i] = convert(a.dtype, a.data[i]+b.data[i])
	}

	return out, nil
}

// Mul multiplies every element by s after converting s to the tensor's dtype.
func (t Tensor) Mul(s float64) Tensor {
	s = convert(t.dtype, s)
	out := Tensor{dtype: t.dtype, shape: t.Shape(), data: make([]float64, len(t.data))}
	for i, v := range t.data {
		out.data[i] = convert(t.dtype, v*s)
	}

	return out
}

// Div divides every element by s after converting s to the tensor's dtype.
// When noNaN is set a zero divisor yields zeros instead of NaN or Inf.
func (t Tensor) Div(s float64, noNaN bool) Tensor {
	s = convert(t.dtype, s)
	out := Tensor{dtype: t.dtype, shape: t.Shape(), data: make([]float64, len(t.data))}
	for i, v := range t.data {
		if noNaN && s == 0 {
			out.data[i] = 0

			continue
		}
		out.data[i] = convert(t.dtype, v/s)
	}

	return out
}

// Equal reports whether both tensors have the same dtype, shape and elements.
// NaN elements compare equal to each other.
func (t Tensor) Equal(o Tensor) bool {
	if t.dtype != o.dtype || !t.shape.Equal(o.shape) || len(t.data) != len(o.data) {
		return false
	}
	for i := range t.data {
		if t.data[i] == o.data[i] || (math.IsNaN(t.data[i]) && math.IsNaN(o.data[i])) {
			continue
		}

		return false
	}

	return true
}

func (t Tensor) String() string {
	vals := make([]string, len(t.data))
	for i, v := range t.data {
		vals[i] = fmt.Sprint(v)
	}

	return fmt.Sprintf("%s(%s)", t.Type(), strings.Join(vals, ","))
}

func convert(dtype types.DType, v float64) float64 {
	switch dtype {
	case types.Float64:
		return v
	case types.Float32:
		return float64(float32(v))
	case types.Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case types.Bool:
		if v != 0 && !math.IsNaN(v) {
			return 1
		}

		return 0
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = math.Trunc(v)
	switch dtype {
	case types.Int8:
		return float64(int8(int64(v)))
	case types.Int16:
		return float64(int16(int64(v)))
	case types.Int32:
		return float64(int32(int64(v)))
	case types.Uint8:
		return float64(uint8(int64(v)))
	default:
		return v
	}
}
