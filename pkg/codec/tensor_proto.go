package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/x448/float16"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxBroadcastElements bounds the element count of a tensor filled from a
// short typed value list, where the payload size does not limit the shape.
const MaxBroadcastElements = 1 << 24

// TensorProto field numbers.
const (
	fieldDType         protowire.Number = 1
	fieldTensorShape   protowire.Number = 2
	fieldTensorContent protowire.Number = 4
	fieldFloatVal      protowire.Number = 5
	fieldDoubleVal     protowire.Number = 6
	fieldIntVal        protowire.Number = 7
	fieldInt64Val      protowire.Number = 10
	fieldBoolVal       protowire.Number = 11
	fieldHalfVal       protowire.Number = 13

	fieldShapeDim         protowire.Number = 2
	fieldShapeUnknownRank protowire.Number = 3
	fieldDimSize          protowire.Number = 1
)

// marshalTensorProto writes the dtype, the shape and the elements packed
// little-endian into tensor_content.
func marshalTensorProto(t tensor.Tensor) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldDType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.DType()))

	var shape []byte
	for _, d := range t.Shape() {
		var dim []byte
		dim = protowire.AppendTag(dim, fieldDimSize, protowire.VarintType)
		dim = protowire.AppendVarint(dim, uint64(d))
		shape = protowire.AppendTag(shape, fieldShapeDim, protowire.BytesType)
		shape = protowire.AppendBytes(shape, dim)
	}
	b = protowire.AppendTag(b, fieldTensorShape, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)

	if t.Len() > 0 {
		b = protowire.AppendTag(b, fieldTensorContent, protowire.BytesType)
		b = protowire.AppendBytes(b, packContent(t))
	}

	return b
}

func packContent(t tensor.Tensor) []byte {
	size := t.DType().Size()
	out := make([]byte, size*t.Len())
	for i := 0; i < t.Len(); i++ {
		v := t.At(i)
		chunk := out[i*size : (i+1)*size]
		switch t.DType() {
		case types.Float16:
			binary.LittleEndian.PutUint16(chunk, float16.Fromfloat32(float32(v)).Bits())
		case types.Float32:
			binary.LittleEndian.PutUint32(chunk, math.Float32bits(float32(v)))
		case types.Float64:
			binary.LittleEndian.PutUint64(chunk, math.Float64bits(v))
		case types.Int8:
			chunk[0] = byte(int8(v))
		case types.Uint8, types.Bool:
			chunk[0] = byte(uint8(v))
		case types.Int16:
			binary.LittleEndian.PutUint16(chunk, uint16(int16(v)))
		case types.Int32:
			binary.LittleEndian.PutUint32(chunk, uint32(int32(v)))
		case types.Int64:
			binary.LittleEndian.PutUint64(chunk, uint64(int64(v)))
		}
	}

	return out
}

func unpackContent(dtype types.DType, content []byte) ([]float64, error) {
	size := dtype.Size()
	if size == 0 || len(content)%size != 0 {
		return nil, fmt.Errorf("%w: %d content bytes for dtype %s", pkgerrors.ErrMalformedValue, len(content), dtype)
	}

	out := make([]float64, len(content)/size)
	for i := range out {
		chunk := content[i*size : (i+1)*size]
		switch dtype {
		case types.Float16:
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(chunk)).Float32())
		case types.Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case types.Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		case types.Int8:
			out[i] = float64(int8(chunk[0]))
		case types.Uint8, types.Bool:
			out[i] = float64(chunk[0])
		case types.Int16:
			out[i] = float64(int16(binary.LittleEndian.Uint16(chunk)))
		case types.Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(chunk)))
		case types.Int64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(chunk)))
		}
	}

	return out, nil
}

type tensorProto struct {
	dtype   types.DType
	shape   types.Shape
	content []byte
	hasData bool
	vals    []float64
}

// unmarshalTensorProto accepts both tensor_content and the typed repeated
// value fields, packed or not.
func unmarshalTensorProto(b []byte) (tensor.Tensor, error) {
	var tp tensorProto
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return tensor.Tensor{}, wireError(n)
		}
		b = b[n:]

		switch {
		case num == fieldDType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return tensor.Tensor{}, wireError(n)
			}
			tp.dtype = types.DType(int32(v))
			b = b[n:]
		case num == fieldTensorShape && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return tensor.Tensor{}, wireError(n)
			}
			shape, err := unmarshalShape(v)
			if err != nil {
				return tensor.Tensor{}, err
			}
			tp.shape = shape
			b = b[n:]
		case num == fieldTensorContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return tensor.Tensor{}, wireError(n)
			}
			tp.content = append([]byte(nil), v...)
			tp.hasData = true
			b = b[n:]
		case isValueField(num):
			n, err := tp.consumeValues(num, typ, b)
			if err != nil {
				return tensor.Tensor{}, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return tensor.Tensor{}, wireError(n)
			}
			b = b[n:]
		}
	}

	return tp.build()
}

func (tp *tensorProto) build() (tensor.Tensor, error) {
	if tp.dtype.Size() == 0 {
		return tensor.Tensor{}, fmt.Errorf("%w: unsupported dtype %s", pkgerrors.ErrMalformedValue, tp.dtype)
	}
	n := tp.shape.NumElements()
	if n < 0 {
		return tensor.Tensor{}, fmt.Errorf("%w: shape %s is not fully defined or too large", pkgerrors.ErrMalformedValue, tp.shape)
	}

	if tp.hasData {
		data, err := unpackContent(tp.dtype, tp.content)
		if err != nil {
			return tensor.Tensor{}, err
		}

		return tensor.New(tp.dtype, tp.shape, data)
	}

	switch {
	case int64(len(tp.vals)) > n:
		return tensor.Tensor{}, fmt.Errorf("%w: %d values for shape %s", pkgerrors.ErrMalformedValue, len(tp.vals), tp.shape)
	case n > MaxBroadcastElements:
		return tensor.Tensor{}, fmt.Errorf("%w: shape %s exceeds %d broadcast elements", pkgerrors.ErrMalformedValue, tp.shape, MaxBroadcastElements)
	}

	data := make([]float64, n)
	if len(tp.vals) > 0 {
		copy(data, tp.vals)
		for i := len(tp.vals); i < len(data); i++ {
			data[i] = tp.vals[len(tp.vals)-1]
		}
	}

	return tensor.New(tp.dtype, tp.shape, data)
}

func isValueField(num protowire.Number) bool {
	switch num {
	case fieldFloatVal, fieldDoubleVal, fieldIntVal, fieldInt64Val, fieldBoolVal, fieldHalfVal:
		return true
	default:
		return false
	}
}

func (tp *tensorProto) consumeValues(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, wireError(n)
		}
		for len(packed) > 0 {
			m, err := tp.consumeValue(num, packed)
			if err != nil {
				return 0, err
			}
			packed = packed[m:]
		}

		return n, nil
	}

	return tp.consumeValue(num, b)
}

func (tp *tensorProto) consumeValue(num protowire.Number, b []byte) (int, error) {
	switch num {
	case fieldFloatVal:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return 0, wireError(n)
		}
		tp.vals = append(tp.vals, float64(math.Float32frombits(v)))

		return n, nil
	case fieldDoubleVal:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return 0, wireError(n)
		}
		tp.vals = append(tp.vals, math.Float64frombits(v))

		return n, nil
	default:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, wireError(n)
		}
		switch num {
		case fieldHalfVal:
			tp.vals = append(tp.vals, float64(float16.Frombits(uint16(v)).Float32()))
		case fieldIntVal:
			tp.vals = append(tp.vals, float64(int32(v)))
		default:
			tp.vals = append(tp.vals, float64(int64(v)))
		}

		return n, nil
	}
}

func unmarshalShape(b []byte) (types.Shape, error) {
	shape := types.Shape{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireError(n)
		}
		b = b[n:]

		switch {
		case num == fieldShapeDim && typ == protowire.BytesType:
			dim, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, wireError(n)
			}
			size, err := unmarshalDim(dim)
			if err != nil {
				return nil, err
			}
			shape = append(shape, size)
			b = b[n:]
		case num == fieldShapeUnknownRank && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, wireError(n)
			}
			if v != 0 {
				return nil, fmt.Errorf("%w: tensor has unknown rank", pkgerrors.ErrMalformedValue)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, wireError(n)
			}
			b = b[n:]
		}
	}

	return shape, nil
}

func unmarshalDim(b []byte) (int64, error) {
	var size int64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, wireError(n)
		}
		b = b[n:]
		if num == fieldDimSize && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, wireError(n)
			}
			size = int64(v)
			b = b[n:]

			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return 0, wireError(n)
		}
		b = b[n:]
	}

	return size, nil
}

func wireError(n int) error {
	return fmt.Errorf("%w: %s", pkgerrors.ErrMalformedValue, protowire.ParseError(n))
}
