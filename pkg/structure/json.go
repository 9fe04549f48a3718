package structure

import (
	"encoding/json"
	"fmt"
	"math"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"github.com/absmach/fedagg/pkg/tensor"
	"github.com/absmach/fedagg/pkg/types"
)

type jsonValue struct {
	DType    string        `json:"dtype,omitempty"`
	Shape    []int64       `json:"shape,omitempty"`
	Values   []jsonFloat   `json:"values,omitempty"`
	Elements []jsonElement `json:"elements,omitempty"`
}

// jsonFloat writes NaN and infinities as strings, which plain JSON numbers
// cannot represent.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	default:
		return json.Marshal(v)
	}
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"NaN"`:
		*f = jsonFloat(math.NaN())
	case `"Infinity"`:
		*f = jsonFloat(math.Inf(1))
	case `"-Infinity"`:
		*f = jsonFloat(math.Inf(-1))
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = jsonFloat(v)
	}

	return nil
}

type jsonElement struct {
	Name  string    `json:"name,omitempty"`
	Value jsonValue `json:"value"`
}

// MarshalJSON writes a self-describing form carrying dtypes and shapes, so the
// value can be decoded without knowing its type.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toJSON())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	decoded, err := fromJSON(jv)
	if err != nil {
		return err
	}
	*v = decoded

	return nil
}

func (v Value) toJSON() jsonValue {
	if v.leaf != nil {
		shape := v.leaf.Shape()
		if shape == nil {
			shape = types.Shape{}
		}

		values := make([]jsonFloat, v.leaf.Len())
		for i := range values {
			values[i] = jsonFloat(v.leaf.At(i))
		}

		return jsonValue{
			DType:  v.leaf.DType().String(),
			Shape:  shape,
			Values: values,
		}
	}

	elems := make([]jsonElement, len(v.elements))
	for i, e := range v.elements {
		elems[i] = jsonElement{Name: e.Name, Value: e.Value.toJSON()}
	}

	return jsonValue{Elements: elems}
}

func fromJSON(jv jsonValue) (Value, error) {
	if jv.DType == "" {
		elems := make([]Element, len(jv.Elements))
		for i, e := range jv.Elements {
			v, err := fromJSON(e.Value)
			if err != nil {
				return Value{}, err
			}
			elems[i] = Element{Name: e.Name, Value: v}
		}

		return Value{elements: elems}, nil
	}

	if len(jv.Elements) > 0 {
		return Value{}, fmt.Errorf("%w: value has both dtype and elements", pkgerrors.ErrMalformedValue)
	}
	dtype, err := types.ParseDType(jv.DType)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %s", pkgerrors.ErrMalformedValue, err)
	}
	data := make([]float64, len(jv.Values))
	for i, f := range jv.Values {
		data[i] = float64(f)
	}
	t, err := tensor.New(dtype, types.Shape(jv.Shape), data)
	if err != nil {
		return Value{}, err
	}

	return Leaf(t), nil
}
