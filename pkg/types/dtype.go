package types

import (
	"fmt"
	"strings"
)

// DType identifies a tensor element type. Values match the TensorFlow
// DataType enum so they can be written to the wire unchanged.
type DType int32

const (
	Invalid DType = 0
	Float32 DType = 1
	Float64 DType = 2
	Int32   DType = 3
	Uint8   DType = 4
	Int16   DType = 5
	Int8    DType = 6
	String  DType = 7
	Int64   DType = 9
	Bool    DType = 10
	Float16 DType = 19
)

var dtypeNames = map[DType]string{
	Float16: "float16",
	Float32: "float32",
	Float64: "float64",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Bool:    "bool",
	String:  "string",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}

	return fmt.Sprintf("dtype(%d)", int32(d))
}

func (d DType) IsFloating() bool {
	switch d {
	case Float16, Float32, Float64:
		return true
	default:
		return false
	}
}

func (d DType) IsInteger() bool {
	switch d {
	case Int8, Int16, Int32, Int64, Uint8:
		return true
	default:
		return false
	}
}

// IsNumeric reports whether arithmetic is defined for the dtype.
func (d DType) IsNumeric() bool {
	return d.IsFloating() || d.IsInteger()
}

// Size is the width in bytes of one element in the packed representation.
// It is zero for variable-width types.
func (d DType) Size() int {
	switch d {
	case Int8, Uint8, Bool:
		return 1
	case Int16, Float16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		return 0
	}
}

// ParseDType maps a dtype name such as "float32" to its DType.
func ParseDType(name string) (DType, error) {
	name = strings.TrimSpace(name)
	for d, n := range dtypeNames {
		if n == name {
			return d, nil
		}
	}
	switch name {
	case "half":
		return Float16, nil
	case "float":
		return Float32, nil
	case "double":
		return Float64, nil
	}

	return Invalid, fmt.Errorf("unknown dtype %q", name)
}
