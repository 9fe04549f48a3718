package codec

import (
	"fmt"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// Kind tags the value carried by an envelope. The numbers are the executor
// Value oneof field numbers.
type Kind uint8

const (
	KindNone        Kind = 0
	KindTensor      Kind = 1
	KindComputation Kind = 2
	KindStruct      Kind = 3
	KindFederated   Kind = 4
	KindSequence    Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTensor:
		return "tensor"
	case KindComputation:
		return "computation"
	case KindStruct:
		return "struct"
	case KindFederated:
		return "federated"
	case KindSequence:
		return "sequence"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an envelope carrying exactly one kind of value. Tensor is set for
// KindTensor, Struct for KindStruct; other kinds keep their serialized
// payload in Payload untouched.
type Value struct {
	Kind    Kind
	Tensor  *anypb.Any
	Struct  []Element
	Payload []byte
}

type Element struct {
	Name  string
	Value Value
}

const (
	fieldStructElement protowire.Number = 1
	fieldElementName   protowire.Number = 1
	fieldElementValue  protowire.Number = 2
)

// Marshal encodes the envelope in protobuf wire format.
func (v Value) Marshal() ([]byte, error) {
	var b []byte
	switch v.Kind {
	case KindNone:
		return b, nil
	case KindTensor:
		if v.Tensor == nil {
			return nil, fmt.Errorf("%w: tensor envelope without payload", pkgerrors.ErrMalformedValue)
		}
		payload, err := proto.Marshal(v.Tensor)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", pkgerrors.ErrMalformedValue, err)
		}
		b = protowire.AppendTag(b, protowire.Number(KindTensor), protowire.BytesType)
		b = protowire.AppendBytes(b, payload)
	case KindStruct:
		var payload []byte
		for _, e := range v.Struct {
			elem, err := e.marshal()
			if err != nil {
				return nil, err
			}
			payload = protowire.AppendTag(payload, fieldStructElement, protowire.BytesType)
			payload = protowire.AppendBytes(payload, elem)
		}
		b = protowire.AppendTag(b, protowire.Number(KindStruct), protowire.BytesType)
		b = protowire.AppendBytes(b, payload)
	case KindComputation, KindFederated, KindSequence:
		b = protowire.AppendTag(b, protowire.Number(v.Kind), protowire.BytesType)
		b = protowire.AppendBytes(b, v.Payload)
	default:
		return nil, fmt.Errorf("%w: unknown value kind %s", pkgerrors.ErrMalformedValue, v.Kind)
	}

	return b, nil
}

func (e Element) marshal() ([]byte, error) {
	var b []byte
	if e.Name != "" {
		b = protowire.AppendTag(b, fieldElementName, protowire.BytesType)
		b = protowire.AppendString(b, e.Name)
	}
	value, err := e.Value.Marshal()
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, fieldElementValue, protowire.BytesType)
	b = protowire.AppendBytes(b, value)

	return b, nil
}

// Unmarshal decodes an envelope written by Marshal. When several kinds are
// present the last one wins, as with any protobuf oneof.
func Unmarshal(b []byte) (Value, error) {
	var v Value
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Value{}, wireError(n)
		}
		b = b[n:]

		kind := Kind(num)
		if typ != protowire.BytesType || kind < KindTensor || kind > KindSequence {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Value{}, wireError(n)
			}
			b = b[n:]

			continue
		}

		payload, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Value{}, wireError(n)
		}
		b = b[n:]

		v = Value{Kind: kind}
		switch kind {
		case KindTensor:
			var msg anypb.Any
			if err := proto.Unmarshal(payload, &msg); err != nil {
				return Value{}, fmt.Errorf("%w: %s", pkgerrors.ErrMalformedValue, err)
			}
			v.Tensor = &msg
		case KindStruct:
			elems, err := unmarshalStruct(payload)
			if err != nil {
				return Value{}, err
			}
			v.Struct = elems
		default:
			v.Payload = append([]byte(nil), payload...)
		}
	}

	return v, nil
}

func unmarshalStruct(b []byte) ([]Element, error) {
	elems := []Element{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireError(n)
		}
		b = b[n:]
		if num != fieldStructElement || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, wireError(n)
			}
			b = b[n:]

			continue
		}

		payload, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, wireError(n)
		}
		b = b[n:]

		elem, err := unmarshalElement(payload)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}

	return elems, nil
}

func unmarshalElement(b []byte) (Element, error) {
	var e Element
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Element{}, wireError(n)
		}
		b = b[n:]

		switch {
		case num == fieldElementName && typ == protowire.BytesType:
			name, n := protowire.ConsumeString(b)
			if n < 0 {
				return Element{}, wireError(n)
			}
			e.Name = name
			b = b[n:]
		case num == fieldElementValue && typ == protowire.BytesType:
			payload, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Element{}, wireError(n)
			}
			value, err := Unmarshal(payload)
			if err != nil {
				return Element{}, err
			}
			e.Value = value
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Element{}, wireError(n)
			}
			b = b[n:]
		}
	}

	return e, nil
}
