// Package wire holds the small protobuf wire-format helpers shared by the
// ONNX checkpoint codec and the TensorBoard event writer. Messages are
// encoded field by field with protowire rather than through generated types.
package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one decoded protobuf field. Only the value matching Type is set
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

// Parse walks every field of an encoded message, calling fn for each one.
// Unknown fields are simply passed to fn, which may ignore them
func Parse(b []byte, fn func(f Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid field tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.Fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.Fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// String returns a length-delimited field as a string
func (f Field) String() string {
	return string(f.Bytes)
}

// Float32 returns a fixed32 field as a float
func (f Field) Float32() float32 {
	return math.Float32frombits(f.Fixed32)
}

// Float64 returns a fixed64 field as a double
func (f Field) Float64() float64 {
	return math.Float64frombits(f.Fixed64)
}

// AppendInt64s decodes a repeated int64 field in either packed or unpacked form
func (f Field) AppendInt64s(dst []int64) ([]int64, error) {
	switch f.Type {
	case protowire.VarintType:
		return append(dst, int64(f.Varint)), nil
	case protowire.BytesType:
		b := f.Bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid packed varint in field %d: %w", f.Num, protowire.ParseError(n))
			}
			dst = append(dst, int64(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("field %d: unexpected wire type %d for int64", f.Num, f.Type)
	}
}

// AppendFloat32s decodes a repeated float field in either packed or unpacked form
func (f Field) AppendFloat32s(dst []float32) ([]float32, error) {
	switch f.Type {
	case protowire.Fixed32Type:
		return append(dst, f.Float32()), nil
	case protowire.BytesType:
		if len(f.Bytes)%4 != 0 {
			return nil, fmt.Errorf("field %d: packed floats length %d is not a multiple of 4", f.Num, len(f.Bytes))
		}
		b := f.Bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid packed float in field %d: %w", f.Num, protowire.ParseError(n))
			}
			dst = append(dst, math.Float32frombits(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("field %d: unexpected wire type %d for float", f.Num, f.Type)
	}
}

// AppendString appends a string field. Empty strings are omitted
func AppendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendVarint appends a varint field, including zero values
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendInt64 appends an int64 field
func AppendInt64(b []byte, num protowire.Number, v int64) []byte {
	return AppendVarint(b, num, uint64(v))
}

// AppendFloat32 appends a float field
func AppendFloat32(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

// AppendFloat64 appends a double field
func AppendFloat64(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// AppendMessage appends an already encoded sub-message
func AppendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// AppendInt64s appends a repeated int64 field in unpacked form
func AppendInt64s(b []byte, num protowire.Number, vals []int64) []byte {
	for _, v := range vals {
		b = AppendInt64(b, num, v)
	}
	return b
}

// AppendPackedFloat32s appends a packed repeated float field
func AppendPackedFloat32s(b []byte, num protowire.Number, vals []float32) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return AppendMessage(b, num, packed)
}
