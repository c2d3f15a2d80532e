package ggufvocab

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// valueType is the type tag of a GGUF metadata value in the binary format.
type valueType uint32

const (
	valueTypeUint8   valueType = 0
	valueTypeInt8    valueType = 1
	valueTypeUint16  valueType = 2
	valueTypeInt16   valueType = 3
	valueTypeUint32  valueType = 4
	valueTypeInt32   valueType = 5
	valueTypeFloat32 valueType = 6
	valueTypeBool    valueType = 7
	valueTypeString  valueType = 8
	valueTypeArray   valueType = 9
	valueTypeUint64  valueType = 10
	valueTypeInt64   valueType = 11
	valueTypeFloat64 valueType = 12
)

// Value wraps a single GGUF metadata value. Accessors return the zero value
// when the underlying data doesn't match the requested shape, since a
// tokenizer loader only ever reads a handful of known keys and treats an
// absent or mistyped one as "not present" rather than a hard failure.
type Value struct {
	data any
}

// String returns the value as a string, or "" if it is not one.
func (v Value) String() string {
	s, _ := v.data.(string)
	return s
}

// Strings returns the value as a string slice, or nil if it is not one.
func (v Value) Strings() []string {
	s, _ := v.data.([]string)
	return s
}

// Ints returns the value as an int64 slice, converting from int8, uint8,
// int32, uint32 or int64 array elements, or nil otherwise. Arrays of int16,
// uint16 or uint64 also yield nil.
func (v Value) Ints() []int64 {
	switch s := v.data.(type) {
	case []int64:
		return s
	case []int32:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []uint32:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []int8:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []uint8:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	default:
		return nil
	}
}

// readString reads a GGUF string: a uint64 length prefix followed by that
// many bytes.
func readString(r io.Reader) (string, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", errors.Wrap(err, "reading string length")
	}
	if length > 1<<24 {
		return "", errors.Errorf("string length %d exceeds sanity limit", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrap(err, "reading string data")
	}
	return string(buf), nil
}

// readValue reads one tagged GGUF value.
func readValue(r io.Reader) (Value, error) {
	var tag uint32
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return Value{}, errors.Wrap(err, "reading value type")
	}
	return readTypedValue(r, valueType(tag))
}

func readTypedValue(r io.Reader, vtype valueType) (Value, error) {
	switch vtype {
	case valueTypeUint8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeInt8:
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeUint16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeInt16:
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeUint32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeInt32:
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeFloat32:
		var v float32
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeBool:
		var v uint8
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return Value{}, err
		}
		return Value{data: v != 0}, nil
	case valueTypeString:
		s, err := readString(r)
		return Value{data: s}, err
	case valueTypeUint64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeInt64:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeFloat64:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return Value{data: v}, err
	case valueTypeArray:
		return readArray(r)
	default:
		return Value{}, errors.Errorf("unknown value type %d", vtype)
	}
}

func readArray(r io.Reader) (Value, error) {
	var elemType uint32
	if err := binary.Read(r, binary.LittleEndian, &elemType); err != nil {
		return Value{}, errors.Wrap(err, "reading array element type")
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return Value{}, errors.Wrap(err, "reading array count")
	}

	switch valueType(elemType) {
	case valueTypeUint8:
		return readArrayOf[uint8](r, count)
	case valueTypeInt8:
		return readArrayOf[int8](r, count)
	case valueTypeUint16:
		return readArrayOf[uint16](r, count)
	case valueTypeInt16:
		return readArrayOf[int16](r, count)
	case valueTypeUint32:
		return readArrayOf[uint32](r, count)
	case valueTypeInt32:
		return readArrayOf[int32](r, count)
	case valueTypeFloat32:
		return readArrayOf[float32](r, count)
	case valueTypeUint64:
		return readArrayOf[uint64](r, count)
	case valueTypeInt64:
		return readArrayOf[int64](r, count)
	case valueTypeFloat64:
		return readArrayOf[float64](r, count)
	case valueTypeBool:
		vals := make([]bool, count)
		for i := range vals {
			var b uint8
			if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
				return Value{}, errors.Wrapf(err, "reading bool array element %d", i)
			}
			vals[i] = b != 0
		}
		return Value{data: vals}, nil
	case valueTypeString:
		vals := make([]string, count)
		for i := range vals {
			s, err := readString(r)
			if err != nil {
				return Value{}, errors.Wrapf(err, "reading string array element %d", i)
			}
			vals[i] = s
		}
		return Value{data: vals}, nil
	default:
		return Value{}, errors.Errorf("unsupported array element type %d", elemType)
	}
}

func readArrayOf[T any](r io.Reader, count uint64) (Value, error) {
	vals := make([]T, count)
	for i := range vals {
		if err := binary.Read(r, binary.LittleEndian, &vals[i]); err != nil {
			return Value{}, errors.Wrapf(err, "reading array element %d", i)
		}
	}
	return Value{data: vals}, nil
}
