package crdt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ScalarKind identifies the variant held by a Scalar.
type ScalarKind uint8

const (
	KindNull ScalarKind = iota
	KindBool
	KindUint
	KindInt
	KindF64
	KindStr
	KindBytes
	KindCounter
	KindTimestamp
	// KindUnknown is an opaque extension payload written by a newer replica.
	KindUnknown
)

var scalarKindNames = map[ScalarKind]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindUint:      "uint",
	KindInt:       "int",
	KindF64:       "f64",
	KindStr:       "str",
	KindBytes:     "bytes",
	KindCounter:   "counter",
	KindTimestamp: "timestamp",
	KindUnknown:   "unknown",
}

func (k ScalarKind) String() string {
	if name, ok := scalarKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Scalar is a leaf value stored inline in a map field or list element.
type Scalar struct {
	kind     ScalarKind
	b        bool
	u        uint64
	i        int64
	f        float64
	s        string
	data     []byte
	typeCode uint8
}

// Null returns the null scalar.
func Null() Scalar { return Scalar{kind: KindNull} }

// Bool returns a boolean scalar.
func Bool(b bool) Scalar { return Scalar{kind: KindBool, b: b} }

// Uint returns an unsigned integer scalar.
func Uint(u uint64) Scalar { return Scalar{kind: KindUint, u: u} }

// Int returns a signed integer scalar.
func Int(i int64) Scalar { return Scalar{kind: KindInt, i: i} }

// F64 returns a float scalar.
func F64(f float64) Scalar { return Scalar{kind: KindF64, f: f} }

// Str returns a string scalar.
func Str(s string) Scalar { return Scalar{kind: KindStr, s: s} }

// Bytes returns a byte-string scalar. The slice is copied.
func Bytes(b []byte) Scalar {
	return Scalar{kind: KindBytes, data: append([]byte(nil), b...)}
}

// Counter returns a counter scalar with the given initial value.
func Counter(n int64) Scalar { return Scalar{kind: KindCounter, i: n} }

// Timestamp returns a timestamp scalar in milliseconds since the Unix epoch.
func Timestamp(ms int64) Scalar { return Scalar{kind: KindTimestamp, i: ms} }

// Unknown returns an opaque extension scalar.
func Unknown(typeCode uint8, payload []byte) Scalar {
	return Scalar{kind: KindUnknown, typeCode: typeCode, data: append([]byte(nil), payload...)}
}

// Kind returns the variant of the scalar.
func (s Scalar) Kind() ScalarKind { return s.kind }

// BoolValue returns the boolean payload.
func (s Scalar) BoolValue() bool { return s.b }

// UintValue returns the unsigned payload.
func (s Scalar) UintValue() uint64 { return s.u }

// IntValue returns the signed payload of int, counter and timestamp scalars.
func (s Scalar) IntValue() int64 { return s.i }

// F64Value returns the float payload.
func (s Scalar) F64Value() float64 { return s.f }

// StrValue returns the string payload.
func (s Scalar) StrValue() string { return s.s }

// BytesValue returns the payload of byte-string and unknown scalars.
func (s Scalar) BytesValue() []byte { return s.data }

// TypeCode returns the extension type code of an unknown scalar.
func (s Scalar) TypeCode() uint8 { return s.typeCode }

// Equal reports whether two scalars hold the same variant and payload.
// Floats compare bitwise so that repeated writes of the same float are recognized.
func (s Scalar) Equal(other Scalar) bool {
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindNull:
		return true
	case KindBool:
		return s.b == other.b
	case KindUint:
		return s.u == other.u
	case KindInt, KindCounter, KindTimestamp:
		return s.i == other.i
	case KindF64:
		return math.Float64bits(s.f) == math.Float64bits(other.f)
	case KindStr:
		return s.s == other.s
	case KindBytes:
		return bytes.Equal(s.data, other.data)
	case KindUnknown:
		return s.typeCode == other.typeCode && bytes.Equal(s.data, other.data)
	}
	return false
}

// Interface returns the scalar as a plain Go value, used by View.
func (s Scalar) Interface() interface{} {
	switch s.kind {
	case KindBool:
		return s.b
	case KindUint:
		return s.u
	case KindInt, KindCounter, KindTimestamp:
		return s.i
	case KindF64:
		return s.f
	case KindStr:
		return s.s
	case KindBytes, KindUnknown:
		return s.data
	}
	return nil
}

func (s Scalar) String() string {
	switch s.kind {
	case KindNull:
		return "null"
	case KindStr:
		return fmt.Sprintf("%q", s.s)
	case KindUnknown:
		return fmt.Sprintf("unknown(%d, %x)", s.typeCode, s.data)
	}
	return fmt.Sprintf("%s(%v)", s.kind, s.Interface())
}

type jsonScalar struct {
	Kind  string `json:"k"`
	Bool  bool   `json:"b,omitempty"`
	Uint  uint64 `json:"u,omitempty"`
	Int   int64  `json:"i,omitempty"`
	Bits  uint64 `json:"f,omitempty"`
	Str   string `json:"s,omitempty"`
	Bytes []byte `json:"x,omitempty"`
	Code  uint8  `json:"c,omitempty"`
}

// MarshalJSON returns a JSON representation of the scalar.
// Floats are encoded by their IEEE-754 bits so that every value survives the trip.
func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonScalar{
		Kind:  s.kind.String(),
		Bool:  s.b,
		Uint:  s.u,
		Int:   s.i,
		Bits:  math.Float64bits(s.f),
		Str:   s.s,
		Bytes: s.data,
		Code:  s.typeCode,
	})
}

// UnmarshalJSON parses a JSON representation of the scalar.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var js jsonScalar
	if err := json.Unmarshal(data, &js); err != nil {
		return errors.Wrap(err, "failed to unmarshal scalar")
	}

	for kind, name := range scalarKindNames {
		if name == js.Kind {
			*s = Scalar{
				kind:     kind,
				b:        js.Bool,
				u:        js.Uint,
				i:        js.Int,
				f:        math.Float64frombits(js.Bits),
				s:        js.Str,
				data:     js.Bytes,
				typeCode: js.Code,
			}
			return nil
		}
	}
	return errors.Errorf("unknown scalar kind %q", js.Kind)
}
