package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

// toScalar maps a JSON primitive to a tree scalar. Numbers are tried as unsigned,
// then signed, then float.
func toScalar(v Value, path string) (crdt.Scalar, error) {
	switch t := v.(type) {
	case Null:
		return crdt.Null(), nil
	case Bool:
		return crdt.Bool(bool(t)), nil
	case String:
		return crdt.Str(string(t)), nil
	case Number:
		if u, ok := t.Uint64(); ok {
			return crdt.Uint(u), nil
		}
		if i, ok := t.Int64(); ok {
			return crdt.Int(i), nil
		}
		if f, ok := t.Float64(); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return crdt.F64(f), nil
		}
		return crdt.Scalar{}, &UnrepresentableNumberError{Path: path, Literal: t.String()}
	}
	return crdt.Scalar{}, fmt.Errorf("reconcile %s: %s is not a scalar", path, v.Kind())
}

// fromScalar maps a tree scalar to JSON. key is the map key the scalar is stored
// under, or "" inside lists.
func fromScalar(s crdt.Scalar, key, path string) (Value, error) {
	switch s.Kind() {
	case crdt.KindNull:
		return Null{}, nil
	case crdt.KindBool:
		return Bool(s.BoolValue()), nil
	case crdt.KindUint:
		return NumberFromUint(s.UintValue()), nil
	case crdt.KindInt, crdt.KindCounter:
		return NumberFromInt(s.IntValue()), nil
	case crdt.KindF64:
		f := s.F64Value()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, hydrateErr(path, ErrNonFiniteFloat, "%v", f)
		}
		return NumberFromFloat(f), nil
	case crdt.KindStr:
		return String(s.StrValue()), nil
	case crdt.KindBytes:
		if IsByteField(key) {
			return String(EncodeByteField(s.BytesValue())), nil
		}
		data := s.BytesValue()
		arr := make(Array, len(data))
		for i, b := range data {
			arr[i] = NumberFromUint(uint64(b))
		}
		return arr, nil
	case crdt.KindTimestamp:
		ms := s.IntValue()
		t := time.UnixMilli(ms).UTC()
		if t.Year() < 0 || t.Year() > 9999 {
			return nil, hydrateErr(path, ErrInvalidTimestamp, "%d ms is outside years 0000-9999", ms)
		}
		return String(t.Format(time.RFC3339Nano)), nil
	case crdt.KindUnknown:
		return nil, hydrateErr(path, ErrUnknownScalar, "type code %d", s.TypeCode())
	}
	return nil, hydrateErr(path, ErrUnknownScalar, "scalar kind %s", s.Kind())
}
