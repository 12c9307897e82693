package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Kind identifies the JSON variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a JSON value. The set of implementations is closed: Null, Bool, Number,
// String, Array and Object.
type Value interface {
	Kind() Kind
	isValue()
}

// Null is the JSON null.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// String is a JSON string.
type String string

// Array is a JSON array.
type Array []Value

// Number is a JSON number. It keeps the literal so integers beyond float64
// precision survive unchanged.
type Number struct {
	lit string
}

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (Array) isValue()  {}
func (Object) isValue() {}

// NewNumber returns a number from its JSON literal.
func NewNumber(lit string) Number { return Number{lit: lit} }

// NumberFromUint returns an unsigned integer number.
func NumberFromUint(u uint64) Number { return Number{lit: strconv.FormatUint(u, 10)} }

// NumberFromInt returns a signed integer number.
func NumberFromInt(i int64) Number { return Number{lit: strconv.FormatInt(i, 10)} }

// NumberFromFloat returns a floating point number.
func NumberFromFloat(f float64) Number { return Number{lit: strconv.FormatFloat(f, 'g', -1, 64)} }

// Uint64 interprets the number as an unsigned integer.
func (n Number) Uint64() (uint64, bool) {
	u, err := strconv.ParseUint(n.lit, 10, 64)
	return u, err == nil
}

// Int64 interprets the number as a signed integer.
func (n Number) Int64() (int64, bool) {
	i, err := strconv.ParseInt(n.lit, 10, 64)
	return i, err == nil
}

// Float64 interprets the number as a float. It fails for literals outside the
// float64 range.
func (n Number) Float64() (float64, bool) {
	f, err := strconv.ParseFloat(n.lit, 64)
	return f, err == nil
}

func (n Number) String() string { return n.lit }

// MarshalJSON rejects literals that are not valid JSON numbers.
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(json.Number(n.lit))
}

// MarshalJSON encodes null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON encodes a nil array as [].
func (a Array) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(a))
}

// Object is a JSON object. Keys keep their first insertion order for display;
// equality ignores order.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject returns an empty object.
func NewObject() Object {
	return Object{fields: make(map[string]Value)}
}

// Set stores v under key.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// With returns o after setting key. It is meant for building literals.
func (o Object) With(key string, v Value) Object {
	o.Set(key, v)
	return o
}

// Get returns the value stored under key.
func (o Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o Object) Keys() []string {
	return o.keys
}

// Len returns the number of keys.
func (o Object) Len() int {
	return len(o.keys)
}

// MarshalJSON encodes the object with keys in insertion order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(o.fields[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes a JSON document, keeping object key order and number literals.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number{lit: t.String()}, nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", kt)
				}
				v, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := Array{}
			for dec.More() {
				v, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

// MustParse is like Parse but panics on error. It is meant for literals in tests and examples.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// Marshal encodes v as JSON.
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(v)
}

// FromAny converts a Go value to a Value by way of its JSON encoding.
func FromAny(v interface{}) (Value, error) {
	if val, ok := v.(Value); ok {
		return val, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Equal reports whether two values are the same JSON value. Numbers compare by
// numeric value and object key order is ignored.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		return ok && numbersEqual(x, y)
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Object:
		y, ok := b.(Object)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, key := range x.keys {
			yv, ok := y.fields[key]
			if !ok || !Equal(x.fields[key], yv) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b Number) bool {
	if a.lit == b.lit {
		return true
	}
	au, aUint := a.Uint64()
	bu, bUint := b.Uint64()
	if aUint && bUint {
		return au == bu
	}
	ai, aInt := a.Int64()
	bi, bInt := b.Int64()
	if aInt && bInt {
		return ai == bi
	}
	// One side is a negative int64 and the other exceeds it.
	if (aUint || aInt) && (bUint || bInt) {
		return false
	}
	af, aok := a.Float64()
	bf, bok := b.Float64()
	return aok && bok && af == bf
}
