package crdt

import (
	"fmt"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

// ObjID identifies an object node. It is the timestamp of the operation that created it.
type ObjID = common.LogicalTimestamp

// Node represents an object node in the replicated tree.
type Node interface {
	// ID returns the unique identifier of the node.
	ID() ObjID

	// Type returns the type of the node.
	Type() common.NodeType
}

// Value is what a map field or list element holds: either an inline scalar
// or a reference to an object node.
type Value struct {
	objType common.NodeType
	obj     ObjID
	scalar  Scalar
}

// ScalarValue wraps a scalar.
func ScalarValue(s Scalar) Value {
	return Value{scalar: s}
}

// ObjectValue references an object node of the given type.
func ObjectValue(t common.NodeType, id ObjID) Value {
	return Value{objType: t, obj: id}
}

// IsObject reports whether the value references an object node.
func (v Value) IsObject() bool {
	return v.objType != ""
}

// Object returns the referenced object id and its type.
func (v Value) Object() (ObjID, common.NodeType) {
	return v.obj, v.objType
}

// Scalar returns the scalar payload. It is the null scalar for object values.
func (v Value) Scalar() Scalar {
	return v.scalar
}

func (v Value) String() string {
	if v.IsObject() {
		return fmt.Sprintf("%s(%s)", v.objType, v.obj)
	}
	return v.scalar.String()
}

// Prop addresses a slot inside an object: a map key or a sequence index.
type Prop struct {
	key   string
	index int
	seq   bool
}

// Key returns a map-key property.
func Key(k string) Prop {
	return Prop{key: k}
}

// Index returns a sequence-index property.
func Index(i int) Prop {
	return Prop{index: i, seq: true}
}

// IsIndex reports whether the property is a sequence index.
func (p Prop) IsIndex() bool { return p.seq }

// KeyName returns the map key.
func (p Prop) KeyName() string { return p.key }

// IndexValue returns the sequence index.
func (p Prop) IndexValue() int { return p.index }

func (p Prop) String() string {
	if p.seq {
		return fmt.Sprintf("[%d]", p.index)
	}
	return p.key
}

// Cursor locates a slot inside the tree: an object plus a property of it.
type Cursor struct {
	Obj  ObjID
	Prop Prop
}

// At returns a cursor for prop inside obj.
func At(obj ObjID, prop Prop) Cursor {
	return Cursor{Obj: obj, Prop: prop}
}

// RootKey returns a cursor for a key of the document's root map.
func RootKey(key string) Cursor {
	return Cursor{Obj: common.RootID, Prop: Key(key)}
}

func (c Cursor) String() string {
	return fmt.Sprintf("%s.%s", c.Obj, c.Prop)
}

// MapEntry is a visible key of a map node and its value.
type MapEntry struct {
	Key   string
	Value Value
}
