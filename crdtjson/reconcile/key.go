package reconcile

import (
	"fmt"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

// Identity fields, in lookup order.
const (
	idField  = "id"
	keyField = "key"
)

// keyState is the outcome of reading an identity key off an array element.
type keyState uint8

const (
	keyFound keyState = iota
	// keyAbsent means the element has neither an id nor a key field.
	keyAbsent
	// keyDisqualified means the field exists but holds a value that cannot be a key.
	keyDisqualified
)

func (s keyState) String() string {
	switch s {
	case keyFound:
		return "found"
	case keyAbsent:
		return "absent"
	case keyDisqualified:
		return "disqualified"
	}
	return fmt.Sprintf("keyState(%d)", uint8(s))
}

// itemKey is a normalized identity key. Non-negative integers are always stored in
// unsigned form so that a signed 1 in the tree equals an unsigned 1 in JSON.
type itemKey struct {
	str    bool
	s      string
	signed bool
	u      uint64
	i      int64
}

func stringKey(s string) itemKey { return itemKey{str: true, s: s} }

func uintKey(u uint64) itemKey { return itemKey{u: u} }

func intKey(i int64) itemKey {
	if i >= 0 {
		return uintKey(uint64(i))
	}
	return itemKey{signed: true, i: i}
}

func (k itemKey) String() string {
	switch {
	case k.str:
		return fmt.Sprintf("%q", k.s)
	case k.signed:
		return fmt.Sprintf("%d", k.i)
	}
	return fmt.Sprintf("%d", k.u)
}

// jsonKey extracts the identity key of a target array element.
func jsonKey(v Value) (itemKey, keyState) {
	obj, ok := v.(Object)
	if !ok {
		return itemKey{}, keyAbsent
	}
	field, ok := obj.Get(idField)
	if !ok {
		field, ok = obj.Get(keyField)
	}
	if !ok {
		return itemKey{}, keyAbsent
	}

	switch f := field.(type) {
	case String:
		return stringKey(string(f)), keyFound
	case Number:
		if u, ok := f.Uint64(); ok {
			return uintKey(u), keyFound
		}
		if i, ok := f.Int64(); ok {
			return intKey(i), keyFound
		}
	}
	return itemKey{}, keyDisqualified
}

// arrayKeys returns the identity keys of every element of arr when the whole array
// qualifies for keyed matching: it is non-empty, every element is an object with a
// usable key, and no key repeats.
func arrayKeys(arr Array) ([]itemKey, keyState, bool) {
	if len(arr) == 0 {
		return nil, keyAbsent, false
	}

	keys := make([]itemKey, len(arr))
	seen := make(map[itemKey]struct{}, len(arr))
	for i, elem := range arr {
		key, state := jsonKey(elem)
		if state != keyFound {
			return nil, state, false
		}
		if _, dup := seen[key]; dup {
			return nil, keyDisqualified, false
		}
		seen[key] = struct{}{}
		keys[i] = key
	}
	return keys, keyFound, true
}

// treeKey extracts the identity key of an existing list item.
func treeKey(r Reader, item crdt.Value) (itemKey, keyState, error) {
	if !item.IsObject() {
		return itemKey{}, keyAbsent, nil
	}
	obj, typ := item.Object()
	if typ != common.NodeTypeMap {
		return itemKey{}, keyAbsent, nil
	}

	field, ok, err := r.Get(obj, crdt.Key(idField))
	if err != nil {
		return itemKey{}, keyAbsent, err
	}
	if !ok {
		field, ok, err = r.Get(obj, crdt.Key(keyField))
		if err != nil {
			return itemKey{}, keyAbsent, err
		}
	}
	if !ok {
		return itemKey{}, keyAbsent, nil
	}

	if field.IsObject() {
		id, typ := field.Object()
		if typ != common.NodeTypeText {
			return itemKey{}, keyDisqualified, nil
		}
		s, err := r.Text(id)
		if err != nil {
			return itemKey{}, keyAbsent, err
		}
		return stringKey(s), keyFound, nil
	}

	s := field.Scalar()
	switch s.Kind() {
	case crdt.KindStr:
		return stringKey(s.StrValue()), keyFound, nil
	case crdt.KindUint:
		return uintKey(s.UintValue()), keyFound, nil
	case crdt.KindInt:
		return intKey(s.IntValue()), keyFound, nil
	}
	return itemKey{}, keyDisqualified, nil
}
