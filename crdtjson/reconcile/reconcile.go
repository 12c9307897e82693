// Package reconcile maps JSON values onto locations of a replicated document and back.
//
// Reconcile writes a JSON value at a cursor using as few substrate writes as it can,
// reusing existing maps, lists and list items so their identity and merge history
// survive. Reconciling a value that is already present writes nothing. Hydrate reads
// the JSON value at a cursor.
package reconcile

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

var logger = logging.Logger("reconcile")

// Reader is the read capability of a replicated document.
type Reader interface {
	Get(obj crdt.ObjID, prop crdt.Prop) (crdt.Value, bool, error)
	MapRange(obj crdt.ObjID) ([]crdt.MapEntry, error)
	Length(obj crdt.ObjID) (int, error)
	Text(obj crdt.ObjID) (string, error)
}

// Writer is the write capability of a replicated document. Put over a list index
// overwrites the element in place; Insert shifts later elements.
type Writer interface {
	Reader
	Put(obj crdt.ObjID, prop crdt.Prop, s crdt.Scalar) error
	PutObject(obj crdt.ObjID, prop crdt.Prop, t common.NodeType) (crdt.ObjID, error)
	Insert(obj crdt.ObjID, index int, s crdt.Scalar) error
	InsertObject(obj crdt.ObjID, index int, t common.NodeType) (crdt.ObjID, error)
	Delete(obj crdt.ObjID, prop crdt.Prop) error
	UpdateText(obj crdt.ObjID, s string) error
}

var (
	_ Reader = (*crdt.Document)(nil)
	_ Writer = (*crdt.Document)(nil)
)

// Reconcile makes the value at cursor at equal to v.
func Reconcile(w Writer, at crdt.Cursor, v Value) error {
	return (&reconciler{w: w}).value(at, propPath("", at.Prop), v)
}

// ReconcileMap makes the map obj equal to o. It is used for maps that are not
// addressed by a parent slot, such as the document root.
func ReconcileMap(w Writer, obj crdt.ObjID, o Object) error {
	return (&reconciler{w: w}).mapObject(obj, "", o)
}

type reconciler struct {
	w Writer
}

// value reconciles v into the existing slot at.
func (r *reconciler) value(at crdt.Cursor, path string, v Value) error {
	current, exists, err := r.w.Get(at.Obj, at.Prop)
	if err != nil {
		return err
	}

	switch t := v.(type) {
	case Object:
		if id, ok := objectOf(current, exists, common.NodeTypeMap); ok {
			return r.mapObject(id, path, t)
		}
		id, err := r.w.PutObject(at.Obj, at.Prop, common.NodeTypeMap)
		if err != nil {
			return err
		}
		return r.mapObject(id, path, t)

	case Array:
		if id, ok := objectOf(current, exists, common.NodeTypeList); ok {
			return r.list(id, path, t)
		}
		id, err := r.w.PutObject(at.Obj, at.Prop, common.NodeTypeList)
		if err != nil {
			return err
		}
		return r.list(id, path, t)

	case String:
		if id, ok := objectOf(current, exists, common.NodeTypeText); ok {
			text, err := r.w.Text(id)
			if err != nil || text == string(t) {
				return err
			}
			return r.w.UpdateText(id, string(t))
		}
	}

	if exists && !current.IsObject() {
		materialized, err := fromScalar(current.Scalar(), slotKey(at.Prop), path)
		if err == nil && Equal(materialized, v) {
			return nil
		}
	}

	s, err := toScalar(v, path)
	if err != nil {
		return err
	}
	return r.w.Put(at.Obj, at.Prop, s)
}

// insert reconciles v into a new list element at index.
func (r *reconciler) insert(list crdt.ObjID, index int, path string, v Value) error {
	switch t := v.(type) {
	case Object:
		id, err := r.w.InsertObject(list, index, common.NodeTypeMap)
		if err != nil {
			return err
		}
		return r.mapObject(id, path, t)
	case Array:
		id, err := r.w.InsertObject(list, index, common.NodeTypeList)
		if err != nil {
			return err
		}
		return r.list(id, path, t)
	}

	s, err := toScalar(v, path)
	if err != nil {
		return err
	}
	return r.w.Insert(list, index, s)
}

func (r *reconciler) mapObject(obj crdt.ObjID, path string, o Object) error {
	entries, err := r.w.MapRange(obj)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, ok := o.Get(entry.Key); !ok {
			if err := r.w.Delete(obj, crdt.Key(entry.Key)); err != nil {
				return err
			}
		}
	}

	for _, key := range o.Keys() {
		v, _ := o.Get(key)
		at := crdt.At(obj, crdt.Key(key))
		childPath := propPath(path, at.Prop)

		if s, ok := v.(String); ok && IsByteField(key) {
			data, err := DecodeByteField(string(s))
			if err == nil {
				if err := r.bytes(at, data); err != nil {
					return err
				}
				continue
			}
			logger.Warnw("byte field is not valid base64, storing the literal string", "path", childPath, "error", err)
		}

		if err := r.value(at, childPath, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *reconciler) bytes(at crdt.Cursor, data []byte) error {
	s := crdt.Bytes(data)
	current, exists, err := r.w.Get(at.Obj, at.Prop)
	if err != nil {
		return err
	}
	if exists && !current.IsObject() && current.Scalar().Equal(s) {
		return nil
	}
	return r.w.Put(at.Obj, at.Prop, s)
}

func (r *reconciler) list(obj crdt.ObjID, path string, arr Array) error {
	keys, state, ok := arrayKeys(arr)
	if ok {
		return r.keyedList(obj, path, arr, keys)
	}
	logger.Debugw("positional list reconcile", "path", path, "key", state)
	return r.positionalList(obj, path, arr)
}

func (r *reconciler) positionalList(obj crdt.ObjID, path string, arr Array) error {
	n, err := r.w.Length(obj)
	if err != nil {
		return err
	}
	for i := n - 1; i >= len(arr); i-- {
		if err := r.w.Delete(obj, crdt.Index(i)); err != nil {
			return err
		}
	}

	for i, v := range arr {
		elemPath := propPath(path, crdt.Index(i))
		if i < n {
			err = r.value(crdt.At(obj, crdt.Index(i)), elemPath, v)
		} else {
			err = r.insert(obj, i, elemPath, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// keyedList matches existing list items to target elements by identity key. Items
// whose key is unusable, unwanted or repeated are deleted first; then the target is
// walked in order, updating matches in place and inserting the rest.
func (r *reconciler) keyedList(obj crdt.ObjID, path string, arr Array, keys []itemKey) error {
	wanted := make(map[itemKey]struct{}, len(keys))
	for _, key := range keys {
		wanted[key] = struct{}{}
	}

	n, err := r.w.Length(obj)
	if err != nil {
		return err
	}
	existing := make([]itemKey, n)
	keep := make([]bool, n)
	seen := make(map[itemKey]struct{}, n)
	for i := 0; i < n; i++ {
		item, _, err := r.w.Get(obj, crdt.Index(i))
		if err != nil {
			return err
		}
		key, state, err := treeKey(r.w, item)
		if err != nil {
			return err
		}
		_, want := wanted[key]
		_, dup := seen[key]
		if state == keyFound && want && !dup {
			keep[i] = true
			existing[i] = key
			seen[key] = struct{}{}
		}
	}

	cur := make([]itemKey, 0, n)
	for i := n - 1; i >= 0; i-- {
		if keep[i] {
			continue
		}
		if err := r.w.Delete(obj, crdt.Index(i)); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		if keep[i] {
			cur = append(cur, existing[i])
		}
	}

	for j, v := range arr {
		key := keys[j]
		elemPath := propPath(path, crdt.Index(j))

		if j < len(cur) && cur[j] == key {
			if err := r.value(crdt.At(obj, crdt.Index(j)), elemPath, v); err != nil {
				return err
			}
			continue
		}

		// The item may sit later in the list; a move is a delete plus an insert.
		for q := j + 1; q < len(cur); q++ {
			if cur[q] == key {
				if err := r.w.Delete(obj, crdt.Index(q)); err != nil {
					return err
				}
				cur = append(cur[:q], cur[q+1:]...)
				break
			}
		}

		if err := r.insert(obj, j, elemPath, v); err != nil {
			return err
		}
		cur = append(cur, itemKey{})
		copy(cur[j+1:], cur[j:])
		cur[j] = key
	}

	for i := len(cur) - 1; i >= len(arr); i-- {
		if err := r.w.Delete(obj, crdt.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// objectOf returns the id of the object in a slot if it has type t.
func objectOf(v crdt.Value, exists bool, t common.NodeType) (crdt.ObjID, bool) {
	if !exists || !v.IsObject() {
		return crdt.ObjID{}, false
	}
	id, typ := v.Object()
	return id, typ == t
}

func slotKey(p crdt.Prop) string {
	if p.IsIndex() {
		return ""
	}
	return p.KeyName()
}

func propPath(parent string, p crdt.Prop) string {
	if p.IsIndex() {
		return fmt.Sprintf("%s[%d]", parent, p.IndexValue())
	}
	if parent == "" {
		return p.KeyName()
	}
	return parent + "." + p.KeyName()
}
