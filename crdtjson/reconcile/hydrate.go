package reconcile

import (
	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

// Hydrate returns the JSON value at cursor at. An empty slot hydrates to Null.
// Any value that JSON cannot represent fails the whole call with a *HydrateError.
func Hydrate(r Reader, at crdt.Cursor) (Value, error) {
	v, ok, err := r.Get(at.Obj, at.Prop)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Null{}, nil
	}
	return hydrateValue(r, v, slotKey(at.Prop), propPath("", at.Prop))
}

// HydrateMap returns the map obj as a JSON object.
func HydrateMap(r Reader, obj crdt.ObjID) (Object, error) {
	return hydrateMap(r, obj, "")
}

func hydrateValue(r Reader, v crdt.Value, key, path string) (Value, error) {
	if !v.IsObject() {
		return fromScalar(v.Scalar(), key, path)
	}

	id, typ := v.Object()
	switch typ {
	case common.NodeTypeMap:
		return hydrateMap(r, id, path)
	case common.NodeTypeList:
		return hydrateList(r, id, path)
	case common.NodeTypeText:
		s, err := r.Text(id)
		if err != nil {
			return nil, err
		}
		return String(s), nil
	}
	return nil, hydrateErr(path, ErrShapeMismatch, "unsupported object type %q", typ)
}

func hydrateMap(r Reader, obj crdt.ObjID, path string) (Object, error) {
	entries, err := r.MapRange(obj)
	if err != nil {
		return Object{}, err
	}

	out := NewObject()
	for _, entry := range entries {
		v, err := hydrateValue(r, entry.Value, entry.Key, propPath(path, crdt.Key(entry.Key)))
		if err != nil {
			return Object{}, err
		}
		out.Set(entry.Key, v)
	}
	return out, nil
}

func hydrateList(r Reader, list crdt.ObjID, path string) (Array, error) {
	n, err := r.Length(list)
	if err != nil {
		return nil, err
	}

	out := make(Array, 0, n)
	for i := 0; i < n; i++ {
		elemPath := propPath(path, crdt.Index(i))
		v, ok, err := r.Get(list, crdt.Index(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, Null{})
			continue
		}
		elem, err := hydrateValue(r, v, "", elemPath)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}
