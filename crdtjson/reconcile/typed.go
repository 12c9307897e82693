package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

// ReconcileAny reconciles the JSON encoding of v at cursor at.
func ReconcileAny(w Writer, at crdt.Cursor, v interface{}) error {
	val, err := FromAny(v)
	if err != nil {
		return fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return Reconcile(w, at, val)
}

// ReconcileMapAny reconciles the JSON encoding of v, which must be an object, into
// the map obj.
func ReconcileMapAny(w Writer, obj crdt.ObjID, v interface{}) error {
	val, err := FromAny(v)
	if err != nil {
		return fmt.Errorf("failed to encode %T: %w", v, err)
	}
	o, ok := val.(Object)
	if !ok {
		return fmt.Errorf("%T encodes to a JSON %s, expected an object", v, val.Kind())
	}
	return ReconcileMap(w, obj, o)
}

// HydrateInto hydrates the value at cursor at and decodes it into out. A value that
// does not fit out is reported as ErrShapeMismatch.
func HydrateInto(r Reader, at crdt.Cursor, out interface{}) error {
	v, err := Hydrate(r, at)
	if err != nil {
		return err
	}
	return decodeInto(v, propPath("", at.Prop), out)
}

// HydrateMapInto hydrates the map obj and decodes it into out.
func HydrateMapInto(r Reader, obj crdt.ObjID, out interface{}) error {
	v, err := HydrateMap(r, obj)
	if err != nil {
		return err
	}
	return decodeInto(v, "", out)
}

func decodeInto(v Value, path string, out interface{}) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			fieldPath := path
			if typeErr.Field != "" {
				if fieldPath != "" {
					fieldPath += "."
				}
				fieldPath += typeErr.Field
			}
			return &HydrateError{
				Path:   fieldPath,
				Kind:   ErrShapeMismatch,
				Detail: fmt.Sprintf("cannot decode JSON %s into %s", typeErr.Value, typeErr.Type),
			}
		}
		return err
	}
	return nil
}
