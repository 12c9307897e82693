package reconcile

import (
	"fmt"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

// recorder wraps a document and logs every write as "action path".
type recorder struct {
	*crdt.Document
	paths map[crdt.ObjID]string
	log   []string
}

func newRecorder(doc *crdt.Document) *recorder {
	r := &recorder{Document: doc, paths: map[crdt.ObjID]string{common.RootID: ""}}
	r.index(common.RootID, "")
	return r
}

func (r *recorder) index(obj crdt.ObjID, path string) {
	r.paths[obj] = path
	typ, err := r.ObjectType(obj)
	if err != nil {
		return
	}
	switch typ {
	case common.NodeTypeMap:
		entries, _ := r.MapRange(obj)
		for _, e := range entries {
			if e.Value.IsObject() {
				id, _ := e.Value.Object()
				r.index(id, propPath(path, crdt.Key(e.Key)))
			}
		}
	case common.NodeTypeList:
		n, _ := r.Length(obj)
		for i := 0; i < n; i++ {
			v, _, _ := r.Get(obj, crdt.Index(i))
			if v.IsObject() {
				id, _ := v.Object()
				r.index(id, propPath(path, crdt.Index(i)))
			}
		}
	}
}

func (r *recorder) record(action string, obj crdt.ObjID, prop crdt.Prop) {
	r.log = append(r.log, fmt.Sprintf("%s %s", action, propPath(r.paths[obj], prop)))
}

func (r *recorder) reset() {
	r.log = nil
	r.paths = map[crdt.ObjID]string{}
	r.index(common.RootID, "")
}

func (r *recorder) Put(obj crdt.ObjID, prop crdt.Prop, s crdt.Scalar) error {
	r.record("put", obj, prop)
	return r.Document.Put(obj, prop, s)
}

func (r *recorder) PutObject(obj crdt.ObjID, prop crdt.Prop, t common.NodeType) (crdt.ObjID, error) {
	r.record("make", obj, prop)
	id, err := r.Document.PutObject(obj, prop, t)
	r.paths[id] = propPath(r.paths[obj], prop)
	return id, err
}

func (r *recorder) Insert(obj crdt.ObjID, index int, s crdt.Scalar) error {
	r.record("insert", obj, crdt.Index(index))
	return r.Document.Insert(obj, index, s)
}

func (r *recorder) InsertObject(obj crdt.ObjID, index int, t common.NodeType) (crdt.ObjID, error) {
	r.record("insert", obj, crdt.Index(index))
	id, err := r.Document.InsertObject(obj, index, t)
	r.paths[id] = propPath(r.paths[obj], crdt.Index(index))
	return id, err
}

func (r *recorder) Delete(obj crdt.ObjID, prop crdt.Prop) error {
	r.record("delete", obj, prop)
	return r.Document.Delete(obj, prop)
}

func (r *recorder) UpdateText(obj crdt.ObjID, s string) error {
	r.log = append(r.log, "text "+r.paths[obj])
	return r.Document.UpdateText(obj, s)
}
