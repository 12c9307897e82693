package crdt

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

// Document represents a replicated JSON document: a tree of map, list and text nodes
// rooted at a map, plus the op log that built it.
type Document struct {
	// root is the root map of the document.
	root *MapNode

	// index maps object IDs to nodes.
	index map[ObjID]Node

	// maxCounter is the highest counter observed from any session.
	maxCounter uint64

	// localSessionID is the session ID of the local replica.
	localSessionID common.SessionID

	// pending holds local ops not yet committed.
	pending []Op

	// history holds every op applied to the document, local or remote.
	history []Op

	// seen holds the ids of applied ops.
	seen map[common.LogicalTimestamp]struct{}
}

// NewDocument creates a new empty document for the given session.
func NewDocument(sessionID common.SessionID) *Document {
	doc := &Document{
		index:          make(map[ObjID]Node),
		localSessionID: sessionID,
		seen:           make(map[common.LogicalTimestamp]struct{}),
	}

	doc.root = NewMapNode(common.RootID)
	doc.index[common.RootID] = doc.root

	return doc
}

// Root returns the root map of the document.
func (d *Document) Root() *MapNode {
	return d.root
}

// GetSessionID returns the local session ID of the document.
func (d *Document) GetSessionID() common.SessionID {
	return d.localSessionID
}

// GetNode returns the node with the specified ID.
func (d *Document) GetNode(id ObjID) (Node, error) {
	return d.getNode(id)
}

func (d *Document) getNode(id ObjID) (Node, error) {
	node, ok := d.index[id]
	if !ok {
		return nil, common.ErrNodeNotFound{ID: id}
	}
	return node, nil
}

func (d *Document) listNode(id ObjID) (*ListNode, error) {
	node, err := d.getNode(id)
	if err != nil {
		return nil, err
	}
	list, ok := node.(*ListNode)
	if !ok {
		return nil, common.ErrWrongNodeType{ID: id, Expected: common.NodeTypeList, Actual: node.Type()}
	}
	return list, nil
}

func (d *Document) textNode(id ObjID) (*TextNode, error) {
	node, err := d.getNode(id)
	if err != nil {
		return nil, err
	}
	text, ok := node.(*TextNode)
	if !ok {
		return nil, common.ErrWrongNodeType{ID: id, Expected: common.NodeTypeText, Actual: node.Type()}
	}
	return text, nil
}

// Clock returns the highest counter observed so far.
func (d *Document) Clock() uint64 {
	return d.maxCounter
}

// nextID reserves span counter values for a local op and returns the first one.
func (d *Document) nextID(span uint64) common.LogicalTimestamp {
	id := common.LogicalTimestamp{SID: d.localSessionID, Counter: d.maxCounter + 1}
	d.maxCounter += span
	return id
}

// observe advances the clock past op and marks it applied.
func (d *Document) observe(op Op) {
	if last := op.ID.Counter + op.Span() - 1; last > d.maxCounter {
		d.maxCounter = last
	}
	d.seen[op.ID] = struct{}{}
}

// commitLocal applies a freshly built local op and records it.
func (d *Document) commitLocal(op Op) error {
	if err := d.applyOp(op); err != nil {
		return err
	}
	d.seen[op.ID] = struct{}{}
	d.pending = append(d.pending, op)
	d.history = append(d.history, op)
	return nil
}

// PendingOps returns the local ops recorded since the last Commit.
func (d *Document) PendingOps() []Op {
	return append([]Op(nil), d.pending...)
}

// Commit returns the pending local ops and clears them.
func (d *Document) Commit() []Op {
	ops := d.pending
	d.pending = nil
	return ops
}

// Rollback discards the pending local ops and restores the document to its state at
// the last Commit. Remote ops applied in the meantime are kept.
func (d *Document) Rollback() error {
	if len(d.pending) == 0 {
		return nil
	}

	drop := make(map[common.LogicalTimestamp]struct{}, len(d.pending))
	for _, op := range d.pending {
		drop[op.ID] = struct{}{}
	}
	kept := make([]Op, 0, len(d.history)-len(d.pending))
	for _, op := range d.history {
		if _, ok := drop[op.ID]; !ok {
			kept = append(kept, op)
		}
	}

	fresh := NewDocument(d.localSessionID)
	if err := fresh.ApplyOps(kept); err != nil {
		return errors.Wrap(err, "failed to rebuild document")
	}
	*d = *fresh
	return nil
}

// History returns every op applied to the document in application order.
func (d *Document) History() []Op {
	return append([]Op(nil), d.history...)
}

// --- Read API -----------------------------------------------------------------------------------

// ObjectType returns the type of the object with the given id.
func (d *Document) ObjectType(obj ObjID) (common.NodeType, error) {
	node, err := d.getNode(obj)
	if err != nil {
		return "", err
	}
	return node.Type(), nil
}

// Get returns the value stored at prop inside obj. The boolean is false when the
// slot is empty: a missing map key or an index past the end of a list.
func (d *Document) Get(obj ObjID, prop Prop) (Value, bool, error) {
	node, err := d.getNode(obj)
	if err != nil {
		return Value{}, false, err
	}

	switch n := node.(type) {
	case *MapNode:
		if prop.IsIndex() {
			return Value{}, false, common.ErrWrongNodeType{ID: obj, Expected: common.NodeTypeList, Actual: n.Type()}
		}
		v, ok := n.Get(prop.KeyName())
		return v, ok, nil
	case *ListNode:
		if !prop.IsIndex() {
			return Value{}, false, common.ErrWrongNodeType{ID: obj, Expected: common.NodeTypeMap, Actual: n.Type()}
		}
		elem, err := n.At(prop.IndexValue())
		if err != nil {
			return Value{}, false, nil
		}
		return elem.Value, true, nil
	}

	return Value{}, false, common.ErrWrongNodeType{ID: obj, Expected: common.NodeTypeMap, Actual: node.Type()}
}

// MapRange returns the visible entries of a map in key order.
func (d *Document) MapRange(obj ObjID) ([]MapEntry, error) {
	node, err := d.getNode(obj)
	if err != nil {
		return nil, err
	}
	m, ok := node.(*MapNode)
	if !ok {
		return nil, common.ErrWrongNodeType{ID: obj, Expected: common.NodeTypeMap, Actual: node.Type()}
	}

	keys := m.Keys()
	entries := make([]MapEntry, 0, len(keys))
	for _, key := range keys {
		v, _ := m.Get(key)
		entries = append(entries, MapEntry{Key: key, Value: v})
	}
	return entries, nil
}

// Length returns the number of visible entries, elements or characters of obj.
func (d *Document) Length(obj ObjID) (int, error) {
	node, err := d.getNode(obj)
	if err != nil {
		return 0, err
	}
	switch n := node.(type) {
	case *MapNode:
		return n.Len(), nil
	case *ListNode:
		return n.Length(), nil
	case *TextNode:
		return n.Length(), nil
	}
	return 0, common.ErrInvalidNodeType{Type: string(node.Type())}
}

// Text returns the content of a text object.
func (d *Document) Text(obj ObjID) (string, error) {
	node, err := d.textNode(obj)
	if err != nil {
		return "", err
	}
	return node.String(), nil
}

// View returns the document as plain Go values: maps, slices, strings and scalars.
func (d *Document) View() map[string]interface{} {
	return d.viewMap(d.root)
}

func (d *Document) viewMap(m *MapNode) map[string]interface{} {
	out := make(map[string]interface{}, m.Len())
	for _, key := range m.Keys() {
		v, _ := m.Get(key)
		out[key] = d.viewValue(v)
	}
	return out
}

func (d *Document) viewValue(v Value) interface{} {
	if !v.IsObject() {
		return v.Scalar().Interface()
	}
	id, _ := v.Object()
	switch n := d.index[id].(type) {
	case *MapNode:
		return d.viewMap(n)
	case *ListNode:
		out := make([]interface{}, 0, n.Length())
		for _, elem := range n.NodeElements {
			if !elem.Deleted {
				out = append(out, d.viewValue(elem.Value))
			}
		}
		return out
	case *TextNode:
		return n.String()
	}
	return nil
}

// --- Write API ----------------------------------------------------------------------------------

// slotOp fills the addressing fields of op for an existing slot at prop inside obj.
func (d *Document) slotOp(obj ObjID, prop Prop, op *Op) error {
	node, err := d.getNode(obj)
	if err != nil {
		return err
	}
	op.Obj = obj

	switch n := node.(type) {
	case *MapNode:
		if prop.IsIndex() {
			return common.ErrWrongNodeType{ID: obj, Expected: common.NodeTypeList, Actual: n.Type()}
		}
		op.Key = prop.KeyName()
		return nil
	case *ListNode:
		if !prop.IsIndex() {
			return common.ErrWrongNodeType{ID: obj, Expected: common.NodeTypeMap, Actual: n.Type()}
		}
		elem, err := n.At(prop.IndexValue())
		if err != nil {
			return err
		}
		op.Elem = elem.ID
		return nil
	}

	return common.ErrWrongNodeType{ID: obj, Expected: common.NodeTypeMap, Actual: node.Type()}
}

// insertOp fills the addressing fields of op for a new list element at index.
func (d *Document) insertOp(obj ObjID, index int, op *Op) error {
	list, err := d.listNode(obj)
	if err != nil {
		return err
	}
	length := list.Length()
	if index < 0 || index > length {
		return common.ErrIndexOutOfBounds{Index: index, Length: length}
	}
	op.Obj = obj
	op.After = common.NilID
	if index > 0 {
		prev, err := list.At(index - 1)
		if err != nil {
			return err
		}
		op.After = prev.ID
	}
	return nil
}

// Put writes a scalar at a map key or over an existing list element.
// Writing a scalar equal to the current one records nothing.
func (d *Document) Put(obj ObjID, prop Prop, s Scalar) error {
	current, ok, err := d.Get(obj, prop)
	if err != nil {
		return err
	}
	if ok && !current.IsObject() && current.Scalar().Equal(s) {
		return nil
	}

	op := Op{Action: common.OperationTypePut, Value: &s}
	if err := d.slotOp(obj, prop, &op); err != nil {
		return err
	}
	op.ID = d.nextID(1)
	return d.commitLocal(op)
}

// PutObject creates a new object of type t at a map key or over an existing list
// element and returns its id.
func (d *Document) PutObject(obj ObjID, prop Prop, t common.NodeType) (ObjID, error) {
	if !t.Valid() {
		return common.NilID, common.ErrInvalidNodeType{Type: string(t)}
	}
	op := Op{Action: common.OperationTypeMake, NodeType: t}
	if err := d.slotOp(obj, prop, &op); err != nil {
		return common.NilID, err
	}
	op.ID = d.nextID(1)
	if err := d.commitLocal(op); err != nil {
		return common.NilID, err
	}
	return op.ID, nil
}

// Insert inserts a scalar into a list so that it ends up at index.
func (d *Document) Insert(obj ObjID, index int, s Scalar) error {
	op := Op{Action: common.OperationTypeIns, Value: &s}
	if err := d.insertOp(obj, index, &op); err != nil {
		return err
	}
	op.ID = d.nextID(1)
	return d.commitLocal(op)
}

// InsertObject inserts a new object of type t into a list at index and returns its id.
func (d *Document) InsertObject(obj ObjID, index int, t common.NodeType) (ObjID, error) {
	if !t.Valid() {
		return common.NilID, common.ErrInvalidNodeType{Type: string(t)}
	}
	op := Op{Action: common.OperationTypeMake, NodeType: t, Insert: true}
	if err := d.insertOp(obj, index, &op); err != nil {
		return common.NilID, err
	}
	op.ID = d.nextID(1)
	if err := d.commitLocal(op); err != nil {
		return common.NilID, err
	}
	return op.ID, nil
}

// Delete removes a map key or a list element. Deleting a missing map key records nothing.
func (d *Document) Delete(obj ObjID, prop Prop) error {
	if !prop.IsIndex() {
		if _, ok, err := d.Get(obj, prop); err != nil || !ok {
			return err
		}
	}

	op := Op{Action: common.OperationTypeDel}
	if err := d.slotOp(obj, prop, &op); err != nil {
		return err
	}
	op.ID = d.nextID(1)
	return d.commitLocal(op)
}

// Increment adds delta to the counter stored at prop inside obj.
func (d *Document) Increment(obj ObjID, prop Prop, delta int64) error {
	current, ok, err := d.Get(obj, prop)
	if err != nil {
		return err
	}
	if !ok || current.IsObject() || current.Scalar().Kind() != KindCounter {
		return common.ErrInvalidOperation{Message: "increment target at " + prop.String() + " is not a counter"}
	}
	if delta == 0 {
		return nil
	}

	op := Op{Action: common.OperationTypeInc, Delta: delta}
	if err := d.slotOp(obj, prop, &op); err != nil {
		return err
	}
	op.ID = d.nextID(1)
	return d.commitLocal(op)
}

// SpliceText deletes del characters at pos in a text object and inserts text there.
func (d *Document) SpliceText(obj ObjID, pos, del int, text string) error {
	node, err := d.textNode(obj)
	if err != nil {
		return err
	}
	ids := node.visibleIDs()
	if pos < 0 || del < 0 || pos+del > len(ids) {
		return common.ErrIndexOutOfBounds{Index: pos + del, Length: len(ids)}
	}

	after := common.NilID
	if pos > 0 {
		after = ids[pos-1]
	}

	if del > 0 {
		op := Op{
			Action: common.OperationTypeTextDel,
			Obj:    obj,
			Elems:  append([]common.LogicalTimestamp(nil), ids[pos:pos+del]...),
		}
		op.ID = d.nextID(1)
		if err := d.commitLocal(op); err != nil {
			return err
		}
	}

	if text != "" {
		op := Op{Action: common.OperationTypeTextIns, Obj: obj, After: after, Text: text}
		op.ID = d.nextID(op.Span())
		if err := d.commitLocal(op); err != nil {
			return err
		}
	}
	return nil
}

// UpdateText replaces the content of a text object with s, touching only the
// characters between the common prefix and suffix. Equal content records nothing.
func (d *Document) UpdateText(obj ObjID, s string) error {
	node, err := d.textNode(obj)
	if err != nil {
		return err
	}
	old := []rune(node.String())
	next := []rune(s)

	prefix := 0
	for prefix < len(old) && prefix < len(next) && old[prefix] == next[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(next)-prefix &&
		old[len(old)-1-suffix] == next[len(next)-1-suffix] {
		suffix++
	}

	del := len(old) - prefix - suffix
	ins := string(next[prefix : len(next)-suffix])
	if del == 0 && ins == "" {
		return nil
	}
	return d.SpliceText(obj, prefix, del, ins)
}

// --- Encoding -----------------------------------------------------------------------------------

type documentJSON struct {
	Session common.SessionID `json:"session"`
	Ops     []Op             `json:"ops"`
}

// MarshalJSON encodes the document as its op history.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentJSON{Session: d.localSessionID, Ops: d.history})
}

// UnmarshalJSON rebuilds the document by replaying an encoded op history.
// A document with no session adopts the encoded one.
func (d *Document) UnmarshalJSON(data []byte) error {
	var dj documentJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		return errors.Wrap(err, "failed to unmarshal document")
	}

	sid := d.localSessionID
	if sid == common.NilSessionID {
		sid = dj.Session
	}
	*d = *NewDocument(sid)
	return d.ApplyOps(dj.Ops)
}
