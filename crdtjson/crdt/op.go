package crdt

import (
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

// Op is a single replicated mutation. Local writes produce ops and remote replicas
// apply the same ops to converge.
//
// Map ops address a field by Key. List ops address an existing element by Elem, or
// insert a new element after After (NilID is the head). The new element's id is the
// op id, as is the id of any object created by a make op.
type Op struct {
	ID       common.LogicalTimestamp   `json:"id"`
	Action   common.OperationType      `json:"op"`
	Obj      ObjID                     `json:"obj"`
	Key      string                    `json:"key,omitempty"`
	Elem     common.LogicalTimestamp   `json:"elem"`
	After    common.LogicalTimestamp   `json:"after"`
	Insert   bool                      `json:"insert,omitempty"`
	Value    *Scalar                   `json:"value,omitempty"`
	NodeType common.NodeType           `json:"type,omitempty"`
	Text     string                    `json:"text,omitempty"`
	Elems    []common.LogicalTimestamp `json:"elems,omitempty"`
	Delta    int64                     `json:"delta,omitempty"`
}

// Span returns the number of counter values the op consumes.
// A text insert assigns one id per character.
func (op Op) Span() uint64 {
	if op.Action == common.OperationTypeTextIns {
		if n := utf8.RuneCountInString(op.Text); n > 0 {
			return uint64(n)
		}
	}
	return 1
}

// applyOp applies a single op to the document's node index.
func (d *Document) applyOp(op Op) error {
	switch op.Action {
	case common.OperationTypeMake:
		var node Node
		switch op.NodeType {
		case common.NodeTypeMap:
			node = NewMapNode(op.ID)
		case common.NodeTypeList:
			node = NewListNode(op.ID)
		case common.NodeTypeText:
			node = NewTextNode(op.ID)
		default:
			return common.ErrInvalidNodeType{Type: string(op.NodeType)}
		}
		if _, ok := d.index[op.ID]; !ok {
			d.index[op.ID] = node
		}
		return d.place(op, ObjectValue(op.NodeType, op.ID))

	case common.OperationTypePut, common.OperationTypeIns:
		if op.Value == nil {
			return common.ErrInvalidOperation{Message: "missing value for " + string(op.Action)}
		}
		return d.place(op, ScalarValue(*op.Value))

	case common.OperationTypeDel:
		target, err := d.getNode(op.Obj)
		if err != nil {
			return err
		}
		switch node := target.(type) {
		case *MapNode:
			node.Delete(op.Key, op.ID)
		case *ListNode:
			if node.Find(op.Elem) == nil {
				return common.ErrNodeNotFound{ID: op.Elem}
			}
			node.Delete(op.Elem)
		default:
			return common.ErrInvalidOperation{Message: "unsupported node type for 'del' operation"}
		}
		return nil

	case common.OperationTypeTextIns:
		node, err := d.textNode(op.Obj)
		if err != nil {
			return err
		}
		if !node.Insert(op.After, op.ID, op.Text) {
			return common.ErrNodeNotFound{ID: op.After}
		}
		return nil

	case common.OperationTypeTextDel:
		node, err := d.textNode(op.Obj)
		if err != nil {
			return err
		}
		node.Delete(op.Elems)
		return nil

	case common.OperationTypeInc:
		return d.increment(op)
	}

	return common.ErrInvalidOperationType{Type: string(op.Action)}
}

// place stores value in the slot addressed by op.
func (d *Document) place(op Op, value Value) error {
	target, err := d.getNode(op.Obj)
	if err != nil {
		return err
	}

	switch node := target.(type) {
	case *MapNode:
		node.Set(op.Key, op.ID, value)
		return nil
	case *ListNode:
		if op.Insert || op.Action == common.OperationTypeIns {
			elem := &ListElement{ID: op.ID, Timestamp: op.ID, Value: value}
			if !node.Insert(op.After, elem) {
				return common.ErrNodeNotFound{ID: op.After}
			}
			return nil
		}
		if node.Find(op.Elem) == nil {
			return common.ErrNodeNotFound{ID: op.Elem}
		}
		node.Set(op.Elem, op.ID, value)
		return nil
	}

	return common.ErrWrongNodeType{ID: op.Obj, Expected: common.NodeTypeMap, Actual: target.Type()}
}

// increment adds op.Delta to the counter in the addressed slot. Increments commute,
// so the slot's write timestamp is left untouched.
func (d *Document) increment(op Op) error {
	target, err := d.getNode(op.Obj)
	if err != nil {
		return err
	}

	var slot *Value
	switch node := target.(type) {
	case *MapNode:
		field, ok := node.NodeFields[op.Key]
		if !ok || field.Deleted {
			return nil
		}
		slot = &field.Value
	case *ListNode:
		elem := node.Find(op.Elem)
		if elem == nil {
			return common.ErrNodeNotFound{ID: op.Elem}
		}
		if elem.Deleted {
			return nil
		}
		slot = &elem.Value
	default:
		return common.ErrWrongNodeType{ID: op.Obj, Expected: common.NodeTypeMap, Actual: target.Type()}
	}

	if slot.IsObject() || slot.Scalar().Kind() != KindCounter {
		// A concurrent put replaced the counter; the increment is dropped.
		return nil
	}
	*slot = ScalarValue(Counter(slot.Scalar().IntValue() + op.Delta))
	return nil
}

// ApplyOps merges ops produced by another replica. Ops that were already applied are
// skipped, so applying the same ops twice is harmless.
func (d *Document) ApplyOps(ops []Op) error {
	for _, op := range ops {
		if _, ok := d.seen[op.ID]; ok {
			continue
		}
		if err := d.applyOp(op); err != nil {
			return errors.Wrapf(err, "failed to apply op %s %s", op.Action, op.ID)
		}
		d.observe(op)
		d.history = append(d.history, op)
	}
	return nil
}
