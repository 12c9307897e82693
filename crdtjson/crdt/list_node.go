package crdt

import (
	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

// ListElement is one slot of an RGA list. Its ID is fixed at insertion; its value is a
// LWW register so it can be overwritten in place without changing the slot identity.
type ListElement struct {
	ID        common.LogicalTimestamp
	Timestamp common.LogicalTimestamp
	Value     Value
	Deleted   bool
}

// ListNode represents a Replicated Growable Array list node.
type ListNode struct {
	NodeId       ObjID
	NodeElements []*ListElement
}

// NewListNode creates a new RGA list node.
func NewListNode(id ObjID) *ListNode {
	return &ListNode{
		NodeId:       id,
		NodeElements: make([]*ListElement, 0),
	}
}

// ID returns the unique identifier of the node.
func (n *ListNode) ID() ObjID {
	return n.NodeId
}

// Type returns the type of the node.
func (n *ListNode) Type() common.NodeType {
	return common.NodeTypeList
}

// Length returns the number of visible elements in the list.
func (n *ListNode) Length() int {
	count := 0
	for _, elem := range n.NodeElements {
		if !elem.Deleted {
			count++
		}
	}
	return count
}

// At returns the visible element at index.
func (n *ListNode) At(index int) (*ListElement, error) {
	if index < 0 {
		return nil, common.ErrIndexOutOfBounds{Index: index, Length: n.Length()}
	}

	visibleIndex := 0
	for _, elem := range n.NodeElements {
		if elem.Deleted {
			continue
		}
		if visibleIndex == index {
			return elem, nil
		}
		visibleIndex++
	}

	return nil, common.ErrIndexOutOfBounds{Index: index, Length: visibleIndex}
}

// Find returns the element with the given id, visible or not.
func (n *ListNode) Find(id common.LogicalTimestamp) *ListElement {
	for _, elem := range n.NodeElements {
		if elem.ID == id {
			return elem
		}
	}
	return nil
}

// Insert places elem after the element identified by afterID, or at the head when
// afterID is NilID. Concurrent inserts at the same position are ordered by
// descending id so every replica converges on the same sequence.
func (n *ListNode) Insert(afterID common.LogicalTimestamp, elem *ListElement) bool {
	pos := -1
	if !afterID.IsNil() {
		for i, e := range n.NodeElements {
			if e.ID == afterID {
				pos = i
				break
			}
		}
		if pos == -1 {
			return false
		}
	}

	i := pos + 1
	for i < len(n.NodeElements) && n.NodeElements[i].ID.Compare(elem.ID) > 0 {
		i++
	}

	n.NodeElements = append(n.NodeElements, nil)
	copy(n.NodeElements[i+1:], n.NodeElements[i:])
	n.NodeElements[i] = elem
	return true
}

// Set overwrites the value of an element if timestamp is newer than its last write.
func (n *ListNode) Set(id common.LogicalTimestamp, timestamp common.LogicalTimestamp, value Value) bool {
	elem := n.Find(id)
	if elem == nil || timestamp.Compare(elem.Timestamp) <= 0 {
		return false
	}
	elem.Timestamp = timestamp
	elem.Value = value
	return true
}

// Delete marks an element as deleted.
func (n *ListNode) Delete(id common.LogicalTimestamp) bool {
	elem := n.Find(id)
	if elem == nil || elem.Deleted {
		return false
	}
	elem.Deleted = true
	return true
}
