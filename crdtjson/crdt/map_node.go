package crdt

import (
	"sort"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

// MapNode represents a Last-Write-Wins map node.
// Deleted fields are kept as tombstones so a delete can win over an older concurrent put.
type MapNode struct {
	NodeId     ObjID
	NodeFields map[string]*MapField
}

// MapField represents a field in a LWW map.
type MapField struct {
	Timestamp common.LogicalTimestamp
	Value     Value
	Deleted   bool
}

// NewMapNode creates a new LWW map node.
func NewMapNode(id ObjID) *MapNode {
	return &MapNode{
		NodeId:     id,
		NodeFields: make(map[string]*MapField),
	}
}

// ID returns the unique identifier of the node.
func (n *MapNode) ID() ObjID {
	return n.NodeId
}

// Type returns the type of the node.
func (n *MapNode) Type() common.NodeType {
	return common.NodeTypeMap
}

// Get returns the visible value of a field.
func (n *MapNode) Get(key string) (Value, bool) {
	field, ok := n.NodeFields[key]
	if !ok || field.Deleted {
		return Value{}, false
	}
	return field.Value, true
}

// Set sets the value of a field if timestamp is newer than the field's last write.
func (n *MapNode) Set(key string, timestamp common.LogicalTimestamp, value Value) bool {
	field, ok := n.NodeFields[key]
	if !ok || timestamp.Compare(field.Timestamp) > 0 {
		n.NodeFields[key] = &MapField{
			Timestamp: timestamp,
			Value:     value,
		}
		return true
	}
	return false
}

// Delete tombstones a field if timestamp is newer than the field's last write.
func (n *MapNode) Delete(key string, timestamp common.LogicalTimestamp) bool {
	field, ok := n.NodeFields[key]
	if !ok {
		n.NodeFields[key] = &MapField{Timestamp: timestamp, Deleted: true}
		return true
	}
	if timestamp.Compare(field.Timestamp) > 0 {
		field.Timestamp = timestamp
		field.Value = Value{}
		field.Deleted = true
		return true
	}
	return false
}

// Keys returns the visible keys of the map in sorted order.
func (n *MapNode) Keys() []string {
	keys := make([]string, 0, len(n.NodeFields))
	for key, field := range n.NodeFields {
		if !field.Deleted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of visible keys.
func (n *MapNode) Len() int {
	count := 0
	for _, field := range n.NodeFields {
		if !field.Deleted {
			count++
		}
	}
	return count
}
