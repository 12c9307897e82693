package crdt

import (
	"strings"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

// TextElement is a single character of an RGA text node.
type TextElement struct {
	ID      common.LogicalTimestamp
	Char    rune
	Deleted bool
}

// TextNode represents a Replicated Growable Array text node.
type TextNode struct {
	NodeId       ObjID
	NodeElements []*TextElement
}

// NewTextNode creates a new RGA text node.
func NewTextNode(id ObjID) *TextNode {
	return &TextNode{
		NodeId:       id,
		NodeElements: make([]*TextElement, 0),
	}
}

// ID returns the unique identifier of the node.
func (n *TextNode) ID() ObjID {
	return n.NodeId
}

// Type returns the type of the node.
func (n *TextNode) Type() common.NodeType {
	return common.NodeTypeText
}

// Length returns the number of visible characters.
func (n *TextNode) Length() int {
	count := 0
	for _, elem := range n.NodeElements {
		if !elem.Deleted {
			count++
		}
	}
	return count
}

func (n *TextNode) String() string {
	var sb strings.Builder
	for _, elem := range n.NodeElements {
		if !elem.Deleted {
			sb.WriteRune(elem.Char)
		}
	}
	return sb.String()
}

// visibleIDs returns the ids of visible characters in order.
func (n *TextNode) visibleIDs() []common.LogicalTimestamp {
	ids := make([]common.LogicalTimestamp, 0, len(n.NodeElements))
	for _, elem := range n.NodeElements {
		if !elem.Deleted {
			ids = append(ids, elem.ID)
		}
	}
	return ids
}

// Insert inserts a string after the specified character, or at the head when afterID
// is NilID. Character i of value gets id {startID.SID, startID.Counter+i}.
func (n *TextNode) Insert(afterID common.LogicalTimestamp, startID common.LogicalTimestamp, value string) bool {
	pos := -1
	if !afterID.IsNil() {
		for i, elem := range n.NodeElements {
			if elem.ID == afterID {
				pos = i
				break
			}
		}
		if pos == -1 {
			return false
		}
	}

	runes := []rune(value)
	newElements := make([]*TextElement, len(runes))
	for i, c := range runes {
		newElements[i] = &TextElement{ID: startID.Increment(uint64(i)), Char: c}
	}
	if len(newElements) == 0 {
		return true
	}

	i := pos + 1
	for i < len(n.NodeElements) && n.NodeElements[i].ID.Compare(startID) > 0 {
		i++
	}

	rest := append([]*TextElement(nil), n.NodeElements[i:]...)
	n.NodeElements = append(append(n.NodeElements[:i], newElements...), rest...)
	return true
}

// Delete marks the given characters as deleted.
func (n *TextNode) Delete(ids []common.LogicalTimestamp) bool {
	targets := make(map[common.LogicalTimestamp]struct{}, len(ids))
	for _, id := range ids {
		targets[id] = struct{}{}
	}

	changed := false
	for _, elem := range n.NodeElements {
		if _, ok := targets[elem.ID]; ok && !elem.Deleted {
			elem.Deleted = true
			changed = true
		}
	}
	return changed
}
