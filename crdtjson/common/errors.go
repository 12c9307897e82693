package common

import (
	"fmt"
)

// ErrInvalidNodeType is returned when an invalid node type is encountered.
type ErrInvalidNodeType struct {
	Type string
}

func (e ErrInvalidNodeType) Error() string {
	return fmt.Sprintf("invalid node type: %s", e.Type)
}

// ErrInvalidOperationType is returned when an invalid operation type is encountered.
type ErrInvalidOperationType struct {
	Type string
}

func (e ErrInvalidOperationType) Error() string {
	return fmt.Sprintf("invalid operation type: %s", e.Type)
}

// ErrNodeNotFound is returned when a node with the specified ID is not found.
type ErrNodeNotFound struct {
	ID LogicalTimestamp
}

func (e ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node not found: %v", e.ID)
}

// ErrInvalidOperation is returned when an operation is invalid.
type ErrInvalidOperation struct {
	Message string
}

func (e ErrInvalidOperation) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Message)
}

// ErrWrongNodeType is returned when an operation targets a node of an unexpected type,
// for example a sequence operation on a map.
type ErrWrongNodeType struct {
	ID       LogicalTimestamp
	Expected NodeType
	Actual   NodeType
}

func (e ErrWrongNodeType) Error() string {
	return fmt.Sprintf("node %v is %s, expected %s", e.ID, e.Actual, e.Expected)
}

// ErrIndexOutOfBounds is returned when a sequence index is outside the visible range.
type ErrIndexOutOfBounds struct {
	Index  int
	Length int
}

func (e ErrIndexOutOfBounds) Error() string {
	return fmt.Sprintf("index %d out of bounds (length %d)", e.Index, e.Length)
}
