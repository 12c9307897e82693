package common

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID represents a unique identifier for a replica session.
// It is implemented as a UUID v7 which provides time-ordered values.
type SessionID uuid.UUID

// NilSessionID is the zero value for SessionID.
var NilSessionID SessionID

// RootID is the fixed LogicalTimestamp of the document's root map.
var RootID = LogicalTimestamp{SID: NilSessionID, Counter: 0}

// NilID is the zero value for LogicalTimestamp. In sequences it marks the head position.
var NilID = LogicalTimestamp{SID: NilSessionID, Counter: 0}

// NewSessionID creates a new SessionID using UUID v7.
// It panics if the UUID cannot be created.
func NewSessionID() SessionID {
	const retry = 3

	var lastErr error
	for i := 0; i < retry; i++ {
		id, err := uuid.NewV7()
		if err == nil {
			return SessionID(id)
		}
		lastErr = err
	}

	panic(lastErr)
}

// ParseSessionID parses the canonical UUID text form of a session id.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilSessionID, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return SessionID(u), nil
}

// String returns the string representation of the SessionID.
func (s SessionID) String() string {
	return uuid.UUID(s).String()
}

// Compare compares two SessionIDs lexicographically.
// Returns:
//
//	-1 if s < other
//	 0 if s == other
//	 1 if s > other
func (s SessionID) Compare(other SessionID) int {
	for i := 0; i < len(s); i++ {
		if s[i] < other[i] {
			return -1
		}
		if s[i] > other[i] {
			return 1
		}
	}
	return 0
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s SessionID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(s).String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *SessionID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	*s = SessionID(u)
	return nil
}

// LogicalTimestamp is a Lamport timestamp: a per-replica session id and a counter.
// Every operation and every object in a document is identified by one.
type LogicalTimestamp struct {
	SID     SessionID `json:"sid"`
	Counter uint64    `json:"cnt"`
}

// Compare orders timestamps by counter first and breaks ties on the session id,
// which gives a total order that is consistent with causality.
// Returns:
//
//	-1 if t < other
//	 0 if t == other
//	 1 if t > other
func (t LogicalTimestamp) Compare(other LogicalTimestamp) int {
	if t.Counter < other.Counter {
		return -1
	}
	if t.Counter > other.Counter {
		return 1
	}
	return t.SID.Compare(other.SID)
}

// IsNil reports whether t is the zero timestamp.
func (t LogicalTimestamp) IsNil() bool {
	return t == NilID
}

// Next returns the next logical timestamp in the sequence.
func (t LogicalTimestamp) Next() LogicalTimestamp {
	return LogicalTimestamp{
		SID:     t.SID,
		Counter: t.Counter + 1,
	}
}

// Increment increments the counter by the given amount.
func (t LogicalTimestamp) Increment(amount uint64) LogicalTimestamp {
	return LogicalTimestamp{
		SID:     t.SID,
		Counter: t.Counter + amount,
	}
}

// String returns a compact "counter@session" representation.
func (t LogicalTimestamp) String() string {
	return fmt.Sprintf("%d@%s", t.Counter, t.SID)
}

// NodeType represents the type of a CRDT object node.
type NodeType string

const (
	// NodeTypeMap represents a LWW map (JSON object, table).
	NodeTypeMap NodeType = "map"
	// NodeTypeList represents an RGA list.
	NodeTypeList NodeType = "list"
	// NodeTypeText represents an RGA text blob.
	NodeTypeText NodeType = "text"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeMap, NodeTypeList, NodeTypeText:
		return true
	}
	return false
}

// OperationType represents the type of a CRDT operation.
type OperationType string

const (
	// OperationTypeMake creates a new object node and places it at a map key or list element.
	OperationTypeMake OperationType = "make"
	// OperationTypePut writes a scalar at a map key or over an existing list element.
	OperationTypePut OperationType = "put"
	// OperationTypeIns inserts a new list element holding a scalar.
	OperationTypeIns OperationType = "ins"
	// OperationTypeDel deletes a map key or a list element.
	OperationTypeDel OperationType = "del"
	// OperationTypeTextIns inserts characters into a text node.
	OperationTypeTextIns OperationType = "txt_ins"
	// OperationTypeTextDel deletes characters from a text node.
	OperationTypeTextDel OperationType = "txt_del"
	// OperationTypeInc increments a counter scalar.
	OperationTypeInc OperationType = "inc"
)

// EncodingFormat represents the format used to encode CRDT documents and patches.
type EncodingFormat string

const (
	// EncodingFormatVerbose is a verbose human-readable JSON encoding.
	EncodingFormatVerbose EncodingFormat = "verbose"
	// EncodingFormatCompact is a JSON encoding without insignificant whitespace.
	EncodingFormatCompact EncodingFormat = "compact"
)
