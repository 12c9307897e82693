package common

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogicalTimestamp(t *testing.T) {
	uuid1, err := uuid.NewV7()
	require.NoError(t, err)
	uuid2, err := uuid.NewV7()
	require.NoError(t, err)

	sid1 := SessionID(uuid1)
	sid2 := SessionID(uuid2)
	if sid1.Compare(sid2) > 0 {
		sid1, sid2 = sid2, sid1
	}

	ts1 := LogicalTimestamp{SID: sid1, Counter: 2}
	ts2 := LogicalTimestamp{SID: sid1, Counter: 3}
	ts3 := LogicalTimestamp{SID: sid2, Counter: 1}
	ts4 := LogicalTimestamp{SID: sid1, Counter: 2}
	ts5 := LogicalTimestamp{SID: sid2, Counter: 2}

	// Counter dominates
	assert.Equal(t, -1, ts1.Compare(ts2))
	assert.Equal(t, 1, ts2.Compare(ts1))
	assert.Equal(t, 1, ts1.Compare(ts3))

	// Session breaks ties
	assert.Equal(t, -1, ts1.Compare(ts5))
	assert.Equal(t, 1, ts5.Compare(ts1))

	assert.Equal(t, 0, ts1.Compare(ts4))

	next := ts1.Next()
	assert.Equal(t, ts1.SID, next.SID)
	assert.Equal(t, ts1.Counter+1, next.Counter)

	incremented := ts1.Increment(5)
	assert.Equal(t, ts1.Counter+5, incremented.Counter)

	assert.True(t, NilID.IsNil())
	assert.False(t, ts1.IsNil())
}

func TestLogicalTimestampJSON(t *testing.T) {
	ts := LogicalTimestamp{SID: NewSessionID(), Counter: 42}

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cnt":42`)
	assert.Contains(t, string(data), ts.SID.String())

	var decoded LogicalTimestamp
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ts, decoded)

	// Usable as a map key in JSON
	m := map[string]LogicalTimestamp{"a": ts}
	data, err = json.Marshal(m)
	require.NoError(t, err)
	var decodedMap map[string]LogicalTimestamp
	require.NoError(t, json.Unmarshal(data, &decodedMap))
	assert.Equal(t, ts, decodedMap["a"])
}

func TestParseSessionID(t *testing.T) {
	sid := NewSessionID()

	parsed, err := ParseSessionID(sid.String())
	require.NoError(t, err)
	assert.Equal(t, sid, parsed)

	_, err = ParseSessionID("not-a-uuid")
	assert.Error(t, err)
}

func TestNodeTypeValid(t *testing.T) {
	assert.True(t, NodeTypeMap.Valid())
	assert.True(t, NodeTypeList.Valid())
	assert.True(t, NodeTypeText.Valid())
	assert.False(t, NodeType("vec").Valid())
}

func TestErrors(t *testing.T) {
	assert.Equal(t, "invalid node type: foo", ErrInvalidNodeType{Type: "foo"}.Error())
	assert.Equal(t, "index 3 out of bounds (length 2)", ErrIndexOutOfBounds{Index: 3, Length: 2}.Error())
	assert.Contains(t, ErrWrongNodeType{Expected: NodeTypeMap, Actual: NodeTypeList}.Error(), "is list, expected map")
}
