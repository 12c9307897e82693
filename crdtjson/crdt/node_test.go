package crdt

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

func orderedSessions(t *testing.T) (common.SessionID, common.SessionID) {
	t.Helper()
	a, b := common.NewSessionID(), common.NewSessionID()
	if a.Compare(b) > 0 {
		a, b = b, a
	}
	return a, b
}

// TestMapNode tests the LWW map node
func TestMapNode(t *testing.T) {
	sid := common.NewSessionID()
	node := NewMapNode(common.LogicalTimestamp{SID: sid, Counter: 1})

	assert.Equal(t, common.NodeTypeMap, node.Type())

	ts2 := common.LogicalTimestamp{SID: sid, Counter: 2}
	ts3 := common.LogicalTimestamp{SID: sid, Counter: 3}
	ts4 := common.LogicalTimestamp{SID: sid, Counter: 4}

	assert.True(t, node.Set("b", ts3, ScalarValue(Str("new"))))
	// Older write loses
	assert.False(t, node.Set("b", ts2, ScalarValue(Str("old"))))
	assert.True(t, node.Set("a", ts2, ScalarValue(Int(1))))

	v, ok := node.Get("b")
	require.True(t, ok)
	assert.Equal(t, "new", v.Scalar().StrValue())
	assert.Equal(t, []string{"a", "b"}, node.Keys())
	assert.Equal(t, 2, node.Len())

	// Older delete loses
	assert.False(t, node.Delete("b", ts2))
	assert.True(t, node.Delete("b", ts4))
	_, ok = node.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, node.Keys())

	// The tombstone rejects a put that predates the delete
	assert.False(t, node.Set("b", ts3, ScalarValue(Str("late"))))
}

// TestListNode tests the RGA list node
func TestListNode(t *testing.T) {
	sid := common.NewSessionID()
	node := NewListNode(common.LogicalTimestamp{SID: sid, Counter: 1})
	id := func(c uint64) common.LogicalTimestamp { return common.LogicalTimestamp{SID: sid, Counter: c} }

	assert.True(t, node.Insert(common.NilID, &ListElement{ID: id(2), Timestamp: id(2), Value: ScalarValue(Str("a"))}))
	assert.True(t, node.Insert(id(2), &ListElement{ID: id(3), Timestamp: id(3), Value: ScalarValue(Str("c"))}))
	assert.True(t, node.Insert(id(2), &ListElement{ID: id(4), Timestamp: id(4), Value: ScalarValue(Str("b"))}))
	assert.False(t, node.Insert(id(99), &ListElement{ID: id(5)}))

	require.Equal(t, 3, node.Length())
	for i, want := range []string{"a", "b", "c"} {
		elem, err := node.At(i)
		require.NoError(t, err)
		assert.Equal(t, want, elem.Value.Scalar().StrValue())
	}

	assert.True(t, node.Set(id(4), id(6), ScalarValue(Str("B"))))
	assert.False(t, node.Set(id(4), id(5), ScalarValue(Str("stale"))))

	assert.True(t, node.Delete(id(2)))
	assert.False(t, node.Delete(id(2)))
	assert.Equal(t, 2, node.Length())

	elem, err := node.At(0)
	require.NoError(t, err)
	assert.Equal(t, id(4), elem.ID)
	assert.Equal(t, "B", elem.Value.Scalar().StrValue())

	_, err = node.At(2)
	var oob common.ErrIndexOutOfBounds
	assert.ErrorAs(t, err, &oob)
}

// TestListNodeConcurrentInsert checks that concurrent inserts at the same position
// converge regardless of arrival order.
func TestListNodeConcurrentInsert(t *testing.T) {
	sidA, sidB := orderedSessions(t)
	a := &ListElement{ID: common.LogicalTimestamp{SID: sidA, Counter: 1}, Value: ScalarValue(Str("a"))}
	b := &ListElement{ID: common.LogicalTimestamp{SID: sidB, Counter: 1}, Value: ScalarValue(Str("b"))}

	first := NewListNode(common.RootID)
	first.Insert(common.NilID, a)
	first.Insert(common.NilID, b)

	second := NewListNode(common.RootID)
	second.Insert(common.NilID, b)
	second.Insert(common.NilID, a)

	require.Equal(t, 2, first.Length())
	for i := 0; i < 2; i++ {
		x, err := first.At(i)
		require.NoError(t, err)
		y, err := second.At(i)
		require.NoError(t, err)
		assert.Equal(t, x.ID, y.ID)
	}
}

// TestTextNode tests the RGA text node
func TestTextNode(t *testing.T) {
	sid := common.NewSessionID()
	node := NewTextNode(common.LogicalTimestamp{SID: sid, Counter: 1})
	id := func(c uint64) common.LogicalTimestamp { return common.LogicalTimestamp{SID: sid, Counter: c} }

	assert.Equal(t, common.NodeTypeText, node.Type())

	assert.True(t, node.Insert(common.NilID, id(2), "abc"))
	assert.Equal(t, "abc", node.String())

	assert.True(t, node.Insert(id(4), id(5), "dé"))
	assert.Equal(t, "abcdé", node.String())
	assert.Equal(t, 5, node.Length())

	assert.True(t, node.Delete([]common.LogicalTimestamp{id(3)}))
	assert.False(t, node.Delete([]common.LogicalTimestamp{id(3)}))
	assert.Equal(t, "acdé", node.String())

	assert.False(t, node.Insert(id(42), id(7), "x"))
}

func TestScalar(t *testing.T) {
	assert.True(t, Str("a").Equal(Str("a")))
	assert.False(t, Str("a").Equal(Str("b")))
	assert.False(t, Int(1).Equal(Uint(1)))
	assert.True(t, Bytes([]byte{1, 2}).Equal(Bytes([]byte{1, 2})))
	assert.True(t, F64(math.NaN()).Equal(F64(math.NaN())))
	assert.True(t, Null().Equal(Null()))
	assert.Equal(t, KindCounter, Counter(3).Kind())
	assert.Equal(t, "timestamp", KindTimestamp.String())

	src := []byte{9}
	s := Bytes(src)
	src[0] = 0
	assert.Equal(t, []byte{9}, s.BytesValue())
}

func TestScalarJSON(t *testing.T) {
	scalars := []Scalar{
		Null(), Bool(true), Uint(math.MaxUint64), Int(-7), F64(math.Inf(-1)),
		Str("x"), Bytes([]byte{1, 2, 3}), Counter(5), Timestamp(1700000000000), Unknown(42, []byte{0xff}),
	}
	for _, s := range scalars {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var decoded Scalar
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, s.Equal(decoded), "scalar %s", s)
	}

	var bad Scalar
	assert.Error(t, json.Unmarshal([]byte(`{"k":"matrix"}`), &bad))
}

func TestValueAndProp(t *testing.T) {
	sid := common.NewSessionID()
	id := common.LogicalTimestamp{SID: sid, Counter: 3}

	v := ObjectValue(common.NodeTypeList, id)
	assert.True(t, v.IsObject())
	obj, typ := v.Object()
	assert.Equal(t, id, obj)
	assert.Equal(t, common.NodeTypeList, typ)

	assert.False(t, ScalarValue(Str("x")).IsObject())

	assert.False(t, Key("a").IsIndex())
	assert.True(t, Index(2).IsIndex())
	assert.Equal(t, "[2]", Index(2).String())
	assert.Equal(t, "a", RootKey("a").Prop.KeyName())
}
