package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
)

func TestNewDocument(t *testing.T) {
	sid := common.NewSessionID()
	doc := NewDocument(sid)

	assert.NotNil(t, doc)
	assert.Equal(t, common.RootID, doc.Root().ID())
	assert.Equal(t, sid, doc.GetSessionID())

	typ, err := doc.ObjectType(common.RootID)
	require.NoError(t, err)
	assert.Equal(t, common.NodeTypeMap, typ)

	_, err = doc.GetNode(common.LogicalTimestamp{SID: sid, Counter: 1})
	var notFound common.ErrNodeNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDocumentMapWrites(t *testing.T) {
	doc := NewDocument(common.NewSessionID())

	require.NoError(t, doc.Put(common.RootID, Key("name"), Str("raid")))
	v, ok, err := doc.Get(common.RootID, Key("name"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "raid", v.Scalar().StrValue())
	assert.Len(t, doc.PendingOps(), 1)

	// Identical write records nothing
	require.NoError(t, doc.Put(common.RootID, Key("name"), Str("raid")))
	assert.Len(t, doc.PendingOps(), 1)

	// Deleting a missing key records nothing
	require.NoError(t, doc.Delete(common.RootID, Key("missing")))
	assert.Len(t, doc.PendingOps(), 1)

	require.NoError(t, doc.Delete(common.RootID, Key("name")))
	_, ok, err = doc.Get(common.RootID, Key("name"))
	require.NoError(t, err)
	assert.False(t, ok)

	ops := doc.Commit()
	assert.Len(t, ops, 2)
	assert.Equal(t, common.OperationTypePut, ops[0].Action)
	assert.Equal(t, common.OperationTypeDel, ops[1].Action)
	assert.Empty(t, doc.PendingOps())
	assert.Len(t, doc.History(), 2)

	// Index props are rejected on maps
	err = doc.Put(common.RootID, Index(0), Null())
	var wrong common.ErrWrongNodeType
	assert.ErrorAs(t, err, &wrong)
}

func TestDocumentListWrites(t *testing.T) {
	doc := NewDocument(common.NewSessionID())

	list, err := doc.PutObject(common.RootID, Key("items"), common.NodeTypeList)
	require.NoError(t, err)

	require.NoError(t, doc.Insert(list, 0, Str("b")))
	require.NoError(t, doc.Insert(list, 0, Str("a")))
	require.NoError(t, doc.Insert(list, 2, Str("c")))
	assert.Error(t, doc.Insert(list, 5, Str("x")))

	n, err := doc.Length(list)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []interface{}{"a", "b", "c"}, doc.View()["items"])

	require.NoError(t, doc.Put(list, Index(1), Str("B")))
	require.NoError(t, doc.Delete(list, Index(0)))
	assert.Equal(t, []interface{}{"B", "c"}, doc.View()["items"])

	_, ok, err := doc.Get(list, Index(7))
	require.NoError(t, err)
	assert.False(t, ok)

	nested, err := doc.InsertObject(list, 2, common.NodeTypeMap)
	require.NoError(t, err)
	require.NoError(t, doc.Put(nested, Key("id"), Uint(1)))

	v, ok, err := doc.Get(list, Index(2))
	require.NoError(t, err)
	require.True(t, ok)
	obj, typ := v.Object()
	assert.Equal(t, nested, obj)
	assert.Equal(t, common.NodeTypeMap, typ)
}

func TestDocumentText(t *testing.T) {
	doc := NewDocument(common.NewSessionID())

	text, err := doc.PutObject(common.RootID, Key("body"), common.NodeTypeText)
	require.NoError(t, err)

	require.NoError(t, doc.SpliceText(text, 0, 0, "hello"))
	s, err := doc.Text(text)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	doc.Commit()
	require.NoError(t, doc.UpdateText(text, "help"))
	s, err = doc.Text(text)
	require.NoError(t, err)
	assert.Equal(t, "help", s)

	ops := doc.Commit()
	require.Len(t, ops, 2)
	assert.Equal(t, common.OperationTypeTextDel, ops[0].Action)
	assert.Len(t, ops[0].Elems, 2)
	assert.Equal(t, common.OperationTypeTextIns, ops[1].Action)
	assert.Equal(t, "p", ops[1].Text)

	require.NoError(t, doc.UpdateText(text, "help"))
	assert.Empty(t, doc.PendingOps())

	assert.Error(t, doc.SpliceText(text, 3, 5, ""))
	_, err = doc.Text(common.RootID)
	assert.Error(t, err)
}

func TestDocumentCounter(t *testing.T) {
	doc := NewDocument(common.NewSessionID())

	require.NoError(t, doc.Put(common.RootID, Key("hits"), Counter(1)))
	require.NoError(t, doc.Increment(common.RootID, Key("hits"), 2))

	v, ok, err := doc.Get(common.RootID, Key("hits"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Scalar().IntValue())

	require.NoError(t, doc.Put(common.RootID, Key("name"), Str("x")))
	assert.Error(t, doc.Increment(common.RootID, Key("name"), 1))
}

func TestDocumentReplication(t *testing.T) {
	source := NewDocument(common.NewSessionID())
	replica := NewDocument(common.NewSessionID())

	list, err := source.PutObject(common.RootID, Key("items"), common.NodeTypeList)
	require.NoError(t, err)
	require.NoError(t, source.Insert(list, 0, Int(1)))
	text, err := source.PutObject(common.RootID, Key("body"), common.NodeTypeText)
	require.NoError(t, err)
	require.NoError(t, source.SpliceText(text, 0, 0, "abc"))
	require.NoError(t, source.Put(common.RootID, Key("hits"), Counter(0)))
	require.NoError(t, source.Increment(common.RootID, Key("hits"), 4))

	ops := source.Commit()
	require.NoError(t, replica.ApplyOps(ops))
	assert.Equal(t, source.View(), replica.View())

	// Applying the same ops again is harmless
	require.NoError(t, replica.ApplyOps(ops))
	assert.Equal(t, source.View(), replica.View())
	assert.Len(t, replica.History(), len(ops))

	// The replica's clock moved past the source's ops
	assert.Equal(t, source.Clock(), replica.Clock())
	require.NoError(t, replica.Put(common.RootID, Key("next"), Bool(true)))
	assert.Equal(t, source.Clock()+1, replica.PendingOps()[0].ID.Counter)
}

func TestDocumentConcurrentPut(t *testing.T) {
	sidA, sidB := orderedSessions(t)
	a := NewDocument(sidA)
	b := NewDocument(sidB)

	require.NoError(t, a.Put(common.RootID, Key("k"), Str("from-a")))
	require.NoError(t, b.Put(common.RootID, Key("k"), Str("from-b")))

	opsA, opsB := a.Commit(), b.Commit()
	require.NoError(t, a.ApplyOps(opsB))
	require.NoError(t, b.ApplyOps(opsA))

	assert.Equal(t, a.View(), b.View())
	// Equal counters: the larger session id wins
	assert.Equal(t, "from-b", a.View()["k"])
}

func TestDocumentApplyMissingTarget(t *testing.T) {
	doc := NewDocument(common.NewSessionID())
	missing := common.LogicalTimestamp{SID: common.NewSessionID(), Counter: 9}
	v := Str("x")

	err := doc.ApplyOps([]Op{{
		ID:     common.LogicalTimestamp{SID: common.NewSessionID(), Counter: 10},
		Action: common.OperationTypePut,
		Obj:    missing,
		Key:    "a",
		Value:  &v,
	}})
	var notFound common.ErrNodeNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestDocumentMarshalJSON(t *testing.T) {
	sid := common.NewSessionID()
	doc := NewDocument(sid)

	nested, err := doc.PutObject(common.RootID, Key("obj"), common.NodeTypeMap)
	require.NoError(t, err)
	require.NoError(t, doc.Put(nested, Key("data"), Bytes([]byte{1, 2})))
	require.NoError(t, doc.Put(common.RootID, Key("n"), F64(1.5)))

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var restored Document
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, sid, restored.GetSessionID())
	assert.Equal(t, doc.View(), restored.View())
	assert.Equal(t, doc.Clock(), restored.Clock())
}

func TestDocumentRollback(t *testing.T) {
	doc := NewDocument(common.NewSessionID())
	require.NoError(t, doc.Put(common.RootID, Key("keep"), Int(1)))
	doc.Commit()

	remote := NewDocument(common.NewSessionID())
	require.NoError(t, remote.ApplyOps(doc.History()))
	require.NoError(t, remote.Put(common.RootID, Key("remote"), Str("r")))

	_, err := doc.PutObject(common.RootID, Key("drop"), common.NodeTypeList)
	require.NoError(t, err)
	require.NoError(t, doc.ApplyOps(remote.Commit()))
	require.NoError(t, doc.Delete(common.RootID, Key("keep")))

	require.NoError(t, doc.Rollback())
	assert.Empty(t, doc.PendingOps())
	assert.Equal(t, map[string]interface{}{"keep": int64(1), "remote": "r"}, doc.View())

	// nothing pending
	require.NoError(t, doc.Rollback())
	assert.Len(t, doc.History(), 2)
}
