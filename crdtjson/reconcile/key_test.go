package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

func TestJSONKey(t *testing.T) {
	tests := []struct {
		elem  string
		key   itemKey
		state keyState
	}{
		{`{"id":"a"}`, stringKey("a"), keyFound},
		{`{"id":7}`, uintKey(7), keyFound},
		{`{"id":-7}`, intKey(-7), keyFound},
		{`{"key":"k"}`, stringKey("k"), keyFound},
		{`{"id":"a","key":"k"}`, stringKey("a"), keyFound},
		{`{"id":1.5}`, itemKey{}, keyDisqualified},
		{`{"id":true}`, itemKey{}, keyDisqualified},
		{`{"id":null}`, itemKey{}, keyDisqualified},
		{`{"id":{"x":1}}`, itemKey{}, keyDisqualified},
		{`{"id":[1]}`, itemKey{}, keyDisqualified},
		{`{"name":"x"}`, itemKey{}, keyAbsent},
		{`"scalar"`, itemKey{}, keyAbsent},
	}
	for _, tt := range tests {
		key, state := jsonKey(MustParse(tt.elem))
		assert.Equal(t, tt.state, state, tt.elem)
		assert.Equal(t, tt.key, key, tt.elem)
	}

	assert.Equal(t, uintKey(3), intKey(3))
}

func TestArrayKeys(t *testing.T) {
	keys, state, ok := arrayKeys(MustParse(`[{"id":"a"},{"id":2}]`).(Array))
	require.True(t, ok)
	assert.Equal(t, keyFound, state)
	assert.Equal(t, []itemKey{stringKey("a"), uintKey(2)}, keys)

	_, _, ok = arrayKeys(Array{})
	assert.False(t, ok)

	_, state, ok = arrayKeys(MustParse(`[{"id":"a"},{"id":"a"}]`).(Array))
	assert.False(t, ok)
	assert.Equal(t, keyDisqualified, state)

	_, state, ok = arrayKeys(MustParse(`[{"id":"a"},{"name":"b"}]`).(Array))
	assert.False(t, ok)
	assert.Equal(t, keyAbsent, state)

	_, state, ok = arrayKeys(MustParse(`[{"id":false},{"id":"b"}]`).(Array))
	assert.False(t, ok)
	assert.Equal(t, keyDisqualified, state)
}

func TestTreeKey(t *testing.T) {
	doc := crdt.NewDocument(common.NewSessionID())
	item := func(key string, s crdt.Scalar) crdt.Value {
		id, err := doc.PutObject(common.RootID, crdt.Key(key), common.NodeTypeMap)
		require.NoError(t, err)
		require.NoError(t, doc.Put(id, crdt.Key("id"), s))
		return crdt.ObjectValue(common.NodeTypeMap, id)
	}

	key, state, err := treeKey(doc, item("signed", crdt.Int(4)))
	require.NoError(t, err)
	assert.Equal(t, keyFound, state)
	assert.Equal(t, uintKey(4), key)

	_, state, err = treeKey(doc, item("float", crdt.F64(4)))
	require.NoError(t, err)
	assert.Equal(t, keyDisqualified, state)

	_, state, err = treeKey(doc, crdt.ScalarValue(crdt.Str("x")))
	require.NoError(t, err)
	assert.Equal(t, keyAbsent, state)

	text, err := doc.PutObject(common.RootID, crdt.Key("texty"), common.NodeTypeMap)
	require.NoError(t, err)
	body, err := doc.PutObject(text, crdt.Key("key"), common.NodeTypeText)
	require.NoError(t, err)
	require.NoError(t, doc.SpliceText(body, 0, 0, "abc"))
	key, state, err = treeKey(doc, crdt.ObjectValue(common.NodeTypeMap, text))
	require.NoError(t, err)
	assert.Equal(t, keyFound, state)
	assert.Equal(t, stringKey("abc"), key)
}

func TestByteFieldCodec(t *testing.T) {
	assert.True(t, IsByteField("vectorBase64"))
	assert.True(t, IsByteField("Base64"))
	assert.False(t, IsByteField("vectorbase64"))
	assert.False(t, IsByteField("base64Vector"))

	b, err := DecodeByteField("AQIDBA==")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)

	b, err = DecodeByteField("AQIDBA")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)

	_, err = DecodeByteField("%%%")
	assert.Error(t, err)

	assert.Equal(t, "AQIDBA==", EncodeByteField([]byte{1, 2, 3, 4}))
}
