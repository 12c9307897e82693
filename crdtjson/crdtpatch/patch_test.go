package crdtpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

func TestPatchBuilderFlush(t *testing.T) {
	doc := crdt.NewDocument(common.NewSessionID())
	builder := NewPatchBuilder(doc)
	builder.SetMetadata("origin", "test")

	assert.Nil(t, builder.Flush())

	require.NoError(t, doc.Put(common.RootID, crdt.Key("a"), crdt.Int(1)))
	require.NoError(t, doc.Put(common.RootID, crdt.Key("b"), crdt.Str("x")))
	assert.Equal(t, 2, builder.Pending())

	patch := builder.Flush()
	require.NotNil(t, patch)
	assert.Len(t, patch.Operations(), 2)
	assert.Equal(t, patch.Operations()[0].ID, patch.ID())
	assert.Equal(t, doc.GetSessionID(), patch.SessionID())
	assert.Equal(t, "test", patch.Metadata()["origin"])

	assert.Equal(t, 0, builder.Pending())
	assert.Nil(t, builder.Flush())
}

func TestPatchEncodeApply(t *testing.T) {
	source := crdt.NewDocument(common.NewSessionID())
	list, err := source.PutObject(common.RootID, crdt.Key("items"), common.NodeTypeList)
	require.NoError(t, err)
	require.NoError(t, source.Insert(list, 0, crdt.Str("x")))
	require.NoError(t, source.Put(common.RootID, crdt.Key("blob"), crdt.Bytes([]byte{1, 2})))

	patch := NewPatchBuilder(source).Flush()
	require.NotNil(t, patch)

	for _, format := range []common.EncodingFormat{common.EncodingFormatCompact, common.EncodingFormatVerbose} {
		data, err := patch.Encode(format)
		require.NoError(t, err)

		decoded, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, patch.ID(), decoded.ID())
		assert.Len(t, decoded.Operations(), 3)

		replica := crdt.NewDocument(common.NewSessionID())
		require.NoError(t, decoded.Apply(replica))
		assert.Equal(t, source.View(), replica.View())

		// Re-applying is a no-op
		require.NoError(t, decoded.Apply(replica))
		assert.Len(t, replica.History(), 3)
	}

	_, err = patch.Encode("yaml")
	assert.Error(t, err)

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}

func TestPatchIsEmpty(t *testing.T) {
	patch := NewPatch(common.NilID)
	assert.True(t, patch.IsEmpty())
	assert.NotNil(t, patch.Metadata())
}
