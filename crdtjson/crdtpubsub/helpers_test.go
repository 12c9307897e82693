package crdtpubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
)

// newTestPatch builds a patch that puts key=value at the root of a fresh document.
func newTestPatch(t *testing.T, key string, value string) (*crdt.Document, *crdtpatch.Patch) {
	t.Helper()
	doc := crdt.NewDocument(common.NewSessionID())
	require.NoError(t, doc.Put(common.RootID, crdt.Key(key), crdt.Str(value)))
	patch := crdtpatch.NewPatchBuilder(doc).Flush()
	require.NotNil(t, patch)
	return doc, patch
}

type received struct {
	topic  string
	data   []byte
	format EncodingFormat
}

// collector records deliveries made to its handler.
type collector struct {
	mu   sync.Mutex
	msgs []received
	ch   chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 64)}
}

func (c *collector) handler(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, received{topic: topic, data: data, format: format})
	c.mu.Unlock()
	c.ch <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []received {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]received(nil), c.msgs...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// exercisePubSub runs the checks shared by every PubSub implementation.
func exercisePubSub(t *testing.T, ps PubSub) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, patch := newTestPatch(t, "name", "raid")

	a, b := newCollector(), newCollector()
	require.NoError(t, ps.Subscribe(ctx, "doc:1", "a", a.handler))
	require.NoError(t, ps.Subscribe(ctx, "doc:1", "b", b.handler))
	require.Error(t, ps.Subscribe(ctx, "doc:1", "a", a.handler))

	require.NoError(t, ps.Publish(ctx, "doc:1", patch, EncodingFormatJSON))
	require.NoError(t, ps.Publish(ctx, "doc:1", patch, EncodingFormatBase64))

	for _, c := range []*collector{a, b} {
		msgs := c.wait(t, 2)
		require.Len(t, msgs, 2)

		formats := map[EncodingFormat]bool{}
		for _, m := range msgs {
			require.Equal(t, "doc:1", m.topic)
			formats[m.format] = true
			got, err := DecodePatch(m.data, m.format)
			require.NoError(t, err)
			require.Equal(t, patch.ID(), got.ID())
			require.Equal(t, patch.Operations(), got.Operations())
		}
		require.True(t, formats[EncodingFormatJSON])
		require.True(t, formats[EncodingFormatBase64])
	}

	require.NoError(t, ps.Unsubscribe(ctx, "doc:1", "b"))
	require.Error(t, ps.Unsubscribe(ctx, "doc:1", "b"))

	require.NoError(t, ps.PublishRaw(ctx, "doc:1", []byte("raw"), ""))
	msgs := a.wait(t, 1)
	require.Equal(t, []byte("raw"), msgs[2].data)
	require.Equal(t, EncodingFormatJSON, msgs[2].format)
	require.Equal(t, 2, b.count())

	require.NoError(t, ps.Close())
	require.NoError(t, ps.Close())
	require.ErrorIs(t, ps.Publish(ctx, "doc:1", patch, ""), ErrClosed)
	require.ErrorIs(t, ps.Subscribe(ctx, "doc:1", "c", a.handler), ErrClosed)
}
