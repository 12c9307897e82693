package crdtpubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPubSub(t *testing.T) {
	ps, err := NewMemoryPubSub(nil)
	require.NoError(t, err)
	exercisePubSub(t, ps)
}

func TestMemoryPubSubOrdering(t *testing.T) {
	ps, err := NewMemoryPubSub(NewOptions())
	require.NoError(t, err)
	defer ps.Close()

	ctx := context.Background()
	c := newCollector()
	c.ch = make(chan struct{}, 100)
	require.NoError(t, ps.Subscribe(ctx, "t", "s", c.handler))

	for i := 0; i < 50; i++ {
		require.NoError(t, ps.PublishRaw(ctx, "t", []byte{byte(i)}, EncodingFormatJSON))
	}
	msgs := c.wait(t, 50)
	for i, m := range msgs {
		assert.Equal(t, []byte{byte(i)}, m.data)
	}
}

func TestMemoryPubSubTopicIsolation(t *testing.T) {
	ps, err := NewMemoryPubSub(nil)
	require.NoError(t, err)
	defer ps.Close()

	ctx := context.Background()
	c := newCollector()
	require.NoError(t, ps.Subscribe(ctx, "doc:a", "s", c.handler))
	require.NoError(t, ps.PublishRaw(ctx, "doc:b", []byte("x"), ""))
	require.NoError(t, ps.PublishRaw(ctx, "doc:a", []byte("y"), ""))

	msgs := c.wait(t, 1)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, c.count())
	assert.Equal(t, "doc:a", msgs[0].topic)
}
