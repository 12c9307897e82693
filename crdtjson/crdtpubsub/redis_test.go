package crdtpubsub

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisPubSub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps, err := NewRedisPubSub(client, &Options{DefaultFormat: EncodingFormatJSON, ClientID: "node-1"})
	require.NoError(t, err)
	exercisePubSub(t, ps)
}

func TestRedisPubSubRequiresClient(t *testing.T) {
	_, err := NewRedisPubSub(nil, nil)
	require.Error(t, err)
}

func TestRedisPubSubUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()
	_, err = NewRedisPubSub(client, nil)
	require.Error(t, err)
}
